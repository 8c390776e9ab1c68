// Package metrics counts messages sent, received and failed per topic.
package metrics

import (
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind is the event a counter tracks.
type Kind string

const (
	Sent     Kind = "sent"
	Received Kind = "received"
	Failed   Kind = "error"
)

// LabelTopic is the label carrying the topic name.
const LabelTopic = "topic"

type counterKey struct {
	kind  Kind
	topic string
}

// Recorder increments per-(kind, topic) counters. Counters are resolved lazily
// on first use and cached. A disabled Recorder, or one whose collectors could
// not be registered, still accepts every call and never panics.
type Recorder struct {
	enabled bool

	vecs map[Kind]*prometheus.CounterVec

	mu       sync.RWMutex
	counters map[counterKey]prometheus.Counter
}

// NewRecorder builds a Recorder and registers its collectors with reg. A nil
// reg leaves the collectors unregistered; they still count and can be read
// back through Count. Registering twice against the same registry reuses the
// existing collectors.
func NewRecorder(reg prometheus.Registerer, enabled bool) *Recorder {
	r := &Recorder{
		enabled:  enabled,
		vecs:     make(map[Kind]*prometheus.CounterVec, 3),
		counters: make(map[counterKey]prometheus.Counter),
	}
	if !enabled {
		return r
	}

	for kind, help := range map[Kind]string{
		Sent:     "Messages published per topic.",
		Received: "Messages received per topic.",
		Failed:   "Handler or publish failures per topic.",
	} {
		vec := newCounterVec(string(kind)+"_total", help)
		if reg != nil {
			if err := reg.Register(vec); err != nil {
				var already prometheus.AlreadyRegisteredError
				if errors.As(err, &already) {
					if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
						vec = existing
					}
				}
			}
		}
		r.vecs[kind] = vec
	}
	return r
}

// Disabled returns a Recorder whose increments are no-ops.
func Disabled() *Recorder {
	return NewRecorder(nil, false)
}

func newCounterVec(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protowire",
			Subsystem: "message",
			Name:      name,
			Help:      help,
		},
		[]string{LabelTopic},
	)
}

// Enabled reports whether increments are recorded.
func (r *Recorder) Enabled() bool {
	return r != nil && r.enabled
}

func (r *Recorder) IncrementSent(topic string) {
	r.increment(Sent, topic)
}

func (r *Recorder) IncrementReceived(topic string) {
	r.increment(Received, topic)
}

func (r *Recorder) IncrementError(topic string) {
	r.increment(Failed, topic)
}

// Count returns the current value of the (kind, topic) counter, or 0 when it
// has not been created.
func (r *Recorder) Count(kind Kind, topic string) float64 {
	if !r.Enabled() {
		return 0
	}
	r.mu.RLock()
	c, ok := r.counters[counterKey{kind: kind, topic: topic}]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return counterValue(c)
}

func (r *Recorder) increment(kind Kind, topic string) {
	if !r.Enabled() {
		return
	}
	defer func() {
		_ = recover()
	}()
	if c := r.counter(kind, topic); c != nil {
		c.Inc()
	}
}

func (r *Recorder) counter(kind Kind, topic string) prometheus.Counter {
	key := counterKey{kind: kind, topic: topic}

	r.mu.RLock()
	c, ok := r.counters[key]
	r.mu.RUnlock()
	if ok {
		return c
	}

	vec := r.vecs[kind]
	if vec == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c, err := vec.GetMetricWithLabelValues(topic)
	if err != nil {
		return nil
	}
	r.counters[key] = c
	return c
}

// TopicCount is one counter value.
type TopicCount struct {
	Kind  Kind    `json:"kind"`
	Topic string  `json:"topic"`
	Value float64 `json:"value"`
}

// Snapshot returns every counter created so far, ordered by topic then kind.
func (r *Recorder) Snapshot() []TopicCount {
	if !r.Enabled() {
		return nil
	}
	r.mu.RLock()
	out := make([]TopicCount, 0, len(r.counters))
	for key, c := range r.counters {
		out = append(out, TopicCount{Kind: key.kind, Topic: key.topic, Value: counterValue(c)})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
