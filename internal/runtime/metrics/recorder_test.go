package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsPerKindAndTopic(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, true)

	r.IncrementReceived("orders.in")
	r.IncrementReceived("orders.in")
	r.IncrementSent("orders.out")
	r.IncrementError("orders.in")

	assert.Equal(t, 2.0, r.Count(Received, "orders.in"))
	assert.Equal(t, 1.0, r.Count(Sent, "orders.out"))
	assert.Equal(t, 1.0, r.Count(Failed, "orders.in"))
	assert.Equal(t, 0.0, r.Count(Sent, "orders.in"))
}

func TestRecorderExportsPrometheusCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, true)

	r.IncrementSent("orders.out")

	expected := `
# HELP protowire_message_sent_total Messages published per topic.
# TYPE protowire_message_sent_total counter
protowire_message_sent_total{topic="orders.out"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "protowire_message_sent_total"))
}

func TestRecorderDisabledIsNoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, false)

	r.IncrementSent("orders")
	r.IncrementReceived("orders")
	r.IncrementError("orders")

	assert.False(t, r.Enabled())
	assert.Equal(t, 0.0, r.Count(Sent, "orders"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestNilRecorderNeverPanics(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.IncrementSent("x")
		r.IncrementReceived("x")
		r.IncrementError("x")
		_ = r.Count(Sent, "x")
	})
}

func TestRecorderWithoutRegistryStillCounts(t *testing.T) {
	r := NewRecorder(nil, true)
	r.IncrementSent("x")
	assert.Equal(t, 1.0, r.Count(Sent, "x"))
}

func TestRecorderReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewRecorder(reg, true)
	second := NewRecorder(reg, true)

	first.IncrementSent("orders")
	second.IncrementSent("orders")

	assert.Equal(t, 2.0, testutil.ToFloat64(second.vecs[Sent].WithLabelValues("orders")))
}

func TestRecorderConcurrentIncrements(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry(), true)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.IncrementReceived("hot")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1600.0, r.Count(Received, "hot"))
}

func TestDisabledConstructor(t *testing.T) {
	r := Disabled()
	r.IncrementSent("x")
	assert.False(t, r.Enabled())
}

func TestRecorderSnapshotIsOrdered(t *testing.T) {
	r := NewRecorder(nil, true)
	r.IncrementSent("orders.out")
	r.IncrementReceived("orders.in")
	r.IncrementError("orders.in")
	r.IncrementReceived("orders.in")

	assert.Equal(t, []TopicCount{
		{Kind: Failed, Topic: "orders.in", Value: 1},
		{Kind: Received, Topic: "orders.in", Value: 2},
		{Kind: Sent, Topic: "orders.out", Value: 1},
	}, r.Snapshot())

	assert.Nil(t, Disabled().Snapshot())
}
