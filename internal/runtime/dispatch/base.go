package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/protowire/internal/runtime/envelope"
	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/manifest"
	"github.com/drblury/protowire/internal/runtime/metrics"
	"github.com/drblury/protowire/transport"
)

// DefaultDrainTimeout bounds how long Shutdown waits per subscription or
// worker.
const DefaultDrainTimeout = 2 * time.Second

// TracerName is the instrumentation name used when Options.Tracer is nil.
const TracerName = "github.com/drblury/protowire/dispatch"

// Span names.
const (
	SpanReceive = "protowire.receive"
	SpanPublish = "protowire.publish"
	SpanSupply  = "protowire.supply"
)

const (
	attrTopic         = attribute.Key("messaging.destination.name")
	attrQueueGroup    = attribute.Key("messaging.consumer.group.name")
	attrPayloadType   = attribute.Key("protowire.payload_type")
	attrCorrelationID = attribute.Key("protowire.correlation_id")
	attrHandler       = attribute.Key("protowire.handler")
)

// Options are shared by every dispatcher.
type Options struct {
	Connection transport.Connection
	// Recorder defaults to a disabled recorder.
	Recorder *metrics.Recorder
	// Logger defaults to a no-op logger.
	Logger logging.ServiceLogger
	// Tracer defaults to otel.Tracer(TracerName).
	Tracer trace.Tracer
	Hooks  Hooks
	// DrainTimeout defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration
	// PoolSize sizes the worker pool of the pull dispatchers. Defaults to
	// DefaultPoolSize.
	PoolSize int
}

// base is the machinery every dispatcher shares: inbound envelope
// construction, guarded handler invocation, publishing through the write
// index and subscription bookkeeping.
type base struct {
	kind         manifest.HandlerKind
	conn         transport.Connection
	index        manifest.WriteTopicIndex
	recorder     *metrics.Recorder
	logger       logging.ServiceLogger
	tracer       trace.Tracer
	hooks        Hooks
	drainTimeout time.Duration

	mu     sync.Mutex
	closed bool
	subs   []transport.Subscription
}

func newBase(kind manifest.HandlerKind, m manifest.Manifest, opts Options) (*base, error) {
	if opts.Connection == nil {
		return nil, errspkg.ErrConnectionRequired
	}
	b := &base{
		kind:         kind,
		conn:         opts.Connection,
		index:        manifest.NewWriteTopicIndex(m, kind),
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		tracer:       opts.Tracer,
		hooks:        opts.Hooks,
		drainTimeout: opts.DrainTimeout,
	}
	if b.recorder == nil {
		b.recorder = metrics.Disabled()
	}
	if b.logger == nil {
		b.logger = logging.Nop()
	}
	b.logger = b.logger.With(logging.LogFields{"dispatcher": kind.String()})
	if b.tracer == nil {
		b.tracer = otel.Tracer(TracerName)
	}
	if b.drainTimeout <= 0 {
		b.drainTimeout = DefaultDrainTimeout
	}
	return b, nil
}

// Kind returns the handler kind this dispatcher drives.
func (b *base) Kind() manifest.HandlerKind {
	return b.kind
}

// WriteTopics returns the payload type to topic routing of this dispatcher.
func (b *base) WriteTopics() map[string]string {
	return b.index.Topics()
}

// Closed reports whether Shutdown has been called.
func (b *base) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// subscribe binds process to every read binding of entry.
func (b *base) subscribe(ctx context.Context, entry manifest.ComponentEntry, process func(ctx context.Context, in Envelope) ([]Envelope, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errspkg.ErrDispatcherClosed
	}

	for _, binding := range entry.ReadTopics {
		binding := binding
		sub, err := b.conn.Subscribe(ctx, binding.TopicName, binding.QueueGroup, func(ctx context.Context, msg transport.Message) {
			b.receive(ctx, entry.HandlerIdentifier, binding, msg, process)
		})
		if err != nil {
			return fmt.Errorf("subscribe to %q: %w", binding.TopicName, err)
		}
		b.subs = append(b.subs, sub)
		b.logger.Info("Subscribed", logging.LogFields{
			"handler":     entry.HandlerIdentifier,
			"topic":       binding.TopicName,
			"queue_group": binding.QueueGroup,
		})
	}
	return nil
}

// receive handles one inbound message. Handler failures are logged and
// counted against the read topic; they never reach the transport.
func (b *base) receive(ctx context.Context, handler string, binding manifest.TopicBinding, msg transport.Message, process func(ctx context.Context, in Envelope) ([]Envelope, error)) {
	topic := binding.TopicName
	in, err := inboundEnvelope(binding, msg)
	if err != nil {
		b.recorder.IncrementReceived(topic)
		b.recorder.IncrementError(topic)
		b.logger.Error("Dropping malformed message", err, logging.LogFields{"topic": topic})
		return
	}

	ctx = logging.WithCorrelationID(ctx, in.CorrelationID())
	ctx, span := b.tracer.Start(ctx, SpanReceive,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attrTopic.String(topic),
			attrQueueGroup.String(binding.QueueGroup),
			attrPayloadType.String(in.PayloadType()),
			attrCorrelationID.String(in.CorrelationID()),
			attrHandler.String(handler),
		))
	defer span.End()

	log := logging.FromContext(ctx, b.logger)
	log.Debug("Received message", logging.LogFields{"topic": topic})
	log.Trace("Message headers", logging.LogFields{"topic": topic, "headers": msg.Headers})
	b.recorder.IncrementReceived(topic)

	var out []Envelope
	err = b.invoke(ctx, JobContext{
		Handler:       handler,
		Kind:          b.kind,
		Topic:         topic,
		CorrelationID: in.CorrelationID(),
		Headers:       in.Metadata(),
	}, func(ctx context.Context) error {
		var err error
		out, err = process(ctx, in)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.recorder.IncrementError(topic)
		log.Error("Error while processing message", err, logging.LogFields{"topic": topic, "handler": handler})
		return
	}

	for _, env := range out {
		b.publish(ctx, env)
	}
}

// inboundEnvelope wraps a transport message. The payload type is the
// binding's message type, falling back to the incoming header and then the
// topic name.
func inboundEnvelope(binding manifest.TopicBinding, msg transport.Message) (Envelope, error) {
	data := msg.Data
	if data == nil {
		data = []byte{}
	}
	payloadType := binding.MessageType
	if payloadType == "" {
		payloadType = msg.Headers.Get(string(envelope.PayloadType))
	}
	if payloadType == "" {
		payloadType = binding.TopicName
	}
	return envelope.FromMetadata(data, msg.Headers).
		WithPayloadType(payloadType).
		Build()
}

// invoke runs fn with hooks around it and turns a panic into an error.
func (b *base) invoke(ctx context.Context, jc JobContext, fn func(ctx context.Context) error) (err error) {
	jc.Context = ctx
	jc.StartedAt = time.Now()
	b.hooks.start(jc)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		b.hooks.finish(jc, err)
	}()
	return fn(ctx)
}

// publish routes env to the topic declared for its payload type. Envelopes
// whose type has no write topic are dropped. Publish errors are logged.
func (b *base) publish(ctx context.Context, env Envelope) {
	if env.IsZero() {
		return
	}
	topic, ok := b.index.TopicFor(env.PayloadType())
	if !ok {
		b.logger.Trace("No write topic for payload type", logging.LogFields{"payload_type": env.PayloadType()})
		return
	}

	// In-flight results still go out while subscriptions drain.
	ctx = logging.WithCorrelationID(context.WithoutCancel(ctx), env.CorrelationID())
	ctx, span := b.tracer.Start(ctx, SpanPublish,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attrTopic.String(topic),
			attrPayloadType.String(env.PayloadType()),
			attrCorrelationID.String(env.CorrelationID()),
		))
	defer span.End()

	headers := env.Metadata()
	log := logging.FromContext(ctx, b.logger)
	log.Debug("Sending message", logging.LogFields{"topic": topic})
	log.Trace("Message headers", logging.LogFields{"topic": topic, "headers": headers})

	if err := b.conn.Publish(ctx, topic, headers, env.Payload()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Error while publishing message", err, logging.LogFields{"topic": topic})
		return
	}
	b.recorder.IncrementSent(topic)
}

// close marks the dispatcher shut down and drains its subscriptions in
// parallel, each bounded by the drain timeout. It reports false when called
// more than once.
func (b *base) close() bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	if len(subs) == 0 {
		return true
	}
	b.logger.Info("Draining subscriptions", logging.LogFields{"count": len(subs)})

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub transport.Subscription) {
			defer wg.Done()
			fields := logging.LogFields{"topic": sub.Topic(), "queue_group": sub.QueueGroup()}
			if err := sub.Drain(b.drainTimeout); err != nil {
				fields["error"] = err.Error()
				b.logger.Warn("Failed to drain subscription", fields)
				return
			}
			b.logger.Debug("Drained subscription", fields)
		}(sub)
	}
	wg.Wait()
	return true
}
