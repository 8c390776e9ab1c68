// Package protowire binds message handlers to a message bus from a declarative
// manifest. The manifest names each handler, its kind (consumer, function,
// function fanout, supplier or supplier fanout) and the topics it reads and
// writes. Service validates the manifest, opens the transport selected in
// Config and hands every handler to the dispatcher for its kind.
//
// Handlers work on envelopes: a payload plus ordered headers, three of which
// are managed by the library (payloadType, correlationId and creationTs).
// Function and supplier results are routed to the write topic whose declared
// message type matches the result's payloadType; results with no matching
// topic are dropped and logged. Correlation ids flow from input to output.
//
// NewHandlers collects handlers by identifier. Plain functions can be adapted
// with ConsumerFunc, FunctionFunc and friends, or typed with ApplyWith and a
// ProtoCodecFor or JSONCodecFor codec. A minimal setup fills Config, registers
// handlers, creates a Service and calls Start.
//
// # Transports
//
// Importing github.com/drblury/protowire/transport/transports registers every
// bundled transport:
//   - nats and nats-jetstream: core NATS and JetStream
//   - channel: in-process Go channels for tests and local runs
//   - kafka: consumer groups map to queue groups
//   - rabbitmq: AMQP queues
//   - aws: SNS/SQS, LocalStack compatible
//   - http: webhook style delivery
//   - sqlite and postgres: SQL backed log tables
//
// # Schema contracts
//
// With SchemaValidationEnabled the service publishes a SHA-256 fingerprint of
// each bound message descriptor to the schema registry and compares it with the
// one already stored. A mismatch stops startup; an unreachable registry does not.
//
// # Observability
//
// Message counters per topic are exported to Prometheus on MetricsPort.
// HealthPort serves /health with the connection status and /api/components with
// the bound handlers. JobHooks run around every handler invocation.
package protowire
