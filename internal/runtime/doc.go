/*
Package runtime wires a declarative handler manifest to a message bus.

# Architecture Overview

A manifest lists components. Each one names a handler, its kind, and the
topics it reads and writes. The Service validates the manifest, opens a
transport connection and builds one dispatcher per handler kind. Binding then
resolves every handler identifier and hands the handler to its dispatcher.

# Package Structure

## Core Service (service.go)

The Service struct owns:
  - the transport connection (built from config or supplied)
  - the five dispatchers and the registrar that binds handlers to them
  - the optional schema contract validator
  - the metrics recorder

## HTTP endpoints (http.go, resources.go)

  - /metrics: Prometheus counters (MetricsPort)
  - /health: connection status (HealthPort)
  - /api/components: bound handlers, message counters and process usage

# Sub-packages

  - config/: Service configuration with validation and TOML loading
  - dispatch/: the five dispatch strategies, job hooks and the supplier pool
  - envelope/: immutable payload envelope and its builder
  - errors/: Sentinel errors and error types
  - handlers/: typed proto and JSON handler adapters
  - health/: connection health indicator
  - ids/: ULID correlation ids
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - manifest/: manifest types, loading and validation
  - metadata/: header map conversions
  - metrics/: per-topic message counters
  - registrar/: handler lookup and the kind to dispatcher strategy table
  - schema/: schema registry client and contract validator

# Usage Example

	cfg := &protowire.Config{
		PubSubSystem: "nats",
		NATSURL:      "nats://localhost:4222",
		NATSDevMode:  true,
		ManifestFile: "event-config.json",
	}

	handlers := protowire.NewHandlers().
		MustRegister("confirmOrder", confirmOrder)

	svc := protowire.NewService(cfg, logger, ctx, protowire.ServiceDependencies{
		Handlers: handlers,
	})

	svc.Start(ctx)
*/
package runtime
