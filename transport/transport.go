// Package transport defines the bus primitives the runtime depends on: a
// Connection that publishes and subscribes, and drainable Subscriptions.
// Each backend lives in its own sub-package and registers a Builder with the
// transport registry.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
)

// Message is one message as it travels on the bus.
type Message struct {
	Topic   string
	Headers metadatapkg.Metadata
	Data    []byte
}

// Handler receives messages for a subscription. It runs on the backend's
// delivery goroutine; ctx is cancelled when the subscription is drained.
type Handler func(ctx context.Context, msg Message)

// Subscription is a live subscription created by Connection.Subscribe.
type Subscription interface {
	Topic() string
	QueueGroup() string
	// Drain stops new deliveries and waits up to timeout for in-flight
	// handlers to return.
	Drain(timeout time.Duration) error
}

// Connection is an open connection to a message bus.
type Connection interface {
	Publish(ctx context.Context, topic string, headers metadatapkg.Metadata, data []byte) error
	// Subscribe registers handler for topic. A non-empty queueGroup shares
	// delivery among every subscriber of the same group.
	Subscribe(ctx context.Context, topic, queueGroup string, handler Handler) (Subscription, error)
	Close() error
}

// Status is a point-in-time view of a connection.
type Status struct {
	Connected bool
	State     string
	URL       string
	ServerID  string
}

// StatusReporter is implemented by connections that can report liveness.
type StatusReporter interface {
	Status() Status
}

// Builder creates a connection from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Connection, error)

// Config provides the values transports need without depending on the full
// config package.
type Config interface {
	GetPubSubSystem() string

	// NATS
	GetNATSURL() string
	GetNATSCredsFile() string
	GetNATSCAFile() string
	GetNATSDevMode() bool
	GetNATSConnectTimeout() time.Duration
	GetNATSClientName() string

	// Kafka
	GetKafkaBrokers() []string

	// RabbitMQ
	GetRabbitMQURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// SQL log
	GetSQLiteFile() string
	GetPostgresURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by connections that can report their
// capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
