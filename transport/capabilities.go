package transport

// Capabilities describes the features supported by a transport backend.
type Capabilities struct {
	// Name is the registry name of the transport.
	Name string

	// SupportsQueueGroups indicates subscribers sharing a queue group are
	// load-balanced. When false every subscriber receives every message.
	SupportsQueueGroups bool

	// SupportsHeaders indicates headers travel with the payload. When false
	// correlation ids are regenerated on receipt.
	SupportsHeaders bool

	// SupportsOrdering indicates messages within a subscription are delivered
	// in publish order.
	SupportsOrdering bool

	// SupportsAck indicates the transport redelivers unacknowledged messages.
	SupportsAck bool

	// SupportsStatus indicates Status reports backend connectivity, not just
	// whether the connection was closed.
	SupportsStatus bool

	// MaxMessageSize is the maximum message size in bytes (0 = unknown).
	MaxMessageSize int64
}

// RequiresGroupEmulation reports whether queue groups would have to be
// emulated by the application because the backend ignores them.
func (c Capabilities) RequiresGroupEmulation() bool {
	return !c.SupportsQueueGroups
}

// Predefined capability sets for the built-in transports.
var (
	NATSCapabilities = Capabilities{
		Name:                "nats",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsStatus:      true,
		MaxMessageSize:      1048576,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:                "nats-jetstream",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsAck:         true,
		MaxMessageSize:      1048576,
	}

	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsHeaders:  true,
		SupportsOrdering: true,
		SupportsAck:      true,
	}

	KafkaCapabilities = Capabilities{
		Name:                "kafka",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsAck:         true,
		MaxMessageSize:      1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:                "rabbitmq",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsAck:         true,
	}

	AWSCapabilities = Capabilities{
		Name:                "aws",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsAck:         true,
		MaxMessageSize:      262144,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsHeaders: true,
	}

	SQLiteCapabilities = Capabilities{
		Name:                "sqlite",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsStatus:      true,
	}

	PostgresCapabilities = Capabilities{
		Name:                "postgres",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsStatus:      true,
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
