// Package jetstream provides a NATS JetStream transport for protowire on top
// of the Watermill NATS adapter. Streams are provisioned on first use and each
// queue group gets its own durable consumer.
package jetstream

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/protowire/transport"
	natstransport "github.com/drblury/protowire/transport/nats"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	// DefaultAckWait is how long the server waits for an ack before redelivery.
	DefaultAckWait = 30 * time.Second

	// DefaultDurablePrefix names durable consumers of subscriptions without a
	// queue group.
	DefaultDurablePrefix = "protowire"
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmnats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the JetStream transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Build creates a JetStream connection. Connect options, credentials and
// TLS included, are shared with the core NATS transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Connection, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	url := cfg.GetNATSURL()
	natsOptions := natstransport.Options(cfg, logger)
	marshaler := &wmnats.NATSMarshaler{}

	publisher, err := PublisherFactory(wmnats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOptions,
		Marshaler:   marshaler,
		JetStream: wmnats.JetStreamConfig{
			AutoProvision: true,
		},
	}, logger)
	if err != nil {
		return nil, err
	}

	newSubscriber := func(queueGroup string) (message.Subscriber, error) {
		return SubscriberFactory(SubscriberConfig(url, queueGroup, natsOptions, marshaler), logger)
	}

	return transport.NewWatermillConnection(publisher, newSubscriber, transport.NATSJetStreamCapabilities, logger), nil
}

// SubscriberConfig returns the subscriber config for one queue group. Members
// of a group share a durable consumer named after the group.
func SubscriberConfig(url, queueGroup string, natsOptions []nats.Option, unmarshaler wmnats.Unmarshaler) wmnats.SubscriberConfig {
	durable := queueGroup
	if durable == "" {
		durable = DefaultDurablePrefix
	}
	return wmnats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   DefaultAckWait,
		NatsOptions:      natsOptions,
		Unmarshaler:      unmarshaler,
		JetStream: wmnats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: durable,
		},
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}
