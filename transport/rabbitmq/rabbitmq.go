// Package rabbitmq provides a RabbitMQ/AMQP transport for protowire.
package rabbitmq

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/protowire/internal/runtime/ids"
	"github.com/drblury/protowire/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

// Register registers the RabbitMQ transport with the default registry.
// This should be called from an init() function in an importing package,
// or explicitly before using the transport.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build creates a new RabbitMQ transport. Publisher and subscribers share one
// AMQP connection.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Connection, error) {
	url := cfg.GetRabbitMQURL()

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := PublisherFactory(PubSubConfig(url, ""), logger, conn)
	if err != nil {
		return nil, errors.Join(err, closeConnection(conn))
	}

	newSubscriber := func(queueGroup string) (message.Subscriber, error) {
		return SubscriberFactory(PubSubConfig(url, queueGroup), logger, conn)
	}

	return &Connection{
		WatermillConnection: transport.NewWatermillConnection(publisher, newSubscriber, transport.RabbitMQCapabilities, logger),
		amqpConn:            conn,
	}, nil
}

// PubSubConfig returns the durable fanout config for a queue group. Members
// of a group bind the same queue and compete for messages. An ungrouped
// subscription gets an exclusive queue name.
func PubSubConfig(url, queueGroup string) amqp.Config {
	suffix := queueGroup
	if suffix == "" {
		suffix = ids.CreateULID()
	}
	return amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicNameWithSuffix(suffix))
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

// Connection closes the shared AMQP connection after its publisher and
// subscribers.
type Connection struct {
	*transport.WatermillConnection
	amqpConn *amqp.ConnectionWrapper
}

func (c *Connection) Close() error {
	return errors.Join(c.WatermillConnection.Close(), closeConnection(c.amqpConn))
}

// closeConnection is replaced in tests, where the wrapper is never dialed.
var closeConnection = func(conn *amqp.ConnectionWrapper) error {
	if conn == nil || conn.Closed() {
		return nil
	}
	return conn.Close()
}
