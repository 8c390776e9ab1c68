package jetstream

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/protowire/transport"
	"github.com/drblury/protowire/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "nats-jetstream", caps.Name)
	assert.True(t, caps.SupportsAck)
	assert.False(t, caps.SupportsStatus)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.NATSJetStreamCapabilities, Capabilities())
}

func TestSubscriberConfig(t *testing.T) {
	t.Run("queue group names durable and queue", func(t *testing.T) {
		cfg := SubscriberConfig("nats://js:4222", "billing", nil, &wmnats.NATSMarshaler{})
		assert.Equal(t, "nats://js:4222", cfg.URL)
		assert.Equal(t, "billing", cfg.QueueGroupPrefix)
		assert.Equal(t, "billing", cfg.JetStream.DurablePrefix)
		assert.True(t, cfg.JetStream.AutoProvision)
		assert.Equal(t, DefaultAckWait, cfg.AckWaitTimeout)
	})

	t.Run("no queue group uses default durable", func(t *testing.T) {
		cfg := SubscriberConfig("nats://js:4222", "", nil, &wmnats.NATSMarshaler{})
		assert.Empty(t, cfg.QueueGroupPrefix)
		assert.Equal(t, DefaultDurablePrefix, cfg.JetStream.DurablePrefix)
	})
}

func TestBuild(t *testing.T) {
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	defer func() { PublisherFactory, SubscriberFactory = originalPub, originalSub }()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	var pubCfg wmnats.PublisherConfig
	var groups []string
	PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		pubCfg = cfg
		return pubSub, nil
	}
	SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		groups = append(groups, cfg.QueueGroupPrefix)
		return pubSub, nil
	}

	conn, err := Build(context.Background(), &transporttest.Config{NATSURL: "nats://js:4222", NATSDevMode: true}, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "nats://js:4222", pubCfg.URL)
	assert.True(t, pubCfg.JetStream.AutoProvision)
	assert.NotEmpty(t, pubCfg.NatsOptions)

	noop := func(context.Context, transport.Message) {}
	_, err = conn.Subscribe(context.Background(), "orders", "billing", noop)
	require.NoError(t, err)
	_, err = conn.Subscribe(context.Background(), "refunds", "billing", noop)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, groups)
}

func TestBuildPublisherError(t *testing.T) {
	original := PublisherFactory
	defer func() { PublisherFactory = original }()

	PublisherFactory = func(wmnats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("stream unavailable")
	}

	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.EqualError(t, err, "stream unavailable")
}
