package transport_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
	"github.com/drblury/protowire/transport"
)

func newChannelConnection(t *testing.T) (*transport.WatermillConnection, *int) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	created := 0
	conn := transport.NewWatermillConnection(pubSub, func(string) (message.Subscriber, error) {
		created++
		return pubSub, nil
	}, transport.ChannelCapabilities, nil)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, &created
}

func TestWatermillConnectionDeliversHeadersAndPayload(t *testing.T) {
	conn, _ := newChannelConnection(t)

	received := make(chan transport.Message, 1)
	sub, err := conn.Subscribe(context.Background(), "orders", "", func(ctx context.Context, msg transport.Message) {
		received <- msg
	})
	require.NoError(t, err)
	assert.Equal(t, "orders", sub.Topic())
	assert.Equal(t, "", sub.QueueGroup())

	require.NoError(t, conn.Publish(context.Background(), "orders", metadatapkg.New("correlationId", "C1"), []byte("payload")))

	select {
	case msg := <-received:
		assert.Equal(t, "orders", msg.Topic)
		assert.Equal(t, "C1", msg.Headers.Get("correlationId"))
		assert.Equal(t, []byte("payload"), msg.Data)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestWatermillConnectionCachesSubscriberPerGroup(t *testing.T) {
	conn, created := newChannelConnection(t)
	noop := func(context.Context, transport.Message) {}

	_, err := conn.Subscribe(context.Background(), "a", "g1", noop)
	require.NoError(t, err)
	_, err = conn.Subscribe(context.Background(), "b", "g1", noop)
	require.NoError(t, err)
	_, err = conn.Subscribe(context.Background(), "c", "g2", noop)
	require.NoError(t, err)

	assert.Equal(t, 2, *created)
}

func TestWatermillConnectionDrainStopsDelivery(t *testing.T) {
	conn, _ := newChannelConnection(t)

	var mu sync.Mutex
	count := 0
	sub, err := conn.Subscribe(context.Background(), "orders", "", func(ctx context.Context, msg transport.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, sub.Drain(time.Second))
	require.NoError(t, conn.Publish(context.Background(), "orders", nil, []byte("late")))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestWatermillConnectionDrainTimesOut(t *testing.T) {
	conn, _ := newChannelConnection(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	sub, err := conn.Subscribe(context.Background(), "slow", "", func(ctx context.Context, msg transport.Message) {
		close(entered)
		<-release
	})
	require.NoError(t, err)
	require.NoError(t, conn.Publish(context.Background(), "slow", nil, []byte("x")))
	<-entered

	err = sub.Drain(20 * time.Millisecond)
	assert.ErrorIs(t, err, errspkg.ErrDrainTimeout)
	close(release)
}

func TestWatermillConnectionRejectsUseAfterClose(t *testing.T) {
	conn, _ := newChannelConnection(t)
	assert.Equal(t, transport.Status{Connected: true, State: "OPEN"}, conn.Status())
	require.NoError(t, conn.Close())
	assert.Equal(t, "CLOSED", conn.Status().State)
	require.NoError(t, conn.Close())

	err := conn.Publish(context.Background(), "orders", nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrConnectionClosed)

	_, err = conn.Subscribe(context.Background(), "orders", "", func(context.Context, transport.Message) {})
	assert.ErrorIs(t, err, errspkg.ErrConnectionClosed)
}

func TestWatermillConnectionSubscriberFactoryError(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	boom := errors.New("boom")
	conn := transport.NewWatermillConnection(pubSub, func(string) (message.Subscriber, error) {
		return nil, boom
	}, transport.ChannelCapabilities, watermill.NopLogger{})

	_, err := conn.Subscribe(context.Background(), "orders", "g", func(context.Context, transport.Message) {})
	assert.ErrorIs(t, err, boom)

	_, err = conn.Subscribe(context.Background(), "", "g", func(context.Context, transport.Message) {})
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)

	assert.Equal(t, transport.ChannelCapabilities, conn.Capabilities())
}
