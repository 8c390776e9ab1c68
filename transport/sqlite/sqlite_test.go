package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
	"github.com/drblury/protowire/transport"
	"github.com/drblury/protowire/transport/sqllog"
	"github.com/drblury/protowire/transport/transporttest"
)

type collector struct {
	mu   sync.Mutex
	msgs []transport.Message
}

func (c *collector) handle(_ context.Context, msg transport.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) all() []transport.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Message(nil), c.msgs...)
}

func openMemory(t *testing.T) transport.Connection {
	t.Helper()
	conn, err := Build(context.Background(), &transporttest.Config{SQLiteFile: ":memory:"}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "sqlite", caps.Name)
	assert.True(t, caps.SupportsQueueGroups)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "q.db?_journal_mode=WAL&_busy_timeout=5000", DSN("q.db"))
	assert.Equal(t, "q.db?mode=rwc&_journal_mode=WAL&_busy_timeout=5000", DSN("q.db?mode=rwc"))
}

func TestBuildOpenerError(t *testing.T) {
	original := Opener
	defer func() { Opener = original }()

	var gotPath string
	Opener = func(path string) (*sql.DB, error) {
		gotPath = path
		return nil, errors.New("disk full")
	}

	_, err := Build(context.Background(), &transporttest.Config{}, nil)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, DefaultFilePath, gotPath)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	conn := openMemory(t)
	c := &collector{}

	_, err := conn.Subscribe(context.Background(), "orders", "billing", c.handle)
	require.NoError(t, err)

	require.NoError(t, conn.Publish(context.Background(), "orders", metadatapkg.New("correlationId", "C1"), []byte("o-1")))
	require.NoError(t, conn.Publish(context.Background(), "orders", nil, []byte("o-2")))

	require.Eventually(t, func() bool { return c.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	msgs := c.all()
	assert.Equal(t, []byte("o-1"), msgs[0].Data)
	assert.Equal(t, "C1", msgs[0].Headers.Get("correlationId"))
	assert.Equal(t, []byte("o-2"), msgs[1].Data)
	assert.Equal(t, "orders", msgs[1].Topic)
}

func TestNewGroupStartsAtTail(t *testing.T) {
	conn := openMemory(t)
	require.NoError(t, conn.Publish(context.Background(), "orders", nil, []byte("old")))

	c := &collector{}
	_, err := conn.Subscribe(context.Background(), "orders", "late", c.handle)
	require.NoError(t, err)
	require.NoError(t, conn.Publish(context.Background(), "orders", nil, []byte("new")))

	require.Eventually(t, func() bool { return c.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * sqllog.DefaultPollInterval)
	require.Len(t, c.all(), 1)
	assert.Equal(t, []byte("new"), c.all()[0].Data)
}

func TestGroupsFanOutAndMembersCompete(t *testing.T) {
	conn := openMemory(t)
	billingA, billingB, shipping := &collector{}, &collector{}, &collector{}

	for _, sub := range []struct {
		group string
		c     *collector
	}{{"billing", billingA}, {"billing", billingB}, {"shipping", shipping}} {
		_, err := conn.Subscribe(context.Background(), "orders", sub.group, sub.c.handle)
		require.NoError(t, err)
	}

	const total = 20
	for i := 0; i < total; i++ {
		require.NoError(t, conn.Publish(context.Background(), "orders", nil, []byte{byte(i)}))
	}

	require.Eventually(t, func() bool {
		return shipping.len() == total && billingA.len()+billingB.len() == total
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(3 * sqllog.DefaultPollInterval)
	assert.Equal(t, total, billingA.len()+billingB.len())
}

func TestDrainStopsDelivery(t *testing.T) {
	conn := openMemory(t)
	c := &collector{}

	sub, err := conn.Subscribe(context.Background(), "orders", "", c.handle)
	require.NoError(t, err)
	assert.Equal(t, "", sub.QueueGroup())

	require.NoError(t, sub.Drain(time.Second))
	require.NoError(t, conn.Publish(context.Background(), "orders", nil, []byte("late")))

	time.Sleep(3 * sqllog.DefaultPollInterval)
	assert.Zero(t, c.len())
}

func TestClosedConnection(t *testing.T) {
	conn, err := Build(context.Background(), &transporttest.Config{SQLiteFile: ":memory:"}, watermill.NopLogger{})
	require.NoError(t, err)
	_, err = conn.Subscribe(context.Background(), "orders", "g", func(context.Context, transport.Message) {})
	require.NoError(t, err)

	reporter, ok := conn.(transport.StatusReporter)
	require.True(t, ok)
	assert.Equal(t, transport.Status{Connected: true, State: "CONNECTED", URL: TransportName}, reporter.Status())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.False(t, reporter.Status().Connected)

	assert.ErrorIs(t, conn.Publish(context.Background(), "orders", nil, nil), errspkg.ErrConnectionClosed)
	_, err = conn.Subscribe(context.Background(), "orders", "g", func(context.Context, transport.Message) {})
	assert.ErrorIs(t, err, errspkg.ErrConnectionClosed)
	_, err = conn.Subscribe(context.Background(), "", "g", func(context.Context, transport.Message) {})
	assert.Error(t, err)
}
