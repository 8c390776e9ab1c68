// Package transporttest provides helpers for testing transports and code
// built on transport.Connection.
package transporttest

import (
	"context"
	"sync"
	"time"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
	"github.com/drblury/protowire/transport"
)

// Config is a field-backed transport.Config.
type Config struct {
	PubSubSystem       string
	NATSURL            string
	NATSCredsFile      string
	NATSCAFile         string
	NATSDevMode        bool
	NATSConnectTimeout time.Duration
	NATSClientName     string
	KafkaBrokers       []string
	RabbitMQURL        string
	HTTPServerAddress  string
	HTTPPublisherURL   string
	SQLiteFile         string
	PostgresURL        string
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
}

func (c *Config) GetPubSubSystem() string              { return c.PubSubSystem }
func (c *Config) GetNATSURL() string                   { return c.NATSURL }
func (c *Config) GetNATSCredsFile() string             { return c.NATSCredsFile }
func (c *Config) GetNATSCAFile() string                { return c.NATSCAFile }
func (c *Config) GetNATSDevMode() bool                 { return c.NATSDevMode }
func (c *Config) GetNATSConnectTimeout() time.Duration { return c.NATSConnectTimeout }
func (c *Config) GetNATSClientName() string            { return c.NATSClientName }
func (c *Config) GetKafkaBrokers() []string            { return c.KafkaBrokers }
func (c *Config) GetRabbitMQURL() string               { return c.RabbitMQURL }
func (c *Config) GetHTTPServerAddress() string         { return c.HTTPServerAddress }
func (c *Config) GetHTTPPublisherURL() string          { return c.HTTPPublisherURL }
func (c *Config) GetSQLiteFile() string                { return c.SQLiteFile }
func (c *Config) GetPostgresURL() string               { return c.PostgresURL }
func (c *Config) GetAWSRegion() string                 { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string              { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string            { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string        { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string               { return c.AWSEndpoint }

// Published is a message recorded by Connection.Publish.
type Published struct {
	Topic   string
	Headers metadatapkg.Metadata
	Data    []byte
}

// Connection is an in-memory transport.Connection. Publish records the
// message and delivers it synchronously to every subscription on the topic.
// Deliver injects a message as if it came from a peer.
type Connection struct {
	mu            sync.Mutex
	published     []Published
	subscriptions []*Subscription
	closed        bool

	// PublishErr, when set, is returned by Publish instead of delivering.
	PublishErr error
	// SubscribeErr, when set, is returned by Subscribe.
	SubscribeErr error
	// DrainErr, when set, is returned by every subscription's Drain.
	DrainErr error
	// State is reported through Status.
	State transport.Status
}

// NewConnection returns an empty in-memory connection.
func NewConnection() *Connection {
	return &Connection{State: transport.Status{Connected: true, State: "CONNECTED", URL: "memory://", ServerID: "memory"}}
}

func (c *Connection) Publish(ctx context.Context, topic string, headers metadatapkg.Metadata, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errspkg.ErrConnectionClosed
	}
	if c.PublishErr != nil {
		err := c.PublishErr
		c.mu.Unlock()
		return err
	}
	c.published = append(c.published, Published{Topic: topic, Headers: headers.Clone(), Data: append([]byte(nil), data...)})
	c.mu.Unlock()

	c.Deliver(transport.Message{Topic: topic, Headers: headers, Data: data})
	return nil
}

func (c *Connection) Subscribe(ctx context.Context, topic, queueGroup string, handler transport.Handler) (transport.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{topic: topic, queueGroup: queueGroup, handler: handler, ctx: subCtx, cancel: cancel, conn: c}
	c.subscriptions = append(c.subscriptions, s)
	return s, nil
}

// Deliver hands msg to every active subscription on msg.Topic.
func (c *Connection) Deliver(msg transport.Message) {
	c.mu.Lock()
	var targets []*Subscription
	for _, s := range c.subscriptions {
		if s.topic == msg.Topic && !s.drained {
			targets = append(targets, s)
		}
	}
	c.mu.Unlock()

	for _, s := range targets {
		s.handler(s.ctx, msg)
	}
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Connection) Status() transport.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.State
}

// Published returns a copy of every message published so far.
func (c *Connection) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// PublishedTo returns the messages published to topic.
func (c *Connection) PublishedTo(topic string) []Published {
	var out []Published
	for _, p := range c.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// Subscriptions returns every subscription created so far.
func (c *Connection) Subscriptions() []*Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Subscription(nil), c.subscriptions...)
}

// Subscription is the handle returned by Connection.Subscribe.
type Subscription struct {
	topic      string
	queueGroup string
	handler    transport.Handler
	ctx        context.Context
	cancel     context.CancelFunc
	conn       *Connection
	drained    bool
}

func (s *Subscription) Topic() string      { return s.topic }
func (s *Subscription) QueueGroup() string { return s.queueGroup }

func (s *Subscription) Drain(timeout time.Duration) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.drained = true
	s.cancel()
	return s.conn.DrainErr
}

// Drained reports whether Drain was called.
func (s *Subscription) Drained() bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.drained
}
