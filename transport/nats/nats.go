// Package nats provides a NATS Core transport for protowire built directly on
// nats.go, so queue groups, drain and connection status map one to one onto
// the server's own semantics.
package nats

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/nats-io/nats.go"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
	"github.com/drblury/protowire/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// DefaultConnectTimeout is used when the config does not set one.
const DefaultConnectTimeout = 5 * time.Second

const drainPollInterval = 10 * time.Millisecond

// conn is the subset of *nats.Conn the transport uses.
type conn interface {
	PublishMsg(msg *nats.Msg) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Status() nats.Status
	ConnectedUrl() string
	ConnectedServerId() string
	Close()
}

// subscription is the subset of *nats.Subscription the transport uses.
type subscription interface {
	Drain() error
	IsValid() bool
	Unsubscribe() error
}

// Dialer opens the NATS connection. Tests replace it.
var Dialer = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

// subscribeFunc lets tests bypass the *nats.Subscription return type.
type subscribeFunc func(c conn, subject, queue string, cb nats.MsgHandler) (subscription, error)

func defaultSubscribe(c conn, subject, queue string, cb nats.MsgHandler) (subscription, error) {
	if queue == "" {
		return c.Subscribe(subject, cb)
	}
	return c.QueueSubscribe(subject, queue, cb)
}

// Register registers the NATS transport with the default registry.
// This should be called from an init() function in an importing package,
// or explicitly before using the transport.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build dials NATS using the URL, credentials and TLS settings from cfg.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Connection, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	nc, err := Dialer(cfg.GetNATSURL(), Options(cfg, logger)...)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to NATS", watermill.LogFields{
		"url":       nc.ConnectedUrl(),
		"server_id": nc.ConnectedServerId(),
	})
	return newConnection(nc, defaultSubscribe, logger), nil
}

// Options translates cfg into nats.go connect options. In dev mode the
// credentials file and CA are ignored.
func Options(cfg transport.Config, logger watermill.LoggerAdapter) []nats.Option {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	timeout := cfg.GetNATSConnectTimeout()
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	opts := []nats.Option{
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
	if name := cfg.GetNATSClientName(); name != "" {
		opts = append(opts, nats.Name(name))
	}
	if cfg.GetNATSDevMode() {
		return opts
	}
	if creds := cfg.GetNATSCredsFile(); creds != "" {
		opts = append(opts, nats.UserCredentials(creds))
	}
	if ca := cfg.GetNATSCAFile(); ca != "" {
		opts = append(opts, nats.RootCAs(ca))
	}
	return opts
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// Connection is a transport.Connection over a single NATS connection.
type Connection struct {
	nc        conn
	subscribe subscribeFunc
	logger    watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

func newConnection(nc conn, subscribe subscribeFunc, logger watermill.LoggerAdapter) *Connection {
	return &Connection{nc: nc, subscribe: subscribe, logger: logger}
}

func (c *Connection) Publish(ctx context.Context, topic string, headers metadatapkg.Metadata, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return errspkg.ErrConnectionClosed
	}
	return c.nc.PublishMsg(&nats.Msg{
		Subject: topic,
		Header:  metadatapkg.ToNATS(headers),
		Data:    data,
	})
}

// Subscribe uses a queue subscription when queueGroup is set.
func (c *Connection) Subscribe(ctx context.Context, topic, queueGroup string, handler transport.Handler) (transport.Subscription, error) {
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if c.isClosed() {
		return nil, errspkg.ErrConnectionClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := c.subscribe(c.nc, topic, queueGroup, func(msg *nats.Msg) {
		handler(subCtx, transport.Message{
			Topic:   msg.Subject,
			Headers: metadatapkg.FromNATS(msg.Header),
			Data:    msg.Data,
		})
	})
	if err != nil {
		cancel()
		return nil, err
	}
	c.logger.Debug("subscribed", watermill.LogFields{"topic": topic, "queue_group": queueGroup})
	return &natsSubscription{topic: topic, queueGroup: queueGroup, sub: sub, cancel: cancel}, nil
}

// Status reports the state of the underlying connection.
func (c *Connection) Status() transport.Status {
	state := c.nc.Status()
	return transport.Status{
		Connected: state == nats.CONNECTED,
		State:     state.String(),
		URL:       c.nc.ConnectedUrl(),
		ServerID:  c.nc.ConnectedServerId(),
	}
}

func (c *Connection) Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.nc.Close()
	return nil
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type natsSubscription struct {
	topic      string
	queueGroup string
	sub        subscription
	cancel     context.CancelFunc
}

func (s *natsSubscription) Topic() string      { return s.topic }
func (s *natsSubscription) QueueGroup() string { return s.queueGroup }

// Drain asks the server to stop delivery, lets pending callbacks finish and
// falls back to Unsubscribe when that takes longer than timeout.
func (s *natsSubscription) Drain(timeout time.Duration) error {
	defer s.cancel()
	if err := s.sub.Drain(); err != nil {
		_ = s.sub.Unsubscribe()
		return err
	}
	deadline := time.Now().Add(timeout)
	for s.sub.IsValid() {
		if time.Now().After(deadline) {
			_ = s.sub.Unsubscribe()
			return errspkg.ErrDrainTimeout
		}
		time.Sleep(drainPollInterval)
	}
	return nil
}
