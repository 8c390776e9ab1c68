package transport

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
)

// SubscriberFactory returns the Watermill subscriber used for a queue group
// ("" when the subscription has none). Backends without queue groups may
// return the same subscriber for every group.
type SubscriberFactory func(queueGroup string) (message.Subscriber, error)

// WatermillConnection adapts a Watermill publisher and per-group subscribers
// to the Connection interface.
type WatermillConnection struct {
	publisher     message.Publisher
	newSubscriber SubscriberFactory
	caps          Capabilities
	logger        watermill.LoggerAdapter

	mu          sync.Mutex
	subscribers map[string]message.Subscriber
	closed      bool
}

// NewWatermillConnection wraps publisher and newSubscriber. Subscribers are
// created on first use per queue group and closed with the connection.
func NewWatermillConnection(publisher message.Publisher, newSubscriber SubscriberFactory, caps Capabilities, logger watermill.LoggerAdapter) *WatermillConnection {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &WatermillConnection{
		publisher:     publisher,
		newSubscriber: newSubscriber,
		caps:          caps,
		logger:        logger,
		subscribers:   make(map[string]message.Subscriber),
	}
}

func (c *WatermillConnection) Capabilities() Capabilities {
	return c.caps
}

func (c *WatermillConnection) Publish(ctx context.Context, topic string, headers metadatapkg.Metadata, data []byte) error {
	if c.isClosed() {
		return errspkg.ErrConnectionClosed
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata = metadatapkg.ToWatermill(headers)
	msg.SetContext(ctx)
	return c.publisher.Publish(topic, msg)
}

func (c *WatermillConnection) Subscribe(ctx context.Context, topic, queueGroup string, handler Handler) (Subscription, error) {
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	sub, err := c.subscriberFor(queueGroup)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := sub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &watermillSubscription{
		topic:      topic,
		queueGroup: queueGroup,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go s.run(subCtx, messages, handler)
	return s, nil
}

func (c *WatermillConnection) subscriberFor(queueGroup string) (message.Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errspkg.ErrConnectionClosed
	}
	if sub, ok := c.subscribers[queueGroup]; ok {
		return sub, nil
	}
	sub, err := c.newSubscriber(queueGroup)
	if err != nil {
		return nil, err
	}
	c.subscribers[queueGroup] = sub
	return sub, nil
}

func (c *WatermillConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Status reports OPEN until Close is called. Watermill publishers expose no
// liveness of their own.
func (c *WatermillConnection) Status() Status {
	if c.isClosed() {
		return Status{State: "CLOSED"}
	}
	return Status{Connected: true, State: "OPEN"}
}

// Close closes every subscriber and the publisher. Instances shared between
// groups, or between publisher and subscriber, are closed once.
func (c *WatermillConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subscribers := c.subscribers
	c.subscribers = nil
	c.mu.Unlock()

	var firstErr error
	closed := make(map[any]struct{})
	closeOnce := func(v any, closer func() error) {
		if _, ok := closed[v]; ok {
			return
		}
		closed[v] = struct{}{}
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, sub := range subscribers {
		closeOnce(sub, sub.Close)
	}
	if c.publisher != nil {
		closeOnce(c.publisher, c.publisher.Close)
	}
	return firstErr
}

type watermillSubscription struct {
	topic      string
	queueGroup string
	cancel     context.CancelFunc
	done       chan struct{}
}

func (s *watermillSubscription) Topic() string      { return s.topic }
func (s *watermillSubscription) QueueGroup() string { return s.queueGroup }

func (s *watermillSubscription) run(ctx context.Context, messages <-chan *message.Message, handler Handler) {
	defer close(s.done)
	for msg := range messages {
		handler(ctx, Message{
			Topic:   s.topic,
			Headers: metadatapkg.FromWatermill(msg.Metadata),
			Data:    msg.Payload,
		})
		msg.Ack()
	}
}

// Drain cancels the subscription and waits for the delivery loop to finish.
func (s *watermillSubscription) Drain(timeout time.Duration) error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return errspkg.ErrDrainTimeout
	}
}
