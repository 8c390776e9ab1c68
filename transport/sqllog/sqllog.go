// Package sqllog implements a transport over an append-only message table in
// a SQL database. Every (topic, group) pair keeps its own read position, so
// each group sees every message while members of one group compete for them.
//
// The sqlite and postgres transports are thin wrappers that open the database
// and pick a Dialect.
package sqllog

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/ids"
	"github.com/drblury/protowire/internal/runtime/jsoncodec"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
	"github.com/drblury/protowire/transport"
)

// DefaultPollInterval is how often an idle subscription checks for new rows.
const DefaultPollInterval = 100 * time.Millisecond

const (
	soloGroupPrefix = "solo-"
	statusTimeout   = time.Second
)

// Dialect carries the SQL that differs between databases.
type Dialect struct {
	Name string
	// Schema is executed statement by statement when the connection opens.
	Schema []string
	// Rebind rewrites '?' placeholders into the driver's syntax.
	Rebind func(query string) string
}

// QuestionPlaceholders leaves queries untouched.
func QuestionPlaceholders(query string) string { return query }

// DollarPlaceholders rewrites '?' into $1, $2, ... as PostgreSQL expects.
func DollarPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Options tune a Connection.
type Options struct {
	PollInterval time.Duration
	Capabilities transport.Capabilities
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Connection is a transport.Connection backed by *sql.DB.
type Connection struct {
	db      *sql.DB
	dialect Dialect
	opts    Options
	logger  watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
	subs   map[*subscription]struct{}
}

// Open creates the schema if needed and returns a connection that owns db.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, opts Options, logger watermill.LoggerAdapter) (*Connection, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if dialect.Rebind == nil {
		dialect.Rebind = QuestionPlaceholders
	}
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, err
		}
	}
	return &Connection{
		db:      db,
		dialect: dialect,
		opts:    opts.withDefaults(),
		logger:  logger,
		subs:    make(map[*subscription]struct{}),
	}, nil
}

func (c *Connection) Capabilities() transport.Capabilities {
	return c.opts.Capabilities
}

func (c *Connection) Publish(ctx context.Context, topic string, headers metadatapkg.Metadata, data []byte) error {
	if c.isClosed() {
		return errspkg.ErrConnectionClosed
	}
	if headers == nil {
		headers = metadatapkg.Metadata{}
	}
	encoded, err := jsoncodec.Marshal(headers)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err = c.db.ExecContext(ctx, c.dialect.Rebind(
		`INSERT INTO protowire_messages (topic, payload, metadata, created_at) VALUES (?, ?, ?, ?)`),
		topic, data, string(encoded), time.Now().UnixMilli())
	return err
}

// Subscribe starts a poller for (topic, queueGroup). A new group starts after
// the newest message already stored; an empty queueGroup gets a private group
// that is removed on Drain.
func (c *Connection) Subscribe(ctx context.Context, topic, queueGroup string, handler transport.Handler) (transport.Subscription, error) {
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if c.isClosed() {
		return nil, errspkg.ErrConnectionClosed
	}

	group := queueGroup
	if group == "" {
		group = soloGroupPrefix + ids.CreateULID()
	}
	if err := c.ensureGroup(ctx, topic, group); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		conn:       c,
		topic:      topic,
		queueGroup: queueGroup,
		group:      group,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	go s.poll(subCtx, handler)
	return s, nil
}

func (c *Connection) ensureGroup(ctx context.Context, topic, group string) error {
	_, err := c.db.ExecContext(ctx, c.dialect.Rebind(
		`INSERT INTO protowire_offsets (topic, grp, position)
		 SELECT ?, ?, COALESCE(MAX(id), 0) FROM protowire_messages WHERE topic = ?
		 ON CONFLICT (topic, grp) DO NOTHING`),
		topic, group, topic)
	return err
}

type storedMessage struct {
	id       int64
	payload  []byte
	metadata string
}

// claim advances the group's position past the next message. The position is
// moved with a compare-and-set so only one member of a group wins a row.
func (c *Connection) claim(ctx context.Context, topic, group string) (*storedMessage, error) {
	var position int64
	err := c.db.QueryRowContext(ctx, c.dialect.Rebind(
		`SELECT position FROM protowire_offsets WHERE topic = ? AND grp = ?`),
		topic, group).Scan(&position)
	if err != nil {
		return nil, err
	}

	var msg storedMessage
	err = c.db.QueryRowContext(ctx, c.dialect.Rebind(
		`SELECT id, payload, metadata FROM protowire_messages WHERE topic = ? AND id > ? ORDER BY id LIMIT 1`),
		topic, position).Scan(&msg.id, &msg.payload, &msg.metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := c.db.ExecContext(ctx, c.dialect.Rebind(
		`UPDATE protowire_offsets SET position = ? WHERE topic = ? AND grp = ? AND position = ?`),
		msg.id, topic, group, position)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	return &msg, nil
}

func (c *Connection) dropGroup(topic, group string) {
	_, err := c.db.Exec(c.dialect.Rebind(
		`DELETE FROM protowire_offsets WHERE topic = ? AND grp = ?`), topic, group)
	if err != nil {
		c.logger.Error("failed to remove subscription group", err, watermill.LogFields{"topic": topic, "group": group})
	}
}

func (c *Connection) forget(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, s)
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops every poller and closes the database.
// Status pings the database.
func (c *Connection) Status() transport.Status {
	if c.isClosed() {
		return transport.Status{State: "CLOSED", URL: c.dialect.Name}
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return transport.Status{State: "UNREACHABLE", URL: c.dialect.Name}
	}
	return transport.Status{Connected: true, State: "CONNECTED", URL: c.dialect.Name}
}

func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for s := range subs {
		s.cancel()
		<-s.done
	}
	return c.db.Close()
}

type subscription struct {
	conn       *Connection
	topic      string
	queueGroup string
	group      string
	cancel     context.CancelFunc
	done       chan struct{}
}

func (s *subscription) Topic() string      { return s.topic }
func (s *subscription) QueueGroup() string { return s.queueGroup }

func (s *subscription) poll(ctx context.Context, handler transport.Handler) {
	defer close(s.done)
	ticker := time.NewTicker(s.conn.opts.PollInterval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			msg, err := s.conn.claim(ctx, s.topic, s.group)
			if err != nil {
				if ctx.Err() == nil {
					s.conn.logger.Error("failed to claim message", err, watermill.LogFields{"topic": s.topic, "group": s.group})
				}
				break
			}
			if msg == nil {
				break
			}
			s.deliver(ctx, handler, msg)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *subscription) deliver(ctx context.Context, handler transport.Handler, msg *storedMessage) {
	headers := metadatapkg.Metadata{}
	if msg.metadata != "" {
		if err := jsoncodec.Unmarshal([]byte(msg.metadata), &headers); err != nil {
			s.conn.logger.Error("failed to decode message metadata", err, watermill.LogFields{"topic": s.topic, "id": msg.id})
		}
	}
	handler(ctx, transport.Message{Topic: s.topic, Headers: headers, Data: msg.payload})
}

// Drain stops polling and waits for the current delivery to return.
func (s *subscription) Drain(timeout time.Duration) error {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(timeout):
		return errspkg.ErrDrainTimeout
	}
	s.conn.forget(s)
	if s.queueGroup == "" && !s.conn.isClosed() {
		s.conn.dropGroup(s.topic, s.group)
	}
	return nil
}
