// Package postgres provides a PostgreSQL-backed transport for protowire.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/drblury/protowire/transport"
	"github.com/drblury/protowire/transport/sqllog"
)

// TransportName is the name used to register this transport.
const TransportName = "postgres"

const (
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 5
)

// Dialect is the PostgreSQL flavour of the message log schema.
var Dialect = sqllog.Dialect{
	Name: TransportName,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS protowire_messages (
			id BIGSERIAL PRIMARY KEY,
			topic TEXT NOT NULL,
			payload BYTEA NOT NULL,
			metadata TEXT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_protowire_messages_topic ON protowire_messages(topic, id)`,
		`CREATE TABLE IF NOT EXISTS protowire_offsets (
			topic TEXT NOT NULL,
			grp TEXT NOT NULL,
			position BIGINT NOT NULL,
			PRIMARY KEY (topic, grp)
		)`,
	},
	Rebind: sqllog.DollarPlaceholders,
}

// Opener allows overriding how the database is opened for testing.
var Opener = func(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

func init() {
	Register()
}

// Register registers the PostgreSQL transport under "postgres" and the
// "postgresql" alias.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.PostgresCapabilities)
	transport.RegisterWithCapabilities("postgresql", Build, transport.PostgresCapabilities)
}

// Build connects to the configured database and creates the schema.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Connection, error) {
	db, err := Opener(cfg.GetPostgresURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	conn, err := sqllog.Open(ctx, db, Dialect, sqllog.Options{Capabilities: transport.PostgresCapabilities}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return conn, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.PostgresCapabilities
}
