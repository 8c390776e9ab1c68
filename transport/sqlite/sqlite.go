// Package sqlite provides a SQLite-backed transport for protowire. Messages
// are appended to a table and polled per queue group, which makes it useful
// for single-host deployments and local development without a broker.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/protowire/transport"
	"github.com/drblury/protowire/transport/sqllog"
)

// TransportName is the name used to register this transport.
const TransportName = "sqlite"

// DefaultFilePath is used when the config does not name a database file.
const DefaultFilePath = "protowire_queue.db"

// Dialect is the SQLite flavour of the message log schema.
var Dialect = sqllog.Dialect{
	Name: TransportName,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS protowire_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic TEXT NOT NULL,
			payload BLOB NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_protowire_messages_topic ON protowire_messages(topic, id)`,
		`CREATE TABLE IF NOT EXISTS protowire_offsets (
			topic TEXT NOT NULL,
			grp TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (topic, grp)
		)`,
	},
	Rebind: sqllog.QuestionPlaceholders,
}

// Opener allows overriding how the database is opened for testing.
var Opener = func(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", DSN(path))
}

func init() {
	Register()
}

// Register registers the SQLite transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SQLiteCapabilities)
}

// Build opens the configured database file and creates the schema.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Connection, error) {
	path := cfg.GetSQLiteFile()
	if path == "" {
		path = DefaultFilePath
	}

	db, err := Opener(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := sqllog.Open(ctx, db, Dialect, sqllog.Options{Capabilities: transport.SQLiteCapabilities}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return conn, nil
}

// DSN appends the WAL and busy-timeout pragmas to path.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.SQLiteCapabilities
}
