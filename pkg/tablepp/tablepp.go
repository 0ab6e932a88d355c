// Package tablepp provides the public API of the tablepp schema engine: user
// defined tables and typed columns kept in a metadata registry, physical
// tables synchronized from it, and permission-checked record access.
package tablepp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Zhukowych/tablepp/internal/activity"
	"github.com/Zhukowych/tablepp/internal/dialect"
	"github.com/Zhukowych/tablepp/internal/drift"
	"github.com/Zhukowych/tablepp/internal/engine"
	"github.com/Zhukowych/tablepp/internal/introspect"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/record"
	"github.com/Zhukowych/tablepp/internal/registry"
)

// Client is the main entry point of tablepp.
//
// Create a new client with New() and close it with Close() when done.
//
// Example:
//
//	client, err := tablepp.New(
//	    tablepp.WithDatabaseURL("postgres://localhost/crm"),
//	    tablepp.WithAutoMigrate(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	contacts, err := client.CreateTable(ctx, "Contacts", "", nil)
type Client struct {
	db      *sql.DB
	ownsDB  bool
	dialect dialect.Dialect
	config  *Config
	logger  *slog.Logger

	registry *registry.Store
	perms    *permission.SQLStore
	checker  *permission.Evaluator
	history  *activity.SQLSink
	arena    *model.Arena
	sync     *engine.Synchronizer
	detector *drift.Detector
	records  *record.Service

	// schemaMu serializes registry mutations with their synchronization.
	schemaMu sync.Mutex
}

// New creates a new Client with the given options.
//
// At minimum, WithDatabaseURL or WithDB must be provided.
// The dialect will be auto-detected from the URL if not explicitly set.
// New creates the metadata tables when missing and loads the models.
func New(opts ...Option) (*Client, error) {
	cfg := &Config{
		Timeout:     30 * time.Second,
		GroupPolicy: permission.RejectWins,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.DB == nil && cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.Dialect == "" {
		cfg.Dialect = detectDialect(cfg.DatabaseURL)
	}
	d := dialect.Get(cfg.Dialect)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, cfg.Dialect)
	}

	db, owns := cfg.DB, false
	if db == nil {
		var err error
		db, err = openDatabase(cfg.DatabaseURL, cfg.Dialect)
		if err != nil {
			return nil, &ConnectionError{
				URL:     redactURL(cfg.DatabaseURL),
				Dialect: cfg.Dialect,
				Cause:   err,
			}
		}
		owns = true

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	c, err := newClient(ctx, db, d, cfg, logger)
	if err != nil {
		if owns {
			db.Close()
		}
		return nil, err
	}
	c.ownsDB = owns
	return c, nil
}

func newClient(ctx context.Context, db *sql.DB, d dialect.Dialect, cfg *Config, logger *slog.Logger) (*Client, error) {
	connErr := func(err error) error {
		return &ConnectionError{URL: redactURL(cfg.DatabaseURL), Dialect: cfg.Dialect, Cause: err}
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, connErr(err)
	}

	// Set timezone to UTC for PostgreSQL
	if d.Name() == "postgres" {
		if _, err := db.ExecContext(ctx, "SET timezone = 'UTC'"); err != nil {
			return nil, connErr(fmt.Errorf("failed to set UTC timezone: %w", err))
		}
	}

	inspector, err := introspect.New(d)
	if err != nil {
		return nil, err
	}

	c := &Client{
		db:       db,
		dialect:  d,
		config:   cfg,
		logger:   logger,
		registry: registry.New(db, d),
		perms:    permission.NewSQLStore(db, d),
		arena:    model.NewArena(),
		sync:     engine.New(d, inspector, engine.WithLogger(logger)),
		detector: drift.NewDetector(inspector),
	}
	c.checker = permission.NewEvaluator(c.perms,
		permission.WithGroupPolicy(cfg.GroupPolicy),
		permission.WithLogger(logger))

	if err := c.registry.EnsureTables(ctx); err != nil {
		return nil, err
	}
	if err := c.perms.EnsureTables(ctx); err != nil {
		return nil, err
	}

	sink := cfg.ActivitySink
	if sink == nil {
		c.history = activity.NewSQLSink(db, d)
		if err := c.history.EnsureTables(ctx); err != nil {
			return nil, err
		}
		sink = c.history
	}

	c.records = record.NewService(db, d, c.arena, c.checker,
		record.WithRecorder(activity.NewRecorder(sink, logger)),
		record.WithLogger(logger))

	if cfg.AutoMigrate {
		if _, err := c.Migrate(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes the database connection and releases resources.
// A database passed with WithDB is left open.
func (c *Client) Close() error {
	if c.db != nil && c.ownsDB {
		return c.db.Close()
	}
	return nil
}

// DB returns the underlying database connection.
// Use with caution - prefer the high-level methods when possible.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Dialect returns the database dialect name.
func (c *Client) Dialect() string {
	return c.dialect.Name()
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return *c.config
}

// Reload rebuilds the in-memory models from the registry. Call it after
// another process changed the schema.
func (c *Client) Reload(ctx context.Context) error {
	if err := c.arena.Load(ctx, c.builder(c.registry)); err != nil {
		return err
	}
	c.logger.Debug("models reloaded", "version", c.arena.Version())
	return nil
}

// builder returns a model builder over src that logs through the client
// logger.
func (c *Client) builder(src model.Source) *model.Builder {
	return model.NewBuilder(src, model.WithLogger(c.logger))
}

// detectDialect auto-detects the database dialect from the connection URL.
//
// Detection rules:
//   - postgres:// or postgresql:// -> postgres
//   - sqlite:// or file: or path ending with .db/.sqlite/.sqlite3 -> sqlite
func detectDialect(url string) string {
	url = strings.ToLower(url)

	switch {
	case strings.HasPrefix(url, "postgres://"),
		strings.HasPrefix(url, "postgresql://"):
		return "postgres"

	case strings.HasPrefix(url, "sqlite://"),
		strings.HasPrefix(url, "sqlite3://"),
		strings.HasPrefix(url, "file:"):
		return "sqlite"

	case strings.HasSuffix(url, ".db"),
		strings.HasSuffix(url, ".sqlite"),
		strings.HasSuffix(url, ".sqlite3"):
		return "sqlite"
	}

	// Default to postgres if no match
	return "postgres"
}

// openDatabase opens a database connection based on the dialect.
func openDatabase(url, dialectName string) (*sql.DB, error) {
	var driverName string
	var dsn string

	switch dialectName {
	case "postgres":
		driverName = "postgres"
		dsn = url

	case "sqlite":
		driverName = "sqlite"
		dsn = sqliteDSN(url)

	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialectName)
	}

	return sql.Open(driverName, dsn)
}

// sqliteDSN converts a sqlite:// URL or a plain path to a DSN that enables
// foreign keys and a busy timeout on every pooled connection. Pragmas
// already present are kept.
func sqliteDSN(url string) string {
	path := strings.TrimPrefix(url, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite3://")
	path = strings.TrimPrefix(path, "file:")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := "file:" + path
	for _, pragma := range []string{"foreign_keys(1)", "busy_timeout(5000)"} {
		name := pragma[:strings.Index(pragma, "(")]
		if strings.Contains(path, "_pragma="+name) {
			continue
		}
		dsn += sep + "_pragma=" + pragma
		sep = "&"
	}
	return dsn
}

// redactURL removes sensitive information from a database URL for logging.
func redactURL(url string) string {
	// Pattern: ://user:password@ or ://password@
	start := strings.Index(url, "://")
	if start == -1 {
		return url
	}
	start += 3

	end := strings.Index(url[start:], "@")
	if end == -1 {
		return url
	}
	end += start

	credentials := url[start:end]
	if colonIdx := strings.Index(credentials, ":"); colonIdx != -1 {
		user := credentials[:colonIdx]
		return url[:start] + user + ":***@" + url[end+1:]
	}

	return url
}
