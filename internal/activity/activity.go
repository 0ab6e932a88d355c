// Package activity records who changed which record. Entries are append
// only and logging never fails the operation that produced them.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/dialect"
)

// ActivityTable stores the entries written by SQLSink.
const ActivityTable = "tablepp_activity"

// Field limits, matching the storage columns.
const (
	MaxMessageLength     = 256
	MaxDescriptionLength = 512
)

// Entry is one logged action.
type Entry struct {
	ID          string
	UserID      int64
	Table       string // physical table slug
	RecordID    int64
	Message     string
	Description string
	At          time.Time
}

// Sink persists entries.
type Sink interface {
	Log(ctx context.Context, e Entry) error
}

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLSink writes entries to ActivityTable.
type SQLSink struct {
	q       Queryer
	dialect dialect.Dialect
}

// NewSQLSink creates a sink over q.
func NewSQLSink(q Queryer, d dialect.Dialect) *SQLSink {
	return &SQLSink{q: q, dialect: d}
}

// EnsureTables creates the activity table if it doesn't exist.
func (s *SQLSink) EnsureTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    "id"          VARCHAR(36) PRIMARY KEY,
    "user_id"     BIGINT,
    "table_slug"  VARCHAR(64) NOT NULL,
    "record_id"   BIGINT NOT NULL,
    "message"     VARCHAR(%d) NOT NULL,
    "description" VARCHAR(%d) NOT NULL,
    "created_at"  BIGINT NOT NULL
)`, s.dialect.QuoteIdent(ActivityTable), MaxMessageLength, MaxDescriptionLength),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ("table_slug", "record_id")`,
			s.dialect.QuoteIdent("idx_"+ActivityTable+"_record"), s.dialect.QuoteIdent(ActivityTable)),
	}
	for _, stmt := range stmts {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to create activity table").WithSQL(stmt)
		}
	}
	return nil
}

// Log inserts e, filling in a missing id, timestamp or description.
func (s *SQLSink) Log(ctx context.Context, e Entry) error {
	e = normalize(e)
	ph := s.dialect.Placeholder
	query := fmt.Sprintf(
		`INSERT INTO %s ("id", "user_id", "table_slug", "record_id", "message", "description", "created_at") VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		s.dialect.QuoteIdent(ActivityTable), ph(1), ph(2), ph(3), ph(4), ph(5), ph(6), ph(7))

	var user any
	if e.UserID != 0 {
		user = e.UserID
	}
	_, err := s.q.ExecContext(ctx, query,
		e.ID, user, e.Table, e.RecordID, e.Message, e.Description, e.At.UnixMilli())
	if err != nil {
		return alerr.WrapSQL(err, "insert", ActivityTable)
	}
	return nil
}

// Entries returns the entries of one record, oldest first.
func (s *SQLSink) Entries(ctx context.Context, table string, recordID int64) ([]Entry, error) {
	ph := s.dialect.Placeholder
	query := fmt.Sprintf(
		`SELECT "id", "user_id", "table_slug", "record_id", "message", "description", "created_at" FROM %s WHERE "table_slug" = %s AND "record_id" = %s ORDER BY "created_at", "id"`,
		s.dialect.QuoteIdent(ActivityTable), ph(1), ph(2))

	rows, err := s.q.QueryContext(ctx, query, table, recordID)
	if err != nil {
		return nil, alerr.WrapSQL(err, "select", ActivityTable)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			user sql.NullInt64
			at   int64
		)
		if err := rows.Scan(&e.ID, &user, &e.Table, &e.RecordID, &e.Message, &e.Description, &at); err != nil {
			return nil, alerr.WrapSQL(err, "scan", ActivityTable)
		}
		e.UserID = user.Int64
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func normalize(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Description == "" {
		e.Description = e.Message
	}
	e.Message = truncate(e.Message, MaxMessageLength)
	e.Description = truncate(e.Description, MaxDescriptionLength)
	return e
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// -----------------------------------------------------------------------------
// Recorder
// -----------------------------------------------------------------------------

// Recorder forwards entries to a sink. Sink errors are logged and dropped.
// A nil Recorder or one without a sink does nothing.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder creates a recorder writing to sink. A nil logger discards.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{sink: sink, logger: logger}
}

// Record logs one entry.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.Log(ctx, e); err != nil {
		r.logger.Warn("activity not recorded",
			"table", e.Table,
			"record", e.RecordID,
			"message", e.Message,
			"error", err)
	}
}

// Discard is a sink that drops every entry.
type Discard struct{}

// Log does nothing.
func (Discard) Log(context.Context, Entry) error { return nil }
