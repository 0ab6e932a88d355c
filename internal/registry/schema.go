package registry

import (
	"context"
	"fmt"

	"github.com/Zhukowych/tablepp/internal/alerr"
)

// EnsureTables creates the metadata tables if they don't exist.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, stmt := range s.createTablesSQL() {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to create registry tables").
				WithSQL(stmt)
		}
	}
	return nil
}

// createTablesSQL returns the DDL of the metadata tables.
// Timestamps are unix milliseconds so both dialects scan them the same way.
func (s *Store) createTablesSQL() []string {
	tables := s.qi(TablesTable)
	columns := s.qi(ColumnsTable)

	id, boolType, trueLit := "BIGSERIAL PRIMARY KEY", "BOOLEAN", "TRUE"
	if s.dialect.Name() == "sqlite" {
		id, boolType, trueLit = "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER", "1"
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    "id"          %s,
    "name"        VARCHAR(%d) NOT NULL UNIQUE,
    "slug"        VARCHAR(64) NOT NULL UNIQUE,
    "description" VARCHAR(%d) NOT NULL DEFAULT '',
    "options"     TEXT NOT NULL DEFAULT '{}',
    "revision"    BIGINT NOT NULL DEFAULT 1,
    "created_at"  BIGINT NOT NULL
)`, tables, id, MaxNameLength, MaxDescriptionLength),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    "id"             %s,
    "table_id"       BIGINT NOT NULL REFERENCES %s ("id") ON DELETE CASCADE,
    "name"           VARCHAR(%d) NOT NULL,
    "slug"           VARCHAR(64) NOT NULL UNIQUE,
    "dtype"          INTEGER NOT NULL,
    "settings"       TEXT NOT NULL DEFAULT '{}',
    "is_filterable"  %s NOT NULL DEFAULT %s,
    "is_displayable" %s NOT NULL DEFAULT %s,
    "position"       INTEGER NOT NULL DEFAULT 0,
    UNIQUE ("table_id", "name")
)`, columns, id, tables, MaxNameLength, boolType, trueLit, boolType, trueLit),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ("table_id")`,
			s.qi("idx_"+ColumnsTable+"_table_id"), columns),
	}
}
