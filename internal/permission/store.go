package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/dialect"
)

// Table names.
const (
	PermissionsTable  = "tablepp_permissions"
	GroupMembersTable = "tablepp_group_members"
)

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore keeps rules and group membership in SQL tables.
type SQLStore struct {
	q       Queryer
	dialect dialect.Dialect
}

// NewSQLStore creates a SQLStore over q.
func NewSQLStore(q Queryer, d dialect.Dialect) *SQLStore {
	return &SQLStore{q: q, dialect: d}
}

// WithQueryer returns a copy of the store bound to q.
func (s *SQLStore) WithQueryer(q Queryer) *SQLStore {
	return &SQLStore{q: q, dialect: s.dialect}
}

func (s *SQLStore) ph(n int) string      { return s.dialect.Placeholder(n) }
func (s *SQLStore) qi(name string) string { return s.dialect.QuoteIdent(name) }

// EnsureTables creates the permission tables if they don't exist.
func (s *SQLStore) EnsureTables(ctx context.Context) error {
	id := "BIGSERIAL PRIMARY KEY"
	if s.dialect.Name() == "sqlite" {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    "id"           %s,
    "subject_kind" VARCHAR(16) NOT NULL,
    "subject_id"   BIGINT NOT NULL,
    "target_kind"  VARCHAR(16) NOT NULL,
    "target_id"    BIGINT NOT NULL,
    "operation"    INTEGER NOT NULL,
    "decision"     INTEGER NOT NULL,
    UNIQUE ("subject_kind", "subject_id", "target_kind", "target_id", "operation")
)`, s.qi(PermissionsTable), id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    "group_id" BIGINT NOT NULL,
    "user_id"  BIGINT NOT NULL,
    PRIMARY KEY ("group_id", "user_id")
)`, s.qi(GroupMembersTable)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ("target_kind", "target_id")`,
			s.qi("idx_"+PermissionsTable+"_target"), s.qi(PermissionsTable)),
	}
	for _, stmt := range stmts {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to create permission tables").
				WithSQL(stmt)
		}
	}
	return nil
}

// Grant stores r, replacing any rule for the same subject, target and
// operation.
func (s *SQLStore) Grant(ctx context.Context, r Rule) (*Rule, error) {
	if r.SubjectKind != SubjectUser && r.SubjectKind != SubjectGroup {
		return nil, alerr.New(alerr.ErrValidation, "subject must be a user or a group").
			With("subject", string(r.SubjectKind))
	}
	if r.Target.Kind != TargetTable && r.Target.Kind != TargetColumn {
		return nil, alerr.New(alerr.ErrValidation, "permissions apply to tables or columns only").
			With("target", r.Target.String())
	}
	if err := s.Revoke(ctx, r.SubjectKind, r.SubjectID, r.Target, r.Operation); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s ("subject_kind", "subject_id", "target_kind", "target_id", "operation", "decision") VALUES (%s, %s, %s, %s, %s, %s) RETURNING "id"`,
		s.qi(PermissionsTable), s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6),
	)
	err := s.q.QueryRowContext(ctx, query,
		string(r.SubjectKind), r.SubjectID, string(r.Target.Kind), r.Target.ID, int(r.Operation), int(r.Decision),
	).Scan(&r.ID)
	if err != nil {
		return nil, alerr.WrapSQL(err, "grant permission", "").WithSQL(query)
	}
	return &r, nil
}

// Revoke removes the rule of a subject for target and op, if any.
func (s *SQLStore) Revoke(ctx context.Context, kind SubjectKind, subjectID int64, target Target, op Operation) error {
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE "subject_kind" = %s AND "subject_id" = %s AND "target_kind" = %s AND "target_id" = %s AND "operation" = %s`,
		s.qi(PermissionsTable), s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5),
	)
	if _, err := s.q.ExecContext(ctx, query, string(kind), subjectID, string(target.Kind), target.ID, int(op)); err != nil {
		return alerr.WrapSQL(err, "revoke permission", "").WithSQL(query)
	}
	return nil
}

// DeleteForTargets removes every rule referencing one of targets. Table
// deletion uses it to cascade to the table's and its columns' rules.
func (s *SQLStore) DeleteForTargets(ctx context.Context, targets ...Target) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE "target_kind" = %s AND "target_id" = %s`,
		s.qi(PermissionsTable), s.ph(1), s.ph(2))
	for _, t := range targets {
		if _, err := s.q.ExecContext(ctx, query, string(t.Kind), t.ID); err != nil {
			return alerr.WrapSQL(err, "delete permissions", "").WithSQL(query).With("target", t.String())
		}
	}
	return nil
}

// Rules returns every rule for target, ordered by id.
func (s *SQLStore) Rules(ctx context.Context, target Target) ([]Rule, error) {
	query := fmt.Sprintf(
		`SELECT "id", "subject_kind", "subject_id", "operation", "decision" FROM %s WHERE "target_kind" = %s AND "target_id" = %s ORDER BY "id"`,
		s.qi(PermissionsTable), s.ph(1), s.ph(2),
	)
	rows, err := s.q.QueryContext(ctx, query, string(target.Kind), target.ID)
	if err != nil {
		return nil, alerr.WrapSQL(err, "list permissions", "").WithSQL(query)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		r := Rule{Target: target}
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.SubjectID, &r.Operation, &r.Decision); err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "failed to scan permission row")
		}
		r.SubjectKind = SubjectKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "error iterating permission rows")
	}
	return out, nil
}

// UserDecision implements Store.
func (s *SQLStore) UserDecision(ctx context.Context, userID int64, target Target, op Operation) (Decision, bool, error) {
	query := fmt.Sprintf(
		`SELECT "decision" FROM %s WHERE "subject_kind" = %s AND "subject_id" = %s AND "target_kind" = %s AND "target_id" = %s AND "operation" = %s`,
		s.qi(PermissionsTable), s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5),
	)
	var d Decision
	err := s.q.QueryRowContext(ctx, query, string(SubjectUser), userID, string(target.Kind), target.ID, int(op)).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, alerr.WrapSQL(err, "load permission", "").WithSQL(query)
	}
	return d, true, nil
}

// GroupDecisions implements Store.
func (s *SQLStore) GroupDecisions(ctx context.Context, groupIDs []int64, target Target, op Operation) ([]Decision, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	args := []any{string(SubjectGroup), string(target.Kind), target.ID, int(op)}
	marks := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		args = append(args, id)
		marks[i] = s.ph(len(args))
	}
	query := fmt.Sprintf(
		`SELECT "decision" FROM %s WHERE "subject_kind" = %s AND "target_kind" = %s AND "target_id" = %s AND "operation" = %s AND "subject_id" IN (%s) ORDER BY "subject_id"`,
		s.qi(PermissionsTable), s.ph(1), s.ph(2), s.ph(3), s.ph(4), strings.Join(marks, ", "),
	)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, alerr.WrapSQL(err, "load group permissions", "").WithSQL(query)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d); err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "failed to scan permission row")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "error iterating permission rows")
	}
	return out, nil
}

// AddMember puts a user into a group.
func (s *SQLStore) AddMember(ctx context.Context, groupID, userID int64) error {
	if err := s.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s ("group_id", "user_id") VALUES (%s, %s)`,
		s.qi(GroupMembersTable), s.ph(1), s.ph(2))
	if _, err := s.q.ExecContext(ctx, query, groupID, userID); err != nil {
		return alerr.WrapSQL(err, "add group member", "").WithSQL(query)
	}
	return nil
}

// RemoveMember takes a user out of a group.
func (s *SQLStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE "group_id" = %s AND "user_id" = %s`,
		s.qi(GroupMembersTable), s.ph(1), s.ph(2))
	if _, err := s.q.ExecContext(ctx, query, groupID, userID); err != nil {
		return alerr.WrapSQL(err, "remove group member", "").WithSQL(query)
	}
	return nil
}

// UserGroups implements Store.
func (s *SQLStore) UserGroups(ctx context.Context, userID int64) ([]int64, error) {
	query := fmt.Sprintf(`SELECT "group_id" FROM %s WHERE "user_id" = %s ORDER BY "group_id"`,
		s.qi(GroupMembersTable), s.ph(1))
	rows, err := s.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, alerr.WrapSQL(err, "load user groups", "").WithSQL(query)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "failed to scan group row")
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "error iterating group rows")
	}
	return out, nil
}
