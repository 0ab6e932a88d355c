package tablepp

import (
	"context"
	"database/sql"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/permission"
)

// Subject kinds of a Rule.
const (
	SubjectUser  = permission.SubjectUser
	SubjectGroup = permission.SubjectGroup
)

// Allows reports whether u may perform op on target.
func (c *Client) Allows(ctx context.Context, u User, target Target, op Operation) (bool, error) {
	return c.checker.Allows(ctx, u, target, op)
}

// Grant stores an explicit decision, replacing any earlier one for the same
// subject, target and operation.
func (c *Client) Grant(ctx context.Context, r Rule) (*Rule, error) {
	var out *Rule
	err := c.inTx(ctx, func(perms *permission.SQLStore) error {
		var err error
		out, err = perms.Grant(ctx, r)
		return err
	})
	return out, err
}

// Revoke removes the decision of a subject for target and op.
func (c *Client) Revoke(ctx context.Context, kind SubjectKind, subjectID int64, target Target, op Operation) error {
	return c.perms.Revoke(ctx, kind, subjectID, target, op)
}

// Rules returns the explicit decisions stored for target.
func (c *Client) Rules(ctx context.Context, target Target) ([]Rule, error) {
	return c.perms.Rules(ctx, target)
}

// AddMember puts a user into a group.
func (c *Client) AddMember(ctx context.Context, groupID, userID int64) error {
	return c.inTx(ctx, func(perms *permission.SQLStore) error {
		return perms.AddMember(ctx, groupID, userID)
	})
}

// RemoveMember takes a user out of a group.
func (c *Client) RemoveMember(ctx context.Context, groupID, userID int64) error {
	return c.perms.RemoveMember(ctx, groupID, userID)
}

// UserGroups returns the groups of a user.
func (c *Client) UserGroups(ctx context.Context, userID int64) ([]int64, error) {
	return c.perms.UserGroups(ctx, userID)
}

func (c *Client) inTx(ctx context.Context, fn func(*permission.SQLStore) error) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(c.perms.WithQueryer(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to commit")
	}
	return nil
}
