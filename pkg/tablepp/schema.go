package tablepp

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/model"
	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/registry"
)

// schemaTx is the transaction-bound view a schema mutation works through.
type schemaTx struct {
	reg   *registry.Store
	perms *permission.SQLStore
}

// mutateSchema runs fn and the physical synchronization in one transaction
// under the schema mutex, then swaps in the new models. Any error rolls
// everything back and leaves the models untouched.
//
// SQLite rebuilds tables to drop relation columns, which with foreign keys
// enforced would cascade into referencing rows. Its mutations therefore run
// on a dedicated connection with enforcement off and end with an explicit
// foreign key check.
func (c *Client) mutateSchema(ctx context.Context, fn func(ctx context.Context, tx schemaTx) error) (*SyncReport, error) {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()

	var (
		tx  *sql.Tx
		err error
	)
	if c.dialect.Name() == "sqlite" {
		conn, err := c.db.Conn(ctx)
		if err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLConnection, err, "failed to acquire connection")
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return nil, alerr.WrapSQL(err, "disable foreign keys", "")
		}
		defer func() {
			if _, err := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON"); err != nil {
				c.logger.Error("foreign keys not restored", "error", err)
				// Discard the connection instead of returning it to the pool.
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
		}()
		tx, err = conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to begin transaction")
		}
	} else {
		tx, err = c.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to begin transaction")
		}
	}
	defer func() { _ = tx.Rollback() }()

	reg := c.registry.WithQueryer(tx)
	if err := fn(ctx, schemaTx{reg: reg, perms: c.perms.WithQueryer(tx)}); err != nil {
		return nil, err
	}

	models, err := c.builder(reg).BuildAll(ctx)
	if err != nil {
		return nil, err
	}
	report, err := c.sync.Sync(ctx, tx, models)
	if err != nil {
		return nil, err
	}
	if c.dialect.Name() == "sqlite" {
		if err := foreignKeyCheck(ctx, tx); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to commit schema change")
	}

	c.arena.Replace(models)
	c.logger.Debug("models replaced", "tables", len(models), "version", c.arena.Version())
	return report, nil
}

// foreignKeyCheck fails when any row references a missing record.
func foreignKeyCheck(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return alerr.WrapSQL(err, "foreign key check", "")
	}
	defer rows.Close()

	var broken []string
	for rows.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkid          int64
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return alerr.WrapSQL(err, "foreign key check", "")
		}
		broken = append(broken, table+" -> "+parent)
	}
	if err := rows.Err(); err != nil {
		return alerr.WrapSQL(err, "foreign key check", "")
	}
	if len(broken) > 0 {
		return alerr.New(alerr.ErrIntegrity, "schema change would leave dangling references").
			With("references", strings.Join(broken, ", "))
	}
	return nil
}

// restoreRevision puts back the revision of t when the mutation that
// advanced it rolled back.
func restoreRevision(t *Table, rev int64, err *error) {
	if *err != nil {
		t.Revision = rev
	}
}

// -----------------------------------------------------------------------------
// Tables
// -----------------------------------------------------------------------------

// Tables returns every table ordered by id.
func (c *Client) Tables(ctx context.Context) ([]*Table, error) {
	return c.registry.Tables(ctx)
}

// Table returns the table addressed by ref: its name or its slug.
func (c *Client) Table(ctx context.Context, ref string) (*Table, error) {
	if registry.IsManagedTable(ref) {
		t, err := c.registry.TableBySlug(ctx, ref)
		if err == nil || !alerr.Is(err, alerr.ErrNotFound) {
			return t, err
		}
	}
	return c.registry.TableByName(ctx, ref)
}

// CreateTable registers a table and creates its physical table.
func (c *Client) CreateTable(ctx context.Context, name, description string, options Options) (*Table, error) {
	var t *Table
	_, err := c.mutateSchema(ctx, func(ctx context.Context, tx schemaTx) error {
		var err error
		t, err = tx.reg.CreateTable(ctx, name, description, options)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("table created", "table", t.Name, "slug", t.Slug)
	return t, nil
}

// UpdateTable stores the name, description and options of t. t.Revision
// must match the stored revision, otherwise ErrConflict is returned.
func (c *Client) UpdateTable(ctx context.Context, t *Table) (err error) {
	defer restoreRevision(t, t.Revision, &err)
	_, err = c.mutateSchema(ctx, func(ctx context.Context, tx schemaTx) error {
		return tx.reg.UpdateTable(ctx, t)
	})
	return err
}

// DeleteTable removes t, its columns, their permission rules and the
// physical table with its records. It fails with ErrIntegrity while another
// table has a relation to t.
func (c *Client) DeleteTable(ctx context.Context, t *Table) error {
	_, err := c.mutateSchema(ctx, func(ctx context.Context, tx schemaTx) error {
		deps, err := tx.reg.DependentTables(ctx, t)
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			names := make([]string, len(deps))
			for i, d := range deps {
				names[i] = d.Name
			}
			return alerr.New(alerr.ErrIntegrity, "table is referenced by other tables").
				WithTable(t.Name).
				With("dependents", strings.Join(names, ", ")).
				WithHelp("remove the relation columns pointing at this table first")
		}

		cols, err := tx.reg.Columns(ctx, t.ID)
		if err != nil {
			return err
		}
		targets := []permission.Target{permission.Table(t.ID)}
		for _, col := range cols {
			targets = append(targets, permission.Column(col.ID))
		}
		if err := tx.perms.DeleteForTargets(ctx, targets...); err != nil {
			return err
		}
		return tx.reg.DeleteTable(ctx, t)
	})
	if err != nil {
		return err
	}
	c.logger.Info("table deleted", "table", t.Name, "slug", t.Slug)
	return nil
}

// -----------------------------------------------------------------------------
// Columns
// -----------------------------------------------------------------------------

// Columns returns the columns of t ordered by position.
func (c *Client) Columns(ctx context.Context, t *Table) ([]*Column, error) {
	return c.registry.Columns(ctx, t.ID)
}

// Column returns the column of t addressed by ref: its name or its slug.
func (c *Client) Column(ctx context.Context, t *Table, ref string) (*Column, error) {
	if strings.HasPrefix(ref, registry.ColumnPrefix) {
		col, err := c.registry.ColumnBySlug(ctx, ref)
		switch {
		case err == nil && col.TableID == t.ID:
			return col, nil
		case err != nil && !alerr.Is(err, alerr.ErrNotFound):
			return nil, err
		}
	}
	return c.registry.ColumnByName(ctx, t.ID, ref)
}

// AddColumn registers a column on t and adds it to the physical table.
// Existing records read the new column as empty.
func (c *Client) AddColumn(ctx context.Context, t *Table, in ColumnInput) (col *Column, err error) {
	defer restoreRevision(t, t.Revision, &err)
	_, err = c.mutateSchema(ctx, func(ctx context.Context, tx schemaTx) error {
		var err error
		col, err = tx.reg.AddColumn(ctx, t, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("column added", "table", t.Name, "column", col.Name, "dtype", col.DType.String())
	return col, nil
}

// UpdateColumn stores the name, settings and flags of col. The dtype and
// the settings that shape physical storage keep their stored values.
func (c *Client) UpdateColumn(ctx context.Context, t *Table, col *Column) (err error) {
	defer restoreRevision(t, t.Revision, &err)
	_, err = c.mutateSchema(ctx, func(ctx context.Context, tx schemaTx) error {
		return tx.reg.UpdateColumn(ctx, t, col)
	})
	return err
}

// RemoveColumn removes a column of t, its permission rules and its
// physical column with the stored values. ref is a *Column, an id or a
// name.
func (c *Client) RemoveColumn(ctx context.Context, t *Table, ref registry.ColumnRef) (col *Column, err error) {
	defer restoreRevision(t, t.Revision, &err)
	_, err = c.mutateSchema(ctx, func(ctx context.Context, tx schemaTx) error {
		var err error
		col, err = tx.reg.RemoveColumn(ctx, t, ref)
		if err != nil {
			return err
		}
		return tx.perms.DeleteForTargets(ctx, permission.Column(col.ID))
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("column removed", "table", t.Name, "column", col.Name)
	return col, nil
}

// -----------------------------------------------------------------------------
// Models
// -----------------------------------------------------------------------------

// Model returns the record model of the table addressed by ref.
func (c *Client) Model(ctx context.Context, ref string) (*Model, error) {
	t, err := c.Table(ctx, ref)
	if err != nil {
		return nil, err
	}
	m, ok := c.arena.Get(t.Slug)
	if !ok {
		return nil, alerr.New(alerr.ErrNotFound, "table has no model, run migrate").
			WithTable(t.Name)
	}
	return m, nil
}

// Models returns every loaded model ordered by table id.
func (c *Client) Models() []*Model {
	return c.arena.All()
}
