package tablepp

import (
	"context"

	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/record"
)

// Records of a table are addressed by the table's name or slug; values are
// keyed by column slug or name. Every call checks the permissions of u.

// CreateRecord validates values and inserts a record into table.
func (c *Client) CreateRecord(ctx context.Context, u User, table string, values map[string]any) (*Record, error) {
	m, err := c.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.records.Create(ctx, u, m, values)
}

// GetRecord returns the record id of table with the columns u may read.
func (c *Client) GetRecord(ctx context.Context, u User, table string, id int64) (*Record, error) {
	m, err := c.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.records.Get(ctx, u, m, id)
}

// ListRecords returns one page of the records of table matching q.
func (c *Client) ListRecords(ctx context.Context, u User, table string, q Query) (*Page, error) {
	m, err := c.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.records.List(ctx, u, m, q)
}

// UpdateRecord validates values and stores them on the record id of table.
// Columns missing from values keep their values.
func (c *Client) UpdateRecord(ctx context.Context, u User, table string, id int64, values map[string]any) (*Record, error) {
	m, err := c.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.records.Update(ctx, u, m, id, values)
}

// DeleteRecord removes the record id of table. It fails with ErrIntegrity
// while other records reference it.
func (c *Client) DeleteRecord(ctx context.Context, u User, table string, id int64) error {
	m, err := c.Model(ctx, table)
	if err != nil {
		return err
	}
	return c.records.Delete(ctx, u, m, id)
}

// RelatedRecords lists the records referencing the record id of table.
func (c *Client) RelatedRecords(ctx context.Context, u User, table string, id int64) ([]Dependent, error) {
	m, err := c.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.records.RelatedRecords(ctx, u, m, id)
}

// Lookup searches the searchable column of table for q.
func (c *Client) Lookup(ctx context.Context, u User, table, q string, limit int) ([]Match, error) {
	m, err := c.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.records.Lookup(ctx, u, m, q, limit)
}

// FormatRecord returns the display values of rec keyed by column slug.
func (c *Client) FormatRecord(ctx context.Context, table string, rec *Record) (map[string]any, error) {
	m, err := c.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return record.Format(m, rec), nil
}

// History returns the change log of the record id of table, oldest first.
// It is empty when the log goes to a sink configured with
// WithActivitySink.
func (c *Client) History(ctx context.Context, u User, table string, id int64) ([]Activity, error) {
	m, err := c.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(ctx, c.checker, u, permission.Table(m.Table.ID), permission.Read); err != nil {
		return nil, err
	}
	if c.history == nil {
		return nil, nil
	}
	return c.history.Entries(ctx, m.Slug(), id)
}
