package tablepp

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/permission"
	"github.com/Zhukowych/tablepp/internal/schemafile"
)

// ApplyReport describes what ApplySchema changed.
type ApplyReport struct {
	*schemafile.Result

	// Sync lists the physical changes.
	Sync *SyncReport

	// Seeded counts the records inserted into created tables.
	Seeded int
}

// LoadSchemaFile reads and validates a YAML schema file.
func LoadSchemaFile(path string) (*SchemaDocument, error) {
	return schemafile.Load(path)
}

// ParseSchema decodes and validates a YAML schema document.
func ParseSchema(data []byte) (*SchemaDocument, error) {
	return schemafile.Parse(data)
}

// MarshalSchema encodes doc as YAML.
func MarshalSchema(doc *SchemaDocument) ([]byte, error) {
	return schemafile.Marshal(doc)
}

// ApplySchema reconciles the registry with doc in a single schema mutation.
// Tables created by it then receive their declared records, inserted as u.
// Records are never seeded into tables that already existed.
func (c *Client) ApplySchema(ctx context.Context, u User, doc *SchemaDocument, opts ApplyOptions) (*ApplyReport, error) {
	var res *schemafile.Result
	sync, err := c.mutateSchema(ctx, func(ctx context.Context, tx schemaTx) error {
		var err error
		res, err = schemafile.Apply(ctx, tx.reg, doc, opts)
		if err != nil {
			return err
		}
		var targets []permission.Target
		for _, col := range res.RemovedColumns {
			targets = append(targets, permission.Column(col.ID))
		}
		return tx.perms.DeleteForTargets(ctx, targets...)
	})
	if err != nil {
		return nil, err
	}
	report := &ApplyReport{Result: res, Sync: sync}
	for _, w := range res.Warnings {
		c.logger.Warn("schema file", "warning", w)
	}

	for _, t := range res.Created {
		decl := doc.Table(t.Name)
		if decl == nil {
			continue
		}
		for i, values := range decl.Records {
			if _, err := c.CreateRecord(ctx, u, t.Slug, values); err != nil {
				var e *alerr.Error
				if errors.As(err, &e) {
					return report, e.With("record", fmt.Sprintf("%s.records[%d]", t.Name, i))
				}
				return report, fmt.Errorf("seed %s.records[%d]: %w", t.Name, i, err)
			}
			report.Seeded++
		}
	}

	c.logger.Info("schema applied", "summary", res.Summary(), "seeded", report.Seeded)
	return report, nil
}

// ExportSchema describes the registry as a schema document.
func (c *Client) ExportSchema(ctx context.Context) (*SchemaDocument, error) {
	return schemafile.Export(ctx, c.registry)
}

// WatchSchema applies the schema file at path every time it changes, until
// ctx is done. done, when set, receives the outcome of each apply.
func (c *Client) WatchSchema(ctx context.Context, u User, path string, opts ApplyOptions, done func(*ApplyReport, error)) error {
	return schemafile.Watch(ctx, path, c.logger, func(ctx context.Context, doc *SchemaDocument) error {
		report, err := c.ApplySchema(ctx, u, doc, opts)
		if done != nil {
			done(report, err)
		}
		return err
	})
}
