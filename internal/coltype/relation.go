package coltype

import (
	"context"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
)

// relationHandler stores a reference to a record of another table.
type relationHandler struct {
	base
}

func (h *relationHandler) DType() DType { return Relation }

// TargetTableID returns the configured target table id.
func (h *relationHandler) TargetTableID() (int64, bool) {
	id, ok := h.settings.Int(KeyTargetTableID)
	return id, ok && id > 0
}

func (h *relationHandler) PhysicalField(ctx context.Context, r Resolver) (*ast.ColumnDef, error) {
	id, ok := h.TargetTableID()
	if !ok {
		return nil, alerr.New(alerr.ErrConfiguration, "relation target is not set").
			WithColumn(h.name)
	}
	if r == nil {
		return nil, alerr.New(alerr.ErrConfiguration, "relation target cannot be resolved").
			WithColumn(h.name).
			With("target_table_id", id)
	}
	slug, err := r.TableSlug(ctx, id)
	if err != nil {
		if alerr.Is(err, alerr.ErrNotFound) {
			return nil, alerr.Wrap(alerr.ErrConfiguration, err, "relation target does not exist").
				WithColumn(h.name).
				With("target_table_id", id)
		}
		return nil, err
	}

	col := h.nullable(ast.TypeInteger)
	col.Reference = &ast.Reference{Table: slug, Column: "id", OnDelete: "SET NULL"}
	return col, nil
}

// Clean coerces value to a record id.
func (h *relationHandler) Clean(value any) (any, error) { return h.Parse(value) }

func (h *relationHandler) Parse(value any) (any, error) {
	if isEmpty(value) {
		return nil, nil
	}
	if _, isBool := value.(bool); isBool {
		return nil, h.invalid("Select a valid record")
	}
	id, ok := asInt(value)
	if !ok || id <= 0 {
		return nil, h.invalid("Select a valid record")
	}
	return id, nil
}

func (h *relationHandler) Validate(value any) error {
	_, err := h.Clean(value)
	return err
}

func (h *relationHandler) Format(value any) any { return value }

func (h *relationHandler) FilterOperators() []Operator { return h.declared(Relation) }

func (h *relationHandler) SettingsSchema() SettingsSchema { return SchemaFor(Relation) }

func (h *relationHandler) DisplayClass() string { return "text" }

// TargetTableID returns the relation target of h, if h is a RELATION handler.
func TargetTableID(h Handler) (int64, bool) {
	r, ok := h.(*relationHandler)
	if !ok {
		return 0, false
	}
	return r.TargetTableID()
}
