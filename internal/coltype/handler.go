package coltype

import (
	"context"
	"slices"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/ast"
)

// Operator is a filter operator a column may expose.
type Operator string

const (
	OpExact    Operator = "exact"
	OpContains Operator = "contains"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
)

// Label returns the human label shown in filter choices.
func (o Operator) Label() string {
	switch o {
	case OpExact:
		return "Exact value"
	case OpContains:
		return "Contains"
	case OpGte:
		return "Greater or equal"
	case OpLte:
		return "Less or equal"
	default:
		return string(o)
	}
}

// Settings keys understood by the handlers.
const (
	KeyFilters       = "filters"
	KeyMinValue      = "min_value"
	KeyMaxValue      = "max_value"
	KeyMaxLength     = "max_length"
	KeyTargetTableID = "target_table_id"
)

// Defaults applied when a settings key is absent.
const (
	DefaultMinValue  = -100
	DefaultMaxValue  = 100
	DefaultMaxLength = 128
	PreviewLength    = 7
)

// Resolver maps a table id to the slug of its physical table.
// Implementations return an ErrNotFound error for unknown ids.
type Resolver interface {
	TableSlug(ctx context.Context, id int64) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, id int64) (string, error)

// TableSlug calls f.
func (f ResolverFunc) TableSlug(ctx context.Context, id int64) (string, error) {
	return f(ctx, id)
}

// Handler implements the type-specific behavior of one column.
type Handler interface {
	DType() DType
	Name() string
	Slug() string
	Settings() Settings

	// PhysicalField describes the storage column backing this column.
	// Every physical field is nullable.
	PhysicalField(ctx context.Context, r Resolver) (*ast.ColumnDef, error)

	// Clean coerces value to its storage representation and validates it.
	// nil and empty strings clean to nil.
	Clean(value any) (any, error)
	// Parse coerces value like Clean without the min_value, max_value and
	// max_length checks. Filter values are parsed.
	Parse(value any) (any, error)
	Validate(value any) error
	Format(value any) any

	FilterOperators() []Operator
	SettingsSchema() SettingsSchema
	DisplayClass() string
}

// New returns the handler for dtype, validating settings.
func New(dtype DType, name, slug string, settings Settings) (Handler, error) {
	if settings == nil {
		settings = Settings{}
	}
	b := base{name: name, slug: slug, settings: settings}

	var h Handler
	switch dtype {
	case Text:
		h = &textHandler{base: b}
	case Integer:
		h = &integerHandler{numeric: numeric{base: b}}
	case Float:
		h = &floatHandler{numeric: numeric{base: b}}
	case BigText:
		h = &bigTextHandler{base: b}
	case Relation:
		h = &relationHandler{base: b}
	default:
		return nil, alerr.New(alerr.ErrValidation, "unknown column type").
			WithColumn(name).
			With("dtype", int(dtype))
	}

	if err := checkSettings(h); err != nil {
		return nil, err
	}
	return h, nil
}

// AllowedOperators returns every filter operator the dtype can expose.
func AllowedOperators(dtype DType) []Operator {
	switch dtype {
	case Integer, Float:
		return []Operator{OpGte, OpLte}
	case Text, BigText:
		return []Operator{OpExact, OpContains}
	case Relation:
		return []Operator{OpExact}
	default:
		return nil
	}
}

// base holds the fields shared by every handler.
type base struct {
	name     string
	slug     string
	settings Settings
}

func (b *base) Name() string       { return b.name }
func (b *base) Slug() string       { return b.slug }
func (b *base) Settings() Settings { return b.settings }

func (b *base) nullable(typ string, args ...any) *ast.ColumnDef {
	return &ast.ColumnDef{
		Name:     b.slug,
		Type:     typ,
		TypeArgs: args,
		Nullable: true,
		Docs:     b.name,
	}
}

func (b *base) invalid(msg string) *alerr.Error {
	return alerr.New(alerr.ErrValidation, msg).WithColumn(b.name)
}

// declared returns the settings filters that dtype allows, in allowed order.
func (b *base) declared(dtype DType) []Operator {
	want := b.settings.Strings(KeyFilters)
	var out []Operator
	for _, op := range AllowedOperators(dtype) {
		if slices.Contains(want, string(op)) {
			out = append(out, op)
		}
	}
	return out
}

// checkSettings rejects settings that no handler could interpret.
func checkSettings(h Handler) error {
	s := h.Settings()
	allowed := AllowedOperators(h.DType())

	if raw, ok := s[KeyFilters]; ok && raw != nil {
		names, ok := asStrings(raw)
		if !ok {
			return settingsErr(h, KeyFilters, "must be a list of operator names")
		}
		for _, n := range names {
			if !slices.Contains(allowed, Operator(n)) {
				e := settingsErr(h, KeyFilters, "operator is not available for "+h.DType().Label()).
					With("operator", n)
				return e
			}
		}
	}

	switch t := h.(type) {
	case *integerHandler:
		return t.checkBounds(h)
	case *floatHandler:
		return t.checkBounds(h)
	case *textHandler:
		if _, present := s[KeyMaxLength]; present {
			n, ok := s.Int(KeyMaxLength)
			if !ok || n <= 0 {
				return settingsErr(h, KeyMaxLength, "must be a positive integer")
			}
		}
	case *relationHandler:
		if _, present := s[KeyTargetTableID]; present {
			n, ok := s.Int(KeyTargetTableID)
			if !ok || n <= 0 {
				return settingsErr(h, KeyTargetTableID, "must be a table id")
			}
		}
	}
	return nil
}

func settingsErr(h Handler, key, msg string) *alerr.Error {
	return alerr.New(alerr.ErrInvalidSettings, key+" "+msg).
		WithColumn(h.Name()).
		With("setting", key)
}
