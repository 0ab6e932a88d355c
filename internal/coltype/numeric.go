package coltype

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Zhukowych/tablepp/internal/ast"
)

// numeric holds the bound handling shared by INTEGER and FLOAT.
type numeric struct {
	base
}

// bounds returns min_value and max_value, defaulting absent keys.
func (n *numeric) bounds() (lo, hi float64) {
	lo, hi = DefaultMinValue, DefaultMaxValue
	if v, ok := n.settings.Float(KeyMinValue); ok {
		lo = v
	}
	if v, ok := n.settings.Float(KeyMaxValue); ok {
		hi = v
	}
	return lo, hi
}

func (n *numeric) checkBounds(h Handler) error {
	for _, key := range []string{KeyMinValue, KeyMaxValue} {
		raw, present := n.settings[key]
		if !present || raw == nil {
			continue
		}
		if h.DType() == Integer {
			if _, ok := n.settings.Int(key); !ok {
				return settingsErr(h, key, "must be an integer")
			}
		} else if _, ok := n.settings.Float(key); !ok {
			return settingsErr(h, key, "must be a number")
		}
	}
	if lo, hi := n.bounds(); lo > hi {
		return settingsErr(h, KeyMinValue, "must not exceed max_value")
	}
	return nil
}

func (n *numeric) inRange(v float64) error {
	lo, hi := n.bounds()
	if v < lo || v > hi {
		return n.invalid(fmt.Sprintf("Value must be between %s and %s", num(lo), num(hi)))
	}
	return nil
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// -----------------------------------------------------------------------------

type integerHandler struct {
	numeric
}

func (h *integerHandler) DType() DType { return Integer }

func (h *integerHandler) PhysicalField(context.Context, Resolver) (*ast.ColumnDef, error) {
	return h.nullable(ast.TypeInteger), nil
}

func (h *integerHandler) Parse(value any) (any, error) {
	if isEmpty(value) {
		return nil, nil
	}
	if _, isBool := value.(bool); isBool {
		return nil, h.invalid("Enter a whole number")
	}
	v, ok := asInt(value)
	if !ok {
		return nil, h.invalid("Enter a whole number")
	}
	return v, nil
}

func (h *integerHandler) Clean(value any) (any, error) {
	v, err := h.Parse(value)
	if v == nil || err != nil {
		return nil, err
	}
	if err := h.inRange(float64(v.(int64))); err != nil {
		return nil, err
	}
	return v, nil
}

func (h *integerHandler) Validate(value any) error {
	_, err := h.Clean(value)
	return err
}

func (h *integerHandler) Format(value any) any { return value }

func (h *integerHandler) FilterOperators() []Operator { return h.declared(Integer) }

func (h *integerHandler) SettingsSchema() SettingsSchema { return SchemaFor(Integer) }

func (h *integerHandler) DisplayClass() string { return "integer" }

// -----------------------------------------------------------------------------

type floatHandler struct {
	numeric
}

func (h *floatHandler) DType() DType { return Float }

func (h *floatHandler) PhysicalField(context.Context, Resolver) (*ast.ColumnDef, error) {
	return h.nullable(ast.TypeFloat), nil
}

func (h *floatHandler) Parse(value any) (any, error) {
	if isEmpty(value) {
		return nil, nil
	}
	if _, isBool := value.(bool); isBool {
		return nil, h.invalid("Enter a number")
	}
	v, ok := asFloat(value)
	if !ok {
		return nil, h.invalid("Enter a number")
	}
	return v, nil
}

func (h *floatHandler) Clean(value any) (any, error) {
	v, err := h.Parse(value)
	if v == nil || err != nil {
		return nil, err
	}
	if err := h.inRange(v.(float64)); err != nil {
		return nil, err
	}
	return v, nil
}

func (h *floatHandler) Validate(value any) error {
	_, err := h.Clean(value)
	return err
}

func (h *floatHandler) Format(value any) any { return value }

func (h *floatHandler) FilterOperators() []Operator { return h.declared(Float) }

func (h *floatHandler) SettingsSchema() SettingsSchema { return SchemaFor(Float) }

func (h *floatHandler) DisplayClass() string { return "float" }
