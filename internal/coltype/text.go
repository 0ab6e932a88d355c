package coltype

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/Zhukowych/tablepp/internal/ast"
)

// textValue coerces scalar input to a string. Numbers are accepted so that
// spreadsheet cells typed as numbers still land in text columns.
func textValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case bool:
		return "", false
	}
	if i, ok := asInt(value); ok {
		return strconv.FormatInt(i, 10), true
	}
	return "", false
}

// -----------------------------------------------------------------------------

type textHandler struct {
	base
}

func (h *textHandler) DType() DType { return Text }

// MaxLength returns max_length, defaulting to DefaultMaxLength.
func (h *textHandler) MaxLength() int {
	if n, ok := h.settings.Int(KeyMaxLength); ok && n > 0 {
		return int(n)
	}
	return DefaultMaxLength
}

func (h *textHandler) PhysicalField(context.Context, Resolver) (*ast.ColumnDef, error) {
	return h.nullable(ast.TypeString, h.MaxLength()), nil
}

func (h *textHandler) Parse(value any) (any, error) {
	if isEmpty(value) {
		return nil, nil
	}
	s, ok := textValue(value)
	if !ok {
		return nil, h.invalid("Enter a text value")
	}
	return s, nil
}

func (h *textHandler) Clean(value any) (any, error) {
	v, err := h.Parse(value)
	if v == nil || err != nil {
		return nil, err
	}
	s := v.(string)
	if limit := h.MaxLength(); utf8.RuneCountInString(s) > limit {
		return nil, h.invalid(fmt.Sprintf("Length must be less than or equal to %d", limit))
	}
	return s, nil
}

func (h *textHandler) Validate(value any) error {
	_, err := h.Clean(value)
	return err
}

func (h *textHandler) Format(value any) any { return value }

func (h *textHandler) FilterOperators() []Operator { return h.declared(Text) }

func (h *textHandler) SettingsSchema() SettingsSchema { return SchemaFor(Text) }

func (h *textHandler) DisplayClass() string { return "text" }

// -----------------------------------------------------------------------------

type bigTextHandler struct {
	base
}

func (h *bigTextHandler) DType() DType { return BigText }

func (h *bigTextHandler) PhysicalField(context.Context, Resolver) (*ast.ColumnDef, error) {
	return h.nullable(ast.TypeText), nil
}

func (h *bigTextHandler) Clean(value any) (any, error) { return h.Parse(value) }

func (h *bigTextHandler) Parse(value any) (any, error) {
	if isEmpty(value) {
		return nil, nil
	}
	s, ok := textValue(value)
	if !ok {
		return nil, h.invalid("Enter a text value")
	}
	return s, nil
}

func (h *bigTextHandler) Validate(value any) error {
	_, err := h.Clean(value)
	return err
}

// Format returns a short preview for list views.
func (h *bigTextHandler) Format(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	return string([]rune(s)[:PreviewLength]) + "..."
}

func (h *bigTextHandler) FilterOperators() []Operator { return h.declared(BigText) }

func (h *bigTextHandler) SettingsSchema() SettingsSchema { return SchemaFor(BigText) }

func (h *bigTextHandler) DisplayClass() string { return "big-text" }
