// Package coltype implements the column type handlers: one Handler per data
// type, each mapping a column to its physical field and owning validation,
// formatting, filter operators and the settings form shape for that type.
package coltype

import (
	"strconv"
	"strings"

	"github.com/Zhukowych/tablepp/internal/alerr"
)

// DType is the closed set of column data types. Numeric codes are persisted
// in metadata and must not change.
type DType int

const (
	Text     DType = 0
	Integer  DType = 1
	Float    DType = 3
	BigText  DType = 4
	Relation DType = 5
)

// DTypes returns every known dtype in display order.
func DTypes() []DType {
	return []DType{Text, Integer, Float, BigText, Relation}
}

// String returns the canonical upper-case name of the dtype.
func (d DType) String() string {
	switch d {
	case Text:
		return "TEXT"
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case BigText:
		return "BIG_TEXT"
	case Relation:
		return "RELATION"
	default:
		return "DType(" + strconv.Itoa(int(d)) + ")"
	}
}

// Label returns a human label for the dtype.
func (d DType) Label() string {
	switch d {
	case Text:
		return "Text"
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	case BigText:
		return "Big text"
	case Relation:
		return "Relation"
	default:
		return d.String()
	}
}

// Valid reports whether d is one of the known dtypes.
func (d DType) Valid() bool {
	switch d {
	case Text, Integer, Float, BigText, Relation:
		return true
	}
	return false
}

// ParseDType accepts a dtype name (any case, "big-text" or "big_text") or
// its numeric code.
func ParseDType(s string) (DType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if norm == "" {
		return 0, alerr.New(alerr.ErrValidation, "column type is required")
	}
	if n, err := strconv.Atoi(norm); err == nil {
		if d := DType(n); d.Valid() {
			return d, nil
		}
	}
	for _, d := range DTypes() {
		if d.String() == norm {
			return d, nil
		}
	}

	names := make([]string, 0, len(DTypes()))
	for _, d := range DTypes() {
		names = append(names, d.String())
	}
	e := alerr.New(alerr.ErrUnknownType, "unknown column type").With("type", s)
	if hint := alerr.SuggestSimilar(norm, names); hint != "" {
		e.WithHelp(hint)
	}
	return 0, e
}

// MarshalText implements encoding.TextMarshaler.
func (d DType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DType) UnmarshalText(b []byte) error {
	parsed, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
