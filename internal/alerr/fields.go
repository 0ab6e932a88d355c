package alerr

import (
	"sort"
	"strings"
)

// FieldErrors collects per-field validation messages so that a whole record
// can be reported at once instead of failing on the first bad value.
type FieldErrors map[string][]string

// Add records a message for the given field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// AddError records the message of err for the given field.
// For *Error values only the message is kept, without code or context.
func (f FieldErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	if e, ok := err.(*Error); ok {
		f.Add(field, e.GetMessage())
		return
	}
	f.Add(field, err.Error())
}

// Empty reports whether no field error has been recorded.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Fields returns the sorted names of fields with errors.
func (f FieldErrors) Fields() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Err converts the collection into a single ErrValidation error, or nil
// when nothing was recorded. Each field becomes a context entry.
func (f FieldErrors) Err(msg string) error {
	if f.Empty() {
		return nil
	}
	e := New(ErrValidation, msg)
	for _, name := range f.Fields() {
		e.With("field "+name, strings.Join(f[name], "; "))
	}
	e.With("fields", f.Fields())
	return e
}

// FieldsOf extracts the names of invalid fields from an error produced by
// FieldErrors.Err. Returns nil for any other error.
func FieldsOf(err error) []string {
	var e *Error
	if !asError(err, &e) {
		return nil
	}
	fields, _ := e.context["fields"].([]string)
	return fields
}
