package tablepp

import (
	"errors"
	"fmt"

	"github.com/Zhukowych/tablepp/internal/alerr"
	"github.com/Zhukowych/tablepp/internal/drift"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
var (
	// ErrMissingDatabaseURL is returned when neither a database URL nor a
	// database handle is provided.
	ErrMissingDatabaseURL = errors.New("tablepp: database URL required")

	// ErrConnectionFailed is returned when the database connection fails.
	ErrConnectionFailed = errors.New("tablepp: connection failed")

	// ErrUnsupportedDialect is returned when the database dialect is not supported.
	ErrUnsupportedDialect = errors.New("tablepp: unsupported dialect")

	// ErrSchemaDrift is returned by Verify when the physical tables do not
	// match the registry.
	ErrSchemaDrift = errors.New("tablepp: schema drift detected")
)

// Code is a stable, machine-readable error code carried by the errors of
// schema and record operations.
type Code = alerr.Code

// Error codes callers commonly branch on.
const (
	CodeValidation       = alerr.ErrValidation
	CodeInvalidSettings  = alerr.ErrInvalidSettings
	CodeUnknownType      = alerr.ErrUnknownType
	CodeConfiguration    = alerr.ErrConfiguration
	CodePermissionDenied = alerr.ErrPermissionDenied
	CodeIntegrity        = alerr.ErrIntegrity
	CodeConflict         = alerr.ErrConflict
	CodeNotFound         = alerr.ErrNotFound
	CodeDuplicate        = alerr.ErrDuplicate
	CodeMigrationFailed  = alerr.ErrMigrationFailed
)

// ErrorCode returns the code of err, or "" for errors without one.
func ErrorCode(err error) Code {
	return alerr.GetErrorCode(err)
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return alerr.Is(err, code)
}

// InvalidFields returns the names of the fields that failed validation, or
// nil when err is not a validation error.
func InvalidFields(err error) []string {
	return alerr.FieldsOf(err)
}

// ConnectionError provides detailed information about a database connection error.
type ConnectionError struct {
	// URL is the database URL (with password redacted).
	URL string

	// Dialect is the database dialect (postgres, sqlite).
	Dialect string

	// Cause is the underlying error from the database driver.
	Cause error
}

// Error returns a formatted error message.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tablepp: failed to connect to %s database: %v", e.Dialect, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// DriftError carries the result of a failed Verify.
type DriftError struct {
	Result *drift.Result
}

// Error returns a formatted error message.
func (e *DriftError) Error() string {
	if e.Result == nil {
		return "tablepp: schema drift detected"
	}
	return "tablepp: schema drift detected\n" + drift.FormatResult(e.Result)
}

// Is reports whether this error matches the target error.
func (e *DriftError) Is(target error) bool {
	return target == ErrSchemaDrift
}
