package testutil

import (
	"os"
	"testing"
)

// SkipIfShort skips the test if running in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// RequireEnv ensures an environment variable is set, or skips the test.
func RequireEnv(t *testing.T, key string) string {
	t.Helper()

	value := os.Getenv(key)
	if value == "" {
		t.Skipf("Required environment variable %s not set", key)
	}

	return value
}

// Must asserts that err is nil, or fails the test immediately.
//
// Example:
//
//	testutil.Must(t, store.EnsureTables(ctx))
func Must(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// MustValue fails the test when err is non-nil and otherwise returns value.
// It takes the call result as its whole argument list so that a two-result
// call can be passed directly; the test is bound by the returned function.
//
// Example:
//
//	table := testutil.MustValue(store.CreateTable(ctx, "Contacts", "", nil))(t)
func MustValue[T any](value T, err error) func(t *testing.T) T {
	return func(t *testing.T) T {
		t.Helper()

		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		return value
	}
}
