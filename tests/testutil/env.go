package testutil

import (
	"os"
	"testing"
)

// ProtectEnv restores keys to their values from before the test (unset if
// they were unset) when it ends. Use it around code that exports secrets
// with os.Setenv. Like t.Setenv it must not be used in parallel tests.
func ProtectEnv(t *testing.T, keys ...string) {
	t.Helper()

	for _, key := range keys {
		value, _ := os.LookupEnv(key)
		t.Setenv(key, value)
	}
}
