// Package testing puts the binaries into test mode when imported by a test.
package testing

import (
	"os"
	stdtesting "testing"
)

func init() {
	if _, ok := os.LookupEnv("ODYSSEY_TEST_MODE"); !ok {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "true")
	}
	if os.Getenv("TOKEN_SECRET") == "" {
		_ = os.Setenv("TOKEN_SECRET", "test-secret")
	}
}

// TestMain can be re-exported by packages that need no other setup.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
