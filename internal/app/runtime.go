package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv makes the binaries return before dialing any backend.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode atomic.Pointer[bool]

func readTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}

// InTestMode reports whether TestModeEnv is set to a true value. The first
// call caches the answer.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	on := readTestMode()
	testMode.CompareAndSwap(nil, &on)
	return *testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv after the environment changed.
func RefreshTestMode() {
	on := readTestMode()
	testMode.Store(&on)
}
