package app

import (
	"os"
	"sync"
)

// TestModeEnv disables network side effects in the binaries when set to "1".
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the binaries should exit before touching
// Postgres or Redis. The environment is read once per process.
func InTestMode() bool {
	return testMode()
}
