package graph

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutines leak across the package: the engine is
// lock-based and must never leave background workers running.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
