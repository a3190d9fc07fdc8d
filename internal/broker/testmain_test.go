package broker

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks for goroutine leaks after all tests complete, catching
// cleanup loops that outlive their stop channel.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
