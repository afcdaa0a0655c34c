package tabulate

import (
	"testing"

	"go.uber.org/goleak"
)

// Parallel batches must not leave worker goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
