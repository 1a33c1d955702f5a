package claudecli

import (
	"testing"

	"go.uber.org/goleak"
)

// Every test spawns the CLI through os/exec; the pipe readers must be gone
// once Execute returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
