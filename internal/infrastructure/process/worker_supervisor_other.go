//go:build !unix

package process

import (
	"context"
	"errors"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

var errUnsupported = errors.New("background workers are only supported on unix platforms")

// Spawn is not supported on this platform
func (s *Supervisor) Spawn(ctx context.Context, req output.WorkerRequest) (int, error) {
	return 0, errUnsupported
}

// IsAlive always reports false on this platform
func (s *Supervisor) IsAlive(pid int) bool {
	return false
}

// IsProcessAlive always reports false on this platform
func IsProcessAlive(pid int) bool {
	return false
}

// Terminate is not supported on this platform
func (s *Supervisor) Terminate(pid int) error {
	return errUnsupported
}
