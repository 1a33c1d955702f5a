package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Supervisor spawns workers as "<Bin> <BaseArgs...> <worker flags...>".
// Children are reaped in the background so exited workers never linger as
// zombies that would still answer liveness probes.
type Supervisor struct {
	Bin      string
	BaseArgs []string
	LogDir   string
	Env      []string

	mu     sync.Mutex
	exited map[int]chan struct{}
}

// NewSupervisor creates a supervisor that re-executes bin with the hidden worker command
func NewSupervisor(bin, logDir string) *Supervisor {
	return &Supervisor{
		Bin:      bin,
		BaseArgs: []string{"worker"},
		LogDir:   logDir,
	}
}

// CurrentExecutable returns the path of the running binary
func CurrentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return filepath.EvalSymlinks(exe)
}

// exitPollInterval is how often WaitExit checks a pid it did not spawn
const exitPollInterval = 50 * time.Millisecond

// WaitExit blocks until pid exits or timeout passes. Workers spawned by this
// supervisor are awaited through their reaper, any other pid is polled.
func (s *Supervisor) WaitExit(pid int, timeout time.Duration) bool {
	s.mu.Lock()
	done, ok := s.exited[pid]
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if ok {
		select {
		case <-done:
			return true
		case <-timer.C:
			return false
		}
	}

	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()
	for {
		if !IsProcessAlive(pid) {
			return true
		}
		select {
		case <-ticker.C:
		case <-timer.C:
			return !IsProcessAlive(pid)
		}
	}
}

func (s *Supervisor) track(pid int) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exited == nil {
		s.exited = make(map[int]chan struct{})
	}
	done := make(chan struct{})
	s.exited[pid] = done
	return done
}

func (s *Supervisor) logPath(runID string) (string, error) {
	dir := s.LogDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create worker log directory: %w", err)
	}
	return filepath.Join(dir, runID+".log"), nil
}
