//go:build unix

package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

var _ output.WorkerSupervisor = (*Supervisor)(nil)

// Spawn starts a detached worker in its own session with output appended to
// <LogDir>/<runID>.log
func (s *Supervisor) Spawn(ctx context.Context, req output.WorkerRequest) (int, error) {
	flags, err := BuildWorkerArgs(req)
	if err != nil {
		return 0, err
	}

	logPath, err := s.logPath(req.RunID)
	if err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open worker log: %w", err)
	}

	args := append(append([]string{}, s.BaseArgs...), flags...)
	// The worker outlives the request, so it must not be bound to ctx
	cmd := exec.Command(s.Bin, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), s.Env...)
	if req.WorktreePath != "" {
		cmd.Dir = req.WorktreePath
	} else if req.RepoPath != "" {
		cmd.Dir = req.RepoPath
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return 0, fmt.Errorf("start worker: %w", err)
	}

	pid := cmd.Process.Pid
	done := s.track(pid)
	go func() {
		_ = cmd.Wait()
		logFile.Close()
		close(done)
	}()

	return pid, nil
}

// IsAlive reports whether pid exists. EPERM means the process exists but
// belongs to someone else, which still counts as alive.
func (s *Supervisor) IsAlive(pid int) bool {
	return IsProcessAlive(pid)
}

// IsProcessAlive probes pid with signal 0
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// Terminate sends SIGTERM to the worker's process group so agent
// subprocesses stop with it, falling back to the single pid
func (s *Supervisor) Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := unix.Kill(-pid, unix.SIGTERM); err == nil {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
		return fmt.Errorf("signal worker %d: %w", pid, err)
	}
	return nil
}
