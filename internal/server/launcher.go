package server

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/melih-ucgun/saucier/internal/render"
)

// Launcher starts and stops the config-serving daemon process.
// Injected so the handle can be tested without spawning anything.
type Launcher interface {
	Start(ctx context.Context, port int) (pid int, err error)
	Stop(ctx context.Context, pid int) error
}

// ExecLauncher launches the daemon from a configured command line.
// The command template receives {{.Port}} and {{.StateDir}}.
type ExecLauncher struct {
	Command  string
	StateDir string
}

var _ Launcher = (*ExecLauncher)(nil)

// Start renders the server command, detaches the daemon into its own session
// and returns its pid. Output goes to server.log under the state dir.
// Deliberately not bound to ctx: the daemon must outlive this invocation.
func (l *ExecLauncher) Start(_ context.Context, port int) (int, error) {
	cmdline, err := render.Command(l.Command, map[string]interface{}{
		"Port":     port,
		"StateDir": l.StateDir,
	})
	if err != nil {
		return 0, fmt.Errorf("server command template: %w", err)
	}

	if err := os.MkdirAll(l.StateDir, 0755); err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(l.StateDir+"/server.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	cmd := exec.Command("sh", "-c", "exec "+cmdline)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("sunucu başlatılamadı (%s): %w", cmdline, err)
	}

	pid := cmd.Process.Pid
	// Detach; the daemon outlives this invocation.
	_ = cmd.Process.Release()
	return pid, nil
}

// Stop sends SIGTERM to pid, waits up to a grace period for it to exit,
// then falls back to SIGKILL.
func (l *ExecLauncher) Stop(_ context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil // already gone
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if !processAlive(pid) {
			return nil
		}
		return proc.Kill()
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return proc.Kill()
}

// processAlive returns true if a process with the given PID currently exists.
// Uses kill(pid, 0): no signal is sent, only existence is checked.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
