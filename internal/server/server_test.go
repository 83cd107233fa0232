package server

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/melih-ucgun/saucier/internal/config"
)

type fakeLauncher struct {
	pid      int
	startErr error

	starts  int
	stopped []int
}

func (f *fakeLauncher) Start(context.Context, int) (int, error) {
	f.starts++
	if f.startErr != nil {
		return 0, f.startErr
	}
	return f.pid, nil
}

func (f *fakeLauncher) Stop(_ context.Context, pid int) error {
	f.stopped = append(f.stopped, pid)
	return nil
}

func testHandle(t *testing.T, launcher Launcher) (*Handle, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.User = "alice"
	cfg.StateDir = t.TempDir()
	return &Handle{
		cfg:      cfg,
		store:    NewStore(cfg.StateDir),
		launcher: launcher,
		probe:    func(int) bool { return true },
	}, cfg
}

func TestPortIsDeterministicAndInRange(t *testing.T) {
	cfg := config.Default()
	cfg.User = "alice"
	cfg.PortBase = 4000
	cfg.PortRange = 1000

	p := Port(cfg)
	assert.Equal(t, p, Port(cfg))
	assert.GreaterOrEqual(t, p, 4000)
	assert.Less(t, p, 5000)
}

func TestStartRecordsPortAndPID(t *testing.T) {
	// The test process's own pid keeps the liveness probe honest.
	fl := &fakeLauncher{pid: os.Getpid()}
	h, cfg := testHandle(t, fl)

	assert.NoError(t, h.Start(context.Background()))

	st, err := h.State()
	assert.NoError(t, err)
	assert.Equal(t, Port(cfg), st.Port)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.True(t, h.Running())
}

func TestStartIsIdempotent(t *testing.T) {
	fl := &fakeLauncher{pid: os.Getpid()}
	h, _ := testHandle(t, fl)

	assert.NoError(t, h.Start(context.Background()))
	assert.NoError(t, h.Start(context.Background()))

	// A running daemon is left untouched.
	assert.Equal(t, 1, fl.starts)
}

func TestStartStopsDaemonThatNeverBecomesReady(t *testing.T) {
	fl := &fakeLauncher{pid: 4242}
	h, _ := testHandle(t, fl)
	h.probe = func(int) bool { return false }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, h.Start(ctx))

	// The launched process must not be orphaned holding the port.
	assert.Equal(t, []int{4242}, fl.stopped)

	st, err := h.State()
	assert.NoError(t, err)
	assert.Equal(t, 0, st.PID)
	assert.False(t, h.Running())
}

func TestStartPropagatesLaunchFailure(t *testing.T) {
	fl := &fakeLauncher{startErr: errors.New("chef-zero: command not found")}
	h, _ := testHandle(t, fl)

	assert.Error(t, h.Start(context.Background()))
	assert.False(t, h.Running())
}

func TestStopClearsPID(t *testing.T) {
	fl := &fakeLauncher{pid: os.Getpid()}
	h, _ := testHandle(t, fl)

	assert.NoError(t, h.Start(context.Background()))
	assert.NoError(t, h.Stop(context.Background()))

	assert.Equal(t, []int{os.Getpid()}, fl.stopped)
	assert.False(t, h.Running())

	// Stopping again is a no-op.
	assert.NoError(t, h.Stop(context.Background()))
	assert.Len(t, fl.stopped, 1)
}

func TestRestartCyclesTheDaemon(t *testing.T) {
	fl := &fakeLauncher{pid: os.Getpid()}
	h, _ := testHandle(t, fl)

	assert.NoError(t, h.Start(context.Background()))
	assert.NoError(t, h.Restart(context.Background()))

	assert.Equal(t, 2, fl.starts)
	assert.Len(t, fl.stopped, 1)
}

func TestRecordUpload(t *testing.T) {
	h, _ := testHandle(t, &fakeLauncher{pid: os.Getpid()})

	_, ok := h.LastUploadTime()
	assert.False(t, ok)

	assert.NoError(t, h.RecordUpload("abc123"))

	uploadedAt, ok := h.LastUploadTime()
	assert.True(t, ok)
	assert.False(t, uploadedAt.IsZero())

	ref, ok := h.LatestUploadedRef()
	assert.True(t, ok)
	assert.Equal(t, "abc123", ref)

	st, err := h.State()
	assert.NoError(t, err)
	firstID := st.LastUploadID
	assert.NotEmpty(t, firstID)

	// A refless upload (no-repo mode) stamps time and id but keeps the
	// previous revision marker.
	assert.NoError(t, h.RecordUpload(""))
	ref, ok = h.LatestUploadedRef()
	assert.True(t, ok)
	assert.Equal(t, "abc123", ref)

	st, err = h.State()
	assert.NoError(t, err)
	assert.NotEqual(t, firstID, st.LastUploadID)
}

func TestProbeWithoutState(t *testing.T) {
	assert.False(t, Probe(t.TempDir()))
}
