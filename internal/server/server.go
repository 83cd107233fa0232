// Package server owns the local config-serving daemon: lifecycle, the
// deterministic per-operator port, and the persistent state record.
package server

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/melih-ucgun/saucier/internal/config"
)

// Handle represents the operator's local server across invocations.
type Handle struct {
	cfg      *config.Config
	store    *Store
	launcher Launcher

	// probe checks whether something accepts connections on the port.
	// Overridable in tests.
	probe func(port int) bool
}

func NewHandle(cfg *config.Config, launcher Launcher) *Handle {
	return &Handle{
		cfg:      cfg,
		store:    NewStore(cfg.StateDir),
		launcher: launcher,
		probe:    tcpProbe,
	}
}

// Port derives the deterministic per-operator port so two operators on a
// shared workstation never collide.
func Port(cfg *config.Config) int {
	h := fnv.New32a()
	h.Write([]byte(cfg.User))
	return cfg.PortBase + int(h.Sum32())%cfg.PortRange
}

// Probe reports whether the daemon recorded in stateDir is alive. It is a
// side-effect-free check usable without a fully configured handle.
func Probe(stateDir string) bool {
	st, err := NewStore(stateDir).Load()
	if err != nil {
		return false
	}
	return st.PID > 0 && processAlive(st.PID)
}

// Running reports whether the daemon is up.
func (h *Handle) Running() bool {
	return Probe(h.cfg.StateDir)
}

// Start launches the daemon if it is not already running. Idempotent:
// a running daemon is left untouched so incremental upload state survives.
// A launch failure is fatal to the invoking command; retry is the upload
// pipeline's concern, not the server's.
func (h *Handle) Start(ctx context.Context) error {
	if h.Running() {
		slog.Debug("server already running", slog.String("state_dir", h.cfg.StateDir))
		return nil
	}

	port := Port(h.cfg)
	pid, err := h.launcher.Start(ctx, port)
	if err != nil {
		return err
	}

	if err := h.waitReady(ctx, port); err != nil {
		// The daemon launched but never became ready. Kill it here: leaving
		// it would hold the port while the state still says "not running",
		// and the next start would spawn a duplicate.
		if serr := h.launcher.Stop(ctx, pid); serr != nil {
			slog.Warn("could not stop unready server", slog.Int("pid", pid), slog.String("error", serr.Error()))
		}
		return fmt.Errorf("sunucu %d portunda hazır olmadı: %w", port, err)
	}

	slog.Info("server started", slog.Int("port", port), slog.Int("pid", pid))
	return h.store.Update(func(st *State) {
		st.Port = port
		st.PID = pid
	})
}

// Stop shuts the daemon down. No-op if it is not running.
func (h *Handle) Stop(ctx context.Context) error {
	st, err := h.store.Load()
	if err != nil {
		return err
	}
	if st.PID <= 0 || !processAlive(st.PID) {
		slog.Debug("server not running, nothing to stop")
		return nil
	}
	if err := h.launcher.Stop(ctx, st.PID); err != nil {
		return err
	}
	slog.Info("server stopped", slog.Int("pid", st.PID))
	return h.store.Update(func(st *State) {
		st.PID = 0
	})
}

// Restart guarantees a clean daemon. Used when a partial prior upload may
// have left it in an undefined state that incremental repair cannot fix.
func (h *Handle) Restart(ctx context.Context) error {
	if err := h.Stop(ctx); err != nil {
		return err
	}
	return h.Start(ctx)
}

// RecordUpload stamps the state with a successful upload. ref may be empty
// (no-repo mode never records one).
func (h *Handle) RecordUpload(ref string) error {
	now := time.Now()
	return h.store.Update(func(st *State) {
		st.LastUploadTime = &now
		st.LastUploadID = uuid.New().String()
		if ref != "" {
			st.LatestUploadedRef = ref
		}
	})
}

// State returns the current persisted record.
func (h *Handle) State() (*State, error) {
	return h.store.Load()
}

// LastUploadTime returns the time of the last successful upload, if any.
func (h *Handle) LastUploadTime() (time.Time, bool) {
	st, err := h.store.Load()
	if err != nil || st.LastUploadTime == nil {
		return time.Time{}, false
	}
	return *st.LastUploadTime, true
}

// LatestUploadedRef returns the last uploaded revision marker, if any.
func (h *Handle) LatestUploadedRef() (string, bool) {
	st, err := h.store.Load()
	if err != nil || st.LatestUploadedRef == "" {
		return "", false
	}
	return st.LatestUploadedRef, true
}

// waitReady polls until the port accepts connections or the deadline passes.
func (h *Handle) waitReady(ctx context.Context, port int) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout after 30s")
		}
		if h.probe(port) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func tcpProbe(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
