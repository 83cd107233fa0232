// Package lock implements the cross-operator test lock.
//
// The lock lives on the tested host itself, so every operator's tooling sees
// the same registry without a central coordinator. The atomic primitive is a
// single mkdir: it either creates the lock directory or fails because another
// operator already holds it. Owner metadata is stored next to it as JSON.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/melih-ucgun/saucier/internal/transport"
)

// Lock, bir host üzerindeki aktif test oturumunun kaydıdır.
type Lock struct {
	Hostname   string    `json:"hostname"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock's validity window has passed.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && now.After(l.ExpiresAt)
}

// ConflictError is returned when another operator holds the lock. It carries
// the current owner's identity so the caller can report who to talk to.
type ConflictError struct {
	Hostname string
	Owner    string
	Since    time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already being tested by %s (since %s)",
		e.Hostname, e.Owner, e.Since.Format(time.RFC822))
}

// IsConflict reports whether err is a lock conflict and returns it typed.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Registry manages the lock directory on a remote host.
type Registry struct {
	Dir string // remote lock directory, e.g. /var/lock/saucier
	Now func() time.Time
}

func NewRegistry(dir string) *Registry {
	return &Registry{Dir: dir, Now: time.Now}
}

func (r *Registry) ownerPath() string {
	return path.Join(r.Dir, "owner.json")
}

// Acquire claims the host for owner with the given validity window.
// Re-acquiring a lock we already own refreshes its expiry. An expired lock
// held by someone else is reaped and the claim retried through the same
// atomic primitive, so two reapers cannot both win.
func (r *Registry) Acquire(ctx context.Context, tr transport.Transport, hostname, owner string, ttl time.Duration) (*Lock, error) {
	claimed, err := r.claim(ctx, tr)
	if err != nil {
		return nil, err
	}
	if claimed {
		return r.write(ctx, tr, hostname, owner, ttl)
	}

	cur, err := r.Current(ctx, tr, hostname)
	if err != nil {
		return nil, err
	}
	now := r.Now()

	switch {
	case cur == nil:
		// Directory exists but the metadata never landed. Claim half done
		// by a crashed run; reap and retry once.
	case cur.Owner == owner:
		return r.write(ctx, tr, hostname, owner, ttl)
	case cur.Expired(now):
		// Stale session, fall through to reap.
	default:
		return nil, &ConflictError{Hostname: hostname, Owner: cur.Owner, Since: cur.AcquiredAt}
	}

	if err := r.Release(ctx, tr, hostname); err != nil {
		return nil, err
	}
	claimed, err = r.claim(ctx, tr)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Someone else won the re-claim race.
		cur, err := r.Current(ctx, tr, hostname)
		if err != nil || cur == nil {
			return nil, &ConflictError{Hostname: hostname, Owner: "unknown", Since: now}
		}
		return nil, &ConflictError{Hostname: hostname, Owner: cur.Owner, Since: cur.AcquiredAt}
	}
	return r.write(ctx, tr, hostname, owner, ttl)
}

// Release removes the lock. Releasing an absent lock is a no-op.
func (r *Registry) Release(ctx context.Context, tr transport.Transport, _ string) error {
	_, err := tr.Execute(ctx, fmt.Sprintf("rm -rf '%s'", r.Dir))
	return err
}

// Current returns the lock currently recorded on the host, or nil.
func (r *Registry) Current(ctx context.Context, tr transport.Transport, _ string) (*Lock, error) {
	data, err := tr.ReadFile(ctx, r.ownerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("lock metadata on %s is corrupt: %w", r.ownerPath(), err)
	}
	return &l, nil
}

// claim runs the atomic mkdir. The command always exits 0; the marker in the
// output tells us whether we created the directory.
func (r *Registry) claim(ctx context.Context, tr transport.Transport) (bool, error) {
	out, err := tr.Execute(ctx, fmt.Sprintf("mkdir '%s' 2>/dev/null && echo CLAIMED || echo HELD", r.Dir))
	if err != nil {
		return false, fmt.Errorf("lock claim failed: %w", err)
	}
	return strings.TrimSpace(out) == "CLAIMED", nil
}

func (r *Registry) write(ctx context.Context, tr transport.Transport, hostname, owner string, ttl time.Duration) (*Lock, error) {
	now := r.Now()
	l := &Lock{
		Hostname:   hostname,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	if err := tr.WriteFile(ctx, r.ownerPath(), data, 0644); err != nil {
		return nil, fmt.Errorf("lock metadata yazılamadı: %w", err)
	}
	return l, nil
}
