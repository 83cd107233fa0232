// Package upload pushes the working tree to the local server and owns the
// classified-retry recovery policy around the push.
package upload

import (
	"context"
	"fmt"
	"log/slog"
)

// Server is the slice of the server handle the pipeline drives.
type Server interface {
	Start(ctx context.Context) error
	Restart(ctx context.Context) error
	RecordUpload(ref string) error
}

// Options mirrors the upload command's flags.
type Options struct {
	SkipChecks bool
	Force      bool
}

// FatalError is a terminal upload failure: either the failure did not match
// a transient signature, or the single forced-restart retry failed too.
type FatalError struct {
	Err     error
	Retried bool
}

func (e *FatalError) Error() string {
	if e.Retried {
		return fmt.Sprintf("upload failed again after forced restart: %v", e.Err)
	}
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Pipeline wires the server handle, the external uploader and the repo
// collaborators together.
type Pipeline struct {
	Server   Server
	Uploader Uploader

	// CheckRepo validates the repo structure before pushing; nil disables it
	// (no-repo mode).
	CheckRepo func() error

	// ResolveRef returns the revision marker to stamp on success; nil in
	// no-repo mode, which then never records one.
	ResolveRef func() (string, error)
}

// Run performs one upload. force guarantees a clean daemon via restart;
// otherwise the idempotent start preserves existing state for an
// incremental push. A failure matching a transient signature is retried
// exactly once with force; a second failure is terminal regardless of
// pattern. State is stamped only on success.
func (p *Pipeline) Run(ctx context.Context, opts Options) error {
	if opts.Force {
		if err := p.Server.Restart(ctx); err != nil {
			return err
		}
	} else {
		if err := p.Server.Start(ctx); err != nil {
			return err
		}
	}

	if !opts.SkipChecks && p.CheckRepo != nil {
		if err := p.CheckRepo(); err != nil {
			return err
		}
	}

	if err := p.Uploader.Upload(ctx); err != nil {
		if !Transient(err) {
			return &FatalError{Err: err}
		}
		// Known daemon-corruption signature: retrying against the same
		// daemon would reproduce the failure, so force a clean restart.
		slog.Warn("transient upload failure, retrying once with a clean server", slog.String("error", err.Error()))
		if rerr := p.Server.Restart(ctx); rerr != nil {
			return rerr
		}
		if err := p.Uploader.Upload(ctx); err != nil {
			return &FatalError{Err: err, Retried: true}
		}
	}

	var ref string
	if p.ResolveRef != nil {
		r, err := p.ResolveRef()
		if err != nil {
			slog.Warn("could not resolve uploaded revision", slog.String("error", err.Error()))
		} else {
			ref = r
		}
	}
	return p.Server.RecordUpload(ref)
}
