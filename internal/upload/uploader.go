package upload

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/melih-ucgun/saucier/internal/render"
)

// Uploader pushes the working tree to the local server. The real push is
// delegated to an external repo-aware tool; the pipeline only owns recovery.
type Uploader interface {
	Upload(ctx context.Context) error
}

// ExecUploader runs the configured upload command. The template receives
// {{.Repo}} and {{.Port}}.
type ExecUploader struct {
	Command string
	Repo    string
	Port    int
}

var _ Uploader = (*ExecUploader)(nil)

func (u *ExecUploader) Upload(ctx context.Context) error {
	cmdline, err := render.Command(u.Command, map[string]interface{}{
		"Repo": u.Repo,
		"Port": u.Port,
	})
	if err != nil {
		return fmt.Errorf("upload command template: %w", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = u.Repo
	out, err := cmd.CombinedOutput()
	if err != nil {
		// The tool's output carries the daemon's failure message; the retry
		// classification matches against it, so keep it in the error.
		return fmt.Errorf("upload command failed: %w: %s", err, string(out))
	}
	return nil
}
