// Package hooks runs the operator-configured shell hooks around the test
// batch and the impact analysis. An empty command means the hook is not
// configured and the default behavior applies.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/melih-ucgun/saucier/internal/changeset"
	"github.com/melih-ucgun/saucier/internal/config"
	"github.com/melih-ucgun/saucier/internal/render"
)

// Set bundles the configured hook commands for one invocation.
type Set struct {
	cfg  config.Hooks
	repo string
}

func New(cfg config.Hooks, repoPath string) *Set {
	return &Set{cfg: cfg, repo: repoPath}
}

// PreTest runs before the per-host loop. The command template receives
// {{.DryRun}}, {{.Repo}} and {{.Hosts}}.
func (s *Set) PreTest(ctx context.Context, dryRun bool, hosts []string) error {
	return s.runHostHook(ctx, s.cfg.PreTest, dryRun, hosts)
}

// PostTest runs after the whole batch with the successfully tested hosts.
func (s *Set) PostTest(ctx context.Context, dryRun bool, tested []string) error {
	return s.runHostHook(ctx, s.cfg.PostTest, dryRun, tested)
}

// FindRoles delegates impact resolution to an external command. The
// changeset is written to its stdin as JSON; one role per stdout line.
// handled is false when no resolver is configured.
func (s *Set) FindRoles(ctx context.Context, cs *changeset.Changeset) (roles []string, handled bool, err error) {
	if s.cfg.FindRoles == "" {
		return nil, false, nil
	}
	payload, err := json.Marshal(cs)
	if err != nil {
		return nil, true, err
	}
	out, err := s.run(ctx, s.cfg.FindRoles, nil, payload)
	if err != nil {
		return nil, true, err
	}
	return lines(out), true, nil
}

// PostImpact post-processes the resolved roles (e.g. mapping them to
// hostnames). Roles go in on stdin, final roles come out one per line.
func (s *Set) PostImpact(ctx context.Context, roles []string) ([]string, error) {
	if s.cfg.PostImpact == "" {
		return roles, nil
	}
	out, err := s.run(ctx, s.cfg.PostImpact, nil, []byte(strings.Join(roles, "\n")))
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// PrintImpact lets a hook fully own presentation. Returns true when the
// hook ran, which suppresses the default printing.
func (s *Set) PrintImpact(ctx context.Context, roles []string) (bool, error) {
	if s.cfg.PrintImpact == "" {
		return false, nil
	}
	if _, err := s.run(ctx, s.cfg.PrintImpact, nil, []byte(strings.Join(roles, "\n"))); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Set) runHostHook(ctx context.Context, command string, dryRun bool, hosts []string) error {
	if command == "" {
		return nil
	}
	data := map[string]interface{}{
		"DryRun": dryRun,
		"Repo":   s.repo,
		"Hosts":  strings.Join(hosts, " "),
	}
	_, err := s.run(ctx, command, data, nil)
	return err
}

func (s *Set) run(ctx context.Context, command string, data map[string]interface{}, stdin []byte) (string, error) {
	cmdline := command
	if data != nil {
		rendered, err := render.Command(command, data)
		if err != nil {
			return "", fmt.Errorf("hook template: %w", err)
		}
		cmdline = rendered
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = s.repo
	cmd.Stderr = os.Stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("hook failed (%s): %w", cmdline, err)
	}
	return string(out), nil
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
