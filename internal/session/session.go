// Package session implements the per-host test protocol: claim the host,
// point its agent at the operator's local server, keep or revert the setup.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/pterm/pterm"

	"github.com/melih-ucgun/saucier/internal/config"
	"github.com/melih-ucgun/saucier/internal/lock"
	"github.com/melih-ucgun/saucier/internal/render"
	"github.com/melih-ucgun/saucier/internal/transport"
)

// clientConfigTemplate is what the host's agent reads while under test.
// It redirects the agent to the operator's server.
const clientConfigTemplate = `# Generated by saucier. Do not edit; run untest to restore production.
log_level        :info
chef_server_url  "http://{{.ServerAddr}}:{{.Port}}"
node_name        "{{.Hostname}}"
`

const (
	testConfigName = "client-saucier.rb"
	prodConfigName = "client-prod.rb"
	agentConfig    = "client.rb"
)

// Session drives the protocol for one batch of hosts. Hosts are independent;
// the session itself carries only read-mostly configuration.
type Session struct {
	cfg    *config.Config
	dial   transport.DialFunc
	locks  *lock.Registry
	port   int
	dryRun bool
}

func New(cfg *config.Config, dial transport.DialFunc, port int, dryRun bool) *Session {
	return &Session{
		cfg:    cfg,
		dial:   dial,
		locks:  lock.NewRegistry(cfg.RemoteLockDir),
		port:   port,
		dryRun: dryRun,
	}
}

// Test claims the host and points its agent at the local server.
// A lock held by another operator yields a conflict outcome; it is never
// overridden.
func (s *Session) Test(ctx context.Context, host string) Outcome {
	tr, err := s.connect(ctx, host)
	if err != nil {
		return failed(host, err)
	}
	defer tr.Close()

	desired, err := s.renderClientConfig(host)
	if err != nil {
		return failed(host, err)
	}
	confPath := path.Join(s.cfg.RemoteConfDir, testConfigName)

	if s.dryRun {
		// No mutation in dry-run: report who holds the lock, show the
		// config rewrite, change nothing.
		cur, err := s.locks.Current(ctx, tr, host)
		if err != nil {
			return failed(host, err)
		}
		if cur != nil && cur.Owner != s.cfg.User && !cur.Expired(s.locks.Now()) {
			return conflict(host, cur.Owner)
		}
		current := ""
		if data, err := tr.ReadFile(ctx, confPath); err == nil {
			current = string(data)
		}
		pterm.Printf("[%s] would write %s:\n%s", host, confPath, generateDiff(current, desired))
		return ok(host)
	}

	l, err := s.locks.Acquire(ctx, tr, host, s.cfg.User, s.cfg.TestingTime.Std())
	if err != nil {
		if ce, isConflict := lock.IsConflict(err); isConflict {
			return conflict(host, ce.Owner)
		}
		return failed(host, err)
	}

	if err := tr.WriteFile(ctx, confPath, []byte(desired), 0644); err != nil {
		return failed(host, fmt.Errorf("client config yazılamadı: %w", err))
	}
	if err := s.linkAgentConfig(ctx, tr, testConfigName); err != nil {
		return failed(host, err)
	}

	slog.Info("host linked to local server",
		slog.String("host", host),
		slog.String("server", fmt.Sprintf("%s:%d", s.cfg.ServerAddr, s.port)),
		slog.Time("expires", l.ExpiresAt))
	return ok(host)
}

// Untest releases the host back to its production configuration source.
// Idempotent: untesting a host that is not under test succeeds quietly.
func (s *Session) Untest(ctx context.Context, host string) Outcome {
	tr, err := s.connect(ctx, host)
	if err != nil {
		return failed(host, err)
	}
	defer tr.Close()

	if s.dryRun {
		pterm.Printf("[%s] would restore production config and release the lock\n", host)
		return ok(host)
	}

	if err := s.linkAgentConfig(ctx, tr, prodConfigName); err != nil {
		return failed(host, err)
	}
	if err := tr.Remove(ctx, path.Join(s.cfg.RemoteConfDir, testConfigName)); err != nil {
		return failed(host, err)
	}
	if err := s.locks.Release(ctx, tr, host); err != nil {
		return failed(host, err)
	}

	slog.Info("host restored to production", slog.String("host", host))
	return ok(host)
}

// Run triggers one convergence pass against whatever source the host is
// currently configured for. It neither takes nor requires the lock.
func (s *Session) Run(ctx context.Context, host string) Outcome {
	tr, err := s.connect(ctx, host)
	if err != nil {
		return failed(host, err)
	}
	defer tr.Close()

	if s.dryRun {
		pterm.Printf("[%s] would run: %s\n", host, s.cfg.ChefClientCommand)
		return ok(host)
	}

	out, err := tr.Execute(ctx, s.cfg.ChefClientCommand)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			pterm.Printf("[%s] %s\n", host, line)
		}
	}
	if err != nil {
		return failed(host, fmt.Errorf("convergence run failed: %w", err))
	}
	return ok(host)
}

// KeepTesting extends the lock's validity without touching configuration,
// so an idle session does not expire under the operator.
func (s *Session) KeepTesting(ctx context.Context, host string) Outcome {
	tr, err := s.connect(ctx, host)
	if err != nil {
		return failed(host, err)
	}
	defer tr.Close()

	if s.dryRun {
		pterm.Printf("[%s] would extend the test lock by %s\n", host, s.cfg.TestingTime.Std())
		return ok(host)
	}

	// Extending only refreshes an existing session. Claiming a host nobody
	// is testing would silently start one.
	cur, err := s.locks.Current(ctx, tr, host)
	if err != nil {
		return failed(host, err)
	}
	if cur == nil {
		return failed(host, fmt.Errorf("no active test session on %s; nothing to extend", host))
	}

	l, err := s.locks.Acquire(ctx, tr, host, s.cfg.User, s.cfg.TestingTime.Std())
	if err != nil {
		if ce, isConflict := lock.IsConflict(err); isConflict {
			return conflict(host, ce.Owner)
		}
		return failed(host, err)
	}

	slog.Info("test lock extended", slog.String("host", host), slog.Time("expires", l.ExpiresAt))
	return ok(host)
}

func (s *Session) connect(ctx context.Context, host string) (transport.Transport, error) {
	return s.dial(ctx, transport.HostConfig{
		Name:     host,
		Address:  host,
		User:     s.cfg.SSH.User,
		Port:     s.cfg.SSH.Port,
		KeyPath:  s.cfg.SSH.KeyPath,
		Password: s.cfg.SSH.Password,
	})
}

func (s *Session) renderClientConfig(host string) (string, error) {
	return render.Command(clientConfigTemplate, map[string]interface{}{
		"ServerAddr": s.cfg.ServerAddr,
		"Port":       s.port,
		"Hostname":   host,
	})
}

// linkAgentConfig flips the agent's config symlink to the named file.
func (s *Session) linkAgentConfig(ctx context.Context, tr transport.Transport, target string) error {
	cmd := fmt.Sprintf("ln -sf '%s' '%s'", target, path.Join(s.cfg.RemoteConfDir, agentConfig))
	if _, err := tr.Execute(ctx, cmd); err != nil {
		return fmt.Errorf("agent config yönlendirilemedi: %w", err)
	}
	return nil
}
