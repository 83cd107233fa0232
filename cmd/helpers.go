package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/saucier/internal/batch"
	"github.com/melih-ucgun/saucier/internal/changeset"
	"github.com/melih-ucgun/saucier/internal/config"
	"github.com/melih-ucgun/saucier/internal/server"
	"github.com/melih-ucgun/saucier/internal/session"
	"github.com/melih-ucgun/saucier/internal/transport"
	"github.com/melih-ucgun/saucier/internal/upload"
)

// latestRevision resolves the checkout's committed revision for the state
// record stamped after a successful upload.
func latestRevision(cfg *config.Config) (string, error) {
	repo, err := changeset.Open(cfg)
	if err != nil {
		return "", err
	}
	return repo.LatestRevision()
}

// loadConfig reads the config file named by the persistent flag.
// Errors are fatal for every command, so exit here.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		pterm.Error.Printf("Konfigürasyon hatası: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newHandle(cfg *config.Config) *server.Handle {
	return server.NewHandle(cfg, &server.ExecLauncher{
		Command:  cfg.ServerCommand,
		StateDir: cfg.StateDir,
	})
}

// newPipeline wires the upload pipeline against the real server handle.
func newPipeline(cfg *config.Config, handle *server.Handle) *upload.Pipeline {
	p := &upload.Pipeline{
		Server: handle,
		Uploader: &upload.ExecUploader{
			Command: cfg.UploadCommand,
			Repo:    cfg.Repo,
			Port:    server.Port(cfg),
		},
	}
	if !cfg.NoRepo {
		p.CheckRepo = func() error { return repoCheck(cfg) }
		p.ResolveRef = func() (string, error) { return latestRevision(cfg) }
	}
	return p
}

// repoCheck is the structural pre-upload validation: the repo and at least
// one cookbook directory must exist.
func repoCheck(cfg *config.Config) error {
	if _, err := os.Stat(cfg.Repo); err != nil {
		return fmt.Errorf("repo path %s: %w", cfg.Repo, err)
	}
	for _, dir := range cfg.CookbookDirs {
		if _, err := os.Stat(filepath.Join(cfg.Repo, dir)); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no cookbook directory found under %s (checked %s)",
		cfg.Repo, strings.Join(cfg.CookbookDirs, ", "))
}

// confirm reads one line and accepts only an affirmative short form.
// Anything else aborts.
func confirm(in io.Reader, prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// requireHosts enforces the "hosts are a usage error when absent" rule.
func requireHosts(args []string) []string {
	if len(args) == 0 {
		pterm.Error.Println("No hosts given. Usage: saucier <command> host1 [host2 ...]")
		os.Exit(1)
	}
	return args
}

// runHostOp is the shared shape of untest/runchef/keeptesting: resolve the
// hosts, loop independently, report per host. Unlike test there is no
// confirmation, upload, hook or tri-state exit taxonomy here; only a hard
// failure makes the command exit non-zero.
func runHostOp(cmd *cobra.Command, args []string, pick func(*session.Session) batch.Runner) {
	hosts := requireHosts(args)
	cfg := loadConfig(cmd)
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sess := session.New(cfg, transport.Dial, server.Port(cfg), dryRun)
	res := batch.NewCoordinator(concurrency).Run(ctx, hosts, pick(sess))

	if len(res.Failures) > 0 {
		os.Exit(1)
	}
}

func addHostOpFlags(c *cobra.Command) {
	c.Flags().Bool("dry-run", false, "Show what would change without touching the hosts")
	c.Flags().IntP("concurrency", "C", 1, "Number of hosts handled in parallel")
}
