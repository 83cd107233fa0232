package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/saucier/internal/batch"
	"github.com/melih-ucgun/saucier/internal/hooks"
	"github.com/melih-ucgun/saucier/internal/server"
	"github.com/melih-ucgun/saucier/internal/session"
	"github.com/melih-ucgun/saucier/internal/transport"
	"github.com/melih-ucgun/saucier/internal/upload"
)

var testCmd = &cobra.Command{
	Use:   "test host [host ...]",
	Short: "Point hosts at your local server for testing",
	Long: `Uploads the working tree to the local server and redirects the given
hosts' configuration-management agents to it. Each host is claimed with an
exclusive per-operator lock; a host someone else is already testing is
skipped, never taken over.`,
	Run: func(cmd *cobra.Command, args []string) {
		hosts := requireHosts(args)
		cfg := loadConfig(cmd)

		yes, _ := cmd.Flags().GetBool("yes")
		linkOnly, _ := cmd.Flags().GetBool("linkonly")
		really, _ := cmd.Flags().GetBool("really")
		forceUpload, _ := cmd.Flags().GetBool("force-upload")
		skipChecks, _ := cmd.Flags().GetBool("skip-repo-checks")
		skipPre, _ := cmd.Flags().GetBool("skip-pre-test-hook")
		skipPost, _ := cmd.Flags().GetBool("skip-post-test-hook")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		// The confirmation prompt is the only cancellation point; it runs
		// before anything mutates.
		if !yes {
			prompt := fmt.Sprintf("About to test %s against your local server. Continue? [y/N] ",
				strings.Join(hosts, ", "))
			if !confirm(os.Stdin, prompt) {
				pterm.Warning.Println("Aborted")
				os.Exit(1)
			}
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		handle := newHandle(cfg)

		if dryRun {
			pterm.Info.Println("Dry run: skipping upload, nothing will change")
		} else if linkOnly {
			if !really {
				pterm.Error.Println("--linkonly skips the upload and may link hosts to stale or absent content; pass --really to acknowledge")
				os.Exit(1)
			}
			pterm.Warning.Println("Skipping upload; hosts will see whatever the server currently holds")
			if err := handle.Start(ctx); err != nil {
				pterm.Error.Printf("Sunucu başlatılamadı: %v\n", err)
				os.Exit(1)
			}
		} else {
			pipeline := newPipeline(cfg, handle)
			err := pipeline.Run(ctx, upload.Options{
				Force:      forceUpload,
				SkipChecks: skipChecks || cfg.SkipRepoChecks,
			})
			if err != nil {
				pterm.Error.Printf("%v\n", err)
				os.Exit(1)
			}
		}

		hookSet := hooks.New(cfg.Hooks, cfg.Repo)
		if !skipPre {
			if err := hookSet.PreTest(ctx, dryRun, hosts); err != nil {
				pterm.Error.Printf("pre-test hook: %v\n", err)
				os.Exit(1)
			}
		}

		sess := session.New(cfg, transport.Dial, server.Port(cfg), dryRun)
		res := batch.NewCoordinator(concurrency).Run(ctx, hosts, sess.Test)

		if !skipPost {
			if err := hookSet.PostTest(ctx, dryRun, res.Succeeded); err != nil {
				pterm.Error.Printf("post-test hook: %v\n", err)
				os.Exit(1)
			}
		}

		if res.AllSucceeded() {
			pterm.Success.Printf("All %d hosts are now testing against %s:%d\n",
				len(hosts), cfg.ServerAddr, server.Port(cfg))
		}
		os.Exit(res.ExitCode())
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	testCmd.Flags().Bool("linkonly", false, "Link hosts without uploading (requires --really)")
	testCmd.Flags().Bool("really", false, "Acknowledge that --linkonly may serve stale content")
	testCmd.Flags().Bool("force-upload", false, "Restart the server for a guaranteed clean upload")
	testCmd.Flags().Bool("skip-repo-checks", false, "Skip the structural repo validation")
	testCmd.Flags().Bool("skip-pre-test-hook", false, "Skip the pre-test hook")
	testCmd.Flags().Bool("skip-post-test-hook", false, "Skip the post-test hook")
	testCmd.Flags().Bool("dry-run", false, "Show what would change without touching the hosts")
	testCmd.Flags().IntP("concurrency", "C", 1, "Number of hosts handled in parallel")
}
