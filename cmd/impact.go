package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/saucier/internal/changeset"
	"github.com/melih-ucgun/saucier/internal/hooks"
)

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Show which roles are impacted by your working-copy changes",
	Long: `Diffs the repository against its start reference, scopes the changed
paths to the cookbook/role/databag directories and maps them to impacted
role identifiers.`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		if err := checkImpactOutput(asJSON); err != nil {
			pterm.Error.Printf("%v\n", err)
			os.Exit(1)
		}

		cfg := loadConfig(cmd)
		if cfg.NoRepo {
			pterm.Error.Println("impact needs a repository; no_repo is set")
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		repo, err := changeset.Open(cfg)
		if err != nil {
			pterm.Error.Printf("%v\n", err)
			os.Exit(1)
		}

		start, err := repo.DefaultStartRef()
		if err != nil {
			pterm.Error.Printf("start reference çözümlenemedi: %v\n", err)
			os.Exit(1)
		}

		cs, err := changeset.Compute(repo, start, cfg.VCS.EndRef, changeset.DirFilters{
			CookbookDirs: cfg.CookbookDirs,
			RoleDir:      cfg.RoleDir,
			DatabagDir:   cfg.DatabagDir,
		}, cfg.Repo, cfg.TrackSymlinks)
		if err != nil {
			pterm.Error.Printf("changeset hesaplanamadı: %v\n", err)
			os.Exit(1)
		}

		hookSet := hooks.New(cfg.Hooks, cfg.Repo)

		roles, handled, err := hookSet.FindRoles(ctx, cs)
		if err != nil {
			pterm.Error.Printf("impact resolver: %v\n", err)
			os.Exit(1)
		}
		if !handled {
			roles = cs.ImpactedRoles()
		}

		roles, err = hookSet.PostImpact(ctx, roles)
		if err != nil {
			pterm.Error.Printf("post-impact hook: %v\n", err)
			os.Exit(1)
		}

		printed, err := hookSet.PrintImpact(ctx, roles)
		if err != nil {
			pterm.Error.Printf("print-impact hook: %v\n", err)
			os.Exit(1)
		}
		if printed {
			return
		}

		// Roles go to stdout so the list stays pipeable.
		if len(roles) == 0 {
			fmt.Println("No impacted roles found.")
			return
		}
		fmt.Println("Impacted roles:")
		for _, role := range roles {
			fmt.Printf("\t%s\n", role)
		}
	},
}

// checkImpactOutput rejects output formats we do not produce. Runs before
// any repository work so a scripting caller never sees partial output.
func checkImpactOutput(asJSON bool) error {
	if asJSON {
		return errors.New("json output is not implemented yet")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(impactCmd)
	impactCmd.Flags().Bool("json", false, "Emit JSON (not implemented yet)")
}
