package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/saucier/internal/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Push the working tree to the local server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		force, _ := cmd.Flags().GetBool("force-upload")
		skipChecks, _ := cmd.Flags().GetBool("skip-repo-checks")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		pipeline := newPipeline(cfg, newHandle(cfg))
		err := pipeline.Run(ctx, upload.Options{
			Force:      force,
			SkipChecks: skipChecks || cfg.SkipRepoChecks,
		})
		if err != nil {
			pterm.Error.Printf("%v\n", err)
			os.Exit(1)
		}
		pterm.Success.Println("Upload complete")
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().Bool("force-upload", false, "Restart the server for a guaranteed clean upload")
	uploadCmd.Flags().Bool("skip-repo-checks", false, "Skip the structural repo validation")
}
