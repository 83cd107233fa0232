package cmd

import (
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/saucier/internal/batch"
	"github.com/melih-ucgun/saucier/internal/session"
)

var runchefCmd = &cobra.Command{
	Use:   "runchef host [host ...]",
	Short: "Trigger one convergence run on the hosts",
	Long: `Runs the configuration-management agent once on each host, against
whatever source the host is currently configured for.`,
	Run: func(cmd *cobra.Command, args []string) {
		runHostOp(cmd, args, func(s *session.Session) batch.Runner {
			return s.Run
		})
	},
}

func init() {
	rootCmd.AddCommand(runchefCmd)
	addHostOpFlags(runchefCmd)
}
