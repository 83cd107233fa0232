package cmd

import (
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/saucier/internal/batch"
	"github.com/melih-ucgun/saucier/internal/session"
)

var keeptestingCmd = &cobra.Command{
	Use:   "keeptesting host [host ...]",
	Short: "Extend the test lock on the hosts",
	Long:  `Refreshes the lock validity so an idle test session does not expire.`,
	Run: func(cmd *cobra.Command, args []string) {
		runHostOp(cmd, args, func(s *session.Session) batch.Runner {
			return s.KeepTesting
		})
	},
}

func init() {
	rootCmd.AddCommand(keeptestingCmd)
	addHostOpFlags(keeptestingCmd)
}
