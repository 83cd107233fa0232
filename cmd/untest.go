package cmd

import (
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/saucier/internal/batch"
	"github.com/melih-ucgun/saucier/internal/session"
)

var untestCmd = &cobra.Command{
	Use:   "untest host [host ...]",
	Short: "Restore hosts to their production configuration source",
	Run: func(cmd *cobra.Command, args []string) {
		runHostOp(cmd, args, func(s *session.Session) batch.Runner {
			return s.Untest
		})
	},
}

func init() {
	rootCmd.AddCommand(untestCmd)
	addHostOpFlags(untestCmd)
}
