package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/saucier/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the local config server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		if err := newHandle(cfg).Start(ctx); err != nil {
			pterm.Error.Printf("Sunucu başlatılamadı: %v\n", err)
			os.Exit(1)
		}
		pterm.Success.Printf("Server running on port %d\n", server.Port(cfg))
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the local config server",
	Long:  `Stops and starts the server, guaranteeing a clean daemon state.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		if err := newHandle(cfg).Restart(ctx); err != nil {
			pterm.Error.Printf("Sunucu yeniden başlatılamadı: %v\n", err)
			os.Exit(1)
		}
		pterm.Success.Printf("Server restarted on port %d\n", server.Port(cfg))
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the local config server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		if err := newHandle(cfg).Stop(ctx); err != nil {
			pterm.Error.Printf("Sunucu durdurulamadı: %v\n", err)
			os.Exit(1)
		}
		pterm.Success.Println("Server stopped")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local server state",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)

		if !server.Probe(cfg.StateDir) {
			printStatus(os.Stdout, false, nil)
			return
		}

		handle := newHandle(cfg)
		st, err := handle.State()
		if err != nil {
			pterm.Error.Printf("State okunamadı: %v\n", err)
			os.Exit(1)
		}
		printStatus(os.Stdout, true, st)
	},
}

// printStatus renders the status report. Goes to stdout so the answer stays
// pipeable; st may be nil when the daemon is down.
func printStatus(w io.Writer, running bool, st *server.State) {
	if !running {
		fmt.Fprintln(w, "not running")
		return
	}

	fmt.Fprintf(w, "running on port %d (pid %d)\n", st.Port, st.PID)
	if st.LastUploadTime == nil {
		fmt.Fprintln(w, "no cookbooks/roles uploads found")
		return
	}
	fmt.Fprintf(w, "last upload: %s", st.LastUploadTime.Format(time.RFC822))
	if st.LastUploadID != "" {
		fmt.Fprintf(w, " (id %s)", st.LastUploadID)
	}
	fmt.Fprintln(w)
	if st.LatestUploadedRef != "" {
		fmt.Fprintf(w, "uploaded revision: %s\n", st.LatestUploadedRef)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}
