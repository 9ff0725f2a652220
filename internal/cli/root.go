// Package cli implements the labwatch CLI commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "labwatch",
	Short: "Track IoT vulnerability lab experiments from the terminal",
	Long: `Labwatch launches and follows experiment runs on an IoT vulnerability lab
backend. It infers the scanner's pipeline phase from its output, tracks single
runs and batches, and merges the lab containers' logs into one view.

Run 'labwatch dashboard' for the interactive view.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: teardownApp,
}

// Global flags that override configuration keys.
var flagKeys = map[string]string{
	"api-url":    "api.url",
	"timeout":    "api.timeout",
	"log-level":  "log.level",
	"log-format": "log.format",
	"retry":      "poll.retry",
}

var (
	settingsPath string
	noColor      bool
)

// Execute runs the CLI. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("command failed")
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("api-url", "", "Backend base URL (default http://localhost:8000)")
	pf.Duration("timeout", 0, "HTTP request timeout")
	pf.String("log-level", "", "Log level: trace, debug, info, warn, error")
	pf.String("log-format", "", "Log format: console or json")
	pf.String("retry", "", "Retry policy for failed polls: fixed or exponential")
	pf.StringVar(&settingsPath, "config", "", "Settings file (default ~/.labwatch/settings.yaml)")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")

	// Add subcommands (alphabetical)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(phasesCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(transcriptsCmd)
	rootCmd.AddCommand(versionCmd)
}
