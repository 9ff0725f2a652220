package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
	"github.com/iotlab-io/labwatch/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch an experiment run and follow it",
	Long: `Launch a single experiment run on the lab backend and follow it until it
completes. The pipeline phase is inferred from the scanner output.

Defaults come from the run section of the settings. Press Ctrl-C to detach;
the run keeps going on the backend and 'labwatch attach' picks it up again.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runFlags struct {
	mode    string
	network string
	output  string
	ports   string
	verbose bool
	test    bool
	detach  bool
	quiet   bool
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.mode, "mode", "m", "", "Pipeline mode: static or automl")
	f.StringVarP(&runFlags.network, "network", "n", "", "Target network in CIDR notation")
	f.StringVarP(&runFlags.output, "output", "o", "", "Report format: html, json or csv")
	f.StringVarP(&runFlags.ports, "ports", "p", "", "Comma-separated ports to scan (default: scanner's list)")
	f.BoolVar(&runFlags.verbose, "verbose", false, "Verbose scanner output")
	f.BoolVar(&runFlags.test, "test", false, "Run the scanner in test mode")
	f.BoolVarP(&runFlags.detach, "detach", "d", false, "Return right after the launch is accepted")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "Hide scanner output")
}

// runParameters merges flags over the configured run defaults.
func runParameters(s models.Settings) (models.RunParameters, error) {
	modeStr := firstNonEmpty(runFlags.mode, s.Run.Mode)
	mode, err := models.ParseMode(modeStr)
	if err != nil {
		return models.RunParameters{}, err
	}
	output, err := models.ParseOutputFormat(firstNonEmpty(runFlags.output, s.Run.Output))
	if err != nil {
		return models.RunParameters{}, err
	}
	ports, err := models.ParsePorts(runFlags.ports)
	if err != nil {
		return models.RunParameters{}, err
	}
	return models.RunParameters{
		Mode:    mode,
		Network: firstNonEmpty(runFlags.network, s.Run.Network),
		Output:  output,
		Ports:   ports,
		Verbose: runFlags.verbose,
		Test:    runFlags.test,
	}.Normalize(), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	params, err := runParameters(a.settings)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runFlags.detach {
		resp, err := a.client.RunExperiment(cmd.Context(), params)
		if err != nil {
			return fmt.Errorf("failed to launch experiment: %w", err)
		}
		if resp.Status == string(models.RunStatusError) {
			return &session.LaunchError{Kind: session.KindSingle, Message: firstNonEmpty(resp.Message, "rejected by backend")}
		}
		a.telemetry.Track(telemetry.EventRunStarted, map[string]any{"mode": string(params.Mode), "detached": true})
		fmt.Fprintln(out, paint(styleSuccess, "Experiment launched."))
		if resp.Command != "" {
			printField(out, "Command", resp.Command)
		}
		fmt.Fprintln(out, paint(styleHint, "Follow it with 'labwatch attach'."))
		return nil
	}

	return followRun(cmd.Context(), out, a, followOptions{quiet: runFlags.quiet}, func(t *session.Tracker) (*session.RunHandle, error) {
		h, err := t.Start(cmd.Context(), params)
		if err == nil {
			a.telemetry.Track(telemetry.EventRunStarted, map[string]any{"mode": string(params.Mode)})
		}
		return h, err
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
