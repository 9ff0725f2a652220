package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iotlab-io/labwatch/internal/models"
)

var settingsShowFlags struct {
	file bool
}

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Aliases: []string{"config"},
	Short:   "Show or change labwatch settings",
	Long: `Settings live in ~/.labwatch/settings.yaml. Values are merged from, in
increasing precedence: built-in defaults, the settings file, LABWATCH_*
environment variables (LABWATCH_POLL_MAX_BACKOFF sets poll.max_backoff),
and command-line flags.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show the merged settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettingsShow,
}

var settingsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the merged settings to a file usable with --config",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsExport,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a setting to the settings file",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the settings file and return to defaults",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReset,
}

func init() {
	settingsShowCmd.Flags().BoolVar(&settingsShowFlags.file, "file", false, "Show only the settings file over the defaults, ignoring environment and flags")

	settingsCmd.AddCommand(settingsExportCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsShowCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if settingsShowFlags.file {
		s, err := a.cfg.FileSettings()
		if err != nil {
			return err
		}
		return printSettingsFile(out, s)
	}

	if len(args) == 1 {
		v := a.cfg.Value(args[0])
		if v == nil {
			return fmt.Errorf("unknown setting %q", args[0])
		}
		fmt.Fprintln(out, cast.ToString(v))
		return nil
	}

	fmt.Fprintf(out, "%s %s\n\n", paint(styleBrand, "Settings"), paint(styleHint, "("+a.cfg.Path()+")"))
	for _, key := range a.cfg.Keys() {
		value := cast.ToString(a.cfg.Value(key))
		if key == "telemetry.api_key" && value != "" {
			value = "********"
		}
		fmt.Fprintf(out, "  %s %s\n", paint(styleLabel, fmt.Sprintf("%-22s", key)), paint(styleValue, value))
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	if err := a.cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", paint(styleSuccess, "Saved"), args[0], cast.ToString(a.cfg.Value(args[0])))
	return nil
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	if err := a.cfg.Reset(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), paint(styleSuccess, "Settings reset to defaults."))
	return nil
}

func runSettingsExport(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	if err := a.cfg.Export(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), paint(styleSuccess, "Wrote "+args[0]))
	return nil
}

func printSettingsFile(w io.Writer, s *models.Settings) error {
	masked := *s
	if masked.Telemetry.APIKey != "" {
		masked.Telemetry.APIKey = "********"
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = w.Write(data)
	return err
}
