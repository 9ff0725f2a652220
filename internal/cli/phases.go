package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/config"
	"github.com/iotlab-io/labwatch/internal/engine/phase"
)

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "Inspect and customize the phase catalog",
	Long: `The phase catalog maps scanner output to pipeline phases. The built-in
catalog can be overridden by ~/.labwatch/phases.yaml; the dashboard reloads
that file as soon as it changes.`,
}

var phasesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the active phase catalog",
	Args:    cobra.NoArgs,
	RunE:    runPhasesList,
}

var phasesInitForce bool

var phasesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in catalog to ~/.labwatch/phases.yaml for editing",
	Args:  cobra.NoArgs,
	RunE:  runPhasesInit,
}

var phasesDetectStatic bool

var phasesDetectCmd = &cobra.Command{
	Use:   "detect [file]",
	Short: "Detect the phase of scanner output read from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPhasesDetect,
}

func init() {
	phasesInitCmd.Flags().BoolVar(&phasesInitForce, "force", false, "Overwrite an existing catalog")
	phasesDetectCmd.Flags().BoolVar(&phasesDetectStatic, "static", false, "Treat the output as a static run (skip AutoML-only phases)")

	phasesCmd.AddCommand(phasesDetectCmd)
	phasesCmd.AddCommand(phasesInitCmd)
	phasesCmd.AddCommand(phasesListCmd)
}

func runPhasesList(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	source := "built-in"
	if config.FileExists(a.phasesAt) {
		source = a.phasesAt
	}
	fmt.Fprintf(out, "%s %s\n\n", paint(styleBrand, "Phase catalog"), paint(styleHint, "("+source+")"))

	for i, d := range a.phases.Load().Definitions() {
		label := d.Label
		if d.AutoMLOnly {
			label += " " + paint(styleWarning, "[automl]")
		}
		fmt.Fprintf(out, "  %d. %s %s\n", i+1, paint(styleCommand, label), paint(styleHint, d.ID))
		if len(d.Patterns) == 0 {
			fmt.Fprintln(out, paint(styleHint, "       default"))
			continue
		}
		fmt.Fprintln(out, paint(styleHint, "       "+strings.Join(d.Patterns, " | ")))
	}
	return nil
}

func runPhasesInit(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	if config.FileExists(a.phasesAt) && !phasesInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", a.phasesAt)
	}
	if err := phase.WriteFile(a.phasesAt, phase.Default()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), paint(styleSuccess, "Wrote "+a.phasesAt))
	return nil
}

func runPhasesDetect(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read output: %w", err)
	}

	c := a.phases.Load()
	automl := !phasesDetectStatic
	p := c.Detect(string(data), automl)
	active := c.Active(automl)
	idx := 0
	for i, ap := range active {
		if ap.ID == p.ID {
			idx = i
		}
	}

	out := cmd.OutOrStdout()
	printField(out, "Phase", paint(stylePhase, p.Label))
	printField(out, "Step", fmt.Sprintf("%d/%d", idx+1, len(active)))
	if n, ok := phase.CountDevices(string(data)); ok {
		printField(out, "Devices", fmt.Sprintf("%d", n))
	}
	return nil
}
