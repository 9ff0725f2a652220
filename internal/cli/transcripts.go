package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/config"
)

var transcriptsCmd = &cobra.Command{
	Use:     "transcripts",
	Aliases: []string{"tr"},
	Short:   "Browse scanner transcripts of finished runs",
	Long: `Every run followed by labwatch to completion leaves a transcript of its
scanner output in ~/.labwatch/transcripts.`,
}

var transcriptsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved transcripts (newest first)",
	Args:    cobra.NoArgs,
	RunE:    runTranscriptsList,
}

var transcriptsShowCmd = &cobra.Command{
	Use:   "show [transcript-id]",
	Short: "Print a saved transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptsShow,
}

func init() {
	transcriptsCmd.AddCommand(transcriptsListCmd)
	transcriptsCmd.AddCommand(transcriptsShowCmd)
}

func runTranscriptsList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	list, err := config.ListTranscripts()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No transcripts. Runs followed to completion are saved automatically.")
		return nil
	}
	for _, t := range list {
		status := paint(badgeDone, t.Status)
		if t.Status == "error" {
			status = paint(badgeFailed, t.Status)
		}
		fmt.Fprintf(out, "  %s  %-6s %-6s %s  %s\n",
			paint(styleCommand, t.ID), t.Kind, t.Mode, status, paint(styleHint, t.Phase))
	}
	return nil
}

func runTranscriptsShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	t, body, err := config.ReadTranscript(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", paint(styleBrand, "Transcript"), paint(styleCommand, t.ID))
	if t.ExperimentID != "" {
		printField(out, "Experiment", t.ExperimentID)
	}
	printField(out, "Kind", t.Kind)
	printField(out, "Mode", t.Mode)
	printField(out, "Status", t.Status)
	if t.Phase != "" {
		printField(out, "Phase", t.Phase)
	}
	printField(out, "Started", t.StartedAt)
	printField(out, "Ended", t.EndedAt)
	fmt.Fprintln(out)
	fmt.Fprint(out, body)
	return nil
}
