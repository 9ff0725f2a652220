package cli

import (
	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
	"github.com/iotlab-io/labwatch/internal/telemetry"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Launch a batch of runs and follow its progress",
	Long: `Launch a batch of identical experiment runs, typically used to collect
training data for the AutoML pipeline, and follow it until every run is done.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

var batchFlags struct {
	mode    string
	network string
	runs    int
}

func init() {
	f := batchCmd.Flags()
	f.StringVarP(&batchFlags.mode, "mode", "m", "", "Pipeline mode: static or automl")
	f.StringVarP(&batchFlags.network, "network", "n", "", "Target network in CIDR notation")
	f.IntVarP(&batchFlags.runs, "runs", "r", 0, "Number of runs (default from settings)")
}

func batchRequest(s models.Settings) (models.BatchRequest, error) {
	mode, err := models.ParseMode(firstNonEmpty(batchFlags.mode, s.Run.Mode))
	if err != nil {
		return models.BatchRequest{}, err
	}
	runs := batchFlags.runs
	if runs == 0 {
		runs = s.Batch.Runs
	}
	req := models.BatchRequest{
		Mode:    mode,
		Network: firstNonEmpty(batchFlags.network, s.Run.Network),
		Runs:    runs,
	}
	return req, req.Validate()
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	req, err := batchRequest(a.settings)
	if err != nil {
		return err
	}

	return followRun(cmd.Context(), cmd.OutOrStdout(), a, followOptions{quiet: true}, func(t *session.Tracker) (*session.RunHandle, error) {
		h, err := t.StartBatch(cmd.Context(), req)
		if err == nil {
			a.telemetry.Track(telemetry.EventBatchStarted, map[string]any{"mode": string(req.Mode), "runs": req.Runs})
		}
		return h, err
	})
}
