package cli

import (
	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/telemetry"
)

var attachQuiet bool

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Follow a run that is already in progress",
	Long: `Attach to whatever the backend is currently running. A running batch takes
precedence over a single run. The elapsed timer resumes from the backend's
clock, not from zero.`,
	Args: cobra.NoArgs,
	RunE: runAttach,
}

func init() {
	attachCmd.Flags().BoolVarP(&attachQuiet, "quiet", "q", false, "Hide scanner output")
}

func runAttach(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	return followRun(cmd.Context(), cmd.OutOrStdout(), a, followOptions{quiet: attachQuiet}, func(t *session.Tracker) (*session.RunHandle, error) {
		h, err := t.Reattach(cmd.Context())
		if h != nil {
			a.telemetry.Track(telemetry.EventReattached, map[string]any{"kind": string(h.Kind)})
		}
		return h, err
	})
}
