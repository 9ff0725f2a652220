package cli

import (
	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/telemetry"
	"github.com/iotlab-io/labwatch/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"ui"},
	Short:   "Open the interactive dashboard",
	Long: `Open the full-screen dashboard: the tracked run with its phase progress on
the left, the lab containers' logs on the right. Quitting leaves any run going
on the backend; 'labwatch attach' or the dashboard picks it up again.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationFileLog: "true"},
	RunE:        runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}

	a.telemetry.Track(telemetry.EventDashboardOpen, nil)
	a.logger.Info().Str("api", a.client.BaseURL()).Msg("dashboard started")

	return tui.Run(cmd.Context(), tui.Deps{
		Backend:          a.client,
		Config:           a.cfg,
		Settings:         a.settings,
		Logger:           a.logger,
		Phases:           a.phases,
		PhasesPath:       a.phasesAt,
		SchedulerOptions: a.schedulerOptions(),
		TrackerOptions:   a.trackerOptions(),
		Telemetry:        a.telemetry,
		OnFinished:       a.onFinished,
	})
}
