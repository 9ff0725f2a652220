package tui

import (
	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
)

// SnapshotMsg carries the tracker state after a poll changed it.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// RunFinishedMsg signals a run reached a terminal state.
type RunFinishedMsg struct {
	Snapshot session.Snapshot
}

// LaunchedMsg signals the backend accepted a launch.
type LaunchedMsg struct {
	Kind session.Kind
}

// AttachedMsg carries the result of a reattach attempt.
type AttachedMsg struct {
	// Running is false when nothing was in progress on the backend.
	Running bool
	// Manual is set when the user asked to attach.
	Manual bool
}

// ResetMsg signals the finished run was cleared.
type ResetMsg struct{}

// LogsUpdatedMsg signals the aggregator ingested a new fetch.
type LogsUpdatedMsg struct{}

// SummaryMsg carries the periodic backend summary.
type SummaryMsg struct {
	Experiments int
	Err         error
}

// CatalogReloadedMsg signals the phase catalog file was reloaded.
type CatalogReloadedMsg struct {
	Phases int
}

// TranscriptsLoadedMsg carries the list of saved transcripts.
type TranscriptsLoadedMsg struct {
	Transcripts []*models.Transcript
}

// TranscriptContentMsg carries a single transcript's body.
type TranscriptContentMsg struct {
	Transcript *models.Transcript
	Content    string
}

// SettingsSavedMsg carries the settings after a successful write.
type SettingsSavedMsg struct {
	Settings models.Settings
}

// ErrorMsg carries an error to display.
type ErrorMsg struct {
	Err error
}

// TickMsg refreshes the elapsed clock while a run is active.
type TickMsg struct{}

// ClearErrorMsg clears the error display.
type ClearErrorMsg struct{}

// ClearNoticeMsg clears the transient notice.
type ClearNoticeMsg struct{}
