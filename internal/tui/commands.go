package tui

import (
	"context"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/iotlab-io/labwatch/internal/config"
	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
	"github.com/iotlab-io/labwatch/internal/telemetry"
)

const defaultSummaryInterval = 15 * time.Second

func startRunCmd(ctx context.Context, t *session.Tracker, rep *telemetry.Reporter, p models.RunParameters) tea.Cmd {
	return func() tea.Msg {
		if _, err := t.Start(ctx, p); err != nil {
			return ErrorMsg{Err: err}
		}
		rep.Track(telemetry.EventRunStarted, map[string]any{"mode": string(p.Mode), "source": "dashboard"})
		return LaunchedMsg{Kind: session.KindSingle}
	}
}

func startBatchCmd(ctx context.Context, t *session.Tracker, rep *telemetry.Reporter, req models.BatchRequest) tea.Cmd {
	return func() tea.Msg {
		if _, err := t.StartBatch(ctx, req); err != nil {
			return ErrorMsg{Err: err}
		}
		rep.Track(telemetry.EventBatchStarted, map[string]any{"mode": string(req.Mode), "runs": req.Runs, "source": "dashboard"})
		return LaunchedMsg{Kind: session.KindBatch}
	}
}

func reattachCmd(ctx context.Context, t *session.Tracker, rep *telemetry.Reporter, manual bool) tea.Cmd {
	return func() tea.Msg {
		h, err := t.Reattach(ctx)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		if h != nil {
			rep.Track(telemetry.EventReattached, map[string]any{"source": "dashboard"})
		}
		return AttachedMsg{Running: h != nil, Manual: manual}
	}
}

func resetCmd(t *session.Tracker) tea.Cmd {
	return func() tea.Msg {
		if err := t.Reset(); err != nil {
			return ErrorMsg{Err: err}
		}
		return ResetMsg{}
	}
}

func listTranscriptsCmd() tea.Cmd {
	return func() tea.Msg {
		list, err := config.ListTranscripts()
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return TranscriptsLoadedMsg{Transcripts: list}
	}
}

func readTranscriptCmd(id string) tea.Cmd {
	return func() tea.Msg {
		t, body, err := config.ReadTranscript(id)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return TranscriptContentMsg{Transcript: t, Content: body}
	}
}

func saveSettingCmd(cfg *config.Manager, key string, value any) tea.Cmd {
	return func() tea.Msg {
		var s string
		switch v := value.(type) {
		case bool:
			s = strconv.FormatBool(v)
		case string:
			s = v
		}
		if err := cfg.Set(key, s); err != nil {
			return ErrorMsg{Err: err}
		}
		return SettingsSavedMsg{Settings: cfg.Get()}
	}
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

func clearErrorAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

func clearNoticeAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return ClearNoticeMsg{}
	})
}
