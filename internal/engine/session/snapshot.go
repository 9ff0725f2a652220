package session

import (
	"fmt"
	"time"

	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/models"
)

// Snapshot is a consistent copy of the tracker's derived state.
type Snapshot struct {
	State   State
	Kind    Kind
	Mode    models.Mode
	Network string

	// Phase is the detected pipeline phase. Batches report the first phase.
	Phase  phase.Phase
	Phases []phase.Phase

	DevicesFound   int
	HasDeviceCount bool
	ScannerLines   []string
	Output         string
	ExperimentID   string
	Command        string
	Elapsed        time.Duration
	StartedAt      time.Time
	Reattached     bool
	CompletedRuns  int
	TotalRuns      int
	ExperimentIDs  []string
	Error          string
}

// AutoML reports whether the run uses the AutoML pipeline.
func (s Snapshot) AutoML() bool {
	return s.Mode == models.ModeAutoML
}

// PhaseIndex is the position of Phase within Phases, or 0.
func (s Snapshot) PhaseIndex() int {
	for i, p := range s.Phases {
		if p.ID == s.Phase.ID {
			return i
		}
	}
	return 0
}

// PhaseProgress is the fraction of applicable phases reached, in [0, 1].
func (s Snapshot) PhaseProgress() float64 {
	switch {
	case s.State == StateCompleted:
		return 1
	case len(s.Phases) == 0:
		return 0
	}
	return float64(s.PhaseIndex()+1) / float64(len(s.Phases))
}

// BatchProgress is completed/total runs, in [0, 1].
func (s Snapshot) BatchProgress() float64 {
	if s.TotalRuns <= 0 {
		return 0
	}
	return float64(s.CompletedRuns) / float64(s.TotalRuns)
}

// AverageRunTime is the mean wall time per completed batch run.
func (s Snapshot) AverageRunTime() time.Duration {
	if s.CompletedRuns <= 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.CompletedRuns)
}

// FormatElapsed renders a duration as MM:SS, growing to H:MM:SS past an hour.
func FormatElapsed(d time.Duration) string {
	sec := int(d / time.Second)
	if sec < 0 {
		sec = 0
	}
	h, m, s := sec/3600, (sec/60)%60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
