package api

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/iotlab-io/labwatch/internal/models"
)

// The status endpoints are produced by a dynamically typed backend: numbers
// may arrive as strings or floats and optional fields as null. They are
// decoded leniently.

func decodeExperimentStatus(raw map[string]any) *models.ExperimentStatus {
	return &models.ExperimentStatus{
		Status:         normalizeStatus(raw["status"]),
		ExperimentID:   optString(raw["experiment_id"]),
		ScannerOutput:  optString(raw["scanner_output"]),
		ElapsedSeconds: cast.ToFloat64(raw["elapsed_seconds"]),
		Error:          optString(raw["error"]),
		Command:        optString(raw["command"]),
	}
}

func decodeBatchStatus(raw map[string]any) *models.BatchStatus {
	st := &models.BatchStatus{
		Status:         normalizeStatus(raw["status"]),
		CompletedRuns:  cast.ToInt(raw["completed_runs"]),
		TotalRuns:      cast.ToInt(raw["total_runs"]),
		ScannerOutput:  optString(raw["scanner_output"]),
		ElapsedSeconds: cast.ToFloat64(raw["elapsed_seconds"]),
		Mode:           optString(raw["mode"]),
		Error:          optString(raw["error"]),
	}
	for _, id := range cast.ToSlice(raw["experiment_ids"]) {
		if s := optString(id); s != "" {
			st.ExperimentIDs = append(st.ExperimentIDs, s)
		}
	}
	return st
}

func normalizeStatus(v any) models.RunStatus {
	s := strings.ToLower(strings.TrimSpace(optString(v)))
	if s == "" {
		return models.RunStatusIdle
	}
	return models.RunStatus(s)
}

func optString(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}
