package models

// Transcript is the metadata of a locally saved scanner transcript.
type Transcript struct {
	ID           string `yaml:"id"`
	ExperimentID string `yaml:"experiment_id"`
	Kind         string `yaml:"kind"` // "single" | "batch"
	Mode         string `yaml:"mode"`
	Phase        string `yaml:"phase"`
	Status       string `yaml:"status"`
	StartedAt    string `yaml:"started_at"`
	EndedAt      string `yaml:"ended_at"`
}
