package models

// ContainerInfo describes one lab container as reported by GET /logs.
type ContainerInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Image  string `json:"image"`
}

// LogsResponse is returned by GET /logs. Each entry in Logs holds the full
// current tail window of one container, not a delta.
type LogsResponse struct {
	Logs          map[string]string `json:"logs"`
	ContainerInfo []ContainerInfo   `json:"container_info"`
}
