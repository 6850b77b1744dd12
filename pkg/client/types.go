package client

import "time"

// UnitStatus is the status of a single live unit
type UnitStatus struct {
	Name          string    `json:"name"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Restarts      int       `json:"restarts"`
	State         string    `json:"state"`
	RSSBytes      uint64    `json:"rss_bytes,omitempty"`
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Units    []string     `json:"units"`
	Live     []UnitStatus `json:"live"`
	Draining bool         `json:"draining"`
	// RestartAttempts holds every unit with a non-zero restart counter,
	// live or not.
	RestartAttempts map[string]int `json:"restart_attempts,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
