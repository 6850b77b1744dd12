package process

import (
	"fmt"
	"time"
)

// Status is a point-in-time view of a live unit.
type Status struct {
	Name          string    `json:"name"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Restarts      int       `json:"restarts"`
	State         string    `json:"state"`
	RSSBytes      uint64    `json:"rss_bytes,omitempty"`
}

// Uptime returns the run duration at snapshot time.
func (s Status) Uptime() time.Duration {
	return time.Duration(s.UptimeSeconds) * time.Second
}

// Line renders the status report entry, e.g.
// "echo: Running (uptime: 1h 2m 3s, PID: 4242)".
func (s Status) Line() string {
	return fmt.Sprintf("%s: Running (uptime: %s, PID: %d)", s.Name, FormatUptime(s.Uptime()), s.PID)
}

// FormatUptime renders d as "<H>h <M>m <S>s".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}
