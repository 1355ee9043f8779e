package domain

import "time"

// SourceStats aggregates session outcomes for one stream source across
// every slot that has played it.
type SourceStats struct {
	SourceID       SourceID      `json:"source_id"`
	Negotiations   int           `json:"negotiations"`
	Failures       int           `json:"failures"`
	ConnectionLost int           `json:"connection_lost"`
	Connected      bool          `json:"connected"`
	LastLatency    time.Duration `json:"last_latency"`
	AverageLatency time.Duration `json:"average_latency"`
	HealthScore    float64       `json:"health_score"`
	Timestamp      time.Time     `json:"timestamp"`
}
