package services

import (
	"sort"
	"sync"
	"time"

	"edgeview/internal/core/domain"
)

type sourceCounters struct {
	negotiations   int
	failures       int
	connectionLost int
	connected      bool
	lastLatency    time.Duration
	totalLatency   time.Duration
}

// MetricsService keeps per-source session outcome counters for the
// control API. Prometheus export lives in the monitoring package.
type MetricsService struct {
	mu    sync.RWMutex
	stats map[domain.SourceID]*sourceCounters
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		stats: make(map[domain.SourceID]*sourceCounters),
	}
}

// ObserveTransition records one session state change. prev is the state
// the session left; snap is the state it entered.
func (m *MetricsService) ObserveTransition(prev domain.SessionState, snap domain.SessionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counters(snap.SourceID)
	switch snap.State {
	case domain.SessionConnected:
		c.negotiations++
		c.connected = true
		if snap.LatencyMs != nil {
			c.lastLatency = time.Duration(*snap.LatencyMs) * time.Millisecond
			c.totalLatency += c.lastLatency
		}
	case domain.SessionFailed:
		if prev == domain.SessionConnected {
			c.connectionLost++
		} else {
			c.failures++
		}
		c.connected = false
	case domain.SessionIdle:
		c.connected = false
	}
}

func (m *MetricsService) counters(id domain.SourceID) *sourceCounters {
	c, ok := m.stats[id]
	if !ok {
		c = &sourceCounters{}
		m.stats[id] = c
	}
	return c
}

func (m *MetricsService) GetSourceStats(id domain.SourceID) domain.SourceStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.stats[id]
	if !ok {
		return domain.SourceStats{SourceID: id, Timestamp: time.Now()}
	}
	return m.build(id, c)
}

// AllStats returns stats for every source seen so far, ordered by id.
func (m *MetricsService) AllStats() []domain.SourceStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SourceStats, 0, len(m.stats))
	for id, c := range m.stats {
		out = append(out, m.build(id, c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (m *MetricsService) build(id domain.SourceID, c *sourceCounters) domain.SourceStats {
	var avg time.Duration
	if c.negotiations > 0 {
		avg = c.totalLatency / time.Duration(c.negotiations)
	}
	return domain.SourceStats{
		SourceID:       id,
		Negotiations:   c.negotiations,
		Failures:       c.failures,
		ConnectionLost: c.connectionLost,
		Connected:      c.connected,
		LastLatency:    c.lastLatency,
		AverageLatency: avg,
		HealthScore:    m.calculateHealthScore(c, avg),
		Timestamp:      time.Now(),
	}
}

func (m *MetricsService) calculateHealthScore(c *sourceCounters, latency time.Duration) float64 {
	attempts := c.negotiations + c.failures
	if attempts == 0 {
		return 0
	}

	successScore := 60.0 * float64(c.negotiations) / float64(attempts)

	latencyScore := 0.0
	switch {
	case c.negotiations == 0:
	case latency < 300*time.Millisecond:
		latencyScore = 30.0
	case latency < time.Second:
		latencyScore = 20.0
	case latency < 3*time.Second:
		latencyScore = 10.0
	}

	stabilityScore := 10.0 - 2.5*float64(c.connectionLost)
	if stabilityScore < 0 {
		stabilityScore = 0
	}

	total := successScore + latencyScore + stabilityScore
	if total > 100.0 {
		return 100.0
	}
	return total
}
