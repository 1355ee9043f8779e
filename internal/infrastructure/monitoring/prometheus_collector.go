package monitoring

import (
	"time"

	"edgeview/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Signaling outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeHTTPError   = "http_error"
	OutcomeTimeout     = "timeout"
	OutcomeNetwork     = "network"
	OutcomeCircuitOpen = "circuit_open"
)

// PrometheusCollector exports viewer metrics. All methods are safe on a
// nil receiver so components can run without monitoring.
type PrometheusCollector struct {
	poolSlots          prometheus.Gauge
	sessionsByState    *prometheus.GaugeVec
	sessionTransitions *prometheus.CounterVec

	negotiationLatency prometheus.Histogram
	signalingRequests  *prometheus.CounterVec

	overlayConnected    prometheus.Gauge
	overlayBatches      prometheus.Counter
	overlayDetections   prometheus.Counter
	overlayReconnects   prometheus.Counter
	overlayDecodeErrors prometheus.Counter

	rtpPackets *prometheus.CounterVec
	rtpBytes   *prometheus.CounterVec

	sourceHealthScore *prometheus.GaugeVec

	healthChecks *prometheus.GaugeVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		poolSlots: f.NewGauge(prometheus.GaugeOpts{
			Name: "edgeview_pool_slots",
			Help: "Number of occupied session pool slots",
		}),

		sessionsByState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edgeview_sessions",
			Help: "Pooled WHEP sessions by state",
		}, []string{"state"}),

		sessionTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeview_session_transitions_total",
			Help: "WHEP session state transitions",
		}, []string{"from", "to"}),

		negotiationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edgeview_negotiation_latency_seconds",
			Help:    "Time from offer send to answer apply",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		signalingRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeview_signaling_requests_total",
			Help: "WHEP offer POSTs by attempt and outcome",
		}, []string{"attempt", "outcome"}),

		overlayConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "edgeview_overlay_connected",
			Help: "1 while the detection socket is open",
		}),

		overlayBatches: f.NewCounter(prometheus.CounterOpts{
			Name: "edgeview_overlay_batches_total",
			Help: "Detection batches received",
		}),

		overlayDetections: f.NewCounter(prometheus.CounterOpts{
			Name: "edgeview_overlay_detections_total",
			Help: "Detection boxes received",
		}),

		overlayReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "edgeview_overlay_reconnects_total",
			Help: "Detection socket redial attempts",
		}),

		overlayDecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "edgeview_overlay_decode_errors_total",
			Help: "Detection messages that could not be decoded",
		}),

		rtpPackets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeview_rtp_packets_total",
			Help: "Inbound RTP packets by source and media kind",
		}, []string{"source_id", "kind"}),

		rtpBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeview_rtp_bytes_total",
			Help: "Inbound RTP payload bytes by source and media kind",
		}, []string{"source_id", "kind"}),

		sourceHealthScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edgeview_source_health_score",
			Help: "Health score of stream sources (0-100)",
		}, []string{"source_id"}),

		healthChecks: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edgeview_health_check_up",
			Help: "1 when the named dependency check last passed",
		}, []string{"check"}),
	}
}

func (p *PrometheusCollector) RecordTransition(prev domain.SessionState, snap domain.SessionSnapshot) {
	if p == nil {
		return
	}
	p.sessionTransitions.WithLabelValues(prev.String(), snap.State.String()).Inc()
	if snap.State == domain.SessionConnected && snap.LatencyMs != nil {
		p.negotiationLatency.Observe((time.Duration(*snap.LatencyMs) * time.Millisecond).Seconds())
	}
}

// UpdatePool recomputes slot and per-state gauges from a pool listing.
func (p *PrometheusCollector) UpdatePool(slots []domain.SlotView) {
	if p == nil {
		return
	}
	counts := map[domain.SessionState]int{
		domain.SessionIdle:        0,
		domain.SessionNegotiating: 0,
		domain.SessionConnected:   0,
		domain.SessionFailed:      0,
	}
	for _, s := range slots {
		counts[s.Session.State]++
	}
	for state, n := range counts {
		p.sessionsByState.WithLabelValues(state.String()).Set(float64(n))
	}
	p.poolSlots.Set(float64(len(slots)))
}

func (p *PrometheusCollector) RecordSignaling(fallback bool, outcome string) {
	if p == nil {
		return
	}
	attempt := "primary"
	if fallback {
		attempt = "fallback"
	}
	p.signalingRequests.WithLabelValues(attempt, outcome).Inc()
}

func (p *PrometheusCollector) SetOverlayConnected(connected bool) {
	if p == nil {
		return
	}
	if connected {
		p.overlayConnected.Set(1)
	} else {
		p.overlayConnected.Set(0)
	}
}

func (p *PrometheusCollector) RecordDetectionBatch(boxes int) {
	if p == nil {
		return
	}
	p.overlayBatches.Inc()
	p.overlayDetections.Add(float64(boxes))
}

func (p *PrometheusCollector) RecordOverlayReconnect() {
	if p == nil {
		return
	}
	p.overlayReconnects.Inc()
}

func (p *PrometheusCollector) RecordOverlayDecodeError() {
	if p == nil {
		return
	}
	p.overlayDecodeErrors.Inc()
}

func (p *PrometheusCollector) RecordRTP(sourceID domain.SourceID, kind string, payloadBytes int) {
	if p == nil {
		return
	}
	p.rtpPackets.WithLabelValues(string(sourceID), kind).Inc()
	p.rtpBytes.WithLabelValues(string(sourceID), kind).Add(float64(payloadBytes))
}

func (p *PrometheusCollector) UpdateSourceStats(stats domain.SourceStats) {
	if p == nil {
		return
	}
	p.sourceHealthScore.WithLabelValues(string(stats.SourceID)).Set(stats.HealthScore)
}

// ForgetSource drops per-source series once a source is deleted.
func (p *PrometheusCollector) ForgetSource(sourceID domain.SourceID) {
	if p == nil {
		return
	}
	id := string(sourceID)
	p.sourceHealthScore.DeleteLabelValues(id)
	for _, kind := range []string{"audio", "video"} {
		p.rtpPackets.DeleteLabelValues(id, kind)
		p.rtpBytes.DeleteLabelValues(id, kind)
	}
}

func (p *PrometheusCollector) SetHealthCheck(name string, healthy bool) {
	if p == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	p.healthChecks.WithLabelValues(name).Set(v)
}
