package webrtc

import (
	"fmt"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"

	"go.uber.org/zap"
)

// NewSessionFactory returns the pool's constructor for slot sessions. Each
// session gets its own sink from sinks, and every observer is subscribed
// before the session is handed out.
func NewSessionFactory(
	peers ports.PeerConnectionFactory,
	signaler ports.Signaler,
	sinks ports.SinkFactory,
	cfg SessionConfig,
	logger *zap.SugaredLogger,
	observers ...StateObserver,
) ports.SessionFactory {
	return func(slot domain.SlotID, source domain.StreamSource) (ports.Session, error) {
		var sink ports.Sink
		if sinks != nil {
			s, err := sinks(slot, source)
			if err != nil {
				return nil, fmt.Errorf("failed to create sink for %s: %w", source.ID, err)
			}
			sink = s
		}

		session := NewSession(slot, source, sink, peers, signaler, cfg, logger)
		for _, fn := range observers {
			session.OnStateChange(fn)
		}
		return session, nil
	}
}
