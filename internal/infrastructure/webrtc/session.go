package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	"edgeview/pkg/tracing"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SessionConfig holds per-session timing.
type SessionConfig struct {
	// ReconnectDelay separates the disconnect and connect halves of Reconnect.
	ReconnectDelay time.Duration
	// MediaTimeout fails a negotiated session that never receives a track.
	// Zero waits forever.
	MediaTimeout time.Duration
	// PLIInterval is how often a keyframe is requested on video tracks.
	// Zero disables it.
	PLIInterval time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ReconnectDelay: time.Second,
		MediaTimeout:   30 * time.Second,
		PLIInterval:    3 * time.Second,
	}
}

// StateObserver is told about every state transition, in order. It must not
// call Connect, Disconnect or Reconnect on the same session.
type StateObserver func(prev domain.SessionState, snap domain.SessionSnapshot)

type transition struct {
	prev domain.SessionState
	snap domain.SessionSnapshot
}

// Session drives one receive-only WHEP playback. All mutable state is
// guarded by mu; gen identifies the current connection handle so that
// callbacks and network results from a released handle are discarded.
type Session struct {
	slot     domain.SlotID
	source   domain.StreamSource
	cfg      SessionConfig
	peers    ports.PeerConnectionFactory
	signaler ports.Signaler
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	gen        uint64
	closed     bool
	state      domain.SessionState
	pc         ports.PeerConnection
	sink       ports.Sink
	latencyMs  *int64
	lastErr    error
	tracks     int
	changed    time.Time
	stop       chan struct{}
	mediaTimer *time.Timer
	observers  []StateObserver
	pending    []transition

	notifyMu sync.Mutex
}

func NewSession(
	slot domain.SlotID,
	source domain.StreamSource,
	sink ports.Sink,
	peers ports.PeerConnectionFactory,
	signaler ports.Signaler,
	cfg SessionConfig,
	logger *zap.SugaredLogger,
) *Session {
	return &Session{
		slot:     slot,
		source:   source,
		cfg:      cfg,
		peers:    peers,
		signaler: signaler,
		sink:     sink,
		state:    domain.SessionIdle,
		changed:  time.Now(),
		logger:   logger.With("slot_id", slot, "source_id", source.ID),
	}
}

func (s *Session) Source() domain.StreamSource { return s.source }

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Slot() domain.SlotID { return s.slot }

// OnStateChange registers an observer for all later transitions.
func (s *Session) OnStateChange(fn StateObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// SetSink replaces the render target used by later connects.
func (s *Session) SetSink(sink ports.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SourceID: s.source.ID,
		State:    s.state,
		Tracks:   s.tracks,
		Changed:  s.changed,
	}
	if s.latencyMs != nil {
		v := *s.latencyMs
		snap.LatencyMs = &v
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// setStateLocked records a transition and queues it for observers.
func (s *Session) setStateLocked(to domain.SessionState) {
	prev := s.state
	s.state = to
	s.changed = time.Now()
	s.pending = append(s.pending, transition{prev: prev, snap: s.snapshotLocked()})
}

func (s *Session) failLocked(err error) {
	s.lastErr = err
	s.stopMediaLocked()
	s.setStateLocked(domain.SessionFailed)
}

// flush delivers queued transitions in the order they happened.
func (s *Session) flush() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	observers := append([]StateObserver(nil), s.observers...)
	s.mu.Unlock()

	for _, t := range pending {
		fields := []interface{}{"from", t.prev, "state", t.snap.State}
		if t.snap.LatencyMs != nil {
			fields = append(fields, "latency_ms", *t.snap.LatencyMs)
		}
		if t.snap.LastError != "" {
			s.logger.Warnw("session state changed", append(fields, "error", t.snap.LastError)...)
		} else {
			s.logger.Infow("session state changed", fields...)
		}
		for _, fn := range observers {
			fn(t.prev, t.snap)
		}
	}
}

// Connect negotiates a new playback. It returns once the answer has been
// applied; the session turns Connected when the first track arrives. It is
// a no-op while Negotiating or Connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.state == domain.SessionNegotiating || s.state == domain.SessionConnected {
		s.mu.Unlock()
		return nil
	}
	if s.sink == nil {
		err := &domain.NoSinkError{SourceID: s.source.ID}
		s.failLocked(err)
		s.mu.Unlock()
		s.flush()
		return err
	}

	prior, priorStop := s.releaseLocked()
	s.gen++
	gen := s.gen
	s.stop = make(chan struct{})
	stop := s.stop
	s.lastErr = nil
	s.latencyMs = nil
	s.tracks = 0
	s.setStateLocked(domain.SessionNegotiating)
	s.mu.Unlock()

	s.closeHandle(prior, priorStop)
	s.flush()

	ctx, span := tracing.TraceNegotiation(ctx, string(s.slot), string(s.source.ID))
	defer span.End()

	err := s.negotiate(ctx, gen, stop)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (s *Session) negotiate(ctx context.Context, gen uint64, stop <-chan struct{}) error {
	pc, err := s.peers.NewPeerConnection()
	if err != nil {
		return s.failIfCurrent(gen, fmt.Errorf("failed to create peer connection: %w", err))
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = pc.Close()
		return domain.ErrStaleNegotiation
	}
	s.pc = pc
	s.mu.Unlock()

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return s.failIfCurrent(gen, fmt.Errorf("failed to add %s transceiver: %w", kind, err))
		}
	}

	pc.OnTrack(func(track ports.Track) { s.handleTrack(gen, pc, track) })
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) { s.handlePeerState(gen, state) })

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return s.failIfCurrent(gen, fmt.Errorf("failed to create offer: %w", err))
	}
	gathered := pc.GatheringComplete()
	if err := pc.SetLocalDescription(offer); err != nil {
		return s.failIfCurrent(gen, fmt.Errorf("failed to set local description: %w", err))
	}

	select {
	case <-gathered:
	case <-stop:
		if err := s.interrupted(gen); err != nil {
			return err
		}
		return domain.ErrStaleNegotiation
	case <-ctx.Done():
		return s.failIfCurrent(gen, fmt.Errorf("ICE gathering interrupted: %w", ctx.Err()))
	}

	local := pc.LocalDescription()
	if local == nil || local.SDP == "" {
		return s.failIfCurrent(gen, errors.New("failed to create SDP"))
	}

	start := time.Now()
	answer, err := s.signaler.Exchange(ctx, s.source.URL, local.SDP)
	if ierr := s.interrupted(gen); ierr != nil {
		return ierr
	}
	if err != nil {
		return s.failIfCurrent(gen, err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return s.failIfCurrent(gen, &domain.MalformedAnswerError{Cause: err})
	}
	elapsed := time.Since(start).Milliseconds()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return domain.ErrStaleNegotiation
	}
	s.latencyMs = &elapsed
	if s.state == domain.SessionNegotiating && s.cfg.MediaTimeout > 0 {
		s.mediaTimer = time.AfterFunc(s.cfg.MediaTimeout, func() { s.handleMediaTimeout(gen) })
	}
	s.mu.Unlock()

	tracing.AddSpanAttributes(ctx, tracing.LatencyKey.Int64(elapsed), attribute.String("whep.url", s.source.URL))
	s.logger.Debugw("answer applied", "latency_ms", elapsed)
	return nil
}

// interrupted reports why negotiation for gen can no longer proceed: the
// handle was released, or the session already failed underneath it.
func (s *Session) interrupted(gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return domain.ErrStaleNegotiation
	}
	if s.state == domain.SessionFailed && s.lastErr != nil {
		return s.lastErr
	}
	return nil
}

// failIfCurrent records err as a Failed transition unless the handle that
// produced it has been released, in which case the result is discarded.
func (s *Session) failIfCurrent(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return domain.ErrStaleNegotiation
	}
	s.failLocked(err)
	s.mu.Unlock()
	s.flush()
	return err
}

func (s *Session) handleTrack(gen uint64, pc ports.PeerConnection, track ports.Track) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	sink, stop := s.sink, s.stop
	s.mu.Unlock()

	if sink != nil {
		if err := sink.Attach(track); err != nil {
			s.logger.Warnw("sink rejected track", "track_id", track.ID(), "kind", track.Kind(), "error", err)
		}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if sink != nil {
			sink.Detach()
		}
		return
	}
	s.tracks++
	if s.state == domain.SessionNegotiating {
		s.stopMediaTimerLocked()
		s.setStateLocked(domain.SessionConnected)
	}
	s.mu.Unlock()
	s.flush()

	s.logger.Infow("track received", "track_id", track.ID(), "kind", track.Kind(), "codec", track.Codec().MimeType)

	if track.Kind() == webrtc.RTPCodecTypeVideo && s.cfg.PLIInterval > 0 {
		go s.requestKeyframes(pc, track.SSRC(), stop)
	}
}

// requestKeyframes sends a PictureLossIndication periodically so a late
// joiner gets a decodable frame quickly and recovers after loss.
func (s *Session) requestKeyframes(pc ports.PeerConnection, ssrc webrtc.SSRC, stop <-chan struct{}) {
	send := func() bool {
		err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}})
		return err == nil
	}
	if !send() {
		return
	}

	ticker := time.NewTicker(s.cfg.PLIInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

func (s *Session) handlePeerState(gen uint64, state webrtc.PeerConnectionState) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	lost := false
	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		lost = s.state == domain.SessionConnected ||
			(s.state == domain.SessionNegotiating && state == webrtc.PeerConnectionStateFailed)
	}
	if lost {
		s.failLocked(&domain.ConnectionLostError{State: state.String()})
	}
	s.mu.Unlock()

	if lost {
		s.flush()
	}
}

func (s *Session) handleMediaTimeout(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != domain.SessionNegotiating {
		s.mu.Unlock()
		return
	}
	s.failLocked(&domain.ConnectionLostError{State: "no media received"})
	s.mu.Unlock()
	s.flush()
}

func (s *Session) stopMediaTimerLocked() {
	if s.mediaTimer != nil {
		s.mediaTimer.Stop()
		s.mediaTimer = nil
	}
}

// stopMediaLocked ends keyframe requests and the media timer for the
// current handle without releasing it.
func (s *Session) stopMediaLocked() {
	s.stopMediaTimerLocked()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// releaseLocked detaches the current handle and invalidates every
// callback and in-flight result bound to it.
func (s *Session) releaseLocked() (ports.PeerConnection, chan struct{}) {
	s.gen++
	s.stopMediaTimerLocked()
	pc, stop := s.pc, s.stop
	s.pc, s.stop = nil, nil
	return pc, stop
}

func (s *Session) closeHandle(pc ports.PeerConnection, stop chan struct{}) {
	if pc == nil && stop == nil {
		return
	}
	if stop != nil {
		close(stop)
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			s.logger.Debugw("peer connection close failed", "error", err)
		}
	}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.Detach()
	}
}

// Disconnect releases the connection handle and detaches the sink before
// returning. It is idempotent and may be called while Negotiating; the
// in-flight exchange's result is then discarded.
func (s *Session) Disconnect() {
	s.release(false)
}

// Close disconnects for good. Later Connect and Reconnect calls return
// ErrSessionClosed, so a session dropped from its pool can never create
// another peer connection.
func (s *Session) Close() {
	s.release(true)
}

func (s *Session) release(final bool) {
	s.mu.Lock()
	if final {
		s.closed = true
	}
	pc, stop := s.releaseLocked()
	s.latencyMs = nil
	s.lastErr = nil
	s.tracks = 0
	if s.state != domain.SessionIdle {
		s.setStateLocked(domain.SessionIdle)
	}
	s.mu.Unlock()

	s.closeHandle(pc, stop)
	s.flush()
}

// Reconnect disconnects, waits ReconnectDelay so the endpoint can release
// the prior transport, then connects once.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.Closed() {
		return domain.ErrSessionClosed
	}
	s.Disconnect()

	if s.cfg.ReconnectDelay > 0 {
		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return s.Connect(ctx)
}

var _ ports.Session = (*Session)(nil)
