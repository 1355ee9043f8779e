package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
)

// fakeRepo stores the source list as JSON so tests can inject corrupt data.
type fakeRepo struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	saveErr error
}

func (r *fakeRepo) Load(ctx context.Context) ([]domain.StreamSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return nil, domain.ErrNothingPersisted
	}
	var out []domain.StreamSource
	if err := json.Unmarshal(r.data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fakeRepo) Save(ctx context.Context, sources []domain.StreamSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	r.data = data
	r.saves++
	return nil
}

func (r *fakeRepo) stored() []domain.StreamSource {
	out, _ := r.Load(context.Background())
	return out
}

type fakeSession struct {
	mu          sync.Mutex
	source      domain.StreamSource
	state       domain.SessionState
	connects    int
	disconnects int
	closes      int
	closed      bool
	connectErr  error
}

func (s *fakeSession) Source() domain.StreamSource { return s.source }

func (s *fakeSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.connects++
	if s.connectErr != nil {
		s.state = domain.SessionFailed
		return s.connectErr
	}
	s.state = domain.SessionConnected
	return nil
}

func (s *fakeSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.state = domain.SessionIdle
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.closed = true
	s.state = domain.SessionIdle
}

func (s *fakeSession) Reconnect(ctx context.Context) error {
	s.Disconnect()
	return s.Connect(ctx)
}

func (s *fakeSession) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionSnapshot{SourceID: s.source.ID, State: s.state}
}

type sessionRecorder struct {
	mu       sync.Mutex
	sessions map[domain.SlotID]*fakeSession
	failFor  domain.SourceID
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{sessions: make(map[domain.SlotID]*fakeSession)}
}

func (r *sessionRecorder) factory(slot domain.SlotID, source domain.StreamSource) (ports.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if source.ID == r.failFor {
		return nil, errors.New("factory failure")
	}
	s := &fakeSession{source: source}
	r.sessions[slot] = s
	return s, nil
}

func (r *sessionRecorder) get(slot domain.SlotID) *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[slot]
}

func src(id string) domain.StreamSource {
	return domain.StreamSource{
		ID:    domain.SourceID(id),
		Label: "Camera " + id,
		URL:   "http://192.168.7.166:8889/live/cam/whep",
		Type:  domain.SourceTypeMain,
	}.Normalize()
}
