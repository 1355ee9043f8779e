package services

import (
	"context"
	"fmt"
	"sync"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	"edgeview/pkg/utils"

	"go.uber.org/zap"
)

type poolSlot struct {
	id      domain.SlotID
	source  domain.StreamSource
	session ports.Session
}

// SessionPool owns a bounded, ordered set of sessions, one per slot.
// Which slot is active is a display concern only; it never changes the
// connection state of any session.
type SessionPool struct {
	mu             sync.RWMutex
	maxConcurrency int
	factory        ports.SessionFactory
	slots          []*poolSlot
	active         domain.SlotID
	fullscreen     domain.SlotID
	closed         bool

	onChange []func()
	logger   *zap.SugaredLogger
}

func NewSessionPool(maxConcurrency int, factory ports.SessionFactory, logger *zap.SugaredLogger) *SessionPool {
	if maxConcurrency <= 0 {
		maxConcurrency = 6
	}
	return &SessionPool{
		maxConcurrency: maxConcurrency,
		factory:        factory,
		logger:         logger,
	}
}

// OnChange registers a callback run after membership, active slot or
// fullscreen changes. Callbacks run outside the pool lock.
func (p *SessionPool) OnChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

func (p *SessionPool) notify() {
	p.mu.RLock()
	fns := append([]func(){}, p.onChange...)
	p.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *SessionPool) MaxConcurrency() int { return p.maxConcurrency }

func (p *SessionPool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// AddSession creates a session for source in a new slot and makes it
// active. The pool is left unchanged when it is full or the source
// already has a slot.
func (p *SessionPool) AddSession(source domain.StreamSource) (domain.SlotID, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", domain.ErrPoolClosed
	}
	if len(p.slots) >= p.maxConcurrency {
		p.mu.Unlock()
		p.logger.Debugw("add session rejected", "source_id", source.ID, "reason", "pool full", "max_concurrency", p.maxConcurrency)
		return "", domain.ErrPoolFull
	}
	if p.slotForSource(source.ID) != nil {
		p.mu.Unlock()
		p.logger.Debugw("add session rejected", "source_id", source.ID, "reason", "source already pooled")
		return "", fmt.Errorf("%w: %s", domain.ErrSourceActive, source.ID)
	}

	id := domain.SlotID(utils.GenerateSlotID())
	session, err := p.factory(id, source)
	if err != nil {
		p.mu.Unlock()
		return "", fmt.Errorf("failed to create session for %s: %w", source.ID, err)
	}

	p.slots = append(p.slots, &poolSlot{id: id, source: source, session: session})
	p.active = id
	size := len(p.slots)
	p.mu.Unlock()

	p.logger.Infow("session added", "slot_id", id, "source_id", source.ID, "pool_size", size)
	p.notify()
	return id, nil
}

// RemoveSession drops the slot and closes its session before returning;
// holders of the session can no longer connect it. Removing the active slot activates the first remaining slot.
func (p *SessionPool) RemoveSession(id domain.SlotID) error {
	p.mu.Lock()
	idx := p.indexOf(id)
	if idx < 0 {
		p.mu.Unlock()
		return domain.ErrSlotNotFound
	}

	removed := p.slots[idx]
	p.slots = append(p.slots[:idx], p.slots[idx+1:]...)
	if p.active == id {
		p.active = ""
		if len(p.slots) > 0 {
			p.active = p.slots[0].id
		}
	}
	if p.fullscreen == id {
		p.fullscreen = ""
	}
	active, size := p.active, len(p.slots)
	p.mu.Unlock()

	removed.session.Close()

	p.logger.Infow("session removed", "slot_id", id, "source_id", removed.source.ID, "active", active, "pool_size", size)
	p.notify()
	return nil
}

func (p *SessionPool) SetActive(id domain.SlotID) error {
	p.mu.Lock()
	if p.indexOf(id) < 0 {
		p.mu.Unlock()
		return domain.ErrSlotNotFound
	}
	changed := p.active != id
	p.active = id
	p.mu.Unlock()

	if changed {
		p.notify()
	}
	return nil
}

func (p *SessionPool) Active() (domain.SlotID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active, p.active != ""
}

// ActiveSession returns the foreground session, if any.
func (p *SessionPool) ActiveSession() (domain.SlotID, ports.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if idx := p.indexOf(p.active); idx >= 0 {
		return p.active, p.slots[idx].session, true
	}
	return "", nil, false
}

func (p *SessionPool) Session(id domain.SlotID) (ports.Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if idx := p.indexOf(id); idx >= 0 {
		return p.slots[idx].session, nil
	}
	return nil, domain.ErrSlotNotFound
}

// Slots lists slots in insertion order with a snapshot of each session.
func (p *SessionPool) Slots() []domain.SlotView {
	p.mu.RLock()
	slots := append([]*poolSlot(nil), p.slots...)
	active := p.active
	p.mu.RUnlock()

	views := make([]domain.SlotView, 0, len(slots))
	for _, s := range slots {
		views = append(views, domain.SlotView{
			ID:      s.id,
			Source:  s.source,
			Active:  s.id == active,
			Session: s.session.Snapshot(),
		})
	}
	return views
}

func (p *SessionPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.slots)
}

func (p *SessionPool) Layout() domain.LayoutView {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]domain.SlotID, len(p.slots))
	for i, s := range p.slots {
		ids[i] = s.id
	}
	return BuildLayout(ids, p.fullscreen)
}

func (p *SessionPool) SetFullscreen(id domain.SlotID) error {
	p.mu.Lock()
	if p.indexOf(id) < 0 {
		p.mu.Unlock()
		return domain.ErrSlotNotFound
	}
	p.fullscreen = id
	p.mu.Unlock()

	p.notify()
	return nil
}

func (p *SessionPool) ClearFullscreen() {
	p.mu.Lock()
	changed := p.fullscreen != ""
	p.fullscreen = ""
	p.mu.Unlock()

	if changed {
		p.notify()
	}
}

// Available returns the stored sources that have no slot in the pool.
func (p *SessionPool) Available(ctx context.Context, sources ports.SourceService) []domain.StreamSource {
	all := sources.List(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.StreamSource, 0, len(all))
	for _, src := range all {
		if p.slotForSource(src.ID) == nil {
			out = append(out, src)
		}
	}
	return out
}

// Bootstrap fills an empty pool with the first n main sources, or the
// first n sources when none are marked main, and activates the first.
func (p *SessionPool) Bootstrap(ctx context.Context, sources ports.SourceService, n int) ([]domain.SlotID, error) {
	candidates := sources.ByType(ctx, domain.SourceTypeMain)
	if len(candidates) == 0 {
		candidates = sources.List(ctx)
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	ids := make([]domain.SlotID, 0, n)
	for _, src := range candidates[:n] {
		id, err := p.AddSession(src)
		if err != nil {
			p.logger.Warnw("bootstrap skipped source", "source_id", src.ID, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		if err := p.SetActive(ids[0]); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// ConnectAll connects every idle or failed session concurrently and waits.
// Failures stay recorded on each session; the count of sessions that
// connected is returned.
func (p *SessionPool) ConnectAll(ctx context.Context) int {
	p.mu.RLock()
	slots := append([]*poolSlot(nil), p.slots...)
	p.mu.RUnlock()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		connected int
	)
	for _, s := range slots {
		state := s.session.Snapshot().State
		if state != domain.SessionIdle && state != domain.SessionFailed {
			continue
		}
		wg.Add(1)
		go func(s *poolSlot) {
			defer wg.Done()
			if err := s.session.Connect(ctx); err != nil {
				p.logger.Warnw("session connect failed", "slot_id", s.id, "source_id", s.source.ID, "error", err)
				return
			}
			mu.Lock()
			connected++
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	return connected
}

// Close closes every session. Later adds fail with ErrPoolClosed.
func (p *SessionPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	slots := p.slots
	p.slots = nil
	p.active = ""
	p.fullscreen = ""
	p.mu.Unlock()

	for _, s := range slots {
		s.session.Close()
	}
	p.logger.Infow("session pool closed", "released", len(slots))
	p.notify()
}

func (p *SessionPool) indexOf(id domain.SlotID) int {
	if id == "" {
		return -1
	}
	for i, s := range p.slots {
		if s.id == id {
			return i
		}
	}
	return -1
}

func (p *SessionPool) slotForSource(id domain.SourceID) *poolSlot {
	for _, s := range p.slots {
		if s.source.ID == id {
			return s
		}
	}
	return nil
}

var _ ports.SessionPool = (*SessionPool)(nil)
