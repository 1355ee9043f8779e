package main

import (
	"context"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/infrastructure/distributed"
	"edgeview/internal/infrastructure/signal"

	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// eventRelay fans viewer events out to local dashboards and, when a bus
// is configured, to other instances.
type eventRelay struct {
	ctx    context.Context
	server *signal.EventServer
	bus    *distributed.EventBus
	logger *zap.SugaredLogger
}

func (r *eventRelay) sessionChanged(prev domain.SessionState, snap domain.SessionSnapshot) {
	ev, err := domain.NewSessionStateEvent(prev, snap)
	if err != nil {
		r.logger.Errorw("failed to build session event", "source_id", snap.SourceID, "error", err)
		return
	}
	r.emit(ev)
}

func (r *eventRelay) poolChanged(slots []domain.SlotView, layout domain.LayoutView) {
	ev, err := domain.NewPoolChangedEvent(slots, layout)
	if err != nil {
		r.logger.Errorw("failed to build pool event", "error", err)
		return
	}
	r.emit(ev)
}

func (r *eventRelay) emit(ev domain.ViewerEvent) {
	r.server.Broadcast(ev)
	if r.bus == nil {
		return
	}
	// Observers run on the session's notification path; keep redis off it.
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, publishTimeout)
		defer cancel()
		if err := r.bus.Publish(ctx, ev); err != nil {
			r.logger.Warnw("failed to publish event", "type", ev.Type, "error", err)
		}
	}()
}

// listen forwards events from other instances to local dashboards until
// ctx is done.
func (r *eventRelay) listen() {
	if r.bus == nil {
		return
	}
	go func() {
		err := r.bus.Subscribe(r.ctx, r.server.Broadcast)
		if err != nil && r.ctx.Err() == nil {
			r.logger.Errorw("event bus subscription ended", "error", err)
		}
	}()
}
