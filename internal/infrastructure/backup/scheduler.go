package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"

	"go.uber.org/zap"
)

const (
	namePrefix    = "sources-"
	nameTimestamp = "20060102-150405.000"
	version       = "1"
)

// Snapshot is one saved copy of the source list.
type Snapshot struct {
	Version   string                `json:"version"`
	Timestamp time.Time             `json:"timestamp"`
	Sources   []domain.StreamSource `json:"sources"`
}

// Config contains scheduler configuration
type Config struct {
	Interval time.Duration
	// Retain is the number of snapshots kept; older ones are deleted
	// after each run. Zero keeps everything.
	Retain int
}

// Scheduler periodically snapshots the source store.
type Scheduler struct {
	repo    ports.SourceRepository
	storage Storage
	cfg     Config
	logger  *zap.SugaredLogger

	stopOnce sync.Once
	stopChan chan struct{}
	now      func() time.Time
}

func NewScheduler(repo ports.SourceRepository, storage Storage, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		repo:     repo,
		storage:  storage,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start runs a snapshot immediately and then every interval until ctx is
// done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.run(ctx)

	for {
		select {
		case <-ticker.C:
			s.run(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Scheduler) run(ctx context.Context) {
	name, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, domain.ErrNothingPersisted):
		s.logger.Debug("backup skipped, nothing persisted")
		return
	case err != nil:
		s.logger.Errorw("failed to create backup", "error", err)
		return
	}
	s.logger.Infow("backup created", "backup_name", name)

	if err := s.cleanup(ctx); err != nil {
		s.logger.Warnw("failed to cleanup old backups", "error", err)
	}
}

// RunOnce writes one snapshot and returns its name.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	sources, err := s.repo.Load(ctx)
	if err != nil {
		return "", err
	}

	snap := Snapshot{Version: version, Timestamp: s.now().UTC(), Sources: sources}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := namePrefix + snap.Timestamp.Format(nameTimestamp) + ".json"
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return name, nil
}

func (s *Scheduler) cleanup(ctx context.Context) error {
	if s.cfg.Retain <= 0 {
		return nil
	}
	names, err := s.storage.List(ctx, namePrefix)
	if err != nil {
		return err
	}
	var errs []error
	for len(names) > s.cfg.Retain {
		if err := s.storage.Delete(ctx, names[0]); err != nil {
			errs = append(errs, err)
		}
		names = names[1:]
	}
	return errors.Join(errs...)
}
