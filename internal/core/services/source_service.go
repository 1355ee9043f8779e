package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	"edgeview/pkg/utils"
	"edgeview/pkg/validation"

	"go.uber.org/zap"
)

type sourceService struct {
	mu      sync.RWMutex
	repo    ports.SourceRepository
	sources []domain.StreamSource
	logger  *zap.SugaredLogger
}

// NewSourceService loads the persisted source list. Absent or unreadable
// data falls back to the built-in defaults, which are then written back.
func NewSourceService(ctx context.Context, repo ports.SourceRepository, logger *zap.SugaredLogger) ports.SourceService {
	s := &sourceService{
		repo:   repo,
		logger: logger,
	}

	loaded, err := repo.Load(ctx)
	switch {
	case err == nil:
		s.sources = sanitizeLoaded(loaded, logger)
		return s
	case errors.Is(err, domain.ErrNothingPersisted):
		logger.Infow("no persisted stream sources, using defaults")
	default:
		logger.Warnw("persisted stream sources unreadable, using defaults", "error", err)
	}

	s.sources = domain.DefaultSources()
	if err := repo.Save(ctx, cloneSources(s.sources)); err != nil {
		logger.Warnw("failed to persist default stream sources", "error", err)
	}
	return s
}

// sanitizeLoaded drops records that cannot be played and repeated ids,
// keeping the stored order.
func sanitizeLoaded(in []domain.StreamSource, logger *zap.SugaredLogger) []domain.StreamSource {
	out := make([]domain.StreamSource, 0, len(in))
	seen := make(map[domain.SourceID]bool, len(in))
	for _, src := range in {
		if src.ID == "" || seen[src.ID] {
			logger.Warnw("skipping persisted stream source", "source_id", src.ID, "reason", "missing or duplicate id")
			continue
		}
		src = src.Normalize()
		if err := validateSource(src); err != nil {
			logger.Warnw("skipping persisted stream source", "source_id", src.ID, "error", err)
			continue
		}
		seen[src.ID] = true
		out = append(out, src)
	}
	return out
}

func validateSource(src domain.StreamSource) error {
	checks := []error{
		validation.ValidateSourceID(string(src.ID)),
		validation.ValidateLabel(src.Label),
		validation.ValidateStringLength(src.URL, 1, 2048, "url"),
		validation.ValidateEnum("type", string(src.Type)),
		validation.ValidateEnum("protocol", string(src.Protocol)),
		validation.ValidateEnum("transport", string(src.Transport)),
		validation.ValidateAnalyzers(src.AISources),
		validation.ValidateStringLength(src.Description, 0, 500, "description"),
	}
	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
		}
	}
	urlCheck := validation.ValidateURL
	if src.Transport == domain.TransportWHEP {
		urlCheck = validation.ValidateSignalingURL
	}
	if err := urlCheck(src.URL); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	return nil
}

func prepare(src domain.StreamSource) domain.StreamSource {
	src.Label = utils.SanitizeString(src.Label)
	src.Description = utils.SanitizeString(src.Description)
	src.URL = utils.SanitizeString(src.URL)
	src.AISources = utils.DedupeStrings(src.AISources)
	return src.Normalize()
}

func cloneSources(in []domain.StreamSource) []domain.StreamSource {
	out := make([]domain.StreamSource, len(in))
	for i, src := range in {
		out[i] = src.Normalize()
	}
	return out
}

func (s *sourceService) List(ctx context.Context) []domain.StreamSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSources(s.sources)
}

func (s *sourceService) Get(ctx context.Context, id domain.SourceID) (domain.StreamSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.sources[i].Normalize(), nil
	}
	return domain.StreamSource{}, domain.ErrSourceNotFound
}

func (s *sourceService) Add(ctx context.Context, source domain.StreamSource) (domain.StreamSource, error) {
	source = prepare(source)
	if source.ID == "" {
		source.ID = domain.SourceID(utils.GenerateSourceID())
	}
	if err := validateSource(source); err != nil {
		return domain.StreamSource{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(source.ID) >= 0 {
		return domain.StreamSource{}, fmt.Errorf("%w: %s", domain.ErrSourceExists, source.ID)
	}

	next := append(cloneSources(s.sources), source)
	if err := s.commit(ctx, next); err != nil {
		return domain.StreamSource{}, err
	}

	s.logger.Infow("stream source added", "source_id", source.ID, "url", source.URL, "type", source.Type)
	return source, nil
}

func (s *sourceService) Update(ctx context.Context, source domain.StreamSource) (domain.StreamSource, error) {
	source = prepare(source)
	if err := validateSource(source); err != nil {
		return domain.StreamSource{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(source.ID)
	if i < 0 {
		return domain.StreamSource{}, domain.ErrSourceNotFound
	}

	next := cloneSources(s.sources)
	next[i] = source
	if err := s.commit(ctx, next); err != nil {
		return domain.StreamSource{}, err
	}

	s.logger.Infow("stream source updated", "source_id", source.ID)
	return source, nil
}

func (s *sourceService) Remove(ctx context.Context, id domain.SourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.ErrSourceNotFound
	}

	next := cloneSources(s.sources)
	next = append(next[:i], next[i+1:]...)
	if err := s.commit(ctx, next); err != nil {
		return err
	}

	s.logger.Infow("stream source removed", "source_id", id)
	return nil
}

func (s *sourceService) ByType(ctx context.Context, t domain.SourceType) []domain.StreamSource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StreamSource
	for _, src := range s.sources {
		if src.Type == t {
			out = append(out, src.Normalize())
		}
	}
	return out
}

// commit persists next and only then makes it current. Must hold mu.
func (s *sourceService) commit(ctx context.Context, next []domain.StreamSource) error {
	if err := s.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist stream sources: %w", err)
	}
	s.sources = next
	return nil
}

func (s *sourceService) indexOf(id domain.SourceID) int {
	for i, src := range s.sources {
		if src.ID == id {
			return i
		}
	}
	return -1
}
