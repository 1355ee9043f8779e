package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
)

// SourceRepository keeps the serialized list in process memory. Storing
// the encoded form keeps callers from sharing slices with the store.
type SourceRepository struct {
	mu   sync.RWMutex
	data []byte
}

func NewSourceRepository() *SourceRepository {
	return &SourceRepository{}
}

func (r *SourceRepository) Load(ctx context.Context) ([]domain.StreamSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return nil, domain.ErrNothingPersisted
	}
	var sources []domain.StreamSource
	if err := json.Unmarshal(r.data, &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	return sources, nil
}

func (r *SourceRepository) Save(ctx context.Context, sources []domain.StreamSource) error {
	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = data
	return nil
}

var _ ports.SourceRepository = (*SourceRepository)(nil)
