package ports

import (
	"context"

	"edgeview/internal/core/domain"
)

// SourceRepository persists the ordered stream source list as one record.
// Load returns domain.ErrNothingPersisted when no list has been saved yet.
type SourceRepository interface {
	Load(ctx context.Context) ([]domain.StreamSource, error)
	Save(ctx context.Context, sources []domain.StreamSource) error
}
