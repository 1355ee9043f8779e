package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	"edgeview/pkg/tracing"
)

// SourceRepository stores the list as a JSON document on local disk.
// Writes go to a temp file that is renamed over the target, so a crash
// never leaves a half-written list behind.
type SourceRepository struct {
	path string
	mu   sync.Mutex
}

func NewSourceRepository(path string) *SourceRepository {
	return &SourceRepository{path: path}
}

func (r *SourceRepository) Path() string { return r.path }

func (r *SourceRepository) Load(ctx context.Context) ([]domain.StreamSource, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "load", "file")
	defer span.End()

	r.mu.Lock()
	data, err := os.ReadFile(r.path)
	r.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNothingPersisted
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to read %s: %w", r.path, err)
	}

	var sources []domain.StreamSource
	if err := json.Unmarshal(data, &sources); err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to decode %s: %w", r.path, err)
	}
	return sources, nil
}

func (r *SourceRepository) Save(ctx context.Context, sources []domain.StreamSource) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "save", "file")
	defer span.End()

	data, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeAtomic(r.path, data); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

var _ ports.SourceRepository = (*SourceRepository)(nil)
