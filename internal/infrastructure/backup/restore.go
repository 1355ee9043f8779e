package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
)

// Latest returns the newest snapshot, or domain.ErrNothingPersisted when
// storage holds none.
func Latest(ctx context.Context, storage Storage) (Snapshot, error) {
	names, err := storage.List(ctx, namePrefix)
	if err != nil {
		return Snapshot{}, err
	}
	if len(names) == 0 {
		return Snapshot{}, domain.ErrNothingPersisted
	}
	return Read(ctx, storage, names[len(names)-1])
}

func Read(ctx context.Context, storage Storage, name string) (Snapshot, error) {
	rc, err := storage.Load(ctx, name)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load backup: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read backup data: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal backup %s: %w", name, err)
	}
	return snap, nil
}

// RestoreIfEmpty copies the newest snapshot into repo when repo has
// nothing persisted. It reports whether a restore happened.
func RestoreIfEmpty(ctx context.Context, storage Storage, repo ports.SourceRepository) (bool, error) {
	if _, err := repo.Load(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, domain.ErrNothingPersisted) {
		return false, err
	}

	snap, err := Latest(ctx, storage)
	if errors.Is(err, domain.ErrNothingPersisted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := repo.Save(ctx, snap.Sources); err != nil {
		return false, fmt.Errorf("failed to restore sources: %w", err)
	}
	return true, nil
}
