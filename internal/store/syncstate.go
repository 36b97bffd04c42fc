package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

// DataVersion returns the user's local snapshot version counter. New users
// start at zero.
func (s *Store) DataVersion(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var version int64
	if err := s.getOrDefault(versionKey(userID), &version); err != nil {
		return 0, err
	}
	return version, nil
}

// SetDataVersion stores the snapshot version counter.
func (s *Store) SetDataVersion(ctx context.Context, userID string, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(versionKey(userID), version)
}

// AutoSyncEnabled reports the user's auto-sync preference.
// Defaults to enabled when no preference is stored.
func (s *Store) AutoSyncEnabled(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var enabled bool
	err := s.get(autoSyncKey(userID), &enabled)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// SetAutoSyncEnabled stores the auto-sync preference.
func (s *Store) SetAutoSyncEnabled(ctx context.Context, userID string, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(autoSyncKey(userID), enabled)
}

// SaveLocalSnapshot keeps a copy of the assembled snapshot locally. Written
// on teardown as a best-effort flush so a crashed upload can resume from the
// last known state.
func (s *Store) SaveLocalSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(snapshotKey(snapshot.UserID), snapshot)
}

// DeleteLocalSnapshot removes the teardown snapshot once it has been
// consumed on startup.
func (s *Store) DeleteLocalSnapshot(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete(snapshotKey(userID))
}

// LocalSnapshot returns the last saved snapshot copy, or ErrSnapshotNotFound.
func (s *Store) LocalSnapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snapshot domain.Snapshot
	err := s.get(snapshotKey(userID), &snapshot)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
