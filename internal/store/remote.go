package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

// Replica snapshot storage. The simulated gateway and the replica server both
// persist uploaded snapshots through these methods, under a key space
// separate from the device-local reading data.

// ReplicaSnapshot returns the stored snapshot for a user, or
// ErrSnapshotNotFound when the user has never uploaded.
func (s *Store) ReplicaSnapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snapshot domain.Snapshot
	err := s.get(replicaKey(userID), &snapshot)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// PutReplicaSnapshot stores an uploaded snapshot, replacing any previous one.
func (s *Store) PutReplicaSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(replicaKey(snapshot.UserID), snapshot)
}

// DeleteReplicaSnapshot removes a user's stored snapshot.
func (s *Store) DeleteReplicaSnapshot(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete(replicaKey(userID))
}
