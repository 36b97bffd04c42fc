// Package gateway moves snapshots between the device and the remote replica.
// Two implementations exist: a simulated transport for development and tests,
// and an HTTP client that talks to a replica server.
package gateway

import (
	"context"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

// Gateway is the transport used by the sync orchestrator. Upload replaces the
// remote snapshot wholesale; Download returns errors.ErrNotFound when the
// user has never uploaded, which callers treat as a legitimate empty state.
type Gateway interface {
	Upload(ctx context.Context, snapshot *domain.Snapshot) error
	Download(ctx context.Context, userID string) (*domain.Snapshot, error)
}
