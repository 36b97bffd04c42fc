package gateway

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/readwellapp/readwell-sync/internal/domain"
	"github.com/readwellapp/readwell-sync/internal/errors"
	"github.com/readwellapp/readwell-sync/internal/store"
)

// SimulatedConfig tunes the simulated transport. Zero latencies and failure
// rates make it deterministic, which is what tests want.
type SimulatedConfig struct {
	UploadLatencyMin    time.Duration
	UploadLatencyMax    time.Duration
	DownloadLatencyMin  time.Duration
	DownloadLatencyMax  time.Duration
	UploadFailureRate   float64
	DownloadFailureRate float64
}

// DefaultSimulatedConfig mirrors observed real-world sync behavior: uploads
// take 1-3s and fail 10% of the time, downloads take 0.8-2s and fail 5%.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		UploadLatencyMin:    time.Second,
		UploadLatencyMax:    3 * time.Second,
		DownloadLatencyMin:  800 * time.Millisecond,
		DownloadLatencyMax:  2 * time.Second,
		UploadFailureRate:   0.10,
		DownloadFailureRate: 0.05,
	}
}

// Simulated is a Gateway backed by the local database instead of a network.
// It injects latency and random failures so everything downstream (status
// decay, retry on next interval, conflict handling) gets exercised the same
// way it would against a flaky real connection.
type Simulated struct {
	remote *store.Store
	cfg    SimulatedConfig
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated gateway persisting snapshots in the given
// store. A nil seed source uses a random seed.
func NewSimulated(remote *store.Store, cfg SimulatedConfig, logger *slog.Logger) *Simulated {
	return &Simulated{
		remote: remote,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewSimulatedSeeded creates a simulated gateway with a fixed seed, for
// reproducing failure sequences.
func NewSimulatedSeeded(remote *store.Store, cfg SimulatedConfig, logger *slog.Logger, seed uint64) *Simulated {
	g := NewSimulated(remote, cfg, logger)
	g.rng = rand.New(rand.NewPCG(seed, seed))
	return g
}

// Upload stores the snapshot after simulated latency, or fails with a
// retryable error at the configured rate.
func (g *Simulated) Upload(ctx context.Context, snapshot *domain.Snapshot) error {
	if err := g.sleep(ctx, g.cfg.UploadLatencyMin, g.cfg.UploadLatencyMax); err != nil {
		return err
	}
	if g.roll(g.cfg.UploadFailureRate) {
		if g.logger != nil {
			g.logger.Warn("simulated upload failure", "user_id", snapshot.UserID)
		}
		return errors.Unavailable("upload failed, will retry on next sync")
	}
	return g.remote.PutReplicaSnapshot(ctx, snapshot)
}

// Download returns the stored snapshot after simulated latency. A user who
// has never uploaded gets errors.ErrNotFound.
func (g *Simulated) Download(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if err := g.sleep(ctx, g.cfg.DownloadLatencyMin, g.cfg.DownloadLatencyMax); err != nil {
		return nil, err
	}
	if g.roll(g.cfg.DownloadFailureRate) {
		if g.logger != nil {
			g.logger.Warn("simulated download failure", "user_id", userID)
		}
		return nil, errors.Unavailable("download failed, will retry on next sync")
	}
	return g.remote.ReplicaSnapshot(ctx, userID)
}

// sleep waits a uniformly random duration in [min, max], honoring ctx.
func (g *Simulated) sleep(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		g.mu.Lock()
		d = min + time.Duration(g.rng.Int64N(int64(max-min)))
		g.mu.Unlock()
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// roll returns true at the given probability.
func (g *Simulated) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < rate
}
