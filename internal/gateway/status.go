package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

// StatusListener receives sync status transitions.
type StatusListener func(status domain.SyncStatus)

// StatusBroadcaster tracks the externally visible sync status and fans out
// transitions to subscribers. Terminal states (success, error, conflict)
// revert to idle on their own after a short decay, so status displays never
// stick on a stale result.
type StatusBroadcaster struct {
	mu        sync.Mutex
	current   domain.SyncStatus
	listeners map[int]StatusListener
	nextID    int
	decay     *time.Timer

	successDecay time.Duration
	errorDecay   time.Duration
	logger       *slog.Logger
}

// NewStatusBroadcaster creates a broadcaster starting in the idle state.
func NewStatusBroadcaster(successDecay, errorDecay time.Duration, logger *slog.Logger) *StatusBroadcaster {
	return &StatusBroadcaster{
		current:      domain.SyncStatusIdle,
		listeners:    make(map[int]StatusListener),
		successDecay: successDecay,
		errorDecay:   errorDecay,
		logger:       logger,
	}
}

// Status returns the current sync status.
func (b *StatusBroadcaster) Status() domain.SyncStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers a listener and immediately replays the current status
// to it. The returned function unsubscribes; it is safe to call more than
// once.
func (b *StatusBroadcaster) Subscribe(listener StatusListener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	current := b.current
	b.mu.Unlock()

	// Replay outside the lock so a listener that re-enters the broadcaster
	// doesn't deadlock.
	listener(current)

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Set transitions to a new status and notifies subscribers. Setting a
// terminal status arms the decay timer; any pending decay is cancelled first
// so a fresh transition always gets its full display window. Setting the
// same terminal status again refreshes the window.
func (b *StatusBroadcaster) Set(status domain.SyncStatus) {
	b.mu.Lock()
	if b.decay != nil {
		b.decay.Stop()
		b.decay = nil
	}
	b.current = status

	switch status {
	case domain.SyncStatusSuccess:
		b.decay = time.AfterFunc(b.successDecay, b.revertToIdle)
	case domain.SyncStatusError, domain.SyncStatusConflict:
		b.decay = time.AfterFunc(b.errorDecay, b.revertToIdle)
	}

	targets := make([]StatusListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		targets = append(targets, l)
	}
	b.mu.Unlock()

	if b.logger != nil {
		b.logger.Debug("sync status changed", "status", string(status))
	}
	for _, l := range targets {
		l(status)
	}
}

func (b *StatusBroadcaster) revertToIdle() {
	b.Set(domain.SyncStatusIdle)
}
