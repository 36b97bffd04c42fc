package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/readwellapp/readwell-sync/internal/domain"
	"github.com/readwellapp/readwell-sync/internal/errors"
	"github.com/readwellapp/readwell-sync/internal/gateway"
	"github.com/readwellapp/readwell-sync/internal/store"
)

// ConflictListener receives the conflicts that halted an automatic sync.
type ConflictListener func(conflicts []domain.SyncConflict)

// Reindexer rebuilds derived per-user state (the search index) after a sync
// replaces local collections wholesale.
type Reindexer interface {
	IndexAll(userID string, history []domain.ReadingHistoryEntry, marks []domain.Bookmark) error
}

// Options tunes orchestrator scheduling.
type Options struct {
	// Interval between automatic uploads of pending changes.
	Interval time.Duration
	// Debounce is the quiet period after a local mutation before the upload
	// fires. Each new mutation restarts it.
	Debounce time.Duration
}

// Orchestrator decides when sync happens. It holds no merge logic itself: it
// watches the session, local mutations and a timer, and drives the gateway
// and the engine accordingly. One sync runs at a time; requests made while
// one is in flight are dropped, not queued.
type Orchestrator struct {
	store   *store.Store
	gw      gateway.Gateway
	status  *gateway.StatusBroadcaster
	reindex Reindexer // optional
	logger  *slog.Logger
	opts    Options

	mu               gosync.Mutex
	userID           string
	autoSync         bool
	pending          bool
	inFlight         bool
	haltedByConflict bool
	debounceTimer    *time.Timer

	conflictListeners map[int]ConflictListener
	nextListenerID    int
	// The snapshot pair that produced the halt, kept so resolution can be
	// applied against exactly what the user was shown.
	conflictLocal  *domain.Snapshot
	conflictRemote *domain.Snapshot

	stopInterval chan struct{}
	done         gosync.WaitGroup
}

// New creates an orchestrator. Call Start to begin interval syncing and
// Close on teardown.
func New(s *store.Store, gw gateway.Gateway, status *gateway.StatusBroadcaster, reindex Reindexer, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:             s,
		gw:                gw,
		status:            status,
		reindex:           reindex,
		logger:            logger,
		opts:              opts,
		autoSync:          true,
		conflictListeners: make(map[int]ConflictListener),
		stopInterval:      make(chan struct{}),
	}
}

// Start launches the interval loop. Every Interval, pending local changes are
// uploaded if a user is signed in and auto-sync is enabled.
func (o *Orchestrator) Start() {
	o.done.Add(1)
	go func() {
		defer o.done.Done()
		ticker := time.NewTicker(o.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-o.stopInterval:
				return
			case <-ticker.C:
				o.intervalSync()
			}
		}
	}()
}

// Close stops scheduling and flushes pending changes to the local snapshot
// fallback. Remote delivery is not attempted; the next startup sync picks the
// data up.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
		o.debounceTimer = nil
	}
	select {
	case <-o.stopInterval:
	default:
		close(o.stopInterval)
	}
	o.mu.Unlock()
	o.done.Wait()

	return o.Flush(ctx)
}

// Flush writes the current snapshot to the local fallback if changes are
// pending. Best effort: errors are returned but nothing retries.
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.mu.Lock()
	userID := o.userID
	pending := o.pending
	o.mu.Unlock()

	if userID == "" || !pending {
		return nil
	}

	snapshot, err := o.buildSnapshot(ctx, userID)
	if err != nil {
		return err
	}
	if err := o.store.SaveLocalSnapshot(ctx, snapshot); err != nil {
		return err
	}
	if o.logger != nil {
		o.logger.Info("flushed pending changes to local snapshot", "user_id", userID, "version", snapshot.Version)
	}
	return nil
}

// HandleAuthChange reacts to session transitions. Signing in triggers a full
// download-and-reconcile; signing out clears all scheduling state.
func (o *Orchestrator) HandleAuthChange(status domain.AuthStatus, user *domain.User) {
	switch status {
	case domain.AuthStatusAuthenticated:
		if user == nil {
			return
		}
		ctx := context.Background()
		o.mu.Lock()
		o.userID = user.ID
		o.haltedByConflict = false
		if enabled, err := o.store.AutoSyncEnabled(ctx, user.ID); err == nil {
			o.autoSync = enabled
		}
		// A teardown snapshot means the previous session ended with changes
		// that never reached the replica; the sync below delivers them.
		if _, err := o.store.LocalSnapshot(ctx, user.ID); err == nil {
			o.pending = true
			if err := o.store.DeleteLocalSnapshot(ctx, user.ID); err != nil && o.logger != nil {
				o.logger.Warn("failed to clear teardown snapshot", "user_id", user.ID, "error", err)
			}
		}
		o.mu.Unlock()

		go func() {
			if err := o.SyncFromCloud(context.Background()); err != nil && o.logger != nil {
				o.logger.Warn("initial sync failed", "error", err)
			}
		}()

	case domain.AuthStatusUnauthenticated:
		o.mu.Lock()
		o.userID = ""
		o.pending = false
		o.haltedByConflict = false
		o.conflictLocal = nil
		o.conflictRemote = nil
		if o.debounceTimer != nil {
			o.debounceTimer.Stop()
			o.debounceTimer = nil
		}
		o.mu.Unlock()
	}
}

// NotifyChange records that local reading data mutated and schedules a
// debounced upload. A mutation during the quiet period restarts it, so the
// upload that eventually fires always carries the latest state.
func (o *Orchestrator) NotifyChange() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending = true
	if o.userID == "" || !o.autoSync || o.haltedByConflict {
		return
	}

	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
	}
	o.debounceTimer = time.AfterFunc(o.opts.Debounce, func() {
		if err := o.SyncToCloud(context.Background()); err != nil && o.logger != nil {
			o.logger.Warn("debounced sync failed", "error", err)
		}
	})
}

// ManualSync uploads pending local changes now.
func (o *Orchestrator) ManualSync(ctx context.Context) error {
	return o.SyncToCloud(ctx)
}

// ForceSync runs a full download-and-reconcile now.
func (o *Orchestrator) ForceSync(ctx context.Context) error {
	return o.SyncFromCloud(ctx)
}

// SetAutoSync toggles automatic syncing and persists the preference.
func (o *Orchestrator) SetAutoSync(ctx context.Context, enabled bool) error {
	o.mu.Lock()
	o.autoSync = enabled
	userID := o.userID
	if !enabled && o.debounceTimer != nil {
		o.debounceTimer.Stop()
		o.debounceTimer = nil
	}
	o.mu.Unlock()

	if userID == "" {
		return nil
	}
	return o.store.SetAutoSyncEnabled(ctx, userID, enabled)
}

// AutoSyncEnabled reports whether automatic syncing is on.
func (o *Orchestrator) AutoSyncEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoSync
}

// HasPendingChanges reports whether local mutations await upload.
func (o *Orchestrator) HasPendingChanges() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}

// OnConflict registers a listener for conflicts that halt automatic sync.
// The returned function unsubscribes.
func (o *Orchestrator) OnConflict(listener ConflictListener) func() {
	o.mu.Lock()
	id := o.nextListenerID
	o.nextListenerID++
	o.conflictListeners[id] = listener
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.conflictListeners, id)
		o.mu.Unlock()
	}
}

// SyncToCloud builds the local snapshot and uploads it. On success the
// pending flag clears and the user's last sync time advances. Transient
// failures leave the pending flag set for the next attempt.
func (o *Orchestrator) SyncToCloud(ctx context.Context) error {
	userID, ok := o.begin()
	if !ok {
		return nil
	}
	defer o.end()

	o.status.Set(domain.SyncStatusSyncing)

	snapshot, err := o.buildSnapshot(ctx, userID)
	if err != nil {
		o.status.Set(domain.SyncStatusError)
		return err
	}

	if err := o.gw.Upload(ctx, snapshot); err != nil {
		o.status.Set(domain.SyncStatusError)
		if o.logger != nil {
			o.logger.Warn("upload failed", "user_id", userID, "error", err)
		}
		return err
	}

	o.mu.Lock()
	o.pending = false
	o.mu.Unlock()

	o.touchSyncTime(ctx, userID)
	o.status.Set(domain.SyncStatusSuccess)
	if o.logger != nil {
		o.logger.Info("uploaded snapshot", "user_id", userID, "version", snapshot.Version)
	}
	return nil
}

// SyncFromCloud downloads the remote snapshot and reconciles it with local
// state. No remote snapshot means this device seeds the replica (once it has
// data to seed with); an empty local store adopts the remote wholesale;
// otherwise the two are merged and the merged snapshot is uploaded. Detected
// conflicts halt automatic sync until resolved.
func (o *Orchestrator) SyncFromCloud(ctx context.Context) error {
	userID, ok := o.begin()
	if !ok {
		return nil
	}
	defer o.end()

	o.status.Set(domain.SyncStatusSyncing)

	local, err := o.buildSnapshot(ctx, userID)
	if err != nil {
		o.status.Set(domain.SyncStatusError)
		return err
	}

	remote, err := o.gw.Download(ctx, userID)
	if errors.Is(err, errors.ErrNotFound) {
		if local.IsEmpty() {
			// Nothing on either side; an empty seed would shadow the real
			// first upload.
			o.status.Set(domain.SyncStatusSuccess)
			return nil
		}
		// Replica has never seen this user: seed it with local state.
		if err := o.gw.Upload(ctx, local); err != nil {
			o.status.Set(domain.SyncStatusError)
			return err
		}
		o.mu.Lock()
		o.pending = false
		o.mu.Unlock()
		o.touchSyncTime(ctx, userID)
		o.status.Set(domain.SyncStatusSuccess)
		return nil
	}
	if err != nil {
		o.status.Set(domain.SyncStatusError)
		if o.logger != nil {
			o.logger.Warn("download failed", "user_id", userID, "error", err)
		}
		return err
	}

	if local.IsEmpty() {
		if err := o.applySnapshot(ctx, remote); err != nil {
			o.status.Set(domain.SyncStatusError)
			return err
		}
		o.touchSyncTime(ctx, userID)
		o.status.Set(domain.SyncStatusSuccess)
		return nil
	}

	conflicts := DetectConflicts(local, remote)
	if len(conflicts) > 0 {
		o.mu.Lock()
		o.haltedByConflict = true
		o.conflictLocal = local
		o.conflictRemote = remote
		targets := make([]ConflictListener, 0, len(o.conflictListeners))
		for _, l := range o.conflictListeners {
			targets = append(targets, l)
		}
		o.mu.Unlock()

		o.status.Set(domain.SyncStatusConflict)
		if o.logger != nil {
			o.logger.Info("sync halted on conflicts", "user_id", userID, "conflicts", len(conflicts))
		}
		for _, l := range targets {
			l(conflicts)
		}
		return errors.Conflict("sync halted: conflicts need resolution").WithDetails(conflicts)
	}

	merged := Merge(local, remote)
	if err := o.applySnapshot(ctx, merged); err != nil {
		o.status.Set(domain.SyncStatusError)
		return err
	}

	// The merge bumped the version past the remote's, so push the merged
	// snapshot back out; otherwise local-only mutations never leave the
	// device.
	if err := o.gw.Upload(ctx, merged); err != nil {
		o.mu.Lock()
		o.pending = true
		o.mu.Unlock()
		o.status.Set(domain.SyncStatusError)
		if o.logger != nil {
			o.logger.Warn("merged locally but upload failed", "user_id", userID, "error", err)
		}
		return err
	}

	o.mu.Lock()
	o.pending = false
	o.mu.Unlock()

	o.touchSyncTime(ctx, userID)
	o.status.Set(domain.SyncStatusSuccess)
	if o.logger != nil {
		o.logger.Info("merged remote snapshot", "user_id", userID, "version", merged.Version)
	}
	return nil
}

// ResolveAndApply applies the user's conflict decisions against the snapshot
// pair that halted sync, stores the result, uploads it, and resumes
// automatic syncing.
func (o *Orchestrator) ResolveAndApply(ctx context.Context, resolutions map[string]domain.Resolution) error {
	userID, ok := o.begin()
	if !ok {
		return errors.Unavailable("a sync is already running, try again")
	}
	defer o.end()

	o.mu.Lock()
	local, remote := o.conflictLocal, o.conflictRemote
	o.mu.Unlock()

	if local == nil || remote == nil {
		return errors.NotFound("no conflicts awaiting resolution")
	}

	resolved := ResolveConflicts(local, remote, resolutions)
	if err := o.applySnapshot(ctx, resolved); err != nil {
		return err
	}
	if err := o.gw.Upload(ctx, resolved); err != nil {
		// Local state is already consistent; the upload retries on the next
		// scheduled sync.
		o.mu.Lock()
		o.pending = true
		o.clearConflictState()
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	o.pending = false
	o.clearConflictState()
	o.mu.Unlock()

	o.touchSyncTime(ctx, userID)
	o.status.Set(domain.SyncStatusSuccess)
	return nil
}

// PendingConflicts returns the conflicts that halted sync, if any.
func (o *Orchestrator) PendingConflicts() []domain.SyncConflict {
	o.mu.Lock()
	local, remote := o.conflictLocal, o.conflictRemote
	o.mu.Unlock()

	if local == nil || remote == nil {
		return nil
	}
	return DetectConflicts(local, remote)
}

// clearConflictState must be called with the mutex held.
func (o *Orchestrator) clearConflictState() {
	o.haltedByConflict = false
	o.conflictLocal = nil
	o.conflictRemote = nil
}

// begin claims the in-flight slot. Returns false when no user is signed in or
// a sync is already running.
func (o *Orchestrator) begin() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.userID == "" || o.inFlight {
		return "", false
	}
	o.inFlight = true
	return o.userID, true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

func (o *Orchestrator) intervalSync() {
	o.mu.Lock()
	run := o.userID != "" && o.autoSync && o.pending && !o.haltedByConflict
	o.mu.Unlock()
	if !run {
		return
	}
	if err := o.SyncToCloud(context.Background()); err != nil && o.logger != nil {
		o.logger.Warn("interval sync failed", "error", err)
	}
}

// buildSnapshot assembles the full local snapshot for upload or comparison.
func (o *Orchestrator) buildSnapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	history, err := o.store.ReadingHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	bookmarks, err := o.store.Bookmarks(ctx, userID)
	if err != nil {
		return nil, err
	}
	progress, err := o.store.AllReadingProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	version, err := o.store.DataVersion(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &domain.Snapshot{
		UserID:          userID,
		ReadingHistory:  history,
		Bookmarks:       bookmarks,
		ReadingProgress: progress,
		LastModified:    time.Now().UnixMilli(),
		Version:         version,
	}, nil
}

// applySnapshot writes a snapshot into the local store and advances the
// stored version. Not transactional across keys; a crash mid-apply heals on
// the next sync.
func (o *Orchestrator) applySnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	if err := o.store.PutReadingHistory(ctx, snapshot.UserID, snapshot.ReadingHistory); err != nil {
		return err
	}
	if err := o.store.PutBookmarks(ctx, snapshot.UserID, snapshot.Bookmarks); err != nil {
		return err
	}
	if err := o.store.PutAllReadingProgress(ctx, snapshot.UserID, snapshot.ReadingProgress); err != nil {
		return err
	}
	if err := o.store.SetDataVersion(ctx, snapshot.UserID, snapshot.Version); err != nil {
		return err
	}

	// The index is derived data; a failed rebuild must not fail the sync.
	if o.reindex != nil {
		if err := o.reindex.IndexAll(snapshot.UserID, snapshot.ReadingHistory, snapshot.Bookmarks); err != nil && o.logger != nil {
			o.logger.Warn("search reindex failed", "user_id", snapshot.UserID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) touchSyncTime(ctx context.Context, userID string) {
	user, err := o.store.GetUser(ctx, userID)
	if err != nil {
		return
	}
	user.TouchSyncTime()
	if err := o.store.UpdateUser(ctx, user); err != nil && o.logger != nil {
		o.logger.Warn("failed to update last sync time", "user_id", userID, "error", err)
	}
}
