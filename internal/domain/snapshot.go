package domain

// Snapshot is the full per-user reading dataset exchanged with the remote
// replica. Sync always moves whole snapshots; there is no per-entity delta.
// Version increases by one on every merge, LastModified carries the newest
// change time (unix milliseconds) seen on either side.
type Snapshot struct {
	UserID          string                     `json:"user_id"`
	ReadingHistory  []ReadingHistoryEntry      `json:"reading_history"`
	Bookmarks       []Bookmark                 `json:"bookmarks"`
	ReadingProgress map[string]ReadingProgress `json:"reading_progress"`
	LastModified    int64                      `json:"last_modified"`
	Version         int64                      `json:"version"`
}

// IsEmpty reports whether the snapshot carries no reading data at all.
func (s *Snapshot) IsEmpty() bool {
	return len(s.ReadingHistory) == 0 && len(s.Bookmarks) == 0 && len(s.ReadingProgress) == 0
}

// SyncStatus is the externally observable state of the sync pipeline.
type SyncStatus string

const (
	SyncStatusIdle     SyncStatus = "idle"
	SyncStatusSyncing  SyncStatus = "syncing"
	SyncStatusSuccess  SyncStatus = "success"
	SyncStatusError    SyncStatus = "error"
	SyncStatusConflict SyncStatus = "conflict"
)

// ConflictKind names which entity family a conflict belongs to. Progress
// never conflicts: the side with more chapters read wins silently.
type ConflictKind string

const (
	ConflictKindHistory  ConflictKind = "history"
	ConflictKindBookmark ConflictKind = "bookmark"
)

// SyncConflict is one divergence between the local and remote snapshot that
// needs a decision. Exactly one of the History or Bookmark pairs is set,
// matching Kind.
type SyncConflict struct {
	Kind   ConflictKind `json:"kind"`
	BookID string       `json:"book_id"`

	LocalHistory  *ReadingHistoryEntry `json:"local_history,omitempty"`
	RemoteHistory *ReadingHistoryEntry `json:"remote_history,omitempty"`

	LocalBookmark  *Bookmark `json:"local_bookmark,omitempty"`
	RemoteBookmark *Bookmark `json:"remote_bookmark,omitempty"`
}

// Key identifies a conflict for resolution: the book for history conflicts,
// the local bookmark ID for bookmark conflicts.
func (c SyncConflict) Key() string {
	if c.Kind == ConflictKindBookmark && c.LocalBookmark != nil {
		return c.LocalBookmark.ID
	}
	return c.BookID
}

// Resolution picks a side for one conflict. ResolutionMerge keeps whatever
// the automatic merge chose.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
	ResolutionMerge  Resolution = "merge"
)
