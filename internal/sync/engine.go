// Package sync reconciles local and remote snapshots and schedules when the
// reconciliation runs.
package sync

import (
	"cmp"
	"slices"
	"time"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

// historyConflictWindow is how far apart two lastReadTime values for the same
// book may sit before the divergence needs a human decision. Within the
// window the newer entry silently wins.
const historyConflictWindow = 60_000 // ms

// DetectConflicts compares two snapshots and returns the divergences that
// automatic merge cannot safely resolve. Progress never conflicts: the side
// with the higher value always wins.
func DetectConflicts(local, remote *domain.Snapshot) []domain.SyncConflict {
	var conflicts []domain.SyncConflict

	// History: same book on both sides, read times far apart.
	remoteHistory := make(map[string]domain.ReadingHistoryEntry, len(remote.ReadingHistory))
	for _, entry := range remote.ReadingHistory {
		remoteHistory[entry.BookID] = entry
	}
	for _, localEntry := range local.ReadingHistory {
		remoteEntry, ok := remoteHistory[localEntry.BookID]
		if !ok {
			continue
		}
		delta := localEntry.LastReadTime - remoteEntry.LastReadTime
		if delta < 0 {
			delta = -delta
		}
		if delta > historyConflictWindow {
			le, re := localEntry, remoteEntry
			conflicts = append(conflicts, domain.SyncConflict{
				Kind:          domain.ConflictKindHistory,
				BookID:        localEntry.BookID,
				LocalHistory:  &le,
				RemoteHistory: &re,
			})
		}
	}

	// Bookmarks: two distinct IDs pointing at effectively the same spot are
	// one logical bookmark edited on two devices. Anything else unions.
	localIDs := make(map[string]bool, len(local.Bookmarks))
	for _, m := range local.Bookmarks {
		localIDs[m.ID] = true
	}
	remoteIDs := make(map[string]bool, len(remote.Bookmarks))
	for _, m := range remote.Bookmarks {
		remoteIDs[m.ID] = true
	}

	claimed := make(map[string]bool)
	for _, localMark := range local.Bookmarks {
		if remoteIDs[localMark.ID] {
			continue
		}
		for _, remoteMark := range remote.Bookmarks {
			if localIDs[remoteMark.ID] || claimed[remoteMark.ID] {
				continue
			}
			if localMark.SamePlace(remoteMark) {
				claimed[remoteMark.ID] = true
				lm, rm := localMark, remoteMark
				conflicts = append(conflicts, domain.SyncConflict{
					Kind:           domain.ConflictKindBookmark,
					BookID:         localMark.BookID,
					LocalBookmark:  &lm,
					RemoteBookmark: &rm,
				})
				break
			}
		}
	}

	return conflicts
}

// Merge combines two snapshots without consulting anyone: per-book latest
// history entry, bookmark union, higher progress per book. Callers are
// expected to run DetectConflicts first and only Merge when it came back
// empty (or after resolutions have been collected).
func Merge(local, remote *domain.Snapshot) *domain.Snapshot {
	merged := &domain.Snapshot{
		UserID:          local.UserID,
		ReadingProgress: make(map[string]domain.ReadingProgress),
	}
	if merged.UserID == "" {
		merged.UserID = remote.UserID
	}

	// History: per book, the entry with the larger lastReadTime wins.
	byBook := make(map[string]domain.ReadingHistoryEntry)
	for _, entry := range local.ReadingHistory {
		byBook[entry.BookID] = entry
	}
	for _, entry := range remote.ReadingHistory {
		if existing, ok := byBook[entry.BookID]; !ok || entry.LastReadTime > existing.LastReadTime {
			byBook[entry.BookID] = entry
		}
	}
	merged.ReadingHistory = make([]domain.ReadingHistoryEntry, 0, len(byBook))
	for _, entry := range byBook {
		merged.ReadingHistory = append(merged.ReadingHistory, entry)
	}
	slices.SortFunc(merged.ReadingHistory, func(a, b domain.ReadingHistoryEntry) int {
		if a.LastReadTime != b.LastReadTime {
			if a.LastReadTime > b.LastReadTime {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.BookID, b.BookID)
	})

	// Bookmarks: union by ID.
	byID := make(map[string]domain.Bookmark)
	for _, mark := range local.Bookmarks {
		byID[mark.ID] = mark
	}
	for _, mark := range remote.Bookmarks {
		byID[mark.ID] = mark
	}
	merged.Bookmarks = make([]domain.Bookmark, 0, len(byID))
	for _, mark := range byID {
		merged.Bookmarks = append(merged.Bookmarks, mark)
	}
	slices.SortFunc(merged.Bookmarks, func(a, b domain.Bookmark) int {
		if a.CreatedTime != b.CreatedTime {
			if a.CreatedTime > b.CreatedTime {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})

	// Progress: per book, higher percentage wins.
	for bookID, p := range local.ReadingProgress {
		merged.ReadingProgress[bookID] = p
	}
	for bookID, p := range remote.ReadingProgress {
		if existing, ok := merged.ReadingProgress[bookID]; !ok || p.Progress > existing.Progress {
			merged.ReadingProgress[bookID] = p
		}
	}

	merged.LastModified = max(local.LastModified, remote.LastModified)
	merged.Version = max(local.Version, remote.Version) + 1

	return merged
}

// ResolveConflicts merges the two snapshots, then overrides the automatic
// result for each conflict the user decided. Resolutions are keyed by
// SyncConflict.Key. A call that applies no resolutions returns the plain
// merge: no extra version bump for deciding nothing.
func ResolveConflicts(local, remote *domain.Snapshot, resolutions map[string]domain.Resolution) *domain.Snapshot {
	conflicts := DetectConflicts(local, remote)
	merged := Merge(local, remote)

	applied := 0
	for _, conflict := range conflicts {
		choice, ok := resolutions[conflict.Key()]
		if !ok || choice == domain.ResolutionMerge {
			continue
		}

		switch conflict.Kind {
		case domain.ConflictKindHistory:
			winner := conflict.LocalHistory
			if choice == domain.ResolutionRemote {
				winner = conflict.RemoteHistory
			}
			for i := range merged.ReadingHistory {
				if merged.ReadingHistory[i].BookID == conflict.BookID {
					merged.ReadingHistory[i] = *winner
					applied++
					break
				}
			}

		case domain.ConflictKindBookmark:
			winner, loser := conflict.LocalBookmark, conflict.RemoteBookmark
			if choice == domain.ResolutionRemote {
				winner, loser = loser, winner
			}
			merged.Bookmarks = slices.DeleteFunc(merged.Bookmarks, func(m domain.Bookmark) bool {
				return m.ID == loser.ID
			})
			if !slices.ContainsFunc(merged.Bookmarks, func(m domain.Bookmark) bool {
				return m.ID == winner.ID
			}) {
				merged.Bookmarks = append(merged.Bookmarks, *winner)
			}
			applied++
		}
	}

	if applied > 0 {
		merged.Version++
		merged.LastModified = time.Now().UnixMilli()
	}

	return merged
}
