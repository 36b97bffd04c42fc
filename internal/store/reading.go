package store

import (
	"context"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

// Reading data is stored as whole per-user collections rather than one record
// per entry: sync always moves full snapshots, so the read and write paths
// both want the complete list anyway. Progress is the exception; it is
// written per book on every chapter turn, with a small index of book IDs so
// snapshot assembly doesn't have to scan.

// ReadingHistory returns the user's history, most recently read first.
// A missing or corrupt record reads as an empty list.
func (s *Store) ReadingHistory(ctx context.Context, userID string) ([]domain.ReadingHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []domain.ReadingHistoryEntry
	if err := s.getOrDefault(historyKey(userID), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// PutReadingHistory replaces the user's history list. The list is trimmed to
// the newest MaxHistoryEntries by last read time before writing.
func (s *Store) PutReadingHistory(ctx context.Context, userID string, entries []domain.ReadingHistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slices.SortFunc(entries, func(a, b domain.ReadingHistoryEntry) int {
		switch {
		case a.LastReadTime > b.LastReadTime:
			return -1
		case a.LastReadTime < b.LastReadTime:
			return 1
		default:
			return 0
		}
	})
	if len(entries) > domain.MaxHistoryEntries {
		entries = entries[:domain.MaxHistoryEntries]
	}
	return s.set(historyKey(userID), entries)
}

// Bookmarks returns the user's bookmarks. A missing or corrupt record reads
// as an empty list.
func (s *Store) Bookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var marks []domain.Bookmark
	if err := s.getOrDefault(bookmarkKey(userID), &marks); err != nil {
		return nil, err
	}
	return marks, nil
}

// PutBookmarks replaces the user's bookmark list.
func (s *Store) PutBookmarks(ctx context.Context, userID string, marks []domain.Bookmark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(bookmarkKey(userID), marks)
}

// ReadingProgressFor returns progress for one book, or a zero-value progress
// for that book when none is stored.
func (s *Store) ReadingProgressFor(ctx context.Context, userID, bookID string) (domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReadingProgress{}, err
	}

	progress := domain.ReadingProgress{BookID: bookID}
	if err := s.getOrDefault(progressKey(userID, bookID), &progress); err != nil {
		return domain.ReadingProgress{}, err
	}
	return progress, nil
}

// HasReadingProgress reports whether a progress record is stored for the
// book. ReadingProgressFor cannot answer this: it returns a pre-filled
// default for missing records.
func (s *Store) HasReadingProgress(ctx context.Context, userID, bookID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.exists(progressKey(userID, bookID))
}

// PutReadingProgress writes progress for one book and maintains the per-user
// book ID index atomically.
func (s *Store) PutReadingProgress(ctx context.Context, userID string, progress domain.ReadingProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := marshal(progress)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(progressKey(userID, progress.BookID), data); err != nil {
			return err
		}

		ids, err := readProgressIndex(txn, userID)
		if err != nil {
			return err
		}
		if slices.Contains(ids, progress.BookID) {
			return nil
		}
		ids = append(ids, progress.BookID)
		idxData, err := marshal(ids)
		if err != nil {
			return err
		}
		return txn.Set(progressIdxKey(userID), idxData)
	})
}

// AllReadingProgress returns progress for every tracked book, keyed by book ID.
func (s *Store) AllReadingProgress(ctx context.Context, userID string) (map[string]domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(map[string]domain.ReadingProgress)
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := readProgressIndex(txn, userID)
		if err != nil {
			return err
		}
		for _, bookID := range ids {
			item, err := txn.Get(progressKey(userID, bookID))
			if err != nil {
				continue // index can be ahead of a deleted record
			}
			var progress domain.ReadingProgress
			if err := item.Value(func(val []byte) error {
				return unmarshal(val, &progress)
			}); err != nil {
				if s.logger != nil {
					s.logger.Warn("discarding corrupt progress record", "book_id", bookID, "error", err)
				}
				continue
			}
			result[bookID] = progress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PutAllReadingProgress replaces the full progress map, rewriting the index
// to match. Used when applying a merged snapshot.
func (s *Store) PutAllReadingProgress(ctx context.Context, userID string, progress map[string]domain.ReadingProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		// Drop records the new map no longer carries.
		old, err := readProgressIndex(txn, userID)
		if err != nil {
			return err
		}
		for _, bookID := range old {
			if _, ok := progress[bookID]; !ok {
				if err := txn.Delete(progressKey(userID, bookID)); err != nil {
					return err
				}
			}
		}

		ids := make([]string, 0, len(progress))
		for bookID, p := range progress {
			data, err := marshal(p)
			if err != nil {
				return err
			}
			if err := txn.Set(progressKey(userID, bookID), data); err != nil {
				return err
			}
			ids = append(ids, bookID)
		}
		slices.Sort(ids)

		idxData, err := marshal(ids)
		if err != nil {
			return err
		}
		return txn.Set(progressIdxKey(userID), idxData)
	})
}

// readProgressIndex loads the book ID index inside an open transaction,
// treating a missing index as empty.
func readProgressIndex(txn *badger.Txn, userID string) ([]string, error) {
	item, err := txn.Get(progressIdxKey(userID))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := item.Value(func(val []byte) error {
		return unmarshal(val, &ids)
	}); err != nil {
		return nil, nil // corrupt index rebuilds on next write
	}
	return ids, nil
}
