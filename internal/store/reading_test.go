package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readwellapp/readwell-sync/internal/domain"
	"github.com/readwellapp/readwell-sync/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReadingHistory_EmptyByDefault(t *testing.T) {
	s := setupTestStore(t)

	entries, err := s.ReadingHistory(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutReadingHistory_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entries := []domain.ReadingHistoryEntry{
		{BookID: "book-1", BookTitle: "Dune", LastReadTime: 1000},
		{BookID: "book-2", BookTitle: "Hyperion", LastReadTime: 2000},
	}
	require.NoError(t, s.PutReadingHistory(ctx, "user-1", entries))

	got, err := s.ReadingHistory(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Most recently read first.
	assert.Equal(t, "book-2", got[0].BookID)
	assert.Equal(t, "book-1", got[1].BookID)
}

func TestPutReadingHistory_CapsAtFifty(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entries := make([]domain.ReadingHistoryEntry, 0, 60)
	for i := range 60 {
		entries = append(entries, domain.ReadingHistoryEntry{
			BookID:       fmt.Sprintf("book-%d", i),
			LastReadTime: int64(i * 1000),
		})
	}
	require.NoError(t, s.PutReadingHistory(ctx, "user-1", entries))

	got, err := s.ReadingHistory(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, got, domain.MaxHistoryEntries)
	// The oldest entries were the ones evicted.
	assert.Equal(t, "book-59", got[0].BookID)
	assert.Equal(t, "book-10", got[len(got)-1].BookID)
}

func TestReadingHistory_ScopedByUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutReadingHistory(ctx, "user-A", []domain.ReadingHistoryEntry{{BookID: "book-1"}}))

	got, err := s.ReadingHistory(ctx, "user-B")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBookmarks_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	marks := []domain.Bookmark{
		{ID: "mark-1", BookID: "book-1", ChapterID: "ch-1", Position: 0.25},
		{ID: "mark-2", BookID: "book-1", ChapterID: "ch-3", Position: 0.8, Note: "great scene"},
	}
	require.NoError(t, s.PutBookmarks(ctx, "user-1", marks))

	got, err := s.Bookmarks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "great scene", got[1].Note)
}

func TestReadingProgress_DefaultsToZero(t *testing.T) {
	s := setupTestStore(t)

	p, err := s.ReadingProgressFor(context.Background(), "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, "book-1", p.BookID)
	assert.Zero(t, p.Progress)
	assert.Empty(t, p.ReadChapters)
}

func TestReadingProgress_RoundTripAndIndex(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p1 := domain.ReadingProgress{BookID: "book-1", TotalChapters: 10, ReadChapters: []string{"ch-1"}, Progress: 10}
	p2 := domain.ReadingProgress{BookID: "book-2", TotalChapters: 4, ReadChapters: []string{"ch-1", "ch-2"}, Progress: 50}

	require.NoError(t, s.PutReadingProgress(ctx, "user-1", p1))
	require.NoError(t, s.PutReadingProgress(ctx, "user-1", p2))
	// Writing the same book twice must not duplicate the index entry.
	require.NoError(t, s.PutReadingProgress(ctx, "user-1", p1))

	all, err := s.AllReadingProgress(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 50.0, all["book-2"].Progress)
}

func TestPutAllReadingProgress_ReplacesMap(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutReadingProgress(ctx, "user-1", domain.ReadingProgress{BookID: "book-old"}))

	merged := map[string]domain.ReadingProgress{
		"book-new": {BookID: "book-new", TotalChapters: 5, ReadChapters: []string{"ch-1"}, Progress: 20},
	}
	require.NoError(t, s.PutAllReadingProgress(ctx, "user-1", merged))

	all, err := s.AllReadingProgress(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	_, hasOld := all["book-old"]
	assert.False(t, hasOld)
}

func TestDataVersion_Counter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	v, err := s.DataVersion(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, s.SetDataVersion(ctx, "user-1", 7))

	v, err = s.DataVersion(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestAutoSync_DefaultsEnabled(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	enabled, err := s.AutoSyncEnabled(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, s.SetAutoSyncEnabled(ctx, "user-1", false))

	enabled, err = s.AutoSyncEnabled(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestReplicaSnapshot_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.ReplicaSnapshot(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)

	snap := &domain.Snapshot{
		UserID:    "user-1",
		Version:   3,
		Bookmarks: []domain.Bookmark{{ID: "mark-1"}},
	}
	require.NoError(t, s.PutReplicaSnapshot(ctx, snap))

	got, err := s.ReplicaSnapshot(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	require.NoError(t, s.DeleteReplicaSnapshot(ctx, "user-1"))

	_, err = s.ReplicaSnapshot(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)
}
