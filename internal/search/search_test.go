package search

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

func setupTestIndex(t *testing.T) *Index {
	t.Helper()

	index, err := NewIndex(slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	return index
}

func TestNewIndex_Empty(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestIndexHistoryEntry_ReplacesSameBook(t *testing.T) {
	index := setupTestIndex(t)

	entry := domain.ReadingHistoryEntry{
		BookID:    "book-1",
		BookTitle: "The Hobbit",
		Author:    "J.R.R. Tolkien",
	}
	require.NoError(t, index.IndexHistoryEntry("user-1", entry))

	entry.LastChapterTitle = "Riddles in the Dark"
	require.NoError(t, index.IndexHistoryEntry("user-1", entry))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "same book upserts one document")
}

func TestSearch_TitleMatch(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexHistoryEntry("user-1", domain.ReadingHistoryEntry{
		BookID:    "book-1",
		BookTitle: "The Hobbit",
		Author:    "J.R.R. Tolkien",
	}))
	require.NoError(t, index.IndexHistoryEntry("user-1", domain.ReadingHistoryEntry{
		BookID:    "book-2",
		BookTitle: "Dune",
		Author:    "Frank Herbert",
	}))

	result, err := index.Search(context.Background(), DefaultParams("user-1", "hobbit"))
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "book-1", result.Hits[0].BookID)
	assert.Equal(t, DocTypeHistory, result.Hits[0].Type)
	assert.Equal(t, "The Hobbit", result.Hits[0].Title)
}

func TestSearch_ScopedToUser(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexHistoryEntry("user-1", domain.ReadingHistoryEntry{
		BookID:    "book-1",
		BookTitle: "The Hobbit",
	}))
	require.NoError(t, index.IndexHistoryEntry("user-2", domain.ReadingHistoryEntry{
		BookID:    "book-1",
		BookTitle: "The Hobbit",
	}))

	result, err := index.Search(context.Background(), DefaultParams("user-1", "hobbit"))
	require.NoError(t, err)
	assert.Len(t, result.Hits, 1, "other users' data must not leak")
}

func TestSearch_BookmarkNote(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexBookmark("user-1", domain.Bookmark{
		ID:           "mark-1",
		BookID:       "book-1",
		BookTitle:    "The Hobbit",
		ChapterTitle: "An Unexpected Party",
		Note:         "dwarves arrive uninvited",
		Position:     0.2,
	}))

	result, err := index.Search(context.Background(), DefaultParams("user-1", "uninvited"))
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "mark-1", result.Hits[0].ID)
	assert.Equal(t, DocTypeBookmark, result.Hits[0].Type)
}

func TestSearch_TypeFilter(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexHistoryEntry("user-1", domain.ReadingHistoryEntry{
		BookID:    "book-1",
		BookTitle: "The Hobbit",
	}))
	require.NoError(t, index.IndexBookmark("user-1", domain.Bookmark{
		ID:        "mark-1",
		BookID:    "book-1",
		BookTitle: "The Hobbit",
	}))

	params := DefaultParams("user-1", "hobbit")
	params.Types = []string{string(DocTypeBookmark)}

	result, err := index.Search(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, DocTypeBookmark, result.Hits[0].Type)
}

func TestDeleteBookmark(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexBookmark("user-1", domain.Bookmark{
		ID:        "mark-1",
		BookID:    "book-1",
		BookTitle: "The Hobbit",
	}))
	require.NoError(t, index.DeleteBookmark("mark-1"))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestIndexAll_Batch(t *testing.T) {
	index := setupTestIndex(t)

	history := []domain.ReadingHistoryEntry{
		{BookID: "book-1", BookTitle: "Book One"},
		{BookID: "book-2", BookTitle: "Book Two"},
	}
	marks := []domain.Bookmark{
		{ID: "mark-1", BookID: "book-1", BookTitle: "Book One"},
	}

	require.NoError(t, index.IndexAll("user-1", history, marks))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestIndexAll_DropsStaleDocuments(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.IndexBookmark("user-1", domain.Bookmark{
		ID: "mark-kept", BookID: "book-1", Note: "the dragon hoard",
	}))
	require.NoError(t, index.IndexBookmark("user-1", domain.Bookmark{
		ID: "mark-dropped", BookID: "book-1", Note: "an unexpected party",
	}))
	require.NoError(t, index.IndexBookmark("user-2", domain.Bookmark{
		ID: "mark-other-user", BookID: "book-9", Note: "an unexpected party",
	}))

	// A merge kept only one of user-1's bookmarks.
	require.NoError(t, index.IndexAll("user-1", nil, []domain.Bookmark{
		{ID: "mark-kept", BookID: "book-1", Note: "the dragon hoard"},
	}))

	result, err := index.Search(ctx, DefaultParams("user-1", "unexpected"))
	require.NoError(t, err)
	assert.Empty(t, result.Hits, "dropped bookmark must not linger in results")

	result, err = index.Search(ctx, DefaultParams("user-1", "dragon"))
	require.NoError(t, err)
	assert.Len(t, result.Hits, 1)

	// Other users are untouched by the rebuild.
	result, err = index.Search(ctx, DefaultParams("user-2", "unexpected"))
	require.NoError(t, err)
	assert.Len(t, result.Hits, 1)
}

func TestSearch_FuzzyTitle(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexHistoryEntry("user-1", domain.ReadingHistoryEntry{
		BookID:    "book-1",
		BookTitle: "The Hobbit",
	}))

	// One character off still finds the book.
	result, err := index.Search(context.Background(), DefaultParams("user-1", "hobbat"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Hits)
}

func TestSearch_EmptyQueryMatchesAllForUser(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexHistoryEntry("user-1", domain.ReadingHistoryEntry{
		BookID:    "book-1",
		BookTitle: "The Hobbit",
	}))
	require.NoError(t, index.IndexHistoryEntry("user-2", domain.ReadingHistoryEntry{
		BookID:    "book-9",
		BookTitle: "Dune",
	}))

	result, err := index.Search(context.Background(), DefaultParams("user-1", ""))
	require.NoError(t, err)
	assert.Len(t, result.Hits, 1)
}
