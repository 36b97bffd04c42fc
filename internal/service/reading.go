package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/readwellapp/readwell-sync/internal/domain"
	"github.com/readwellapp/readwell-sync/internal/errors"
	"github.com/readwellapp/readwell-sync/internal/id"
	"github.com/readwellapp/readwell-sync/internal/store"
)

// ChangeNotifier is told about every local reading-data mutation so pending
// changes can be flushed to the cloud. The sync orchestrator implements it.
type ChangeNotifier interface {
	NotifyChange()
}

// NoopNotifier discards change notifications.
type NoopNotifier struct{}

func (NoopNotifier) NotifyChange() {}

// Indexer keeps the search index in step with reading data. The search
// package implements it; tests use NoopIndexer.
type Indexer interface {
	IndexHistoryEntry(userID string, entry domain.ReadingHistoryEntry) error
	IndexBookmark(userID string, mark domain.Bookmark) error
	DeleteBookmark(bookmarkID string) error
}

// NoopIndexer discards index updates.
type NoopIndexer struct{}

func (NoopIndexer) IndexHistoryEntry(string, domain.ReadingHistoryEntry) error { return nil }
func (NoopIndexer) IndexBookmark(string, domain.Bookmark) error { return nil }
func (NoopIndexer) DeleteBookmark(string) error { return nil }

// ReadingService owns local mutations of reading history, bookmarks, and
// per-book progress. Every write goes through here so the notifier and the
// search index see a consistent stream of changes.
type ReadingService struct {
	store    *store.Store
	notifier ChangeNotifier
	index    Indexer
	logger   *slog.Logger
}

// NewReadingService creates a new reading service.
func NewReadingService(s *store.Store, notifier ChangeNotifier, index Indexer, logger *slog.Logger) *ReadingService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if index == nil {
		index = NoopIndexer{}
	}
	return &ReadingService{
		store:    s,
		notifier: notifier,
		index:    index,
		logger:   logger,
	}
}

// RecordHistoryRequest contains the data for recording a reader visit.
type RecordHistoryRequest struct {
	BookID       string  `json:"book_id" validate:"required"`
	BookTitle    string  `json:"book_title" validate:"required"`
	Author       string  `json:"author"`
	Cover        string  `json:"cover"`
	ChapterID    string  `json:"chapter_id" validate:"required"`
	ChapterTitle string  `json:"chapter_title"`
	Progress     float64 `json:"progress" validate:"gte=0,lte=100"`
	ReadMinutes  int64   `json:"read_minutes" validate:"gte=0"`
}

// RecordHistory upserts the history entry for a book after the reader opens a
// chapter. Accumulated read time is added to the existing entry, the list is
// re-capped at the most recent fifty books, and a progress record is created
// if the book has never had one. History and progress always exist together.
func (s *ReadingService) RecordHistory(ctx context.Context, userID string, req RecordHistoryRequest) (*domain.ReadingHistoryEntry, error) {
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	history, err := s.store.ReadingHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	now := time.Now().UnixMilli()
	var entry *domain.ReadingHistoryEntry
	for i := range history {
		if history[i].BookID == req.BookID {
			entry = &history[i]
			break
		}
	}
	if entry == nil {
		history = append(history, domain.ReadingHistoryEntry{BookID: req.BookID})
		entry = &history[len(history)-1]
	}

	entry.BookTitle = req.BookTitle
	entry.Author = req.Author
	entry.Cover = req.Cover
	entry.LastChapterID = req.ChapterID
	entry.LastChapterTitle = req.ChapterTitle
	entry.Progress = domain.ClampPercent(req.Progress)
	entry.LastReadTime = now
	entry.TotalReadTime += req.ReadMinutes
	recorded := *entry

	if err := s.store.PutReadingHistory(ctx, userID, history); err != nil {
		return nil, fmt.Errorf("store history: %w", err)
	}

	if err := s.ensureProgress(ctx, userID, req.BookID, req.ChapterID); err != nil {
		return nil, err
	}

	if err := s.index.IndexHistoryEntry(userID, recorded); err != nil {
		s.logger.Warn("failed to index history entry", "book_id", req.BookID, "error", err)
	}

	s.logger.Debug("recorded history",
		"user_id", userID,
		"book_id", req.BookID,
		"chapter_id", req.ChapterID,
	)

	s.notifier.NotifyChange()
	return &recorded, nil
}

// History returns the user's reading history, most recent first.
func (s *ReadingService) History(ctx context.Context, userID string) ([]domain.ReadingHistoryEntry, error) {
	return s.store.ReadingHistory(ctx, userID)
}

// AddBookmarkRequest contains the data for creating a bookmark.
type AddBookmarkRequest struct {
	BookID       string  `json:"book_id" validate:"required"`
	BookTitle    string  `json:"book_title"`
	ChapterID    string  `json:"chapter_id" validate:"required"`
	ChapterTitle string  `json:"chapter_title"`
	Position     float64 `json:"position" validate:"gte=0,lte=1"`
	Note         string  `json:"note" validate:"max=2000"`
}

// AddBookmark creates a bookmark at a position inside a chapter.
func (s *ReadingService) AddBookmark(ctx context.Context, userID string, req AddBookmarkRequest) (*domain.Bookmark, error) {
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	markID, err := id.Generate("mark")
	if err != nil {
		return nil, fmt.Errorf("generate bookmark ID: %w", err)
	}

	mark := domain.Bookmark{
		ID:           markID,
		BookID:       req.BookID,
		BookTitle:    req.BookTitle,
		ChapterID:    req.ChapterID,
		ChapterTitle: req.ChapterTitle,
		Position:     req.Position,
		Note:         req.Note,
		CreatedTime:  time.Now().UnixMilli(),
	}

	marks, err := s.store.Bookmarks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	marks = append(marks, mark)

	if err := s.store.PutBookmarks(ctx, userID, marks); err != nil {
		return nil, fmt.Errorf("store bookmarks: %w", err)
	}

	if err := s.index.IndexBookmark(userID, mark); err != nil {
		s.logger.Warn("failed to index bookmark", "bookmark_id", mark.ID, "error", err)
	}

	s.logger.Debug("added bookmark",
		"user_id", userID,
		"bookmark_id", mark.ID,
		"book_id", mark.BookID,
	)

	s.notifier.NotifyChange()
	return &mark, nil
}

// RemoveBookmark deletes a bookmark by ID.
func (s *ReadingService) RemoveBookmark(ctx context.Context, userID, bookmarkID string) error {
	marks, err := s.store.Bookmarks(ctx, userID)
	if err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}

	kept := marks[:0]
	found := false
	for _, m := range marks {
		if m.ID == bookmarkID {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return errors.NotFoundf("bookmark %s not found", bookmarkID)
	}

	if err := s.store.PutBookmarks(ctx, userID, kept); err != nil {
		return fmt.Errorf("store bookmarks: %w", err)
	}

	if err := s.index.DeleteBookmark(bookmarkID); err != nil {
		s.logger.Warn("failed to remove bookmark from index", "bookmark_id", bookmarkID, "error", err)
	}

	s.notifier.NotifyChange()
	return nil
}

// Bookmarks returns all of the user's bookmarks.
func (s *ReadingService) Bookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	return s.store.Bookmarks(ctx, userID)
}

// BookmarksForBook returns the user's bookmarks within one book.
func (s *ReadingService) BookmarksForBook(ctx context.Context, userID, bookID string) ([]domain.Bookmark, error) {
	marks, err := s.store.Bookmarks(ctx, userID)
	if err != nil {
		return nil, err
	}
	filtered := make([]domain.Bookmark, 0, len(marks))
	for _, m := range marks {
		if m.BookID == bookID {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// UpdateProgressRequest contains the data for marking a chapter as read.
type UpdateProgressRequest struct {
	BookID        string `json:"book_id" validate:"required"`
	BookTitle     string `json:"book_title"`
	ChapterID     string `json:"chapter_id" validate:"required"`
	ChapterTitle  string `json:"chapter_title"`
	TotalChapters int    `json:"total_chapters" validate:"gte=0"`
}

// UpdateProgress marks a chapter as read. The read-chapter set only grows, so
// repeating a chapter never lowers progress. The paired history entry picks up
// the new percentage, and is created if the book has none yet.
func (s *ReadingService) UpdateProgress(ctx context.Context, userID string, req UpdateProgressRequest) (*domain.ReadingProgress, error) {
	if err := validate.Struct(req); err != nil {
		return nil, formatValidationError(err)
	}

	progress, err := s.store.ReadingProgressFor(ctx, userID, req.BookID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	progress.BookID = req.BookID
	progress.MarkChapterRead(req.ChapterID, req.TotalChapters)

	if err := s.store.PutReadingProgress(ctx, userID, progress); err != nil {
		return nil, fmt.Errorf("store progress: %w", err)
	}

	if err := s.reflectProgressInHistory(ctx, userID, req, progress.Progress); err != nil {
		return nil, err
	}

	s.logger.Debug("updated progress",
		"user_id", userID,
		"book_id", req.BookID,
		"chapter_id", req.ChapterID,
		"progress", progress.Progress,
	)

	s.notifier.NotifyChange()
	return &progress, nil
}

// Progress returns the reading progress for one book, zero-valued if none.
func (s *ReadingService) Progress(ctx context.Context, userID, bookID string) (domain.ReadingProgress, error) {
	return s.store.ReadingProgressFor(ctx, userID, bookID)
}

// AllProgress returns every progress record for the user, keyed by book ID.
func (s *ReadingService) AllProgress(ctx context.Context, userID string) (map[string]domain.ReadingProgress, error) {
	return s.store.AllReadingProgress(ctx, userID)
}

// ensureProgress creates the progress record paired with a history entry.
func (s *ReadingService) ensureProgress(ctx context.Context, userID, bookID, chapterID string) error {
	stored, err := s.store.HasReadingProgress(ctx, userID, bookID)
	if err != nil {
		return fmt.Errorf("check progress: %w", err)
	}
	if stored {
		return nil
	}
	progress := domain.ReadingProgress{
		BookID:           bookID,
		CurrentChapterID: chapterID,
	}
	if err := s.store.PutReadingProgress(ctx, userID, progress); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

// reflectProgressInHistory pushes a new percentage into the paired history
// entry, creating a minimal one when the book was never recorded.
func (s *ReadingService) reflectProgressInHistory(ctx context.Context, userID string, req UpdateProgressRequest, pct float64) error {
	history, err := s.store.ReadingHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	updated := false
	for i := range history {
		if history[i].BookID == req.BookID {
			history[i].Progress = pct
			history[i].LastChapterID = req.ChapterID
			if req.ChapterTitle != "" {
				history[i].LastChapterTitle = req.ChapterTitle
			}
			updated = true
			break
		}
	}
	if !updated {
		history = append(history, domain.ReadingHistoryEntry{
			BookID:           req.BookID,
			BookTitle:        req.BookTitle,
			LastChapterID:    req.ChapterID,
			LastChapterTitle: req.ChapterTitle,
			Progress:         pct,
			LastReadTime:     time.Now().UnixMilli(),
		})
	}

	if err := s.store.PutReadingHistory(ctx, userID, history); err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	return nil
}
