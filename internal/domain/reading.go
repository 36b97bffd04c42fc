package domain

import "slices"

// MaxHistoryEntries caps the reading history list. Recording a new entry
// evicts the least recently read book beyond this count.
const MaxHistoryEntries = 50

// ReadingHistoryEntry is one book the user has opened, keyed by BookID.
// Timestamps are unix milliseconds, which is what goes over the wire in
// snapshots and what conflict detection compares against.
type ReadingHistoryEntry struct {
	BookID           string  `json:"book_id"`
	BookTitle        string  `json:"book_title"`
	Author           string  `json:"author,omitempty"`
	Cover            string  `json:"cover,omitempty"`
	LastChapterID    string  `json:"last_chapter_id"`
	LastChapterTitle string  `json:"last_chapter_title,omitempty"`
	Progress         float64 `json:"progress"` // percent, 0-100
	LastReadTime     int64   `json:"last_read_time"`
	TotalReadTime    int64   `json:"total_read_time"` // minutes
}

// Bookmark marks a position inside a chapter. Position is a fraction of the
// chapter in [0, 1].
type Bookmark struct {
	ID           string  `json:"id"`
	BookID       string  `json:"book_id"`
	BookTitle    string  `json:"book_title,omitempty"`
	ChapterID    string  `json:"chapter_id"`
	ChapterTitle string  `json:"chapter_title,omitempty"`
	Position     float64 `json:"position"`
	Note         string  `json:"note,omitempty"`
	CreatedTime  int64   `json:"created_time"`
}

// SamePlace reports whether two bookmarks point at effectively the same spot:
// same book and chapter, positions within 0.1 of each other.
func (b Bookmark) SamePlace(other Bookmark) bool {
	if b.BookID != other.BookID || b.ChapterID != other.ChapterID {
		return false
	}
	d := b.Position - other.Position
	if d < 0 {
		d = -d
	}
	return d < 0.1
}

// ReadingProgress tracks chapter-level completion for one book. ReadChapters
// only ever grows; Progress is derived from it and clamped to [0, 100].
type ReadingProgress struct {
	BookID           string   `json:"book_id"`
	CurrentChapterID string   `json:"current_chapter_id"`
	Progress         float64  `json:"progress"` // percent, 0-100
	TotalChapters    int      `json:"total_chapters"`
	ReadChapters     []string `json:"read_chapters"`
}

// MarkChapterRead records a finished chapter and recomputes Progress.
// Re-reading a chapter is a no-op on the set.
func (p *ReadingProgress) MarkChapterRead(chapterID string, totalChapters int) {
	p.CurrentChapterID = chapterID
	if totalChapters > 0 {
		p.TotalChapters = totalChapters
	}
	if !slices.Contains(p.ReadChapters, chapterID) {
		p.ReadChapters = append(p.ReadChapters, chapterID)
	}
	p.recompute()
}

func (p *ReadingProgress) recompute() {
	if p.TotalChapters <= 0 {
		p.Progress = 0
		return
	}
	pct := float64(len(p.ReadChapters)) / float64(p.TotalChapters) * 100
	p.Progress = ClampPercent(pct)
}

// ClampPercent bounds a percentage to [0, 100].
func ClampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
