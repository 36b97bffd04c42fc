// Package search provides full-text search over the user's reading data
// using Bleve: history entries (title, author) and bookmarks (title,
// chapter, note). The index is in-memory and rebuilt from the store at
// startup.
package search

import "github.com/readwellapp/readwell-sync/internal/domain"

// DocType discriminates indexed entities.
type DocType string

// Document types for the search index.
const (
	DocTypeHistory  DocType = "history"
	DocTypeBookmark DocType = "bookmark"
)

// Document is the unified structure for the Bleve index. History entries and
// bookmarks share one mapping with type discrimination.
type Document struct {
	ID        string  `json:"id"`
	Type      DocType `json:"type"`
	UserID    string  `json:"user_id"`
	BookID    string  `json:"book_id"`
	Title     string  `json:"title"`
	Author    string  `json:"author,omitempty"`
	Chapter   string  `json:"chapter,omitempty"`
	Note      string  `json:"note,omitempty"`
	Timestamp int64   `json:"timestamp"` // unix millis
}

// ToMap converts the document to a map with lowercase field names so they
// match the index mapping. Bleve would otherwise index Go field names.
func (d *Document) ToMap() map[string]any {
	m := map[string]any{
		"id":        d.ID,
		"type":      string(d.Type),
		"user_id":   d.UserID,
		"book_id":   d.BookID,
		"title":     d.Title,
		"timestamp": d.Timestamp,
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if d.Chapter != "" {
		m["chapter"] = d.Chapter
	}
	if d.Note != "" {
		m["note"] = d.Note
	}
	return m
}

// HistoryToDocument converts a reading-history entry to an indexable
// document. One document per (user, book).
func HistoryToDocument(userID string, entry domain.ReadingHistoryEntry) *Document {
	return &Document{
		ID:        "hist/" + userID + "/" + entry.BookID,
		Type:      DocTypeHistory,
		UserID:    userID,
		BookID:    entry.BookID,
		Title:     entry.BookTitle,
		Author:    entry.Author,
		Chapter:   entry.LastChapterTitle,
		Timestamp: entry.LastReadTime,
	}
}

// BookmarkToDocument converts a bookmark to an indexable document. Bookmark
// IDs are globally unique, so they double as document IDs.
func BookmarkToDocument(userID string, mark domain.Bookmark) *Document {
	return &Document{
		ID:        mark.ID,
		Type:      DocTypeBookmark,
		UserID:    userID,
		BookID:    mark.BookID,
		Title:     mark.BookTitle,
		Chapter:   mark.ChapterTitle,
		Note:      mark.Note,
		Timestamp: mark.CreatedTime,
	}
}
