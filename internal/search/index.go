package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

// Index wraps an in-memory Bleve index over reading documents. The index is
// ephemeral: callers rebuild it from the store at startup with IndexAll and
// keep it current through the per-mutation methods.
//
// All public methods are safe for concurrent use.
type Index struct {
	index  bleve.Index
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewIndex creates an empty in-memory search index.
func NewIndex(logger *slog.Logger) (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{
		index:  index,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexHistoryEntry indexes one history entry, replacing any previous
// document for the same (user, book).
func (s *Index) IndexHistoryEntry(userID string, entry domain.ReadingHistoryEntry) error {
	doc := HistoryToDocument(userID, entry)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexBookmark indexes one bookmark.
func (s *Index) IndexBookmark(userID string, mark domain.Bookmark) error {
	doc := BookmarkToDocument(userID, mark)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// DeleteBookmark removes a bookmark from the index.
func (s *Index) DeleteBookmark(bookmarkID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(bookmarkID)
}

// IndexAll rebuilds a user's slice of the index from their full reading
// data, dropping whatever was indexed for them before. Called at startup and
// after a sync merge replaces local collections wholesale.
func (s *Index) IndexAll(userID string, history []domain.ReadingHistoryEntry, marks []domain.Bookmark) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := s.index.NewBatch()

	// Evicted history and resolution-dropped bookmarks must not linger, so
	// queue a delete for every current document of the user. Re-indexed IDs
	// override their delete within the batch.
	count, err := s.index.DocCount()
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if count > 0 {
		userQuery := bleve.NewTermQuery(userID)
		userQuery.SetField("user_id")
		existing, err := s.index.Search(bleve.NewSearchRequestOptions(userQuery, int(count), 0, false))
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		for _, hit := range existing.Hits {
			batch.Delete(hit.ID)
		}
	}
	for _, entry := range history {
		doc := HistoryToDocument(userID, entry)
		if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}
	for _, mark := range marks {
		doc := BookmarkToDocument(userID, mark)
		if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}

	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	s.logger.Debug("rebuilt search index",
		"user_id", userID,
		"history", len(history),
		"bookmarks", len(marks),
	)
	return nil
}

// DocumentCount returns the total number of indexed documents.
func (s *Index) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Params configures a search query.
type Params struct {
	Query  string
	UserID string   // required, scopes results to one user
	Types  []string // document types to include (empty = all)
	Limit  int
	Offset int
}

// DefaultParams returns sensible defaults for a user's query.
func DefaultParams(userID, q string) Params {
	return Params{
		Query:  q,
		UserID: userID,
		Limit:  20,
	}
}

// Result represents search results.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit is a single search result.
type Hit struct {
	ID         string            `json:"id"`
	Type       DocType           `json:"type"`
	Score      float64           `json:"score"`
	BookID     string            `json:"book_id"`
	Title      string            `json:"title"`
	Author     string            `json:"author,omitempty"`
	Chapter    string            `json:"chapter,omitempty"`
	Note       string            `json:"note,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Search executes a query scoped to one user.
func (s *Index) Search(ctx context.Context, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	searchQuery := buildSearchQuery(params)
	searchRequest := bleve.NewSearchRequestOptions(searchQuery, params.Limit, params.Offset, false)

	searchRequest.Highlight = bleve.NewHighlight()
	searchRequest.Highlight.AddField("title")
	searchRequest.Highlight.AddField("note")

	searchRequest.Fields = []string{
		"type", "book_id", "title", "author", "chapter", "note", "timestamp",
	}

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		h := Hit{
			ID:    hit.ID,
			Score: hit.Score,
		}
		if t, ok := hit.Fields["type"].(string); ok {
			h.Type = DocType(t)
		}
		if b, ok := hit.Fields["book_id"].(string); ok {
			h.BookID = b
		}
		if v, ok := hit.Fields["title"].(string); ok {
			h.Title = v
		}
		if v, ok := hit.Fields["author"].(string); ok {
			h.Author = v
		}
		if v, ok := hit.Fields["chapter"].(string); ok {
			h.Chapter = v
		}
		if v, ok := hit.Fields["note"].(string); ok {
			h.Note = v
		}
		if ts, ok := hit.Fields["timestamp"].(float64); ok {
			h.Timestamp = int64(ts)
		}
		if len(hit.Fragments) > 0 {
			h.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					h.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, h)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params. The text query
// fans out over title, author, chapter, and note with a boosted title and a
// fuzzy fallback for typos; identity filters are conjoined on top.
func buildSearchQuery(params Params) query.Query {
	var queries []query.Query

	if params.Query != "" {
		textQueries := []query.Query{}

		titleMatch := bleve.NewMatchQuery(params.Query)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)
		textQueries = append(textQueries, titleMatch)

		authorMatch := bleve.NewMatchQuery(params.Query)
		authorMatch.SetField("author")
		authorMatch.SetBoost(1.5)
		textQueries = append(textQueries, authorMatch)

		chapterMatch := bleve.NewMatchQuery(params.Query)
		chapterMatch.SetField("chapter")
		textQueries = append(textQueries, chapterMatch)

		noteMatch := bleve.NewMatchQuery(params.Query)
		noteMatch.SetField("note")
		textQueries = append(textQueries, noteMatch)

		fuzzyQuery := bleve.NewFuzzyQuery(params.Query)
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("title")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("title")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.UserID != "" {
		userQuery := bleve.NewTermQuery(params.UserID)
		userQuery.SetField("user_id")
		queries = append(queries, userQuery)
	}

	if len(params.Types) > 0 {
		typeQueries := make([]query.Query, len(params.Types))
		for i, t := range params.Types {
			tq := bleve.NewTermQuery(t)
			tq.SetField("type")
			typeQueries[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(typeQueries...))
	}

	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}
