package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for reading documents.
// Text fields get English stemming; identity fields use exact keyword
// matching; the timestamp supports recency sorting.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true // for highlighting
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = en.AnalyzerName
	authorFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("author", authorFieldMapping)

	chapterFieldMapping := bleve.NewTextFieldMapping()
	chapterFieldMapping.Analyzer = en.AnalyzerName
	chapterFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("chapter", chapterFieldMapping)

	noteFieldMapping := bleve.NewTextFieldMapping()
	noteFieldMapping.Analyzer = en.AnalyzerName
	noteFieldMapping.Store = true
	noteFieldMapping.IncludeTermVectors = true // for highlighting
	docMapping.AddFieldMappingsAt("note", noteFieldMapping)

	typeFieldMapping := bleve.NewTextFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("type", typeFieldMapping)

	userFieldMapping := bleve.NewTextFieldMapping()
	userFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("user_id", userFieldMapping)

	bookFieldMapping := bleve.NewTextFieldMapping()
	bookFieldMapping.Analyzer = keyword.Name
	bookFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("book_id", bookFieldMapping)

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	timestampFieldMapping := bleve.NewNumericFieldMapping()
	timestampFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("timestamp", timestampFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
