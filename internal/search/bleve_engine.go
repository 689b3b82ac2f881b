package search

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/headlines/internal/fetch"
)

const snippetLength = 200

// BleveEngine is a full-text index over successfully fetched articles.
type BleveEngine struct {
	idx bleve.Index
}

var (
	_ Searcher     = (*BleveEngine)(nil)
	_ Indexer      = (*BleveEngine)(nil)
	_ DebugStatser = (*BleveEngine)(nil)
)

// NewBleveEngine creates or opens a Bleve index at indexPath.
func NewBleveEngine(indexPath string) (*BleveEngine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
	}

	return &BleveEngine{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true
	title.DocValues = true

	authors := bleve.NewTextFieldMapping()
	authors.Analyzer = standard.Name
	authors.Store = true

	// Stored for snippets.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = true
	text.IncludeTermVectors = false

	url := bleve.NewTextFieldMapping()
	url.Analyzer = standard.Name
	url.Store = true

	date := bleve.NewTextFieldMapping()
	date.Analyzer = keyword.Name
	date.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("authors", authors)
	dm.AddFieldMappingsAt("text", text)
	dm.AddFieldMappingsAt("url", url)
	dm.AddFieldMappingsAt("date", date)

	im.DefaultMapping = dm
	return im
}

// Index adds the successfully fetched records of a snapshot date. Documents
// are keyed by URL, so re-indexing a date replaces earlier versions.
func (b *BleveEngine) Index(records []fetch.Record, date string) (int, error) {
	batch := b.idx.NewBatch()
	n := 0
	for _, r := range records {
		if !r.FetchOK {
			continue
		}
		err := batch.Index(docIDForArticle(r.URL), map[string]any{
			"title":   r.Title,
			"authors": strings.Join(r.Authors, ", "),
			"text":    r.ArticleText,
			"url":     r.URL,
			"date":    date,
		})
		if err != nil {
			return 0, fmt.Errorf("indexing %s: %w", r.URL, err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := b.idx.Batch(batch); err != nil {
		return 0, fmt.Errorf("committing batch: %w", err)
	}
	return n, nil
}

func (b *BleveEngine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// Tokenize input and build an OR of per-term matches across key fields with boosts
	tokens := tokenize(query)
	var qs []bleveQuery.Query
	for _, tok := range tokens {
		qs = append(qs, fieldQueries(tok, "title", 4.0, 3.5)...)
		qs = append(qs, fieldQueries(tok, "authors", 2.0, 1.8)...)
		qs = append(qs, fieldQueries(tok, "text", 1.0, 0.8)...)
		qs = append(qs, fieldQueries(tok, "url", 0.5, 0.3)...)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	q := bleve.NewDisjunctionQuery(qs...)
	srch := bleve.NewSearchRequestOptions(q, limit, 0, false)
	srch.Fields = []string{"title", "authors", "text", "url", "date"}
	res, err := b.idx.Search(srch)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		r := &Result{
			URL:   strings.TrimPrefix(h.ID, "article:"),
			Score: h.Score,
		}
		if t, ok := h.Fields["title"].(string); ok {
			r.Title = t
		}
		if a, ok := h.Fields["authors"].(string); ok {
			r.Authors = a
		}
		if d, ok := h.Fields["date"].(string); ok {
			r.Date = d
		}
		if text, ok := h.Fields["text"].(string); ok {
			r.Snippet = findBestSnippet(text, tokens, snippetLength)
		}
		out = append(out, r)
	}
	return out, nil
}

// fieldQueries returns a match and a prefix query for tok on field.
func fieldQueries(tok, field string, matchBoost, prefixBoost float64) []bleveQuery.Query {
	m := bleve.NewMatchQuery(tok)
	m.SetField(field)
	m.SetBoost(matchBoost)

	p := bleve.NewPrefixQuery(strings.ToLower(tok))
	p.SetField(field)
	p.SetBoost(prefixBoost)

	return []bleveQuery.Query{m, p}
}

// DocCount reports total documents in the index.
func (b *BleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (b *BleveEngine) Close() error {
	return b.idx.Close()
}

func docIDForArticle(url string) string { return "article:" + url }
