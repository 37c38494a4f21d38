package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

const bleveBodyField = "body"

// bleveTextIndex keeps content bodies in a bleve index keyed by hash.
type bleveTextIndex struct {
	mu     sync.RWMutex
	idx    bleve.Index
	path   string
	closed bool
}

var _ textIndex = (*bleveTextIndex)(nil)

type bleveContent struct {
	Body string `json:"body"`
}

func newBleveMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = standard.Name

	body := bleve.NewTextFieldMapping()
	body.Analyzer = standard.Name
	body.Store = false
	body.IncludeTermVectors = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(bleveBodyField, body)
	m.DefaultMapping = doc
	return m
}

// newBleveTextIndex opens the index at path, creating it if missing and
// recreating it if its metadata is unreadable. An empty path is in-memory.
func newBleveTextIndex(path string, logger *slog.Logger) (*bleveTextIndex, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(newBleveMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory bleve index: %w", err)
		}
		return &bleveTextIndex{idx: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	if err := checkBleveMeta(path); err != nil {
		// The index is derived data: drop it and let Open rebuild it.
		logger.Warn("bleve index corrupted, recreating",
			slog.String("path", path), slog.String("error", err.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove corrupted bleve index: %w", err)
		}
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, newBleveMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index %s: %w", path, err)
	}
	return &bleveTextIndex{idx: idx, path: path}, nil
}

func checkBleveMeta(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parse index_meta.json: %w", err)
	}
	return nil
}

func (b *bleveTextIndex) name() string { return FTSBackendBleve }

func (b *bleveTextIndex) index(_ context.Context, _ *sql.Tx, hash, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.idx.Index(hash, bleveContent{Body: body}); err != nil {
		return fmt.Errorf("bleve index %s: %w", hash, err)
	}
	return nil
}

// bleveMinPage is the smallest page of hash hits fetched per round.
const bleveMinPage = 100

// search pages through hash hits, best first, resolving each page to
// active documents, until limit documents are collected and no unfetched
// hit can outrank them.
func (b *bleveTextIndex) search(ctx context.Context, lookup documentLookup, terms []string, limit int, category string) ([]ScoredDocument, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	page := limit * 4
	if page < bleveMinPage {
		page = bleveMinPage
	}

	var results []ScoredDocument
	for from := 0; ; from += page {
		hits, total, err := b.match(ctx, terms, from, page)
		if err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			break
		}

		scores := make(map[string]float64, len(hits))
		hashes := make([]string, 0, len(hits))
		for _, h := range hits {
			scores[h.hash] = h.score
			hashes = append(hashes, h.hash)
		}
		docs, err := lookup(ctx, hashes, category)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			results = append(results, scoredFrom(d, scores[d.Hash]))
		}

		if from+len(hits) >= total {
			break
		}
		if len(results) >= limit {
			SortScored(results)
			if hits[len(hits)-1].score < results[limit-1].Score {
				break
			}
		}
	}

	SortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// match returns one page of hash hits ordered by score, and the total
// number of hits.
func (b *bleveTextIndex) match(ctx context.Context, terms []string, from, size int) ([]hashScore, int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, 0, ErrClosed
	}

	q := bleve.NewMatchQuery(strings.Join(terms, " "))
	q.SetField(bleveBodyField)

	req := bleve.NewSearchRequestOptions(q, size, from, false)
	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]hashScore, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, hashScore{hash: h.ID, score: h.Score})
	}
	return hits, int(res.Total), nil
}

func (b *bleveTextIndex) count(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	n, err := b.idx.DocCount()
	return int(n), err
}

// reset replaces the index with an empty one.
func (b *bleveTextIndex) reset(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	if err := b.idx.Close(); err != nil {
		return fmt.Errorf("close bleve index: %w", err)
	}

	var (
		idx bleve.Index
		err error
	)
	if b.path == "" {
		idx, err = bleve.NewMemOnly(newBleveMapping())
	} else {
		if err := os.RemoveAll(b.path); err != nil {
			return fmt.Errorf("remove bleve index: %w", err)
		}
		idx, err = bleve.New(b.path, newBleveMapping())
	}
	if err != nil {
		b.closed = true
		return fmt.Errorf("recreate bleve index: %w", err)
	}
	b.idx = idx
	return nil
}

func (b *bleveTextIndex) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.idx.Close()
}
