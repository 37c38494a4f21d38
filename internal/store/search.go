package store

import (
	"context"
	"sort"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

const snippetWidth = 200

// SearchFTS runs a full-text query over the bodies of active documents.
// A limit <= 0 means DefaultSearchLimit and an empty category means all
// categories. Results are ordered by score descending, then id ascending.
// Queries without searchable terms, or that the backend cannot parse,
// return an empty result.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int, category string) ([]ScoredDocument, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return []ScoredDocument{}, nil
	}

	results, err := s.fts.search(ctx, s.ActiveDocumentsByHash, terms, limit, category)
	if err != nil {
		if _, coded := dierrors.As(err); coded {
			return nil, err
		}
		return nil, dierrors.StorageIO("full-text match", err)
	}
	if results == nil {
		return []ScoredDocument{}, nil
	}
	SortScored(results)

	for i := range results {
		body, found, err := s.GetContent(ctx, results[i].Hash)
		if err != nil {
			return nil, err
		}
		if found {
			results[i].Snippet = makeSnippet(body, terms, snippetWidth)
		}
	}
	return results, nil
}

func scoredFrom(d Document, score float64) ScoredDocument {
	return ScoredDocument{
		ID:           d.ID,
		Category:     d.Category,
		Path:         d.Path,
		Title:        d.Title,
		Hash:         d.Hash,
		Mtime:        d.Mtime,
		Score:        score,
		LexicalScore: score,
	}
}

// SortScored orders hits by score descending, lexical score descending,
// then id ascending.
func SortScored(docs []ScoredDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		return a.ID < b.ID
	})
}

// ActiveDocumentsByHash returns the active documents whose content is one
// of hashes, optionally restricted to a category.
func (s *Store) ActiveDocumentsByHash(ctx context.Context, hashes []string, category string) ([]Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var docs []Document
	for _, part := range chunkStrings(hashes, 500) {
		args := make([]any, 0, len(part)+2)
		args = append(args, category, category)
		for _, h := range part {
			args = append(args, h)
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM documents
			 WHERE active = 1 AND (? = '' OR category = ?)
			   AND hash IN (`+placeholders(len(part))+`)`, args...)
		if err != nil {
			return nil, dierrors.StorageIO("documents by hash", err)
		}
		err = func() error {
			defer func() { _ = rows.Close() }()
			for rows.Next() {
				d, err := scanDocument(rows)
				if err != nil {
					return err
				}
				docs = append(docs, d)
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, dierrors.StorageIO("documents by hash", err)
		}
	}
	return docs, nil
}

// GetStatus counts active documents in total and per category.
func (s *Store) GetStatus(ctx context.Context) (Status, error) {
	if err := s.checkOpen(); err != nil {
		return Status{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM documents WHERE active = 1 GROUP BY category`)
	if err != nil {
		return Status{}, dierrors.StorageIO("status", err)
	}
	defer func() { _ = rows.Close() }()

	st := Status{Categories: map[string]int{}}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return Status{}, dierrors.StorageIO("scan status", err)
		}
		st.Categories[cat] = n
		st.TotalDocs += n
	}
	if err := rows.Err(); err != nil {
		return Status{}, dierrors.StorageIO("status", err)
	}
	return st, nil
}

// CountActive returns the number of active documents.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE active = 1`).Scan(&n); err != nil {
		return 0, dierrors.StorageIO("count documents", err)
	}
	return n, nil
}
