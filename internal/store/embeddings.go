package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

// Embedding is one stored vector.
type Embedding struct {
	Hash       string
	ChunkIndex int
	Model      string
	Vector     []float32
}

// EncodeVector packs v as little-endian float32.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// InsertEmbedding stores the vector for one chunk of a content blob,
// replacing any previous vector for the same (hash, chunk, model).
func (s *Store) InsertEmbedding(ctx context.Context, hash string, chunkIndex int, vector []float32, model string) error {
	if len(vector) == 0 {
		return dierrors.BadRequest("embedding vector is empty")
	}
	if chunkIndex < 0 {
		return dierrors.BadRequest(fmt.Sprintf("chunk index %d is negative", chunkIndex))
	}
	return s.withWriteTx(ctx, "insert embedding", func(tx *sql.Tx) error {
		return s.insertEmbeddingTx(ctx, tx, Embedding{Hash: hash, ChunkIndex: chunkIndex, Model: model, Vector: vector})
	})
}

// InsertEmbeddings stores all chunks of one or more blobs atomically.
func (s *Store) InsertEmbeddings(ctx context.Context, embs []Embedding) error {
	if len(embs) == 0 {
		return nil
	}
	return s.withWriteTx(ctx, "insert embeddings", func(tx *sql.Tx) error {
		for _, e := range embs {
			if err := s.insertEmbeddingTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertEmbeddingTx(ctx context.Context, tx *sql.Tx, e Embedding) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO embeddings(hash, chunk_index, model, dims, vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash, chunk_index, model) DO UPDATE SET
		   dims = excluded.dims, vector = excluded.vector, created_at = excluded.created_at`,
		e.Hash, e.ChunkIndex, e.Model, len(e.Vector), EncodeVector(e.Vector), s.nowMillis())
	if err != nil {
		if isForeignKeyViolation(err) {
			return dierrors.ConstraintViolation(fmt.Sprintf("embedding references missing content %s", e.Hash))
		}
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// GetEmbedding returns the most recently written vector for a chunk,
// whichever model produced it.
func (s *Store) GetEmbedding(ctx context.Context, hash string, chunkIndex int) ([]float32, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE hash = ? AND chunk_index = ?
		 ORDER BY created_at DESC, model LIMIT 1`, hash, chunkIndex).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dierrors.StorageIO("get embedding", err)
	}
	v, err := DecodeVector(blob)
	if err != nil {
		return nil, false, dierrors.StorageIO("decode embedding", err)
	}
	return v, true, nil
}

// HasEmbedding reports whether any chunk of hash has a vector.
func (s *Store) HasEmbedding(ctx context.Context, hash string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM embeddings WHERE hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, dierrors.StorageIO("has embedding", err)
	}
	return exists == 1, nil
}

// GetHashesNeedingEmbedding returns every distinct hash referenced by an
// active document that has no embedding under any chunk index or model.
func (s *Store) GetHashesNeedingEmbedding(ctx context.Context) ([]string, error) {
	return s.hashesNeedingEmbedding(ctx, "")
}

// GetHashesNeedingEmbeddingFor is GetHashesNeedingEmbedding restricted to
// vectors produced by model, so a model change triggers a re-embed.
func (s *Store) GetHashesNeedingEmbeddingFor(ctx context.Context, model string) ([]string, error) {
	return s.hashesNeedingEmbedding(ctx, model)
}

func (s *Store) hashesNeedingEmbedding(ctx context.Context, model string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT d.hash FROM documents d
		 WHERE d.active = 1
		   AND NOT EXISTS (
		     SELECT 1 FROM embeddings e
		     WHERE e.hash = d.hash AND (? = '' OR e.model = ?)
		   )
		 ORDER BY d.hash`, model, model)
	if err != nil {
		return nil, dierrors.StorageIO("hashes needing embedding", err)
	}
	defer func() { _ = rows.Close() }()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, dierrors.StorageIO("scan hash", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, dierrors.StorageIO("hashes needing embedding", err)
	}
	return hashes, nil
}

// GetEmbeddingsFor returns every chunk vector of the given hashes produced
// by model, grouped by hash.
func (s *Store) GetEmbeddingsFor(ctx context.Context, hashes []string, model string) (map[string][][]float32, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make(map[string][][]float32, len(hashes))
	for _, part := range chunkStrings(hashes, 500) {
		args := make([]any, 0, len(part)+1)
		args = append(args, model)
		for _, h := range part {
			args = append(args, h)
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT hash, vector FROM embeddings
			 WHERE model = ? AND hash IN (`+placeholders(len(part))+`)
			 ORDER BY hash, chunk_index`, args...)
		if err != nil {
			return nil, dierrors.StorageIO("get embeddings", err)
		}
		err = func() error {
			defer func() { _ = rows.Close() }()
			for rows.Next() {
				var h string
				var blob []byte
				if err := rows.Scan(&h, &blob); err != nil {
					return err
				}
				v, err := DecodeVector(blob)
				if err != nil {
					return err
				}
				out[h] = append(out[h], v)
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, dierrors.StorageIO("get embeddings", err)
		}
	}
	return out, nil
}

// ListEmbeddings returns all vectors produced by model whose content is
// referenced by at least one active document.
func (s *Store) ListEmbeddings(ctx context.Context, model string) ([]Embedding, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.hash, e.chunk_index, e.model, e.vector FROM embeddings e
		 WHERE e.model = ?
		   AND EXISTS (SELECT 1 FROM documents d WHERE d.hash = e.hash AND d.active = 1)
		 ORDER BY e.hash, e.chunk_index`, model)
	if err != nil {
		return nil, dierrors.StorageIO("list embeddings", err)
	}
	defer func() { _ = rows.Close() }()

	var embs []Embedding
	for rows.Next() {
		var e Embedding
		var blob []byte
		if err := rows.Scan(&e.Hash, &e.ChunkIndex, &e.Model, &blob); err != nil {
			return nil, dierrors.StorageIO("scan embedding", err)
		}
		if e.Vector, err = DecodeVector(blob); err != nil {
			return nil, dierrors.StorageIO("decode embedding", err)
		}
		embs = append(embs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dierrors.StorageIO("list embeddings", err)
	}
	return embs, nil
}

// EachEmbedding calls fn for every vector ListEmbeddings returns. Rows are
// read fully before fn runs, so fn may use the store. A non-nil error from
// fn stops iteration and is returned.
func (s *Store) EachEmbedding(ctx context.Context, model string, fn func(Embedding) error) error {
	embs, err := s.ListEmbeddings(ctx, model)
	if err != nil {
		return err
	}
	for _, e := range embs {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// CountEmbeddings returns the number of stored vectors for model, or for
// all models when model is empty.
func (s *Store) CountEmbeddings(ctx context.Context, model string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE ? = '' OR model = ?`, model, model).Scan(&n)
	if err != nil {
		return 0, dierrors.StorageIO("count embeddings", err)
	}
	return n, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func chunkStrings(s []string, size int) [][]string {
	var out [][]string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
