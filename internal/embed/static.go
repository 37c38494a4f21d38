package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// Feature weights for static vectors.
const (
	wordWeight  = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticEmbedder hashes words and character trigrams into a fixed number
// of buckets. It needs no network or model, and is deterministic, but only
// captures surface similarity.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder returns a static embedder producing dims-sized vectors.
// dims <= 0 selects StaticDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed returns the unit-length hashed feature vector of text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	v := make([]float32, e.dims)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return v, nil
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		v[bucket(w, e.dims)] += wordWeight
	}

	letters := []rune(strings.Join(words, ""))
	for i := 0; i+ngramSize <= len(letters); i++ {
		v[bucket("#"+string(letters[i:i+ngramSize]), e.dims)] += ngramWeight
	}
	return Normalize(v), nil
}

// EmbedBatch embeds each text in turn.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func bucket(s string, n int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(n))
}

// Dimensions returns the vector size.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName includes the size, so vectors of different sizes never mix.
func (e *StaticEmbedder) ModelName() string {
	return fmt.Sprintf("static-%d", e.dims)
}

// Available is true until Close.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
