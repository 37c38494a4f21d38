package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/logging"
	"github.com/Aman-CERP/docindex/internal/store"
)

// stubEmbedder returns vectors from fn and counts calls.
type stubEmbedder struct {
	model string
	fn    func(ctx context.Context, text string) ([]float32, error)
	calls atomic.Int32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls.Add(1)
	return s.fn(ctx, text)
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int                { return 2 }
func (s *stubEmbedder) ModelName() string              { return s.model }
func (s *stubEmbedder) Available(context.Context) bool { return true }
func (s *stubEmbedder) Close() error                   { return nil }

func fixedEmbedder(v []float32) *stubEmbedder {
	return &stubEmbedder{model: "stub", fn: func(context.Context, string) ([]float32, error) { return v, nil }}
}

func failingEmbedder() *stubEmbedder {
	return &stubEmbedder{model: "stub", fn: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}}
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func add(t *testing.T, s *store.Store, category, path, title, body string) store.UpsertResult {
	t.Helper()
	res, err := s.UpsertDocument(context.Background(), store.UpsertInput{
		Category: category, Path: path, Title: title, Body: body,
	})
	require.NoError(t, err)
	return res
}

func titles(docs []store.ScoredDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Title
	}
	return out
}

func TestSearchHybrid_FallsBackWhenEmbedderFails(t *testing.T) {
	// Given: two documents and an embedder that always fails
	st := newStore(t)
	add(t, st, "skills", "a.md", "A", "audio audio audio mixer")
	add(t, st, "skills", "b.md", "B", "audio notes and many other words")
	e := New(st, failingEmbedder(), DefaultConfig(), WithLogger(logging.Discard()))

	// When: searching hybrid
	resp, err := e.Search(context.Background(), Request{Query: "audio", Mode: ModeHybrid})

	// Then: the lexical ranking is returned, not an error
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, ModeHybrid, resp.Mode)

	lexical, err := e.SearchFTS(context.Background(), "audio", 10, "")
	require.NoError(t, err)
	assert.Equal(t, titles(lexical), titles(resp.Results))
}

func TestSearchHybrid_FallsBackOnTimeout(t *testing.T) {
	st := newStore(t)
	add(t, st, "skills", "a.md", "A", "audio mixer")

	slow := &stubEmbedder{model: "stub", fn: func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := DefaultConfig()
	cfg.EmbedTimeout = 20 * time.Millisecond
	e := New(st, slow, cfg, WithLogger(logging.Discard()))

	start := time.Now()
	results, err := e.SearchHybrid(context.Background(), "audio", 10, "")
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearchHybrid_NilEmbedder(t *testing.T) {
	st := newStore(t)
	add(t, st, "skills", "a.md", "A", "audio mixer")
	e := New(st, nil, DefaultConfig(), WithLogger(logging.Discard()))

	resp, err := e.Search(context.Background(), Request{Query: "audio"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Len(t, resp.Results, 1)
}

func TestSearchHybrid_RerankPromotesSemanticMatch(t *testing.T) {
	// Given: A wins lexically but B's embedding matches the query
	st := newStore(t)
	ctx := context.Background()
	a := add(t, st, "skills", "a.md", "A", "apple apple apple pie")
	b := add(t, st, "skills", "b.md", "B", "apple orchard notes for the autumn harvest season")
	require.NoError(t, st.InsertEmbedding(ctx, a.Hash, 0, []float32{0, 1}, "stub"))
	require.NoError(t, st.InsertEmbedding(ctx, b.Hash, 0, []float32{1, 0}, "stub"))

	cfg := DefaultConfig()
	cfg.LexicalWeight = 0.3
	e := New(st, fixedEmbedder([]float32{1, 0}), cfg, WithLogger(logging.Discard()))

	lexical, err := e.SearchFTS(ctx, "apple", 10, "")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, titles(lexical))

	// When: re-ranking
	results, err := e.SearchHybrid(ctx, "apple", 10, "")
	require.NoError(t, err)

	// Then: B is promoted; scores combine both signals
	require.Equal(t, []string{"B", "A"}, titles(results))
	require.NotNil(t, results[0].SemanticScore)
	assert.InDelta(t, 1.0, *results[0].SemanticScore, 1e-6)
	assert.InDelta(t, 0.7, results[0].Score, 1e-6)
	assert.InDelta(t, 0.3, results[1].Score, 1e-6)
	assert.Greater(t, results[1].LexicalScore, results[0].LexicalScore)
}

func TestSearchHybrid_UnembeddedDocumentsAreKept(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	a := add(t, st, "skills", "a.md", "A", "lamp lamp lamp")
	add(t, st, "skills", "b.md", "B", "lamp and a few more words")
	add(t, st, "transcripts", "c.txt", "C", "lamp discussion")
	require.NoError(t, st.InsertEmbedding(ctx, a.Hash, 0, []float32{1, 0}, "stub"))

	e := New(st, fixedEmbedder([]float32{1, 0}), DefaultConfig(), WithLogger(logging.Discard()))

	results, err := e.SearchHybrid(ctx, "lamp", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		if r.Title == "A" {
			assert.NotNil(t, r.SemanticScore)
		} else {
			assert.Nil(t, r.SemanticScore)
		}
	}

	scoped, err := e.SearchHybrid(ctx, "lamp", 10, "skills")
	require.NoError(t, err)
	assert.Len(t, scoped, 2)
	for _, r := range scoped {
		assert.Equal(t, "skills", r.Category)
	}

	limited, err := e.SearchHybrid(ctx, "lamp", 1, "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSearchHybrid_CircuitOpensAfterFailures(t *testing.T) {
	st := newStore(t)
	add(t, st, "skills", "a.md", "A", "audio mixer")

	emb := failingEmbedder()
	cb := dierrors.NewCircuitBreaker("test", dierrors.WithMaxFailures(2), dierrors.WithResetTimeout(time.Hour))
	e := New(st, emb, DefaultConfig(), WithCircuitBreaker(cb), WithLogger(logging.Discard()))

	for i := 0; i < 5; i++ {
		results, err := e.SearchHybrid(context.Background(), "audio", 10, "")
		require.NoError(t, err)
		assert.Len(t, results, 1)
	}
	assert.Equal(t, int32(2), emb.calls.Load())
	assert.Equal(t, dierrors.StateOpen, cb.State())
}

func TestSearchSemantic(t *testing.T) {
	// Given: documents embedded with the static embedder
	st := newStore(t)
	ctx := context.Background()
	emb := embed.NewStaticEmbedder(64)
	docs := []struct{ cat, path, title, body string }{
		{"skills", "hue.md", "Philips Hue", "Control smart lights via Hue bridge"},
		{"skills", "money.md", "Revenue", "Quarterly revenue spreadsheet totals"},
		{"transcripts", "call.txt", "Call", "we talked about smart lights and the hue bridge"},
	}
	for _, d := range docs {
		res := add(t, st, d.cat, d.path, d.title, d.body)
		v, err := emb.Embed(ctx, d.body)
		require.NoError(t, err)
		require.NoError(t, st.InsertEmbedding(ctx, res.Hash, 0, v, emb.ModelName()))
	}
	e := New(st, emb, DefaultConfig(), WithLogger(logging.Discard()))

	// When: searching semantically within skills
	results, err := e.SearchSemantic(ctx, "smart lights hue bridge", 10, "skills")
	require.NoError(t, err)

	// Then: the Hue skill ranks first and other categories are excluded
	require.NotEmpty(t, results)
	assert.Equal(t, "Philips Hue", results[0].Title)
	assert.NotEmpty(t, results[0].Snippet)
	for _, r := range results {
		assert.Equal(t, "skills", r.Category)
	}
	assert.Equal(t, 3, e.VectorCount())

	// And: a new embedding triggers a rebuild
	res := add(t, st, "skills", "lamp.md", "Lamp", "desk lamp")
	v, err := emb.Embed(ctx, "desk lamp")
	require.NoError(t, err)
	require.NoError(t, st.InsertEmbedding(ctx, res.Hash, 0, v, emb.ModelName()))

	resp, err := e.Search(ctx, Request{Query: "desk lamp", Mode: ModeSemantic, Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Lamp", resp.Results[0].Title)
	assert.Equal(t, 4, e.VectorCount())
}

func TestSearchSemantic_FallsBackToLexical(t *testing.T) {
	st := newStore(t)
	add(t, st, "skills", "a.md", "A", "audio mixer")
	e := New(st, failingEmbedder(), DefaultConfig(), WithLogger(logging.Discard()))

	resp, err := e.Search(context.Background(), Request{Query: "audio", Mode: ModeSemantic})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Len(t, resp.Results, 1)
}

func TestSearch_DefaultModeAndLimits(t *testing.T) {
	st := newStore(t)
	for _, p := range []string{"a.md", "b.md", "c.md"} {
		add(t, st, "skills", p, p, "shared term in "+p)
	}

	cfg := DefaultConfig()
	cfg.Rerank = false
	cfg.MaxLimit = 2
	e := New(st, nil, cfg, WithLogger(logging.Discard()))
	assert.Equal(t, ModeLexical, e.DefaultMode())

	resp, err := e.Search(context.Background(), Request{Query: "shared", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, ModeLexical, resp.Mode)
	assert.False(t, resp.Degraded)
	assert.Len(t, resp.Results, 2)

	empty, err := e.Search(context.Background(), Request{Query: "nothingmatches"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Results)
	assert.Empty(t, empty.Results)

	assert.Equal(t, ModeHybrid, New(st, nil, DefaultConfig()).DefaultMode())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": "", "lexical": ModeLexical, " Hybrid ": ModeHybrid, "SEMANTIC": ModeSemantic} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("fuzzy")
	assert.Error(t, err)
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, minMax([]float64{1, 2, 3}))
	assert.Equal(t, []float64{1, 1}, minMax([]float64{4, 4}))
	assert.Empty(t, minMax(nil))
}

func TestFuse_TieBreaks(t *testing.T) {
	cands := []store.ScoredDocument{
		{ID: 2, Hash: "h2", LexicalScore: 1},
		{ID: 1, Hash: "h1", LexicalScore: 1},
		{ID: 3, Hash: "h3", LexicalScore: 3},
	}
	out := fuse(cands, []float32{1, 0}, map[string][][]float32{}, 0.65)

	// No embeddings: normalized lexical order, ties by id.
	ids := []int64{out[0].ID, out[1].ID, out[2].ID}
	assert.Equal(t, []int64{3, 1, 2}, ids)
	assert.Equal(t, 1.0, out[0].Score)
	assert.Equal(t, 0.0, out[1].Score)

	// Input untouched.
	assert.Equal(t, int64(2), cands[0].ID)
}

func TestFuse_MaxOverChunks(t *testing.T) {
	cands := []store.ScoredDocument{{ID: 1, Hash: "h", LexicalScore: 1}}
	vecs := map[string][][]float32{"h": {{0, 1}, {1, 0}, {1, 0, 0}}}
	out := fuse(cands, []float32{1, 0}, vecs, 0.5)
	require.NotNil(t, out[0].SemanticScore)
	assert.InDelta(t, 1.0, *out[0].SemanticScore, 1e-9)
	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
}

func TestFuse_UnembeddedGetsMeanCosine(t *testing.T) {
	// Given: two top lexical candidates, one embedded with a weak match and
	// one unembedded, plus a weaker lexical candidate with a strong match
	cands := []store.ScoredDocument{
		{ID: 1, Hash: "weak", LexicalScore: 2},
		{ID: 2, Hash: "bare", LexicalScore: 2},
		{ID: 3, Hash: "strong", LexicalScore: 1},
	}
	vecs := map[string][][]float32{
		"weak":   {{0, 1}},
		"strong": {{1, 0}},
	}

	// When: fusing
	out := fuse(cands, []float32{1, 0}, vecs, 0.65)

	// Then: the unembedded candidate is scored with the mean cosine (0.5)
	// rather than its bare lexical score
	byID := map[int64]store.ScoredDocument{}
	for _, r := range out {
		byID[r.ID] = r
	}
	assert.Nil(t, byID[2].SemanticScore)
	assert.InDelta(t, 0.65*1+0.35*0.5, byID[2].Score, 1e-9)
	assert.InDelta(t, 0.65*1+0.35*0, byID[1].Score, 1e-9)
	assert.InDelta(t, 0.65*0+0.35*1, byID[3].Score, 1e-9)
	assert.Less(t, byID[2].Score, 1.0)

	// And: ordering follows the fused scores
	assert.Equal(t, []int64{2, 1, 3}, []int64{out[0].ID, out[1].ID, out[2].ID})
}

func TestFuse_UnembeddedDoesNotOutrankEqualEmbedded(t *testing.T) {
	// Given: equal lexical scores, one embedded with a perfect match
	cands := []store.ScoredDocument{
		{ID: 1, Hash: "bare", LexicalScore: 5},
		{ID: 2, Hash: "hit", LexicalScore: 5},
	}
	vecs := map[string][][]float32{"hit": {{1, 0}}}

	// When: fusing
	out := fuse(cands, []float32{1, 0}, vecs, 0.65)

	// Then: the two tie, and the lower id wins the tie
	assert.InDelta(t, out[0].Score, out[1].Score, 1e-9)
	assert.Equal(t, int64(1), out[0].ID)
}
