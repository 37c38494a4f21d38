package search

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/store"
)

// HNSW parameters.
const (
	graphM        = 16
	graphEfSearch = 64
	graphMl       = 0.25
)

type chunkRef struct {
	hash  string
	chunk int
}

type hashHit struct {
	hash  string
	score float64
}

// vectorIndex is an in-memory HNSW graph over the stored embeddings of one
// model. It is rebuilt when the number of stored vectors changes.
type vectorIndex struct {
	mu    sync.RWMutex
	model string
	count int
	dims  int
	graph *hnsw.Graph[uint64]
	refs  []chunkRef
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = graphM
	g.EfSearch = graphEfSearch
	g.Ml = graphMl
	return g
}

// ensure rebuilds the graph if model or the stored vector count changed.
func (x *vectorIndex) ensure(ctx context.Context, st Store, model string) error {
	count, err := st.CountEmbeddings(ctx, model)
	if err != nil {
		return err
	}

	x.mu.RLock()
	fresh := x.graph != nil && x.model == model && x.count == count
	x.mu.RUnlock()
	if fresh {
		return nil
	}

	g := newGraph()
	var refs []chunkRef
	dims := 0
	err = st.EachEmbedding(ctx, model, func(e store.Embedding) error {
		if dims == 0 {
			dims = len(e.Vector)
		}
		// The graph needs one dimension throughout.
		if len(e.Vector) != dims {
			return nil
		}
		g.Add(hnsw.MakeNode(uint64(len(refs)), embed.Normalize(e.Vector)))
		refs = append(refs, chunkRef{hash: e.Hash, chunk: e.ChunkIndex})
		return nil
	})
	if err != nil {
		return err
	}

	x.mu.Lock()
	x.model, x.count, x.dims, x.graph, x.refs = model, count, dims, g, refs
	x.mu.Unlock()
	return nil
}

// search returns up to k distinct hashes closest to query, best first.
func (x *vectorIndex) search(query []float32, k int) []hashHit {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.graph == nil || x.graph.Len() == 0 || len(query) != x.dims || k <= 0 {
		return nil
	}

	q := embed.Normalize(query)
	nodes := x.graph.Search(q, k)

	seen := make(map[string]struct{}, len(nodes))
	hits := make([]hashHit, 0, len(nodes))
	for _, n := range nodes {
		if int(n.Key) >= len(x.refs) {
			continue
		}
		ref := x.refs[n.Key]
		if _, dup := seen[ref.hash]; dup {
			continue
		}
		seen[ref.hash] = struct{}{}
		hits = append(hits, hashHit{hash: ref.hash, score: 1 - float64(hnsw.CosineDistance(q, n.Value))})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	return hits
}

func (x *vectorIndex) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.graph == nil {
		return 0
	}
	return x.graph.Len()
}
