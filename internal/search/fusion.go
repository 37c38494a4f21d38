package search

import (
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/store"
)

// minMax maps scores onto [0, 1]. When every score is equal each maps to 1.
func minMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = min(lo, s)
		hi = max(hi, s)
	}
	for i, s := range scores {
		if hi == lo {
			out[i] = 1
		} else {
			out[i] = (s - lo) / (hi - lo)
		}
	}
	return out
}

// bestCosine is the highest similarity between query and any chunk vector
// of matching length. ok is false when no chunk could be compared.
func bestCosine(query []float32, chunks [][]float32) (best float64, ok bool) {
	for _, v := range chunks {
		if len(v) != len(query) {
			continue
		}
		c := embed.Cosine(query, v)
		if !ok || c > best {
			best, ok = c, true
		}
	}
	return best, ok
}

// fuse re-scores lexical candidates as
//
//	w*minmax(lexical) + (1-w)*cosine
//
// A candidate without a comparable embedding is given the mean cosine of the
// embedded candidates, so a missing vector neither helps nor hurts it. When
// no candidate is embedded the score is the normalized lexical score. The
// input is not modified; the result is sorted.
func fuse(candidates []store.ScoredDocument, query []float32, vectors map[string][][]float32, w float64) []store.ScoredDocument {
	lex := make([]float64, len(candidates))
	for i, c := range candidates {
		lex[i] = c.LexicalScore
	}
	norm := minMax(lex)

	cosines := make([]float64, len(candidates))
	embedded := make([]bool, len(candidates))
	var sum float64
	var n int
	for i, c := range candidates {
		if cos, ok := bestCosine(query, vectors[c.Hash]); ok {
			cosines[i], embedded[i] = cos, true
			sum += cos
			n++
		}
	}

	out := make([]store.ScoredDocument, len(candidates))
	for i, c := range candidates {
		c.SemanticScore = nil
		switch {
		case embedded[i]:
			sim := cosines[i]
			c.SemanticScore = &sim
			c.Score = w*norm[i] + (1-w)*sim
		case n > 0:
			c.Score = w*norm[i] + (1-w)*(sum/float64(n))
		default:
			c.Score = norm[i]
		}
		out[i] = c
	}
	store.SortScored(out)
	return out
}
