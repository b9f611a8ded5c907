package query

import "sort"

// rrfK is the standard Reciprocal Rank Fusion smoothing constant.
const rrfK = 60

// dedupPrefixLen is how many characters of a result's text are used as
// the cross-list dedup key.
const dedupPrefixLen = 200

// rankedResult is one entry from either the vector or lexical ranked
// list, prior to fusion.
type rankedResult struct {
	chunkID int64
	text    string
	score   float64 // normalized to roughly [0,1], higher is better
}

// fused is one entry after RRF combines the vector and lexical lists.
type fused struct {
	chunkID  int64
	text     string
	rrf      float64
	bestRank int
}

// reciprocalRankFusion combines ranked lists (already sorted best-first)
// using Reciprocal Rank Fusion: for list i, the entry at zero-based rank
// r contributes weights[i] / (k + r + 1) to its fused score. Entries are
// deduplicated across lists by the first dedupPrefixLen characters of
// their text. Each fused entry also gets a top-rank bonus: +0.05 if its
// best rank across any list is 0, +0.02 if its best rank is <= 2.
func reciprocalRankFusion(lists [][]rankedResult, weights []float64) []fused {
	byKey := make(map[string]*fused)
	order := make([]string, 0)

	for listIdx, list := range lists {
		weight := 1.0
		if listIdx < len(weights) {
			weight = weights[listIdx]
		}

		for rank, r := range list {
			key := dedupKey(r.text)
			contribution := weight / float64(rrfK+rank+1)

			if existing, ok := byKey[key]; ok {
				existing.rrf += contribution
				if rank < existing.bestRank {
					existing.bestRank = rank
				}
			} else {
				byKey[key] = &fused{chunkID: r.chunkID, text: r.text, rrf: contribution, bestRank: rank}
				order = append(order, key)
			}
		}
	}

	out := make([]fused, 0, len(order))
	for _, key := range order {
		f := byKey[key]
		if f.bestRank == 0 {
			f.rrf += 0.05
		} else if f.bestRank <= 2 {
			f.rrf += 0.02
		}
		out = append(out, *f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].rrf > out[j].rrf
	})
	return out
}

func dedupKey(text string) string {
	if len(text) <= dedupPrefixLen {
		return text
	}
	return text[:dedupPrefixLen]
}
