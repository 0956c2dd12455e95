package search

import "sort"

// Ranked is one entry of a modality's ranked list, best first. The raw
// score is kept for reference only; fusion uses ranks.
type Ranked struct {
	ID    string
	Score float64
}

// Fused is one item after reciprocal rank fusion.
type Fused struct {
	ID       string
	Score    float64
	BestRank int
}

// Fuse merges per-modality ranked lists with reciprocal rank fusion:
// each appearance at rank r contributes 1/(rankConstant+r), and an
// item's score is the sum over the modalities it appears in. Items
// beyond windowSize in any list are discarded before scoring. The
// result is ordered by score descending, ties broken by the best rank
// the item reached in any modality, then by id, so identical inputs
// always produce identical output.
func Fuse(lists [][]Ranked, rankConstant, windowSize int) []Fused {
	type acc struct {
		score    float64
		bestRank int
	}
	scores := make(map[string]*acc)

	for _, list := range lists {
		for i, item := range list {
			rank := i + 1
			if rank > windowSize {
				break
			}
			a, ok := scores[item.ID]
			if !ok {
				a = &acc{bestRank: rank}
				scores[item.ID] = a
			}
			a.score += 1.0 / float64(rankConstant+rank)
			if rank < a.bestRank {
				a.bestRank = rank
			}
		}
	}

	out := make([]Fused, 0, len(scores))
	for id, a := range scores {
		out = append(out, Fused{ID: id, Score: a.score, BestRank: a.bestRank})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].BestRank != out[j].BestRank {
			return out[i].BestRank < out[j].BestRank
		}
		return out[i].ID < out[j].ID
	})
	return out
}
