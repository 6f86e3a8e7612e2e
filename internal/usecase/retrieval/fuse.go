package retrieval

import (
	"sort"

	"github.com/google/uuid"
)

// DefaultRRFK is the reciprocal rank fusion constant. Rank position is
// scale-free, so lists from incompatible scoring schemes (cosine distance,
// lexical relevance) compose additively without calibration.
const DefaultRRFK = 60.0

// FuseRanked merges heterogeneous ranked lists into one globally ordered
// candidate list using reciprocal rank fusion. An item at zero-based position
// i in a list contributes 1/(k+i) to its running total, keyed by chunk id and
// summed across every list it appears in. Output is ordered by total score
// descending; ties keep first-seen order, so identical inputs always produce
// identical output. A positive limit truncates the fused list.
func FuseRanked(lists []RankedList, k float64, limit int) []ScoredCandidate {
	if k <= 0 {
		k = DefaultRRFK
	}

	type entry struct {
		score     float64
		firstSeen int
	}
	scores := make(map[uuid.UUID]*entry)
	order := make([]uuid.UUID, 0)

	for _, list := range lists {
		for i, id := range list.IDs {
			e, ok := scores[id]
			if !ok {
				e = &entry{firstSeen: len(order)}
				scores[id] = e
				order = append(order, id)
			}
			e.score += 1.0 / (k + float64(i))
		}
	}

	candidates := make([]ScoredCandidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, ScoredCandidate{ChunkID: id, Score: scores[id].score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
