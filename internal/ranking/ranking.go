// Package ranking scores observed check activity and picks the tuples most
// worth re-priming into the cache.
package ranking

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/evansims/fgacache/pkg/tuple"
)

// halfLife is the age at which a tuple's check count stops counting for
// half of its raw value. Recent traffic predicts near-future traffic much
// better than last week's burst.
const halfLife = time.Hour

// cutoffQuantile drops the cold tail: candidates scoring below this
// quantile are never warmed even when the limit has room for them.
const cutoffQuantile = 0.25

// Candidate is one tuple's aggregated check history.
type Candidate struct {
	Tuple     tuple.TupleKey
	Checks    int64
	LastCheck time.Time
}

// Score is the recency-damped worth of warming one candidate.
func Score(c Candidate, now time.Time) float64 {
	if c.Checks <= 0 {
		return 0
	}

	age := now.Sub(c.LastCheck)
	if age < 0 {
		age = 0
	}

	return float64(c.Checks) * math.Exp2(-age.Hours()/halfLife.Hours())
}

// Rank returns up to limit tuples ordered most-worth-warming first. With
// more candidates than limit, the scoring distribution's cold tail is cut
// before the limit applies. A non-positive limit returns nothing.
func Rank(candidates []Candidate, now time.Time, limit int) []tuple.TupleKey {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = Score(c, now)
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	cutoff := 0.0
	if len(candidates) > limit {
		sorted := append([]float64(nil), scores...)
		sort.Float64s(sorted)
		cutoff = stat.Quantile(cutoffQuantile, stat.Empirical, sorted, nil)
	}

	out := make([]tuple.TupleKey, 0, min(limit, len(candidates)))
	for _, idx := range order {
		if len(out) == limit {
			break
		}
		if scores[idx] <= 0 || scores[idx] < cutoff {
			break
		}
		out = append(out, candidates[idx].Tuple)
	}

	return out
}
