package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evansims/fgacache/pkg/tuple"
)

func TestScoreDecaysWithAge(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	fresh := Candidate{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1"), Checks: 100, LastCheck: now}
	stale := Candidate{Tuple: fresh.Tuple, Checks: 100, LastCheck: now.Add(-time.Hour)}

	require.InDelta(t, 100, Score(fresh, now), 1e-9)
	// One half-life halves the raw count.
	require.InDelta(t, 50, Score(stale, now), 1e-9)
}

func TestScoreEdgeCases(t *testing.T) {
	now := time.Now().UTC()

	t.Run("zero_checks", func(t *testing.T) {
		require.Zero(t, Score(Candidate{Checks: 0, LastCheck: now}, now))
	})

	t.Run("future_last_check_counts_as_now", func(t *testing.T) {
		c := Candidate{Checks: 10, LastCheck: now.Add(time.Minute)}
		require.InDelta(t, 10, Score(c, now), 1e-9)
	})
}

func TestRankOrdersByScore(t *testing.T) {
	now := time.Now().UTC()

	hot := Candidate{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:hot"), Checks: 1000, LastCheck: now}
	warm := Candidate{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:warm"), Checks: 100, LastCheck: now}
	// High count but long cold: decay must push it below the fresh ones.
	decayed := Candidate{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:old"), Checks: 5000, LastCheck: now.Add(-12 * time.Hour)}

	ranked := Rank([]Candidate{decayed, warm, hot}, now, 3)
	require.Equal(t, []tuple.TupleKey{hot.Tuple, warm.Tuple, decayed.Tuple}, ranked)
}

func TestRankAppliesLimit(t *testing.T) {
	now := time.Now().UTC()

	candidates := []Candidate{
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1"), Checks: 400, LastCheck: now},
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:2"), Checks: 300, LastCheck: now},
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:3"), Checks: 200, LastCheck: now},
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:4"), Checks: 100, LastCheck: now},
	}

	ranked := Rank(candidates, now, 2)
	require.Equal(t, []tuple.TupleKey{candidates[0].Tuple, candidates[1].Tuple}, ranked)
}

func TestRankDropsTheColdTail(t *testing.T) {
	now := time.Now().UTC()

	candidates := []Candidate{
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1"), Checks: 1000, LastCheck: now},
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:2"), Checks: 900, LastCheck: now},
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:3"), Checks: 800, LastCheck: now},
		// Far below the rest; sits under the quantile cutoff.
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:cold"), Checks: 1, LastCheck: now.Add(-48 * time.Hour)},
	}

	ranked := Rank(candidates, now, 3)
	require.Len(t, ranked, 3)
	require.NotContains(t, ranked, candidates[3].Tuple)
}

func TestRankEmptyAndNonPositiveLimit(t *testing.T) {
	now := time.Now().UTC()
	c := Candidate{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1"), Checks: 10, LastCheck: now}

	require.Nil(t, Rank(nil, now, 5))
	require.Nil(t, Rank([]Candidate{c}, now, 0))
	require.Nil(t, Rank([]Candidate{c}, now, -1))
}

func TestRankSkipsZeroScores(t *testing.T) {
	now := time.Now().UTC()

	candidates := []Candidate{
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1"), Checks: 10, LastCheck: now},
		{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:2"), Checks: 0, LastCheck: now},
	}

	ranked := Rank(candidates, now, 5)
	require.Equal(t, []tuple.TupleKey{candidates[0].Tuple}, ranked)
}
