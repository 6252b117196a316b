package survey

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

func q(id string, random bool, group string) model.Question {
	return model.Question{ID: id, Text: id, Type: model.QuestionText, IsRandom: random, Group: group}
}

func ids(qs []model.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestSelectMixedPool(t *testing.T) {
	pool := []model.Question{
		q("A", false, ""),
		q("B", true, ""),
		q("C", true, ""),
		q("D", false, "g1"),
		q("E", false, "g1"),
	}
	order := map[string]int{"A": 0, "B": 1, "C": 2, "D": 3, "E": 4}

	seen := map[string]bool{}
	for seed := uint64(0); seed < 500; seed++ {
		got := ids(Select(pool, model.RandomRange{Min: 1, Max: 1}, seeded(seed)))
		require.Len(t, got, 3)
		assert.Equal(t, "A", got[0])
		assert.Contains(t, []string{"B", "C"}, got[1])
		assert.Contains(t, []string{"D", "E"}, got[2])
		for i := 1; i < len(got); i++ {
			assert.Less(t, order[got[i-1]], order[got[i]])
		}
		for _, id := range got {
			seen[id] = true
		}
	}
	for _, id := range []string{"B", "C", "D", "E"} {
		assert.True(t, seen[id], "%s never selected", id)
	}
}

func TestSelectCountBounds(t *testing.T) {
	pool := []model.Question{
		q("f1", false, ""),
		q("r1", true, ""),
		q("r2", true, ""),
		q("r3", true, ""),
		q("r4", true, ""),
		q("f2", false, ""),
		q("g1a", false, "g1"),
		q("g1b", false, "g1"),
		q("g2a", false, "g2"),
	}
	fixedAndGroups := 2 + 2

	tests := []struct {
		name     string
		rng      model.RandomRange
		min, max int
	}{
		{"exact", model.RandomRange{Min: 2, Max: 2}, 2, 2},
		{"range", model.RandomRange{Min: 1, Max: 3}, 1, 3},
		{"max clamped to pool", model.RandomRange{Min: 0, Max: 10}, 0, 4},
		{"min above max collapses", model.RandomRange{Min: 3, Max: 1}, 1, 1},
		{"zero", model.RandomRange{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := map[int]int{}
			for seed := uint64(0); seed < 300; seed++ {
				got := Select(pool, tt.rng, seeded(seed))
				n := len(got) - fixedAndGroups
				assert.GreaterOrEqual(t, n, tt.min)
				assert.LessOrEqual(t, n, tt.max)
				counts[n]++

				groupSeen := map[string]int{}
				for _, g := range got {
					if g.Group != "" {
						groupSeen[g.Group]++
					}
				}
				assert.Equal(t, map[string]int{"g1": 1, "g2": 1}, groupSeen)
			}
			for k := tt.min; k <= tt.max; k++ {
				assert.Positive(t, counts[k], "count %d never drawn", k)
			}
		})
	}
}

func TestSelectEdgeCases(t *testing.T) {
	t.Run("empty pool", func(t *testing.T) {
		assert.Empty(t, Select(nil, model.RandomRange{Min: 1, Max: 2}, seeded(1)))
	})

	t.Run("all random with max zero", func(t *testing.T) {
		pool := []model.Question{q("r1", true, ""), q("r2", true, "")}
		assert.Empty(t, Select(pool, model.RandomRange{}, seeded(1)))
	})

	t.Run("all fixed", func(t *testing.T) {
		pool := []model.Question{q("a", false, ""), q("b", false, ""), q("c", false, "")}
		assert.Equal(t, []string{"a", "b", "c"}, ids(Select(pool, model.RandomRange{Min: 1, Max: 2}, seeded(7))))
	})

	t.Run("nil rng", func(t *testing.T) {
		pool := []model.Question{q("a", false, "")}
		assert.Len(t, Select(pool, model.RandomRange{}, nil), 1)
	})

	t.Run("deterministic for a seed", func(t *testing.T) {
		pool := []model.Question{q("r1", true, ""), q("r2", true, ""), q("r3", true, ""), q("g", false, "x"), q("h", false, "x")}
		r := model.RandomRange{Min: 1, Max: 3}
		assert.Equal(t, ids(Select(pool, r, seeded(42))), ids(Select(pool, r, seeded(42))))
	})
}

func TestSelectIsUnbiased(t *testing.T) {
	pool := []model.Question{q("r1", true, ""), q("r2", true, ""), q("r3", true, ""), q("r4", true, "")}
	counts := map[string]int{}
	const runs = 8000
	rng := seeded(99)
	for i := 0; i < runs; i++ {
		for _, s := range Select(pool, model.RandomRange{Min: 1, Max: 1}, rng) {
			counts[s.ID]++
		}
	}
	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		assert.InDelta(t, runs/4, counts[id], runs*0.05, "position bias for %s", id)
	}
}
