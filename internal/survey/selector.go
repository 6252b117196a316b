package survey

import (
	"math/rand/v2"
	"sort"

	"github.com/kkkkikiki/surveyreview/internal/model"
)

// NewRand returns a randomly seeded generator for production use.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Select picks the questions shown in one session.
//
// Ungrouped questions without the random flag are always included. Each group
// contributes exactly one member chosen uniformly. Between rng-drawn min and max
// ungrouped random questions are sampled without replacement. The result keeps
// the authored order of the input.
func Select(questions []model.Question, r model.RandomRange, rng *rand.Rand) []model.Question {
	if rng == nil {
		rng = NewRand()
	}

	var (
		groupOrder []string
		groups     = make(map[string][]int)
		random     []int
		selected   []int
	)
	for i, q := range questions {
		switch {
		case q.Group != "":
			if _, ok := groups[q.Group]; !ok {
				groupOrder = append(groupOrder, q.Group)
			}
			groups[q.Group] = append(groups[q.Group], i)
		case q.IsRandom:
			random = append(random, i)
		default:
			selected = append(selected, i)
		}
	}

	for _, g := range groupOrder {
		members := groups[g]
		selected = append(selected, members[rng.IntN(len(members))])
	}

	if k := drawCount(r, len(random), rng); k > 0 {
		for _, p := range rng.Perm(len(random))[:k] {
			selected = append(selected, random[p])
		}
	}

	sort.Ints(selected)
	out := make([]model.Question, len(selected))
	for i, idx := range selected {
		out[i] = questions[idx]
	}
	return out
}

// drawCount clamps the range to [0, n] and draws uniformly from it.
// A min above max collapses to max.
func drawCount(r model.RandomRange, n int, rng *rand.Rand) int {
	lo, hi := clamp(r.Min, 0, n), clamp(r.Max, 0, n)
	if lo > hi {
		lo = hi
	}
	return lo + rng.IntN(hi-lo+1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
