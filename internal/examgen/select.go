// Package examgen assembles exam question sets following the FCC/NCVEC
// construction rule: within each subelement, at most one question is drawn
// per question group, with the per-subelement quota taken from the license
// class blueprint. Sparse or malformed pools degrade to smaller results
// rather than errors.
package examgen

import (
	"math/rand/v2"
	"sort"
)

// Selectable is the minimal view of a pool item the selector needs. Pool
// items are otherwise opaque; two structurally identical items at different
// pool positions are distinct selectable units.
type Selectable interface {
	SubelementCode() string
	QuestionGroup() string
}

// DistributionEntry is one subelement quota within an exam blueprint.
type DistributionEntry struct {
	Subelement string
	Count      int
}

// Distribution is an ordered list of per-subelement quotas. Order matters
// only for reproducibility of the allocation passes; the final question
// order is shuffled regardless.
type Distribution []DistributionEntry

// DistributionFromMap builds a Distribution with entries sorted by
// subelement code, since Go map iteration order is not stable.
func DistributionFromMap(m map[string]int) Distribution {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	d := make(Distribution, 0, len(codes))
	for _, code := range codes {
		d = append(d, DistributionEntry{Subelement: code, Count: m[code]})
	}
	return d
}

// SelectExamQuestions draws up to questionCount questions from pool
// honoring the distribution. The result never contains the same pool item
// twice and its length is min(questionCount, unique items reachable).
func SelectExamQuestions[T Selectable](pool []T, questionCount int, dist Distribution) []T {
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return SelectExamQuestionsRand(rng, pool, questionCount, dist)
}

// SelectExamQuestionsRand is SelectExamQuestions with a caller-supplied
// random source, used by tests that need reproducible draws.
func SelectExamQuestionsRand[T Selectable](rng *rand.Rand, pool []T, questionCount int, dist Distribution) []T {
	selected := make([]T, 0, questionCount)
	if questionCount <= 0 || len(pool) == 0 {
		return selected
	}

	used := make([]bool, len(pool))
	picked := make([]int, 0, questionCount)

	for _, entry := range dist {
		if entry.Count <= 0 {
			continue
		}

		subIdx := indicesForSubelement(pool, entry.Subelement)
		if len(subIdx) == 0 {
			continue
		}

		// One candidate per distinct group, chosen uniformly within
		// the group.
		buckets := map[string][]int{}
		for _, i := range subIdx {
			g := pool[i].QuestionGroup()
			buckets[g] = append(buckets[g], i)
		}
		candidates := make([]int, 0, len(buckets))
		for _, members := range buckets {
			candidates = append(candidates, members[rng.IntN(len(members))])
		}
		shuffleInts(rng, candidates)

		take := entry.Count
		if take > len(candidates) {
			take = len(candidates)
		}
		for _, i := range candidates[:take] {
			picked = append(picked, i)
			used[i] = true
		}

		// Fewer distinct groups than the quota: top up from the rest
		// of this subelement before touching other subelements.
		if take < entry.Count {
			rest := make([]int, 0, len(subIdx))
			for _, i := range subIdx {
				if !used[i] {
					rest = append(rest, i)
				}
			}
			shuffleInts(rng, rest)

			need := entry.Count - take
			if need > len(rest) {
				need = len(rest)
			}
			for _, i := range rest[:need] {
				picked = append(picked, i)
				used[i] = true
			}
		}
	}

	// Distribution quotas alone did not reach questionCount: backfill
	// from whatever is left anywhere in the pool.
	if len(picked) < questionCount {
		rest := make([]int, 0, len(pool))
		for i := range pool {
			if !used[i] {
				rest = append(rest, i)
			}
		}
		shuffleInts(rng, rest)

		need := questionCount - len(picked)
		if need > len(rest) {
			need = len(rest)
		}
		for _, i := range rest[:need] {
			picked = append(picked, i)
			used[i] = true
		}
	}

	shuffleInts(rng, picked)
	if len(picked) > questionCount {
		picked = picked[:questionCount]
	}

	for _, i := range picked {
		selected = append(selected, pool[i])
	}
	return selected
}

func indicesForSubelement[T Selectable](pool []T, subelement string) []int {
	idx := make([]int, 0)
	for i := range pool {
		if pool[i].SubelementCode() == subelement {
			idx = append(idx, i)
		}
	}
	return idx
}

func shuffleInts(rng *rand.Rand, s []int) {
	rng.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}
