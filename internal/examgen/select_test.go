package examgen

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

type poolItem struct {
	Number     string
	Subelement string
	Group      string
}

func (p poolItem) SubelementCode() string { return p.Subelement }
func (p poolItem) QuestionGroup() string  { return p.Group }

// densePool builds numPerGroup questions for every listed group, with the
// subelement taken from the first two characters of the group code.
func densePool(numPerGroup int, groups ...string) []poolItem {
	pool := make([]poolItem, 0, numPerGroup*len(groups))
	for _, g := range groups {
		for n := 1; n <= numPerGroup; n++ {
			pool = append(pool, poolItem{
				Number:     fmt.Sprintf("%s%02d", g, n),
				Subelement: g[:2],
				Group:      g,
			})
		}
	}
	return pool
}

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func countBy(items []poolItem, key func(poolItem) string) map[string]int {
	out := map[string]int{}
	for _, it := range items {
		out[key(it)]++
	}
	return out
}

func assertNoDuplicates(t *testing.T, items []poolItem) {
	t.Helper()
	seen := map[string]bool{}
	for _, it := range items {
		if seen[it.Number] {
			t.Fatalf("question %s selected twice", it.Number)
		}
		seen[it.Number] = true
	}
}

func TestSelectExamQuestions_DensePoolMatchesDistribution(t *testing.T) {
	pool := densePool(6,
		"T1A", "T1B", "T1C", "T1D",
		"T2A", "T2B", "T2C",
		"T3A", "T3B", "T3C",
	)
	dist := Distribution{
		{Subelement: "T1", Count: 4},
		{Subelement: "T2", Count: 3},
		{Subelement: "T3", Count: 2},
	}

	for seed := uint64(1); seed <= 50; seed++ {
		got := SelectExamQuestionsRand(testRand(seed), pool, 9, dist)
		if len(got) != 9 {
			t.Fatalf("seed %d: got %d questions, want 9", seed, len(got))
		}
		assertNoDuplicates(t, got)

		bySub := countBy(got, func(p poolItem) string { return p.Subelement })
		if bySub["T1"] != 4 || bySub["T2"] != 3 || bySub["T3"] != 2 {
			t.Fatalf("seed %d: subelement counts %v, want T1=4 T2=3 T3=2", seed, bySub)
		}
	}
}

func TestSelectExamQuestions_OnePerGroupWhenPoolPermits(t *testing.T) {
	pool := densePool(6, "T1A", "T1B", "T1C", "T1D", "T1E")
	dist := Distribution{{Subelement: "T1", Count: 4}}

	for seed := uint64(1); seed <= 50; seed++ {
		got := SelectExamQuestionsRand(testRand(seed), pool, 4, dist)
		if len(got) != 4 {
			t.Fatalf("seed %d: got %d questions, want 4", seed, len(got))
		}

		byGroup := countBy(got, func(p poolItem) string { return p.Group })
		for g, n := range byGroup {
			if n > 1 {
				t.Fatalf("seed %d: group %s drawn %d times", seed, g, n)
			}
		}
	}
}

func TestSelectExamQuestions_ExampleScenario(t *testing.T) {
	// 18 questions in T1 across three groups, distribution {T1: 3}.
	pool := densePool(6, "T1A", "T1B", "T1C")
	dist := Distribution{{Subelement: "T1", Count: 3}}

	for seed := uint64(1); seed <= 50; seed++ {
		got := SelectExamQuestionsRand(testRand(seed), pool, 3, dist)
		if len(got) != 3 {
			t.Fatalf("seed %d: got %d questions, want 3", seed, len(got))
		}
		byGroup := countBy(got, func(p poolItem) string { return p.Group })
		if len(byGroup) != 3 {
			t.Fatalf("seed %d: drawn from %d groups, want 3 distinct", seed, len(byGroup))
		}
		for _, it := range got {
			if it.Subelement != "T1" {
				t.Fatalf("seed %d: unexpected subelement %s", seed, it.Subelement)
			}
		}
	}
}

func TestSelectExamQuestions_SubelementBackfillPrefersSameSubelement(t *testing.T) {
	// T1 has only two groups but a quota of 4; T2 has plenty. The two
	// extra T1 slots must come from T1's remaining questions, not T2.
	pool := densePool(5, "T1A", "T1B", "T2A", "T2B", "T2C", "T2D")
	dist := Distribution{
		{Subelement: "T1", Count: 4},
		{Subelement: "T2", Count: 2},
	}

	for seed := uint64(1); seed <= 50; seed++ {
		got := SelectExamQuestionsRand(testRand(seed), pool, 6, dist)
		if len(got) != 6 {
			t.Fatalf("seed %d: got %d questions, want 6", seed, len(got))
		}
		assertNoDuplicates(t, got)

		bySub := countBy(got, func(p poolItem) string { return p.Subelement })
		if bySub["T1"] != 4 {
			t.Fatalf("seed %d: T1 count %d, want 4 via same-subelement backfill", seed, bySub["T1"])
		}
		if bySub["T2"] != 2 {
			t.Fatalf("seed %d: T2 count %d, want 2", seed, bySub["T2"])
		}
	}
}

func TestSelectExamQuestions_GlobalBackfillOnExhaustedSubelement(t *testing.T) {
	// T1 can supply at most 2 questions against a quota of 5; the
	// shortfall is made up globally so the total still lands on target.
	pool := append(densePool(1, "T1A", "T1B"), densePool(4, "T2A", "T2B", "T2C")...)
	dist := Distribution{
		{Subelement: "T1", Count: 5},
		{Subelement: "T2", Count: 3},
	}

	for seed := uint64(1); seed <= 50; seed++ {
		got := SelectExamQuestionsRand(testRand(seed), pool, 8, dist)
		if len(got) != 8 {
			t.Fatalf("seed %d: got %d questions, want 8", seed, len(got))
		}
		assertNoDuplicates(t, got)

		bySub := countBy(got, func(p poolItem) string { return p.Subelement })
		if bySub["T1"] != 2 {
			t.Fatalf("seed %d: T1 count %d, want all 2 available", seed, bySub["T1"])
		}
		if bySub["T2"] != 6 {
			t.Fatalf("seed %d: T2 count %d, want 6 after global backfill", seed, bySub["T2"])
		}
	}
}

func TestSelectExamQuestions_SparsePoolReturnsEverythingOnce(t *testing.T) {
	pool := densePool(1, "T1A", "T1B", "T2A")
	dist := Distribution{
		{Subelement: "T1", Count: 2},
		{Subelement: "T2", Count: 1},
	}

	for seed := uint64(1); seed <= 50; seed++ {
		got := SelectExamQuestionsRand(testRand(seed), pool, 10, dist)
		if len(got) != 3 {
			t.Fatalf("seed %d: got %d questions, want all 3 available", seed, len(got))
		}
		assertNoDuplicates(t, got)
	}
}

func TestSelectExamQuestions_MissingSubelementSkipped(t *testing.T) {
	pool := densePool(3, "T1A", "T1B")
	dist := Distribution{
		{Subelement: "T1", Count: 2},
		{Subelement: "T9", Count: 4},
	}

	got := SelectExamQuestionsRand(testRand(7), pool, 2, dist)
	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2", len(got))
	}
	for _, it := range got {
		if it.Subelement != "T1" {
			t.Fatalf("unexpected subelement %s", it.Subelement)
		}
	}
}

func TestSelectExamQuestions_DistributionOmitsSubelement(t *testing.T) {
	// T3 is absent from the distribution but still reachable through the
	// global backfill pass.
	pool := densePool(1, "T1A", "T3A", "T3B")
	dist := Distribution{{Subelement: "T1", Count: 1}}

	for seed := uint64(1); seed <= 50; seed++ {
		got := SelectExamQuestionsRand(testRand(seed), pool, 3, dist)
		if len(got) != 3 {
			t.Fatalf("seed %d: got %d questions, want 3", seed, len(got))
		}
		assertNoDuplicates(t, got)
	}
}

func TestSelectExamQuestions_EmptyInputs(t *testing.T) {
	dist := Distribution{{Subelement: "T1", Count: 3}}

	if got := SelectExamQuestionsRand[poolItem](testRand(1), nil, 5, dist); len(got) != 0 {
		t.Fatalf("empty pool: got %d questions, want 0", len(got))
	}

	pool := densePool(2, "T1A")
	if got := SelectExamQuestionsRand(testRand(1), pool, 0, dist); len(got) != 0 {
		t.Fatalf("zero count: got %d questions, want 0", len(got))
	}
	if got := SelectExamQuestionsRand(testRand(1), pool, 2, nil); len(got) != 2 {
		t.Fatalf("nil distribution: got %d questions, want 2 via backfill", len(got))
	}
}

func TestSelectExamQuestions_DoesNotMutatePool(t *testing.T) {
	pool := densePool(3, "T1A", "T1B", "T2A")
	before := make([]poolItem, len(pool))
	copy(before, pool)

	_ = SelectExamQuestionsRand(testRand(5), pool, 4, Distribution{
		{Subelement: "T1", Count: 2},
		{Subelement: "T2", Count: 1},
	})

	for i := range pool {
		if pool[i] != before[i] {
			t.Fatalf("pool mutated at index %d: %v != %v", i, pool[i], before[i])
		}
	}
}

func TestSelectExamQuestions_FinalOrderNotGroupedBySubelement(t *testing.T) {
	pool := densePool(6, "T1A", "T1B", "T1C", "T2A", "T2B", "T2C")
	dist := Distribution{
		{Subelement: "T1", Count: 3},
		{Subelement: "T2", Count: 3},
	}

	// Across many draws the first position should not always come from
	// the first distribution entry.
	firstSub := map[string]bool{}
	for seed := uint64(1); seed <= 200; seed++ {
		got := SelectExamQuestionsRand(testRand(seed), pool, 6, dist)
		if len(got) != 6 {
			t.Fatalf("seed %d: got %d questions, want 6", seed, len(got))
		}
		firstSub[got[0].Subelement] = true
	}
	if len(firstSub) < 2 {
		t.Fatalf("first question always from %v; final order looks grouped", firstSub)
	}
}

func TestDistributionFromMap_SortedByCode(t *testing.T) {
	d := DistributionFromMap(map[string]int{"T3": 1, "T1": 4, "T2": 2})
	want := Distribution{
		{Subelement: "T1", Count: 4},
		{Subelement: "T2", Count: 2},
		{Subelement: "T3", Count: 1},
	}
	if len(d) != len(want) {
		t.Fatalf("got %d entries, want %d", len(d), len(want))
	}
	for i := range want {
		if d[i] != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, d[i], want[i])
		}
	}
}
