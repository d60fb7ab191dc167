package exam

import "testing"

func TestGradeSession(t *testing.T) {
	items := []GradeItem{
		{Position: 1, Subelement: "T1", Selected: "A", Correct: "A"},
		{Position: 2, Subelement: "T1", Selected: "b", Correct: "B"},
		{Position: 3, Subelement: "T2", Selected: "C", Correct: "D"},
		{Position: 4, Subelement: "T2", Selected: "", Correct: "A"},
		{Position: 5, Subelement: "T0", Selected: " ", Correct: "C"},
	}

	g := GradeSession(items, 3)

	if g.TotalQuestions != 5 || g.Answered != 3 || g.Correct != 2 || g.Incorrect != 1 || g.Unanswered != 2 {
		t.Fatalf("totals wrong: %+v", g)
	}
	if g.Percent != 40 {
		t.Fatalf("percent = %v, want 40", g.Percent)
	}
	if g.Passed {
		t.Fatalf("2 correct against passing score 3 must not pass")
	}

	if len(g.Breakdown) != 3 {
		t.Fatalf("breakdown has %d subelements, want 3", len(g.Breakdown))
	}
	// T0 sorts after T2, matching pool order.
	if g.Breakdown[0].Subelement != "T1" || g.Breakdown[1].Subelement != "T2" || g.Breakdown[2].Subelement != "T0" {
		t.Fatalf("breakdown order wrong: %+v", g.Breakdown)
	}
	if g.Breakdown[0].Correct != 2 || g.Breakdown[0].Total != 2 {
		t.Fatalf("T1 breakdown wrong: %+v", g.Breakdown[0])
	}
	if g.Breakdown[1].Correct != 0 || g.Breakdown[1].Total != 2 {
		t.Fatalf("T2 breakdown wrong: %+v", g.Breakdown[1])
	}
}

func TestGradeSession_PassBoundary(t *testing.T) {
	items := make([]GradeItem, 0, 35)
	for i := 0; i < 35; i++ {
		correct := "A"
		selected := "A"
		if i >= 26 {
			selected = "B"
		}
		items = append(items, GradeItem{Position: i + 1, Subelement: "T1", Selected: selected, Correct: correct})
	}

	g := GradeSession(items, 26)
	if g.Correct != 26 || !g.Passed {
		t.Fatalf("26 of 35 must pass: %+v", g)
	}

	items[0].Selected = "B"
	g = GradeSession(items, 26)
	if g.Correct != 25 || g.Passed {
		t.Fatalf("25 of 35 must not pass: %+v", g)
	}
}

func TestGradeSession_Empty(t *testing.T) {
	g := GradeSession(nil, 26)
	if g.TotalQuestions != 0 || g.Percent != 0 || g.Passed {
		t.Fatalf("empty session graded wrong: %+v", g)
	}
}

func TestPassingScoreFor(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{count: 35, want: 26},
		{count: 50, want: 37},
		{count: 10, want: 8},
		{count: 1, want: 1},
		{count: 0, want: 0},
		{count: -3, want: 0},
	}
	for _, tc := range tests {
		if got := PassingScoreFor(tc.count); got != tc.want {
			t.Fatalf("PassingScoreFor(%d) = %d, want %d", tc.count, got, tc.want)
		}
	}
}
