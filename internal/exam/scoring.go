package exam

import (
	"sort"
	"strings"
)

// GradeItem is one graded question of a session: what the user selected
// and what the pool says is correct.
type GradeItem struct {
	Position   int
	Subelement string
	Selected   string
	Correct    string
}

type SubelementBreakdown struct {
	Subelement string `json:"subelement"`
	Total      int    `json:"total"`
	Correct    int    `json:"correct"`
}

type Grade struct {
	TotalQuestions int                   `json:"total_questions"`
	Answered       int                   `json:"answered"`
	Correct        int                   `json:"correct"`
	Incorrect      int                   `json:"incorrect"`
	Unanswered     int                   `json:"unanswered"`
	Percent        float64               `json:"percent"`
	PassingScore   int                   `json:"passing_score"`
	Passed         bool                  `json:"passed"`
	Breakdown      []SubelementBreakdown `json:"breakdown"`
}

// GradeSession scores a finished session. Answer comparison is
// case-insensitive; an empty or whitespace selection counts as unanswered.
// passingScore is the minimum number of correct answers to pass.
func GradeSession(items []GradeItem, passingScore int) Grade {
	g := Grade{TotalQuestions: len(items), PassingScore: passingScore}

	bySub := map[string]*SubelementBreakdown{}
	for _, it := range items {
		sub := strings.TrimSpace(it.Subelement)
		b, ok := bySub[sub]
		if !ok {
			b = &SubelementBreakdown{Subelement: sub}
			bySub[sub] = b
		}
		b.Total++

		selected := strings.TrimSpace(it.Selected)
		if selected == "" {
			continue
		}
		g.Answered++
		if strings.EqualFold(selected, strings.TrimSpace(it.Correct)) {
			g.Correct++
			b.Correct++
		}
	}

	g.Incorrect = g.Answered - g.Correct
	g.Unanswered = g.TotalQuestions - g.Answered
	if g.TotalQuestions > 0 {
		g.Percent = 100 * float64(g.Correct) / float64(g.TotalQuestions)
	}
	g.Passed = passingScore > 0 && g.Correct >= passingScore

	g.Breakdown = make([]SubelementBreakdown, 0, len(bySub))
	for _, b := range bySub {
		g.Breakdown = append(g.Breakdown, *b)
	}
	sort.Slice(g.Breakdown, func(i, j int) bool {
		return subelementLess(g.Breakdown[i].Subelement, g.Breakdown[j].Subelement)
	})
	return g
}

// PassingScoreFor applies the FCC 74% rule to an arbitrary question count:
// 26 of 35, 37 of 50.
func PassingScoreFor(questionCount int) int {
	if questionCount <= 0 {
		return 0
	}
	// ceil(0.74 * n) without floating point
	return (74*questionCount + 99) / 100
}

// subelementLess orders pool subelement codes, placing the "0" subelement
// (T0, G0, E0) after "9" as the pools do.
func subelementLess(a, b string) bool {
	ra, rb := subelementRank(a), subelementRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

func subelementRank(code string) string {
	if len(code) == 2 && code[1] == '0' {
		return string(code[0]) + ":"
	}
	return code
}
