package study

import (
	"math"
	"sort"
)

// Verdict buckets for the readiness score.
const (
	VerdictReady    = "ready"
	VerdictAlmost   = "almost"
	VerdictNotReady = "not_ready"
)

// SubelementStats is a user's recent answer history for one subelement,
// paired with that subelement's quota on the real exam.
type SubelementStats struct {
	Subelement string
	Quota      int
	Attempted  int
	Correct    int
}

type SubelementReadiness struct {
	Subelement string  `json:"subelement"`
	Quota      int     `json:"quota"`
	Attempted  int     `json:"attempted"`
	Correct    int     `json:"correct"`
	Accuracy   float64 `json:"accuracy"`
	Coverage   float64 `json:"coverage"`
}

type Readiness struct {
	Score       int                   `json:"score"`
	Verdict     string                `json:"verdict"`
	Subelements []SubelementReadiness `json:"subelements"`
}

// Full coverage of a subelement requires having practiced about twice its
// exam quota; below that the accuracy estimate is discounted linearly.
const coverageFactor = 2

// ComputeReadiness folds per-subelement accuracy into a 0-100 score.
// Each subelement contributes in proportion to its exam quota, and its
// accuracy is discounted by coverage so a lucky streak on three questions
// does not read as mastery. Subelements never attempted contribute zero.
func ComputeReadiness(stats []SubelementStats) Readiness {
	r := Readiness{Verdict: VerdictNotReady, Subelements: make([]SubelementReadiness, 0, len(stats))}

	totalQuota := 0
	for _, s := range stats {
		if s.Quota > 0 {
			totalQuota += s.Quota
		}
	}
	if totalQuota == 0 {
		return r
	}

	weighted := 0.0
	for _, s := range stats {
		sr := SubelementReadiness{
			Subelement: s.Subelement,
			Quota:      s.Quota,
			Attempted:  s.Attempted,
			Correct:    s.Correct,
		}
		if s.Attempted > 0 {
			sr.Accuracy = float64(s.Correct) / float64(s.Attempted)
		}
		if s.Quota > 0 {
			needed := coverageFactor * s.Quota
			sr.Coverage = math.Min(1, float64(s.Attempted)/float64(needed))
			weight := float64(s.Quota) / float64(totalQuota)
			weighted += weight * sr.Accuracy * sr.Coverage
		}
		r.Subelements = append(r.Subelements, sr)
	}

	sort.Slice(r.Subelements, func(i, j int) bool {
		return subelementLess(r.Subelements[i].Subelement, r.Subelements[j].Subelement)
	})

	r.Score = int(math.Round(100 * weighted))
	switch {
	case r.Score >= 85:
		r.Verdict = VerdictReady
	case r.Score >= 70:
		r.Verdict = VerdictAlmost
	}
	return r
}

// subelementLess orders pool codes with the "0" subelement last, matching
// how the pools print them (T1..T9, T0).
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
