package contenthash

import (
	"regexp"
	"testing"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "What Is The MAXIMUM Power?", want: "what is the maximum power?"},
		{name: "collapses internal whitespace", in: "a  b\t\tc\n d", want: "a b c d"},
		{name: "trims", in: "  padded out  ", want: "padded out"},
		{name: "folds curly single quotes", in: "the operator’s license", want: "the operator's license"},
		{name: "folds curly double quotes", in: "“CQ” means calling any station", want: `"cq" means calling any station`},
		{name: "empty", in: "", want: ""},
		{name: "whitespace only", in: " \t\n ", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	options := []string{"5 watts", "10 watts", "50 watts", "200 watts"}
	a := ContentHash("What is the maximum power?", options, 2)
	b := ContentHash("What is the maximum power?", options, 2)
	if a != b {
		t.Fatalf("same input hashed differently: %s vs %s", a, b)
	}
	if !hexDigest.MatchString(a) {
		t.Fatalf("digest %q is not 64 lowercase hex characters", a)
	}
}

func TestContentHash_Sensitivity(t *testing.T) {
	base := ContentHash("What is the maximum power?", []string{"a", "b", "c", "d"}, 0)

	tests := []struct {
		name    string
		text    string
		options []string
		index   int
	}{
		{name: "changed text", text: "What is the minimum power?", options: []string{"a", "b", "c", "d"}, index: 0},
		{name: "changed option", text: "What is the maximum power?", options: []string{"a", "b", "c", "e"}, index: 0},
		{name: "changed index", text: "What is the maximum power?", options: []string{"a", "b", "c", "d"}, index: 1},
		{name: "option moved into text", text: "What is the maximum power? a", options: []string{"", "b", "c", "d"}, index: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContentHash(tc.text, tc.options, tc.index); got == base {
				t.Fatalf("edit did not change the digest")
			}
		})
	}
}

func TestContentHash_NormalizationInvariance(t *testing.T) {
	base := ContentHash("What does “CQ” mean?", []string{"calling any station", "b", "c", "d"}, 0)

	tests := []struct {
		name    string
		text    string
		options []string
	}{
		{name: "case only", text: "WHAT DOES “CQ” MEAN?", options: []string{"Calling Any Station", "b", "c", "d"}},
		{name: "extra whitespace", text: "  What  does “CQ”  mean? ", options: []string{"calling  any   station", "b", "c", "d"}},
		{name: "straight quotes", text: `What does "CQ" mean?`, options: []string{"calling any station", "b", "c", "d"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContentHash(tc.text, tc.options, 0); got != base {
				t.Fatalf("normalization-equivalent input hashed differently")
			}
		})
	}
}

func TestContentHash_OutOfRangeIndexStillDeterministic(t *testing.T) {
	a := ContentHash("q", []string{"a", "b", "c", "d"}, 9)
	b := ContentHash("q", []string{"a", "b", "c", "d"}, 9)
	if a != b {
		t.Fatalf("out-of-range index hashed differently across calls")
	}
	if a == ContentHash("q", []string{"a", "b", "c", "d"}, 3) {
		t.Fatalf("out-of-range index collided with a valid one")
	}
}

func TestQuestionHash_MatchesPositionalCall(t *testing.T) {
	q := Question{
		Text: "Which agency regulates amateur radio in the United States?",
		Options: map[string]string{
			"A": "FEMA",
			"B": "FAA",
			"C": "FCC",
			"D": "ITU",
		},
		CorrectAnswer: "C",
	}

	want := ContentHash(q.Text, []string{"FEMA", "FAA", "FCC", "ITU"}, 2)
	if got := QuestionHash(q); got != want {
		t.Fatalf("QuestionHash = %s, want %s", got, want)
	}
}

func TestAnswerIndex(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "A", want: 0},
		{in: "d", want: 3},
		{in: " b ", want: 1},
		{in: "E", want: -1},
		{in: "", want: -1},
		{in: "AB", want: -1},
	}
	for _, tc := range tests {
		if got := AnswerIndex(tc.in); got != tc.want {
			t.Fatalf("AnswerIndex(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestAnswerLetter(t *testing.T) {
	if got := AnswerLetter(2); got != "C" {
		t.Fatalf("AnswerLetter(2) = %q, want C", got)
	}
	if got := AnswerLetter(4); got != "" {
		t.Fatalf("AnswerLetter(4) = %q, want empty", got)
	}
	if got := AnswerLetter(-1); got != "" {
		t.Fatalf("AnswerLetter(-1) = %q, want empty", got)
	}
}
