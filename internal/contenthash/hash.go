// Package contenthash fingerprints question content so admin tooling can
// detect duplicated or silently edited questions. Digests are persisted and
// compared across processes, so the normalization and composition here are
// a storage contract: do not change them without rehashing the whole bank.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fields are joined with the ASCII unit separator so that no field edit can
// produce the same composed string as another input.
const fieldSeparator = "\x1f"

// AnswerLetters lists the option keys of a multiple-choice question in
// positional order.
var AnswerLetters = []string{"A", "B", "C", "D"}

var quoteFolder = strings.NewReplacer(
	"‘", "'", // left single
	"’", "'", // right single
	"‚", "'",
	"‛", "'",
	"“", `"`, // left double
	"”", `"`, // right double
	"„", `"`,
	"‟", `"`,
)

// Normalize prepares a text field for hashing: lowercase, curly quotes
// folded to their ASCII equivalents, runs of whitespace collapsed to a
// single space, leading and trailing whitespace trimmed.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = quoteFolder.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ContentHash computes the stable digest of a question: SHA-256 over the
// normalized question text, the normalized options in positional order, and
// the 0-based correct-answer index, rendered as 64 lowercase hex characters.
// An out-of-range index is not validated; it is composed as-is and still
// yields a deterministic digest.
func ContentHash(questionText string, options []string, correctIndex int) string {
	parts := make([]string, 0, len(options)+2)
	parts = append(parts, Normalize(questionText))
	for _, opt := range options {
		parts = append(parts, Normalize(opt))
	}
	parts = append(parts, strconv.Itoa(correctIndex))

	sum := sha256.Sum256([]byte(strings.Join(parts, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}

// Question is the letter-keyed form questions are stored in.
type Question struct {
	Text          string
	Options       map[string]string
	CorrectAnswer string
}

// QuestionHash hashes a letter-keyed question. It is equivalent to calling
// ContentHash with the options in A–D order and the correct-answer letter
// converted to its 0-based index.
func QuestionHash(q Question) string {
	options := make([]string, 0, len(AnswerLetters))
	for _, letter := range AnswerLetters {
		options = append(options, q.Options[letter])
	}
	return ContentHash(q.Text, options, AnswerIndex(q.CorrectAnswer))
}

// AnswerIndex converts an answer letter to its 0-based option position.
// Unrecognized letters map to -1, which hashes deterministically but never
// collides with a valid index.
func AnswerIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if len(letter) != 1 {
		return -1
	}
	i := int(letter[0] - 'A')
	if i < 0 || i >= len(AnswerLetters) {
		return -1
	}
	return i
}

// AnswerLetter is the inverse of AnswerIndex; out-of-range indices yield "".
func AnswerLetter(index int) string {
	if index < 0 || index >= len(AnswerLetters) {
		return ""
	}
	return AnswerLetters[index]
}
