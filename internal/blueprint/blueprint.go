// Package blueprint defines the per-license-class exam structure: how many
// questions an exam has, how many must be correct to pass, and how the
// questions are distributed across subelements. Defaults matching the NCVEC
// question pool structure are compiled in; deployments can override them
// with a YAML file.
package blueprint

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"hamstudy/internal/examgen"
)

//go:embed blueprints.yaml
var defaultsYAML []byte

const (
	ClassTechnician = "technician"
	ClassGeneral    = "general"
	ClassExtra      = "extra"
)

type Segment struct {
	Subelement string `yaml:"subelement" json:"subelement"`
	Title      string `yaml:"title,omitempty" json:"title,omitempty"`
	Count      int    `yaml:"count" json:"count"`
}

type Blueprint struct {
	LicenseClass  string    `yaml:"license_class" json:"license_class"`
	Name          string    `yaml:"name" json:"name"`
	ElementName   string    `yaml:"element" json:"element"`
	QuestionCount int       `yaml:"question_count" json:"question_count"`
	PassingScore  int       `yaml:"passing_score" json:"passing_score"`
	Distribution  []Segment `yaml:"distribution" json:"distribution"`
}

type file struct {
	Blueprints []Blueprint `yaml:"blueprints"`
}

// Set holds the blueprints for all license classes, keyed by class code.
type Set map[string]Blueprint

// Defaults returns the compiled-in NCVEC blueprints. The embedded file is
// part of the binary, so a parse failure is a programming error.
func Defaults() Set {
	set, err := parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("blueprint: embedded defaults invalid: %v", err))
	}
	return set
}

// Load reads blueprints from r, e.g. a deployment override file.
func Load(r io.Reader) (Set, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blueprints: %w", err)
	}
	return parse(raw)
}

// LoadFile loads blueprints from path, falling back to the compiled-in
// defaults when path is empty.
func LoadFile(path string) (Set, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blueprints file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func parse(raw []byte) (Set, error) {
	var doc file
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode blueprints yaml: %w", err)
	}
	if len(doc.Blueprints) == 0 {
		return nil, fmt.Errorf("no blueprints defined")
	}

	set := make(Set, len(doc.Blueprints))
	for _, b := range doc.Blueprints {
		b.LicenseClass = strings.ToLower(strings.TrimSpace(b.LicenseClass))
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("blueprint %q: %w", b.LicenseClass, err)
		}
		if _, dup := set[b.LicenseClass]; dup {
			return nil, fmt.Errorf("duplicate blueprint for class %q", b.LicenseClass)
		}
		set[b.LicenseClass] = b
	}
	return set, nil
}

// Get looks a blueprint up by class code, case-insensitively.
func (s Set) Get(licenseClass string) (Blueprint, bool) {
	b, ok := s[strings.ToLower(strings.TrimSpace(licenseClass))]
	return b, ok
}

func (b Blueprint) Validate() error {
	if b.LicenseClass == "" {
		return fmt.Errorf("license_class is required")
	}
	if b.QuestionCount <= 0 {
		return fmt.Errorf("question_count must be positive")
	}
	if b.PassingScore <= 0 || b.PassingScore > b.QuestionCount {
		return fmt.Errorf("passing_score must be in 1..%d", b.QuestionCount)
	}
	if len(b.Distribution) == 0 {
		return fmt.Errorf("distribution is required")
	}

	seen := map[string]bool{}
	total := 0
	for _, seg := range b.Distribution {
		code := strings.TrimSpace(seg.Subelement)
		if code == "" {
			return fmt.Errorf("distribution entry missing subelement code")
		}
		if seen[code] {
			return fmt.Errorf("subelement %s listed twice", code)
		}
		seen[code] = true
		if seg.Count < 0 {
			return fmt.Errorf("subelement %s: count must be non-negative", code)
		}
		total += seg.Count
	}
	// The selector backfills a shortfall, so the quotas may sum below the
	// question count, never above it.
	if total > b.QuestionCount {
		return fmt.Errorf("distribution sums to %d, exceeding question_count %d", total, b.QuestionCount)
	}
	return nil
}

// ExamDistribution converts the blueprint's segments into the ordered form
// the question selector consumes.
func (b Blueprint) ExamDistribution() examgen.Distribution {
	d := make(examgen.Distribution, 0, len(b.Distribution))
	for _, seg := range b.Distribution {
		d = append(d, examgen.DistributionEntry{Subelement: seg.Subelement, Count: seg.Count})
	}
	return d
}

// Subelements lists the blueprint's subelement codes in distribution order.
func (b Blueprint) Subelements() []string {
	codes := make([]string, 0, len(b.Distribution))
	for _, seg := range b.Distribution {
		codes = append(codes, seg.Subelement)
	}
	return codes
}

// SegmentCount returns the quota for one subelement, 0 when absent.
func (b Blueprint) SegmentCount(subelement string) int {
	for _, seg := range b.Distribution {
		if seg.Subelement == subelement {
			return seg.Count
		}
	}
	return 0
}
