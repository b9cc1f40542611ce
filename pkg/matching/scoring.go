// Package matching scores how well a candidate case matches a new entity bag
package matching

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Fuzzy-match thresholds used when no configuration is supplied
const (
	DefaultNameThreshold        = 0.85
	DefaultDescriptionThreshold = 0.80
	DefaultEvidenceThreshold    = 0.85
)

// dateLayouts are the date renderings extractors produce, most specific first
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// Thresholds are the similarity ratios above which two normalized strings are the same thing
type Thresholds struct {
	Name        float64
	Description float64
	Evidence    float64
}

// Scorer provides string and date comparison for entity matching
type Scorer struct {
	thresholds Thresholds
}

// NewScorer creates a new Scorer. Zero thresholds fall back to the defaults.
func NewScorer(thresholds Thresholds) *Scorer {
	if thresholds.Name <= 0 {
		thresholds.Name = DefaultNameThreshold
	}
	if thresholds.Description <= 0 {
		thresholds.Description = DefaultDescriptionThreshold
	}
	if thresholds.Evidence <= 0 {
		thresholds.Evidence = DefaultEvidenceThreshold
	}
	return &Scorer{thresholds: thresholds}
}

// Thresholds returns the configured thresholds
func (s *Scorer) Thresholds() Thresholds {
	return s.thresholds
}

// Similarity returns 1 - editDistance/maxLength over runes, in [0,1]. Two empty strings are
// identical; one empty string matches nothing.
func (s *Scorer) Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(max(la, lb))
}

// NameMatch reports whether two normalized names are the same person name
func (s *Scorer) NameMatch(a, b string) bool {
	return a != "" && b != "" && s.Similarity(a, b) > s.thresholds.Name
}

// DescriptionMatch reports whether two normalized charge descriptions are the same offense
func (s *Scorer) DescriptionMatch(a, b string) bool {
	return a != "" && b != "" && s.Similarity(a, b) > s.thresholds.Description
}

// EvidenceMatch reports whether two normalized evidence descriptions are the same item
func (s *Scorer) EvidenceMatch(a, b string) bool {
	return a != "" && b != "" && s.Similarity(a, b) > s.thresholds.Evidence
}

// WithinDays reports whether two textual dates parse and lie at most days apart
func (s *Scorer) WithinDays(a, b string, days int) bool {
	ta, ok := ParseDate(a)
	if !ok {
		return false
	}
	tb, ok := ParseDate(b)
	if !ok {
		return false
	}
	diff := math.Abs(ta.Sub(tb).Hours() / 24)
	return diff <= float64(days)
}

// Cosine returns the cosine similarity of two equal-length vectors, or 0 when undefined
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ParseDate parses the date renderings extractors produce
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(normalizers.FoldDigits(s))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CompareDates orders two textual dates. Parseable dates compare chronologically; otherwise
// the strings compare lexically, which is chronological for ISO dates.
func CompareDates(a, b string) int {
	ta, okA := ParseDate(a)
	tb, okB := ParseDate(b)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}
