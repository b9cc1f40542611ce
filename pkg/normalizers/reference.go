package normalizers

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// 2025-016-10-4554 style numbers are kept whole
	longReferencePattern = regexp.MustCompile(`\d{4}(?:-\d+){3}`)
	// 2590/2025, 2590-2025, 2590 2025, 2590 لسنة 2025
	pairReferencePattern = regexp.MustCompile(`(\d+)(?:\s*[/\-]\s*|\s*لسنة\s*|\s+)(\d+)`)
	digitGroupPattern    = regexp.MustCompile(`\d+`)
	referenceScrub       = regexp.MustCompile(`[^\d/\-]`)
)

// NormalizeReferenceNumber returns the canonical rendering of a case reference.
//
// The first "number/year" style pair is rendered as "a/b". Without a pair the text is
// scrubbed down to digits and separators; text without any digit is returned unchanged.
func NormalizeReferenceNumber(s string) string {
	folded := strings.TrimSpace(FoldDigits(s))
	if folded == "" {
		return s
	}

	if m := longReferencePattern.FindString(folded); m != "" {
		return m
	}

	if m := pairReferencePattern.FindStringSubmatch(folded); m != nil {
		return m[1] + "/" + m[2]
	}

	if scrubbed := scrubReference(folded); scrubbed != "" {
		return scrubbed
	}

	return s
}

// AllReferenceVariations returns every plausible rendering of a reference, sorted and
// deduplicated. Source systems disagree on whether the number or the year comes first, so
// both orders are produced with slash, dash and no separator.
func AllReferenceVariations(s string) []string {
	folded := strings.TrimSpace(FoldDigits(s))
	if folded == "" {
		return nil
	}

	groups := digitGroupPattern.FindAllString(folded, -1)
	seen := make(map[string]struct{})
	add := func(v string) {
		if v != "" {
			seen[v] = struct{}{}
		}
	}

	switch {
	case len(groups) >= 2:
		a, b := groups[0], groups[1]
		add(a + "/" + b)
		add(b + "/" + a)
		add(a + "-" + b)
		add(b + "-" + a)
		add(a + b)
		add(b + a)
		add(scrubReference(folded))
		add(a)
	case len(groups) == 1:
		add(groups[0])
		add(scrubReference(folded))
	default:
		add(folded)
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// LeadingDigitGroup returns the first digit group of a reference when it has at least two.
// That bare group is a lookup variation but too weak to identify a case on its own.
func LeadingDigitGroup(s string) (string, bool) {
	groups := digitGroupPattern.FindAllString(FoldDigits(s), 2)
	if len(groups) < 2 {
		return "", false
	}
	return groups[0], true
}

// scrubReference keeps digits and separators, or "" when no digit survives.
func scrubReference(s string) string {
	scrubbed := strings.Trim(referenceScrub.ReplaceAllString(s, ""), "/-")
	if !digitGroupPattern.MatchString(scrubbed) {
		return ""
	}
	return scrubbed
}
