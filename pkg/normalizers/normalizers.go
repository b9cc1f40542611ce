// Package normalizers provides the text canonicalization used for signatures and matching
package normalizers

import (
	"strings"
	"sync"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var (
	mu       sync.RWMutex
	registry = make(map[string]Normalizer)
)

// Named chains for ApplyChain
var (
	// LabelChain canonicalizes short labels such as evidence types and English names
	LabelChain = []string{"trim", "lowercase"}
	// NumberChain canonicalizes article numbers and law years
	NumberChain = []string{"fold_digits", "trim"}
)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("arabic", NormalizeArabic)
	Register("reference", NormalizeReferenceNumber)
	Register("english", NormalizeEnglish)
	Register("fold_digits", FoldDigits)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := Get(normalizer)
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace trims the value and folds every whitespace run into a single space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEnglish lower-cases and collapses whitespace
func NormalizeEnglish(s string) string {
	return strings.ToLower(CollapseWhitespace(s))
}

// FoldDigits maps Arabic-Indic and extended Arabic-Indic digits to ASCII
func FoldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}
