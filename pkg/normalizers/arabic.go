package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// arabicMarks covers harakat, tanween, shadda, sukun, superscript alef, Quranic annotation
// signs and tatweel.
var arabicMarks = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0610, Hi: 0x061A, Stride: 1},
		{Lo: 0x0640, Hi: 0x0640, Stride: 1},
		{Lo: 0x064B, Hi: 0x065F, Stride: 1},
		{Lo: 0x0670, Hi: 0x0670, Stride: 1},
		{Lo: 0x06D6, Hi: 0x06ED, Stride: 1},
	},
}

func foldArabicLetter(r rune) rune {
	switch r {
	case 'أ', 'إ', 'آ':
		return 'ا'
	case 'ى':
		return 'ي'
	case 'ة':
		return 'ه'
	}
	return r
}

// NormalizeArabic canonicalizes Arabic text for comparison: marks and tatweel are stripped,
// alef/ya/ta-marbuta variants are folded, whitespace is collapsed and the result is lower-cased
// (which only affects embedded Latin text). It never fails; empty input yields "".
func NormalizeArabic(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	// transform.Chain keeps internal state, so a chain is built per call.
	t := transform.Chain(norm.NFC, runes.Remove(runes.In(arabicMarks)), runes.Map(foldArabicLetter))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.Map(func(r rune) rune {
			if unicode.Is(arabicMarks, r) {
				return -1
			}
			return foldArabicLetter(r)
		}, s)
	}

	return strings.ToLower(CollapseWhitespace(out))
}
