package normalizers

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeArabic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t ", ""},
		{"plain", "محمد", "محمد"},
		{"harakat", "مُحَمَّد", "محمد"},
		{"shadda", "محمّد", "محمد"},
		{"tatweel", "محـــمد", "محمد"},
		{"alef with hamza above", "أحمد", "احمد"},
		{"alef with hamza below", "إبراهيم", "ابراهيم"},
		{"alef madda", "آمنة", "امنه"},
		{"alef maksura", "مصطفى", "مصطفي"},
		{"ta marbuta", "فاطمة", "فاطمه"},
		{"whitespace collapse", "  أحمد    علي  ", "احمد علي"},
		{"mixed latin", "أحمد ALI", "احمد ali"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeArabic(tt.input))
		})
	}
}

func TestNormalizeArabic_SignatureStability(t *testing.T) {
	a := NormalizeArabic("محمد")
	b := NormalizeArabic("مُحَمَّد")
	c := NormalizeArabic("محمّد")

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestNormalizeArabic_Idempotent(t *testing.T) {
	for _, s := range []string{"أحمد علي", "مُحَمَّد", "فاطمة الزهراء", "Court of Appeal"} {
		once := NormalizeArabic(s)
		assert.Equal(t, once, NormalizeArabic(once))
	}
}

func TestNormalizeArabic_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "محمد", NormalizeArabic("مُحَمَّد"))
			}
		}()
	}
	wg.Wait()
}

func TestNormalizeReferenceNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"slash", "2590/2025", "2590/2025"},
		{"spaced slash", "2590 / 2025", "2590/2025"},
		{"dash", "2590-2025", "2590/2025"},
		{"arabic year phrase", "2590 لسنة 2025", "2590/2025"},
		{"arabic year phrase with station", "2590 لسنة 2025 قسم شرطة أم صلال", "2590/2025"},
		{"embedded in text", "في البلاغ رقم 2590/2025", "2590/2025"},
		{"arabic-indic digits", "٢٥٩٠/٢٠٢٥", "2590/2025"},
		{"long format kept whole", "2025-016-10-4554", "2025-016-10-4554"},
		{"single number", "رقم 4554", "4554"},
		{"no digits", "غير معروف", "غير معروف"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeReferenceNumber(tt.input))
		})
	}
}

func TestAllReferenceVariations(t *testing.T) {
	t.Run("two groups", func(t *testing.T) {
		got := AllReferenceVariations("2552/2025")
		assert.ElementsMatch(t, []string{
			"2552/2025", "2025/2552",
			"2552-2025", "2025-2552",
			"25522025", "20252552",
			"2552",
		}, got)
	})

	t.Run("sorted and deduplicated", func(t *testing.T) {
		got := AllReferenceVariations("2590 لسنة 2025")
		require.NotEmpty(t, got)
		assert.IsIncreasing(t, got)
		assert.Contains(t, got, "2590/2025")
		assert.Contains(t, got, "2025/2590")
	})

	t.Run("symmetric", func(t *testing.T) {
		a := AllReferenceVariations("2552/2025")
		b := AllReferenceVariations("2025/2552")
		set := make(map[string]bool)
		for _, v := range a {
			set[v] = true
		}
		shared := 0
		for _, v := range b {
			if set[v] {
				shared++
			}
		}
		assert.Greater(t, shared, 0)
	})

	t.Run("single group", func(t *testing.T) {
		assert.Equal(t, []string{"4554"}, AllReferenceVariations("No. 4554"))
	})

	t.Run("no digits", func(t *testing.T) {
		assert.Equal(t, []string{"غير معروف"}, AllReferenceVariations("  غير معروف "))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, AllReferenceVariations("   "))
	})
}

func TestLeadingDigitGroup(t *testing.T) {
	g, ok := LeadingDigitGroup("2590/2025")
	assert.True(t, ok)
	assert.Equal(t, "2590", g)

	_, ok = LeadingDigitGroup("4554")
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	t.Run("built-ins are registered", func(t *testing.T) {
		for _, name := range []string{"lowercase", "trim", "collapse_whitespace", "arabic", "reference", "english", "fold_digits"} {
			_, ok := Get(name)
			assert.True(t, ok, name)
		}
	})

	t.Run("unknown normalizer is a no-op", func(t *testing.T) {
		assert.Equal(t, "Value", Apply("Value", "does_not_exist"))
	})

	t.Run("chain", func(t *testing.T) {
		assert.Equal(t, "hello world", ApplyChain("  Hello   World ", "collapse_whitespace", "lowercase"))
	})

	t.Run("custom", func(t *testing.T) {
		Register("test_upper", strings.ToUpper)
		assert.Equal(t, "ABC", Apply("abc", "test_upper"))
	})

	t.Run("named chains", func(t *testing.T) {
		tests := []struct {
			name  string
			in    string
			chain []string
			want  string
		}{
			{name: "label", in: "  Bank Receipt ", chain: LabelChain, want: "bank receipt"},
			{name: "empty label", in: "   ", chain: LabelChain, want: ""},
			{name: "arabic-indic article", in: " ٣٩٩ ", chain: NumberChain, want: "399"},
			{name: "extended arabic-indic year", in: "۲۰۱۶", chain: NumberChain, want: "2016"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.want, ApplyChain(tt.in, tt.chain...))
			})
		}
	})
}
