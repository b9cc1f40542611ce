package signature

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestParty(t *testing.T) {
	tests := []struct {
		name       string
		personalID string
		nameAr     string
		nameEn     string
		expected   string
	}{
		{"personal id wins", " 28463401234 ", "أحمد", "Ahmed", "id:28463401234"},
		{"arabic-indic personal id", "٢٨٤٦", "", "", "id:2846"},
		{"arabic name", "", "أَحْمَد علي", "Ahmed", "ar:احمد علي"},
		{"english name", "", "", "  Ahmed ALI ", "en:ahmed ali"},
		{"nothing", "", "  ", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Party(tt.personalID, tt.nameAr, tt.nameEn))
		})
	}
}

func TestCharge(t *testing.T) {
	assert.Equal(t, "art:351", Charge(" 351 ", "سرقة", "theft"))
	assert.Equal(t, "ar:سرقه", Charge("", "سَرِقَة", "theft"))
	assert.Equal(t, "en:simple theft", Charge("", "", "  Simple   Theft "))
	assert.Equal(t, "", Charge("", "", ""))
}

func TestEvidence(t *testing.T) {
	assert.Equal(t, "cctv:تسجيل كاميرا", Evidence("CCTV", "تسجيل كاميرا", "camera recording"))
	assert.Equal(t, "cctv:camera recording", Evidence("cctv", "", "Camera Recording"))
	assert.Equal(t, "desc_ar:سكين", Evidence("", "سكين", ""))
	assert.Equal(t, "desc_en:knife", Evidence("", "", "Knife"))
	assert.Equal(t, "", Evidence("weapon", "", ""))
}

func TestSignatureStability(t *testing.T) {
	a := Party("", "محمد", "")
	b := Party("", "مُحَمَّد", "")
	c := Party("", "محمّد", "")
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestBagReferences_ReversedOrderOverlaps(t *testing.T) {
	police := BagReferences(models.BagCaseNumbers{Police: "2590/2025"})
	court := BagReferences(models.BagCaseNumbers{Court: "2025/2590"})

	assert.Contains(t, police, "2025/2590")
	assert.Contains(t, court, "2590/2025")
}

func TestIdentityReferences_DropsBareLeadingGroup(t *testing.T) {
	refs := IdentityReferences("2025/100")
	assert.NotContains(t, refs, "2025")
	assert.Contains(t, refs, "100/2025")

	other := IdentityReferences("2025/200")
	for _, r := range refs {
		assert.NotContains(t, other, r)
	}

	assert.Equal(t, []string{"4554"}, IdentityReferences("4554"))
}

func TestCaseReferences_IncludesRecordedVariations(t *testing.T) {
	refs := CaseReferences(models.CaseNumbers{Court: "2590/2025", Variations: []string{"X-1"}})
	assert.Contains(t, refs, "2590/2025")
	assert.Contains(t, refs, "2025/2590")
	assert.Contains(t, refs, "X-1")
}

func TestLookupKeys(t *testing.T) {
	bag := &models.EntityBag{
		CaseNumbers: models.BagCaseNumbers{Police: "2590/2025"},
		Parties: []models.BagParty{
			{PersonalID: "123"},
			{PersonalID: " 123 "},
			{NameAr: "أحمد"},
		},
	}

	keys := BagLookupKeys(bag)
	assert.Contains(t, keys, "ref:2590/2025")
	assert.Contains(t, keys, "ref:2025/2590")
	assert.Contains(t, keys, "pid:123")

	pidCount := 0
	for _, k := range keys {
		if k == "pid:123" {
			pidCount++
		}
	}
	assert.Equal(t, 1, pidCount)

	c := &models.Case{
		CaseNumbers: models.CaseNumbers{Court: "2025/2590"},
		Parties:     []models.CaseParty{{PersonalID: "123"}},
	}
	caseKeys := CaseLookupKeys(c)
	assert.Contains(t, caseKeys, "ref:2590/2025")
	assert.Contains(t, caseKeys, "pid:123")

	assert.Nil(t, BagLookupKeys(nil))
}

func TestBagFingerprint(t *testing.T) {
	decode := func(s string) *models.EntityBag {
		var bag models.EntityBag
		require.NoError(t, json.Unmarshal([]byte(s), &bag))
		return &bag
	}

	a := decode(`{"dates": {"incident": "2025-01-01", "report_filed": "2025-01-02"}, "parties": [{"name_ar": "أحمد"}]}`)
	b := decode(`{"parties": [{"name_ar": "أحمد"}], "dates": {"report_filed": "2025-01-02", "incident": "2025-01-01"}, "embedding": [0.3]}`)
	c := decode(`{"parties": [{"name_ar": "علي"}]}`)

	assert.Equal(t, BagFingerprint(a), BagFingerprint(b))
	assert.NotEqual(t, BagFingerprint(a), BagFingerprint(c))
	assert.True(t, HasChanged(BagFingerprint(a), BagFingerprint(c)))
	assert.Len(t, BagFingerprint(a), 64)
	assert.Empty(t, BagFingerprint(nil))
}

func TestFingerprint_NestedExclusion(t *testing.T) {
	a, err := Fingerprint(map[string]any{"financial": map[string]any{"bail": 1, "fines": []int{1}}}, map[string]bool{"financial.bail": true})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"financial": map[string]any{"bail": 2, "fines": []int{1}}}, map[string]bool{"financial.bail": true})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
