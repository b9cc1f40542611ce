package merging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		max     int
		want    string
		changed bool
	}{
		{"short text untouched", "abc", 5, "abc", false},
		{"exact length untouched", "abcde", 5, "abcde", false},
		{"cut with marker", "abcdefgh", 5, "abcde" + TruncatedSuffix, true},
		{"runes not bytes", "محكمة دبي", 5, "محكمة" + TruncatedSuffix, true},
		{"already truncated", "abcde" + TruncatedSuffix, 5, "abcde" + TruncatedSuffix, false},
		{"no limit", "abcdefgh", 0, "abcdefgh", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := truncateText(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestClipBag(t *testing.T) {
	bag := &models.EntityBag{
		Parties: []models.BagParty{{NameEn: "A"}, {NameEn: "B"}, {NameEn: "C"}},
		Charges: []models.BagCharge{{ArticleNumber: "1"}},
	}

	clipped, skipped := clipBag(bag, DocumentLimits{Parties: 2, Charges: 5})
	assert.Len(t, clipped.Parties, 2)
	assert.Len(t, clipped.Charges, 1)
	assert.Len(t, bag.Parties, 3, "the original bag is not modified")

	require.Len(t, skipped, 1)
	assert.Equal(t, "party", skipped[0].Kind)
	assert.Equal(t, models.SkipDocumentCap, skipped[0].Reason)
}

func TestTruncateCase(t *testing.T) {
	limits := Limits{MaxTextLength: 10, MaxArraySize: 2}.withDefaults()

	c := &models.Case{
		Parties:    []models.CaseParty{{NameEn: strings.Repeat("x", 20), SourceDocuments: []string{"a", "b", "c"}}},
		Timeline:   []models.TimelineEntry{{Date: "1"}, {Date: "2"}, {Date: "3"}},
		Locations:  map[string]string{"court": strings.Repeat("y", 11)},
		CaseStatus: models.CaseStatus{SummaryAr: "قصير"},
	}

	skipped := truncateCase(c, limits)
	assert.Len(t, skipped, 4)
	assert.Equal(t, strings.Repeat("x", 10)+TruncatedSuffix, c.Parties[0].NameEn)
	assert.Equal(t, []string{"a", "b"}, c.Parties[0].SourceDocuments)
	assert.Len(t, c.Timeline, 2)
	assert.Equal(t, strings.Repeat("y", 10)+TruncatedSuffix, c.Locations["court"])
	assert.Equal(t, "قصير", c.CaseStatus.SummaryAr)

	assert.Empty(t, truncateCase(c, limits), "truncation is idempotent")
}

func TestLimits_WithDefaults(t *testing.T) {
	l := Limits{MaxParties: 5}.withDefaults()
	assert.Equal(t, 5, l.MaxParties)
	assert.Equal(t, DefaultLimits().MaxCharges, l.MaxCharges)
	assert.Equal(t, DefaultLimits().PerDocument, l.PerDocument)
}
