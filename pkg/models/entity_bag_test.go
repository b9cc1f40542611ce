package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityBag_Unmarshal(t *testing.T) {
	jsonData := `{
		"case_numbers": {"court": "2590/2025", "police": 4554},
		"parties": [
			{"name_ar": "أحمد علي", "personal_id": 28463401234, "role": "accused"},
			{"name_en": "Sara Khan", "age": "34"}
		],
		"charges": [{"article_number": 351, "description_ar": "سرقة", "status": "pending"}],
		"evidence": [{"type": "cctv", "description_ar": "تسجيل كاميرا"}],
		"dates": {"incident": "2025-01-15", "judgment": null},
		"locations": {"police_station": "مركز شرطة أم صلال"},
		"financial": {"fines": [5000, {"amount": "1,500", "currency": "QAR"}], "bail": "10000"},
		"case_status": {"current_status": "investigation"},
		"embedding": [0.1, 0.2, 0.3]
	}`

	var bag EntityBag
	require.NoError(t, json.Unmarshal([]byte(jsonData), &bag))

	assert.Empty(t, bag.Issues)
	assert.Equal(t, "2590/2025", bag.CaseNumbers.Court.String())
	assert.Equal(t, "4554", bag.CaseNumbers.Police.String())
	require.Len(t, bag.Parties, 2)
	assert.Equal(t, "28463401234", bag.Parties[0].PersonalID.String())
	assert.Equal(t, "34", bag.Parties[1].Age.String())
	require.Len(t, bag.Charges, 1)
	assert.Equal(t, "351", bag.Charges[0].ArticleNumber.String())
	assert.Equal(t, map[string]string{"incident": "2025-01-15"}, bag.Dates)
	require.NotNil(t, bag.Financial)
	require.Len(t, bag.Financial.Fines, 2)
	assert.Equal(t, FlexFloat(5000), bag.Financial.Fines[0].Amount)
	assert.Equal(t, FlexFloat(1500), bag.Financial.Fines[1].Amount)
	require.NotNil(t, bag.Financial.Bail)
	assert.Equal(t, FlexFloat(10000), *bag.Financial.Bail)
	require.NotNil(t, bag.CaseStatus)
	assert.Equal(t, "investigation", bag.CaseStatus.CurrentStatus.String())
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, bag.Embedding)
}

func TestEntityBag_FlatReferenceAliases(t *testing.T) {
	var bag EntityBag
	require.NoError(t, json.Unmarshal([]byte(`{"police_report_number": "2590/2025", "court_case_number": "2025/2590"}`), &bag))

	assert.Equal(t, "2590/2025", bag.CaseNumbers.Police.String())
	assert.Equal(t, "2025/2590", bag.CaseNumbers.Court.String())
	assert.True(t, bag.CaseNumbers.HasReferences())
}

func TestEntityBag_AliasDoesNotOverrideNested(t *testing.T) {
	var bag EntityBag
	require.NoError(t, json.Unmarshal([]byte(`{"case_numbers": {"court": "1/2024"}, "court_case_number": "9/2024"}`), &bag))
	assert.Equal(t, "1/2024", bag.CaseNumbers.Court.String())
}

func TestEntityBag_CorruptItemsAreSkipped(t *testing.T) {
	jsonData := `{
		"parties": [
			{"name_ar": "أحمد"},
			"not an object",
			{"name_ar": {"nested": true}},
			null,
			{"name_en": "Omar"}
		],
		"charges": "should be a list",
		"dates": {"incident": "2025-01-01", "report_filed": ["bad"]},
		"embedding": ["x"]
	}`

	var bag EntityBag
	require.NoError(t, json.Unmarshal([]byte(jsonData), &bag))

	require.Len(t, bag.Parties, 2)
	assert.Equal(t, "أحمد", bag.Parties[0].NameAr.String())
	assert.Equal(t, "Omar", bag.Parties[1].NameEn.String())
	assert.Nil(t, bag.Charges)
	assert.Equal(t, map[string]string{"incident": "2025-01-01"}, bag.Dates)
	assert.Nil(t, bag.Embedding)

	fields := make([]string, 0, len(bag.Issues))
	for _, issue := range bag.Issues {
		fields = append(fields, issue.String())
	}
	assert.Len(t, bag.Issues, 5, fields)
}

func TestEntityBag_NotAnObject(t *testing.T) {
	var bag EntityBag
	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &bag))
}

func TestEntityBag_IsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		empty bool
	}{
		{"nothing", `{}`, true},
		{"only dates", `{"dates": {"incident": "2025-01-01"}}`, true},
		{"reference", `{"case_numbers": {"internal": "77"}}`, false},
		{"named party", `{"parties": [{"name_en": "Omar"}]}`, false},
		{"party without identity", `{"parties": [{"role": "witness"}]}`, true},
		{"embedding", `{"embedding": [0.5]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bag EntityBag
			require.NoError(t, json.Unmarshal([]byte(tt.json), &bag))
			assert.Equal(t, tt.empty, bag.IsEmpty())
		})
	}
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		input    string
		expected FlexFloat
	}{
		{`12.5`, 12.5},
		{`"5,000"`, 5000},
		{`"٥٠٠٠ ريال"`, 5000},
		{`"QAR 250.75"`, 250.75},
		{`"none"`, 0},
		{`null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f FlexFloat
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.InDelta(t, float64(tt.expected), float64(f), 0.0001)
		})
	}
}

func TestCaseClone(t *testing.T) {
	merged := "c-2"
	c := &Case{
		ID:          "c-1",
		CaseNumbers: CaseNumbers{Court: "1/2025", Variations: []string{"1/2025"}},
		Parties:     []CaseParty{{EntityID: "P001", Roles: []string{"accused"}}},
		KeyDates:    map[string]string{"incident": "2025-01-01"},
		MergedInto:  &merged,
	}

	cp := c.Clone()
	cp.Parties[0].Roles[0] = "victim"
	cp.KeyDates["incident"] = "2024-01-01"
	cp.CaseNumbers.Variations = append(cp.CaseNumbers.Variations, "x")

	assert.Equal(t, "accused", c.Parties[0].Roles[0])
	assert.Equal(t, "2025-01-01", c.KeyDates["incident"])
	assert.Len(t, c.CaseNumbers.Variations, 1)
	assert.Equal(t, "c-2", *cp.MergedInto)
}

func TestStatusRanks(t *testing.T) {
	assert.True(t, ChargeStatusConvicted.Advances(ChargeStatusPending))
	assert.False(t, ChargeStatusPending.Advances(ChargeStatusConvicted))
	assert.True(t, ChargeStatusPending.Advances(""))
	assert.False(t, ChargeStatus("").Advances(ChargeStatusPending))

	assert.True(t, CaseStatusAdvances("open", "in_trial"))
	assert.False(t, CaseStatusAdvances("judgment", "investigation"))
	assert.True(t, CaseStatusAdvances("", "open"))
	assert.False(t, CaseStatusAdvances("closed", "something else"))

	assert.True(t, IsAdvancedStatus("in_trial"))
	assert.False(t, IsAdvancedStatus("open"))
	assert.False(t, IsAdvancedStatus(""))
}
