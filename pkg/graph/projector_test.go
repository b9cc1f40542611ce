package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func testCase() *models.Case {
	into := "primary-case"
	return &models.Case{
		ID:          "case-1",
		CaseNumbers: models.CaseNumbers{Court: "2590/2025", Police: "77/2025"},
		Parties: []models.CaseParty{
			{EntityID: "P001", Signature: "id:784199012345671", NameAr: "أحمد علي", Roles: []string{"defendant"}},
			{EntityID: "P002"},
		},
		Charges: []models.CaseCharge{
			{EntityID: "C001", Signature: "art:399", ArticleNumber: "399", Status: models.ChargeStatusConvicted},
		},
		Evidence: []models.CaseEvidence{
			{EntityID: "E001", Signature: "document|en:receipt", Type: "document", SourceDocuments: []string{"doc-1"}},
		},
		CaseStatus: models.CaseStatus{Current: "judgment"},
		State:      models.CaseStateMerged,
		MergedInto: &into,
		Version:    3,
		CreatedAt:  time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestCaseProperties(t *testing.T) {
	props := caseProperties(testCase())

	assert.Equal(t, "case-1", props["id"])
	assert.Equal(t, "merged", props["state"])
	assert.Equal(t, "2590/2025", props["court_number"])
	assert.Equal(t, "77/2025", props["police_number"])
	assert.NotContains(t, props, "prosecution_number")
	assert.Equal(t, int64(3), props["version"])
	assert.Equal(t, "2025-01-10T08:00:00Z", props["created_at"])

	assert.Equal(t, "active", caseProperties(&models.Case{ID: "x"})["state"])
}

func TestRows(t *testing.T) {
	c := testCase()

	parties := partyRows(c)
	require.Len(t, parties, 1, "unsigned parties are not projected")
	assert.Equal(t, "P001", parties[0]["entity_id"])
	assert.Equal(t, []string{"defendant"}, parties[0]["roles"])
	assert.Equal(t, []string{}, parties[0]["source_documents"])

	props := parties[0]["props"].(map[string]any)
	assert.Equal(t, "أحمد علي", props["name_ar"])
	assert.NotContains(t, props, "name_en")

	charges := chargeRows(c)
	require.Len(t, charges, 1)
	assert.Equal(t, "convicted", charges[0]["status"])

	evidence := evidenceRows(c)
	require.Len(t, evidence, 1)
	assert.Equal(t, []string{"doc-1"}, evidence[0]["source_documents"])
}

func TestToStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "1"}, toStrings([]any{"a", nil, int64(1)}))
	assert.Nil(t, toStrings("not a list"))
}

func TestConfig_URI(t *testing.T) {
	assert.Equal(t, "bolt://localhost:7687", Config{Host: "localhost", Port: 7687}.URI())
}
