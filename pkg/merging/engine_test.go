package merging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestEngine(s store.CaseStore, limits Limits) *Engine {
	return NewEngine(s, matching.NewScorer(matching.Thresholds{}), limits, testLogger())
}

func createCase(t *testing.T, s *store.Memory, c *models.Case) *models.Case {
	t.Helper()
	created, err := s.CreateCase(context.Background(), c)
	require.NoError(t, err)
	return created
}

// failingEntities fails every normalized party write
type failingEntities struct {
	*store.Memory
}

func (f failingEntities) GetOrCreateParty(ctx context.Context, p models.Party) (*models.Party, error) {
	return nil, errors.New("parties table unavailable")
}

func policeReport() *models.EntityBag {
	return &models.EntityBag{
		CaseNumbers: models.BagCaseNumbers{Police: "2590/2025"},
		Parties: []models.BagParty{
			{NameEn: "Ahmed Ali", PersonalID: "784-1990-1234567-1", Role: "accused"},
			{NameAr: "سارة محمد", Role: "victim"},
		},
		Charges: []models.BagCharge{
			{ArticleNumber: "٣٩٩", DescriptionEn: "fraud", Status: "pending"},
		},
		Evidence: []models.BagEvidence{
			{Type: "document", DescriptionEn: "bank transfer receipt"},
		},
		Dates:      map[string]string{"incident": "2025-01-10", "report_filed": "2025-01-12"},
		Locations:  map[string]string{"police_station": "Bur Dubai"},
		CaseStatus: &models.BagCaseStatus{CurrentStatus: "investigation", StatusDate: "2025-01-12"},
	}
}

func courtJudgment() *models.EntityBag {
	return &models.EntityBag{
		CaseNumbers: models.BagCaseNumbers{Court: "2025/2590"},
		Parties: []models.BagParty{
			{NameAr: "أحمد علي", PersonalID: "784-1990-1234567-1", Role: "defendant", Nationality: "UAE"},
		},
		Charges: []models.BagCharge{
			{ArticleNumber: "399", DescriptionAr: "احتيال", Status: "convicted"},
		},
		Dates:     map[string]string{"incident": "2025-01-08", "judgment": "2025-06-01"},
		Judgments: []models.Judgment{{JudgmentDate: "2025-06-01", Verdict: "guilty"}},
		Financial: &models.Financial{Fines: []models.MonetaryItem{{Amount: 5000, Currency: "AED"}}},
		CaseStatus: &models.BagCaseStatus{
			CurrentStatus: "judgment",
			StatusDate:    "2025-06-01",
		},
		LegalReferences: []models.LegalReference{{Article: "399", LawYear: "1987"}},
	}
}

func TestMerge_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{})
	c := createCase(t, s, &models.Case{})

	first, err := e.Merge(ctx, c.ID, policeReport(), "doc-1")
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, 2, first.PartiesAdded)
	assert.Equal(t, 1, first.ChargesAdded)
	assert.Equal(t, 1, first.EvidenceAdded)

	second, err := e.Merge(ctx, c.ID, policeReport(), "doc-1")
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Zero(t, second.PartiesAdded)

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Case.Version, stored.Version)
	assert.Len(t, stored.Parties, 2)
	assert.Len(t, stored.Timeline, 2)
	assert.Len(t, stored.CaseStatus.History, 1)
}

func TestMerge_ArrivalOrderDoesNotMatter(t *testing.T) {
	ctx := context.Background()

	// separate stores, since both cases end up owning the same reference numbers
	sa, sb := store.NewMemory(), store.NewMemory()
	ea, eb := newTestEngine(sa, Limits{}), newTestEngine(sb, Limits{})
	a := createCase(t, sa, &models.Case{})
	b := createCase(t, sb, &models.Case{})

	_, err := ea.Merge(ctx, a.ID, policeReport(), "doc-1")
	require.NoError(t, err)
	_, err = ea.Merge(ctx, a.ID, courtJudgment(), "doc-2")
	require.NoError(t, err)

	_, err = eb.Merge(ctx, b.ID, courtJudgment(), "doc-2")
	require.NoError(t, err)
	_, err = eb.Merge(ctx, b.ID, policeReport(), "doc-1")
	require.NoError(t, err)

	ca, err := sa.GetCase(ctx, a.ID)
	require.NoError(t, err)
	cb, err := sb.GetCase(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, partySummary(ca), partySummary(cb))
	assert.Equal(t, ca.KeyDates, cb.KeyDates)
	assert.Equal(t, ca.Locations, cb.Locations)
	assert.Equal(t, ca.Timeline, cb.Timeline)
	assert.Equal(t, ca.CaseStatus.Current, cb.CaseStatus.Current)
	assert.Equal(t, ca.Charges[0].Status, cb.Charges[0].Status)
	assert.Equal(t, ca.CaseNumbers.Court, cb.CaseNumbers.Court)
	assert.Equal(t, ca.CaseNumbers.Police, cb.CaseNumbers.Police)
	assert.ElementsMatch(t, ca.CaseNumbers.Variations, cb.CaseNumbers.Variations)
	assert.Equal(t, "2025-01-08", ca.KeyDates["incident"])
	assert.Equal(t, "judgment", ca.CaseStatus.Current)
}

func partySummary(c *models.Case) []string {
	var out []string
	for _, p := range c.Parties {
		out = append(out, p.Signature+"|"+p.NameAr+"|"+p.NameEn+"|"+strings.Join(p.Roles, ","))
	}
	sort.Strings(out)
	return out
}

func TestMerge_PartyMatchedByPersonalIDKeepsBothNames(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{})
	c := createCase(t, s, &models.Case{})

	_, err := e.Merge(ctx, c.ID, policeReport(), "doc-1")
	require.NoError(t, err)
	report, err := e.Merge(ctx, c.ID, courtJudgment(), "doc-2")
	require.NoError(t, err)
	assert.Zero(t, report.PartiesAdded)
	assert.Equal(t, 1, report.PartiesUpdated)

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Parties, 2)

	accused := stored.Parties[0]
	assert.Equal(t, "P001", accused.EntityID)
	assert.Equal(t, "أحمد علي", accused.NameAr)
	assert.Equal(t, "Ahmed Ali", accused.NameEn)
	assert.Equal(t, "UAE", accused.Nationality)
	assert.Equal(t, []string{"accused", "defendant"}, accused.Roles)
	assert.Equal(t, []string{"doc-1", "doc-2"}, accused.SourceDocuments)
	assert.Equal(t, "P002", stored.Parties[1].EntityID)
}

func TestMerge_FuzzyPartyName(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{})
	c := createCase(t, s, &models.Case{})

	_, err := e.Merge(ctx, c.ID, &models.EntityBag{Parties: []models.BagParty{{NameEn: "Mohammed Ahmed", Role: "witness"}}}, "doc-1")
	require.NoError(t, err)
	report, err := e.Merge(ctx, c.ID, &models.EntityBag{Parties: []models.BagParty{{NameEn: "Mohamed Ahmed", Phone: "050"}}}, "doc-2")
	require.NoError(t, err)
	assert.Zero(t, report.PartiesAdded)

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Parties, 1)
	assert.Equal(t, "Mohammed Ahmed", stored.Parties[0].NameEn)
	assert.Equal(t, "050", stored.Parties[0].Phone)

	// different personal ids are different people, whatever the name
	_, err = e.Merge(ctx, c.ID, &models.EntityBag{Parties: []models.BagParty{{NameEn: "Mohammed Ahmed", PersonalID: "1"}}}, "doc-3")
	require.NoError(t, err)
	_, err = e.Merge(ctx, c.ID, &models.EntityBag{Parties: []models.BagParty{{NameEn: "Mohammed Ahmed", PersonalID: "2"}}}, "doc-4")
	require.NoError(t, err)

	stored, err = s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Parties, 2)
}

func TestMerge_ChargeStatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{})
	c := createCase(t, s, &models.Case{})

	_, err := e.Merge(ctx, c.ID, &models.EntityBag{Charges: []models.BagCharge{{ArticleNumber: "399", Status: "Convicted"}}}, "judgment")
	require.NoError(t, err)
	_, err = e.Merge(ctx, c.ID, &models.EntityBag{Charges: []models.BagCharge{{ArticleNumber: "٣٩٩", Status: "pending"}}}, "late-police-report")
	require.NoError(t, err)

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Charges, 1)
	assert.Equal(t, models.ChargeStatusConvicted, stored.Charges[0].Status)
	assert.Equal(t, []models.StatusChange{
		{Status: "convicted", SourceDocument: "judgment"},
		{Status: "pending", SourceDocument: "late-police-report"},
	}, stored.Charges[0].StatusHistory)

	status, ok := s.ChargeStatus(c.ID, stored.Charges[0].ChargeID)
	assert.True(t, ok)
	assert.Equal(t, models.ChargeStatusConvicted, status)
}

func TestMerge_CapsBoundGrowth(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{MaxParties: 2, PerDocument: DocumentLimits{Charges: 1}})
	c := createCase(t, s, &models.Case{})

	report, err := e.Merge(ctx, c.ID, &models.EntityBag{
		Parties: []models.BagParty{{NameEn: "Alpha One"}, {NameEn: "Bravo Two"}, {NameEn: "Charlie Three"}},
		Charges: []models.BagCharge{{ArticleNumber: "1"}, {ArticleNumber: "2"}},
	}, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.PartiesAdded)
	assert.Equal(t, 1, report.ChargesAdded)

	reasons := map[string]string{}
	for _, skip := range report.Skipped {
		reasons[skip.Kind] = skip.Reason
	}
	assert.Equal(t, models.SkipCapReached, reasons["party"])
	assert.Equal(t, models.SkipDocumentCap, reasons["charge"])

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Parties, 2)
	assert.Len(t, stored.Charges, 1)
}

func TestMerge_CapsHoldForTenThousandParties(t *testing.T) {
	limits := DefaultLimits()

	distinct := func(doc, i int) models.BagParty {
		return models.BagParty{PersonalID: models.FlexString(fmt.Sprintf("784-%03d-%05d", doc, i)), Role: "witness"}
	}
	nearDuplicate := func(doc, i int) models.BagParty {
		return models.BagParty{NameEn: models.FlexString(fmt.Sprintf("Ahmed Ali %d", doc*100+i)), Role: "witness"}
	}

	tests := []struct {
		name        string
		documents   int
		perDocument int
		party       func(doc, i int) models.BagParty
		wantParties int
	}{
		{name: "distinct parties over many documents", documents: 100, perDocument: 100, party: distinct, wantParties: limits.MaxParties},
		{name: "near duplicate names over many documents", documents: 100, perDocument: 100, party: nearDuplicate},
		{name: "one oversized document", documents: 1, perDocument: 10000, party: distinct, wantParties: limits.PerDocument.Parties},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemory()
			e := newTestEngine(s, limits)
			c := createCase(t, s, &models.Case{})

			for doc := 0; doc < tt.documents; doc++ {
				parties := make([]models.BagParty, tt.perDocument)
				for i := range parties {
					parties[i] = tt.party(doc, i)
				}
				_, err := e.Merge(ctx, c.ID, &models.EntityBag{Parties: parties}, fmt.Sprintf("doc-%d", doc))
				require.NoError(t, err)
			}

			stored, err := s.GetCase(ctx, c.ID)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(stored.Parties), limits.MaxParties)
			if tt.wantParties > 0 {
				assert.Len(t, stored.Parties, tt.wantParties)
			}
		})
	}
}

func TestMerge_TruncatesLongText(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{MaxTextLength: 20})
	c := createCase(t, s, &models.Case{})

	bag := &models.EntityBag{CaseStatus: &models.BagCaseStatus{SummaryAr: models.FlexString(strings.Repeat("ن", 50))}}
	report, err := e.Merge(ctx, c.ID, bag, "doc-1")
	require.NoError(t, err)
	assert.True(t, report.Changed)

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ن", 20)+TruncatedSuffix, stored.CaseStatus.SummaryAr)

	again, err := e.Merge(ctx, c.ID, bag, "doc-1")
	require.NoError(t, err)
	assert.False(t, again.Changed)
}

func TestMerge_ReferenceOwnedByAnotherCaseIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{})

	owner := createCase(t, s, &models.Case{CaseNumbers: models.CaseNumbers{Court: "100/2025"}})
	c := createCase(t, s, &models.Case{CaseNumbers: models.CaseNumbers{Police: "55/2025"}})

	report, err := e.Merge(ctx, c.ID, &models.EntityBag{CaseNumbers: models.BagCaseNumbers{Court: "100-2025", Variations: []string{"2025/100"}}}, "doc-1")
	require.NoError(t, err)

	require.NotEmpty(t, report.Skipped)
	assert.Equal(t, models.SkipUniquenessConflict, report.Skipped[0].Reason)
	assert.Contains(t, report.Skipped[0].Detail, owner.ID)

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.CaseNumbers.Court)
	assert.NotContains(t, stored.CaseNumbers.Variations, "100/2025")
	assert.NotContains(t, stored.CaseNumbers.Variations, "2025/100")
}

func TestMerge_CaseNumbers(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{"fills empty", "", "٢٥٩٠/٢٠٢٥", "2590/2025"},
		{"longer value replaces", "12/2025", "123/2025", "123/2025"},
		{"shorter value is ignored", "123/2025", "12/2025", "123/2025"},
		{"same length is ignored", "321/2025", "123/2025", "321/2025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemory()
			e := newTestEngine(s, Limits{})
			c := createCase(t, s, &models.Case{CaseNumbers: models.CaseNumbers{Court: tt.existing}})

			_, err := e.Merge(ctx, c.ID, &models.EntityBag{CaseNumbers: models.BagCaseNumbers{Court: models.FlexString(tt.incoming)}}, "doc-1")
			require.NoError(t, err)

			stored, err := s.GetCase(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.CaseNumbers.Court)
		})
	}
}

func TestMerge_SyncsNormalizedEntities(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{})
	c := createCase(t, s, &models.Case{})

	_, err := e.Merge(ctx, c.ID, policeReport(), "doc-1")
	require.NoError(t, err)

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	for _, p := range stored.Parties {
		assert.NotEmpty(t, p.PartyID)
	}
	assert.Equal(t, []string{"accused"}, s.PartyRoles(c.ID, stored.Parties[0].PartyID))
	assert.NotEmpty(t, stored.Charges[0].ChargeID)
	assert.NotEmpty(t, stored.Evidence[0].EvidenceID)
	assert.Equal(t, 2, s.PartyCount())
}

func TestMerge_EntityStoreFailureDoesNotFailMerge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(failingEntities{s}, Limits{})
	c := createCase(t, s, &models.Case{})

	report, err := e.Merge(ctx, c.ID, policeReport(), "doc-1")
	require.NoError(t, err)
	assert.True(t, report.Changed)

	failures := 0
	for _, skip := range report.Skipped {
		if skip.Reason == models.SkipEntityStore {
			failures++
		}
	}
	assert.Equal(t, 2, failures)

	stored, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Parties, 2)
	assert.NotEmpty(t, stored.Charges[0].ChargeID)
}

func TestMerge_CorruptItemsAreRecorded(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{})
	c := createCase(t, s, &models.Case{})

	var bag models.EntityBag
	require.NoError(t, json.Unmarshal([]byte(`{
		"parties": [{"name_en": "Valid Person"}, "not a party", {"name_en": ["bad"]}],
		"charges": [{}]
	}`), &bag))

	report, err := e.Merge(ctx, c.ID, &bag, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.PartiesAdded)
	assert.Zero(t, report.ChargesAdded)

	reasons := map[string]int{}
	for _, skip := range report.Skipped {
		reasons[skip.Reason]++
	}
	assert.Equal(t, 2, reasons[models.SkipCorruptItem])
	assert.Equal(t, 1, reasons[models.SkipNoSignature])
}

func TestMerge_Errors(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	e := newTestEngine(s, Limits{})

	_, err := e.Merge(ctx, "missing", policeReport(), "doc-1")
	assert.True(t, store.IsNotFound(err))

	merged := createCase(t, s, &models.Case{})
	merged.State = models.CaseStateMerged
	_, err = s.UpdateCase(ctx, merged)
	require.NoError(t, err)

	_, err = e.Merge(ctx, merged.ID, policeReport(), "doc-1")
	assert.True(t, store.IsConflict(err))
}
