package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

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

func newTestResolver(s store.CaseStore, opts matching.Options) *Resolver {
	return NewResolver(s, matching.NewConfidenceScorer(opts), Options{}, testLogger())
}

// blindStore hides every case from the indexed lookup, as a concurrent writer would
type blindStore struct {
	*store.Memory
}

func (b blindStore) FindCasesBySignatures(ctx context.Context, keys []string, limit int) ([]*models.Case, error) {
	return nil, nil
}

// failingStore fails every candidate lookup
type failingStore struct {
	*store.Memory
}

func (f failingStore) FindCasesBySignatures(ctx context.Context, keys []string, limit int) ([]*models.Case, error) {
	return nil, store.Failure(errors.New("connection refused"), "find cases")
}

func TestResolve_EmptyBagCreatesOrphan(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestResolver(s, matching.DefaultOptions())

	res, err := r.Resolve(ctx, "doc-1", &models.EntityBag{Dates: map[string]string{"incident": "2025-01-01"}})
	require.NoError(t, err)
	assert.True(t, res.WasCreated)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, []string{models.SignalNoSignal}, res.Signals)

	c, err := s.GetCase(ctx, res.CaseID)
	require.NoError(t, err)
	assert.True(t, c.IsOrphan)

	res2, err := r.Resolve(ctx, "doc-2", nil)
	require.NoError(t, err)
	assert.NotEqual(t, res.CaseID, res2.CaseID, "orphans never attract other documents")
}

func TestResolve_ReversedReferenceLinksToSameCase(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestResolver(s, matching.DefaultOptions())

	first, err := r.Resolve(ctx, "police-report", &models.EntityBag{CaseNumbers: models.BagCaseNumbers{Police: "2590/2025"}})
	require.NoError(t, err)
	assert.True(t, first.WasCreated)
	assert.Equal(t, []string{models.SignalNewCase}, first.Signals)

	second, err := r.Resolve(ctx, "court-filing", &models.EntityBag{CaseNumbers: models.BagCaseNumbers{Court: "2025/2590"}})
	require.NoError(t, err)
	assert.False(t, second.WasCreated)
	assert.Equal(t, first.CaseID, second.CaseID)
	assert.InDelta(t, 0.95, second.Confidence, 0.0001)
	assert.Equal(t, []string{models.SignalCaseNumber}, second.Signals)

	c, err := s.GetCase(ctx, first.CaseID)
	require.NoError(t, err)
	assert.Equal(t, "2590/2025", c.CaseNumbers.Police)
	assert.Contains(t, c.CaseNumbers.Variations, "2025/2590")
}

func TestResolve_BelowThresholdCreatesCase(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestResolver(s, matching.DefaultOptions())

	existing, err := s.CreateCase(ctx, &models.Case{
		CaseNumbers: models.CaseNumbers{Police: "1/2024"},
		Parties:     []models.CaseParty{{NameAr: "أحمد علي", PersonalID: "55"}},
	})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, "doc", &models.EntityBag{
		CaseNumbers: models.BagCaseNumbers{Police: "2/2024"},
		Parties:     []models.BagParty{{NameAr: "أحمد علي"}},
	})
	require.NoError(t, err)
	assert.True(t, res.WasCreated)
	assert.NotEqual(t, existing.ID, res.CaseID)
}

func TestResolve_CreatedCaseOrphanFlag(t *testing.T) {
	tests := []struct {
		name       string
		bag        *models.EntityBag
		wantOrphan bool
	}{
		{
			name:       "party name only",
			bag:        &models.EntityBag{Parties: []models.BagParty{{NameEn: "Omar Saleh"}}},
			wantOrphan: true,
		},
		{
			name:       "personal id only",
			bag:        &models.EntityBag{Parties: []models.BagParty{{PersonalID: "784-1990-1234567-1"}}},
			wantOrphan: true,
		},
		{
			name: "reference number",
			bag: &models.EntityBag{
				CaseNumbers: models.BagCaseNumbers{Prosecution: "88/2025"},
				Parties:     []models.BagParty{{NameEn: "Omar Saleh"}},
			},
			wantOrphan: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemory()
			r := newTestResolver(s, matching.DefaultOptions())

			res, err := r.Resolve(ctx, "doc-1", tt.bag)
			require.NoError(t, err)
			require.True(t, res.WasCreated)
			assert.Equal(t, []string{models.SignalNewCase}, res.Signals)

			c, err := s.GetCase(ctx, res.CaseID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrphan, c.IsOrphan)
		})
	}
}

func TestResolve_AmbiguousPicksMostComplete(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestResolver(s, matching.DefaultOptions())

	sparse, err := s.CreateCase(ctx, &models.Case{Parties: []models.CaseParty{{PersonalID: "123"}}})
	require.NoError(t, err)
	complete, err := s.CreateCase(ctx, &models.Case{
		CaseNumbers: models.CaseNumbers{Court: "10/2025"},
		Parties:     []models.CaseParty{{PersonalID: "123"}},
		CaseStatus:  models.CaseStatus{Current: models.CaseStatusInTrial},
	})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, "doc-9", &models.EntityBag{Parties: []models.BagParty{{PersonalID: "123"}}})
	require.NoError(t, err)
	assert.Equal(t, complete.ID, res.CaseID)
	assert.Equal(t, []string{sparse.ID}, res.Duplicates)
	assert.False(t, res.WasCreated)

	flagged, err := s.ListMergeCandidates(ctx, models.MergeCandidatePending, 10)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, complete.ID, flagged[0].PrimaryCaseID)
	assert.Equal(t, sparse.ID, flagged[0].DuplicateCaseID)
	assert.Equal(t, "doc-9", flagged[0].DocumentID)
	assert.Greater(t, flagged[0].PrimaryScore, flagged[0].DuplicateScore)
}

func TestResolve_ConflictReusesOwner(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	owner, err := mem.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Police: "5/2025"}})
	require.NoError(t, err)

	r := newTestResolver(blindStore{mem}, matching.DefaultOptions())
	res, err := r.Resolve(ctx, "doc", &models.EntityBag{CaseNumbers: models.BagCaseNumbers{Police: "5 لسنة 2025"}})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, res.CaseID)
	assert.False(t, res.WasCreated)
	assert.Contains(t, res.Signals, models.SignalReferenceOwner)
	assert.InDelta(t, 0.95, res.Confidence, 0.0001)
}

func TestResolve_VectorSimilarityCandidates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	existing, err := s.CreateCase(ctx, &models.Case{})
	require.NoError(t, err)
	require.NoError(t, s.UpsertDocumentLink(ctx, &models.DocumentLink{
		DocumentID: "old", CaseID: existing.ID, Embedding: []float64{1, 0, 0},
	}))

	bag := &models.EntityBag{Embedding: []float64{0.95, 0.05, 0}}

	t.Run("weak signal alone does not clear the default threshold", func(t *testing.T) {
		r := newTestResolver(s, matching.DefaultOptions())
		res, err := r.Resolve(ctx, "new-1", bag)
		require.NoError(t, err)
		assert.True(t, res.WasCreated)
	})

	t.Run("lowered threshold accepts it", func(t *testing.T) {
		opts := matching.DefaultOptions()
		opts.MinConfidence = 0.25
		r := newTestResolver(s, opts)
		res, err := r.Resolve(ctx, "new-2", bag)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, res.CaseID)
		assert.Equal(t, []string{models.SignalVectorSimilarity}, res.Signals)
	})
}

func TestResolve_StoreFailureIsReturned(t *testing.T) {
	r := newTestResolver(failingStore{store.NewMemory()}, matching.DefaultOptions())
	_, err := r.Resolve(context.Background(), "doc", &models.EntityBag{CaseNumbers: models.BagCaseNumbers{Police: "1/2025"}})
	require.Error(t, err)
	assert.False(t, store.IsNotFound(err))
}

func TestPickPrimary(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	orphan := &models.Case{ID: "orphan", IsOrphan: true, CreatedAt: base, UpdatedAt: base}
	police := &models.Case{ID: "police", CaseNumbers: models.CaseNumbers{Police: "1/2025"}, CreatedAt: base, UpdatedAt: base.Add(2 * time.Hour)}
	court := &models.Case{ID: "court", CaseNumbers: models.CaseNumbers{Court: "9/2025"}, CreatedAt: base.Add(time.Hour), UpdatedAt: base}

	ordered, scores := PickPrimary([]*models.Case{orphan, police, court})
	require.Len(t, ordered, 3)
	assert.Equal(t, "court", ordered[0].ID)
	assert.Equal(t, "police", ordered[1].ID)
	assert.Equal(t, "orphan", ordered[2].ID)
	assert.Equal(t, 15, scores["court"])
	assert.Equal(t, 12, scores["police"])
	assert.Equal(t, 0, scores["orphan"])

	t.Run("ties go to the earliest created", func(t *testing.T) {
		older := &models.Case{ID: "b", CaseNumbers: models.CaseNumbers{Internal: "X-1"}, CreatedAt: base, UpdatedAt: base}
		newer := &models.Case{
			ID:         "a",
			CaseStatus: models.CaseStatus{Current: models.CaseStatusInvestigation},
			CreatedAt:  base.Add(time.Hour),
			UpdatedAt:  base.Add(time.Hour),
		}
		ordered, scores := PickPrimary([]*models.Case{newer, older})
		assert.Equal(t, scores["a"], scores["b"])
		assert.Equal(t, "b", ordered[0].ID)
	})

	t.Run("most recently updated breaks an even score", func(t *testing.T) {
		stale := &models.Case{ID: "a", CreatedAt: base, UpdatedAt: base}
		fresh := &models.Case{ID: "b", CreatedAt: base, UpdatedAt: base.Add(time.Hour)}
		ordered, scores := PickPrimary([]*models.Case{stale, fresh})
		assert.Equal(t, "b", ordered[0].ID)
		assert.Equal(t, 6, scores["b"])
	})
}

func TestNewCaseNumbers(t *testing.T) {
	numbers := NewCaseNumbers(models.BagCaseNumbers{Police: "2590 لسنة 2025", Court: " ٤٥/٢٠٢٤ "})
	assert.Equal(t, "2590/2025", numbers.Police)
	assert.Equal(t, "45/2024", numbers.Court)
	assert.Contains(t, numbers.Variations, "2025/2590")
	assert.NotContains(t, numbers.Variations, "2590")
}
