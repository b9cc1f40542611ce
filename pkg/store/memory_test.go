package store

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/signature"
)

func TestMemory_CaseLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	created, err := s.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Police: "2590/2025"}})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.CaseStateActive, created.State)
	assert.Equal(t, 1, created.Version)

	created.CaseNumbers.Court = "77/2025"
	updated, err := s.UpdateCase(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	got, err := s.GetCase(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "77/2025", got.CaseNumbers.Court)

	// returned values are copies
	got.CaseNumbers.Court = "changed"
	again, _ := s.GetCase(ctx, created.ID)
	assert.Equal(t, "77/2025", again.CaseNumbers.Court)

	_, err = s.GetCase(ctx, "missing")
	assert.True(t, IsNotFound(err))

	_, err = s.UpdateCase(ctx, &models.Case{ID: "missing"})
	assert.True(t, IsNotFound(err))
}

func TestMemory_ReferenceUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	first, err := s.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Court: "100/2025"}})
	require.NoError(t, err)

	_, err = s.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Court: "100/2025"}})
	assert.True(t, IsConflict(err))

	// the same value under another kind is allowed
	second, err := s.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Police: "100/2025"}})
	require.NoError(t, err)

	second.CaseNumbers.Court = "100/2025"
	_, err = s.UpdateCase(ctx, second)
	assert.True(t, IsConflict(err))

	owner, err := s.FindCaseByReference(ctx, models.ReferenceCourt, "100/2025")
	require.NoError(t, err)
	assert.Equal(t, first.ID, owner.ID)

	// a tombstoned case releases its numbers
	first.State = models.CaseStateMerged
	_, err = s.UpdateCase(ctx, first)
	require.NoError(t, err)

	_, err = s.FindCaseByReference(ctx, models.ReferenceCourt, "100/2025")
	assert.True(t, IsNotFound(err))

	second.CaseNumbers.Court = "100/2025"
	_, err = s.UpdateCase(ctx, second)
	assert.NoError(t, err)
}

func TestMemory_FindCasesBySignatures(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	a, err := s.CreateCase(ctx, &models.Case{
		CaseNumbers: models.CaseNumbers{Police: "2590/2025"},
		Parties:     []models.CaseParty{{PersonalID: "123"}},
	})
	require.NoError(t, err)
	b, err := s.CreateCase(ctx, &models.Case{Parties: []models.CaseParty{{PersonalID: "123"}}})
	require.NoError(t, err)
	_, err = s.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Police: "1/2024"}})
	require.NoError(t, err)

	bag := &models.EntityBag{
		CaseNumbers: models.BagCaseNumbers{Court: "2025/2590"},
		Parties:     []models.BagParty{{PersonalID: "123"}},
	}
	found, err := s.FindCasesBySignatures(ctx, signature.BagLookupKeys(bag), 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a.ID, found[0].ID, "the case sharing the most keys comes first")
	assert.Equal(t, b.ID, found[1].ID)

	limited, err := s.FindCasesBySignatures(ctx, signature.BagLookupKeys(bag), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.FindCasesBySignatures(ctx, []string{"ref:nothing"}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_Entities(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	p1, err := s.GetOrCreateParty(ctx, models.Party{Signature: "id:1", NameEn: "Ahmed"})
	require.NoError(t, err)
	p2, err := s.GetOrCreateParty(ctx, models.Party{Signature: "id:1", NameAr: "أحمد", NameEn: "Other"})
	require.NoError(t, err)

	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "أحمد", p2.NameAr)
	assert.Equal(t, "Ahmed", p2.NameEn)
	assert.Equal(t, 1, s.PartyCount())

	_, err = s.GetOrCreateParty(ctx, models.Party{NameEn: "unsigned"})
	require.NoError(t, err)
	_, err = s.GetOrCreateParty(ctx, models.Party{NameEn: "unsigned"})
	require.NoError(t, err)
	assert.Equal(t, 3, s.PartyCount())

	require.NoError(t, s.LinkPartyToCase(ctx, "c1", p1.ID, "accused"))
	require.NoError(t, s.LinkPartyToCase(ctx, "c1", p1.ID, "witness"))
	require.NoError(t, s.LinkPartyToCase(ctx, "c1", p1.ID, "accused"))
	assert.Equal(t, []string{"accused", "witness"}, s.PartyRoles("c1", p1.ID))

	ch, err := s.GetOrCreateCharge(ctx, models.Charge{Signature: "art:351"})
	require.NoError(t, err)
	require.NoError(t, s.LinkChargeToCase(ctx, "c1", ch.ID, models.ChargeStatusConvicted))
	require.NoError(t, s.LinkChargeToCase(ctx, "c1", ch.ID, models.ChargeStatusPending))
	status, ok := s.ChargeStatus("c1", ch.ID)
	assert.True(t, ok)
	assert.Equal(t, models.ChargeStatusConvicted, status)

	ev, err := s.GetOrCreateEvidence(ctx, models.Evidence{Signature: "cctv:تسجيل"})
	require.NoError(t, err)
	assert.NoError(t, s.LinkEvidenceToCase(ctx, "c1", ev.ID))
}

func TestMemory_DocumentLinks(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	a, err := s.CreateCase(ctx, &models.Case{})
	require.NoError(t, err)
	b, err := s.CreateCase(ctx, &models.Case{})
	require.NoError(t, err)

	require.NoError(t, s.UpsertDocumentLink(ctx, &models.DocumentLink{DocumentID: "d1", CaseID: a.ID, Confidence: 0.9, Embedding: []float64{1, 0}}))
	require.NoError(t, s.UpsertDocumentLink(ctx, &models.DocumentLink{DocumentID: "d2", CaseID: a.ID, Confidence: 1, Embedding: []float64{0, 1}}))
	require.NoError(t, s.UpsertDocumentLink(ctx, &models.DocumentLink{DocumentID: "d2", CaseID: b.ID, Confidence: 1}))

	link, err := s.GetDocumentLink(ctx, "d1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, link.Confidence)

	_, err = s.GetDocumentLink(ctx, "d1", b.ID)
	assert.True(t, IsNotFound(err))

	similar, err := s.FindSimilarDocuments(ctx, []float64{0.9, 0.1}, 0.8, 5)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "d1", similar[0].DocumentID)
	assert.Equal(t, a.ID, similar[0].CaseID)

	moved, err := s.RelinkDocuments(ctx, a.ID, b.ID, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 1, moved, "d2 was already linked to the target")

	links, err := s.ListDocumentLinks(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	remaining, err := s.ListDocumentLinks(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	relinked, err := s.GetDocumentLink(ctx, "d1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.95, relinked.Confidence)
}

func TestMemory_MergeCandidates(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.FlagDuplicates(ctx, []*models.MergeCandidate{
		{PrimaryCaseID: "a", DuplicateCaseID: "b", DocumentID: "d1", Confidence: 0.8},
	}))
	require.NoError(t, s.FlagDuplicates(ctx, []*models.MergeCandidate{
		{PrimaryCaseID: "a", DuplicateCaseID: "b", DocumentID: "d2", Confidence: 0.9},
	}))

	pending, err := s.ListMergeCandidates(ctx, models.MergeCandidatePending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "d2", pending[0].DocumentID)
	assert.Equal(t, 0.9, pending[0].Confidence)

	require.NoError(t, s.UpdateMergeCandidateStatus(ctx, pending[0].ID, models.MergeCandidateRejected))
	got, err := s.GetMergeCandidate(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeCandidateRejected, got.Status)

	assert.True(t, IsNotFound(s.UpdateMergeCandidateStatus(ctx, "missing", models.MergeCandidateMerged)))
}

func TestMemory_FindDuplicateGroups(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	// duplicates arise when the same number was recorded under different kinds
	a, err := s.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Police: "2590/2025"}})
	require.NoError(t, err)
	b, err := s.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Court: "2025/2590"}})
	require.NoError(t, err)
	_, err = s.CreateCase(ctx, &models.Case{CaseNumbers: models.CaseNumbers{Court: "1/2024"}})
	require.NoError(t, err)

	groups, err := s.FindDuplicateGroups(ctx, 10)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, groups[0].CaseIDs)
}

func TestErrors(t *testing.T) {
	nf := NotFound("case %s not found", "x")
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsConflict(nf))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", nf)))

	assert.True(t, IsConflict(Conflict("taken")))
	assert.False(t, IsNotFound(Failure(fmt.Errorf("boom"), "write case")))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: nf, want: http.StatusNotFound},
		{name: "wrapped not found", err: fmt.Errorf("get case x: %w", nf), want: http.StatusNotFound},
		{name: "twice wrapped conflict", err: fmt.Errorf("merge: %w", fmt.Errorf("update: %w", Conflict("taken"))), want: http.StatusConflict},
		{name: "wrapped failure", err: fmt.Errorf("link: %w", Failure(fmt.Errorf("boom"), "write case")), want: http.StatusServiceUnavailable},
		{name: "plain", err: fmt.Errorf("plain"), want: 0},
		{name: "nil", err: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}
