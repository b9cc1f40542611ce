// Package store declares the persistence contract of the linking engine. Only CaseStore is
// required; the other capabilities are discovered with a type assertion and skipped when a
// backend does not provide them.
package store

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// CaseStore persists case records and serves the indexed candidate lookup
type CaseStore interface {
	// GetCase returns the case or a NotFound error
	GetCase(ctx context.Context, id string) (*models.Case, error)
	// CreateCase inserts a new active case. A reference number already owned by another
	// active case fails with a Conflict error.
	CreateCase(ctx context.Context, c *models.Case) (*models.Case, error)
	// UpdateCase replaces the stored case document and refreshes its lookup keys
	UpdateCase(ctx context.Context, c *models.Case) (*models.Case, error)
	// FindCasesBySignatures returns at most limit active cases reachable by any of the keys
	FindCasesBySignatures(ctx context.Context, keys []string, limit int) ([]*models.Case, error)
	// FindCaseByReference returns the active case owning value for kind, or NotFound
	FindCaseByReference(ctx context.Context, kind models.ReferenceKind, value string) (*models.Case, error)
}

// EntityStore keeps one normalized record per party, charge and evidence signature
type EntityStore interface {
	GetOrCreateParty(ctx context.Context, p models.Party) (*models.Party, error)
	GetOrCreateCharge(ctx context.Context, c models.Charge) (*models.Charge, error)
	GetOrCreateEvidence(ctx context.Context, e models.Evidence) (*models.Evidence, error)
	LinkPartyToCase(ctx context.Context, caseID, partyID, role string) error
	LinkChargeToCase(ctx context.Context, caseID, chargeID string, status models.ChargeStatus) error
	LinkEvidenceToCase(ctx context.Context, caseID, evidenceID string) error
}

// DocumentStore records which documents were linked to which case
type DocumentStore interface {
	// GetDocumentLink returns the link of document to case, or NotFound
	GetDocumentLink(ctx context.Context, documentID, caseID string) (*models.DocumentLink, error)
	UpsertDocumentLink(ctx context.Context, link *models.DocumentLink) error
	// FindSimilarDocuments returns linked documents whose embedding has a cosine similarity of
	// at least threshold with embedding, most similar first
	FindSimilarDocuments(ctx context.Context, embedding []float64, threshold float64, limit int) ([]models.SimilarDocument, error)
	ListDocumentLinks(ctx context.Context, caseID string) ([]*models.DocumentLink, error)
	// RelinkDocuments moves every document of fromCaseID to toCaseID at the given confidence
	RelinkDocuments(ctx context.Context, fromCaseID, toCaseID string, confidence float64) (int, error)
}

// DuplicateStore tracks suspected duplicate cases for operator review
type DuplicateStore interface {
	// FlagDuplicates records the candidates. A pending candidate for the same pair is refreshed.
	FlagDuplicates(ctx context.Context, candidates []*models.MergeCandidate) error
	GetMergeCandidate(ctx context.Context, id string) (*models.MergeCandidate, error)
	ListMergeCandidates(ctx context.Context, status models.MergeCandidateStatus, limit int) ([]*models.MergeCandidate, error)
	UpdateMergeCandidateStatus(ctx context.Context, id string, status models.MergeCandidateStatus) error
	// FindDuplicateGroups returns sets of active cases sharing a reference signature
	FindDuplicateGroups(ctx context.Context, limit int) ([]models.DuplicateGroup, error)
}

// Transactor runs fn so the writes made through the store with fn's context commit or roll
// back together
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is a backend providing every capability
type Store interface {
	CaseStore
	EntityStore
	DocumentStore
	DuplicateStore
}
