// Package pgstore is the PostgreSQL implementation of store.Store
package pgstore

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/casedocument"
	"github.com/Ramsey-B/fern/internal/repositories/caserecord"
	"github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/internal/repositories/mergecandidate"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

// Store composes the repositories behind the store interfaces
type Store struct {
	db         database.DB
	cases      *caserecord.Repository
	entities   *entity.Repository
	documents  *casedocument.Repository
	candidates *mergecandidate.Repository
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

// New creates a Postgres store over db
func New(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		db:         db,
		cases:      caserecord.NewRepository(db, logger),
		entities:   entity.NewRepository(db, logger),
		documents:  casedocument.NewRepository(db, logger),
		candidates: mergecandidate.NewRepository(db, logger),
	}
}

// Ping checks the connection, for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTransaction runs fn in one database transaction. Repository calls made with fn's context
// join it.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, s.db, fn)
}

func (s *Store) GetCase(ctx context.Context, id string) (*models.Case, error) {
	return s.cases.Get(ctx, id)
}

func (s *Store) CreateCase(ctx context.Context, c *models.Case) (*models.Case, error) {
	return s.cases.Create(ctx, c)
}

func (s *Store) UpdateCase(ctx context.Context, c *models.Case) (*models.Case, error) {
	return s.cases.Update(ctx, c)
}

func (s *Store) FindCasesBySignatures(ctx context.Context, keys []string, limit int) ([]*models.Case, error) {
	return s.cases.FindBySignatures(ctx, keys, limit)
}

func (s *Store) FindCaseByReference(ctx context.Context, kind models.ReferenceKind, value string) (*models.Case, error) {
	return s.cases.FindByReference(ctx, kind, value)
}

func (s *Store) GetOrCreateParty(ctx context.Context, p models.Party) (*models.Party, error) {
	return s.entities.GetOrCreateParty(ctx, p)
}

func (s *Store) GetOrCreateCharge(ctx context.Context, c models.Charge) (*models.Charge, error) {
	return s.entities.GetOrCreateCharge(ctx, c)
}

func (s *Store) GetOrCreateEvidence(ctx context.Context, e models.Evidence) (*models.Evidence, error) {
	return s.entities.GetOrCreateEvidence(ctx, e)
}

func (s *Store) LinkPartyToCase(ctx context.Context, caseID, partyID, role string) error {
	return s.entities.LinkPartyToCase(ctx, caseID, partyID, role)
}

func (s *Store) LinkChargeToCase(ctx context.Context, caseID, chargeID string, status models.ChargeStatus) error {
	return s.entities.LinkChargeToCase(ctx, caseID, chargeID, status)
}

func (s *Store) LinkEvidenceToCase(ctx context.Context, caseID, evidenceID string) error {
	return s.entities.LinkEvidenceToCase(ctx, caseID, evidenceID)
}

func (s *Store) GetDocumentLink(ctx context.Context, documentID, caseID string) (*models.DocumentLink, error) {
	return s.documents.Get(ctx, documentID, caseID)
}

func (s *Store) UpsertDocumentLink(ctx context.Context, link *models.DocumentLink) error {
	return s.documents.Upsert(ctx, link)
}

func (s *Store) FindSimilarDocuments(ctx context.Context, embedding []float64, threshold float64, limit int) ([]models.SimilarDocument, error) {
	return s.documents.FindSimilar(ctx, embedding, threshold, limit)
}

func (s *Store) ListDocumentLinks(ctx context.Context, caseID string) ([]*models.DocumentLink, error) {
	return s.documents.ListByCase(ctx, caseID)
}

func (s *Store) RelinkDocuments(ctx context.Context, fromCaseID, toCaseID string, confidence float64) (int, error) {
	return s.documents.Relink(ctx, fromCaseID, toCaseID, confidence)
}

func (s *Store) FlagDuplicates(ctx context.Context, candidates []*models.MergeCandidate) error {
	return s.candidates.Flag(ctx, candidates)
}

func (s *Store) GetMergeCandidate(ctx context.Context, id string) (*models.MergeCandidate, error) {
	return s.candidates.Get(ctx, id)
}

func (s *Store) ListMergeCandidates(ctx context.Context, status models.MergeCandidateStatus, limit int) ([]*models.MergeCandidate, error) {
	return s.candidates.List(ctx, status, limit)
}

func (s *Store) UpdateMergeCandidateStatus(ctx context.Context, id string, status models.MergeCandidateStatus) error {
	return s.candidates.UpdateStatus(ctx, id, status)
}

func (s *Store) FindDuplicateGroups(ctx context.Context, limit int) ([]models.DuplicateGroup, error) {
	return s.cases.DuplicateGroups(ctx, limit)
}

// PartyRoles returns the roles recorded for a party on a case
func (s *Store) PartyRoles(ctx context.Context, caseID, partyID string) ([]string, error) {
	return s.entities.PartyRoles(ctx, caseID, partyID)
}
