package casedocument

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "case_documents"

var columns = []string{
	"document_id", "case_id", "confidence", "matched_signals", "linking_params",
	"entity_fingerprint", "embedding", "created_at", "updated_at",
}

// Record is a case_documents row
type Record struct {
	DocumentID        string                             `db:"document_id"`
	CaseID            string                             `db:"case_id"`
	Confidence        float64                            `db:"confidence"`
	MatchedSignals    pq.StringArray                     `db:"matched_signals"`
	LinkingParams     database.JSONB[map[string]float64] `db:"linking_params"`
	EntityFingerprint string                             `db:"entity_fingerprint"`
	Embedding         Vector                             `db:"embedding"`
	CreatedAt         time.Time                          `db:"created_at"`
	UpdatedAt         time.Time                          `db:"updated_at"`
}

func (r Record) toLink() *models.DocumentLink {
	return &models.DocumentLink{
		DocumentID:        r.DocumentID,
		CaseID:            r.CaseID,
		Confidence:        r.Confidence,
		MatchedSignals:    []string(r.MatchedSignals),
		LinkingParams:     r.LinkingParams.Data,
		EntityFingerprint: r.EntityFingerprint,
		Embedding:         []float64(r.Embedding),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

// Repository persists document-to-case links
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new case document repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the link of document to case
func (r *Repository) Get(ctx context.Context, documentID, caseID string) (*models.DocumentLink, error) {
	ctx, span := tracing.StartSpan(ctx, "casedocument.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("document_id", documentID), sb.Equal("case_id", caseID))

	query, args := sb.Build()
	var rec Record
	if err := r.db.Executor(ctx).GetContext(ctx, &rec, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, store.NotFound("document %s is not linked to case %s", documentID, caseID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_id": documentID,
			"case_id":     caseID,
		}).Error("Failed to get document link")
		return nil, store.Failure(err, "failed to get document link")
	}

	return rec.toLink(), nil
}

// Upsert creates or refreshes the link, keeping its creation time
func (r *Repository) Upsert(ctx context.Context, link *models.DocumentLink) error {
	ctx, span := tracing.StartSpan(ctx, "casedocument.Repository.Upsert")
	defer span.End()

	signals := link.MatchedSignals
	if signals == nil {
		signals = []string{}
	}
	params := link.LinkingParams
	if params == nil {
		params = map[string]float64{}
	}
	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(link.DocumentID, link.CaseID, link.Confidence, pq.StringArray(signals), database.NewJSONB(params),
		link.EntityFingerprint, Vector(link.Embedding), now, now)
	ib.OnConflictUpdate([]string{"document_id", "case_id"},
		"confidence", "matched_signals", "linking_params", "entity_fingerprint", "embedding", "updated_at")

	query, args := ib.Build()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_id": link.DocumentID,
			"case_id":     link.CaseID,
		}).Error("Failed to upsert document link")
		return store.Failure(err, "failed to link document %s to case %s", link.DocumentID, link.CaseID)
	}
	return nil
}

// ListByCase returns the links of a case in creation order
func (r *Repository) ListByCase(ctx context.Context, caseID string) ([]*models.DocumentLink, error) {
	ctx, span := tracing.StartSpan(ctx, "casedocument.Repository.ListByCase")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("case_id", caseID))
	sb.OrderBy("created_at", "document_id")

	query, args := sb.Build()
	var rows []Record
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": caseID}).Error("Failed to list document links")
		return nil, store.Failure(err, "failed to list documents of case %s", caseID)
	}

	out := make([]*models.DocumentLink, 0, len(rows))
	for _, rec := range rows {
		out = append(out, rec.toLink())
	}
	return out, nil
}

// FindSimilar ranks the documents of active cases by pgvector cosine distance to embedding.
// Stored embeddings of another dimension are skipped.
func (r *Repository) FindSimilar(ctx context.Context, embedding []float64, threshold float64, limit int) ([]models.SimilarDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "casedocument.Repository.FindSimilar")
	defer span.End()

	if len(embedding) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	distance := "d.embedding <=> " + sb.Var(Vector(embedding)) + "::vector"
	similarity := "1 - (" + distance + ")"
	sb.Select("d.document_id", "d.case_id", sb.As(similarity, "similarity"))
	sb.From(table + " d")
	sb.Join("cases c", "c.id = d.case_id")
	sb.Where(
		sb.Equal("c.state", models.CaseStateActive),
		sb.IsNotNull("d.embedding"),
		sb.Equal("vector_dims(d.embedding)", len(embedding)),
		similarity+" > 0",
		similarity+" >= "+sb.Var(threshold),
	)
	sb.OrderBy(distance, "d.document_id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var rows []struct {
		DocumentID string  `db:"document_id"`
		CaseID     string  `db:"case_id"`
		Similarity float64 `db:"similarity"`
	}
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search document embeddings")
		return nil, store.Failure(err, "failed to search document embeddings")
	}

	out := make([]models.SimilarDocument, 0, len(rows))
	for _, rec := range rows {
		out = append(out, models.SimilarDocument{DocumentID: rec.DocumentID, CaseID: rec.CaseID, Similarity: rec.Similarity})
	}
	return out, nil
}

// Relink moves the documents of one case to another. A document already linked to the target
// keeps its existing link.
func (r *Repository) Relink(ctx context.Context, fromCaseID, toCaseID string, confidence float64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "casedocument.Repository.Relink")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"from_case_id": fromCaseID,
		"to_case_id":   toCaseID,
	})

	var moved int64
	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		db := r.db.Executor(ctx)

		del := database.NewDeleteBuilder()
		del.DeleteFrom(table + " d")
		del.Where(
			del.Equal("d.case_id", fromCaseID),
			"EXISTS (SELECT 1 FROM "+table+" t WHERE t.document_id = d.document_id AND "+del.Equal("t.case_id", toCaseID)+")",
		)
		query, args := del.Build()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to drop documents already linked to the target case")
			return store.Failure(err, "failed to relink documents")
		}

		ub := database.NewUpdateBuilder()
		ub.Update(table)
		ub.Set(
			ub.Assign("case_id", toCaseID),
			ub.Assign("confidence", confidence),
			ub.Assign("updated_at", time.Now().UTC()),
		)
		ub.Where(ub.Equal("case_id", fromCaseID))
		query, args = ub.Build()
		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			log.WithError(err).Error("Failed to relink documents")
			return store.Failure(err, "failed to relink documents")
		}
		moved, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(map[string]any{"documents": moved}).Info("Relinked documents")
	return int(moved), nil
}
