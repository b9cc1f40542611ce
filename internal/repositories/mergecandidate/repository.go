package mergecandidate

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "merge_candidates"

var columns = []string{
	"id", "primary_case_id", "duplicate_case_id", "document_id", "reason", "confidence",
	"primary_score", "duplicate_score", "status", "created_at", "updated_at",
}

// refreshed when a pending candidate for the same pair is flagged again
var refreshColumns = []string{"document_id", "reason", "confidence", "primary_score", "duplicate_score", "updated_at"}

// Repository handles merge candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Flag records candidates in one statement. A pending candidate for the same pair is refreshed
// in place.
func (r *Repository) Flag(ctx context.Context, candidates []*models.MergeCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.Flag")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	// one row per pair, or the upsert would touch the same row twice
	byPair := make(map[[2]string]int, len(candidates))
	unique := make([]*models.MergeCandidate, 0, len(candidates))
	for _, c := range candidates {
		pair := [2]string{c.PrimaryCaseID, c.DuplicateCaseID}
		if i, seen := byPair[pair]; seen {
			unique[i] = c
			continue
		}
		byPair[pair] = len(unique)
		unique = append(unique, c)
	}

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	for _, c := range unique {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		ib.Values(id, c.PrimaryCaseID, c.DuplicateCaseID, c.DocumentID, c.Reason, c.Confidence,
			c.PrimaryScore, c.DuplicateScore, models.MergeCandidatePending, now, now)
	}

	query, args := ib.Build()
	query += " ON CONFLICT (primary_case_id, duplicate_case_id) WHERE status = 'pending' DO UPDATE SET " + database.AssignExcluded(refreshColumns...)

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(candidates),
		}).Error("Failed to flag merge candidates")
		return store.Failure(err, "failed to flag merge candidates")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(candidates)}).Debug("Flagged merge candidates")
	return nil
}

// Get retrieves a merge candidate by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var candidate models.MergeCandidate
	if err := r.db.Executor(ctx).GetContext(ctx, &candidate, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, store.NotFound("merge candidate %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge candidate")
		return nil, store.Failure(err, "failed to get merge candidate")
	}

	return &candidate, nil
}

// List returns candidates with the given status, or every candidate when status is empty,
// oldest first
func (r *Repository) List(ctx context.Context, status models.MergeCandidateStatus, limit int) ([]*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("created_at", "id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	candidates := make([]*models.MergeCandidate, 0)
	if err := r.db.Executor(ctx).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status": status,
		}).Error("Failed to list merge candidates")
		return nil, store.Failure(err, "failed to list merge candidates")
	}

	return candidates, nil
}

// UpdateStatus sets the review status of a candidate
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.MergeCandidateStatus) error {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidate_id": id,
			"status":       status,
		}).Error("Failed to update merge candidate status")
		return store.Failure(err, "failed to update merge candidate")
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return store.NotFound("merge candidate %s not found", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": id,
		"status":       status,
	}).Info("Updated merge candidate status")
	return nil
}
