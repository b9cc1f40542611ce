package caserecord

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/signature"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	casesTable      = "cases"
	signaturesTable = "case_signatures"
)

var columns = []string{"id", "state", "merged_into", "is_orphan", "body", "version", "created_at", "updated_at"}

// Record is a cases row. The body holds the whole case; the other columns carry what the
// database indexes and owns.
type Record struct {
	ID         string                      `db:"id"`
	State      string                      `db:"state"`
	MergedInto sql.NullString              `db:"merged_into"`
	IsOrphan   bool                        `db:"is_orphan"`
	Body       database.JSONB[models.Case] `db:"body"`
	Version    int                         `db:"version"`
	CreatedAt  time.Time                   `db:"created_at"`
	UpdatedAt  time.Time                   `db:"updated_at"`
}

type rankedRecord struct {
	Record
	Hits int `db:"hits"`
}

func (r Record) toCase() *models.Case {
	c := r.Body.Data
	c.ID = r.ID
	c.State = models.CaseState(r.State)
	c.MergedInto = nil
	if r.MergedInto.Valid {
		into := r.MergedInto.String
		c.MergedInto = &into
	}
	c.IsOrphan = r.IsOrphan
	c.Version = r.Version
	c.CreatedAt = r.CreatedAt.UTC()
	c.UpdatedAt = r.UpdatedAt.UTC()
	return &c
}

// Repository persists case records and their lookup keys
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new case record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a case by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "caserecord.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(casesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rec Record
	if err := r.db.Executor(ctx).GetContext(ctx, &rec, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, store.NotFound("case %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": id}).Error("Failed to get case")
		return nil, store.Failure(err, "failed to get case %s", id)
	}

	return rec.toCase(), nil
}

// Create inserts a new case and indexes its lookup keys
func (r *Repository) Create(ctx context.Context, c *models.Case) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "caserecord.Repository.Create")
	defer span.End()

	stored := c.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.State == "" {
		stored.State = models.CaseStateActive
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Version = 1

	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		ib := database.NewInsertBuilder()
		ib.InsertInto(casesTable)
		ib.Cols(append(slices.Clone(columns), referenceColumns()...)...)
		ib.Values(append([]any{
			stored.ID, stored.State, nullable(stored.MergedInto), stored.IsOrphan,
			database.NewJSONB(*stored), stored.Version, stored.CreatedAt, stored.UpdatedAt,
		}, referenceValues(stored)...)...)

		query, args := ib.Build()
		if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
			return r.writeError(ctx, err, stored, "create")
		}
		return r.replaceSignatures(ctx, stored)
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"case_id":   stored.ID,
		"is_orphan": stored.IsOrphan,
	}).Debug("Created case")
	return stored, nil
}

// Update replaces the stored case, bumps its version and refreshes its lookup keys
func (r *Repository) Update(ctx context.Context, c *models.Case) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "caserecord.Repository.Update")
	defer span.End()

	stored := c.Clone()
	if stored.State == "" {
		stored.State = models.CaseStateActive
	}

	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		ub := database.NewUpdateBuilder()
		ub.Update(casesTable)
		assignments := []string{
			ub.Assign("state", stored.State),
			ub.Assign("merged_into", nullable(stored.MergedInto)),
			ub.Assign("is_orphan", stored.IsOrphan),
			ub.Assign("body", database.NewJSONB(*stored)),
			ub.Assign("updated_at", time.Now().UTC()),
			ub.Add("version", 1),
		}
		for i, col := range referenceColumns() {
			assignments = append(assignments, ub.Assign(col, referenceValues(stored)[i]))
		}
		ub.Set(assignments...)
		ub.Where(ub.Equal("id", stored.ID))

		query, args := ub.Build()
		query += " RETURNING version, created_at, updated_at"

		var meta struct {
			Version   int       `db:"version"`
			CreatedAt time.Time `db:"created_at"`
			UpdatedAt time.Time `db:"updated_at"`
		}
		if err := r.db.Executor(ctx).GetContext(ctx, &meta, query, args...); err != nil {
			if database.IsNoRows(err) {
				return store.NotFound("case %s not found", stored.ID)
			}
			return r.writeError(ctx, err, stored, "update")
		}
		stored.Version = meta.Version
		stored.CreatedAt = meta.CreatedAt.UTC()
		stored.UpdatedAt = meta.UpdatedAt.UTC()

		return r.replaceSignatures(ctx, stored)
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"case_id": stored.ID,
		"version": stored.Version,
		"state":   stored.State,
	}).Debug("Updated case")
	return stored, nil
}

// FindBySignatures returns active cases reachable by any key, ordered by the number of keys
// they share with the query, then by creation time
func (r *Repository) FindBySignatures(ctx context.Context, keys []string, limit int) ([]*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "caserecord.Repository.FindBySignatures")
	defer span.End()

	if len(keys) == 0 {
		return []*models.Case{}, nil
	}

	sb := database.NewSelectBuilder()
	selected := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		selected = append(selected, "c."+col)
	}
	sb.Select(append(selected, "COUNT(*) AS hits")...)
	sb.From(signaturesTable + " s")
	sb.Join(casesTable+" c", "c.id = s.case_id")
	sb.Where(
		sb.In("s.signature", database.Args(keys)...),
		sb.Equal("c.state", models.CaseStateActive),
	)
	sb.GroupBy("c.id")
	sb.OrderBy("hits DESC", "c.created_at", "c.id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var rows []rankedRecord
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"keys": len(keys),
		}).Error("Failed to find cases by signature")
		return nil, store.Failure(err, "failed to find cases by signature")
	}

	out := make([]*models.Case, 0, len(rows))
	for _, rec := range rows {
		out = append(out, rec.toCase())
	}
	return out, nil
}

// FindByReference returns the active case owning value for kind
func (r *Repository) FindByReference(ctx context.Context, kind models.ReferenceKind, value string) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "caserecord.Repository.FindByReference")
	defer span.End()

	if !kind.IsValid() || value == "" {
		return nil, store.NotFound("no active case with %s number %s", kind, value)
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(casesTable)
	sb.Where(
		sb.Equal(referenceColumn(kind), value),
		sb.Equal("state", models.CaseStateActive),
	)

	query, args := sb.Build()
	var rec Record
	if err := r.db.Executor(ctx).GetContext(ctx, &rec, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, store.NotFound("no active case with %s number %s", kind, value)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"kind":  kind,
			"value": value,
		}).Error("Failed to find case by reference")
		return nil, store.Failure(err, "failed to find case by reference")
	}

	return rec.toCase(), nil
}

// DuplicateGroups returns the distinct sets of active cases sharing a reference key
func (r *Repository) DuplicateGroups(ctx context.Context, limit int) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "caserecord.Repository.DuplicateGroups")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("s.signature", "array_agg(s.case_id ORDER BY s.case_id) AS case_ids")
	sb.From(signaturesTable + " s")
	sb.Join(casesTable+" c", "c.id = s.case_id")
	sb.Where(
		sb.Like("s.signature", signature.ReferenceKeyPrefix+"%"),
		sb.Equal("c.state", models.CaseStateActive),
	)
	sb.GroupBy("s.signature")
	sb.Having("COUNT(*) > 1")
	sb.OrderBy("s.signature")

	query, args := sb.Build()
	var rows []struct {
		Signature string         `db:"signature"`
		CaseIDs   pq.StringArray `db:"case_ids"`
	}
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find duplicate groups")
		return nil, store.Failure(err, "failed to find duplicate groups")
	}

	seen := make(map[string]struct{})
	groups := make([]models.DuplicateGroup, 0)
	for _, rec := range rows {
		setKey := strings.Join(rec.CaseIDs, ",")
		if _, dup := seen[setKey]; dup {
			continue
		}
		seen[setKey] = struct{}{}
		groups = append(groups, models.DuplicateGroup{
			Signature: strings.TrimPrefix(rec.Signature, signature.ReferenceKeyPrefix),
			CaseIDs:   []string(rec.CaseIDs),
		})
		if limit > 0 && len(groups) >= limit {
			break
		}
	}
	return groups, nil
}

// replaceSignatures rewrites the lookup keys of c. Inactive cases keep none.
func (r *Repository) replaceSignatures(ctx context.Context, c *models.Case) error {
	db := r.db.Executor(ctx)

	del := database.NewDeleteBuilder()
	del.DeleteFrom(signaturesTable)
	del.Where(del.Equal("case_id", c.ID))
	query, args := del.Build()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": c.ID}).Error("Failed to clear case signatures")
		return store.Failure(err, "failed to clear signatures of case %s", c.ID)
	}

	keys := signature.CaseLookupKeys(c)
	if !c.IsActive() || len(keys) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(signaturesTable)
	ib.Cols("case_id", "signature")
	for _, key := range keys {
		ib.Values(c.ID, key)
	}
	ib.OnConflictDoNothing()

	query, args = ib.Build()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": c.ID}).Error("Failed to index case signatures")
		return store.Failure(err, "failed to index signatures of case %s", c.ID)
	}
	return nil
}

// writeError maps a failed case write. A reference unique index violation is a Conflict.
func (r *Repository) writeError(ctx context.Context, err error, c *models.Case, op string) error {
	if constraint, ok := database.IsUniqueViolation(err); ok {
		kind := kindOfConstraint(constraint)
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"case_id":    c.ID,
			"constraint": constraint,
		}).Warn("Reference number already belongs to another active case")
		if kind == "" {
			return store.Conflict("case %s already exists", c.ID)
		}
		return store.Conflict("%s number %s already belongs to another active case", kind, c.CaseNumbers.Get(kind))
	}

	r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"case_id": c.ID}).Errorf("Failed to %s case", op)
	return store.Failure(err, "failed to %s case %s", op, c.ID)
}

func referenceColumn(kind models.ReferenceKind) string {
	return string(kind) + "_number"
}

func referenceColumns() []string {
	cols := make([]string, 0, len(models.ReferenceKinds))
	for _, kind := range models.ReferenceKinds {
		cols = append(cols, referenceColumn(kind))
	}
	return cols
}

// referenceValues are the reference columns of c, NULL when unset
func referenceValues(c *models.Case) []any {
	values := make([]any, 0, len(models.ReferenceKinds))
	for _, kind := range models.ReferenceKinds {
		v := c.CaseNumbers.Get(kind)
		if v == "" {
			values = append(values, nil)
			continue
		}
		values = append(values, v)
	}
	return values
}

// kindOfConstraint maps cases_active_<kind>_number_key back to its reference kind
func kindOfConstraint(constraint string) models.ReferenceKind {
	for _, kind := range models.ReferenceKinds {
		if constraint == fmt.Sprintf("cases_active_%s_key", referenceColumn(kind)) {
			return kind
		}
	}
	return ""
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
