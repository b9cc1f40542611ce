// Package entity persists the normalized party, charge and evidence records shared across
// cases, and their per-case links.
package entity

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

// table describes one entity table. Data columns exclude id, signature and timestamps.
type table struct {
	name    string
	columns []string
}

var (
	parties = table{
		name:    "parties",
		columns: []string{"name_ar", "name_en", "personal_id", "nationality", "age", "gender", "occupation", "phone", "address"},
	}
	charges = table{
		name:    "charges",
		columns: []string{"article_number", "description_ar", "description_en", "law_name", "law_year"},
	}
	evidence = table{
		name:    "evidence_items",
		columns: []string{"type", "description_ar", "description_en", "collected_date", "location"},
	}
)

func (t table) selectColumns() []string {
	cols := []string{"id", "COALESCE(signature, '') AS signature"}
	cols = append(cols, t.columns...)
	return append(cols, "created_at", "updated_at")
}

// Repository handles entity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetOrCreateParty returns the party with p's signature, filling its empty fields from p
func (r *Repository) GetOrCreateParty(ctx context.Context, p models.Party) (*models.Party, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetOrCreateParty")
	defer span.End()

	var stored models.Party
	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		if err := r.insertOrLock(ctx, parties, p.Signature, partyValues(p), &stored); err != nil {
			return err
		}
		if models.FillParty(&stored, p) {
			return r.refresh(ctx, parties, stored.ID, partyValues(stored), &stored.UpdatedAt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetOrCreateCharge returns the charge with c's signature, filling its empty fields from c
func (r *Repository) GetOrCreateCharge(ctx context.Context, c models.Charge) (*models.Charge, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetOrCreateCharge")
	defer span.End()

	var stored models.Charge
	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		if err := r.insertOrLock(ctx, charges, c.Signature, chargeValues(c), &stored); err != nil {
			return err
		}
		if models.FillCharge(&stored, c) {
			return r.refresh(ctx, charges, stored.ID, chargeValues(stored), &stored.UpdatedAt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetOrCreateEvidence returns the evidence item with e's signature, filling its empty fields
func (r *Repository) GetOrCreateEvidence(ctx context.Context, e models.Evidence) (*models.Evidence, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetOrCreateEvidence")
	defer span.End()

	var stored models.Evidence
	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		if err := r.insertOrLock(ctx, evidence, e.Signature, evidenceValues(e), &stored); err != nil {
			return err
		}
		if models.FillEvidence(&stored, e) {
			return r.refresh(ctx, evidence, stored.ID, evidenceValues(stored), &stored.UpdatedAt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// insertOrLock inserts a new record unless one with the signature exists, then loads the
// record with a row lock into dest. Unsigned records cannot be deduplicated and are always new.
func (r *Repository) insertOrLock(ctx context.Context, t table, signature string, values []any, dest any) error {
	db := r.db.Executor(ctx)
	id := uuid.New().String()
	now := time.Now().UTC()

	var sig any
	if signature != "" {
		sig = signature
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(t.name)
	ib.Cols(append(append([]string{"id", "signature"}, t.columns...), "created_at", "updated_at")...)
	ib.Values(append(append([]any{id, sig}, values...), now, now)...)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":     t.name,
			"signature": signature,
		}).Error("Failed to insert entity")
		return store.Failure(err, "failed to insert into %s", t.name)
	}

	sb := database.NewSelectBuilder()
	sb.Select(t.selectColumns()...)
	sb.From(t.name)
	if signature != "" {
		sb.Where(sb.Equal("signature", signature))
	} else {
		sb.Where(sb.Equal("id", id))
	}

	query, args = sb.Build()
	query += " FOR UPDATE"
	if err := db.GetContext(ctx, dest, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":     t.name,
			"signature": signature,
		}).Error("Failed to load entity")
		return store.Failure(err, "failed to load from %s", t.name)
	}
	return nil
}

// refresh writes the data columns of an existing record
func (r *Repository) refresh(ctx context.Context, t table, id string, values []any, updatedAt *time.Time) error {
	now := time.Now().UTC()

	ub := database.NewUpdateBuilder()
	ub.Update(t.name)
	assignments := make([]string, 0, len(t.columns)+1)
	for i, col := range t.columns {
		assignments = append(assignments, ub.Assign(col, values[i]))
	}
	ub.Set(append(assignments, ub.Assign("updated_at", now))...)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table": t.name,
			"id":    id,
		}).Error("Failed to fill entity")
		return store.Failure(err, "failed to update %s", t.name)
	}
	*updatedAt = now
	return nil
}

// LinkPartyToCase records the party in role on the case
func (r *Repository) LinkPartyToCase(ctx context.Context, caseID, partyID, role string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.LinkPartyToCase")
	defer span.End()

	return r.link(ctx, "case_parties", []string{"case_id", "party_id", "role", "created_at"},
		caseID, partyID, role, time.Now().UTC())
}

// LinkEvidenceToCase records the evidence item on the case
func (r *Repository) LinkEvidenceToCase(ctx context.Context, caseID, evidenceID string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.LinkEvidenceToCase")
	defer span.End()

	return r.link(ctx, "case_evidence", []string{"case_id", "evidence_id", "created_at"},
		caseID, evidenceID, time.Now().UTC())
}

func (r *Repository) link(ctx context.Context, linkTable string, cols []string, values ...any) error {
	ib := database.NewInsertBuilder()
	ib.InsertInto(linkTable)
	ib.Cols(cols...)
	ib.Values(values...)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":   linkTable,
			"case_id": values[0],
		}).Error("Failed to link entity to case")
		return store.Failure(err, "failed to write %s", linkTable)
	}
	return nil
}

// LinkChargeToCase records the charge on the case, keeping the most advanced status
func (r *Repository) LinkChargeToCase(ctx context.Context, caseID, chargeID string, status models.ChargeStatus) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.LinkChargeToCase")
	defer span.End()

	return database.WithTx(ctx, r.db, func(ctx context.Context) error {
		db := r.db.Executor(ctx)

		sb := database.NewSelectBuilder()
		sb.Select("status")
		sb.From("case_charges")
		sb.Where(sb.Equal("case_id", caseID), sb.Equal("charge_id", chargeID))
		query, args := sb.Build()
		query += " FOR UPDATE"

		var current string
		err := db.GetContext(ctx, &current, query, args...)
		switch {
		case err == nil:
			if !status.Advances(models.ChargeStatus(current)) {
				return nil
			}
		case !database.IsNoRows(err):
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"case_id":   caseID,
				"charge_id": chargeID,
			}).Error("Failed to read charge status")
			return store.Failure(err, "failed to read charge status")
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto("case_charges")
		ib.Cols("case_id", "charge_id", "status", "updated_at")
		ib.Values(caseID, chargeID, status, time.Now().UTC())
		ib.OnConflictUpdate([]string{"case_id", "charge_id"}, "status", "updated_at")

		query, args = ib.Build()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"case_id":   caseID,
				"charge_id": chargeID,
				"status":    status,
			}).Error("Failed to link charge to case")
			return store.Failure(err, "failed to link charge %s to case %s", chargeID, caseID)
		}
		return nil
	})
}

// PartyRoles returns the roles recorded for a party on a case
func (r *Repository) PartyRoles(ctx context.Context, caseID, partyID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.PartyRoles")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("role")
	sb.From("case_parties")
	sb.Where(sb.Equal("case_id", caseID), sb.Equal("party_id", partyID))
	sb.OrderBy("role")

	query, args := sb.Build()
	roles := make([]string, 0)
	if err := r.db.Executor(ctx).SelectContext(ctx, &roles, query, args...); err != nil {
		return nil, store.Failure(err, "failed to list roles of party %s", partyID)
	}
	return roles, nil
}

func partyValues(p models.Party) []any {
	return []any{p.NameAr, p.NameEn, p.PersonalID, p.Nationality, p.Age, p.Gender, p.Occupation, p.Phone, p.Address}
}

func chargeValues(c models.Charge) []any {
	return []any{c.ArticleNumber, c.DescriptionAr, c.DescriptionEn, c.LawName, c.LawYear}
}

func evidenceValues(e models.Evidence) []any {
	return []any{e.Type, e.DescriptionAr, e.DescriptionEn, e.CollectedDate, e.Location}
}
