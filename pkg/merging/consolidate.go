package merging

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MergedDocumentConfidence is the confidence given to documents moved to the primary case
const MergedDocumentConfidence = 0.95

// MergeSource is the source recorded on items folded in from an absorbed case
func MergeSource(caseID string) string {
	return "merged_from_case_" + caseID
}

// Projector mirrors a case into a secondary read model
type Projector interface {
	ProjectCase(ctx context.Context, c *models.Case) error
}

// Consolidator folds duplicate cases into a primary case
type Consolidator struct {
	engine     *Engine
	cases      store.CaseStore
	documents  store.DocumentStore
	duplicates store.DuplicateStore
	locker     lock.Locker
	emitter    *events.Emitter
	projector  Projector
	logger     ectologger.Logger
}

// NewConsolidator creates a consolidator writing through the engine's store. Document relinking
// and merge candidate bookkeeping are used when the store provides them.
func NewConsolidator(engine *Engine, locker lock.Locker, emitter *events.Emitter, logger ectologger.Logger) *Consolidator {
	c := &Consolidator{
		engine:  engine,
		cases:   engine.cases,
		locker:  locker,
		emitter: emitter,
		logger:  logger,
	}
	if docs, ok := engine.cases.(store.DocumentStore); ok {
		c.documents = docs
	}
	if dups, ok := engine.cases.(store.DuplicateStore); ok {
		c.duplicates = dups
	}
	return c
}

// WithProjector mirrors merged cases through p
func (c *Consolidator) WithProjector(p Projector) *Consolidator {
	c.projector = p
	return c
}

// MergeCases folds every absorbed case into the primary. The tombstones and the primary are
// written together: in one transaction when the store supports it, otherwise the tombstones are
// reverted when the primary write fails. A run interrupted between the two writes can be
// repeated, since a case already merged into the same primary is folded again without change.
// A dry run reports what would move without writing.
func (c *Consolidator) MergeCases(ctx context.Context, primaryID string, absorbedIDs []string, dryRun bool) (*models.MergeCasesReport, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Consolidator.MergeCases")
	defer span.End()

	ids, err := validateMerge(primaryID, absorbedIDs)
	if err != nil {
		return nil, err
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_case_id":   primaryID,
		"absorbed_case_ids": ids,
		"dry_run":           dryRun,
	})

	keys := []string{lock.CaseKey(primaryID)}
	for _, id := range ids {
		keys = append(keys, lock.CaseKey(id))
	}
	release, err := lock.AcquireAll(ctx, c.locker, keys...)
	if err != nil {
		return nil, fmt.Errorf("lock cases: %w", err)
	}
	defer release(context.WithoutCancel(ctx))

	primary, err := c.cases.GetCase(ctx, primaryID)
	if err != nil {
		return nil, fmt.Errorf("get primary case %s: %w", primaryID, err)
	}
	if !primary.IsActive() {
		return nil, store.Conflict("primary case %s is %s", primaryID, primary.State)
	}

	absorbed := make([]*models.Case, 0, len(ids))
	releasing := make(map[string]bool, len(ids))
	for _, id := range ids {
		a, err := c.cases.GetCase(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get absorbed case %s: %w", id, err)
		}
		if !a.IsActive() && (a.MergedInto == nil || *a.MergedInto != primaryID) {
			return nil, store.Conflict("case %s is already %s", id, a.State)
		}
		absorbed = append(absorbed, a)
		releasing[id] = true
	}

	report := &models.MergeCasesReport{PrimaryID: primaryID, AbsorbedIDs: ids, DryRun: dryRun}
	merge := &MergeReport{CaseID: primaryID}
	var skipped []models.SkipRecord

	for _, a := range absorbed {
		s, err := c.engine.apply(ctx, primary, contributionFromCase(a), releasing, merge)
		if err != nil {
			return nil, err
		}
		skipped = append(skipped, s...)
	}
	skipped = append(skipped, truncateCase(primary, c.engine.limits)...)

	report.PartiesMoved = merge.PartiesAdded
	report.ChargesMoved = merge.ChargesAdded
	report.EvidenceMoved = merge.EvidenceAdded

	if dryRun {
		for _, a := range absorbed {
			n, err := c.countDocuments(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			report.DocumentsRelinked += n
		}
		report.Skipped = describeSkips(skipped)
		log.WithFields(map[string]any{"parties": report.PartiesMoved}).Info("Dry run of case merge")
		return report, nil
	}

	for _, a := range absorbed {
		skipped = append(skipped, c.engine.syncEntities(ctx, primary, MergeSource(a.ID))...)
	}
	c.engine.logSkipped(log, skipped)
	report.Skipped = describeSkips(skipped)

	updated, err := c.persist(ctx, primary, absorbed)
	if err != nil {
		return nil, err
	}

	if c.documents != nil {
		for _, a := range absorbed {
			n, err := c.documents.RelinkDocuments(ctx, a.ID, primaryID, MergedDocumentConfidence)
			if err != nil {
				return nil, fmt.Errorf("relink documents of case %s: %w", a.ID, err)
			}
			report.DocumentsRelinked += n
		}
	}

	if err := c.resolveCandidates(ctx, primaryID, releasing); err != nil {
		log.WithError(err).Error("Failed to mark merge candidates as merged")
	}

	log.WithFields(map[string]any{
		"parties_moved":      report.PartiesMoved,
		"charges_moved":      report.ChargesMoved,
		"evidence_moved":     report.EvidenceMoved,
		"documents_relinked": report.DocumentsRelinked,
	}).Info("Merged duplicate cases")
	metrics.CasesMergedTotal.Add(float64(len(ids)))

	_ = c.emitter.EmitCasesMerged(ctx, report)
	c.project(ctx, updated, ids)
	return report, nil
}

// persist tombstones the absorbed cases and writes the primary
func (c *Consolidator) persist(ctx context.Context, primary *models.Case, absorbed []*models.Case) (*models.Case, error) {
	if tx, ok := c.cases.(store.Transactor); ok {
		var updated *models.Case
		err := tx.InTransaction(ctx, func(ctx context.Context) error {
			var err error
			updated, _, err = c.writeMerge(ctx, primary, absorbed)
			return err
		})
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	updated, tombstoned, err := c.writeMerge(ctx, primary, absorbed)
	if err != nil {
		c.restore(ctx, tombstoned)
		return nil, err
	}
	return updated, nil
}

// writeMerge returns the absorbed cases it tombstoned, also on failure
func (c *Consolidator) writeMerge(ctx context.Context, primary *models.Case, absorbed []*models.Case) (*models.Case, []*models.Case, error) {
	var tombstoned []*models.Case
	for _, a := range absorbed {
		if !a.IsActive() {
			continue
		}
		tomb := a.Clone()
		tomb.State = models.CaseStateMerged
		tomb.MergedInto = &primary.ID
		if _, err := c.cases.UpdateCase(ctx, tomb); err != nil {
			return nil, tombstoned, fmt.Errorf("tombstone case %s: %w", a.ID, err)
		}
		tombstoned = append(tombstoned, a)
	}

	updated, err := c.cases.UpdateCase(ctx, primary)
	if err != nil {
		return nil, tombstoned, fmt.Errorf("update primary case %s: %w", primary.ID, err)
	}
	return updated, tombstoned, nil
}

// restore reactivates tombstoned cases so they keep their reference numbers
func (c *Consolidator) restore(ctx context.Context, cases []*models.Case) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range cases {
		if _, err := c.cases.UpdateCase(ctx, a); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"case_id": a.ID,
			}).Error("Failed to restore absorbed case after a failed merge")
		}
	}
}

// project mirrors the primary and the tombstones. Failures are logged only.
func (c *Consolidator) project(ctx context.Context, primary *models.Case, absorbedIDs []string) {
	if c.projector == nil {
		return
	}
	log := c.logger.WithContext(ctx).WithFields(map[string]any{"primary_case_id": primary.ID})
	if err := c.projector.ProjectCase(ctx, primary); err != nil {
		log.WithError(err).Warn("Failed to project merged case")
	}
	for _, id := range absorbedIDs {
		absorbed, err := c.cases.GetCase(ctx, id)
		if err == nil {
			err = c.projector.ProjectCase(ctx, absorbed)
		}
		if err != nil {
			log.WithError(err).WithFields(map[string]any{"case_id": id}).Warn("Failed to project absorbed case")
		}
	}
}

// MergeCandidate merges the duplicate case of a pending merge candidate into its primary
func (c *Consolidator) MergeCandidate(ctx context.Context, candidateID string, dryRun bool) (*models.MergeCasesReport, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Consolidator.MergeCandidate")
	defer span.End()

	candidate, err := c.pendingCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	return c.MergeCases(ctx, candidate.PrimaryCaseID, []string{candidate.DuplicateCaseID}, dryRun)
}

// RejectCandidate records that a pending candidate's cases are not duplicates
func (c *Consolidator) RejectCandidate(ctx context.Context, candidateID string) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Consolidator.RejectCandidate")
	defer span.End()

	candidate, err := c.pendingCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if err := c.duplicates.UpdateMergeCandidateStatus(ctx, candidateID, models.MergeCandidateRejected); err != nil {
		return nil, fmt.Errorf("reject merge candidate %s: %w", candidateID, err)
	}
	candidate.Status = models.MergeCandidateRejected

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id":      candidateID,
		"primary_case_id":   candidate.PrimaryCaseID,
		"duplicate_case_id": candidate.DuplicateCaseID,
	}).Info("Rejected merge candidate")
	return candidate, nil
}

// ListCandidates returns merge candidates with the given status
func (c *Consolidator) ListCandidates(ctx context.Context, status models.MergeCandidateStatus, limit int) ([]*models.MergeCandidate, error) {
	if c.duplicates == nil {
		return nil, errDuplicatesUnsupported()
	}
	return c.duplicates.ListMergeCandidates(ctx, status, limit)
}

// AnalyzeDuplicates returns groups of active cases sharing a reference number, each with the
// most complete case suggested as primary
func (c *Consolidator) AnalyzeDuplicates(ctx context.Context, limit int) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Consolidator.AnalyzeDuplicates")
	defer span.End()

	if c.duplicates == nil {
		return nil, errDuplicatesUnsupported()
	}

	groups, err := c.duplicates.FindDuplicateGroups(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("find duplicate groups: %w", err)
	}

	out := make([]models.DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		cases := make([]*models.Case, 0, len(g.CaseIDs))
		for _, id := range g.CaseIDs {
			cs, err := c.cases.GetCase(ctx, id)
			if err != nil {
				if store.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("get case %s: %w", id, err)
			}
			if cs.IsActive() {
				cases = append(cases, cs)
			}
		}
		if len(cases) < 2 {
			continue
		}
		ordered, _ := resolver.PickPrimary(cases)
		g.SuggestedPrimary = ordered[0].ID
		out = append(out, g)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{"groups": len(out)}).Info("Analyzed duplicate cases")
	return out, nil
}

func (c *Consolidator) pendingCandidate(ctx context.Context, candidateID string) (*models.MergeCandidate, error) {
	if c.duplicates == nil {
		return nil, errDuplicatesUnsupported()
	}
	candidate, err := c.duplicates.GetMergeCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("get merge candidate %s: %w", candidateID, err)
	}
	if candidate.Status != models.MergeCandidatePending {
		return nil, store.Conflict("merge candidate %s is %s", candidateID, candidate.Status)
	}
	return candidate, nil
}

// resolveCandidates marks pending candidates between the primary and an absorbed case merged
func (c *Consolidator) resolveCandidates(ctx context.Context, primaryID string, absorbed map[string]bool) error {
	if c.duplicates == nil {
		return nil
	}
	pending, err := c.duplicates.ListMergeCandidates(ctx, models.MergeCandidatePending, 0)
	if err != nil {
		return err
	}
	for _, candidate := range pending {
		pair := (candidate.PrimaryCaseID == primaryID && absorbed[candidate.DuplicateCaseID]) ||
			(candidate.DuplicateCaseID == primaryID && absorbed[candidate.PrimaryCaseID])
		if !pair {
			continue
		}
		if err := c.duplicates.UpdateMergeCandidateStatus(ctx, candidate.ID, models.MergeCandidateMerged); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consolidator) countDocuments(ctx context.Context, caseID string) (int, error) {
	if c.documents == nil {
		return 0, nil
	}
	links, err := c.documents.ListDocumentLinks(ctx, caseID)
	if err != nil {
		return 0, fmt.Errorf("list documents of case %s: %w", caseID, err)
	}
	return len(links), nil
}

func validateMerge(primaryID string, absorbedIDs []string) ([]string, error) {
	if primaryID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "primary case id is required")
	}
	var ids []string
	for _, id := range absorbedIDs {
		switch {
		case id == "":
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "absorbed case ids must not be empty")
		case id == primaryID:
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "a case cannot be merged into itself")
		case !slices.Contains(ids, id):
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "at least one absorbed case id is required")
	}
	return ids, nil
}

func describeSkips(skipped []models.SkipRecord) []string {
	out := make([]string, 0, len(skipped))
	for _, s := range skipped {
		line := s.Kind + ": " + s.Reason
		if s.Detail != "" {
			line += " (" + s.Detail + ")"
		}
		out = append(out, line)
	}
	return out
}

func errDuplicatesUnsupported() error {
	return httperror.NewHTTPError(http.StatusNotImplemented, "the configured store does not track duplicate cases")
}
