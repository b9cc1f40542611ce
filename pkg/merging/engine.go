// Package merging folds entity bags and duplicate cases into canonical case records
package merging

import (
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/signature"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// caseFingerprintExclusions are bookkeeping fields that do not make a case different
var caseFingerprintExclusions = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"version":    true,
}

// MergeReport describes what one merge did to a case
type MergeReport struct {
	CaseID          string              `json:"case_id"`
	Case            *models.Case        `json:"-"`
	Changed         bool                `json:"changed"`
	PartiesAdded    int                 `json:"parties_added"`
	PartiesUpdated  int                 `json:"parties_updated"`
	ChargesAdded    int                 `json:"charges_added"`
	ChargesUpdated  int                 `json:"charges_updated"`
	EvidenceAdded   int                 `json:"evidence_added"`
	EvidenceUpdated int                 `json:"evidence_updated"`
	Skipped         []models.SkipRecord `json:"skipped,omitempty"`
}

// contribution is everything one source adds to a case: a document's entity bag or an
// absorbed duplicate case
type contribution struct {
	source          string
	numbers         map[models.ReferenceKind]string
	variations      []string
	parties         []models.CaseParty
	charges         []models.CaseCharge
	evidence        []models.CaseEvidence
	dates           map[string]string
	locations       map[string]string
	timeline        []models.TimelineEntry
	judgments       []models.Judgment
	financial       models.Financial
	status          models.CaseStatus
	legalReferences []models.LegalReference
}

// Engine merges entity bags into cases
type Engine struct {
	cases    store.CaseStore
	entities store.EntityStore
	scorer   *matching.Scorer
	fields   *FieldMerger
	limits   Limits
	logger   ectologger.Logger
}

// NewEngine creates a merge engine. Normalized entity records are maintained when cases also
// implements store.EntityStore.
func NewEngine(cases store.CaseStore, scorer *matching.Scorer, limits Limits, logger ectologger.Logger) *Engine {
	e := &Engine{
		cases:  cases,
		scorer: scorerOrDefault(scorer),
		fields: NewFieldMerger(),
		limits: limits.withDefaults(),
		logger: logger,
	}
	if entities, ok := cases.(store.EntityStore); ok {
		e.entities = entities
	}
	return e
}

// Limits returns the effective limits
func (e *Engine) Limits() Limits {
	return e.limits
}

// Merge folds bag, extracted from documentID, into the case. Merging the same bag twice leaves
// the case as the first merge did. The case is written once, after every field is merged.
func (e *Engine) Merge(ctx context.Context, caseID string, bag *models.EntityBag, documentID string) (*MergeReport, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"case_id":     caseID,
		"document_id": documentID,
	})

	c, err := e.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("get case %s: %w", caseID, err)
	}
	if !c.IsActive() {
		return nil, store.Conflict("case %s is %s and no longer accepts documents", caseID, c.State)
	}
	if bag == nil {
		bag = &models.EntityBag{}
	}

	before, err := signature.Fingerprint(c, caseFingerprintExclusions)
	if err != nil {
		return nil, fmt.Errorf("fingerprint case %s: %w", caseID, err)
	}

	report := &MergeReport{CaseID: caseID}
	for _, issue := range bag.Issues {
		report.Skipped = append(report.Skipped, models.SkipRecord{
			Kind:   issue.Field,
			Reason: models.SkipCorruptItem,
			Detail: issue.String(),
		})
	}

	clipped, skipped := clipBag(bag, e.limits.PerDocument)
	report.Skipped = append(report.Skipped, skipped...)

	contrib, skipped := contributionFromBag(clipped, documentID)
	report.Skipped = append(report.Skipped, skipped...)

	skipped, err = e.apply(ctx, c, contrib, nil, report)
	if err != nil {
		return nil, err
	}
	report.Skipped = append(report.Skipped, skipped...)
	report.Skipped = append(report.Skipped, truncateCase(c, e.limits)...)
	report.Skipped = append(report.Skipped, e.syncEntities(ctx, c, documentID)...)

	after, err := signature.Fingerprint(c, caseFingerprintExclusions)
	if err != nil {
		return nil, fmt.Errorf("fingerprint case %s: %w", caseID, err)
	}

	e.logSkipped(log, report.Skipped)

	if !signature.HasChanged(before, after) {
		log.Debug("Document added nothing new to the case")
		report.Case = c
		return report, nil
	}

	updated, err := e.cases.UpdateCase(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("update case %s: %w", caseID, err)
	}
	report.Case = updated
	report.Changed = true

	log.WithFields(map[string]any{
		"parties_added":  report.PartiesAdded,
		"charges_added":  report.ChargesAdded,
		"evidence_added": report.EvidenceAdded,
		"version":        updated.Version,
	}).Info("Merged document into case")
	return report, nil
}

// apply folds a contribution into c in memory. Reference numbers held by a case in releasing
// are treated as free.
func (e *Engine) apply(ctx context.Context, c *models.Case, contrib contribution, releasing map[string]bool, report *MergeReport) ([]models.SkipRecord, error) {
	skipped, err := e.mergeCaseNumbers(ctx, c, contrib.numbers, contrib.variations, releasing)
	if err != nil {
		return nil, err
	}

	counts, s := e.mergeParties(c, contrib.parties)
	report.PartiesAdded += counts.added
	report.PartiesUpdated += counts.updated
	skipped = append(skipped, s...)

	counts, s = e.mergeCharges(c, contrib.charges)
	report.ChargesAdded += counts.added
	report.ChargesUpdated += counts.updated
	skipped = append(skipped, s...)

	counts, s = e.mergeEvidenceItems(c, contrib.evidence)
	report.EvidenceAdded += counts.added
	report.EvidenceUpdated += counts.updated
	skipped = append(skipped, s...)

	c.KeyDates, _ = e.fields.MergeDates(c.KeyDates, contrib.dates)
	c.Locations, _ = e.fields.MergeLocations(c.Locations, contrib.locations)
	c.Timeline, _ = e.fields.MergeTimeline(c.Timeline, contrib.timeline)
	c.Judgments, _ = e.fields.MergeJudgments(c.Judgments, contrib.judgments)
	c.Financial, _ = e.fields.MergeFinancial(c.Financial, contrib.financial)
	c.CaseStatus, _ = e.fields.MergeCaseStatus(c.CaseStatus, contrib.status)
	c.LegalReferences, _ = e.fields.MergeLegalReferences(c.LegalReferences, contrib.legalReferences)

	return skipped, nil
}

// mergeCaseNumbers fills empty reference numbers and replaces a number only with a strictly
// longer rendering. A number owned by another active case is skipped; only the variations of
// accepted numbers are recorded.
func (e *Engine) mergeCaseNumbers(ctx context.Context, c *models.Case, values map[models.ReferenceKind]string, variations []string, releasing map[string]bool) ([]models.SkipRecord, error) {
	var skipped []models.SkipRecord
	var accepted []string

	for _, kind := range models.ReferenceKinds {
		raw, ok := values[kind]
		if !ok {
			continue
		}
		value := normalizers.NormalizeReferenceNumber(raw)
		if value == "" {
			continue
		}

		current := c.CaseNumbers.Get(kind)
		if value == current {
			accepted = append(accepted, raw)
			continue
		}
		if current != "" && utf8.RuneCountInString(value) <= utf8.RuneCountInString(current) {
			continue
		}

		owner, err := e.cases.FindCaseByReference(ctx, kind, value)
		switch {
		case err == nil && owner.ID != c.ID && !releasing[owner.ID]:
			skipped = append(skipped, models.SkipRecord{
				Kind:      "case_numbers." + string(kind),
				Reason:    models.SkipUniquenessConflict,
				Signature: value,
				Detail:    "owned by case " + owner.ID,
			})
			continue
		case err != nil && !store.IsNotFound(err):
			return nil, fmt.Errorf("find %s reference owner: %w", kind, err)
		}

		c.CaseNumbers.Set(kind, value)
		accepted = append(accepted, raw)
	}

	refs := signature.IdentityReferences(accepted...)
	if len(skipped) == 0 {
		// extractor variations cannot be attributed to a number, so a conflict drops them all
		refs = append(refs, variations...)
	}
	c.CaseNumbers.Variations, _ = unionSorted(c.CaseNumbers.Variations, refs)
	return skipped, nil
}

// syncEntities keeps the normalized party, charge and evidence records and their case links in
// step with the items documentID contributed. Failures are reported as skips.
func (e *Engine) syncEntities(ctx context.Context, c *models.Case, documentID string) []models.SkipRecord {
	if e.entities == nil {
		return nil
	}
	var skipped []models.SkipRecord
	fail := func(kind, sig string, err error) {
		skipped = append(skipped, models.SkipRecord{
			Kind:      kind,
			Reason:    models.SkipEntityStore,
			Signature: sig,
			Detail:    err.Error(),
		})
	}

	for i := range c.Parties {
		p := &c.Parties[i]
		if !slices.Contains(p.SourceDocuments, documentID) {
			continue
		}
		stored, err := e.entities.GetOrCreateParty(ctx, models.Party{
			Signature:   p.Signature,
			NameAr:      p.NameAr,
			NameEn:      p.NameEn,
			PersonalID:  p.PersonalID,
			Nationality: p.Nationality,
			Age:         p.Age,
			Gender:      p.Gender,
			Occupation:  p.Occupation,
			Phone:       p.Phone,
			Address:     p.Address,
		})
		if err != nil {
			fail("party", p.Signature, err)
			continue
		}
		p.PartyID = stored.ID
		roles := p.Roles
		if len(roles) == 0 {
			roles = []string{""}
		}
		for _, role := range roles {
			if err := e.entities.LinkPartyToCase(ctx, c.ID, stored.ID, role); err != nil {
				fail("party", p.Signature, err)
			}
		}
	}

	for i := range c.Charges {
		ch := &c.Charges[i]
		if !slices.Contains(ch.SourceDocuments, documentID) {
			continue
		}
		stored, err := e.entities.GetOrCreateCharge(ctx, models.Charge{
			Signature:     ch.Signature,
			ArticleNumber: ch.ArticleNumber,
			DescriptionAr: ch.DescriptionAr,
			DescriptionEn: ch.DescriptionEn,
			LawName:       ch.LawName,
			LawYear:       ch.LawYear,
		})
		if err != nil {
			fail("charge", ch.Signature, err)
			continue
		}
		ch.ChargeID = stored.ID
		if err := e.entities.LinkChargeToCase(ctx, c.ID, stored.ID, ch.Status); err != nil {
			fail("charge", ch.Signature, err)
		}
	}

	for i := range c.Evidence {
		ev := &c.Evidence[i]
		if !slices.Contains(ev.SourceDocuments, documentID) {
			continue
		}
		stored, err := e.entities.GetOrCreateEvidence(ctx, models.Evidence{
			Signature:     ev.Signature,
			Type:          ev.Type,
			DescriptionAr: ev.DescriptionAr,
			DescriptionEn: ev.DescriptionEn,
			CollectedDate: ev.CollectedDate,
			Location:      ev.Location,
		})
		if err != nil {
			fail("evidence", ev.Signature, err)
			continue
		}
		ev.EvidenceID = stored.ID
		if err := e.entities.LinkEvidenceToCase(ctx, c.ID, stored.ID); err != nil {
			fail("evidence", ev.Signature, err)
		}
	}
	return skipped
}

func (e *Engine) logSkipped(log ectologger.Logger, skipped []models.SkipRecord) {
	for _, s := range skipped {
		entry := log.WithFields(map[string]any{
			"kind":      s.Kind,
			"reason":    s.Reason,
			"signature": s.Signature,
			"detail":    s.Detail,
		})
		switch s.Reason {
		case models.SkipTruncated:
			entry.Info("Truncated oversized field")
		case models.SkipNoSignature:
			entry.Debug("Skipped item without identifying fields")
		default:
			entry.Warn("Skipped part of the merge")
		}
	}
}

// contributionFromBag converts a clipped entity bag. Items without any identifying field are
// returned as skips.
func contributionFromBag(bag *models.EntityBag, documentID string) (contribution, []models.SkipRecord) {
	contrib := contribution{
		source:          documentID,
		numbers:         bag.CaseNumbers.ReferenceValues(),
		variations:      signature.IdentityReferences(bag.CaseNumbers.Variations...),
		dates:           bag.Dates,
		locations:       bag.Locations,
		timeline:        TimelineFromDates(bag.Dates, documentID),
		legalReferences: bag.LegalReferences,
	}

	var skipped, s []models.SkipRecord
	contrib.parties, s = partiesFromBag(bag.Parties, documentID)
	skipped = append(skipped, s...)
	contrib.charges, s = chargesFromBag(bag.Charges, documentID)
	skipped = append(skipped, s...)
	contrib.evidence, s = evidenceFromBag(bag.Evidence, documentID)
	skipped = append(skipped, s...)

	for _, j := range bag.Judgments {
		if j.SourceDocument == "" {
			j.SourceDocument = documentID
		}
		contrib.judgments = append(contrib.judgments, j)
	}

	if bag.Financial != nil {
		contrib.financial.Bail = bag.Financial.Bail
		contrib.financial.Fines = withSource(bag.Financial.Fines, documentID)
		contrib.financial.Damages = withSource(bag.Financial.Damages, documentID)
	}

	if st := bag.CaseStatus; st != nil {
		contrib.status = models.CaseStatus{
			Current:    st.CurrentStatus.String(),
			StatusDate: st.StatusDate.String(),
			CaseType:   st.CaseType.String(),
			SummaryAr:  st.SummaryAr.String(),
		}
		if current := st.CurrentStatus.String(); current != "" {
			contrib.status.History = []models.StatusChange{{
				Status:         current,
				Date:           st.StatusDate.String(),
				SourceDocument: documentID,
			}}
		}
	}
	return contrib, skipped
}

// contributionFromCase converts an absorbed case. Its items keep their own sources and also
// record the case they came from.
func contributionFromCase(c *models.Case) contribution {
	source := MergeSource(c.ID)
	contrib := contribution{
		source:          source,
		numbers:         c.CaseNumbers.Values(),
		variations:      c.CaseNumbers.Variations,
		dates:           c.KeyDates,
		locations:       c.Locations,
		timeline:        c.Timeline,
		judgments:       c.Judgments,
		financial:       c.Financial,
		status:          c.CaseStatus,
		legalReferences: c.LegalReferences,
	}

	for _, p := range c.Parties {
		p.EntityID = ""
		p.SourceDocuments, _ = unionSorted(slices.Clone(p.SourceDocuments), []string{source})
		contrib.parties = append(contrib.parties, p)
	}
	for _, ch := range c.Charges {
		ch.EntityID = ""
		ch.SourceDocuments, _ = unionSorted(slices.Clone(ch.SourceDocuments), []string{source})
		contrib.charges = append(contrib.charges, ch)
	}
	for _, ev := range c.Evidence {
		ev.EntityID = ""
		ev.SourceDocuments, _ = unionSorted(slices.Clone(ev.SourceDocuments), []string{source})
		contrib.evidence = append(contrib.evidence, ev)
	}
	if current := c.CaseStatus.Current; current != "" {
		contrib.status.History = append(slices.Clone(c.CaseStatus.History), models.StatusChange{
			Status:         current,
			Date:           c.CaseStatus.StatusDate,
			SourceDocument: source,
		})
	}
	return contrib
}

func withSource(items []models.MonetaryItem, source string) []models.MonetaryItem {
	out := make([]models.MonetaryItem, 0, len(items))
	for _, it := range items {
		if it.SourceDocument == "" {
			it.SourceDocument = source
		}
		out = append(out, it)
	}
	return out
}
