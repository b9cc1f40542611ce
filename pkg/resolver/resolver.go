// Package resolver decides which case an entity bag belongs to
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/signature"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultCandidateLimit  = 50
	DefaultSimilarLimit    = 20
	DefaultConflictRetries = 3

	// reason recorded on merge candidates flagged while resolving
	ambiguousMatchReason = "ambiguous_match"
)

// Options bounds the work done per resolution
type Options struct {
	CandidateLimit  int
	SimilarLimit    int
	ConflictRetries int
}

func (o Options) withDefaults() Options {
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = DefaultCandidateLimit
	}
	if o.SimilarLimit <= 0 {
		o.SimilarLimit = DefaultSimilarLimit
	}
	if o.ConflictRetries <= 0 {
		o.ConflictRetries = DefaultConflictRetries
	}
	return o
}

// Resolution is the case a bag was routed to
type Resolution struct {
	CaseID     string
	Confidence float64
	WasCreated bool
	Signals    []string
	// Duplicates are the other accepted candidates, flagged as merge candidates
	Duplicates []string
}

// Resolver routes entity bags to existing cases or creates new ones
type Resolver struct {
	cases      store.CaseStore
	documents  store.DocumentStore
	duplicates store.DuplicateStore
	scorer     *matching.ConfidenceScorer
	opts       Options
	logger     ectologger.Logger
}

// NewResolver creates a resolver over cases. Similar-document lookup and duplicate flagging
// are used when the store provides them.
func NewResolver(cases store.CaseStore, scorer *matching.ConfidenceScorer, opts Options, logger ectologger.Logger) *Resolver {
	r := &Resolver{
		cases:  cases,
		scorer: scorer,
		opts:   opts.withDefaults(),
		logger: logger,
	}
	if docs, ok := cases.(store.DocumentStore); ok {
		r.documents = docs
	}
	if dups, ok := cases.(store.DuplicateStore); ok {
		r.duplicates = dups
	}
	return r
}

type scoredCase struct {
	c       *models.Case
	score   float64
	signals []string
}

// Resolve returns the case documentID's bag belongs to, creating one when nothing matches.
// Store failures are returned; ambiguity and conflicts are handled here.
func (r *Resolver) Resolve(ctx context.Context, documentID string, bag *models.EntityBag) (*Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Resolve")
	defer span.End()

	if bag == nil {
		bag = &models.EntityBag{}
	}
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"document_id": documentID,
	})

	if bag.IsEmpty() {
		c, err := r.createCase(ctx, bag, true)
		if err != nil {
			return nil, err
		}
		log.WithFields(map[string]any{"case_id": c.ID}).Info("No linking signal, created orphan case")
		return &Resolution{CaseID: c.ID, Confidence: 1.0, WasCreated: true, Signals: []string{models.SignalNoSignal}}, nil
	}

	candidates, sims, err := r.candidates(ctx, bag)
	if err != nil {
		return nil, err
	}

	var accepted []scoredCase
	for _, c := range candidates {
		score, signals := r.scorer.Score(c, bag, sims[c.ID])
		if r.scorer.Accepts(score) {
			accepted = append(accepted, scoredCase{c: c, score: score, signals: signals})
		}
	}

	switch len(accepted) {
	case 0:
		return r.createOrReuse(ctx, documentID, bag)
	case 1:
		return &Resolution{
			CaseID:     accepted[0].c.ID,
			Confidence: accepted[0].score,
			Signals:    accepted[0].signals,
		}, nil
	}

	return r.resolveAmbiguous(ctx, documentID, accepted), nil
}

// candidates returns the bounded candidate set and the best embedding similarity per case
func (r *Resolver) candidates(ctx context.Context, bag *models.EntityBag) ([]*models.Case, map[string]float64, error) {
	var out []*models.Case
	seen := make(map[string]struct{})
	sims := make(map[string]float64)

	if keys := signature.BagLookupKeys(bag); len(keys) > 0 {
		found, err := r.cases.FindCasesBySignatures(ctx, keys, r.opts.CandidateLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("find candidate cases: %w", err)
		}
		for _, c := range found {
			if _, dup := seen[c.ID]; dup || !c.IsActive() {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c)
		}
	}

	if len(bag.Embedding) == 0 || r.documents == nil {
		return out, sims, nil
	}

	similar, err := r.documents.FindSimilarDocuments(ctx, bag.Embedding, r.scorer.Options().SimilarityThreshold, r.opts.SimilarLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("find similar documents: %w", err)
	}
	for _, doc := range similar {
		if doc.Similarity > sims[doc.CaseID] {
			sims[doc.CaseID] = doc.Similarity
		}
		if _, ok := seen[doc.CaseID]; ok || len(out) >= r.opts.CandidateLimit {
			continue
		}
		c, err := r.cases.GetCase(ctx, doc.CaseID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, nil, fmt.Errorf("get similar case %s: %w", doc.CaseID, err)
		}
		seen[c.ID] = struct{}{}
		if c.IsActive() {
			out = append(out, c)
		}
	}
	return out, sims, nil
}

// resolveAmbiguous picks the most complete accepted case and flags the rest as duplicates
func (r *Resolver) resolveAmbiguous(ctx context.Context, documentID string, accepted []scoredCase) *Resolution {
	byID := make(map[string]scoredCase, len(accepted))
	cases := make([]*models.Case, 0, len(accepted))
	for _, sc := range accepted {
		byID[sc.c.ID] = sc
		cases = append(cases, sc.c)
	}

	ordered, completeness := PickPrimary(cases)
	primary := byID[ordered[0].ID]

	res := &Resolution{
		CaseID:     primary.c.ID,
		Confidence: primary.score,
		Signals:    primary.signals,
	}

	candidates := make([]*models.MergeCandidate, 0, len(ordered)-1)
	for _, c := range ordered[1:] {
		dup := byID[c.ID]
		res.Duplicates = append(res.Duplicates, c.ID)
		candidates = append(candidates, &models.MergeCandidate{
			PrimaryCaseID:   primary.c.ID,
			DuplicateCaseID: c.ID,
			DocumentID:      documentID,
			Reason:          fmt.Sprintf("%s: %s", ambiguousMatchReason, strings.Join(dup.signals, ",")),
			Confidence:      dup.score,
			PrimaryScore:    completeness[primary.c.ID],
			DuplicateScore:  completeness[c.ID],
		})
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"document_id": documentID,
		"case_id":     primary.c.ID,
		"duplicates":  res.Duplicates,
		"signals":     primary.signals,
		"confidence":  primary.score,
	})
	log.Warn("Document matched several cases, routed to the most complete")

	if r.duplicates != nil {
		if err := r.duplicates.FlagDuplicates(ctx, candidates); err != nil {
			log.WithError(err).Error("Failed to flag duplicate cases")
		}
	}
	return res
}

// createOrReuse creates a case for bag. When another writer created a case with the same
// reference number first, that case is reused.
func (r *Resolver) createOrReuse(ctx context.Context, documentID string, bag *models.EntityBag) (*Resolution, error) {
	log := r.logger.WithContext(ctx).WithFields(map[string]any{"document_id": documentID})

	var lastErr error
	for attempt := 0; attempt <= r.opts.ConflictRetries; attempt++ {
		c, err := r.createCase(ctx, bag, !bag.CaseNumbers.HasReferences())
		if err == nil {
			log.WithFields(map[string]any{"case_id": c.ID}).Info("No candidate cleared the threshold, created case")
			return &Resolution{CaseID: c.ID, Confidence: 1.0, WasCreated: true, Signals: []string{models.SignalNewCase}}, nil
		}
		if !store.IsConflict(err) {
			return nil, err
		}
		lastErr = err

		owner, err := r.referenceOwner(ctx, bag)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			log.WithFields(map[string]any{
				"case_id": owner.ID,
				"attempt": attempt,
			}).Warn("Reference number already owned, reusing the owning case")
			return &Resolution{
				CaseID:     owner.ID,
				Confidence: r.ownerConfidence(owner, bag),
				Signals:    []string{models.SignalCaseNumber, models.SignalReferenceOwner},
			}, nil
		}
	}
	return nil, store.Failure(lastErr, "create case for document %s: retries exhausted", documentID)
}

func (r *Resolver) ownerConfidence(owner *models.Case, bag *models.EntityBag) float64 {
	score, _ := r.scorer.Score(owner, bag, 0)
	return max(score, r.scorer.Options().MinConfidence)
}

// referenceOwner returns the active case owning one of the bag's canonical reference numbers
func (r *Resolver) referenceOwner(ctx context.Context, bag *models.EntityBag) (*models.Case, error) {
	for _, kind := range models.ReferenceKinds {
		raw := bag.CaseNumbers.Get(kind)
		if raw == "" {
			continue
		}
		c, err := r.cases.FindCaseByReference(ctx, kind, normalizers.NormalizeReferenceNumber(raw))
		if err == nil {
			return c, nil
		}
		if !store.IsNotFound(err) {
			return nil, fmt.Errorf("find %s reference owner: %w", kind, err)
		}
	}
	return nil, nil
}

// createCase stores a new case carrying the bag's canonical reference numbers. Everything else
// is filled in by the merge that follows.
func (r *Resolver) createCase(ctx context.Context, bag *models.EntityBag, orphan bool) (*models.Case, error) {
	c := &models.Case{
		CaseNumbers: NewCaseNumbers(bag.CaseNumbers),
		IsOrphan:    orphan,
		State:       models.CaseStateActive,
	}
	created, err := r.cases.CreateCase(ctx, c)
	if err != nil {
		if store.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create case: %w", err)
	}
	return created, nil
}

// NewCaseNumbers canonicalizes extracted reference numbers for storage
func NewCaseNumbers(numbers models.BagCaseNumbers) models.CaseNumbers {
	var out models.CaseNumbers
	for kind, raw := range numbers.ReferenceValues() {
		out.Set(kind, normalizers.NormalizeReferenceNumber(raw))
	}
	out.Variations = signature.BagReferences(numbers)
	return out
}
