// Package linker routes extracted documents to cases and merges them in
package linker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/signature"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultOperationTimeout = 60 * time.Second

	// maxRedirects bounds how many merged-case hops a document follows
	maxRedirects = 3
)

// Projector mirrors a case into a secondary read model
type Projector = merging.Projector

// Options configures the linker
type Options struct {
	// OperationTimeout bounds one LinkDocument call, lock wait included
	OperationTimeout time.Duration
	// LinkingParams are recorded on every document link
	LinkingParams map[string]float64
}

// Dependencies are the collaborators of a Linker. Emitter and Projector are optional.
type Dependencies struct {
	Store     store.CaseStore
	Resolver  *resolver.Resolver
	Engine    *merging.Engine
	Locker    lock.Locker
	Emitter   *events.Emitter
	Projector Projector
}

// Linker links one document at a time: resolve, lock the case, merge, record the link
type Linker struct {
	cases     store.CaseStore
	documents store.DocumentStore
	resolver  *resolver.Resolver
	engine    *merging.Engine
	locker    lock.Locker
	emitter   *events.Emitter
	projector Projector
	opts      Options
	logger    ectologger.Logger
}

// New creates a linker
func New(deps Dependencies, opts Options, logger ectologger.Logger) *Linker {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}
	l := &Linker{
		cases:     deps.Store,
		resolver:  deps.Resolver,
		engine:    deps.Engine,
		locker:    deps.Locker,
		emitter:   deps.Emitter,
		projector: deps.Projector,
		opts:      opts,
		logger:    logger,
	}
	if docs, ok := deps.Store.(store.DocumentStore); ok {
		l.documents = docs
	}
	return l
}

// caseMergedError reports that the resolved case was absorbed while the document waited for
// its lock
type caseMergedError struct {
	caseID string
	into   string
}

func (e *caseMergedError) Error() string {
	return fmt.Sprintf("case %s was merged into %s", e.caseID, e.into)
}

// LinkDocument routes documentID's entity bag to a case and merges it in. Redelivering a
// document whose bag has not changed leaves the case untouched. Only persistence failures and
// lock timeouts are returned.
func (l *Linker) LinkDocument(ctx context.Context, bag *models.EntityBag, documentID string) (*models.LinkageResult, error) {
	ctx, span := tracing.StartSpan(ctx, "linker.Linker.LinkDocument")
	defer span.End()

	start := time.Now()
	defer func() { metrics.LinkDuration.Observe(time.Since(start).Seconds()) }()

	if documentID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "document id is required")
	}
	if bag == nil {
		bag = &models.EntityBag{}
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.OperationTimeout)
	defer cancel()

	log := l.logger.WithContext(ctx).WithFields(map[string]any{"document_id": documentID})

	res, err := l.resolver.Resolve(ctx, documentID, bag)
	if err != nil {
		l.fail("resolve")
		return nil, fmt.Errorf("resolve document %s: %w", documentID, err)
	}

	result := &models.LinkageResult{
		DocumentID:        documentID,
		CaseID:            res.CaseID,
		Confidence:        res.Confidence,
		WasCreated:        res.WasCreated,
		MatchedSignals:    res.Signals,
		DuplicatesFlagged: res.Duplicates,
	}

	c, err := l.linkResolved(ctx, bag, result)
	if err != nil {
		return nil, err
	}

	l.publish(ctx, c, result)
	l.project(ctx, c, result)
	l.observe(result)

	log.WithFields(map[string]any{
		"case_id":     result.CaseID,
		"confidence":  result.Confidence,
		"was_created": result.WasCreated,
		"signals":     result.MatchedSignals,
		"unchanged":   result.Unchanged,
		"skipped":     len(result.Skipped),
	}).Info("Linked document")
	return result, nil
}

// linkResolved merges the bag into result.CaseID under the case lock, following the case it
// was merged into when it has been absorbed meanwhile
func (l *Linker) linkResolved(ctx context.Context, bag *models.EntityBag, result *models.LinkageResult) (*models.Case, error) {
	for hop := 0; ; hop++ {
		c, err := l.linkLocked(ctx, bag, result)
		var merged *caseMergedError
		if !errors.As(err, &merged) {
			return c, err
		}
		if hop >= maxRedirects {
			l.fail("merge")
			return nil, store.Conflict("document %s: %s", result.DocumentID, err)
		}
		l.logger.WithContext(ctx).WithFields(map[string]any{
			"document_id": result.DocumentID,
			"case_id":     merged.caseID,
			"merged_into": merged.into,
		}).Info("Resolved case was merged, following it")
		result.CaseID = merged.into
		result.WasCreated = false
		result.MatchedSignals = append(slices.Clone(result.MatchedSignals), models.SignalMergedCase)
	}
}

// linkLocked holds the case lock across the read-merge-write of one document
func (l *Linker) linkLocked(ctx context.Context, bag *models.EntityBag, result *models.LinkageResult) (*models.Case, error) {
	waitStart := time.Now()
	release, err := lock.AcquireAll(ctx, l.locker, lock.CaseKey(result.CaseID))
	metrics.LockWaitDuration.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		l.fail("lock")
		return nil, fmt.Errorf("lock case %s: %w", result.CaseID, err)
	}
	defer release(context.WithoutCancel(ctx))

	c, err := l.cases.GetCase(ctx, result.CaseID)
	if err != nil {
		l.fail("merge")
		return nil, fmt.Errorf("get case %s: %w", result.CaseID, err)
	}
	if !c.IsActive() && c.MergedInto != nil {
		return nil, &caseMergedError{caseID: c.ID, into: *c.MergedInto}
	}

	fingerprint := signature.BagFingerprint(bag)
	unchanged, err := l.alreadyLinked(ctx, result, fingerprint)
	if err != nil {
		l.fail("document_link")
		return nil, err
	}
	if unchanged {
		result.Unchanged = true
		return c, nil
	}

	report, err := l.engine.Merge(ctx, result.CaseID, bag, result.DocumentID)
	if err != nil {
		l.fail("merge")
		return nil, fmt.Errorf("merge document %s into case %s: %w", result.DocumentID, result.CaseID, err)
	}
	result.Skipped = report.Skipped

	if l.documents != nil {
		link := &models.DocumentLink{
			DocumentID:        result.DocumentID,
			CaseID:            result.CaseID,
			Confidence:        result.Confidence,
			MatchedSignals:    result.MatchedSignals,
			LinkingParams:     l.opts.LinkingParams,
			EntityFingerprint: fingerprint,
			Embedding:         bag.Embedding,
		}
		if err := l.documents.UpsertDocumentLink(ctx, link); err != nil {
			l.fail("document_link")
			return nil, fmt.Errorf("record link of document %s: %w", result.DocumentID, err)
		}
	}
	return report.Case, nil
}

// alreadyLinked reports whether the document was linked to the case with the same bag
func (l *Linker) alreadyLinked(ctx context.Context, result *models.LinkageResult, fingerprint string) (bool, error) {
	if l.documents == nil || fingerprint == "" {
		return false, nil
	}
	existing, err := l.documents.GetDocumentLink(ctx, result.DocumentID, result.CaseID)
	switch {
	case err == nil:
		return existing.EntityFingerprint == fingerprint, nil
	case store.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("get link of document %s: %w", result.DocumentID, err)
	}
}

// publish emits the case events of a link. Events are best-effort.
func (l *Linker) publish(ctx context.Context, c *models.Case, result *models.LinkageResult) {
	version := 0
	if c != nil {
		version = c.Version
	}
	if result.WasCreated && c != nil && !result.Unchanged {
		_ = l.emitter.EmitCaseCreated(ctx, c, result.DocumentID)
	}
	_ = l.emitter.EmitCaseLinked(ctx, result, version)
	_ = l.emitter.EmitDuplicatesFlagged(ctx, result.CaseID, result.DocumentID, result.DuplicatesFlagged)
}

// project mirrors the case into the graph. A failure is logged and never fails the link.
func (l *Linker) project(ctx context.Context, c *models.Case, result *models.LinkageResult) {
	if l.projector == nil || c == nil || result.Unchanged {
		return
	}
	if err := l.projector.ProjectCase(ctx, c); err != nil {
		metrics.GraphProjectionsTotal.WithLabelValues("failed").Inc()
		l.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_id": result.DocumentID,
			"case_id":     c.ID,
		}).Warn("Failed to project case into the graph")
		return
	}
	metrics.GraphProjectionsTotal.WithLabelValues("ok").Inc()
}

func (l *Linker) observe(result *models.LinkageResult) {
	outcome := metrics.OutcomeMatched
	switch {
	case result.Unchanged:
		outcome = metrics.OutcomeUnchanged
	case result.WasCreated && slices.Contains(result.MatchedSignals, models.SignalNoSignal):
		outcome = metrics.OutcomeOrphan
	case result.WasCreated:
		outcome = metrics.OutcomeCreated
	default:
		metrics.MatchConfidence.Observe(result.Confidence)
	}
	metrics.DocumentsLinkedTotal.WithLabelValues(outcome).Inc()

	if len(result.DuplicatesFlagged) > 0 {
		metrics.AmbiguousMatchesTotal.Inc()
	}
	for _, s := range result.Skipped {
		metrics.MergeSkipsTotal.WithLabelValues(s.Reason).Inc()
	}
}

func (l *Linker) fail(stage string) {
	metrics.LinkErrorsTotal.WithLabelValues(stage).Inc()
	metrics.DocumentsLinkedTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
}
