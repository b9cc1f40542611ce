package processor

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const DefaultWorkers = 4

// FileError is a file or document the batch could not link
type FileError struct {
	Path       string `json:"path"`
	DocumentID string `json:"document_id,omitempty"`
	Error      string `json:"error"`
}

// BatchReport summarizes a batch run
type BatchReport struct {
	Files     int                     `json:"files"`
	Documents int                     `json:"documents"`
	Created   int                     `json:"created"`
	Matched   int                     `json:"matched"`
	Unchanged int                     `json:"unchanged"`
	Results   []*models.LinkageResult `json:"results"`
	Failures  []FileError             `json:"failures,omitempty"`
}

// Batch links entity bag files with a bounded number of workers. Documents routed to the
// same case serialize on the case lock inside the linker.
type Batch struct {
	logger  ectologger.Logger
	linker  Linker
	workers int
}

// NewBatch creates a batch linker. workers <= 0 uses DefaultWorkers.
func NewBatch(logger ectologger.Logger, linker Linker, workers int) *Batch {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Batch{
		logger:  logger,
		linker:  linker,
		workers: workers,
	}
}

// LinkPaths links every file under paths. A failing file is recorded in the report and does
// not stop the batch; only cancellation of ctx does.
func (b *Batch) LinkPaths(ctx context.Context, paths []string) (*BatchReport, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Batch.LinkPaths")
	defer span.End()

	files, err := ExpandPaths(paths)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Files: len(files)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results, failures := b.linkFile(gctx, path)

			mu.Lock()
			defer mu.Unlock()
			report.add(results, failures)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	b.logger.WithContext(ctx).WithFields(map[string]any{
		"files":     report.Files,
		"documents": report.Documents,
		"created":   report.Created,
		"matched":   report.Matched,
		"failures":  len(report.Failures),
	}).Info("Batch linking finished")
	return report, nil
}

func (b *Batch) linkFile(ctx context.Context, path string) ([]*models.LinkageResult, []FileError) {
	log := b.logger.WithContext(ctx).WithFields(map[string]any{"path": path})

	requests, err := LoadFile(path)
	if err != nil {
		metrics.BatchFilesTotal.WithLabelValues("invalid").Inc()
		log.WithError(err).Warn("Skipping unreadable entity bag file")
		return nil, []FileError{{Path: path, Error: err.Error()}}
	}

	var (
		results  []*models.LinkageResult
		failures []FileError
	)
	for _, req := range requests {
		if len(req.EntityBag.Issues) > 0 {
			log.WithFields(map[string]any{
				"document_id": req.DocumentID,
				"issues":      req.EntityBag.Issues,
			}).Warn("Entity bag has malformed sections")
		}

		result, err := b.linker.LinkDocument(ctx, req.EntityBag, req.DocumentID)
		if err != nil {
			log.WithError(err).WithFields(map[string]any{"document_id": req.DocumentID}).Error("Failed to link document")
			failures = append(failures, FileError{Path: path, DocumentID: req.DocumentID, Error: err.Error()})
			continue
		}
		results = append(results, result)
	}

	status := "ok"
	if len(failures) > 0 {
		status = "failed"
	}
	metrics.BatchFilesTotal.WithLabelValues(status).Inc()
	return results, failures
}

func (r *BatchReport) add(results []*models.LinkageResult, failures []FileError) {
	r.Documents += len(results) + countDocuments(failures)
	r.Failures = append(r.Failures, failures...)
	for _, res := range results {
		r.Results = append(r.Results, res)
		switch {
		case res.Unchanged:
			r.Unchanged++
		case res.WasCreated:
			r.Created++
		default:
			r.Matched++
		}
	}
}

// countDocuments counts failures of individual documents, not of whole files
func countDocuments(failures []FileError) int {
	n := 0
	for _, f := range failures {
		if f.DocumentID != "" {
			n++
		}
	}
	return n
}
