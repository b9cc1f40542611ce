// Package processor feeds extracted documents into the linker, from Kafka or from files
package processor

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Linker links one document to a case. *linker.Linker implements it.
type Linker interface {
	LinkDocument(ctx context.Context, bag *models.EntityBag, documentID string) (*models.LinkageResult, error)
}

// Processor handles document messages from the ingestion topic
type Processor struct {
	logger ectologger.Logger
	linker Linker
}

// NewProcessor creates a new message processor
func NewProcessor(logger ectologger.Logger, linker Linker) *Processor {
	return &Processor{
		logger: logger,
		linker: linker,
	}
}

// ProcessMessage handles an incoming Kafka message. Undecodable messages and rejected
// requests are permanent failures; anything else is returned for retry.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":    msg.Key,
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	req, err := msg.ParseLinkRequest()
	if err != nil {
		log.WithError(err).Error("Failed to parse document message")
		return err
	}
	log = log.WithFields(map[string]any{"document_id": req.DocumentID})
	if len(req.EntityBag.Issues) > 0 {
		log.WithFields(map[string]any{"issues": req.EntityBag.Issues}).Warn("Entity bag has malformed sections")
	}

	result, err := p.linker.LinkDocument(ctx, req.EntityBag, req.DocumentID)
	if err != nil {
		if isRejected(err) {
			log.WithError(err).Warn("Document rejected by the linker")
			return kafka.Permanent(err)
		}
		return err
	}

	log.WithFields(map[string]any{
		"case_id":     result.CaseID,
		"was_created": result.WasCreated,
		"unchanged":   result.Unchanged,
	}).Debug("Processed document message")
	return nil
}

// isRejected reports whether retrying err can never succeed
func isRejected(err error) bool {
	switch store.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
