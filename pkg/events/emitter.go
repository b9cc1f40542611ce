// Package events publishes case lifecycle events
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher sends case events to the bus. *kafka.Producer implements it.
type Publisher interface {
	PublishCaseEvent(ctx context.Context, event *kafka.CaseEvent) error
}

// Emitter handles event emission for fern. A nil Emitter, or one without a publisher, emits
// nothing.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitCaseCreated emits a case.created event
func (e *Emitter) EmitCaseCreated(ctx context.Context, c *models.Case, documentID string) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCaseCreated")
	defer span.End()

	numbers := make(map[string]string)
	for kind, v := range c.CaseNumbers.Values() {
		numbers[string(kind)] = v
	}

	return e.emit(ctx, EventTypeCaseCreated, c.ID, documentID, c.Version, CaseCreatedEvent{
		BaseEvent:   NewBaseEvent(EventTypeCaseCreated),
		CaseID:      c.ID,
		DocumentID:  documentID,
		IsOrphan:    c.IsOrphan,
		CaseNumbers: numbers,
	})
}

// EmitCaseLinked emits a case.linked event for a linkage result
func (e *Emitter) EmitCaseLinked(ctx context.Context, result *models.LinkageResult, version int) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCaseLinked")
	defer span.End()

	return e.emit(ctx, EventTypeCaseLinked, result.CaseID, result.DocumentID, version, CaseLinkedEvent{
		BaseEvent:      NewBaseEvent(EventTypeCaseLinked),
		CaseID:         result.CaseID,
		DocumentID:     result.DocumentID,
		Confidence:     result.Confidence,
		WasCreated:     result.WasCreated,
		MatchedSignals: result.MatchedSignals,
		Unchanged:      result.Unchanged,
	})
}

// EmitCasesMerged emits a cases.merged event for a completed merge
func (e *Emitter) EmitCasesMerged(ctx context.Context, report *models.MergeCasesReport) error {
	if !e.enabled() || report.DryRun {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCasesMerged")
	defer span.End()

	return e.emit(ctx, EventTypeCasesMerged, report.PrimaryID, "", 0, CasesMergedEvent{
		BaseEvent:         NewBaseEvent(EventTypeCasesMerged),
		PrimaryCaseID:     report.PrimaryID,
		AbsorbedCaseIDs:   report.AbsorbedIDs,
		DocumentsRelinked: report.DocumentsRelinked,
	})
}

// EmitDuplicatesFlagged emits a case.duplicates_flagged event
func (e *Emitter) EmitDuplicatesFlagged(ctx context.Context, caseID, documentID string, duplicates []string) error {
	if !e.enabled() || len(duplicates) == 0 {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicatesFlagged")
	defer span.End()

	return e.emit(ctx, EventTypeDuplicatesFlagged, caseID, documentID, 0, DuplicatesFlaggedEvent{
		BaseEvent:        NewBaseEvent(EventTypeDuplicatesFlagged),
		CaseID:           caseID,
		DocumentID:       documentID,
		DuplicateCaseIDs: duplicates,
	})
}

func (e *Emitter) enabled() bool {
	return e != nil && e.publisher != nil
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, caseID, documentID string, version int, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.CaseEvent{
		EventType:     string(eventType),
		SchemaVersion: SchemaVersion,
		CaseID:        caseID,
		DocumentID:    documentID,
		Data:          data,
		Version:       version,
	}

	if err := e.publisher.PublishCaseEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
			"case_id":    caseID,
		}).Error("Failed to emit case event")
		return err
	}
	return nil
}
