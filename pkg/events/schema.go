package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeCaseCreated       EventType = "case.created"
	EventTypeCaseLinked        EventType = "case.linked"
	EventTypeCasesMerged       EventType = "cases.merged"
	EventTypeDuplicatesFlagged EventType = "case.duplicates_flagged"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// CaseCreatedEvent is emitted when a document starts a new case
type CaseCreatedEvent struct {
	BaseEvent
	CaseID      string            `json:"case_id"`
	DocumentID  string            `json:"document_id"`
	IsOrphan    bool              `json:"is_orphan"`
	CaseNumbers map[string]string `json:"case_numbers,omitempty"`
}

// CaseLinkedEvent is emitted when a document is linked to a case
type CaseLinkedEvent struct {
	BaseEvent
	CaseID         string   `json:"case_id"`
	DocumentID     string   `json:"document_id"`
	Confidence     float64  `json:"confidence"`
	WasCreated     bool     `json:"was_created"`
	MatchedSignals []string `json:"matched_signals"`
	Unchanged      bool     `json:"unchanged,omitempty"`
}

// CasesMergedEvent is emitted when duplicate cases are folded into a primary case
type CasesMergedEvent struct {
	BaseEvent
	PrimaryCaseID     string   `json:"primary_case_id"`
	AbsorbedCaseIDs   []string `json:"absorbed_case_ids"`
	DocumentsRelinked int      `json:"documents_relinked"`
}

// DuplicatesFlaggedEvent is emitted when a document matched several cases
type DuplicatesFlaggedEvent struct {
	BaseEvent
	CaseID           string   `json:"case_id"`
	DocumentID       string   `json:"document_id"`
	DuplicateCaseIDs []string `json:"duplicate_case_ids"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
