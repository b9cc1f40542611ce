package models

import "time"

// MergeCandidateStatus is the review state of a suspected duplicate pair
type MergeCandidateStatus string

const (
	MergeCandidatePending  MergeCandidateStatus = "pending"
	MergeCandidateMerged   MergeCandidateStatus = "merged"
	MergeCandidateRejected MergeCandidateStatus = "rejected"
)

// IsValid reports whether s is a known status
func (s MergeCandidateStatus) IsValid() bool {
	switch s {
	case MergeCandidatePending, MergeCandidateMerged, MergeCandidateRejected:
		return true
	}
	return false
}

// MergeCandidate is a pair of active cases that matched the same document. The duplicate is
// expected to be folded into the primary by an operator.
type MergeCandidate struct {
	ID              string               `json:"id" db:"id"`
	PrimaryCaseID   string               `json:"primary_case_id" db:"primary_case_id"`
	DuplicateCaseID string               `json:"duplicate_case_id" db:"duplicate_case_id"`
	DocumentID      string               `json:"document_id,omitempty" db:"document_id"`
	Reason          string               `json:"reason" db:"reason"`
	Confidence      float64              `json:"confidence" db:"confidence"`
	PrimaryScore    int                  `json:"primary_score" db:"primary_score"`
	DuplicateScore  int                  `json:"duplicate_score" db:"duplicate_score"`
	Status          MergeCandidateStatus `json:"status" db:"status"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// DuplicateGroup is a set of active cases sharing a reference signature
type DuplicateGroup struct {
	Signature        string   `json:"signature"`
	CaseIDs          []string `json:"case_ids"`
	SuggestedPrimary string   `json:"suggested_primary,omitempty"`
}

// MergeCasesRequest asks for absorbed cases to be folded into the primary
type MergeCasesRequest struct {
	AbsorbedIDs []string `json:"absorbed_ids" validate:"required,min=1,dive,required"`
	DryRun      bool     `json:"dry_run"`
}

// MergeCasesReport summarizes a merge-duplicates run
type MergeCasesReport struct {
	PrimaryID         string   `json:"primary_id"`
	AbsorbedIDs       []string `json:"absorbed_ids"`
	DryRun            bool     `json:"dry_run"`
	PartiesMoved      int      `json:"parties_moved"`
	ChargesMoved      int      `json:"charges_moved"`
	EvidenceMoved     int      `json:"evidence_moved"`
	DocumentsRelinked int      `json:"documents_relinked"`
	Skipped           []string `json:"skipped,omitempty"`
}

// LinkDocumentRequest is the API payload for linking one document
type LinkDocumentRequest struct {
	DocumentID string     `json:"document_id" validate:"required"`
	EntityBag  *EntityBag `json:"entity_bag" validate:"required"`
}
