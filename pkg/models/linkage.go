package models

// Matching signals reported on a linkage result
const (
	SignalCaseNumber       = "case_number"
	SignalPersonalID       = "personal_id"
	SignalPartyNameDate    = "party_name+date"
	SignalChargeLocation   = "charge+location"
	SignalPartyNameCharge  = "party_name+charge"
	SignalVectorSimilarity = "vector_similarity"
	SignalNoSignal         = "no_signal"
	SignalNewCase          = "new_case"
	SignalReferenceOwner   = "reference_owner"
	SignalMergedCase       = "merged_case"
)

// LinkageResult is returned for every processed document and is suitable for audit logging
type LinkageResult struct {
	DocumentID        string       `json:"document_id"`
	CaseID            string       `json:"case_id"`
	Confidence        float64      `json:"confidence"`
	WasCreated        bool         `json:"was_created"`
	MatchedSignals    []string     `json:"matched_signals"`
	DuplicatesFlagged []string     `json:"duplicates_flagged,omitempty"`
	Skipped           []SkipRecord `json:"skipped,omitempty"`
	Unchanged         bool         `json:"unchanged,omitempty"`
}

// SkipRecord is an audit entry for anything the merge declined to apply
type SkipRecord struct {
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
	Signature string `json:"signature,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Skip reasons
const (
	SkipUniquenessConflict = "uniqueness_conflict"
	SkipCapReached         = "cap_reached"
	SkipDocumentCap        = "document_cap"
	SkipTruncated          = "truncated"
	SkipCorruptItem        = "corrupt_item"
	SkipEntityStore        = "entity_store_failure"
	SkipNoSignature        = "no_signature"
)
