package models

import "time"

// DocumentLink records which document contributed to which case, with what confidence and
// which signals fired.
type DocumentLink struct {
	DocumentID        string             `json:"document_id" db:"document_id"`
	CaseID            string             `json:"case_id" db:"case_id"`
	Confidence        float64            `json:"confidence" db:"confidence"`
	MatchedSignals    []string           `json:"matched_signals" db:"-"`
	LinkingParams     map[string]float64 `json:"linking_params,omitempty" db:"-"`
	EntityFingerprint string             `json:"entity_fingerprint,omitempty" db:"entity_fingerprint"`
	Embedding         []float64          `json:"-" db:"-"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}

// SimilarDocument is a stored document whose embedding is close to a query embedding
type SimilarDocument struct {
	DocumentID string  `json:"document_id"`
	CaseID     string  `json:"case_id"`
	Similarity float64 `json:"similarity"`
}
