package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// ReferenceKind names one of the reference numbers a case can carry
type ReferenceKind string

const (
	ReferenceCourt       ReferenceKind = "court"
	ReferenceProsecution ReferenceKind = "prosecution"
	ReferencePolice      ReferenceKind = "police"
	ReferenceInternal    ReferenceKind = "internal"
)

// ReferenceKinds lists the reference kinds in completeness order
var ReferenceKinds = []ReferenceKind{ReferenceCourt, ReferenceProsecution, ReferencePolice, ReferenceInternal}

// IsValid reports whether k is a known reference kind
func (k ReferenceKind) IsValid() bool {
	switch k {
	case ReferenceCourt, ReferenceProsecution, ReferencePolice, ReferenceInternal:
		return true
	}
	return false
}

// CaseState is the lifecycle state of a case record
type CaseState string

const (
	CaseStateActive CaseState = "active"
	// CaseStateMerged marks a case absorbed by merge-duplicates. It is kept for audit.
	CaseStateMerged CaseState = "merged"
)

// CaseNumbers holds the canonical reference numbers of a case and every accepted rendering
type CaseNumbers struct {
	Court       string   `json:"court,omitempty"`
	Prosecution string   `json:"prosecution,omitempty"`
	Police      string   `json:"police,omitempty"`
	Internal    string   `json:"internal,omitempty"`
	Variations  []string `json:"variations,omitempty"`
}

// Get returns the value stored for kind
func (n CaseNumbers) Get(kind ReferenceKind) string {
	switch kind {
	case ReferenceCourt:
		return n.Court
	case ReferenceProsecution:
		return n.Prosecution
	case ReferencePolice:
		return n.Police
	case ReferenceInternal:
		return n.Internal
	}
	return ""
}

// Set stores value for kind
func (n *CaseNumbers) Set(kind ReferenceKind, value string) {
	switch kind {
	case ReferenceCourt:
		n.Court = value
	case ReferenceProsecution:
		n.Prosecution = value
	case ReferencePolice:
		n.Police = value
	case ReferenceInternal:
		n.Internal = value
	}
}

// Values returns the populated reference numbers keyed by kind
func (n CaseNumbers) Values() map[ReferenceKind]string {
	out := make(map[ReferenceKind]string)
	for _, kind := range ReferenceKinds {
		if v := n.Get(kind); v != "" {
			out[kind] = v
		}
	}
	return out
}

// Case is the canonical record that linked documents are merged into
type Case struct {
	ID              string            `json:"id"`
	CaseNumbers     CaseNumbers       `json:"case_numbers"`
	Parties         []CaseParty       `json:"parties"`
	Charges         []CaseCharge      `json:"charges"`
	Evidence        []CaseEvidence    `json:"evidence"`
	KeyDates        map[string]string `json:"key_dates"`
	Locations       map[string]string `json:"locations"`
	Judgments       []Judgment        `json:"judgments"`
	Financial       Financial         `json:"financial"`
	CaseStatus      CaseStatus        `json:"case_status"`
	Timeline        []TimelineEntry   `json:"timeline"`
	LegalReferences []LegalReference  `json:"legal_references"`
	IsOrphan        bool              `json:"is_orphan"`
	State           CaseState         `json:"state"`
	MergedInto      *string           `json:"merged_into,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Version         int               `json:"version"`
}

// IsActive reports whether the case still accepts documents
func (c *Case) IsActive() bool {
	return c.State == "" || c.State == CaseStateActive
}

// Clone returns a deep copy of the case
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}
	var out Case
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *c
		return &cp
	}
	return &out
}

// CaseParty is a party as it appears on one case
type CaseParty struct {
	EntityID        string   `json:"entity_id"`
	PartyID         string   `json:"party_id,omitempty"`
	Signature       string   `json:"signature,omitempty"`
	NameAr          string   `json:"name_ar,omitempty"`
	NameEn          string   `json:"name_en,omitempty"`
	PersonalID      string   `json:"personal_id,omitempty"`
	Nationality     string   `json:"nationality,omitempty"`
	Age             string   `json:"age,omitempty"`
	Gender          string   `json:"gender,omitempty"`
	Occupation      string   `json:"occupation,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	Address         string   `json:"address,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	SourceDocuments []string `json:"source_documents,omitempty"`
}

// CaseCharge is a charge as it appears on one case, with its per-case status
type CaseCharge struct {
	EntityID        string         `json:"entity_id"`
	ChargeID        string         `json:"charge_id,omitempty"`
	Signature       string         `json:"signature,omitempty"`
	ArticleNumber   string         `json:"article_number,omitempty"`
	DescriptionAr   string         `json:"description_ar,omitempty"`
	DescriptionEn   string         `json:"description_en,omitempty"`
	LawName         string         `json:"law_name,omitempty"`
	LawYear         string         `json:"law_year,omitempty"`
	Status          ChargeStatus   `json:"status,omitempty"`
	StatusHistory   []StatusChange `json:"status_history,omitempty"`
	SourceDocuments []string       `json:"source_documents,omitempty"`
}

// CaseEvidence is an evidence item as it appears on one case
type CaseEvidence struct {
	EntityID        string   `json:"entity_id"`
	EvidenceID      string   `json:"evidence_id,omitempty"`
	Signature       string   `json:"signature,omitempty"`
	Type            string   `json:"type,omitempty"`
	DescriptionAr   string   `json:"description_ar,omitempty"`
	DescriptionEn   string   `json:"description_en,omitempty"`
	CollectedDate   string   `json:"collected_date,omitempty"`
	Location        string   `json:"location,omitempty"`
	SourceDocuments []string `json:"source_documents,omitempty"`
}

// StatusChange is one observed status, in arrival order
type StatusChange struct {
	Status         string `json:"status"`
	Date           string `json:"date,omitempty"`
	SourceDocument string `json:"source_document,omitempty"`
}

// CaseStatus is the current status of a case and every status reported for it
type CaseStatus struct {
	Current    string         `json:"current,omitempty"`
	StatusDate string         `json:"status_date,omitempty"`
	CaseType   string         `json:"case_type,omitempty"`
	SummaryAr  string         `json:"summary_ar,omitempty"`
	History    []StatusChange `json:"history,omitempty"`
}

// TimelineEntry is one dated event on a case
type TimelineEntry struct {
	Date           string `json:"date"`
	EventType      string `json:"event_type"`
	SourceDocument string `json:"source_document,omitempty"`
}

// Judgment is a ruling. Judgments are events and are never deduplicated.
type Judgment struct {
	JudgmentDate   FlexString      `json:"judgment_date,omitempty"`
	Verdict        FlexString      `json:"verdict,omitempty"`
	Court          FlexString      `json:"court,omitempty"`
	JudgeName      FlexString      `json:"judge_name,omitempty"`
	DescriptionAr  FlexString      `json:"description_ar,omitempty"`
	Sentences      json.RawMessage `json:"sentences,omitempty"`
	SourceDocument string          `json:"source_document,omitempty"`
}

// Financial holds the monetary facts of a case
type Financial struct {
	Fines   []MonetaryItem `json:"fines,omitempty"`
	Damages []MonetaryItem `json:"damages,omitempty"`
	Bail    *FlexFloat     `json:"bail,omitempty"`
}

// MonetaryItem is a fine or damages award. A bare number or string decodes as the amount.
type MonetaryItem struct {
	Amount         FlexFloat  `json:"amount,omitempty"`
	Currency       FlexString `json:"currency,omitempty"`
	PartyName      FlexString `json:"party_name,omitempty"`
	Description    FlexString `json:"description,omitempty"`
	SourceDocument string     `json:"source_document,omitempty"`
}

type monetaryItemAlias MonetaryItem

func (m *MonetaryItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		*m = MonetaryItem{}
		return json.Unmarshal(data, &m.Amount)
	}
	var a monetaryItemAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = MonetaryItem(a)
	return nil
}

// LegalReference is a cited article of law
type LegalReference struct {
	Article   FlexString `json:"article,omitempty"`
	LawNameAr FlexString `json:"law_name_ar,omitempty"`
	LawNameEn FlexString `json:"law_name_en,omitempty"`
	LawYear   FlexString `json:"law_year,omitempty"`
}
