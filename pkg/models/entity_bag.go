package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EntityBag is the structured output of document extraction: a partially populated set of
// case facts. Every field is optional and absence means unknown.
type EntityBag struct {
	CaseNumbers     BagCaseNumbers    `json:"case_numbers"`
	Parties         []BagParty        `json:"parties,omitempty"`
	Charges         []BagCharge       `json:"charges,omitempty"`
	Evidence        []BagEvidence     `json:"evidence,omitempty"`
	Dates           map[string]string `json:"dates,omitempty"`
	Locations       map[string]string `json:"locations,omitempty"`
	Judgments       []Judgment        `json:"judgments,omitempty"`
	Financial       *Financial        `json:"financial,omitempty"`
	CaseStatus      *BagCaseStatus    `json:"case_status,omitempty"`
	LegalReferences []LegalReference  `json:"legal_references,omitempty"`
	Embedding       []float64         `json:"embedding,omitempty"`
	Issues          []DecodeIssue     `json:"-"`
}

// BagCaseNumbers are the reference numbers as extracted, before canonicalization
type BagCaseNumbers struct {
	Court       FlexString `json:"court,omitempty"`
	Prosecution FlexString `json:"prosecution,omitempty"`
	Police      FlexString `json:"police,omitempty"`
	Internal    FlexString `json:"internal,omitempty"`
	Variations  []string   `json:"variations,omitempty"`
}

// BagParty is a person mentioned in a document
type BagParty struct {
	NameAr      FlexString `json:"name_ar,omitempty"`
	NameEn      FlexString `json:"name_en,omitempty"`
	PersonalID  FlexString `json:"personal_id,omitempty"`
	Nationality FlexString `json:"nationality,omitempty"`
	Age         FlexString `json:"age,omitempty"`
	Gender      FlexString `json:"gender,omitempty"`
	Occupation  FlexString `json:"occupation,omitempty"`
	Phone       FlexString `json:"phone,omitempty"`
	Address     FlexString `json:"address,omitempty"`
	Role        FlexString `json:"role,omitempty"`
}

// BagCharge is a cited offense
type BagCharge struct {
	ArticleNumber FlexString `json:"article_number,omitempty"`
	DescriptionAr FlexString `json:"description_ar,omitempty"`
	DescriptionEn FlexString `json:"description_en,omitempty"`
	LawName       FlexString `json:"law_name,omitempty"`
	LawYear       FlexString `json:"law_year,omitempty"`
	Status        FlexString `json:"status,omitempty"`
}

// BagEvidence is an item of evidence
type BagEvidence struct {
	Type          FlexString `json:"type,omitempty"`
	DescriptionAr FlexString `json:"description_ar,omitempty"`
	DescriptionEn FlexString `json:"description_en,omitempty"`
	CollectedDate FlexString `json:"collected_date,omitempty"`
	Location      FlexString `json:"location,omitempty"`
}

// BagCaseStatus is the status a document reports for its case
type BagCaseStatus struct {
	CurrentStatus FlexString `json:"current_status,omitempty"`
	StatusDate    FlexString `json:"status_date,omitempty"`
	CaseType      FlexString `json:"case_type,omitempty"`
	SummaryAr     FlexString `json:"summary_ar,omitempty"`
}

// DecodeIssue records an item that could not be decoded and was skipped
type DecodeIssue struct {
	Field string `json:"field"`
	Index int    `json:"index"`
	Error string `json:"error"`
}

func (i DecodeIssue) String() string {
	if i.Index < 0 {
		return fmt.Sprintf("%s: %s", i.Field, i.Error)
	}
	return fmt.Sprintf("%s[%d]: %s", i.Field, i.Index, i.Error)
}

// rawEntityBag mirrors EntityBag with every section left undecoded. The flat reference
// fields are accepted as aliases for case_numbers.
type rawEntityBag struct {
	CaseNumbers     json.RawMessage `json:"case_numbers"`
	Parties         json.RawMessage `json:"parties"`
	Charges         json.RawMessage `json:"charges"`
	Evidence        json.RawMessage `json:"evidence"`
	Dates           json.RawMessage `json:"dates"`
	Locations       json.RawMessage `json:"locations"`
	Judgments       json.RawMessage `json:"judgments"`
	Financial       json.RawMessage `json:"financial"`
	CaseStatus      json.RawMessage `json:"case_status"`
	LegalReferences json.RawMessage `json:"legal_references"`
	Embedding       json.RawMessage `json:"embedding"`

	CourtCaseNumber       json.RawMessage `json:"court_case_number"`
	ProsecutionCaseNumber json.RawMessage `json:"prosecution_case_number"`
	PoliceReportNumber    json.RawMessage `json:"police_report_number"`
	InternalReference     json.RawMessage `json:"internal_reference"`
}

// UnmarshalJSON decodes a bag section by section. Malformed sections and list items are
// skipped and recorded in Issues; only a body that is not a JSON object fails.
func (b *EntityBag) UnmarshalJSON(data []byte) error {
	var raw rawEntityBag
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*b = EntityBag{}

	if present(raw.CaseNumbers) {
		if err := json.Unmarshal(raw.CaseNumbers, &b.CaseNumbers); err != nil {
			b.issue("case_numbers", -1, err)
		}
	}
	b.aliasNumber(&b.CaseNumbers.Court, "court_case_number", raw.CourtCaseNumber)
	b.aliasNumber(&b.CaseNumbers.Prosecution, "prosecution_case_number", raw.ProsecutionCaseNumber)
	b.aliasNumber(&b.CaseNumbers.Police, "police_report_number", raw.PoliceReportNumber)
	b.aliasNumber(&b.CaseNumbers.Internal, "internal_reference", raw.InternalReference)

	b.Parties = decodeList[BagParty](b, "parties", raw.Parties)
	b.Charges = decodeList[BagCharge](b, "charges", raw.Charges)
	b.Evidence = decodeList[BagEvidence](b, "evidence", raw.Evidence)
	b.Judgments = decodeList[Judgment](b, "judgments", raw.Judgments)
	b.LegalReferences = decodeList[LegalReference](b, "legal_references", raw.LegalReferences)
	b.Dates = decodeTextMap(b, "dates", raw.Dates)
	b.Locations = decodeTextMap(b, "locations", raw.Locations)

	if present(raw.Financial) {
		var f Financial
		if err := json.Unmarshal(raw.Financial, &f); err != nil {
			b.issue("financial", -1, err)
		} else {
			b.Financial = &f
		}
	}

	if present(raw.CaseStatus) {
		var s BagCaseStatus
		if err := json.Unmarshal(raw.CaseStatus, &s); err != nil {
			b.issue("case_status", -1, err)
		} else {
			b.CaseStatus = &s
		}
	}

	if present(raw.Embedding) {
		if err := json.Unmarshal(raw.Embedding, &b.Embedding); err != nil {
			b.Embedding = nil
			b.issue("embedding", -1, err)
		}
	}

	return nil
}

func (b *EntityBag) issue(field string, index int, err error) {
	b.Issues = append(b.Issues, DecodeIssue{Field: field, Index: index, Error: err.Error()})
}

func (b *EntityBag) aliasNumber(dst *FlexString, field string, raw json.RawMessage) {
	if !present(raw) || dst.String() != "" {
		return
	}
	var v FlexString
	if err := json.Unmarshal(raw, &v); err != nil {
		b.issue(field, -1, err)
		return
	}
	*dst = v
}

func decodeList[T any](b *EntityBag, field string, raw json.RawMessage) []T {
	if !present(raw) {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		b.issue(field, -1, err)
		return nil
	}

	out := make([]T, 0, len(items))
	for i, item := range items {
		if !present(item) {
			continue
		}
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			b.issue(field, i, err)
			continue
		}
		out = append(out, v)
	}
	return out
}

func decodeTextMap(b *EntityBag, field string, raw json.RawMessage) map[string]string {
	if !present(raw) {
		return nil
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		b.issue(field, -1, err)
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(values))
	for _, k := range keys {
		var v FlexString
		if err := json.Unmarshal(values[k], &v); err != nil {
			b.issue(field+"."+k, -1, err)
			continue
		}
		if s := v.String(); s != "" {
			out[k] = s
		}
	}
	return out
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// ReferenceValues returns the populated reference numbers keyed by kind
func (n BagCaseNumbers) ReferenceValues() map[ReferenceKind]string {
	out := make(map[ReferenceKind]string)
	for _, kind := range ReferenceKinds {
		if v := n.Get(kind); v != "" {
			out[kind] = v
		}
	}
	return out
}

// Get returns the trimmed raw value of one reference kind
func (n BagCaseNumbers) Get(kind ReferenceKind) string {
	switch kind {
	case ReferenceCourt:
		return n.Court.String()
	case ReferenceProsecution:
		return n.Prosecution.String()
	case ReferencePolice:
		return n.Police.String()
	case ReferenceInternal:
		return n.Internal.String()
	}
	return ""
}

// HasReferences reports whether any reference number is populated
func (n BagCaseNumbers) HasReferences() bool {
	return len(n.ReferenceValues()) > 0
}

// HasIdentifyingParty reports whether any party carries a personal id or a name
func (b *EntityBag) HasIdentifyingParty() bool {
	for _, p := range b.Parties {
		if p.PersonalID.String() != "" || p.NameAr.String() != "" || p.NameEn.String() != "" {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the bag carries nothing that could link it to a case
func (b *EntityBag) IsEmpty() bool {
	return !b.CaseNumbers.HasReferences() && !b.HasIdentifyingParty() && len(b.Embedding) == 0
}
