package merging

import (
	"fmt"
	"unicode/utf8"

	"github.com/Ramsey-B/fern/pkg/models"
)

// TruncatedSuffix marks a text field cut to the maximum length
const TruncatedSuffix = "...[truncated]"

// DocumentLimits cap what a single document may contribute
type DocumentLimits struct {
	Parties   int
	Charges   int
	Evidence  int
	Judgments int
}

// Limits bound the growth of a case record
type Limits struct {
	MaxParties    int
	MaxCharges    int
	MaxEvidence   int
	PerDocument   DocumentLimits
	MaxTextLength int
	MaxArraySize  int
}

// DefaultLimits returns the default caps
func DefaultLimits() Limits {
	return Limits{
		MaxParties:  200,
		MaxCharges:  100,
		MaxEvidence: 200,
		PerDocument: DocumentLimits{
			Parties:   100,
			Charges:   50,
			Evidence:  100,
			Judgments: 20,
		},
		MaxTextLength: 10000,
		MaxArraySize:  1000,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxParties <= 0 {
		l.MaxParties = d.MaxParties
	}
	if l.MaxCharges <= 0 {
		l.MaxCharges = d.MaxCharges
	}
	if l.MaxEvidence <= 0 {
		l.MaxEvidence = d.MaxEvidence
	}
	if l.PerDocument.Parties <= 0 {
		l.PerDocument.Parties = d.PerDocument.Parties
	}
	if l.PerDocument.Charges <= 0 {
		l.PerDocument.Charges = d.PerDocument.Charges
	}
	if l.PerDocument.Evidence <= 0 {
		l.PerDocument.Evidence = d.PerDocument.Evidence
	}
	if l.PerDocument.Judgments <= 0 {
		l.PerDocument.Judgments = d.PerDocument.Judgments
	}
	if l.MaxTextLength <= 0 {
		l.MaxTextLength = d.MaxTextLength
	}
	if l.MaxArraySize <= 0 {
		l.MaxArraySize = d.MaxArraySize
	}
	return l
}

// clipBag returns a shallow copy of bag whose lists fit the per-document limits
func clipBag(bag *models.EntityBag, limits DocumentLimits) (*models.EntityBag, []models.SkipRecord) {
	clipped := *bag
	var skipped []models.SkipRecord

	clipped.Parties, skipped = clipList(clipped.Parties, limits.Parties, "party", skipped)
	clipped.Charges, skipped = clipList(clipped.Charges, limits.Charges, "charge", skipped)
	clipped.Evidence, skipped = clipList(clipped.Evidence, limits.Evidence, "evidence", skipped)
	clipped.Judgments, skipped = clipList(clipped.Judgments, limits.Judgments, "judgment", skipped)
	return &clipped, skipped
}

func clipList[T any](items []T, limit int, kind string, skipped []models.SkipRecord) ([]T, []models.SkipRecord) {
	if limit <= 0 || len(items) <= limit {
		return items, skipped
	}
	return items[:limit], append(skipped, models.SkipRecord{
		Kind:   kind,
		Reason: models.SkipDocumentCap,
		Detail: fmt.Sprintf("kept %d of %d", limit, len(items)),
	})
}

// truncateText cuts s to max runes plus the truncation marker. Already truncated text is
// left as is.
func truncateText(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max || isTruncated(s, max) {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:max]) + TruncatedSuffix, true
}

func isTruncated(s string, max int) bool {
	runes := []rune(s)
	return len(runes) == max+utf8.RuneCountInString(TruncatedSuffix) && string(runes[max:]) == TruncatedSuffix
}

// truncateCase enforces the text and array size limits on every free-text field and list
// of c, returning one record per truncated field.
func truncateCase(c *models.Case, limits Limits) []models.SkipRecord {
	t := truncator{max: limits.MaxTextLength}

	for i := range c.Parties {
		p := &c.Parties[i]
		t.text("party.name_ar", &p.NameAr)
		t.text("party.name_en", &p.NameEn)
		t.text("party.occupation", &p.Occupation)
		t.text("party.address", &p.Address)
		p.SourceDocuments = t.list("party.source_documents", p.SourceDocuments, limits.MaxArraySize)
	}
	for i := range c.Charges {
		ch := &c.Charges[i]
		t.text("charge.description_ar", &ch.DescriptionAr)
		t.text("charge.description_en", &ch.DescriptionEn)
		t.text("charge.law_name", &ch.LawName)
		ch.StatusHistory = truncateList(&t, "charge.status_history", ch.StatusHistory, limits.MaxArraySize)
		ch.SourceDocuments = t.list("charge.source_documents", ch.SourceDocuments, limits.MaxArraySize)
	}
	for i := range c.Evidence {
		ev := &c.Evidence[i]
		t.text("evidence.description_ar", &ev.DescriptionAr)
		t.text("evidence.description_en", &ev.DescriptionEn)
		ev.SourceDocuments = t.list("evidence.source_documents", ev.SourceDocuments, limits.MaxArraySize)
	}
	for i := range c.Judgments {
		j := &c.Judgments[i]
		desc := j.DescriptionAr.String()
		if t.text("judgment.description_ar", &desc) {
			j.DescriptionAr = models.FlexString(desc)
		}
	}
	for key, value := range c.Locations {
		if t.text("locations."+key, &value) {
			c.Locations[key] = value
		}
	}
	t.text("case_status.summary_ar", &c.CaseStatus.SummaryAr)

	c.CaseNumbers.Variations = t.list("case_numbers.variations", c.CaseNumbers.Variations, limits.MaxArraySize)
	c.Judgments = truncateList(&t, "judgments", c.Judgments, limits.MaxArraySize)
	c.Timeline = truncateList(&t, "timeline", c.Timeline, limits.MaxArraySize)
	c.LegalReferences = truncateList(&t, "legal_references", c.LegalReferences, limits.MaxArraySize)
	c.Financial.Fines = truncateList(&t, "financial.fines", c.Financial.Fines, limits.MaxArraySize)
	c.Financial.Damages = truncateList(&t, "financial.damages", c.Financial.Damages, limits.MaxArraySize)
	c.CaseStatus.History = truncateList(&t, "case_status.history", c.CaseStatus.History, limits.MaxArraySize)

	return t.skipped
}

type truncator struct {
	max     int
	skipped []models.SkipRecord
}

func (t *truncator) text(field string, s *string) bool {
	out, cut := truncateText(*s, t.max)
	if !cut {
		return false
	}
	t.skipped = append(t.skipped, models.SkipRecord{
		Kind:   field,
		Reason: models.SkipTruncated,
		Detail: fmt.Sprintf("%d characters", utf8.RuneCountInString(*s)),
	})
	*s = out
	return true
}

func (t *truncator) list(field string, items []string, max int) []string {
	return truncateList(t, field, items, max)
}

func truncateList[T any](t *truncator, field string, items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	t.skipped = append(t.skipped, models.SkipRecord{
		Kind:   field,
		Reason: models.SkipTruncated,
		Detail: fmt.Sprintf("kept %d of %d items", max, len(items)),
	})
	return items[:max]
}
