package merging

import (
	"fmt"
	"slices"
	"sort"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/signature"
)

// entityCounts tallies what a contribution did to one entity list
type entityCounts struct {
	added   int
	updated int
}

// partiesFromBag converts extracted parties to case parties of source, merging parties of
// the same document that share a signature
func partiesFromBag(items []models.BagParty, source string) ([]models.CaseParty, []models.SkipRecord) {
	var out []models.CaseParty
	var skipped []models.SkipRecord
	index := make(map[string]int)

	for _, item := range items {
		p := models.CaseParty{
			Signature:       signature.BagParty(item),
			NameAr:          item.NameAr.String(),
			NameEn:          item.NameEn.String(),
			PersonalID:      signature.PersonalID(item.PersonalID.String()),
			Nationality:     item.Nationality.String(),
			Age:             item.Age.String(),
			Gender:          item.Gender.String(),
			Occupation:      item.Occupation.String(),
			Phone:           item.Phone.String(),
			Address:         item.Address.String(),
			Roles:           nonEmpty(item.Role.String()),
			SourceDocuments: nonEmpty(source),
		}
		if p.Signature == "" {
			skipped = append(skipped, models.SkipRecord{Kind: "party", Reason: models.SkipNoSignature})
			continue
		}
		if i, ok := index[p.Signature]; ok {
			mergeParty(&out[i], p)
			continue
		}
		index[p.Signature] = len(out)
		out = append(out, p)
	}
	return out, skipped
}

// chargesFromBag converts extracted charges, recording the reported status as an observation
func chargesFromBag(items []models.BagCharge, source string) ([]models.CaseCharge, []models.SkipRecord) {
	var out []models.CaseCharge
	var skipped []models.SkipRecord
	index := make(map[string]int)

	for _, item := range items {
		c := models.CaseCharge{
			Signature:       signature.BagCharge(item),
			ArticleNumber:   normalizers.FoldDigits(item.ArticleNumber.String()),
			DescriptionAr:   item.DescriptionAr.String(),
			DescriptionEn:   item.DescriptionEn.String(),
			LawName:         item.LawName.String(),
			LawYear:         item.LawYear.String(),
			SourceDocuments: nonEmpty(source),
		}
		if status := models.ParseChargeStatus(item.Status.String()); status != "" {
			c.StatusHistory = []models.StatusChange{{Status: string(status), SourceDocument: source}}
		}
		if c.Signature == "" {
			skipped = append(skipped, models.SkipRecord{Kind: "charge", Reason: models.SkipNoSignature})
			continue
		}
		if i, ok := index[c.Signature]; ok {
			mergeCharge(&out[i], c)
			continue
		}
		index[c.Signature] = len(out)
		out = append(out, c)
	}
	return out, skipped
}

// evidenceFromBag converts extracted evidence items
func evidenceFromBag(items []models.BagEvidence, source string) ([]models.CaseEvidence, []models.SkipRecord) {
	var out []models.CaseEvidence
	var skipped []models.SkipRecord
	index := make(map[string]int)

	for _, item := range items {
		e := models.CaseEvidence{
			Signature:       signature.BagEvidence(item),
			Type:            item.Type.String(),
			DescriptionAr:   item.DescriptionAr.String(),
			DescriptionEn:   item.DescriptionEn.String(),
			CollectedDate:   item.CollectedDate.String(),
			Location:        item.Location.String(),
			SourceDocuments: nonEmpty(source),
		}
		if e.Signature == "" {
			skipped = append(skipped, models.SkipRecord{Kind: "evidence", Reason: models.SkipNoSignature})
			continue
		}
		if i, ok := index[e.Signature]; ok {
			mergeEvidence(&out[i], e)
			continue
		}
		index[e.Signature] = len(out)
		out = append(out, e)
	}
	return out, skipped
}

// mergeParties folds incoming parties into c: exact signature first, then fuzzy name match.
// Unmatched parties are appended until the cap is reached.
func (e *Engine) mergeParties(c *models.Case, incoming []models.CaseParty) (entityCounts, []models.SkipRecord) {
	var counts entityCounts
	var skipped []models.SkipRecord

	index := make(map[string]int, len(c.Parties))
	for i, p := range c.Parties {
		index[p.Signature] = i
	}

	for _, in := range incoming {
		i, ok := index[in.Signature]
		if !ok {
			i = e.findParty(c.Parties, in)
		}
		if i >= 0 {
			if mergeParty(&c.Parties[i], in) {
				counts.updated++
			}
			index[c.Parties[i].Signature] = i
			continue
		}
		if len(c.Parties) >= e.limits.MaxParties {
			skipped = append(skipped, models.SkipRecord{
				Kind:      "party",
				Reason:    models.SkipCapReached,
				Signature: in.Signature,
				Detail:    fmt.Sprintf("case holds %d parties", len(c.Parties)),
			})
			continue
		}
		in.EntityID = fmt.Sprintf("P%03d", len(c.Parties)+1)
		c.Parties = append(c.Parties, in)
		index[in.Signature] = len(c.Parties) - 1
		counts.added++
	}
	return counts, skipped
}

// findParty returns the index of a party whose name matches in, or -1. Parties with
// different personal ids never match.
func (e *Engine) findParty(parties []models.CaseParty, in models.CaseParty) int {
	inAr := normalizers.NormalizeArabic(in.NameAr)
	inEn := normalizers.NormalizeEnglish(in.NameEn)
	for i, p := range parties {
		if p.PersonalID != "" && in.PersonalID != "" && p.PersonalID != in.PersonalID {
			continue
		}
		if e.scorer.NameMatch(inAr, normalizers.NormalizeArabic(p.NameAr)) ||
			e.scorer.NameMatch(inEn, normalizers.NormalizeEnglish(p.NameEn)) {
			return i
		}
	}
	return -1
}

// mergeParty fills the empty fields of dst from src and accumulates roles and sources. The
// signature is recomputed, so a party that gains a personal id is keyed by it.
func mergeParty(dst *models.CaseParty, src models.CaseParty) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&dst.NameAr, src.NameAr},
		{&dst.NameEn, src.NameEn},
		{&dst.PersonalID, src.PersonalID},
		{&dst.Nationality, src.Nationality},
		{&dst.Age, src.Age},
		{&dst.Gender, src.Gender},
		{&dst.Occupation, src.Occupation},
		{&dst.Phone, src.Phone},
		{&dst.Address, src.Address},
		{&dst.PartyID, src.PartyID},
	} {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			changed = true
		}
	}

	var ok bool
	if dst.Roles, ok = unionSorted(dst.Roles, src.Roles); ok {
		changed = true
	}
	if dst.SourceDocuments, ok = unionSorted(dst.SourceDocuments, src.SourceDocuments); ok {
		changed = true
	}
	if sig := signature.Party(dst.PersonalID, dst.NameAr, dst.NameEn); sig != dst.Signature {
		dst.Signature = sig
		changed = true
	}
	return changed
}

// mergeCharges folds incoming charges into c: exact signature first, then article or
// description similarity
func (e *Engine) mergeCharges(c *models.Case, incoming []models.CaseCharge) (entityCounts, []models.SkipRecord) {
	var counts entityCounts
	var skipped []models.SkipRecord

	index := make(map[string]int, len(c.Charges))
	for i, ch := range c.Charges {
		index[ch.Signature] = i
	}

	for _, in := range incoming {
		i, ok := index[in.Signature]
		if !ok {
			i = e.findCharge(c.Charges, in)
		}
		if i >= 0 {
			if mergeCharge(&c.Charges[i], in) {
				counts.updated++
			}
			index[c.Charges[i].Signature] = i
			continue
		}
		if len(c.Charges) >= e.limits.MaxCharges {
			skipped = append(skipped, models.SkipRecord{
				Kind:      "charge",
				Reason:    models.SkipCapReached,
				Signature: in.Signature,
				Detail:    fmt.Sprintf("case holds %d charges", len(c.Charges)),
			})
			continue
		}
		in.EntityID = fmt.Sprintf("C%03d", len(c.Charges)+1)
		in.Status = currentChargeStatus(in.Status, in.StatusHistory)
		c.Charges = append(c.Charges, in)
		index[in.Signature] = len(c.Charges) - 1
		counts.added++
	}
	return counts, skipped
}

func (e *Engine) findCharge(charges []models.CaseCharge, in models.CaseCharge) int {
	inArticle := signature.Charge(in.ArticleNumber, "", "")
	inAr := normalizers.NormalizeArabic(in.DescriptionAr)
	inEn := normalizers.NormalizeEnglish(in.DescriptionEn)
	for i, ch := range charges {
		article := signature.Charge(ch.ArticleNumber, "", "")
		if inArticle != "" && article != "" {
			if inArticle == article {
				return i
			}
			continue
		}
		if e.scorer.DescriptionMatch(inAr, normalizers.NormalizeArabic(ch.DescriptionAr)) ||
			e.scorer.DescriptionMatch(inEn, normalizers.NormalizeEnglish(ch.DescriptionEn)) {
			return i
		}
	}
	return -1
}

// mergeCharge fills empty fields, records every status observation and advances the current
// status. A charge never moves back to a lower status.
func mergeCharge(dst *models.CaseCharge, src models.CaseCharge) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&dst.ArticleNumber, src.ArticleNumber},
		{&dst.DescriptionAr, src.DescriptionAr},
		{&dst.DescriptionEn, src.DescriptionEn},
		{&dst.LawName, src.LawName},
		{&dst.LawYear, src.LawYear},
		{&dst.ChargeID, src.ChargeID},
	} {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			changed = true
		}
	}

	var ok bool
	if dst.StatusHistory, ok = appendStatusChanges(dst.StatusHistory, src.StatusHistory); ok {
		changed = true
	}
	observed := append(slices.Clone(src.StatusHistory), models.StatusChange{Status: string(src.Status)})
	if status := currentChargeStatus(dst.Status, observed); status != dst.Status {
		dst.Status = status
		changed = true
	}
	if dst.SourceDocuments, ok = unionSorted(dst.SourceDocuments, src.SourceDocuments); ok {
		changed = true
	}
	if sig := signature.Charge(dst.ArticleNumber, dst.DescriptionAr, dst.DescriptionEn); sig != dst.Signature {
		dst.Signature = sig
		changed = true
	}
	return changed
}

// currentChargeStatus returns the most advanced of current and the observed statuses
func currentChargeStatus(current models.ChargeStatus, observed []models.StatusChange) models.ChargeStatus {
	for _, change := range observed {
		if status := models.ParseChargeStatus(change.Status); status.Advances(current) {
			current = status
		}
	}
	return current
}

// mergeEvidenceItems folds incoming evidence into c: exact signature first, then a
// description match of the same type
func (e *Engine) mergeEvidenceItems(c *models.Case, incoming []models.CaseEvidence) (entityCounts, []models.SkipRecord) {
	var counts entityCounts
	var skipped []models.SkipRecord

	index := make(map[string]int, len(c.Evidence))
	for i, ev := range c.Evidence {
		index[ev.Signature] = i
	}

	for _, in := range incoming {
		i, ok := index[in.Signature]
		if !ok {
			i = e.findEvidence(c.Evidence, in)
		}
		if i >= 0 {
			if mergeEvidence(&c.Evidence[i], in) {
				counts.updated++
			}
			index[c.Evidence[i].Signature] = i
			continue
		}
		if len(c.Evidence) >= e.limits.MaxEvidence {
			skipped = append(skipped, models.SkipRecord{
				Kind:      "evidence",
				Reason:    models.SkipCapReached,
				Signature: in.Signature,
				Detail:    fmt.Sprintf("case holds %d evidence items", len(c.Evidence)),
			})
			continue
		}
		in.EntityID = fmt.Sprintf("E%03d", len(c.Evidence)+1)
		c.Evidence = append(c.Evidence, in)
		index[in.Signature] = len(c.Evidence) - 1
		counts.added++
	}
	return counts, skipped
}

func (e *Engine) findEvidence(items []models.CaseEvidence, in models.CaseEvidence) int {
	inType := normalizers.ApplyChain(in.Type, normalizers.LabelChain...)
	inAr := normalizers.NormalizeArabic(in.DescriptionAr)
	inEn := normalizers.NormalizeEnglish(in.DescriptionEn)
	for i, ev := range items {
		evType := normalizers.ApplyChain(ev.Type, normalizers.LabelChain...)
		if inType != "" && evType != "" && inType != evType {
			continue
		}
		if e.scorer.EvidenceMatch(inAr, normalizers.NormalizeArabic(ev.DescriptionAr)) ||
			e.scorer.EvidenceMatch(inEn, normalizers.NormalizeEnglish(ev.DescriptionEn)) {
			return i
		}
	}
	return -1
}

func mergeEvidence(dst *models.CaseEvidence, src models.CaseEvidence) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&dst.Type, src.Type},
		{&dst.DescriptionAr, src.DescriptionAr},
		{&dst.DescriptionEn, src.DescriptionEn},
		{&dst.CollectedDate, src.CollectedDate},
		{&dst.Location, src.Location},
		{&dst.EvidenceID, src.EvidenceID},
	} {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			changed = true
		}
	}

	var ok bool
	if dst.SourceDocuments, ok = unionSorted(dst.SourceDocuments, src.SourceDocuments); ok {
		changed = true
	}
	if sig := signature.Evidence(dst.Type, dst.DescriptionAr, dst.DescriptionEn); sig != dst.Signature {
		dst.Signature = sig
		changed = true
	}
	return changed
}

// unionSorted adds the values of src missing from dst and sorts the result
func unionSorted(dst, src []string) ([]string, bool) {
	changed := false
	for _, v := range src {
		if v != "" && !slices.Contains(dst, v) {
			dst = append(dst, v)
			changed = true
		}
	}
	if changed {
		sort.Strings(dst)
	}
	return dst, changed
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// scorerOrDefault keeps a zero Engine usable in tests
func scorerOrDefault(s *matching.Scorer) *matching.Scorer {
	if s == nil {
		return matching.NewScorer(matching.Thresholds{})
	}
	return s
}
