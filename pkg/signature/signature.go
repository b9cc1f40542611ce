// Package signature builds the deterministic keys used to deduplicate parties, charges and
// evidence and to look up candidate cases.
package signature

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Lookup key prefixes stored in the candidate index
const (
	ReferenceKeyPrefix  = "ref:"
	PersonalIDKeyPrefix = "pid:"
)

// Party returns the dedup signature of a party: personal id, then Arabic name, then English
// name. An empty result means the party cannot be deduplicated reliably.
func Party(personalID, nameAr, nameEn string) string {
	if id := PersonalID(personalID); id != "" {
		return "id:" + id
	}
	if ar := normalizers.NormalizeArabic(nameAr); ar != "" {
		return "ar:" + ar
	}
	if en := normalizers.ApplyChain(nameEn, normalizers.LabelChain...); en != "" {
		return "en:" + en
	}
	return ""
}

// Charge returns the dedup signature of a charge: article number, then Arabic description,
// then English description.
func Charge(article, descriptionAr, descriptionEn string) string {
	if art := normalizers.ApplyChain(article, normalizers.NumberChain...); art != "" {
		return "art:" + art
	}
	if ar := normalizers.NormalizeArabic(descriptionAr); ar != "" {
		return "ar:" + ar
	}
	if en := normalizers.NormalizeEnglish(descriptionEn); en != "" {
		return "en:" + en
	}
	return ""
}

// Evidence returns the dedup signature of an evidence item: type with description, then
// description alone.
func Evidence(evidenceType, descriptionAr, descriptionEn string) string {
	t := normalizers.ApplyChain(evidenceType, normalizers.LabelChain...)
	ar := normalizers.NormalizeArabic(descriptionAr)
	en := normalizers.NormalizeEnglish(descriptionEn)

	switch {
	case t != "" && ar != "":
		return t + ":" + ar
	case t != "" && en != "":
		return t + ":" + en
	case ar != "":
		return "desc_ar:" + ar
	case en != "":
		return "desc_en:" + en
	}
	return ""
}

// BagParty is Party over an extracted party
func BagParty(p models.BagParty) string {
	return Party(p.PersonalID.String(), p.NameAr.String(), p.NameEn.String())
}

// BagCharge is Charge over an extracted charge
func BagCharge(c models.BagCharge) string {
	return Charge(c.ArticleNumber.String(), c.DescriptionAr.String(), c.DescriptionEn.String())
}

// BagEvidence is Evidence over an extracted evidence item
func BagEvidence(e models.BagEvidence) string {
	return Evidence(e.Type.String(), e.DescriptionAr.String(), e.DescriptionEn.String())
}

// PersonalID canonicalizes a personal id for comparison
func PersonalID(id string) string {
	return strings.TrimSpace(normalizers.FoldDigits(id))
}

// IdentityReferences is the union of every rendering of the given references, without the
// bare leading digit group of multi-group references. A bare group such as a year is shared
// by unrelated cases, so it never identifies a case.
func IdentityReferences(values ...string) []string {
	seen := make(map[string]struct{})
	for _, v := range values {
		lead, multi := normalizers.LeadingDigitGroup(v)
		for _, variation := range normalizers.AllReferenceVariations(v) {
			if multi && variation == lead {
				continue
			}
			seen[variation] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// CaseReferences returns the reference renderings a case is identified by: every rendering
// of its stored numbers plus its recorded variations.
func CaseReferences(numbers models.CaseNumbers) []string {
	return union(IdentityReferences(referenceValues(numbers.Values())...), numbers.Variations)
}

// BagReferences returns the reference renderings derivable from an entity bag, including the
// variations reported by the extractor. Merged cases record these as their variations.
func BagReferences(numbers models.BagCaseNumbers) []string {
	return IdentityReferences(bagReferenceValues(numbers)...)
}

// PersonalIDs returns the canonical personal ids of the given values, deduplicated
func PersonalIDs(ids ...string) []string {
	seen := make(map[string]struct{})
	for _, id := range ids {
		if id = PersonalID(id); id != "" {
			seen[id] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// BagLookupKeys returns every candidate-index key derivable from an entity bag
func BagLookupKeys(bag *models.EntityBag) []string {
	if bag == nil {
		return nil
	}
	var keys []string
	for _, ref := range BagReferences(bag.CaseNumbers) {
		keys = append(keys, ReferenceKeyPrefix+ref)
	}
	ids := make([]string, 0, len(bag.Parties))
	for _, p := range bag.Parties {
		ids = append(ids, p.PersonalID.String())
	}
	for _, id := range PersonalIDs(ids...) {
		keys = append(keys, PersonalIDKeyPrefix+id)
	}
	return keys
}

// CaseLookupKeys returns the candidate-index keys a case is reachable by
func CaseLookupKeys(c *models.Case) []string {
	if c == nil {
		return nil
	}
	var keys []string
	for _, ref := range CaseReferences(c.CaseNumbers) {
		keys = append(keys, ReferenceKeyPrefix+ref)
	}
	ids := make([]string, 0, len(c.Parties))
	for _, p := range c.Parties {
		ids = append(ids, p.PersonalID)
	}
	for _, id := range PersonalIDs(ids...) {
		keys = append(keys, PersonalIDKeyPrefix+id)
	}
	return keys
}

func referenceValues(values map[models.ReferenceKind]string) []string {
	out := make([]string, 0, len(values))
	for _, kind := range models.ReferenceKinds {
		if v, ok := values[kind]; ok {
			out = append(out, v)
		}
	}
	return out
}

func bagReferenceValues(numbers models.BagCaseNumbers) []string {
	values := referenceValues(numbers.ReferenceValues())
	for _, v := range numbers.Variations {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if v = strings.TrimSpace(v); v != "" {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
