package matching

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/signature"
)

const (
	strongFactor = 0.95
	mediumFactor = 0.80
	weakFactor   = 0.70

	// strongShortCircuit ends scoring as soon as strong signals reach it
	strongShortCircuit = 0.9
)

var (
	// start-like dates compared for the party-name+date signal
	proximityDateKeys = []string{"incident", "report_filed", "investigation", "first_hearing"}
	// locations compared for the charge+location signal
	sharedLocationKeys = []string{"court", "police_station", "prosecution_office"}
)

// Weights of each matching signal
type Weights struct {
	CaseNumber       float64
	PersonalID       float64
	PartyName        float64
	Charge           float64
	Date             float64
	Location         float64
	VectorSimilarity float64
}

// Options configures confidence scoring
type Options struct {
	Weights             Weights
	MinConfidence       float64
	SimilarityThreshold float64
	DateWindowDays      int
	Thresholds          Thresholds
}

// DefaultOptions returns the default linking parameters
func DefaultOptions() Options {
	return Options{
		Weights: Weights{
			CaseNumber:       1.0,
			PersonalID:       1.0,
			PartyName:        0.8,
			Charge:           0.7,
			Date:             0.6,
			Location:         0.5,
			VectorSimilarity: 0.4,
		},
		MinConfidence:       0.7,
		SimilarityThreshold: 0.8,
		DateWindowDays:      30,
		Thresholds: Thresholds{
			Name:        DefaultNameThreshold,
			Description: DefaultDescriptionThreshold,
			Evidence:    DefaultEvidenceThreshold,
		},
	}
}

// Params renders the options as the linking parameters recorded on document links
func (o Options) Params() map[string]float64 {
	return map[string]float64{
		"case_number_weight":       o.Weights.CaseNumber,
		"personal_id_weight":       o.Weights.PersonalID,
		"party_name_weight":        o.Weights.PartyName,
		"charge_weight":            o.Weights.Charge,
		"date_weight":              o.Weights.Date,
		"location_weight":          o.Weights.Location,
		"vector_similarity_weight": o.Weights.VectorSimilarity,
		"min_confidence":           o.MinConfidence,
		"similarity_threshold":     o.SimilarityThreshold,
		"date_window_days":         float64(o.DateWindowDays),
	}
}

// ConfidenceScorer scores a candidate case against an entity bag
type ConfidenceScorer struct {
	scorer *Scorer
	opts   Options
}

// NewConfidenceScorer creates a scorer with the given options
func NewConfidenceScorer(opts Options) *ConfidenceScorer {
	return &ConfidenceScorer{
		scorer: NewScorer(opts.Thresholds),
		opts:   opts,
	}
}

// Options returns the scoring options
func (c *ConfidenceScorer) Options() Options {
	return c.opts
}

// Scorer returns the underlying string scorer
func (c *ConfidenceScorer) Scorer() *Scorer {
	return c.scorer
}

// Accepts reports whether score clears the minimum confidence
func (c *ConfidenceScorer) Accepts(score float64) bool {
	return score >= c.opts.MinConfidence
}

// Score returns the confidence in [0,1] that bag belongs to candidate and the signals that
// fired. vectorSim is the best embedding similarity between the bag and the candidate's
// linked documents, or 0 when unknown.
//
// Strong signals short-circuit once they reach 0.9. Medium signals each need two facts to
// agree. The embedding signal only counts when nothing else fired.
func (c *ConfidenceScorer) Score(candidate *models.Case, bag *models.EntityBag, vectorSim float64) (float64, []string) {
	if candidate == nil || bag == nil {
		return 0, nil
	}

	w := c.opts.Weights
	total := 0.0
	var signals []string

	if c.ReferenceOverlap(candidate, bag) {
		total += strongFactor * w.CaseNumber
		signals = append(signals, models.SignalCaseNumber)
		if total >= strongShortCircuit {
			return clamp(total), signals
		}
	}

	if c.PersonalIDOverlap(candidate, bag) {
		total += strongFactor * w.PersonalID
		signals = append(signals, models.SignalPersonalID)
		if total >= strongShortCircuit {
			return clamp(total), signals
		}
	}

	nameMatch := c.partyNameOverlap(candidate, bag)
	chargeMatch := c.chargeOverlap(candidate, bag)

	if nameMatch && c.dateWithinWindow(candidate, bag) {
		total += mediumFactor * w.PartyName * w.Date
		signals = append(signals, models.SignalPartyNameDate)
	}

	if chargeMatch && c.locationOverlap(candidate, bag) {
		total += mediumFactor * w.Charge * w.Location
		signals = append(signals, models.SignalChargeLocation)
	}

	if nameMatch && chargeMatch {
		total += mediumFactor * w.PartyName * w.Charge
		signals = append(signals, models.SignalPartyNameCharge)
	}

	if len(signals) == 0 && vectorSim > 0 && vectorSim >= c.opts.SimilarityThreshold {
		total += weakFactor * w.VectorSimilarity
		signals = append(signals, models.SignalVectorSimilarity)
	}

	return clamp(total), signals
}

// ReferenceOverlap reports whether the bag names one of the candidate's reference numbers,
// either for the same kind after canonicalization or through any shared rendering.
func (c *ConfidenceScorer) ReferenceOverlap(candidate *models.Case, bag *models.EntityBag) bool {
	for kind, raw := range bag.CaseNumbers.ReferenceValues() {
		if stored := candidate.CaseNumbers.Get(kind); stored != "" && stored == normalizers.NormalizeReferenceNumber(raw) {
			return true
		}
	}

	caseRefs := signature.CaseReferences(candidate.CaseNumbers)
	if len(caseRefs) == 0 {
		return false
	}
	return intersects(caseRefs, signature.BagReferences(bag.CaseNumbers))
}

// PersonalIDOverlap reports whether any party of the bag shares a personal id with a party
// of the candidate.
func (c *ConfidenceScorer) PersonalIDOverlap(candidate *models.Case, bag *models.EntityBag) bool {
	caseIDs := make([]string, 0, len(candidate.Parties))
	for _, p := range candidate.Parties {
		caseIDs = append(caseIDs, p.PersonalID)
	}
	bagIDs := make([]string, 0, len(bag.Parties))
	for _, p := range bag.Parties {
		bagIDs = append(bagIDs, p.PersonalID.String())
	}
	return intersects(signature.PersonalIDs(caseIDs...), signature.PersonalIDs(bagIDs...))
}

func (c *ConfidenceScorer) partyNameOverlap(candidate *models.Case, bag *models.EntityBag) bool {
	var caseNames []string
	for _, p := range candidate.Parties {
		caseNames = appendNames(caseNames, p.NameAr, p.NameEn)
	}
	if len(caseNames) == 0 {
		return false
	}

	for _, p := range bag.Parties {
		for _, name := range appendNames(nil, p.NameAr.String(), p.NameEn.String()) {
			for _, existing := range caseNames {
				if c.scorer.NameMatch(name, existing) {
					return true
				}
			}
		}
	}
	return false
}

func (c *ConfidenceScorer) chargeOverlap(candidate *models.Case, bag *models.EntityBag) bool {
	for _, nc := range bag.Charges {
		article := signature.Charge(nc.ArticleNumber.String(), "", "")
		descAr := normalizers.NormalizeArabic(nc.DescriptionAr.String())
		descEn := normalizers.NormalizeEnglish(nc.DescriptionEn.String())

		for _, ec := range candidate.Charges {
			if article != "" && article == signature.Charge(ec.ArticleNumber, "", "") {
				return true
			}
			if c.scorer.DescriptionMatch(descAr, normalizers.NormalizeArabic(ec.DescriptionAr)) {
				return true
			}
			if c.scorer.DescriptionMatch(descEn, normalizers.NormalizeEnglish(ec.DescriptionEn)) {
				return true
			}
		}
	}
	return false
}

func (c *ConfidenceScorer) dateWithinWindow(candidate *models.Case, bag *models.EntityBag) bool {
	for _, key := range proximityDateKeys {
		existing, incoming := candidate.KeyDates[key], bag.Dates[key]
		if existing != "" && incoming != "" && c.scorer.WithinDays(existing, incoming, c.opts.DateWindowDays) {
			return true
		}
	}
	return false
}

func (c *ConfidenceScorer) locationOverlap(candidate *models.Case, bag *models.EntityBag) bool {
	for _, key := range sharedLocationKeys {
		existing := normalizers.NormalizeArabic(candidate.Locations[key])
		incoming := normalizers.NormalizeArabic(bag.Locations[key])
		if existing != "" && existing == incoming {
			return true
		}
	}
	return false
}

func appendNames(names []string, nameAr, nameEn string) []string {
	if ar := normalizers.NormalizeArabic(nameAr); ar != "" {
		names = append(names, ar)
	}
	if en := normalizers.NormalizeEnglish(nameEn); en != "" {
		names = append(names, en)
	}
	return names
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[strings.TrimSpace(v)]; ok {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
