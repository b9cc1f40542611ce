package resolver

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Completeness weights of the facts a case carries
const (
	courtNumberPoints       = 10
	prosecutionNumberPoints = 8
	policeNumberPoints      = 6
	internalNumberPoints    = 4
	notOrphanPoints         = 5
	advancedStatusPoints    = 3
	mostRecentPoints        = 1
)

// Completeness scores how complete a case record is. mostRecent marks the case updated last
// among the cases being compared.
func Completeness(c *models.Case, mostRecent bool) int {
	if c == nil {
		return 0
	}
	score := 0
	if c.CaseNumbers.Court != "" {
		score += courtNumberPoints
	}
	if c.CaseNumbers.Prosecution != "" {
		score += prosecutionNumberPoints
	}
	if c.CaseNumbers.Police != "" {
		score += policeNumberPoints
	}
	if c.CaseNumbers.Internal != "" {
		score += internalNumberPoints
	}
	if !c.IsOrphan {
		score += notOrphanPoints
	}
	if models.IsAdvancedStatus(c.CaseStatus.Current) {
		score += advancedStatusPoints
	}
	if mostRecent {
		score += mostRecentPoints
	}
	return score
}

// PickPrimary orders cases most complete first and returns their completeness scores.
// Ties go to the earliest created case, then the lowest id.
func PickPrimary(cases []*models.Case) ([]*models.Case, map[string]int) {
	scores := make(map[string]int, len(cases))
	if len(cases) == 0 {
		return nil, scores
	}

	var latest *models.Case
	for _, c := range cases {
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
		}
	}
	for _, c := range cases {
		scores[c.ID] = Completeness(c, c == latest)
	}

	ordered := append([]*models.Case(nil), cases...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if scores[a.ID] != scores[b.ID] {
			return scores[a.ID] > scores[b.ID]
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ordered, scores
}
