package merging

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/signature"
)

// Strategy decides how a stored scalar value and an incoming one combine
type Strategy string

const (
	// StrategyEarliest keeps the earliest date
	StrategyEarliest Strategy = "earliest"
	// StrategyLatest keeps the latest date
	StrategyLatest Strategy = "latest"
	// StrategyFillEmpty keeps the stored value and only fills a gap
	StrategyFillEmpty Strategy = "fill_empty"
	// StrategyAdvance moves a case status forward only
	StrategyAdvance Strategy = "advance"
)

var (
	startDateKeys = map[string]bool{
		"incident":      true,
		"report_filed":  true,
		"investigation": true,
		"case_transfer": true,
		"first_hearing": true,
	}
	endDateKeys = map[string]bool{
		"judgment":        true,
		"appeal_deadline": true,
	}
)

// DateStrategy returns the strategy for a key date
func DateStrategy(key string) Strategy {
	switch {
	case startDateKeys[key]:
		return StrategyEarliest
	case endDateKeys[key]:
		return StrategyLatest
	default:
		return StrategyFillEmpty
	}
}

// FieldMerger handles field-level merge logic for case records
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// MergeValue combines a stored and an incoming value, reporting whether the stored value changes
func (m *FieldMerger) MergeValue(strategy Strategy, existing, incoming string) (string, bool) {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" || incoming == existing {
		return existing, false
	}
	if existing == "" {
		return incoming, true
	}

	switch strategy {
	case StrategyEarliest:
		if matching.CompareDates(incoming, existing) < 0 {
			return incoming, true
		}
	case StrategyLatest:
		if matching.CompareDates(incoming, existing) > 0 {
			return incoming, true
		}
	case StrategyAdvance:
		if models.CaseStatusAdvances(existing, incoming) {
			return incoming, true
		}
	}
	return existing, false
}

// MergeDates folds incoming key dates into dates
func (m *FieldMerger) MergeDates(dates map[string]string, incoming map[string]string) (map[string]string, bool) {
	changed := false
	for _, key := range sortedKeys(incoming) {
		if dates == nil {
			dates = make(map[string]string)
		}
		merged, ok := m.MergeValue(DateStrategy(key), dates[key], incoming[key])
		if ok {
			dates[key] = merged
			changed = true
		}
	}
	return dates, changed
}

// MergeLocations fills missing locations
func (m *FieldMerger) MergeLocations(locations map[string]string, incoming map[string]string) (map[string]string, bool) {
	changed := false
	for _, key := range sortedKeys(incoming) {
		if locations == nil {
			locations = make(map[string]string)
		}
		merged, ok := m.MergeValue(StrategyFillEmpty, locations[key], incoming[key])
		if ok {
			locations[key] = merged
			changed = true
		}
	}
	return locations, changed
}

// MergeTimeline adds entries not yet present and keeps the timeline in date order
func (m *FieldMerger) MergeTimeline(timeline []models.TimelineEntry, incoming []models.TimelineEntry) ([]models.TimelineEntry, bool) {
	seen := make(map[models.TimelineEntry]struct{}, len(timeline))
	for _, e := range timeline {
		seen[e] = struct{}{}
	}

	changed := false
	for _, e := range incoming {
		if e.Date == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		timeline = append(timeline, e)
		changed = true
	}

	if changed {
		sort.SliceStable(timeline, func(i, j int) bool {
			a, b := timeline[i], timeline[j]
			if c := matching.CompareDates(a.Date, b.Date); c != 0 {
				return c < 0
			}
			if a.EventType != b.EventType {
				return a.EventType < b.EventType
			}
			return a.SourceDocument < b.SourceDocument
		})
	}
	return timeline, changed
}

// TimelineFromDates renders key dates as timeline entries of one source document
func TimelineFromDates(dates map[string]string, source string) []models.TimelineEntry {
	entries := make([]models.TimelineEntry, 0, len(dates))
	for _, key := range sortedKeys(dates) {
		entries = append(entries, models.TimelineEntry{Date: dates[key], EventType: key, SourceDocument: source})
	}
	return entries
}

// MergeJudgments appends judgments not recorded yet, most recent first. Judgments are
// events: two rulings with identical text from different documents are both kept.
func (m *FieldMerger) MergeJudgments(judgments []models.Judgment, incoming []models.Judgment) ([]models.Judgment, bool) {
	seen := make(map[string]struct{}, len(judgments))
	for _, j := range judgments {
		seen[judgmentKey(j)] = struct{}{}
	}

	changed := false
	for _, j := range incoming {
		key := judgmentKey(j)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		judgments = append(judgments, j)
		changed = true
	}

	if changed {
		sort.SliceStable(judgments, func(i, j int) bool {
			if c := matching.CompareDates(judgments[i].JudgmentDate.String(), judgments[j].JudgmentDate.String()); c != 0 {
				return c > 0
			}
			return judgmentKey(judgments[i]) < judgmentKey(judgments[j])
		})
	}
	return judgments, changed
}

// MergeFinancial appends new fines and damages and keeps the highest bail
func (m *FieldMerger) MergeFinancial(financial models.Financial, incoming models.Financial) (models.Financial, bool) {
	var finesChanged, damagesChanged bool
	financial.Fines, finesChanged = appendMonetary(financial.Fines, incoming.Fines)
	financial.Damages, damagesChanged = appendMonetary(financial.Damages, incoming.Damages)
	changed := finesChanged || damagesChanged

	if incoming.Bail != nil && (financial.Bail == nil || *incoming.Bail > *financial.Bail) {
		bail := *incoming.Bail
		financial.Bail = &bail
		changed = true
	}
	return financial, changed
}

// MergeCaseStatus records every reported status and advances the current one
func (m *FieldMerger) MergeCaseStatus(status models.CaseStatus, incoming models.CaseStatus) (models.CaseStatus, bool) {
	changed := false

	var historyChanged bool
	status.History, historyChanged = appendStatusChanges(status.History, incoming.History)
	changed = changed || historyChanged

	for _, change := range incoming.History {
		if current, ok := m.MergeValue(StrategyAdvance, status.Current, change.Status); ok {
			status.Current = current
			status.StatusDate = change.Date
			changed = true
		}
	}
	if current, ok := m.MergeValue(StrategyAdvance, status.Current, incoming.Current); ok {
		status.Current = current
		status.StatusDate = incoming.StatusDate
		changed = true
	}

	var ok bool
	if status.CaseType, ok = m.MergeValue(StrategyFillEmpty, status.CaseType, incoming.CaseType); ok {
		changed = true
	}
	if status.SummaryAr, ok = m.MergeValue(StrategyFillEmpty, status.SummaryAr, incoming.SummaryAr); ok {
		changed = true
	}
	return status, changed
}

// MergeLegalReferences appends references not yet cited, keyed by article and law year
func (m *FieldMerger) MergeLegalReferences(refs []models.LegalReference, incoming []models.LegalReference) ([]models.LegalReference, bool) {
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		seen[legalReferenceKey(r)] = struct{}{}
	}

	changed := false
	for _, r := range incoming {
		key := legalReferenceKey(r)
		if key == "|" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, r)
		changed = true
	}
	return refs, changed
}

func appendMonetary(items []models.MonetaryItem, incoming []models.MonetaryItem) ([]models.MonetaryItem, bool) {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[monetaryKey(it)] = struct{}{}
	}
	changed := false
	for _, it := range incoming {
		key := monetaryKey(it)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, it)
		changed = true
	}
	return items, changed
}

// appendStatusChanges appends observations not recorded yet, keyed by status and source
func appendStatusChanges(history []models.StatusChange, incoming []models.StatusChange) ([]models.StatusChange, bool) {
	changed := false
	for _, change := range incoming {
		if change.Status == "" {
			continue
		}
		dup := false
		for _, existing := range history {
			if existing.Status == change.Status && existing.SourceDocument == change.SourceDocument {
				dup = true
				break
			}
		}
		if !dup {
			history = append(history, change)
			changed = true
		}
	}
	return history, changed
}

func judgmentKey(j models.Judgment) string {
	key, err := signature.Fingerprint(j, nil)
	if err != nil {
		return j.SourceDocument + "|" + j.JudgmentDate.String() + "|" + j.Verdict.String()
	}
	return key
}

func monetaryKey(it models.MonetaryItem) string {
	key, err := signature.Fingerprint(it, nil)
	if err != nil {
		return it.SourceDocument + "|" + it.Description.String()
	}
	return key
}

func legalReferenceKey(r models.LegalReference) string {
	return normalizers.ApplyChain(r.Article.String(), normalizers.NumberChain...) + "|" +
		normalizers.ApplyChain(r.LawYear.String(), normalizers.NumberChain...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
