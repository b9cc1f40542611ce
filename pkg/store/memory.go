package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/signature"
)

// Memory is an in-process Store. It enforces the same uniqueness rules as the Postgres store
// and hands out copies, so callers never share state with it.
type Memory struct {
	mu sync.RWMutex

	cases    map[string]*models.Case
	index    map[string]map[string]struct{} // lookup key -> case ids
	caseKeys map[string][]string            // case id -> indexed keys

	parties  map[string]*models.Party
	charges  map[string]*models.Charge
	evidence map[string]*models.Evidence

	partyLinks    map[string]struct{}
	chargeLinks   map[string]models.ChargeStatus
	evidenceLinks map[string]struct{}

	documents  map[string]*models.DocumentLink // document id|case id
	candidates map[string]*models.MergeCandidate

	now func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		cases:         make(map[string]*models.Case),
		index:         make(map[string]map[string]struct{}),
		caseKeys:      make(map[string][]string),
		parties:       make(map[string]*models.Party),
		charges:       make(map[string]*models.Charge),
		evidence:      make(map[string]*models.Evidence),
		partyLinks:    make(map[string]struct{}),
		chargeLinks:   make(map[string]models.ChargeStatus),
		evidenceLinks: make(map[string]struct{}),
		documents:     make(map[string]*models.DocumentLink),
		candidates:    make(map[string]*models.MergeCandidate),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetCase returns a copy of the case
func (m *Memory) GetCase(ctx context.Context, id string) (*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, NotFound("case %s not found", id)
	}
	return c.Clone(), nil
}

// CreateCase stores a new case, assigning an id when none is set
func (m *Memory) CreateCase(ctx context.Context, c *models.Case) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := c.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if _, exists := m.cases[stored.ID]; exists {
		return nil, Conflict("case %s already exists", stored.ID)
	}
	if stored.State == "" {
		stored.State = models.CaseStateActive
	}
	if err := m.checkUnique(stored); err != nil {
		return nil, err
	}

	now := m.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Version = 1

	m.cases[stored.ID] = stored
	m.reindex(stored)
	return stored.Clone(), nil
}

// UpdateCase replaces the stored case and bumps its version
func (m *Memory) UpdateCase(ctx context.Context, c *models.Case) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.cases[c.ID]
	if !ok {
		return nil, NotFound("case %s not found", c.ID)
	}

	stored := c.Clone()
	if stored.State == "" {
		stored.State = models.CaseStateActive
	}
	if err := m.checkUnique(stored); err != nil {
		return nil, err
	}
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = m.now()
	stored.Version = existing.Version + 1

	m.cases[stored.ID] = stored
	m.reindex(stored)
	return stored.Clone(), nil
}

// FindCasesBySignatures returns active cases reachable by any key, ordered by the number of
// keys they share with the query, then by creation time
func (m *Memory) FindCasesBySignatures(ctx context.Context, keys []string, limit int) ([]*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make(map[string]int)
	for _, key := range keys {
		for id := range m.index[key] {
			hits[id]++
		}
	}

	ids := slices.Collect(maps.Keys(hits))
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if hits[a] != hits[b] {
			return hits[a] > hits[b]
		}
		ca, cb := m.cases[a], m.cases[b]
		if !ca.CreatedAt.Equal(cb.CreatedAt) {
			return ca.CreatedAt.Before(cb.CreatedAt)
		}
		return a < b
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*models.Case, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.cases[id].Clone())
	}
	return out, nil
}

// FindCaseByReference returns the active case owning the canonical value for kind
func (m *Memory) FindCaseByReference(ctx context.Context, kind models.ReferenceKind, value string) (*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if owner := m.referenceOwner(kind, value, ""); owner != nil {
		return owner.Clone(), nil
	}
	return nil, NotFound("no active case with %s number %s", kind, value)
}

// GetOrCreateParty returns the party with p's signature, filling its empty fields from p
func (m *Memory) GetOrCreateParty(ctx context.Context, p models.Party) (*models.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.parties[p.Signature]; ok && p.Signature != "" {
		if models.FillParty(existing, p) {
			existing.UpdatedAt = m.now()
		}
		cp := *existing
		return &cp, nil
	}

	stored := p
	stored.ID = uuid.New().String()
	stored.CreatedAt = m.now()
	stored.UpdatedAt = stored.CreatedAt
	m.parties[m.entityKey(stored.Signature, stored.ID)] = &stored
	cp := stored
	return &cp, nil
}

// GetOrCreateCharge returns the charge with c's signature, filling its empty fields from c
func (m *Memory) GetOrCreateCharge(ctx context.Context, c models.Charge) (*models.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.charges[c.Signature]; ok && c.Signature != "" {
		if models.FillCharge(existing, c) {
			existing.UpdatedAt = m.now()
		}
		cp := *existing
		return &cp, nil
	}

	stored := c
	stored.ID = uuid.New().String()
	stored.CreatedAt = m.now()
	stored.UpdatedAt = stored.CreatedAt
	m.charges[m.entityKey(stored.Signature, stored.ID)] = &stored
	cp := stored
	return &cp, nil
}

// GetOrCreateEvidence returns the evidence item with e's signature, filling its empty fields
func (m *Memory) GetOrCreateEvidence(ctx context.Context, e models.Evidence) (*models.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.evidence[e.Signature]; ok && e.Signature != "" {
		if models.FillEvidence(existing, e) {
			existing.UpdatedAt = m.now()
		}
		cp := *existing
		return &cp, nil
	}

	stored := e
	stored.ID = uuid.New().String()
	stored.CreatedAt = m.now()
	stored.UpdatedAt = stored.CreatedAt
	m.evidence[m.entityKey(stored.Signature, stored.ID)] = &stored
	cp := stored
	return &cp, nil
}

// LinkPartyToCase records the party in role on the case
func (m *Memory) LinkPartyToCase(ctx context.Context, caseID, partyID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partyLinks[linkKey(caseID, partyID, role)] = struct{}{}
	return nil
}

// LinkChargeToCase records the charge on the case, keeping the most advanced status
func (m *Memory) LinkChargeToCase(ctx context.Context, caseID, chargeID string, status models.ChargeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := linkKey(caseID, chargeID)
	if current, ok := m.chargeLinks[key]; !ok || status.Advances(current) {
		m.chargeLinks[key] = status
	}
	return nil
}

// LinkEvidenceToCase records the evidence item on the case
func (m *Memory) LinkEvidenceToCase(ctx context.Context, caseID, evidenceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evidenceLinks[linkKey(caseID, evidenceID)] = struct{}{}
	return nil
}

// PartyRoles returns the roles recorded for a party on a case
func (m *Memory) PartyRoles(caseID, partyID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := linkKey(caseID, partyID) + "|"
	var roles []string
	for key := range m.partyLinks {
		if role, ok := strings.CutPrefix(key, prefix); ok {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles
}

// ChargeStatus returns the status linked for a charge on a case
func (m *Memory) ChargeStatus(caseID, chargeID string) (models.ChargeStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.chargeLinks[linkKey(caseID, chargeID)]
	return status, ok
}

// PartyCount returns the number of normalized party records
func (m *Memory) PartyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.parties)
}

// GetDocumentLink returns the link of document to case
func (m *Memory) GetDocumentLink(ctx context.Context, documentID, caseID string) (*models.DocumentLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.documents[linkKey(documentID, caseID)]
	if !ok {
		return nil, NotFound("document %s is not linked to case %s", documentID, caseID)
	}
	return cloneLink(link), nil
}

// UpsertDocumentLink creates or refreshes the link, keeping its creation time
func (m *Memory) UpsertDocumentLink(ctx context.Context, link *models.DocumentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := linkKey(link.DocumentID, link.CaseID)
	stored := cloneLink(link)
	now := m.now()
	stored.CreatedAt = now
	if existing, ok := m.documents[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	stored.UpdatedAt = now
	m.documents[key] = stored
	return nil
}

// FindSimilarDocuments compares embedding against every stored document embedding
func (m *Memory) FindSimilarDocuments(ctx context.Context, embedding []float64, threshold float64, limit int) ([]models.SimilarDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(embedding) == 0 {
		return nil, nil
	}

	var out []models.SimilarDocument
	for _, link := range m.documents {
		if c, ok := m.cases[link.CaseID]; !ok || !c.IsActive() {
			continue
		}
		sim := matching.Cosine(embedding, link.Embedding)
		if sim > 0 && sim >= threshold {
			out = append(out, models.SimilarDocument{DocumentID: link.DocumentID, CaseID: link.CaseID, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDocumentLinks returns the links of a case in creation order
func (m *Memory) ListDocumentLinks(ctx context.Context, caseID string) ([]*models.DocumentLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.DocumentLink
	for _, link := range m.documents {
		if link.CaseID == caseID {
			out = append(out, cloneLink(link))
		}
	}
	sortLinks(out)
	return out, nil
}

// RelinkDocuments moves the documents of one case to another. A document already linked to
// the target keeps its existing link.
func (m *Memory) RelinkDocuments(ctx context.Context, fromCaseID, toCaseID string, confidence float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved := 0
	now := m.now()
	for key, link := range m.documents {
		if link.CaseID != fromCaseID {
			continue
		}
		delete(m.documents, key)
		target := linkKey(link.DocumentID, toCaseID)
		if _, exists := m.documents[target]; exists {
			continue
		}
		link.CaseID = toCaseID
		link.Confidence = confidence
		link.UpdatedAt = now
		m.documents[target] = link
		moved++
	}
	return moved, nil
}

// FlagDuplicates records merge candidates, refreshing a pending candidate for the same pair
func (m *Memory) FlagDuplicates(ctx context.Context, candidates []*models.MergeCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, candidate := range candidates {
		if existing := m.pendingCandidate(candidate.PrimaryCaseID, candidate.DuplicateCaseID); existing != nil {
			existing.DocumentID = candidate.DocumentID
			existing.Reason = candidate.Reason
			existing.Confidence = candidate.Confidence
			existing.PrimaryScore = candidate.PrimaryScore
			existing.DuplicateScore = candidate.DuplicateScore
			existing.UpdatedAt = now
			continue
		}
		stored := *candidate
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		stored.Status = models.MergeCandidatePending
		stored.CreatedAt = now
		stored.UpdatedAt = now
		m.candidates[stored.ID] = &stored
	}
	return nil
}

// GetMergeCandidate returns a merge candidate by id
func (m *Memory) GetMergeCandidate(ctx context.Context, id string) (*models.MergeCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidate, ok := m.candidates[id]
	if !ok {
		return nil, NotFound("merge candidate %s not found", id)
	}
	cp := *candidate
	return &cp, nil
}

// ListMergeCandidates returns candidates with the given status, or all when status is empty
func (m *Memory) ListMergeCandidates(ctx context.Context, status models.MergeCandidateStatus, limit int) ([]*models.MergeCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.MergeCandidate
	for _, candidate := range m.candidates {
		if status != "" && candidate.Status != status {
			continue
		}
		cp := *candidate
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateMergeCandidateStatus sets the review status of a candidate
func (m *Memory) UpdateMergeCandidateStatus(ctx context.Context, id string, status models.MergeCandidateStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidate, ok := m.candidates[id]
	if !ok {
		return NotFound("merge candidate %s not found", id)
	}
	candidate.Status = status
	candidate.UpdatedAt = m.now()
	return nil
}

// FindDuplicateGroups returns the distinct sets of active cases sharing a reference key
func (m *Memory) FindDuplicateGroups(ctx context.Context, limit int) ([]models.DuplicateGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(m.index))
	seen := make(map[string]struct{})
	var groups []models.DuplicateGroup
	for _, key := range keys {
		if !strings.HasPrefix(key, signature.ReferenceKeyPrefix) || len(m.index[key]) < 2 {
			continue
		}
		ids := slices.Sorted(maps.Keys(m.index[key]))
		setKey := strings.Join(ids, ",")
		if _, dup := seen[setKey]; dup {
			continue
		}
		seen[setKey] = struct{}{}
		groups = append(groups, models.DuplicateGroup{
			Signature: strings.TrimPrefix(key, signature.ReferenceKeyPrefix),
			CaseIDs:   ids,
		})
		if limit > 0 && len(groups) >= limit {
			break
		}
	}
	return groups, nil
}

// checkUnique fails when another active case owns one of c's reference numbers
func (m *Memory) checkUnique(c *models.Case) error {
	if !c.IsActive() {
		return nil
	}
	for kind, value := range c.CaseNumbers.Values() {
		if owner := m.referenceOwner(kind, value, c.ID); owner != nil {
			return Conflict("%s number %s already belongs to case %s", kind, value, owner.ID)
		}
	}
	return nil
}

func (m *Memory) referenceOwner(kind models.ReferenceKind, value, excludeID string) *models.Case {
	if value == "" {
		return nil
	}
	for id, c := range m.cases {
		if id != excludeID && c.IsActive() && c.CaseNumbers.Get(kind) == value {
			return c
		}
	}
	return nil
}

// reindex replaces the lookup keys of c. Inactive cases are unreachable.
func (m *Memory) reindex(c *models.Case) {
	for _, key := range m.caseKeys[c.ID] {
		delete(m.index[key], c.ID)
		if len(m.index[key]) == 0 {
			delete(m.index, key)
		}
	}
	delete(m.caseKeys, c.ID)
	if !c.IsActive() {
		return
	}

	keys := signature.CaseLookupKeys(c)
	for _, key := range keys {
		if m.index[key] == nil {
			m.index[key] = make(map[string]struct{})
		}
		m.index[key][c.ID] = struct{}{}
	}
	m.caseKeys[c.ID] = keys
}

func (m *Memory) pendingCandidate(primaryID, duplicateID string) *models.MergeCandidate {
	for _, candidate := range m.candidates {
		if candidate.Status == models.MergeCandidatePending &&
			candidate.PrimaryCaseID == primaryID && candidate.DuplicateCaseID == duplicateID {
			return candidate
		}
	}
	return nil
}

// entityKey keys an entity by signature. Entities without one cannot be deduplicated and are
// stored under their id.
func (m *Memory) entityKey(sig, id string) string {
	if sig != "" {
		return sig
	}
	return "id:" + id + "|unsigned"
}

func linkKey(parts ...string) string {
	return strings.Join(parts, "|")
}

func cloneLink(link *models.DocumentLink) *models.DocumentLink {
	cp := *link
	cp.MatchedSignals = slices.Clone(link.MatchedSignals)
	cp.Embedding = slices.Clone(link.Embedding)
	cp.LinkingParams = maps.Clone(link.LinkingParams)
	return &cp
}

func sortLinks(links []*models.DocumentLink) {
	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.Before(links[j].CreatedAt)
		}
		return links[i].DocumentID < links[j].DocumentID
	})
}
