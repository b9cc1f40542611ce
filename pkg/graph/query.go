package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultRelatedLimit = 20
	maxRelatedLimit     = 200

	relatedCasesCypher = `
		MATCH (c:Case {id: $id})-[:HAS_PARTY]->(p:Party)<-[:HAS_PARTY]-(o:Case)
		WHERE o.id <> $id AND o.state = 'active'
		WITH o, collect(DISTINCT p.signature) AS shared
		RETURN o.id AS case_id, shared
		ORDER BY size(shared) DESC, case_id
		LIMIT $limit
	`
)

// QueryService answers read queries over the case projection
type QueryService struct {
	client *Client
	logger ectologger.Logger
}

// NewQueryService creates a new query service
func NewQueryService(client *Client, logger ectologger.Logger) *QueryService {
	return &QueryService{
		client: client,
		logger: logger,
	}
}

// RelatedCase is an active case sharing parties with another case
type RelatedCase struct {
	CaseID        string   `json:"case_id"`
	SharedParties []string `json:"shared_parties"`
}

// RelatedCases returns the active cases sharing at least one party with caseID, most shared
// parties first
func (s *QueryService) RelatedCases(ctx context.Context, caseID string, limit int) ([]RelatedCase, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.RelatedCases")
	defer span.End()

	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	limit = min(limit, maxRelatedLimit)

	res, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, relatedCasesCypher, map[string]any{
			"id":    caseID,
			"limit": int64(limit),
		})
		if err != nil {
			return nil, err
		}

		related := make([]RelatedCase, 0)
		for result.Next(ctx) {
			record := result.Record()
			id, _ := record.Get("case_id")
			shared, _ := record.Get("shared")
			related = append(related, RelatedCase{
				CaseID:        fmt.Sprintf("%v", id),
				SharedParties: toStrings(shared),
			})
		}
		return related, result.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"case_id": caseID,
		}).Error("Failed to query related cases")
		return nil, fmt.Errorf("failed to query related cases: %w", err)
	}

	return res.([]RelatedCase), nil
}

// toStrings converts a Bolt list value
func toStrings(val any) []string {
	items, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, fmt.Sprintf("%v", item))
		}
	}
	return out
}
