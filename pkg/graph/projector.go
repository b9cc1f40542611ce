package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Node labels and relationship types of the case projection
const (
	LabelCase     = "Case"
	LabelParty    = "Party"
	LabelCharge   = "Charge"
	LabelEvidence = "Evidence"

	RelHasParty    = "HAS_PARTY"
	RelChargedWith = "CHARGED_WITH"
	RelHasEvidence = "HAS_EVIDENCE"
	RelMergedInto  = "MERGED_INTO"
)

const (
	upsertCaseCypher = `
		MERGE (c:Case {id: $id})
		SET c = $props
	`
	// edges are rebuilt on every projection so removed items disappear
	clearEdgesCypher = `
		MATCH (c:Case {id: $id})-[r:HAS_PARTY|CHARGED_WITH|HAS_EVIDENCE]->()
		DELETE r
	`
	upsertPartiesCypher = `
		MATCH (c:Case {id: $id})
		UNWIND $rows AS row
		MERGE (p:Party {signature: row.signature})
		SET p += row.props
		MERGE (c)-[r:HAS_PARTY {entity_id: row.entity_id}]->(p)
		SET r.roles = row.roles, r.source_documents = row.source_documents
	`
	upsertChargesCypher = `
		MATCH (c:Case {id: $id})
		UNWIND $rows AS row
		MERGE (ch:Charge {signature: row.signature})
		SET ch += row.props
		MERGE (c)-[r:CHARGED_WITH {entity_id: row.entity_id}]->(ch)
		SET r.status = row.status, r.source_documents = row.source_documents
	`
	upsertEvidenceCypher = `
		MATCH (c:Case {id: $id})
		UNWIND $rows AS row
		MERGE (e:Evidence {signature: row.signature})
		SET e += row.props
		MERGE (c)-[r:HAS_EVIDENCE {entity_id: row.entity_id}]->(e)
		SET r.source_documents = row.source_documents
	`
	mergedIntoCypher = `
		MATCH (c:Case {id: $id})
		MERGE (p:Case {id: $into})
		MERGE (c)-[:MERGED_INTO]->(p)
	`
)

// CaseProjector mirrors cases, their parties, charges and evidence into the graph. Parties,
// charges and evidence are shared nodes keyed by signature, so cases involving the same person
// are connected through that person.
type CaseProjector struct {
	client *Client
	logger ectologger.Logger
}

// NewCaseProjector creates a case projector
func NewCaseProjector(client *Client, logger ectologger.Logger) *CaseProjector {
	return &CaseProjector{
		client: client,
		logger: logger,
	}
}

// ProjectCase writes the current state of c in one transaction
func (p *CaseProjector) ProjectCase(ctx context.Context, c *models.Case) error {
	ctx, span := tracing.StartSpan(ctx, "graph.CaseProjector.ProjectCase")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"case_id": c.ID,
		"version": c.Version,
	})

	statements := []struct {
		cypher string
		params map[string]any
	}{
		{upsertCaseCypher, map[string]any{"id": c.ID, "props": caseProperties(c)}},
		{clearEdgesCypher, map[string]any{"id": c.ID}},
		{upsertPartiesCypher, map[string]any{"id": c.ID, "rows": partyRows(c)}},
		{upsertChargesCypher, map[string]any{"id": c.ID, "rows": chargeRows(c)}},
		{upsertEvidenceCypher, map[string]any{"id": c.ID, "rows": evidenceRows(c)}},
	}
	if c.MergedInto != nil {
		statements = append(statements, struct {
			cypher string
			params map[string]any
		}{mergedIntoCypher, map[string]any{"id": c.ID, "into": *c.MergedInto}})
	}

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range statements {
			result, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to project case into graph")
		return fmt.Errorf("failed to project case %s: %w", c.ID, err)
	}

	log.Debug("Projected case into graph")
	return nil
}

// caseProperties are the scalar properties of a case node
func caseProperties(c *models.Case) map[string]any {
	props := map[string]any{
		"id":         c.ID,
		"state":      string(c.State),
		"is_orphan":  c.IsOrphan,
		"status":     c.CaseStatus.Current,
		"case_type":  c.CaseStatus.CaseType,
		"version":    int64(c.Version),
		"created_at": c.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": c.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for kind, value := range c.CaseNumbers.Values() {
		props[string(kind)+"_number"] = value
	}
	if c.State == "" {
		props["state"] = string(models.CaseStateActive)
	}
	return props
}

func partyRows(c *models.Case) []map[string]any {
	rows := make([]map[string]any, 0, len(c.Parties))
	for _, party := range c.Parties {
		if party.Signature == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"signature":        party.Signature,
			"entity_id":        party.EntityID,
			"roles":            nonNil(party.Roles),
			"source_documents": nonNil(party.SourceDocuments),
			"props": compact(map[string]any{
				"signature":   party.Signature,
				"party_id":    party.PartyID,
				"name_ar":     party.NameAr,
				"name_en":     party.NameEn,
				"personal_id": party.PersonalID,
				"nationality": party.Nationality,
			}),
		})
	}
	return rows
}

func chargeRows(c *models.Case) []map[string]any {
	rows := make([]map[string]any, 0, len(c.Charges))
	for _, charge := range c.Charges {
		if charge.Signature == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"signature":        charge.Signature,
			"entity_id":        charge.EntityID,
			"status":           string(charge.Status),
			"source_documents": nonNil(charge.SourceDocuments),
			"props": compact(map[string]any{
				"signature":      charge.Signature,
				"charge_id":      charge.ChargeID,
				"article_number": charge.ArticleNumber,
				"description_ar": charge.DescriptionAr,
				"description_en": charge.DescriptionEn,
				"law_name":       charge.LawName,
				"law_year":       charge.LawYear,
			}),
		})
	}
	return rows
}

func evidenceRows(c *models.Case) []map[string]any {
	rows := make([]map[string]any, 0, len(c.Evidence))
	for _, ev := range c.Evidence {
		if ev.Signature == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"signature":        ev.Signature,
			"entity_id":        ev.EntityID,
			"source_documents": nonNil(ev.SourceDocuments),
			"props": compact(map[string]any{
				"signature":      ev.Signature,
				"evidence_id":    ev.EvidenceID,
				"type":           ev.Type,
				"description_ar": ev.DescriptionAr,
				"description_en": ev.DescriptionEn,
			}),
		})
	}
	return rows
}

// compact drops empty strings so SET += never blanks a property another case filled
func compact(props map[string]any) map[string]any {
	for k, v := range props {
		if s, ok := v.(string); ok && s == "" {
			delete(props, k)
		}
	}
	return props
}

// nonNil keeps list properties typed as lists, which Bolt cannot infer from nil
func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
