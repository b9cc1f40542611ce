// Package cases serves the case linking and case administration API
package cases

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/validation"
	"github.com/Ramsey-B/fern/pkg/store"
)

const defaultDuplicateGroups = 100

// DocumentLinker links one document to a case. *linker.Linker implements it.
type DocumentLinker interface {
	LinkDocument(ctx context.Context, bag *models.EntityBag, documentID string) (*models.LinkageResult, error)
}

// RelatedFinder finds cases connected through shared parties. *graph.QueryService implements it.
type RelatedFinder interface {
	RelatedCases(ctx context.Context, caseID string, limit int) ([]graph.RelatedCase, error)
}

// Handler handles case API endpoints
type Handler struct {
	linker       DocumentLinker
	cases        store.CaseStore
	documents    store.DocumentStore
	consolidator *merging.Consolidator
	related      RelatedFinder
	logger       ectologger.Logger
}

// NewHandler creates a new case handler. related may be nil when no graph is configured.
func NewHandler(linker DocumentLinker, cases store.CaseStore, consolidator *merging.Consolidator, related RelatedFinder, logger ectologger.Logger) *Handler {
	h := &Handler{
		linker:       linker,
		cases:        cases,
		consolidator: consolidator,
		related:      related,
		logger:       logger,
	}
	if docs, ok := cases.(store.DocumentStore); ok {
		h.documents = docs
	}
	return h
}

// Register registers the case routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/link", h.LinkDocument)
	g.GET("/duplicates", h.AnalyzeDuplicates)
	g.GET("/:id", h.GetCase)
	g.GET("/:id/documents", h.ListDocuments)
	g.GET("/:id/related", h.RelatedCases)
	g.POST("/:id/merge", h.MergeCases)
}

// LinkDocument links an extracted document to its case, creating the case when none matches
func (h *Handler) LinkDocument(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := validation.Bind[models.LinkDocumentRequest](c)
	if err != nil {
		return err
	}
	if len(req.EntityBag.Issues) > 0 {
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"document_id": req.DocumentID,
			"issues":      req.EntityBag.Issues,
		}).Warn("Entity bag has malformed sections")
	}

	result, err := h.linker.LinkDocument(ctx, req.EntityBag, req.DocumentID)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if result.WasCreated && !result.Unchanged {
		status = http.StatusCreated
	}
	return c.JSON(status, result)
}

// GetCase returns one case
func (h *Handler) GetCase(c echo.Context) error {
	found, err := h.cases.GetCase(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, found)
}

// ListDocuments returns the documents linked to a case
func (h *Handler) ListDocuments(c echo.Context) error {
	ctx := c.Request().Context()
	if h.documents == nil {
		return httperror.NewHTTPError(http.StatusNotImplemented, "document links are not stored by this backend")
	}

	caseID := c.Param("id")
	if _, err := h.cases.GetCase(ctx, caseID); err != nil {
		return err
	}
	links, err := h.documents.ListDocumentLinks(ctx, caseID)
	if err != nil {
		return err
	}
	if links == nil {
		links = []*models.DocumentLink{}
	}
	return c.JSON(http.StatusOK, links)
}

// RelatedCases returns active cases sharing parties with the case
func (h *Handler) RelatedCases(c echo.Context) error {
	if h.related == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "graph query service unavailable")
	}

	limit, err := intQuery(c, "limit", graph.DefaultRelatedLimit)
	if err != nil {
		return err
	}
	related, err := h.related.RelatedCases(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, related)
}

// MergeCases folds the absorbed cases into the case named in the path
func (h *Handler) MergeCases(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := validation.Bind[models.MergeCasesRequest](c)
	if err != nil {
		return err
	}

	report, err := h.consolidator.MergeCases(ctx, c.Param("id"), req.AbsorbedIDs, req.DryRun)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"operator":        fernctx.GetOperator(ctx),
		"primary_case_id": report.PrimaryID,
		"absorbed":        report.AbsorbedIDs,
		"dry_run":         report.DryRun,
	}).Info("Merge requested through the API")
	return c.JSON(http.StatusOK, report)
}

// AnalyzeDuplicates lists groups of active cases sharing a reference number
func (h *Handler) AnalyzeDuplicates(c echo.Context) error {
	limit, err := intQuery(c, "limit", defaultDuplicateGroups)
	if err != nil {
		return err
	}
	groups, err := h.consolidator.AnalyzeDuplicates(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}
	return c.JSON(http.StatusOK, groups)
}

func intQuery(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return v, nil
}
