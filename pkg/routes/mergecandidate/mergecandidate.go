// Package mergecandidate serves operator review of suspected duplicate cases
package mergecandidate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Handler handles merge candidate endpoints
type Handler struct {
	consolidator *merging.Consolidator
	logger       ectologger.Logger
}

// NewHandler creates a new merge candidate handler
func NewHandler(consolidator *merging.Consolidator, logger ectologger.Logger) *Handler {
	return &Handler{
		consolidator: consolidator,
		logger:       logger,
	}
}

// Register registers merge candidate routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListMergeCandidates)
	g.POST("/:id/merge", h.MergeCandidate)
	g.POST("/:id/reject", h.RejectCandidate)
}

// ListMergeCandidates lists merge candidates by status, pending by default
func (h *Handler) ListMergeCandidates(c echo.Context) error {
	status := models.MergeCandidatePending
	if raw := c.QueryParam("status"); raw != "" {
		status = models.MergeCandidateStatus(raw)
		if !status.IsValid() {
			return httperror.NewHTTPError(http.StatusBadRequest, "status must be pending, merged or rejected")
		}
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(v, maxListLimit)
	}

	candidates, err := h.consolidator.ListCandidates(c.Request().Context(), status, limit)
	if err != nil {
		return err
	}
	if candidates == nil {
		candidates = []*models.MergeCandidate{}
	}
	return c.JSON(http.StatusOK, candidates)
}

// MergeCandidate folds the candidate's duplicate case into its primary. ?dry_run=true reports
// without writing.
func (h *Handler) MergeCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	dryRun := false
	if raw := c.QueryParam("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "dry_run must be a boolean")
		}
		dryRun = v
	}

	report, err := h.consolidator.MergeCandidate(ctx, c.Param("id"), dryRun)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"operator":        fernctx.GetOperator(ctx),
		"candidate_id":    c.Param("id"),
		"primary_case_id": report.PrimaryID,
		"dry_run":         dryRun,
	}).Info("Merge candidate merged")
	return c.JSON(http.StatusOK, report)
}

// RejectCandidate marks the candidate's cases as distinct
func (h *Handler) RejectCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	candidate, err := h.consolidator.RejectCandidate(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"operator":     fernctx.GetOperator(ctx),
		"candidate_id": candidate.ID,
	}).Info("Merge candidate rejected")
	return c.JSON(http.StatusOK, candidate)
}
