package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"HustleCollector/internal/domain"
	"HustleCollector/internal/health"
	"HustleCollector/internal/usecase"
)

type handler struct {
	cases   CaseService
	runs    RunController
	health  HealthChecker
	logger  *slog.Logger
	timeout time.Duration
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listResponse struct {
	Data       []domain.Case `json:"data"`
	Total      int           `json:"total"`
	Categories []string      `json:"categories"`
	Pagination pagination    `json:"pagination"`
}

type moderationRequest struct {
	Action  string  `json:"action" binding:"required"`
	CaseIDs []int64 `json:"caseIds"`
}

type collectRequest struct {
	Target    int `json:"target"`
	MaxRounds int `json:"maxRounds"`
}

func (h *handler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *handler) healthCheck(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": health.StatusUnhealthy})
		return
	}
	report := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *handler) listPublished(c *gin.Context) {
	q := parseQuery(c)
	q.Filter.Status = domain.StatusPublished
	h.list(c, q)
}

func (h *handler) listAll(c *gin.Context) {
	q := parseQuery(c)
	q.Filter.Status = domain.ParseModerationStatus(c.Query("status"))
	h.list(c, q)
}

func (h *handler) list(c *gin.Context, q domain.CaseQuery) {
	ctx, cancel := h.context(c)
	defer cancel()

	listing, err := h.cases.ListCases(ctx, q)
	if err != nil {
		h.fail(c, err)
		return
	}

	data := listing.Cases
	if data == nil {
		data = []domain.Case{}
	}
	c.JSON(http.StatusOK, listResponse{
		Data:       data,
		Total:      listing.Total,
		Categories: listing.Categories,
		Pagination: pagination{
			Page:       listing.Page,
			Limit:      listing.Limit,
			Total:      listing.Total,
			TotalPages: listing.TotalPages,
		},
	})
}

func (h *handler) getPublished(c *gin.Context) {
	h.get(c, h.cases.GetPublishedCaseByID)
}

func (h *handler) getAny(c *gin.Context) {
	h.get(c, h.cases.GetCaseByID)
}

func (h *handler) get(c *gin.Context, lookup func(context.Context, int64) (domain.Case, error)) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	found, err := lookup(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h *handler) moderate(c *gin.Context) {
	var req moderationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid moderation request"})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	var (
		affected int
		err      error
	)
	switch action := strings.ToLower(strings.TrimSpace(req.Action)); action {
	case "approve", "reject":
		if len(req.CaseIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "caseIds must not be empty"})
			return
		}
		affected, err = h.cases.BatchUpdatePublishStatus(ctx, req.CaseIDs, action == "approve")
	case "clear_data":
		affected, err = h.cases.ClearAllData(ctx)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action " + req.Action})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"action": req.Action, "affected": affected})
}

func (h *handler) startCollection(c *gin.Context) {
	var req collectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collect request"})
			return
		}
	}

	runID, err := h.runs.Start(c.Request.Context(), usecase.RunOptions{
		Target:    req.Target,
		MaxRounds: req.MaxRounds,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runId": runID})
}

func (h *handler) collectionStatus(c *gin.Context) {
	report, ok := h.runs.Status(c.Param("runId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) count(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	n, err := h.cases.CountCases(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": n})
}

func (h *handler) backfill(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	updated, err := h.cases.BackfillSourceTypes(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", "path", c.Request.URL.Path, "kind", domain.ErrorKind(err), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// parseQuery maps listing query parameters; page is 1-based.
func parseQuery(c *gin.Context) domain.CaseQuery {
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}

	q := domain.CaseQuery{
		Filter: domain.CaseFilter{
			Search:   c.Query("search"),
			Category: c.Query("category"),
		},
		SortBy:    domain.ParseSortField(c.Query("sortBy")),
		Ascending: strings.EqualFold(c.Query("sortOrder"), "asc"),
		Limit:     limit,
	}
	if raw := strings.TrimSpace(c.Query("sourceType")); raw != "" && raw != "all" {
		q.Filter.SourceType = domain.ParseSourceType(raw)
	}
	q = q.Normalize()
	q.Offset = (page - 1) * q.Limit
	return q
}
