package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/compliance-x/internal/compliance/biz"
)

// AnalysisHandler handles document analysis requests.
type AnalysisHandler struct {
	analyzer *biz.Analyzer
	history  *biz.HistoryService
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(analyzer *biz.Analyzer, history *biz.HistoryService) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, history: history}
}

// SubmitRequest represents a document submission.
type SubmitRequest struct {
	DocumentText  string `json:"document_text" binding:"required"`
	RuleSetID     uint64 `json:"rule_set_id" binding:"required"`
	Title         string `json:"title"`
	EffectiveDate string `json:"effective_date"`
	ForceNew      bool   `json:"force_new"`
}

// Submit accepts a document for asynchronous analysis.
func (h *AnalysisHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	var effectiveDate *time.Time
	if req.EffectiveDate != "" {
		parsed, err := time.Parse("2006-01-02", req.EffectiveDate)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("effective_date must be YYYY-MM-DD"))
			return
		}
		effectiveDate = &parsed
	}

	result, err := h.analyzer.Submit(c.Request.Context(), biz.SubmitRequest{
		DocumentText:  req.DocumentText,
		RuleSetID:     req.RuleSetID,
		Title:         req.Title,
		UserID:        userID(c),
		EffectiveDate: effectiveDate,
		ForceNew:      req.ForceNew,
	})
	if err != nil {
		switch {
		case errors.Is(err, biz.ErrDocumentTooShort), errors.Is(err, biz.ErrDocumentTooLarge):
			respondError(c, http.StatusBadRequest, err)
		case errors.Is(err, biz.ErrRuleSetNotFound):
			respondError(c, http.StatusNotFound, err)
		default:
			respondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	status := http.StatusAccepted
	message := "Analysis started"
	if result.Cached {
		status = http.StatusOK
		message = "Analysis already available"
	}
	respondOK(c, status, message, result)
}

// Results returns the current view of a session, including partial results
// while it is still processing.
func (h *AnalysisHandler) Results(c *gin.Context) {
	results, err := h.history.GetResults(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, biz.ErrSessionNotFound) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "OK", results)
}

// Stop requests cancellation of a processing session. Stopping a session that
// already finished is not an error.
func (h *AnalysisHandler) Stop(c *gin.Context) {
	stopped, err := h.analyzer.Stop(c.Request.Context(), c.Param("session_id"), userID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "OK", gin.H{"stopped": stopped})
}

// Delete removes an owned session and its results.
func (h *AnalysisHandler) Delete(c *gin.Context) {
	err := h.history.Delete(c.Request.Context(), c.Param("session_id"), userID(c))
	if err != nil {
		if errors.Is(err, biz.ErrSessionNotFound) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "Session deleted", nil)
}

// RenameRequest represents a session rename.
type RenameRequest struct {
	Title string `json:"title" binding:"required"`
}

// Rename updates the title of an owned session.
func (h *AnalysisHandler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	err := h.history.Rename(c.Request.Context(), c.Param("session_id"), userID(c), req.Title)
	if err != nil {
		if errors.Is(err, biz.ErrSessionNotFound) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "Session renamed", nil)
}

// History lists the caller's sessions, most recently accessed first.
func (h *AnalysisHandler) History(c *gin.Context) {
	offset, limit := pagination(c)

	count, sessions, err := h.history.List(c.Request.Context(), userID(c), offset, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "OK", gin.H{"total": count, "sessions": sessions})
}

func pagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return offset, limit
}
