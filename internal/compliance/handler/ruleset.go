package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/compliance-x/internal/compliance/biz"
)

// RuleSetHandler handles rule set management requests.
type RuleSetHandler struct {
	service *biz.RuleSetService
}

// NewRuleSetHandler creates a new RuleSetHandler.
func NewRuleSetHandler(service *biz.RuleSetService) *RuleSetHandler {
	return &RuleSetHandler{service: service}
}

// CreateRuleSetRequest represents a rule set creation with its initial rules.
type CreateRuleSetRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Rules       []biz.RuleInput `json:"rules" binding:"required"`
}

// Create creates a rule set.
func (h *RuleSetHandler) Create(c *gin.Context) {
	var req CreateRuleSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	ruleSet, err := h.service.Create(c.Request.Context(), req.Name, req.Description, userID(c), req.Rules)
	if err != nil {
		if errors.Is(err, biz.ErrRuleSetEmpty) {
			respondError(c, http.StatusBadRequest, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusCreated, "Rule set created", ruleSet)
}

// AddRulesRequest represents a bulk rule import into an existing rule set.
type AddRulesRequest struct {
	Rules []biz.RuleInput `json:"rules" binding:"required"`
}

// AddRules appends rules to a rule set, skipping duplicates.
func (h *RuleSetHandler) AddRules(c *gin.Context) {
	id, err := ruleSetID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	var req AddRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	added, err := h.service.AddRules(c.Request.Context(), id, req.Rules)
	if err != nil {
		if errors.Is(err, biz.ErrRuleSetNotFound) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "Rules added", gin.H{"added": added})
}

// Get returns a rule set by id.
func (h *RuleSetHandler) Get(c *gin.Context) {
	id, err := ruleSetID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	ruleSet, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, biz.ErrRuleSetNotFound) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "OK", ruleSet)
}

// List returns a page of active rule sets.
func (h *RuleSetHandler) List(c *gin.Context) {
	offset, limit := pagination(c)

	count, ruleSets, err := h.service.List(c.Request.Context(), c.Query("created_by"), offset, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "OK", gin.H{"total": count, "rule_sets": ruleSets})
}

// Catalog returns the rule digests in force at the requested date. Without an
// as_of query parameter it returns the currently effective rules.
func (h *RuleSetHandler) Catalog(c *gin.Context) {
	id, err := ruleSetID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	var asOf *time.Time
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("as_of must be YYYY-MM-DD"))
			return
		}
		asOf = &parsed
	}

	digests, err := h.service.Catalog(c.Request.Context(), id, asOf)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "OK", gin.H{"rules": digests})
}

// Deactivate soft-disables a rule set.
func (h *RuleSetHandler) Deactivate(c *gin.Context) {
	id, err := ruleSetID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "Rule set deactivated", nil)
}

// Delete removes a rule set with its rules and dependent sessions.
func (h *RuleSetHandler) Delete(c *gin.Context) {
	id, err := ruleSetID(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, http.StatusOK, "Rule set deleted", nil)
}

func ruleSetID(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid rule set id")
	}
	return id, nil
}
