package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/compliance-x/internal/compliance/biz"
)

// CapabilityHandler exposes the registered capabilities.
type CapabilityHandler struct {
	registry *biz.CapabilityRegistry
}

// NewCapabilityHandler creates a new CapabilityHandler.
func NewCapabilityHandler(registry *biz.CapabilityRegistry) *CapabilityHandler {
	return &CapabilityHandler{registry: registry}
}

// List returns the available capability names.
func (h *CapabilityHandler) List(c *gin.Context) {
	respondOK(c, http.StatusOK, "OK", gin.H{"capabilities": h.registry.List()})
}

// Invoke runs a capability by name with a free-form JSON input.
func (h *CapabilityHandler) Invoke(c *gin.Context) {
	input := make(map[string]any)
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.registry.Invoke(c.Request.Context(), c.Param("name"), input)
	if err != nil {
		switch {
		case errors.Is(err, biz.ErrCapabilityNotFound):
			respondError(c, http.StatusNotFound, err)
		case errors.Is(err, biz.ErrSessionNotFound):
			respondError(c, http.StatusNotFound, err)
		default:
			respondError(c, http.StatusInternalServerError, err)
		}
		return
	}
	respondOK(c, http.StatusOK, "OK", result)
}
