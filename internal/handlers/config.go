package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/telemetry"
)

type ConfigStore interface {
	Get(ctx context.Context, key string) string
	Set(ctx context.Context, key, value string) error
}

// ConfigHandler administers remote configuration values.
type ConfigHandler struct {
	store ConfigStore
	audit *telemetry.AuditEmitter
}

func NewConfigHandler(store ConfigStore, audit *telemetry.AuditEmitter) *ConfigHandler {
	return &ConfigHandler{store: store, audit: audit}
}

// GetValue handles GET /config/:key.
func (h *ConfigHandler) GetValue(c *gin.Context) {
	key := c.Param("key")
	value := h.store.Get(c.Request.Context(), key)
	if value == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown config key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// PutValue handles PUT /config/:key.
func (h *ConfigHandler) PutValue(c *gin.Context) {
	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.Param("key")
	if err := h.store.Set(c.Request.Context(), key, req.Value); err != nil {
		h.audit.Emit(c.Request.Context(), auditEntry(c, "ERROR", "config update failed: "+key))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not store value"})
		return
	}
	h.audit.Emit(c.Request.Context(), auditEntry(c, "INFO", "config updated: "+key+"="+req.Value))
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}
