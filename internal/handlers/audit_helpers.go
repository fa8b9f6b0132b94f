package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-sync/internal/middleware"
	"chat-sync/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func auditEntry(c *gin.Context, level, text string) telemetry.AuditEntry {
	return telemetry.AuditEntry{
		Level:      level,
		Text:       text,
		RequestID:  requestIDFromContext(c),
		AuthorName: middleware.AuthorName(c),
		RoomID:     c.Param("room_id"),
	}
}
