package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/blob"
	"chat-sync/internal/chat"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

// Sender is the chat client surface used by RoomHandler.
type Sender interface {
	SendText(ctx context.Context, roomID, authorName, text string, opts ...chat.SendOption) (models.Message, error)
	SendMedia(ctx context.Context, roomID, authorName string, payload []byte, suggestedName string, opts ...chat.SendOption) (models.Message, error)
	History(ctx context.Context, roomID string, afterID int64, limit int) ([]models.Message, error)
}

// RoomHandler serves message endpoints of a room.
type RoomHandler struct {
	chat         Sender
	maxBlobBytes int64
}

// NewRoomHandler builds a RoomHandler. maxBlobBytes bounds how much of an
// uploaded file is read before the uploader rejects it.
func NewRoomHandler(sender Sender, maxBlobBytes int64) *RoomHandler {
	if maxBlobBytes <= 0 {
		maxBlobBytes = blob.DefaultMaxBytes
	}
	return &RoomHandler{chat: sender, maxBlobBytes: maxBlobBytes}
}

// PostMessage handles POST /rooms/:room_id/messages.
func (h *RoomHandler) PostMessage(c *gin.Context) {
	var req struct {
		Text          string `json:"text"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	msg, err := h.chat.SendText(c.Request.Context(), c.Param("room_id"), middleware.AuthorName(c), req.Text,
		chat.WithCorrelationID(req.CorrelationID), chat.WithRequestID(requestIDFromContext(c)))
	if err != nil {
		writeSendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PostMedia handles POST /rooms/:room_id/media with the file in the photo field.
func (h *RoomHandler) PostMedia(c *gin.Context) {
	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, h.maxBlobBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
		return
	}

	msg, err := h.chat.SendMedia(c.Request.Context(), c.Param("room_id"), middleware.AuthorName(c), payload, header.Filename,
		chat.WithCorrelationID(c.PostForm("correlation_id")), chat.WithRequestID(requestIDFromContext(c)))
	if err != nil {
		writeSendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListMessages handles GET /rooms/:room_id/messages?after=&limit=.
func (h *RoomHandler) ListMessages(c *gin.Context) {
	after, err := queryInt(c, "after")
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	roomID := c.Param("room_id")
	if strings.TrimSpace(roomID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	msgs, err := h.chat.History(c.Request.Context(), roomID, after, int(limit))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func queryInt(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// writeSendError maps the send error taxonomy to HTTP statuses.
func writeSendError(c *gin.Context, err error) {
	var upload *blob.UploadFailedError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrEmptyMedia), errors.Is(err, models.ErrInvalidDraft), errors.Is(err, blob.ErrEmptyPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrMessageTooLong):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, blob.ErrQuotaExceeded):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo exceeds size limit"})
	case errors.As(err, &upload):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
	case errors.Is(err, repositories.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
	}
}
