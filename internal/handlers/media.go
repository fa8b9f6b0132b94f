package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

type BlobSource interface {
	Get(ctx context.Context, key string) (models.Blob, error)
}

// BlobHandler serves uploaded media.
type BlobHandler struct {
	blobs BlobSource
}

func NewBlobHandler(blobs BlobSource) *BlobHandler {
	return &BlobHandler{blobs: blobs}
}

// GetBlob handles GET /blobs/*key. Keys are write-once, so responses are immutable.
func (h *BlobHandler) GetBlob(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}

	b, err := h.blobs.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, repositories.ErrBlobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "blob store unavailable"})
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, b.ContentType, b.Data)
}
