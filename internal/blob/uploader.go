// Package blob stores media payloads and hands back durable URLs for them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
)

const (
	// KeyPrefix groups chat media in the blob store.
	KeyPrefix = "chat_photos/"
	// RoutePrefix is the HTTP path blobs are served under.
	RoutePrefix = "/blobs/"

	DefaultMaxBytes = 10 << 20

	maxNameLength = 64
)

var (
	ErrQuotaExceeded = errors.New("payload exceeds blob quota")
	ErrEmptyPayload  = errors.New("payload is empty")
	ErrUnknownURL    = errors.New("url does not reference this blob store")
)

// UploadFailedError reports a payload that was not stored.
type UploadFailedError struct {
	Cause error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Cause)
}

func (e *UploadFailedError) Unwrap() error { return e.Cause }

// Uploader puts payloads in a BlobRepository under collision-free keys.
type Uploader struct {
	store    repositories.BlobRepository
	baseURL  string
	maxBytes int64
	logger   zerolog.Logger
}

// NewUploader builds an Uploader whose URLs are rooted at baseURL.
func NewUploader(store repositories.BlobRepository, baseURL string, maxBytes int64, logger zerolog.Logger) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Uploader{
		store:    store,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Upload stores payload and returns the URL it can be fetched from. Every
// call yields a new key, so two uploads of the same name never collide.
func (u *Uploader) Upload(ctx context.Context, payload []byte, suggestedName string) (string, error) {
	if len(payload) == 0 {
		observability.IncUpload("rejected")
		return "", &UploadFailedError{Cause: ErrEmptyPayload}
	}
	if int64(len(payload)) > u.maxBytes {
		observability.IncUpload("rejected")
		return "", &UploadFailedError{Cause: fmt.Errorf("%w: %d > %d bytes", ErrQuotaExceeded, len(payload), u.maxBytes)}
	}

	mtype := mimetype.Detect(payload)
	key := KeyPrefix + uuid.NewString() + "-" + sanitizeName(suggestedName, mtype.Extension())

	if err := u.store.Put(ctx, key, payload, mtype.String()); err != nil {
		observability.IncUpload("failed")
		u.logger.Warn().Err(err).Str("key", key).Msg("blob put failed")
		return "", &UploadFailedError{Cause: err}
	}
	observability.IncUpload("ok")
	u.logger.Debug().Str("key", key).Str("content_type", mtype.String()).Int("size", len(payload)).Msg("blob stored")
	return u.URL(key), nil
}

// Fetch resolves a URL returned by Upload back to the stored blob.
func (u *Uploader) Fetch(ctx context.Context, url string) (models.Blob, error) {
	key, ok := u.KeyFromURL(url)
	if !ok {
		return models.Blob{}, ErrUnknownURL
	}
	return u.Get(ctx, key)
}

// Get loads a blob by key.
func (u *Uploader) Get(ctx context.Context, key string) (models.Blob, error) {
	return u.store.Get(ctx, strings.TrimPrefix(key, "/"))
}

func (u *Uploader) URL(key string) string {
	return u.baseURL + RoutePrefix + key
}

func (u *Uploader) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, u.baseURL+RoutePrefix)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// sanitizeName reduces a client-supplied file name to a safe key suffix.
func sanitizeName(name, ext string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	clean := strings.Trim(b.String(), "._")
	if clean == "" {
		clean = "photo" + ext
	}
	if len(clean) > maxNameLength {
		clean = clean[len(clean)-maxNameLength:]
	}
	return clean
}
