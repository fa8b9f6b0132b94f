package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/models"
)

// BlobRepository stores media payloads by key.
type BlobRepository interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (models.Blob, error)
}

// BlobRepo keeps blobs in the message database.
type BlobRepo struct {
	db *sqlx.DB
}

// NewBlobRepo constructs BlobRepo.
func NewBlobRepo(db *sqlx.DB) *BlobRepo {
	return &BlobRepo{db: db}
}

// Put stores data under key. Keys are write-once.
func (r *BlobRepo) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO blobs (key, content_type, size, data, created_at) VALUES (?, ?, ?, ?, ?)`),
		key, contentType, len(data), data, time.Now().UTC())
	return err
}

// Get loads the blob stored under key.
func (r *BlobRepo) Get(ctx context.Context, key string) (models.Blob, error) {
	var blob models.Blob
	err := r.db.GetContext(ctx, &blob, r.db.Rebind(`SELECT key, content_type, size, data, created_at FROM blobs WHERE key=?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Blob{}, ErrBlobNotFound
	}
	return blob, err
}
