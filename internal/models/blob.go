package models

import "time"

// Blob is a stored media payload.
type Blob struct {
	Key         string    `db:"key" json:"key"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size" json:"size"`
	Data        []byte    `db:"data" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
