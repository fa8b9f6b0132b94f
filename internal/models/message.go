package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Anonymous is the author name used when no identity is available.
const Anonymous = "anonymous"

var (
	ErrInvalidDraft = errors.New("draft must carry exactly one of text or media url")
	ErrMissingRoom  = fmt.Errorf("%w: room id is required", ErrInvalidDraft)
)

// Message is an immutable, store-acknowledged chat message.
type Message struct {
	ID            int64     `db:"id" json:"id"`
	RoomID        string    `db:"room_id" json:"room_id"`
	AuthorName    string    `db:"author_name" json:"author_name"`
	Text          string    `db:"text" json:"text,omitempty"`
	MediaURL      string    `db:"media_url" json:"media_url,omitempty"`
	CorrelationID string    `db:"correlation_id" json:"correlation_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PendingMessage is a draft that has not been acknowledged by the store yet.
type PendingMessage struct {
	CorrelationID string `json:"correlation_id"`
	RoomID        string `json:"room_id"`
	AuthorName    string `json:"author_name"`
	Text          string `json:"text,omitempty"`
	MediaURL      string `json:"media_url,omitempty"`
}

// Validate checks that exactly one of Text and MediaURL is populated.
func (p PendingMessage) Validate() error {
	if strings.TrimSpace(p.RoomID) == "" {
		return ErrMissingRoom
	}
	hasText := p.Text != ""
	hasMedia := p.MediaURL != ""
	if hasText == hasMedia {
		return ErrInvalidDraft
	}
	return nil
}

// AuthorOrAnonymous returns name, or the anonymous sentinel when name is blank.
func AuthorOrAnonymous(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return Anonymous
	}
	return name
}
