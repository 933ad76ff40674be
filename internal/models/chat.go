package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one append-only message in a webinar's chat.
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	WebinarID  uuid.UUID `json:"webinar_id"`
	Seq        int64     `json:"-"` // insertion order, breaks timestamp ties
	AuthorID   uuid.UUID `json:"user_id"`
	AuthorName string    `json:"user_name"`
	AuthorRole Role      `json:"user_role"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"timestamp"`
}

// PinnedMessage is the single highlighted message slot of a webinar.
type PinnedMessage struct {
	WebinarID uuid.UUID `json:"webinar_id"`
	Text      string    `json:"text"`
	PinnedBy  uuid.UUID `json:"pinned_by"`
	PinnedAt  time.Time `json:"pinned_at"`
}

// ChatSnapshot is the full chat state delivered to subscribers on every change.
type ChatSnapshot struct {
	WebinarID uuid.UUID      `json:"webinar_id"`
	Messages  []ChatMessage  `json:"messages"`
	Pinned    *PinnedMessage `json:"pinned,omitempty"`
}
