package models

import (
	"time"

	"github.com/google/uuid"
)

// ViewingSessionLog records one opened viewing page of a registered attendee.
type ViewingSessionLog struct {
	ID             uuid.UUID  `json:"id"`
	WebinarID      uuid.UUID  `json:"webinar_id"`
	RegistrationID uuid.UUID  `json:"registration_id"`
	UserID         uuid.UUID  `json:"user_id"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	WatchSeconds   int64      `json:"watch_seconds"`
}
