package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus tracks whether the attendee earned a certificate.
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCompleted RegistrationStatus = "completed"
)

// ContactInfo is the attendee contact data captured on registration.
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Registration is a student's registration for a webinar. At most one per (student, webinar).
type Registration struct {
	ID             uuid.UUID          `json:"id"`
	WebinarID      uuid.UUID          `json:"webinar_id"`
	WebinarTitle   string             `json:"webinar_title"`
	StudentID      uuid.UUID          `json:"student_id"`
	StudentName    string             `json:"student_name"`
	StudentEmail   string             `json:"student_email"`
	StudentPhone   string             `json:"student_phone,omitempty"`
	MinutesWatched float64            `json:"minutes_watched"`
	Status         RegistrationStatus `json:"status"`
	CertificateID  *string            `json:"certificate_id,omitempty"`
	RegisteredAt   time.Time          `json:"registered_at"`
	LastWatchedAt  *time.Time         `json:"last_watched_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// RegistrationStats summarises registrations of one webinar for its host.
type RegistrationStats struct {
	Total             int     `json:"total"`
	Completed         int     `json:"completed"`
	AvgMinutesWatched float64 `json:"avg_minutes_watched"`
}
