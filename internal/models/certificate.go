package models

import (
	"time"

	"github.com/google/uuid"
)

// IssuedCertificate is an immutable record of a completed course. ID is the public code (e.g. NS-482913).
type IssuedCertificate struct {
	ID             string    `json:"cert_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	WebinarID      uuid.UUID `json:"webinar_id"`
	StudentID      uuid.UUID `json:"student_id"`
	StudentName    string    `json:"student_name"`
	StudentEmail   string    `json:"-"`
	CourseTitle    string    `json:"course_title"`
	HostName       string    `json:"host_name"`
	IssuedOn       string    `json:"date"` // e.g. "January 2, 2006"
	ImageKey       string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
