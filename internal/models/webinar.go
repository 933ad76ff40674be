package models

import (
	"time"

	"github.com/google/uuid"
)

// WebinarStatus is the approval/broadcast state of a webinar.
type WebinarStatus string

const (
	WebinarPending  WebinarStatus = "pending"
	WebinarApproved WebinarStatus = "approved"
	WebinarRejected WebinarStatus = "rejected"
	WebinarLive     WebinarStatus = "live"
)

// DeliveryMode is how a webinar is streamed to viewers.
type DeliveryMode string

const (
	DeliveryYouTube DeliveryMode = "youtube"
	DeliveryNative  DeliveryMode = "native"
)

// Webinar represents a schedulable session owned by a host.
type Webinar struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	Category    string        `json:"category"`
	Description string        `json:"description,omitempty"`
	Syllabus    string        `json:"syllabus,omitempty"`
	Date        string        `json:"date"` // YYYY-MM-DD as entered by the host
	Time        string        `json:"time"` // HH:MM as entered by the host
	ScheduledAt time.Time     `json:"scheduled_at"`
	PriceCents  int           `json:"price_cents"` // 0 = free
	Type        DeliveryMode  `json:"type"`
	YouTubeURL  string        `json:"youtube_url,omitempty"`
	MeetingID   string        `json:"meeting_id,omitempty"`
	HostID      uuid.UUID     `json:"host_id"`
	HostName    string        `json:"host_name"`
	HostEmail   string        `json:"host_email,omitempty"`
	Status      WebinarStatus `json:"status"`
	ReviewedBy  *uuid.UUID    `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
	LiveAt      *time.Time    `json:"live_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// StudentVisible reports whether students may see the webinar in listings.
func (w *Webinar) StudentVisible() bool {
	return w.Status == WebinarApproved || w.Status == WebinarLive
}

// IsFree reports whether the webinar has no ticket price.
func (w *Webinar) IsFree() bool { return w.PriceCents == 0 }
