// Package access holds the single permission predicate used by every service.
package access

import (
	"github.com/google/uuid"

	"github.com/nexstream/backend/internal/models"
)

// Action names a guarded operation.
type Action string

const (
	WebinarSubmit      Action = "webinar.submit"
	WebinarReview      Action = "webinar.review"
	WebinarGoLive      Action = "webinar.golive"
	WebinarEdit        Action = "webinar.edit"
	WebinarDelete      Action = "webinar.delete"
	WebinarView        Action = "webinar.view"
	WebinarAttendees   Action = "webinar.attendees"
	RegistrationCreate Action = "registration.create"
	ChatPost           Action = "chat.post"
	ChatModerate       Action = "chat.moderate"
	CertificateIssue   Action = "certificate.issue"
	AttendanceRecord   Action = "attendance.record"
)

// Actor is the authenticated caller. A zero ID means anonymous.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

// Anonymous reports whether the actor is not signed in.
func (a Actor) Anonymous() bool { return a.ID == uuid.Nil }

// Resource describes the object an action applies to. OwnerID is the webinar host
// for webinar-scoped actions and the student for registration-scoped ones.
type Resource struct {
	OwnerID uuid.UUID
	Status  models.WebinarStatus
}

// Can reports whether actor may perform action on res.
func Can(actor Actor, action Action, res Resource) bool {
	owner := !actor.Anonymous() && actor.ID == res.OwnerID
	admin := !actor.Anonymous() && actor.Role == models.RoleAdmin

	switch action {
	case WebinarSubmit:
		return !actor.Anonymous() && (actor.Role == models.RoleHost || admin)
	case WebinarReview:
		return admin
	case WebinarGoLive, WebinarEdit, WebinarDelete, ChatModerate:
		return owner
	case WebinarView:
		if res.Status == models.WebinarApproved || res.Status == models.WebinarLive {
			return true
		}
		return owner || admin
	case WebinarAttendees:
		return owner || admin
	case RegistrationCreate:
		return !actor.Anonymous() && actor.Role == models.RoleStudent
	case ChatPost:
		return !actor.Anonymous()
	case CertificateIssue, AttendanceRecord:
		return owner
	}
	return false
}
