package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/nexstream/backend/internal/models"
)

func TestCan(t *testing.T) {
	hostID := uuid.New()
	otherHost := uuid.New()
	studentID := uuid.New()

	host := Actor{ID: hostID, Role: models.RoleHost}
	other := Actor{ID: otherHost, Role: models.RoleHost}
	admin := Actor{ID: uuid.New(), Role: models.RoleAdmin}
	student := Actor{ID: studentID, Role: models.RoleStudent}
	anon := Actor{}

	owned := func(s models.WebinarStatus) Resource { return Resource{OwnerID: hostID, Status: s} }

	tests := []struct {
		name   string
		actor  Actor
		action Action
		res    Resource
		want   bool
	}{
		{"host submits", host, WebinarSubmit, Resource{}, true},
		{"admin submits", admin, WebinarSubmit, Resource{}, true},
		{"student cannot submit", student, WebinarSubmit, Resource{}, false},
		{"anonymous cannot submit", anon, WebinarSubmit, Resource{}, false},
		{"admin reviews", admin, WebinarReview, owned(models.WebinarPending), true},
		{"host cannot review own", host, WebinarReview, owned(models.WebinarPending), false},
		{"owner goes live", host, WebinarGoLive, owned(models.WebinarApproved), true},
		{"other host cannot go live", other, WebinarGoLive, owned(models.WebinarApproved), false},
		{"admin cannot go live", admin, WebinarGoLive, owned(models.WebinarApproved), false},
		{"student sees approved", student, WebinarView, owned(models.WebinarApproved), true},
		{"anonymous sees live", anon, WebinarView, owned(models.WebinarLive), true},
		{"student cannot see pending", student, WebinarView, owned(models.WebinarPending), false},
		{"owner sees rejected", host, WebinarView, owned(models.WebinarRejected), true},
		{"admin sees pending", admin, WebinarView, owned(models.WebinarPending), true},
		{"student registers", student, RegistrationCreate, owned(models.WebinarApproved), true},
		{"host cannot register", host, RegistrationCreate, owned(models.WebinarApproved), false},
		{"signed in posts chat", student, ChatPost, owned(models.WebinarLive), true},
		{"anonymous cannot post chat", anon, ChatPost, owned(models.WebinarLive), false},
		{"owner moderates", host, ChatModerate, owned(models.WebinarLive), true},
		{"student cannot moderate", student, ChatModerate, owned(models.WebinarLive), false},
		{"other host cannot moderate", other, ChatModerate, owned(models.WebinarLive), false},
		{"student issues own certificate", student, CertificateIssue, Resource{OwnerID: studentID}, true},
		{"host cannot issue student certificate", host, CertificateIssue, Resource{OwnerID: studentID}, false},
		{"owner lists attendees", host, WebinarAttendees, owned(models.WebinarLive), true},
		{"admin lists attendees", admin, WebinarAttendees, owned(models.WebinarLive), true},
		{"unknown action", admin, Action("nope"), Resource{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.actor, tt.action, tt.res))
		})
	}
}
