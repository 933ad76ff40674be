package realtime

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/attendance"
	"github.com/nexstream/backend/internal/certificates"
	"github.com/nexstream/backend/internal/models"
)

// ChatSnapshots reads a webinar's chat for a viewer.
type ChatSnapshots interface {
	Snapshot(ctx context.Context, actor access.Actor, webinarID uuid.UUID) (*models.ChatSnapshot, error)
}

// RegistrationFinder finds the student's registration for a webinar.
type RegistrationFinder interface {
	ForWebinar(ctx context.Context, studentID, webinarID uuid.UUID) (*models.Registration, error)
}

// AttendanceMonitor opens and runs viewing sessions.
type AttendanceMonitor interface {
	Open(ctx context.Context, reg *models.Registration) (*attendance.Session, error)
	Run(ctx context.Context, s *attendance.Session)
}

// CertificateUnlocker fires issuance when playback crosses the threshold.
type CertificateUnlocker interface {
	UnlockByWatchThreshold(ctx context.Context, u *certificates.Unlock, actor access.Actor, registrationID uuid.UUID, percentage float64) (*certificates.IssueResult, error)
}

// Viewer owns the per-connection viewing state of a webinar room.
type Viewer struct {
	chat    ChatSnapshots
	regs    RegistrationFinder
	monitor AttendanceMonitor
	certs   CertificateUnlocker
	logger  *zap.Logger
}

// NewViewer wires the collaborators of a webinar room.
func NewViewer(chat ChatSnapshots, regs RegistrationFinder, monitor AttendanceMonitor, certs CertificateUnlocker, logger *zap.Logger) *Viewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Viewer{chat: chat, regs: regs, monitor: monitor, certs: certs, logger: logger}
}

// Room is what a connection gets on joining a webinar.
type Room struct {
	Snapshot *models.ChatSnapshot
	viewing  *viewing
}

// viewing is the explicit per-session state: attendance and the one-shot certificate trigger.
type viewing struct {
	actor   access.Actor
	reg     *models.Registration
	session *attendance.Session
	unlock  certificates.Unlock
}

// Join checks the webinar is visible to the caller and, for a registered student, prepares a
// viewing session. Other callers join the room without one. Nothing is persisted until Open.
func (v *Viewer) Join(ctx context.Context, identity *models.Identity, webinarID uuid.UUID) (*Room, error) {
	actor := access.Actor{ID: identity.UserID, Role: identity.Role}
	snap, err := v.chat.Snapshot(ctx, actor, webinarID)
	if err != nil {
		return nil, err
	}
	room := &Room{Snapshot: snap}
	if identity.Role != models.RoleStudent {
		return room, nil
	}
	reg, err := v.regs.ForWebinar(ctx, identity.UserID, webinarID)
	if apperr.Is(err, apperr.KindNotFound) {
		return room, nil
	}
	if err != nil {
		return nil, err
	}
	room.viewing = &viewing{actor: actor, reg: reg}
	return room, nil
}

// Open starts the prepared viewing session once the connection is established. On failure
// the room continues without attendance.
func (v *Viewer) Open(ctx context.Context, room *Room) error {
	if room == nil || room.viewing == nil || room.viewing.session != nil {
		return nil
	}
	session, err := v.monitor.Open(ctx, room.viewing.reg)
	if err != nil {
		room.viewing = nil
		return err
	}
	room.viewing.session = session
	return nil
}

// Watch accrues attendance until ctx ends with the connection.
func (v *Viewer) Watch(ctx context.Context, vw *viewing) {
	v.monitor.Run(ctx, vw.session)
}

// Progress reports a playback percentage; it returns the issue result the first time the
// session crosses the unlock threshold.
func (v *Viewer) Progress(ctx context.Context, vw *viewing, percentage float64) (*certificates.IssueResult, error) {
	res, err := v.certs.UnlockByWatchThreshold(ctx, &vw.unlock, vw.actor, vw.reg.ID, percentage)
	if apperr.Is(err, apperr.KindInvalidState) {
		// not enough watch time yet; the session stays armed
		v.logger.Debug("certificate unlock not ready", zap.String("registration_id", vw.reg.ID.String()), zap.Error(err))
		return nil, nil
	}
	return res, err
}
