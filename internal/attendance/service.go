// Package attendance accrues watch time against registrations while a student's
// viewing page is open and visible.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
)

// Store applies watch-time increments and records viewing sessions.
type Store interface {
	AddMinutes(ctx context.Context, registrationID uuid.UUID, delta float64, at time.Time) error
	OpenSession(ctx context.Context, s *models.ViewingSessionLog) error
	CloseSession(ctx context.Context, id uuid.UUID, leftAt time.Time, watchSeconds int64) error
	ListSessions(ctx context.Context, webinarID uuid.UUID) ([]models.ViewingSessionLog, error)
}

// Dedup claims attendance slots.
type Dedup interface {
	First(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Registrations reads registrations.
type Registrations interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// Webinars reads webinars.
type Webinars interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// Service records watch time.
type Service struct {
	store    Store
	dedup    Dedup
	regs     Registrations
	webinars Webinars
	delta    float64
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the attendance service. delta is the minutes credited per heartbeat.
func NewService(store Store, dedup Dedup, regs Registrations, webinars Webinars, delta float64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, dedup: dedup, regs: regs, webinars: webinars, delta: delta, logger: logger, now: time.Now}
}

// Accrue adds delta minutes to the registration at most once per delta of wall-clock time.
// Every viewing page and heartbeat of a registration claims the same time slot, so extra tabs
// or a chatty client cannot credit more than real time. credited is false when the slot was
// already taken.
func (s *Service) Accrue(ctx context.Context, registrationID uuid.UUID, delta float64) (credited bool, err error) {
	if delta <= 0 {
		return false, apperr.Validation("delta must be positive")
	}
	window := time.Duration(delta * float64(time.Minute))
	key := fmt.Sprintf("%s:%d", registrationID, s.now().UnixNano()/int64(window))
	first, err := s.dedup.First(ctx, key)
	if err != nil {
		return false, apperr.Remote(err, "claim attendance slot")
	}
	if !first {
		return false, nil
	}
	if err := s.store.AddMinutes(ctx, registrationID, delta, s.now()); err != nil {
		if ferr := s.dedup.Forget(ctx, key); ferr != nil {
			s.logger.Warn("release attendance slot failed", zap.String("slot", key), zap.Error(ferr))
		}
		return false, err
	}
	return true, nil
}

// Heartbeat credits one interval for the caller's own registration.
func (s *Service) Heartbeat(ctx context.Context, actor access.Actor, registrationID uuid.UUID) (bool, error) {
	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		return false, err
	}
	if !access.Can(actor, access.AttendanceRecord, access.Resource{OwnerID: reg.StudentID}) {
		return false, apperr.NotFound("registration not found")
	}
	return s.Accrue(ctx, registrationID, s.delta)
}

// ListSessions returns a webinar's viewing sessions to its host or an admin.
func (s *Service) ListSessions(ctx context.Context, actor access.Actor, webinarID uuid.UUID) ([]models.ViewingSessionLog, error) {
	w, err := s.webinars.GetByID(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarAttendees, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.Permission("only the owning host can view attendance")
	}
	return s.store.ListSessions(ctx, webinarID)
}
