package registrations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/internal/notify"
	"github.com/nexstream/backend/pkg/queue"
	"github.com/nexstream/backend/pkg/utils"
)

// EventRegistrationsChanged carries a student's full registration list.
const EventRegistrationsChanged = "registrations_changed"

// UserTopic is the channel carrying one user's own registrations.
func UserTopic(userID uuid.UUID) string { return "user:" + userID.String() }

// Store persists registrations.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByStudentAndWebinar(ctx context.Context, studentID, webinarID uuid.UUID) (*models.Registration, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Registration, error)
	ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error)
	StatsByWebinar(ctx context.Context, webinarID uuid.UUID) (models.RegistrationStats, error)
	ListPastWebinars(ctx context.Context, studentID uuid.UUID, before time.Time) ([]models.Webinar, error)
}

// WebinarLookup reads webinars.
type WebinarLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// Mailer queues outgoing email.
type Mailer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(topic, event string, payload interface{})
}

// RegisterInput holds the contact data a student confirms when registering.
// Empty fields fall back to the signed-in profile.
type RegisterInput struct {
	Name  string `json:"name" validate:"max=120"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"max=32"`
}

// Attendees is the host view of a webinar's registrations.
type Attendees struct {
	Registrations []models.Registration    `json:"registrations"`
	Stats         models.RegistrationStats `json:"stats"`
}

// Service is the registration tracker.
type Service struct {
	store    Store
	webinars WebinarLookup
	mailer   Mailer
	pub      Publisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the registration tracker. mailer and pub may be nil.
func NewService(store Store, webinars WebinarLookup, mailer Mailer, pub Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, webinars: webinars, mailer: mailer, pub: pub, logger: logger, now: time.Now}
}

// Register records the student's registration. Webinars students cannot see are reported absent.
func (s *Service) Register(ctx context.Context, student *models.Identity, webinarID uuid.UUID, in RegisterInput) (*models.Registration, error) {
	actor := access.Actor{}
	if student != nil {
		actor = access.Actor{ID: student.UserID, Role: student.Role}
	}
	if !access.Can(actor, access.RegistrationCreate, access.Resource{}) {
		return nil, apperr.Permission("only students can register for webinars")
	}
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	w, err := s.webinars.GetByID(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	if !w.StudentVisible() {
		return nil, apperr.NotFound("webinar not found")
	}
	if _, err := s.store.GetByStudentAndWebinar(ctx, student.UserID, webinarID); err == nil {
		return nil, apperr.Duplicate("already registered for this webinar")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	contact := contactFor(student, in)
	reg := &models.Registration{
		WebinarID:    w.ID,
		WebinarTitle: w.Title,
		StudentID:    student.UserID,
		StudentName:  contact.Name,
		StudentEmail: contact.Email,
		StudentPhone: contact.Phone,
	}
	if err := s.store.Create(ctx, reg); err != nil {
		if apperr.Is(err, apperr.KindDuplicate) {
			return nil, apperr.Duplicate("already registered for this webinar")
		}
		return nil, err
	}
	s.logger.Info("registered", zap.String("registration_id", reg.ID.String()),
		zap.String("webinar_id", w.ID.String()), zap.String("student_id", student.UserID.String()))

	s.sendConfirmation(ctx, w, reg)
	s.broadcast(ctx, student.UserID)
	return reg, nil
}

func contactFor(student *models.Identity, in RegisterInput) models.ContactInfo {
	c := models.ContactInfo{
		Name:  strings.TrimSpace(in.Name),
		Email: utils.NormalizeEmail(in.Email),
		Phone: strings.TrimSpace(in.Phone),
	}
	if c.Name == "" {
		c.Name = student.Name
	}
	if c.Email == "" {
		c.Email = student.Email
	}
	return c
}

// sendConfirmation is best effort; a failed enqueue never fails the registration.
func (s *Service) sendConfirmation(ctx context.Context, w *models.Webinar, reg *models.Registration) {
	if s.mailer == nil || reg.StudentEmail == "" {
		return
	}
	subject, body, err := notify.RegistrationEmail(notify.RegistrationData{
		StudentName:  reg.StudentName,
		WebinarTitle: w.Title,
		HostName:     w.HostName,
		Date:         w.Date,
		Time:         w.Time,
	})
	if err == nil {
		err = s.mailer.EnqueueEmail(ctx, queue.EmailPayload{
			EmailType:      models.EmailTypeRegistrationConfirmation,
			WebinarID:      w.ID,
			RegistrationID: reg.ID,
			RecipientEmail: reg.StudentEmail,
			Subject:        subject,
			BodyMarkdown:   body,
		})
	}
	if err != nil {
		s.logger.Warn("registration confirmation not queued", zap.String("registration_id", reg.ID.String()), zap.Error(err))
	}
}

// IsRegistered reports whether the student holds a registration for the webinar.
func (s *Service) IsRegistered(ctx context.Context, studentID, webinarID uuid.UUID) (bool, error) {
	_, err := s.store.GetByStudentAndWebinar(ctx, studentID, webinarID)
	if err == nil {
		return true, nil
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	return false, err
}

// ForWebinar returns the caller's registration for a webinar.
func (s *Service) ForWebinar(ctx context.Context, studentID, webinarID uuid.UUID) (*models.Registration, error) {
	return s.store.GetByStudentAndWebinar(ctx, studentID, webinarID)
}

// Get returns a registration visible to the actor: its student, the webinar host or an admin.
// Anything else looks absent.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Anonymous() && reg.StudentID == actor.ID {
		return reg, nil
	}
	w, err := s.webinars.GetByID(ctx, reg.WebinarID)
	if err == nil && access.Can(actor, access.WebinarAttendees, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return reg, nil
	}
	return nil, apperr.NotFound("registration not found")
}

// ListByStudent returns the student's registrations, newest first.
func (s *Service) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Registration, error) {
	return s.store.ListByStudent(ctx, studentID)
}

// ListPast returns webinars the student registered for that have already started.
func (s *Service) ListPast(ctx context.Context, studentID uuid.UUID) ([]models.Webinar, error) {
	return s.store.ListPastWebinars(ctx, studentID, s.now())
}

// ListByWebinar returns registrations and totals for the owning host or an admin.
func (s *Service) ListByWebinar(ctx context.Context, actor access.Actor, webinarID uuid.UUID) (*Attendees, error) {
	w, err := s.webinars.GetByID(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarAttendees, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.Permission("only the owning host can view attendees")
	}
	list, err := s.store.ListByWebinar(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.StatsByWebinar(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	return &Attendees{Registrations: list, Stats: stats}, nil
}

// Refresh republishes a student's registration list. Called after attendance or issuance changes.
func (s *Service) Refresh(ctx context.Context, studentID uuid.UUID) {
	s.broadcast(ctx, studentID)
}

func (s *Service) broadcast(ctx context.Context, studentID uuid.UUID) {
	if s.pub == nil {
		return
	}
	list, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Warn("registration list refresh failed", zap.String("student_id", studentID.String()), zap.Error(err))
		return
	}
	s.pub.Publish(UserTopic(studentID), EventRegistrationsChanged, list)
}
