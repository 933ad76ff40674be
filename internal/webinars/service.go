package webinars

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/utils"
)

const (
	// TopicCatalog carries the student-visible webinar list.
	TopicCatalog = "catalog"
	// EventWebinarsChanged is published with a full list on every mutation.
	EventWebinarsChanged = "webinars_changed"

	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// HostTopic is the channel carrying one host's own webinar list.
func HostTopic(hostID uuid.UUID) string { return "host:" + hostID.String() }

// ListFilter narrows List queries. Zero values mean no filter.
type ListFilter struct {
	Statuses []models.WebinarStatus
	HostID   *uuid.UUID
	Category string
	Search   string
}

// Store persists webinars.
type Store interface {
	Create(ctx context.Context, w *models.Webinar) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
	List(ctx context.Context, f ListFilter) ([]models.Webinar, error)
	Transition(ctx context.Context, id uuid.UUID, from []models.WebinarStatus, to models.WebinarStatus, reviewer *uuid.UUID) (*models.Webinar, bool, error)
	GoLive(ctx context.Context, id uuid.UUID, meetingID string) (*models.Webinar, bool, error)
	UpdateContent(ctx context.Context, w *models.Webinar) (*models.Webinar, error)
	Delete(ctx context.Context, id uuid.UUID) error
	HasRegistrations(ctx context.Context, id uuid.UUID) (bool, error)
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(topic, event string, payload interface{})
}

// SubmitInput is the scheduling request filled in by a host.
type SubmitInput struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Category    string              `json:"category" validate:"required,max=80"`
	Description string              `json:"description" validate:"max=5000"`
	Syllabus    string              `json:"syllabus" validate:"max=5000"`
	Date        string              `json:"date" validate:"required"`
	Time        string              `json:"time" validate:"required"`
	PriceCents  int                 `json:"price_cents" validate:"gte=0"`
	Type        models.DeliveryMode `json:"type" validate:"required,oneof=youtube native"`
	YouTubeURL  string              `json:"youtube_url" validate:"omitempty,url"`
}

// UpdateInput holds optional host edits.
type UpdateInput struct {
	Title       *string `json:"title"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Syllabus    *string `json:"syllabus"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	PriceCents  *int    `json:"price_cents"`
	YouTubeURL  *string `json:"youtube_url"`
}

// Service is the webinar lifecycle manager.
type Service struct {
	store  Store
	pub    Publisher
	logger *zap.Logger
	now    func() time.Time
	loc    *time.Location
}

// NewService creates the lifecycle manager. Dates entered by hosts are read in loc.
func NewService(store Store, pub Publisher, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, pub: pub, logger: logger, now: time.Now, loc: loc}
}

func (s *Service) scheduledAt(date, clock string) (time.Time, error) {
	at, err := time.ParseInLocation(dateLayout+" "+timeLayout, strings.TrimSpace(date)+" "+strings.TrimSpace(clock), s.loc)
	if err != nil {
		return time.Time{}, apperr.Validation("date must be YYYY-MM-DD and time HH:MM")
	}
	return at, nil
}

// Submit creates a pending webinar owned by the actor.
func (s *Service) Submit(ctx context.Context, host *models.Identity, in SubmitInput) (*models.Webinar, error) {
	actor := access.Actor{ID: host.UserID, Role: host.Role}
	if !access.Can(actor, access.WebinarSubmit, access.Resource{}) {
		return nil, apperr.Permission("only hosts can schedule webinars")
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	at, err := s.scheduledAt(in.Date, in.Time)
	if err != nil {
		return nil, err
	}
	if at.Before(s.now()) {
		return nil, apperr.Validation("webinar date is in the past")
	}
	if in.Type == models.DeliveryYouTube && in.YouTubeURL == "" {
		return nil, apperr.ValidationFields(map[string]string{"youtube_url": "required"})
	}

	w := &models.Webinar{
		Title:       in.Title,
		Category:    in.Category,
		Description: in.Description,
		Syllabus:    in.Syllabus,
		Date:        in.Date,
		Time:        in.Time,
		ScheduledAt: at,
		PriceCents:  in.PriceCents,
		Type:        in.Type,
		YouTubeURL:  in.YouTubeURL,
		HostID:      actor.ID,
		HostName:    host.Name,
		HostEmail:   host.Email,
		Status:      models.WebinarPending,
	}
	if err := s.store.Create(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("webinar submitted", zap.String("webinar_id", w.ID.String()), zap.String("host_id", actor.ID.String()))
	s.broadcast(ctx, w.HostID, false)
	return w, nil
}

// Approve moves a pending webinar to approved.
func (s *Service) Approve(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Webinar, error) {
	return s.review(ctx, actor, id, models.WebinarApproved)
}

// Reject moves a pending webinar to rejected. Rejection is terminal.
func (s *Service) Reject(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Webinar, error) {
	return s.review(ctx, actor, id, models.WebinarRejected)
}

func (s *Service) review(ctx context.Context, actor access.Actor, id uuid.UUID, to models.WebinarStatus) (*models.Webinar, error) {
	w, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarReview, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.Permission("only admins can review webinars")
	}
	if !CanTransition(w.Status, to) {
		return nil, apperr.InvalidState("webinar is %s, not pending", w.Status)
	}
	reviewer := actor.ID
	updated, ok, err := s.store.Transition(ctx, id, sourcesOf(to), to, &reviewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState("webinar is no longer pending")
	}
	s.logger.Info("webinar reviewed", zap.String("webinar_id", id.String()), zap.String("status", string(to)), zap.String("admin_id", actor.ID.String()))
	s.broadcast(ctx, updated.HostID, true)
	return updated, nil
}

// GoLive starts (or resumes) the native session. The meeting id is generated once and reused.
func (s *Service) GoLive(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Webinar, error) {
	w, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarGoLive, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.Permission("only the owning host can go live")
	}
	if !CanTransition(w.Status, models.WebinarLive) {
		return nil, apperr.InvalidState("webinar is %s", w.Status)
	}
	updated, ok, err := s.store.GoLive(ctx, id, s.meetingID(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState("webinar can no longer go live")
	}
	s.logger.Info("webinar live", zap.String("webinar_id", id.String()), zap.String("meeting_id", updated.MeetingID))
	s.broadcast(ctx, updated.HostID, true)
	return updated, nil
}

func (s *Service) meetingID(id uuid.UUID) string {
	return fmt.Sprintf("%s-%d", id.String()[:8], s.now().UnixMilli())
}

// Update applies host edits. Rejected webinars are frozen.
func (s *Service) Update(ctx context.Context, actor access.Actor, id uuid.UUID, in UpdateInput) (*models.Webinar, error) {
	w, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarEdit, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.Permission("only the owning host can edit this webinar")
	}
	if w.Status == models.WebinarRejected {
		return nil, apperr.InvalidState("rejected webinars cannot be edited")
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&w.Title, in.Title)
	set(&w.Category, in.Category)
	set(&w.Description, in.Description)
	set(&w.Syllabus, in.Syllabus)
	set(&w.YouTubeURL, in.YouTubeURL)
	if in.PriceCents != nil {
		w.PriceCents = *in.PriceCents
	}
	if in.Date != nil || in.Time != nil {
		set(&w.Date, in.Date)
		set(&w.Time, in.Time)
		at, err := s.scheduledAt(w.Date, w.Time)
		if err != nil {
			return nil, err
		}
		if at.Before(s.now()) {
			return nil, apperr.Validation("webinar date is in the past")
		}
		w.ScheduledAt = at
	}
	if w.Title == "" || w.Category == "" {
		return nil, apperr.Validation("title and category are required")
	}
	if w.PriceCents < 0 {
		return nil, apperr.Validation("price cannot be negative")
	}

	updated, err := s.store.UpdateContent(ctx, w)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, updated.HostID, StudentVisible(updated.Status))
	return updated, nil
}

// Delete removes a webinar nobody registered for.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	w, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !access.Can(actor, access.WebinarDelete, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return apperr.Permission("only the owning host can delete this webinar")
	}
	has, err := s.store.HasRegistrations(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return apperr.InvalidState("webinar has registrations")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("webinar deleted", zap.String("webinar_id", id.String()))
	s.broadcast(ctx, w.HostID, StudentVisible(w.Status))
	return nil
}

// Get returns a webinar the actor may view. Hidden webinars look absent.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Webinar, error) {
	w, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarView, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.NotFound("webinar not found")
	}
	return w, nil
}

// ListVisible returns approved and live webinars for students.
func (s *Service) ListVisible(ctx context.Context, category, search string) ([]models.Webinar, error) {
	return s.store.List(ctx, ListFilter{
		Statuses: []models.WebinarStatus{models.WebinarApproved, models.WebinarLive},
		Category: strings.TrimSpace(category),
		Search:   strings.TrimSpace(search),
	})
}

// ListByHost returns every webinar of a host in any status.
func (s *Service) ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Webinar, error) {
	return s.store.List(ctx, ListFilter{HostID: &hostID})
}

// ListPending returns the admin review queue.
func (s *Service) ListPending(ctx context.Context, actor access.Actor) ([]models.Webinar, error) {
	if !access.Can(actor, access.WebinarReview, access.Resource{}) {
		return nil, apperr.Permission("only admins can review webinars")
	}
	return s.store.List(ctx, ListFilter{Statuses: []models.WebinarStatus{models.WebinarPending}})
}

// broadcast pushes fresh lists to the host and, when the catalog may have changed, to everyone.
func (s *Service) broadcast(ctx context.Context, hostID uuid.UUID, catalog bool) {
	if s.pub == nil {
		return
	}
	if list, err := s.ListByHost(ctx, hostID); err == nil {
		s.pub.Publish(HostTopic(hostID), EventWebinarsChanged, list)
	} else {
		s.logger.Warn("host list refresh failed", zap.String("host_id", hostID.String()), zap.Error(err))
	}
	if !catalog {
		return
	}
	if list, err := s.ListVisible(ctx, "", ""); err == nil {
		s.pub.Publish(TopicCatalog, EventWebinarsChanged, list)
	} else {
		s.logger.Warn("catalog refresh failed", zap.Error(err))
	}
}
