// Package chat is the per-webinar message log with a single pinned slot.
package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/config"
	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
)

// EventSnapshot carries a full models.ChatSnapshot.
const EventSnapshot = "chat_snapshot"

// Topic is the live channel of one webinar room.
func Topic(webinarID uuid.UUID) string { return "webinar:" + webinarID.String() }

// Store persists messages and the pinned slot.
type Store interface {
	Append(ctx context.Context, m *models.ChatMessage) error
	List(ctx context.Context, webinarID uuid.UUID) ([]models.ChatMessage, error)
	Delete(ctx context.Context, webinarID, messageID uuid.UUID) error
	Pin(ctx context.Context, p *models.PinnedMessage) error
	Unpin(ctx context.Context, webinarID uuid.UUID) error
	Pinned(ctx context.Context, webinarID uuid.UUID) (*models.PinnedMessage, error)
}

// Webinars reads webinars.
type Webinars interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// Limiter throttles posting per author.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(topic, event string, payload interface{})
}

// Service is the chat and moderation channel.
type Service struct {
	store    Store
	webinars Webinars
	limiter  Limiter
	pub      Publisher
	cfg      config.ChatConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the chat channel. limiter and pub may be nil.
func NewService(store Store, webinars Webinars, limiter Limiter, pub Publisher, cfg config.ChatConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		webinars: webinars,
		limiter:  limiter,
		pub:      pub,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) webinar(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Webinar, error) {
	w, err := s.webinars.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarView, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.NotFound("webinar not found")
	}
	return w, nil
}

func (s *Service) moderated(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Webinar, error) {
	w, err := s.webinar(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ChatModerate, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.Permission("only the host can moderate this chat")
	}
	return w, nil
}

// Post appends a message from the signed-in author.
func (s *Service) Post(ctx context.Context, author *models.Identity, webinarID uuid.UUID, text string) (*models.ChatMessage, error) {
	actor := access.Actor{}
	if author != nil {
		actor = access.Actor{ID: author.UserID, Role: author.Role}
	}
	if !access.Can(actor, access.ChatPost, access.Resource{}) {
		return nil, apperr.Unauthenticated("sign in to chat")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.ValidationFields(map[string]string{"text": "required"})
	}
	if s.cfg.MaxLength > 0 && utf8.RuneCountInString(text) > s.cfg.MaxLength {
		return nil, apperr.ValidationFields(map[string]string{"text": "too long"})
	}
	if _, err := s.webinar(ctx, actor, webinarID); err != nil {
		return nil, err
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, webinarID.String()+":"+author.UserID.String())
		if err != nil {
			s.logger.Warn("chat rate limiter unavailable", zap.Error(err))
		} else if !ok {
			return nil, apperr.Validation("slow down")
		}
	}

	m := &models.ChatMessage{
		WebinarID:  webinarID,
		AuthorID:   author.UserID,
		AuthorName: author.Name,
		AuthorRole: author.Role,
		Text:       text,
		CreatedAt:  s.now(),
	}
	if err := s.store.Append(ctx, m); err != nil {
		return nil, err
	}
	s.changed(ctx, webinarID)
	return m, nil
}

// Pin overwrites the pinned slot.
func (s *Service) Pin(ctx context.Context, actor access.Actor, webinarID uuid.UUID, text string) (*models.PinnedMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.ValidationFields(map[string]string{"text": "required"})
	}
	if s.cfg.MaxLength > 0 && utf8.RuneCountInString(text) > s.cfg.MaxLength {
		return nil, apperr.ValidationFields(map[string]string{"text": "too long"})
	}
	if _, err := s.moderated(ctx, actor, webinarID); err != nil {
		return nil, err
	}
	p := &models.PinnedMessage{WebinarID: webinarID, Text: text, PinnedBy: actor.ID, PinnedAt: s.now()}
	if err := s.store.Pin(ctx, p); err != nil {
		return nil, err
	}
	s.changed(ctx, webinarID)
	return p, nil
}

// Unpin clears the pinned slot.
func (s *Service) Unpin(ctx context.Context, actor access.Actor, webinarID uuid.UUID) error {
	if _, err := s.moderated(ctx, actor, webinarID); err != nil {
		return err
	}
	if err := s.store.Unpin(ctx, webinarID); err != nil {
		return err
	}
	s.changed(ctx, webinarID)
	return nil
}

// Delete hard-removes one message.
func (s *Service) Delete(ctx context.Context, actor access.Actor, webinarID, messageID uuid.UUID) error {
	if _, err := s.moderated(ctx, actor, webinarID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, webinarID, messageID); err != nil {
		return err
	}
	s.logger.Info("chat message deleted", zap.String("webinar_id", webinarID.String()),
		zap.String("message_id", messageID.String()), zap.String("moderator_id", actor.ID.String()))
	s.changed(ctx, webinarID)
	return nil
}

// Snapshot returns the ordered messages and the pinned slot for a viewer.
func (s *Service) Snapshot(ctx context.Context, actor access.Actor, webinarID uuid.UUID) (*models.ChatSnapshot, error) {
	if _, err := s.webinar(ctx, actor, webinarID); err != nil {
		return nil, err
	}
	return s.load(ctx, webinarID)
}

func (s *Service) load(ctx context.Context, webinarID uuid.UUID) (*models.ChatSnapshot, error) {
	msgs, err := s.store.List(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	pinned, err := s.store.Pinned(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	return &models.ChatSnapshot{WebinarID: webinarID, Messages: msgs, Pinned: pinned}, nil
}

// changed publishes a fresh snapshot to the webinar's live channel.
// The write already succeeded, so failures here are only logged.
func (s *Service) changed(ctx context.Context, webinarID uuid.UUID) {
	snap, err := s.load(ctx, webinarID)
	if err != nil {
		s.logger.Warn("chat snapshot failed", zap.String("webinar_id", webinarID.String()), zap.Error(err))
		return
	}
	if s.pub != nil {
		s.pub.Publish(Topic(webinarID), EventSnapshot, snap)
	}
}
