package conference

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/config"
	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
)

// Widget roles.
const (
	RoleHost   = "host"
	RoleViewer = "viewer"
)

// Webinars reads webinars.
type Webinars interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// Registrations answers whether a student may watch.
type Registrations interface {
	IsRegistered(ctx context.Context, studentID, webinarID uuid.UUID) (bool, error)
}

// RoomToken is what the widget needs to join a room.
type RoomToken struct {
	Token     string    `json:"token"`
	AppID     uint32    `json:"app_id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues widget tokens.
type Service struct {
	webinars Webinars
	regs     Registrations
	cfg      config.ZegoConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the token service.
func NewService(webinars Webinars, regs Registrations, cfg config.ZegoConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{webinars: webinars, regs: regs, cfg: cfg, logger: logger, now: time.Now}
}

// RoomToken returns a token for the webinar's meeting room. The owning host publishes;
// registered students and admins join as viewers.
func (s *Service) RoomToken(ctx context.Context, user *models.Identity, webinarID uuid.UUID) (*RoomToken, error) {
	actor := access.Actor{ID: user.UserID, Role: user.Role}
	w, err := s.webinars.GetByID(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarView, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.NotFound("webinar not found")
	}
	if w.Type != models.DeliveryNative || w.Status != models.WebinarLive || w.MeetingID == "" {
		return nil, apperr.InvalidState("webinar is not live in native mode")
	}

	role := RoleViewer
	switch {
	case access.Can(actor, access.WebinarGoLive, access.Resource{OwnerID: w.HostID, Status: w.Status}):
		role = RoleHost
	case user.Role == models.RoleAdmin:
	default:
		ok, err := s.regs.IsRegistered(ctx, user.UserID, webinarID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Permission("register for this webinar to join")
		}
	}

	ttl := time.Duration(s.cfg.TokenTTLHours) * time.Hour
	token, err := generateRoomToken(s.cfg.AppID, s.cfg.ServerSecret, w.MeetingID, user.UserID.String(), role == RoleHost, int64(ttl/time.Second))
	if err != nil {
		s.logger.Error("conference token generation failed", zap.String("webinar_id", webinarID.String()), zap.Error(err))
		return nil, apperr.Remote(err, "conference token")
	}
	return &RoomToken{
		Token:     token,
		AppID:     s.cfg.AppID,
		RoomID:    w.MeetingID,
		UserID:    user.UserID.String(),
		UserName:  user.Name,
		Role:      role,
		ExpiresAt: s.now().Add(ttl),
	}, nil
}
