package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/internal/users"
	"github.com/nexstream/backend/pkg/utils"
)

// UserStore is the subset of the user repository the identity provider needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, p users.CreateParams) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, college, phone string) (*models.User, error)
}

// RoleResolver maps an identity to its current role.
type RoleResolver interface {
	ResolveRole(ctx context.Context, id uuid.UUID) (models.Role, error)
}

// Revocations remembers signed-out tokens.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ChangeFunc observes sign-in and sign-out. On sign-out identity is nil.
type ChangeFunc func(userID uuid.UUID, identity *models.Identity)

// SignUpInput is the data captured by the sign-up form.
type SignUpInput struct {
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required"`
	Name     string      `json:"name" validate:"required"`
	Role     models.Role `json:"role"`
	College  string      `json:"college"`
	Phone    string      `json:"phone"`
}

// Session is a signed-in identity plus its bearer token.
type Session struct {
	Token    string            `json:"token"`
	User     models.UserPublic `json:"user"`
	Identity *models.Identity  `json:"-"`
}

// Service is the identity provider: sign-up, sign-in, sign-out and token authentication.
type Service struct {
	users     UserStore
	roles     RoleResolver
	jwt       *JWTService
	revoked   Revocations
	logger    *zap.Logger
	mu        sync.RWMutex
	observers map[int]ChangeFunc
	nextObs   int
}

// NewService creates the identity provider.
func NewService(store UserStore, roles RoleResolver, jwt *JWTService, revoked Revocations, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:     store,
		roles:     roles,
		jwt:       jwt,
		revoked:   revoked,
		logger:    logger,
		observers: make(map[int]ChangeFunc),
	}
}

// SignUp creates a student or host account and signs it in. Admin cannot be self-selected.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if len(in.Password) < utils.MinPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", utils.MinPasswordLength)
	}
	if in.Role == "" {
		in.Role = models.RoleStudent
	}
	if in.Role != models.RoleStudent && in.Role != models.RoleHost {
		return nil, apperr.Validation("role must be student or host")
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperr.Duplicate("email already in use")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Validation("password too long")
	}
	user, err := s.users.Create(ctx, users.CreateParams{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         in.Role,
		College:      strings.TrimSpace(in.College),
		Phone:        strings.TrimSpace(in.Phone),
	})
	if apperr.Is(err, apperr.KindDuplicate) {
		return nil, apperr.Duplicate("email already in use")
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return s.startSession(user)
}

// SignIn checks credentials and issues a token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, utils.NormalizeEmail(email))
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	return s.startSession(user)
}

func (s *Service) startSession(user *models.User) (*Session, error) {
	token, claims, err := s.jwt.Generate(user.ID, user.Email, user.Name)
	if err != nil {
		return nil, apperr.Remote(err, "sign token")
	}
	id := &models.Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if !id.Role.Valid() {
		id.Role = models.RoleStudent
	}
	s.notify(user.ID, id)
	return &Session{Token: token, User: user.ToPublic(), Identity: id}, nil
}

// SignOut revokes the token until its natural expiry and tells observers.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return apperr.Unauthenticated("invalid or expired token")
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		return apperr.Remote(err, "revoke token")
	}
	s.logger.Info("user signed out", zap.String("user_id", claims.UserID.String()))
	s.notify(claims.UserID, nil)
	return nil
}

// Authenticate resolves a bearer token to an identity with its current role.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Remote(err, "check token revocation")
	}
	if revoked {
		return nil, apperr.Unauthenticated("session signed out")
	}
	role, err := s.roles.ResolveRole(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return &models.Identity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Name:      claims.Name,
		Role:      role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Me returns the stored profile of the identity.
func (s *Service) Me(ctx context.Context, id *models.Identity) (models.UserPublic, error) {
	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return models.UserPublic{}, err
	}
	pub := user.ToPublic()
	pub.Role = id.Role
	return pub, nil
}

// OnAuthChange registers fn for sign-in/sign-out events and returns its cancel func.
func (s *Service) OnAuthChange(fn ChangeFunc) (cancel func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(userID uuid.UUID, identity *models.Identity) {
	s.mu.RLock()
	fns := make([]ChangeFunc, 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(userID, identity)
	}
}

// ProfileInput holds optional profile edits.
type ProfileInput struct {
	Name    *string `json:"name"`
	College *string `json:"college"`
	Phone   *string `json:"phone"`
}

// UpdateProfile edits the caller's display name and profile fields. Email and role are not editable.
func (s *Service) UpdateProfile(ctx context.Context, id *models.Identity, in ProfileInput) (models.UserPublic, error) {
	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return models.UserPublic{}, err
	}
	name, college, phone := user.Name, user.College, user.Phone
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if in.College != nil {
		college = strings.TrimSpace(*in.College)
	}
	if in.Phone != nil {
		phone = strings.TrimSpace(*in.Phone)
	}
	if name == "" {
		return models.UserPublic{}, apperr.ValidationFields(map[string]string{"name": "required"})
	}
	updated, err := s.users.UpdateProfile(ctx, id.UserID, name, college, phone)
	if err != nil {
		return models.UserPublic{}, err
	}
	pub := updated.ToPublic()
	pub.Role = id.Role
	return pub, nil
}
