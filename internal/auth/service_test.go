package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/internal/users"
)

type memUsers struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*models.User
	byMail map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uuid.UUID]*models.User{}, byMail: map[string]*models.User{}}
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user")
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byMail[email]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user")
}

func (m *memUsers) Create(_ context.Context, p users.CreateParams) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byMail[p.Email]; ok {
		return nil, apperr.Duplicate("user")
	}
	u := &models.User{ID: uuid.New(), Email: p.Email, Password: p.PasswordHash, Name: p.Name, Role: p.Role, CreatedAt: time.Now()}
	m.byID[u.ID] = u
	m.byMail[u.Email] = u
	return u, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id uuid.UUID, name, college, phone string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	u.Name, u.College, u.Phone = name, college, phone
	return u, nil
}

type memRevocations struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (m *memRevocations) Revoke(_ context.Context, id string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = true
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id], nil
}

func newTestService() (*Service, *memUsers) {
	store := newMemUsers()
	svc := NewService(store, users.NewResolver(store), NewJWTService("test-secret", 1), &memRevocations{ids: map[string]bool{}}, nil)
	return svc, store
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("creates student by default", func(t *testing.T) {
		svc, _ := newTestService()
		sess, err := svc.SignUp(ctx, SignUpInput{Email: " Ada@Example.com", Password: "secret1", Name: "Ada"})
		require.NoError(t, err)
		assert.NotEmpty(t, sess.Token)
		assert.Equal(t, "ada@example.com", sess.User.Email)
		assert.Equal(t, models.RoleStudent, sess.User.Role)
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "secret1", Name: "A"})
		require.NoError(t, err)
		_, err = svc.SignUp(ctx, SignUpInput{Email: "A@B.co", Password: "secret2", Name: "B"})
		assert.True(t, apperr.Is(err, apperr.KindDuplicate))
	})

	t.Run("weak password", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "12345", Name: "A"})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("admin cannot be self-selected", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "secret1", Name: "A", Role: models.RoleAdmin})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("bad email", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.SignUp(ctx, SignUpInput{Email: "nope", Password: "secret1", Name: "A"})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestSignInAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	_, err := svc.SignUp(ctx, SignUpInput{Email: "host@b.co", Password: "secret1", Name: "Hosty", Role: models.RoleHost})
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, "host@b.co", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	_, err = svc.SignIn(ctx, "missing@b.co", "secret1")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	sess, err := svc.SignIn(ctx, "HOST@b.co", "secret1")
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleHost, id.Role)
	assert.Equal(t, "Hosty", id.Name)

	_, err = svc.Authenticate(ctx, "garbage")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestSignOutRevokesAndNotifies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	var events []*models.Identity
	cancel := svc.OnAuthChange(func(_ uuid.UUID, id *models.Identity) { events = append(events, id) })

	sess, err := svc.SignUp(ctx, SignUpInput{Email: "s@b.co", Password: "secret1", Name: "S"})
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx, sess.Token))

	require.Len(t, events, 2)
	assert.NotNil(t, events[0])
	assert.Nil(t, events[1])

	_, err = svc.Authenticate(ctx, sess.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	cancel()
	_, err = svc.SignIn(ctx, "s@b.co", "secret1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestJWTExpiry(t *testing.T) {
	j := NewJWTService("k", 1)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return base }
	tok, _, err := j.Generate(uuid.New(), "a@b.co", "A")
	require.NoError(t, err)

	_, err = j.Validate(tok)
	require.NoError(t, err)

	j.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = j.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	sess, err := svc.SignUp(ctx, SignUpInput{Email: "p@b.co", Password: "secret1", Name: "Old"})
	require.NoError(t, err)

	college := " MIT "
	me, err := svc.UpdateProfile(ctx, sess.Identity, ProfileInput{College: &college})
	require.NoError(t, err)
	assert.Equal(t, "Old", me.Name)
	assert.Equal(t, "MIT", me.College)

	blank := "  "
	_, err = svc.UpdateProfile(ctx, sess.Identity, ProfileInput{Name: &blank})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
