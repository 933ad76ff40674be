package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/attendance"
	"github.com/nexstream/backend/internal/certificates"
	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/internal/models"
)

type fakeChat struct{ visible map[uuid.UUID]bool }

func (f fakeChat) Snapshot(_ context.Context, _ access.Actor, id uuid.UUID) (*models.ChatSnapshot, error) {
	if !f.visible[id] {
		return nil, apperr.NotFound("webinar not found")
	}
	return &models.ChatSnapshot{WebinarID: id, Messages: []models.ChatMessage{}}, nil
}

type fakeRegs map[uuid.UUID]*models.Registration // by student

func (f fakeRegs) ForWebinar(_ context.Context, studentID, webinarID uuid.UUID) (*models.Registration, error) {
	if r, ok := f[studentID]; ok && r.WebinarID == webinarID {
		return r, nil
	}
	return nil, apperr.NotFound("registration not found")
}

type fakeMonitor struct {
	mu     sync.Mutex
	opened int
	err    error
}

func (f *fakeMonitor) Open(_ context.Context, reg *models.Registration) (*attendance.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.opened++
	return &attendance.Session{Log: models.ViewingSessionLog{RegistrationID: reg.ID}}, nil
}

func (f *fakeMonitor) Run(ctx context.Context, _ *attendance.Session) { <-ctx.Done() }

type fakeUnlocker struct {
	calls    int
	eligible bool
}

func (f *fakeUnlocker) UnlockByWatchThreshold(_ context.Context, u *certificates.Unlock, _ access.Actor, _ uuid.UUID, pct float64) (*certificates.IssueResult, error) {
	f.calls++
	if pct < 50 || u.Fired() {
		return nil, nil
	}
	if !f.eligible {
		return nil, apperr.InvalidState("not enough watch time")
	}
	return &certificates.IssueResult{Certificate: &models.IssuedCertificate{ID: "NS-000001"}}, nil
}

func TestViewerJoin(t *testing.T) {
	ctx := context.Background()
	webinarID := uuid.New()
	student := &models.Identity{UserID: uuid.New(), Role: models.RoleStudent}
	stranger := &models.Identity{UserID: uuid.New(), Role: models.RoleStudent}
	host := &models.Identity{UserID: uuid.New(), Role: models.RoleHost}
	mon := &fakeMonitor{}
	v := NewViewer(fakeChat{visible: map[uuid.UUID]bool{webinarID: true}},
		fakeRegs{student.UserID: {ID: uuid.New(), WebinarID: webinarID, StudentID: student.UserID}}, mon, &fakeUnlocker{}, nil)

	room, err := v.Join(ctx, student, webinarID)
	require.NoError(t, err)
	require.NotNil(t, room.viewing)
	assert.NotNil(t, room.Snapshot)
	assert.Nil(t, room.viewing.session)
	assert.Equal(t, 0, mon.opened, "joining persists nothing")

	require.NoError(t, v.Open(ctx, room))
	require.NotNil(t, room.viewing.session)
	require.NoError(t, v.Open(ctx, room))

	room, err = v.Join(ctx, stranger, webinarID)
	require.NoError(t, err)
	assert.Nil(t, room.viewing)

	room, err = v.Join(ctx, host, webinarID)
	require.NoError(t, err)
	assert.Nil(t, room.viewing)
	require.NoError(t, v.Open(ctx, room))
	assert.Equal(t, 1, mon.opened)

	_, err = v.Join(ctx, student, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestViewerOpenFailureDropsViewing(t *testing.T) {
	ctx := context.Background()
	webinarID := uuid.New()
	student := &models.Identity{UserID: uuid.New(), Role: models.RoleStudent}
	mon := &fakeMonitor{err: apperr.Remote(errors.New("db down"), "open session")}
	v := NewViewer(fakeChat{visible: map[uuid.UUID]bool{webinarID: true}},
		fakeRegs{student.UserID: {ID: uuid.New(), WebinarID: webinarID, StudentID: student.UserID}}, mon, &fakeUnlocker{}, nil)

	room, err := v.Join(ctx, student, webinarID)
	require.NoError(t, err)
	err = v.Open(ctx, room)
	assert.True(t, apperr.Is(err, apperr.KindRemote))
	assert.Nil(t, room.viewing)
	assert.NotNil(t, room.Snapshot)
}

func TestServeWsFailedUpgradeOpensNoSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	webinarID := uuid.New()
	student := &models.Identity{UserID: uuid.New(), Role: models.RoleStudent}
	mon := &fakeMonitor{}
	v := NewViewer(fakeChat{visible: map[uuid.UUID]bool{webinarID: true}},
		fakeRegs{student.UserID: {ID: uuid.New(), WebinarID: webinarID, StudentID: student.UserID}}, mon, &fakeUnlocker{}, nil)
	hub := NewHub(nil, nil)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set(middleware.ContextIdentity, student)
		c.Next()
	}, ServeWs(hub, v, nil, nil))

	// A plain GET carries no upgrade headers, so the handshake fails.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?webinar_id="+webinarID.String(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mon.mu.Lock()
	defer mon.mu.Unlock()
	assert.Equal(t, 0, mon.opened)
}

func TestViewerProgress(t *testing.T) {
	ctx := context.Background()
	unlocker := &fakeUnlocker{}
	v := NewViewer(nil, nil, nil, unlocker, nil)
	vw := &viewing{reg: &models.Registration{ID: uuid.New()}}

	res, err := v.Progress(ctx, vw, 70)
	require.NoError(t, err, "ineligible sessions stay quiet")
	assert.Nil(t, res)

	unlocker.eligible = true
	res, err = v.Progress(ctx, vw, 70)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "NS-000001", res.Certificate.ID)
}
