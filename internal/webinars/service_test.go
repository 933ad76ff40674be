package webinars

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
)

type memStore struct {
	mu       sync.Mutex
	webinars map[uuid.UUID]*models.Webinar
	regs     map[uuid.UUID]bool

	// registerDuringDelete adds a registration between the check and the delete.
	registerDuringDelete bool
}

func newMemStore() *memStore {
	return &memStore{webinars: map[uuid.UUID]*models.Webinar{}, regs: map[uuid.UUID]bool{}}
}

func (m *memStore) Create(_ context.Context, w *models.Webinar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.ID = uuid.New()
	w.CreatedAt = time.Now()
	cp := *w
	m.webinars[w.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Webinar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webinars[id]
	if !ok {
		return nil, apperr.NotFound("webinar not found")
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]models.Webinar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Webinar{}
	for _, w := range m.webinars {
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, w.Status) {
			continue
		}
		if f.HostID != nil && w.HostID != *f.HostID {
			continue
		}
		if f.Category != "" && w.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(w.Title+" "+w.HostName), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

func containsStatus(list []models.WebinarStatus, s models.WebinarStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memStore) Transition(_ context.Context, id uuid.UUID, from []models.WebinarStatus, to models.WebinarStatus, reviewer *uuid.UUID) (*models.Webinar, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webinars[id]
	if !ok || !containsStatus(from, w.Status) {
		return nil, false, nil
	}
	w.Status = to
	w.ReviewedBy = reviewer
	cp := *w
	return &cp, true, nil
}

func (m *memStore) GoLive(_ context.Context, id uuid.UUID, meetingID string) (*models.Webinar, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webinars[id]
	if !ok || w.Status == models.WebinarRejected {
		return nil, false, nil
	}
	w.Status = models.WebinarLive
	w.Type = models.DeliveryNative
	if w.MeetingID == "" {
		w.MeetingID = meetingID
	}
	cp := *w
	return &cp, true, nil
}

func (m *memStore) UpdateContent(_ context.Context, w *models.Webinar) (*models.Webinar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.webinars[w.ID] = &cp
	return w, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.regs[id] {
		return apperr.InvalidState("delete webinar: still referenced")
	}
	delete(m.webinars, id)
	return nil
}

func (m *memStore) HasRegistrations(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	has := m.regs[id]
	if m.registerDuringDelete {
		m.regs[id] = true
	}
	return has, nil
}

type published struct {
	topic, event string
	payload      interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(topic, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic, event, payload})
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memStore, *recordingPublisher) {
	store := newMemStore()
	pub := &recordingPublisher{}
	svc := NewService(store, pub, time.UTC, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, store, pub
}

var (
	hostIdentity = &models.Identity{UserID: uuid.New(), Name: "Grace", Email: "grace@example.com", Role: models.RoleHost}
	host         = access.Actor{ID: hostIdentity.UserID, Role: models.RoleHost}
	admin        = access.Actor{ID: uuid.New(), Role: models.RoleAdmin}
	student      = access.Actor{ID: uuid.New(), Role: models.RoleStudent}
)

func validInput() SubmitInput {
	return SubmitInput{
		Title:      "Intro to Go",
		Category:   "Programming",
		Date:       fixedNow.AddDate(0, 0, 1).Format(dateLayout),
		Time:       "10:00",
		Type:       models.DeliveryYouTube,
		YouTubeURL: "https://youtube.com/watch?v=abc",
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("past date is rejected", func(t *testing.T) {
		svc, _, _ := newTestService()
		in := validInput()
		in.Date = "2020-01-01"
		_, err := svc.Submit(ctx, hostIdentity, in)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("earlier today is rejected", func(t *testing.T) {
		svc, _, _ := newTestService()
		in := validInput()
		in.Date = fixedNow.Format(dateLayout)
		in.Time = "11:59"
		_, err := svc.Submit(ctx, hostIdentity, in)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("tomorrow succeeds as pending", func(t *testing.T) {
		svc, _, pub := newTestService()
		w, err := svc.Submit(ctx, hostIdentity, validInput())
		require.NoError(t, err)
		assert.Equal(t, models.WebinarPending, w.Status)
		assert.Equal(t, hostIdentity.UserID, w.HostID)
		assert.Equal(t, "Grace", w.HostName)
		// pending webinars do not touch the public catalog
		assert.Equal(t, []string{HostTopic(hostIdentity.UserID)}, pub.topics())
	})

	t.Run("students cannot submit", func(t *testing.T) {
		svc, _, _ := newTestService()
		stu := &models.Identity{UserID: student.ID, Role: models.RoleStudent}
		_, err := svc.Submit(ctx, stu, validInput())
		assert.True(t, apperr.Is(err, apperr.KindPermission))
	})

	t.Run("youtube mode needs a url", func(t *testing.T) {
		svc, _, _ := newTestService()
		in := validInput()
		in.YouTubeURL = ""
		_, err := svc.Submit(ctx, hostIdentity, in)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("missing title", func(t *testing.T) {
		svc, _, _ := newTestService()
		in := validInput()
		in.Title = "   "
		_, err := svc.Submit(ctx, hostIdentity, in)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestReview(t *testing.T) {
	ctx := context.Background()

	t.Run("approve then reject fails", func(t *testing.T) {
		svc, _, pub := newTestService()
		w, err := svc.Submit(ctx, hostIdentity, validInput())
		require.NoError(t, err)

		approved, err := svc.Approve(ctx, admin, w.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WebinarApproved, approved.Status)
		assert.Equal(t, "https://youtube.com/watch?v=abc", approved.YouTubeURL)
		assert.Contains(t, pub.topics(), TopicCatalog)

		_, err = svc.Reject(ctx, admin, w.ID)
		assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	})

	t.Run("reject is terminal", func(t *testing.T) {
		svc, _, _ := newTestService()
		w, err := svc.Submit(ctx, hostIdentity, validInput())
		require.NoError(t, err)
		_, err = svc.Reject(ctx, admin, w.ID)
		require.NoError(t, err)

		_, err = svc.Approve(ctx, admin, w.ID)
		assert.True(t, apperr.Is(err, apperr.KindInvalidState))
		_, err = svc.GoLive(ctx, host, w.ID)
		assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	})

	t.Run("missing webinar", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.Approve(ctx, admin, uuid.New())
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("only admins review", func(t *testing.T) {
		svc, _, _ := newTestService()
		w, err := svc.Submit(ctx, hostIdentity, validInput())
		require.NoError(t, err)
		_, err = svc.Approve(ctx, host, w.ID)
		assert.True(t, apperr.Is(err, apperr.KindPermission))
	})
}

func TestGoLive(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	w, err := svc.Submit(ctx, hostIdentity, validInput())
	require.NoError(t, err)

	_, err = svc.GoLive(ctx, access.Actor{ID: uuid.New(), Role: models.RoleHost}, w.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermission))

	live, err := svc.GoLive(ctx, host, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WebinarLive, live.Status)
	assert.Equal(t, models.DeliveryNative, live.Type)
	assert.True(t, strings.HasPrefix(live.MeetingID, w.ID.String()[:8]+"-"))

	svc.now = func() time.Time { return fixedNow.Add(time.Hour) }
	resumed, err := svc.GoLive(ctx, host, w.ID)
	require.NoError(t, err)
	assert.Equal(t, live.MeetingID, resumed.MeetingID)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()
	w, err := svc.Submit(ctx, hostIdentity, validInput())
	require.NoError(t, err)

	title := "Advanced Go"
	updated, err := svc.Update(ctx, host, w.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Advanced Go", updated.Title)

	past := "2020-01-01"
	_, err = svc.Update(ctx, host, w.ID, UpdateInput{Date: &past})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Update(ctx, student, w.ID, UpdateInput{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindPermission))

	store.regs[w.ID] = true
	err = svc.Delete(ctx, host, w.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	store.regs[w.ID] = false
	require.NoError(t, svc.Delete(ctx, host, w.ID))
	_, err = store.GetByID(ctx, w.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteLosesRaceWithRegistration(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService()
	w, err := svc.Submit(ctx, hostIdentity, validInput())
	require.NoError(t, err)
	before := len(pub.topics())

	store.registerDuringDelete = true
	err = svc.Delete(ctx, host, w.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	kept, err := store.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, kept.ID)
	assert.Len(t, pub.topics(), before)
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	pending, err := svc.Submit(ctx, hostIdentity, validInput())
	require.NoError(t, err)
	in := validInput()
	in.Title = "Rust for Gophers"
	in.Category = "Systems"
	other, err := svc.Submit(ctx, hostIdentity, in)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, other.ID)
	require.NoError(t, err)

	list, err := svc.ListVisible(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)

	list, err = svc.ListVisible(ctx, "Programming", "")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.ListVisible(ctx, "", "rust")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Get(ctx, student, pending.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = svc.Get(ctx, host, pending.ID)
	assert.NoError(t, err)

	mine, err := svc.ListByHost(ctx, host.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	queue, err := svc.ListPending(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
	_, err = svc.ListPending(ctx, host)
	assert.True(t, apperr.Is(err, apperr.KindPermission))
}
