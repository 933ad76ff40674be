package certificates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexstream/backend/config"
	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/queue"
)

// memStore mirrors the transactional issue: one lock guards the registration and the certificates.
type memStore struct {
	mu    sync.Mutex
	regs  map[uuid.UUID]*models.Registration
	certs map[string]*models.IssuedCertificate
}

func newMemStore(regs ...*models.Registration) *memStore {
	m := &memStore{regs: map[uuid.UUID]*models.Registration{}, certs: map[string]*models.IssuedCertificate{}}
	for _, r := range regs {
		m.regs[r.ID] = r
	}
	return m
}

func (m *memStore) Issue(_ context.Context, p IssueParams) (*models.IssuedCertificate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[p.RegistrationID]
	if !ok {
		return nil, false, apperr.NotFound("registration not found")
	}
	if reg.Status == models.RegistrationCompleted {
		return m.certs[*reg.CertificateID], true, nil
	}
	if reg.MinutesWatched < p.RequiredMinutes {
		return nil, false, apperr.InvalidState("not eligible")
	}
	for i := 0; i < MaxIDAttempts; i++ {
		id, err := p.NewID()
		if err != nil {
			return nil, false, err
		}
		if _, taken := m.certs[id]; taken {
			continue
		}
		cert := &models.IssuedCertificate{ID: id, RegistrationID: reg.ID, WebinarID: reg.WebinarID, StudentID: reg.StudentID,
			StudentName: reg.StudentName, CourseTitle: reg.WebinarTitle, IssuedOn: p.IssuedOn, CreatedAt: p.At}
		m.certs[id] = cert
		reg.Status = models.RegistrationCompleted
		reg.CertificateID = &cert.ID
		reg.CompletedAt = &p.At
		return cert, false, nil
	}
	return nil, false, apperr.Remote(errors.New("exhausted"), "insert certificate")
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.IssuedCertificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.certs[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, apperr.NotFound("certificate not found")
}

func (m *memStore) SetImageKey(_ context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certs[id].ImageKey = key
	return nil
}

func (m *memStore) GetRegistration(id uuid.UUID) models.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.regs[id]
}

type regLookup struct{ m *memStore }

func (r regLookup) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if reg, ok := r.m.regs[id]; ok {
		cp := *reg
		return &cp, nil
	}
	return nil, apperr.NotFound("registration not found")
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []queue.CertificatePayload
	err  error
}

func (f *fakeJobs) EnqueueCertificate(_ context.Context, p queue.CertificatePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, p)
	return nil
}

type fakeObjects struct {
	keys map[string][]byte
}

func (f *fakeObjects) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.keys[key] = b
	return key, nil
}

func (f *fakeObjects) PresignedDownloadURL(_ context.Context, key string) (string, error) {
	return "https://bucket.example/" + key + "?sig=1", nil
}

var testCfg = config.CertificateConfig{RequiredMinutes: 1, UnlockPercent: 50, IDPrefix: "NS", VerifyBaseURL: "https://nexstream.dev/verify"}

func newRegistration(watched float64) *models.Registration {
	return &models.Registration{ID: uuid.New(), WebinarID: uuid.New(), StudentID: uuid.New(), StudentName: "Ada",
		WebinarTitle: "Intro to Go", MinutesWatched: watched, Status: models.RegistrationActive}
}

func newTestService(regs ...*models.Registration) (*Service, *memStore, *fakeJobs, *fakeObjects) {
	store := newMemStore(regs...)
	jobs := &fakeJobs{}
	objects := &fakeObjects{keys: map[string][]byte{}}
	svc := NewService(store, regLookup{store}, jobs, objects, nil, testCfg, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc, store, jobs, objects
}

func ownerOf(reg *models.Registration) access.Actor {
	return access.Actor{ID: reg.StudentID, Role: models.RoleStudent}
}

func TestCheckEligibility(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		watched  float64
		eligible bool
	}{
		{0, false},
		{0.5, false},
		{1, true},
		{1.5, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.1f minutes", tt.watched), func(t *testing.T) {
			reg := newRegistration(tt.watched)
			svc, _, _, _ := newTestService(reg)
			e, err := svc.CheckEligibility(ctx, ownerOf(reg), reg.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.eligible, e.Eligible)
			assert.Equal(t, tt.watched, e.Watched)
			assert.Equal(t, 1.0, e.Required)
		})
	}

	t.Run("other students see nothing", func(t *testing.T) {
		reg := newRegistration(2)
		svc, _, _, _ := newTestService(reg)
		_, err := svc.CheckEligibility(ctx, access.Actor{ID: uuid.New(), Role: models.RoleStudent}, reg.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestIssueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := newRegistration(1)
	svc, store, jobs, _ := newTestService(reg)

	first, err := svc.Issue(ctx, ownerOf(reg), reg.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyIssued)
	assert.Regexp(t, regexp.MustCompile(`^NS-\d{6}$`), first.Certificate.ID)
	assert.Equal(t, "March 10, 2026", first.Certificate.IssuedOn)

	second, err := svc.Issue(ctx, ownerOf(reg), reg.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyIssued)
	assert.Equal(t, first.Certificate.ID, second.Certificate.ID)

	assert.Len(t, store.certs, 1)
	assert.Len(t, jobs.jobs, 1)
	got := store.GetRegistration(reg.ID)
	assert.Equal(t, models.RegistrationCompleted, got.Status)
	require.NotNil(t, got.CertificateID)
	assert.Equal(t, first.Certificate.ID, *got.CertificateID)
}

func TestIssueConcurrentCallsMintOnce(t *testing.T) {
	reg := newRegistration(3)
	svc, store, _, _ := newTestService(reg)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Issue(context.Background(), ownerOf(reg), reg.ID)
			if err == nil {
				ids[i] = res.Certificate.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.certs, 1)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestIssueNotEligible(t *testing.T) {
	reg := newRegistration(0.5)
	svc, store, _, _ := newTestService(reg)
	_, err := svc.Issue(context.Background(), ownerOf(reg), reg.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	assert.Empty(t, store.certs)
}

func TestIssueRetriesIDCollisions(t *testing.T) {
	reg := newRegistration(1)
	svc, store, _, _ := newTestService(reg)
	store.certs["NS-000001"] = &models.IssuedCertificate{ID: "NS-000001"}

	seq := []string{"NS-000001", "NS-000001", "NS-000002"}
	svc.newID = func() (string, error) {
		id := seq[0]
		seq = seq[1:]
		return id, nil
	}
	res, err := svc.Issue(context.Background(), ownerOf(reg), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "NS-000002", res.Certificate.ID)
}

func TestIssueSideEffectFailureKeepsCertificate(t *testing.T) {
	reg := newRegistration(1)
	svc, store, jobs, _ := newTestService(reg)
	jobs.err = errors.New("redis down")

	res, err := svc.Issue(context.Background(), ownerOf(reg), reg.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.SideEffectErrors)
	assert.Len(t, store.certs, 1)
}

func TestAccrualScenario(t *testing.T) {
	ctx := context.Background()
	reg := newRegistration(0.5)
	svc, store, _, _ := newTestService(reg)

	e, err := svc.CheckEligibility(ctx, ownerOf(reg), reg.ID)
	require.NoError(t, err)
	assert.False(t, e.Eligible)

	store.mu.Lock()
	store.regs[reg.ID].MinutesWatched += 0.5
	store.mu.Unlock()

	e, err = svc.CheckEligibility(ctx, ownerOf(reg), reg.ID)
	require.NoError(t, err)
	assert.True(t, e.Eligible)

	res, err := svc.Issue(ctx, ownerOf(reg), reg.ID)
	require.NoError(t, err)
	found, err := svc.Find(ctx, " "+res.Certificate.ID+" ")
	require.NoError(t, err)
	assert.Equal(t, res.Certificate.ID, found.ID)

	_, err = svc.Find(ctx, "NS-999999x")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUnlockByWatchThreshold(t *testing.T) {
	ctx := context.Background()

	t.Run("fires once per session", func(t *testing.T) {
		reg := newRegistration(2)
		svc, store, _, _ := newTestService(reg)
		var u Unlock

		res, err := svc.UnlockByWatchThreshold(ctx, &u, ownerOf(reg), reg.ID, 49.9)
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.False(t, u.Fired())

		res, err = svc.UnlockByWatchThreshold(ctx, &u, ownerOf(reg), reg.ID, 50)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.True(t, u.Fired())

		res, err = svc.UnlockByWatchThreshold(ctx, &u, ownerOf(reg), reg.ID, 80)
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Len(t, store.certs, 1)
	})

	t.Run("failed issue re-arms", func(t *testing.T) {
		reg := newRegistration(0)
		svc, _, _, _ := newTestService(reg)
		var u Unlock
		_, err := svc.UnlockByWatchThreshold(ctx, &u, ownerOf(reg), reg.ID, 60)
		assert.True(t, apperr.Is(err, apperr.KindInvalidState))
		assert.False(t, u.Fired())
	})
}

func TestStoreImageAndDownload(t *testing.T) {
	ctx := context.Background()
	reg := newRegistration(1)
	svc, store, _, objects := newTestService(reg)
	res, err := svc.Issue(ctx, ownerOf(reg), reg.ID)
	require.NoError(t, err)
	id := res.Certificate.ID

	d, err := svc.Download(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, d.URL)
	_, err = png.Decode(bytes.NewReader(d.PNG))
	require.NoError(t, err)

	cert, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.NoError(t, svc.StoreImage(ctx, cert))
	assert.Len(t, objects.keys, 1)

	d, err = svc.Download(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, d.URL, id+".png")
}

func TestLowercasePrefixStaysVerifiable(t *testing.T) {
	ctx := context.Background()
	reg := newRegistration(1)
	store := newMemStore(reg)
	cfg := testCfg
	cfg.IDPrefix = "ns"
	svc := NewService(store, regLookup{store}, &fakeJobs{}, nil, nil, cfg, nil)

	res, err := svc.Issue(ctx, ownerOf(reg), reg.ID)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^NS-\d{6}$`), res.Certificate.ID)

	for _, code := range []string{res.Certificate.ID, strings.ToLower(res.Certificate.ID)} {
		found, err := svc.Find(ctx, code)
		require.NoError(t, err, code)
		assert.Equal(t, res.Certificate.ID, found.ID)
	}
}
