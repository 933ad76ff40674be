// Package certificates decides eligibility from watch time, mints certificates once per
// registration and serves them for public verification.
package certificates

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/config"
	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/queue"
	"github.com/nexstream/backend/pkg/storage"
)

const issuedOnLayout = "January 2, 2006"

// IssueParams are the inputs of the transactional issue.
type IssueParams struct {
	RegistrationID  uuid.UUID
	RequiredMinutes float64
	IssuedOn        string
	At              time.Time
	NewID           func() (string, error)
}

// Store persists certificates.
type Store interface {
	Issue(ctx context.Context, p IssueParams) (*models.IssuedCertificate, bool, error)
	GetByID(ctx context.Context, id string) (*models.IssuedCertificate, error)
	SetImageKey(ctx context.Context, id, key string) error
}

// Registrations reads registrations.
type Registrations interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// Jobs queues background work.
type Jobs interface {
	EnqueueCertificate(ctx context.Context, payload queue.CertificatePayload) error
}

// ObjectStore keeps rendered images.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// Refresher republishes a student's registration list.
type Refresher interface {
	Refresh(ctx context.Context, studentID uuid.UUID)
}

// Eligibility is the read-only outcome of CheckEligibility.
type Eligibility struct {
	Eligible bool    `json:"eligible"`
	Watched  float64 `json:"watched"`
	Required float64 `json:"required"`
}

// IssueResult describes an Issue call. SideEffectErrors lists failures after the
// certificate was committed; they never undo it.
type IssueResult struct {
	Certificate      *models.IssuedCertificate `json:"certificate"`
	AlreadyIssued    bool                      `json:"already_issued"`
	SideEffectErrors []string                  `json:"side_effect_errors,omitempty"`
}

// Download is either a presigned URL or a freshly rendered PNG.
type Download struct {
	URL string
	PNG []byte
}

// Service is the certificate issuer.
type Service struct {
	store    Store
	regs     Registrations
	jobs     Jobs
	objects  ObjectStore
	renderer *Renderer
	refresh  Refresher
	cfg      config.CertificateConfig
	newID    func() (string, error)
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the issuer. jobs, objects and refresh may be nil.
func NewService(store Store, regs Registrations, jobs Jobs, objects ObjectStore, refresh Refresher, cfg config.CertificateConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		regs:     regs,
		jobs:     jobs,
		objects:  objects,
		renderer: NewRenderer(),
		refresh:  refresh,
		cfg:      cfg,
		newID:    NewIDFunc(cfg.IDPrefix),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) ownRegistration(ctx context.Context, actor access.Actor, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.regs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.CertificateIssue, access.Resource{OwnerID: reg.StudentID}) {
		return nil, apperr.NotFound("registration not found")
	}
	return reg, nil
}

// CheckEligibility reports whether the registration watched enough. Equal to the threshold is eligible.
func (s *Service) CheckEligibility(ctx context.Context, actor access.Actor, registrationID uuid.UUID) (*Eligibility, error) {
	reg, err := s.ownRegistration(ctx, actor, registrationID)
	if err != nil {
		return nil, err
	}
	return &Eligibility{
		Eligible: reg.MinutesWatched >= s.cfg.RequiredMinutes,
		Watched:  reg.MinutesWatched,
		Required: s.cfg.RequiredMinutes,
	}, nil
}

// Issue mints the certificate once. Calling it again returns the existing certificate.
func (s *Service) Issue(ctx context.Context, actor access.Actor, registrationID uuid.UUID) (*IssueResult, error) {
	reg, err := s.ownRegistration(ctx, actor, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status == models.RegistrationActive && reg.MinutesWatched < s.cfg.RequiredMinutes {
		return nil, apperr.InvalidState("watched %.1f of %.1f required minutes", reg.MinutesWatched, s.cfg.RequiredMinutes)
	}
	at := s.now()
	cert, already, err := s.store.Issue(ctx, IssueParams{
		RegistrationID:  registrationID,
		RequiredMinutes: s.cfg.RequiredMinutes,
		IssuedOn:        at.Format(issuedOnLayout),
		At:              at,
		NewID:           s.newID,
	})
	if err != nil {
		return nil, err
	}
	res := &IssueResult{Certificate: cert, AlreadyIssued: already}
	if already {
		return res, nil
	}
	s.logger.Info("certificate issued", zap.String("certificate_id", cert.ID), zap.String("registration_id", registrationID.String()))

	if s.jobs != nil {
		if err := s.jobs.EnqueueCertificate(ctx, queue.CertificatePayload{
			CertificateID:  cert.ID,
			RegistrationID: cert.RegistrationID,
			WebinarID:      cert.WebinarID,
		}); err != nil {
			s.logger.Error("certificate job not queued", zap.String("certificate_id", cert.ID), zap.Error(err))
			res.SideEffectErrors = append(res.SideEffectErrors, "certificate email could not be scheduled")
		}
	}
	if s.refresh != nil {
		s.refresh.Refresh(ctx, cert.StudentID)
	}
	return res, nil
}

// Find returns a certificate by code. Codes are matched case-insensitively.
func (s *Service) Find(ctx context.Context, id string) (*models.IssuedCertificate, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return nil, apperr.Validation("certificate id is required")
	}
	return s.store.GetByID(ctx, id)
}

// VerifyURL is the public verification link encoded in the certificate QR code.
func (s *Service) VerifyURL(certID string) string {
	if s.cfg.VerifyBaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.VerifyBaseURL, "/") + "/" + certID
}

// Download returns a presigned link to the stored image, or renders one when it is not stored yet.
func (s *Service) Download(ctx context.Context, id string) (*Download, error) {
	cert, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.ImageKey != "" && s.objects != nil {
		url, err := s.objects.PresignedDownloadURL(ctx, cert.ImageKey)
		if err == nil {
			return &Download{URL: url}, nil
		}
		s.logger.Warn("presign failed, rendering inline", zap.String("certificate_id", cert.ID), zap.Error(err))
	}
	png, err := s.renderer.Render(cert, s.VerifyURL(cert.ID))
	if err != nil {
		return nil, err
	}
	return &Download{PNG: png}, nil
}

// StoreImage renders the certificate, uploads it and records the key. Used by the worker.
func (s *Service) StoreImage(ctx context.Context, cert *models.IssuedCertificate) error {
	if s.objects == nil {
		return nil
	}
	if cert.ImageKey != "" {
		return nil
	}
	png, err := s.renderer.Render(cert, s.VerifyURL(cert.ID))
	if err != nil {
		return err
	}
	key, err := s.objects.Upload(ctx, storage.CertificateKey(cert.WebinarID.String(), cert.ID), "image/png", bytes.NewReader(png))
	if err != nil {
		return err
	}
	if err := s.store.SetImageKey(ctx, cert.ID, key); err != nil {
		return err
	}
	cert.ImageKey = key
	return nil
}

// Unlock is the per-viewing-session trigger state. The zero value is ready to use.
type Unlock struct {
	fired atomic.Bool
}

// Fired reports whether this session already unlocked its certificate.
func (u *Unlock) Fired() bool { return u.fired.Load() }

// UnlockByWatchThreshold issues the certificate the first time playback reaches the
// unlock percentage in a session. It returns nil when nothing fired. A failed issue
// leaves the session armed for the next progress report.
func (s *Service) UnlockByWatchThreshold(ctx context.Context, u *Unlock, actor access.Actor, registrationID uuid.UUID, percentage float64) (*IssueResult, error) {
	if percentage < s.cfg.UnlockPercent {
		return nil, nil
	}
	if !u.fired.CompareAndSwap(false, true) {
		return nil, nil
	}
	res, err := s.Issue(ctx, actor, registrationID)
	if err != nil {
		u.fired.Store(false)
		return nil, err
	}
	return res, nil
}
