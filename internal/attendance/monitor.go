package attendance

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/models"
)

// Session is one open viewing page. Visibility is reported by the client.
type Session struct {
	Log     models.ViewingSessionLog
	visible atomic.Bool
	watched atomic.Int64
}

// SetVisible records whether the viewing page is in the foreground.
func (s *Session) SetVisible(v bool) { s.visible.Store(v) }

// Visible reports the last reported visibility.
func (s *Session) Visible() bool { return s.visible.Load() }

// WatchedSeconds is the visible time credited so far.
func (s *Session) WatchedSeconds() int64 { return s.watched.Load() }

// Monitor ticks open sessions and accrues watch time while they are visible.
type Monitor struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor creates a monitor crediting svc's delta every interval.
func NewMonitor(svc *Service, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{svc: svc, interval: interval, logger: logger}
}

// Open starts a viewing session for a registration. The session starts visible.
func (m *Monitor) Open(ctx context.Context, reg *models.Registration) (*Session, error) {
	s := &Session{Log: models.ViewingSessionLog{
		WebinarID:      reg.WebinarID,
		RegistrationID: reg.ID,
		UserID:         reg.StudentID,
		JoinedAt:       m.svc.now(),
	}}
	if err := m.svc.store.OpenSession(ctx, &s.Log); err != nil {
		return nil, err
	}
	s.SetVisible(true)
	return s, nil
}

// Run accrues watch time until ctx is cancelled, then closes the session.
// Accrual errors are logged and the tick is skipped.
func (m *Monitor) Run(ctx context.Context, s *Session) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer m.close(s)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.Visible() {
				continue
			}
			if _, err := m.svc.Accrue(ctx, s.Log.RegistrationID, m.svc.delta); err != nil {
				if ctx.Err() == nil {
					m.logger.Warn("attendance accrual failed",
						zap.String("registration_id", s.Log.RegistrationID.String()), zap.Error(err))
				}
				continue
			}
			s.watched.Add(int64(m.interval / time.Second))
		}
	}
}

func (m *Monitor) close(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.svc.store.CloseSession(ctx, s.Log.ID, m.svc.now(), s.WatchedSeconds()); err != nil {
		m.logger.Warn("close viewing session failed", zap.String("session_id", s.Log.ID.String()), zap.Error(err))
	}
}
