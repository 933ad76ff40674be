package notify

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/models"
)

type stubLogs map[uuid.UUID][]models.EmailLog

func (s stubLogs) ListByWebinar(_ context.Context, id uuid.UUID) ([]models.EmailLog, error) {
	return s[id], nil
}

type stubWebinars map[uuid.UUID]*models.Webinar

func (s stubWebinars) GetByID(_ context.Context, id uuid.UUID) (*models.Webinar, error) {
	if w, ok := s[id]; ok {
		return w, nil
	}
	return nil, apperr.NotFound("webinar")
}

func TestEmailLogsAccess(t *testing.T) {
	hostID := uuid.New()
	w := &models.Webinar{ID: uuid.New(), HostID: hostID, Status: models.WebinarLive}
	h := NewHandler(
		stubLogs{w.ID: {{ID: uuid.New(), WebinarID: &w.ID, EmailType: models.EmailTypeRegistrationConfirmation}}},
		stubWebinars{w.ID: w},
	)
	ctx := context.Background()

	logs, err := h.EmailLogs(ctx, access.Actor{ID: hostID, Role: models.RoleHost}, w.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, err = h.EmailLogs(ctx, access.Actor{ID: uuid.New(), Role: models.RoleAdmin}, w.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = h.EmailLogs(ctx, access.Actor{ID: uuid.New(), Role: models.RoleStudent}, w.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermission))

	_, err = h.EmailLogs(ctx, access.Actor{ID: hostID, Role: models.RoleHost}, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
