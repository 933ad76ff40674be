package notify

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/apperr"
	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/response"
)

// LogStore lists delivery attempts.
type LogStore interface {
	ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.EmailLog, error)
}

// Webinars reads webinars.
type Webinars interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// Handler exposes the email delivery log of a webinar to its host and admins.
type Handler struct {
	logs     LogStore
	webinars Webinars
}

// NewHandler creates an email log handler.
func NewHandler(logs LogStore, webinars Webinars) *Handler {
	return &Handler{logs: logs, webinars: webinars}
}

// EmailLogs returns the delivery log of a webinar the actor may see attendees of.
func (h *Handler) EmailLogs(ctx context.Context, actor access.Actor, webinarID uuid.UUID) ([]models.EmailLog, error) {
	w, err := h.webinars.GetByID(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.WebinarAttendees, access.Resource{OwnerID: w.HostID, Status: w.Status}) {
		return nil, apperr.Permission("only the host or an admin can view email logs")
	}
	logs, err := h.logs.ListByWebinar(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.EmailLog{}
	}
	return logs, nil
}

// ListByWebinar handles GET /webinars/:id/emails.
func (h *Handler) ListByWebinar(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	logs, err := h.EmailLogs(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}
