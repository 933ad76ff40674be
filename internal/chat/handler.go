package chat

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/pkg/response"
)

// Handler serves chat reads, posts and moderation.
type Handler struct {
	svc *Service
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type textRequest struct {
	Text string `json:"text" binding:"required"`
}

func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

// Snapshot handles GET /webinars/:id/chat.
func (h *Handler) Snapshot(c *gin.Context) {
	id, ok := parseID(c, "id", "webinar")
	if !ok {
		return
	}
	snap, err := h.svc.Snapshot(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, snap)
}

// Post handles POST /webinars/:id/chat.
func (h *Handler) Post(c *gin.Context) {
	id, ok := parseID(c, "id", "webinar")
	if !ok {
		return
	}
	var req textRequest
	if !response.Bind(c, &req) {
		return
	}
	m, err := h.svc.Post(c.Request.Context(), middleware.CurrentIdentity(c), id, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}

// Delete handles DELETE /webinars/:id/chat/:messageId.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "webinar")
	if !ok {
		return
	}
	msgID, ok := parseID(c, "messageId", "message")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentActor(c), id, msgID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Pin handles PUT /webinars/:id/chat/pin.
func (h *Handler) Pin(c *gin.Context) {
	id, ok := parseID(c, "id", "webinar")
	if !ok {
		return
	}
	var req textRequest
	if !response.Bind(c, &req) {
		return
	}
	p, err := h.svc.Pin(c.Request.Context(), middleware.CurrentActor(c), id, req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// Unpin handles DELETE /webinars/:id/chat/pin.
func (h *Handler) Unpin(c *gin.Context) {
	id, ok := parseID(c, "id", "webinar")
	if !ok {
		return
	}
	if err := h.svc.Unpin(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
