package webinars

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/pkg/response"
)

// Handler handles webinar HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a webinar handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func webinarID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /webinars?category=&search=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.ListVisible(c.Request.Context(), c.Query("category"), c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /webinars/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := webinarID(c)
	if !ok {
		return
	}
	w, err := h.svc.Get(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, w)
}

// Create handles POST /webinars.
func (h *Handler) Create(c *gin.Context) {
	var req SubmitInput
	if !response.Bind(c, &req) {
		return
	}
	w, err := h.svc.Submit(c.Request.Context(), middleware.CurrentIdentity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, w)
}

// ListMine handles GET /host/webinars.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListByHost(c.Request.Context(), middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /webinars/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := webinarID(c)
	if !ok {
		return
	}
	var req UpdateInput
	if !response.Bind(c, &req) {
		return
	}
	w, err := h.svc.Update(c.Request.Context(), middleware.CurrentActor(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, w)
}

// Delete handles DELETE /webinars/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := webinarID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GoLive handles POST /webinars/:id/go-live.
func (h *Handler) GoLive(c *gin.Context) {
	id, ok := webinarID(c)
	if !ok {
		return
	}
	w, err := h.svc.GoLive(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, w)
}

// ListPending handles GET /admin/webinars/pending.
func (h *Handler) ListPending(c *gin.Context) {
	list, err := h.svc.ListPending(c.Request.Context(), middleware.CurrentActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Approve handles POST /admin/webinars/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := webinarID(c)
	if !ok {
		return
	}
	w, err := h.svc.Approve(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, w)
}

// Reject handles POST /admin/webinars/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	id, ok := webinarID(c)
	if !ok {
		return
	}
	w, err := h.svc.Reject(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, w)
}
