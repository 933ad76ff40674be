package registrations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/pkg/response"
)

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registration handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

// Register handles POST /webinars/:id/register. The body is optional.
func (h *Handler) Register(c *gin.Context) {
	id, ok := pathID(c, "webinar")
	if !ok {
		return
	}
	var req RegisterInput
	if c.Request.ContentLength > 0 && !response.Bind(c, &req) {
		return
	}
	reg, err := h.svc.Register(c.Request.Context(), middleware.CurrentIdentity(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// Mine handles GET /webinars/:id/registration.
func (h *Handler) Mine(c *gin.Context) {
	id, ok := pathID(c, "webinar")
	if !ok {
		return
	}
	reg, err := h.svc.ForWebinar(c.Request.Context(), middleware.CurrentActor(c).ID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// ListByWebinar handles GET /webinars/:id/registrations.
func (h *Handler) ListByWebinar(c *gin.Context) {
	id, ok := pathID(c, "webinar")
	if !ok {
		return
	}
	out, err := h.svc.ListByWebinar(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// Get handles GET /registrations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c, "registration")
	if !ok {
		return
	}
	reg, err := h.svc.Get(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// ListMine handles GET /me/registrations.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListByStudent(c.Request.Context(), middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ListPast handles GET /me/recordings: past sessions the student signed up for.
func (h *Handler) ListPast(c *gin.Context) {
	list, err := h.svc.ListPast(c.Request.Context(), middleware.CurrentActor(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
