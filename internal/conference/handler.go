package conference

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/pkg/response"
)

// Handler serves widget tokens.
type Handler struct {
	svc *Service
}

// NewHandler creates a conference handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Token handles GET /webinars/:id/conference-token.
func (h *Handler) Token(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	tok, err := h.svc.RoomToken(c.Request.Context(), middleware.CurrentIdentity(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tok)
}
