package certificates

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/pkg/response"
)

// Handler serves eligibility, issuance and public verification.
type Handler struct {
	svc *Service
}

// NewHandler creates a certificate handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func registrationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return uuid.Nil, false
	}
	return id, true
}

// Eligibility handles GET /registrations/:id/eligibility.
func (h *Handler) Eligibility(c *gin.Context) {
	id, ok := registrationID(c)
	if !ok {
		return
	}
	e, err := h.svc.CheckEligibility(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, e)
}

// Issue handles POST /registrations/:id/certificate.
func (h *Handler) Issue(c *gin.Context) {
	id, ok := registrationID(c)
	if !ok {
		return
	}
	res, err := h.svc.Issue(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.AlreadyIssued {
		response.OK(c, res)
		return
	}
	response.Created(c, res)
}

// Verify handles GET /certificates/:certId.
func (h *Handler) Verify(c *gin.Context) {
	cert, err := h.svc.Find(c.Request.Context(), c.Param("certId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cert)
}

// Download handles GET /certificates/:certId/download.
func (h *Handler) Download(c *gin.Context) {
	d, err := h.svc.Download(c.Request.Context(), c.Param("certId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if d.URL != "" {
		c.Redirect(http.StatusFound, d.URL)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="certificate.png"`)
	c.Data(http.StatusOK, "image/png", d.PNG)
}
