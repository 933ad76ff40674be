package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nexstream/backend/internal/middleware"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/response"
)

// SignUpRequest is the body for POST /auth/signup.
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"omitempty,oneof=student host"`
	College  string `json:"college"`
	Phone    string `json:"phone"`
}

// SignInRequest is the body for POST /auth/signin.
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// SignUp handles POST /auth/signup.
func (h *Handler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if !response.Bind(c, &req) {
		return
	}
	sess, err := h.svc.SignUp(c.Request.Context(), SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     models.Role(req.Role),
		College:  req.College,
		Phone:    req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sess)
}

// SignIn handles POST /auth/signin.
func (h *Handler) SignIn(c *gin.Context) {
	var req SignInRequest
	if !response.Bind(c, &req) {
		return
	}
	sess, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// SignOut handles POST /auth/signout.
func (h *Handler) SignOut(c *gin.Context) {
	token := c.GetString(middleware.ContextToken)
	if err := h.svc.SignOut(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	me, err := h.svc.Me(c.Request.Context(), middleware.CurrentIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, me)
}

// UpdateMe handles PATCH /auth/me.
func (h *Handler) UpdateMe(c *gin.Context) {
	var req ProfileInput
	if !response.Bind(c, &req) {
		return
	}
	me, err := h.svc.UpdateProfile(c.Request.Context(), middleware.CurrentIdentity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, me)
}
