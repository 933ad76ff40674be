package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexstream/backend/internal/access"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for the resolved role in gin context.
	ContextUserRole = "user_role"
	// ContextIdentity is the key for the full *models.Identity.
	ContextIdentity = "identity"
	// ContextToken is the key for the raw bearer token.
	ContextToken = "token"
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// JWT returns a middleware that requires a valid token and sets the identity in context.
// The token is read from the Authorization header, or the token query parameter for WebSocket upgrades.
func JWT(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			response.Unauthorized(c, "missing or invalid authorization header")
			c.Abort()
			return
		}
		identity, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		setIdentity(c, identity, token)
		c.Next()
	}
}

// OptionalJWT sets the identity when a valid token is present and lets anonymous requests through.
func OptionalJWT(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearer(c); ok {
			if identity, err := authn.Authenticate(c.Request.Context(), token); err == nil {
				setIdentity(c, identity, token)
			}
		}
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		t := c.Query("token")
		return t, t != ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setIdentity(c *gin.Context, identity *models.Identity, token string) {
	c.Set(ContextIdentity, identity)
	c.Set(ContextUserID, identity.UserID)
	c.Set(ContextUserRole, identity.Role)
	c.Set(ContextToken, token)
}

// CurrentIdentity returns the authenticated identity, or nil for anonymous requests.
func CurrentIdentity(c *gin.Context) *models.Identity {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil
	}
	id, _ := v.(*models.Identity)
	return id
}

// CurrentActor returns the caller as an access.Actor; anonymous callers have a nil ID.
func CurrentActor(c *gin.Context) access.Actor {
	id := CurrentIdentity(c)
	if id == nil {
		return access.Actor{ID: uuid.Nil}
	}
	return access.Actor{ID: id.UserID, Role: id.Role}
}
