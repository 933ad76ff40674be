package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexstream/backend/internal/apperr"
)

func init() { gin.SetMode(gin.TestMode) }

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("bad"), http.StatusBadRequest, "validation"},
		{apperr.Duplicate("dup"), http.StatusConflict, "duplicate"},
		{apperr.NotFound("nf"), http.StatusNotFound, "not_found"},
		{apperr.Permission("no"), http.StatusForbidden, "permission"},
		{apperr.Unauthenticated("who"), http.StatusUnauthorized, "unauthenticated"},
		{apperr.InvalidState("state"), http.StatusConflict, "invalid_state"},
		{apperr.Remote(errors.New("db down"), "op"), http.StatusServiceUnavailable, "remote_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
			assert.NotContains(t, body.Error, "db down")
		})
	}
}

func TestBindReportsFields(t *testing.T) {
	type req struct {
		Email string `json:"email" binding:"required,email"`
		Name  string `json:"name" binding:"required"`
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var r req
	assert.False(t, Bind(c, &r))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "must be a valid email", body.Fields["email"])
	assert.Equal(t, "is required", body.Fields["name"])
}
