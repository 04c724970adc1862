package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dreamscape/service-voyage/pkg/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(jwtManager *auth.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/me", AuthMiddleware(jwtManager), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		role, _ := GetUserRole(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": role})
	})
	r.GET("/admin", AuthMiddleware(jwtManager), RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func request(t *testing.T, r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Minute, time.Hour)
	r := newRouter(jwtManager)

	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/me", "garbage").Code)

	token, err := jwtManager.GenerateAccessToken("U1", auth.RoleTraveler)
	require.NoError(t, err)

	w := request(t, r, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"U1","role":"traveler"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestRequireRole(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Minute, time.Hour)
	r := newRouter(jwtManager)

	traveler, err := jwtManager.GenerateAccessToken("U1", auth.RoleTraveler)
	require.NoError(t, err)
	admin, err := jwtManager.GenerateAccessToken("A1", auth.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, request(t, r, "/admin", traveler).Code)
	assert.Equal(t, http.StatusNoContent, request(t, r, "/admin", admin).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := newRouter(auth.NewJWTManager("secret", time.Minute, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
}
