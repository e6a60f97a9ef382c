package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/printerd/internal/db"
)

func newAuthRig(t *testing.T) (*gin.Engine, *AuthMiddleware) {
	t.Helper()
	require.NoError(t, db.Init(db.Config{Path: filepath.Join(t.TempDir(), "auth.db")}))
	t.Cleanup(func() { db.Close() })

	auth, err := NewAuthMiddleware()
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api := engine.Group("/api")
	auth.RegisterRoutes(api)

	protected := engine.Group("/api", auth.RequireAuth())
	protected.GET("/probe", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return engine, auth
}

type requestOpts struct {
	cookies []*http.Cookie
	bearer  string
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string, body interface{}, opts requestOpts) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range opts.cookies {
		req.AddCookie(c)
	}
	if opts.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+opts.bearer)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func authCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatal("no auth cookie in response")
	return nil
}

func TestSetupFlow(t *testing.T) {
	engine, _ := newAuthRig(t)

	rec := doRequest(t, engine, http.MethodGet, "/api/auth/status", nil, requestOpts{})
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.SetupRequired)
	assert.False(t, status.Authenticated)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/login", LoginRequest{Password: "hunter22"}, requestOpts{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/setup", SetupRequest{Password: "short"}, requestOpts{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/setup", SetupRequest{Password: "hunter22"}, requestOpts{})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := authCookie(t, rec)
	assert.NotEmpty(t, cookie.Value)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/setup", SetupRequest{Password: "again33"}, requestOpts{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginAndProtectedAccess(t *testing.T) {
	engine, _ := newAuthRig(t)

	rec := doRequest(t, engine, http.MethodPost, "/api/auth/setup", SetupRequest{Password: "hunter22"}, requestOpts{})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, engine, http.MethodGet, "/api/probe", nil, requestOpts{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/login", LoginRequest{Password: "wrong"}, requestOpts{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/login", LoginRequest{Password: "hunter22"}, requestOpts{})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := authCookie(t, rec)

	rec = doRequest(t, engine, http.MethodGet, "/api/probe", nil, requestOpts{cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, engine, http.MethodGet, "/api/probe", nil, requestOpts{bearer: cookie.Value})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, engine, http.MethodGet, "/api/probe", nil, requestOpts{bearer: "not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, engine, http.MethodGet, "/api/auth/status", nil, requestOpts{cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Authenticated)
	assert.False(t, status.SetupRequired)
}

func TestChangePassword(t *testing.T) {
	engine, _ := newAuthRig(t)

	rec := doRequest(t, engine, http.MethodPost, "/api/auth/setup", SetupRequest{Password: "original1"}, requestOpts{})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := authCookie(t, rec)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/password",
		ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "replaced2"},
		requestOpts{cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/password",
		ChangePasswordRequest{CurrentPassword: "original1", NewPassword: "replaced2"},
		requestOpts{cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/login", LoginRequest{Password: "original1"}, requestOpts{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, engine, http.MethodPost, "/api/auth/login", LoginRequest{Password: "replaced2"}, requestOpts{})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecretPersistsAcrossRestarts(t *testing.T) {
	_, first := newAuthRig(t)

	token, err := first.generateToken()
	require.NoError(t, err)

	// A fresh middleware on the same database must accept tokens issued
	// before the restart.
	second, err := NewAuthMiddleware()
	require.NoError(t, err)

	claims, err := second.validateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.Authenticated)
}
