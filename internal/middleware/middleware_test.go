package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(t *testing.T, origins []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	corsHandler, err := CORS(origins)
	require.NoError(t, err)

	router := gin.New()
	router.Use(Recovery(zap.NewNop()), RequestID(), AccessLog(zap.NewNop()), SecurityHeaders(), corsHandler)
	router.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })
	return router
}

func requestWithOrigin(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/id", nil)
	req.Header.Set("Origin", origin)
	return req
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	router := newRouter(t, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/id", nil))
	generated := resp.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, resp.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, "caller-id", resp.Header().Get(RequestIDHeader))
	assert.Equal(t, "caller-id", resp.Body.String())
}

func TestCORSAllowList(t *testing.T) {
	router := newRouter(t, []string{"https://app.example.com"})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, requestWithOrigin(http.MethodGet, "https://app.example.com"))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "https://app.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, resp.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, requestWithOrigin(http.MethodGet, "https://evil.example.com"))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Credentials"))

	req := requestWithOrigin(http.MethodOptions, "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Contains(t, resp.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSWildcardNeverAllowsCredentials(t *testing.T) {
	router := newRouter(t, []string{"*"})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, requestWithOrigin(http.MethodGet, "https://evil.example"))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	router := newRouter(t, []string{" ", ""})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, requestWithOrigin(http.MethodGet, "https://app.example.com"))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsOriginWithoutScheme(t *testing.T) {
	_, err := CORS([]string{"localhost:3000"})
	assert.Error(t, err)
}

func TestSecurityHeaders(t *testing.T) {
	resp := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/id", nil))
	assert.Equal(t, "nosniff", resp.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header().Get("X-Frame-Options"))
}

func TestRecoveryReturnsJSON(t *testing.T) {
	resp := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, resp.Body.String())
}
