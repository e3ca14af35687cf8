package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-events/backend/internal/auth"
	"github.com/aura-events/backend/internal/models"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestJWTAndRole(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", 1)
	r := newEngine()
	admin := r.Group("/admin", JWT(jwtSvc), RequireRole(models.RoleAdmin))
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	call := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	adminTok, err := jwtSvc.Generate(models.OperatorID("a@x.com"), "a@x.com", string(models.RoleAdmin))
	require.NoError(t, err)
	viewerTok, err := jwtSvc.Generate(models.OperatorID("v@x.com"), "v@x.com", string(models.RoleViewer))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call("Bearer "+adminTok))
	assert.Equal(t, http.StatusForbidden, call("Bearer "+viewerTok))
	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage"))
}

func TestCORS(t *testing.T) {
	r := newEngine()
	r.Use(CORS("http://a.example, http://b.example"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://b.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://b.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggerLevelsAndRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := newEngine()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
