package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCorrelationID_Generated(t *testing.T) {
	var fromRequest, fromGin string

	router := gin.New()
	router.Use(CorrelationID())
	router.GET("/", func(c *gin.Context) {
		fromGin = GetCorrelationID(c)
		fromRequest = logging.CorrelationID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, fromGin)
	assert.Equal(t, fromGin, fromRequest)
	assert.Equal(t, fromGin, w.Header().Get(CorrelationHeader))
}

func TestCorrelationID_Propagated(t *testing.T) {
	router := gin.New()
	router.Use(CorrelationID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(CorrelationHeader))
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "img-src 'self' data:")
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"), "HSTS is only sent in release mode")
}

func TestCORS_Preflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS())
	router.POST("/api/v1/predict", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/predict", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.Discard())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")
	assert.True(t, rl.Allow("b"), "clients are limited independently")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "one token refilled")
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(5, 5, logging.Discard())
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.Clients())

	now = now.Add(rl.idle + time.Second)
	rl.Allow("c")
	assert.Equal(t, 1, rl.Clients())
}

func TestRateLimiter_Middleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rl := NewRateLimiter(0.001, 1, logger)

	router := gin.New()
	router.Use(CorrelationID(), rl.Middleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrCodeRateLimit, body.Code)
	assert.Equal(t, w.Header().Get(CorrelationHeader), body.RequestID)

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "/", entry.Data["path"])
	assert.Equal(t, body.RequestID, entry.Data["correlation_id"])
}

func TestAuditLogger(t *testing.T) {
	var out bytes.Buffer

	router := gin.New()
	router.Use(CorrelationID(), AuditLogger(&out))
	router.POST("/predict", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	req.Header.Set(CorrelationHeader, "req-7")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "req-7", entry["correlation_id"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/predict", entry["path"])
	assert.Equal(t, float64(http.StatusCreated), entry["status"])
}

func TestAuditLogger_QuotedInput(t *testing.T) {
	var out bytes.Buffer

	router := gin.New()
	router.Use(CorrelationID(), AuditLogger(&out))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, `/health?q="x","forged":"yes`, nil)
	req.Header.Set(CorrelationHeader, `abc","status":200,"forged":"yes`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.NotContains(t, entry, "forged")
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, `/health?q="x","forged":"yes`, entry["path"])

	// The header is replaced by a generated ID.
	id := w.Header().Get(CorrelationHeader)
	assert.NotContains(t, id, `"`)
	assert.Equal(t, id, entry["correlation_id"])
}

func TestValidCorrelationID(t *testing.T) {
	assert.True(t, validCorrelationID("req-7"))
	assert.True(t, validCorrelationID("0f8c1d2e-3b4a-4c5d-8e9f-a0b1c2d3e4f5"))
	assert.True(t, validCorrelationID("svc.batch_01"))
	assert.False(t, validCorrelationID(""))
	assert.False(t, validCorrelationID(`abc"def`))
	assert.False(t, validCorrelationID("a b"))
	assert.False(t, validCorrelationID(string(bytes.Repeat([]byte("a"), maxCorrelationIDLen+1))))
}
