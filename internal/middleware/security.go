// Package middleware holds the gin middleware shared by the page and the
// JSON API.
package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stroke-risk-server/internal/logging"
)

// CorrelationHeader carries the request correlation ID.
const CorrelationHeader = "X-Correlation-ID"

// correlationKey is the gin context key of the correlation ID.
const correlationKey = "correlation_id"

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")

		// Enforce HTTPS (only in production)
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		// Charts and the PDF link are data: URIs.
		c.Header("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; object-src 'self' data:; frame-src 'self' data:")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		c.Next()
	}
}

// maxCorrelationIDLen bounds client supplied correlation IDs.
const maxCorrelationIDLen = 64

// CorrelationID assigns each request a correlation ID, reusing the one sent
// by the client when it is a plain token. The ID is stored on the gin context and on the request
// context so service logs carry it.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if !validCorrelationID(correlationID) {
			correlationID = uuid.New().String()
		}

		c.Set(correlationKey, correlationID)
		c.Header(CorrelationHeader, correlationID)
		c.Request = c.Request.WithContext(logging.WithCorrelationID(c.Request.Context(), correlationID))

		c.Next()
	}
}

// validCorrelationID accepts letters, digits, '-', '_' and '.'.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// GetCorrelationID returns the ID assigned by CorrelationID.
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationKey)
}

// auditEntry is one access log line.
type auditEntry struct {
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Status        int    `json:"status"`
	Latency       string `json:"latency"`
	ClientIP      string `json:"client_ip"`
	UserAgent     string `json:"user_agent"`
	ResponseSize  int    `json:"response_size"`
}

// AuditLogger writes one JSON line per request to out. Only request
// metadata is logged, never form values or uploaded cells.
func AuditLogger(out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{Output: out, Formatter: func(param gin.LogFormatterParams) string {
		correlationID, _ := param.Keys[correlationKey].(string)
		line, err := json.Marshal(auditEntry{
			Timestamp:     param.TimeStamp.Format(time.RFC3339),
			CorrelationID: correlationID,
			Method:        param.Method,
			Path:          param.Path,
			Status:        param.StatusCode,
			Latency:       param.Latency.String(),
			ClientIP:      param.ClientIP,
			UserAgent:     param.Request.UserAgent(),
			ResponseSize:  param.BodySize,
		})
		if err != nil {
			return ""
		}
		return string(line) + "\n"
	}})
}

// CORS allows cross-origin calls to the JSON API.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, "+CorrelationHeader)
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Disposition, "+CorrelationHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
