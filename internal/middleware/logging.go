package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware logs HTTP requests
type LoggingMiddleware struct {
	logger         *logrus.Logger
	logRequestBody bool
	logHeaders     bool
	maxBodyLogSize int
	skipPaths      map[string]bool
}

// LoggingOption configures the logging middleware
type LoggingOption func(*LoggingMiddleware)

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *logrus.Logger, opts ...LoggingOption) *LoggingMiddleware {
	m := &LoggingMiddleware{
		logger:         logger,
		maxBodyLogSize: 1024,
		skipPaths:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithRequestBodyLogging enables logging of request bodies
func WithRequestBodyLogging(enabled bool) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.logRequestBody = enabled
	}
}

// WithHeaderLogging enables logging of request headers
func WithHeaderLogging(enabled bool) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.logHeaders = enabled
	}
}

// WithMaxBodyLogSize sets the maximum size of request bodies to log
func WithMaxBodyLogSize(sizeBytes int) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.maxBodyLogSize = sizeBytes
	}
}

// WithSkipPaths disables logging for noisy paths such as health probes
func WithSkipPaths(paths ...string) LoggingOption {
	return func(m *LoggingMiddleware) {
		for _, p := range paths {
			m.skipPaths[p] = true
		}
	}
}

// Logger returns a gin middleware function for logging requests
func (m *LoggingMiddleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		var requestBody []byte
		if m.logRequestBody && c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			requestBody = bodyBytes
			if len(requestBody) > m.maxBodyLogSize {
				requestBody = requestBody[:m.maxBodyLogSize]
			}
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		c.Next()

		if m.skipPaths[path] {
			return
		}

		statusCode := c.Writer.Status()
		if raw != "" {
			// Query strings can carry access tokens for streaming endpoints
			if c.Query(AccessTokenQueryParam) != "" {
				raw = "[REDACTED]"
			}
			path = path + "?" + raw
		}

		fields := logrus.Fields{
			"status":     statusCode,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
			"request_id": utils.GetRequestID(c),
			"user_agent": c.Request.UserAgent(),
		}
		if ownerID, err := GetOwnerID(c); err == nil {
			fields["owner_id"] = ownerID
		}
		if len(requestBody) > 0 {
			fields["request_body"] = string(requestBody)
		}
		if m.logHeaders {
			fields["request_headers"] = utils.SanitizeHeaders(c.Request.Header)
		}
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			fields["error"] = errorMessage
		}

		entry := m.logger.WithFields(fields)
		switch {
		case statusCode >= 500:
			entry.Error("Request processed with error")
		case statusCode >= 400:
			entry.Warn("Request processed with warning")
		default:
			entry.Info("Request processed")
		}
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		c.Set(utils.RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}
