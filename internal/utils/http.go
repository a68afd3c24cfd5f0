package utils

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	// Common errors
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	sensitiveHeadersSet = map[string]bool{
		"authorization":       true,
		"proxy-authorization": true,
		"x-api-key":           true,
		"api-key":             true,
		"cookie":              true,
		"set-cookie":          true,
	}
)

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// RateLimiter keeps one token bucket per client key
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	visitor  map[string]time.Time
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing rps requests per second with the given burst
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		visitor:  make(map[string]time.Time),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// NewWindowRateLimiter converts a "max requests per window" budget into a token bucket
func NewWindowRateLimiter(maxPerWindow int, window time.Duration) *RateLimiter {
	if maxPerWindow <= 0 || window <= 0 {
		return NewRateLimiter(float64(rate.Inf), 1)
	}
	return NewRateLimiter(float64(maxPerWindow)/window.Seconds(), maxPerWindow)
}

// GetLimiter gets or creates the limiter for key
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	rl.visitor[key] = time.Now()
	return limiter
}

// Allow reports whether key may make a request now
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// CleanupLimiters removes limiters for keys not seen within maxAge
func (rl *RateLimiter) CleanupLimiters(maxAge time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, lastSeen := range rl.visitor {
		if time.Since(lastSeen) > maxAge {
			delete(rl.limiters, key)
			delete(rl.visitor, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked keys
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError represents an API error
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Meta contains response metadata
type Meta struct {
	Page       int       `json:"page,omitempty"`
	PerPage    int       `json:"per_page,omitempty"`
	TotalPages int       `json:"total_pages,omitempty"`
	Total      int64     `json:"total,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

func newMeta(c *gin.Context) *Meta {
	return &Meta{
		Timestamp: time.Now().UTC(),
		RequestID: GetRequestID(c),
	}
}

// SuccessResponse sends a 200 response with data
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: newMeta(c)})
}

// CreatedResponse sends a 201 response with data
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data, Meta: newMeta(c)})
}

// AcceptedResponse sends a 202 response with data
func AcceptedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{Success: true, Data: data, Meta: newMeta(c)})
}

// NoContentResponse sends an empty 204 response
func NoContentResponse(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// PaginatedResponse sends a 200 response with pagination metadata
func PaginatedResponse(c *gin.Context, data interface{}, page, perPage int, total int64) {
	meta := newMeta(c)
	meta.Page = page
	meta.PerPage = perPage
	meta.Total = total
	if perPage > 0 {
		meta.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// ErrorResponse sends an error response and aborts the handler chain
func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: newMeta(c),
	})
}

// BadRequest returns a 400 Bad Request response
func BadRequest(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message, nil)
}

// Unauthorized returns a 401 Unauthorized response
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Authentication is required to access this resource"
	}
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// Forbidden returns a 403 Forbidden response
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "You do not have permission to access this resource"
	}
	ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// NotFound returns a 404 Not Found response
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "The requested resource was not found"
	}
	ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// Conflict returns a 409 Conflict response
func Conflict(c *gin.Context, message string) {
	if message == "" {
		message = "The request could not be completed due to a conflict"
	}
	ErrorResponse(c, http.StatusConflict, "CONFLICT", message, nil)
}

// TooManyRequests returns a 429 Too Many Requests response
func TooManyRequests(c *gin.Context, message string) {
	if message == "" {
		message = "Too many requests, please try again later"
	}
	ErrorResponse(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", message, nil)
}

// InternalServerError returns a 500 Internal Server Error response
func InternalServerError(c *gin.Context, message string) {
	if message == "" {
		message = "An internal server error occurred"
	}
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, nil)
}

// ServiceUnavailable returns a 503 Service Unavailable response
func ServiceUnavailable(c *gin.Context, message string) {
	if message == "" {
		message = "The service is currently unavailable"
	}
	ErrorResponse(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}

// BindJSON binds the request body to obj, answering 400 on failure
func BindJSON(c *gin.Context, obj interface{}) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1024*1024)

	if err := c.ShouldBindJSON(obj); err != nil {
		BadRequest(c, "Invalid JSON format: "+err.Error())
		return false
	}
	return true
}

// BindQuery binds query parameters to obj, answering 400 on failure
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		BadRequest(c, "Invalid query parameters: "+err.Error())
		return false
	}
	return true
}

// GetClientIP returns the client IP address
func GetClientIP(c *gin.Context) string {
	clientIP := c.ClientIP()
	if clientIP == "" {
		if ip, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
			clientIP = ip
		}
	}
	return clientIP
}

// GenerateRequestID returns a new random request id
func GenerateRequestID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return "req-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id.String()
}

// GetRequestID returns the request id stored on the context, if any
func GetRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(RequestIDKey)
}

// GetPaginationParams extracts page and page_size from the query with defaults and limits
func GetPaginationParams(c *gin.Context) (page int, pageSize int) {
	const defaultPage = 1
	const defaultPageSize = 20
	const maxPageSize = 100

	var err error
	page, err = strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = defaultPage
	}

	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// SanitizeHeaders returns a copy of headers with credentials masked
func SanitizeHeaders(headers http.Header) map[string][]string {
	result := make(map[string][]string, len(headers))
	for key, value := range headers {
		if isSensitiveHeader(key) {
			result[key] = []string{"[REDACTED]"}
		} else {
			result[key] = value
		}
	}
	return result
}

func isSensitiveHeader(header string) bool {
	header = strings.ToLower(header)
	if sensitiveHeadersSet[header] {
		return true
	}
	return strings.HasPrefix(header, "x-auth-") ||
		strings.Contains(header, "secret") ||
		strings.Contains(header, "token")
}
