package api

import (
	"errors"
	"net/http"

	"github.com/cobytes/scanOrchestratorGo/internal/middleware"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// API error codes
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeQuotaExceeded     = "QUOTA_EXCEEDED"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_SERVER_ERROR"
)

// handleError maps a domain error onto the response envelope
func (s *Server) handleError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, scan.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, scan.ErrValidation), errors.Is(err, scan.ErrUnsupportedScanKind):
		utils.ErrorResponse(c, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.Is(err, scan.ErrInvalidTransition):
		utils.ErrorResponse(c, http.StatusConflict, CodeInvalidTransition, err.Error(), nil)
	case errors.Is(err, scan.ErrQuotaExceeded):
		utils.ErrorResponse(c, http.StatusForbidden, CodeQuotaExceeded, err.Error(), nil)
	case errors.Is(err, scan.ErrShuttingDown):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, CodeUnavailable, err.Error(), nil)
	default:
		s.logger.WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"request_id": utils.GetRequestID(c),
		}).WithError(err).Error(msg)
		utils.ErrorResponse(c, http.StatusInternalServerError, CodeInternal, msg, nil)
	}
}

// validationFailed answers 400 with per-field details
func validationFailed(c *gin.Context, result *utils.ValidationResult) {
	msg := "request validation failed"
	if first := result.First(); first != nil {
		msg = first.Error()
	}
	utils.ErrorResponse(c, http.StatusBadRequest, CodeValidation, msg, result.Errors)
}

// targetInvalid answers 400 for a malformed scan target
func targetInvalid(c *gin.Context, err error) {
	var vErr *utils.ValidationError
	if errors.As(err, &vErr) {
		utils.ErrorResponse(c, http.StatusBadRequest, CodeValidation, vErr.Error(), []*utils.ValidationError{vErr})
		return
	}
	utils.ErrorResponse(c, http.StatusBadRequest, CodeValidation, err.Error(), nil)
}

// caller returns the authenticated owner and whether it may see every owner's records
func caller(c *gin.Context) (string, bool, bool) {
	owner, err := middleware.GetOwnerID(c)
	if err != nil {
		utils.Unauthorized(c, "Authentication required")
		return "", false, false
	}
	return owner, middleware.IsAdmin(c), true
}

// visible reports whether a record owned by recordOwner may be shown to the caller.
// Records of other owners are reported as not found.
func visible(owner string, admin bool, recordOwner string) bool {
	return admin || recordOwner == owner
}
