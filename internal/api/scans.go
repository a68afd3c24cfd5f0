package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// listScanKinds godoc
// @Summary List scan kinds
// @Description Lists every scan kind the orchestrator can dispatch with its provider tool.
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.SuccessResponse{data=[]models.ScanKindInfo} "Supported scan kinds"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Router /scans/kinds [get]
func (s *Server) listScanKinds(c *gin.Context) {
	utils.SuccessResponse(c, s.scans.Kinds())
}

// createScan godoc
// @Summary Create a scan
// @Description Persists a PENDING scan and starts it in the background. Progress is reported on the events stream.
// @Tags Scans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.CreateScanRequest true "Scan request"
// @Success 202 {object} models.SuccessResponse{data=models.ScanResponse} "Scan accepted"
// @Failure 400 {object} models.ErrorResponse "Invalid target, kind or body"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 503 {object} models.ErrorResponse "Server is shutting down"
// @Router /scans [post]
func (s *Server) createScan(c *gin.Context) {
	owner, _, ok := caller(c)
	if !ok {
		return
	}

	var req models.CreateScanRequest
	if !utils.BindJSON(c, &req) {
		return
	}
	req.Normalize()
	if err := utils.ValidateScanTarget(req.Target); err != nil {
		targetInvalid(c, err)
		return
	}
	if !req.Kind.Valid() {
		utils.ErrorResponse(c, http.StatusBadRequest, CodeValidation, fmt.Sprintf("unknown scan kind %q", req.Kind), nil)
		return
	}

	created, err := s.scans.CreateScan(c.Request.Context(), scan.CreateScanInput{
		Target:     req.Target,
		Kind:       req.Kind,
		Parameters: req.Parameters,
		OwnerID:    owner,
	})
	if err != nil {
		s.handleError(c, err, "Failed to create scan")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"scan_id":    created.ID,
		"owner_id":   owner,
		"parameters": utils.RedactSensitiveData(req.Parameters),
	}).Debug("Scan accepted")

	c.Header("Location", "/api/v1/scans/"+created.ID)
	utils.AcceptedResponse(c, models.NewScanResponse(created))
}

// listScans godoc
// @Summary List scans
// @Description Lists the caller's scans, newest first. Admins see every owner's scans.
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(20) minimum(1) maximum(100)
// @Param status query string false "Filter by status" Enums(PENDING, RUNNING, COMPLETED, FAILED, CANCELLED)
// @Param kind query string false "Filter by scan kind"
// @Param policy_id query string false "Filter by originating recurrence policy"
// @Param owner_id query string false "Filter by owner (admin only)"
// @Success 200 {object} models.PaginatedResponse{data=[]models.ScanResponse} "Scans"
// @Failure 400 {object} models.ErrorResponse "Invalid filter"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Router /scans [get]
func (s *Server) listScans(c *gin.Context) {
	owner, admin, ok := caller(c)
	if !ok {
		return
	}
	page, pageSize := utils.GetPaginationParams(c)

	filter := repositories.ScanFilter{
		OwnerID:  owner,
		PolicyID: c.Query("policy_id"),
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize,
	}
	if admin {
		filter.OwnerID = c.Query("owner_id")
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ScanStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if !status.Valid() {
			utils.ErrorResponse(c, http.StatusBadRequest, CodeValidation, fmt.Sprintf("unknown status %q", raw), nil)
			return
		}
		filter.Status = status
	}
	if raw := c.Query("kind"); raw != "" {
		kind := models.ScanKind(strings.ToLower(strings.TrimSpace(raw)))
		if !kind.Valid() {
			utils.ErrorResponse(c, http.StatusBadRequest, CodeValidation, fmt.Sprintf("unknown scan kind %q", raw), nil)
			return
		}
		filter.Kind = kind
	}

	items, total, err := s.scans.ListScans(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err, "Failed to list scans")
		return
	}

	out := make([]models.ScanResponse, len(items))
	for i := range items {
		out[i] = models.NewScanResponse(&items[i])
	}
	utils.PaginatedResponse(c, out, page, pageSize, total)
}

// loadScan fetches the scan named in the path and enforces owner visibility
func (s *Server) loadScan(c *gin.Context) (*models.Scan, bool) {
	owner, admin, ok := caller(c)
	if !ok {
		return nil, false
	}
	id := c.Param("id")
	record, err := s.scans.GetScan(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err, "Failed to load scan")
		return nil, false
	}
	if !visible(owner, admin, record.OwnerID) {
		utils.ErrorResponse(c, http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s: scan %s", scan.ErrNotFound, id), nil)
		return nil, false
	}
	return record, true
}

// getScan godoc
// @Summary Get a scan
// @Description Returns a scan and its current lifecycle state.
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scan ID"
// @Success 200 {object} models.SuccessResponse{data=models.ScanResponse} "Scan"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Scan not found"
// @Router /scans/{id} [get]
func (s *Server) getScan(c *gin.Context) {
	record, ok := s.loadScan(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, models.NewScanResponse(record))
}

// listFindings godoc
// @Summary List scan findings
// @Description Returns the normalized findings of a scan, most severe first, with a severity summary.
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scan ID"
// @Param min_severity query string false "Only findings at or above this severity" Enums(INFO, LOW, MEDIUM, HIGH, CRITICAL)
// @Success 200 {object} models.SuccessResponse{data=models.FindingListResponse} "Findings"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Scan not found"
// @Router /scans/{id}/findings [get]
func (s *Server) listFindings(c *gin.Context) {
	record, ok := s.loadScan(c)
	if !ok {
		return
	}

	findings, err := s.scans.ListFindings(c.Request.Context(), record.ID)
	if err != nil {
		s.handleError(c, err, "Failed to list findings")
		return
	}
	if raw := c.Query("min_severity"); raw != "" {
		floor := models.ParseSeverity(raw).Rank()
		kept := findings[:0]
		for _, f := range findings {
			if f.Severity.Rank() >= floor {
				kept = append(kept, f)
			}
		}
		findings = kept
	}
	if findings == nil {
		findings = []models.Finding{}
	}

	utils.SuccessResponse(c, models.FindingListResponse{
		ScanID:   record.ID,
		Findings: findings,
		Summary:  models.Summarize(findings),
	})
}

// cancelScan godoc
// @Summary Cancel a scan
// @Description Cancels a PENDING or RUNNING scan. Cancelling an already cancelled scan is a no-op.
// @Tags Scans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Scan ID"
// @Success 200 {object} models.SuccessResponse{data=models.ScanResponse} "Cancelled scan"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Scan not found"
// @Failure 409 {object} models.ErrorResponse "Scan already completed or failed"
// @Router /scans/{id}/cancel [post]
func (s *Server) cancelScan(c *gin.Context) {
	record, ok := s.loadScan(c)
	if !ok {
		return
	}
	cancelled, err := s.scans.CancelScan(c.Request.Context(), record.ID)
	if err != nil {
		s.handleError(c, err, "Failed to cancel scan")
		return
	}
	utils.SuccessResponse(c, models.NewScanResponse(cancelled))
}

// deleteScan godoc
// @Summary Delete a scan
// @Description Stops the scan if it is still active and removes it with its findings.
// @Tags Scans
// @Security BearerAuth
// @Param id path string true "Scan ID"
// @Success 204 "Deleted"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Scan not found"
// @Router /scans/{id} [delete]
func (s *Server) deleteScan(c *gin.Context) {
	record, ok := s.loadScan(c)
	if !ok {
		return
	}
	if err := s.scans.DeleteScan(c.Request.Context(), record.ID); err != nil {
		s.handleError(c, err, "Failed to delete scan")
		return
	}
	utils.NoContentResponse(c)
}
