package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/cobytes/scanOrchestratorGo/internal/database/repositories"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gin-gonic/gin"
)

// createPolicy godoc
// @Summary Create a recurrence policy
// @Description Stores a policy that re-creates a scan on a fixed frequency and schedules its first fire.
// @Tags Policies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.CreatePolicyRequest true "Policy"
// @Success 201 {object} models.SuccessResponse{data=models.RecurrencePolicy} "Policy created"
// @Failure 400 {object} models.ErrorResponse "Invalid policy"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Router /policies [post]
func (s *Server) createPolicy(c *gin.Context) {
	owner, _, ok := caller(c)
	if !ok {
		return
	}

	var req models.CreatePolicyRequest
	if !utils.BindJSON(c, &req) {
		return
	}
	if result := utils.ValidateStruct(req); !result.IsValid() {
		validationFailed(c, result)
		return
	}
	if err := utils.ValidateScanTarget(req.Target); err != nil {
		targetInvalid(c, err)
		return
	}

	policy, err := s.policies.CreatePolicy(c.Request.Context(), req, owner)
	if err != nil {
		s.handleError(c, err, "Failed to create policy")
		return
	}
	c.Header("Location", "/api/v1/policies/"+policy.ID)
	utils.CreatedResponse(c, policy)
}

// listPolicies godoc
// @Summary List recurrence policies
// @Description Lists the caller's policies. Admins see every owner's policies.
// @Tags Policies
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(20) minimum(1) maximum(100)
// @Param active_only query bool false "Only active policies"
// @Success 200 {object} models.PaginatedResponse{data=[]models.RecurrencePolicy} "Policies"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Router /policies [get]
func (s *Server) listPolicies(c *gin.Context) {
	owner, admin, ok := caller(c)
	if !ok {
		return
	}
	page, pageSize := utils.GetPaginationParams(c)
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active_only", "false"))

	filter := repositories.PolicyFilter{
		OwnerID:    owner,
		ActiveOnly: activeOnly,
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	}
	if admin {
		filter.OwnerID = c.Query("owner_id")
	}

	items, total, err := s.policies.ListPolicies(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err, "Failed to list policies")
		return
	}
	if items == nil {
		items = []models.RecurrencePolicy{}
	}
	utils.PaginatedResponse(c, items, page, pageSize, total)
}

// loadPolicy fetches the policy named in the path and enforces owner visibility
func (s *Server) loadPolicy(c *gin.Context) (*models.RecurrencePolicy, bool) {
	owner, admin, ok := caller(c)
	if !ok {
		return nil, false
	}
	id := c.Param("id")
	policy, err := s.policies.GetPolicy(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err, "Failed to load policy")
		return nil, false
	}
	if !visible(owner, admin, policy.OwnerID) {
		utils.ErrorResponse(c, http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s: policy %s", scan.ErrNotFound, id), nil)
		return nil, false
	}
	return policy, true
}

// getPolicy godoc
// @Summary Get a recurrence policy
// @Tags Policies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Policy ID"
// @Success 200 {object} models.SuccessResponse{data=models.RecurrencePolicy} "Policy"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Policy not found"
// @Router /policies/{id} [get]
func (s *Server) getPolicy(c *gin.Context) {
	policy, ok := s.loadPolicy(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, policy)
}

// updatePolicy godoc
// @Summary Update a recurrence policy
// @Description Applies a partial update and reschedules the policy.
// @Tags Policies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Policy ID"
// @Param body body models.UpdatePolicyRequest true "Fields to change"
// @Success 200 {object} models.SuccessResponse{data=models.RecurrencePolicy} "Updated policy"
// @Failure 400 {object} models.ErrorResponse "Invalid update"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Policy not found"
// @Router /policies/{id} [put]
func (s *Server) updatePolicy(c *gin.Context) {
	policy, ok := s.loadPolicy(c)
	if !ok {
		return
	}

	var req models.UpdatePolicyRequest
	if !utils.BindJSON(c, &req) {
		return
	}
	if result := utils.ValidateStruct(req); !result.IsValid() {
		validationFailed(c, result)
		return
	}
	if req.Target != nil {
		if err := utils.ValidateScanTarget(*req.Target); err != nil {
			targetInvalid(c, err)
			return
		}
	}

	updated, err := s.policies.UpdatePolicy(c.Request.Context(), policy.ID, req)
	if err != nil {
		s.handleError(c, err, "Failed to update policy")
		return
	}
	utils.SuccessResponse(c, updated)
}

// deletePolicy godoc
// @Summary Delete a recurrence policy
// @Description Unschedules and removes the policy. Scans it already created are kept.
// @Tags Policies
// @Security BearerAuth
// @Param id path string true "Policy ID"
// @Success 204 "Deleted"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Policy not found"
// @Router /policies/{id} [delete]
func (s *Server) deletePolicy(c *gin.Context) {
	policy, ok := s.loadPolicy(c)
	if !ok {
		return
	}
	if err := s.policies.DeletePolicy(c.Request.Context(), policy.ID); err != nil {
		s.handleError(c, err, "Failed to delete policy")
		return
	}
	utils.NoContentResponse(c)
}
