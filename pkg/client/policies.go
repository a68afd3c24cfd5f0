package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
)

func policyPath(id string) string {
	return APIPathPolicies + "/" + url.PathEscape(id)
}

// CreatePolicy stores a recurrence policy
func (c *APIClient) CreatePolicy(ctx context.Context, req *models.CreatePolicyRequest) (*models.RecurrencePolicy, error) {
	var policy models.RecurrencePolicy
	if _, err := c.doRequest(ctx, http.MethodPost, APIPathPolicies, req, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

// GetPolicy returns a recurrence policy
func (c *APIClient) GetPolicy(ctx context.Context, id string) (*models.RecurrencePolicy, error) {
	var policy models.RecurrencePolicy
	if _, err := c.doRequest(ctx, http.MethodGet, policyPath(id), nil, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

// ListPolicies returns one page of recurrence policies
func (c *APIClient) ListPolicies(ctx context.Context, opts ListOptions, activeOnly bool) ([]models.RecurrencePolicy, *Page, error) {
	q := url.Values{}
	opts.apply(q)
	if activeOnly {
		q.Set("active_only", "true")
	}
	path := APIPathPolicies
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var policies []models.RecurrencePolicy
	page, err := c.doRequest(ctx, http.MethodGet, path, nil, &policies)
	if err != nil {
		return nil, nil, err
	}
	return policies, page, nil
}

// UpdatePolicy applies a partial update to a recurrence policy
func (c *APIClient) UpdatePolicy(ctx context.Context, id string, req *models.UpdatePolicyRequest) (*models.RecurrencePolicy, error) {
	var policy models.RecurrencePolicy
	if _, err := c.doRequest(ctx, http.MethodPut, policyPath(id), req, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

// DeletePolicy removes a recurrence policy
func (c *APIClient) DeletePolicy(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, policyPath(id), nil, nil)
	return err
}
