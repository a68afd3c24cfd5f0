package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
)

// ScanListOptions filters ListScans
type ScanListOptions struct {
	ListOptions
	Status   models.ScanStatus
	Kind     models.ScanKind
	PolicyID string
	OwnerID  string
}

func scanPath(id string) string {
	return APIPathScans + "/" + url.PathEscape(id)
}

// ListScanKinds lists the scan kinds the server can dispatch
func (c *APIClient) ListScanKinds(ctx context.Context) ([]models.ScanKindInfo, error) {
	var kinds []models.ScanKindInfo
	if _, err := c.doRequest(ctx, http.MethodGet, APIPathKinds, nil, &kinds); err != nil {
		return nil, err
	}
	return kinds, nil
}

// CreateScan submits a scan. The returned scan is PENDING; follow it with WatchScan or GetScan.
func (c *APIClient) CreateScan(ctx context.Context, req *models.CreateScanRequest) (*models.ScanResponse, error) {
	var created models.ScanResponse
	if _, err := c.doRequest(ctx, http.MethodPost, APIPathScans, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetScan returns a scan and its lifecycle state
func (c *APIClient) GetScan(ctx context.Context, id string) (*models.ScanResponse, error) {
	var scan models.ScanResponse
	if _, err := c.doRequest(ctx, http.MethodGet, scanPath(id), nil, &scan); err != nil {
		return nil, err
	}
	return &scan, nil
}

// ListScans returns one page of scans
func (c *APIClient) ListScans(ctx context.Context, opts ScanListOptions) ([]models.ScanResponse, *Page, error) {
	q := url.Values{}
	opts.apply(q)
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Kind != "" {
		q.Set("kind", string(opts.Kind))
	}
	if opts.PolicyID != "" {
		q.Set("policy_id", opts.PolicyID)
	}
	if opts.OwnerID != "" {
		q.Set("owner_id", opts.OwnerID)
	}

	path := APIPathScans
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var scans []models.ScanResponse
	page, err := c.doRequest(ctx, http.MethodGet, path, nil, &scans)
	if err != nil {
		return nil, nil, err
	}
	return scans, page, nil
}

// ListFindings returns the findings of a scan at or above minSeverity (empty for all)
func (c *APIClient) ListFindings(ctx context.Context, id string, minSeverity models.Severity) (*models.FindingListResponse, error) {
	path := scanPath(id) + "/findings"
	if minSeverity != "" {
		path += "?min_severity=" + url.QueryEscape(string(minSeverity))
	}
	var findings models.FindingListResponse
	if _, err := c.doRequest(ctx, http.MethodGet, path, nil, &findings); err != nil {
		return nil, err
	}
	return &findings, nil
}

// CancelScan cancels a pending or running scan
func (c *APIClient) CancelScan(ctx context.Context, id string) (*models.ScanResponse, error) {
	var scan models.ScanResponse
	if _, err := c.doRequest(ctx, http.MethodPost, scanPath(id)+"/cancel", nil, &scan); err != nil {
		return nil, err
	}
	return &scan, nil
}

// DeleteScan removes a scan and its findings
func (c *APIClient) DeleteScan(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, scanPath(id), nil, nil)
	return err
}
