package models

import (
	"strings"
	"time"
)

// PaginationRequest represents pagination parameters for API requests
type PaginationRequest struct {
	Page     int `json:"page" form:"page" binding:"omitempty,gte=1" example:"1"`
	PageSize int `json:"page_size" form:"page_size" binding:"omitempty,gte=1,lte=100" example:"10"`
}

// SetDefaults sets default values for the pagination request
func (p *PaginationRequest) SetDefaults() {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 10
	} else if p.PageSize > 100 {
		p.PageSize = 100
	}
}

// GetOffset returns the offset for the pagination request
func (p *PaginationRequest) GetOffset() int {
	return (p.Page - 1) * p.PageSize
}

// -----------------------
// Scan Requests
// -----------------------

// CreateScanRequest represents a request to start a new scan
// @description Target and kind of the scan, plus kind-specific parameters.
type CreateScanRequest struct {
	// Target is the host, domain, URL or address to scan.
	// required: true
	// example: example.com
	Target string `json:"target" binding:"required" validate:"required" example:"example.com"`

	// Kind selects the scan category.
	// required: true
	// example: subdomain_finder
	Kind ScanKind `json:"kind" binding:"required" validate:"required" example:"subdomain_finder"`

	// Parameters are interpreted per kind when the scan is dispatched.
	// example: {"ports": "top_100"}
	Parameters JSONMap `json:"parameters,omitempty"`
}

// Normalize trims whitespace from user-supplied fields
func (r *CreateScanRequest) Normalize() {
	r.Target = strings.TrimSpace(r.Target)
	r.Kind = ScanKind(strings.ToLower(strings.TrimSpace(string(r.Kind))))
}

// ScanListRequest represents filter and pagination options for listing scans
type ScanListRequest struct {
	PaginationRequest
	Status   ScanStatus `json:"status" form:"status" example:"RUNNING"`
	Kind     ScanKind   `json:"kind" form:"kind" example:"port_scan"`
	PolicyID string     `json:"policy_id" form:"policy_id"`
}

// -----------------------
// Recurrence Policy Requests
// -----------------------

// CreatePolicyRequest represents a request to create a recurrence policy
// @description Defines a scan that is re-created on a fixed frequency.
type CreatePolicyRequest struct {
	// Name is a human label for the policy.
	// required: true
	Name string `json:"name" binding:"required" validate:"required,max=255" example:"Nightly subdomains"`

	// Target is the host, domain, URL or address to scan.
	// required: true
	Target string `json:"target" binding:"required" validate:"required" example:"example.com"`

	// Kind selects the scan category.
	// required: true
	Kind ScanKind `json:"kind" binding:"required" validate:"required" example:"subdomain_finder"`

	// Parameters are passed to every scan the policy creates.
	Parameters JSONMap `json:"parameters,omitempty"`

	// Frequency is one of ONCE, DAILY, WEEKLY or MONTHLY.
	// required: true
	Frequency Frequency `json:"frequency" binding:"required" validate:"required" example:"DAILY"`

	// StartAt is the first fire time. Defaults to now.
	StartAt *time.Time `json:"start_at,omitempty" format:"date-time" example:"2024-01-01T02:00:00Z"`

	// MaxRuns optionally caps the number of fires.
	MaxRuns *int `json:"max_runs,omitempty" validate:"omitempty,gte=1" example:"10"`
}

// UpdatePolicyRequest represents a partial update of a recurrence policy
type UpdatePolicyRequest struct {
	Name       *string    `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Target     *string    `json:"target,omitempty" validate:"omitempty,min=1"`
	Parameters JSONMap    `json:"parameters,omitempty"`
	Frequency  *Frequency `json:"frequency,omitempty"`
	NextFireAt *time.Time `json:"next_fire_at,omitempty" format:"date-time"`
	Active     *bool      `json:"active,omitempty"`
	MaxRuns    *int       `json:"max_runs,omitempty" validate:"omitempty,gte=1"`
}

// PolicyListRequest represents filter and pagination options for listing policies
type PolicyListRequest struct {
	PaginationRequest
	ActiveOnly bool `json:"active_only" form:"active_only"`
}
