package models

import (
	"time"
)

// --- Standard API Response Structures ---

// SuccessResponse represents a standard successful API response structure.
type SuccessResponse struct {
	Success bool             `json:"success" example:"true"`
	Data    interface{}      `json:"data,omitempty"`
	Message string           `json:"message,omitempty"`
	Meta    MetadataResponse `json:"meta"`
}

// ErrorInfo represents the details of an API error.
// @description Detailed information about an error that occurred during an API request.
type ErrorInfo struct {
	// Code is a machine-readable error code identifying the specific error type.
	// required: true
	// example: RESOURCE_NOT_FOUND
	Code string `json:"code" example:"RESOURCE_NOT_FOUND"`

	// Message is a human-readable description of the error.
	// required: true
	// example: The requested scan was not found.
	Message string `json:"message" example:"The requested scan was not found."`

	// Details provides optional additional information about the error, such as validation failures.
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse represents a standard error API response structure.
// @description Standard structure for returning errors from the API.
type ErrorResponse struct {
	Success bool             `json:"success" example:"false"`
	Error   ErrorInfo        `json:"error"`
	Meta    MetadataResponse `json:"meta"`
}

// PaginationResponse represents pagination metadata for API responses
type PaginationResponse struct {
	Page       int `json:"page" example:"1"`
	PageSize   int `json:"page_size" example:"10"`
	TotalPages int `json:"total_pages" example:"5"`
	TotalItems int `json:"total_items" example:"42"`
}

// MetadataResponse represents common metadata for API responses
type MetadataResponse struct {
	Timestamp  time.Time           `json:"timestamp" example:"2023-10-27T10:30:00Z"`
	RequestID  string              `json:"request_id,omitempty" example:"req-12345"`
	Pagination *PaginationResponse `json:"pagination,omitempty"`
}

// PaginatedResponse is a generic structure for paginated list responses.
type PaginatedResponse struct {
	Success bool             `json:"success" example:"true"`
	Data    interface{}      `json:"data"`
	Meta    MetadataResponse `json:"meta"`
}

// -----------------------
// Scan Responses
// -----------------------

// ScanResponse is the API view of a scan and its state
// @description A scan request with its current lifecycle state.
type ScanResponse struct {
	ID               string     `json:"id" example:"2f1c4f0e-8a4b-4b53-9f43-6f2a0e4c1d11"`
	Target           string     `json:"target" example:"example.com"`
	Kind             ScanKind   `json:"kind" example:"subdomain_finder"`
	Parameters       JSONMap    `json:"parameters,omitempty"`
	OwnerID          string     `json:"owner_id,omitempty" example:"user-42"`
	PolicyID         string     `json:"policy_id,omitempty"`
	Status           ScanStatus `json:"status" example:"RUNNING"`
	Progress         int        `json:"progress" example:"40"`
	ProviderScanID   string     `json:"provider_scan_id,omitempty" example:"81233"`
	ProviderTargetID string     `json:"provider_target_id,omitempty" example:"5521"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ErrorCode        string     `json:"error_code,omitempty" example:"ProviderPollError"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NewScanResponse converts a Scan into its API representation
func NewScanResponse(s *Scan) ScanResponse {
	return ScanResponse{
		ID:               s.ID,
		Target:           s.Target,
		Kind:             s.Kind,
		Parameters:       s.Parameters,
		OwnerID:          s.OwnerID,
		PolicyID:         s.PolicyID,
		Status:           s.Status,
		Progress:         s.Progress,
		ProviderScanID:   s.ProviderScanID,
		ProviderTargetID: s.ProviderTargetID,
		ErrorMessage:     s.ErrorMessage,
		ErrorCode:        s.ErrorCode,
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
	}
}

// ScanListResponse is the paginated scan list
type ScanListResponse struct {
	Scans []ScanResponse `json:"scans"`
	Total int64          `json:"total"`
}

// FindingListResponse holds the findings of a scan and a severity summary
type FindingListResponse struct {
	ScanID   string         `json:"scan_id"`
	Findings []Finding      `json:"findings"`
	Summary  FindingSummary `json:"summary"`
}

// ScanKindInfo describes a supported scan kind
type ScanKindInfo struct {
	Kind     ScanKind `json:"kind" example:"port_scan"`
	ToolID   int      `json:"tool_id" example:"170"`
	ToolName string   `json:"tool_name" example:"Port Scanner"`
}

// -----------------------
// Recurrence Policy Responses
// -----------------------

// PolicyListResponse is the paginated policy list
type PolicyListResponse struct {
	Policies []RecurrencePolicy `json:"policies"`
	Total    int64              `json:"total"`
}

// RuntimeResponse reports the work in flight inside the orchestrator
type RuntimeResponse struct {
	ActiveScans       int       `json:"active_scans" example:"3"`
	ScheduledPolicies int       `json:"scheduled_policies" example:"12"`
	DroppedEvents     uint64    `json:"dropped_events" example:"0"`
	Timestamp         time.Time `json:"timestamp"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Version   string    `json:"version" example:"1.0.0"`
	Database  string    `json:"database" example:"ok"`
	Scheduler bool      `json:"scheduler"`
	Timestamp time.Time `json:"timestamp"`
}
