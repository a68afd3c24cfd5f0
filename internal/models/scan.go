package models

import (
	"time"
)

// ScanKind identifies the category of security scan requested
type ScanKind string

const (
	ScanKindSubdomainFinder ScanKind = "subdomain_finder"
	ScanKindPortScan        ScanKind = "port_scan"
	ScanKindWebsiteScan     ScanKind = "website_scan"
	ScanKindNetworkScan     ScanKind = "network_scan"
	ScanKindAPIScan         ScanKind = "api_scan"
	ScanKindSSLScan         ScanKind = "ssl_scan"
	ScanKindWAFDetection    ScanKind = "waf_detection"
	ScanKindWordPress       ScanKind = "wordpress_scan"
	ScanKindDrupal          ScanKind = "drupal_scan"
	ScanKindJoomla          ScanKind = "joomla_scan"
	ScanKindSharePoint      ScanKind = "sharepoint_scan"
	ScanKindDNSLookup       ScanKind = "dns_lookup"
	ScanKindDNSZoneTransfer ScanKind = "dns_zone_transfer"
	ScanKindWhois           ScanKind = "whois"
	ScanKindEmailFinder     ScanKind = "email_finder"
	ScanKindPing            ScanKind = "ping"
	ScanKindTraceroute      ScanKind = "traceroute"
	ScanKindHTTPHeaders     ScanKind = "http_headers"
	ScanKindWebsiteRecon    ScanKind = "website_recon"
	ScanKindURLFuzzer       ScanKind = "url_fuzzer"
)

var allScanKinds = []ScanKind{
	ScanKindSubdomainFinder,
	ScanKindPortScan,
	ScanKindWebsiteScan,
	ScanKindNetworkScan,
	ScanKindAPIScan,
	ScanKindSSLScan,
	ScanKindWAFDetection,
	ScanKindWordPress,
	ScanKindDrupal,
	ScanKindJoomla,
	ScanKindSharePoint,
	ScanKindDNSLookup,
	ScanKindDNSZoneTransfer,
	ScanKindWhois,
	ScanKindEmailFinder,
	ScanKindPing,
	ScanKindTraceroute,
	ScanKindHTTPHeaders,
	ScanKindWebsiteRecon,
	ScanKindURLFuzzer,
}

// AllScanKinds returns every scan kind the platform knows about
func AllScanKinds() []ScanKind {
	out := make([]ScanKind, len(allScanKinds))
	copy(out, allScanKinds)
	return out
}

// Valid reports whether k is a known scan kind
func (k ScanKind) Valid() bool {
	for _, known := range allScanKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ScanStatus is the lifecycle status of a scan
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "PENDING"
	ScanStatusRunning   ScanStatus = "RUNNING"
	ScanStatusCompleted ScanStatus = "COMPLETED"
	ScanStatusFailed    ScanStatus = "FAILED"
	ScanStatusCancelled ScanStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition can leave s
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanStatusCompleted, ScanStatusFailed, ScanStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status
func (s ScanStatus) Valid() bool {
	switch s {
	case ScanStatusPending, ScanStatusRunning, ScanStatusCompleted, ScanStatusFailed, ScanStatusCancelled:
		return true
	}
	return false
}

// ActiveScanStatuses are the statuses a scan can be cancelled or progressed from
var ActiveScanStatuses = []ScanStatus{ScanStatusPending, ScanStatusRunning}

// Scan is a scan request together with its lifecycle state.
// A request and its state are created and deleted together, so they share a row.
type Scan struct {
	ID         string   `json:"id" gorm:"primaryKey;size:36"`
	Target     string   `json:"target" gorm:"not null" validate:"required"`
	Kind       ScanKind `json:"kind" gorm:"index;not null;size:32" validate:"required"`
	Parameters JSONMap  `json:"parameters" gorm:"type:text"`
	OwnerID    string   `json:"owner_id,omitempty" gorm:"index;size:128"`
	PolicyID   string   `json:"policy_id,omitempty" gorm:"index;size:36"`

	Status           ScanStatus `json:"status" gorm:"index;not null;size:16"`
	Progress         int        `json:"progress" gorm:"not null;default:0"`
	ProviderScanID   string     `json:"provider_scan_id,omitempty" gorm:"size:64"`
	ProviderTargetID string     `json:"provider_target_id,omitempty" gorm:"size:64"`
	ErrorMessage     string     `json:"error_message,omitempty" gorm:"type:text"`
	ErrorCode        string     `json:"error_code,omitempty" gorm:"size:64"`
	RawOutput        RawJSON    `json:"-" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the table name for the Scan model
func (Scan) TableName() string {
	return "scans"
}

// IsTerminal reports whether the scan has reached a final status
func (s *Scan) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Duration returns how long the scan has been (or was) running
func (s *Scan) Duration(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt)
}
