package models

import (
	"strings"
	"time"
)

// Severity is the ordered risk classification of a finding
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the ordinal of the severity, INFO being the lowest.
// Unknown values rank as INFO.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ParseSeverity maps a provider severity string onto a Severity, case-insensitively.
// Anything unrecognised is INFO.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	}
	return SeverityInfo
}

// Finding is a single normalized security observation produced by a scan
type Finding struct {
	ID                uint        `json:"id" gorm:"primaryKey"`
	ScanID            string      `json:"scan_id" gorm:"index;not null;size:36"`
	Type              string      `json:"type" gorm:"size:64"`
	Title             string      `json:"title" gorm:"not null"`
	Description       string      `json:"description,omitempty" gorm:"type:text"`
	Severity          Severity    `json:"severity" gorm:"index;size:16;not null"`
	Details           JSONMap     `json:"details,omitempty" gorm:"type:text"`
	AffectedComponent string      `json:"affected_component,omitempty"`
	Remediation       string      `json:"remediation,omitempty" gorm:"type:text"`
	References        StringArray `json:"references,omitempty" gorm:"type:text"`
	CVEID             string      `json:"cve_id,omitempty" gorm:"column:cve_id;size:32"`
	CVSSScore         *float64    `json:"cvss_score,omitempty" gorm:"column:cvss_score"`
	CreatedAt         time.Time   `json:"created_at"`
}

// TableName returns the table name for the Finding model
func (Finding) TableName() string {
	return "findings"
}

// FindingSummary counts findings per severity
type FindingSummary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Summarize counts the findings per severity
func Summarize(findings []Finding) FindingSummary {
	summary := FindingSummary{Total: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			summary.Critical++
		case SeverityHigh:
			summary.High++
		case SeverityMedium:
			summary.Medium++
		case SeverityLow:
			summary.Low++
		default:
			summary.Info++
		}
	}
	return summary
}

// Highest returns the most severe level present, or INFO when there are no findings
func (s FindingSummary) Highest() Severity {
	switch {
	case s.Critical > 0:
		return SeverityCritical
	case s.High > 0:
		return SeverityHigh
	case s.Medium > 0:
		return SeverityMedium
	case s.Low > 0:
		return SeverityLow
	}
	return SeverityInfo
}
