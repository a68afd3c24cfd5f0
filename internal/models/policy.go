package models

import (
	"strings"
	"time"
)

// Frequency is how often a recurrence policy fires
type Frequency string

const (
	FrequencyOnce    Frequency = "ONCE"
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// ParseFrequency parses a frequency name case-insensitively
func ParseFrequency(raw string) (Frequency, bool) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(raw)))
	return f, f.Valid()
}

// Valid reports whether f is a known frequency
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Next returns the fire time following from, and false when the frequency never repeats.
// Monthly uses calendar months, so Jan 31 + 1 month normalizes the way time.AddDate does.
func (f Frequency) Next(from time.Time) (time.Time, bool) {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1), true
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), true
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0), true
	}
	return time.Time{}, false
}

// RecurrencePolicy periodically re-triggers scan creation
type RecurrencePolicy struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	Name       string     `json:"name" gorm:"not null"`
	Target     string     `json:"target" gorm:"not null"`
	Kind       ScanKind   `json:"kind" gorm:"not null;size:32"`
	Parameters JSONMap    `json:"parameters" gorm:"type:text"`
	Frequency  Frequency  `json:"frequency" gorm:"not null;size:16"`
	NextFireAt *time.Time `json:"next_fire_at,omitempty" gorm:"index"`
	LastFireAt *time.Time `json:"last_fire_at,omitempty"`
	Active     bool       `json:"active" gorm:"index;not null"`
	RunCount   int        `json:"run_count" gorm:"not null;default:0"`
	MaxRuns    *int       `json:"max_runs,omitempty"`
	OwnerID    string     `json:"owner_id,omitempty" gorm:"index;size:128"`
	LastScanID string     `json:"last_scan_id,omitempty" gorm:"size:36"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the table name for the RecurrencePolicy model
func (RecurrencePolicy) TableName() string {
	return "recurrence_policies"
}

// Exhausted reports whether the policy has used up its run cap
func (p *RecurrencePolicy) Exhausted() bool {
	return p.MaxRuns != nil && p.RunCount >= *p.MaxRuns
}

// RecordFire applies the bookkeeping for one fire at the given time.
// Missed intervals are skipped so next_fire_at always lands after now.
func (p *RecurrencePolicy) RecordFire(firedAt, now time.Time, scanID string) {
	p.RecordRun(firedAt, scanID)

	if p.Exhausted() {
		p.Active = false
		p.NextFireAt = nil
		return
	}

	next, ok := p.Frequency.Next(firedAt)
	if !ok {
		p.Active = false
		p.NextFireAt = nil
		return
	}
	for !next.After(now) {
		next, _ = p.Frequency.Next(next)
	}
	p.NextFireAt = &next
}

// RecordRun counts one run without moving next_fire_at.
// The policy is deactivated once it reaches its run cap.
func (p *RecurrencePolicy) RecordRun(firedAt time.Time, scanID string) {
	p.RunCount++
	p.LastFireAt = &firedAt
	p.LastScanID = scanID
	if p.Exhausted() {
		p.Active = false
		p.NextFireAt = nil
	}
}
