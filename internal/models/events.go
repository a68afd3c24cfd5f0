package models

import "time"

// ScanEventType names the kind of progress event published for a scan
type ScanEventType string

const (
	ScanEventStatus    ScanEventType = "scan.status"
	ScanEventProgress  ScanEventType = "scan.progress"
	ScanEventCompleted ScanEventType = "scan.completed"
	ScanEventFailed    ScanEventType = "scan.failed"
	ScanEventCancelled ScanEventType = "scan.cancelled"
)

// ScanEvent is the payload delivered to subscribers of a scan
type ScanEvent struct {
	ScanID        string          `json:"scan_id"`
	Type          ScanEventType   `json:"type"`
	Status        ScanStatus      `json:"status"`
	Progress      int             `json:"progress"`
	Message       string          `json:"message,omitempty"`
	FindingsCount int             `json:"findings_count,omitempty"`
	Summary       *FindingSummary `json:"summary,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewScanEvent builds an event describing the scan's current state
func NewScanEvent(scan *Scan, eventType ScanEventType, message string) ScanEvent {
	return ScanEvent{
		ScanID:    scan.ID,
		Type:      eventType,
		Status:    scan.Status,
		Progress:  scan.Progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// IsFinal reports whether no further events follow this one for the scan
func (e ScanEvent) IsFinal() bool {
	return e.Status.IsTerminal()
}
