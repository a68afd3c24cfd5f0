// Package events fans scan progress events out to per-scan subscribers.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
)

// ErrBrokerClosed is returned when publishing to a closed broker
var ErrBrokerClosed = errors.New("event broker closed")

// Broker publishes scan events to the subscribers of that scan.
// Delivery is best-effort: publishing never blocks on a slow subscriber,
// and a subscriber only sees events published after it subscribed.
type Broker interface {
	Publish(ctx context.Context, scanID string, event models.ScanEvent) error
	Subscribe(scanID string) *Subscription
	Unsubscribe(sub *Subscription)
	Close() error
}

// Subscription is one subscriber's membership in a scan's group
type Subscription struct {
	id     uint64
	scanID string
	ch     chan models.ScanEvent
	once   sync.Once
}

// ScanID returns the scan this subscription listens to
func (s *Subscription) ScanID() string {
	return s.scanID
}

// Events returns the delivery channel. It is closed on unsubscribe or broker close.
func (s *Subscription) Events() <-chan models.ScanEvent {
	return s.ch
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}
