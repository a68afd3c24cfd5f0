package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when none is configured
const DefaultSubscriberBuffer = 32

// Hub is the in-process Broker
type Hub struct {
	mu      sync.RWMutex
	groups  map[string]map[uint64]*Subscription
	nextID  uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
	log     *logrus.Logger
}

// NewHub creates a hub whose subscribers buffer up to buffer events
func NewHub(buffer int, log *logrus.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if log == nil {
		log = logrus.New()
	}
	return &Hub{
		groups: make(map[string]map[uint64]*Subscription),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe joins the group of scanID. A closed hub returns an already closed subscription.
func (h *Hub) Subscribe(scanID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		scanID: scanID,
		ch:     make(chan models.ScanEvent, h.buffer),
	}
	if h.closed {
		sub.close()
		return sub
	}

	group, ok := h.groups[scanID]
	if !ok {
		group = make(map[uint64]*Subscription)
		h.groups[scanID] = group
	}
	group[sub.id] = sub
	return sub
}

// Unsubscribe leaves the group and closes the subscription's channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if group, ok := h.groups[sub.scanID]; ok {
		delete(group, sub.id)
		if len(group) == 0 {
			delete(h.groups, sub.scanID)
		}
	}
	sub.close()
}

// Publish delivers event to every current subscriber of scanID without blocking.
// A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, scanID string, event models.ScanEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrBrokerClosed
	}

	for _, sub := range h.groups[scanID] {
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
			h.log.WithFields(logrus.Fields{
				"scan_id":    scanID,
				"event_type": event.Type,
			}).Warn("Subscriber buffer full, dropping scan event")
		}
	}
	return nil
}

// SubscriberCount returns the number of subscribers of scanID
func (h *Hub) SubscriberCount(scanID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[scanID])
}

// Dropped returns how many deliveries were skipped because of full buffers
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close closes every subscription; later publishes fail with ErrBrokerClosed
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for scanID, group := range h.groups {
		for _, sub := range group {
			sub.close()
		}
		delete(h.groups, scanID)
	}
	return nil
}
