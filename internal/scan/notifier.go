package scan

import (
	"context"
	"sync"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/events"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// notifier publishes events in order from a single goroutine so that a slow
// broker never stalls a scan's state machine
type notifier struct {
	broker events.Broker
	queue  chan models.ScanEvent
	log    *logrus.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newNotifier(broker events.Broker, size int, log *logrus.Logger) *notifier {
	if size <= 0 {
		size = 256
	}
	n := &notifier{
		broker: broker,
		queue:  make(chan models.ScanEvent, size),
		log:    log,
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

// notify enqueues the event, dropping it when the queue is full
func (n *notifier) notify(event models.ScanEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	select {
	case n.queue <- event:
	default:
		n.log.WithFields(logrus.Fields{
			"scan_id":    event.ScanID,
			"event_type": event.Type,
		}).Warn("Event queue full, dropping scan event")
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for event := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := n.broker.Publish(ctx, event.ScanID, event); err != nil {
			n.log.WithError(err).WithFields(logrus.Fields{
				"scan_id":    event.ScanID,
				"event_type": event.Type,
			}).Warn("Failed to publish scan event")
		}
		cancel()
	}
}

// close stops accepting events and waits until the queue is drained
func (n *notifier) close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
