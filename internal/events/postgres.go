package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// maxNotifyPayload is PostgreSQL's NOTIFY payload limit minus some headroom
const maxNotifyPayload = 7900

// PostgresBroker shares scan events between processes with LISTEN/NOTIFY.
// Events are published with pg_notify and delivered to local subscribers
// by a dedicated listening connection feeding an embedded Hub.
type PostgresBroker struct {
	pool    *pgxpool.Pool
	channel string
	hub     *Hub
	log     *logrus.Logger

	cancel context.CancelFunc
	done   chan struct{}
	ready  chan struct{}
}

// NewPostgresBroker connects to dsn and starts listening on channel
func NewPostgresBroker(ctx context.Context, dsn, channel string, buffer int, log *logrus.Logger) (*PostgresBroker, error) {
	if log == nil {
		log = logrus.New()
	}
	if channel == "" {
		channel = "scan_events"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create event broker pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach event broker database: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	b := &PostgresBroker{
		pool:    pool,
		channel: channel,
		hub:     NewHub(buffer, log),
		log:     log,
		cancel:  cancel,
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
	go b.listen(listenCtx)

	select {
	case <-b.ready:
	case <-ctx.Done():
		b.Close()
		return nil, ctx.Err()
	}
	return b, nil
}

// Publish sends the event to every process listening on the channel
func (b *PostgresBroker) Publish(ctx context.Context, scanID string, event models.ScanEvent) error {
	event.ScanID = scanID
	payload, err := encodeNotification(event)
	if err != nil {
		return err
	}
	if _, err := b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, payload); err != nil {
		return fmt.Errorf("failed to publish scan event: %w", err)
	}
	return nil
}

// Subscribe joins the local group of scanID
func (b *PostgresBroker) Subscribe(scanID string) *Subscription {
	return b.hub.Subscribe(scanID)
}

// Unsubscribe leaves the local group
func (b *PostgresBroker) Unsubscribe(sub *Subscription) {
	b.hub.Unsubscribe(sub)
}

// Dropped returns how many events were discarded for slow subscribers
func (b *PostgresBroker) Dropped() uint64 {
	return b.hub.Dropped()
}

// Close stops listening and releases the pool
func (b *PostgresBroker) Close() error {
	b.cancel()
	<-b.done
	b.pool.Close()
	return b.hub.Close()
}

func (b *PostgresBroker) listen(ctx context.Context) {
	defer close(b.done)

	backoff := time.Second
	signalled := false
	for {
		err := b.listenOnce(ctx, func() {
			if !signalled {
				signalled = true
				close(b.ready)
			}
			backoff = time.Second
		})
		if ctx.Err() != nil {
			return
		}
		b.log.WithError(err).WithField("channel", b.channel).Warn("Event listener disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (b *PostgresBroker) listenOnce(ctx context.Context, onListening func()) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return err
	}
	onListening()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var event models.ScanEvent
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			b.log.WithError(err).Warn("Ignoring malformed scan event notification")
			continue
		}
		if event.ScanID == "" {
			continue
		}
		if err := b.hub.Publish(ctx, event.ScanID, event); err != nil {
			return err
		}
	}
}

// encodeNotification serializes the event, dropping the summary when the payload is too large
func encodeNotification(event models.ScanEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to encode scan event: %w", err)
	}
	if len(payload) > maxNotifyPayload {
		event.Summary = nil
		event.Message = ""
		if payload, err = json.Marshal(event); err != nil {
			return "", fmt.Errorf("failed to encode scan event: %w", err)
		}
	}
	return string(payload), nil
}
