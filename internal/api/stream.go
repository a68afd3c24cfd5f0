package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/events"
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/scan"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 512
)

// openStream authorizes the caller, subscribes to the scan's events and builds a snapshot
// of its current state. The subscription is taken before the snapshot is read so no
// transition falls between the two.
func (s *Server) openStream(c *gin.Context) (*events.Subscription, models.ScanEvent, bool) {
	owner, admin, ok := caller(c)
	if !ok {
		return nil, models.ScanEvent{}, false
	}
	id := c.Param("id")

	sub := s.broker.Subscribe(id)
	record, err := s.scans.GetScan(c.Request.Context(), id)
	if err == nil && !visible(owner, admin, record.OwnerID) {
		err = fmt.Errorf("%w: scan %s", scan.ErrNotFound, id)
	}
	if err != nil {
		s.broker.Unsubscribe(sub)
		s.handleError(c, err, "Failed to open scan event stream")
		return nil, models.ScanEvent{}, false
	}
	return sub, s.snapshot(c, record), true
}

// snapshot describes the scan's current state as the first event of a stream
func (s *Server) snapshot(c *gin.Context, record *models.Scan) models.ScanEvent {
	switch record.Status {
	case models.ScanStatusCompleted:
		event := models.NewScanEvent(record, models.ScanEventCompleted, "Scan completed")
		if findings, err := s.scans.ListFindings(c.Request.Context(), record.ID); err == nil {
			summary := models.Summarize(findings)
			event.FindingsCount = summary.Total
			event.Summary = &summary
		}
		return event
	case models.ScanStatusFailed:
		return models.NewScanEvent(record, models.ScanEventFailed, record.ErrorMessage)
	case models.ScanStatusCancelled:
		return models.NewScanEvent(record, models.ScanEventCancelled, "Scan cancelled")
	}
	return models.NewScanEvent(record, models.ScanEventStatus, "")
}

// streamScanEvents godoc
// @Summary Stream scan events (SSE)
// @Description Streams the scan's lifecycle events as Server-Sent Events. The first event is a snapshot
// @Description of the current state; the stream ends after a terminal event. Earlier events are not replayed.
// @Description Browsers may pass the bearer token as the access_token query parameter.
// @Tags Scans
// @Produce text/event-stream
// @Security BearerAuth
// @Param id path string true "Scan ID"
// @Success 200 {string} string "SSE stream of models.ScanEvent"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Scan not found"
// @Router /scans/{id}/events [get]
func (s *Server) streamScanEvents(c *gin.Context) {
	sub, first, ok := s.openStream(c)
	if !ok {
		return
	}
	defer s.broker.Unsubscribe(sub)

	log := s.logger.WithField("scan_id", sub.ScanID())
	log.Debug("Client subscribed to scan event stream")

	// Streams outlive the server write timeout
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		log.WithError(err).Debug("Cannot clear write deadline for event stream")
	}

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	seq := 0
	send := func(w io.Writer, event models.ScanEvent) bool {
		seq++
		if err := sse.Encode(w, sse.Event{
			Id:    strconv.Itoa(seq),
			Event: string(event.Type),
			Data:  event,
		}); err != nil {
			log.WithError(err).Debug("Failed to write scan event")
			return false
		}
		return !event.IsFinal()
	}

	if !send(c.Writer, first) {
		c.Writer.Flush()
		return
	}
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-sub.Events():
			if !open {
				return false
			}
			return send(w, event)
		case <-heartbeat.C:
			_, err := io.WriteString(w, ": heartbeat\n\n")
			return err == nil
		case <-s.closing:
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
	log.Debug("Scan event stream closed")
}

// streamScanWebSocket godoc
// @Summary Stream scan events (WebSocket)
// @Description Upgrades to a WebSocket that carries the scan's lifecycle events as JSON text messages.
// @Description The first message is a snapshot of the current state; the socket closes normally after a terminal event.
// @Tags Scans
// @Security BearerAuth
// @Param id path string true "Scan ID"
// @Success 101 {string} string "Switching protocols"
// @Failure 401 {object} models.ErrorResponse "Authentication required"
// @Failure 404 {object} models.ErrorResponse "Scan not found"
// @Router /scans/{id}/ws [get]
func (s *Server) streamScanWebSocket(c *gin.Context) {
	sub, first, ok := s.openStream(c)
	if !ok {
		return
	}
	defer s.broker.Unsubscribe(sub)

	log := s.logger.WithField("scan_id", sub.ScanID())
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	pongWait := 2 * s.heartbeat
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The reader only drains control frames and notices the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(event models.ScanEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(event)
	}
	closeWith := func(code int, text string) {
		msg := websocket.FormatCloseMessage(code, text)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}

	if err := write(first); err != nil {
		log.WithError(err).Debug("Failed to write scan snapshot")
		return
	}
	if first.IsFinal() {
		closeWith(websocket.CloseNormalClosure, string(first.Status))
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-sub.Events():
			if !open {
				closeWith(websocket.CloseGoingAway, "event broker closed")
				return
			}
			if err := write(event); err != nil {
				log.WithError(err).Debug("Failed to write scan event")
				return
			}
			if event.IsFinal() {
				closeWith(websocket.CloseNormalClosure, string(event.Status))
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-s.closing:
			closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-gone:
			log.WithFields(logrus.Fields{"reason": "peer closed"}).Debug("WebSocket client disconnected")
			return
		}
	}
}
