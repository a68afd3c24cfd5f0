package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/gorilla/websocket"
)

// wsURL converts the HTTP base URL into the scan's WebSocket endpoint
func (c *APIClient) wsURL(id string) (string, error) {
	u, err := url.Parse(c.buildURL(scanPath(id) + "/ws"))
	if err != nil {
		return "", fmt.Errorf("invalid watch URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// WatchScan streams the scan's events to fn until a terminal event arrives, fn returns
// an error, or ctx ends. The first event describes the scan's current state.
func (c *APIClient) WatchScan(ctx context.Context, id string, fn func(models.ScanEvent) error) error {
	target, err := c.wsURL(id)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.Timeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.config.TLSInsecureSkipVerify}, // #nosec G402 -- opt-in
	}
	header := http.Header{}
	header.Set("User-Agent", c.config.UserAgent)
	if c.accessToken != "" {
		header.Set("Authorization", "Bearer "+c.accessToken)
	}
	for key, value := range c.config.Headers {
		header.Set(key, value)
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			_, apiErr := c.handleResponse(resp, nil)
			if apiErr == nil {
				apiErr = statusError(resp.StatusCode)
			}
			return apiErr
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var event models.ScanEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseGoingAway {
				return fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(closeErr.Text))
			}
			return fmt.Errorf("watch scan %s: %w", id, err)
		}
		if err := fn(event); err != nil {
			return err
		}
		if event.IsFinal() {
			return nil
		}
	}
}
