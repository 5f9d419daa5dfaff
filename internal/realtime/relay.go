package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxRelayMessage = 64 << 10

// RelayConfig configures a Relay. Zero backoffs use one second and one
// minute.
type RelayConfig struct {
	URL        string
	Header     http.Header
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Relay republishes a remote WebSocket change stream on a local broker,
// reconnecting whenever the stream drops.
type Relay struct {
	broker *Broker
	cfg    RelayConfig
	logger zerolog.Logger
}

func NewRelay(broker *Broker, cfg RelayConfig) *Relay {
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(time.Minute, cfg.MinBackoff)
	}
	return &Relay{
		broker: broker,
		cfg:    cfg,
		logger: log.With().Str("component", "change_relay").Str("url", cfg.URL).Logger(),
	}
}

// Run streams changes until ctx is done. It returns nil on cancellation.
func (r *Relay) Run(ctx context.Context) error {
	backoff := r.cfg.MinBackoff
	for {
		connected, err := r.stream(ctx)
		if ctx.Err() != nil {
			r.logger.Info().Msg("Change relay stopped")
			return nil
		}
		if connected {
			backoff = r.cfg.MinBackoff
		}
		r.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Change stream unavailable")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info().Msg("Change relay stopped")
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, r.cfg.MaxBackoff)
	}
}

// stream holds one connection open and reports whether it got as far as the
// handshake.
func (r *Relay) stream(ctx context.Context) (bool, error) {
	conn, resp, err := r.cfg.Dialer.DialContext(ctx, r.cfg.URL, r.cfg.Header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial change stream: %w (status %d)", err, resp.StatusCode)
		}
		return false, fmt.Errorf("dial change stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	r.logger.Info().Msg("Change stream connected")

	conn.SetReadLimit(maxRelayMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read change stream: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Warn().Err(err).Msg("Skipping malformed change message")
			continue
		}
		if msg.Type != "change" || msg.Payload.Resource == "" {
			continue
		}
		r.broker.Publish(msg.Payload)
	}
}

// WebSocketURL turns an http(s) base URL into the ws(s) URL of path under it.
func WebSocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
