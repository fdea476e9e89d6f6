package blogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Event Payload Types
// ============================================================================

// Blog change events pushed by the backend.
const (
	BlogEventCreated = "blog.created"
	BlogEventUpdated = "blog.updated"
	BlogEventDeleted = "blog.deleted"
)

// BlogEvent reports a server-side change to a blog.
type BlogEvent struct {
	Type   string `json:"-"`
	BlogID string `json:"blogId"`
	Slug   string `json:"slug,omitempty"`
}

// RealtimeEnvelope is the wire format for all real-time events.
type RealtimeEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the WebSocket connectivity source.
type RealtimeConfig struct {
	Token string
	// DisableReconnect stops the source after the first disconnect.
	DisableReconnect bool
	// MaxReconnectAttempts bounds consecutive failed reconnects; 0 retries forever.
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	PingTimeout          time.Duration
	DialTimeout          time.Duration
	HTTPClient           *http.Client
	Logger               *zap.Logger
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 10 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	// A connection that stayed up for a minute starts a fresh backoff.
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	r.connectedAt = time.Time{}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// WebSocketSource
// ============================================================================

// WebSocketSource is a ConnectivitySource backed by a WebSocket to the blog
// backend: an open socket means the backend is reachable. Blog change events
// received on the socket are delivered to OnBlogEvent handlers.
type WebSocketSource struct {
	wsURL  string
	logURL string // wsURL without the token query
	config RealtimeConfig
	log    *zap.Logger
	recon  *reconnector

	mu      sync.Mutex
	state   RealtimeState
	current ConnectivityState
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}

	connectivity *listenerSet[ConnectivityState]
	events       *listenerSet[BlogEvent]
}

// NewWebSocketSource creates a source for the backend at baseURL
// (http(s)://host[:port]). The socket is opened by Start.
func NewWebSocketSource(baseURL string, config *RealtimeConfig) *WebSocketSource {
	var cfg RealtimeConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	log := cfg.Logger.With(zap.String("module", "realtime"))

	wsURL := strings.Replace(strings.TrimRight(baseURL, "/"), "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws"
	logURL := wsURL
	if cfg.Token != "" {
		wsURL += "?token=" + url.QueryEscape(cfg.Token)
	}

	return &WebSocketSource{
		wsURL:        wsURL,
		logURL:       logURL,
		config:       cfg,
		log:          log,
		recon:        newReconnector(&cfg),
		state:        StateDisconnected,
		current:      OfflineConnectivity(),
		connectivity: newListenerSet[ConnectivityState](log),
		events:       newListenerSet[BlogEvent](log),
	}
}

// State returns the snapshot derived from the socket.
func (s *WebSocketSource) State(ctx context.Context) (ConnectivityState, error) {
	if err := ctx.Err(); err != nil {
		return ConnectivityState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// OnChange registers fn for connectivity changes.
func (s *WebSocketSource) OnChange(fn func(ConnectivityState)) func() {
	return s.connectivity.add(fn)
}

// OnBlogEvent registers fn for blog change events.
func (s *WebSocketSource) OnBlogEvent(fn func(BlogEvent)) func() {
	return s.events.add(fn)
}

// ConnectionState returns the socket state.
func (s *WebSocketSource) ConnectionState() RealtimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start dials the backend and keeps the socket alive until ctx is done or
// Close is called. It returns the first dial error, if any; reconnection
// continues in the background unless DisableReconnect is set.
func (s *WebSocketSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateConnecting
	s.mu.Unlock()

	conn, err := s.dial(runCtx)
	if err != nil {
		s.setOffline(err)
	} else {
		s.setOnline(conn)
	}
	go s.run(runCtx, conn)
	return err
}

// Close stops the source and closes the socket.
func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	conn := s.conn
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	<-done
	s.mu.Lock()
	s.state = StateDisconnected
	s.conn = nil
	s.mu.Unlock()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	defer cancel()
	var opts *websocket.DialOptions
	if s.config.HTTPClient != nil {
		opts = &websocket.DialOptions{HTTPClient: s.config.HTTPClient}
	}
	conn, _, err := websocket.Dial(dialCtx, s.wsURL, opts)
	if err != nil {
		// Transport errors quote the request URL, token included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = s.logURL
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

func (s *WebSocketSource) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	for {
		if conn != nil {
			err := s.serve(ctx, conn)
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "client disconnect")
				return
			}
			s.setOffline(err)
		}
		if s.config.DisableReconnect || !s.recon.shouldReconnect() {
			s.setState(StateDisconnected)
			s.log.Info("websocket source stopped reconnecting", zap.Int("attempts", s.recon.attempt))
			return
		}

		delay := s.recon.nextDelay()
		s.setState(StateReconnecting)
		s.log.Debug("websocket reconnecting", zap.Int("attempt", s.recon.attempt), zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Debug("websocket reconnect failed", zap.Error(err))
			conn = nil
			continue
		}
		conn = c
		s.setOnline(conn)
	}
}

// serve reads until the socket fails. A heartbeat goroutine pings the peer and
// closes the socket when a ping goes unanswered.
func (s *WebSocketSource) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.heartbeatLoop(connCtx, conn)

	for {
		_, data, err := conn.Read(connCtx)
		if err != nil {
			return err
		}
		var env RealtimeEnvelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		s.dispatch(env)
	}
}

func (s *WebSocketSource) dispatch(env RealtimeEnvelope) {
	switch env.Type {
	case BlogEventCreated, BlogEventUpdated, BlogEventDeleted:
		var ev BlogEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			s.log.Debug("malformed blog event", zap.String("type", env.Type), zap.Error(err))
			return
		}
		ev.Type = env.Type
		s.events.publish(ev)
	}
}

func (s *WebSocketSource) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.config.PingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("websocket heartbeat failed", zap.Error(err))
					conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				}
				return
			}
		}
	}
}

func (s *WebSocketSource) setState(state RealtimeState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *WebSocketSource) setOnline(conn *websocket.Conn) {
	s.recon.markConnected()
	snapshot := Online(TransportWebSocket)
	snapshot.ObservedAt = time.Now()

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.current = snapshot
	s.mu.Unlock()

	s.log.Info("websocket connected", zap.String("url", s.logURL))
	s.connectivity.publish(snapshot)
}

func (s *WebSocketSource) setOffline(cause error) {
	snapshot := OfflineConnectivity()
	snapshot.ObservedAt = time.Now()

	s.mu.Lock()
	wasOnline := !s.current.IsOffline()
	s.conn = nil
	s.state = StateDisconnected
	s.current = snapshot
	s.mu.Unlock()

	if wasOnline {
		s.log.Warn("websocket disconnected", zap.Error(cause))
	}
	s.connectivity.publish(snapshot)
}
