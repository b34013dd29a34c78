// Package websocket maintains the realtime push channel: at most one live
// connection, cookie-authenticated, with bounded reconnection.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/metrics"
)

// State represents the state of the realtime connection
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Config holds realtime channel configuration
type Config struct {
	URL string
	// Jar supplies the handshake cookies. Share it with the REST gateway.
	Jar               http.CookieJar
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	// PingInterval is how often a ping frame is sent; 0 disables pings.
	PingInterval time.Duration
}

// DefaultConfig returns the production reconnection policy for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		HandshakeTimeout:  15 * time.Second,
		PingInterval:      25 * time.Second,
	}
}

// HandshakeError is returned when the server refuses the upgrade because
// the credentials are missing or invalid.
type HandshakeError struct {
	StatusCode int
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("realtime handshake rejected: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Stats holds connection statistics
type Stats struct {
	State            State
	MessagesReceived int64
	ReconnectCount   int
	LastError        string
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
}

// Handler receives one event. Handlers run on the channel's read goroutine
// in the order events arrive and must not block for long.
type Handler func(Message)

type listener struct {
	id uint64
	fn Handler
}

// Option configures a Channel.
type Option func(*Channel)

// WithMetrics records state, message and reconnect counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// Channel manages the realtime connection
type Channel struct {
	cfg     Config
	dialer  *websocket.Dialer
	metrics *metrics.Metrics

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	// gen changes on every Connect and Disconnect. A connection goroutine
	// only acts while the generation it started with is current.
	gen uint64

	listenersMu sync.RWMutex
	listeners   map[Event][]listener
	nextID      uint64

	leaseMu sync.Mutex
	leases  int

	statsMu sync.RWMutex
	stats   Stats
}

// New creates a disconnected channel.
func New(cfg Config, opts ...Option) *Channel {
	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}
	c := &Channel{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Jar:              cfg.Jar,
		},
		listeners: make(map[Event][]listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true if the connection is established
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect starts connecting in the background and returns immediately. It
// is a no-op while a connection is live or being (re)established. The
// connection lives until Disconnect is called or ctx is cancelled.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		state := c.state
		c.mu.Unlock()
		logger.Debug("Realtime channel already active", "state", state)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	logger.Debug("Realtime channel connecting", "url", c.cfg.URL)
	go c.run(runCtx, gen)
}

// Disconnect deregisters every listener, then closes the connection. It is
// a no-op when already disconnected and safe to call from a handler.
func (c *Channel) Disconnect() {
	c.clearListeners()

	c.mu.Lock()
	if c.state == StateDisconnected && c.cancel == nil {
		c.mu.Unlock()
		return
	}
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	c.gen++
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		closeConn(conn)
	}
	c.recordDisconnected()
	c.setGauge(false)

	logger.Debug("Realtime channel disconnected")
}

// On registers fn for event and returns a function that removes it.
func (c *Channel) On(event Event, fn Handler) (off func()) {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[event] = append(c.listeners[event], listener{id: id, fn: fn})
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()

		ls := c.listeners[event]
		for i, l := range ls {
			if l.id == id {
				c.listeners[event] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
	}
}

// ListenerCount returns how many handlers are registered for event.
func (c *Channel) ListenerCount(event Event) int {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	return len(c.listeners[event])
}

// Stats returns connection statistics
func (c *Channel) Stats() Stats {
	c.statsMu.RLock()
	st := c.stats
	c.statsMu.RUnlock()
	st.State = c.State()
	return st
}

func (c *Channel) run(ctx context.Context, gen uint64) {
	reconnecting := false
	for {
		conn, err := c.establish(ctx, gen, reconnecting)
		if err != nil {
			c.giveUp(ctx, gen, err)
			return
		}

		if !c.attach(gen, conn) {
			closeConn(conn)
			return
		}
		logger.Info("WebSocket connected", "url", c.cfg.URL)
		c.emit(gen, newMessage(EventConnect, nil))

		err = c.readLoop(ctx, conn)
		if !c.detach(gen, conn) {
			return
		}
		if ctx.Err() != nil {
			c.finish(gen, StateDisconnected)
			return
		}

		reason := ReasonTransportClose
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			reason = ReasonServerDisconnect
			logger.Warn("Server closed the realtime connection, the session may no longer be valid",
				"code", closeErr.Code, "text", closeErr.Text)
		} else {
			logger.Warn("Realtime connection lost", "error", err)
		}
		c.recordError(err.Error())
		c.emit(gen, newMessage(EventDisconnect, DisconnectInfo{Reason: reason}))

		reconnecting = true
	}
}

// establish dials with the bounded constant-delay policy. A first connect
// gets one attempt plus the configured retries; a reconnect waits the delay
// before each of its attempts.
func (c *Channel) establish(ctx context.Context, gen uint64, reconnecting bool) (*websocket.Conn, error) {
	tries := c.cfg.ReconnectAttempts
	if !reconnecting {
		tries++
	} else if err := sleep(ctx, c.cfg.ReconnectDelay); err != nil {
		return nil, err
	}
	if tries == 0 {
		return nil, errors.New("reconnection disabled")
	}

	attempt := 0
	op := func() (*websocket.Conn, error) {
		attempt++
		c.setState(gen, StateConnecting)
		if reconnecting {
			c.recordReconnect()
			logger.Debug("Reconnecting WebSocket", "attempt", attempt, "max", tries)
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}

		info := ErrorInfo{Message: err.Error()}
		if resp != nil {
			info.StatusCode = resp.StatusCode
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, backoff.Permanent(&HandshakeError{StatusCode: resp.StatusCode})
			}
		}

		c.recordError(err.Error())
		logger.Debug("WebSocket dial failed", "attempt", attempt, "error", err)
		c.emit(gen, newMessage(EventConnectError, info))
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.ReconnectDelay)),
		backoff.WithMaxTries(uint(tries)),
	)
}

// giveUp settles the final state after establish failed. A rejected
// handshake ends in auth_failed; anything else leaves the channel
// disconnected until the next Connect.
func (c *Channel) giveUp(ctx context.Context, gen uint64, err error) {
	var hsErr *HandshakeError
	switch {
	case ctx.Err() != nil:
		c.finish(gen, StateDisconnected)

	case errors.As(err, &hsErr):
		if !c.finish(gen, StateAuthFailed) {
			return
		}
		logger.Warn("Realtime authentication failed", "status", hsErr.StatusCode)
		c.recordError(hsErr.Error())
		c.emit(gen, newMessage(EventConnectError, ErrorInfo{Message: hsErr.Error(), StatusCode: hsErr.StatusCode}))

	default:
		if c.finish(gen, StateDisconnected) {
			logger.Warn("Realtime reconnection attempts exhausted, giving up", "attempts", c.cfg.ReconnectAttempts, "error", err)
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := c.watch(ctx, conn)
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Ignoring malformed realtime message", "error", err)
			continue
		}

		c.recordMessageReceived(msg.Type)
		c.emitCurrent(conn, msg)
	}
}

// watch closes conn when ctx ends and sends pings while it is open.
func (c *Channel) watch(ctx context.Context, conn *websocket.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		var tick <-chan time.Time
		if c.cfg.PingInterval > 0 {
			ticker := time.NewTicker(c.cfg.PingInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-tick:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					logger.Debug("Failed to send ping", "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

// emit runs the handlers for msg.Type if gen is still current.
func (c *Channel) emit(gen uint64, msg Message) {
	if !c.current(gen) {
		return
	}

	c.listenersMu.RLock()
	ls := make([]listener, len(c.listeners[msg.Type]))
	copy(ls, c.listeners[msg.Type])
	c.listenersMu.RUnlock()

	for _, l := range ls {
		l.fn(msg)
	}
}

func (c *Channel) clearListeners() {
	c.listenersMu.Lock()
	c.listeners = make(map[Event][]listener)
	c.listenersMu.Unlock()
}

func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// emitCurrent dispatches a server event only while conn is the live
// connection.
func (c *Channel) emitCurrent(conn *websocket.Conn, msg Message) {
	c.mu.Lock()
	live := c.conn == conn
	gen := c.gen
	c.mu.Unlock()
	if live {
		c.emit(gen, msg)
	}
}

func (c *Channel) setState(gen uint64, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.state = s
	}
}

// finish ends the run of generation gen in state s.
func (c *Channel) finish(gen uint64, s State) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.state = s
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func (c *Channel) attach(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.recordConnected()
	c.setGauge(true)
	return true
}

func (c *Channel) detach(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	conn.Close()
	c.recordDisconnected()
	c.setGauge(false)
	return true
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Channel) setGauge(connected bool) {
	if c.metrics == nil {
		return
	}
	if connected {
		c.metrics.RealtimeState.Set(1)
	} else {
		c.metrics.RealtimeState.Set(0)
	}
}

func (c *Channel) recordMessageReceived(event Event) {
	c.statsMu.Lock()
	c.stats.MessagesReceived++
	c.statsMu.Unlock()
	if c.metrics != nil {
		c.metrics.RealtimeMessagesTotal.WithLabelValues(string(event)).Inc()
	}
}

func (c *Channel) recordReconnect() {
	c.statsMu.Lock()
	c.stats.ReconnectCount++
	c.statsMu.Unlock()
	if c.metrics != nil {
		c.metrics.RealtimeReconnectsTotal.Inc()
	}
}

func (c *Channel) recordError(errMsg string) {
	c.statsMu.Lock()
	c.stats.LastError = errMsg
	c.statsMu.Unlock()
}

func (c *Channel) recordConnected() {
	c.statsMu.Lock()
	c.stats.ConnectedAt = time.Now()
	c.statsMu.Unlock()
}

func (c *Channel) recordDisconnected() {
	c.statsMu.Lock()
	c.stats.DisconnectedAt = time.Now()
	c.statsMu.Unlock()
}
