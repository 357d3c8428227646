// ABOUTME: Push channel over WebSocket that reconnects on a fixed interval after loss
// ABOUTME: Delivers text and binary frames in wire order to registered handlers

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultReconnectInterval is the pause before each reconnect attempt.
	DefaultReconnectInterval = 10 * time.Second

	defaultWriteTimeout = 10 * time.Second
)

// Sentinel errors for backend setup and use.
var (
	// ErrSetupFailed marks a backend that could not be brought up. Not retried.
	ErrSetupFailed = errors.New("backend setup failed")

	// ErrNotConnected is returned by Send while the channel is not open.
	ErrNotConnected = errors.New("push channel not connected")
)

// State is the push channel's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReconnectingChannel is a long-lived WebSocket connection to the gateway.
// It rides on an HTTPClient that it either owns or borrows from a sibling
// backend; only an owned client is set up and cleaned up here.
type ReconnectingChannel struct {
	base     *HTTPClient
	owned    bool
	path     string
	interval time.Duration
	logger   *slog.Logger

	state atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	onText  func(string)
	onBin   func([]byte)
	onState func(State)

	writeMu sync.Mutex
}

// ChannelOption configures a ReconnectingChannel.
type ChannelOption func(*ReconnectingChannel)

// WithPath sets the WebSocket path on the endpoint. Defaults to "/".
func WithPath(path string) ChannelOption {
	return func(c *ReconnectingChannel) { c.path = path }
}

// WithReconnectInterval overrides DefaultReconnectInterval.
func WithReconnectInterval(d time.Duration) ChannelOption {
	return func(c *ReconnectingChannel) {
		if d > 0 {
			c.interval = d
		}
	}
}

// NewReconnectingChannel creates a channel on base. owned marks base as
// belonging to the channel. Pass nil logger for default.
func NewReconnectingChannel(base *HTTPClient, owned bool, logger *slog.Logger, opts ...ChannelOption) *ReconnectingChannel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ReconnectingChannel{
		base:     base,
		owned:    owned,
		path:     "/",
		interval: DefaultReconnectInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.With("component", "push_channel", "url", c.url())
	return c
}

func (c *ReconnectingChannel) url() string {
	return c.base.Endpoint().WebSocketURL(c.path)
}

// Owned reports whether the channel owns its HTTP client.
func (c *ReconnectingChannel) Owned() bool {
	return c.owned
}

// State returns the current connection state.
func (c *ReconnectingChannel) State() State {
	return State(c.state.Load())
}

// OnText registers the text frame handler. It runs on the reader goroutine
// and must hand heavy work off rather than block.
func (c *ReconnectingChannel) OnText(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onText = fn
}

// OnBinary registers the binary frame handler.
func (c *ReconnectingChannel) OnBinary(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBin = fn
}

// OnStateChange registers an observer for state transitions.
func (c *ReconnectingChannel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *ReconnectingChannel) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Setup sets up an owned HTTP client and performs the initial connect.
// Failure is fatal and wraps ErrSetupFailed.
func (c *ReconnectingChannel) Setup(ctx context.Context) error {
	if c.owned {
		if err := c.base.Setup(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrSetupFailed, err)
		}
	}

	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		if c.owned {
			_ = c.base.Cleanup()
		}
		return fmt.Errorf("%w: connecting to %s: %w", ErrSetupFailed, c.url(), err)
	}

	c.swapConn(conn)
	c.setState(StateOpen)
	c.logger.Info("push channel connected")
	return nil
}

func (c *ReconnectingChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.base.dialer().DialContext(ctx, c.url(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *ReconnectingChannel) swapConn(conn *websocket.Conn) *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.conn
	c.conn = conn
	return old
}

func (c *ReconnectingChannel) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Run receives frames until ctx is cancelled, reconnecting after every
// connection loss. It returns nil once cancelled.
func (c *ReconnectingChannel) Run(ctx context.Context) error {
	for {
		conn := c.current()
		if conn != nil {
			err := c.receive(ctx, conn)
			if ctx.Err() != nil {
				c.terminate()
				return nil
			}
			c.classify(err)
		}
		if !c.reconnect(ctx) {
			c.terminate()
			return nil
		}
	}
}

// receive reads frames from conn until a read fails. Cancelling ctx closes
// conn so the blocked read returns.
func (c *ReconnectingChannel) receive(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		c.mu.Lock()
		onText, onBin := c.onText, c.onBin
		c.mu.Unlock()

		switch kind {
		case websocket.TextMessage:
			if onText != nil {
				onText(string(data))
			}
		case websocket.BinaryMessage:
			if onBin != nil {
				onBin(data)
			}
		}
	}
}

func (c *ReconnectingChannel) classify(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.logger.Warn("push channel closed by gateway",
			"code", closeErr.Code,
			"reason", closeErr.Text)
		return
	}
	c.logger.Error("push channel error", "error", err)
}

// reconnect waits the fixed interval and dials until it succeeds or ctx is
// done. The reconnecting state is entered once per connection loss.
func (c *ReconnectingChannel) reconnect(ctx context.Context) bool {
	if old := c.swapConn(nil); old != nil {
		_ = old.Close()
	}
	c.setState(StateReconnecting)

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		c.logger.Info("reconnecting", "attempt", attempt, "in", c.interval)
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}

		conn, err := c.dial(ctx)
		if err == nil {
			c.swapConn(conn)
			c.setState(StateOpen)
			c.logger.Info("push channel reconnected", "attempts", attempt)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
		timer.Reset(c.interval)
	}
}

func (c *ReconnectingChannel) terminate() {
	if conn := c.swapConn(nil); conn != nil {
		_ = conn.Close()
	}
	c.setState(StateClosed)
	c.logger.Info("push channel stopped")
}

// Send writes a text frame. Failures are reported, never retried.
func (c *ReconnectingChannel) Send(ctx context.Context, text string) error {
	return c.write(ctx, websocket.TextMessage, []byte(text))
}

// SendBinary writes a binary frame.
func (c *ReconnectingChannel) SendBinary(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.BinaryMessage, data)
}

func (c *ReconnectingChannel) write(ctx context.Context, kind int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn := c.current()
	if conn == nil || c.State() != StateOpen {
		return ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := conn.WriteMessage(kind, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Cleanup closes the connection with a normal closure and cleans up an
// owned HTTP client.
func (c *ReconnectingChannel) Cleanup() error {
	var errs []error
	if conn := c.swapConn(nil); conn != nil {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing push channel: %w", err))
		}
	}
	c.setState(StateClosed)

	if c.owned {
		if err := c.base.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
