// Package client provides Go bindings for the collaboration hub's socket
// contract: one persistent connection, typed emit helpers for every
// client event, handler registration for every server event, and
// automatic reconnection with bounded, growing delays.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
)

// Handler consumes one server event payload.
type Handler func(payload json.RawMessage)

type Config struct {
	// URL is the ws:// or wss:// endpoint, e.g. ws://localhost:4000/ws.
	URL string
	// Identity is announced after every successful connect. Leave the
	// UserID empty to stay anonymous.
	Identity protocol.Identity

	// ReconnectAttempts bounds how many times a dropped connection is
	// retried before giving up. Zero means DefaultReconnectAttempts.
	ReconnectAttempts int
	// ReconnectDelay is the delay before the first retry; it doubles on
	// every subsequent attempt. Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration
	// TypingDebounce is how long StartTyping waits after the last call
	// before emitting the trailing isTyping=false. Zero means
	// DefaultTypingDebounce.
	TypingDebounce time.Duration

	// OnConnect fires after every successful connect, initial or re-.
	OnConnect func()
	// OnDisconnect fires when the connection drops, before any retry.
	// UIs surface their "disconnected, retrying" state from here.
	OnDisconnect func(err error)

	Logger *slog.Logger
}

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultTypingDebounce    = time.Second
)

type Client struct {
	config Config
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	handlerMu sync.RWMutex
	handlers  map[string][]Handler

	stateMu   sync.RWMutex
	connected bool

	typingMu     sync.Mutex
	typingTimers map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects, announces the configured identity, and starts the
// receive loop. The returned client keeps itself connected until Close
// or until the retry budget is exhausted.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.ReconnectAttempts <= 0 {
		config.ReconnectAttempts = DefaultReconnectAttempts
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if config.TypingDebounce <= 0 {
		config.TypingDebounce = DefaultTypingDebounce
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	clientCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		config:       config,
		logger:       config.Logger.With(slog.String("component", "hub_client")),
		handlers:     make(map[string][]Handler),
		typingTimers: make(map[string]*time.Timer),
		ctx:          clientCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		cancel()
		close(c.done)
		return nil, err
	}

	go c.run()
	return c, nil
}

// On registers a handler for a server event. Multiple handlers per event
// are allowed and run in registration order on the receive goroutine.
func (c *Client) On(event string, fn Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

// Connected reports whether the socket is currently up.
func (c *Client) Connected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

// Emit sends one event to the server.
func (c *Client) Emit(event string, payload any) error {
	msg, err := protocol.Marshal(event, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	writeCtx, cancelWrite := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancelWrite()
	if err := conn.Write(writeCtx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// Close shuts the client down for good; no reconnection is attempted.
func (c *Client) Close() error {
	c.cancel()
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	<-c.done
	return nil
}

// Done is closed once the client has permanently stopped, either via
// Close or after exhausting its reconnection budget.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) connect() error {
	dialCtx, cancelDial := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancelDial()

	conn, _, err := websocket.Dial(dialCtx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.config.URL, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.setConnected(true)
	c.logger.Info("Connected", slog.String("url", c.config.URL))

	if c.config.Identity.UserID != "" {
		if err := c.Announce(c.config.Identity); err != nil {
			c.logger.Warn("Failed to announce identity after connect", slog.Any("error", err))
		}
	}
	if c.config.OnConnect != nil {
		c.config.OnConnect()
	}
	return nil
}

// run owns the receive loop and the reconnection policy.
func (c *Client) run() {
	defer close(c.done)

	for {
		err := c.readLoop()
		c.setConnected(false)
		if c.ctx.Err() != nil {
			return
		}

		c.logger.Warn("Connection lost", slog.Any("error", err))
		if c.config.OnDisconnect != nil {
			c.config.OnDisconnect(err)
		}
		if !c.reconnect() {
			c.logger.Error("Giving up after exhausting reconnection attempts")
			return
		}
	}
}

func (c *Client) readLoop() error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Dropping malformed server message", slog.Any("error", err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	c.handlerMu.RLock()
	handlers := append([]Handler(nil), c.handlers[env.Event]...)
	c.handlerMu.RUnlock()

	for _, fn := range handlers {
		fn(env.Payload)
	}
}

// reconnect retries with a doubling delay: 1s, 2s, 4s, ... by default.
func (c *Client) reconnect() bool {
	delay := c.config.ReconnectDelay
	for attempt := 1; attempt <= c.config.ReconnectAttempts; attempt++ {
		c.logger.Info("Reconnection attempt",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return false
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("Reconnection attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
			delay *= 2
			continue
		}
		return true
	}
	return false
}

func (c *Client) setConnected(up bool) {
	c.stateMu.Lock()
	c.connected = up
	c.stateMu.Unlock()
}
