package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomharwin/kestrel/internal/wire"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

const (
	// dialTimeout bounds the WebSocket handshake.
	dialTimeout = 10 * time.Second
	// invokeTimeout bounds an invocation round trip.
	invokeTimeout = 60 * time.Second
	// readWait is the read deadline; the server pings well within it.
	readWait = 60 * time.Second
	// frameWriteWait bounds a single frame write.
	frameWriteWait = 10 * time.Second
)

var (
	// ErrNotConnected is returned by Invoke while the channel is down.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionClosed fails invocations in flight when the channel drops.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrInvokeTimeout is returned when the server never completes an invocation.
	ErrInvokeTimeout = errors.New("invocation timed out")
)

// Connection owns one logical channel to the chat hub: dialing, the
// keep-alive contract, invocation round trips, push-event delivery to the
// bus, and automatic reconnection with capped exponential backoff.
type Connection struct {
	baseURL  string
	bus      *Bus
	dialer   *websocket.Dialer
	notifier Notifier
	logf     func(format string, args ...any)

	mu           sync.Mutex
	state        State
	initializing bool
	credential   string
	conn         *websocket.Conn
	pending      map[string]chan error
	stopCh       chan struct{}

	writeMu sync.Mutex
}

// NewConnection creates a connection manager for the hub at baseURL
// (http/https; the scheme is rewritten for the socket).
func NewConnection(baseURL string, bus *Bus) *Connection {
	return &Connection{
		baseURL:  strings.TrimRight(baseURL, "/"),
		bus:      bus,
		dialer:   &websocket.Dialer{HandshakeTimeout: dialTimeout},
		notifier: NewBellNotifier(),
		logf:     log.Printf,
		state:    StateDisconnected,
		pending:  make(map[string]chan error),
	}
}

// SetLogf overrides the logging function.
func (c *Connection) SetLogf(logf func(format string, args ...any)) {
	c.logf = logf
}

// SetNotifier overrides the incoming-message notification cue.
func (c *Connection) SetNotifier(n Notifier) {
	c.notifier = n
}

// Bus returns the event bus push events are delivered on.
func (c *Connection) Bus() *Bus {
	return c.bus
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the channel is live.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Start opens the channel authenticated by credential. A call while already
// initializing or connected is a no-op, not an error. The initial connect is
// not retried: a failure resets to disconnected and is returned to the
// caller. Drops after a successful connect reconnect automatically.
func (c *Connection) Start(ctx context.Context, credential string) error {
	c.mu.Lock()
	if c.initializing || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.initializing = true
	c.state = StateConnecting
	c.credential = credential
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.initializing = false
		c.state = StateDisconnected
		c.conn = nil
		c.mu.Unlock()
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.initializing = false
	c.install(conn)
	c.mu.Unlock()

	go c.readLoop(conn)
	c.bus.Emit(Event{Kind: EventConnectionChanged, Connected: true})

	return nil
}

// Stop closes the channel, resets all internal flags and clears the event
// bus. This is a deliberate full reset: subscribers must re-subscribe.
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.stopCh != nil {
		select {
		case <-c.stopCh:
		default:
			close(c.stopCh)
		}
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.initializing = false
	c.failPendingLocked()
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(frameWriteWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}

	c.bus.Reset()
}

// Invoke runs a named hub operation and waits for its completion.
func (c *Connection) Invoke(ctx context.Context, target string, args any) error {
	return c.InvokeWithID(ctx, uuid.NewString(), target, args)
}

// InvokeWithID is Invoke with a caller-supplied correlation ID, so a caller
// can key optimistic state by the ID before the confirmation event lands.
func (c *Connection) InvokeWithID(ctx context.Context, id, target string, args any) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	done := make(chan error, 1)
	c.pending[id] = done
	c.mu.Unlock()

	frame, err := wire.NewInvocation(id, target, args)
	if err != nil {
		c.dropPending(id)
		return err
	}
	if err := c.writeFrame(conn, frame); err != nil {
		c.dropPending(id)
		return fmt.Errorf("failed to send invocation: %w", err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	case <-time.After(invokeTimeout):
		c.dropPending(id)
		return ErrInvokeTimeout
	}
}

// dial performs the authenticated WebSocket handshake.
func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	url := c.baseURL + "/hubs/chat"
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.credential)

	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// install points the connection at a live socket. Caller holds c.mu.
func (c *Connection) install(conn *websocket.Conn) {
	c.conn = conn
	c.state = StateConnected
	c.pending = make(map[string]chan error)
}

// readLoop pumps frames off the socket until it dies, then decides between
// reconnecting and staying down.
func (c *Connection) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(frameWriteWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		c.handleFrame(data)
	}
}

// handleFrame routes one inbound frame.
func (c *Connection) handleFrame(data []byte) {
	var frame wire.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logf("chatclient: bad frame: %v", err)
		return
	}

	switch frame.Type {
	case wire.FrameCompletion:
		c.mu.Lock()
		done := c.pending[frame.ID]
		delete(c.pending, frame.ID)
		c.mu.Unlock()
		if done != nil {
			if frame.Error != "" {
				done <- errors.New(frame.Error)
			} else {
				done <- nil
			}
		}

	case wire.FrameEvent:
		c.handleEvent(&frame)
	}
}

// handleEvent translates a pushed event into a typed bus event.
func (c *Connection) handleEvent(frame *wire.Frame) {
	ev, err := decodeEvent(frame)
	if err != nil {
		c.logf("chatclient: bad %s payload: %v", frame.Event, err)
		return
	}
	if ev == nil {
		c.logf("chatclient: unknown event %q", frame.Event)
		return
	}

	// Incoming messages ring the local notification cue. Best effort:
	// a failed cue is never surfaced.
	if ev.Kind == EventNewAdminMessage || ev.Kind == EventNewUserMessage {
		if c.notifier != nil {
			if err := c.notifier.Notify(); err != nil {
				c.logf("chatclient: notification cue failed: %v", err)
			}
		}
	}

	c.bus.Emit(*ev)
}

// decodeEvent maps a wire event frame to a bus event. Returns nil for
// unknown event names.
func decodeEvent(frame *wire.Frame) (*Event, error) {
	switch frame.Event {
	case wire.EventMessageSent, wire.EventNewAdminMessage, wire.EventNewUserMessage, wire.EventAdminReplySent:
		var msg wire.ChatMessage
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			return nil, err
		}
		kind := map[string]EventKind{
			wire.EventMessageSent:     EventMessageSent,
			wire.EventNewAdminMessage: EventNewAdminMessage,
			wire.EventNewUserMessage:  EventNewUserMessage,
			wire.EventAdminReplySent:  EventAdminReplySent,
		}[frame.Event]
		return &Event{Kind: kind, Message: &msg}, nil

	case wire.EventMessagesMarkedAsRead:
		var receipt wire.ReadReceipt
		if err := json.Unmarshal(frame.Payload, &receipt); err != nil {
			return nil, err
		}
		return &Event{Kind: EventMessagesMarkedAsRead, ConversationID: receipt.ConversationID, ReaderID: receipt.ReaderID}, nil

	case wire.EventUserStatusChanged:
		var change wire.StatusChange
		if err := json.Unmarshal(frame.Payload, &change); err != nil {
			return nil, err
		}
		return &Event{Kind: EventUserStatusChanged, UserID: change.UserID, Online: change.Online}, nil

	case wire.EventOnlineUsersList:
		var list wire.OnlineUsers
		if err := json.Unmarshal(frame.Payload, &list); err != nil {
			return nil, err
		}
		return &Event{Kind: EventOnlineUsersList, UserIDs: list.UserIDs}, nil

	case wire.EventError:
		var payload wire.ErrorPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return nil, err
		}
		return &Event{Kind: EventError, Err: errors.New(payload.Message)}, nil
	}

	return nil, nil
}

// handleDrop runs when the read loop dies. A server-initiated close stays
// down; anything else enters the reconnect loop.
func (c *Connection) handleDrop(conn *websocket.Conn, err error) {
	conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		// Already stopped or replaced
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failPendingLocked()

	stopped := false
	if c.stopCh != nil {
		select {
		case <-c.stopCh:
			stopped = true
		default:
		}
	}
	if stopped {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
		// The server ended the connection on purpose (e.g. token
		// expiry); retrying would just be rejected again.
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logf("chatclient: connection closed by server: %v", err)
		c.bus.Emit(Event{Kind: EventConnectionChanged, Connected: false})
		return
	}

	c.state = StateReconnecting
	c.mu.Unlock()
	c.logf("chatclient: connection lost: %v", err)
	c.bus.Emit(Event{Kind: EventConnectionChanged, Connected: false})

	go c.reconnectLoop()
}

// reconnectLoop retries with capped exponential backoff until the channel is
// back, the window elapses, or Stop is called.
func (c *Connection) reconnectLoop() {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if !withinReconnectWindow(time.Since(start)) {
			c.logf("chatclient: giving up reconnecting after %s", time.Since(start).Round(time.Second))
			c.mu.Lock()
			if c.state == StateReconnecting {
				c.state = StateDisconnected
			}
			c.mu.Unlock()
			return
		}
		delay := RetryDelay(attempt)

		c.mu.Lock()
		stopCh := c.stopCh
		c.mu.Unlock()

		select {
		case <-stopCh:
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		if c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logf("chatclient: reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		c.mu.Lock()
		if c.state != StateReconnecting {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.install(conn)
		c.mu.Unlock()

		go c.readLoop(conn)
		c.logf("chatclient: reconnected after %s", time.Since(start).Round(time.Second))
		c.bus.Emit(Event{Kind: EventConnectionChanged, Connected: true})

		// Presence pushed before the drop is stale; ask for a fresh list.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), invokeTimeout)
			defer cancel()
			if err := c.Invoke(ctx, wire.TargetGetOnlineUsers, nil); err != nil {
				c.logf("chatclient: presence refresh failed: %v", err)
			}
		}()
		return
	}
}

func (c *Connection) writeFrame(conn *websocket.Conn, frame *wire.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(frameWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failPendingLocked fails every in-flight invocation. Caller holds c.mu.
func (c *Connection) failPendingLocked() {
	for id, done := range c.pending {
		done <- ErrConnectionClosed
		delete(c.pending, id)
	}
}
