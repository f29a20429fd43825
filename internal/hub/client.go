package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomharwin/kestrel/internal/chat"
	"github.com/tomharwin/kestrel/internal/wire"
)

const (
	// writeWait is how long a single frame write may take.
	writeWait = 10 * time.Second
	// pongWait is the read deadline; clients must answer pings within it.
	pongWait = 60 * time.Second
	// pingPeriod is the keep-alive interval. Must be under pongWait.
	pingPeriod = 15 * time.Second
	// maxMessageSize bounds inbound frames.
	maxMessageSize = 8192
	// sendBuffer is the per-client outbound queue.
	sendBuffer = 256

	// invokeRate limits invocations per client (per second, with burst).
	invokeRate  = 5
	invokeBurst = 10
)

// Client is one authenticated hub connection.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    string
	role      string
	expiresAt time.Time
	limiter   *rate.Limiter
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID, role string, expiresAt time.Time) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		userID:    userID,
		role:      role,
		expiresAt: expiresAt,
		limiter:   rate.NewLimiter(rate.Limit(invokeRate), invokeBurst),
	}
}

// close tears the connection down once. The read pump notices and runs the
// unregister path.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// readPump reads frames from the connection and dispatches invocations.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.hub.service.HandleDisconnect(c.userID)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logf("hub: unexpected close from %s: %v", c.userID, err)
			}
			return
		}

		var frame wire.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.hub.logf("hub: bad frame from %s: %v", c.userID, err)
			continue
		}
		if frame.Type != wire.FrameInvocation {
			continue
		}

		c.handleInvocation(&frame)
	}
}

// writePump writes queued frames, sends keep-alive pings and enforces the
// token expiry deadline with a server-initiated close.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	expiry := time.NewTimer(time.Until(c.expiresAt))
	defer func() {
		ticker.Stop()
		expiry.Stop()
		c.close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// Drain any queued frames immediately (each as separate frame)
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-expiry.C:
			// Intentional close, distinct from a dropped connection:
			// the client must not auto-reconnect with a dead token.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "token expired"))
			return
		}
	}
}

// handleInvocation runs one hub operation and enqueues the completion.
func (c *Client) handleInvocation(frame *wire.Frame) {
	if !c.limiter.Allow() {
		c.complete(frame.ID, "rate limit exceeded")
		return
	}

	err := c.dispatch(frame)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	c.complete(frame.ID, errMsg)
}

func (c *Client) dispatch(frame *wire.Frame) error {
	switch frame.Target {
	case wire.TargetSendMessageToAdmin:
		var args wire.SendMessageToAdminArgs
		if err := json.Unmarshal(frame.Args, &args); err != nil {
			return errors.New("malformed arguments")
		}
		_, err := c.hub.service.SendMessageToAdmin(c.userID, args.AdminID, args.Content, frame.ID)
		return err

	case wire.TargetSendAdminReply:
		if c.role != "admin" {
			return chat.ErrNotParticipant
		}
		var args wire.SendAdminReplyArgs
		if err := json.Unmarshal(frame.Args, &args); err != nil {
			return errors.New("malformed arguments")
		}
		_, err := c.hub.service.SendAdminReply(c.userID, args.ConversationID, args.Content, frame.ID)
		return err

	case wire.TargetMarkAsRead:
		var args wire.MarkAsReadArgs
		if err := json.Unmarshal(frame.Args, &args); err != nil {
			return errors.New("malformed arguments")
		}
		return c.hub.service.MarkAsRead(c.userID, args.ConversationID)

	case wire.TargetGetOnlineUsers:
		// Reply arrives as a pushed event rather than in the completion
		c.pushEvent(wire.EventOnlineUsersList, wire.OnlineUsers{UserIDs: c.hub.service.OnlineUsers()})
		return nil

	default:
		return errors.New("unknown operation: " + frame.Target)
	}
}

// complete enqueues a completion frame for an invocation.
func (c *Client) complete(id, errMsg string) {
	c.enqueue(wire.NewCompletion(id, errMsg))
}

// pushEvent enqueues an event frame for this connection only.
func (c *Client) pushEvent(event string, payload any) {
	frame, err := wire.NewEvent(event, payload)
	if err != nil {
		c.hub.logf("hub: failed to build %s event: %v", event, err)
		return
	}
	c.enqueue(frame)
}

func (c *Client) enqueue(frame *wire.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.hub.logf("hub: failed to marshal frame: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.close()
	}
}
