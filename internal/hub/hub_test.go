package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomharwin/kestrel/internal/auth"
	"github.com/tomharwin/kestrel/internal/chat"
	"github.com/tomharwin/kestrel/internal/db"
	"github.com/tomharwin/kestrel/internal/wire"
)

type hubFixture struct {
	srv         *httptest.Server
	db          *db.DB
	service     *chat.Service
	tokenConfig *auth.TokenConfig
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	dir, err := os.MkdirTemp("", "hub-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	database, err := db.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate())
	t.Cleanup(func() { database.Close() })

	keys, err := auth.GenerateKeyPair()
	require.NoError(t, err)
	tokenConfig := &auth.TokenConfig{
		Issuer:       "kestrel-test",
		ExpiryHours:  1,
		RefreshHours: 24,
		SigningKey:   keys.PrivateKey,
		VerifyingKey: keys.PublicKey,
	}

	quiet := func(string, ...any) {}
	service := chat.NewService(database)
	service.SetLogf(quiet)
	h := New(service)
	h.SetLogf(quiet)
	handler := NewHandler(h, tokenConfig)
	handler.logf = quiet

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &hubFixture{srv: srv, db: database, service: service, tokenConfig: tokenConfig}
}

func (f *hubFixture) createUser(t *testing.T, name, role string) *db.User {
	t.Helper()
	user, err := f.db.CreateUser(name, "unused-hash", role)
	require.NoError(t, err)
	return user
}

func (f *hubFixture) token(t *testing.T, user *db.User) string {
	t.Helper()
	token, err := auth.GenerateToken(user.ID, user.Role, f.tokenConfig)
	require.NoError(t, err)
	return token
}

// wsClient is a raw test client speaking the hub frame protocol.
type wsClient struct {
	conn *websocket.Conn
}

func (f *hubFixture) dial(t *testing.T, user *db.User) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token(t, user))

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{conn: conn}
}

func (c *wsClient) invoke(t *testing.T, target string, args any) string {
	t.Helper()
	id := uuid.NewString()
	frame, err := wire.NewInvocation(id, target, args)
	require.NoError(t, err)
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, data))
	return id
}

func (c *wsClient) readFrame(t *testing.T) wire.Frame {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.conn.ReadMessage()
	require.NoError(t, err, "expected a frame before the deadline")
	var frame wire.Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

// readEvent skips frames until one with the given event name arrives.
func (c *wsClient) readEvent(t *testing.T, event string) wire.Frame {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame := c.readFrame(t)
		if frame.Type == wire.FrameEvent && frame.Event == event {
			return frame
		}
	}
	t.Fatalf("event %q never arrived", event)
	return wire.Frame{}
}

func TestHubRejectsUnauthenticated(t *testing.T) {
	f := newHubFixture(t)

	resp, err := http.Get(f.srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "?access_token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubSendMessageToAdmin(t *testing.T) {
	f := newHubFixture(t)
	user := f.createUser(t, "alice", db.RoleUser)
	admin := f.createUser(t, "bob", db.RoleAdmin)

	userConn := f.dial(t, user)
	adminConn := f.dial(t, admin)

	id := userConn.invoke(t, wire.TargetSendMessageToAdmin,
		wire.SendMessageToAdminArgs{AdminID: admin.ID, Content: "help please"})

	// Sender gets the confirmation event carrying its correlation ID,
	// then the completion.
	confirm := userConn.readEvent(t, wire.EventMessageSent)
	var msg wire.ChatMessage
	require.NoError(t, json.Unmarshal(confirm.Payload, &msg))
	assert.Equal(t, "help please", msg.Content)
	assert.Equal(t, user.ID, msg.SenderID)
	assert.Equal(t, id, msg.CorrelationID)

	completion := userConn.readFrame(t)
	assert.Equal(t, wire.FrameCompletion, completion.Type)
	assert.Equal(t, id, completion.ID)
	assert.Empty(t, completion.Error)

	// Recipient gets the push without the correlation ID.
	push := adminConn.readEvent(t, wire.EventNewUserMessage)
	var incoming wire.ChatMessage
	require.NoError(t, json.Unmarshal(push.Payload, &incoming))
	assert.Equal(t, "help please", incoming.Content)
	assert.Equal(t, "alice", incoming.SenderName)
	assert.Empty(t, incoming.CorrelationID)
}

func TestHubSendToNonAdminFails(t *testing.T) {
	f := newHubFixture(t)
	user := f.createUser(t, "alice", db.RoleUser)
	other := f.createUser(t, "carol", db.RoleUser)

	userConn := f.dial(t, user)
	id := userConn.invoke(t, wire.TargetSendMessageToAdmin,
		wire.SendMessageToAdminArgs{AdminID: other.ID, Content: "hi"})

	completion := userConn.readFrame(t)
	assert.Equal(t, wire.FrameCompletion, completion.Type)
	assert.Equal(t, id, completion.ID)
	assert.NotEmpty(t, completion.Error)
}

func TestHubAdminReplyFlow(t *testing.T) {
	f := newHubFixture(t)
	user := f.createUser(t, "alice", db.RoleUser)
	admin := f.createUser(t, "bob", db.RoleAdmin)

	conv, err := f.db.FindOrCreateConversation(user.ID, admin.ID)
	require.NoError(t, err)

	userConn := f.dial(t, user)
	adminConn := f.dial(t, admin)

	adminConn.invoke(t, wire.TargetSendAdminReply,
		wire.SendAdminReplyArgs{ConversationID: conv.ID, Content: "on it"})

	confirm := adminConn.readEvent(t, wire.EventAdminReplySent)
	var msg wire.ChatMessage
	require.NoError(t, json.Unmarshal(confirm.Payload, &msg))
	assert.Equal(t, "on it", msg.Content)

	push := userConn.readEvent(t, wire.EventNewAdminMessage)
	var incoming wire.ChatMessage
	require.NoError(t, json.Unmarshal(push.Payload, &incoming))
	assert.Equal(t, "on it", incoming.Content)
	assert.Equal(t, admin.ID, incoming.SenderID)
}

func TestHubMarkAsReadNotifiesBothSides(t *testing.T) {
	f := newHubFixture(t)
	user := f.createUser(t, "alice", db.RoleUser)
	admin := f.createUser(t, "bob", db.RoleAdmin)

	conv, err := f.db.FindOrCreateConversation(user.ID, admin.ID)
	require.NoError(t, err)
	_, err = f.db.CreateMessage(conv.ID, admin.ID, "hello")
	require.NoError(t, err)

	userConn := f.dial(t, user)
	adminConn := f.dial(t, admin)

	userConn.invoke(t, wire.TargetMarkAsRead, wire.MarkAsReadArgs{ConversationID: conv.ID})

	receipt := userConn.readEvent(t, wire.EventMessagesMarkedAsRead)
	var r wire.ReadReceipt
	require.NoError(t, json.Unmarshal(receipt.Payload, &r))
	assert.Equal(t, conv.ID, r.ConversationID)
	assert.Equal(t, user.ID, r.ReaderID)

	partnerReceipt := adminConn.readEvent(t, wire.EventMessagesMarkedAsRead)
	require.NoError(t, json.Unmarshal(partnerReceipt.Payload, &r))
	assert.Equal(t, user.ID, r.ReaderID)
}

func TestHubGetOnlineUsers(t *testing.T) {
	f := newHubFixture(t)
	user := f.createUser(t, "alice", db.RoleUser)
	admin := f.createUser(t, "bob", db.RoleAdmin)

	f.dial(t, admin)
	userConn := f.dial(t, user)

	userConn.invoke(t, wire.TargetGetOnlineUsers, nil)

	list := userConn.readEvent(t, wire.EventOnlineUsersList)
	var online wire.OnlineUsers
	require.NoError(t, json.Unmarshal(list.Payload, &online))
	assert.ElementsMatch(t, []string{user.ID, admin.ID}, online.UserIDs)
}

func TestHubPresenceBroadcastToPartners(t *testing.T) {
	f := newHubFixture(t)
	user := f.createUser(t, "alice", db.RoleUser)
	admin := f.createUser(t, "bob", db.RoleAdmin)

	_, err := f.db.FindOrCreateConversation(user.ID, admin.ID)
	require.NoError(t, err)

	adminConn := f.dial(t, admin)

	userConn := f.dial(t, user)
	online := adminConn.readEvent(t, wire.EventUserStatusChanged)
	var change wire.StatusChange
	require.NoError(t, json.Unmarshal(online.Payload, &change))
	assert.Equal(t, user.ID, change.UserID)
	assert.True(t, change.Online)

	userConn.conn.Close()
	offline := adminConn.readEvent(t, wire.EventUserStatusChanged)
	require.NoError(t, json.Unmarshal(offline.Payload, &change))
	assert.Equal(t, user.ID, change.UserID)
	assert.False(t, change.Online)
}

func TestHubReplacesDuplicateConnection(t *testing.T) {
	f := newHubFixture(t)
	user := f.createUser(t, "alice", db.RoleUser)

	first := f.dial(t, user)
	second := f.dial(t, user)

	// The first socket is closed by the hub once the second registers.
	first.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := first.conn.ReadMessage()
	assert.Error(t, err, "replaced connection must be closed")

	// The replacement still works.
	second.invoke(t, wire.TargetGetOnlineUsers, nil)
	list := second.readEvent(t, wire.EventOnlineUsersList)
	assert.Equal(t, wire.EventOnlineUsersList, list.Event)
}
