package chat

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomharwin/kestrel/internal/db"
	"github.com/tomharwin/kestrel/internal/wire"
)

type recordedPush struct {
	UserID  string
	Event   string
	Payload any
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []recordedPush
}

func (f *fakePusher) PushToUser(userID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, recordedPush{UserID: userID, Event: event, Payload: payload})
}

func (f *fakePusher) byEvent(event string) []recordedPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedPush
	for _, p := range f.pushes {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *fakePusher, *db.User, *db.User) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "kestrel-chat-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	database, err := db.Open(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	user, err := database.CreateUser("alice", "h", db.RoleUser)
	require.NoError(t, err)
	admin, err := database.CreateUser("bob", "h", db.RoleAdmin)
	require.NoError(t, err)

	svc := NewService(database)
	svc.SetLogf(t.Logf)
	pusher := &fakePusher{}
	svc.SetPusher(pusher)
	return svc, pusher, user, admin
}

func TestSendMessageToAdmin(t *testing.T) {
	svc, pusher, user, admin := newTestService(t)

	msg, err := svc.SendMessageToAdmin(user.ID, admin.ID, "hello", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "alice", msg.SenderName)
	assert.Equal(t, db.RoleUser, msg.SenderRole)

	sent := pusher.byEvent(wire.EventMessageSent)
	require.Len(t, sent, 1)
	assert.Equal(t, user.ID, sent[0].UserID)
	confirmed := sent[0].Payload.(wire.ChatMessage)
	assert.Equal(t, "corr-1", confirmed.CorrelationID)

	received := pusher.byEvent(wire.EventNewUserMessage)
	require.Len(t, received, 1)
	assert.Equal(t, admin.ID, received[0].UserID)
	incoming := received[0].Payload.(wire.ChatMessage)
	assert.Empty(t, incoming.CorrelationID)
}

func TestSendMessageToAdminRejectsNonAdmin(t *testing.T) {
	svc, _, user, _ := newTestService(t)

	_, err := svc.SendMessageToAdmin(user.ID, user.ID, "hello", "")
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestSendMessageRejectsBlank(t *testing.T) {
	svc, _, user, admin := newTestService(t)

	_, err := svc.SendMessageToAdmin(user.ID, admin.ID, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = svc.SendAdminReply(admin.ID, "conv-x", "", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendAdminReply(t *testing.T) {
	svc, pusher, user, admin := newTestService(t)

	first, err := svc.SendMessageToAdmin(user.ID, admin.ID, "hello", "")
	require.NoError(t, err)

	reply, err := svc.SendAdminReply(admin.ID, first.ConversationID, "hi there", "corr-2")
	require.NoError(t, err)
	assert.Equal(t, db.RoleAdmin, reply.SenderRole)

	sent := pusher.byEvent(wire.EventAdminReplySent)
	require.Len(t, sent, 1)
	assert.Equal(t, admin.ID, sent[0].UserID)

	received := pusher.byEvent(wire.EventNewAdminMessage)
	require.Len(t, received, 1)
	assert.Equal(t, user.ID, received[0].UserID)
}

func TestSendAdminReplyAuthorization(t *testing.T) {
	svc, _, user, admin := newTestService(t)

	first, err := svc.SendMessageToAdmin(user.ID, admin.ID, "hello", "")
	require.NoError(t, err)

	// The end-user cannot use the admin reply path
	_, err = svc.SendAdminReply(user.ID, first.ConversationID, "sneaky", "")
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.SendAdminReply(admin.ID, "conv-missing", "hi", "")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestMarkAsRead(t *testing.T) {
	svc, pusher, user, admin := newTestService(t)

	first, err := svc.SendMessageToAdmin(user.ID, admin.ID, "hello", "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkAsRead(admin.ID, first.ConversationID))

	receipts := pusher.byEvent(wire.EventMessagesMarkedAsRead)
	require.Len(t, receipts, 2)
	for _, r := range receipts {
		receipt := r.Payload.(wire.ReadReceipt)
		assert.Equal(t, first.ConversationID, receipt.ConversationID)
		assert.Equal(t, admin.ID, receipt.ReaderID)
	}

	count, err := svc.Unread(admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.ErrorIs(t, svc.MarkAsRead("user-stranger", first.ConversationID), ErrNotParticipant)
}

func TestPresenceNotifications(t *testing.T) {
	svc, pusher, user, admin := newTestService(t)

	// Establish the conversation so the two are partners
	_, err := svc.SendMessageToAdmin(user.ID, admin.ID, "hello", "")
	require.NoError(t, err)

	svc.HandleConnect(user.ID)
	changes := pusher.byEvent(wire.EventUserStatusChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, admin.ID, changes[0].UserID)
	change := changes[0].Payload.(wire.StatusChange)
	assert.Equal(t, user.ID, change.UserID)
	assert.True(t, change.Online)

	// A second connection does not re-announce
	svc.HandleConnect(user.ID)
	assert.Len(t, pusher.byEvent(wire.EventUserStatusChanged), 1)

	svc.HandleDisconnect(user.ID)
	assert.Len(t, pusher.byEvent(wire.EventUserStatusChanged), 1)
	svc.HandleDisconnect(user.ID)
	changes = pusher.byEvent(wire.EventUserStatusChanged)
	require.Len(t, changes, 2)
	change = changes[1].Payload.(wire.StatusChange)
	assert.False(t, change.Online)

	assert.Equal(t, []string{}, svc.OnlineUsers())
}

func TestRosterAndSummaries(t *testing.T) {
	svc, _, user, admin := newTestService(t)

	svc.HandleConnect(admin.ID)

	admins, err := svc.Admins()
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "bob", admins[0].Name)
	assert.True(t, admins[0].Online)

	first, err := svc.SendMessageToAdmin(user.ID, admin.ID, "hello", "")
	require.NoError(t, err)

	convs, err := svc.Conversations(user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, admin.ID, convs[0].ParticipantID)
	assert.Equal(t, "bob", convs[0].ParticipantName)
	assert.True(t, convs[0].Online)
	assert.Equal(t, "hello", convs[0].LastMessage)

	msgs, err := svc.Messages(admin.ID, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].SenderName)

	_, err = svc.Messages("user-stranger", first.ConversationID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}
