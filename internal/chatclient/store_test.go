package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomharwin/kestrel/internal/wire"
)

func TestStorePendingConfirmedByCorrelation(t *testing.T) {
	store := NewStore("user1")
	store.Select("conv1")

	store.AddPending("corr-1", "hello")

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, StatusPending, msgs[0].Status)
	assert.Equal(t, "You", msgs[0].SenderName)
	assert.True(t, msgs[0].IsSender)

	store.Append(wire.ChatMessage{
		ID:             "m1",
		ConversationID: "conv1",
		Content:        "hello",
		SentAt:         time.Now(),
		SenderID:       "user1",
		SenderName:     "Alice",
		CorrelationID:  "corr-1",
	})

	msgs = store.Messages()
	require.Len(t, msgs, 1, "confirmation replaces the pending entry, no duplicate")
	assert.Equal(t, StatusConfirmed, msgs[0].Status)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "You", msgs[0].SenderName)
}

func TestStoreConfirmsFirstMessageOfNewConversation(t *testing.T) {
	store := NewStore("user1")

	// Starting a brand-new conversation: nothing selected yet, the
	// conversation ID only exists server-side.
	store.AddPending("corr-1", "hello")

	store.Append(wire.ChatMessage{
		ID:             "m1",
		ConversationID: "conv-new",
		Content:        "hello",
		SenderID:       "user1",
		CorrelationID:  "corr-1",
	})

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, StatusConfirmed, msgs[0].Status)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "conv-new", msgs[0].ConversationID)
	assert.Equal(t, "conv-new", store.SelectedID(), "confirmation adopts the new conversation")
}

func TestStoreDropPending(t *testing.T) {
	store := NewStore("user1")
	store.Select("conv1")

	store.AddPending("corr-1", "doomed")
	store.DropPending("corr-1")

	assert.Empty(t, store.Messages())
}

func TestStoreAppendDedupesByID(t *testing.T) {
	store := NewStore("user1")
	store.Select("conv1")

	msg := wire.ChatMessage{ID: "m1", ConversationID: "conv1", Content: "hi", SenderID: "admin1", SenderName: "Bob"}
	store.Append(msg)
	store.Append(msg)

	assert.Len(t, store.Messages(), 1)
}

func TestStoreAppendIgnoresOtherConversations(t *testing.T) {
	store := NewStore("user1")
	store.Select("conv1")

	store.Append(wire.ChatMessage{ID: "m1", ConversationID: "conv2", SenderID: "admin1"})

	assert.Empty(t, store.Messages())
}

func TestStoreSelectClearsMessages(t *testing.T) {
	store := NewStore("user1")
	store.Select("conv1")
	store.Append(wire.ChatMessage{ID: "m1", ConversationID: "conv1", SenderID: "admin1"})

	store.Select("conv2")

	assert.Empty(t, store.Messages())
	assert.Equal(t, "conv2", store.SelectedID())
}

func TestStoreSetMessagesDroppedAfterSwitch(t *testing.T) {
	store := NewStore("user1")
	store.Select("conv1")
	store.Select("conv2")

	// The conv1 fetch lands after the user moved to conv2.
	store.SetMessages("conv1", []wire.ChatMessage{{ID: "m1", ConversationID: "conv1"}})

	assert.Empty(t, store.Messages())
}

func TestStoreMarkReadByPartner(t *testing.T) {
	store := NewStore("user1")
	store.Select("conv1")
	store.Append(wire.ChatMessage{ID: "m1", ConversationID: "conv1", SenderID: "user1"})
	store.Append(wire.ChatMessage{ID: "m2", ConversationID: "conv1", SenderID: "admin1"})

	store.MarkRead("conv1", "admin1")

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsRead, "own message becomes read when the partner reads it")
	assert.False(t, msgs[1].IsRead, "partner's message untouched by their own receipt")
}

func TestStoreMarkReadBySelfClearsBadge(t *testing.T) {
	store := NewStore("user1")
	store.SetConversations([]wire.ConversationSummary{
		{ID: "conv1", ParticipantID: "admin1", UnreadCount: 3},
		{ID: "conv2", ParticipantID: "admin2", UnreadCount: 1},
	})

	store.MarkRead("conv1", "user1")

	convs := store.Conversations()
	assert.Equal(t, 0, convs[0].UnreadCount)
	assert.Equal(t, 1, convs[1].UnreadCount)
	assert.Equal(t, 1, store.TotalUnread())
}

func TestStorePresenceUpdatesConversations(t *testing.T) {
	store := NewStore("user1")
	store.SetConversations([]wire.ConversationSummary{
		{ID: "conv1", ParticipantID: "admin1"},
	})

	store.SetPresence("admin1", true)
	assert.True(t, store.IsOnline("admin1"))
	assert.True(t, store.Conversations()[0].Online)

	store.SetPresence("admin1", false)
	assert.False(t, store.IsOnline("admin1"))
	assert.False(t, store.Conversations()[0].Online)
}

func TestStoreSetOnlineUsersReplacesSet(t *testing.T) {
	store := NewStore("user1")
	store.SetPresence("ghost", true)
	store.SetConversations([]wire.ConversationSummary{
		{ID: "conv1", ParticipantID: "admin1"},
	})

	store.SetOnlineUsers([]string{"admin1", "admin2"})

	assert.False(t, store.IsOnline("ghost"), "stale presence gone after full refresh")
	assert.Equal(t, []string{"admin1", "admin2"}, store.OnlineUsers())
	assert.True(t, store.Conversations()[0].Online)
}

func TestStoreSetConversationsStampsPresence(t *testing.T) {
	store := NewStore("user1")
	store.SetPresence("admin1", true)

	store.SetConversations([]wire.ConversationSummary{
		{ID: "conv1", ParticipantID: "admin1"},
		{ID: "conv2", ParticipantID: "admin2"},
	})

	convs := store.Conversations()
	assert.True(t, convs[0].Online)
	assert.False(t, convs[1].Online)
}
