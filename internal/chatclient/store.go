package chatclient

import (
	"sort"
	"sync"
	"time"

	"github.com/tomharwin/kestrel/internal/wire"
)

// MessageStatus tracks a locally sent message across the two-phase commit:
// optimistic on send, confirmed when the server echoes it back.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusConfirmed MessageStatus = "confirmed"
)

// StoredMessage is one entry in the selected conversation's message list.
type StoredMessage struct {
	ID             string
	ConversationID string
	Content        string
	SentAt         time.Time
	SenderID       string
	SenderName     string
	IsSender       bool
	IsRead         bool
	Status         MessageStatus
	// correlationID keys a pending entry until confirmation.
	correlationID string
}

// Store is the client-side view of the chat state: conversation summaries,
// the selected conversation's messages, and who is online. All methods are
// safe for concurrent use.
type Store struct {
	mu sync.Mutex

	selfID        string
	conversations []wire.ConversationSummary
	selectedID    string
	messages      []StoredMessage
	online        map[string]bool
}

// NewStore creates a store scoped to the given local user.
func NewStore(selfID string) *Store {
	return &Store{
		selfID: selfID,
		online: make(map[string]bool),
	}
}

// SelfID returns the local user's ID.
func (s *Store) SelfID() string {
	return s.selfID
}

// SetConversations replaces the conversation list, stamping each entry's
// online flag from current presence.
func (s *Store) SetConversations(conversations []wire.ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make([]wire.ConversationSummary, len(conversations))
	copy(s.conversations, conversations)
	for i := range s.conversations {
		s.conversations[i].Online = s.online[s.conversations[i].ParticipantID]
	}
}

// Conversations returns a copy of the conversation list.
func (s *Store) Conversations() []wire.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.ConversationSummary, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Select switches to a conversation and clears the message list; the caller
// is expected to follow up with SetMessages once the fetch lands.
func (s *Store) Select(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = conversationID
	s.messages = nil
}

// SelectedID returns the selected conversation, or "" when none is.
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// SetMessages installs a fetched message history. The install is dropped if
// the user switched conversations while the fetch was in flight.
func (s *Store) SetMessages(conversationID string, messages []wire.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID != s.selectedID {
		return
	}
	s.messages = s.messages[:0]
	for _, m := range messages {
		s.messages = append(s.messages, s.fromWire(m, StatusConfirmed))
	}
}

// Messages returns a copy of the selected conversation's messages.
func (s *Store) Messages() []StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// AddPending appends an optimistic entry for a message just sent, keyed by
// its invocation's correlation ID.
func (s *Store) AddPending(correlationID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, StoredMessage{
		ConversationID: s.selectedID,
		Content:        content,
		SentAt:         time.Now(),
		SenderID:       s.selfID,
		SenderName:     "You",
		IsSender:       true,
		Status:         StatusPending,
		correlationID:  correlationID,
	})
}

// DropPending removes an optimistic entry whose invocation failed.
func (s *Store) DropPending(correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.Status == StatusPending && m.correlationID == correlationID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// Append folds a pushed message into the store. A message carrying the
// correlation ID of a pending entry confirms that entry in place; a message
// already present by ID is dropped; anything else for the selected
// conversation is appended.
func (s *Store) Append(msg wire.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Promote before filtering on the selection: the first message of a
	// brand-new conversation is sent before any conversation is selected,
	// and its confirmation carries the server-assigned conversation ID.
	if msg.CorrelationID != "" {
		for i, m := range s.messages {
			if m.Status == StatusPending && m.correlationID == msg.CorrelationID {
				s.messages[i] = s.fromWire(msg, StatusConfirmed)
				if s.selectedID == "" {
					s.selectedID = msg.ConversationID
				}
				return
			}
		}
	}

	if msg.ConversationID != s.selectedID {
		return
	}

	// Reconnect replays and refresh races can redeliver a message.
	for _, m := range s.messages {
		if m.ID == msg.ID {
			return
		}
	}

	s.messages = append(s.messages, s.fromWire(msg, StatusConfirmed))
}

// MarkRead flips every message in the conversation read when the other
// participant acknowledges it.
func (s *Store) MarkRead(conversationID, readerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if readerID != s.selfID {
		// The partner read our messages.
		if conversationID == s.selectedID {
			for i := range s.messages {
				if s.messages[i].IsSender {
					s.messages[i].IsRead = true
				}
			}
		}
		return
	}

	// We read theirs: zero the sidebar badge.
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].UnreadCount = 0
		}
	}
	if conversationID == s.selectedID {
		for i := range s.messages {
			if !s.messages[i].IsSender {
				s.messages[i].IsRead = true
			}
		}
	}
}

// SetPresence records one participant's online state.
func (s *Store) SetPresence(userID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online {
		s.online[userID] = true
	} else {
		delete(s.online, userID)
	}
	for i := range s.conversations {
		if s.conversations[i].ParticipantID == userID {
			s.conversations[i].Online = online
		}
	}
}

// SetOnlineUsers replaces the full presence set, as delivered by the
// onlineUsersList event.
func (s *Store) SetOnlineUsers(userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		s.online[id] = true
	}
	for i := range s.conversations {
		s.conversations[i].Online = s.online[s.conversations[i].ParticipantID]
	}
}

// IsOnline reports one participant's presence.
func (s *Store) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

// OnlineUsers returns a sorted snapshot of online participant IDs.
func (s *Store) OnlineUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.online))
	for id := range s.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TotalUnread sums the sidebar badges.
func (s *Store) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, conv := range s.conversations {
		total += conv.UnreadCount
	}
	return total
}

func (s *Store) fromWire(m wire.ChatMessage, status MessageStatus) StoredMessage {
	name := m.SenderName
	isSender := m.SenderID == s.selfID
	if isSender {
		name = "You"
	}
	return StoredMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		SentAt:         m.SentAt,
		SenderID:       m.SenderID,
		SenderName:     name,
		IsSender:       isSender,
		IsRead:         m.IsRead,
		Status:         status,
	}
}
