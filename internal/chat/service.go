// Package chat implements the support-chat domain operations backing the hub
// invocations and the REST snapshot endpoints.
package chat

import (
	"errors"
	"log"
	"strings"

	"github.com/tomharwin/kestrel/internal/db"
	"github.com/tomharwin/kestrel/internal/wire"
)

var (
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotAdmin             = errors.New("target user is not an admin")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("not a participant of this conversation")
)

// Pusher delivers a hub event to a single connected user. Implemented by the
// hub; a nil pusher drops the push (user offline handling lives in the hub).
type Pusher interface {
	PushToUser(userID, event string, payload any)
}

// EventSink receives a copy of every domain event for observer channels.
// Implemented by the realtime broadcaster.
type EventSink interface {
	Publish(eventType string, payload map[string]any)
}

// Service owns the chat domain logic: persistence, presence and event
// fan-out to the hub and the observer node.
type Service struct {
	db       *db.DB
	presence *Presence
	pusher   Pusher
	sink     EventSink
	logf     func(format string, args ...any)
}

// NewService creates a chat service over the given database.
func NewService(database *db.DB) *Service {
	return &Service{
		db:       database,
		presence: NewPresence(),
		logf:     log.Printf,
	}
}

// SetPusher wires the hub in after construction (hub and service reference
// each other).
func (s *Service) SetPusher(p Pusher) {
	s.pusher = p
}

// SetEventSink wires the observer broadcaster.
func (s *Service) SetEventSink(sink EventSink) {
	s.sink = sink
}

// SetLogf overrides the logging function.
func (s *Service) SetLogf(logf func(format string, args ...any)) {
	s.logf = logf
}

// Presence exposes the presence registry.
func (s *Service) Presence() *Presence {
	return s.presence
}

// SendMessageToAdmin persists a user's message to an admin, creating the
// conversation on first contact, and pushes messageSent to the sender and
// newUserMessage to the admin. correlationID is echoed in the sender's
// confirmation so the client can promote its pending entry.
func (s *Service) SendMessageToAdmin(senderID, adminID, content, correlationID string) (*wire.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	sender, err := s.db.GetUserByID(senderID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, ErrUserNotFound
	}

	admin, err := s.db.GetUserByID(adminID)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrUserNotFound
	}
	if !admin.IsAdmin() {
		return nil, ErrNotAdmin
	}

	conv, err := s.db.FindOrCreateConversation(senderID, adminID)
	if err != nil {
		return nil, err
	}

	msg, err := s.db.CreateMessage(conv.ID, senderID, content)
	if err != nil {
		return nil, err
	}

	wm := toWireMessage(msg, sender)

	confirmed := wm
	confirmed.CorrelationID = correlationID
	s.push(senderID, wire.EventMessageSent, confirmed)
	s.push(adminID, wire.EventNewUserMessage, wm)

	s.publish(EventMessageCreated, map[string]any{
		"conversation_id": conv.ID,
		"message_id":      msg.ID,
		"sender_id":       senderID,
		"user_id":         conv.UserID,
		"admin_id":        conv.AdminID,
	})

	return &wm, nil
}

// SendAdminReply persists an admin's reply into an existing conversation and
// pushes adminReplySent to the admin and newAdminMessage to the end-user.
func (s *Service) SendAdminReply(adminID, conversationID, content, correlationID string) (*wire.ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.db.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if conv.AdminID != adminID {
		return nil, ErrNotParticipant
	}

	admin, err := s.db.GetUserByID(adminID)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrUserNotFound
	}

	msg, err := s.db.CreateMessage(conv.ID, adminID, content)
	if err != nil {
		return nil, err
	}

	wm := toWireMessage(msg, admin)

	confirmed := wm
	confirmed.CorrelationID = correlationID
	s.push(adminID, wire.EventAdminReplySent, confirmed)
	s.push(conv.UserID, wire.EventNewAdminMessage, wm)

	s.publish(EventMessageCreated, map[string]any{
		"conversation_id": conv.ID,
		"message_id":      msg.ID,
		"sender_id":       adminID,
		"user_id":         conv.UserID,
		"admin_id":        conv.AdminID,
	})

	return &wm, nil
}

// MarkAsRead marks every message addressed to the reader in the conversation
// as read and broadcasts the receipt to both participants.
func (s *Service) MarkAsRead(readerID, conversationID string) error {
	conv, err := s.db.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if conv.UserID != readerID && conv.AdminID != readerID {
		return ErrNotParticipant
	}

	if err := s.db.MarkConversationRead(conversationID, readerID); err != nil {
		return err
	}

	receipt := wire.ReadReceipt{ConversationID: conversationID, ReaderID: readerID}
	s.push(conv.UserID, wire.EventMessagesMarkedAsRead, receipt)
	s.push(conv.AdminID, wire.EventMessagesMarkedAsRead, receipt)

	s.publish(EventMessageRead, map[string]any{
		"conversation_id": conversationID,
		"reader_id":       readerID,
		"user_id":         conv.UserID,
		"admin_id":        conv.AdminID,
	})

	return nil
}

// OnlineUsers returns the IDs of all users with a live hub connection.
func (s *Service) OnlineUsers() []string {
	return s.presence.Online()
}

// HandleConnect records a new hub connection for the user and, when the user
// just came online, notifies everyone they share a conversation with.
func (s *Service) HandleConnect(userID string) {
	if s.presence.Connect(userID) {
		s.notifyPartners(userID, true)
	}
}

// HandleDisconnect records a lost hub connection and notifies partners when
// the last connection is gone.
func (s *Service) HandleDisconnect(userID string) {
	if s.presence.Disconnect(userID) {
		s.notifyPartners(userID, false)
	}
}

func (s *Service) notifyPartners(userID string, online bool) {
	partners, err := s.db.ListConversationPartners(userID)
	if err != nil {
		s.logf("chat: failed to list partners for %s: %v", userID, err)
		return
	}

	change := wire.StatusChange{UserID: userID, Online: online}
	for _, partner := range partners {
		s.push(partner, wire.EventUserStatusChanged, change)
	}

	s.publish(EventPresenceChanged, map[string]any{
		"user_id": userID,
		"online":  online,
	})
}

// Admins returns the admin roster with live online flags, for the end-user's
// "start a conversation" list.
func (s *Service) Admins() ([]wire.UserInfo, error) {
	admins, err := s.db.ListAdmins()
	if err != nil {
		return nil, err
	}

	out := make([]wire.UserInfo, 0, len(admins))
	for _, a := range admins {
		out = append(out, wire.UserInfo{
			ID:     a.ID,
			Name:   a.Name,
			Role:   a.Role,
			Online: s.presence.IsOnline(a.ID),
		})
	}
	return out, nil
}

// Conversations returns the viewer's sidebar entries, newest activity first.
func (s *Service) Conversations(viewerID string) ([]wire.ConversationSummary, error) {
	summaries, err := s.db.ListConversationsForUser(viewerID)
	if err != nil {
		return nil, err
	}

	out := make([]wire.ConversationSummary, 0, len(summaries))
	for _, c := range summaries {
		participantID := c.AdminID
		if viewerID == c.AdminID {
			participantID = c.UserID
		}
		summary := wire.ConversationSummary{
			ID:              c.ID,
			ParticipantID:   participantID,
			ParticipantName: c.ParticipantName,
			LastMessage:     c.LastMessage,
			UnreadCount:     c.UnreadCount,
			Online:          s.presence.IsOnline(participantID),
		}
		if c.LastMessageAt.Valid {
			t := c.LastMessageAt.Time
			summary.LastMessageAt = &t
		}
		out = append(out, summary)
	}
	return out, nil
}

// Messages returns the full message list of a conversation the viewer
// participates in.
func (s *Service) Messages(viewerID, conversationID string) ([]wire.ChatMessage, error) {
	conv, err := s.db.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if conv.UserID != viewerID && conv.AdminID != viewerID {
		return nil, ErrNotParticipant
	}

	user, err := s.db.GetUserByID(conv.UserID)
	if err != nil {
		return nil, err
	}
	admin, err := s.db.GetUserByID(conv.AdminID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.db.ListMessages(conversationID)
	if err != nil {
		return nil, err
	}

	out := make([]wire.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		sender := user
		if admin != nil && m.SenderID == admin.ID {
			sender = admin
		}
		out = append(out, toWireMessage(m, sender))
	}
	return out, nil
}

// Unread returns the viewer's total unread count.
func (s *Service) Unread(viewerID string) (int, error) {
	return s.db.UnreadCount(viewerID)
}

func (s *Service) push(userID, event string, payload any) {
	if s.pusher == nil {
		return
	}
	s.pusher.PushToUser(userID, event, payload)
}

func (s *Service) publish(eventType string, payload map[string]any) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(eventType, payload)
}

func toWireMessage(m *db.Message, sender *db.User) wire.ChatMessage {
	wm := wire.ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		SentAt:         m.SentAt,
		SenderID:       m.SenderID,
		IsRead:         m.IsRead,
	}
	if sender != nil {
		wm.SenderName = sender.Name
		wm.SenderRole = sender.Role
	}
	return wm
}

// Observer event types published to the realtime node.
const (
	EventMessageCreated  = "chat.message.created"
	EventMessageRead     = "chat.message.read"
	EventPresenceChanged = "presence.changed"
)
