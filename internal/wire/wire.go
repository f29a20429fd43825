// Package wire defines the JSON protocol spoken on the chat hub socket and
// the payload shapes shared with the REST API.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame types. Every frame on the hub socket is one of these.
const (
	// FrameInvocation is a client request to run a named hub operation.
	FrameInvocation = "invocation"
	// FrameCompletion is the server's reply to an invocation, matched by ID.
	FrameCompletion = "completion"
	// FrameEvent is a server-pushed event, not tied to any invocation.
	FrameEvent = "event"
)

// Invocation targets the hub understands.
const (
	TargetSendMessageToAdmin = "SendMessageToAdmin"
	TargetSendAdminReply     = "SendAdminReply"
	TargetMarkAsRead         = "MarkAsRead"
	TargetGetOnlineUsers     = "GetOnlineUsers"
)

// Server-pushed event names.
const (
	EventMessageSent          = "messageSent"
	EventNewAdminMessage      = "newAdminMessage"
	EventNewUserMessage       = "newUserMessage"
	EventAdminReplySent       = "adminReplySent"
	EventMessagesMarkedAsRead = "messagesMarkedAsRead"
	EventUserStatusChanged    = "userStatusChanged"
	EventOnlineUsersList      = "onlineUsersList"
	EventError                = "error"
)

// Frame is the envelope for every message on the hub socket.
type Frame struct {
	Type string `json:"type"`
	// ID correlates an invocation with its completion.
	ID      string          `json:"id,omitempty"`
	Target  string          `json:"target,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Error   string          `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewInvocation builds an invocation frame with marshaled args.
func NewInvocation(id, target string, args any) (*Frame, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}
	return &Frame{Type: FrameInvocation, ID: id, Target: target, Args: data}, nil
}

// NewCompletion builds a completion frame for the given invocation ID.
// errMsg is empty on success.
func NewCompletion(id, errMsg string) *Frame {
	return &Frame{Type: FrameCompletion, ID: id, Error: errMsg}
}

// NewEvent builds an event frame with a marshaled payload.
func NewEvent(event string, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Frame{Type: FrameEvent, Event: event, Payload: data}, nil
}

// Invocation argument shapes.

// SendMessageToAdminArgs starts or continues a conversation with an admin.
type SendMessageToAdminArgs struct {
	AdminID string `json:"adminId"`
	Content string `json:"content"`
}

// SendAdminReplyArgs is an admin reply into an existing conversation.
type SendAdminReplyArgs struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// MarkAsReadArgs marks a conversation read for the caller.
type MarkAsReadArgs struct {
	ConversationID string `json:"conversationId"`
}

// Event payload shapes.

// ChatMessage is a message as it travels over the hub and the REST API.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderRole     string    `json:"senderRole"` // "user" or "admin"
	IsRead         bool      `json:"isRead"`
	// CorrelationID echoes the sender's invocation ID so the sender can
	// promote its optimistic pending entry to this confirmed message.
	CorrelationID string `json:"correlationId,omitempty"`
}

// ReadReceipt announces that a participant marked a conversation read.
type ReadReceipt struct {
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
}

// StatusChange announces a participant going online or offline.
type StatusChange struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// OnlineUsers is the reply to GetOnlineUsers, pushed as an event.
type OnlineUsers struct {
	UserIDs []string `json:"userIds"`
}

// ErrorPayload is pushed when the server hits a fault it cannot attribute
// to a specific invocation.
type ErrorPayload struct {
	Message string `json:"message"`
}

// REST payload shapes.

// UserInfo is the public view of a user.
type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Online bool   `json:"online"`
}

// ConversationSummary is one sidebar entry.
type ConversationSummary struct {
	ID              string     `json:"id"`
	ParticipantID   string     `json:"participantId"`
	ParticipantName string     `json:"participantName"`
	LastMessage     string     `json:"lastMessage"`
	LastMessageAt   *time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount     int        `json:"unreadCount"`
	Online          bool       `json:"online"`
}

// LoginRequest is the credentials payload for POST /auth/login.
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginResponse carries the issued tokens and the authenticated user.
type LoginResponse struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	User         UserInfo `json:"user"`
}

// UnreadResponse is the reply to GET /chat/unread.
type UnreadResponse struct {
	Count int `json:"count"`
}
