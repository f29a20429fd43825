package db

import (
	"database/sql"
	"time"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an authenticated user
type User struct {
	ID           string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	LastLoginAt  sql.NullTime
}

// IsAdmin returns true if the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Conversation represents a support thread pairing one end-user with one admin
type Conversation struct {
	ID            string
	UserID        string
	AdminID       string
	CreatedAt     time.Time
	LastMessageAt sql.NullTime
}

// ConversationSummary is a conversation with the denormalized fields the
// sidebar list needs: the counterpart's display name, the last message
// preview and the viewer's unread count.
type ConversationSummary struct {
	ID              string
	UserID          string
	AdminID         string
	ParticipantName string
	LastMessage     string
	LastMessageAt   sql.NullTime
	UnreadCount     int
}

// Message represents a single chat message
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	SentAt         time.Time
	IsRead         bool
}
