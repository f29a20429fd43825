package db

import (
	"database/sql"
	"fmt"
	"time"
)

// GetConversation retrieves a conversation by ID
func (db *DB) GetConversation(id string) (*Conversation, error) {
	conv := &Conversation{}
	err := db.QueryRow(
		`SELECT id, user_id, admin_id, created_at, last_message_at FROM conversations WHERE id = ?`,
		id,
	).Scan(&conv.ID, &conv.UserID, &conv.AdminID, &conv.CreatedAt, &conv.LastMessageAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// FindOrCreateConversation returns the conversation between a user and an
// admin, creating it on first contact.
func (db *DB) FindOrCreateConversation(userID, adminID string) (*Conversation, error) {
	conv := &Conversation{}
	err := db.QueryRow(
		`SELECT id, user_id, admin_id, created_at, last_message_at FROM conversations WHERE user_id = ? AND admin_id = ?`,
		userID, adminID,
	).Scan(&conv.ID, &conv.UserID, &conv.AdminID, &conv.CreatedAt, &conv.LastMessageAt)

	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	conv = &Conversation{
		ID:        NewPrefixedID("conv"),
		UserID:    userID,
		AdminID:   adminID,
		CreatedAt: time.Now(),
	}
	_, err = db.Exec(
		`INSERT INTO conversations (id, user_id, admin_id, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.AdminID, conv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// ListConversationsForUser returns conversation summaries where the given
// user is a participant (either side), newest activity first. The summary
// carries the counterpart's name and the viewer's unread count.
func (db *DB) ListConversationsForUser(viewerID string) ([]*ConversationSummary, error) {
	rows, err := db.Query(`
		SELECT c.id, c.user_id, c.admin_id,
			CASE WHEN c.user_id = ? THEN a.name ELSE u.name END,
			COALESCE((SELECT m.content FROM messages m WHERE m.conversation_id = c.id ORDER BY m.sent_at DESC LIMIT 1), ''),
			c.last_message_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id AND m.sender_id != ? AND m.is_read = 0)
		FROM conversations c
		JOIN users u ON u.id = c.user_id
		JOIN users a ON a.id = c.admin_id
		WHERE c.user_id = ? OR c.admin_id = ?
		ORDER BY c.last_message_at DESC`,
		viewerID, viewerID, viewerID, viewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		s := &ConversationSummary{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.AdminID, &s.ParticipantName, &s.LastMessage, &s.LastMessageAt, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListConversationPartners returns the IDs of every user who shares a
// conversation with the given user.
func (db *DB) ListConversationPartners(userID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT CASE WHEN user_id = ? THEN admin_id ELSE user_id END
		FROM conversations WHERE user_id = ? OR admin_id = ?`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	defer rows.Close()

	var partners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", err)
		}
		partners = append(partners, id)
	}
	return partners, rows.Err()
}

// TouchConversation updates the last-message timestamp
func (db *DB) TouchConversation(id string, at time.Time) error {
	_, err := db.Exec(`UPDATE conversations SET last_message_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}
