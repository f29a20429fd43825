package db

import (
	"fmt"
	"time"
)

// CreateMessage inserts a new message and bumps the conversation's
// last-message timestamp in the same transaction.
func (db *DB) CreateMessage(conversationID, senderID, content string) (*Message, error) {
	msg := &Message{
		ID:             NewPrefixedID("msg"),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         time.Now(),
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO messages (id, conversation_id, sender_id, content, sent_at, is_read) VALUES (?, ?, ?, ?, ?, 0)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`,
		msg.SentAt, msg.ConversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	return msg, nil
}

// ListMessages returns all messages in a conversation in send order
func (db *DB) ListMessages(conversationID string) ([]*Message, error) {
	rows, err := db.Query(
		`SELECT id, conversation_id, sender_id, content, sent_at, is_read FROM messages WHERE conversation_id = ? ORDER BY sent_at`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.SentAt, &msg.IsRead); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkConversationRead marks all messages not sent by the reader as read
func (db *DB) MarkConversationRead(conversationID, readerID string) error {
	_, err := db.Exec(
		`UPDATE messages SET is_read = 1 WHERE conversation_id = ? AND sender_id != ?`,
		conversationID, readerID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

// UnreadCount returns the number of unread messages addressed to the reader
// across all of their conversations.
func (db *DB) UnreadCount(readerID string) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.user_id = ? OR c.admin_id = ?) AND m.sender_id != ? AND m.is_read = 0`,
		readerID, readerID, readerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}
