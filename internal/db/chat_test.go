package db

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "kestrel-db-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestUserCRUD(t *testing.T) {
	db := openTestDB(t)

	user, err := db.CreateUser("alice", "hash-a", RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	admin, err := db.CreateUser("bob", "hash-b", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.GetUserByID(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "alice" || got.IsAdmin() {
		t.Errorf("unexpected user: %+v", got)
	}

	got, err = db.GetUserByName("bob")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != admin.ID || !got.IsAdmin() {
		t.Errorf("unexpected admin: %+v", got)
	}

	missing, err := db.GetUserByID("user-nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}

	admins, err := db.ListAdmins()
	if err != nil {
		t.Fatal(err)
	}
	if len(admins) != 1 || admins[0].ID != admin.ID {
		t.Errorf("expected only bob in admin list, got %d entries", len(admins))
	}

	users, err := db.ListUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Name != "alice" || users[1].Name != "bob" {
		t.Errorf("unexpected user list: %+v", users)
	}

	if err := db.UpdateUserLastLogin(user.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetUserByID(user.ID)
	if !got.LastLoginAt.Valid {
		t.Error("expected last_login_at to be set")
	}
}

func TestConversationFindOrCreate(t *testing.T) {
	db := openTestDB(t)

	user, _ := db.CreateUser("alice", "h", RoleUser)
	admin, _ := db.CreateUser("bob", "h", RoleAdmin)

	conv1, err := db.FindOrCreateConversation(user.ID, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	conv2, err := db.FindOrCreateConversation(user.ID, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if conv1.ID != conv2.ID {
		t.Errorf("expected the same conversation, got %s and %s", conv1.ID, conv2.ID)
	}
}

func TestMessagesAndUnread(t *testing.T) {
	db := openTestDB(t)

	user, _ := db.CreateUser("alice", "h", RoleUser)
	admin, _ := db.CreateUser("bob", "h", RoleAdmin)
	conv, _ := db.FindOrCreateConversation(user.ID, admin.ID)

	if _, err := db.CreateMessage(conv.ID, user.ID, "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateMessage(conv.ID, admin.ID, "hi, how can I help?"); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" {
		t.Errorf("expected send order, got %q first", msgs[0].Content)
	}

	// Each side has one unread message from the other
	count, err := db.UnreadCount(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 unread for user, got %d", count)
	}
	count, _ = db.UnreadCount(admin.ID)
	if count != 1 {
		t.Errorf("expected 1 unread for admin, got %d", count)
	}

	if err := db.MarkConversationRead(conv.ID, user.ID); err != nil {
		t.Fatal(err)
	}
	count, _ = db.UnreadCount(user.ID)
	if count != 0 {
		t.Errorf("expected 0 unread after mark, got %d", count)
	}
	// The admin's unread message (sent by the user) is untouched
	count, _ = db.UnreadCount(admin.ID)
	if count != 1 {
		t.Errorf("expected admin unread to remain 1, got %d", count)
	}
}

func TestListConversationsForUser(t *testing.T) {
	db := openTestDB(t)

	user, _ := db.CreateUser("alice", "h", RoleUser)
	admin, _ := db.CreateUser("bob", "h", RoleAdmin)
	conv, _ := db.FindOrCreateConversation(user.ID, admin.ID)
	db.CreateMessage(conv.ID, user.ID, "first")
	db.CreateMessage(conv.ID, admin.ID, "latest reply")

	summaries, err := db.ListConversationsForUser(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(summaries))
	}
	s := summaries[0]
	if s.ParticipantName != "bob" {
		t.Errorf("expected counterpart name bob, got %q", s.ParticipantName)
	}
	if s.LastMessage != "latest reply" {
		t.Errorf("expected latest preview, got %q", s.LastMessage)
	}
	if s.UnreadCount != 1 {
		t.Errorf("expected 1 unread, got %d", s.UnreadCount)
	}

	// Admin sees the same thread with the user's name
	summaries, _ = db.ListConversationsForUser(admin.ID)
	if len(summaries) != 1 || summaries[0].ParticipantName != "alice" {
		t.Errorf("unexpected admin view: %+v", summaries)
	}
}
