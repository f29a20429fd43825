package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID generates a new random ID for database entities
// Format: 8 random hex characters (e.g., "a1b2c3d4")
func NewID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewPrefixedID generates a new ID with a prefix (e.g., "user-a1b2c3d4")
func NewPrefixedID(prefix string) string {
	return prefix + "-" + NewID()
}

// CreateUser inserts a new user with an auto-generated ID
func (db *DB) CreateUser(name, passwordHash, role string) (*User, error) {
	user := &User{
		ID:           NewPrefixedID("user"),
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now(),
	}

	_, err := db.Exec(
		`INSERT INTO users (id, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.PasswordHash, user.Role, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID
func (db *DB) GetUserByID(id string) (*User, error) {
	user := &User{}
	err := db.QueryRow(
		`SELECT id, name, password_hash, role, created_at, last_login_at FROM users WHERE id = ?`,
		id,
	).Scan(&user.ID, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.LastLoginAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserByName retrieves a user by their display name
func (db *DB) GetUserByName(name string) (*User, error) {
	user := &User{}
	err := db.QueryRow(
		`SELECT id, name, password_hash, role, created_at, last_login_at FROM users WHERE name = ?`,
		name,
	).Scan(&user.ID, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.LastLoginAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by name: %w", err)
	}

	return user, nil
}

// ListAdmins returns all users with the admin role, ordered by name
func (db *DB) ListAdmins() ([]*User, error) {
	rows, err := db.Query(
		`SELECT id, name, password_hash, role, created_at, last_login_at FROM users WHERE role = ? ORDER BY name`,
		RoleAdmin,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.LastLoginAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, user)
	}
	return admins, rows.Err()
}

// ListUsers returns all users, ordered by name
func (db *DB) ListUsers() ([]*User, error) {
	rows, err := db.Query(
		`SELECT id, name, password_hash, role, created_at, last_login_at FROM users ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.LastLoginAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUserLastLogin updates the last login time for a user
func (db *DB) UpdateUserLastLogin(id string) error {
	result, err := db.Exec(
		`UPDATE users SET last_login_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found: %s", id)
	}

	return nil
}
