package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomharwin/kestrel/internal/wire"
)

// ErrNoCredential is returned when no saved credential exists; the caller
// must log in first.
var ErrNoCredential = errors.New("no saved credential, log in first")

// Credentials is the on-disk login state, stored under the data directory
// as credentials.json.
type Credentials struct {
	ServerURL    string        `json:"server_url"`
	Token        string        `json:"token"`
	RefreshToken string        `json:"refresh_token"`
	User         wire.UserInfo `json:"user"`
}

const credentialsFile = "credentials.json"

// DefaultDataDir returns ~/.kestrel.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".kestrel"), nil
}

// LoadCredentials reads the saved login state from dataDir. Returns
// ErrNoCredential when the file does not exist.
func LoadCredentials(dataDir string) (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, credentialsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if creds.Token == "" {
		return nil, ErrNoCredential
	}
	return &creds, nil
}

// Save writes the login state to dataDir, creating it if needed. The file
// holds tokens, so it is written owner-only.
func (c *Credentials) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, credentialsFile), data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// ClearCredentials removes the saved login state. Missing file is not an
// error.
func ClearCredentials(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, credentialsFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
