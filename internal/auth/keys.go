package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// KeyFile is the filename for persisted JWT signing keys.
const KeyFile = "jwt_keys.json"

// KeyPair holds the ED25519 key pair used for JWT signing.
type KeyPair struct {
	PublicKey  ed25519.PublicKey  `json:"public_key"`
	PrivateKey ed25519.PrivateKey `json:"private_key"`
}

// GenerateKeyPair generates a new ED25519 key pair for JWT signing.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ED25519 keys: %w", err)
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// LoadKeyPair loads a JWT key pair from a file.
func LoadKeyPair(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var kp KeyPair
	if err := json.Unmarshal(data, &kp); err != nil {
		return nil, fmt.Errorf("failed to parse JWT keys file: %w", err)
	}

	if len(kp.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: got %d, want %d", len(kp.PublicKey), ed25519.PublicKeySize)
	}
	if len(kp.PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(kp.PrivateKey), ed25519.PrivateKeySize)
	}

	return &kp, nil
}

// Save writes the key pair to a file with restricted permissions (0600).
func (kp *KeyPair) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}

	data, err := json.MarshalIndent(kp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JWT keys: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write JWT keys file: %w", err)
	}

	return nil
}

// EnsureKeyPair loads the key pair from dataDir, or generates and saves a new
// one so tokens survive server restarts.
func EnsureKeyPair(dataDir string) (*KeyPair, error) {
	keyPath := filepath.Join(dataDir, KeyFile)

	kp, err := LoadKeyPair(keyPath)
	if err == nil {
		return kp, nil
	}

	if os.IsNotExist(err) {
		kp, err = GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		if err := kp.Save(keyPath); err != nil {
			return nil, err
		}
		return kp, nil
	}

	return nil, fmt.Errorf("failed to load JWT keys: %w", err)
}
