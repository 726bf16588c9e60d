// Package auth guards the star API with static bearer keys.
//
// Keys are configured as raw "sk_..." tokens and only their SHA-256 hashes
// are kept in memory. With no keys configured the guard is a no-op.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrNoAPIKey      = errors.New("API key required")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// KeyPrefix starts every raw key.
const KeyPrefix = "sk_"

// APIKey is the stored side of a configured key.
type APIKey struct {
	ID        string    `json:"id"`
	Hash      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed,omitempty"`
}

// Manager validates bearer keys against the configured set.
type Manager struct {
	mu   sync.Mutex
	keys []*APIKey
	now  func() time.Time
}

// NewManager hashes rawKeys. Blank entries are ignored.
func NewManager(rawKeys []string) *Manager {
	m := &Manager{now: time.Now}
	for _, raw := range rawKeys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		m.keys = append(m.keys, &APIKey{
			ID:        KeyID(raw),
			Hash:      hashKey(raw),
			CreatedAt: m.now(),
		})
	}
	return m
}

// Enabled reports whether any key is configured.
func (m *Manager) Enabled() bool {
	return len(m.keys) > 0
}

// ValidateKey checks a raw key, with or without the "Bearer " prefix.
func (m *Manager) ValidateKey(rawKey string) (*APIKey, error) {
	rawKey = strings.TrimSpace(strings.TrimPrefix(rawKey, "Bearer "))
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}
	if !strings.HasPrefix(rawKey, KeyPrefix) {
		return nil, ErrInvalidAPIKey
	}

	hash := []byte(hashKey(rawKey))
	var found *APIKey
	for _, k := range m.keys {
		// every key is compared so timing does not reveal the match position
		if subtle.ConstantTimeCompare(hash, []byte(k.Hash)) == 1 {
			found = k
		}
	}
	if found == nil {
		return nil, ErrInvalidAPIKey
	}

	m.mu.Lock()
	found.LastUsed = m.now()
	m.mu.Unlock()
	return found, nil
}

// GenerateKey returns a fresh random raw key suitable for API_KEYS.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// KeyID is the public identifier of a raw key, derived from its hash.
func KeyID(raw string) string {
	return "ak_" + hashKey(raw)[:16]
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
