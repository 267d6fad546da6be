package authstate

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore is a process-local Store (§6) that tracks which peers have
// been through ProcessPreKeyBundle and hands back plaintext framed as a
// "plain" message type. Real double-ratchet session state and ciphertext
// are explicitly out of scope (§1 Non-goals: Signal session cryptography is
// an external collaborator) — this exists so a gateway can be wired end to
// end against a concrete Store without depending on a real libsignal
// binding, and is meant to be swapped for one.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]bool
	preKeys  map[uint32]PreKey
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]bool),
		preKeys:  make(map[uint32]PreKey),
	}
}

func sessionKey(user string, deviceID uint32) string {
	if deviceID == 0 {
		return user
	}
	return user + ":" + strconv.FormatUint(uint64(deviceID), 10)
}

// ContainsSession reports whether a ratchet session has been established
// with the given device, per StorePreKey/ProcessPreKeyBundle bookkeeping.
func (m *MemoryStore) ContainsSession(ctx context.Context, user string, deviceID uint32) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionKey(user, deviceID)], nil
}

// StorePreKey records a locally-generated prekey for later upload.
func (m *MemoryStore) StorePreKey(ctx context.Context, id uint32, key PreKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preKeys[id] = key
	return nil
}

// ProcessPreKeyBundle marks jid as having an established session, the
// minimal bookkeeping a real X3DH-style key agreement would perform.
func (m *MemoryStore) ProcessPreKeyBundle(ctx context.Context, jid string, bundle PreKeyBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[jid] = true
	return nil
}

// Encrypt returns plaintext tagged as msgType "plain". A real Store would
// run the Signal double ratchet here; this one exists purely to keep the
// message-send path exercised without that dependency.
func (m *MemoryStore) Encrypt(ctx context.Context, plaintext []byte, recipient string) (string, []byte, error) {
	return "plain", plaintext, nil
}
