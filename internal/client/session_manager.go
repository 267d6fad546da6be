package client

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/authstate"
	"github.com/waconnect/waconnect-go/internal/webhook"
)

// SessionManager manages multiple WhatsApp sessions.
type SessionManager struct {
	sessions   map[string]*WAClient
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
	dataDir    string
	dispatcher *webhook.Dispatcher
}

// NewSessionManager creates a new session manager.
func NewSessionManager(logger *zap.SugaredLogger) *SessionManager {
	dataDir := os.Getenv("SESSION_DIR")
	if dataDir == "" {
		dataDir = "./sessions"
	}

	os.MkdirAll(dataDir, 0755)

	return &SessionManager{
		sessions: make(map[string]*WAClient),
		logger:   logger,
		dataDir:  dataDir,
	}
}

// SetWebhookDispatcher wires the dispatcher every session created from this
// point forward will publish its open/qr/close/inbox/ack events (§6) to.
func (sm *SessionManager) SetWebhookDispatcher(d *webhook.Dispatcher) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.dispatcher = d
}

// CreateSession creates a new WhatsApp session and starts connecting it.
func (sm *SessionManager) CreateSession(sessionID string) (*WAClient, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[sessionID]; exists {
		return nil, ErrSessionExists
	}

	wac, err := NewWAClient(sessionID, Config{
		Logger:           sm.logger,
		SessionDir:       sm.dataDir,
		ConnectTimeout:   20 * time.Second,
		HandshakeTimeout: 20 * time.Second,
		Store:            authstate.NewMemoryStore(),
		Dispatcher:       sm.dispatcher,
	})
	if err != nil {
		return nil, err
	}
	sm.sessions[sessionID] = wac

	go func() {
		if err := wac.Connect(); err != nil {
			sm.logger.Errorf("failed to connect session %s: %v", sessionID, err)
		}
	}()

	return wac, nil
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(sessionID string) (*WAClient, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	wac, exists := sm.sessions[sessionID]
	return wac, exists
}

// DeleteSession disconnects and removes a session, along with its
// persisted credentials.
func (sm *SessionManager) DeleteSession(sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	wac, exists := sm.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	wac.Disconnect()
	delete(sm.sessions, sessionID)

	sessionPath := filepath.Join(sm.dataDir, sessionID)
	os.RemoveAll(sessionPath)

	return nil
}

// GetAllSessions returns all active sessions.
func (sm *SessionManager) GetAllSessions() []*WAClient {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*WAClient, 0, len(sm.sessions))
	for _, wac := range sm.sessions {
		sessions = append(sessions, wac)
	}
	return sessions
}

// GetStats returns session statistics.
func (sm *SessionManager) GetStats() SessionStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	stats := SessionStats{
		Total: len(sm.sessions),
	}

	for _, wac := range sm.sessions {
		switch wac.GetStatus() {
		case StatusReady:
			stats.Ready++
			stats.Active++
		case StatusConnecting, StatusQRReady:
			stats.Initializing++
		case StatusDisconnected:
			// Not counted as active
		}
	}

	return stats
}

// LoadPersistedSessions loads sessions that have saved credentials on disk.
func (sm *SessionManager) LoadPersistedSessions() error {
	entries, err := os.ReadDir(sm.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sessionID := entry.Name()
		credsPath := filepath.Join(sm.dataDir, sessionID, "creds.json")

		if _, err := os.Stat(credsPath); err == nil {
			sm.logger.Infof("loading persisted session: %s", sessionID)
			if _, err := sm.CreateSession(sessionID); err != nil {
				sm.logger.Errorf("failed to load session %s: %v", sessionID, err)
			}
		}
	}

	return nil
}

// DisconnectAll disconnects all sessions.
func (sm *SessionManager) DisconnectAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, wac := range sm.sessions {
		wac.Disconnect()
	}
}

// SessionStats holds aggregate session statistics.
type SessionStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Ready        int `json:"ready"`
	Initializing int `json:"initializing"`
}
