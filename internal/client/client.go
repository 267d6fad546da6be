// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/authstate"
	"github.com/waconnect/waconnect-go/internal/binaryxml"
	"github.com/waconnect/waconnect-go/internal/core"
	"github.com/waconnect/waconnect-go/internal/webhook"
)

// SessionStatus is the coarse session status exposed to the API/webhook
// layers, derived from the underlying core.ConnectionState (§5) plus the
// extra QR_READY phase that sits inside HANDSHAKING while waiting on a scan.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "INITIALIZING"
	StatusConnecting   SessionStatus = "CONNECTING"
	StatusQRReady      SessionStatus = "QR_READY"
	StatusReady        SessionStatus = "READY"
	StatusDisconnected SessionStatus = "DISCONNECTED"
)

// Common errors
var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotConnected    = errors.New("not connected")
	ErrNoBundle        = errors.New("no prekey bundle returned for jid")
)

// Config bundles the dependencies the client needs beyond a session id.
type Config struct {
	Logger           *zap.SugaredLogger
	SessionDir       string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	Store            authstate.Store
	// Dispatcher, if set, receives the session's open/qr/close/inbox/ack
	// events (§6) for delivery to registered webhooks.
	Dispatcher *webhook.Dispatcher
}

// WAClient owns one session's AuthState and core.Connection, translating
// connection callbacks into the session-status model the API/webhook layers
// consume.
type WAClient struct {
	ID               string
	status           SessionStatus
	phoneNumber      string
	qrCode           string
	qrCodeBase64     string
	connectedAt      *time.Time
	lastActivityAt   time.Time
	messagesSent     int
	messagesReceived int

	mu     sync.RWMutex
	logger *zap.SugaredLogger
	config Config

	auth      *authstate.State
	conn      *core.Connection
	qrGen     *core.QRGenerator
	cancelCtx context.CancelFunc

	onQR    func(string)
	onReady func()
}

// Message represents an inbound chat message delivered to embedders.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	IsFromMe  bool      `json:"isFromMe"`
}

// newAuthState mints a brand-new AuthState for a session that has never
// paired: a noise key pair, a signed identity key, a first signed prekey,
// and a registration id (§3).
func newAuthState(store authstate.Store) (*authstate.State, error) {
	auth := &authstate.State{Store: store}

	noiseKey, err := core.GenerateStaticKeyPair()
	if err != nil {
		return nil, err
	}
	auth.NoiseKey = noiseKey

	identityKey, err := core.GenerateStaticKeyPair()
	if err != nil {
		return nil, err
	}
	auth.SignedIdentityKey = identityKey

	preKeyPair, err := core.GenerateStaticKeyPair()
	if err != nil {
		return nil, err
	}
	preKeyID := auth.NextPreKey()
	auth.SignedPreKey = authstate.NewSignedPreKey(identityKey, preKeyID, preKeyPair)

	regID, err := authstate.NewRegistrationID()
	if err != nil {
		return nil, err
	}
	auth.RegistrationID = regID

	return auth, nil
}

// NewWAClient constructs a client for sessionID, loading any persisted
// AuthState from config.SessionDir or minting a fresh one (§3).
func NewWAClient(sessionID string, config Config) (*WAClient, error) {
	auth, err := authstate.Load(config.SessionDir, sessionID)
	if errors.Is(err, authstate.ErrNoCredentials) {
		auth, err = newAuthState(config.Store)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		auth.Store = config.Store
	}

	return &WAClient{
		ID:             sessionID,
		status:         StatusInitializing,
		lastActivityAt: time.Now(),
		logger:         config.Logger,
		config:         config,
		auth:           auth,
		qrGen:          core.NewQRGenerator(),
	}, nil
}

// Connect starts the underlying core.Connection in the background.
func (c *WAClient) Connect() error {
	c.mu.Lock()
	c.status = StatusConnecting
	c.mu.Unlock()

	c.logger.Infof("connecting session %s", c.ID)

	c.conn = core.NewConnection(core.ConnectionConfig{
		SessionID:        c.ID,
		ConnectTimeout:   c.config.ConnectTimeout,
		HandshakeTimeout: c.config.HandshakeTimeout,
		Codec:            binaryxml.New(),
		Logger:           c.logger,
	}, c.auth)

	c.conn.SetOnQR(func(qrData string) {
		c.mu.Lock()
		c.status = StatusQRReady
		c.qrCode = qrData
		if b64, err := c.qrGen.GenerateBase64(qrData); err == nil {
			c.qrCodeBase64 = b64
		}
		c.lastActivityAt = time.Now()
		c.mu.Unlock()

		c.logger.Infof("QR code ready for session %s", c.ID)
		if c.onQR != nil {
			c.onQR(qrData)
		}
		c.dispatch(webhook.EventQR, map[string]string{"sessionId": c.ID, "qr": qrData})
	})

	c.conn.SetOnReady(func() {
		c.mu.Lock()
		now := time.Now()
		c.status = StatusReady
		c.connectedAt = &now
		c.lastActivityAt = now
		c.mu.Unlock()

		_ = c.auth.Save(c.config.SessionDir, c.ID)

		c.logger.Infof("session %s authenticated", c.ID)
		if c.onReady != nil {
			c.onReady()
		}
		c.dispatch(webhook.EventOpen, map[string]string{"sessionId": c.ID})
	})

	c.conn.SetOnClose(func(closed *core.ConnectionClosedError) {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		c.logger.Infow("session closed", "session", c.ID, "reason", closed.Reason, "loggedOut", closed.IsLoggedOut)
		c.dispatch(webhook.EventClose, map[string]interface{}{
			"sessionId": c.ID,
			"reason":    closed.Reason,
			"loggedOut": closed.IsLoggedOut,
		})
	})

	c.conn.SetOnMessage(func(n *core.Node) {
		c.mu.Lock()
		c.messagesReceived++
		c.lastActivityAt = time.Now()
		c.mu.Unlock()
		c.dispatch(webhook.EventInbox, map[string]interface{}{
			"sessionId": c.ID,
			"from":      n.GetAttr("from"),
			"id":        n.ID(),
		})
	})

	c.conn.SetOnAck(func(n *core.Node) {
		c.dispatch(webhook.EventAck, map[string]interface{}{
			"sessionId": c.ID,
			"id":        n.ID(),
			"status":    n.GetAttr("class"),
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelCtx = cancel

	go func() {
		if err := c.conn.Connect(ctx); err != nil {
			c.logger.Errorf("connection failed for %s: %v", c.ID, err)
			c.mu.Lock()
			c.status = StatusDisconnected
			c.mu.Unlock()
		}
	}()

	return nil
}

// dispatch forwards a session event to the configured webhook dispatcher,
// if any (§6 event surface).
func (c *WAClient) dispatch(eventType string, data interface{}) {
	if c.config.Dispatcher != nil {
		c.config.Dispatcher.Dispatch(eventType, data)
	}
}

// Disconnect tears down the connection and cancels its context.
func (c *WAClient) Disconnect() {
	c.mu.Lock()
	cancel := c.cancelCtx
	conn := c.conn
	c.status = StatusDisconnected
	c.qrCode = ""
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.logger.Infof("session %s disconnected", c.ID)
}

// GetStatus returns current session status.
func (c *WAClient) GetStatus() SessionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// GetQRCode returns the current QR code payload string.
func (c *WAClient) GetQRCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.qrCode
}

// GetPhoneNumber returns the connected phone number, if paired.
func (c *WAClient) GetPhoneNumber() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phoneNumber
}

// GetSession returns session info for the status API.
func (c *WAClient) GetSession() SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return SessionInfo{
		ID:               c.ID,
		Status:           c.status,
		PhoneNumber:      c.phoneNumber,
		ConnectedAt:      c.connectedAt,
		LastActivityAt:   c.lastActivityAt,
		MessagesSent:     c.messagesSent,
		MessagesReceived: c.messagesReceived,
	}
}

// SendText sends a text message node to recipient. Double-ratchet message
// encryption is out of scope (Non-goals): this calls through the injected
// authstate.Store, which owns that concern, and wraps whatever ciphertext it
// returns in an "enc" child plus a device-identity node — grounded on
// wamd's _processTextMessageAndSend / _buildDeviceIdentityNode.
func (c *WAClient) SendText(ctx context.Context, to, text string) (*MessageResult, error) {
	c.mu.RLock()
	status := c.status
	conn := c.conn
	store := c.auth.Store
	c.mu.RUnlock()

	if status != StatusReady || conn == nil {
		return nil, ErrNotConnected
	}

	msgType, ciphertext, err := store.Encrypt(ctx, []byte(text), to)
	if err != nil {
		return nil, err
	}

	snap := c.auth.Snapshot()
	children := []*core.Node{
		{
			Tag:     "enc",
			Attrs:   map[string]string{"v": "2", "type": msgType},
			Content: ciphertext,
		},
	}
	if snap.SignedDeviceIdent != nil {
		children = append(children, core.BuildDeviceIdentityNode(*snap.SignedDeviceIdent))
	}

	id := time.Now().Format("20060102150405")
	node := &core.Node{
		Tag: "message",
		Attrs: map[string]string{
			"id":   id,
			"to":   to,
			"type": "text",
		},
		Content: children,
	}

	if err := conn.SendNode(ctx, node); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.messagesSent++
	c.lastActivityAt = time.Now()
	c.mu.Unlock()

	return &MessageResult{MessageID: id, Timestamp: time.Now()}, nil
}

// SendReadReceipt marks messageID from the given peer as read, a one-line
// fire-and-forget session helper (wamd's sendReadReceipt).
func (c *WAClient) SendReadReceipt(ctx context.Context, messageID, from string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.SendReadReceipt(ctx, messageID, from)
}

// EnsureSession requests and processes a prekey bundle for jid if no
// Signal session exists yet, the plumbing half of wamd's
// _createParticipantsForMessage (bundle processing itself is the store's
// concern, §6).
func (c *WAClient) EnsureSession(ctx context.Context, jid string, user string, deviceID uint32) error {
	c.mu.RLock()
	conn := c.conn
	store := c.auth.Store
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	exists, err := store.ContainsSession(ctx, user, deviceID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	bundles, err := conn.RequestPreKeyBundles(ctx, []string{jid})
	if err != nil {
		return err
	}

	bundle, ok := bundles[jid]
	if !ok {
		return ErrNoBundle
	}
	return store.ProcessPreKeyBundle(ctx, jid, bundle)
}

// SessionInfo holds session information exposed over the API (§6).
type SessionInfo struct {
	ID               string        `json:"id"`
	Status           SessionStatus `json:"status"`
	PhoneNumber      string        `json:"phoneNumber,omitempty"`
	ConnectedAt      *time.Time    `json:"connectedAt,omitempty"`
	LastActivityAt   time.Time     `json:"lastActivityAt"`
	MessagesSent     int           `json:"messagesSent"`
	MessagesReceived int           `json:"messagesReceived"`
}

// MessageResult holds the result of sending a message.
type MessageResult struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}
