// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/waconnect/waconnect-go/internal/authstate"
)

// WhatsApp WebSocket endpoint (§1, §6).
const (
	WAWebSocketURL = "wss://web.whatsapp.com/ws/chat"
	WAOrigin       = "https://web.whatsapp.com"
)

// ConnectionState is the state machine of §5: NEW -> CONNECTING ->
// HANDSHAKING -> AUTHENTICATED, with RESTARTING and CLOSED reachable from
// any of those on failure or an explicit Close.
type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnecting
	StateHandshaking
	StateAuthenticated
	StateRestarting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateRestarting:
		return "RESTARTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectionConfig holds the construction-time dependencies a Connection
// needs (§1 external-interface boundary): the node codec and session store
// are supplied by the caller so this package never imports them directly.
type ConnectionConfig struct {
	SessionID        string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	Codec            NodeCodec
	Logger           *zap.SugaredLogger
}

// Connection manages one WebSocket connection to WhatsApp: the Noise
// handshake, post-handshake encrypted node transport, request/response
// correlation, and the keep-alive loop (§4, §5).
type Connection struct {
	mu     sync.RWMutex
	state  ConnectionState
	config ConnectionConfig
	auth   *authstate.State
	logger *zap.SugaredLogger

	ws     *websocket.Conn
	frames *FrameCodec
	send   *CipherState
	recv   *CipherState

	dispatcher *Dispatcher
	idgen      *IDGenerator
	keepAlive  *KeepAlive

	closeOnce sync.Once
	closeErr  *ConnectionClosedError

	onQR      func(ref string)
	onReady   func()
	onClose   func(*ConnectionClosedError)
	onMessage func(n *Node)
	onAck     func(n *Node)
}

// NewConnection constructs a Connection bound to a particular AuthState;
// the connection never mutates AuthState directly except through SetPaired
// after a successful pairing exchange.
func NewConnection(config ConnectionConfig, auth *authstate.State) *Connection {
	return &Connection{
		state:      StateNew,
		config:     config,
		auth:       auth,
		logger:     config.Logger,
		frames:     NewFrameCodec(),
		dispatcher: NewDispatcher(config.Logger),
		idgen:      NewIDGenerator(),
	}
}

// SetOnQR sets the callback invoked with a pairing reference whenever a
// fresh QR code payload should be presented (§6).
func (c *Connection) SetOnQR(fn func(ref string)) { c.onQR = fn }

// SetOnReady sets the callback invoked once the connection reaches
// AUTHENTICATED.
func (c *Connection) SetOnReady(fn func()) { c.onReady = fn }

// SetOnClose sets the callback invoked exactly once, with the only error
// variant ever surfaced to embedders after close (§7).
func (c *Connection) SetOnClose(fn func(*ConnectionClosedError)) { c.onClose = fn }

// SetOnMessage sets the callback invoked for each unsolicited inbound
// "message" node, the session's "inbox" event (§6).
func (c *Connection) SetOnMessage(fn func(n *Node)) { c.onMessage = fn }

// SetOnAck sets the callback invoked for each unsolicited inbound "ack"
// node, the session's "ack" event (§6).
func (c *Connection) SetOnAck(fn func(n *Node)) { c.onAck = fn }

func (c *Connection) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect dials the WhatsApp WebSocket endpoint, performs the Noise
// handshake, registers protocol-level node handlers, and starts the
// receive loop. It returns once the handshake completes; pairing/resume
// completion is reported asynchronously via the OnReady/OnQR/OnClose
// callbacks, matching the original's deferred authentication flow
// (original_source's authDeferred/readyDeferred).
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info("connecting to WhatsApp")

	dialCtx := ctx
	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, WAWebSocketURL, &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Origin": {WAOrigin}},
	})
	if err != nil {
		c.closeWith(&AuthenticationFailedError{Reason: "websocket dial failed: " + err.Error()})
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.ws = ws

	c.setState(StateHandshaking)

	handshakeCtx := ctx
	if c.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(ctx, c.config.HandshakeTimeout)
		defer cancel()
	}

	snap := c.auth.Snapshot()
	result, err := PerformHandshake(handshakeCtx, &wsTransport{ws: ws}, c.frames, snap, time.Now)
	if err != nil {
		c.closeWith(err)
		return err
	}

	c.send, c.recv = result.Send, result.Recv
	c.logger.Info("noise handshake complete")

	c.registerProtocolHandlers()

	receiveCtx, cancelReceive := context.WithCancel(ctx)
	go c.dispatcher.Run(receiveCtx)
	go func() {
		c.receiveLoop(receiveCtx)
		cancelReceive()
	}()

	if snap.Me == nil {
		ref := generatePairingRef()
		c.logger.Info("no prior session, awaiting pairing scan")
		if c.onQR != nil {
			pubKey := base64.StdEncoding.EncodeToString(snap.NoiseKey.Public[:])
			c.onQR(GenerateWhatsAppQR(ref, pubKey, c.config.SessionID))
		}
	}

	return nil
}

// registerProtocolHandlers wires the tag-routed handlers that drive the
// AUTHENTICATED transition and close propagation (§4.4, §7), grounded on
// wamd's FailureHandler (original_source/wamd/handlers/failure.py) and the
// protocol's "success" / "stream:error" / "xmlstreamend" handling in
// onMessage/onClose.
func (c *Connection) registerProtocolHandlers() {
	c.dispatcher.RegisterHandler("success", func(n *Node) {
		c.handleAuthSuccess(n)
	})
	c.dispatcher.RegisterHandler("failure", func(n *Node) {
		c.closeWith(&NodeStreamError{Code: n.GetAttr("code")})
	})
	c.dispatcher.RegisterHandler("stream:error", func(n *Node) {
		c.closeWith(&NodeStreamError{Code: n.GetAttr("code")})
	})
	c.dispatcher.RegisterHandler("message", func(n *Node) {
		if c.onMessage != nil {
			c.onMessage(n)
		}
	})
	c.dispatcher.RegisterHandler("ack", func(n *Node) {
		if c.onAck != nil {
			c.onAck(n)
		}
	})
}

// handleAuthSuccess marks the session paired (§3, §9 open question (b)),
// transitions to AUTHENTICATED, and starts the keep-alive loop.
func (c *Connection) handleAuthSuccess(n *Node) {
	wasPairing := !c.auth.IsPaired()

	me := authstate.Me{JID: n.GetAttr("jid"), PushName: n.GetAttr("pushname")}
	c.auth.SetPaired(me, authstate.SignedDeviceIdentity{})

	c.setState(StateAuthenticated)
	c.keepAlive = StartKeepAlive(context.Background(), c.sendPing)

	if wasPairing {
		go func() {
			if err := c.UploadPreKeys(context.Background()); err != nil {
				c.logger.Warnw("prekey upload failed", "error", err)
			}
		}()
	}

	if c.onReady != nil {
		c.onReady()
	}
}

func (c *Connection) sendPing(ctx context.Context) {
	if err := c.SendNode(ctx, BuildPingNode(c.idgen.Next())); err != nil {
		c.logger.Debugw("keep-alive ping failed", "error", err)
	}
}

// receiveLoop reads raw websocket messages, decrypts every framed node
// inside, and dispatches each to the node dispatcher (§4.1, §4.5, §4.6).
func (c *Connection) receiveLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			c.closeWith(nil)
			return
		}

		for _, frame := range c.frames.Feed(data) {
			node, err := c.decodeFrame(frame)
			if err != nil {
				c.closeWith(err)
				return
			}
			if node == nil {
				continue // tolerated end-of-stream sentinel (§4.1)
			}
			c.dispatcher.Dispatch(node)
		}
	}
}

// decodeFrame opens one AEAD-sealed frame, strips/acts on the compression
// flag byte (§4.1's FLAG_COMPRESSED, original_source's inflate branch), and
// decodes the resulting binary-XML into a Node.
func (c *Connection) decodeFrame(ciphertext []byte) (*Node, error) {
	plaintext, err := c.recv.Open(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, &MalformedFrameError{Message: "empty decrypted frame"}
	}

	flags, body := plaintext[0], plaintext[1:]
	if flags&FlagCompressed != 0 {
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, &MalformedFrameError{Message: "failed to open compressed frame: " + err.Error()}
		}
		defer zr.Close()
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, &MalformedFrameError{Message: "failed to inflate frame: " + err.Error()}
		}
		body = inflated
	}

	return c.config.Codec.DecodeNode(body)
}

// SendNode encodes, AEAD-seals, frames, and writes a node (§4.1, §4.5).
// Nodes without an "id" attribute are left as-is; callers that need
// request/response correlation should set one (see RequestNode).
func (c *Connection) SendNode(ctx context.Context, n *Node) error {
	if state := c.State(); state != StateAuthenticated {
		return &NotAuthenticatedError{State: state}
	}

	plaintext, err := c.config.Codec.EncodeNode(n)
	if err != nil {
		return err
	}

	ciphertext, err := c.send.Seal(plaintext)
	if err != nil {
		return err
	}

	return (&wsTransport{ws: c.ws}).Send(ctx, c.frames.EncodeFrame(ciphertext))
}

// RequestNode sends n (assigning a fresh id if it has none) and blocks for
// the correlated response (§4.6, §3 PendingRequest).
func (c *Connection) RequestNode(ctx context.Context, n *Node) (*Node, error) {
	if state := c.State(); state != StateAuthenticated {
		return nil, &NotAuthenticatedError{State: state}
	}
	if n.ID() == "" {
		if n.Attrs == nil {
			n.Attrs = make(map[string]string)
		}
		n.Attrs["id"] = c.idgen.Next()
	}
	return c.dispatcher.SendAndAwait(ctx, n, func(n *Node) error {
		return c.SendNode(ctx, n)
	})
}

// closeWith transitions to CLOSED exactly once, stopping the keep-alive
// loop and the dispatcher, closing the websocket, and invoking onClose with
// the mapped ConnectionClosedError (§7). Safe to call multiple times and
// from multiple goroutines.
func (c *Connection) closeWith(cause error) {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.keepAlive.Stop()

		c.closeErr = causeToClosedError(cause)
		c.dispatcher.FailAll(c.closeErr)
		c.dispatcher.Stop()

		if c.ws != nil {
			c.ws.Close(websocket.StatusNormalClosure, "closing")
		}

		if c.onClose != nil {
			c.onClose(c.closeErr)
		}
	})
}

// Close initiates an orderly shutdown from the caller's side (§6).
func (c *Connection) Close() error {
	c.closeWith(nil)
	return nil
}

// generatePairingRef mirrors wamd's generateRef: an opaque per-attempt
// reference embedded in the QR payload.
func generatePairingRef() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// wsTransport adapts *websocket.Conn to the Transport interface the
// handshake driver depends on (§1 external-interface boundary).
type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) Send(ctx context.Context, frame []byte) error {
	return t.ws.Write(ctx, websocket.MessageBinary, frame)
}

func (t *wsTransport) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := t.ws.Read(ctx)
	return data, err
}
