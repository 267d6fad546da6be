package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/authstate"
)

// fakeNodeCodec is a minimal NodeCodec that round-trips a Node through its
// tag alone, just enough to exercise Connection.decodeFrame without pulling
// in the binary-XML codec (which itself imports this package).
type fakeNodeCodec struct{}

func (fakeNodeCodec) EncodeNode(n *Node) ([]byte, error) { return []byte(n.Tag), nil }
func (fakeNodeCodec) DecodeNode(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return &Node{Tag: string(data)}, nil
}

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	auth := &authstate.State{Store: authstate.NewMemoryStore()}
	cfg := ConnectionConfig{
		SessionID: "test-session",
		Codec:     fakeNodeCodec{},
		Logger:    zap.NewNop().Sugar(),
	}
	return NewConnection(cfg, auth)
}

func TestConnectionStateString(t *testing.T) {
	cases := map[ConnectionState]string{
		StateNew:           "NEW",
		StateConnecting:    "CONNECTING",
		StateHandshaking:   "HANDSHAKING",
		StateAuthenticated: "AUTHENTICATED",
		StateRestarting:    "RESTARTING",
		StateClosed:        "CLOSED",
		ConnectionState(99): "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewConnectionStartsInStateNew(t *testing.T) {
	c := newTestConnection(t)
	if c.State() != StateNew {
		t.Fatalf("state = %v, want NEW", c.State())
	}
}

func TestCloseWithIsIdempotentAndReportsCleanClose(t *testing.T) {
	c := newTestConnection(t)

	var gotErr *ConnectionClosedError
	calls := 0
	c.SetOnClose(func(e *ConnectionClosedError) {
		calls++
		gotErr = e
	})

	c.Close()
	c.Close()

	if calls != 1 {
		t.Fatalf("onClose invoked %d times, want 1", calls)
	}
	if gotErr == nil || !gotErr.IsAuthDone || gotErr.IsLoggedOut {
		t.Fatalf("unexpected close error: %+v", gotErr)
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED", c.State())
	}
}

func TestCloseWithMapsAuthenticationFailure(t *testing.T) {
	c := newTestConnection(t)

	var gotErr *ConnectionClosedError
	c.SetOnClose(func(e *ConnectionClosedError) { gotErr = e })

	c.closeWith(&AuthenticationFailedError{Reason: "bad signature"})

	if gotErr.IsAuthDone {
		t.Fatal("authentication failure must not report IsAuthDone")
	}
	if gotErr.Reason == "" {
		t.Fatal("expected a non-empty reason")
	}
}

func TestCloseWithMapsLoggedOutStreamError(t *testing.T) {
	c := newTestConnection(t)

	var gotErr *ConnectionClosedError
	c.SetOnClose(func(e *ConnectionClosedError) { gotErr = e })

	c.closeWith(&NodeStreamError{Code: "401"})

	if !gotErr.IsLoggedOut {
		t.Fatal("expected IsLoggedOut to be true for stream error code 401")
	}
}

func TestRegisterProtocolHandlersRoutesFailureToClose(t *testing.T) {
	c := newTestConnection(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.dispatcher.Run(ctx)

	c.registerProtocolHandlers()

	var gotErr *ConnectionClosedError
	done := make(chan struct{})
	c.SetOnClose(func(e *ConnectionClosedError) {
		gotErr = e
		close(done)
	})

	c.dispatcher.Dispatch(&Node{Tag: "failure", Attrs: map[string]string{"code": "401"}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onClose was not invoked for a failure node")
	}
	if !gotErr.IsLoggedOut {
		t.Fatal("failure close with code=401 must report IsLoggedOut=true")
	}
}

func TestRegisterProtocolHandlersRoutesMessageAndAck(t *testing.T) {
	c := newTestConnection(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.dispatcher.Run(ctx)

	c.registerProtocolHandlers()

	gotMessage := make(chan *Node, 1)
	gotAck := make(chan *Node, 1)
	c.SetOnMessage(func(n *Node) { gotMessage <- n })
	c.SetOnAck(func(n *Node) { gotAck <- n })

	c.dispatcher.Dispatch(&Node{Tag: "message", Attrs: map[string]string{"id": "m1"}})
	c.dispatcher.Dispatch(&Node{Tag: "ack", Attrs: map[string]string{"id": "a1"}})

	select {
	case n := <-gotMessage:
		if n.GetAttr("id") != "m1" {
			t.Errorf("message id = %q, want m1", n.GetAttr("id"))
		}
	case <-time.After(time.Second):
		t.Fatal("onMessage was not invoked")
	}

	select {
	case n := <-gotAck:
		if n.GetAttr("id") != "a1" {
			t.Errorf("ack id = %q, want a1", n.GetAttr("id"))
		}
	case <-time.After(time.Second):
		t.Fatal("onAck was not invoked")
	}
}

func TestHandleAuthSuccessPairsAndStartsKeepAlive(t *testing.T) {
	c := newTestConnection(t)
	if c.auth.IsPaired() {
		t.Fatal("precondition: auth state must start unpaired")
	}

	onReadyCalled := false
	c.SetOnReady(func() { onReadyCalled = true })

	c.handleAuthSuccess(&Node{Tag: "success", Attrs: map[string]string{"jid": "1234@s.whatsapp.net", "pushname": "Tester"}})
	defer c.keepAlive.Stop()

	if !c.auth.IsPaired() {
		t.Fatal("expected auth state to be paired after success")
	}
	if c.State() != StateAuthenticated {
		t.Fatalf("state = %v, want AUTHENTICATED", c.State())
	}
	if !onReadyCalled {
		t.Fatal("onReady callback was not invoked")
	}
	if c.keepAlive == nil {
		t.Fatal("expected keep-alive loop to be started")
	}
}

func TestDecodeFramePlaintext(t *testing.T) {
	c := newTestConnection(t)
	c.send, c.recv = newTestCipherPair(t)
	c.config.Codec = fakeNodeCodec{}

	plaintext := append([]byte{0x00}, []byte("iq")...)
	ciphertext, err := c.send.Seal(plaintext)
	if err != nil {
		t.Fatal(err)
	}

	n, err := c.decodeFrame(ciphertext)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if n.Tag != "iq" {
		t.Errorf("tag = %q, want %q", n.Tag, "iq")
	}
}

func TestSendNodeRejectsWhenNotAuthenticated(t *testing.T) {
	c := newTestConnection(t)

	err := c.SendNode(context.Background(), &Node{Tag: "iq", Attrs: map[string]string{"id": "1"}})
	if err == nil {
		t.Fatal("expected an error sending before authentication")
	}
	var notAuth *NotAuthenticatedError
	if !errors.As(err, &notAuth) {
		t.Fatalf("expected *NotAuthenticatedError, got %T: %v", err, err)
	}
	if notAuth.State != StateNew {
		t.Errorf("state = %v, want NEW", notAuth.State)
	}
}

func TestRequestNodeRejectsWhenNotAuthenticated(t *testing.T) {
	c := newTestConnection(t)

	resp, err := c.RequestNode(context.Background(), &Node{Tag: "iq"})
	if err == nil {
		t.Fatal("expected an error requesting before authentication")
	}
	if resp != nil {
		t.Fatal("expected a nil response alongside the precondition error")
	}
	var notAuth *NotAuthenticatedError
	if !errors.As(err, &notAuth) {
		t.Fatalf("expected *NotAuthenticatedError, got %T: %v", err, err)
	}
}

func TestCloseWithFailsOutstandingPendingRequests(t *testing.T) {
	c := newTestConnection(t)
	c.setState(StateAuthenticated)
	c.send, c.recv = newTestCipherPair(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.dispatcher.SendAndAwait(context.Background(), &Node{Tag: "iq", Attrs: map[string]string{"id": "pending-1"}}, func(n *Node) error {
			return nil
		})
		errCh <- err
	}()

	// Give SendAndAwait a chance to register its pending slot before closing.
	time.Sleep(10 * time.Millisecond)
	c.closeWith(nil)

	select {
	case err := <-errCh:
		var closed *ConnectionClosedError
		if !errors.As(err, &closed) {
			t.Fatalf("expected *ConnectionClosedError, got %T: %v", err, err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendAndAwait did not wake up after the connection closed")
	}
}

func TestDecodeFrameRejectsEmptyPlaintext(t *testing.T) {
	c := newTestConnection(t)
	c.send, c.recv = newTestCipherPair(t)

	ciphertext, err := c.send.Seal(nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.decodeFrame(ciphertext); err == nil {
		t.Fatal("expected an error for an empty decrypted frame")
	}
}
