package authstate

import (
	"context"
	"testing"
)

func TestMemoryStoreContainsSessionInitiallyFalse(t *testing.T) {
	m := NewMemoryStore()
	exists, err := m.ContainsSession(context.Background(), "user1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Fatal("fresh store must report no session")
	}
}

func TestMemoryStoreProcessPreKeyBundleEstablishesSession(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.ProcessPreKeyBundle(ctx, "peer@s.whatsapp.net", PreKeyBundle{RegistrationID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exists, err := m.ContainsSession(ctx, "peer@s.whatsapp.net", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("session must exist after processing a prekey bundle")
	}
}

func TestMemoryStoreSessionKeyDistinguishesDevices(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	// ProcessPreKeyBundle is keyed by the exact string callers pass as jid;
	// passing it in the same "user:device" shape ContainsSession's sessionKey
	// produces is what makes the two line up.
	if err := m.ProcessPreKeyBundle(ctx, "user1:5", PreKeyBundle{}); err != nil {
		t.Fatal(err)
	}

	existsDevice5, _ := m.ContainsSession(ctx, "user1", 5)
	existsDevice6, _ := m.ContainsSession(ctx, "user1", 6)
	existsNoDevice, _ := m.ContainsSession(ctx, "user1", 0)

	if !existsDevice5 {
		t.Fatal("expected session for device 5 after processing a bundle keyed \"user1:5\"")
	}
	if existsDevice6 || existsNoDevice {
		t.Fatal("unrelated device ids must not report a session")
	}
}

func TestMemoryStoreStorePreKeyIsIdempotentPerID(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.StorePreKey(ctx, 1, PreKey{ID: 1, PublicKey: []byte("a")}); err != nil {
		t.Fatal(err)
	}
	if err := m.StorePreKey(ctx, 1, PreKey{ID: 1, PublicKey: []byte("b")}); err != nil {
		t.Fatal(err)
	}
	if stored := m.preKeys[1]; string(stored.PublicKey) != "b" {
		t.Fatalf("expected last write to win, got %q", stored.PublicKey)
	}
}

func TestMemoryStoreEncryptReturnsPlainTaggedCiphertext(t *testing.T) {
	m := NewMemoryStore()
	msgType, ciphertext, err := m.Encrypt(context.Background(), []byte("hello"), "peer@s.whatsapp.net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != "plain" {
		t.Errorf("msgType = %q, want %q", msgType, "plain")
	}
	if string(ciphertext) != "hello" {
		t.Errorf("ciphertext = %q, want %q", ciphertext, "hello")
	}
}

func TestSessionKeyFormatsDeviceAsDecimal(t *testing.T) {
	if got := sessionKey("user1", 0); got != "user1" {
		t.Errorf("sessionKey(user1, 0) = %q, want %q", got, "user1")
	}
	if got := sessionKey("user1", 42); got != "user1:42" {
		t.Errorf("sessionKey(user1, 42) = %q, want %q", got, "user1:42")
	}
}
