// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/waconnect/waconnect-go/internal/authstate"
)

// dhKeyPair is an X25519 static or ephemeral key pair.
type dhKeyPair struct {
	Private [32]byte
	Public  [32]byte
}

func generateDHKeyPair() (dhKeyPair, error) {
	var kp dhKeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return kp, err
	}
	curve25519.ScalarBaseMult(&kp.Public, &kp.Private)
	return kp, nil
}

// GenerateStaticKeyPair mints a fresh X25519 key pair in authstate's shape,
// used to provision a brand-new AuthState's noise key or signed identity key
// (§3) the first time a session is created.
func GenerateStaticKeyPair() (authstate.KeyPair, error) {
	kp, err := generateDHKeyPair()
	if err != nil {
		return authstate.KeyPair{}, err
	}
	return authstate.KeyPair{Public: kp.Public, Private: kp.Private}, nil
}

func dh(priv [32]byte, pub []byte) ([]byte, error) {
	var pubArr [32]byte
	copy(pubArr[:], pub)
	out, err := curve25519.X25519(priv[:], pubArr[:])
	if err != nil {
		return nil, &AuthenticationFailedError{Reason: "noise DH failed: " + err.Error()}
	}
	return out, nil
}

// HandshakeState drives the Noise XX pattern with fixed message tokens
// (e) / (e, ee, s, es) / (s, se), specialized to the single ciphersuite
// X25519/AES-GCM/SHA-256 this protocol uses (§4.2). Unlike a general-purpose
// Noise library there is no message-pattern table to walk: WhatsApp never
// negotiates a different pattern, so the three steps are written out
// explicitly, each one matching a step of the handshake driver in §4.4.
type HandshakeState struct {
	ss HandshakeSymmetricState
	s  dhKeyPair // our static (noise) keypair
	e  dhKeyPair // our ephemeral keypair
	rs []byte    // remote static public key, learned in step 2
	re []byte    // remote ephemeral public key, learned in step 2
}

// HandshakeSymmetricState is the subset of waSymmetricState the handshake
// driver depends on; kept as an interface so the KAT test in
// wa_symmetric_state_test.go can pin the concrete implementation
// independently of the handshake sequencing exercised here.
type HandshakeSymmetricState interface {
	MixHash(data []byte)
	MixKey(dhOutput []byte) error
	EncryptAndHash(plaintext []byte) ([]byte, error)
	DecryptAndHash(data []byte) ([]byte, error)
	Split() (*CipherState, *CipherState)
}

// NewHandshakeState initializes a fresh initiator handshake: mixes the
// prologue into the hash and generates a new ephemeral key pair. staticKey
// is the persistent AuthState noise key pair (§3).
func NewHandshakeState(prologue []byte, staticKey dhKeyPair) (*HandshakeState, error) {
	e, err := generateDHKeyPair()
	if err != nil {
		return nil, err
	}
	ss := newWASymmetricState()
	ss.MixHash(prologue)
	return &HandshakeState{ss: ss, s: staticKey, e: e}, nil
}

// WriteClientHello performs message 1, token (e): the ephemeral public key
// is mixed into the hash and returned verbatim (no key established yet, so
// there is nothing to encrypt).
func (h *HandshakeState) WriteClientHello() []byte {
	h.ss.MixHash(h.e.Public[:])
	return append([]byte(nil), h.e.Public[:]...)
}

// ReadServerHello performs message 2, tokens (e, ee, s, es), given the
// concatenated ephemeral‖encryptedStatic‖encryptedPayload buffer from
// ServerHello (§4.4). It returns the decrypted payload (the NoiseCertificate
// bytes, validated by the caller per §4.3).
func (h *HandshakeState) ReadServerHello(msg []byte) ([]byte, error) {
	if len(msg) < 32+48 {
		return nil, &MalformedFrameError{Message: "server hello shorter than ephemeral+encrypted static"}
	}
	re := msg[:32]
	h.re = append([]byte(nil), re...)
	h.ss.MixHash(h.re)

	eeShared, err := dh(h.e.Private, h.re)
	if err != nil {
		return nil, err
	}
	if err := h.ss.MixKey(eeShared); err != nil {
		return nil, err
	}

	staticCiphertext := msg[32 : 32+48]
	rs, err := h.ss.DecryptAndHash(staticCiphertext)
	if err != nil {
		return nil, err
	}
	h.rs = rs

	esShared, err := dh(h.e.Private, h.rs)
	if err != nil {
		return nil, err
	}
	if err := h.ss.MixKey(esShared); err != nil {
		return nil, err
	}

	payloadCiphertext := msg[32+48:]
	payload, err := h.ss.DecryptAndHash(payloadCiphertext)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// RemoteStatic returns the server static key learned from ServerHello,
// used by the certificate verifier (§4.3, "details.key byte-equals rs").
func (h *HandshakeState) RemoteStatic() []byte { return h.rs }

// WriteClientFinish performs message 3, tokens (s, se), encrypting the
// client's static public key and the given payload (the serialized
// ClientPayload protobuf from §4.8), then splits the symmetric state into
// the post-handshake cipher pair (§4.2's "output on completion").
func (h *HandshakeState) WriteClientFinish(payload []byte) (encryptedStatic, encryptedPayload []byte, send, recv *CipherState, err error) {
	encryptedStatic, err = h.ss.EncryptAndHash(h.s.Public[:])
	if err != nil {
		return nil, nil, nil, nil, err
	}

	seShared, err := dh(h.s.Private, h.re)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := h.ss.MixKey(seShared); err != nil {
		return nil, nil, nil, nil, err
	}

	encryptedPayload, err = h.ss.EncryptAndHash(payload)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	send, recv = h.ss.Split()
	return encryptedStatic, encryptedPayload, send, recv, nil
}
