package core

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/hkdf"
)

// noiseModeXX is the 32-byte protocol-name constant WhatsApp mixes in as the
// initial handshake hash, per §4.2. It is deliberately padded with trailing
// NUL bytes to exactly hashlen (32) so the symmetric state takes it
// verbatim instead of hashing it — a generic Noise library's
// InitializeSymmetric would derive this padding itself from the shorter
// name "Noise_XX_25519_AESGCM_SHA256"; we pin the padded constant directly
// so a careless refactor can't accidentally reintroduce the extra SHA-256
// pass. Getting this one byte string wrong desyncs the whole handshake with
// no diagnostic (§1), hence the dedicated KAT test in
// wa_symmetric_state_test.go.
var noiseModeXX = []byte("Noise_XX_25519_AESGCM_SHA256\x00\x00\x00\x00")

func init() {
	if len(noiseModeXX) != sha256.Size {
		panic("core: noiseModeXX must be exactly 32 bytes")
	}
}

// waSymmetricState is WhatsApp's vendor variant of the Noise symmetric
// state (§4.2 "WASymmetricState"). The one deviation from a textbook
// implementation that matters bit-for-bit: before the handshake completes
// and the state is split into two independent CipherStates, both
// EncryptAndHash and DecryptAndHash share a single nonce counter rather
// than each direction keeping its own. That is correct for XX's strictly
// alternating message order but is easy to get wrong by copying a generic
// two-counter CipherState implementation verbatim — see §9's warning against
// using an off-the-shelf Noise library without validating against the KAT.
type waSymmetricState struct {
	h      []byte // running handshake hash
	ck     []byte // chaining key
	key    []byte // current shared key, valid once hasKey is true
	nonce  uint64 // shared pre-split counter (the WA deviation)
	hasKey bool
}

func newWASymmetricState() *waSymmetricState {
	s := &waSymmetricState{
		h:  append([]byte(nil), noiseModeXX...),
		ck: append([]byte(nil), noiseModeXX...),
	}
	return s
}

func (s *waSymmetricState) MixHash(data []byte) {
	h := sha256.New()
	h.Write(s.h)
	h.Write(data)
	s.h = h.Sum(nil)
}

// MixKey derives a new chaining key and shared key from Diffie-Hellman
// output, resetting the shared nonce counter to zero (§4.2).
func (s *waSymmetricState) MixKey(dhOutput []byte) error {
	r := hkdf.New(sha256.New, dhOutput, s.ck, nil)
	out := make([]byte, 64)
	if _, err := r.Read(out); err != nil {
		return err
	}
	s.ck = out[:32]
	s.key = out[32:]
	s.nonce = 0
	s.hasKey = true
	return nil
}

func waNonce(counter uint64) [12]byte {
	var iv [12]byte
	binary.BigEndian.PutUint32(iv[8:], uint32(counter))
	return iv
}

func (s *waSymmetricState) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptAndHash seals plaintext (if a key has been established) with
// associated data = the running hash, then mixes the ciphertext into the
// hash. Before any MixKey call it is the Noise no-op: plaintext is mixed
// into the hash and returned unmodified.
func (s *waSymmetricState) EncryptAndHash(plaintext []byte) ([]byte, error) {
	if !s.hasKey {
		s.MixHash(plaintext)
		return append([]byte(nil), plaintext...), nil
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	iv := waNonce(s.nonce)
	s.nonce++
	ciphertext := gcm.Seal(nil, iv[:], plaintext, s.h)
	s.MixHash(ciphertext)
	return ciphertext, nil
}

// DecryptAndHash is EncryptAndHash's inverse.
func (s *waSymmetricState) DecryptAndHash(data []byte) ([]byte, error) {
	if !s.hasKey {
		s.MixHash(data)
		return append([]byte(nil), data...), nil
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	iv := waNonce(s.nonce)
	s.nonce++
	plaintext, err := gcm.Open(nil, iv[:], data, s.h)
	if err != nil {
		return nil, &AuthenticationFailedError{Reason: "noise handshake decrypt: " + err.Error()}
	}
	s.MixHash(data)
	return plaintext, nil
}

// Split derives the post-handshake send/recv CipherState pair from the
// final chaining key (standard Noise Split(), not part of the WA
// deviation). Each returned CipherState owns an independent nonce starting
// at zero (§3).
func (s *waSymmetricState) Split() (*CipherState, *CipherState) {
	r := hkdf.New(sha256.New, nil, s.ck, nil)
	out := make([]byte, 64)
	r.Read(out) //nolint:errcheck // HKDF-SHA256 with a fixed-size output never errors.

	send := &CipherState{key: append([]byte(nil), out[:32]...)}
	recv := &CipherState{key: append([]byte(nil), out[32:]...)}
	return send, recv
}
