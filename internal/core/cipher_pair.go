package core

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"math"
)

// CipherState is the post-handshake one-way AEAD state described in §3: a
// 32-byte key and a 64-bit nonce that increases once per sealed or opened
// frame and must never wrap. Associated data is always empty for
// application frames (§4.2, §4.5).
type CipherState struct {
	key   []byte
	nonce uint64
}

// Nonce reports the current counter value (number of frames processed so
// far), used by tests asserting the monotonicity invariant in §8.
func (c *CipherState) Nonce() uint64 { return c.nonce }

func (c *CipherState) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with empty associated data and advances the
// nonce. It fails with DecryptionFailedError-shaped nonce exhaustion before
// ever wrapping (§3's "exhaustion is fatal").
func (c *CipherState) Seal(plaintext []byte) ([]byte, error) {
	if c.nonce == math.MaxUint64 {
		return nil, &DecryptionFailedError{Message: "send nonce exhausted"}
	}
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	iv := cipherNonce(c.nonce)
	ciphertext := gcm.Seal(nil, iv[:], plaintext, nil)
	c.nonce++
	return ciphertext, nil
}

// Open decrypts ciphertext sealed by the peer's matching CipherState and
// advances the nonce. Any AEAD failure is fatal per §4.5 and is reported as
// DecryptionFailedError.
func (c *CipherState) Open(ciphertext []byte) ([]byte, error) {
	if c.nonce == math.MaxUint64 {
		return nil, &DecryptionFailedError{Message: "recv nonce exhausted"}
	}
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	iv := cipherNonce(c.nonce)
	plaintext, err := gcm.Open(nil, iv[:], ciphertext, nil)
	if err != nil {
		return nil, &DecryptionFailedError{Message: err.Error()}
	}
	c.nonce++
	return plaintext, nil
}

// cipherNonce encodes a post-handshake 64-bit counter as a 12-byte GCM
// nonce: 4 zero bytes followed by the big-endian counter, matching the
// encoding used throughout the handshake's symmetric state (waNonce).
func cipherNonce(counter uint64) [12]byte {
	var iv [12]byte
	binary.BigEndian.PutUint64(iv[4:], counter)
	return iv
}
