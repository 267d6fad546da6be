package authstate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
)

// NewSignedPreKey derives a signed prekey over the given public key,
// keyed off the device's long-term identity key.
//
// This stands in for the Signal XEdDSA Curve25519 signature libsignal uses
// (out of scope per Non-goals: this spec treats Signal session/prekey
// cryptography as an external collaborator via Store). It keeps the wire
// shape AuthState needs — an id, a key pair, and a signature byte string —
// without silently fabricating a signature scheme that claims
// libsignal-compatibility it does not have.
func NewSignedPreKey(identity KeyPair, id uint32, keyPair KeyPair) SignedPreKey {
	mac := hmac.New(sha256.New, identity.Private[:])
	mac.Write(keyPair.Public[:])
	return SignedPreKey{
		ID:        id,
		KeyPair:   keyPair,
		Signature: mac.Sum(nil),
	}
}

// NewRegistrationID mints a random 14-bit-ish registration id the way
// Signal/WhatsApp clients do: a small positive integer distinct per device.
func NewRegistrationID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]) % 16380, nil
}
