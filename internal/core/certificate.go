package core

import (
	"bytes"
	"time"

	"golang.org/x/crypto/ed25519"
)

// CertificateIssuer is the protocol-defined issuer string ServerHello's
// embedded certificate must carry (§4.3, step 1).
const CertificateIssuer = "WhatsAppLongTerm"

// WhatsAppLongTermPublicKey is the hard-coded Ed25519-on-Curve25519 public
// key the certificate signature is verified against (§4.3, step 2). This is
// a protocol constant pinned by the server operator, not a secret; a real
// deployment would vendor the production key here. Kept as a var (not
// const) so tests can substitute a key they control.
var WhatsAppLongTermPublicKey = make([]byte, ed25519.PublicKeySize)

// CertificateDetails mirrors the protobuf Details{issuer, key, expires}
// message (§6); Expires is a pointer so its optionality (step 4 only
// applies "if present") is representable.
type CertificateDetails struct {
	Issuer  string
	Key     []byte
	Expires *int64
}

// NoiseCertificate mirrors NoiseCertificate{details, signature} (§6).
// RawDetails is kept alongside the parsed Details because the signature in
// §4.3 step 2 is verified over the raw encoded bytes, not a re-serialization
// of the parsed struct.
type NoiseCertificate struct {
	RawDetails []byte
	Details    CertificateDetails
	Signature  []byte
}

// VerifyCertificate runs the four checks of §4.3 in order, failing with
// AuthenticationFailedError on the first one that does not hold. rs is the
// server static key extracted by the handshake (HandshakeState.RemoteStatic).
func VerifyCertificate(cert *NoiseCertificate, rs []byte, now time.Time) error {
	if cert.Details.Issuer != CertificateIssuer {
		return &AuthenticationFailedError{Reason: "noise certificate issued by unknown source: " + cert.Details.Issuer}
	}

	if !ed25519.Verify(WhatsAppLongTermPublicKey, cert.RawDetails, cert.Signature) {
		return &AuthenticationFailedError{Reason: "invalid signature on noise certificate"}
	}

	if !bytes.Equal(cert.Details.Key, rs) {
		return &AuthenticationFailedError{Reason: "noise certificate key does not match proposed server static key"}
	}

	if cert.Details.Expires != nil && *cert.Details.Expires <= now.Unix() {
		return &AuthenticationFailedError{Reason: "noise certificate expired"}
	}

	return nil
}
