package authstate

import "context"

// PreKey is the minimal shape the core needs to upload a prekey batch
// (§9 supplemented feature: prekey upload); the Signal prekey's internal
// representation is owned by the store, not by this package.
type PreKey struct {
	ID        uint32
	PublicKey []byte
}

// PreKeyBundle is the starter kit used to initiate a Signal ratchet session
// with a peer (§6, GLOSSARY). Field shapes mirror what §9's supplemented
// prekey-bundle-request feature parses out of a <list><user> reply.
type PreKeyBundle struct {
	RegistrationID        uint32
	DeviceID              uint32
	PreKeyID              uint32
	PreKeyPublic          []byte
	SignedPreKeyID        uint32
	SignedPreKeyPublic    []byte
	SignedPreKeySignature []byte
	IdentityKey           []byte
}

// Store is the opaque, async-capable Signal session store AuthState owns
// (§6 "Session store interface (external collaborator)"). The double
// ratchet session management and prekey-bundle processing this interface
// fronts are explicitly out of scope (§1); the core only ever calls through
// this narrow surface.
type Store interface {
	ContainsSession(ctx context.Context, user string, deviceID uint32) (bool, error)
	StorePreKey(ctx context.Context, id uint32, key PreKey) error
	ProcessPreKeyBundle(ctx context.Context, jid string, bundle PreKeyBundle) error
	Encrypt(ctx context.Context, plaintext []byte, recipient string) (msgType string, ciphertext []byte, err error)
}
