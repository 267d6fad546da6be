// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"context"
	"strconv"
	"time"

	"github.com/waconnect/waconnect-go/internal/authstate"
)

// preKeyBatchSize is the number of prekeys uploaded per _uploadPreKeys call
// (wamd's generatePreKeys(nextPrekeyId, 10)).
const preKeyBatchSize = 10

// djbKeyType is the Signal curve type tag for X25519/DJB keys
// (wamd's curve.Curve.DJB_TYPE), sent alongside the identity key on upload.
const djbKeyType = 5

// Field numbers for ADVSignedDeviceIdentity (§6, the Details/
// ADVSignedDeviceIdentity message shape).
const (
	fieldDeviceIdentityDetails    = 1
	fieldDeviceIdentityAcctSigKey = 2
	fieldDeviceIdentityAcctSig    = 3
	fieldDeviceIdentityDeviceSig  = 4
)

// encodeSignedDeviceIdentity serializes AuthState.SignedDeviceIdent as an
// ADVSignedDeviceIdentity protobuf (wamd's _buildDeviceIdentityNode).
func encodeSignedDeviceIdentity(identity authstate.SignedDeviceIdentity) []byte {
	var buf []byte
	buf = append(buf, pbEncodeBytes(fieldDeviceIdentityDetails, identity.Details)...)
	buf = append(buf, pbEncodeBytes(fieldDeviceIdentityAcctSigKey, identity.AccountSignatureKey)...)
	buf = append(buf, pbEncodeBytes(fieldDeviceIdentityAcctSig, identity.AccountSignature)...)
	buf = append(buf, pbEncodeBytes(fieldDeviceIdentityDeviceSig, identity.DeviceSignature)...)
	return buf
}

// BuildDeviceIdentityNode encodes the paired device's signed identity as a
// <device-identity> node, attached to outgoing message nodes (wamd's
// _buildDeviceIdentityNode). Message composition itself is out of scope
// (Non-goals); this is plumbing only.
func BuildDeviceIdentityNode(identity authstate.SignedDeviceIdentity) *Node {
	return &Node{
		Tag:     "device-identity",
		Content: encodeSignedDeviceIdentity(identity),
	}
}

// BuildReadReceiptNode builds a <receipt type="read"> node for messageID
// from the peer jid (wamd's sendReadReceipt).
func BuildReadReceiptNode(messageID, from string) *Node {
	return &Node{
		Tag: "receipt",
		Attrs: map[string]string{
			"to":   from,
			"type": "read",
			"id":   messageID,
			"t":    strconv.FormatInt(time.Now().Unix(), 10),
		},
	}
}

// SendReadReceipt fires a read receipt for messageID, a one-line
// fire-and-forget helper on the connection, matching wamd's
// sendReadReceipt (errors are swallowed there too: "except: return
// fail(Failure())" with no further action against the connection).
func (c *Connection) SendReadReceipt(ctx context.Context, messageID, from string) error {
	return c.SendNode(ctx, BuildReadReceiptNode(messageID, from))
}

// UploadPreKeys generates and uploads a batch of prekeys (wamd's
// _uploadPreKeys), storing each through the session store before
// advertising it, and advances AuthState.NextPreKeyID by the batch size
// only after the upload succeeds.
func (c *Connection) UploadPreKeys(ctx context.Context) error {
	snap := c.auth.Snapshot()

	firstID := c.auth.NextPreKey()
	ids := make([]uint32, 0, preKeyBatchSize)
	ids = append(ids, firstID)
	for i := 1; i < preKeyBatchSize; i++ {
		ids = append(ids, c.auth.NextPreKey())
	}

	keyNodes := make([]*Node, 0, preKeyBatchSize)
	for _, id := range ids {
		kp, err := GenerateStaticKeyPair()
		if err != nil {
			return err
		}
		if err := c.auth.Store.StorePreKey(ctx, id, authstate.PreKey{ID: id, PublicKey: kp.Public[:]}); err != nil {
			return err
		}
		keyNodes = append(keyNodes, &Node{
			Tag: "key",
			Content: []*Node{
				{Tag: "id", Content: encodeInt(uint64(id), 3)},
				{Tag: "value", Content: append([]byte(nil), kp.Public[:]...)},
			},
		})
	}

	n := &Node{
		Tag: "iq",
		Attrs: map[string]string{
			"id":    c.idgen.Next(),
			"xmlns": "encrypt",
			"type":  "set",
			"to":    "@s.whatsapp.net",
		},
		Content: []*Node{
			{Tag: "registration", Content: encodeInt(uint64(snap.RegistrationID), 4)},
			{Tag: "type", Content: encodeInt(djbKeyType, 1)},
			{Tag: "identity", Content: append([]byte(nil), snap.SignedIdentityKey.Public[:]...)},
			{Tag: "list", Content: keyNodes},
			{
				Tag: "skey",
				Content: []*Node{
					{Tag: "id", Content: encodeInt(uint64(snap.SignedPreKey.ID), 3)},
					{Tag: "value", Content: append([]byte(nil), snap.SignedPreKey.KeyPair.Public[:]...)},
					{Tag: "signature", Content: append([]byte(nil), snap.SignedPreKey.Signature...)},
				},
			},
		},
	}

	_, err := c.RequestNode(ctx, n)
	return err
}

// RequestPreKeyBundles requests prekey bundles for the given jids
// (wamd's _requestPreKeyBundles) via an <iq xmlns="encrypt" type="get">
// wrapping a <key><user jid=.../></key> list, and parses the <list><user>
// reply into bundles. Processing a bundle is the session store's
// concern (§6); this only does the request/response plumbing.
func (c *Connection) RequestPreKeyBundles(ctx context.Context, jids []string) (map[string]authstate.PreKeyBundle, error) {
	userNodes := make([]*Node, 0, len(jids))
	for _, jid := range jids {
		userNodes = append(userNodes, &Node{Tag: "user", Attrs: map[string]string{"jid": jid}})
	}

	n := &Node{
		Tag: "iq",
		Attrs: map[string]string{
			"id":    c.idgen.Next(),
			"xmlns": "encrypt",
			"type":  "get",
			"to":    "@c.us",
		},
		Content: &Node{Tag: "key", Content: userNodes},
	}

	resp, err := c.RequestNode(ctx, n)
	if err != nil {
		return nil, err
	}

	list := resp.GetChild("list")
	if list == nil {
		return map[string]authstate.PreKeyBundle{}, nil
	}

	bundles := make(map[string]authstate.PreKeyBundle)
	for _, userNode := range list.Children() {
		if userNode.Tag != "user" {
			continue
		}
		jid := userNode.GetAttr("jid")
		bundles[jid] = parsePreKeyBundle(userNode)
	}
	return bundles, nil
}

// parsePreKeyBundle reads the <registration>/<type>/<identity>/<key>/<skey>
// children of a <user> node into a PreKeyBundle.
func parsePreKeyBundle(userNode *Node) authstate.PreKeyBundle {
	var bundle authstate.PreKeyBundle

	if regNode := userNode.GetChild("registration"); regNode != nil {
		if b, ok := regNode.Content.([]byte); ok {
			bundle.RegistrationID = uint32(decodeIntBytes(b))
		}
	}
	if identityNode := userNode.GetChild("identity"); identityNode != nil {
		if b, ok := identityNode.Content.([]byte); ok {
			bundle.IdentityKey = b
		}
	}
	if keyNode := userNode.GetChild("key"); keyNode != nil {
		for _, child := range keyNode.Children() {
			switch child.Tag {
			case "id":
				if b, ok := child.Content.([]byte); ok {
					bundle.PreKeyID = uint32(decodeIntBytes(b))
				}
			case "value":
				if b, ok := child.Content.([]byte); ok {
					bundle.PreKeyPublic = b
				}
			}
		}
	}
	if skeyNode := userNode.GetChild("skey"); skeyNode != nil {
		for _, child := range skeyNode.Children() {
			switch child.Tag {
			case "id":
				if b, ok := child.Content.([]byte); ok {
					bundle.SignedPreKeyID = uint32(decodeIntBytes(b))
				}
			case "value":
				if b, ok := child.Content.([]byte); ok {
					bundle.SignedPreKeyPublic = b
				}
			case "signature":
				if b, ok := child.Content.([]byte); ok {
					bundle.SignedPreKeySignature = b
				}
			}
		}
	}

	return bundle
}

// decodeIntBytes reverses encodeInt: a big-endian fixed-width integer.
func decodeIntBytes(b []byte) uint64 {
	var n uint64
	for _, by := range b {
		n = n<<8 | uint64(by)
	}
	return n
}
