// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package binaryxml implements the NodeCodec the core's transport depends
// on (§1, §6): WhatsApp's binary-XML encoding of a Node tree, built on a
// static token dictionary plus packed-string/byte-array length encodings.
// Adapted from the teacher's internal/core/binary.go BinaryNode codec,
// generalized to operate on *core.Node (tag/attrs/content) instead of a
// package-private type so the rest of the core can treat this package as
// the external collaborator §1 describes.
package binaryxml

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/waconnect/waconnect-go/internal/core"
)

// tagDictionary is WhatsApp's single-byte token table; an index into this
// slice substitutes for a length-prefixed string whenever the string is a
// known protocol token. Kept as the teacher's table verbatim since the
// token set is a wire-format constant, not something this transform changes.
var tagDictionary = []string{
	"", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "",
	"", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "",
	"", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "",
	"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "13", "14", "15",
	"16", "17", "18", "19", "20", "21", "22", "23", "24", "25", "26", "27", "28", "29", "30",
	"account", "ack", "action", "active", "add", "after", "all", "allow", "and", "android",
	"announce", "archive", "available", "battery", "before", "block", "body", "broadcast",
	"call", "call-creator", "call-id", "cancel", "caption", "chat", "child", "clear",
	"code", "composing", "config", "contact", "contacts", "count", "create", "creator",
	"decrypt", "delete", "demote", "description", "device", "devices", "disappearing",
	"done", "download", "edit", "elapsed", "encoding", "encrypt", "end", "ephemeral",
	"error", "event", "exit", "exposure", "failure", "false", "fan_out", "file",
	"filename", "format", "from", "full", "g.us", "get", "gif", "group", "groups",
	"hash", "height", "host", "id", "image", "in", "inactive", "index", "info",
	"interactive", "invite", "ios", "iq", "is", "item", "items", "jid", "keep",
	"key", "keyvalue", "keys", "kind", "large", "last", "leave", "limit",
	"linked", "list", "live", "location", "locked", "md", "media", "media_type",
	"member", "merry", "message", "messages", "meta", "mime", "mirror", "mms",
	"modify", "msg", "mute", "name", "network", "new", "news", "newsletter", "none",
	"not", "notification", "notify", "number", "of", "offline", "opt", "order", "out",
	"owner", "paid", "pairing", "participant", "participants", "paused", "phash",
	"phone", "photo", "picture", "pin", "pinned", "platform", "pn", "preview", "previous",
	"primary", "private", "promote", "props", "protocol", "push", "pushname", "query",
	"quit", "quote", "rate", "read", "reason", "receipt", "received", "recipient", "remove",
	"removed", "reply", "report", "request", "require", "reset", "resource", "result",
	"retry", "revoke", "s.whatsapp.net", "screen", "search", "sec", "secret", "seen",
	"selected", "self", "sender", "serial", "server", "session", "set", "settings",
	"sf", "shake", "share", "short", "side", "sig", "silent", "size", "sky", "slow",
	"smax", "smbiz", "source", "sponsor", "srcjid", "starred", "start", "status",
	"sticky", "storage", "store", "stop", "subject", "subscribe", "success", "sync",
	"system", "t", "tag", "taken", "target", "template", "terminate", "text", "thread",
	"ticket", "time", "timestamp", "to", "token", "true", "type", "unavailable", "undefined",
	"unique", "unknown", "unlock", "unread", "until", "update", "upgrade", "url", "user",
	"users", "v", "value", "version", "video", "voip", "wa", "web", "webp", "width",
	"write", "xmlns", "xmpp", "you", "years",
}

// Codec implements core.NodeCodec. The zero value is ready to use; it is
// stateless and safe for concurrent use by multiple Connections.
type Codec struct{}

// New returns a ready-to-use Codec.
func New() *Codec {
	return &Codec{}
}

// EncodeNode implements core.NodeCodec.
func (c *Codec) EncodeNode(n *core.Node) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := encodeNode(buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeNode implements core.NodeCodec.
func (c *Codec) DecodeNode(data []byte) (*core.Node, error) {
	reader := bytes.NewReader(data)
	return decodeNode(reader)
}

// asChildren normalizes a Node's content into a child slice when it holds
// either shape Node.Content documents for a child list: a lone *core.Node
// or an already-built []*core.Node.
func asChildren(content interface{}) ([]*core.Node, bool) {
	switch c := content.(type) {
	case []*core.Node:
		return c, true
	case *core.Node:
		return []*core.Node{c}, true
	default:
		return nil, false
	}
}

func encodeNode(buf *bytes.Buffer, node *core.Node) error {
	if node == nil {
		buf.WriteByte(0x00)
		return nil
	}

	numAttrs := len(node.Attrs)
	hasContent := node.Content != nil

	descriptor := numAttrs << 1
	if hasContent {
		descriptor |= 1
	}
	buf.WriteByte(byte(descriptor))

	encodeString(buf, node.Tag)

	for key, val := range node.Attrs {
		encodeString(buf, key)
		encodeString(buf, val)
	}

	if hasContent {
		// A lone *core.Node is accepted as shorthand for a single-element
		// child list — it encodes identically to []*core.Node{content} and
		// decodes back as such (see decodeNode), so the two forms are always
		// indistinguishable on the wire.
		if children, ok := asChildren(node.Content); ok {
			if len(children) >= 128 {
				return fmt.Errorf("binaryxml: child list for tag %q too long (%d)", node.Tag, len(children))
			}
			buf.WriteByte(byte(len(children)))
			for _, child := range children {
				if err := encodeNode(buf, child); err != nil {
					return err
				}
			}
		} else if b, ok := node.Content.([]byte); ok {
			encodeBytes(buf, b)
		} else {
			return fmt.Errorf("binaryxml: unsupported content type %T for tag %q", node.Content, node.Tag)
		}
	}

	return nil
}

func encodeString(buf *bytes.Buffer, s string) {
	for i, dictStr := range tagDictionary {
		if dictStr == s && dictStr != "" {
			buf.WriteByte(byte(i))
			return
		}
	}

	if len(s) < 128 {
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	} else {
		buf.WriteByte(0xFD)
		_ = binary.Write(buf, binary.BigEndian, uint16(len(s)))
		buf.WriteString(s)
	}
}

func encodeBytes(buf *bytes.Buffer, data []byte) {
	if len(data) < 256 {
		buf.WriteByte(byte(len(data)))
	} else {
		buf.WriteByte(0xFE)
		_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	}
	buf.Write(data)
}

func decodeNode(reader *bytes.Reader) (*core.Node, error) {
	descriptor, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if descriptor == 0x00 {
		return nil, nil
	}

	numAttrs := int(descriptor >> 1)
	hasContent := descriptor&1 == 1

	tag, err := decodeString(reader)
	if err != nil {
		return nil, err
	}

	var attrs map[string]string
	if numAttrs > 0 {
		attrs = make(map[string]string, numAttrs)
		for i := 0; i < numAttrs; i++ {
			key, err := decodeString(reader)
			if err != nil {
				return nil, err
			}
			val, err := decodeString(reader)
			if err != nil {
				return nil, err
			}
			attrs[key] = val
		}
	}

	node := &core.Node{Tag: tag, Attrs: attrs}

	if hasContent {
		marker, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}

		if marker < 128 {
			children := make([]*core.Node, marker)
			for i := range children {
				child, err := decodeNode(reader)
				if err != nil {
					return nil, err
				}
				children[i] = child
			}
			node.Content = children
		} else {
			if err := reader.UnreadByte(); err != nil {
				return nil, err
			}
			data, err := decodeBytes(reader)
			if err != nil {
				return nil, err
			}
			node.Content = data
		}
	}

	return node, nil
}

func decodeString(reader *bytes.Reader) (string, error) {
	b, err := reader.ReadByte()
	if err != nil {
		return "", err
	}

	if int(b) < len(tagDictionary) && tagDictionary[b] != "" {
		return tagDictionary[b], nil
	}

	var length int
	if b == 0xFD {
		var l uint16
		if err := binary.Read(reader, binary.BigEndian, &l); err != nil {
			return "", err
		}
		length = int(l)
	} else {
		length = int(b)
	}

	buf := make([]byte, length)
	if _, err := reader.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func decodeBytes(reader *bytes.Reader) ([]byte, error) {
	b, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var length int
	if b == 0xFE {
		var l uint32
		if err := binary.Read(reader, binary.BigEndian, &l); err != nil {
			return nil, err
		}
		length = int(l)
	} else {
		length = int(b)
	}

	buf := make([]byte, length)
	if _, err := reader.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
