package core

// Node is the application PDU carried over the encrypted transport once the
// Noise handshake completes. Its shape mirrors WhatsApp's binary-XML element:
// a tag, an unordered attribute map, and content that is either raw bytes, a
// single child Node, or an ordered list of children.
//
// The binary-XML wire encoding itself is an external collaborator (see
// NodeCodec) — this type only describes the decoded shape the rest of the
// core operates on.
type Node struct {
	Tag     string
	Attrs   map[string]string
	Content interface{} // nil, []byte, *Node, or []*Node
}

// ID returns the node's "id" attribute, used for request/response
// correlation (§4.6). Empty string if absent.
func (n *Node) ID() string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return n.Attrs["id"]
}

// GetAttr returns an attribute value, or "" if the node or attribute is nil.
func (n *Node) GetAttr(key string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return n.Attrs[key]
}

// Children returns the node's content as a child slice. A single-child
// Content is returned as a one-element slice; byte content or nil yields an
// empty slice.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	switch c := n.Content.(type) {
	case []*Node:
		return c
	case *Node:
		return []*Node{c}
	default:
		return nil
	}
}

// GetChild returns the first child with the given tag, or nil.
func (n *Node) GetChild(tag string) *Node {
	for _, c := range n.Children() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// Bytes returns the node's content interpreted as raw bytes, or nil.
func (n *Node) Bytes() []byte {
	if n == nil {
		return nil
	}
	b, _ := n.Content.([]byte)
	return b
}

// NodeCodec is the narrow interface through which the core consumes the
// binary-XML node reader/writer. That codec's design (WhatsApp's token
// dictionary, packed-string/byte-array encodings) is out of scope for this
// spec (§1); the core only needs to encode a Node to bytes and decode bytes
// back to a Node, tolerating an end-of-stream sentinel by returning a nil
// Node and nil error (§4.1).
type NodeCodec interface {
	EncodeNode(n *Node) ([]byte, error)
	DecodeNode(data []byte) (*Node, error)
}
