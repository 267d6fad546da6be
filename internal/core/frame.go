package core

import "encoding/binary"

// Prologue is the fixed byte string both peers mix into the Noise handshake
// hash and that prefixes the very first outbound websocket frame of a
// connection (§4.1, §4.2). "WA" + protocol version 6 + dictionary version 3,
// matching the teacher's WANoiseHeader constant.
var Prologue = []byte{'W', 'A', 6, 3}

// FlagCompressed marks the first plaintext byte after AEAD-open as
// indicating the remainder is deflate-compressed (§4.1).
const FlagCompressed = 0x02

// len24 encodes n as a big-endian 24-bit integer, panicking if n does not
// fit (callers only ever pass AEAD-sealed payload lengths, which are bounded
// well under 2^24 by the transport).
func len24(n int) [3]byte {
	if n < 0 || n > 0xFFFFFF {
		panic("core: frame length does not fit in 24 bits")
	}
	var b [3]byte
	b[0] = byte(n >> 16)
	binary.BigEndian.PutUint16(b[1:], uint16(n))
	return b
}

func readLen24(b []byte) int {
	return int(b[0])<<16 | int(binary.BigEndian.Uint16(b[1:3]))
}

// FrameCodec implements the 3-byte length-prefixed framing of §4.1. It
// tracks whether the prologue has already been emitted for this connection
// and buffers partial inbound data across websocket binary messages, since
// a single message may contain multiple concatenated frames and a frame may
// (in principle) span messages.
type FrameCodec struct {
	wroteFirstFrame bool
	inbound         []byte
}

// NewFrameCodec returns a codec ready for a fresh connection (prologue not
// yet sent).
func NewFrameCodec() *FrameCodec {
	return &FrameCodec{}
}

// EncodeFrame wraps payload in a length prefix, prepending the prologue if
// this is the first frame ever encoded by this codec (§4.1's "only the
// first outbound frame of a new connection" rule).
func (f *FrameCodec) EncodeFrame(payload []byte) []byte {
	prefix := len24(len(payload))
	var out []byte
	if !f.wroteFirstFrame {
		out = make([]byte, 0, len(Prologue)+3+len(payload))
		out = append(out, Prologue...)
		f.wroteFirstFrame = true
	} else {
		out = make([]byte, 0, 3+len(payload))
	}
	out = append(out, prefix[:]...)
	out = append(out, payload...)
	return out
}

// Feed appends newly received websocket binary-message bytes and returns
// every complete length-prefixed frame now available, in arrival order.
// Declared lengths that exceed the buffered remainder simply wait for more
// data (no error) — MalformedFrame is reserved for lengths that could never
// be satisfied within a single websocket message, per EncodeFrame's
// one-frame-per-message contract on the wire; since we buffer across
// messages there is no finite bound to treat as malformed here, so Feed
// never itself fails. Truncation is instead detected by the handshake
// driver, which processes a single inbound message directly and does need a
// hard error (see DecodeHandshakeFrame).
func (f *FrameCodec) Feed(data []byte) [][]byte {
	f.inbound = append(f.inbound, data...)

	var frames [][]byte
	for len(f.inbound) >= 3 {
		n := readLen24(f.inbound)
		if len(f.inbound) < 3+n {
			break
		}
		frame := make([]byte, n)
		copy(frame, f.inbound[3:3+n])
		f.inbound = f.inbound[3+n:]
		frames = append(frames, frame)
	}
	return frames
}

// DecodeHandshakeFrame strips a single length prefix from a raw (unframed
// multiplicity) handshake message buffer, failing with MalformedFrame if
// the declared length overruns the buffer. Used only for ClientHello/
// ServerHello/ClientFinish exchange, where exactly one frame is expected
// per inbound websocket message (§4.4).
func DecodeHandshakeFrame(data []byte) ([]byte, error) {
	if len(data) < 3 {
		return nil, &MalformedFrameError{Message: "handshake frame shorter than length prefix"}
	}
	n := readLen24(data)
	if len(data) < 3+n {
		return nil, &MalformedFrameError{Message: "declared length exceeds buffer"}
	}
	return data[3 : 3+n], nil
}
