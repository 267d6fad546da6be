package core

import "fmt"

// MalformedFrameError is returned when the frame codec sees a declared
// length it cannot satisfy, or a handshake buffer is truncated.
type MalformedFrameError struct {
	Message string
}

func (e *MalformedFrameError) Error() string { return "malformed frame: " + e.Message }

// DecryptionFailedError is returned on AEAD open failure or nonce
// exhaustion (§4.5). It is always connection-fatal.
type DecryptionFailedError struct {
	Message string
}

func (e *DecryptionFailedError) Error() string { return "decryption failed: " + e.Message }

// AuthenticationFailedError covers certificate checks, signature
// mismatches, key mismatches, expiry, and Noise read/write failures
// encountered during the handshake (§4.3, §4.4).
type AuthenticationFailedError struct {
	Reason string
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// NotAuthenticatedError is returned synchronously by SendNode/RequestNode
// when called before the connection has reached AUTHENTICATED (§5, §8
// scenario 5). No bytes are sent.
type NotAuthenticatedError struct {
	State ConnectionState
}

func (e *NotAuthenticatedError) Error() string {
	return "connection is not authenticated (state: " + e.State.String() + ")"
}

// NodeStreamError wraps a server-sent <failure>/<stream:error> tag. Code
// "401" means the device was logged out (§7).
type NodeStreamError struct {
	Code string
}

func (e *NodeStreamError) Error() string { return "node stream error: code " + e.Code }

// IsLoggedOut reports whether this stream error represents a logout.
func (e *NodeStreamError) IsLoggedOut() bool { return e.Code == "401" }

// ConnectionClosedError is the only error variant surfaced to embedders
// after a connection reaches CLOSED (§6, §7).
type ConnectionClosedError struct {
	IsLoggedOut bool
	IsAuthDone  bool
	Reason      string
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("connection closed: %s (loggedOut=%v authDone=%v)", e.Reason, e.IsLoggedOut, e.IsAuthDone)
}

// causeToClosedError maps a recorded failure cause to the ConnectionClosedError
// variant emitted on close, per §7's propagation policy.
func causeToClosedError(cause error) *ConnectionClosedError {
	switch e := cause.(type) {
	case nil:
		return &ConnectionClosedError{IsAuthDone: true, Reason: "Connection Closed Cleanly"}
	case *NodeStreamError:
		if e.IsLoggedOut() {
			return &ConnectionClosedError{IsLoggedOut: true, IsAuthDone: true, Reason: "Device Logged Out"}
		}
		return &ConnectionClosedError{IsAuthDone: true, Reason: "Unhandled Stream Error"}
	case *AuthenticationFailedError:
		return &ConnectionClosedError{IsAuthDone: false, Reason: "Authentication Failed: " + e.Reason}
	default:
		return &ConnectionClosedError{IsAuthDone: true, Reason: "Unknown Failure: " + cause.Error()}
	}
}

// StreamEnd is the internal-only sentinel signaling a tolerated
// end-of-stream during node decode (§4.1). It never escapes the core
// package's decode path.
type streamEndError struct{}

func (streamEndError) Error() string { return "stream end" }

var errStreamEnd = streamEndError{}
