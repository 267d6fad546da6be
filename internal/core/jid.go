package core

import (
	"strconv"
	"strings"
)

// splitJID extracts the user and device components from a JID of the form
// "<user>:<device>@<server>" or plain "<user>@<server>" (device 0),
// mirroring wamd's splitJid helper (original_source) used by
// _buildClientPayloadHandshake and getSelfJid.
func splitJID(jid string) (user string, device int, err error) {
	at := strings.IndexByte(jid, '@')
	if at < 0 {
		return "", 0, &MalformedFrameError{Message: "jid missing '@': " + jid}
	}
	local := jid[:at]

	colon := strings.IndexByte(local, ':')
	if colon < 0 {
		return local, 0, nil
	}

	user = local[:colon]
	d, convErr := strconv.Atoi(local[colon+1:])
	if convErr != nil {
		return "", 0, &MalformedFrameError{Message: "jid has non-numeric device: " + jid}
	}
	return user, d, nil
}
