// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"context"
	"time"
)

// KeepAliveInterval is the period between pings while AUTHENTICATED (§4.7),
// matching wamd's _startKeepAliveLoop(20, now=False).
const KeepAliveInterval = 20 * time.Second

// KeepAlive is an explicit start/stop timer handle, not a self-rescheduling
// closure (§9 design note): Stop is always safe to call, including after
// the loop has already exited on its own, and never races a concurrent
// Start for the same Connection because the caller owns one handle per
// AUTHENTICATED period.
type KeepAlive struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartKeepAlive begins calling ping once every KeepAliveInterval, with the
// first call deferred by a full interval (never immediately on entry to
// AUTHENTICATED, per §4.7 and the original's now=False). ping is expected to
// send an "iq"/"get"/"w:p" ping node and ignore the response; errors are
// swallowed the way the original's addErrback(lambda _: None) does, since a
// single failed keep-alive ping is not itself fatal to the connection.
func StartKeepAlive(ctx context.Context, ping func(ctx context.Context)) *KeepAlive {
	ctx, cancel := context.WithCancel(ctx)
	k := &KeepAlive{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(k.done)
		ticker := time.NewTicker(KeepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ping(ctx)
			}
		}
	}()

	return k
}

// Stop cancels the loop and waits for its goroutine to exit, so callers can
// rely on no further pings being sent once Stop returns (§5's deterministic
// cancellation-on-state-exit requirement).
func (k *KeepAlive) Stop() {
	if k == nil {
		return
	}
	k.cancel()
	<-k.done
}

// BuildPingNode constructs the ping IQ node §4.7 sends on each tick.
func BuildPingNode(id string) *Node {
	return &Node{
		Tag: "iq",
		Attrs: map[string]string{
			"id":    id,
			"to":    "@s.whatsapp.net",
			"type":  "get",
			"xmlns": "w:p",
		},
		Content: &Node{Tag: "ping"},
	}
}
