// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"context"
	"time"

	"github.com/waconnect/waconnect-go/internal/authstate"
)

// Transport is the narrow send/receive surface the handshake driver needs
// from the websocket connection (§1 external interface boundary); Connection
// supplies the real nhooyr.io/websocket-backed implementation, letting the
// driver itself be tested without a live socket.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// HandshakeResult is everything the connection needs once the handshake
// completes: the split cipher pair and the verified server static key.
type HandshakeResult struct {
	Send         *CipherState
	Recv         *CipherState
	RemoteStatic []byte
}

// PerformHandshake drives the three-message Noise XX exchange of §4.4:
// ClientHello, await+verify ServerHello's embedded certificate, ClientFinish
// carrying the client payload (§4.8). Grounded on wamd's _waitServerHello /
// _sendClientHello / onServerHelloReceived sequencing (original_source).
func PerformHandshake(ctx context.Context, tr Transport, frames *FrameCodec, snap authstate.Snapshot, now func() time.Time) (*HandshakeResult, error) {
	staticKey := dhKeyPair{Public: snap.NoiseKey.Public, Private: snap.NoiseKey.Private}

	hs, err := NewHandshakeState(Prologue, staticKey)
	if err != nil {
		return nil, err
	}

	clientHello := EncodeClientHello(hs.WriteClientHello())
	if err := tr.Send(ctx, frames.EncodeFrame(clientHello)); err != nil {
		return nil, err
	}

	raw, err := tr.Receive(ctx)
	if err != nil {
		return nil, err
	}
	serverHelloMsg, err := DecodeHandshakeFrame(raw)
	if err != nil {
		return nil, err
	}
	serverHello, err := DecodeServerHello(serverHelloMsg)
	if err != nil {
		return nil, err
	}

	concat := make([]byte, 0, len(serverHello.Ephemeral)+len(serverHello.Static)+len(serverHello.Payload))
	concat = append(concat, serverHello.Ephemeral...)
	concat = append(concat, serverHello.Static...)
	concat = append(concat, serverHello.Payload...)

	certBytes, err := hs.ReadServerHello(concat)
	if err != nil {
		return nil, err
	}

	cert, err := DecodeNoiseCertificate(certBytes)
	if err != nil {
		return nil, err
	}
	if err := VerifyCertificate(cert, hs.RemoteStatic(), now()); err != nil {
		return nil, err
	}

	clientPayload, err := EncodeClientPayload(snap)
	if err != nil {
		return nil, err
	}

	encStatic, encPayload, send, recv, err := hs.WriteClientFinish(clientPayload)
	if err != nil {
		return nil, err
	}

	clientFinish := EncodeClientFinish(encStatic, encPayload)
	if err := tr.Send(ctx, frames.EncodeFrame(clientFinish)); err != nil {
		return nil, err
	}

	return &HandshakeResult{Send: send, Recv: recv, RemoteStatic: hs.RemoteStatic()}, nil
}
