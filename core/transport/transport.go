// Package transport defines the duplex byte stream a session talks to the
// model over. Each frame is one JSON encoded event.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the transport is closed,
// locally or by the peer.
var ErrClosed = errors.New("transport closed")

type Transport interface {
	// Send writes one frame. Calls are serialized by the session.
	Send(ctx context.Context, frame []byte) error
	// Receive blocks until the next frame arrives, the context is done or the
	// transport fails.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a new transport for each session.
type Dialer func(ctx context.Context) (Transport, error)
