// Package broadcast pushes encoded readings to a connected peer.
package broadcast

import (
	"context"

	"airsense/internal/codec"
)

// ConnectionHandler receives peer connection edges. Transports call it from
// their own goroutine or interrupt context, never from the controller's tick.
type ConnectionHandler interface {
	OnConnect()
	OnDisconnect()
}

// Channel is the publishing side the controller drives.
type Channel interface {
	// Publish is best effort: it is a no-op without a peer and never retries.
	Publish(ch codec.Channel, payload []byte) error
	IsPeerConnected() bool
	// RearmAdvertising makes the node discoverable again after a disconnect.
	RearmAdvertising() error
}

// Transport is a Channel with a lifecycle.
type Transport interface {
	Channel
	Start(ctx context.Context, h ConnectionHandler) error
	Close() error
}

// Noop is the transport of a sensor-only build.
type Noop struct{}

func (Noop) Publish(codec.Channel, []byte) error            { return nil }
func (Noop) IsPeerConnected() bool                          { return false }
func (Noop) RearmAdvertising() error                        { return nil }
func (Noop) Start(context.Context, ConnectionHandler) error { return nil }
func (Noop) Close() error                                   { return nil }
