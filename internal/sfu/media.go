// Package sfu owns the real-time media session state for tactical voice
// rooms: routers, transports, producers and consumers, plus the reconciler
// that gates audio flow between every user pair as room state changes.
package sfu

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// Capabilities describes the codecs one side of a media session can handle.
// Consume requests are rejected when the client's capabilities do not
// intersect the router's.
type Capabilities struct {
	Codecs []string `json:"codecs"`
}

func (c Capabilities) Supports(mimeType string) bool {
	for _, codec := range c.Codecs {
		if codec == mimeType {
			return true
		}
	}
	return false
}

// Engine abstracts the media plane. The production implementation forwards
// RTP through pion; tests use an in-memory fake.
type Engine interface {
	// NewRouter creates the shared forwarding scope for one room.
	NewRouter(roomID string) (Router, error)
	Close() error
}

type Router interface {
	Capabilities() Capabilities
	CanConsume(caps Capabilities) bool
	NewTransport(dir Direction) (Transport, error)
	Close() error
}

// Transport is one client's network endpoint in a single direction.
// Closing a transport cascades to the producers and consumers it carries.
type Transport interface {
	ID() string
	Direction() Direction

	// Connect applies the client's SDP offer and returns the answer.
	Connect(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	// Answer applies the client's answer to a server-initiated
	// renegotiation offer.
	Answer(ctx context.Context, answer webrtc.SessionDescription) error

	// Producer blocks until the client's audio track arrives on a send
	// transport, or fails with the context's error.
	Producer(ctx context.Context) (Producer, error)

	// Consume attaches a producer's stream to a recv transport. The
	// returned consumer starts paused.
	Consume(ctx context.Context, p Producer) (Consumer, error)

	// OnNegotiationNeeded fires when adding a consumer requires a fresh
	// offer to be pushed to the client.
	OnNegotiationNeeded(fn func(offer webrtc.SessionDescription))

	// OnClosed fires once when the transport dies, whether from an
	// explicit Close or a transport-level failure.
	OnClosed(fn func())

	Close() error
}

// Producer is a single outbound audio stream owned by one user.
type Producer interface {
	ID() string

	// AudioLevel returns the most recently observed level in dBov
	// (0 is loudest, -127 silence). Used by the speaking monitor.
	AudioLevel() float64

	Close() error
}

// Consumer delivers one producer's stream to one listener. Pause and
// Resume are idempotent.
type Consumer interface {
	ID() string
	ProducerID() string
	Pause()
	Resume()
	Paused() bool
	Close() error
}
