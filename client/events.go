package client

import (
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// ConnID is the connection identifier the host swarm assigns. It is
// opaque to this package, which never mints one itself.
type ConnID string

// SwarmEvent is the closed set of swarm-originated events this package
// consumes, dispatched by type switch rather than through a wide
// interface. Any event type not listed here is ignored by the router.
type SwarmEvent interface {
	isSwarmEvent()
}

// NewExternalAddrCandidate reports that some other subsystem believes
// addr might be one of this node's external addresses.
type NewExternalAddrCandidate struct {
	Addr ma.Multiaddr
}

// ExternalAddrConfirmed reports that addr has been confirmed reachable,
// by this package's own probing or by some other subsystem.
type ExternalAddrConfirmed struct {
	Addr ma.Multiaddr
}

// ConnectionEstablished reports a newly established connection.
// Endpoint exposes the addresses of the connection, matching the shape
// of network.ConnMultiaddrs in go-libp2p-core.
type ConnectionEstablished struct {
	Peer     peer.ID
	Conn     ConnID
	Endpoint network.ConnMultiaddrs
}

// ConnectionClosed reports that a connection has gone away.
type ConnectionClosed struct {
	Peer peer.ID
	Conn ConnID
}

// DialFailure reports a failed outbound dial attempt. Peer is nil (zero
// value, checked via PeerKnown) when the swarm could not attribute the
// failure to a known peer, in which case the router just ignores it.
type DialFailure struct {
	Peer      peer.ID
	PeerKnown bool
	Conn      ConnID
}

func (NewExternalAddrCandidate) isSwarmEvent() {}
func (ExternalAddrConfirmed) isSwarmEvent() {}
func (ConnectionEstablished) isSwarmEvent() {}
func (ConnectionClosed) isSwarmEvent() {}
func (DialFailure) isSwarmEvent() {}

// DialRequest is the wire payload handed to the dial-request handler; this
// package doesn't serialize it, leaving that to the handler.
type DialRequest struct {
	Nonce uint64
	Addrs []ma.Multiaddr
}

// TestEnd is the successful outcome of a completed test: the dial
// request that produced it, and the address the server claims it reached
// us on.
type TestEnd struct {
	Request       DialRequest
	ReachableAddr ma.Multiaddr
}

// StatusUpdate is the payload of a TestCompleted handler event.
type StatusUpdate struct {
	// TestedAddr is the address that was selected for testing. Nil if the
	// server responded with something this package can't attribute to an
	// address.
	TestedAddr ma.Multiaddr

	// BytesSent is the amount of data sent to the server; 0 if none was
	// required, otherwise in [30_000, 100_000] per the wire protocol.
	BytesSent int

	// Server names the peer that served the test, when known.
	Server      peer.ID
	ServerKnown bool

	// Err is nil on success, in which case Result carries the outcome; on
	// failure Err carries the error kind.
	Result *TestEnd
	Err    *ProbeError

	// ServerNoSupport signals the server has revoked AutoNAT support on
	// this connection.
	ServerNoSupport bool
}

// HandlerEvent is the closed sum type of messages the dial-back and
// dial-request handlers deliver back into this package.
type HandlerEvent struct {
	// Exactly one of DialBackNonce/RequestEvent is set.
	dialBackNonce uint64
	hasDialBack   bool

	requestEvent RequestEvent
	hasRequest   bool
}

// RequestEvent is the dial-request handler's half of HandlerEvent: either
// a PeerHasServerSupport signal or a completed test.
type RequestEvent struct {
	PeerHasServerSupport bool
	TestCompleted        *StatusUpdate
}

// DialBackEvent constructs a HandlerEvent carrying a bare nonce, as
// delivered by the dial-back handler.
func DialBackEvent(nonce uint64) HandlerEvent {
	return HandlerEvent{dialBackNonce: nonce, hasDialBack: true}
}

// RequestHandlerEvent constructs a HandlerEvent carrying a dial-request
// handler message.
func RequestHandlerEvent(ev RequestEvent) HandlerEvent {
	return HandlerEvent{requestEvent: ev, hasRequest: true}
}

// Event is the per-probe report emitted to the swarm.
type Event struct {
	TestedAddr ma.Multiaddr
	BytesSent  int
	Server     peer.ID
	Err        *ProbeError
}

// Directive is the closed set of outbound instructions this package
// enqueues for the swarm to deliver.
type Directive interface {
	isDirective()
}

// NotifyHandlerDirective asks the swarm to deliver payload to the
// specific connection's dial-request handler.
type NotifyHandlerDirective struct {
	Peer    peer.ID
	Conn    ConnID
	Payload DialRequest
}

// ConfirmAddrDirective tells the swarm addr is now confirmed reachable.
type ConfirmAddrDirective struct {
	Addr ma.Multiaddr
}

// GenerateEventDirective carries a user-visible Event out to the swarm.
type GenerateEventDirective struct {
	Event Event
}

func (NotifyHandlerDirective) isDirective() {}
func (ConfirmAddrDirective) isDirective() {}
func (GenerateEventDirective) isDirective() {}
