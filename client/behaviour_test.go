package client

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drivePoll advances the mock clock by d and returns every
// directive Poll produces until it goes Pending, in order.
func drivePoll(t *testing.T, b *Behaviour, c *clock.Mock, d time.Duration) []Directive {
	t.Helper()
	c.Add(d)
	var out []Directive
	for {
		res := b.Poll(context.Background())
		if !res.Ready {
			break
		}
		out = append(out, res.Directive)
	}
	return out
}

// TestHappyPathConfirmsAddress drives a full round trip end to end: a
// supporting server, two candidates with distinct scores, a nonce that
// comes back on the wire, then a success report — ends in
// ExternalAddrConfirmed followed by a GenerateEvent.
func TestHappyPathConfirmsAddress(t *testing.T) {
	cfg := DefaultConfig().WithMaxCandidates(2).WithProbeInterval(time.Second)
	mock := clock.NewMock()
	b := NewWithClock(&fixedRNG{nonce: 42}, cfg, nil, mock)

	p := somePeer(t, 1)
	ep := fakeEndpoint{remote: mustAddr(t, "/ip4/9.9.9.9/tcp/4001")}
	b.HandleSwarmEvent(ConnectionEstablished{Peer: p, Conn: "c1", Endpoint: ep})
	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{PeerHasServerSupport: true}))

	a1 := mustAddr(t, "/ip4/1.1.1.1/tcp/1")
	a2 := mustAddr(t, "/ip4/2.2.2.2/tcp/2")
	b.HandleSwarmEvent(NewExternalAddrCandidate{Addr: a1})
	b.HandleSwarmEvent(NewExternalAddrCandidate{Addr: a1})
	b.HandleSwarmEvent(NewExternalAddrCandidate{Addr: a1})
	b.HandleSwarmEvent(NewExternalAddrCandidate{Addr: a2})

	directives := drivePoll(t, b, mock, time.Second)
	require.Len(t, directives, 1)
	notify, ok := directives[0].(NotifyHandlerDirective)
	require.True(t, ok)
	assert.Equal(t, p, notify.Peer)
	assert.Equal(t, ConnID("c1"), notify.Conn)
	assert.EqualValues(t, 42, notify.Payload.Nonce)
	require.Len(t, notify.Payload.Addrs, 2)
	assert.True(t, notify.Payload.Addrs[0].Equal(a1))

	b.HandleHandlerEvent(p, "c1", DialBackEvent(42))
	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{
		TestCompleted: &StatusUpdate{
			TestedAddr: a1,
			Server:     p,
			Result: &TestEnd{
				Request:       notify.Payload,
				ReachableAddr: a1,
			},
		},
	}))

	results := drivePoll(t, b, mock, 0)
	require.Len(t, results, 2)
	confirm, ok := results[0].(ConfirmAddrDirective)
	require.True(t, ok)
	assert.True(t, confirm.Addr.Equal(a1))
	genEvent, ok := results[1].(GenerateEventDirective)
	require.True(t, ok)
	assert.Nil(t, genEvent.Event.Err)
}

// TestForgedConfirmationIsRejected covers a TestCompleted success report
// arriving without the dial-back ever having been observed: no
// confirmation is produced, only a GenerateEvent.
func TestForgedConfirmationIsRejected(t *testing.T) {
	cfg := DefaultConfig().WithMaxCandidates(2).WithProbeInterval(time.Second)
	mock := clock.NewMock()
	b := NewWithClock(&fixedRNG{nonce: 42}, cfg, nil, mock)

	p := somePeer(t, 1)
	ep := fakeEndpoint{remote: mustAddr(t, "/ip4/9.9.9.9/tcp/4001")}
	b.HandleSwarmEvent(ConnectionEstablished{Peer: p, Conn: "c1", Endpoint: ep})
	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{PeerHasServerSupport: true}))

	a1 := mustAddr(t, "/ip4/1.1.1.1/tcp/1")
	b.HandleSwarmEvent(NewExternalAddrCandidate{Addr: a1})

	directives := drivePoll(t, b, mock, time.Second)
	require.Len(t, directives, 1)
	notify := directives[0].(NotifyHandlerDirective)

	// Skip the dial-back entirely; go straight to a forged success report.
	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{
		TestCompleted: &StatusUpdate{
			TestedAddr: a1,
			Server:     p,
			Result: &TestEnd{
				Request:       notify.Payload,
				ReachableAddr: a1,
			},
		},
	}))

	results := drivePoll(t, b, mock, 0)
	require.Len(t, results, 1)
	_, ok := results[0].(GenerateEventDirective)
	assert.True(t, ok, "no ConfirmAddrDirective may be produced without an observed dial-back")
}

// TestServerEvictedOnInvalidResponse confirms an invalid-response error
// tears down the server's connection record and places it in backoff.
func TestServerEvictedOnInvalidResponse(t *testing.T) {
	cfg := DefaultConfig()
	mock := clock.NewMock()
	b := NewWithClock(&fixedRNG{nonce: 7}, cfg, nil, mock)

	p := somePeer(t, 1)
	ep := fakeEndpoint{remote: mustAddr(t, "/ip4/9.9.9.9/tcp/4001")}
	b.HandleSwarmEvent(ConnectionEstablished{Peer: p, Conn: "c1", Endpoint: ep})
	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{PeerHasServerSupport: true}))

	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{
		TestCompleted: &StatusUpdate{
			Server: p,
			Err:    KindError(ErrInvalidResponse),
		},
	}))

	_, ok := b.conns.Get("c1")
	assert.False(t, ok, "the misbehaving server's connection record must be torn down")
	assert.True(t, b.backoff.Backoff(p), "the evicted server must not be picked again immediately")
}

// TestAddressBlacklistedOnDialBackFailure confirms a
// FailureDuringDialBack names the address that failed, which must never
// be offered again, while the server itself remains usable.
func TestAddressBlacklistedOnDialBackFailure(t *testing.T) {
	cfg := DefaultConfig().WithProbeInterval(time.Second)
	mock := clock.NewMock()
	b := NewWithClock(&fixedRNG{nonce: 7}, cfg, nil, mock)

	p := somePeer(t, 1)
	ep := fakeEndpoint{remote: mustAddr(t, "/ip4/9.9.9.9/tcp/4001")}
	b.HandleSwarmEvent(ConnectionEstablished{Peer: p, Conn: "c1", Endpoint: ep})
	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{PeerHasServerSupport: true}))

	a1 := mustAddr(t, "/ip4/1.1.1.1/tcp/1")
	b.HandleSwarmEvent(NewExternalAddrCandidate{Addr: a1})

	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{
		TestCompleted: &StatusUpdate{
			Server: p,
			Err:    AddrError(ErrFailureDuringDialBack, a1),
		},
	}))

	assert.True(t, b.books.AllTested(), "the failed address must be excluded from future batches")
	_, ok := b.conns.Get("c1")
	assert.True(t, ok, "the server connection must survive a single bad address")

	// A subsequent tick has nothing left to offer, so no directive fires.
	directives := drivePoll(t, b, mock, time.Second)
	assert.Empty(t, directives)
}

// TestNoProbeWithoutSupportingConnection confirms that when candidates
// exist but no connection has ever reported AutoNAT support, ticking
// must never produce a directive.
func TestNoProbeWithoutSupportingConnection(t *testing.T) {
	cfg := DefaultConfig().WithProbeInterval(time.Second)
	mock := clock.NewMock()
	b := NewWithClock(&fixedRNG{nonce: 7}, cfg, nil, mock)

	p := somePeer(t, 1)
	ep := fakeEndpoint{remote: mustAddr(t, "/ip4/9.9.9.9/tcp/4001")}
	b.HandleSwarmEvent(ConnectionEstablished{Peer: p, Conn: "c1", Endpoint: ep})

	b.HandleSwarmEvent(NewExternalAddrCandidate{Addr: mustAddr(t, "/ip4/1.1.1.1/tcp/1")})

	directives := drivePoll(t, b, mock, time.Second)
	assert.Empty(t, directives)
}

// TestValidateAddrBypassesProbing exercises the out-of-band confirmation
// path: an address marked tested directly is never offered to a server.
func TestValidateAddrBypassesProbing(t *testing.T) {
	cfg := DefaultConfig().WithProbeInterval(time.Second)
	mock := clock.NewMock()
	b := NewWithClock(&fixedRNG{nonce: 7}, cfg, nil, mock)

	p := somePeer(t, 1)
	ep := fakeEndpoint{remote: mustAddr(t, "/ip4/9.9.9.9/tcp/4001")}
	b.HandleSwarmEvent(ConnectionEstablished{Peer: p, Conn: "c1", Endpoint: ep})
	b.HandleHandlerEvent(p, "c1", RequestHandlerEvent(RequestEvent{PeerHasServerSupport: true}))

	a1 := mustAddr(t, "/ip4/1.1.1.1/tcp/1")
	b.HandleSwarmEvent(NewExternalAddrCandidate{Addr: a1})
	b.ValidateAddr(a1)

	directives := drivePoll(t, b, mock, time.Second)
	assert.Empty(t, directives, "an address confirmed out-of-band must not be probed again")
}
