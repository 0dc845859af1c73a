package client

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// PollResult is the outcome of one Poll call: either a Directive is
// Ready, or the caller should wait (Pending).
type PollResult struct {
	Directive Directive
	Ready     bool
}

// Behaviour is the address-candidate scheduler and dial-probe state
// machine. It owns no goroutines and does no I/O; it is driven
// exclusively through Poll by the enclosing host swarm event loop.
type Behaviour struct {
	cfg     Config
	clock   clock.Clock
	books   *AddressBook
	conns   *ConnTable
	nonces  *NonceLedger
	backoff *serverBackoff
	metrics MetricsTracer

	router    *router
	scheduler *scheduler

	pending  []Directive
	nextTick *clock.Timer
}

// New constructs a Behaviour using the real wall clock. rng must not be
// nil; see RNG's doc comment for why there is no package-level default.
// metrics may be nil, in which case observability is a no-op.
func New(rng RNG, cfg Config, metrics MetricsTracer) *Behaviour {
	return NewWithClock(rng, cfg, metrics, clock.New())
}

// NewWithClock is New with an injectable clock.Clock, the same
// benbjohnson/clock abstraction go-libp2p itself depends on for
// deterministic timer tests. Tests should pass a clock.NewMock() and
// advance it explicitly instead of sleeping real time.
func NewWithClock(rng RNG, cfg Config, metrics MetricsTracer, c clock.Clock) *Behaviour {
	if metrics == nil {
		metrics = noopMetricsTracer{}
	}
	books := NewAddressBook(cfg.maxTrackedAddresses)
	conns := NewConnTable()
	nonces := NewNonceLedger(cfg.maxTrackedNonces)
	backoff := &serverBackoff{}

	b := &Behaviour{
		cfg:     cfg,
		clock:   c,
		books:   books,
		conns:   conns,
		nonces:  nonces,
		backoff: backoff,
		metrics: metrics,
	}
	b.router = &router{
		books:   books,
		conns:   conns,
		nonces:  nonces,
		backoff: backoff,
		metrics: metrics,
		pending: &b.pending,
	}
	b.scheduler = &scheduler{
		cfg:     cfg,
		rng:     rng,
		books:   books,
		conns:   conns,
		nonces:  nonces,
		backoff: backoff,
		metrics: metrics,
	}
	b.nextTick = c.Timer(cfg.probeInterval)
	return b
}

// HandleSwarmEvent feeds one swarm event into the event router.
func (b *Behaviour) HandleSwarmEvent(ev SwarmEvent) {
	b.router.HandleSwarmEvent(ev)
}

// HandleHandlerEvent feeds one handler-originated event into the event
// router. peerID/connID identify the connection the message arrived on.
func (b *Behaviour) HandleHandlerEvent(peerID peer.ID, connID ConnID, ev HandlerEvent) {
	b.router.HandleHandlerEvent(peerID, connID, ev)
}

// ValidateAddr marks addr tested without probing it, for use when an
// address is confirmed by an out-of-band means.
func (b *Behaviour) ValidateAddr(addr ma.Multiaddr) {
	b.books.MarkTested(addr)
}

// Poll drains the directive queue first; if empty and the tick timer has
// elapsed, it runs one scheduler tick and retries; otherwise it reports
// Pending. It never blocks — the timer is polled via its channel in a
// non-blocking select, never awaited.
//
// ctx is accepted for interface parity with the host swarm's poll
// convention; this package does no blocking work, so it is never
// consulted for cancellation.
func (b *Behaviour) Poll(ctx context.Context) PollResult {
	if len(b.pending) > 0 {
		d := b.pending[0]
		b.pending = b.pending[1:]
		return PollResult{Directive: d, Ready: true}
	}

	tickFired := false
	select {
	case <-b.nextTick.C:
		tickFired = true
	default:
	}

	if tickFired {
		directives := b.scheduler.tick()
		b.pending = append(b.pending, directives...)
		b.nextTick.Reset(b.cfg.probeInterval)
		if len(b.pending) > 0 {
			d := b.pending[0]
			b.pending = b.pending[1:]
			return PollResult{Directive: d, Ready: true}
		}
	}
	return PollResult{}
}
