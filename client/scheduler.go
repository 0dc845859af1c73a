package client

import (
	"sort"

	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// scheduler runs one probe tick: eligibility checks, candidate selection,
// server selection, nonce allocation, and directive enqueueing.
type scheduler struct {
	cfg     Config
	rng     RNG
	books   *AddressBook
	conns   *ConnTable
	nonces  *NonceLedger
	backoff *serverBackoff
	metrics MetricsTracer
}

// selectCandidates builds the eligible list, sorts by score ascending,
// reverses, and takes the top MaxCandidates. Ties are broken by insertion
// order (oldest-first among equal scores) — arbitrary, but deterministic.
func (s *scheduler) selectCandidates() []ma.Multiaddr {
	entries := s.books.Untested()
	if len(entries) == 0 {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		// Newer entries sort lower so that, after the reverse below, the
		// oldest of equally-scored entries comes first.
		return entries[i].seq > entries[j].seq
	})
	// Reverse (highest score first, oldest first among equal scores),
	// then take the configured batch size.
	n := s.cfg.maxCandidates
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]ma.Multiaddr, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i].addr)
	}
	return out
}

// pickServer chooses one connection record with supports_autonat=true
// uniformly at random, skipping peers currently in the server backoff
// window.
func (s *scheduler) pickServer() (peer.ID, bool) {
	candidates := s.conns.SupportingPeers()
	if len(candidates) == 0 {
		return "", false
	}
	eligible := candidates[:0:0]
	for _, c := range candidates {
		if !s.backoff.Backoff(c.Peer) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		// Every known server is backed off; fall back to the full set
		// rather than stalling the scheduler entirely.
		eligible = candidates
	}
	chosen := eligible[s.rng.IntN(len(eligible))]
	return chosen.Peer, true
}

// tick runs one scheduler pass. It returns the directives to enqueue, or
// nil if there's no supporting server or no untested candidate to probe.
func (s *scheduler) tick() []Directive {
	supporting := s.conns.SupportingPeers()
	if len(supporting) == 0 {
		return nil
	}
	if s.books.Empty() || s.books.AllTested() {
		return nil
	}
	addrs := s.selectCandidates()
	if len(addrs) == 0 {
		return nil
	}
	serverPeer, ok := s.pickServer()
	if !ok {
		return nil
	}

	nonce := s.rng.Uint64()
	s.nonces.Insert(nonce)

	connID, ok := s.conns.ConnectionForSupportingPeer(serverPeer)
	if !ok {
		// The chosen server's supporting connection disappeared between
		// selection and dispatch (e.g. concurrent teardown reflected in
		// the same tick); produce no directive this tick rather than
		// notify a connection that's no longer there.
		return nil
	}

	if s.metrics != nil {
		s.metrics.ProbeDispatched()
	}

	return []Directive{
		NotifyHandlerDirective{
			Peer: serverPeer,
			Conn: connID,
			Payload: DialRequest{
				Nonce: nonce,
				Addrs: addrs,
			},
		},
	}
}
