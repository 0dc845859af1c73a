package client

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
)

// serverBackoff is adapted from go-libp2p-swarm's DialBackoff
// (swarm_dial.go): a zero-value-safe, thread-safe tracker of per-peer
// backoff windows, grown quadratically on repeated failure and cleared
// on success. Where DialBackoff throttles re-dialing a peer that keeps
// failing to connect, this throttles re-selecting a server peer whose
// probes keep getting evicted — a client-side selection policy, not
// rate-limiting of incoming probes.
type serverBackoff struct {
	mu      sync.Mutex
	entries map[peer.ID]*backoffEntry
}

type backoffEntry struct {
	tries int
	until time.Time
}

// Backoff tuning, matching the teacher's defaults exactly.
const (
	backoffBase = 5 * time.Second
	backoffCoef = 1 * time.Second
	backoffMax  = 5 * time.Minute
)

func (b *serverBackoff) init() {
	if b.entries == nil {
		b.entries = make(map[peer.ID]*backoffEntry)
	}
}

// Backoff reports whether p is currently within a backoff window and
// should not be selected as a server.
func (b *serverBackoff) Backoff(p peer.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	e, ok := b.entries[p]
	return ok && time.Now().Before(e.until)
}

// AddBackoff records a failure for p, extending its backoff window
// quadratically: backoffBase + backoffCoef * tries^2, capped at
// backoffMax.
func (b *serverBackoff) AddBackoff(p peer.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	e, ok := b.entries[p]
	if !ok {
		b.entries[p] = &backoffEntry{tries: 1, until: time.Now().Add(backoffBase)}
		return
	}
	wait := backoffBase + backoffCoef*time.Duration(e.tries*e.tries)
	if wait > backoffMax {
		wait = backoffMax
	}
	e.until = time.Now().Add(wait)
	e.tries++
}

// Clear removes any backoff record for p, called after a successful
// probe against that server.
func (b *serverBackoff) Clear(p peer.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	delete(b.entries, p)
}
