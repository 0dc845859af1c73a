package client

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr-net"
)

// unboundedCapacity stands in for "no bound" when a Config bound is <= 0.
// golang-lru's Cache needs a positive size; this is large enough that no
// realistic probe-scheduler run will ever fill it, so it behaves as
// unbounded in practice.
const unboundedCapacity = 1 << 24

// addressEntry is one candidate external address and how much we trust it.
type addressEntry struct {
	addr   ma.Multiaddr
	score  uint64
	tested bool
	// seq records insertion order so the scheduler can break score ties
	// deterministically: oldest of equally-scored candidates wins.
	seq uint64
}

// AddressBook tracks candidate external addresses and how many times each
// has been independently observed. It is bounded via an LRU behind the
// scenes but is never observed to evict an address that would change a
// past confirmation decision, since confirmation is decided synchronously
// against the nonce ledger, not replayed later from the book.
//
// There's deliberately no separate "already tested" set alongside the
// per-entry tested flag: a second set tracking the same fact would just be
// another place for the two to drift, so tested is the single source of
// truth for "don't offer this address again".
type AddressBook struct {
	mu    sync.Mutex
	cache *lru.Cache
	seq   uint64
}

// NewAddressBook constructs an AddressBook bounded to capacity entries.
// capacity <= 0 means effectively unbounded.
func NewAddressBook(capacity int) *AddressBook {
	if capacity <= 0 {
		capacity = unboundedCapacity
	}
	c, err := lru.New(capacity)
	if err != nil {
		// Only returns an error for a non-positive size, which can't
		// happen given the clamp above.
		panic(err)
	}
	return &AddressBook{cache: c}
}

// Observe records a new source suggesting addr, incrementing its score
// and creating the entry untested if absent.
func (b *AddressBook) Observe(addr ma.Multiaddr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := addr.String()
	if v, ok := b.cache.Get(key); ok {
		e := v.(*addressEntry)
		e.score++
		return
	}
	b.seq++
	b.cache.Add(key, &addressEntry{addr: addr, score: 1, seq: b.seq})
}

// MarkTested sets tested=true for addr if an entry exists for it.
func (b *AddressBook) MarkTested(addr ma.Multiaddr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.cache.Get(addr.String()); ok {
		v.(*addressEntry).tested = true
	}
}

// candidateSnapshot is an immutable copy of an untested AddressBook entry,
// safe to sort and read outside the book's lock.
type candidateSnapshot struct {
	addr  ma.Multiaddr
	score uint64
	seq   uint64
}

// Untested returns a snapshot of every entry not yet marked tested.
func (b *AddressBook) Untested() []candidateSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []candidateSnapshot
	for _, key := range b.cache.Keys() {
		v, ok := b.cache.Peek(key)
		if !ok {
			continue
		}
		e := v.(*addressEntry)
		if !e.tested {
			out = append(out, candidateSnapshot{addr: e.addr, score: e.score, seq: e.seq})
		}
	}
	return out
}

// Empty reports whether the book holds no entries at all.
func (b *AddressBook) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Len() == 0
}

// AllTested reports whether every tracked entry is tested.
func (b *AddressBook) AllTested() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range b.cache.Keys() {
		v, ok := b.cache.Peek(key)
		if !ok {
			continue
		}
		if !v.(*addressEntry).tested {
			return false
		}
	}
	return true
}

// ConnRecord is the per-connection bookkeeping this package keeps: which
// peer owns the connection, whether it has announced AutoNAT server
// support on it, and whether the remote end looks local.
type ConnRecord struct {
	Peer            peer.ID
	SupportsAutonat bool
	IsLocal         bool
}

// NewConnRecord computes the derived IsLocal field once at connection
// setup, the same way the teacher's swarm_conn.go::newConnSetup computes
// and stashes derived per-connection state (remote public key lookup,
// stream-group membership) exactly once when a connection is wrapped.
func NewConnRecord(p peer.ID, endpoint network.ConnMultiaddrs) *ConnRecord {
	return &ConnRecord{
		Peer:    p,
		IsLocal: isLocalAddr(endpoint.RemoteMultiaddr()),
	}
}

// isLocalAddr reports whether addr is not globally routable.
func isLocalAddr(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	return !manet.IsPublicAddr(addr)
}

// ConnTable tracks one ConnRecord per open connection, keyed by connection
// id.
type ConnTable struct {
	mu      sync.Mutex
	records map[ConnID]*ConnRecord
}

// NewConnTable constructs an empty ConnTable.
func NewConnTable() *ConnTable {
	return &ConnTable{records: make(map[ConnID]*ConnRecord)}
}

// EnsureConnection inserts a record for conn if absent.
func (t *ConnTable) EnsureConnection(p peer.ID, conn ConnID, endpoint network.ConnMultiaddrs) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[conn]; ok {
		return
	}
	t.records[conn] = NewConnRecord(p, endpoint)
}

// Get returns the record for conn, if any.
func (t *ConnTable) Get(conn ConnID) (*ConnRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[conn]
	return r, ok
}

// SetSupport sets the supports_autonat flag on conn's record. ok is false
// if no such record exists; callers are expected to log that case rather
// than treat it as fatal, since a teardown racing the update is normal.
func (t *ConnTable) SetSupport(conn ConnID, supports bool) (ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[conn]
	if !ok {
		return false
	}
	r.SupportsAutonat = supports
	return true
}

// Remove deletes the record keyed by conn iff it also belongs to peer p
// (the key alone is already unique; the peer check guards against a
// caller error). It returns whether anything was removed.
func (t *ConnTable) Remove(p peer.ID, conn ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[conn]
	if !ok || r.Peer != p {
		return false
	}
	delete(t.records, conn)
	return true
}

// ClearSupportForPeer clears SupportsAutonat on every remaining record
// belonging to p, returning the number of records that were flipped and
// the number that were already server-capable across the whole table
// before the clear (useful for deciding whether the change is worth
// logging).
func (t *ConnTable) ClearSupportForPeer(p peer.ID) (changed, totalServersBefore int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		if r.SupportsAutonat {
			totalServersBefore++
		}
	}
	for _, r := range t.records {
		if r.Peer == p && r.SupportsAutonat {
			r.SupportsAutonat = false
			changed++
		}
	}
	return changed, totalServersBefore
}

// SupportingPeers returns a snapshot of (ConnID, peer.ID) pairs for every
// record currently flagged supports_autonat=true.
func (t *ConnTable) SupportingPeers() []struct {
	Conn ConnID
	Peer peer.ID
} {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []struct {
		Conn ConnID
		Peer peer.ID
	}
	for id, r := range t.records {
		if r.SupportsAutonat {
			out = append(out, struct {
				Conn ConnID
				Peer peer.ID
			}{Conn: id, Peer: r.Peer})
		}
	}
	return out
}

// ConnectionForSupportingPeer finds a connection id for p that currently
// has supports_autonat=true.
func (t *ConnTable) ConnectionForSupportingPeer(p peer.ID) (ConnID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, r := range t.records {
		if r.Peer == p && r.SupportsAutonat {
			return id, true
		}
	}
	return "", false
}

// NonceStatus is a NonceLedger entry's status.
type NonceStatus int

const (
	NoncePending NonceStatus = iota
	NonceReceived
)

// NonceLedger correlates dispatched nonces with inbound dial-backs. It is
// bounded the same way AddressBook is.
type NonceLedger struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewNonceLedger constructs a NonceLedger bounded to capacity entries.
// capacity <= 0 means effectively unbounded.
func NewNonceLedger(capacity int) *NonceLedger {
	if capacity <= 0 {
		capacity = unboundedCapacity
	}
	c, err := lru.New(capacity)
	if err != nil {
		panic(err)
	}
	return &NonceLedger{cache: c}
}

// Insert records nonce as Pending.
func (l *NonceLedger) Insert(nonce uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Add(nonce, NoncePending)
}

// MarkReceived flips nonce to Received if it is currently tracked,
// reporting whether it was found. An unknown nonce is the caller's cue to
// log and discard the dial-back rather than act on it.
func (l *NonceLedger) MarkReceived(nonce uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache.Get(nonce); !ok {
		return false
	}
	l.cache.Add(nonce, NonceReceived)
	return true
}

// IsReceived reports whether nonce is tracked and currently Received. A
// confirmation may only be accepted for a nonce that passes this check —
// it's the only proof the dial-back actually happened.
func (l *NonceLedger) IsReceived(nonce uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.cache.Get(nonce)
	return ok && v.(NonceStatus) == NonceReceived
}
