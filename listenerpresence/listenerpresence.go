// Package listenerpresence is a compact, fast way to check whether a
// given multi-layer address "matches" some already-listening local
// address, ignoring the protocol tags that don't change what transport
// stack is actually in play (DNS resolution variants, the bare IP
// family, and the trailing peer id).
//
// This is independent of the client package's probe state machine; it
// shares only the address-reasoning domain.
package listenerpresence

import (
	"strings"

	ma "github.com/multiformats/go-multiaddr"
)

// ignoredTags are the protocol tags excluded from a signature: DNS
// resolution variants, the bare IP family, and the trailing peer id all
// vary independently of the underlying transport stack.
var ignoredTags = map[string]struct{}{
	"dns":     {},
	"dns4":    {},
	"dns6":    {},
	"dnsaddr": {},
	"ip4":     {},
	"ip6":     {},
	"p2p":     {},
}

// sigSeparator joins protocol names into a single map key. No multiaddr
// protocol name contains '/', so this can't collide two different
// signatures onto the same string (Go has no built-in hashable slice
// type the way Rust's HashSet<Vec<&str>> does, so this is the
// equivalent encoding).
const sigSeparator = "/"

// signature returns the ordered list of protocol tags in addr, excluding
// ignoredTags, joined into a single comparable key.
func signature(addr ma.Multiaddr) string {
	var b strings.Builder
	for _, p := range addr.Protocols() {
		if _, ignored := ignoredTags[p.Name]; ignored {
			continue
		}
		b.WriteString(p.Name)
		b.WriteString(sigSeparator)
	}
	return b.String()
}

// Filter is a set of protocol-stack signatures, used to test whether a
// candidate address matches one of the local node's listen addresses.
type Filter struct {
	signatures map[string]struct{}
}

// New builds a Filter in bulk from addrs.
func New(addrs []ma.Multiaddr) *Filter {
	f := &Filter{signatures: make(map[string]struct{}, len(addrs))}
	for _, a := range addrs {
		f.signatures[signature(a)] = struct{}{}
	}
	return f
}

// Contains reports whether some previously inserted address has the same
// protocol-stack signature as addr.
func (f *Filter) Contains(addr ma.Multiaddr) bool {
	_, ok := f.signatures[signature(addr)]
	return ok
}
