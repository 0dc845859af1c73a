// Package client implements the client side of the AutoNAT v2 address
// reachability protocol: tracking candidate external addresses, probing
// them against cooperating peers, and surfacing confirmed addresses back
// to the host swarm.
//
// The Behaviour type never blocks and owns no goroutines. It is driven
// exclusively by its caller through Poll, and reports work to do through
// the small set of directive types in events.go. This mirrors the
// cooperatively-scheduled network behaviour style used throughout
// go-libp2p: a behaviour is a pure state machine that the swarm polls.
package client
