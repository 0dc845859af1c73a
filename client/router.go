package client

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p-core/peer"
)

var log = logging.Logger("autonatv2")

// router dispatches swarm and handler events into the three tables,
// deciding what directives they produce, and appending those to pending.
type router struct {
	books   *AddressBook
	conns   *ConnTable
	nonces  *NonceLedger
	backoff *serverBackoff
	metrics MetricsTracer
	pending *[]Directive
}

func (r *router) emit(d Directive) {
	*r.pending = append(*r.pending, d)
}

// HandleSwarmEvent dispatches one of the closed set of SwarmEvent types.
// Anything not in the switch is ignored.
func (r *router) HandleSwarmEvent(ev SwarmEvent) {
	switch e := ev.(type) {
	case NewExternalAddrCandidate:
		r.books.Observe(e.Addr)
	case ExternalAddrConfirmed:
		r.books.MarkTested(e.Addr)
	case ConnectionEstablished:
		r.conns.EnsureConnection(e.Peer, e.Conn, e.Endpoint)
	case ConnectionClosed:
		r.handleNoConnection(e.Peer, e.Conn)
	case DialFailure:
		if e.PeerKnown {
			r.handleNoConnection(e.Peer, e.Conn)
		}
	default:
		// Anything else is outside this package's concern.
	}
}

// HandleHandlerEvent dispatches the dial-back handler's bare nonce or the
// dial-request handler's PeerHasServerSupport/TestCompleted message.
// peerID/connID identify the connection the event arrived on; they're
// needed to resolve the conn table record for request-handler messages.
func (r *router) HandleHandlerEvent(peerID peer.ID, connID ConnID, ev HandlerEvent) {
	if ev.hasDialBack {
		r.handleDialBack(peerID, ev.dialBackNonce)
		return
	}
	if !ev.hasRequest {
		return
	}
	re := ev.requestEvent
	if re.PeerHasServerSupport {
		if ok := r.conns.SetSupport(connID, true); !ok {
			// The connection record should already exist by the time its
			// peer reports server support; if it doesn't, teardown raced
			// this message, so just log and move on instead of panicking.
			log.Errorw("PeerHasServerSupport for unknown connection", "peer", peerID, "conn", connID)
		}
		return
	}
	if re.TestCompleted != nil {
		r.handleTestCompleted(peerID, connID, re.TestCompleted)
	}
}

func (r *router) handleDialBack(peerID peer.ID, nonce uint64) {
	if ok := r.nonces.MarkReceived(nonce); !ok {
		log.Warnw("received unexpected nonce", "peer", peerID, "nonce", nonce)
		return
	}
	log.Debugw("successful dial-back", "peer", peerID, "nonce", nonce)
}

func (r *router) handleTestCompleted(peerID peer.ID, connID ConnID, upd *StatusUpdate) {
	if upd.ServerNoSupport {
		if ok := r.conns.SetSupport(connID, false); !ok {
			log.Errorw("TestCompleted for unknown connection", "peer", peerID, "conn", connID)
		}
	}

	server := peerID
	if upd.ServerKnown {
		server = upd.Server
	}

	var outErr *ProbeError
	switch {
	case upd.Err == nil:
		// Success path: confirmation requires the server to actually have
		// reached us, witnessed by the nonce having flipped to Received.
		// A server that merely claims success without us ever seeing the
		// dial-back is not enough.
		if upd.Result != nil && r.nonces.IsReceived(upd.Result.Request.Nonce) {
			r.emit(ConfirmAddrDirective{Addr: upd.Result.ReachableAddr})
			if r.metrics != nil {
				r.metrics.ProbeConfirmed()
			}
			// Backoff is keyed on the connection's peer, the same identity
			// pickServer consults, not on whatever server name the report
			// claims — the two agree except when a test is reported
			// through a different connection than it was dispatched on.
			r.backoff.Clear(peerID)
		} else {
			log.Debugw("server reported reachability but dial-back was never observed", "server", server)
		}
	default:
		outErr = upd.Err
		r.handleTestFailure(peerID, connID, upd.Err)
	}

	r.emit(GenerateEventDirective{Event: Event{
		TestedAddr: upd.TestedAddr,
		BytesSent:  upd.BytesSent,
		Server:     server,
		Err:        outErr,
	}})
}

func (r *router) handleTestFailure(peerID peer.ID, connID ConnID, err *ProbeError) {
	if r.metrics != nil {
		r.metrics.ProbeFailed(err.Kind)
	}
	switch err.Kind {
	case ErrFailureDuringDialBack, ErrUnableToConnectOnSelectedAddress:
		if err.Addr != nil {
			r.books.MarkTested(err.Addr)
			log.Debugw("unable to connect to server on selected address", "addr", err.Addr)
		}
	default:
		if err.Kind.evictsServer() {
			r.handleNoConnection(peerID, connID)
			r.backoff.AddBackoff(peerID)
			if r.metrics != nil {
				r.metrics.ServerEvicted()
			}
		} else {
			log.Debugw("test failed", "kind", err.Kind)
		}
	}
}

// handleNoConnection removes the record for (peer, conn), then clears
// supports_autonat on any remaining record for peer (it may have other
// connections).
func (r *router) handleNoConnection(p peer.ID, conn ConnID) {
	r.conns.Remove(p, conn)
	changed, totalBefore := r.conns.ClearSupportForPeer(p)
	if changed > 0 && changed != totalBefore {
		// go-log/v2's SugaredLogger has no Trace level, so Debug is the
		// closest fit for this low-volume bookkeeping note.
		log.Debugw("removing potential autonat server due to dial failure", "peer", p)
	}
}
