package client

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// ErrorKind is the closed taxonomy of failure kinds a completed test can
// report.
type ErrorKind int

const (
	// ErrUnknown covers any error kind this package doesn't recognize; it
	// is logged at debug and still surfaced as a user event.
	ErrUnknown ErrorKind = iota
	ErrFailureDuringDialBack
	ErrUnableToConnectOnSelectedAddress
	ErrInternalServer
	ErrDataRequestTooLarge
	ErrDataRequestTooSmall
	ErrInvalidResponse
	ErrServerRejectedDialRequest
	ErrInvalidReferencedAddress
	ErrServerChoseNotToDialAnyAddress
)

func (k ErrorKind) String() string {
	switch k {
	case ErrFailureDuringDialBack:
		return "failure during dial-back"
	case ErrUnableToConnectOnSelectedAddress:
		return "unable to connect on selected address"
	case ErrInternalServer:
		return "internal server error"
	case ErrDataRequestTooLarge:
		return "data request too large"
	case ErrDataRequestTooSmall:
		return "data request too small"
	case ErrInvalidResponse:
		return "invalid response"
	case ErrServerRejectedDialRequest:
		return "server rejected dial request"
	case ErrInvalidReferencedAddress:
		return "invalid referenced address"
	case ErrServerChoseNotToDialAnyAddress:
		return "server chose not to dial any address"
	default:
		return "unknown autonatv2 error"
	}
}

// evictsServer reports whether this error kind means the server is unfit
// and should be evicted.
func (k ErrorKind) evictsServer() bool {
	switch k {
	case ErrInternalServer,
		ErrDataRequestTooLarge,
		ErrDataRequestTooSmall,
		ErrInvalidResponse,
		ErrServerRejectedDialRequest,
		ErrInvalidReferencedAddress,
		ErrServerChoseNotToDialAnyAddress:
		return true
	default:
		return false
	}
}

// ProbeError wraps a failed test's error kind together with the address
// the server named, when it named one. It mirrors the source's Error
// type, which wraps an InternalError and delegates Display/Debug to it.
type ProbeError struct {
	Kind ErrorKind
	Addr ma.Multiaddr // may be nil
	// Cause is the underlying error reported by the handler, if any.
	Cause error
}

func (e *ProbeError) Error() string {
	if e.Addr != nil {
		return fmt.Sprintf("autonatv2: %s (addr=%s)", e.Kind, e.Addr)
	}
	return fmt.Sprintf("autonatv2: %s", e.Kind)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Is lets callers write errors.Is(err, client.KindError(client.ErrInvalidResponse))
// by comparing kinds rather than sentinel values, since the kind set is
// closed and doesn't need one sentinel per member.
func (e *ProbeError) Is(target error) bool {
	var other *ProbeError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindError constructs a ProbeError carrying only a kind, no address.
func KindError(kind ErrorKind) *ProbeError {
	return &ProbeError{Kind: kind}
}

// AddrError constructs a ProbeError carrying a kind and the address the
// server named.
func AddrError(kind ErrorKind, addr ma.Multiaddr) *ProbeError {
	return &ProbeError{Kind: kind, Addr: addr}
}
