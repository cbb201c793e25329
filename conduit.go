package pkiconn

import (
	"crypto/tls"
	"time"
)

// EndpointAddressKey is the request-context key under which the target
// endpoint address is installed on an RPC client handle.
const EndpointAddressKey = "pkiconn.endpoint.address"

// TLSClientParams is the TLS parameter object installed on a conduit: the
// context to handshake with and the cipher suite allow-list, as IANA IDs.
type TLSClientParams struct {
	Config       *tls.Config
	CipherSuites []uint16
}

// Conduit is the mutable transport settings object underneath an RPC
// client handle. Unlike a tls.Config built per call, a conduit is shared
// framework state mutated in place; callers must hold SharedContextLock
// (or another agreed ContextLock) across any mutation.
type Conduit interface {
	// SetConnectTimeout sets the connection establishment timeout.
	SetConnectTimeout(d time.Duration)

	// SetReceiveTimeout sets the response read timeout.
	SetReceiveTimeout(d time.Duration)

	// SetTLSClientParams installs TLS parameters for subsequent calls.
	SetTLSClientParams(p *TLSClientParams)
}

// ClientHandle is the contract an externally owned RPC client handle must
// satisfy for ApplyConnectionSettings: a mutable request-context map
// supporting the endpoint-address key, and access to the underlying
// conduit.
type ClientHandle interface {
	// RequestContext returns the handle's mutable per-request context map.
	RequestContext() map[string]any

	// Conduit returns the handle's underlying transport conduit.
	Conduit() Conduit
}
