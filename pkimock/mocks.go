// Package pkimock provides hand-written fakes for the conduit contracts,
// for use in tests of code that applies connection settings to an RPC
// client handle.
package pkimock

import (
	"sync"
	"time"

	"github.com/kardianos/pkiconn"
)

// ClientHandle is an in-memory pkiconn.ClientHandle recording every
// mutation made to it.
type ClientHandle struct {
	Ctx       map[string]any
	Transport Conduit
}

var _ pkiconn.ClientHandle = (*ClientHandle)(nil)

// NewClientHandle creates an empty handle.
func NewClientHandle() *ClientHandle {
	return &ClientHandle{Ctx: make(map[string]any)}
}

// RequestContext returns the handle's context map.
func (h *ClientHandle) RequestContext() map[string]any { return h.Ctx }

// Conduit returns the handle's recording conduit.
func (h *ClientHandle) Conduit() pkiconn.Conduit { return &h.Transport }

// Endpoint returns the installed endpoint address, or "".
func (h *ClientHandle) Endpoint() string {
	addr, _ := h.Ctx[pkiconn.EndpointAddressKey].(string)
	return addr
}

// Mutated reports whether anything was written to the handle: request
// context entries or conduit settings.
func (h *ClientHandle) Mutated() bool {
	return len(h.Ctx) > 0 || h.Transport.Mutations() > 0
}

// Conduit is a recording pkiconn.Conduit.
type Conduit struct {
	mu sync.Mutex

	ConnectTimeout time.Duration
	ReceiveTimeout time.Duration
	TLSParams      *pkiconn.TLSClientParams

	mutations int
}

var _ pkiconn.Conduit = (*Conduit)(nil)

// SetConnectTimeout records the connect timeout.
func (c *Conduit) SetConnectTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConnectTimeout = d
	c.mutations++
}

// SetReceiveTimeout records the receive timeout.
func (c *Conduit) SetReceiveTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReceiveTimeout = d
	c.mutations++
}

// SetTLSClientParams records the installed TLS parameters.
func (c *Conduit) SetTLSClientParams(p *pkiconn.TLSClientParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TLSParams = p
	c.mutations++
}

// Mutations returns how many setter calls the conduit has seen.
func (c *Conduit) Mutations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutations
}
