package pkiconn

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPClientHandle is a net/http-backed implementation of the ClientHandle
// contract, for RPC stacks that speak plain HTTP(S) to the PKI service.
// The handle's conduit is shared mutable state by design; callers mutate
// it through ApplyConnectionSettings under SharedContextLock and then
// materialize a client with Client.
type HTTPClientHandle struct {
	mu      sync.Mutex
	reqCtx  map[string]any
	conduit httpConduit
}

var _ ClientHandle = (*HTTPClientHandle)(nil)

// NewHTTPClientHandle creates a handle with an empty request context and
// zero-valued conduit settings.
func NewHTTPClientHandle() *HTTPClientHandle {
	return &HTTPClientHandle{reqCtx: make(map[string]any)}
}

// RequestContext returns the handle's mutable request-context map.
func (h *HTTPClientHandle) RequestContext() map[string]any { return h.reqCtx }

// Conduit returns the handle's underlying transport conduit.
func (h *HTTPClientHandle) Conduit() Conduit { return &h.conduit }

// Endpoint returns the endpoint address installed in the request context,
// or "".
func (h *HTTPClientHandle) Endpoint() string {
	addr, _ := h.reqCtx[EndpointAddressKey].(string)
	return addr
}

// Client materializes an http.Client from the conduit's current settings.
func (h *HTTPClientHandle) Client() *http.Client {
	return h.conduit.client()
}

// httpConduit holds the mutable transport settings behind an
// HTTPClientHandle.
type httpConduit struct {
	mu             sync.Mutex
	connectTimeout time.Duration
	receiveTimeout time.Duration
	tlsParams      *TLSClientParams
}

var _ Conduit = (*httpConduit)(nil)

func (c *httpConduit) SetConnectTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectTimeout = d
}

func (c *httpConduit) SetReceiveTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiveTimeout = d
}

func (c *httpConduit) SetTLSClientParams(p *TLSClientParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlsParams = p
}

func (c *httpConduit) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: c.connectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: c.connectTimeout,
	}
	if c.tlsParams != nil {
		transport.TLSClientConfig = c.tlsParams.Config
	}
	return &http.Client{
		Transport: transport,
		Timeout:   c.receiveTimeout,
	}
}
