// Package pkiconn establishes mutually-authenticated, certificate-pinned
// TLS connections to a remote PKI service. It packages caller-supplied key
// material into a per-connector credential store, pins trust to a single
// server certificate, forces client identity selection to one alias, and
// serializes mutation of shared TLS conduit state across goroutines with a
// steal-after-timeout lock.
package pkiconn

import (
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/kardianos/pkiconn/docstore"
)

// ConnectorOpt configures a Connector.
type ConnectorOpt struct {
	// Timeout in whole seconds, applied to both connection establishment
	// and response reads.
	Timeout int

	// ServerCert is the single pinned PKI service certificate. Required.
	ServerCert *x509.Certificate

	// ClientKey is the private key for TLS client authentication. May be
	// nil; the connector then runs without a client identity.
	ClientKey crypto.PrivateKey

	// ClientChain is the certificate chain for ClientKey. Must be
	// non-empty when ClientKey is set.
	ClientChain []*x509.Certificate

	// Store, when set, supplies an already-populated credential store
	// (for example from NewCredentialStoreFromPKCS12) and takes
	// precedence over ClientKey/ClientChain. The identity under EntityID
	// is presented.
	Store *CredentialStore

	// EntityID identifies the caller. Used as the credential store alias
	// and in diagnostics.
	EntityID string

	// Logger receives connection diagnostics. Nil falls back to
	// slog.Default.
	Logger *slog.Logger

	// Docs, when set, records documents fetched over pinned TLS so they
	// can be served again without network I/O.
	Docs *docstore.Store
}

// Connector is the entry point for talking to the PKI service. Each
// instance owns its credential store and trust anchor; TLS contexts are
// built fresh per call, so a new connector (or new call) picks up rotated
// credentials without restarting the process.
type Connector struct {
	timeout time.Duration
	anchor  *TrustAnchor
	store   *CredentialStore
	entity  string
	logger  *slog.Logger
	docs    *docstore.Store
}

// NewConnector validates the supplied key and certificate material and
// builds a connector. Malformed or inconsistent client material is a
// *CredentialError; a missing server certificate is ErrNoTrustedCert.
func NewConnector(opt ConnectorOpt) (*Connector, error) {
	anchor, err := NewTrustAnchor(opt.ServerCert)
	if err != nil {
		return nil, err
	}
	store := opt.Store
	if store == nil {
		store, err = NewCredentialStore(opt.ClientKey, opt.ClientChain, opt.EntityID)
		if err != nil {
			return nil, err
		}
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		timeout: time.Duration(opt.Timeout) * time.Second,
		anchor:  anchor,
		store:   store,
		entity:  opt.EntityID,
		logger:  logger,
		docs:    opt.Docs,
	}, nil
}

// TrustAnchor returns the connector's pinned trust anchor.
func (c *Connector) TrustAnchor() *TrustAnchor { return c.anchor }

// buildTLSConfig assembles a fresh TLS context for this connector.
func (c *Connector) buildTLSConfig() (*tls.Config, error) {
	return BuildTLSConfig(c.anchor, c.store, c.entity)
}

// FetchDocument retrieves a document (usually a service description) via
// HTTP GET and returns its content. For https URIs the connection is
// restricted to the pinned certificate, TLS 1.2, and the fixed cipher
// suite allow-list; plain http URIs are fetched without any TLS context,
// which is allowed. TLS assembly failures and transport failures are
// returned to the caller; there are no retries.
func (c *Connector) FetchDocument(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: c.timeout}
	if u.Scheme != "http" {
		cfg, err := c.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("pkiconn: cannot create http client: %w", err)
		}
		client.Transport = &http.Transport{
			TLSClientConfig:     cfg,
			TLSHandshakeTimeout: c.timeout,
		}
	}

	c.logger.Debug("fetching document",
		"entity", c.entity,
		"uri", uri,
		"pinned", c.anchor.Fingerprint())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	body := append([]byte(nil), buf.Bytes()...)

	if c.docs != nil {
		rec := docstore.Record{
			URI:       uri,
			Body:      body,
			FetchedAt: timeNow(),
			ServerFP:  c.anchor.Fingerprint().String(),
		}
		if err := c.docs.Put(rec); err != nil {
			c.logger.Error("caching fetched document failed", "entity", c.entity, "uri", uri, "err", err)
		}
	}
	return body, nil
}

// CachedDocument returns the body of a previously fetched document from
// the connector's document store, or nil when no store is configured or
// the document was never fetched.
func (c *Connector) CachedDocument(uri string) ([]byte, error) {
	if c.docs == nil {
		return nil, nil
	}
	rec, err := c.docs.Get(uri)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Body, nil
}

// ApplyConnectionSettings points an externally owned RPC client handle at
// uri and installs timeouts plus a fresh pinned TLS context on its
// conduit. For http URIs nothing is mutated. The conduit is shared
// framework state: the caller must hold SharedContextLock across this call
// and the RPC calls that depend on the installed settings.
//
// TLS assembly failures are logged and swallowed here: the material was
// already validated when the connector was built, so they indicate a bug,
// not a caller error.
func (c *Connector) ApplyConnectionSettings(handle ClientHandle, uri string) error {
	c.logger.Debug("creating https connection with client authentication",
		"entity", c.entity,
		"uri", uri,
		"trusted", CertificateSummary(c.anchor.Certificate()))
	if id, ok := c.store.Identity(c.entity); ok {
		c.logger.Debug("certificate for TLS client key",
			"entity", c.entity,
			"client", CertificateSummary(id.Leaf()))
	} else {
		c.logger.Error("no client TLS key given", "entity", c.entity)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return err
	}
	if u.Scheme == "http" {
		return nil
	}

	handle.RequestContext()[EndpointAddressKey] = uri

	conduit := handle.Conduit()
	conduit.SetConnectTimeout(c.timeout)
	conduit.SetReceiveTimeout(c.timeout)

	cfg, err := c.buildTLSConfig()
	if err != nil {
		// Certs and keys were parsed and matched at construction; ending
		// up here means a programming error, not bad caller input.
		c.logger.Error("tls context assembly failed on pre-validated material",
			"entity", c.entity, "err", err)
		return nil
	}
	conduit.SetTLSClientParams(&TLSClientParams{
		Config:       cfg,
		CipherSuites: append([]uint16(nil), EnabledCipherSuites...),
	})
	return nil
}
