package pkiconn

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
)

// KeyAccess is the identity-selection capability consulted during a TLS
// handshake. It mirrors the selection surface of a key store: which alias
// to present, and the key material behind an alias. Both CredentialStore
// and AliasKeyManager implement it, so pinning is a decorator rather than
// a type assertion on a concrete manager.
type KeyAccess interface {
	// ChooseClientAlias selects the alias to present as client identity.
	// keyTypes and issuers come from the server's certificate request and
	// may be empty.
	ChooseClientAlias(keyTypes []string, issuers []pkix.Name) string

	// ChooseServerAlias selects a server identity. This subsystem only
	// ever acts as a TLS client; implementations pass through or return "".
	ChooseServerAlias(keyType string, issuers []pkix.Name) string

	// CertificateChain returns the certificate chain stored under alias.
	CertificateChain(alias string) []*x509.Certificate

	// ClientAliases lists aliases usable as client identities.
	ClientAliases(keyType string, issuers []pkix.Name) []string

	// PrivateKey returns the private key stored under alias.
	PrivateKey(alias string) crypto.PrivateKey

	// ServerAliases lists aliases usable as server identities.
	ServerAliases(keyType string, issuers []pkix.Name) []string
}

// AliasKeyManager wraps a KeyAccess so that client identity selection
// always returns one configured alias, no matter how many entries the
// underlying store holds or what key types and issuers the server asks
// for. The underlying store may normalize or reorder aliases when multiple
// entries exist; pinning keeps the presented identity deterministic.
// Everything except client alias selection is a pass-through.
type AliasKeyManager struct {
	wrapped KeyAccess
	alias   string
}

var _ KeyAccess = (*AliasKeyManager)(nil)

// NewAliasKeyManager wraps a KeyAccess, forcing client identity selection
// to alias.
func NewAliasKeyManager(wrapped KeyAccess, alias string) *AliasKeyManager {
	return &AliasKeyManager{wrapped: wrapped, alias: alias}
}

// ChooseClientAlias returns the pinned alias, unconditionally.
func (km *AliasKeyManager) ChooseClientAlias([]string, []pkix.Name) string {
	return km.alias
}

// ChooseServerAlias delegates to the wrapped KeyAccess.
func (km *AliasKeyManager) ChooseServerAlias(keyType string, issuers []pkix.Name) string {
	return km.wrapped.ChooseServerAlias(keyType, issuers)
}

// CertificateChain delegates to the wrapped KeyAccess.
func (km *AliasKeyManager) CertificateChain(alias string) []*x509.Certificate {
	return km.wrapped.CertificateChain(alias)
}

// ClientAliases delegates to the wrapped KeyAccess.
func (km *AliasKeyManager) ClientAliases(keyType string, issuers []pkix.Name) []string {
	return km.wrapped.ClientAliases(keyType, issuers)
}

// PrivateKey delegates to the wrapped KeyAccess.
func (km *AliasKeyManager) PrivateKey(alias string) crypto.PrivateKey {
	return km.wrapped.PrivateKey(alias)
}

// ServerAliases delegates to the wrapped KeyAccess.
func (km *AliasKeyManager) ServerAliases(keyType string, issuers []pkix.Name) []string {
	return km.wrapped.ServerAliases(keyType, issuers)
}

// clientCertificateGetter adapts a KeyAccess into the GetClientCertificate
// callback of a tls.Config. Returning an empty certificate tells the
// runtime to proceed without client authentication.
func clientCertificateGetter(km KeyAccess) func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
		alias := km.ChooseClientAlias(nil, nil)
		if alias == "" {
			return &tls.Certificate{}, nil
		}
		chain := km.CertificateChain(alias)
		key := km.PrivateKey(alias)
		if len(chain) == 0 || key == nil {
			return &tls.Certificate{}, nil
		}
		raw := make([][]byte, len(chain))
		for i, cert := range chain {
			raw[i] = cert.Raw
		}
		return &tls.Certificate{
			Certificate: raw,
			PrivateKey:  key,
			Leaf:        chain[0],
		}, nil
	}
}
