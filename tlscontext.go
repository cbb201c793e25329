package pkiconn

import (
	"crypto/rand"
	"crypto/tls"
)

// Cipher suite allow-list for connections to the PKI service, in preference
// order: ECDHE/DHE key exchange with AES-CBC or AES-GCM and SHA-256/384
// digests. No RSA key exchange, no export or otherwise weakened suites.
// The values are IANA-registered suite IDs; the TLS runtime negotiates the
// subset it implements, in this order.
const (
	TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA384 uint16 = 0xc024
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256 uint16 = 0xc023
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384   uint16 = 0xc030
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256   uint16 = 0xc02f
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA384   uint16 = 0xc028
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256   uint16 = 0xc027
	TLS_DHE_RSA_WITH_AES_256_GCM_SHA384     uint16 = 0x009f
	TLS_DHE_RSA_WITH_AES_128_GCM_SHA256     uint16 = 0x009e
	TLS_DHE_RSA_WITH_AES_256_CBC_SHA256     uint16 = 0x006b
	TLS_DHE_RSA_WITH_AES_128_CBC_SHA256     uint16 = 0x0067
	TLS_DHE_DSS_WITH_AES_256_GCM_SHA384     uint16 = 0x00a3
	TLS_DHE_DSS_WITH_AES_128_GCM_SHA256     uint16 = 0x00a2
	TLS_DHE_DSS_WITH_AES_256_CBC_SHA256     uint16 = 0x006a
	TLS_DHE_DSS_WITH_AES_128_CBC_SHA256     uint16 = 0x0040
)

// EnabledCipherSuites is the fixed ordered allow-list installed on every
// TLS context and conduit this package configures.
var EnabledCipherSuites = []uint16{
	TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA384,
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA384,
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
	TLS_DHE_RSA_WITH_AES_256_GCM_SHA384,
	TLS_DHE_RSA_WITH_AES_128_GCM_SHA256,
	TLS_DHE_RSA_WITH_AES_256_CBC_SHA256,
	TLS_DHE_RSA_WITH_AES_128_CBC_SHA256,
	TLS_DHE_DSS_WITH_AES_256_GCM_SHA384,
	TLS_DHE_DSS_WITH_AES_128_GCM_SHA256,
	TLS_DHE_DSS_WITH_AES_256_CBC_SHA256,
	TLS_DHE_DSS_WITH_AES_128_CBC_SHA256,
}

var cipherSuiteNames = map[uint16]string{
	TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA384: "TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA384",
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256: "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256",
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA384:   "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA384",
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256:   "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256",
	TLS_DHE_RSA_WITH_AES_256_GCM_SHA384:     "TLS_DHE_RSA_WITH_AES_256_GCM_SHA384",
	TLS_DHE_RSA_WITH_AES_128_GCM_SHA256:     "TLS_DHE_RSA_WITH_AES_128_GCM_SHA256",
	TLS_DHE_RSA_WITH_AES_256_CBC_SHA256:     "TLS_DHE_RSA_WITH_AES_256_CBC_SHA256",
	TLS_DHE_RSA_WITH_AES_128_CBC_SHA256:     "TLS_DHE_RSA_WITH_AES_128_CBC_SHA256",
	TLS_DHE_DSS_WITH_AES_256_GCM_SHA384:     "TLS_DHE_DSS_WITH_AES_256_GCM_SHA384",
	TLS_DHE_DSS_WITH_AES_128_GCM_SHA256:     "TLS_DHE_DSS_WITH_AES_128_GCM_SHA256",
	TLS_DHE_DSS_WITH_AES_256_CBC_SHA256:     "TLS_DHE_DSS_WITH_AES_256_CBC_SHA256",
	TLS_DHE_DSS_WITH_AES_128_CBC_SHA256:     "TLS_DHE_DSS_WITH_AES_128_CBC_SHA256",
}

// CipherSuiteName returns the registered name of an allow-listed suite ID,
// or "" for IDs outside the list.
func CipherSuiteName(id uint16) string { return cipherSuiteNames[id] }

// BuildTLSConfig composes a trust anchor, a credential store, and an
// alias-pinned key manager into a ready-to-use TLS client configuration:
// TLS 1.2 exactly, the fixed cipher suite allow-list, trust decided solely
// by the pinned certificate, and client identity forced to alias. The
// returned config is freshly built, never cached, and must not be mutated
// after this call; callers needing rotated credentials build a new one.
func BuildTLSConfig(anchor *TrustAnchor, store *CredentialStore, alias string) (*tls.Config, error) {
	if anchor == nil {
		return nil, &TLSSetupError{Op: "trust anchor", Err: ErrNoTrustedCert}
	}
	if store == nil {
		return nil, &TLSSetupError{Op: "credential store", Err: ErrAliasUnknown}
	}
	if !store.Empty() {
		if _, ok := store.Identity(alias); !ok {
			return nil, &TLSSetupError{Op: "alias " + alias, Err: ErrAliasUnknown}
		}
	}

	km := NewAliasKeyManager(store, alias)
	return &tls.Config{
		MinVersion:           tls.VersionTLS12,
		MaxVersion:           tls.VersionTLS12,
		CipherSuites:         append([]uint16(nil), EnabledCipherSuites...),
		Rand:                 rand.Reader,
		GetClientCertificate: clientCertificateGetter(km),
		// Chain building against system roots is replaced wholesale by the
		// pinned-certificate decision in VerifyConnection.
		InsecureSkipVerify: true,
		VerifyConnection:   anchor.verifyConnection,
	}, nil
}
