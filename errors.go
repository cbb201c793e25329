package pkiconn

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTrustedCert is returned when a connector or trust anchor is built
	// without a pinned server certificate.
	ErrNoTrustedCert = errors.New("pkiconn: no trusted server certificate")

	// ErrEmptyChain is returned when a client private key is supplied
	// without a certificate chain.
	ErrEmptyChain = errors.New("pkiconn: client key present but certificate chain is empty")

	// ErrAliasUnknown is returned when the configured alias has no entry in
	// the credential store.
	ErrAliasUnknown = errors.New("pkiconn: alias not present in credential store")

	// ErrNoServerCert is returned during a handshake when the server
	// presents no certificate at all.
	ErrNoServerCert = errors.New("pkiconn: server presented no certificate")
)

// CredentialError reports malformed or inconsistent client key and
// certificate material supplied at construction. It is fatal to the
// connector being built.
type CredentialError struct {
	Entity string // entity identifier the material belongs to
	Err    error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("pkiconn: client credentials for %q: %v", e.Entity, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TLSSetupError reports a failure while assembling a TLS context from
// already-constructed trust and credential material.
type TLSSetupError struct {
	Op  string // what was being assembled
	Err error
}

func (e *TLSSetupError) Error() string {
	return fmt.Sprintf("pkiconn: tls setup: %s: %v", e.Op, e.Err)
}

func (e *TLSSetupError) Unwrap() error { return e.Err }

// UntrustedServerError is returned when the server presents a certificate
// other than the pinned one. Trust decisions fail closed.
type UntrustedServerError struct {
	Presented FP
	Pinned    FP
}

func (e *UntrustedServerError) Error() string {
	return fmt.Sprintf("pkiconn: server certificate %s does not match pinned certificate %s",
		e.Presented, e.Pinned)
}
