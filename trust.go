package pkiconn

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// TrustAnchor pins exactly one server certificate. Its trust decision
// accepts a peer only when the presented end-entity certificate is
// byte-identical to the pinned one; everything else, including
// certificates issued by public CAs, fails closed. This is deliberate
// pinning, not chain validation.
type TrustAnchor struct {
	cert *x509.Certificate
	fp   FP
}

// NewTrustAnchor pins the given server certificate.
func NewTrustAnchor(cert *x509.Certificate) (*TrustAnchor, error) {
	if cert == nil {
		return nil, ErrNoTrustedCert
	}
	return &TrustAnchor{cert: cert, fp: FingerprintOf(cert)}, nil
}

// Certificate returns the pinned certificate.
func (a *TrustAnchor) Certificate() *x509.Certificate { return a.cert }

// Fingerprint returns the pinned certificate's fingerprint.
func (a *TrustAnchor) Fingerprint() FP { return a.fp }

// Verify checks a presented peer certificate against the pin.
func (a *TrustAnchor) Verify(peer *x509.Certificate) error {
	if peer == nil {
		return ErrNoServerCert
	}
	if !bytes.Equal(peer.Raw, a.cert.Raw) {
		return &UntrustedServerError{Presented: FingerprintOf(peer), Pinned: a.fp}
	}
	return nil
}

// verifyConnection is installed as tls.Config.VerifyConnection. Standard
// chain building is disabled for pinned connections, so this callback is
// the entire trust decision: the leaf must match the pin and, when SNI was
// sent, the pinned certificate must be valid for that name.
func (a *TrustAnchor) verifyConnection(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return ErrNoServerCert
	}
	if err := a.Verify(cs.PeerCertificates[0]); err != nil {
		return err
	}
	if cs.ServerName != "" {
		return cs.PeerCertificates[0].VerifyHostname(cs.ServerName)
	}
	return nil
}

// CertificateSummary returns a human-readable identification of a
// certificate for the diagnostic log.
func CertificateSummary(cert *x509.Certificate) string {
	if cert == nil {
		return "no certificate given"
	}
	return fmt.Sprintf("subject=%q issuer=%q serial=%s fp=%s",
		cert.Subject, cert.Issuer, cert.SerialNumber, FingerprintOf(cert))
}
