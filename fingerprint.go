package pkiconn

import (
	"crypto/x509"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const fpSize = 16

// FP is a certificate fingerprint (truncated BLAKE2b hash of the
// certificate's raw bytes), rendered as hex in logs and cache records.
type FP [fpSize]byte

// FingerprintOf computes the fingerprint of a certificate.
func FingerprintOf(cert *x509.Certificate) FP {
	return FingerprintHash(cert.Raw)
}

// FingerprintHash computes the fingerprint from raw certificate bytes.
func FingerprintHash(raw []byte) FP {
	sum := blake2b.Sum256(raw)
	var fp FP
	copy(fp[:], sum[:fpSize])
	return fp
}

// String returns the hex-encoded fingerprint.
func (f FP) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero returns true if zero value.
func (f FP) IsZero() bool {
	return f == FP{}
}
