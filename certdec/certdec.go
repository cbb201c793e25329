// Package certdec decodes X.509 certificates and private keys from the
// encodings PKI services hand out: PEM, raw DER, and PKCS#7 blobs.
package certdec

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"

	"github.com/cloudflare/cfssl/crypto/pkcs7"
)

var (
	// ErrInvalidPEMBlock indicates the data does not contain a valid PEM block.
	ErrInvalidPEMBlock = errors.New("certdec: invalid PEM block")

	// ErrInvalidBlockType indicates the PEM block is not of the expected type.
	ErrInvalidBlockType = errors.New("certdec: invalid PEM block type")

	// ErrParseCertificate indicates a failure to parse certificate data.
	ErrParseCertificate = errors.New("certdec: failed to parse certificate")

	// ErrParsePKCS7 indicates a failure to parse PKCS#7 data.
	ErrParsePKCS7 = errors.New("certdec: failed to parse PKCS7 data")

	// ErrNoCertificatesInPKCS7 indicates the PKCS#7 data holds no certificates.
	ErrNoCertificatesInPKCS7 = errors.New("certdec: no certificates found in PKCS7 data")

	// ErrParsePrivateKey indicates the key data matched no supported format.
	ErrParsePrivateKey = errors.New("certdec: failed to parse private key")
)

const certBlockType = "CERTIFICATE"

// isPEM checks if the data is in PEM format.
func isPEM(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil
}

// Certificate decodes a single certificate from PEM, DER, or PKCS#7 data.
// For PKCS#7 input the first embedded certificate is returned.
func Certificate(data []byte) (*x509.Certificate, error) {
	if isPEM(data) {
		block, _ := pem.Decode(data)
		if block.Type != certBlockType {
			return nil, ErrInvalidBlockType
		}
		data = block.Bytes
	}

	cert, err := x509.ParseCertificate(data)
	if err == nil {
		return cert, nil
	}

	p, err := pkcs7.ParsePKCS7(data)
	if err != nil {
		return nil, ErrParsePKCS7
	}
	if len(p.Content.SignedData.Certificates) == 0 {
		return nil, ErrNoCertificatesInPKCS7
	}
	return p.Content.SignedData.Certificates[0], nil
}

// Certificates decodes one or more certificates from PEM or DER data,
// preserving their order.
func Certificates(data []byte) ([]*x509.Certificate, error) {
	if isPEM(data) {
		var certs []*x509.Certificate
		for len(data) > 0 {
			block, rest := pem.Decode(data)
			if block == nil {
				break
			}
			if block.Type != certBlockType {
				return nil, ErrInvalidBlockType
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, ErrParseCertificate
			}
			certs = append(certs, cert)
			data = rest
		}
		if len(certs) == 0 {
			return nil, ErrParseCertificate
		}
		return certs, nil
	}

	certs, err := x509.ParseCertificates(data)
	if err != nil {
		return nil, ErrParseCertificate
	}
	return certs, nil
}

// PrivateKey decodes a private key from PEM or DER data, trying PKCS#8,
// PKCS#1 (RSA), and SEC 1 (EC) in that order.
func PrivateKey(data []byte) (crypto.PrivateKey, error) {
	if isPEM(data) {
		block, _ := pem.Decode(data)
		data = block.Bytes
	}

	if key, err := x509.ParsePKCS8PrivateKey(data); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(data); err == nil {
		return key, nil
	}
	return nil, ErrParsePrivateKey
}

// EncodePEM encodes a certificate to PEM format.
func EncodePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: certBlockType, Bytes: cert.Raw})
}
