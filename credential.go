package pkiconn

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/pkcs12"

	"github.com/kardianos/pkiconn/certdec"
)

// Identity is one client identity held by a CredentialStore: a private key,
// the certificate chain belonging to it, and the alias it is stored under.
// Identities are created at connector construction and never mutated.
type Identity struct {
	Alias      string
	PrivateKey crypto.PrivateKey
	Chain      []*x509.Certificate
}

// Leaf returns the end-entity certificate of the identity, or nil when the
// chain is empty.
func (id Identity) Leaf() *x509.Certificate {
	if len(id.Chain) == 0 {
		return nil
	}
	return id.Chain[0]
}

// CredentialStore is an in-memory alias-keyed map of client identities.
// A store is built fresh for every connector and owned by it exclusively;
// key material lives only in process memory and is never written out.
type CredentialStore struct {
	identities map[string]Identity
	order      []string
}

var _ KeyAccess = (*CredentialStore)(nil)

// NewCredentialStore packages a raw private key and certificate chain into
// a store under the given alias. A nil key yields an empty store: client
// authentication is simply not performed. A key without a chain, a key that
// does not match the chain's leaf, or an unusable key type is a
// *CredentialError.
func NewCredentialStore(key crypto.PrivateKey, chain []*x509.Certificate, alias string) (*CredentialStore, error) {
	s := &CredentialStore{identities: make(map[string]Identity)}
	if key == nil {
		return s, nil
	}
	if err := s.add(Identity{Alias: alias, PrivateKey: key, Chain: chain}); err != nil {
		return nil, &CredentialError{Entity: alias, Err: err}
	}
	return s, nil
}

// NewCredentialStoreFromPKCS12 builds a store from a PKCS#12 bundle, the
// format the collaborating PKI provider hands out client credentials in.
// The bundle's key and full certificate chain are stored under alias.
func NewCredentialStoreFromPKCS12(p12 []byte, password, alias string) (*CredentialStore, error) {
	blocks, err := pkcs12.ToPEM(p12, password)
	if err != nil {
		return nil, &CredentialError{Entity: alias, Err: fmt.Errorf("decode pkcs12: %w", err)}
	}

	var key crypto.PrivateKey
	var chain []*x509.Certificate
	for _, block := range blocks {
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, &CredentialError{Entity: alias, Err: fmt.Errorf("parse certificate: %w", err)}
			}
			chain = append(chain, cert)
		default:
			if key != nil {
				continue
			}
			key, err = certdec.PrivateKey(pem.EncodeToMemory(block))
			if err != nil {
				return nil, &CredentialError{Entity: alias, Err: fmt.Errorf("parse private key: %w", err)}
			}
		}
	}
	if key == nil {
		return nil, &CredentialError{Entity: alias, Err: errors.New("pkcs12 bundle contains no private key")}
	}
	return NewCredentialStore(key, chain, alias)
}

// add stores an identity, enforcing alias uniqueness and key/chain
// consistency.
func (s *CredentialStore) add(id Identity) error {
	if id.Alias == "" {
		return errors.New("empty alias")
	}
	if _, ok := s.identities[id.Alias]; ok {
		return fmt.Errorf("duplicate alias %q", id.Alias)
	}
	if len(id.Chain) == 0 {
		return ErrEmptyChain
	}
	if err := keyMatchesCertificate(id.PrivateKey, id.Chain[0]); err != nil {
		return err
	}
	s.identities[id.Alias] = id
	s.order = append(s.order, id.Alias)
	return nil
}

// Empty reports whether the store holds no client identity.
func (s *CredentialStore) Empty() bool { return len(s.identities) == 0 }

// Identity returns the identity stored under alias.
func (s *CredentialStore) Identity(alias string) (Identity, bool) {
	id, ok := s.identities[alias]
	return id, ok
}

// ChooseClientAlias returns the first stored alias, or "" for an empty
// store. The alias-pinning decorator overrides this with a fixed answer.
func (s *CredentialStore) ChooseClientAlias([]string, []pkix.Name) string {
	if len(s.order) == 0 {
		return ""
	}
	return s.order[0]
}

// ChooseServerAlias always returns "": the store only ever holds client
// identities.
func (s *CredentialStore) ChooseServerAlias(string, []pkix.Name) string { return "" }

// ClientAliases lists all stored aliases in insertion order.
func (s *CredentialStore) ClientAliases(string, []pkix.Name) []string {
	return append([]string(nil), s.order...)
}

// ServerAliases always returns nil.
func (s *CredentialStore) ServerAliases(string, []pkix.Name) []string { return nil }

// CertificateChain returns the chain stored under alias, or nil.
func (s *CredentialStore) CertificateChain(alias string) []*x509.Certificate {
	return s.identities[alias].Chain
}

// PrivateKey returns the key stored under alias, or nil.
func (s *CredentialStore) PrivateKey(alias string) crypto.PrivateKey {
	return s.identities[alias].PrivateKey
}

// keyMatchesCertificate verifies that key is a usable signer whose public
// key matches the certificate.
func keyMatchesCertificate(key crypto.PrivateKey, cert *x509.Certificate) error {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return fmt.Errorf("unsupported private key type %T", key)
	}
	pub, ok := cert.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return fmt.Errorf("unsupported certificate public key type %T", cert.PublicKey)
	}
	if !pub.Equal(signer.Public()) {
		return errors.New("private key does not match certificate")
	}
	return nil
}
