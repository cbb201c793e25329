package pkiconn_test

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kardianos/pkiconn"
	"github.com/kardianos/pkiconn/docstore"
	"github.com/kardianos/pkiconn/pkimock"
)

func newServerIdentity(t *testing.T) (*x509.Certificate, crypto.Signer) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return selfSign(t, "pki.example.test", key)
}

func newClientIdentity(t *testing.T) (*x509.Certificate, crypto.Signer) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ecdsa key: %v", err)
	}
	return selfSign(t, "entity-1", key)
}

func selfSign(t *testing.T, cn string, key crypto.Signer) (*x509.Certificate, crypto.Signer) {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		DNSNames:              []string{cn},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert, key
}

// newPinnedServer starts a TLS test server presenting cert. When clientLeaf
// is non-nil the server demands exactly that client certificate.
func newPinnedServer(t *testing.T, cert *x509.Certificate, key crypto.Signer, clientLeaf *x509.Certificate, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}},
	}
	if clientLeaf != nil {
		srv.TLS.ClientAuth = tls.RequireAnyClientCert
		srv.TLS.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 || !bytes.Equal(rawCerts[0], clientLeaf.Raw) {
				return errors.New("unexpected client certificate")
			}
			return nil
		}
	}
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDocumentPinned(t *testing.T) {
	serverCert, serverKey := newServerIdentity(t)
	srv := newPinnedServer(t, serverCert, serverKey, nil, "service description")

	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:    5,
		ServerCert: serverCert,
		EntityID:   "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	body, err := conn.FetchDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	if string(body) != "service description" {
		t.Errorf("body = %q", body)
	}
}

func TestFetchDocumentMutualTLS(t *testing.T) {
	serverCert, serverKey := newServerIdentity(t)
	clientCert, clientKey := newClientIdentity(t)
	srv := newPinnedServer(t, serverCert, serverKey, clientCert, "authenticated")

	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:     5,
		ServerCert:  serverCert,
		ClientKey:   clientKey,
		ClientChain: []*x509.Certificate{clientCert},
		EntityID:    "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	body, err := conn.FetchDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchDocument with client identity: %v", err)
	}
	if string(body) != "authenticated" {
		t.Errorf("body = %q", body)
	}
}

func TestFetchDocumentRejectsUnpinnedServer(t *testing.T) {
	serverCert, serverKey := newServerIdentity(t)
	otherCert, _ := newServerIdentity(t)
	srv := newPinnedServer(t, serverCert, serverKey, nil, "ignored")

	// Pin a certificate the server does not present.
	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:    5,
		ServerCert: otherCert,
		EntityID:   "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := conn.FetchDocument(context.Background(), srv.URL); err == nil {
		t.Fatal("fetch from a server outside the pin succeeded")
	}
}

func TestFetchDocumentPlainHTTP(t *testing.T) {
	serverCert, _ := newServerIdentity(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain"))
	}))
	t.Cleanup(srv.Close)

	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:    5,
		ServerCert: serverCert,
		EntityID:   "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	body, err := conn.FetchDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("plain http fetch: %v", err)
	}
	if string(body) != "plain" {
		t.Errorf("body = %q", body)
	}
}

func TestFetchDocumentBadURI(t *testing.T) {
	serverCert, _ := newServerIdentity(t)
	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:    5,
		ServerCert: serverCert,
		EntityID:   "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.FetchDocument(context.Background(), "://no-scheme"); err == nil {
		t.Fatal("malformed URI accepted")
	}
}

func TestFetchDocumentCaches(t *testing.T) {
	serverCert, serverKey := newServerIdentity(t)
	srv := newPinnedServer(t, serverCert, serverKey, nil, "cache me")

	docs, err := docstore.Open(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { docs.Close() })

	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:    5,
		ServerCert: serverCert,
		EntityID:   "entity-1",
		Docs:       docs,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := conn.FetchDocument(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}

	cached, err := conn.CachedDocument(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(cached) != "cache me" {
		t.Errorf("cached body = %q", cached)
	}

	rec, err := docs.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.ServerFP != conn.TrustAnchor().Fingerprint().String() {
		t.Error("cached record does not carry the pinned fingerprint")
	}
}

func TestCachedDocumentWithoutStore(t *testing.T) {
	serverCert, _ := newServerIdentity(t)
	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:    5,
		ServerCert: serverCert,
		EntityID:   "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	body, err := conn.CachedDocument("https://pki.example.test/wsdl")
	if err != nil || body != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", body, err)
	}
}

func TestNewConnectorValidation(t *testing.T) {
	serverCert, _ := newServerIdentity(t)
	clientCert, _ := newClientIdentity(t)
	_, wrongKey := newServerIdentity(t)

	if _, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{EntityID: "entity-1"}); !errors.Is(err, pkiconn.ErrNoTrustedCert) {
		t.Errorf("missing server cert: got %v, want ErrNoTrustedCert", err)
	}

	_, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		ServerCert:  serverCert,
		ClientKey:   wrongKey,
		ClientChain: []*x509.Certificate{clientCert},
		EntityID:    "entity-1",
	})
	var credErr *pkiconn.CredentialError
	if !errors.As(err, &credErr) {
		t.Errorf("mismatched client material: got %T (%v), want *CredentialError", err, err)
	}
}

func TestApplyConnectionSettings(t *testing.T) {
	serverCert, _ := newServerIdentity(t)
	clientCert, clientKey := newClientIdentity(t)

	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:     5,
		ServerCert:  serverCert,
		ClientKey:   clientKey,
		ClientChain: []*x509.Certificate{clientCert},
		EntityID:    "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	handle := pkimock.NewClientHandle()
	const uri = "https://pki.example.test/service"

	pkiconn.SharedContextLock.With(func() {
		if err := conn.ApplyConnectionSettings(handle, uri); err != nil {
			t.Errorf("ApplyConnectionSettings: %v", err)
		}
	})

	if got := handle.Endpoint(); got != uri {
		t.Errorf("endpoint = %q, want %q", got, uri)
	}
	if handle.Transport.ConnectTimeout != 5*time.Second || handle.Transport.ReceiveTimeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v, want 5s/5s",
			handle.Transport.ConnectTimeout, handle.Transport.ReceiveTimeout)
	}

	params := handle.Transport.TLSParams
	if params == nil {
		t.Fatal("no TLS parameters installed")
	}
	if len(params.CipherSuites) != len(pkiconn.EnabledCipherSuites) {
		t.Errorf("got %d cipher suites, want %d", len(params.CipherSuites), len(pkiconn.EnabledCipherSuites))
	}
	if params.Config.MinVersion != tls.VersionTLS12 || params.Config.MaxVersion != tls.VersionTLS12 {
		t.Error("installed TLS context is not pinned to TLS 1.2")
	}
	if !params.Config.InsecureSkipVerify || params.Config.VerifyConnection == nil {
		t.Error("installed TLS context does not use pinned verification")
	}
}

func TestApplyConnectionSettingsPlainHTTP(t *testing.T) {
	serverCert, _ := newServerIdentity(t)
	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:    5,
		ServerCert: serverCert,
		EntityID:   "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	handle := pkimock.NewClientHandle()
	if err := conn.ApplyConnectionSettings(handle, "http://pki.example.test/service"); err != nil {
		t.Fatalf("ApplyConnectionSettings: %v", err)
	}
	if handle.Mutated() {
		t.Error("plain http target mutated the handle")
	}
}

func TestApplyConnectionSettingsBadURI(t *testing.T) {
	serverCert, _ := newServerIdentity(t)
	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:    5,
		ServerCert: serverCert,
		EntityID:   "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	handle := pkimock.NewClientHandle()
	if err := conn.ApplyConnectionSettings(handle, "://no-scheme"); err == nil {
		t.Fatal("malformed URI accepted")
	}
	if handle.Mutated() {
		t.Error("failed call mutated the handle")
	}
}

func TestHTTPClientHandleEndToEnd(t *testing.T) {
	serverCert, serverKey := newServerIdentity(t)
	clientCert, clientKey := newClientIdentity(t)
	srv := newPinnedServer(t, serverCert, serverKey, clientCert, "over the conduit")

	conn, err := pkiconn.NewConnector(pkiconn.ConnectorOpt{
		Timeout:     5,
		ServerCert:  serverCert,
		ClientKey:   clientKey,
		ClientChain: []*x509.Certificate{clientCert},
		EntityID:    "entity-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	handle := pkiconn.NewHTTPClientHandle()
	pkiconn.SharedContextLock.With(func() {
		if err := conn.ApplyConnectionSettings(handle, srv.URL); err != nil {
			t.Fatalf("ApplyConnectionSettings: %v", err)
		}
	})
	if handle.Endpoint() != srv.URL {
		t.Errorf("endpoint = %q, want %q", handle.Endpoint(), srv.URL)
	}

	resp, err := handle.Client().Get(handle.Endpoint())
	if err != nil {
		t.Fatalf("GET through configured conduit: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "over the conduit" {
		t.Errorf("body = %q", buf.String())
	}
}
