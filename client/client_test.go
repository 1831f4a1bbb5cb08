package client

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acme-core/acmecore/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeACMEServer is a minimal RFC 8555 server covering exactly the
// requests one SignCertificate run makes, modeled on the shape of a
// handler keyed by path rather than a full CA implementation.
type fakeACMEServer struct {
	mu                sync.Mutex
	accountExists     bool
	accountCreated    bool
	challengeNotified bool
	authzValid        bool
	orderFinalized    bool
	nonceCounter      int32

	issuedLeaf []byte
	srv        *httptest.Server
}

func newFakeACMEServer(t *testing.T) *fakeACMEServer {
	f := &fakeACMEServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/directory", f.handleDirectory)
	mux.HandleFunc("/new-nonce", f.handleNewNonce)
	mux.HandleFunc("/new-account", f.handleNewAccount)
	mux.HandleFunc("/new-order", f.handleNewOrder)
	mux.HandleFunc("/authz/1", f.handleAuthz)
	mux.HandleFunc("/challenge/1", f.handleChallenge)
	mux.HandleFunc("/order/1", f.handleOrder)
	mux.HandleFunc("/finalize/1", f.handleFinalize)
	mux.HandleFunc("/cert/1", f.handleCertificate)
	f.srv = httptest.NewServer(mux)

	leaf, err := generateSelfSignedCert()
	require.NoError(t, err)
	f.issuedLeaf = leaf
	return f
}

func (f *fakeACMEServer) url(path string) string { return f.srv.URL + path }

func (f *fakeACMEServer) setNonce(w http.ResponseWriter) {
	n := atomic.AddInt32(&f.nonceCounter, 1)
	w.Header().Set("Replay-Nonce", fmt.Sprintf("nonce-%d", n))
}

func (f *fakeACMEServer) handleDirectory(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"newNonce":   f.url("/new-nonce"),
		"newAccount": f.url("/new-account"),
		"newOrder":   f.url("/new-order"),
		"revokeCert": f.url("/revoke"),
		"keyChange":  f.url("/key-change"),
	})
}

func (f *fakeACMEServer) handleNewNonce(w http.ResponseWriter, r *http.Request) {
	f.setNonce(w)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeACMEServer) handleNewAccount(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setNonce(w)

	var body struct {
		OnlyReturnExisting bool `json:"onlyReturnExisting"`
	}
	decodeJWSPayload(r, &body)

	if body.OnlyReturnExisting {
		if !f.accountExists {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"type":   "urn:ietf:params:acme:error:accountDoesNotExist",
				"detail": "no account found for this key",
			})
			return
		}
		w.Header().Set("Location", f.url("/acct/1"))
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"status": "valid"})
		return
	}

	f.accountExists = true
	f.accountCreated = true
	w.Header().Set("Location", f.url("/acct/1"))
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"status": "valid"})
}

func (f *fakeACMEServer) handleNewOrder(w http.ResponseWriter, r *http.Request) {
	f.setNonce(w)
	w.Header().Set("Location", f.url("/order/1"))
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "pending",
		"identifiers":    []map[string]string{{"type": "dns", "value": "example.com"}},
		"authorizations": []string{f.url("/authz/1")},
		"finalize":       f.url("/finalize/1"),
	})
}

func (f *fakeACMEServer) handleAuthz(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	valid := f.authzValid
	f.mu.Unlock()
	f.setNonce(w)

	status := "pending"
	if valid {
		status = "valid"
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"identifier": map[string]string{"type": "dns", "value": "example.com"},
		"status":     status,
		"challenges": []map[string]any{
			{"type": "http-01", "url": f.url("/challenge/1"), "status": status, "token": "challenge-token"},
		},
	})
}

func (f *fakeACMEServer) handleChallenge(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.challengeNotified = true
	f.authzValid = true
	f.mu.Unlock()
	f.setNonce(w)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"status": "valid"})
}

func (f *fakeACMEServer) handleOrder(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	finalized := f.orderFinalized
	f.mu.Unlock()
	f.setNonce(w)

	status := "ready"
	var cert string
	if finalized {
		status = "valid"
		cert = f.url("/cert/1")
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":         status,
		"identifiers":    []map[string]string{{"type": "dns", "value": "example.com"}},
		"authorizations": []string{f.url("/authz/1")},
		"finalize":       f.url("/finalize/1"),
		"certificate":    cert,
	})
}

func (f *fakeACMEServer) handleFinalize(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.orderFinalized = true
	f.mu.Unlock()
	f.setNonce(w)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"status": "processing"})
}

func (f *fakeACMEServer) handleCertificate(w http.ResponseWriter, r *http.Request) {
	f.setNonce(w)
	w.Header().Set("Content-Type", "application/pem-certificate-chain")
	w.Write(f.issuedLeaf)
}

// decodeJWSPayload decodes the flattened-JWS payload field without
// verifying the signature - this fake server only needs to read what the
// client sent, not authenticate it.
func decodeJWSPayload(r *http.Request, dst any) {
	var envelope struct{ Payload string }
	if json.NewDecoder(r.Body).Decode(&envelope) != nil || envelope.Payload == "" {
		return
	}
	decoded, err := base64URLDecode(envelope.Payload)
	if err != nil {
		return
	}
	json.Unmarshal(decoded, dst)
}

func generateSelfSignedCert() ([]byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.com"},
		DNSNames:     []string{"example.com"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), nil
}

func generateCSR(key *rsa.PrivateKey, dnsNames []string) ([]byte, error) {
	tmpl := &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: dnsNames[0]},
		DNSNames: dnsNames,
	}
	return x509.CreateCertificateRequest(rand.Reader, tmpl, key)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func TestSignCertificateDrivesFullStateMachine(t *testing.T) {
	f := newFakeACMEServer(t)
	defer f.srv.Close()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	c, err := Initialise(context.Background(), f.url("/directory"), "admin@example.com", key, Config{})
	require.NoError(t, err)
	assert.Equal(t, f.url("/acct/1"), c.KID)
	assert.True(t, f.accountCreated)

	csr, err := generateCSR(key, []string{"example.com"})
	require.NoError(t, err)

	httpSolver := solver.NewHTTPSolver(nil, nil)
	var sleeps int
	sleep := func(ctx context.Context, d time.Duration) error { sleeps++; return nil }

	certs, err := c.SignCertificate(context.Background(), []solver.Solver{httpSolver}, sleep, csr)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "example.com", certs[0].Subject.CommonName)
	assert.True(t, f.challengeNotified)
}

func TestInitialiseReusesExistingAccount(t *testing.T) {
	f := newFakeACMEServer(t)
	defer f.srv.Close()
	f.accountExists = true

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	c, err := Initialise(context.Background(), f.url("/directory"), "", key, Config{})
	require.NoError(t, err)
	assert.Equal(t, f.url("/acct/1"), c.KID)
	assert.False(t, f.accountCreated, "existing account must not trigger a creation POST")
}
