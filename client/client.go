// Package client implements the ACME state machine: directory discovery,
// account creation or lookup, order submission, authorization solving,
// finalization, and certificate download. It orchestrates the jws,
// transport, protocol, and solver packages; it performs no signing,
// framing, or provisioning logic of its own.
package client

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/acme-core/acmecore/jws"
	"github.com/acme-core/acmecore/protocol"
	"github.com/acme-core/acmecore/solver"
	"github.com/acme-core/acmecore/transport"
)

// Client holds everything one certificate-issuance run needs: the
// directory, the account URL ("kid"), the subscriber's RSA key, and the
// transport's single-slot nonce cache. It is not safe for concurrent use;
// the protocol itself forbids more than one in-flight request per
// account, since the nonce cache is a single slot.
type Client struct {
	Directory protocol.Directory
	Account   protocol.Account
	KID       string
	key       *rsa.PrivateKey
	transport *transport.Transport
	log       *slog.Logger
}

// Config configures Initialise. There is no config-file layer; callers
// build this struct directly, as cpu-acmeshell's ClientConfig does.
type Config struct {
	// HTTPClient is the external HTTP client used for all requests. A
	// nil value uses http.DefaultClient.
	HTTPClient *http.Client
	// Logger receives structured transport logs. A nil value uses
	// slog.Default().
	Logger *slog.Logger
}

// Initialise fetches the CA's directory, then either finds the caller's
// existing account (via the onlyReturnExisting probe) or creates a new
// one. See RFC 8555 sections 7.1.1, 7.3.
func Initialise(ctx context.Context, endpoint, email string, key *rsa.PrivateKey, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dir, err := fetchDirectory(ctx, cfg.HTTPClient, endpoint)
	if err != nil {
		return nil, err
	}

	c := &Client{
		Directory: dir,
		key:       key,
		transport: transport.New(cfg.HTTPClient, dir.NewNonce, cfg.Logger),
		log:       cfg.Logger,
	}

	probeBody, err := json.Marshal(struct {
		OnlyReturnExisting bool `json:"onlyReturnExisting"`
	}{true})
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Post(ctx, c.key, dir.NewAccount, probeBody, jws.SigningOptions{EmbedKey: true})
	switch {
	case err == nil && resp.StatusCode == http.StatusOK:
		return c.finishInitialise(resp)
	case err == nil:
		return nil, protocol.NewMsgError("account probe: unexpected status %d", resp.StatusCode)
	default:
		if perr, ok := asProblem(err); !ok || perr.Kind != protocol.ErrorAccountDoesNotExist {
			return nil, err
		}
	}

	newAcctReq := struct {
		TermsOfServiceAgreed bool     `json:"termsOfServiceAgreed"`
		Contact              []string `json:"contact,omitempty"`
	}{TermsOfServiceAgreed: true}
	if email != "" {
		newAcctReq.Contact = []string{"mailto:" + email}
	}
	body, err := json.Marshal(newAcctReq)
	if err != nil {
		return nil, err
	}

	resp, err = c.transport.Post(ctx, c.key, dir.NewAccount, body, jws.SigningOptions{EmbedKey: true})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, protocol.NewMsgError("new account: unexpected status %d", resp.StatusCode)
	}
	return c.finishInitialise(resp)
}

func (c *Client) finishInitialise(resp *transport.Response) (*Client, error) {
	if resp.Location == "" {
		return nil, protocol.NewMsgError("account response carried no Location header")
	}
	c.KID = resp.Location
	var acct protocol.Account
	if err := json.Unmarshal(resp.Body, &acct); err != nil {
		return nil, protocol.WrapMsgError(err, "decoding account")
	}
	c.Account = acct
	c.log.Info("account ready", "kid", c.KID, "status", acct.Status)
	return c, nil
}

func asProblem(err error) (*protocol.Problem, bool) {
	if ae, ok := err.(*protocol.Error); ok {
		return ae.AsProblem()
	}
	return nil, false
}

func fetchDirectory(ctx context.Context, httpClient *http.Client, endpoint string) (protocol.Directory, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return protocol.Directory{}, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return protocol.Directory{}, fmt.Errorf("fetching directory: %w", err)
	}
	defer resp.Body.Close()

	var dir protocol.Directory
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return protocol.Directory{}, fmt.Errorf("decoding directory: %w", err)
	}
	return dir, nil
}

// SleepFunc pauses for d between polling attempts. Callers typically pass
// a context-aware sleeper so polling honors cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

const (
	pollInterval  = 2 * time.Second
	pollMaxTries  = 10
)

// SignCertificate drives one certificate request to completion: submit
// order, solve every authorization, finalize, download. csr is the
// DER-encoded PKCS#10 CSR bytes; callers build it themselves (X.509
// tooling is an external collaborator). The returned slice is the
// leaf-first certificate chain.
func (c *Client) SignCertificate(ctx context.Context, solvers []solver.Solver, sleep SleepFunc, csr []byte) ([]*x509.Certificate, error) {
	if sleep == nil {
		sleep = defaultSleep
	}

	order, err := c.submitOrder(ctx, csr)
	if err != nil {
		return nil, err
	}

	for _, authzURL := range order.Authorizations {
		if err := c.solveAuthorization(ctx, authzURL, solvers, sleep); err != nil {
			return nil, err
		}
	}

	order, err = c.finalize(ctx, order, csr, sleep)
	if err != nil {
		return nil, err
	}

	return c.download(ctx, order)
}

func (c *Client) submitOrder(ctx context.Context, csr []byte) (*protocol.Order, error) {
	identifiers, err := identifiersFromCSR(csr)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(struct {
		Identifiers []protocol.Identifier `json:"identifiers"`
	}{identifiers})
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Post(ctx, c.key, c.Directory.NewOrder, body, jws.SigningOptions{KeyID: c.KID})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, protocol.NewMsgError("new order: unexpected status %d", resp.StatusCode)
	}

	var order protocol.Order
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return nil, protocol.WrapMsgError(err, "decoding order")
	}
	order.URL = resp.Location
	log.Printf("submitted order %q for %d identifier(s)", order.URL, len(order.Identifiers))
	return &order, nil
}

func (c *Client) solveAuthorization(ctx context.Context, authzURL string, solvers []solver.Solver, sleep SleepFunc) error {
	resp, err := c.transport.PostAsGet(ctx, c.key, authzURL, jws.SigningOptions{KeyID: c.KID})
	if err != nil {
		return err
	}
	var authz protocol.Authorization
	if err := json.Unmarshal(resp.Body, &authz); err != nil {
		return protocol.WrapMsgError(err, "decoding authorization")
	}
	authz.URL = authzURL

	if authz.Status == protocol.AuthorizationValid {
		return nil
	}
	if authz.Status != protocol.AuthorizationPending {
		return protocol.NewMsgError("authorization %q has unexpected status %q", authzURL, authz.Status)
	}

	s, challenge, err := solver.Select(authz.Challenges, solvers)
	if err != nil {
		return err
	}

	keyAuth, err := jws.KeyAuthorization(&c.key.PublicKey, challenge.Token)
	if err != nil {
		return err
	}

	if err := s.Provision(ctx, authz.Identifier.Value, challenge.Token, keyAuth); err != nil {
		return protocol.WrapMsgError(err, "provisioning challenge")
	}
	defer solver.CleanUpBestEffort(ctx, s, authz.Identifier.Value, challenge.Token, keyAuth)

	if _, err := c.transport.Post(ctx, c.key, challenge.URL, []byte("{}"), jws.SigningOptions{KeyID: c.KID}); err != nil {
		return protocol.WrapMsgError(err, "notifying challenge")
	}

	final, err := c.pollUntilTerminal(ctx, authzURL, sleep, func(body []byte) (protocol.ChallengeStatus, json.RawMessage, error) {
		var a protocol.Authorization
		if err := json.Unmarshal(body, &a); err != nil {
			return "", nil, err
		}
		switch a.Status {
		case protocol.AuthorizationValid:
			return protocol.ChallengeValid, nil, nil
		case protocol.AuthorizationInvalid:
			for _, ch := range a.Challenges {
				if ch.Status == protocol.ChallengeInvalid {
					return protocol.ChallengeInvalid, ch.Error, nil
				}
			}
			return protocol.ChallengeInvalid, nil, nil
		default:
			return protocol.ChallengePending, nil, nil
		}
	})
	if err != nil {
		return err
	}
	if final.status == protocol.ChallengeInvalid {
		return protocol.NewMsgError("authorization %q failed validation: %s", authzURL, final.errorDetail)
	}
	return nil
}

type pollResult struct {
	status      protocol.ChallengeStatus
	errorDetail string
}

// pollUntilTerminal repeatedly POST-as-GETs url, decoding the status via
// decode, until it reaches a terminal challenge/order status or the
// attempt cap is exhausted.
func (c *Client) pollUntilTerminal(ctx context.Context, url string, sleep SleepFunc, decode func([]byte) (protocol.ChallengeStatus, json.RawMessage, error)) (pollResult, error) {
	for attempt := 0; attempt < pollMaxTries; attempt++ {
		resp, err := c.transport.PostAsGet(ctx, c.key, url, jws.SigningOptions{KeyID: c.KID})
		if err != nil {
			return pollResult{}, err
		}

		status, errDoc, err := decode(resp.Body)
		if err != nil {
			return pollResult{}, protocol.WrapMsgError(err, "decoding poll response")
		}
		if status.Terminal() {
			detail := ""
			if errDoc != nil {
				detail = string(errDoc)
			}
			return pollResult{status: status, errorDetail: detail}, nil
		}

		wait := resp.RetryAfter
		if wait <= 0 {
			wait = pollInterval
		}
		if err := sleep(ctx, wait); err != nil {
			return pollResult{}, err
		}
	}
	return pollResult{}, protocol.NewMsgError("challenge/order polling exhausted")
}

func (c *Client) finalize(ctx context.Context, order *protocol.Order, csr []byte, sleep SleepFunc) (*protocol.Order, error) {
	body, err := json.Marshal(struct {
		CSR string `json:"csr"`
	}{base64.RawURLEncoding.EncodeToString(csr)})
	if err != nil {
		return nil, err
	}

	if _, err := c.transport.Post(ctx, c.key, order.Finalize, body, jws.SigningOptions{KeyID: c.KID}); err != nil {
		return nil, protocol.WrapMsgError(err, "finalizing order")
	}

	final, err := c.pollUntilTerminal(ctx, order.URL, sleep, func(body []byte) (protocol.ChallengeStatus, json.RawMessage, error) {
		var o protocol.Order
		if err := json.Unmarshal(body, &o); err != nil {
			return "", nil, err
		}
		switch o.Status {
		case protocol.OrderValid:
			return protocol.ChallengeValid, nil, nil
		case protocol.OrderInvalid:
			return protocol.ChallengeInvalid, o.Error, nil
		default:
			return protocol.ChallengePending, nil, nil
		}
	})
	if err != nil {
		return nil, err
	}
	if final.status == protocol.ChallengeInvalid {
		return nil, protocol.NewMsgError("order %q finalization failed: %s", order.URL, final.errorDetail)
	}

	resp, err := c.transport.PostAsGet(ctx, c.key, order.URL, jws.SigningOptions{KeyID: c.KID})
	if err != nil {
		return nil, err
	}
	var refreshed protocol.Order
	if err := json.Unmarshal(resp.Body, &refreshed); err != nil {
		return nil, protocol.WrapMsgError(err, "decoding finalized order")
	}
	refreshed.URL = order.URL
	return &refreshed, nil
}

func (c *Client) download(ctx context.Context, order *protocol.Order) ([]*x509.Certificate, error) {
	resp, err := c.transport.PostAsGet(ctx, c.key, order.Certificate, jws.SigningOptions{KeyID: c.KID})
	if err != nil {
		return nil, err
	}
	return parsePEMChain(resp.Body)
}

func parsePEMChain(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, protocol.WrapMsgError(err, "parsing certificate chain")
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, protocol.NewMsgError("certificate download returned no PEM certificates")
	}
	return certs, nil
}

// identifiersFromCSR extracts the DNS names (CN + SAN, de-duplicated) from
// a DER-encoded CSR.
func identifiersFromCSR(csr []byte) ([]protocol.Identifier, error) {
	parsed, err := x509.ParseCertificateRequest(csr)
	if err != nil {
		return nil, protocol.WrapMsgError(err, "parsing CSR")
	}

	seen := map[string]bool{}
	var identifiers []protocol.Identifier
	add := func(name string) error {
		if name == "" || seen[name] {
			return nil
		}
		id, err := protocol.NewDNSIdentifier(name)
		if err != nil {
			return err
		}
		seen[name] = true
		identifiers = append(identifiers, id)
		return nil
	}

	if err := add(parsed.Subject.CommonName); err != nil {
		return nil, protocol.WrapMsgError(err, "CSR common name")
	}
	for _, name := range parsed.DNSNames {
		if err := add(name); err != nil {
			return nil, protocol.WrapMsgError(err, "CSR DNS name")
		}
	}

	if len(identifiers) == 0 {
		return nil, protocol.NewMsgError("CSR carries no DNS names")
	}
	return identifiers, nil
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
