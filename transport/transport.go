// Package transport implements the nonce-chained, signed POST envelope
// every ACME request travels in: a single-slot nonce cache, POST-as-GET,
// and the bad_nonce-triggers-one-retry policy.
package transport

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/acme-core/acmecore/jws"
	"github.com/acme-core/acmecore/protocol"
)

const contentType = "application/jose+json"

// Response is the parsed envelope of an ACME HTTP response: status code,
// the headers this module cares about, and the raw body.
type Response struct {
	StatusCode int
	Location   string
	Link       []string
	RetryAfter time.Duration
	Body       []byte
}

// Transport owns the single-slot nonce cache for one Client instance. It
// must never be shared between concurrent requests: the ACME protocol
// requires strict nonce chaining, so at most one request from a given
// Transport is ever in flight.
type Transport struct {
	httpClient  *http.Client
	newNonceURL string
	cachedNonce string
	log         *slog.Logger
}

func New(httpClient *http.Client, newNonceURL string, log *slog.Logger) *Transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Transport{httpClient: httpClient, newNonceURL: newNonceURL, log: log}
}

// nonce returns a nonce to sign with: the cached one if present, otherwise
// a fresh one fetched with HEAD newNonce. See RFC 8555 section 7.2.
func (t *Transport) nonce(ctx context.Context) (string, error) {
	if t.cachedNonce != "" {
		n := t.cachedNonce
		t.cachedNonce = ""
		return n, nil
	}
	return t.refreshNonce(ctx)
}

func (t *Transport) refreshNonce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.newNonceURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	n := resp.Header.Get("Replay-Nonce")
	if n == "" {
		return "", fmt.Errorf("transport: newNonce response carried no Replay-Nonce header")
	}
	return n, nil
}

func (t *Transport) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.httpClient.Do(req)
	dur := time.Since(start)
	if err != nil {
		t.log.Error("http request failed", "method", req.Method, "url", req.URL.String(), "error", err, "duration", dur)
		return nil, err
	}
	t.log.Info("http request", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "duration", dur)
	return resp, nil
}

// Post signs body with key and opts, POSTs it to url with
// content-type application/jose+json, and parses the response. On a
// bad_nonce problem document it clears the cache and retries exactly
// once; any other problem document or transport error is returned as-is.
// ctx bounds both the nonce refresh and the signed POST itself.
func (t *Transport) Post(ctx context.Context, key *rsa.PrivateKey, url string, body []byte, opts jws.SigningOptions) (*Response, error) {
	resp, problem, err := t.postOnce(ctx, key, url, body, opts)
	if err != nil {
		return nil, err
	}
	if problem != nil && problem.Kind == protocol.ErrorBadNonce {
		resp, problem, err = t.postOnce(ctx, key, url, body, opts)
		if err != nil {
			return nil, err
		}
	}
	if problem != nil {
		return nil, protocol.NewProblemError(problem)
	}
	return resp, nil
}

// PostAsGet is Post with an empty-string payload, the RFC 8555 convention
// for authenticated reads.
func (t *Transport) PostAsGet(ctx context.Context, key *rsa.PrivateKey, url string, opts jws.SigningOptions) (*Response, error) {
	return t.Post(ctx, key, url, nil, opts)
}

func (t *Transport) postOnce(ctx context.Context, key *rsa.PrivateKey, url string, body []byte, opts jws.SigningOptions) (*Response, *protocol.Problem, error) {
	nonce, err := t.nonce(ctx)
	if err != nil {
		return nil, nil, err
	}

	if body == nil {
		body = []byte{}
	}
	signed, err := jws.Sign(key, url, nonce, body, opts)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(signed))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", contentType)

	httpResp, err := t.do(req)
	if err != nil {
		return nil, nil, err
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: reading response body: %w", err)
	}

	if next := httpResp.Header.Get("Replay-Nonce"); next != "" {
		t.cachedNonce = next
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Location:   httpResp.Header.Get("Location"),
		Link:       httpResp.Header.Values("Link"),
		RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After"), 2*time.Second),
		Body:       rawBody,
	}

	if httpResp.StatusCode >= 400 {
		problem, perr := protocol.DecodeProblem(rawBody, httpResp.StatusCode)
		if perr != nil {
			return nil, nil, fmt.Errorf("transport: non-2xx response with undecodable problem body: %w", perr)
		}
		return resp, problem, nil
	}

	return resp, nil, nil
}

// parseRetryAfter parses a Retry-After header value, which may be either
// an integer number of seconds or an HTTP-date, falling back to a
// default when absent or unparseable.
func parseRetryAfter(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
}
