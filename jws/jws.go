// Package jws builds the signed request envelope every authenticated ACME
// request travels in: a flattened JSON Web Signature over RSA-SHA256
// (RS256), either embedding the account's public key ("jwk", used only on
// the bootstrap endpoints) or referencing it by account URL ("kid", used
// everywhere else).
package jws

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// SigningOptions controls how a request is signed. Exactly one of EmbedKey
// or KeyID must be set.
type SigningOptions struct {
	// EmbedKey, if true, puts the full RSA public key in the protected
	// header's "jwk" field instead of a "kid". Used only for the
	// account-lookup probe and new-account creation.
	EmbedKey bool
	// KeyID is the account URL carried as "kid" in the protected header.
	KeyID string
}

func (o SigningOptions) validate() error {
	if o.EmbedKey && o.KeyID != "" {
		return fmt.Errorf("jws: cannot specify both EmbedKey and KeyID")
	}
	if !o.EmbedKey && o.KeyID == "" {
		return fmt.Errorf("jws: must specify EmbedKey or KeyID")
	}
	return nil
}

// Sign builds a flattened JWS over body, authenticated by key, for the
// given request url and nonce, and returns its compact-JSON serialization
// (the exact bytes to POST as the request body). go-jose's NonceSource
// abstraction expects to be consulted by the signer itself; this module's
// transport layer owns the nonce cache, so a trivial one-shot NonceSource
// is used to hand the already-fetched nonce to go-jose rather than
// letting it fetch one itself.
func Sign(key *rsa.PrivateKey, url, nonce string, body []byte, opts SigningOptions) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	signingKey := jose.SigningKey{Algorithm: jose.RS256, Key: key}
	if !opts.EmbedKey {
		signingKey.Key = jose.JSONWebKey{Key: key, KeyID: opts.KeyID}
	}

	signer, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		NonceSource:  staticNonce(nonce),
		EmbedJWK:     opts.EmbedKey,
		ExtraHeaders: map[jose.HeaderKey]any{"url": url},
	})
	if err != nil {
		return nil, fmt.Errorf("jws: new signer: %w", err)
	}

	signed, err := signer.Sign(body)
	if err != nil {
		return nil, fmt.Errorf("jws: sign: %w", err)
	}

	return []byte(signed.FullSerialize()), nil
}

type staticNonce string

func (n staticNonce) Nonce() (string, error) { return string(n), nil }

// Thumbprint computes the RFC 7638 JWK thumbprint of an RSA public key:
// base64url(SHA-256(compact canonical JWK)), where the canonical JWK is
// the object {"e":"<b64>","kty":"RSA","n":"<b64>"} with keys in
// lexicographic order.
func Thumbprint(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	thumb, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("jws: thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumb), nil
}

// KeyAuthorization computes the key authorization for a challenge token:
// token || "." || base64url(SHA-256(canonical JWK of the account key)).
func KeyAuthorization(pub *rsa.PublicKey, token string) (string, error) {
	thumb, err := Thumbprint(pub)
	if err != nil {
		return "", err
	}
	return token + "." + thumb, nil
}
