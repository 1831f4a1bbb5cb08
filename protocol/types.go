// Package protocol holds the ACME (RFC 8555) wire types: directory,
// account, order, authorization, challenge, and problem documents, along
// with their JSON decoders and closed status enumerations.
package protocol

import (
	"encoding/json"
	"log"
	"time"
)

// Directory is the CA's endpoint map, fetched once at client construction
// and never mutated afterwards. See
// https://tools.ietf.org/html/rfc8555#section-7.1.1
type Directory struct {
	NewNonce   string         `json:"newNonce"`
	NewAccount string         `json:"newAccount"`
	NewOrder   string         `json:"newOrder"`
	NewAuthz   string         `json:"newAuthz,omitempty"`
	RevokeCert string         `json:"revokeCert"`
	KeyChange  string         `json:"keyChange"`
	Meta       *DirectoryMeta `json:"meta,omitempty"`
}

type DirectoryMeta struct {
	TermsOfService string   `json:"termsOfService,omitempty"`
	Website        string   `json:"website,omitempty"`
	CAAIdentities  []string `json:"caaIdentities,omitempty"`
}

// Identifier is an ACME identifier. Only type "dns" is accepted; decode
// fails on anything else.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UnmarshalJSON enforces the spec's "only type=dns is accepted" rule at
// decode time, so an identifier of any other type never makes it into an
// Order or Authorization.
func (i *Identifier) UnmarshalJSON(data []byte) error {
	type raw Identifier
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	id := Identifier(r)
	if err := id.Validate(); err != nil {
		return err
	}
	*i = id
	return nil
}

// Account is the registered subscriber record. The server assigns its URL
// (the "kid") via the Location header on creation; that value is carried
// on the Client instance, not on this struct, since it isn't part of the
// JSON body.
type Account struct {
	Status               AccountStatus `json:"status"`
	Contact              []string      `json:"contact,omitempty"`
	TermsOfServiceAgreed bool          `json:"termsOfServiceAgreed,omitempty"`
	Orders               string        `json:"orders,omitempty"`
	InitialIP            string        `json:"initialIp,omitempty"`
	CreatedAt            *time.Time    `json:"createdAt,omitempty"`
}

// Order is one certificate issuance attempt. See
// https://tools.ietf.org/html/rfc8555#section-7.1.3
type Order struct {
	Status         OrderStatus     `json:"status"`
	Expires        string          `json:"expires,omitempty"`
	Identifiers    []Identifier    `json:"identifiers"`
	NotBefore      string          `json:"notBefore,omitempty"`
	NotAfter       string          `json:"notAfter,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
	Authorizations []string        `json:"authorizations"`
	Finalize       string          `json:"finalize"`
	Certificate    string          `json:"certificate,omitempty"`

	// URL is not part of the ACME JSON body; it is populated by the client
	// from the response's Location header on creation.
	URL string `json:"-"`
}

// UnmarshalJSON enforces the spec's requirement that an Order carry at
// least one authorization URL.
func (o *Order) UnmarshalJSON(data []byte) error {
	type raw Order
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if len(r.Authorizations) == 0 {
		return errNoAuthorizations
	}
	*o = Order(r)
	return nil
}

var errNoAuthorizations = &decodeError{"no authorizations found in order"}

type decodeError struct{ msg string }

func (e *decodeError) Error() string { return e.msg }

// Authorization proves control of one identifier. See
// https://tools.ietf.org/html/rfc8555#section-7.1.4
type Authorization struct {
	Identifier Identifier          `json:"identifier"`
	Status     AuthorizationStatus `json:"status"`
	Expires    string              `json:"expires,omitempty"`
	Challenges []Challenge         `json:"-"`
	Wildcard   bool                `json:"wildcard,omitempty"`

	// URL is populated by the client; it is the authorization resource
	// URL, not part of the JSON body.
	URL string `json:"-"`
}

// UnmarshalJSON decodes the challenges list, dropping any challenge whose
// type isn't one of the closed set this module understands. This is
// forward-compatible by design: new challenge types introduced by a CA
// shouldn't break decoding of the rest of the authorization.
func (a *Authorization) UnmarshalJSON(data []byte) error {
	type raw struct {
		Identifier Identifier          `json:"identifier"`
		Status     AuthorizationStatus `json:"status"`
		Expires    string              `json:"expires,omitempty"`
		Challenges []json.RawMessage   `json:"challenges"`
		Wildcard   bool                `json:"wildcard,omitempty"`
	}
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	var kept []Challenge
	for _, c := range r.Challenges {
		var ch Challenge
		if err := json.Unmarshal(c, &ch); err != nil {
			return err
		}
		switch ChallengeType(ch.Type) {
		case ChallengeHTTP01, ChallengeDNS01, ChallengeTLSALPN01:
			kept = append(kept, ch)
		default:
			log.Printf("authorization: dropping unsupported challenge type %q", ch.Type)
		}
	}

	a.Identifier = r.Identifier
	a.Status = r.Status
	a.Expires = r.Expires
	a.Challenges = kept
	a.Wildcard = r.Wildcard
	return nil
}

// Challenge is one method of proving control of an identifier. See
// https://tools.ietf.org/html/rfc8555#section-8
type Challenge struct {
	Type      string          `json:"type"`
	URL       string          `json:"url"`
	Status    ChallengeStatus `json:"status"`
	Token     string          `json:"token"`
	Validated *time.Time      `json:"validated,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}
