package protocol

import (
	"fmt"

	"golang.org/x/net/idna"
)

var idnaProfile = idna.New(
	idna.ValidateLabels(true),
	idna.VerifyDNSLength(true),
	idna.StrictDomainName(false),
)

// NewDNSIdentifier builds a "dns" Identifier from a domain name, rejecting
// anything that doesn't IDNA-normalize to a valid DNS label sequence. CAs
// that serve IDN domains expect the punycode (ASCII) form here.
func NewDNSIdentifier(domain string) (Identifier, error) {
	ascii, err := idnaProfile.ToASCII(domain)
	if err != nil {
		return Identifier{}, fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	return Identifier{Type: "dns", Value: ascii}, nil
}

// Validate enforces the spec's "only type=dns is accepted" identifier
// decode rule.
func (i Identifier) Validate() error {
	if i.Type != "dns" {
		return fmt.Errorf("unsupported identifier type %q", i.Type)
	}
	if i.Value == "" {
		return fmt.Errorf("empty identifier value")
	}
	return nil
}
