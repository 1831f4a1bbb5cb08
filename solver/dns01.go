package solver

import (
	"context"
	"crypto/sha256"
	"encoding/base64"

	"github.com/acme-core/acmecore/protocol"
)

const dnsChallengeLabel = "_acme-challenge."

// DNSRecordValue computes the TXT record content for a DNS-01 challenge:
// base64url(SHA-256(key authorization)), no padding.
func DNSRecordValue(keyAuthorization string) string {
	sum := sha256.Sum256([]byte(keyAuthorization))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// DNSRecordName is the TXT record name a DNS-01 solver must publish:
// "_acme-challenge.<domain>".
func DNSRecordName(domain string) string {
	return dnsChallengeLabel + domain
}

// DNSCallback provisions (or removes) the TXT record at
// _acme-challenge.<domain> with the given content.
type DNSCallback func(domainWithPrefix, content string) error

// DNSSolver is the built-in DNS-01 solver, backed by a caller-supplied
// callback that actually talks to a DNS provider's API.
type DNSSolver struct {
	provision DNSCallback
	cleanup   DNSCallback
}

func NewDNSSolver(provision, cleanup DNSCallback) *DNSSolver {
	return &DNSSolver{provision: provision, cleanup: cleanup}
}

func (s *DNSSolver) Type() protocol.ChallengeType { return protocol.ChallengeDNS01 }

func (s *DNSSolver) Provision(ctx context.Context, identifier, token, keyAuthorization string) error {
	if s.provision == nil {
		return nil
	}
	return s.provision(DNSRecordName(identifier), DNSRecordValue(keyAuthorization))
}

func (s *DNSSolver) CleanUp(ctx context.Context, identifier, token, keyAuthorization string) error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup(DNSRecordName(identifier), DNSRecordValue(keyAuthorization))
}
