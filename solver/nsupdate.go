package solver

import (
	"context"
	"time"

	"github.com/acme-core/acmecore/dnsupdate"
	"github.com/acme-core/acmecore/protocol"
)

// NowFunc supplies the timestamp used in the TSIG signature; tests inject
// a fixed value for determinism.
type NowFunc func() time.Time

// NSUpdateSolver is the DNS-01 variant that provisions the TXT record via
// a TSIG-signed DNS UPDATE packet instead of a provider API callback.
type NSUpdateSolver struct {
	cfg dnsupdate.Config
	now NowFunc
	ttl uint32
}

// NewNSUpdateSolver builds a DNS-01 solver that signs and sends its own
// DNS UPDATE packets. now defaults to time.Now if nil.
func NewNSUpdateSolver(cfg dnsupdate.Config, now NowFunc) *NSUpdateSolver {
	if now == nil {
		now = time.Now
	}
	return &NSUpdateSolver{cfg: cfg, now: now, ttl: 120}
}

func (s *NSUpdateSolver) Type() protocol.ChallengeType { return protocol.ChallengeDNS01 }

func (s *NSUpdateSolver) Provision(ctx context.Context, identifier, token, keyAuthorization string) error {
	return dnsupdate.Update(s.cfg, DNSRecordName(identifier), DNSRecordValue(keyAuthorization), s.ttl, s.now())
}

func (s *NSUpdateSolver) CleanUp(ctx context.Context, identifier, token, keyAuthorization string) error {
	// Removing a DNS-01 TXT record via nsupdate would require a second,
	// differently-shaped UPDATE packet (a delete, not an add); the spec
	// treats cleanup as best-effort and this module does not attempt it
	// for the TSIG variant, matching its "not required to succeed" note.
	return nil
}
