// Package dnsupdate builds TSIG-signed DNS UPDATE packets for the DNS-01
// challenge's nsupdate variant. It never opens a socket itself — signed
// packets are handed to a caller-supplied send function, and an optional
// recv function's reply is verified before returning.
package dnsupdate

import (
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// SendFunc transmits a packed, TSIG-signed DNS message and is supplied by
// the caller (the actual network transport is an external collaborator).
type SendFunc func(packet []byte) error

// RecvFunc receives the server's reply to a prior Send, if the caller
// wants the update acknowledged and verified.
type RecvFunc func() ([]byte, error)

// Config parameterizes a TSIG-signed DNS UPDATE for DNS-01.
type Config struct {
	// Zone is the DNS zone the UPDATE packet targets (e.g. "example.com.").
	Zone string
	// KeyName and Key are the TSIG key name and base64-encoded secret
	// used to authenticate the UPDATE.
	KeyName string
	Key     string
	// Algorithm defaults to HMAC-SHA256 if empty.
	Algorithm string
	Send      SendFunc
	Recv      RecvFunc
}

// Update builds a DNS UPDATE adding a TXT record named name with the
// given content at ttl seconds, signs it with TSIG, sends it via
// cfg.Send, and if cfg.Recv is set, receives and verifies the signed
// reply. now is the signing time placed in the request's TSIG record and
// is supplied by the caller rather than read from the system clock. The
// reply's own TSIG time is checked by dns.TsigVerify against the system
// clock.
func Update(cfg Config, name, content string, ttl uint32, now time.Time) error {
	if cfg.Send == nil {
		return fmt.Errorf("dnsupdate: Config.Send is required")
	}

	algo := cfg.Algorithm
	if algo == "" {
		algo = dns.HmacSHA256
	}

	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(cfg.Zone))

	rr, err := dns.NewRR(fmt.Sprintf("%s %d IN TXT %q", dns.Fqdn(name), ttl, content))
	if err != nil {
		return fmt.Errorf("dnsupdate: building TXT RR: %w", err)
	}
	m.Insert([]dns.RR{rr})

	m.SetTsig(dns.Fqdn(cfg.KeyName), algo, 300, now.Unix())

	packed, requestMAC, err := dns.TsigGenerate(m, cfg.Key, "", false)
	if err != nil {
		return fmt.Errorf("dnsupdate: signing update: %w", err)
	}

	if err := cfg.Send(packed); err != nil {
		return fmt.Errorf("dnsupdate: sending update: %w", err)
	}

	if cfg.Recv == nil {
		return nil
	}

	replyBytes, err := cfg.Recv()
	if err != nil {
		return fmt.Errorf("dnsupdate: receiving reply: %w", err)
	}

	reply := new(dns.Msg)
	if err := reply.Unpack(replyBytes); err != nil {
		return fmt.Errorf("dnsupdate: unpacking reply: %w", err)
	}
	if reply.IsTsig() == nil {
		return fmt.Errorf("dnsupdate: reply carried no TSIG record")
	}
	if err := dns.TsigVerify(replyBytes, cfg.Key, requestMAC, false); err != nil {
		return fmt.Errorf("dnsupdate: reply TSIG verification failed: %w", err)
	}
	if reply.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("dnsupdate: server rejected update, rcode %s", dns.RcodeToString[reply.Rcode])
	}
	return nil
}
