package solver

import (
	"context"
	"crypto/sha256"
	"encoding/asn1"

	"github.com/acme-core/acmecore/protocol"
)

// ALPNProtocol is the literal ALPN protocol string a TLS-ALPN-01 listener
// must negotiate. See https://tools.ietf.org/html/rfc8737#section-3
const ALPNProtocol = "acme-tls/1"

// acmeIdentifierOID is the critical X.509 extension OID carrying the
// challenge proof in a TLS-ALPN-01 self-signed certificate.
// 1.3.6.1.5.5.7.1.31
var acmeIdentifierOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}

// AcmeIdentifierOID exposes the OID for callers building the self-signed
// certificate's extension list.
func AcmeIdentifierOID() asn1.ObjectIdentifier { return acmeIdentifierOID }

// AcmeIdentifierExtensionValue computes the DER bytes that belong in the
// critical acmeIdentifier extension: an ASN.1 OCTET STRING wrapping
// SHA-256(key authorization).
func AcmeIdentifierExtensionValue(keyAuthorization string) ([]byte, error) {
	sum := sha256.Sum256([]byte(keyAuthorization))
	return asn1.Marshal(sum[:])
}

// TLSALPNCallback is handed the domain and the acmeIdentifier extension
// value; it's responsible for building and serving a self-signed
// tls.Certificate carrying that extension when a TLS ClientHello
// negotiates ALPN "acme-tls/1" for domain. Certificate/key generation is
// an external X.509 collaborator, not this module's concern.
type TLSALPNCallback func(domain string, extensionValue []byte) error

type TLSALPNSolver struct {
	provision TLSALPNCallback
	cleanup   TLSALPNCallback
}

func NewTLSALPNSolver(provision, cleanup TLSALPNCallback) *TLSALPNSolver {
	return &TLSALPNSolver{provision: provision, cleanup: cleanup}
}

func (s *TLSALPNSolver) Type() protocol.ChallengeType { return protocol.ChallengeTLSALPN01 }

func (s *TLSALPNSolver) Provision(ctx context.Context, identifier, token, keyAuthorization string) error {
	ext, err := AcmeIdentifierExtensionValue(keyAuthorization)
	if err != nil {
		return err
	}
	if s.provision == nil {
		return nil
	}
	return s.provision(identifier, ext)
}

func (s *TLSALPNSolver) CleanUp(ctx context.Context, identifier, token, keyAuthorization string) error {
	if s.cleanup == nil {
		return nil
	}
	ext, err := AcmeIdentifierExtensionValue(keyAuthorization)
	if err != nil {
		return err
	}
	return s.cleanup(identifier, ext)
}
