// Package solver implements the ACME challenge-provisioning side channels:
// HTTP-01, DNS-01 (plain and TSIG-signed nsupdate), TLS-ALPN-01, and three
// interactive "print & wait" solvers for manual provisioning. The
// provision/cleanup contract mirrors go-acme/lego's challenge.Provider
// interface: CleanUp is best-effort and its failures are only logged.
package solver

import (
	"context"
	"log"

	"github.com/acme-core/acmecore/protocol"
)

// Solver installs and removes a challenge response on one side channel.
// A solver declares the single challenge type it handles via Type; the
// client state machine picks, via Select, the first configured solver
// whose type matches any challenge on an authorization, and the first
// such challenge.
type Solver interface {
	Type() protocol.ChallengeType
	// Provision installs the challenge response so the CA can validate
	// it. identifier is the DNS name under authorization, token and
	// keyAuthorization come from the selected Challenge.
	Provision(ctx context.Context, identifier, token, keyAuthorization string) error
	// CleanUp best-effort removes what Provision installed. Errors are
	// logged by the caller, never treated as fatal.
	CleanUp(ctx context.Context, identifier, token, keyAuthorization string) error
}

// CleanUpBestEffort runs s.CleanUp and logs, rather than propagates, any
// error - the contract every built-in solver in this package honors.
func CleanUpBestEffort(ctx context.Context, s Solver, identifier, token, keyAuthorization string) {
	if err := s.CleanUp(ctx, identifier, token, keyAuthorization); err != nil {
		log.Printf("solver: cleanup for %s (%s) failed, continuing: %v", identifier, s.Type(), err)
	}
}

// Extension wraps a caller-supplied closure as a Solver, matching spec
// design note's "sum of built-in solvers plus an extension case holding a
// user-supplied closure" rather than open-ended dispatch.
type Extension struct {
	ChallengeType protocol.ChallengeType
	ProvisionFunc func(ctx context.Context, identifier, token, keyAuthorization string) error
	CleanUpFunc   func(ctx context.Context, identifier, token, keyAuthorization string) error
}

func (e *Extension) Type() protocol.ChallengeType { return e.ChallengeType }

func (e *Extension) Provision(ctx context.Context, identifier, token, keyAuthorization string) error {
	return e.ProvisionFunc(ctx, identifier, token, keyAuthorization)
}

func (e *Extension) CleanUp(ctx context.Context, identifier, token, keyAuthorization string) error {
	if e.CleanUpFunc == nil {
		return nil
	}
	return e.CleanUpFunc(ctx, identifier, token, keyAuthorization)
}

// Select returns the first solver in solvers whose Type matches one of
// the authorization's challenges, along with that challenge. It returns
// an error with a message matching the spec's "no supported challenge"
// wording if none match.
func Select(challenges []protocol.Challenge, solvers []Solver) (Solver, protocol.Challenge, error) {
	for _, s := range solvers {
		for _, c := range challenges {
			if protocol.ChallengeType(c.Type) == s.Type() {
				return s, c, nil
			}
		}
	}
	return nil, protocol.Challenge{}, protocol.NewMsgError("no supported challenge")
}
