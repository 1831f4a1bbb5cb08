package solver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/acme-core/acmecore/protocol"
)

const httpChallengePrefix = ".well-known/acme-challenge"

// HTTPCallback is invoked to serve the key authorization at
// http://<domain>/.well-known/acme-challenge/<token> with content-type
// application/octet-stream. It's the caller's responsibility to actually
// run an HTTP listener on port 80 for domain; this module only computes
// what belongs at that path.
type HTTPCallback func(domain, prefix, token, content string) error

// HTTPSolver is the built-in HTTP-01 solver. Its Handler method also
// returns an http.Handler for the conventional case of a caller running
// its own webserver and wanting the solver to serve the well-known path.
type HTTPSolver struct {
	provision HTTPCallback
	cleanup   HTTPCallback

	mu      sync.Mutex
	tokens  map[string]string // token -> key authorization, for Handler use
}

// NewHTTPSolver builds an HTTP-01 solver around a provisioning callback.
// Provision and CleanUp always add and remove the token in the table
// Handler serves from; a nil provision or cleanup callback is skipped.
func NewHTTPSolver(provision, cleanup HTTPCallback) *HTTPSolver {
	return &HTTPSolver{provision: provision, cleanup: cleanup, tokens: map[string]string{}}
}

func (s *HTTPSolver) Type() protocol.ChallengeType { return protocol.ChallengeHTTP01 }

func (s *HTTPSolver) Provision(ctx context.Context, identifier, token, keyAuthorization string) error {
	s.mu.Lock()
	s.tokens[token] = keyAuthorization
	s.mu.Unlock()
	if s.provision == nil {
		return nil
	}
	return s.provision(identifier, httpChallengePrefix, token, keyAuthorization)
}

func (s *HTTPSolver) CleanUp(ctx context.Context, identifier, token, keyAuthorization string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup(identifier, httpChallengePrefix, token, keyAuthorization)
}

// Handler serves provisioned tokens at /.well-known/acme-challenge/<token>
// for callers that want to run their own webserver but let this solver
// own the response bodies.
func (s *HTTPSolver) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Path[len("/"+httpChallengePrefix+"/"):]
		s.mu.Lock()
		content, ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		fmt.Fprint(w, content)
	})
}
