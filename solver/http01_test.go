package solver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSolverProvisionInvokesCallback(t *testing.T) {
	var gotDomain, gotPrefix, gotToken, gotContent string
	s := NewHTTPSolver(func(domain, prefix, token, content string) error {
		gotDomain, gotPrefix, gotToken, gotContent = domain, prefix, token, content
		return nil
	}, nil)

	require.NoError(t, s.Provision(context.Background(), "example.com", "tok123", "keyauth456"))
	assert.Equal(t, "example.com", gotDomain)
	assert.Equal(t, httpChallengePrefix, gotPrefix)
	assert.Equal(t, "tok123", gotToken)
	assert.Equal(t, "keyauth456", gotContent)
}

func TestHTTPSolverCleanUpIsOptional(t *testing.T) {
	s := NewHTTPSolver(nil, nil)
	assert.NoError(t, s.Provision(context.Background(), "example.com", "tok", "keyauth"))
	assert.NoError(t, s.CleanUp(context.Background(), "example.com", "tok", "keyauth"))
}

func TestHTTPSolverHandlerServesProvisionedToken(t *testing.T) {
	s := NewHTTPSolver(nil, nil)
	require.NoError(t, s.Provision(context.Background(), "example.com", "tok123", "keyauth456"))

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/" + httpChallengePrefix + "/tok123")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "keyauth456", string(body))
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
}

func TestHTTPSolverHandler404sAfterCleanUp(t *testing.T) {
	s := NewHTTPSolver(nil, nil)
	require.NoError(t, s.Provision(context.Background(), "example.com", "tok123", "keyauth456"))
	require.NoError(t, s.CleanUp(context.Background(), "example.com", "tok123", "keyauth456"))

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/" + httpChallengePrefix + "/tok123")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
