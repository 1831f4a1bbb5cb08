package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind is the closed enumeration of ACME problem document types this
// module understands, mapped from the URN suffix of
// "urn:ietf:params:acme:error:". See
// https://tools.ietf.org/html/rfc8555#section-6.7
type ErrorKind string

const (
	ErrorAccountDoesNotExist   ErrorKind = "accountDoesNotExist"
	ErrorAlreadyRevoked        ErrorKind = "alreadyRevoked"
	ErrorBadCSR                ErrorKind = "badCSR"
	ErrorBadNonce              ErrorKind = "badNonce"
	ErrorBadPublicKey          ErrorKind = "badPublicKey"
	ErrorBadRevocationReason   ErrorKind = "badRevocationReason"
	ErrorBadSignatureAlgorithm ErrorKind = "badSignatureAlgorithm"
	ErrorCAA                   ErrorKind = "caa"
	ErrorConnection            ErrorKind = "connection"
	ErrorDNS                   ErrorKind = "dns"
	ErrorExternalAccountRequired ErrorKind = "externalAccountRequired"
	ErrorIncorrectResponse     ErrorKind = "incorrectResponse"
	ErrorInvalidContact        ErrorKind = "invalidContact"
	ErrorMalformed             ErrorKind = "malformed"
	ErrorOrderNotReady         ErrorKind = "orderNotReady"
	ErrorRateLimited           ErrorKind = "rateLimited"
	ErrorRejectedIdentifier    ErrorKind = "rejectedIdentifier"
	ErrorServerInternal        ErrorKind = "serverInternal"
	ErrorTLS                   ErrorKind = "tls"
	ErrorUnauthorized          ErrorKind = "unauthorized"
	ErrorUnsupportedContact    ErrorKind = "unsupportedContact"
	ErrorUnsupportedIdentifier ErrorKind = "unsupportedIdentifier"
	ErrorUserActionRequired    ErrorKind = "userActionRequired"
)

const problemURNPrefix = "urn:ietf:params:acme:error:"

var knownErrorKinds = map[ErrorKind]bool{
	ErrorAccountDoesNotExist: true, ErrorAlreadyRevoked: true, ErrorBadCSR: true,
	ErrorBadNonce: true, ErrorBadPublicKey: true, ErrorBadRevocationReason: true,
	ErrorBadSignatureAlgorithm: true, ErrorCAA: true, ErrorConnection: true,
	ErrorDNS: true, ErrorExternalAccountRequired: true, ErrorIncorrectResponse: true,
	ErrorInvalidContact: true, ErrorMalformed: true, ErrorOrderNotReady: true,
	ErrorRateLimited: true, ErrorRejectedIdentifier: true, ErrorServerInternal: true,
	ErrorTLS: true, ErrorUnauthorized: true, ErrorUnsupportedContact: true,
	ErrorUnsupportedIdentifier: true, ErrorUserActionRequired: true,
}

// Problem is a decoded RFC 7807 problem document as returned by an ACME
// server on non-2xx responses.
type Problem struct {
	Kind   ErrorKind
	Detail string
	Status int
}

// DecodeProblem decodes a response body into a Problem. It fails if the
// type URN isn't one of the closed set of ACME error kinds this module
// recognizes.
func DecodeProblem(body []byte, httpStatus int) (*Problem, error) {
	var raw struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode problem document: %w", err)
	}
	suffix := strings.TrimPrefix(raw.Type, problemURNPrefix)
	kind := ErrorKind(suffix)
	if !knownErrorKinds[kind] {
		return nil, fmt.Errorf("unknown problem type %q", raw.Type)
	}
	return &Problem{Kind: kind, Detail: raw.Detail, Status: httpStatus}, nil
}

func (p *Problem) Error() string {
	return fmt.Sprintf("acme problem %s: %s", p.Kind, p.Detail)
}

// Error unifies every failure this module can produce into one of two
// arms: a Problem for CA-signaled errors, or a plain message for
// everything else (decode failures, solver failures, transport I/O
// errors). Callers can distinguish the arms with AsProblem.
type Error struct {
	problem *Problem
	msg     string
	wrapped error
}

func NewProblemError(p *Problem) *Error {
	return &Error{problem: p}
}

func NewMsgError(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

func WrapMsgError(err error, format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), wrapped: err}
}

func (e *Error) Error() string {
	if e.problem != nil {
		return e.problem.Error()
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.wrapped)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.wrapped }

// AsProblem returns the wrapped Problem and true if this Error is a
// CA-signaled problem document, or nil and false for a plain Msg error.
func (e *Error) AsProblem() (*Problem, bool) {
	if e.problem == nil {
		return nil, false
	}
	return e.problem, true
}
