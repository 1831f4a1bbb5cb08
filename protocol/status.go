package protocol

import (
	"encoding/json"
	"fmt"
)

// OrderStatus is the closed set of states an Order can occupy. See
// https://tools.ietf.org/html/rfc8555#section-7.1.6
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderReady      OrderStatus = "ready"
	OrderProcessing OrderStatus = "processing"
	OrderValid      OrderStatus = "valid"
	OrderInvalid    OrderStatus = "invalid"
)

func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch OrderStatus(raw) {
	case OrderPending, OrderReady, OrderProcessing, OrderValid, OrderInvalid:
		*s = OrderStatus(raw)
		return nil
	}
	return fmt.Errorf("unknown order status %q", raw)
}

// AuthorizationStatus is the closed set of states an Authorization can
// occupy. See https://tools.ietf.org/html/rfc8555#section-7.1.6
type AuthorizationStatus string

const (
	AuthorizationPending      AuthorizationStatus = "pending"
	AuthorizationValid        AuthorizationStatus = "valid"
	AuthorizationInvalid      AuthorizationStatus = "invalid"
	AuthorizationDeactivated  AuthorizationStatus = "deactivated"
	AuthorizationExpired      AuthorizationStatus = "expired"
	AuthorizationRevoked      AuthorizationStatus = "revoked"
)

func (s *AuthorizationStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch AuthorizationStatus(raw) {
	case AuthorizationPending, AuthorizationValid, AuthorizationInvalid,
		AuthorizationDeactivated, AuthorizationExpired, AuthorizationRevoked:
		*s = AuthorizationStatus(raw)
		return nil
	}
	return fmt.Errorf("unknown authorization status %q", raw)
}

// ChallengeStatus is the closed set of states a Challenge can occupy. See
// https://tools.ietf.org/html/rfc8555#section-7.1.6
type ChallengeStatus string

const (
	ChallengePending    ChallengeStatus = "pending"
	ChallengeProcessing ChallengeStatus = "processing"
	ChallengeValid      ChallengeStatus = "valid"
	ChallengeInvalid    ChallengeStatus = "invalid"
)

func (s *ChallengeStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch ChallengeStatus(raw) {
	case ChallengePending, ChallengeProcessing, ChallengeValid, ChallengeInvalid:
		*s = ChallengeStatus(raw)
		return nil
	}
	return fmt.Errorf("unknown challenge status %q", raw)
}

func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeValid || s == ChallengeInvalid
}

func (s OrderStatus) Terminal() bool {
	return s == OrderValid || s == OrderInvalid
}

// AccountStatus is the closed set of states an Account can occupy.
type AccountStatus string

const (
	AccountValid       AccountStatus = "valid"
	AccountDeactivated AccountStatus = "deactivated"
	AccountRevoked     AccountStatus = "revoked"
)

func (s *AccountStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch AccountStatus(raw) {
	case AccountValid, AccountDeactivated, AccountRevoked:
		*s = AccountStatus(raw)
		return nil
	}
	return fmt.Errorf("unknown account status %q", raw)
}

// ChallengeType is the closed set of challenge types this module knows how
// to decode and solve.
type ChallengeType string

const (
	ChallengeHTTP01    ChallengeType = "http-01"
	ChallengeDNS01     ChallengeType = "dns-01"
	ChallengeTLSALPN01 ChallengeType = "tls-alpn-01"
)
