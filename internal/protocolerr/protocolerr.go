// Package protocolerr defines the typed error taxonomy of the payment
// protocol. Every error carries a machine-readable code, the HTTP status it
// maps to, and a retryable flag.
package protocolerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code enum.
type Code string

const (
	CodeConfiguration        Code = "CONFIGURATION_ERROR"
	CodePaymentRequired      Code = "PAYMENT_REQUIRED"
	CodeMalformedProof       Code = "MALFORMED_PROOF"
	CodeChallengeExpired     Code = "CHALLENGE_EXPIRED_OR_UNKNOWN"
	CodeSignatureInvalid     Code = "SIGNATURE_INVALID"
	CodeSettlementUnverified Code = "SETTLEMENT_UNVERIFIED"
	CodeReplayDetected       Code = "REPLAY_DETECTED"
	CodeReputationDenied     Code = "REPUTATION_DENIED"
	CodeUpstreamUnavailable  Code = "UPSTREAM_UNAVAILABLE"
	CodeSessionLimit         Code = "SESSION_LIMIT_EXCEEDED"
)

// Error is a protocol error with its HTTP mapping.
type Error struct {
	Code      Code              `json:"code"`
	Status    int               `json:"-"`
	Retryable bool              `json:"retryable"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   any               `json:"details,omitempty"`
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithField records a field-level validation detail.
func (e *Error) WithField(field, detail string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = detail
	return e
}

// As extracts a protocol error from an error chain.
func As(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

func Configuration(msg string) *Error {
	return &Error{Code: CodeConfiguration, Status: http.StatusInternalServerError, Retryable: false, Message: msg}
}

func MalformedProof(msg string) *Error {
	return &Error{Code: CodeMalformedProof, Status: http.StatusPaymentRequired, Retryable: true, Message: msg}
}

func ChallengeExpired(msg string) *Error {
	return &Error{Code: CodeChallengeExpired, Status: http.StatusPaymentRequired, Retryable: true, Message: msg}
}

func SignatureInvalid(msg string) *Error {
	return &Error{Code: CodeSignatureInvalid, Status: http.StatusPaymentRequired, Retryable: true, Message: msg}
}

func SettlementUnverified(msg string) *Error {
	return &Error{Code: CodeSettlementUnverified, Status: http.StatusPaymentRequired, Retryable: true, Message: msg}
}

func ReplayDetected(txID string) *Error {
	return &Error{
		Code:      CodeReplayDetected,
		Status:    http.StatusConflict,
		Retryable: false,
		Message:   fmt.Sprintf("transaction %s has already been consumed", txID),
	}
}

func ReputationDenied(reason string) *Error {
	return &Error{Code: CodeReputationDenied, Status: http.StatusForbidden, Retryable: false, Message: reason}
}

func UpstreamUnavailable(msg string) *Error {
	return &Error{Code: CodeUpstreamUnavailable, Status: http.StatusBadGateway, Retryable: true, Message: msg}
}

func SessionLimit(msg string) *Error {
	return &Error{Code: CodeSessionLimit, Status: http.StatusTooManyRequests, Retryable: false, Message: msg}
}
