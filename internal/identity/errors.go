package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ErrorKind classifies failures so callers can branch on what went wrong
// without parsing messages.
type ErrorKind string

const (
	KindDuplicateAccount  ErrorKind = "duplicate_account"
	KindWeakCredential    ErrorKind = "weak_credential"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindNetworkFailure    ErrorKind = "network_failure"
	KindTimeout           ErrorKind = "timeout"
	KindOAuthExchange     ErrorKind = "oauth_exchange_failure"
	KindNotFound          ErrorKind = "not_found"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindUnknown           ErrorKind = "unknown"
)

// Error carries the classification alongside the server or transport message.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}

var wireCodeKinds = map[string]ErrorKind{
	"DUPLICATE_ACCOUNT":     KindDuplicateAccount,
	"EMAIL_EXISTS":          KindDuplicateAccount,
	"WEAK_CREDENTIAL":       KindWeakCredential,
	"INVALID_CREDENTIAL":    KindInvalidCredential,
	"INVALID_CREDENTIALS":   KindInvalidCredential,
	"OAUTH_EXCHANGE_FAILED": KindOAuthExchange,
	"UNKNOWN_PROVIDER":      KindOAuthExchange,
	"NOT_FOUND":             KindNotFound,
	"UNAUTHORIZED":          KindUnauthorized,
}

// FromResponse reads an error payload from a non-2xx response and classifies
// it. The body is consumed.
func FromResponse(resp *http.Response) error {
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	kind, ok := wireCodeKinds[payload.Code]
	if !ok {
		kind = KindUnknown
	}
	message := payload.Error
	if message == "" {
		message = fmt.Sprintf("server returned status %d", resp.StatusCode)
	}
	return &Error{Kind: kind, Message: message}
}

// FromTransport classifies a failed round trip: timeouts and cancelled
// contexts map to KindTimeout, everything else to KindNetworkFailure.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	kind := KindNetworkFailure
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = KindTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: err.Error(), cause: err}
}
