package payment

import (
	"errors"
	"fmt"
)

const maxErrorBody = 512

// HTTPError is a non-2xx provider response. It exposes HTTPStatus for the retry classifier.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s api: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatus() int { return e.StatusCode }

func newHTTPError(provider string, status int, body []byte) *HTTPError {
	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return &HTTPError{Provider: provider, StatusCode: status, Body: b}
}

// RequestError means the request cannot be sent as given: missing phone, missing account, bad MSISDN.
type RequestError struct {
	Provider string
	Msg      string
}

func (e *RequestError) Error() string {
	return e.Provider + ": " + e.Msg
}

// ErrNotConfigured is returned when neither the merchant nor the platform has credentials for a provider.
var ErrNotConfigured = errors.New("provider credentials are not configured")

// IsClientError reports whether err means the provider rejected the request itself
// (400/402/422 or a RequestError) rather than failing.
func IsClientError(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		switch he.StatusCode {
		case 400, 402, 422:
			return true
		}
	}
	return false
}

// IsAuthError reports whether the provider refused our credentials.
func IsAuthError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && (he.StatusCode == 401 || he.StatusCode == 403)
}
