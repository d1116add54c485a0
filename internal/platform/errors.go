package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the ad platform. The body is kept
// verbatim so operators can diagnose failed operations without re-running.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (status %d): %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the error is transient: a rate-limit or server
// error, or a network failure. Permanent errors (auth failures, invalid ids,
// other 4xx) must not be retried.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	// Non-API errors are network-level failures.
	return err != nil
}

// IsRateLimited reports whether the error is specifically a 429 response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsAuthError reports whether the error is an authentication failure for the
// account token. Per-account auth failures are recorded and the run continues
// with the remaining accounts.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}
