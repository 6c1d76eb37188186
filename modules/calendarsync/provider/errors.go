package provider

import (
	"fmt"
	"time"
)

// APIError carries the provider's HTTP status so the error classifier can
// route the failure. RetryAfter is populated from the Retry-After header on
// 429 responses when present.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter *time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google calendar api: status %d: %s", e.StatusCode, e.Body)
}

func newAPIError(status int, body []byte, retryAfter *time.Duration) *APIError {
	detail := string(body)
	if len(detail) > 512 {
		detail = detail[:512]
	}
	return &APIError{StatusCode: status, Body: detail, RetryAfter: retryAfter}
}
