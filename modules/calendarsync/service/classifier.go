package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jonlee90/thepuppyday-sub014/core/constants"
	"github.com/jonlee90/thepuppyday-sub014/modules/calendarsync/provider"
)

type ErrorCategory string

const (
	CategoryTransient ErrorCategory = "transient"
	CategoryPermanent ErrorCategory = "permanent"
)

type FailureReason string

const (
	ReasonNetwork     FailureReason = "network"
	ReasonRateLimited FailureReason = "rate_limited"
	ReasonServerError FailureReason = "server_error"
	ReasonAuth        FailureReason = "auth"
	ReasonNotFound    FailureReason = "not_found"
	ReasonBadRequest  FailureReason = "bad_request"
	ReasonUnknown     FailureReason = "unknown"
)

// Classification routes a provider failure: transient errors go to the retry
// queue with SuggestedDelay, permanent ones do not.
type Classification struct {
	Category       ErrorCategory
	Reason         FailureReason
	SuggestedDelay time.Duration
}

// Retryable reports whether the retry queue should pick this failure up.
func (c Classification) Retryable() bool {
	return c.Category == CategoryTransient
}

// Classify categorizes a provider failure. Anything unrecognized is treated
// as transient with the standard backoff: retrying a mystery beats dropping
// data.
func Classify(err error) Classification {
	standard := constants.RetryBackoffSchedule[0]

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			delay := standard
			if apiErr.RetryAfter != nil && *apiErr.RetryAfter > delay {
				delay = *apiErr.RetryAfter
			}
			return Classification{Category: CategoryTransient, Reason: ReasonRateLimited, SuggestedDelay: delay}
		case apiErr.StatusCode >= 500:
			return Classification{Category: CategoryTransient, Reason: ReasonServerError, SuggestedDelay: standard}
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return Classification{Category: CategoryPermanent, Reason: ReasonAuth}
		case apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusGone:
			return Classification{Category: CategoryPermanent, Reason: ReasonNotFound}
		case apiErr.StatusCode == http.StatusBadRequest:
			return Classification{Category: CategoryPermanent, Reason: ReasonBadRequest}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return Classification{Category: CategoryTransient, Reason: ReasonNetwork, SuggestedDelay: standard}
	}

	return Classification{Category: CategoryTransient, Reason: ReasonUnknown, SuggestedDelay: standard}
}
