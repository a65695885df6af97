package graph

import (
	"fmt"
	"net/http"
	"time"
)

const (
	apiErrorMessageTemplateConstant         = "graph request %s %s failed with status %d: %s"
	apiErrorNoBodyMessageTemplateConstant   = "graph request %s %s failed with status %d"
	tooManyRequestsRetryableStatusConstant  = http.StatusTooManyRequests
	serverErrorRetryableStatusLowerConstant = http.StatusInternalServerError
)

// APIError describes a Graph request rejected with a non-2xx status.
type APIError struct {
	Method     string
	RequestURL string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

// Error renders the status code and response body for operator visibility.
func (apiError APIError) Error() string {
	if len(apiError.Body) == 0 {
		return fmt.Sprintf(apiErrorNoBodyMessageTemplateConstant, apiError.Method, apiError.RequestURL, apiError.StatusCode)
	}
	return fmt.Sprintf(apiErrorMessageTemplateConstant, apiError.Method, apiError.RequestURL, apiError.StatusCode, apiError.Body)
}

// Retryable reports whether the failure is transient enough to retry.
func (apiError APIError) Retryable() bool {
	if apiError.StatusCode == tooManyRequestsRetryableStatusConstant {
		return true
	}
	return apiError.StatusCode >= serverErrorRetryableStatusLowerConstant
}
