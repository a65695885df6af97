package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRetryAfterHeader(testInstance *testing.T) {
	testCases := []struct {
		name          string
		headerValue   string
		expectedDelay time.Duration
	}{
		{name: "empty", headerValue: "", expectedDelay: 0},
		{name: "delay_seconds", headerValue: "7", expectedDelay: 7 * time.Second},
		{name: "padded_delay_seconds", headerValue: " 3 ", expectedDelay: 3 * time.Second},
		{name: "http_date_ignored", headerValue: "Wed, 21 Oct 2026 07:28:00 GMT", expectedDelay: 0},
		{name: "negative_ignored", headerValue: "-5", expectedDelay: 0},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			require.Equal(subTest, testCase.expectedDelay, parseRetryAfterHeader(testCase.headerValue))
		})
	}
}

func TestAPIErrorRetryable(testInstance *testing.T) {
	testCases := []struct {
		name          string
		statusCode    int
		expectedRetry bool
	}{
		{name: "too_many_requests", statusCode: 429, expectedRetry: true},
		{name: "server_error", statusCode: 500, expectedRetry: true},
		{name: "bad_gateway", statusCode: 502, expectedRetry: true},
		{name: "bad_request", statusCode: 400, expectedRetry: false},
		{name: "not_found", statusCode: 404, expectedRetry: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			require.Equal(subTest, testCase.expectedRetry, APIError{StatusCode: testCase.statusCode}.Retryable())
		})
	}
}
