package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes from the
// model provider APIs.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableAPIErrorType classifies retryable provider error types as
// reported in JSON error bodies.
func IsRetryableAPIErrorType(errorType string) bool {
	switch errorType {
	case "rate_limit_error", "overloaded_error", "api_error", "timeout_error":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
