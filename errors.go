package blogsync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidArgument is returned for bad arguments to the public API.
	ErrInvalidArgument = errors.New("blogsync: invalid argument")
	// ErrNotInitialized is returned when a component is used before Init.
	ErrNotInitialized = errors.New("blogsync: not initialized")
	// ErrDestroyed is returned when a component is used after Destroy.
	ErrDestroyed = errors.New("blogsync: destroyed")
	// ErrEntryTooLarge is returned when a single cache entry exceeds the cache budget.
	ErrEntryTooLarge = errors.New("blogsync: cache entry larger than cache")
	// ErrOffline is returned by read-through helpers that need the network.
	ErrOffline = errors.New("blogsync: offline")
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// APIError represents a failed call to the blog backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Code == "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	if e == nil {
		return false
	}
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	}
	return true
}

// DefaultShouldRetry classifies sync failures. Invalid payloads and backend
// rejections (4xx other than 408 and 429) are permanent; transport errors and
// 5xx are retried.
func DefaultShouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidArgument) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// RetryAlways preserves the coarse behaviour where every failure is retried
// until the action runs out of attempts.
func RetryAlways(error) bool { return true }
