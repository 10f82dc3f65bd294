package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/local/linerelay/internal/ai"
)

// classify maps a backend error onto an ErrorKind. Every error lands somewhere.
func classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	// Failure already classified (e.g. wrapped by a caller)
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}

	var apiErr *ai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	if isTimeoutError(err) {
		return KindTimeout
	}

	if ai.IsRateLimited(err) {
		return KindQuotaExceeded
	}

	return KindUnknown
}

func classifyAPIError(e *ai.APIError) ErrorKind {
	switch strings.ToUpper(e.Status) {
	case "NOT_FOUND":
		return KindModelNotFound
	case "PERMISSION_DENIED", "UNAUTHENTICATED":
		return KindPermissionDenied
	case "RESOURCE_EXHAUSTED":
		return KindQuotaExceeded
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return KindBadRequestPayload
	}

	switch e.StatusCode {
	case http.StatusNotFound:
		return KindModelNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindPermissionDenied
	case http.StatusTooManyRequests:
		return KindQuotaExceeded
	case http.StatusBadRequest:
		return KindBadRequestPayload
	}

	return KindBackendError
}

// isTimeoutError checks if error is specifically a timeout
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "deadline exceeded") || strings.Contains(errStr, "client.timeout exceeded")
}
