package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"kisanbot/internal/domain"
)

// classifyTransportError maps client-side HTTP failures into the generation
// error taxonomy: deadline expiry becomes timeout, everything else means the
// backend could not be reached.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.GenerationError{Kind: domain.GenerationTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.GenerationError{Kind: domain.GenerationTimeout, Err: err}
	}
	return &domain.GenerationError{Kind: domain.GenerationBackendUnavailable, Err: err}
}

// classifyStatus maps a non-200 backend status into the taxonomy: 4xx means
// the request was rejected, 5xx means the backend is unavailable.
func classifyStatus(status int, body string) error {
	kind := domain.GenerationBackendUnavailable
	if status >= 400 && status < 500 {
		kind = domain.GenerationBackendRejected
	}
	return &domain.GenerationError{
		Kind: kind,
		Err:  fmt.Errorf("backend status %d: %s", status, truncate(body, 200)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
