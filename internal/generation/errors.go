package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
)

// Kind is the failure class of a generation call.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindRateLimited   Kind = "rate_limited"
	KindMisconfigured Kind = "misconfigured"
	KindEmptyResponse Kind = "empty_response"
	KindUnavailable   Kind = "unavailable"
	KindUnknown       Kind = "unknown"
)

var (
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrRateLimited   = &Error{Kind: KindRateLimited}
	ErrMisconfigured = &Error{Kind: KindMisconfigured}
	ErrEmptyResponse = &Error{Kind: KindEmptyResponse}
)

// Error is a typed generation failure.
type Error struct {
	Kind       Kind
	StatusCode int // upstream HTTP status, 0 when none
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("generation %s (http %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("generation %s: %v", e.Kind, e.Err)
	default:
		return "generation " + string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches by kind so errors.Is(err, ErrTimeout) works on wrapped values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// HTTPStatusCode reports the upstream status.
func (e *Error) HTTPStatusCode() int { return e.StatusCode }

// KindForStatus maps an upstream HTTP status to a failure class.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusNotFound:
		return KindMisconfigured
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

func retryable(k Kind) bool {
	return k == KindTimeout || k == KindRateLimited || k == KindUnavailable
}

// Classify returns the failure class of err. Typed errors, context deadlines
// and network timeouts are checked first. Message matching is a best-effort
// fallback for errors from clients that expose nothing structured.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"):
		return KindRateLimited
	case strings.Contains(msg, "api key"), strings.Contains(msg, "api_key"):
		return KindMisconfigured
	default:
		return KindUnknown
	}
}

// AppError converts a generation failure into the caller-facing taxonomy.
func AppError(err error) *apperr.Error {
	var kind apperr.Kind
	switch Classify(err) {
	case KindTimeout:
		kind = apperr.KindGenerationTimeout
	case KindRateLimited:
		kind = apperr.KindGenerationRateLimited
	case KindMisconfigured:
		kind = apperr.KindGenerationMisconfigured
	default:
		kind = apperr.KindUnknown
	}
	return apperr.New(kind, "generate review", err)
}
