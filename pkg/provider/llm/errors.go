package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Failure kinds. Provider errors wrap exactly one of these.
var (
	// ErrTimeout means the backend did not answer within the deadline.
	ErrTimeout = errors.New("llm: timeout")

	// ErrTransport means the request could not be delivered or was rejected
	// (network failure, HTTP error status, cancelled request).
	ErrTransport = errors.New("llm: transport error")

	// ErrMalformed means the backend answered but the reply was unusable.
	ErrMalformed = errors.New("llm: malformed response")
)

// FailureKind names a failure kind for logs and metrics.
type FailureKind string

const (
	KindNone      FailureKind = ""
	KindTimeout   FailureKind = "timeout"
	KindTransport FailureKind = "transport"
	KindMalformed FailureKind = "malformed"
)

// KindOf reports which failure kind err carries. Errors that carry none of
// the sentinels are reported as transport failures; nil yields KindNone.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrTransport):
		return KindTransport
	case isTimeout(err):
		return KindTimeout
	default:
		return KindTransport
	}
}

// WrapCallError attaches the matching failure sentinel to an error returned
// by a backend SDK call. Deadline and network timeouts become [ErrTimeout];
// everything else becomes [ErrTransport]. Errors that already carry a
// sentinel are only prefixed.
func WrapCallError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) || errors.Is(err, ErrMalformed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// Malformed returns an [ErrMalformed] error describing why a reply was
// rejected.
func Malformed(op, reason string) error {
	return fmt.Errorf("%s: %w: %s", op, ErrMalformed, reason)
}

// CheckContent rejects empty or whitespace-only reply text.
func CheckContent(op, content string) error {
	if strings.TrimSpace(content) == "" {
		return Malformed(op, "empty reply content")
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
