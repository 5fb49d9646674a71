package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Transient wraps an error that is safe to retry (429, 5xx, network timeout).
type Transient struct {
	Err        error
	StatusCode int
}

func (e *Transient) Error() string { return e.Err.Error() }

func (e *Transient) Unwrap() error { return e.Err }

// MarkTransient wraps an error as transient with an optional HTTP status code.
func MarkTransient(err error, statusCode int) *Transient {
	return &Transient{Err: err, StatusCode: statusCode}
}

// Permanent wraps an error that must never be retried (unreachable URL,
// unparseable response, rejected input).
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string { return e.Err.Error() }

func (e *Permanent) Unwrap() error { return e.Err }

// MarkPermanent wraps an error as permanent, suppressing retries even when
// the underlying cause looks transient.
func MarkPermanent(err error) *Permanent {
	return &Permanent{Err: err}
}

// Exhausted is returned when an operation kept failing transiently until the
// attempt ceiling. It signals that manual action is required.
type Exhausted struct {
	Op       string
	Attempts int
	Err      error
}

func (e *Exhausted) Error() string {
	return e.Op + ": retries exhausted, manual action required: " + e.Err.Error()
}

func (e *Exhausted) Unwrap() error { return e.Err }

// IsExhausted reports whether the error chain contains an Exhausted marker.
func IsExhausted(err error) bool {
	var ex *Exhausted
	return errors.As(err, &ex)
}

// IsTransient reports whether an error is safe to retry. Explicit Permanent
// markers win over everything else; explicit Transient markers win over the
// network heuristics.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *Permanent
	if errors.As(err, &pe) {
		return false
	}

	var te *Transient
	if errors.As(err, &te) {
		return true
	}

	// Typed client errors carry the HTTP status that produced them; the
	// status decides.
	var he interface{ HTTPStatus() int }
	if errors.As(err, &he) {
		return RetryableStatus(he.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped HTTP client errors lose their type; fall back to message
	// patterns.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// RetryableStatus reports whether an HTTP status code indicates a transient
// server-side condition. 529 is Anthropic's overloaded status.
func RetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}
