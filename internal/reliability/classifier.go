// Package reliability classifies failures of outbound calls into coarse
// classes used for metric labels and log fields.
package reliability

import (
	"context"
	"errors"
	"net"
)

const (
	ClassOK          = "ok"
	ClassTimeout     = "timeout"
	ClassCanceled    = "canceled"
	ClassUnavailable = "unavailable"
	ClassRejected    = "rejected"
	ClassError       = "error"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// IsTransientHTTPStatus reports statuses that signal the upstream is
// overloaded or down rather than refusing the request.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps an error onto one of the Class constants.
func Classify(err error) string {
	if err == nil {
		return ClassOK
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		if IsTransientHTTPStatus(sc.StatusCode()) {
			return ClassUnavailable
		}
		return ClassRejected
	}
	return ClassError
}
