package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrNotImplemented is returned by operations an adapter does not support.
var ErrNotImplemented = errors.New("not implemented")

const maxErrorBodyLen = 300

// UnsupportedProviderError is returned when a provider id has no registered connector.
type UnsupportedProviderError struct {
	Provider  string
	Supported []string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q (supported: %s)", e.Provider, strings.Join(e.Supported, ", "))
}

// UpstreamAuthError is returned when an authorization or token endpoint rejects a request.
type UpstreamAuthError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamAuthError) Error() string {
	msg := "authentication failed for " + e.Provider
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if body := compactBody(e.Body); body != "" {
		msg += ": " + body
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamAuthError) Unwrap() error { return e.Err }

// UpstreamDataError is returned when a data endpoint fails or answers with a non-2xx status.
type UpstreamDataError struct {
	Provider   string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamDataError) Error() string {
	msg := fmt.Sprintf("%s %s request failed", e.Provider, e.Endpoint)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if body := compactBody(e.Body); body != "" {
		msg += ": " + body
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamDataError) Unwrap() error { return e.Err }

// IdentityDecodeError is returned for identity tokens that are not three dot-separated segments
// with a JSON object payload.
type IdentityDecodeError struct {
	Reason string
	Err    error
}

func (e *IdentityDecodeError) Error() string {
	if e.Err != nil {
		return "decode identity token: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode identity token: " + e.Reason
}

func (e *IdentityDecodeError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err means the upstream could not be reached at all: the
// connection was refused or the request timed out.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func compactBody(body string) string {
	msg := strings.Join(strings.Fields(body), " ")
	if len(msg) > maxErrorBodyLen {
		msg = msg[:maxErrorBodyLen] + "…"
	}
	return msg
}
