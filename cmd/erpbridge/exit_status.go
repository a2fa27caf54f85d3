package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/erpbridge/erpbridge/internal/connectors/registry"
)

// Exit statuses borrow from sysexits(3) where one fits.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitUpstream    = 69
	exitInterrupted = 130
)

// usageError pins a failure to exitUsage: a bad argument or input file rather than a runtime fault.
type usageError struct {
	cause error
}

func newUsageError(format string, args ...any) error {
	return &usageError{cause: fmt.Errorf(format, args...)}
}

func (e *usageError) Error() string { return e.cause.Error() }

func (e *usageError) Unwrap() error { return e.cause }

func exitStatus(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage):
		return exitUsage
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case upstreamFailed(err):
		return exitUpstream
	default:
		return exitFailure
	}
}

// upstreamFailed reports whether the ERP side refused, failed or could not be reached.
func upstreamFailed(err error) bool {
	var authErr *registry.UpstreamAuthError
	var dataErr *registry.UpstreamDataError
	return errors.As(err, &authErr) || errors.As(err, &dataErr) || registry.IsUnreachable(err)
}
