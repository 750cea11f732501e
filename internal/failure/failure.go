// Package failure defines the error taxonomy shared by the guardian
// components. Components declare their own sentinels wrapping one of the
// taxonomy sentinels below, so callers can branch on the kind of failure
// with errors.Is without knowing which component produced it.
package failure

import (
	"context"
	"errors"
	"io/fs"
)

// Taxonomy sentinels. Use errors.Is(err, failure.ErrInvalidAction) to check.
var (
	// ErrInvalidAction marks a business-rule violation with no system fault,
	// such as starting a daemon that is already running. Never retried.
	ErrInvalidAction = errors.New("invalid action")

	// ErrNotFound marks a missing resource: a vanished local file, an
	// unknown watcher, a missing ledger record.
	ErrNotFound = errors.New("not found")
)

// Kind classifies an error for retry and reporting decisions.
type Kind int

const (
	// KindNone is returned for a nil error.
	KindNone Kind = iota
	// KindInvalidAction is a rejected request; surface to the caller.
	KindInvalidAction
	// KindNotFound is a missing resource; terminal for uploads.
	KindNotFound
	// KindCanceled means the operation was interrupted by its context.
	KindCanceled
	// KindTransient wraps any other fault (I/O, network, subprocess exit).
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidAction:
		return "invalid_action"
	case KindNotFound:
		return "not_found"
	case KindCanceled:
		return "canceled"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Classify maps err onto the taxonomy. A missing file (fs.ErrNotExist) is
// classified as KindNotFound alongside ErrNotFound.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidAction):
		return KindInvalidAction
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindTransient
	}
}

// IsNotFound reports whether err is classified as KindNotFound.
func IsNotFound(err error) bool {
	return Classify(err) == KindNotFound
}
