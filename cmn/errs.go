// Package cmn holds the small set of types and helpers shared across every
// peerlink package: named broker errors, a generic not-found error, and the
// ExitLogf helper used by the two server binaries.
package cmn

import (
	"errors"
	"fmt"
	"os"

	"github.com/p2psignal/peerlink/cmn/nlog"
)

// Named broker error conditions, stable strings per §7 of the protocol
// design. Comparing with errors.Is is the only supported way to branch on
// these from outside the broker packages.
var (
	ErrNotActivated      = errors.New("NotActivated")
	ErrEmptyPadName      = errors.New("EmptyPadName")
	ErrAlreadyRegistered = errors.New("AlreadyRegistered")
	ErrNotRegistered     = errors.New("NotRegistered")
	ErrPadFound          = errors.New("PadFound")
	ErrPadNotFound       = errors.New("PadNotFound")
	ErrAlreadyLinked     = errors.New("AlreadyLinked")
	ErrNotLinked         = errors.New("NotLinked")
	ErrAuthInProgress    = errors.New("AuthInProgress")
	ErrAuthNotInProgress = errors.New("AuthNotInProgress")
	ErrAuthorMismatched  = errors.New("AuthorMismatched")

	ErrEmptyChannelName     = errors.New("EmptyChannelName")
	ErrChannelFound         = errors.New("ChannelFound")
	ErrChannelNotFound      = errors.New("ChannelNotFound")
	ErrSenderMismatch       = errors.New("SenderMismatch")
	ErrAnotherRequestPend   = errors.New("AnotherRequestPending")
	ErrRequesterNotFound    = errors.New("RequesterNotFound")
)

// ErrNotFound is a generic "no such X" error that carries its subject, for
// use outside the two named-error tables above.
type ErrNotFound struct{ what string }

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

// ExitLogf logs a fatal error and terminates the process; used only from
// cmd/ main functions, never from library code.
func ExitLogf(format string, args ...any) {
	nlog.Errorf(format, args...)
	os.Exit(1)
}
