package db

import (
	"errors"
	"fmt"

	"github.com/eigerco/strata/pkg/db/engine"
)

// Kind classifies an Error. Engine kinds mirror the engine result codes; the
// last three are produced by this package.
type Kind uint8

const (
	KindNotFound Kind = iota + 1
	KindCorruption
	KindNotSupported
	KindInvalidArgument
	KindIOError
	KindMergeInProgress
	KindIncomplete
	KindShutdownInProgress
	KindTimedOut
	KindAborted
	KindBusy
	KindExpired
	KindTryAgain
	KindCompactionTooLarge
	KindDatabaseClosed
	KindHandleClosed
	KindTransactionConflict
)

var kindNames = map[Kind]string{
	KindNotFound:            "not found",
	KindCorruption:          "corruption",
	KindNotSupported:        "not supported",
	KindInvalidArgument:     "invalid argument",
	KindIOError:             "io error",
	KindMergeInProgress:     "merge in progress",
	KindIncomplete:          "incomplete",
	KindShutdownInProgress:  "shutdown in progress",
	KindTimedOut:            "timed out",
	KindAborted:             "aborted",
	KindBusy:                "busy",
	KindExpired:             "expired",
	KindTryAgain:            "try again",
	KindCompactionTooLarge:  "compaction too large",
	KindDatabaseClosed:      "database closed",
	KindHandleClosed:        "handle closed",
	KindTransactionConflict: "transaction conflict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Retryable reports whether an operation that failed with this kind may
// succeed when retried unchanged.
func (k Kind) Retryable() bool {
	switch k {
	case KindIOError, KindTimedOut, KindBusy, KindTryAgain, KindTransactionConflict:
		return true
	default:
		return false
	}
}

// Error is the error type returned by this package.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "strata: " + e.Kind.String()
	}
	return "strata: " + e.Kind.String() + ": " + e.Message
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrCorruption          = &Error{Kind: KindCorruption}
	ErrNotSupported        = &Error{Kind: KindNotSupported}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrIOError             = &Error{Kind: KindIOError}
	ErrMergeInProgress     = &Error{Kind: KindMergeInProgress}
	ErrIncomplete          = &Error{Kind: KindIncomplete}
	ErrShutdownInProgress  = &Error{Kind: KindShutdownInProgress}
	ErrTimedOut            = &Error{Kind: KindTimedOut}
	ErrAborted             = &Error{Kind: KindAborted}
	ErrBusy                = &Error{Kind: KindBusy}
	ErrExpired             = &Error{Kind: KindExpired}
	ErrTryAgain            = &Error{Kind: KindTryAgain}
	ErrCompactionTooLarge  = &Error{Kind: KindCompactionTooLarge}
	ErrDatabaseClosed      = &Error{Kind: KindDatabaseClosed, Message: "database is closed"}
	ErrHandleClosed        = &Error{Kind: KindHandleClosed, Message: "handle has been released"}
	ErrTransactionConflict = &Error{Kind: KindTransactionConflict}
)

// KindOf returns the kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether err has a retryable kind.
func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	return ok && k.Retryable()
}

// kindOf maps every engine code to a kind. Codes this package does not know
// are reported as IO errors.
func kindOf(code engine.Code) Kind {
	switch code {
	case engine.CodeNotFound:
		return KindNotFound
	case engine.CodeCorruption:
		return KindCorruption
	case engine.CodeNotSupported:
		return KindNotSupported
	case engine.CodeInvalidArgument:
		return KindInvalidArgument
	case engine.CodeIOError:
		return KindIOError
	case engine.CodeMergeInProgress:
		return KindMergeInProgress
	case engine.CodeIncomplete:
		return KindIncomplete
	case engine.CodeShutdownInProgress:
		return KindShutdownInProgress
	case engine.CodeTimedOut:
		return KindTimedOut
	case engine.CodeAborted:
		return KindAborted
	case engine.CodeBusy:
		return KindBusy
	case engine.CodeExpired:
		return KindExpired
	case engine.CodeTryAgain:
		return KindTryAgain
	case engine.CodeCompactionTooLarge:
		return KindCompactionTooLarge
	default:
		return KindIOError
	}
}

// fromEngine converts an engine error into an *Error.
func fromEngine(err error) error {
	if err == nil {
		return nil
	}
	var s *engine.Status
	if errors.As(err, &s) {
		if s.Code == engine.CodeOK {
			return nil
		}
		return &Error{Kind: kindOf(s.Code), Message: s.Message}
	}
	return &Error{Kind: KindIOError, Message: err.Error()}
}

// fromCommit converts an error returned by a transaction commit. Busy and
// TryAgain mean a tracked key changed under the transaction.
func fromCommit(err error) error {
	switch engine.CodeOf(err) {
	case engine.CodeOK:
		return nil
	case engine.CodeBusy, engine.CodeTryAgain:
		var s *engine.Status
		msg := err.Error()
		if errors.As(err, &s) {
			msg = s.Message
		}
		return &Error{Kind: KindTransactionConflict, Message: msg}
	default:
		return fromEngine(err)
	}
}
