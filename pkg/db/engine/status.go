package engine

import (
	"errors"
	"fmt"
)

// Code is an engine result code. The values match RocksDB's Status::Code.
type Code int

const (
	CodeOK Code = iota
	CodeNotFound
	CodeCorruption
	CodeNotSupported
	CodeInvalidArgument
	CodeIOError
	CodeMergeInProgress
	CodeIncomplete
	CodeShutdownInProgress
	CodeTimedOut
	CodeAborted
	CodeBusy
	CodeExpired
	CodeTryAgain
	CodeCompactionTooLarge
)

var codeNames = [...]string{
	CodeOK:                 "OK",
	CodeNotFound:           "NotFound",
	CodeCorruption:         "Corruption",
	CodeNotSupported:       "NotSupported",
	CodeInvalidArgument:    "InvalidArgument",
	CodeIOError:            "IOError",
	CodeMergeInProgress:    "MergeInProgress",
	CodeIncomplete:         "Incomplete",
	CodeShutdownInProgress: "ShutdownInProgress",
	CodeTimedOut:           "TimedOut",
	CodeAborted:            "Aborted",
	CodeBusy:               "Busy",
	CodeExpired:            "Expired",
	CodeTryAgain:           "TryAgain",
	CodeCompactionTooLarge: "CompactionTooLarge",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Status is the error value engines return. Message is already decoded into
// Go memory; engines that receive native message buffers free them before a
// Status is built.
type Status struct {
	Code    Code
	Message string
}

// NewStatus returns a Status error.
func NewStatus(code Code, format string, args ...any) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (s *Status) Error() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return s.Code.String() + ": " + s.Message
}

// CodeOf returns the code carried by err. A nil error is CodeOK and an error
// that carries no Status is CodeIOError.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var s *Status
	if errors.As(err, &s) {
		return s.Code
	}
	return CodeIOError
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
