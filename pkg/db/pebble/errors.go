package pebble

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"github.com/eigerco/strata/pkg/db/engine"
)

var (
	errTxnNotActive  = engine.NewStatus(engine.CodeInvalidArgument, "transaction is not active")
	errNoSavePoint   = engine.NewStatus(engine.CodeNotFound, "no savepoint set")
	errNotTxnDB      = engine.NewStatus(engine.CodeNotSupported, "database was not opened for transactions")
	errWriteConflict = engine.NewStatus(engine.CodeBusy, "write conflict")
	errLogExists     = engine.NewStatus(engine.CodeInvalidArgument, "write ahead log is not empty")
)

// statusFromError converts an error produced by pebble into an engine
// status. It is the only place pebble errors are classified.
func statusFromError(err error) error {
	if err == nil {
		return nil
	}
	var s *engine.Status
	if errors.As(err, &s) {
		return s
	}

	code := engine.CodeIOError
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		code = engine.CodeNotFound
	case errors.Is(err, pebble.ErrReadOnly):
		code = engine.CodeNotSupported
	case errors.Is(err, pebble.ErrDBDoesNotExist), errors.Is(err, pebble.ErrDBAlreadyExists):
		code = engine.CodeInvalidArgument
	case errors.Is(err, pebble.ErrClosed):
		code = engine.CodeShutdownInProgress
	case strings.Contains(strings.ToLower(err.Error()), "corrupt"):
		code = engine.CodeCorruption
	}
	return &engine.Status{Code: code, Message: err.Error()}
}
