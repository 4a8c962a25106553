package rocksdb

import (
	"strings"

	"github.com/eigerco/strata/pkg/db/engine"
)

var (
	errNotTxnDB     = engine.NewStatus(engine.CodeNotSupported, "database was not opened for transactions")
	errClosed       = engine.NewStatus(engine.CodeShutdownInProgress, "handle is closed")
	errForeignBatch = engine.NewStatus(engine.CodeInvalidArgument, "batch cannot be written to a rocksdb database")
	errForeignSnap  = engine.NewStatus(engine.CodeInvalidArgument, "snapshot belongs to another engine")
	errSyncNoWAL    = engine.NewStatus(engine.CodeInvalidArgument, "sync writes require the write ahead log")
)

// Prefixes of Status::ToString, longest first where one is a prefix of
// another.
var messagePrefixes = []struct {
	prefix string
	code   engine.Code
}{
	{"NotFound", engine.CodeNotFound},
	{"Corruption", engine.CodeCorruption},
	{"Not implemented", engine.CodeNotSupported},
	{"Invalid argument", engine.CodeInvalidArgument},
	{"IO error", engine.CodeIOError},
	{"Merge in progress", engine.CodeMergeInProgress},
	{"Result incomplete", engine.CodeIncomplete},
	{"Shutdown in progress", engine.CodeShutdownInProgress},
	{"Operation timed out", engine.CodeTimedOut},
	{"Operation aborted", engine.CodeAborted},
	{"Resource busy", engine.CodeBusy},
	{"Operation expired", engine.CodeExpired},
	{"Operation failed. Try again.", engine.CodeTryAgain},
	{"Compaction too large", engine.CodeCompactionTooLarge},
}

// statusFromErr decodes and frees a message written to a C errptr. It is the
// only place native error messages are read, and each one is freed exactly
// once.
func statusFromErr(errptr uintptr) error {
	if errptr == 0 {
		return nil
	}
	return parseStatus(takeString(errptr))
}

// parseStatus classifies a RocksDB status message. Messages that match no
// known prefix are IO errors.
func parseStatus(msg string) *engine.Status {
	for _, p := range messagePrefixes {
		if rest, ok := strings.CutPrefix(msg, p.prefix); ok {
			rest = strings.TrimPrefix(rest, ":")
			return &engine.Status{Code: p.code, Message: strings.TrimSpace(rest)}
		}
	}
	return &engine.Status{Code: engine.CodeIOError, Message: msg}
}
