// Package rocksdb implements the strata engine contract over the librocksdb C
// API. The shared library is loaded at run time with purego, so the package
// builds without cgo and only fails when an engine is actually requested on a
// host without librocksdb.
package rocksdb

import (
	"runtime"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/eigerco/strata/pkg/db/engine"
	"github.com/eigerco/strata/pkg/log"
)

// Engine opens RocksDB databases.
type Engine struct {
	logger *zerolog.Logger
}

// New loads librocksdb and returns an engine. The library path can be
// overridden with the STRATA_ROCKSDB_LIB environment variable.
func New() (*Engine, error) {
	if err := Load(); err != nil {
		return nil, err
	}
	return &Engine{}, nil
}

// WithLogger sets the logger for open and close events.
func (e *Engine) WithLogger(l zerolog.Logger) *Engine {
	e.logger = &l
	return e
}

func (e *Engine) Name() string {
	return "rocksdb"
}

func (e *Engine) Open(path string, opts engine.Options) (engine.DB, error) {
	return e.open(path, opts, func(native uintptr, errptr *uintptr) (uintptr, uintptr) {
		return rocksdbOpen(native, path, errptr), 0
	})
}

func (e *Engine) OpenReadOnly(path string, opts engine.Options, errorIfLogExists bool) (engine.DB, error) {
	return e.open(path, opts, func(native uintptr, errptr *uintptr) (uintptr, uintptr) {
		return rocksdbOpenForReadOnly(native, path, cbool(errorIfLogExists), errptr), 0
	})
}

func (e *Engine) OpenTransactional(path string, opts engine.Options) (engine.DB, error) {
	return e.open(path, opts, func(native uintptr, errptr *uintptr) (uintptr, uintptr) {
		txnDB := optimisticTxnDBOpen(native, path, errptr)
		if txnDB == 0 {
			return 0, 0
		}
		return optimisticTxnDBGetBaseDB(txnDB), txnDB
	})
}

func (e *Engine) open(path string, o engine.Options, openFn func(native uintptr, errptr *uintptr) (db, txnDB uintptr)) (*DB, error) {
	if path == "" {
		return nil, engine.NewStatus(engine.CodeInvalidArgument, "empty database path")
	}
	lg := e.log().With().Str("path", path).Logger()

	native := nativeOptions(o)
	defer optionsDestroy(native)

	var errptr uintptr
	db, txnDB := openFn(native, &errptr)
	if err := statusFromErr(errptr); err != nil {
		if txnDB != 0 {
			optimisticTxnDBCloseBase(db)
			optimisticTxnDBClose(txnDB)
		}
		return nil, err
	}
	lg.Debug().Bool("transactional", txnDB != 0).Msg("rocksdb opened")
	return &DB{db: db, txnDB: txnDB, log: lg}, nil
}

func (e *Engine) log() zerolog.Logger {
	if e.logger != nil {
		return *e.logger
	}
	return log.Engine
}

// DB is an open RocksDB database. For transactional databases db is the base
// database of txnDB.
type DB struct {
	db    uintptr
	txnDB uintptr
	log   zerolog.Logger
}

func (d *DB) Put(wo engine.WriteOptions, key, value []byte) error {
	native, err := newWriteOptions(wo)
	if err != nil {
		return err
	}
	defer native.destroy()

	var errptr uintptr
	rocksdbPut(d.db, uintptr(native), bytesPtr(key), uintptr(len(key)), bytesPtr(value), uintptr(len(value)), &errptr)
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
	return statusFromErr(errptr)
}

func (d *DB) Get(ro engine.ReadOptions, key []byte) ([]byte, error) {
	native, err := newReadOptions(ro)
	if err != nil {
		return nil, err
	}
	defer native.destroy()

	var vlen, errptr uintptr
	val := rocksdbGet(d.db, uintptr(native), bytesPtr(key), uintptr(len(key)), &vlen, &errptr)
	runtime.KeepAlive(key)
	return takeValue(val, vlen, errptr)
}

func (d *DB) Delete(wo engine.WriteOptions, key []byte) error {
	native, err := newWriteOptions(wo)
	if err != nil {
		return err
	}
	defer native.destroy()

	var errptr uintptr
	rocksdbDelete(d.db, uintptr(native), bytesPtr(key), uintptr(len(key)), &errptr)
	runtime.KeepAlive(key)
	return statusFromErr(errptr)
}

// KeyMayExist consults bloom filters and the memtable only. Invalid read
// options report true.
func (d *DB) KeyMayExist(ro engine.ReadOptions, key []byte) bool {
	native, err := newReadOptions(ro)
	if err != nil {
		return true
	}
	defer native.destroy()

	ok := rocksdbKeyMayExist(d.db, uintptr(native), bytesPtr(key), uintptr(len(key)), nil, nil, nil, 0, nil)
	runtime.KeepAlive(key)
	return ok != 0
}

func (d *DB) NewBatch() engine.Batch {
	return NewBatch()
}

func (d *DB) Write(wo engine.WriteOptions, b engine.Batch) error {
	batch, release, err := asBatch(b)
	if err != nil {
		return err
	}
	defer release()

	native, err := newWriteOptions(wo)
	if err != nil {
		return err
	}
	defer native.destroy()

	var errptr uintptr
	rocksdbWrite(d.db, uintptr(native), batch.b, &errptr)
	return statusFromErr(errptr)
}

func (d *DB) NewIterator(ro engine.ReadOptions) (engine.Iterator, error) {
	native, err := newReadOptions(ro)
	if err != nil {
		return nil, err
	}
	// The iterator copies the read options.
	defer native.destroy()
	return newIterator(rocksdbCreateIterator(d.db, uintptr(native))), nil
}

func (d *DB) NewSnapshot() (engine.Snapshot, error) {
	return &Snapshot{db: d.db, snap: rocksdbCreateSnapshot(d.db)}, nil
}

func (d *DB) IsTransactional() bool {
	return d.txnDB != 0
}

func (d *DB) BeginTransaction(wo engine.WriteOptions) (engine.Transaction, error) {
	if d.txnDB == 0 {
		return nil, errNotTxnDB
	}
	return newTransaction(d.txnDB, wo)
}

// CompactRange compacts [start, end]; nil bounds are open.
func (d *DB) CompactRange(start, end []byte) error {
	rocksdbCompactRange(d.db, optionalPtr(start), uintptr(len(start)), optionalPtr(end), uintptr(len(end)))
	runtime.KeepAlive(start)
	runtime.KeepAlive(end)
	return nil
}

func (d *DB) Flush(wait bool) error {
	fo := flushOptionsCreate()
	defer flushOptionsDestroy(fo)
	flushOptionsSetWait(fo, cbool(wait))

	var errptr uintptr
	rocksdbFlush(d.db, fo, &errptr)
	return statusFromErr(errptr)
}

func (d *DB) Property(name string) (string, bool) {
	p := rocksdbPropertyValue(d.db, name)
	if p == 0 {
		return "", false
	}
	return takeString(p), true
}

// ApproximateSizes reports the on-disk size of each range. The key arrays
// hold Go pointers, so the keys are pinned for the call.
func (d *DB) ApproximateSizes(ranges []engine.Range) ([]uint64, error) {
	sizes := make([]uint64, len(ranges))
	if len(ranges) == 0 {
		return sizes, nil
	}

	var pinner runtime.Pinner
	defer pinner.Unpin()

	starts := make([]unsafe.Pointer, len(ranges))
	limits := make([]unsafe.Pointer, len(ranges))
	startLens := make([]uintptr, len(ranges))
	limitLens := make([]uintptr, len(ranges))
	for i, r := range ranges {
		starts[i] = bytesPtr(r.Start)
		limits[i] = bytesPtr(r.Limit)
		pinner.Pin(starts[i])
		pinner.Pin(limits[i])
		startLens[i] = uintptr(len(r.Start))
		limitLens[i] = uintptr(len(r.Limit))
	}

	var errptr uintptr
	rocksdbApproximateSizes(d.db, int32(len(ranges)),
		unsafe.Pointer(&starts[0]), unsafe.Pointer(&startLens[0]),
		unsafe.Pointer(&limits[0]), unsafe.Pointer(&limitLens[0]),
		unsafe.Pointer(&sizes[0]), &errptr)
	runtime.KeepAlive(ranges)
	if err := statusFromErr(errptr); err != nil {
		return nil, err
	}
	return sizes, nil
}

func (d *DB) Close() error {
	if d.db == 0 {
		return nil
	}
	if d.txnDB != 0 {
		optimisticTxnDBCloseBase(d.db)
		optimisticTxnDBClose(d.txnDB)
	} else {
		rocksdbClose(d.db)
	}
	d.db, d.txnDB = 0, 0
	d.log.Debug().Msg("rocksdb closed")
	return nil
}

// takeValue turns the result of a C get call into an owned value. A NULL value
// without an error means the key is absent.
func takeValue(val, vlen, errptr uintptr) ([]byte, error) {
	if err := statusFromErr(errptr); err != nil {
		if val != 0 {
			rocksdbFree(val)
		}
		return nil, err
	}
	if val == 0 {
		return nil, engine.NewStatus(engine.CodeNotFound, "")
	}
	return takeBytes(val, vlen), nil
}
