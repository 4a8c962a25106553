// Package pebble implements the strata engine contract on top of
// github.com/cockroachdb/pebble, including optimistic transactions.
package pebble

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/eigerco/strata/pkg/db/engine"
	"github.com/eigerco/strata/pkg/log"
)

const walSuffix = ".log"

// Engine opens pebble databases on a filesystem.
type Engine struct {
	fs     vfs.FS
	logger *zerolog.Logger
}

// New returns an engine backed by the operating system's filesystem.
func New() *Engine {
	return &Engine{fs: vfs.Default}
}

// NewInMemory returns an engine whose databases live in memory. Databases
// opened through the same engine share the in-memory filesystem, so a closed
// database can be reopened.
func NewInMemory() *Engine {
	return &Engine{fs: vfs.NewMem()}
}

// WithLogger sets the logger used for pebble's internal events.
func (e *Engine) WithLogger(l zerolog.Logger) *Engine {
	e.logger = &l
	return e
}

func (e *Engine) Name() string {
	return "pebble"
}

func (e *Engine) Open(path string, opts engine.Options) (engine.DB, error) {
	return e.open(path, opts, false, false)
}

func (e *Engine) OpenReadOnly(path string, opts engine.Options, errorIfLogExists bool) (engine.DB, error) {
	if errorIfLogExists {
		hasLog, err := e.hasLiveLog(path)
		if err != nil {
			return nil, statusFromError(err)
		}
		if hasLog {
			return nil, errLogExists
		}
	}
	return e.open(path, opts, true, false)
}

func (e *Engine) OpenTransactional(path string, opts engine.Options) (engine.DB, error) {
	return e.open(path, opts, false, true)
}

func (e *Engine) open(path string, o engine.Options, readOnly, transactional bool) (*DB, error) {
	if path == "" {
		return nil, engine.NewStatus(engine.CodeInvalidArgument, "empty database path")
	}
	lg := e.log().With().Str("path", path).Logger()

	opts, cache, err := pebbleOptions(o, e.fs, lg)
	if err != nil {
		return nil, err
	}
	defer cache.Unref()

	if readOnly {
		opts.ReadOnly = true
		opts.ErrorIfExists = false
		opts.ErrorIfNotExists = true
	}

	pdb, err := pebble.Open(path, opts)
	if err != nil {
		return nil, statusFromError(err)
	}
	if o.ParanoidChecks {
		if err := pdb.CheckLevels(nil); err != nil {
			_ = pdb.Close()
			return nil, &engine.Status{Code: engine.CodeCorruption, Message: err.Error()}
		}
	}

	db := &DB{db: pdb, log: lg}
	if transactional {
		db.commits = newCommitTracker()
	}
	lg.Debug().Bool("read_only", readOnly).Bool("transactional", transactional).Msg("pebble opened")
	return db, nil
}

func (e *Engine) hasLiveLog(path string) (bool, error) {
	names, err := e.fs.List(path)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if !strings.HasSuffix(name, walSuffix) {
			continue
		}
		fi, err := e.fs.Stat(e.fs.PathJoin(path, name))
		if err != nil {
			return false, err
		}
		if fi.Size() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) log() zerolog.Logger {
	if e.logger != nil {
		return *e.logger
	}
	return log.Engine
}

// DB is an open pebble database.
type DB struct {
	db  *pebble.DB
	log zerolog.Logger
	// set when opened for transactions
	commits *commitTracker
}

func (d *DB) Put(wo engine.WriteOptions, key, value []byte) error {
	pwo, err := pebbleWriteOptions(wo)
	if err != nil {
		return err
	}
	return d.apply([][]byte{key}, nil, func() error {
		return d.db.Set(key, value, pwo)
	})
}

func (d *DB) Get(ro engine.ReadOptions, key []byte) ([]byte, error) {
	if ro.Snapshot != nil {
		snap, err := asSnapshot(ro.Snapshot)
		if err != nil {
			return nil, err
		}
		return get(snap, key)
	}
	return get(d.db, key)
}

func (d *DB) Delete(wo engine.WriteOptions, key []byte) error {
	pwo, err := pebbleWriteOptions(wo)
	if err != nil {
		return err
	}
	return d.apply([][]byte{key}, nil, func() error {
		return d.db.Delete(key, pwo)
	})
}

// KeyMayExist answers with an exact point lookup; any failure other than
// NotFound reports true.
func (d *DB) KeyMayExist(ro engine.ReadOptions, key []byte) bool {
	_, err := d.Get(ro, key)
	return !engine.IsNotFound(err)
}

func (d *DB) NewBatch() engine.Batch {
	return NewBatch()
}

func (d *DB) Write(wo engine.WriteOptions, b engine.Batch) error {
	batch, err := asBatch(b)
	if err != nil {
		return err
	}
	pwo, err := pebbleWriteOptions(wo)
	if err != nil {
		return err
	}

	pb := d.db.NewBatch()
	defer pb.Close()
	keys, ranges, err := batch.replay(pb)
	if err != nil {
		return statusFromError(err)
	}
	return d.apply(keys, ranges, func() error {
		return pb.Commit(pwo)
	})
}

func (d *DB) NewIterator(ro engine.ReadOptions) (engine.Iterator, error) {
	var (
		iter *pebble.Iterator
		err  error
	)
	if ro.Snapshot != nil {
		snap, serr := asSnapshot(ro.Snapshot)
		if serr != nil {
			return nil, serr
		}
		iter, err = snap.NewIter(nil)
	} else {
		iter, err = d.db.NewIter(nil)
	}
	if err != nil {
		return nil, statusFromError(err)
	}
	return newIterator(iter), nil
}

func (d *DB) NewSnapshot() (engine.Snapshot, error) {
	return &Snapshot{snap: d.db.NewSnapshot(), log: d.log}, nil
}

func (d *DB) IsTransactional() bool {
	return d.commits != nil
}

func (d *DB) BeginTransaction(wo engine.WriteOptions) (engine.Transaction, error) {
	if d.commits == nil {
		return nil, errNotTxnDB
	}
	return newTransaction(d, wo), nil
}

// CompactRange compacts [start, end]; a nil bound extends to the first or last
// key of the database.
func (d *DB) CompactRange(start, end []byte) error {
	lo, hi, ok, err := d.compactionBounds(start, end)
	if err != nil || !ok {
		return err
	}
	return statusFromError(d.db.Compact(lo, hi, true))
}

func (d *DB) compactionBounds(start, end []byte) ([]byte, []byte, bool, error) {
	if start == nil || end == nil {
		iter, err := d.db.NewIter(nil)
		if err != nil {
			return nil, nil, false, statusFromError(err)
		}
		if start == nil && iter.First() {
			start = clone(iter.Key())
		}
		if end == nil && iter.Last() {
			end = clone(iter.Key())
		}
		if err := iter.Close(); err != nil {
			return nil, nil, false, statusFromError(err)
		}
		if start == nil || end == nil {
			return nil, nil, false, nil
		}
	}
	hi := successor(end)
	if bytes.Compare(start, hi) >= 0 {
		return nil, nil, false, nil
	}
	return start, hi, true, nil
}

func (d *DB) Flush(wait bool) error {
	if wait {
		return statusFromError(d.db.Flush())
	}
	_, err := d.db.AsyncFlush()
	return statusFromError(err)
}

// Property answers a subset of RocksDB's property names from pebble metrics.
func (d *DB) Property(name string) (string, bool) {
	m := d.db.Metrics()
	itoa := func(v int64) (string, bool) { return strconv.FormatInt(v, 10), true }
	utoa := func(v uint64) (string, bool) { return strconv.FormatUint(v, 10), true }

	if level, ok := strings.CutPrefix(name, "rocksdb.num-files-at-level"); ok {
		n, err := strconv.Atoi(level)
		if err != nil || n < 0 || n >= len(m.Levels) {
			return "", false
		}
		return itoa(m.Levels[n].NumFiles)
	}

	switch name {
	case "rocksdb.stats":
		return m.String(), true
	case "rocksdb.total-sst-files-size", "rocksdb.live-sst-files-size":
		return itoa(m.Total().Size)
	case "rocksdb.cur-size-all-mem-tables":
		return utoa(m.MemTable.Size)
	case "rocksdb.num-immutable-mem-table":
		return itoa(max(m.MemTable.Count-1, 0))
	case "rocksdb.num-running-compactions":
		return itoa(m.Compact.NumInProgress)
	case "rocksdb.estimate-pending-compaction-bytes":
		return utoa(m.Compact.EstimatedDebt)
	case "rocksdb.num-snapshots":
		return itoa(int64(m.Snapshots.Count))
	case "rocksdb.num-wal-files":
		return itoa(m.WAL.Files)
	case "strata.disk-usage":
		return utoa(m.DiskSpaceUsage())
	}
	return "", false
}

func (d *DB) ApproximateSizes(ranges []engine.Range) ([]uint64, error) {
	sizes := make([]uint64, len(ranges))
	for i, r := range ranges {
		size, err := d.db.EstimateDiskUsage(r.Start, r.Limit)
		if err != nil {
			return nil, statusFromError(err)
		}
		sizes[i] = size
	}
	return sizes, nil
}

func (d *DB) Close() error {
	err := d.db.Close()
	d.log.Debug().Err(err).Msg("pebble closed")
	return statusFromError(err)
}

func (d *DB) apply(keys [][]byte, ranges []rangeWrite, fn func() error) error {
	if d.commits == nil {
		return statusFromError(fn())
	}
	return statusFromError(d.commits.write(keys, ranges, fn))
}
