// Package db is a concurrency-safe client layer over an embedded, ordered
// key-value engine. It provides point reads and writes, atomic write batches,
// optimistic transactions with savepoints, snapshots and ordered iteration.
//
// Every handle (Database, Iterator, WriteBatch, Transaction, Snapshot) is
// safe for concurrent use, and every handle must be released. Using a
// released handle fails with ErrDatabaseClosed or ErrHandleClosed; it never
// reaches the engine.
package db

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/eigerco/strata/internal/metrics"
	"github.com/eigerco/strata/pkg/db/engine"
	"github.com/eigerco/strata/pkg/db/pebble"
	"github.com/eigerco/strata/pkg/log"
)

// Range is a half-open key range [Start, Limit).
type Range = engine.Range

type openMode uint8

const (
	modeReadWrite openMode = iota
	modeReadOnly
	modeTransactional
)

func (m openMode) String() string {
	switch m {
	case modeReadOnly:
		return "read-only"
	case modeTransactional:
		return "transactional"
	default:
		return "read-write"
	}
}

// Option configures how a database is opened.
type Option func(*options)

type options struct {
	engine engine.Engine
	logger *zerolog.Logger
}

// WithEngine selects the storage engine. The default is pebble on the
// operating system's filesystem.
func WithEngine(e engine.Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithLogger sets the database's logger. The default is log.Store.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &l
	}
}

// Database is an open database.
type Database struct {
	path          string
	transactional bool
	h             *handle[engine.DB]
	log           zerolog.Logger
	owner         owner
}

// Open opens the database at path for reading and writing.
func Open(path string, cfg DatabaseConfig, opts ...Option) (*Database, error) {
	return open(path, cfg, modeReadWrite, false, opts)
}

// OpenReadOnly opens the database at path for reading. With errorIfLogExists
// set, opening fails if the database has a non-empty write-ahead log.
func OpenReadOnly(path string, cfg DatabaseConfig, errorIfLogExists bool, opts ...Option) (*Database, error) {
	return open(path, cfg, modeReadOnly, errorIfLogExists, opts)
}

// OpenTransactional opens the database at path with support for optimistic
// transactions.
func OpenTransactional(path string, cfg DatabaseConfig, opts ...Option) (*Database, error) {
	return open(path, cfg, modeTransactional, false, opts)
}

func open(path string, cfg DatabaseConfig, mode openMode, errorIfLogExists bool, opts []Option) (*Database, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = pebble.New()
	}
	lg := log.Store
	if o.logger != nil {
		lg = *o.logger
	}
	lg = lg.With().Str("path", path).Logger()

	var (
		edb engine.DB
		err error
		eo  = cfg.engineOptions()
	)
	switch mode {
	case modeReadOnly:
		edb, err = o.engine.OpenReadOnly(path, eo, errorIfLogExists)
	case modeTransactional:
		edb, err = o.engine.OpenTransactional(path, eo)
	default:
		edb, err = o.engine.Open(path, eo)
	}
	if err != nil {
		err = fromEngine(err)
		lg.Error().Err(err).Str("engine", o.engine.Name()).Stringer("mode", mode).Msg("open failed")
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	d := &Database{
		path:          path,
		transactional: mode == modeTransactional,
		h:             newHandle(edb, ErrDatabaseClosed),
		log:           lg,
		owner:         owner{children: newRegistry()},
	}
	if cfg.StatisticsEnabled {
		d.owner.stats = metrics.New(path)
	}
	lg.Info().Str("engine", o.engine.Name()).Stringer("mode", mode).Msg("database opened")
	return d, nil
}

// Close releases every live iterator, transaction and snapshot of the
// database, then the database itself. It is safe to call more than once.
func (d *Database) Close() error {
	return d.h.release(func(edb engine.DB) error {
		if err := d.owner.children.close(); err != nil {
			d.log.Warn().Err(err).Msg("release child handles")
		}
		if err := edb.Close(); err != nil {
			err = fromEngine(err)
			d.log.Error().Err(err).Msg("close failed")
			return err
		}
		d.log.Info().Msg("database closed")
		return nil
	})
}

func (d *Database) Path() string {
	return d.path
}

// IsTransactional reports whether the database was opened with
// OpenTransactional.
func (d *Database) IsTransactional() bool {
	return d.transactional
}

// Collector returns the database's statistics, or nil unless the database
// was opened with StatisticsEnabled.
func (d *Database) Collector() prometheus.Collector {
	if d.owner.stats == nil {
		return nil
	}
	return d.owner.stats
}

func (d *Database) Put(key, value []byte, wc *WriteConfig) error {
	err := d.h.with(func(edb engine.DB) error {
		return fromEngine(edb.Put(wc.engineOptions(), key, value))
	})
	d.owner.observe(metrics.OpPut, err)
	return err
}

// Get returns the value stored under key. A missing key is not an error: it
// returns found == false.
func (d *Database) Get(key []byte, rc *ReadConfig) (value []byte, found bool, err error) {
	err = d.h.with(func(edb engine.DB) error {
		var lerr error
		value, found, lerr = lookup(rc, func(ro engine.ReadOptions) ([]byte, error) {
			return edb.Get(ro, key)
		})
		return lerr
	})
	d.owner.observe(metrics.OpGet, err)
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Delete removes key. Deleting a missing key succeeds.
func (d *Database) Delete(key []byte, wc *WriteConfig) error {
	err := d.h.with(func(edb engine.DB) error {
		return fromEngine(edb.Delete(wc.engineOptions(), key))
	})
	d.owner.observe(metrics.OpDelete, err)
	return err
}

// KeyMayExist reports whether key may be present. It never returns false for
// a present key, but may return true for a missing one. It returns false on a
// closed database.
func (d *Database) KeyMayExist(key []byte, rc *ReadConfig) bool {
	var exists bool
	_ = d.h.with(func(edb engine.DB) error {
		return rc.withOptions(func(ro engine.ReadOptions) error {
			exists = edb.KeyMayExist(ro, key)
			return nil
		})
	})
	return exists
}

// Batch builds a batch with populate and writes it atomically. If populate
// returns an error or panics, nothing is written. The batch is closed in
// every case.
func (d *Database) Batch(populate func(*WriteBatch) error, wc *WriteConfig) error {
	var b *WriteBatch
	err := d.h.with(func(edb engine.DB) error {
		b = newWriteBatch(edb.NewBatch())
		return nil
	})
	if err != nil {
		return err
	}
	defer b.Close()

	if err := populate(b); err != nil {
		return err
	}
	return d.Write(b, wc)
}

// Write applies b atomically. The batch stays open and may be written again.
func (d *Database) Write(b *WriteBatch, wc *WriteConfig) error {
	err := d.h.with(func(edb engine.DB) error {
		return b.h.with(func(eb engine.Batch) error {
			if err := edb.Write(wc.engineOptions(), eb); err != nil {
				return fromEngine(err)
			}
			d.owner.stats.BatchWritten(eb.DataSize())
			return nil
		})
	})
	d.owner.observe(metrics.OpWrite, err)
	return err
}

// Transaction runs body in a new transaction and commits it if body
// succeeds. See InTransaction.
func (d *Database) Transaction(body func(*Transaction) error) error {
	_, err := InTransaction(d, func(tx *Transaction) (struct{}, error) {
		return struct{}{}, body(tx)
	})
	return err
}

// BeginTransaction starts a transaction whose commit is written with wc. It
// fails with a NotSupported error unless the database was opened with
// OpenTransactional.
func (d *Database) BeginTransaction(wc *WriteConfig) (*Transaction, error) {
	var tx *Transaction
	err := d.h.with(func(edb engine.DB) error {
		if !d.transactional {
			return &Error{Kind: KindNotSupported, Message: "database was not opened for transactions"}
		}
		et, err := edb.BeginTransaction(wc.engineOptions())
		if err != nil {
			return fromEngine(err)
		}
		tx = newTransaction(et, d.owner, d.log)
		inner := tx.tx
		inner.onRelease = func() { inner.owner.forget(inner, metrics.HandleTransaction) }
		d.owner.adopt(inner, metrics.HandleTransaction, inner.rollback)
		return nil
	})
	if err != nil {
		return nil, err
	}
	tx.tx.log.Debug().Msg("transaction started")
	return tx, nil
}

// NewIterator returns an unpositioned iterator over the current state of the
// database, or of rc.Snapshot when set.
func (d *Database) NewIterator(rc *ReadConfig) (*Iterator, error) {
	var it *Iterator
	err := d.h.with(func(edb engine.DB) error {
		return rc.withOptions(func(ro engine.ReadOptions) error {
			ei, err := edb.NewIterator(ro)
			if err != nil {
				return fromEngine(err)
			}
			it = newIterator(ei)
			inner, o := it.it, d.owner
			inner.onRelease = func() { o.forget(inner, metrics.HandleIterator) }
			o.adopt(inner, metrics.HandleIterator, inner.close)
			return nil
		})
	})
	d.owner.observe(metrics.OpIteratorNew, err)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// ForEach calls visitor for every entry in key order until it returns false.
func (d *Database) ForEach(visitor func(key, value []byte) bool) error {
	return d.ForEachWithPrefix(nil, visitor)
}

// ForEachWithPrefix calls visitor for every entry whose key starts with
// prefix, in key order, until it returns false. It returns the iterator's
// error, if the scan was cut short by one.
func (d *Database) ForEachWithPrefix(prefix []byte, visitor func(key, value []byte) bool) error {
	it, err := d.NewIterator(nil)
	if err != nil {
		return err
	}
	defer it.Close()

	if len(prefix) == 0 {
		it.SeekToFirst()
	} else {
		it.Seek(prefix)
	}
	for {
		key, value, ok := it.entry()
		if !ok || !bytes.HasPrefix(key, prefix) || !visitor(key, value) {
			break
		}
		it.Next()
	}
	return it.Err()
}

// CompactRange compacts the keys in [start, end]. A nil bound extends the
// range to the first or last key.
func (d *Database) CompactRange(start, end []byte) error {
	err := d.h.with(func(edb engine.DB) error {
		return fromEngine(edb.CompactRange(start, end))
	})
	d.log.Debug().Err(err).Msg("compact range")
	d.owner.observe(metrics.OpCompact, err)
	return err
}

// Flush writes the memtable to disk. Without wait it only schedules the
// flush.
func (d *Database) Flush(wait bool) error {
	err := d.h.with(func(edb engine.DB) error {
		return fromEngine(edb.Flush(wait))
	})
	d.log.Debug().Err(err).Bool("wait", wait).Msg("flush")
	d.owner.observe(metrics.OpFlush, err)
	return err
}

// Property returns an engine property such as "rocksdb.stats". It reports
// false for unknown properties and on a closed database.
func (d *Database) Property(name string) (string, bool) {
	var (
		value string
		ok    bool
	)
	_ = d.h.with(func(edb engine.DB) error {
		value, ok = edb.Property(name)
		return nil
	})
	return value, ok
}

// ApproximateSizes estimates the on-disk size of each range.
func (d *Database) ApproximateSizes(ranges ...Range) ([]uint64, error) {
	var sizes []uint64
	err := d.h.with(func(edb engine.DB) error {
		var err error
		sizes, err = edb.ApproximateSizes(ranges)
		return fromEngine(err)
	})
	if err != nil {
		return nil, err
	}
	return sizes, nil
}

// lookup runs get with rc translated and turns NotFound into found == false.
func lookup(rc *ReadConfig, get func(engine.ReadOptions) ([]byte, error)) (value []byte, found bool, err error) {
	err = rc.withOptions(func(ro engine.ReadOptions) error {
		v, err := get(ro)
		switch {
		case engine.IsNotFound(err):
			return nil
		case err != nil:
			return fromEngine(err)
		}
		value, found = v, true
		return nil
	})
	return value, found, err
}

// owner is what child handles keep of the database that created them. It
// does not reference the Database, so children never keep it reachable.
type owner struct {
	children *registry
	stats    *metrics.Collector
}

// adopt registers a child for release on database close. The child's
// onRelease must call forget.
func (o owner) adopt(key any, kind string, release func() error) bool {
	if !o.children.add(key, release) {
		return false
	}
	o.stats.HandleOpened(kind)
	return true
}

func (o owner) forget(key any, kind string) {
	o.children.remove(key)
	o.stats.HandleReleased(kind)
}

func (o owner) observe(op string, err error) {
	if o.stats == nil {
		return
	}
	result := metrics.ResultOK
	if err != nil {
		result = "error"
		if k, ok := KindOf(err); ok {
			result = k.String()
		}
	}
	o.stats.Observe(op, result)
}
