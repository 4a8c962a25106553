package db

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eigerco/strata/internal/metrics"
	"github.com/eigerco/strata/pkg/db/engine"
)

// TxState is the lifecycle state of a transaction. Committed and RolledBack
// are terminal.
type TxState uint32

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Transaction is an optimistic transaction. Writes are buffered until Commit
// and reads see them over a snapshot taken at begin. Keys passed to Put,
// Delete and GetForUpdate are validated at commit: if another writer changed
// one of them since the snapshot, Commit fails with ErrTransactionConflict
// and nothing is written.
//
// A transaction that is dropped while still active is rolled back when it is
// garbage collected, but callers should always Commit or Rollback.
type Transaction struct {
	tx *transaction
}

type transaction struct {
	h     *handle[engine.Transaction]
	id    uuid.UUID
	state atomic.Uint32
	// iterators created by the transaction, closed before it ends
	iters     *registry
	owner     owner
	log       zerolog.Logger
	onRelease func()
}

func newTransaction(et engine.Transaction, o owner, log zerolog.Logger) *Transaction {
	id := uuid.New()
	t := &Transaction{tx: &transaction{
		h:         newHandle(et, ErrHandleClosed),
		id:        id,
		iters:     newRegistry(),
		owner:     o,
		log:       log.With().Stringer("txn", id).Logger(),
		onRelease: func() {},
	}}
	runtime.SetFinalizer(t, func(t *Transaction) {
		if t.tx.h.alive() {
			t.tx.log.Warn().Msg("transaction dropped while active, rolling back")
			_ = t.tx.rollback()
		}
	})
	return t
}

// ID identifies the transaction in logs.
func (t *Transaction) ID() uuid.UUID {
	return t.tx.id
}

func (t *Transaction) State() TxState {
	return TxState(t.tx.state.Load())
}

// Get reads key from the transaction's pending writes, then from its
// snapshot. The key is not tracked for conflicts.
func (t *Transaction) Get(key []byte, rc *ReadConfig) ([]byte, bool, error) {
	return t.tx.read(rc, func(et engine.Transaction, ro engine.ReadOptions) ([]byte, error) {
		return et.Get(ro, key)
	})
}

// GetForUpdate reads key like Get and tracks it, so Commit fails if another
// writer changes it first.
func (t *Transaction) GetForUpdate(key []byte, rc *ReadConfig) ([]byte, bool, error) {
	return t.tx.read(rc, func(et engine.Transaction, ro engine.ReadOptions) ([]byte, error) {
		return et.GetForUpdate(ro, key)
	})
}

func (t *Transaction) Put(key, value []byte) error {
	return t.tx.h.with(func(et engine.Transaction) error {
		return fromEngine(et.Put(key, value))
	})
}

func (t *Transaction) Delete(key []byte) error {
	return t.tx.h.with(func(et engine.Transaction) error {
		return fromEngine(et.Delete(key))
	})
}

// NewIterator returns an iterator over the transaction's pending writes merged
// with its snapshot. It is closed when the transaction ends.
func (t *Transaction) NewIterator(rc *ReadConfig) (*Iterator, error) {
	var it *Iterator
	err := t.tx.h.with(func(et engine.Transaction) error {
		return rc.withOptions(func(ro engine.ReadOptions) error {
			ei, err := et.NewIterator(ro)
			if err != nil {
				return fromEngine(err)
			}
			it = newIterator(ei)
			return t.tx.adoptIterator(it.it)
		})
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (tx *transaction) adoptIterator(it *iterator) error {
	iters, o := tx.iters, tx.owner
	it.onRelease = func() {
		iters.remove(it)
		o.forget(it, metrics.HandleIterator)
	}
	if !o.adopt(it, metrics.HandleIterator, it.close) {
		it.onRelease = func() {}
		_ = it.close()
		return ErrDatabaseClosed
	}
	iters.add(it, it.close)
	return nil
}

// SetSavepoint marks the current set of pending writes.
func (t *Transaction) SetSavepoint() error {
	return t.tx.h.with(func(et engine.Transaction) error {
		et.SetSavePoint()
		return nil
	})
}

// RollbackToSavepoint discards the writes made since the most recent
// savepoint and removes it. Without a savepoint it returns a NotFound error
// and changes nothing. The transaction stays active either way.
func (t *Transaction) RollbackToSavepoint() error {
	return t.tx.h.with(func(et engine.Transaction) error {
		return fromEngine(et.RollbackToSavePoint())
	})
}

// Commit applies the pending writes atomically. On a conflict it returns an
// error matching ErrTransactionConflict and the transaction is rolled back.
// Committing a finished transaction returns ErrHandleClosed.
func (t *Transaction) Commit() error {
	runtime.SetFinalizer(t, nil)
	return t.tx.commit()
}

// Rollback discards the pending writes. It is a no-op on a finished
// transaction.
func (t *Transaction) Rollback() error {
	runtime.SetFinalizer(t, nil)
	return t.tx.rollback()
}

func (tx *transaction) read(rc *ReadConfig, get func(engine.Transaction, engine.ReadOptions) ([]byte, error)) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := tx.h.with(func(et engine.Transaction) error {
		var err error
		value, found, err = lookup(rc, func(ro engine.ReadOptions) ([]byte, error) {
			return get(et, ro)
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (tx *transaction) commit() error {
	err := tx.h.finish(func(et engine.Transaction) error {
		defer tx.onRelease()
		tx.closeIterators()

		if err := et.Commit(); err != nil {
			tx.state.Store(uint32(TxRolledBack))
			if rerr := et.Rollback(); rerr != nil {
				tx.log.Warn().Err(rerr).Msg("rollback after failed commit")
			}
			if cerr := et.Close(); cerr != nil {
				tx.log.Warn().Err(cerr).Msg("close transaction")
			}
			return fromCommit(err)
		}
		tx.state.Store(uint32(TxCommitted))
		if err := et.Close(); err != nil {
			tx.log.Warn().Err(err).Msg("close transaction")
		}
		return nil
	})

	switch {
	case err == nil:
		tx.log.Debug().Msg("transaction committed")
	case errors.Is(err, ErrTransactionConflict):
		tx.log.Debug().Err(err).Msg("transaction conflict")
		tx.owner.stats.Conflict()
	case !errors.Is(err, ErrHandleClosed):
		tx.log.Error().Err(err).Msg("transaction commit failed")
	}
	tx.owner.observe(metrics.OpCommit, err)
	return err
}

func (tx *transaction) rollback() error {
	return tx.h.release(func(et engine.Transaction) error {
		defer tx.onRelease()
		tx.closeIterators()

		tx.state.Store(uint32(TxRolledBack))
		err := et.Rollback()
		if cerr := et.Close(); err == nil {
			err = cerr
		}
		err = fromEngine(err)
		tx.log.Debug().Err(err).Msg("transaction rolled back")
		tx.owner.observe(metrics.OpRollback, err)
		return err
	})
}

func (tx *transaction) closeIterators() {
	if err := tx.iters.close(); err != nil {
		tx.log.Warn().Err(err).Msg("close transaction iterators")
	}
}

// InTransaction runs body in a new transaction on d and commits it if body
// succeeds. If body returns an error or panics, or the commit fails, the
// transaction is rolled back and the failure is returned or re-raised.
func InTransaction[T any](d *Database, body func(*Transaction) (T, error)) (T, error) {
	var zero T

	tx, err := d.BeginTransaction(nil)
	if err != nil {
		return zero, err
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback()
		}
	}()

	result, err := body(tx)
	if err != nil {
		return zero, err
	}
	finished = true
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return result, nil
}
