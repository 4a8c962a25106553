package rocksdb

import (
	"runtime"

	"github.com/eigerco/strata/pkg/db/engine"
)

// Transaction is a native optimistic transaction. It reads from a snapshot
// taken at begin, so conflicts are checked against that point.
type Transaction struct {
	txn  uintptr
	wo   writeOptions
	opts uintptr
}

func newTransaction(txnDB uintptr, wo engine.WriteOptions) (*Transaction, error) {
	native, err := newWriteOptions(wo)
	if err != nil {
		return nil, err
	}
	opts := optimisticTxnOptionsCreate()
	optimisticTxnOptionsSetSnapshot(opts, 1)
	return &Transaction{
		txn:  optimisticTxnBegin(txnDB, uintptr(native), opts, 0),
		wo:   native,
		opts: opts,
	}, nil
}

func (t *Transaction) Put(key, value []byte) error {
	if t.txn == 0 {
		return errClosed
	}
	var errptr uintptr
	txnPut(t.txn, bytesPtr(key), uintptr(len(key)), bytesPtr(value), uintptr(len(value)), &errptr)
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
	return statusFromErr(errptr)
}

func (t *Transaction) Get(ro engine.ReadOptions, key []byte) ([]byte, error) {
	return t.get(ro, key, false)
}

func (t *Transaction) GetForUpdate(ro engine.ReadOptions, key []byte) ([]byte, error) {
	return t.get(ro, key, true)
}

func (t *Transaction) get(ro engine.ReadOptions, key []byte, forUpdate bool) ([]byte, error) {
	if t.txn == 0 {
		return nil, errClosed
	}
	native, err := newReadOptions(ro)
	if err != nil {
		return nil, err
	}
	defer native.destroy()

	var vlen, errptr, val uintptr
	if forUpdate {
		val = txnGetForUpdate(t.txn, uintptr(native), bytesPtr(key), uintptr(len(key)), &vlen, 1, &errptr)
	} else {
		val = txnGet(t.txn, uintptr(native), bytesPtr(key), uintptr(len(key)), &vlen, &errptr)
	}
	runtime.KeepAlive(key)
	return takeValue(val, vlen, errptr)
}

func (t *Transaction) Delete(key []byte) error {
	if t.txn == 0 {
		return errClosed
	}
	var errptr uintptr
	txnDelete(t.txn, bytesPtr(key), uintptr(len(key)), &errptr)
	runtime.KeepAlive(key)
	return statusFromErr(errptr)
}

// NewIterator merges the transaction's pending writes over the database.
func (t *Transaction) NewIterator(ro engine.ReadOptions) (engine.Iterator, error) {
	if t.txn == 0 {
		return nil, errClosed
	}
	native, err := newReadOptions(ro)
	if err != nil {
		return nil, err
	}
	defer native.destroy()
	return newIterator(txnCreateIterator(t.txn, uintptr(native))), nil
}

func (t *Transaction) Commit() error {
	if t.txn == 0 {
		return errClosed
	}
	var errptr uintptr
	txnCommit(t.txn, &errptr)
	return statusFromErr(errptr)
}

func (t *Transaction) Rollback() error {
	if t.txn == 0 {
		return errClosed
	}
	var errptr uintptr
	txnRollback(t.txn, &errptr)
	return statusFromErr(errptr)
}

func (t *Transaction) SetSavePoint() {
	if t.txn != 0 {
		txnSetSavepoint(t.txn)
	}
}

// RollbackToSavePoint returns NotFound when no savepoint is set.
func (t *Transaction) RollbackToSavePoint() error {
	if t.txn == 0 {
		return errClosed
	}
	var errptr uintptr
	txnRollbackToSavepoint(t.txn, &errptr)
	return statusFromErr(errptr)
}

func (t *Transaction) Close() error {
	if t.txn == 0 {
		return nil
	}
	txnDestroy(t.txn)
	t.wo.destroy()
	optimisticTxnOptionsDestroy(t.opts)
	t.txn = 0
	return nil
}
