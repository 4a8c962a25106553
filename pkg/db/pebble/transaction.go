package pebble

import (
	"bytes"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/zhangyunhao116/skipmap"

	"github.com/eigerco/strata/pkg/db/engine"
)

type pendingIndex = skipmap.FuncMap[[]byte, pendingEntry]

type savePoint struct {
	writes  int
	tracked int
}

// Transaction is an optimistic transaction over a snapshot of the database.
// Writes are buffered in order, indexed by key for reads, and applied as one
// pebble batch on commit.
type Transaction struct {
	db      *DB
	wo      engine.WriteOptions
	snap    *pebble.Snapshot
	version uint64

	writes []pendingEntry
	index  *pendingIndex

	tracked    map[string]struct{}
	trackOrder []string
	savePoints []savePoint

	done bool
}

func newTransaction(db *DB, wo engine.WriteOptions) *Transaction {
	snap, version := db.commits.begin(db.db)
	return &Transaction{
		db:      db,
		wo:      wo,
		snap:    snap,
		version: version,
		index:   newPendingIndex(),
		tracked: make(map[string]struct{}),
	}
}

func newPendingIndex() *pendingIndex {
	return skipmap.NewFunc[[]byte, pendingEntry](func(a, b []byte) bool {
		return bytes.Compare(a, b) < 0
	})
}

func (t *Transaction) Put(key, value []byte) error {
	if t.done {
		return errTxnNotActive
	}
	t.buffer(pendingEntry{key: clone(key), value: clone(value)})
	return nil
}

func (t *Transaction) Delete(key []byte) error {
	if t.done {
		return errTxnNotActive
	}
	t.buffer(pendingEntry{key: clone(key), deleted: true})
	return nil
}

func (t *Transaction) Get(ro engine.ReadOptions, key []byte) ([]byte, error) {
	if t.done {
		return nil, errTxnNotActive
	}
	if e, ok := t.index.Load(key); ok {
		if e.deleted {
			return nil, engine.NewStatus(engine.CodeNotFound, "")
		}
		return clone(e.value), nil
	}
	return t.read(ro, key)
}

// GetForUpdate reads key and tracks it for validation at commit.
func (t *Transaction) GetForUpdate(ro engine.ReadOptions, key []byte) ([]byte, error) {
	if t.done {
		return nil, errTxnNotActive
	}
	t.track(key)
	return t.Get(ro, key)
}

func (t *Transaction) NewIterator(ro engine.ReadOptions) (engine.Iterator, error) {
	if t.done {
		return nil, errTxnNotActive
	}
	reader, err := t.reader(ro)
	if err != nil {
		return nil, err
	}
	base, err := reader.NewIter(nil)
	if err != nil {
		return nil, statusFromError(err)
	}

	pending := make([]pendingEntry, 0, t.index.Len())
	t.index.Range(func(_ []byte, e pendingEntry) bool {
		pending = append(pending, e)
		return true
	})
	return newTxnIterator(base, pending), nil
}

func (t *Transaction) Commit() error {
	if t.done {
		return errTxnNotActive
	}
	defer t.finish()

	wo, err := pebbleWriteOptions(t.wo)
	if err != nil {
		t.db.commits.end(t.version)
		return err
	}

	keys := make([][]byte, 0, len(t.writes))
	for _, w := range t.writes {
		keys = append(keys, w.key)
	}
	err = t.db.commits.commit(t.version, t.tracked, keys, func() error {
		pb := t.db.db.NewBatch()
		defer pb.Close()
		for _, w := range t.writes {
			var err error
			if w.deleted {
				err = pb.Delete(w.key, nil)
			} else {
				err = pb.Set(w.key, w.value, nil)
			}
			if err != nil {
				return err
			}
		}
		return pb.Commit(wo)
	})
	return statusFromError(err)
}

func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.db.commits.end(t.version)
	t.finish()
	return nil
}

func (t *Transaction) SetSavePoint() {
	t.savePoints = append(t.savePoints, savePoint{writes: len(t.writes), tracked: len(t.trackOrder)})
}

// RollbackToSavePoint discards writes and key tracking made after the most
// recent savepoint, and removes that savepoint.
func (t *Transaction) RollbackToSavePoint() error {
	if t.done {
		return errTxnNotActive
	}
	if len(t.savePoints) == 0 {
		return errNoSavePoint
	}
	sp := t.savePoints[len(t.savePoints)-1]
	t.savePoints = t.savePoints[:len(t.savePoints)-1]

	for _, k := range t.trackOrder[sp.tracked:] {
		delete(t.tracked, k)
	}
	t.trackOrder = t.trackOrder[:sp.tracked]

	t.writes = t.writes[:sp.writes]
	t.index = newPendingIndex()
	for _, w := range t.writes {
		t.index.Store(w.key, w)
	}
	return nil
}

func (t *Transaction) Close() error {
	return t.Rollback()
}

func (t *Transaction) buffer(e pendingEntry) {
	t.track(e.key)
	t.writes = append(t.writes, e)
	t.index.Store(e.key, e)
}

func (t *Transaction) track(key []byte) {
	k := string(key)
	if _, ok := t.tracked[k]; ok {
		return
	}
	t.tracked[k] = struct{}{}
	t.trackOrder = append(t.trackOrder, k)
}

func (t *Transaction) read(ro engine.ReadOptions, key []byte) ([]byte, error) {
	reader, err := t.reader(ro)
	if err != nil {
		return nil, err
	}
	return get(reader, key)
}

func (t *Transaction) reader(ro engine.ReadOptions) (*pebble.Snapshot, error) {
	if ro.Snapshot == nil {
		return t.snap, nil
	}
	return asSnapshot(ro.Snapshot)
}

func (t *Transaction) finish() {
	t.done = true
	t.writes = nil
	t.index = newPendingIndex()
	t.tracked = nil
	t.trackOrder = nil
	t.savePoints = nil
	if t.snap != nil {
		if err := t.snap.Close(); err != nil {
			t.db.log.Warn().Err(err).Msg("release transaction snapshot")
		}
		t.snap = nil
	}
}

type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// get copies the value out of pebble's buffer before releasing it.
func get(r pebbleReader, key []byte) ([]byte, error) {
	value, closer, err := r.Get(key)
	if err != nil {
		return nil, statusFromError(err)
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}
