package db

import (
	"iter"
	"runtime"

	"github.com/eigerco/strata/pkg/db/engine"
)

// Iterator is a cursor over the ordered key space, bound at creation to a
// consistent view: the database's state at that moment, or a transaction's
// pending writes over its snapshot.
//
// A new iterator is unpositioned; call one of the Seek methods first. After a
// scan ends, Err tells an exhausted range apart from an engine failure.
// Iterators must be closed. Closing is idempotent, and a closed iterator
// reports itself invalid.
type Iterator struct {
	it *iterator
}

// iterator is the part of an Iterator its parents hold on to, so the
// finalizer on Iterator can still run while a parent is alive.
type iterator struct {
	h         *handle[engine.Iterator]
	onRelease func()
}

func newIterator(ei engine.Iterator) *Iterator {
	i := &Iterator{it: &iterator{
		h:         newHandle(ei, ErrHandleClosed),
		onRelease: func() {},
	}}
	runtime.SetFinalizer(i, func(i *Iterator) { _ = i.it.close() })
	return i
}

func (it *iterator) close() error {
	return it.h.release(func(ei engine.Iterator) error {
		err := ei.Close()
		it.onRelease()
		return fromEngine(err)
	})
}

// move runs fn on the engine iterator; it is a no-op once closed.
func (i *Iterator) move(fn func(ei engine.Iterator)) {
	_ = i.it.h.with(func(ei engine.Iterator) error {
		fn(ei)
		return nil
	})
}

func (i *Iterator) SeekToFirst() {
	i.move(func(ei engine.Iterator) { ei.SeekToFirst() })
}

func (i *Iterator) SeekToLast() {
	i.move(func(ei engine.Iterator) { ei.SeekToLast() })
}

// Seek positions at the first key >= target.
func (i *Iterator) Seek(target []byte) {
	i.move(func(ei engine.Iterator) { ei.Seek(target) })
}

// SeekForPrev positions at the last key <= target.
func (i *Iterator) SeekForPrev(target []byte) {
	i.move(func(ei engine.Iterator) { ei.SeekForPrev(target) })
}

// Next moves to the following key. It does nothing unless the iterator is
// valid.
func (i *Iterator) Next() {
	i.move(func(ei engine.Iterator) {
		if ei.Valid() {
			ei.Next()
		}
	})
}

// Prev moves to the preceding key. It does nothing unless the iterator is
// valid.
func (i *Iterator) Prev() {
	i.move(func(ei engine.Iterator) {
		if ei.Valid() {
			ei.Prev()
		}
	})
}

func (i *Iterator) Valid() bool {
	var valid bool
	i.move(func(ei engine.Iterator) { valid = ei.Valid() })
	return valid
}

// Key returns a copy of the current key, or nil when the iterator is not
// valid.
func (i *Iterator) Key() []byte {
	var key []byte
	i.move(func(ei engine.Iterator) {
		if ei.Valid() {
			key = copyBytes(ei.Key())
		}
	})
	return key
}

// Value returns a copy of the current value, or nil when the iterator is not
// valid.
func (i *Iterator) Value() []byte {
	var value []byte
	i.move(func(ei engine.Iterator) {
		if ei.Valid() {
			value = copyBytes(ei.Value())
		}
	})
	return value
}

// entry copies the current key and value under one lock acquisition.
func (i *Iterator) entry() (key, value []byte, ok bool) {
	i.move(func(ei engine.Iterator) {
		if !ei.Valid() {
			return
		}
		key, value, ok = copyBytes(ei.Key()), copyBytes(ei.Value()), true
	})
	return key, value, ok
}

// Err returns the error that stopped the iterator, if any. It returns
// ErrHandleClosed after Close.
func (i *Iterator) Err() error {
	return i.it.h.with(func(ei engine.Iterator) error {
		return fromEngine(ei.Status())
	})
}

// Close releases the iterator.
func (i *Iterator) Close() error {
	runtime.SetFinalizer(i, nil)
	return i.it.close()
}

// All returns the iterator's entries from the first key onwards. Each range
// over the sequence starts again from the first key. Check Err after the loop.
func (i *Iterator) All() iter.Seq2[[]byte, []byte] {
	return func(yield func(key, value []byte) bool) {
		for i.SeekToFirst(); ; i.Next() {
			key, value, ok := i.entry()
			if !ok || !yield(key, value) {
				return
			}
		}
	}
}

// copyBytes never returns nil, so an empty key or value stays
// distinguishable from an invalid position.
func copyBytes(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
