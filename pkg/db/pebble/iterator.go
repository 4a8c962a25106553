package pebble

import (
	"github.com/cockroachdb/pebble"
)

// Iterator adapts a pebble iterator to the engine cursor contract.
type Iterator struct {
	iter *pebble.Iterator
	err  error
}

func newIterator(iter *pebble.Iterator) *Iterator {
	return &Iterator{iter: iter}
}

func (it *Iterator) Valid() bool {
	return it.iter.Valid()
}

func (it *Iterator) SeekToFirst() {
	it.err = nil
	it.iter.First()
}

func (it *Iterator) SeekToLast() {
	it.err = nil
	it.iter.Last()
}

func (it *Iterator) Seek(target []byte) {
	it.err = nil
	it.iter.SeekGE(target)
}

// SeekForPrev positions at the last key <= target.
func (it *Iterator) SeekForPrev(target []byte) {
	it.err = nil
	it.iter.SeekLT(successor(target))
}

func (it *Iterator) Next() {
	it.iter.Next()
}

func (it *Iterator) Prev() {
	it.iter.Prev()
}

func (it *Iterator) Key() []byte {
	return it.iter.Key()
}

func (it *Iterator) Value() []byte {
	val, err := it.iter.ValueAndErr()
	if err != nil {
		it.err = err
		return nil
	}
	return val
}

func (it *Iterator) Status() error {
	if it.err != nil {
		return statusFromError(it.err)
	}
	return statusFromError(it.iter.Error())
}

func (it *Iterator) Close() error {
	return statusFromError(it.iter.Close())
}

// successor returns the smallest key strictly greater than key.
func successor(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}
