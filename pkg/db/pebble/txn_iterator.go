package pebble

import (
	"bytes"
	"sort"

	"github.com/cockroachdb/pebble"
)

type pendingEntry struct {
	key     []byte
	value   []byte
	deleted bool
}

type source uint8

const (
	sourceNone source = iota
	sourceBase
	sourcePending
)

// txnIterator merges a transaction's pending writes over an iterator on its
// snapshot. Pending entries shadow base entries with the same key; pending
// deletes hide them. The pending set is copied when the iterator is created.
type txnIterator struct {
	base    *pebble.Iterator
	pending []pendingEntry
	pos     int
	forward bool
	current source
	key     []byte
	err     error
}

func newTxnIterator(base *pebble.Iterator, pending []pendingEntry) *txnIterator {
	return &txnIterator{base: base, pending: pending, forward: true}
}

func (it *txnIterator) Valid() bool {
	return it.current != sourceNone
}

func (it *txnIterator) SeekToFirst() {
	it.err = nil
	it.base.First()
	it.pos = 0
	it.forward = true
	it.findForward()
}

func (it *txnIterator) SeekToLast() {
	it.err = nil
	it.base.Last()
	it.pos = len(it.pending) - 1
	it.forward = false
	it.findBackward()
}

func (it *txnIterator) Seek(target []byte) {
	it.err = nil
	it.base.SeekGE(target)
	it.pos = it.searchGE(target)
	it.forward = true
	it.findForward()
}

func (it *txnIterator) SeekForPrev(target []byte) {
	it.err = nil
	it.base.SeekLT(successor(target))
	it.pos = it.searchGT(target) - 1
	it.forward = false
	it.findBackward()
}

func (it *txnIterator) Next() {
	if it.current == sourceNone {
		return
	}
	key := it.key
	if it.forward {
		if it.base.Valid() && bytes.Equal(it.base.Key(), key) {
			it.base.Next()
		}
		if it.pos < len(it.pending) && bytes.Equal(it.pending[it.pos].key, key) {
			it.pos++
		}
	} else {
		it.base.SeekGE(successor(key))
		it.pos = it.searchGT(key)
		it.forward = true
	}
	it.findForward()
}

func (it *txnIterator) Prev() {
	if it.current == sourceNone {
		return
	}
	key := it.key
	if !it.forward {
		if it.base.Valid() && bytes.Equal(it.base.Key(), key) {
			it.base.Prev()
		}
		if it.pos >= 0 && bytes.Equal(it.pending[it.pos].key, key) {
			it.pos--
		}
	} else {
		it.base.SeekLT(key)
		it.pos = it.searchGE(key) - 1
		it.forward = false
	}
	it.findBackward()
}

func (it *txnIterator) Key() []byte {
	if it.current == sourceNone {
		return nil
	}
	return it.key
}

func (it *txnIterator) Value() []byte {
	switch it.current {
	case sourcePending:
		return it.pending[it.pos].value
	case sourceBase:
		val, err := it.base.ValueAndErr()
		if err != nil {
			it.err = err
			return nil
		}
		return val
	default:
		return nil
	}
}

func (it *txnIterator) Status() error {
	if it.err != nil {
		return statusFromError(it.err)
	}
	return statusFromError(it.base.Error())
}

func (it *txnIterator) Close() error {
	it.current = sourceNone
	it.pending = nil
	return statusFromError(it.base.Close())
}

// findForward settles on the smallest visible key at or after the current
// base and pending positions.
func (it *txnIterator) findForward() {
	for {
		baseValid := it.base.Valid()
		if it.pos >= len(it.pending) {
			it.settle(baseValid, sourceBase)
			return
		}
		p := it.pending[it.pos]
		cmp := 1
		if baseValid {
			cmp = bytes.Compare(it.base.Key(), p.key)
		}
		if cmp < 0 {
			it.settle(true, sourceBase)
			return
		}
		if p.deleted {
			if cmp == 0 {
				it.base.Next()
			}
			it.pos++
			continue
		}
		it.settle(true, sourcePending)
		return
	}
}

// findBackward settles on the largest visible key at or before the current
// base and pending positions.
func (it *txnIterator) findBackward() {
	for {
		baseValid := it.base.Valid()
		if it.pos < 0 {
			it.settle(baseValid, sourceBase)
			return
		}
		p := it.pending[it.pos]
		cmp := -1
		if baseValid {
			cmp = bytes.Compare(it.base.Key(), p.key)
		}
		if cmp > 0 {
			it.settle(true, sourceBase)
			return
		}
		if p.deleted {
			if cmp == 0 {
				it.base.Prev()
			}
			it.pos--
			continue
		}
		it.settle(true, sourcePending)
		return
	}
}

func (it *txnIterator) settle(valid bool, src source) {
	if !valid {
		it.current = sourceNone
		it.key = nil
		return
	}
	it.current = src
	if src == sourcePending {
		it.key = it.pending[it.pos].key
	} else {
		it.key = append(it.key[:0:0], it.base.Key()...)
	}
}

func (it *txnIterator) searchGE(key []byte) int {
	return sort.Search(len(it.pending), func(i int) bool {
		return bytes.Compare(it.pending[i].key, key) >= 0
	})
}

func (it *txnIterator) searchGT(key []byte) int {
	return sort.Search(len(it.pending), func(i int) bool {
		return bytes.Compare(it.pending[i].key, key) > 0
	})
}
