package db

import (
	"github.com/eigerco/strata/pkg/db/engine"
	"github.com/eigerco/strata/pkg/db/pebble"
)

// WriteBatch is an ordered log of writes applied atomically by
// Database.Write. Later operations on a key override earlier ones. A batch is
// not bound to any database and may be written more than once.
type WriteBatch struct {
	h *handle[engine.Batch]
}

// NewWriteBatch returns an empty batch that any engine can apply.
func NewWriteBatch() *WriteBatch {
	return newWriteBatch(pebble.NewBatch())
}

func newWriteBatch(b engine.Batch) *WriteBatch {
	return &WriteBatch{h: newHandle(b, ErrHandleClosed)}
}

func (b *WriteBatch) Put(key, value []byte) error {
	return b.h.with(func(eb engine.Batch) error {
		eb.Put(key, value)
		return nil
	})
}

func (b *WriteBatch) Delete(key []byte) error {
	return b.h.with(func(eb engine.Batch) error {
		eb.Delete(key)
		return nil
	})
}

// DeleteRange deletes every key in [start, end).
func (b *WriteBatch) DeleteRange(start, end []byte) error {
	return b.h.with(func(eb engine.Batch) error {
		eb.DeleteRange(start, end)
		return nil
	})
}

// Clear drops every operation recorded so far.
func (b *WriteBatch) Clear() error {
	return b.h.with(func(eb engine.Batch) error {
		eb.Clear()
		return nil
	})
}

// Count returns the number of recorded operations, or 0 once closed.
func (b *WriteBatch) Count() int {
	var n int
	_ = b.h.with(func(eb engine.Batch) error {
		n = eb.Count()
		return nil
	})
	return n
}

// DataSize returns the size of the batch's serialized representation, or 0
// once closed.
func (b *WriteBatch) DataSize() int {
	var n int
	_ = b.h.with(func(eb engine.Batch) error {
		n = eb.DataSize()
		return nil
	})
	return n
}

func (b *WriteBatch) IsEmpty() bool {
	return b.Count() == 0
}

// Close releases the batch. It is safe to call more than once.
func (b *WriteBatch) Close() error {
	return b.h.release(func(eb engine.Batch) error {
		return fromEngine(eb.Close())
	})
}
