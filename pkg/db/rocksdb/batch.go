package rocksdb

import (
	"runtime"

	"github.com/eigerco/strata/pkg/db/engine"
)

// Batch is a native rocksdb_writebatch_t.
type Batch struct {
	b uintptr
}

// NewBatch returns an empty batch. It panics if librocksdb has not been
// loaded.
func NewBatch() *Batch {
	return &Batch{b: writeBatchCreate()}
}

func (b *Batch) Put(key, value []byte) {
	writeBatchPut(b.b, bytesPtr(key), uintptr(len(key)), bytesPtr(value), uintptr(len(value)))
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
}

func (b *Batch) Delete(key []byte) {
	writeBatchDelete(b.b, bytesPtr(key), uintptr(len(key)))
	runtime.KeepAlive(key)
}

func (b *Batch) DeleteRange(start, end []byte) {
	writeBatchDeleteRange(b.b, bytesPtr(start), uintptr(len(start)), bytesPtr(end), uintptr(len(end)))
	runtime.KeepAlive(start)
	runtime.KeepAlive(end)
}

func (b *Batch) Clear() {
	writeBatchClear(b.b)
}

func (b *Batch) Count() int {
	return int(writeBatchCount(b.b))
}

// DataSize is the size of the serialized batch representation.
func (b *Batch) DataSize() int {
	var size uintptr
	writeBatchData(b.b, &size)
	return int(size)
}

func (b *Batch) Close() error {
	if b.b != 0 {
		writeBatchDestroy(b.b)
		b.b = 0
	}
	return nil
}

// asBatch returns a native batch for b. Batches from other engines are
// replayed into a temporary native batch, which release destroys.
func asBatch(b engine.Batch) (*Batch, func(), error) {
	switch v := b.(type) {
	case *Batch:
		if v.b == 0 {
			return nil, nil, errClosed
		}
		return v, func() {}, nil
	case engine.Replayer:
		native := NewBatch()
		v.Replay(native)
		return native, func() { _ = native.Close() }, nil
	}
	return nil, nil, errForeignBatch
}
