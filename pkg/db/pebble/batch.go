package pebble

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/strata/pkg/db/engine"
)

// batchHeaderSize is the fixed sequence-number and count prefix of a RocksDB
// write batch representation.
const batchHeaderSize = 12

type opKind uint8

const (
	opPut opKind = iota + 1
	opDelete
	opDeleteRange
)

type batchOp struct {
	kind       opKind
	key, value []byte
}

// Batch records write operations in order. It is replayed into a pebble batch
// when written, so it can be built before, and independently of, any
// database.
type Batch struct {
	ops  []batchOp
	size int
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{size: batchHeaderSize}
}

func (b *Batch) Put(key, value []byte) {
	b.append(batchOp{kind: opPut, key: clone(key), value: clone(value)})
}

func (b *Batch) Delete(key []byte) {
	b.append(batchOp{kind: opDelete, key: clone(key)})
}

func (b *Batch) DeleteRange(start, end []byte) {
	b.append(batchOp{kind: opDeleteRange, key: clone(start), value: clone(end)})
}

func (b *Batch) Clear() {
	b.ops = b.ops[:0]
	b.size = batchHeaderSize
}

func (b *Batch) Count() int {
	return len(b.ops)
}

func (b *Batch) DataSize() int {
	return b.size
}

func (b *Batch) Close() error {
	b.ops = nil
	return nil
}

func (b *Batch) append(op batchOp) {
	b.ops = append(b.ops, op)
	// tag byte plus length-prefixed key, and value for everything but deletes
	b.size += 1 + lengthPrefixed(op.key)
	if op.kind != opDelete {
		b.size += lengthPrefixed(op.value)
	}
}

// replay applies the batch to a pebble batch and returns the point keys and
// ranges it touches.
func (b *Batch) replay(pb *pebble.Batch) ([][]byte, []rangeWrite, error) {
	var (
		keys   [][]byte
		ranges []rangeWrite
	)
	for _, op := range b.ops {
		var err error
		switch op.kind {
		case opPut:
			err = pb.Set(op.key, op.value, nil)
			keys = append(keys, op.key)
		case opDelete:
			err = pb.Delete(op.key, nil)
			keys = append(keys, op.key)
		case opDeleteRange:
			err = pb.DeleteRange(op.key, op.value, nil)
			ranges = append(ranges, rangeWrite{start: op.key, end: op.value})
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return keys, ranges, nil
}

// Replay re-emits the batch's operations into dst.
func (b *Batch) Replay(dst engine.Batch) {
	for _, op := range b.ops {
		switch op.kind {
		case opPut:
			dst.Put(op.key, op.value)
		case opDelete:
			dst.Delete(op.key)
		case opDeleteRange:
			dst.DeleteRange(op.key, op.value)
		}
	}
}

// asBatch accepts batches of this engine, and foreign batches that can replay
// themselves.
func asBatch(b engine.Batch) (*Batch, error) {
	switch b := b.(type) {
	case *Batch:
		return b, nil
	case engine.Replayer:
		pb := NewBatch()
		b.Replay(pb)
		return pb, nil
	}
	return nil, engine.NewStatus(engine.CodeInvalidArgument, "batch %T was not created by the pebble engine", b)
}

func lengthPrefixed(b []byte) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], uint64(len(b))) + len(b)
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
