// Package engine defines the boundary between the strata client layer and an
// ordered key-value storage engine.
//
// Every handle returned by an engine is an owning reference: it must be
// released exactly once with Close (or Release for snapshots), and must not be
// used afterwards. Engines are safe for concurrent readers plus a single
// writer stream; individual handles are not safe for concurrent use and are
// serialized by the caller.
package engine

// Engine opens databases.
type Engine interface {
	Name() string
	Open(path string, opts Options) (DB, error)
	OpenReadOnly(path string, opts Options, errorIfLogExists bool) (DB, error)
	OpenTransactional(path string, opts Options) (DB, error)
}

// DB is an open database handle.
//
// Get returns a Status with code NotFound when the key is absent. Values it
// returns are owned by the caller.
type DB interface {
	Put(wo WriteOptions, key, value []byte) error
	Get(ro ReadOptions, key []byte) ([]byte, error)
	Delete(wo WriteOptions, key []byte) error
	KeyMayExist(ro ReadOptions, key []byte) bool

	NewBatch() Batch
	Write(wo WriteOptions, b Batch) error

	NewIterator(ro ReadOptions) (Iterator, error)
	NewSnapshot() (Snapshot, error)

	IsTransactional() bool
	BeginTransaction(wo WriteOptions) (Transaction, error)

	CompactRange(start, end []byte) error
	Flush(wait bool) error
	Property(name string) (string, bool)
	ApproximateSizes(ranges []Range) ([]uint64, error)

	Close() error
}

// Batch is an ordered, append-only log of write operations. A batch is not
// bound to a database until it is written.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	DeleteRange(start, end []byte)
	Clear()
	Count() int
	DataSize() int
	Close() error
}

// Replayer is implemented by batches that can re-emit their operations, in
// order, into a batch of another engine.
type Replayer interface {
	Replay(dst Batch)
}

// Iterator is a cursor over an ordered key space.
//
// The slices returned by Key and Value are owned by the engine and are only
// valid until the next call on the iterator.
type Iterator interface {
	Valid() bool
	SeekToFirst()
	SeekToLast()
	Seek(target []byte)
	SeekForPrev(target []byte)
	Next()
	Prev()
	Key() []byte
	Value() []byte
	Status() error
	Close() error
}

// Transaction is an optimistic transaction. Commit returns a Status with code
// Busy or TryAgain when a tracked key was modified after the transaction's
// snapshot.
type Transaction interface {
	Put(key, value []byte) error
	Get(ro ReadOptions, key []byte) ([]byte, error)
	GetForUpdate(ro ReadOptions, key []byte) ([]byte, error)
	Delete(key []byte) error
	NewIterator(ro ReadOptions) (Iterator, error)
	Commit() error
	Rollback() error
	SetSavePoint()
	RollbackToSavePoint() error
	Close() error
}

// Snapshot is a consistent point-in-time view of a database.
type Snapshot interface {
	Release()
}

// Range is a half-open key range [Start, Limit).
type Range struct {
	Start []byte
	Limit []byte
}
