package db

// Reader reads from a consistent view of the key space. Both *Database and
// *Transaction satisfy it; a transaction's view includes its pending writes.
type Reader interface {
	Get(key []byte, rc *ReadConfig) ([]byte, bool, error)
	NewIterator(rc *ReadConfig) (*Iterator, error)
}

// Writer writes single keys.
type Writer interface {
	Put(key, value []byte, wc *WriteConfig) error
	Delete(key []byte, wc *WriteConfig) error
}

// KVStore represents a key-value storage interface providing basic operations
// for data manipulation and iteration.
type KVStore interface {
	Reader
	Writer
	Batch(populate func(*WriteBatch) error, wc *WriteConfig) error
	ForEachWithPrefix(prefix []byte, visitor func(key, value []byte) bool) error
	Close() error
}

var (
	_ KVStore = (*Database)(nil)
	_ Reader  = (*Transaction)(nil)
)
