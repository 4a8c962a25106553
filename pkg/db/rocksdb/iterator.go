package rocksdb

import (
	"runtime"
)

// Iterator wraps a native rocksdb_iterator_t. Key and Value return views of
// native memory that stay valid until the iterator moves or is closed.
type Iterator struct {
	it uintptr
}

func newIterator(it uintptr) *Iterator {
	return &Iterator{it: it}
}

func (i *Iterator) Valid() bool {
	return iterValid(i.it) != 0
}

func (i *Iterator) SeekToFirst() {
	iterSeekToFirst(i.it)
}

func (i *Iterator) SeekToLast() {
	iterSeekToLast(i.it)
}

func (i *Iterator) Seek(target []byte) {
	iterSeek(i.it, bytesPtr(target), uintptr(len(target)))
	runtime.KeepAlive(target)
}

func (i *Iterator) SeekForPrev(target []byte) {
	iterSeekForPrev(i.it, bytesPtr(target), uintptr(len(target)))
	runtime.KeepAlive(target)
}

func (i *Iterator) Next() {
	iterNext(i.it)
}

func (i *Iterator) Prev() {
	iterPrev(i.it)
}

func (i *Iterator) Key() []byte {
	var n uintptr
	return cView(iterKey(i.it, &n), n)
}

func (i *Iterator) Value() []byte {
	var n uintptr
	return cView(iterValue(i.it, &n), n)
}

func (i *Iterator) Status() error {
	var errptr uintptr
	iterGetError(i.it, &errptr)
	return statusFromErr(errptr)
}

func (i *Iterator) Close() error {
	if i.it != 0 {
		iterDestroy(i.it)
		i.it = 0
	}
	return nil
}
