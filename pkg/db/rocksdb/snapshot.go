package rocksdb

// Snapshot is a native snapshot of the database it was taken from.
type Snapshot struct {
	db   uintptr
	snap uintptr
}

func (s *Snapshot) Release() {
	if s.snap == 0 {
		return
	}
	rocksdbReleaseSnapshot(s.db, s.snap)
	s.snap = 0
}
