package db

import (
	"github.com/eigerco/strata/internal/metrics"
	"github.com/eigerco/strata/pkg/db/engine"
)

// Snapshot is a point-in-time view of a database. Pass it in ReadConfig to
// read as of the moment it was taken. A snapshot must be closed; closing the
// database closes it too.
type Snapshot struct {
	h         *handle[engine.Snapshot]
	onRelease func()
}

// Close releases the snapshot. It is safe to call more than once.
func (s *Snapshot) Close() error {
	return s.h.release(func(snap engine.Snapshot) error {
		snap.Release()
		s.onRelease()
		return nil
	})
}

// NewSnapshot captures the current state of the database.
func (d *Database) NewSnapshot() (*Snapshot, error) {
	s := &Snapshot{}
	err := d.h.with(func(edb engine.DB) error {
		snap, err := edb.NewSnapshot()
		if err != nil {
			return fromEngine(err)
		}
		s.h = newHandle(snap, ErrHandleClosed)
		o := d.owner
		s.onRelease = func() { o.forget(s, metrics.HandleSnapshot) }
		o.adopt(s, metrics.HandleSnapshot, s.Close)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
