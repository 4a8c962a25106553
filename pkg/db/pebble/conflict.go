package pebble

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/pebble"
)

// pruneThreshold bounds the number of per-key versions kept while
// transactions are active.
const pruneThreshold = 1 << 14

type rangeWrite struct {
	start, end []byte
	version    uint64
}

// commitTracker serializes every write to a transactional database and
// remembers, per key, the version of the last commit that wrote it. A
// transaction conflicts when a key it tracked carries a version newer than the
// one observed when the transaction began.
type commitTracker struct {
	mu      sync.Mutex
	version uint64
	keys    map[string]uint64
	ranges  []rangeWrite
	// begin version -> number of live transactions that began at it
	active map[uint64]int
}

func newCommitTracker() *commitTracker {
	return &commitTracker{
		keys:   make(map[string]uint64),
		active: make(map[uint64]int),
	}
}

// begin takes a snapshot and registers a transaction at the current version.
// Both happen under the commit lock so no write can fall between them.
func (c *commitTracker) begin(db *pebble.DB) (*pebble.Snapshot, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := db.NewSnapshot()
	c.active[c.version]++
	return snap, c.version
}

// end unregisters a transaction that began at version.
func (c *commitTracker) end(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.release(version)
}

func (c *commitTracker) release(version uint64) {
	if n := c.active[version]; n > 1 {
		c.active[version] = n - 1
	} else {
		delete(c.active, version)
	}
	c.prune()
}

// write applies a non-transactional write and records the keys it touched.
func (c *commitTracker) write(keys [][]byte, ranges []rangeWrite, apply func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := apply(); err != nil {
		return err
	}
	c.record(keys, ranges)
	return nil
}

// commit validates the tracked keys of a transaction that began at version
// and, when none of them changed since, applies its writes. The transaction
// is unregistered whether or not the commit succeeds.
func (c *commitTracker) commit(version uint64, tracked map[string]struct{}, keys [][]byte, apply func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.release(version)

	for k := range tracked {
		if c.modifiedSince([]byte(k), version) {
			return errWriteConflict
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := apply(); err != nil {
		return err
	}
	c.record(keys, nil)
	return nil
}

func (c *commitTracker) modifiedSince(key []byte, version uint64) bool {
	if v, ok := c.keys[string(key)]; ok && v > version {
		return true
	}
	for _, r := range c.ranges {
		if r.version > version && bytes.Compare(key, r.start) >= 0 && bytes.Compare(key, r.end) < 0 {
			return true
		}
	}
	return false
}

func (c *commitTracker) record(keys [][]byte, ranges []rangeWrite) {
	if len(c.active) == 0 {
		// nothing can conflict with a write no live transaction could have seen
		c.version++
		return
	}
	c.version++
	for _, k := range keys {
		c.keys[string(k)] = c.version
	}
	for _, r := range ranges {
		r.version = c.version
		c.ranges = append(c.ranges, r)
	}
}

// prune drops versions no live transaction can conflict with.
func (c *commitTracker) prune() {
	if len(c.active) == 0 {
		if len(c.keys) > 0 || len(c.ranges) > 0 {
			c.keys = make(map[string]uint64)
			c.ranges = nil
		}
		return
	}
	if len(c.keys)+len(c.ranges) < pruneThreshold {
		return
	}
	oldest := c.version
	for v := range c.active {
		oldest = min(oldest, v)
	}
	for k, v := range c.keys {
		if v <= oldest {
			delete(c.keys, k)
		}
	}
	kept := c.ranges[:0]
	for _, r := range c.ranges {
		if r.version > oldest {
			kept = append(kept, r)
		}
	}
	c.ranges = kept
}
