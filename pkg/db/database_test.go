package db

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/strata/pkg/db/pebble"
)

func openTestDatabase(t *testing.T, cfg DatabaseConfig) *Database {
	t.Helper()
	d, err := OpenTransactional("db", cfg, WithEngine(pebble.NewInMemory()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDatabase(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, d *Database)
	}{
		{
			name: "basic_put_get",
			fn:   testBasicPutGet,
		},
		{
			name: "delete_operations",
			fn:   testDelete,
		},
		{
			name: "key_may_exist",
			fn:   testKeyMayExist,
		},
		{
			name: "batch",
			fn:   testBatch,
		},
		{
			name: "batch_populate_failure",
			fn:   testBatchPopulateFailure,
		},
		{
			name: "for_each",
			fn:   testForEach,
		},
		{
			name: "snapshot_reads",
			fn:   testSnapshotReads,
		},
		{
			name: "maintenance",
			fn:   testMaintenance,
		},
		{
			name: "store_closure",
			fn:   testStoreClosure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, openTestDatabase(t, DefaultDatabaseConfig()))
		})
	}
}

func testBasicPutGet(t *testing.T, d *Database) {
	for _, tc := range []struct{ key, value []byte }{
		{[]byte("test-key"), []byte("test-value")},
		{[]byte{0x00, 0xff}, []byte{}},
		{[]byte("big"), bytes.Repeat([]byte("x"), 1<<16)},
	} {
		require.NoError(t, d.Put(tc.key, tc.value, nil))

		value, found, err := d.Get(tc.key, nil)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, tc.value, value)
	}

	// Test non-existent key
	value, found, err := d.Get([]byte("non-existent"), nil)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func testDelete(t *testing.T, d *Database) {
	key := []byte("delete-test")
	require.NoError(t, d.Put(key, []byte("to-be-deleted"), &WriteConfig{Sync: true}))
	require.NoError(t, d.Delete(key, nil))

	_, found, err := d.Get(key, nil)
	require.NoError(t, err)
	assert.False(t, found)

	// Delete non-existent key should not error
	assert.NoError(t, d.Delete([]byte("non-existent"), nil))
}

func testKeyMayExist(t *testing.T, d *Database) {
	require.NoError(t, d.Put([]byte("present"), []byte("v"), nil))
	assert.True(t, d.KeyMayExist([]byte("present"), nil))
}

func testBatch(t *testing.T, d *Database) {
	require.NoError(t, d.Put([]byte("k3"), []byte("old"), nil))

	err := d.Batch(func(b *WriteBatch) error {
		require.NoError(t, b.Put([]byte("k1"), []byte("v1")))
		require.NoError(t, b.Put([]byte("k2"), []byte("v2")))
		require.NoError(t, b.Delete([]byte("k3")))
		assert.Equal(t, 3, b.Count())
		return nil
	}, nil)
	require.NoError(t, err)

	for k, want := range map[string]string{"k1": "v1", "k2": "v2"} {
		value, found, err := d.Get([]byte(k), nil)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, string(value))
	}
	_, found, err := d.Get([]byte("k3"), nil)
	require.NoError(t, err)
	assert.False(t, found)

	// Re-entrant use of the database from inside populate
	err = d.Batch(func(b *WriteBatch) error {
		value, _, err := d.Get([]byte("k1"), nil)
		if err != nil {
			return err
		}
		return b.Put([]byte("copy"), value)
	}, nil)
	require.NoError(t, err)
	value, _, err := d.Get([]byte("copy"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
}

func testBatchPopulateFailure(t *testing.T, d *Database) {
	require.NoError(t, d.Put([]byte("k3"), []byte("old"), nil))
	boom := errors.New("boom")

	var leaked *WriteBatch
	err := d.Batch(func(b *WriteBatch) error {
		leaked = b
		require.NoError(t, b.Put([]byte("k1"), []byte("v1")))
		require.NoError(t, b.Delete([]byte("k3")))
		return boom
	}, nil)
	assert.ErrorIs(t, err, boom)

	_, found, err := d.Get([]byte("k1"), nil)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = d.Get([]byte("k3"), nil)
	require.NoError(t, err)
	assert.True(t, found)

	// The batch was released.
	assert.ErrorIs(t, leaked.Put([]byte("k"), []byte("v")), ErrHandleClosed)

	assert.Panics(t, func() {
		_ = d.Batch(func(b *WriteBatch) error {
			_ = b.Put([]byte("panic"), []byte("v"))
			panic("populate")
		}, nil)
	})
	_, found, err = d.Get([]byte("panic"), nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func testForEach(t *testing.T, d *Database) {
	for _, k := range []string{"b/2", "a/1", "b/1", "c/1", "a/2"} {
		require.NoError(t, d.Put([]byte(k), []byte("v-"+k), nil))
	}

	var all []string
	err := d.ForEach(func(key, value []byte) bool {
		all = append(all, string(key))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2", "b/1", "b/2", "c/1"}, all)

	var prefixed []string
	err = d.ForEachWithPrefix([]byte("b/"), func(key, value []byte) bool {
		prefixed = append(prefixed, string(key)+"="+string(value))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b/1=v-b/1", "b/2=v-b/2"}, prefixed)

	var first []string
	err = d.ForEach(func(key, _ []byte) bool {
		first = append(first, string(key))
		return len(first) < 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2"}, first)

	var none int
	require.NoError(t, d.ForEachWithPrefix([]byte("z"), func(_, _ []byte) bool {
		none++
		return true
	}))
	assert.Zero(t, none)
}

func testSnapshotReads(t *testing.T, d *Database) {
	require.NoError(t, d.Put([]byte("k"), []byte("v1"), nil))

	snap, err := d.NewSnapshot()
	require.NoError(t, err)

	require.NoError(t, d.Put([]byte("k"), []byte("v2"), nil))
	require.NoError(t, d.Put([]byte("added"), []byte("v"), nil))

	rc := DefaultReadConfig()
	rc.Snapshot = snap
	value, found, err := d.Get([]byte("k"), &rc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), value)

	it, err := d.NewIterator(&rc)
	require.NoError(t, err)
	var keys []string
	for k := range it.All() {
		keys = append(keys, string(k))
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.Equal(t, []string{"k"}, keys)

	value, _, err = d.Get([]byte("k"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)

	require.NoError(t, snap.Close())
	require.NoError(t, snap.Close())
	_, _, err = d.Get([]byte("k"), &rc)
	assert.ErrorIs(t, err, ErrHandleClosed)
}

func testMaintenance(t *testing.T, d *Database) {
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, d.Put([]byte(k), []byte(k), nil))
	}
	require.NoError(t, d.Flush(true))
	require.NoError(t, d.Flush(false))
	require.NoError(t, d.CompactRange(nil, nil))
	require.NoError(t, d.CompactRange([]byte("a"), []byte("b")))

	stats, ok := d.Property("rocksdb.stats")
	assert.True(t, ok)
	assert.NotEmpty(t, stats)
	_, ok = d.Property("no-such-property")
	assert.False(t, ok)

	sizes, err := d.ApproximateSizes(Range{Start: []byte("a"), Limit: []byte("z")}, Range{Start: []byte("x"), Limit: []byte("y")})
	require.NoError(t, err)
	assert.Len(t, sizes, 2)

	assert.Equal(t, "db", d.Path())
	assert.True(t, d.IsTransactional())
	assert.Nil(t, d.Collector())
}

func testStoreClosure(t *testing.T, d *Database) {
	require.NoError(t, d.Close())
	// Double close should not error
	require.NoError(t, d.Close())

	// Test operations after close
	_, _, err := d.Get([]byte("key"), nil)
	assert.ErrorIs(t, err, ErrDatabaseClosed)
	assert.ErrorIs(t, d.Put([]byte("key"), []byte("v"), nil), ErrDatabaseClosed)
	assert.ErrorIs(t, d.Delete([]byte("key"), nil), ErrDatabaseClosed)
	assert.ErrorIs(t, d.Batch(func(*WriteBatch) error { return nil }, nil), ErrDatabaseClosed)
	assert.ErrorIs(t, d.Flush(true), ErrDatabaseClosed)
	assert.ErrorIs(t, d.CompactRange(nil, nil), ErrDatabaseClosed)
	assert.False(t, d.KeyMayExist([]byte("key"), nil))

	_, err = d.NewIterator(nil)
	assert.ErrorIs(t, err, ErrDatabaseClosed)
	_, err = d.BeginTransaction(nil)
	assert.ErrorIs(t, err, ErrDatabaseClosed)
	_, err = d.NewSnapshot()
	assert.ErrorIs(t, err, ErrDatabaseClosed)

	_, ok := d.Property("rocksdb.stats")
	assert.False(t, ok)
}

func TestCloseReleasesChildren(t *testing.T) {
	d := openTestDatabase(t, DefaultDatabaseConfig())
	require.NoError(t, d.Put([]byte("k"), []byte("v"), nil))

	it, err := d.NewIterator(nil)
	require.NoError(t, err)
	it.SeekToFirst()
	require.True(t, it.Valid())

	tx, err := d.BeginTransaction(nil)
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("pending"), []byte("v")))
	txIt, err := tx.NewIterator(nil)
	require.NoError(t, err)

	snap, err := d.NewSnapshot()
	require.NoError(t, err)

	assert.Equal(t, 4, d.owner.children.len())
	require.NoError(t, d.Close())
	assert.Zero(t, d.owner.children.len())

	assert.False(t, it.Valid())
	assert.Nil(t, it.Key())
	assert.ErrorIs(t, it.Err(), ErrHandleClosed)
	assert.False(t, txIt.Valid())
	assert.Equal(t, TxRolledBack, tx.State())
	assert.ErrorIs(t, tx.Commit(), ErrHandleClosed)
	assert.NoError(t, snap.Close())
	assert.NoError(t, it.Close())
}

func TestOpenModes(t *testing.T) {
	t.Run("open_failure", func(t *testing.T) {
		cfg := DefaultDatabaseConfig()
		cfg.CreateIfMissing = false
		_, err := Open("db", cfg, WithEngine(pebble.NewInMemory()))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Contains(t, err.Error(), "open db")
	})

	t.Run("unsupported_compression", func(t *testing.T) {
		cfg := DefaultDatabaseConfig()
		cfg.Compression = LZ4Compression
		_, err := Open("db", cfg, WithEngine(pebble.NewInMemory()))
		assert.ErrorIs(t, err, ErrNotSupported)
	})

	t.Run("not_transactional", func(t *testing.T) {
		d, err := Open("db", DefaultDatabaseConfig(), WithEngine(pebble.NewInMemory()))
		require.NoError(t, err)
		defer d.Close()

		assert.False(t, d.IsTransactional())
		_, err = d.BeginTransaction(nil)
		assert.ErrorIs(t, err, ErrNotSupported)
		err = d.Transaction(func(*Transaction) error { return nil })
		assert.ErrorIs(t, err, ErrNotSupported)
	})

	t.Run("read_only", func(t *testing.T) {
		dir := t.TempDir()
		d, err := Open(dir, DefaultDatabaseConfig())
		require.NoError(t, err)
		require.NoError(t, d.Put([]byte("k"), []byte("v"), nil))
		require.NoError(t, d.Close())

		ro, err := OpenReadOnly(dir, DefaultDatabaseConfig(), false)
		require.NoError(t, err)
		defer ro.Close()

		value, found, err := ro.Get([]byte("k"), nil)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("v"), value)

		assert.ErrorIs(t, ro.Put([]byte("k"), []byte("v2"), nil), ErrNotSupported)
	})

	t.Run("sync_without_wal", func(t *testing.T) {
		d := openTestDatabase(t, DefaultDatabaseConfig())
		err := d.Put([]byte("k"), []byte("v"), &WriteConfig{Sync: true, DisableWAL: true})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestStatistics(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	cfg.StatisticsEnabled = true
	d := openTestDatabase(t, cfg)

	require.NoError(t, d.Put([]byte("k"), []byte("v"), nil))
	_, _, err := d.Get([]byte("k"), nil)
	require.NoError(t, err)

	collector := d.Collector()
	require.NotNil(t, collector)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(collector))
	families, err := reg.Gather()
	require.NoError(t, err)

	var ops float64
	for _, f := range families {
		if f.GetName() != "strata_operations_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			ops += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, ops)
}
