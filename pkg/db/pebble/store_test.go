package pebble

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/strata/pkg/db/engine"
)

func testOptions() engine.Options {
	return engine.Options{CreateIfMissing: true, Compression: engine.SnappyCompression}
}

func openTestDB(t *testing.T, transactional bool) *DB {
	t.Helper()
	e := NewInMemory()
	var (
		d   engine.DB
		err error
	)
	if transactional {
		d, err = e.OpenTransactional("db", testOptions())
	} else {
		d, err = e.Open("db", testOptions())
	}
	require.NoError(t, err)
	return d.(*DB)
}

func TestStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, db *DB)
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
			name: "snapshot_isolation",
			fn:   testSnapshotIsolation,
		},
		{
			name: "properties",
			fn:   testProperties,
		},
		{
			name: "compact_and_flush",
			fn:   testCompactAndFlush,
		},
		{
			name: "not_transactional",
			fn:   testNotTransactional,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := openTestDB(t, false)
			defer db.Close()

			tc.fn(t, db)
		})
	}
}

func testBasicPutGet(t *testing.T, db *DB) {
	key := []byte("test-key")
	value := []byte("test-value")

	err := db.Put(engine.WriteOptions{}, key, value)
	require.NoError(t, err)

	retrieved, err := db.Get(engine.ReadOptions{}, key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)
	assert.True(t, db.KeyMayExist(engine.ReadOptions{}, key))

	// Test non-existent key
	_, err = db.Get(engine.ReadOptions{}, []byte("non-existent"))
	assert.True(t, engine.IsNotFound(err))
	assert.False(t, db.KeyMayExist(engine.ReadOptions{}, []byte("non-existent")))
}

func testDelete(t *testing.T, db *DB) {
	key := []byte("delete-test")
	value := []byte("to-be-deleted")

	err := db.Put(engine.WriteOptions{}, key, value)
	require.NoError(t, err)

	err = db.Delete(engine.WriteOptions{Sync: true}, key)
	require.NoError(t, err)

	_, err = db.Get(engine.ReadOptions{}, key)
	assert.True(t, engine.IsNotFound(err))

	// Delete non-existent key should not error
	err = db.Delete(engine.WriteOptions{}, []byte("non-existent"))
	assert.NoError(t, err)
}

func testSnapshotIsolation(t *testing.T, db *DB) {
	require.NoError(t, db.Put(engine.WriteOptions{}, []byte("k"), []byte("v1")))

	snap, err := db.NewSnapshot()
	require.NoError(t, err)
	defer snap.Release()

	require.NoError(t, db.Put(engine.WriteOptions{}, []byte("k"), []byte("v2")))
	require.NoError(t, db.Put(engine.WriteOptions{}, []byte("new"), []byte("x")))

	value, err := db.Get(engine.ReadOptions{Snapshot: snap}, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	iter, err := db.NewIterator(engine.ReadOptions{Snapshot: snap})
	require.NoError(t, err)

	var keys []string
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	assert.Equal(t, []string{"k"}, keys)
	require.NoError(t, iter.Close())

	snap.Release()
	snap.Release()
	_, err = db.Get(engine.ReadOptions{Snapshot: snap}, []byte("k"))
	assert.Equal(t, engine.CodeInvalidArgument, engine.CodeOf(err))
}

func testProperties(t *testing.T, db *DB) {
	require.NoError(t, db.Put(engine.WriteOptions{}, []byte("k"), []byte("v")))

	stats, ok := db.Property("rocksdb.stats")
	assert.True(t, ok)
	assert.NotEmpty(t, stats)

	files, ok := db.Property("rocksdb.num-files-at-level0")
	assert.True(t, ok)
	assert.Equal(t, "0", files)

	_, ok = db.Property("rocksdb.num-files-at-level99")
	assert.False(t, ok)

	_, ok = db.Property("rocksdb.no-such-property")
	assert.False(t, ok)
}

func testCompactAndFlush(t *testing.T, db *DB) {
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, db.Put(engine.WriteOptions{}, []byte(k), []byte(k)))
	}
	require.NoError(t, db.Flush(true))

	size, ok := db.Property("rocksdb.total-sst-files-size")
	require.True(t, ok)
	n, err := strconv.ParseInt(size, 10, 64)
	require.NoError(t, err)
	assert.Positive(t, n)

	require.NoError(t, db.CompactRange(nil, nil))
	require.NoError(t, db.CompactRange([]byte("a"), []byte("b")))

	sizes, err := db.ApproximateSizes([]engine.Range{{Start: []byte("a"), Limit: []byte("z")}})
	require.NoError(t, err)
	assert.Len(t, sizes, 1)

	value, err := db.Get(engine.ReadOptions{}, []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), value)
}

func testNotTransactional(t *testing.T, db *DB) {
	assert.False(t, db.IsTransactional())

	_, err := db.BeginTransaction(engine.WriteOptions{})
	assert.Equal(t, engine.CodeNotSupported, engine.CodeOf(err))
}

func TestOpen(t *testing.T) {
	t.Run("missing_database", func(t *testing.T) {
		_, err := NewInMemory().Open("db", engine.Options{})
		require.Error(t, err)
		assert.Equal(t, engine.CodeInvalidArgument, engine.CodeOf(err))
	})

	t.Run("error_if_exists", func(t *testing.T) {
		e := NewInMemory()
		d, err := e.Open("db", testOptions())
		require.NoError(t, err)
		require.NoError(t, d.Close())

		opts := testOptions()
		opts.ErrorIfExists = true
		_, err = e.Open("db", opts)
		assert.Equal(t, engine.CodeInvalidArgument, engine.CodeOf(err))
	})

	t.Run("empty_path", func(t *testing.T) {
		_, err := NewInMemory().Open("", testOptions())
		assert.Equal(t, engine.CodeInvalidArgument, engine.CodeOf(err))
	})

	t.Run("unsupported_compression", func(t *testing.T) {
		opts := testOptions()
		opts.Compression = engine.LZ4Compression
		_, err := NewInMemory().Open("db", opts)
		assert.Equal(t, engine.CodeNotSupported, engine.CodeOf(err))
	})

	t.Run("reopen_keeps_data", func(t *testing.T) {
		e := NewInMemory()
		d, err := e.Open("db", testOptions())
		require.NoError(t, err)
		require.NoError(t, d.Put(engine.WriteOptions{}, []byte("k"), []byte("v")))
		require.NoError(t, d.Close())

		opts := testOptions()
		opts.ParanoidChecks = true
		d, err = e.Open("db", opts)
		require.NoError(t, err)
		defer d.Close()

		value, err := d.Get(engine.ReadOptions{}, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), value)
	})

	t.Run("read_only", func(t *testing.T) {
		dir := t.TempDir()
		e := New()
		d, err := e.Open(dir, testOptions())
		require.NoError(t, err)
		require.NoError(t, d.Put(engine.WriteOptions{}, []byte("k"), []byte("v")))
		require.NoError(t, d.Flush(true))
		require.NoError(t, d.Close())

		ro, err := e.OpenReadOnly(dir, testOptions(), false)
		require.NoError(t, err)
		defer ro.Close()

		value, err := ro.Get(engine.ReadOptions{}, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), value)

		err = ro.Put(engine.WriteOptions{}, []byte("k"), []byte("v2"))
		assert.Equal(t, engine.CodeNotSupported, engine.CodeOf(err))
	})

	t.Run("read_only_missing", func(t *testing.T) {
		_, err := New().OpenReadOnly(t.TempDir()+"/missing", testOptions(), false)
		assert.Error(t, err)
	})
}
