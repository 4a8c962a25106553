package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/strata/pkg/db/engine"
)

func TestIterator(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, db *DB)
	}{
		{
			name: "full_range_iteration",
			fn:   testFullRangeIteration,
		},
		{
			name: "seek_operations",
			fn:   testSeekOperations,
		},
		{
			name: "iterator_validity",
			fn:   testIteratorValidity,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := openTestDB(t, false)
			defer db.Close() //nolint:errcheck

			tc.fn(t, db)
		})
	}
}

func putAll(t *testing.T, db *DB, kv ...string) {
	t.Helper()
	for i := 0; i < len(kv); i += 2 {
		require.NoError(t, db.Put(engine.WriteOptions{}, []byte(kv[i]), []byte(kv[i+1])))
	}
}

func testFullRangeIteration(t *testing.T, db *DB) {
	// Inserted out of order
	putAll(t, db, "b", "value-b", "a", "value-a", "c", "value-c")

	iter, err := db.NewIterator(engine.ReadOptions{})
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	var keys, values []string
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
		values = append(values, string(iter.Value()))
	}
	require.NoError(t, iter.Status())
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, []string{"value-a", "value-b", "value-c"}, values)

	keys = keys[:0]
	for iter.SeekToLast(); iter.Valid(); iter.Prev() {
		keys = append(keys, string(iter.Key()))
	}
	assert.Equal(t, []string{"c", "b", "a"}, keys)
}

func testSeekOperations(t *testing.T, db *DB) {
	putAll(t, db, "a", "1", "c", "3", "e", "5")

	iter, err := db.NewIterator(engine.ReadOptions{})
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	tests := []struct {
		name   string
		seek   func(target []byte)
		target string
		want   string
	}{
		{"seek_between", iter.Seek, "b", "c"},
		{"seek_exact", iter.Seek, "c", "c"},
		{"seek_later", iter.Seek, "d", "e"},
		{"seek_past_end", iter.Seek, "f", ""},
		{"seek_for_prev_between", iter.SeekForPrev, "b", "a"},
		{"seek_for_prev_exact", iter.SeekForPrev, "c", "c"},
		{"seek_for_prev_later", iter.SeekForPrev, "d", "c"},
		{"seek_for_prev_before_start", iter.SeekForPrev, "0", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.seek([]byte(tc.target))
			if tc.want == "" {
				assert.False(t, iter.Valid())
				return
			}
			require.True(t, iter.Valid())
			assert.Equal(t, tc.want, string(iter.Key()))
		})
	}
}

func testIteratorValidity(t *testing.T, db *DB) {
	iter, err := db.NewIterator(engine.ReadOptions{})
	require.NoError(t, err)

	// Empty database
	iter.SeekToFirst()
	assert.False(t, iter.Valid())
	assert.NoError(t, iter.Status())
	require.NoError(t, iter.Close())

	putAll(t, db, "key", "value")

	// An iterator sees the state at creation only.
	iter, err = db.NewIterator(engine.ReadOptions{})
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck
	putAll(t, db, "later", "value")

	var keys []string
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	assert.Equal(t, []string{"key"}, keys)
}

func TestSuccessor(t *testing.T) {
	key := []byte("abc")
	next := successor(key)

	assert.Equal(t, []byte("abc\x00"), next)
	assert.Equal(t, []byte("abc"), key)
}
