package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBatch(t *testing.T) {
	t.Run("counts_and_size", func(t *testing.T) {
		b := NewWriteBatch()
		defer b.Close()

		assert.True(t, b.IsEmpty())
		assert.Equal(t, 12, b.DataSize())

		require.NoError(t, b.Put([]byte("key"), []byte("value")))
		require.NoError(t, b.Delete([]byte("key")))
		require.NoError(t, b.DeleteRange([]byte("a"), []byte("b")))
		assert.Equal(t, 3, b.Count())
		assert.False(t, b.IsEmpty())
		assert.Equal(t, 12+11+5+5, b.DataSize())

		require.NoError(t, b.Clear())
		assert.True(t, b.IsEmpty())
		assert.Equal(t, 12, b.DataSize())
	})

	t.Run("closed_batch", func(t *testing.T) {
		b := NewWriteBatch()
		require.NoError(t, b.Put([]byte("k"), []byte("v")))
		require.NoError(t, b.Close())
		// Double close should not error
		require.NoError(t, b.Close())

		assert.ErrorIs(t, b.Put([]byte("k"), []byte("v")), ErrHandleClosed)
		assert.ErrorIs(t, b.Delete([]byte("k")), ErrHandleClosed)
		assert.ErrorIs(t, b.DeleteRange([]byte("a"), []byte("b")), ErrHandleClosed)
		assert.ErrorIs(t, b.Clear(), ErrHandleClosed)
		assert.Zero(t, b.Count())
		assert.Zero(t, b.DataSize())
	})

	t.Run("write_to_databases", func(t *testing.T) {
		d1 := openTestDatabase(t, DefaultDatabaseConfig())
		d2 := openTestDatabase(t, DefaultDatabaseConfig())
		for _, d := range []*Database{d1, d2} {
			for _, k := range []string{"a", "b", "c", "d"} {
				require.NoError(t, d.Put([]byte(k), []byte("old"), nil))
			}
		}

		b := NewWriteBatch()
		defer b.Close()
		require.NoError(t, b.Put([]byte("a"), []byte("first")))
		require.NoError(t, b.Put([]byte("a"), []byte("second")))
		require.NoError(t, b.DeleteRange([]byte("b"), []byte("d")))

		for _, d := range []*Database{d1, d2} {
			require.NoError(t, d.Write(b, nil))

			value, _, err := d.Get([]byte("a"), nil)
			require.NoError(t, err)
			assert.Equal(t, []byte("second"), value)

			var keys []string
			require.NoError(t, d.ForEach(func(k, _ []byte) bool {
				keys = append(keys, string(k))
				return true
			}))
			assert.Equal(t, []string{"a", "d"}, keys)
		}

		require.NoError(t, b.Close())
		assert.ErrorIs(t, d1.Write(b, nil), ErrHandleClosed)
	})
}
