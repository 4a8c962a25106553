package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/strata/pkg/db/engine"
	"github.com/eigerco/strata/pkg/db/mocks"
)

func openMockDatabase(t *testing.T) (*Database, *mocks.MockDB) {
	t.Helper()
	edb := mocks.NewMockDB()
	e := mocks.NewMockEngine()
	e.On("OpenTransactional", "mock-db", mock.Anything).Return(edb, nil)

	d, err := OpenTransactional("mock-db", DefaultDatabaseConfig(), WithEngine(e))
	require.NoError(t, err)
	e.AssertExpectations(t)
	return d, edb
}

func TestEngineErrors(t *testing.T) {
	t.Run("open_failure", func(t *testing.T) {
		e := mocks.NewMockEngine()
		e.On("Open", "mock-db", mock.Anything).Return(nil, engine.NewStatus(engine.CodeIOError, "lock held"))

		_, err := Open("mock-db", DefaultDatabaseConfig(), WithEngine(e))
		assert.ErrorIs(t, err, ErrIOError)
		assert.Contains(t, err.Error(), "lock held")
	})

	t.Run("read_only_flag_is_passed", func(t *testing.T) {
		edb := mocks.NewMockDB()
		e := mocks.NewMockEngine()
		e.On("OpenReadOnly", "mock-db", mock.Anything, true).Return(edb, nil)

		d, err := OpenReadOnly("mock-db", DefaultDatabaseConfig(), true, WithEngine(e))
		require.NoError(t, err)
		e.AssertExpectations(t)

		edb.On("Close").Return(nil)
		require.NoError(t, d.Close())
	})

	t.Run("get_failure_surfaces", func(t *testing.T) {
		d, edb := openMockDatabase(t)
		edb.On("Get", mock.Anything, []byte("k")).Return(nil, engine.NewStatus(engine.CodeCorruption, "checksum"))
		edb.On("Close").Return(nil)

		value, found, err := d.Get([]byte("k"), nil)
		assert.ErrorIs(t, err, ErrCorruption)
		assert.False(t, found)
		assert.Nil(t, value)
		require.NoError(t, d.Close())
	})

	t.Run("read_options_translation", func(t *testing.T) {
		d, edb := openMockDatabase(t)
		want := engine.ReadOptions{VerifyChecksums: false, FillCache: true, PrefixSameAsStart: true}
		edb.On("Get", want, []byte("k")).Return(nil, engine.NewStatus(engine.CodeNotFound, ""))
		edb.On("Put", engine.WriteOptions{Sync: true}, []byte("k"), []byte("v")).Return(nil)
		edb.On("Close").Return(nil)

		_, found, err := d.Get([]byte("k"), &ReadConfig{FillCache: true, PrefixSameAsStart: true})
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, d.Put([]byte("k"), []byte("v"), &WriteConfig{Sync: true}))

		require.NoError(t, d.Close())
		edb.AssertExpectations(t)
	})

	t.Run("commit_try_again_is_conflict", func(t *testing.T) {
		d, edb := openMockDatabase(t)
		etx := mocks.NewMockTransaction()
		edb.On("BeginTransaction", engine.WriteOptions{}).Return(etx, nil)
		edb.On("Close").Return(nil)
		etx.On("Put", []byte("k"), []byte("v")).Return(nil)
		etx.On("Commit").Return(engine.NewStatus(engine.CodeTryAgain, "sequence number too old"))
		etx.On("Rollback").Return(nil)
		etx.On("Close").Return(nil)

		err := d.Transaction(func(tx *Transaction) error {
			return tx.Put([]byte("k"), []byte("v"))
		})
		assert.ErrorIs(t, err, ErrTransactionConflict)
		etx.AssertExpectations(t)
		etx.AssertNumberOfCalls(t, "Close", 1)

		require.NoError(t, d.Close())
	})

	t.Run("commit_failure_is_not_conflict", func(t *testing.T) {
		d, edb := openMockDatabase(t)
		etx := mocks.NewMockTransaction()
		edb.On("BeginTransaction", engine.WriteOptions{}).Return(etx, nil)
		edb.On("Close").Return(nil)
		etx.On("Commit").Return(engine.NewStatus(engine.CodeIOError, "disk full"))
		etx.On("Rollback").Return(nil)
		etx.On("Close").Return(nil)

		tx, err := d.BeginTransaction(nil)
		require.NoError(t, err)
		err = tx.Commit()
		assert.ErrorIs(t, err, ErrIOError)
		assert.NotErrorIs(t, err, ErrTransactionConflict)
		assert.Equal(t, TxRolledBack, tx.State())

		require.NoError(t, d.Close())
	})

	t.Run("iterator_status", func(t *testing.T) {
		d, edb := openMockDatabase(t)
		eit := mocks.NewMockIterator()
		edb.On("NewIterator", mock.Anything).Return(eit, nil)
		edb.On("Close").Return(nil)
		eit.On("SeekToFirst").Return()
		eit.On("Valid").Return(false)
		eit.On("Status").Return(engine.NewStatus(engine.CodeIOError, "read failed"))
		eit.On("Close").Return(nil)

		err := d.ForEach(func(_, _ []byte) bool {
			t.Fatal("visitor called")
			return false
		})
		assert.ErrorIs(t, err, ErrIOError)
		eit.AssertNumberOfCalls(t, "Close", 1)

		require.NoError(t, d.Close())
	})

	t.Run("iterator_copies_engine_buffers", func(t *testing.T) {
		d, edb := openMockDatabase(t)
		eit := mocks.NewMockIterator()
		buf := []byte("key")
		edb.On("NewIterator", mock.Anything).Return(eit, nil)
		edb.On("Close").Return(nil)
		eit.On("Valid").Return(true)
		eit.On("Key").Return(buf)
		eit.On("Close").Return(nil)

		it, err := d.NewIterator(nil)
		require.NoError(t, err)
		key := it.Key()
		buf[0] = 'X'
		assert.Equal(t, []byte("key"), key)

		// Database close releases the iterator before the engine.
		require.NoError(t, d.Close())
		eit.AssertNumberOfCalls(t, "Close", 1)
		require.NoError(t, it.Close())
		eit.AssertNumberOfCalls(t, "Close", 1)
	})

	t.Run("close_failure", func(t *testing.T) {
		d, edb := openMockDatabase(t)
		edb.On("Close").Return(engine.NewStatus(engine.CodeIOError, "sync failed")).Once()

		assert.ErrorIs(t, d.Close(), ErrIOError)
		// Released regardless
		assert.NoError(t, d.Close())
		assert.ErrorIs(t, d.Put([]byte("k"), nil, nil), ErrDatabaseClosed)
		edb.AssertNumberOfCalls(t, "Close", 1)
	})

	t.Run("property_is_fail_soft", func(t *testing.T) {
		d, edb := openMockDatabase(t)
		edb.On("Property", "rocksdb.stats").Return("", false)
		edb.On("Close").Return(nil)

		_, ok := d.Property("rocksdb.stats")
		assert.False(t, ok)
		require.NoError(t, d.Close())
	})
}
