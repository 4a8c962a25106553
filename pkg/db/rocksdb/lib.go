package rocksdb

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// LibraryEnv names the environment variable that overrides the path of the
// librocksdb shared library.
const LibraryEnv = "STRATA_ROCKSDB_LIB"

// C handles are opaque pointers and are kept as uintptr. Byte buffers are
// passed as unsafe.Pointer so the garbage collector keeps them alive for the
// duration of the call; out parameters are Go pointers to uintptr.
var (
	rocksdbFree func(ptr uintptr)

	optionsCreate                         func() uintptr
	optionsDestroy                        func(opts uintptr)
	optionsSetCreateIfMissing             func(opts uintptr, v uint8)
	optionsSetErrorIfExists               func(opts uintptr, v uint8)
	optionsSetParanoidChecks              func(opts uintptr, v uint8)
	optionsSetCompression                 func(opts uintptr, v int32)
	optionsSetWriteBufferSize             func(opts uintptr, v uintptr)
	optionsSetMaxWriteBufferNumber        func(opts uintptr, v int32)
	optionsSetMaxOpenFiles                func(opts uintptr, v int32)
	optionsSetMaxBackgroundCompactions    func(opts uintptr, v int32)
	optionsSetMaxBackgroundFlushes        func(opts uintptr, v int32)
	optionsSetLevel0FileNumCompaction     func(opts uintptr, v int32)
	optionsSetLevel0SlowdownWritesTrigger func(opts uintptr, v int32)
	optionsSetLevel0StopWritesTrigger     func(opts uintptr, v int32)
	optionsSetTargetFileSizeBase          func(opts uintptr, v uint64)
	optionsSetMaxBytesForLevelBase        func(opts uintptr, v uint64)
	optionsEnableStatistics               func(opts uintptr)
	optionsOptimizeForPointLookup         func(opts uintptr, cacheMB uint64)
	optionsOptimizeLevelStyleCompaction   func(opts uintptr, budget uint64)

	readOptionsCreate               func() uintptr
	readOptionsDestroy              func(ro uintptr)
	readOptionsSetVerifyChecksums   func(ro uintptr, v uint8)
	readOptionsSetFillCache         func(ro uintptr, v uint8)
	readOptionsSetPrefixSameAsStart func(ro uintptr, v uint8)
	readOptionsSetSnapshot          func(ro uintptr, snap uintptr)

	writeOptionsCreate     func() uintptr
	writeOptionsDestroy    func(wo uintptr)
	writeOptionsSetSync    func(wo uintptr, v uint8)
	writeOptionsDisableWAL func(wo uintptr, v int32)

	flushOptionsCreate  func() uintptr
	flushOptionsDestroy func(fo uintptr)
	flushOptionsSetWait func(fo uintptr, v uint8)

	rocksdbOpen              func(opts uintptr, name string, errptr *uintptr) uintptr
	rocksdbOpenForReadOnly   func(opts uintptr, name string, errorIfWALExists uint8, errptr *uintptr) uintptr
	rocksdbClose             func(db uintptr)
	optimisticTxnDBOpen      func(opts uintptr, name string, errptr *uintptr) uintptr
	optimisticTxnDBGetBaseDB func(txnDB uintptr) uintptr
	optimisticTxnDBCloseBase func(db uintptr)
	optimisticTxnDBClose     func(txnDB uintptr)
	rocksdbPut               func(db, wo uintptr, key unsafe.Pointer, klen uintptr, val unsafe.Pointer, vlen uintptr, errptr *uintptr)
	rocksdbGet               func(db, ro uintptr, key unsafe.Pointer, klen uintptr, vlen *uintptr, errptr *uintptr) uintptr
	rocksdbDelete            func(db, wo uintptr, key unsafe.Pointer, klen uintptr, errptr *uintptr)
	rocksdbKeyMayExist       func(db, ro uintptr, key unsafe.Pointer, klen uintptr, value *uintptr, vlen *uintptr, ts unsafe.Pointer, tslen uintptr, valueFound *uint8) uint8
	rocksdbWrite             func(db, wo, batch uintptr, errptr *uintptr)
	rocksdbCreateSnapshot    func(db uintptr) uintptr
	rocksdbReleaseSnapshot   func(db, snap uintptr)
	rocksdbCompactRange      func(db uintptr, start unsafe.Pointer, slen uintptr, limit unsafe.Pointer, llen uintptr)
	rocksdbFlush             func(db, fo uintptr, errptr *uintptr)
	rocksdbPropertyValue     func(db uintptr, name string) uintptr
	rocksdbApproximateSizes  func(db uintptr, n int32, starts unsafe.Pointer, startLens unsafe.Pointer, limits unsafe.Pointer, limitLens unsafe.Pointer, sizes unsafe.Pointer, errptr *uintptr)
	rocksdbCreateIterator    func(db, ro uintptr) uintptr

	writeBatchCreate      func() uintptr
	writeBatchDestroy     func(b uintptr)
	writeBatchClear       func(b uintptr)
	writeBatchCount       func(b uintptr) int32
	writeBatchPut         func(b uintptr, key unsafe.Pointer, klen uintptr, val unsafe.Pointer, vlen uintptr)
	writeBatchDelete      func(b uintptr, key unsafe.Pointer, klen uintptr)
	writeBatchDeleteRange func(b uintptr, start unsafe.Pointer, slen uintptr, end unsafe.Pointer, elen uintptr)
	writeBatchData        func(b uintptr, size *uintptr) uintptr

	iterDestroy     func(it uintptr)
	iterValid       func(it uintptr) uint8
	iterSeekToFirst func(it uintptr)
	iterSeekToLast  func(it uintptr)
	iterSeek        func(it uintptr, key unsafe.Pointer, klen uintptr)
	iterSeekForPrev func(it uintptr, key unsafe.Pointer, klen uintptr)
	iterNext        func(it uintptr)
	iterPrev        func(it uintptr)
	iterKey         func(it uintptr, klen *uintptr) uintptr
	iterValue       func(it uintptr, vlen *uintptr) uintptr
	iterGetError    func(it uintptr, errptr *uintptr)

	optimisticTxnOptionsCreate      func() uintptr
	optimisticTxnOptionsDestroy     func(opts uintptr)
	optimisticTxnOptionsSetSnapshot func(opts uintptr, v uint8)
	optimisticTxnBegin              func(txnDB, wo, opts, old uintptr) uintptr
	txnDestroy                      func(txn uintptr)
	txnPut                          func(txn uintptr, key unsafe.Pointer, klen uintptr, val unsafe.Pointer, vlen uintptr, errptr *uintptr)
	txnGet                          func(txn, ro uintptr, key unsafe.Pointer, klen uintptr, vlen *uintptr, errptr *uintptr) uintptr
	txnGetForUpdate                 func(txn, ro uintptr, key unsafe.Pointer, klen uintptr, vlen *uintptr, exclusive uint8, errptr *uintptr) uintptr
	txnDelete                       func(txn uintptr, key unsafe.Pointer, klen uintptr, errptr *uintptr)
	txnCreateIterator               func(txn, ro uintptr) uintptr
	txnCommit                       func(txn uintptr, errptr *uintptr)
	txnRollback                     func(txn uintptr, errptr *uintptr)
	txnSetSavepoint                 func(txn uintptr)
	txnRollbackToSavepoint          func(txn uintptr, errptr *uintptr)
)

var bindings = []struct {
	fn   any
	name string
}{
	{&rocksdbFree, "rocksdb_free"},

	{&optionsCreate, "rocksdb_options_create"},
	{&optionsDestroy, "rocksdb_options_destroy"},
	{&optionsSetCreateIfMissing, "rocksdb_options_set_create_if_missing"},
	{&optionsSetErrorIfExists, "rocksdb_options_set_error_if_exists"},
	{&optionsSetParanoidChecks, "rocksdb_options_set_paranoid_checks"},
	{&optionsSetCompression, "rocksdb_options_set_compression"},
	{&optionsSetWriteBufferSize, "rocksdb_options_set_write_buffer_size"},
	{&optionsSetMaxWriteBufferNumber, "rocksdb_options_set_max_write_buffer_number"},
	{&optionsSetMaxOpenFiles, "rocksdb_options_set_max_open_files"},
	{&optionsSetMaxBackgroundCompactions, "rocksdb_options_set_max_background_compactions"},
	{&optionsSetMaxBackgroundFlushes, "rocksdb_options_set_max_background_flushes"},
	{&optionsSetLevel0FileNumCompaction, "rocksdb_options_set_level0_file_num_compaction_trigger"},
	{&optionsSetLevel0SlowdownWritesTrigger, "rocksdb_options_set_level0_slowdown_writes_trigger"},
	{&optionsSetLevel0StopWritesTrigger, "rocksdb_options_set_level0_stop_writes_trigger"},
	{&optionsSetTargetFileSizeBase, "rocksdb_options_set_target_file_size_base"},
	{&optionsSetMaxBytesForLevelBase, "rocksdb_options_set_max_bytes_for_level_base"},
	{&optionsEnableStatistics, "rocksdb_options_enable_statistics"},
	{&optionsOptimizeForPointLookup, "rocksdb_options_optimize_for_point_lookup"},
	{&optionsOptimizeLevelStyleCompaction, "rocksdb_options_optimize_level_style_compaction"},

	{&readOptionsCreate, "rocksdb_readoptions_create"},
	{&readOptionsDestroy, "rocksdb_readoptions_destroy"},
	{&readOptionsSetVerifyChecksums, "rocksdb_readoptions_set_verify_checksums"},
	{&readOptionsSetFillCache, "rocksdb_readoptions_set_fill_cache"},
	{&readOptionsSetPrefixSameAsStart, "rocksdb_readoptions_set_prefix_same_as_start"},
	{&readOptionsSetSnapshot, "rocksdb_readoptions_set_snapshot"},

	{&writeOptionsCreate, "rocksdb_writeoptions_create"},
	{&writeOptionsDestroy, "rocksdb_writeoptions_destroy"},
	{&writeOptionsSetSync, "rocksdb_writeoptions_set_sync"},
	{&writeOptionsDisableWAL, "rocksdb_writeoptions_disable_WAL"},

	{&flushOptionsCreate, "rocksdb_flushoptions_create"},
	{&flushOptionsDestroy, "rocksdb_flushoptions_destroy"},
	{&flushOptionsSetWait, "rocksdb_flushoptions_set_wait"},

	{&rocksdbOpen, "rocksdb_open"},
	{&rocksdbOpenForReadOnly, "rocksdb_open_for_read_only"},
	{&rocksdbClose, "rocksdb_close"},
	{&optimisticTxnDBOpen, "rocksdb_optimistictransactiondb_open"},
	{&optimisticTxnDBGetBaseDB, "rocksdb_optimistictransactiondb_get_base_db"},
	{&optimisticTxnDBCloseBase, "rocksdb_optimistictransactiondb_close_base_db"},
	{&optimisticTxnDBClose, "rocksdb_optimistictransactiondb_close"},
	{&rocksdbPut, "rocksdb_put"},
	{&rocksdbGet, "rocksdb_get"},
	{&rocksdbDelete, "rocksdb_delete"},
	{&rocksdbKeyMayExist, "rocksdb_key_may_exist"},
	{&rocksdbWrite, "rocksdb_write"},
	{&rocksdbCreateSnapshot, "rocksdb_create_snapshot"},
	{&rocksdbReleaseSnapshot, "rocksdb_release_snapshot"},
	{&rocksdbCompactRange, "rocksdb_compact_range"},
	{&rocksdbFlush, "rocksdb_flush"},
	{&rocksdbPropertyValue, "rocksdb_property_value"},
	{&rocksdbApproximateSizes, "rocksdb_approximate_sizes"},
	{&rocksdbCreateIterator, "rocksdb_create_iterator"},

	{&writeBatchCreate, "rocksdb_writebatch_create"},
	{&writeBatchDestroy, "rocksdb_writebatch_destroy"},
	{&writeBatchClear, "rocksdb_writebatch_clear"},
	{&writeBatchCount, "rocksdb_writebatch_count"},
	{&writeBatchPut, "rocksdb_writebatch_put"},
	{&writeBatchDelete, "rocksdb_writebatch_delete"},
	{&writeBatchDeleteRange, "rocksdb_writebatch_delete_range"},
	{&writeBatchData, "rocksdb_writebatch_data"},

	{&iterDestroy, "rocksdb_iter_destroy"},
	{&iterValid, "rocksdb_iter_valid"},
	{&iterSeekToFirst, "rocksdb_iter_seek_to_first"},
	{&iterSeekToLast, "rocksdb_iter_seek_to_last"},
	{&iterSeek, "rocksdb_iter_seek"},
	{&iterSeekForPrev, "rocksdb_iter_seek_for_prev"},
	{&iterNext, "rocksdb_iter_next"},
	{&iterPrev, "rocksdb_iter_prev"},
	{&iterKey, "rocksdb_iter_key"},
	{&iterValue, "rocksdb_iter_value"},
	{&iterGetError, "rocksdb_iter_get_error"},

	{&optimisticTxnOptionsCreate, "rocksdb_optimistictransaction_options_create"},
	{&optimisticTxnOptionsDestroy, "rocksdb_optimistictransaction_options_destroy"},
	{&optimisticTxnOptionsSetSnapshot, "rocksdb_optimistictransaction_options_set_set_snapshot"},
	{&optimisticTxnBegin, "rocksdb_optimistictransaction_begin"},
	{&txnDestroy, "rocksdb_transaction_destroy"},
	{&txnPut, "rocksdb_transaction_put"},
	{&txnGet, "rocksdb_transaction_get"},
	{&txnGetForUpdate, "rocksdb_transaction_get_for_update"},
	{&txnDelete, "rocksdb_transaction_delete"},
	{&txnCreateIterator, "rocksdb_transaction_create_iterator"},
	{&txnCommit, "rocksdb_transaction_commit"},
	{&txnRollback, "rocksdb_transaction_rollback"},
	{&txnSetSavepoint, "rocksdb_transaction_set_savepoint"},
	{&txnRollbackToSavepoint, "rocksdb_transaction_rollback_to_savepoint"},
}

var (
	loadOnce sync.Once
	loadErr  error
)

// Load loads librocksdb and binds its C API. It is safe to call more than
// once; only the first call does any work.
func Load() error {
	loadOnce.Do(func() {
		loadErr = load(libraryPath())
	})
	return loadErr
}

func libraryPath() string {
	if p := os.Getenv(LibraryEnv); p != "" {
		return p
	}
	if runtime.GOOS == "darwin" {
		return "librocksdb.dylib"
	}
	return "librocksdb.so"
}

func load(path string) error {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	for _, b := range bindings {
		// RegisterLibFunc panics on a missing symbol
		if _, err := purego.Dlsym(lib, b.name); err != nil {
			return fmt.Errorf("load %s: %s: %w", path, b.name, err)
		}
		purego.RegisterLibFunc(b.fn, lib, b.name)
	}
	return nil
}

// zero backs the pointer passed for empty slices; the C API wants a valid
// pointer even when the length is zero.
var zero byte

func bytesPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return unsafe.Pointer(&zero)
	}
	return unsafe.Pointer(&b[0])
}

// optionalPtr is bytesPtr except that a nil slice stays nil, which the C API
// reads as "unbounded".
func optionalPtr(b []byte) unsafe.Pointer {
	if b == nil {
		return nil
	}
	return bytesPtr(b)
}

// cView returns a Go view of n bytes of C memory. The view is only valid while
// the memory is.
func cView(p, n uintptr) []byte {
	if p == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

// takeBytes copies n bytes of C-allocated memory and frees it.
func takeBytes(p, n uintptr) []byte {
	out := make([]byte, n)
	copy(out, cView(p, n))
	rocksdbFree(p)
	return out
}

// takeString copies a NUL-terminated C string and frees it.
func takeString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var n uintptr
	for *(*byte)(unsafe.Pointer(p + n)) != 0 {
		n++
	}
	s := string(cView(p, n))
	rocksdbFree(p)
	return s
}

func cbool(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
