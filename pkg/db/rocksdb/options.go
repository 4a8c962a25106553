package rocksdb

import (
	"github.com/eigerco/strata/pkg/db/engine"
)

// nativeOptions builds a rocksdb_options_t. Zero numeric fields leave the
// library default in place. The caller destroys the result.
func nativeOptions(o engine.Options) uintptr {
	opts := optionsCreate()

	// The optimize helpers overwrite several settings, so they go first and
	// explicit values win.
	if o.LevelCompactionMemBudget != nil {
		optionsOptimizeLevelStyleCompaction(opts, *o.LevelCompactionMemBudget)
	}
	if o.PointLookupCacheMB != nil {
		optionsOptimizeForPointLookup(opts, *o.PointLookupCacheMB)
	}

	optionsSetCreateIfMissing(opts, cbool(o.CreateIfMissing))
	optionsSetErrorIfExists(opts, cbool(o.ErrorIfExists))
	optionsSetParanoidChecks(opts, cbool(o.ParanoidChecks))
	optionsSetCompression(opts, int32(o.Compression))

	if o.WriteBufferBytes > 0 {
		optionsSetWriteBufferSize(opts, uintptr(o.WriteBufferBytes))
	}
	setInt(opts, o.MaxWriteBuffers, optionsSetMaxWriteBufferNumber)
	setInt(opts, o.MaxOpenFiles, optionsSetMaxOpenFiles)
	setInt(opts, o.BackgroundCompactionThreads, optionsSetMaxBackgroundCompactions)
	setInt(opts, o.BackgroundFlushThreads, optionsSetMaxBackgroundFlushes)
	setInt(opts, o.Level0FileCompactionTrigger, optionsSetLevel0FileNumCompaction)
	setInt(opts, o.Level0SlowdownTrigger, optionsSetLevel0SlowdownWritesTrigger)
	setInt(opts, o.Level0StopTrigger, optionsSetLevel0StopWritesTrigger)
	if o.TargetFileSizeBytes > 0 {
		optionsSetTargetFileSizeBase(opts, o.TargetFileSizeBytes)
	}
	if o.MaxBytesPerLevel > 0 {
		optionsSetMaxBytesForLevelBase(opts, o.MaxBytesPerLevel)
	}
	if o.StatisticsEnabled {
		optionsEnableStatistics(opts)
	}
	return opts
}

func setInt(opts uintptr, v int, set func(uintptr, int32)) {
	if v > 0 {
		set(opts, int32(v))
	}
}

// readOptions is a native rocksdb_readoptions_t.
type readOptions uintptr

func newReadOptions(ro engine.ReadOptions) (readOptions, error) {
	var snap uintptr
	if ro.Snapshot != nil {
		s, ok := ro.Snapshot.(*Snapshot)
		if !ok {
			return 0, errForeignSnap
		}
		if s.snap == 0 {
			return 0, errClosed
		}
		snap = s.snap
	}

	native := readOptionsCreate()
	readOptionsSetVerifyChecksums(native, cbool(ro.VerifyChecksums))
	readOptionsSetFillCache(native, cbool(ro.FillCache))
	readOptionsSetPrefixSameAsStart(native, cbool(ro.PrefixSameAsStart))
	if snap != 0 {
		readOptionsSetSnapshot(native, snap)
	}
	return readOptions(native), nil
}

func (r readOptions) destroy() {
	readOptionsDestroy(uintptr(r))
}

// writeOptions is a native rocksdb_writeoptions_t.
type writeOptions uintptr

func newWriteOptions(wo engine.WriteOptions) (writeOptions, error) {
	if wo.Sync && wo.DisableWAL {
		return 0, errSyncNoWAL
	}
	native := writeOptionsCreate()
	writeOptionsSetSync(native, cbool(wo.Sync))
	if wo.DisableWAL {
		writeOptionsDisableWAL(native, 1)
	}
	return writeOptions(native), nil
}

func (w writeOptions) destroy() {
	writeOptionsDestroy(uintptr(w))
}
