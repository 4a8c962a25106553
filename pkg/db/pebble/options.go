package pebble

import (
	"runtime"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/eigerco/strata/pkg/db/engine"
)

const (
	numLevels          = 7
	defaultCacheBytes  = 64 << 20 // 64MB
	bloomBitsPerKey    = 10
	writeBufferDivisor = 4
)

// pebbleOptions translates engine options into a fresh pebble.Options. The
// returned cache must be released with Unref once the database is open.
func pebbleOptions(o engine.Options, fs vfs.FS, log zerolog.Logger) (*pebble.Options, *pebble.Cache, error) {
	compression, err := pebbleCompression(o.Compression)
	if err != nil {
		return nil, nil, err
	}

	cacheBytes := int64(defaultCacheBytes)
	var filter pebble.FilterPolicy
	if o.PointLookupCacheMB != nil {
		cacheBytes = int64(*o.PointLookupCacheMB) << 20
		filter = bloom.FilterPolicy(bloomBitsPerKey)
	}
	cache := pebble.NewCache(cacheBytes)

	opts := &pebble.Options{
		Cache:            cache,
		FS:               fs,
		ErrorIfExists:    o.ErrorIfExists,
		ErrorIfNotExists: !o.CreateIfMissing,
		MemTableSize:     o.WriteBufferBytes,
		MaxOpenFiles:     o.MaxOpenFiles,
		LBaseMaxBytes:    int64(o.MaxBytesPerLevel),
		Logger:           newLogger(log),
		EventListener:    newEventListener(log),
	}
	if o.MaxWriteBuffers > 0 {
		opts.MemTableStopWritesThreshold = o.MaxWriteBuffers
	}
	if o.Level0FileCompactionTrigger > 0 {
		opts.L0CompactionFileThreshold = o.Level0FileCompactionTrigger
		opts.L0CompactionThreshold = o.Level0FileCompactionTrigger
	}
	if o.Level0StopTrigger > 0 {
		opts.L0StopWritesThreshold = o.Level0StopTrigger
	}
	if n := o.BackgroundCompactionThreads; n > 0 {
		opts.MaxConcurrentCompactions = func() int { return n }
	} else {
		opts.MaxConcurrentCompactions = func() int { return max(1, runtime.GOMAXPROCS(0)/2) }
	}
	if o.LevelCompactionMemBudget != nil {
		budget := *o.LevelCompactionMemBudget
		opts.MemTableSize = budget / writeBufferDivisor
		opts.LBaseMaxBytes = int64(budget)
	}

	opts.Levels = make([]pebble.LevelOptions, numLevels)
	for i := range opts.Levels {
		opts.Levels[i].Compression = compression
		opts.Levels[i].FilterPolicy = filter
	}
	if o.TargetFileSizeBytes > 0 {
		opts.Levels[0].TargetFileSize = int64(o.TargetFileSizeBytes)
	}

	if o.BackgroundFlushThreads > 0 || o.Level0SlowdownTrigger > 0 {
		log.Debug().
			Int("background_flush_threads", o.BackgroundFlushThreads).
			Int("level0_slowdown_trigger", o.Level0SlowdownTrigger).
			Msg("options without a pebble equivalent are ignored")
	}

	return opts.EnsureDefaults(), cache, nil
}

func pebbleCompression(c engine.Compression) (pebble.Compression, error) {
	switch c {
	case engine.NoCompression:
		return pebble.NoCompression, nil
	case engine.SnappyCompression:
		return pebble.SnappyCompression, nil
	case engine.ZSTDCompression:
		return pebble.ZstdCompression, nil
	default:
		return pebble.DefaultCompression, engine.NewStatus(engine.CodeNotSupported,
			"compression %s is not available in the pebble engine", c)
	}
}

func pebbleWriteOptions(wo engine.WriteOptions) (*pebble.WriteOptions, error) {
	if wo.Sync && wo.DisableWAL {
		return nil, engine.NewStatus(engine.CodeInvalidArgument, "sync writes require the WAL")
	}
	if wo.Sync {
		return pebble.Sync, nil
	}
	return pebble.NoSync, nil
}
