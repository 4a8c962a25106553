package db

import "github.com/eigerco/strata/pkg/db/engine"

// Compression identifies a block compression algorithm.
type Compression = engine.Compression

const (
	NoCompression     = engine.NoCompression
	SnappyCompression = engine.SnappyCompression
	ZlibCompression   = engine.ZlibCompression
	BZip2Compression  = engine.BZip2Compression
	LZ4Compression    = engine.LZ4Compression
	LZ4HCCompression  = engine.LZ4HCCompression
	XpressCompression = engine.XpressCompression
	ZSTDCompression   = engine.ZSTDCompression
)

// DatabaseConfig holds the open-time tuning of a database. It is translated
// into engine options when a database is opened and is not retained.
type DatabaseConfig struct {
	CreateIfMissing             bool        `yaml:"create_if_missing"`
	ErrorIfExists               bool        `yaml:"error_if_exists"`
	ParanoidChecks              bool        `yaml:"paranoid_checks"`
	Compression                 Compression `yaml:"compression"`
	WriteBufferBytes            uint64      `yaml:"write_buffer_bytes"`
	MaxWriteBuffers             int         `yaml:"max_write_buffers"`
	MaxOpenFiles                int         `yaml:"max_open_files"`
	BackgroundCompactionThreads int         `yaml:"background_compaction_threads"`
	BackgroundFlushThreads      int         `yaml:"background_flush_threads"`
	Level0FileCompactionTrigger int         `yaml:"level0_file_compaction_trigger"`
	Level0SlowdownTrigger       int         `yaml:"level0_slowdown_trigger"`
	Level0StopTrigger           int         `yaml:"level0_stop_trigger"`
	TargetFileSizeBytes         uint64      `yaml:"target_file_size_bytes"`
	MaxBytesPerLevel            uint64      `yaml:"max_bytes_per_level"`
	StatisticsEnabled           bool        `yaml:"statistics_enabled"`
	// Block cache size for point lookups. Also enables bloom filters.
	PointLookupCacheMB *uint64 `yaml:"point_lookup_cache_mb,omitempty"`
	// Memory budget for level-style compaction; sizes the memtable and the
	// base level from a single number.
	LevelCompactionMemBudget *uint64 `yaml:"level_compaction_mem_budget,omitempty"`
}

// DefaultDatabaseConfig returns RocksDB's defaults, with CreateIfMissing set.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		CreateIfMissing:             true,
		Compression:                 SnappyCompression,
		WriteBufferBytes:            64 << 20,
		MaxWriteBuffers:             2,
		MaxOpenFiles:                1000,
		BackgroundCompactionThreads: 1,
		BackgroundFlushThreads:      1,
		Level0FileCompactionTrigger: 4,
		Level0SlowdownTrigger:       20,
		Level0StopTrigger:           36,
		TargetFileSizeBytes:         64 << 20,
		MaxBytesPerLevel:            256 << 20,
	}
}

func (c DatabaseConfig) engineOptions() engine.Options {
	return engine.Options{
		CreateIfMissing:             c.CreateIfMissing,
		ErrorIfExists:               c.ErrorIfExists,
		ParanoidChecks:              c.ParanoidChecks,
		Compression:                 c.Compression,
		WriteBufferBytes:            c.WriteBufferBytes,
		MaxWriteBuffers:             c.MaxWriteBuffers,
		MaxOpenFiles:                c.MaxOpenFiles,
		BackgroundCompactionThreads: c.BackgroundCompactionThreads,
		BackgroundFlushThreads:      c.BackgroundFlushThreads,
		Level0FileCompactionTrigger: c.Level0FileCompactionTrigger,
		Level0SlowdownTrigger:       c.Level0SlowdownTrigger,
		Level0StopTrigger:           c.Level0StopTrigger,
		TargetFileSizeBytes:         c.TargetFileSizeBytes,
		MaxBytesPerLevel:            c.MaxBytesPerLevel,
		StatisticsEnabled:           c.StatisticsEnabled,
		PointLookupCacheMB:          c.PointLookupCacheMB,
		LevelCompactionMemBudget:    c.LevelCompactionMemBudget,
	}
}

// ReadConfig controls a single read. A nil *ReadConfig means
// DefaultReadConfig.
type ReadConfig struct {
	VerifyChecksums   bool `yaml:"verify_checksums"`
	FillCache         bool `yaml:"fill_cache"`
	PrefixSameAsStart bool `yaml:"prefix_same_as_start"`
	// Snapshot pins the read to a point in time. It must stay open for the
	// duration of the read, and for the lifetime of iterators created with it.
	Snapshot *Snapshot `yaml:"-"`
}

func DefaultReadConfig() ReadConfig {
	return ReadConfig{VerifyChecksums: true, FillCache: true}
}

// withOptions translates rc and runs fn with the result. When rc names a
// snapshot, fn runs under the snapshot's lock so it cannot be released
// mid-call.
func (rc *ReadConfig) withOptions(fn func(engine.ReadOptions) error) error {
	cfg := DefaultReadConfig()
	if rc != nil {
		cfg = *rc
	}
	ro := engine.ReadOptions{
		VerifyChecksums:   cfg.VerifyChecksums,
		FillCache:         cfg.FillCache,
		PrefixSameAsStart: cfg.PrefixSameAsStart,
	}
	if cfg.Snapshot == nil {
		return fn(ro)
	}
	return cfg.Snapshot.h.with(func(s engine.Snapshot) error {
		ro.Snapshot = s
		return fn(ro)
	})
}

// WriteConfig controls a single write. A nil *WriteConfig means
// DefaultWriteConfig.
type WriteConfig struct {
	Sync       bool `yaml:"sync"`
	DisableWAL bool `yaml:"disable_wal"`
}

func DefaultWriteConfig() WriteConfig {
	return WriteConfig{}
}

func (wc *WriteConfig) engineOptions() engine.WriteOptions {
	if wc == nil {
		return engine.WriteOptions{}
	}
	return engine.WriteOptions{Sync: wc.Sync, DisableWAL: wc.DisableWAL}
}
