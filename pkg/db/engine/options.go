package engine

import "fmt"

// Compression identifies a block compression algorithm. The values match
// RocksDB's CompressionType.
type Compression int

const (
	NoCompression Compression = iota
	SnappyCompression
	ZlibCompression
	BZip2Compression
	LZ4Compression
	LZ4HCCompression
	XpressCompression
	ZSTDCompression
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case ZlibCompression:
		return "zlib"
	case BZip2Compression:
		return "bzip2"
	case LZ4Compression:
		return "lz4"
	case LZ4HCCompression:
		return "lz4hc"
	case XpressCompression:
		return "xpress"
	case ZSTDCompression:
		return "zstd"
	default:
		return "unknown"
	}
}

func (c Compression) MarshalText() ([]byte, error) {
	if c < NoCompression || c > ZSTDCompression {
		return nil, fmt.Errorf("unknown compression %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Compression) UnmarshalText(text []byte) error {
	for v := NoCompression; v <= ZSTDCompression; v++ {
		if v.String() == string(text) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown compression %q", text)
}

// Options are the open-time options handed to an engine. Zero values mean
// "engine default" for every numeric field.
type Options struct {
	CreateIfMissing             bool
	ErrorIfExists               bool
	ParanoidChecks              bool
	Compression                 Compression
	WriteBufferBytes            uint64
	MaxWriteBuffers             int
	MaxOpenFiles                int
	BackgroundCompactionThreads int
	BackgroundFlushThreads      int
	Level0FileCompactionTrigger int
	Level0SlowdownTrigger       int
	Level0StopTrigger           int
	TargetFileSizeBytes         uint64
	MaxBytesPerLevel            uint64
	StatisticsEnabled           bool
	PointLookupCacheMB          *uint64
	LevelCompactionMemBudget    *uint64
}

// ReadOptions are per-call read options.
type ReadOptions struct {
	VerifyChecksums   bool
	FillCache         bool
	PrefixSameAsStart bool
	Snapshot          Snapshot
}

// WriteOptions are per-call write options.
type WriteOptions struct {
	Sync       bool
	DisableWAL bool
}
