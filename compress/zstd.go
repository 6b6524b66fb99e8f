package compress

// ZstdCompressor provides Zstandard compression for trait payloads. It is
// the default codec for skeleton and entity data, where ratio matters more
// than speed.
//
// Two implementations back this type: a cgo binding when cgo is available
// and a pure-Go fallback otherwise. Both produce interchangeable streams.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
