// Package format defines shared wire-format enums for avatarwire.
package format

// CompressionType identifies the compression codec applied to trait payload
// framing. The zero value means no compression.
type CompressionType uint8

const (
	// CompressionNone leaves payloads uncompressed.
	CompressionNone CompressionType = iota
	// CompressionZstd uses Zstandard block compression.
	CompressionZstd
	// CompressionS2 uses S2 (Snappy-compatible) block compression.
	CompressionS2
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4
)

// String returns the lowercase codec name.
func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Valid reports whether c names a known codec.
func (c CompressionType) Valid() bool {
	return c <= CompressionLZ4
}
