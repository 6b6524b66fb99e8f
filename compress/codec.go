// Package compress provides the compression codecs applied to avatar trait
// payload framing.
//
// Trait payloads (packed skeletons, entity blobs, grab records) travel on a
// much slower cadence than snapshots and are the only payloads in the
// protocol large enough for general-purpose compression to pay off. The
// sender picks one codec per trait message and records it in the framing
// byte; the receiver resolves the codec by that byte.
//
// Supported algorithms:
//   - None: no compression
//   - Zstd: best ratio, the default for skeleton and entity data
//   - S2: balanced ratio and speed
//   - LZ4: fastest decompression
package compress

import (
	"fmt"

	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/format"
)

// Compressor compresses a complete trait payload.
//
// Memory management:
//   - Returned slice is newly allocated and owned by the caller
//   - Input slice is not modified
//   - Internal buffers may be reused for efficiency
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a payload previously compressed with the same
// algorithm. It validates the input format and returns an error for
// corrupted or mismatched data.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions. All codecs in this package are stateless
// values and safe for concurrent use.
type Codec interface {
	Compressor
	Decompressor
}

// ByType returns the codec registered for t.
func ByType(t format.CompressionType) (Codec, error) {
	switch t {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionS2:
		return NewS2Compressor(), nil
	case format.CompressionLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("%w: %d", errs.ErrUnknownCompression, t)
	}
}
