package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/format"
)

func samplePayload() []byte {
	// Repetitive enough that every real codec shrinks it.
	return bytes.Repeat([]byte("avatar-skeleton-joint-record-"), 64)
}

func TestCodecs_RoundTrip(t *testing.T) {
	for _, ct := range []format.CompressionType{
		format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := ByType(ct)
			require.NoError(t, err)

			payload := samplePayload()
			compressed, err := codec.Compress(payload)
			require.NoError(t, err)

			if ct != format.CompressionNone {
				require.Less(t, len(compressed), len(payload))
			}

			restored, err := codec.Decompress(compressed)
			require.NoError(t, err)
			require.Equal(t, payload, restored)
		})
	}
}

func TestCodecs_EmptyInput(t *testing.T) {
	for _, ct := range []format.CompressionType{
		format.CompressionZstd, format.CompressionS2, format.CompressionLZ4,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := ByType(ct)
			require.NoError(t, err)

			restored, err := codec.Decompress(nil)
			require.NoError(t, err)
			require.Empty(t, restored)
		})
	}
}

func TestByType_Unknown(t *testing.T) {
	_, err := ByType(format.CompressionType(99))
	require.ErrorIs(t, err, errs.ErrUnknownCompression)
}

func TestZstd_RejectsGarbage(t *testing.T) {
	codec := NewZstdCompressor()
	_, err := codec.Decompress([]byte("definitely not a zstd stream"))
	require.Error(t, err)
}
