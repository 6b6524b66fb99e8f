package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer(t *testing.T) {
	bb := NewByteBuffer(16)
	require.Zero(t, bb.Len())

	bb.MustWrite([]byte("abc"))
	require.NoError(t, bb.WriteByte('d'))
	require.Equal(t, []byte("abcd"), bb.Bytes())
	require.Equal(t, 4, bb.Len())

	bb.Reset()
	require.Zero(t, bb.Len())
	require.GreaterOrEqual(t, cap(bb.B), 16)
}

func TestTraitBufferPool(t *testing.T) {
	bb := GetTraitBuffer()
	bb.MustWrite([]byte("payload"))
	PutTraitBuffer(bb)

	again := GetTraitBuffer()
	require.Zero(t, again.Len(), "pooled buffers come back reset")
	PutTraitBuffer(again)
}
