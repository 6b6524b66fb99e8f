// Package pool provides pooled byte buffers for the trait send path, where
// each window assembles several framed messages and the buffers would
// otherwise churn the allocator at the broadcast rate.
package pool

import "sync"

// TraitBufferDefaultSize is the default capacity of a pooled buffer; most
// trait messages fit a single skeleton plus a handful of entity payloads.
const (
	TraitBufferDefaultSize  = 4 * 1024
	TraitBufferMaxThreshold = 256 * 1024
)

// ByteBuffer is a reusable byte slice wrapper.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a new ByteBuffer with the specified capacity.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{
		B: make([]byte, 0, defaultSize),
	}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Reset resets the buffer to be empty, but retains the allocated memory
// for reuse.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Len returns the length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// MustWrite appends data to the buffer, growing it if necessary.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

// WriteByte appends a single byte. The error is always nil; the signature
// satisfies io.ByteWriter.
func (bb *ByteBuffer) WriteByte(b byte) error {
	bb.B = append(bb.B, b)
	return nil
}

var traitBufferPool = sync.Pool{
	New: func() any {
		return NewByteBuffer(TraitBufferDefaultSize)
	},
}

// GetTraitBuffer returns a reset buffer from the pool.
func GetTraitBuffer() *ByteBuffer {
	bb, _ := traitBufferPool.Get().(*ByteBuffer)
	bb.Reset()

	return bb
}

// PutTraitBuffer returns a buffer to the pool. Buffers that grew past the
// threshold are dropped so one oversized message does not pin memory.
func PutTraitBuffer(bb *ByteBuffer) {
	if cap(bb.B) > TraitBufferMaxThreshold {
		return
	}
	traitBufferPool.Put(bb)
}
