package traits

import (
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/spatial"
)

// IdentityFlags carries the boolean identity properties as a 32-bit set.
type IdentityFlags uint32

const (
	// IdentityIsReplicated marks an avatar mirrored by a downstream mixer.
	IdentityIsReplicated IdentityFlags = 1 << iota
	// IdentityLookAtSnapping enables gaze snapping toward nearby faces.
	IdentityLookAtSnapping
	// IdentityVerificationFailed marks an avatar whose model failed
	// ownership verification.
	IdentityVerificationFailed
)

// Attachment is one model attached to an avatar joint.
type Attachment struct {
	ModelURL    string
	JointName   string
	Translation spatial.Vec3
	Rotation    spatial.Quat
	Scale       float32
	IsSoft      bool
}

// Identity is the avatar identity record. It travels in its own
// sequence-numbered packet rather than in snapshots.
type Identity struct {
	Attachments        []Attachment
	DisplayName        string
	SessionDisplayName string
	Flags              IdentityFlags
}

// Equal reports whether two identity records carry the same values.
func (id Identity) Equal(other Identity) bool {
	if id.DisplayName != other.DisplayName ||
		id.SessionDisplayName != other.SessionDisplayName ||
		id.Flags != other.Flags ||
		len(id.Attachments) != len(other.Attachments) {
		return false
	}
	for i := range id.Attachments {
		if id.Attachments[i] != other.Attachments[i] {
			return false
		}
	}

	return true
}

// EncodeIdentity serializes an identity packet payload: session id,
// sequence number, attachments, the two display names, and the flags.
func EncodeIdentity(sessionID uuid.UUID, seq Sequence, identity Identity) []byte {
	buf := make([]byte, 0, 64)

	buf = append(buf, sessionID[:]...)
	buf = wireOrder.AppendUint16(buf, uint16(seq))

	buf = wireOrder.AppendUint16(buf, uint16(len(identity.Attachments)))
	for i := range identity.Attachments {
		a := &identity.Attachments[i]
		buf = appendUTF16String(buf, a.ModelURL)
		buf = appendUTF16String(buf, a.JointName)
		buf = appendVec3(buf, a.Translation)
		buf = appendQuat(buf, a.Rotation)
		buf = wireOrder.AppendUint32(buf, f32bits(a.Scale))
		if a.IsSoft {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}

	buf = appendUTF16String(buf, identity.DisplayName)
	buf = appendUTF16String(buf, identity.SessionDisplayName)
	buf = wireOrder.AppendUint32(buf, uint32(identity.Flags))

	return buf
}

// DecodeIdentity parses an identity packet payload.
func DecodeIdentity(data []byte) (sessionID uuid.UUID, seq Sequence, identity Identity, err error) {
	r := reader{data: data}

	r.bytes(sessionID[:])
	seq = Sequence(r.uint16())

	count := int(r.uint16())
	if count > 0 {
		// Bound a hostile count by what the remaining bytes could hold; the
		// smallest attachment is two empty strings plus the fixed fields.
		const minAttachmentSize = 4 + 4 + 12 + 16 + 4 + 1
		if count > r.remaining()/minAttachmentSize {
			return sessionID, seq, identity, fmt.Errorf("decode identity: %d attachments: %w",
				count, errs.ErrInvalidTraitPayload)
		}
		identity.Attachments = make([]Attachment, count)
		for i := range identity.Attachments {
			a := &identity.Attachments[i]
			a.ModelURL = r.utf16String()
			a.JointName = r.utf16String()
			a.Translation = r.vec3()
			a.Rotation = r.quat()
			a.Scale = r.f32()
			a.IsSoft = r.uint8() != 0
		}
	}

	identity.DisplayName = r.utf16String()
	identity.SessionDisplayName = r.utf16String()
	identity.Flags = IdentityFlags(r.uint32())

	if r.failed {
		return sessionID, seq, identity, fmt.Errorf("decode identity: %w", errs.ErrInvalidTraitPayload)
	}

	return sessionID, seq, identity, nil
}

// Strings are u32 byte-length-prefixed UTF-16LE. 0xffffffff encodes the
// null string and decodes to the empty string.
const nullStringLength = 0xffffffff

func appendUTF16String(buf []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	buf = wireOrder.AppendUint32(buf, uint32(len(units)*2))
	for _, u := range units {
		buf = wireOrder.AppendUint16(buf, u)
	}

	return buf
}

func appendVec3(buf []byte, v spatial.Vec3) []byte {
	buf = wireOrder.AppendUint32(buf, f32bits(v.X))
	buf = wireOrder.AppendUint32(buf, f32bits(v.Y))
	buf = wireOrder.AppendUint32(buf, f32bits(v.Z))

	return buf
}

func appendQuat(buf []byte, q spatial.Quat) []byte {
	buf = wireOrder.AppendUint32(buf, f32bits(q.X))
	buf = wireOrder.AppendUint32(buf, f32bits(q.Y))
	buf = wireOrder.AppendUint32(buf, f32bits(q.Z))
	buf = wireOrder.AppendUint32(buf, f32bits(q.W))

	return buf
}

// reader is a cursor over a trait payload that latches the first underrun
// instead of erroring at every call site.
type reader struct {
	data   []byte
	off    int
	failed bool
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) take(n int) []byte {
	if r.failed || r.remaining() < n {
		r.failed = true
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n

	return b
}

func (r *reader) bytes(dst []byte) {
	if b := r.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

func (r *reader) uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}

	return 0
}

func (r *reader) uint16() uint16 {
	if b := r.take(2); b != nil {
		return wireOrder.Uint16(b)
	}

	return 0
}

func (r *reader) uint32() uint32 {
	if b := r.take(4); b != nil {
		return wireOrder.Uint32(b)
	}

	return 0
}

func (r *reader) f32() float32 {
	return f32from(r.uint32())
}

func (r *reader) vec3() spatial.Vec3 {
	return spatial.Vec3{X: r.f32(), Y: r.f32(), Z: r.f32()}
}

func (r *reader) quat() spatial.Quat {
	return spatial.Quat{X: r.f32(), Y: r.f32(), Z: r.f32(), W: r.f32()}
}

func (r *reader) utf16String() string {
	byteLen := r.uint32()
	if byteLen == nullStringLength {
		return ""
	}
	if byteLen%2 != 0 {
		r.failed = true
		return ""
	}
	b := r.take(int(byteLen))
	if b == nil {
		return ""
	}

	units := make([]uint16, byteLen/2)
	for i := range units {
		units[i] = wireOrder.Uint16(b[i*2:])
	}

	return string(utf16.Decode(units))
}

func f32bits(f float32) uint32 {
	return math.Float32bits(f)
}

func f32from(bits uint32) float32 {
	return math.Float32frombits(bits)
}
