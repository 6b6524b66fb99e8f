package traits

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/spatial"
)

// Hand names which hand (if any) holds a grab.
type Hand uint8

const (
	HandNone Hand = iota
	HandLeft
	HandRight
)

// GrabData is the decoded form of a grab trait payload: who grabs what,
// from which joint, and the offsets of the grip.
type GrabData struct {
	OwnerID          uuid.UUID
	TargetID         uuid.UUID
	ParentJointIndex int16
	Hand             Hand
	PositionalOffset spatial.Vec3
	RotationalOffset spatial.Quat
}

const grabDataSize = 16 + 16 + 2 + 1 + 12 + 16

// EncodeGrab serializes a grab payload.
func EncodeGrab(g GrabData) []byte {
	buf := make([]byte, 0, grabDataSize)
	buf = append(buf, g.OwnerID[:]...)
	buf = append(buf, g.TargetID[:]...)
	buf = wireOrder.AppendUint16(buf, uint16(g.ParentJointIndex))
	buf = append(buf, byte(g.Hand))
	buf = appendVec3(buf, g.PositionalOffset)
	buf = appendQuat(buf, g.RotationalOffset)

	return buf
}

// DecodeGrab parses a grab payload.
func DecodeGrab(data []byte) (GrabData, error) {
	if len(data) < grabDataSize {
		return GrabData{}, fmt.Errorf("decode grab: need %d bytes, have %d: %w",
			grabDataSize, len(data), errs.ErrInvalidTraitPayload)
	}

	r := reader{data: data}
	var g GrabData
	r.bytes(g.OwnerID[:])
	r.bytes(g.TargetID[:])
	g.ParentJointIndex = int16(r.uint16())
	g.Hand = Hand(r.uint8())
	g.PositionalOffset = r.vec3()
	g.RotationalOffset = r.quat()

	return g, nil
}
