// Package packet defines the wire layout of one avatar snapshot: the
// leading section bitmask, the per-section sizes and value structs, the
// ADDITIONAL_FLAGS state-bit layout, and the resumable-send status carried
// between encodes.
//
// The snapshot payload is a 16-bit little-endian section mask followed by
// each present section in mask-bit order, except that the grab joints
// section (bit 14) is written right after the joint stream, ahead of the
// joint default-pose flags (bit 13). Sections are fixed-size except
// the face tracker block, the joint stream, and the joint default-pose
// flags.
package packet

// HasFlags is the 16-bit section mask leading every avatar snapshot. Bit i
// set means section i is present, in the order declared below. Bit 15 is
// reserved and zero.
type HasFlags uint16

const (
	HasAvatarGlobalPosition HasFlags = 1 << iota
	HasAvatarBoundingBox
	HasAvatarOrientation
	HasAvatarScale
	HasLookAtPosition
	HasAudioLoudness
	HasSensorToWorldMatrix
	HasAdditionalFlags
	HasParentInfo
	HasAvatarLocalPosition
	HasHandControllers
	HasFaceTrackerInfo
	HasJointData
	HasJointDefaultPoseFlags
	HasGrabJoints
)

// Has reports whether every bit of flag is set in f.
func (f HasFlags) Has(flag HasFlags) bool {
	return f&flag == flag
}
