// Package codec implements the stateful avatar snapshot codec: the frame
// encoder with its resumable continuation, the mirroring decoder, the joint
// stream, and the change-filtered send policy.
//
// The codec is polymorphic over the application's state container through
// the Source and Sink capability sets rather than through embedding: an
// encoder pulls current values from a Source, a decoder pushes decoded
// values into a Sink. Neither holds locks; both are synchronous and bounded
// by the packet byte budget, so a caller can drive them from its own
// scheduling model.
package codec

import (
	"github.com/google/uuid"

	"github.com/vastspace/avatarwire/packet"
	"github.com/vastspace/avatarwire/spatial"
)

// Fixed-point radixes and scales of the snapshot sections.
const (
	TranslationCompressionRadix    = 14
	HandControllerCompressionRadix = 12
	SensorToWorldScaleRadix        = 10
	AudioLoudnessScale             = 1024.0
)

// DetailLevel selects how much state a snapshot carries.
type DetailLevel uint8

const (
	// NoData emits only the optional session id and an empty section mask.
	NoData DetailLevel = iota
	// PALMinimum carries global position and audio loudness only.
	PALMinimum
	// MinimumData carries everything except the joint stream.
	MinimumData
	// CullSmallData carries everything, eliding joint changes below the
	// distance-based thresholds.
	CullSmallData
	// SendAllData carries everything unconditionally.
	SendAllData
)

// Source is the capability set the encoder pulls avatar state from.
// Implementations return current values; the encoder never retains the
// returned slices beyond the call.
type Source interface {
	SessionUUIDOut() uuid.UUID
	GlobalPositionOut() spatial.Vec3
	BoundingBoxOut() packet.BoundingBox
	OrientationOut() spatial.Quat
	ScaleOut() float32
	LookAtPositionOut() spatial.Vec3
	AudioLoudnessOut() float32
	SensorToWorldMatrixOut() packet.SensorToWorld
	AdditionalFlagsOut() packet.StateFlags
	ParentInfoOut() packet.ParentInfo
	LocalPositionOut() spatial.Vec3
	HandControllersOut() packet.HandControllers
	// HandControllerCachesValidOut reports whether the left and right
	// controller vantages hold live data; the section is skipped when both
	// are stale.
	HandControllerCachesValidOut() (left, right bool)
	FaceTrackerInfoOut() packet.FaceTrackerInfo
	JointDataSizeOut() int
	JointDataOut(i int) packet.JointData
	FarGrabJointsOut() packet.FarGrabJoints
	// FarGrabCachesValidOut reports which far-grab poses hold live data;
	// the grab joints section requires at least one.
	FarGrabCachesValidOut() (left, right, mouse bool)
}

// Sink is the capability set the decoder pushes decoded state into. The
// error callbacks receive recoverable per-packet conditions; the decoder
// abandons the rest of the packet after either fires.
type Sink interface {
	SetGlobalPositionIn(spatial.Vec3)
	SetBoundingBoxIn(packet.BoundingBox)
	SetOrientationIn(spatial.Quat)
	SetScaleIn(float32)
	SetLookAtPositionIn(spatial.Vec3)
	SetAudioLoudnessIn(float32)
	SetSensorToWorldMatrixIn(packet.SensorToWorld)
	SetAdditionalFlagsIn(flags packet.StateFlags, hasReferential bool)
	SetParentInfoIn(packet.ParentInfo)
	SetLocalPositionIn(spatial.Vec3)
	SetHandControllersIn(packet.HandControllers)
	// InvalidateHandControllersIn fires when a snapshot omits the hand
	// controller section, marking the cached vantages stale.
	InvalidateHandControllersIn()
	SetFaceTrackerInfoIn(packet.FaceTrackerInfo)
	SetJointDataSizeIn(int)
	SetJointDataRotationIn(i int, q spatial.Quat)
	SetJointDataRotationDefaultIn(i int, isDefault bool)
	SetJointDataPositionIn(i int, v spatial.Vec3)
	SetJointDataPositionDefaultIn(i int, isDefault bool)
	SetFarGrabJointsIn(packet.FarGrabJoints)

	OnPacketTooSmallError(section string, needed, available int)
	OnParseError(reason string)
}
