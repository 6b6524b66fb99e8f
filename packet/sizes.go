package packet

import "github.com/vastspace/avatarwire/quant"

// Fixed wire sizes, in bytes.
const (
	FlagsSize = 2  // leading section mask
	UUIDSize  = 16 // RFC 4122 session / parent / instance ids

	GlobalPositionSize  = 12 // 3x f32
	BoundingBoxSize     = 24 // 6x f32
	OrientationSize     = quant.SixByteQuatSize
	ScaleSize           = quant.TwoByteScalarSize
	LookAtPositionSize  = 12 // 3x f32
	AudioLoudnessSize   = quant.GainSize
	SensorToWorldSize   = 20 // 3x f32 + 6B quat + 2B scale
	AdditionalFlagsSize = 2
	ParentInfoSize      = UUIDSize + 2 // id + joint index u16
	LocalPositionSize   = 12           // 3x f32
	HandControllersSize = 2 * (quant.SixByteQuatSize + quant.SixByteVec3Size)

	// FaceTrackerHeaderSize covers the four f32 head fields plus the
	// blendshape count byte; 4 bytes per coefficient follow.
	FaceTrackerHeaderSize = 17

	// FarGrabJointsSize is three unquantized poses of 3x f32 position and
	// 4x f32 rotation.
	FarGrabJointsSize = 3 * (12 + 16)

	// MaxBlendshapeCoefficients bounds the face tracker count byte.
	MaxBlendshapeCoefficients = 255

	// MaxJointCount bounds the one-byte joint count of the joint stream.
	MaxJointCount = 255
)

// MinBulkPacketSize is the smallest payload a bulk avatar-data packet can
// carry: a session id and an empty section mask.
const MinBulkPacketSize = UUIDSize + FlagsSize

// maxFixedSectionsSize is the mask plus every fixed-size section.
const maxFixedSectionsSize = FlagsSize +
	GlobalPositionSize + BoundingBoxSize + OrientationSize + ScaleSize +
	LookAtPositionSize + AudioLoudnessSize + SensorToWorldSize +
	AdditionalFlagsSize + ParentInfoSize + LocalPositionSize +
	HandControllersSize

// MaxFaceTrackerInfoSize returns the wire size of a face tracker section
// carrying numCoefficients blendshape coefficients.
func MaxFaceTrackerInfoSize(numCoefficients int) int {
	return FaceTrackerHeaderSize + numCoefficients*4
}

// MaxJointDataSize returns the worst-case joint stream size for numJoints:
// count byte, both validity vectors, the translation scale, and every
// rotation and translation packed.
func MaxJointDataSize(numJoints int) int {
	vec := quant.BitVectorSize(numJoints)

	return 1 + vec + numJoints*quant.SixByteQuatSize + vec + 4 + numJoints*quant.SixByteVec3Size
}

// MinJointDataSize returns the smallest joint stream that still makes
// progress: count byte, both validity vectors, and the translation scale,
// with no joints packed.
func MinJointDataSize(numJoints int) int {
	vec := quant.BitVectorSize(numJoints)

	return 1 + vec + vec + 4
}

// MaxJointDefaultPoseFlagsSize returns the wire size of the default-pose
// flags section for numJoints.
func MaxJointDefaultPoseFlagsSize(numJoints int) int {
	return 1 + 2*quant.BitVectorSize(numJoints)
}

// MaxSnapshotSize returns the buffer size sufficient for any snapshot of an
// avatar with the given joint and blendshape counts.
func MaxSnapshotSize(numJoints, numCoefficients int) int {
	return maxFixedSectionsSize + UUIDSize +
		MaxFaceTrackerInfoSize(numCoefficients) +
		MaxJointDataSize(numJoints) +
		MaxJointDefaultPoseFlagsSize(numJoints) +
		FarGrabJointsSize
}
