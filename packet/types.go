package packet

import (
	"github.com/google/uuid"

	"github.com/vastspace/avatarwire/spatial"
)

// BoundingBox carries the avatar's global bounding box dimensions and the
// offset of its origin from the avatar position.
type BoundingBox struct {
	Dimensions   spatial.Vec3
	OriginOffset spatial.Vec3
}

// SensorToWorld is the decomposed sensor-to-world affine: f32 translation,
// quantized rotation, and a fixed-point uniform scale at radix 10.
type SensorToWorld struct {
	Translation spatial.Vec3
	Rotation    spatial.Quat
	Scale       float32
}

// ParentInfo references the entity an avatar is parented to.
type ParentInfo struct {
	ID         uuid.UUID
	JointIndex uint16
}

// HasParent reports whether the parent id is non-null.
func (p ParentInfo) HasParent() bool {
	return p.ID != uuid.Nil
}

// HandControllerVantage is one hand controller pose: quantized orientation
// plus a fixed-point position at radix 12.
type HandControllerVantage struct {
	Orientation spatial.Quat
	Position    spatial.Vec3
}

// HandControllers carries both controller vantages.
type HandControllers struct {
	Left  HandControllerVantage
	Right HandControllerVantage
}

// FaceTrackerInfo is the blendshape header plus coefficient array. The
// coefficient count must fit in one byte.
type FaceTrackerInfo struct {
	LeftEyeBlink    float32
	RightEyeBlink   float32
	AverageLoudness float32
	BrowAudioLift   float32
	Blendshapes     []float32
}

// FarGrabPose is one unquantized far-grab pose. The rotation is stored
// w, x, y, z on the wire; positions may range beyond the fixed-point
// envelope, which is why this section skips quantization.
type FarGrabPose struct {
	Position spatial.Vec3
	Rotation spatial.Quat
}

// FarGrabJoints carries the three far-grab poses.
type FarGrabJoints struct {
	Left  FarGrabPose
	Right FarGrabPose
	Mouse FarGrabPose
}

// JointData is one joint's pose relative to the skeleton default. A joint
// at its default pose is carried as a single bit instead of a value.
type JointData struct {
	Rotation                 spatial.Quat
	Translation              spatial.Vec3
	RotationIsDefaultPose    bool
	TranslationIsDefaultPose bool
}

// SendStatus is the explicit continuation carried across Encode calls. A
// zero ItemFlags value means the next call starts a fresh snapshot;
// otherwise the call resumes the residual sections, continuing the joint
// stream from RotationsSent / TranslationsSent.
type SendStatus struct {
	ItemFlags        HasFlags
	SendUUID         bool
	RotationsSent    int
	TranslationsSent int
}
