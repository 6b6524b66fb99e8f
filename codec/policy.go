package codec

import (
	"github.com/vastspace/avatarwire/packet"
	"github.com/vastspace/avatarwire/spatial"
)

// Joint change thresholds. The rotation threshold is a quaternion dot
// product: a larger rotation produces a smaller dot, so a joint counts as
// changed when the absolute dot falls below the threshold.
const (
	MinRotationDot = 0.9999999
	MinTranslation = 0.0001

	rotationChange2D   = 0.99984770
	rotationChange4D   = 0.99939083
	rotationChange6D   = 0.99862953
	rotationChange15D  = 0.99144486
	rotationChange179D = -0.99984770
)

// Viewer distance bands for the rotation threshold, in meters.
const (
	distanceLevel1 = 12.5
	distanceLevel2 = 16.6
	distanceLevel3 = 25.0
	distanceLevel4 = 50.0
	distanceLevel5 = 200.0
)

// ChangeFlags reports which snapshot fields have changed since the last
// send. The caller derives these from its own modification timestamps; the
// policy only combines them with the detail level.
type ChangeFlags struct {
	Rotation        bool
	BoundingBox     bool
	Scale           bool
	LookAt          bool
	AudioLoudness   bool
	SensorToWorld   bool
	AdditionalFlags bool
	ParentInfo      bool
	Translation     bool
	FaceTracker     bool

	// InputDrivenBlendshapes marks live face tracking input; together with
	// the scripted-blendshapes state bit it gates the face tracker section.
	InputDrivenBlendshapes bool
}

// InitialFlags selects the starting section mask for a fresh snapshot
// (SendStatus.ItemFlags == 0). Global position is always included: it is
// the one field every consumer needs to place the avatar at all.
func InitialFlags(src Source, detail DetailLevel, ch ChangeFlags, dropFaceTracking bool) packet.HasFlags {
	if detail == NoData {
		return 0
	}

	flags := packet.HasAvatarGlobalPosition

	if detail == PALMinimum {
		return flags | packet.HasAudioLoudness
	}

	sendAll := detail == SendAllData

	if sendAll || ch.Rotation {
		flags |= packet.HasAvatarOrientation
	}
	if sendAll || ch.BoundingBox {
		flags |= packet.HasAvatarBoundingBox
	}
	if sendAll || ch.Scale {
		flags |= packet.HasAvatarScale
	}
	if sendAll || ch.LookAt {
		flags |= packet.HasLookAtPosition
	}
	if sendAll || ch.AudioLoudness {
		flags |= packet.HasAudioLoudness
	}
	if sendAll || ch.SensorToWorld {
		flags |= packet.HasSensorToWorldMatrix
	}
	if sendAll || ch.AdditionalFlags {
		flags |= packet.HasAdditionalFlags
	}
	if sendAll || ch.ParentInfo {
		flags |= packet.HasParentInfo
	}

	hasParent := src.ParentInfoOut().HasParent()
	if hasParent && (sendAll || ch.Translation || ch.ParentInfo) {
		flags |= packet.HasAvatarLocalPosition
	}

	leftValid, rightValid := src.HandControllerCachesValidOut()
	if leftValid || rightValid {
		flags |= packet.HasHandControllers
	}

	faceActive := src.AdditionalFlagsOut().HasScriptedBlendshapes || ch.InputDrivenBlendshapes
	if !dropFaceTracking && faceActive && (sendAll || ch.FaceTracker) {
		flags |= packet.HasFaceTrackerInfo
	}

	if detail != MinimumData {
		flags |= packet.HasJointData | packet.HasJointDefaultPoseFlags

		grabLeft, grabRight, grabMouse := src.FarGrabCachesValidOut()
		if grabLeft || grabRight || grabMouse {
			flags |= packet.HasGrabJoints
		}
	}

	return flags
}

// DistanceBasedMinRotationDot returns the joint rotation threshold for a
// viewer at viewerPosition watching an avatar at avatarPosition. Nearby
// viewers get the strictest threshold; beyond the last band nearly any
// rotation is elided.
func DistanceBasedMinRotationDot(viewerPosition, avatarPosition spatial.Vec3) float32 {
	distance := spatial.Distance(avatarPosition, viewerPosition)

	switch {
	case distance < distanceLevel1:
		return MinRotationDot
	case distance < distanceLevel2:
		return rotationChange2D
	case distance < distanceLevel3:
		return rotationChange4D
	case distance < distanceLevel4:
		return rotationChange6D
	case distance < distanceLevel5:
		return rotationChange15D
	default:
		return rotationChange179D
	}
}

// DistanceBasedMinTranslation returns the joint translation threshold for a
// viewer at viewerPosition. Currently constant; the parameter is the hook
// for making it distance-sensitive.
func DistanceBasedMinTranslation(viewerPosition spatial.Vec3) float32 {
	return MinTranslation
}

// CommitSent updates lastSent with the joint values a completed encode
// actually covered, growing the slice to the current joint count if needed.
// It returns the (possibly reallocated) slice. Joints at their default pose
// never overwrite the last-sent value. Under cullSmallChanges a rotation
// commits only when the absolute dot with the last-sent value is at or below
// MinRotationDot, and a translation only when it moved more than
// MinTranslation, so small changes the emit path elided stay pending.
func CommitSent(src Source, lastSent []packet.JointData, status packet.SendStatus, cullSmallChanges bool) []packet.JointData {
	jointDataSize := src.JointDataSizeOut()
	if jointDataSize > len(lastSent) {
		grown := make([]packet.JointData, jointDataSize)
		copy(grown, lastSent)
		lastSent = grown
	}

	for i := 0; i < status.RotationsSent && i < jointDataSize; i++ {
		data := src.JointDataOut(i)
		if lastSent[i].Rotation == data.Rotation {
			continue
		}
		if !cullSmallChanges || abs32(spatial.Dot(data.Rotation, lastSent[i].Rotation)) <= MinRotationDot {
			if !data.RotationIsDefaultPose {
				lastSent[i].Rotation = data.Rotation
			}
		}
	}

	for i := 0; i < status.TranslationsSent && i < jointDataSize; i++ {
		data := src.JointDataOut(i)
		if lastSent[i].Translation == data.Translation {
			continue
		}
		if !cullSmallChanges || spatial.Distance(data.Translation, lastSent[i].Translation) > MinTranslation {
			if !data.TranslationIsDefaultPose {
				lastSent[i].Translation = data.Translation
			}
		}
	}

	return lastSent
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}

	return f
}
