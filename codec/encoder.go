package codec

import (
	"fmt"

	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/packet"
	"github.com/vastspace/avatarwire/quant"
	"github.com/vastspace/avatarwire/rate"
	"github.com/vastspace/avatarwire/spatial"
)

// Encoder serializes avatar snapshots from a Source. It carries no state of
// its own beyond the source and optional outbound meters; the continuation
// lives in the caller's SendStatus.
//
// Encoder is not safe for concurrent use; the outbound path owns it.
type Encoder struct {
	src   Source
	rates *rate.Rates
}

// NewEncoder returns an encoder reading from src. rates may be nil to skip
// outbound metering.
func NewEncoder(src Source, rates *rate.Rates) *Encoder {
	return &Encoder{src: src, rates: rates}
}

// EncodeOptions tunes a single Encode call.
type EncodeOptions struct {
	// DistanceAdjust enables the distance-based joint rotation threshold
	// (only effective with CullSmallData).
	DistanceAdjust bool
	// ViewerPosition is the viewer the distance adjustment measures from.
	ViewerPosition spatial.Vec3
	// SentJointsOut, when non-nil, receives the joint values this call put
	// on the wire. It is resized to the joint count.
	SentJointsOut *[]packet.JointData
	// MaxSize bounds the returned payload in bytes. Zero means unbounded.
	// Non-zero values below MinBulkPacketSize are rejected.
	MaxSize int
}

// Encode produces one snapshot payload.
//
// When status.ItemFlags is zero the call starts a fresh snapshot from
// initFlags (normally the result of InitialFlags). Otherwise it resumes the
// residual sections of a previous truncated call, forcing the joint stream
// back on when grab joints are still pending, since grab joints ride inside
// the joint section.
//
// On return, status.ItemFlags holds the sections that were wanted but did
// not fit, with the joint-data bit also set while the joint stream is
// mid-array; the union of payloads across calls until status.ItemFlags
// reaches zero covers every originally wanted section.
func (e *Encoder) Encode(initFlags packet.HasFlags, detail DetailLevel, lastSent []packet.JointData,
	status *packet.SendStatus, opts EncodeOptions) ([]byte, error) {
	if opts.MaxSize != 0 && opts.MaxSize < packet.MinBulkPacketSize {
		return nil, fmt.Errorf("encode: max size %d below minimum bulk packet size %d",
			opts.MaxSize, packet.MinBulkPacketSize)
	}

	// No-data snapshots carry only the optional session id and an empty mask.
	if detail == NoData {
		status.ItemFlags = 0
		out := make([]byte, 0, packet.UUIDSize+packet.FlagsSize)
		if status.SendUUID {
			id := e.src.SessionUUIDOut()
			out = append(out, id[:]...)
			status.SendUUID = false
		}
		out = append(out, 0, 0)

		return out, nil
	}

	cullSmallChanges := detail == CullSmallData
	sendAll := detail == SendAllData

	var wanted, included, extraReturned packet.HasFlags

	if status.ItemFlags == 0 { // new snapshot
		wanted = initFlags
		status.ItemFlags = wanted
		status.RotationsSent = 0
		status.TranslationsSent = 0
	} else { // continuing a truncated snapshot
		wanted = status.ItemFlags
		if wanted.Has(packet.HasGrabJoints) {
			wanted |= packet.HasJointData
		}
	}

	face := e.src.FaceTrackerInfoOut()
	if len(face.Blendshapes) > packet.MaxBlendshapeCoefficients {
		return nil, fmt.Errorf("encode: %d blendshape coefficients: %w",
			len(face.Blendshapes), errs.ErrTooManyBlendshapes)
	}

	jointDataSize := e.src.JointDataSizeOut()
	if jointDataSize > packet.MaxJointCount {
		return nil, fmt.Errorf("encode: %d joints: %w", jointDataSize, errs.ErrTooManyJoints)
	}

	bufSize := packet.MaxSnapshotSize(jointDataSize, len(face.Blendshapes))
	buf := make([]byte, bufSize)

	limit := bufSize
	if opts.MaxSize != 0 && opts.MaxSize < limit {
		limit = opts.MaxSize
	}

	off := 0

	if status.SendUUID {
		id := e.src.SessionUUIDOut()
		off += copy(buf[off:], id[:])
		status.SendUUID = false
	}

	flagsOff := off
	off += packet.FlagsSize

	// tryInclude mirrors the wanted-and-fits test of every section: the bit
	// must be wanted and the remaining budget must hold at least space
	// bytes; succeeding marks the section included.
	tryInclude := func(flag packet.HasFlags, space int) bool {
		if !wanted.Has(flag) || limit-off < space {
			return false
		}
		included |= flag

		return true
	}

	meter := func(section *rate.SectionRates, start int) {
		section.Bytes.Increment(off - start)
	}

	meters := e.rates
	if meters == nil {
		meters = blackholeRates
	}

	if tryInclude(packet.HasAvatarGlobalPosition, packet.GlobalPositionSize) {
		start := off
		off += putVec3(buf[off:], e.src.GlobalPositionOut())
		meter(&meters.GlobalPosition, start)
	}

	if tryInclude(packet.HasAvatarBoundingBox, packet.BoundingBoxSize) {
		start := off
		box := e.src.BoundingBoxOut()
		off += putVec3(buf[off:], box.Dimensions)
		off += putVec3(buf[off:], box.OriginOffset)
		meter(&meters.BoundingBox, start)
	}

	if tryInclude(packet.HasAvatarOrientation, packet.OrientationSize) {
		start := off
		off += quant.PackOrientationQuat(buf[off:], e.src.OrientationOut())
		meter(&meters.Orientation, start)
	}

	if tryInclude(packet.HasAvatarScale, packet.ScaleSize) {
		start := off
		off += quant.PackFloatRatio(buf[off:], e.src.ScaleOut())
		meter(&meters.Scale, start)
	}

	if tryInclude(packet.HasLookAtPosition, packet.LookAtPositionSize) {
		start := off
		off += putVec3(buf[off:], e.src.LookAtPositionOut())
		meter(&meters.LookAtPosition, start)
	}

	if tryInclude(packet.HasAudioLoudness, packet.AudioLoudnessSize) {
		start := off
		buf[off] = quant.PackFloatGain(e.src.AudioLoudnessOut() / AudioLoudnessScale)
		off++
		meter(&meters.AudioLoudness, start)
	}

	if tryInclude(packet.HasSensorToWorldMatrix, packet.SensorToWorldSize) {
		start := off
		m := e.src.SensorToWorldMatrixOut()
		off += putVec3(buf[off:], m.Translation)
		off += quant.PackOrientationQuat(buf[off:], m.Rotation)
		off += quant.PackFloatScalar(buf[off:], m.Scale, SensorToWorldScaleRadix)
		meter(&meters.SensorToWorld, start)
	}

	parentInfo := e.src.ParentInfoOut()

	if tryInclude(packet.HasAdditionalFlags, packet.AdditionalFlagsSize) {
		start := off
		flags := packet.PackAdditionalFlags(e.src.AdditionalFlagsOut(), parentInfo.HasParent())
		wireOrder.PutUint16(buf[off:off+2], flags)
		off += 2
		meter(&meters.AdditionalFlags, start)
	}

	if tryInclude(packet.HasParentInfo, packet.ParentInfoSize) {
		start := off
		off += copy(buf[off:], parentInfo.ID[:])
		wireOrder.PutUint16(buf[off:off+2], parentInfo.JointIndex)
		off += 2
		meter(&meters.ParentInfo, start)
	}

	if tryInclude(packet.HasAvatarLocalPosition, packet.LocalPositionSize) {
		start := off
		off += putVec3(buf[off:], e.src.LocalPositionOut())
		meter(&meters.LocalPosition, start)
	}

	if tryInclude(packet.HasHandControllers, packet.HandControllersSize) {
		start := off
		hands := e.src.HandControllersOut()
		off += quant.PackOrientationQuat(buf[off:], hands.Left.Orientation)
		off += quant.PackFloatVec3(buf[off:], hands.Left.Position, HandControllerCompressionRadix)
		off += quant.PackOrientationQuat(buf[off:], hands.Right.Orientation)
		off += quant.PackFloatVec3(buf[off:], hands.Right.Position, HandControllerCompressionRadix)
		meter(&meters.HandControllers, start)
	}

	if tryInclude(packet.HasFaceTrackerInfo, packet.MaxFaceTrackerInfoSize(len(face.Blendshapes))) {
		start := off
		off += putF32(buf[off:], face.LeftEyeBlink)
		off += putF32(buf[off:], face.RightEyeBlink)
		off += putF32(buf[off:], face.AverageLoudness)
		off += putF32(buf[off:], face.BrowAudioLift)
		buf[off] = byte(len(face.Blendshapes))
		off++
		for _, coeff := range face.Blendshapes {
			off += putF32(buf[off:], coeff)
		}
		meter(&meters.FaceTracker, start)
	}

	// The joint count applies to both the joint stream and the default-pose
	// flags; it is zero when neither section is wanted.
	numJoints := 0
	if wanted&(packet.HasJointData|packet.HasJointDefaultPoseFlags) != 0 {
		numJoints = jointDataSize
	}

	if tryInclude(packet.HasJointData, packet.MinJointDataSize(numJoints)) {
		start := off
		off = e.encodeJointStream(buf, off, limit, numJoints, lastSent, status, opts, sendAll, cullSmallChanges)

		if tryInclude(packet.HasGrabJoints, packet.FarGrabJointsSize) {
			grabStart := off
			grabs := e.src.FarGrabJointsOut()
			for _, pose := range []packet.FarGrabPose{grabs.Left, grabs.Right, grabs.Mouse} {
				off += putVec3(buf[off:], pose.Position)
				off += putFarGrabQuat(buf[off:], pose.Rotation)
			}
			meter(&meters.FarGrabJoints, grabStart)
		}

		if status.RotationsSent != numJoints || status.TranslationsSent != numJoints {
			extraReturned |= packet.HasJointData
		}
		meter(&meters.JointData, start)
	}

	if tryInclude(packet.HasJointDefaultPoseFlags, packet.MaxJointDefaultPoseFlagsSize(numJoints)) {
		start := off
		buf[off] = byte(numJoints)
		off++
		off += quant.WriteBitVector(buf[off:], numJoints, func(i int) bool {
			return e.src.JointDataOut(i).RotationIsDefaultPose
		})
		off += quant.WriteBitVector(buf[off:], numJoints, func(i int) bool {
			return e.src.JointDataOut(i).TranslationIsDefaultPose
		})
		meter(&meters.JointDefaultPoseFlags, start)
	}

	wireOrder.PutUint16(buf[flagsOff:flagsOff+2], uint16(included))

	// Hand the dropped sections back to the caller.
	status.ItemFlags = (wanted &^ included) | extraReturned

	if off > bufSize {
		// Writes past bufSize would already have panicked on the slice
		// bounds; this guards the accounting itself.
		panic(fmt.Sprintf("encode: wrote %d bytes into a %d byte snapshot buffer", off, bufSize))
	}

	return buf[:off], nil
}

// encodeJointStream writes the joint section body: count, rotation validity
// and rotations, translation validity, shared translation scale, and
// translations. It resumes from status and records how far it got.
func (e *Encoder) encodeJointStream(buf []byte, off, limit, numJoints int, lastSent []packet.JointData,
	status *packet.SendStatus, opts EncodeOptions, sendAll, cullSmallChanges bool) int {
	jointBitVectorSize := quant.BitVectorSize(numJoints)

	// Minimum room to make progress on one more joint: a packed rotation
	// plus the translation validity vector and scale that must follow.
	minSizeForJoint := quant.SixByteQuatSize + jointBitVectorSize + 4

	// The shared translation scale is computed before any translation is
	// written: it must cover everything that might go out this frame, no
	// matter where encoding truncates.
	maxTranslationDimension := float32(0.001)
	for i := status.TranslationsSent; i < numJoints; i++ {
		data := e.src.JointDataOut(i)
		if !data.TranslationIsDefaultPose {
			maxTranslationDimension = max32(maxTranslationDimension, abs32(data.Translation.X))
			maxTranslationDimension = max32(maxTranslationDimension, abs32(data.Translation.Y))
			maxTranslationDimension = max32(maxTranslationDimension, abs32(data.Translation.Z))
		}
	}

	buf[off] = byte(numJoints)
	off++

	var sentJoints []packet.JointData
	if opts.SentJointsOut != nil {
		if cap(*opts.SentJointsOut) < numJoints {
			*opts.SentJointsOut = make([]packet.JointData, numJoints)
		}
		*opts.SentJointsOut = (*opts.SentJointsOut)[:numJoints]
		sentJoints = *opts.SentJointsOut
	}

	minRotationDot := float32(MinRotationDot)
	if opts.DistanceAdjust && cullSmallChanges {
		minRotationDot = DistanceBasedMinRotationDot(opts.ViewerPosition, e.src.GlobalPositionOut())
	}

	validityOff := off
	clearBytes(buf[off : off+jointBitVectorSize])
	off += jointBitVectorSize

	i := status.RotationsSent
	for ; i < numJoints; i++ {
		if limit-off < minSizeForJoint {
			break
		}
		data := e.src.JointDataOut(i)
		last := lastSentAt(lastSent, i)

		if !data.RotationIsDefaultPose {
			// A larger rotation has the smaller dot product.
			if sendAll || last.RotationIsDefaultPose ||
				(!cullSmallChanges && last.Rotation != data.Rotation) ||
				(cullSmallChanges && abs32(spatial.Dot(last.Rotation, data.Rotation)) < minRotationDot) {
				buf[validityOff+i/8] |= 1 << (i % 8)
				off += quant.PackOrientationQuat(buf[off:], data.Rotation)
				if sentJoints != nil {
					sentJoints[i].Rotation = data.Rotation
				}
			}
		}
		if sentJoints != nil {
			sentJoints[i].RotationIsDefaultPose = data.RotationIsDefaultPose
		}
	}
	status.RotationsSent = i

	validityOff = off
	clearBytes(buf[off : off+jointBitVectorSize])
	off += jointBitVectorSize

	off += putF32(buf[off:], maxTranslationDimension)

	minTranslation := float32(MinTranslation)
	if opts.DistanceAdjust && cullSmallChanges {
		minTranslation = DistanceBasedMinTranslation(opts.ViewerPosition)
	}

	invScale := 1.0 / maxTranslationDimension

	i = status.TranslationsSent
	for ; i < numJoints; i++ {
		// minSizeForJoint is conservative here: no validity vector or scale
		// follows the translations.
		if limit-off < minSizeForJoint {
			break
		}
		data := e.src.JointDataOut(i)
		last := lastSentAt(lastSent, i)

		if !data.TranslationIsDefaultPose {
			if sendAll || last.TranslationIsDefaultPose ||
				(!cullSmallChanges && last.Translation != data.Translation) ||
				(cullSmallChanges && spatial.Distance(data.Translation, last.Translation) > minTranslation) {
				buf[validityOff+i/8] |= 1 << (i % 8)
				off += quant.PackFloatVec3(buf[off:], data.Translation.Scale(invScale), TranslationCompressionRadix)
				if sentJoints != nil {
					sentJoints[i].Translation = data.Translation
				}
			}
		}
		if sentJoints != nil {
			sentJoints[i].TranslationIsDefaultPose = data.TranslationIsDefaultPose
		}
	}
	status.TranslationsSent = i

	return off
}

// blackholeRates soaks up meter increments when the encoder was built
// without outbound metering, keeping the hot path branch-light.
var blackholeRates = rate.NewRates()

func lastSentAt(lastSent []packet.JointData, i int) packet.JointData {
	if i < len(lastSent) {
		return lastSent[i]
	}

	return packet.JointData{}
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}

	return b
}
