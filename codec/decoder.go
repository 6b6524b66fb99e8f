package codec

import (
	"github.com/vastspace/avatarwire/packet"
	"github.com/vastspace/avatarwire/quant"
	"github.com/vastspace/avatarwire/rate"
	"github.com/vastspace/avatarwire/spatial"
)

// Decoder parses avatar snapshot payloads into a Sink and keeps the inbound
// per-section meters plus the receive statistics.
//
// One decoder serves one remote avatar; the receive path owns it.
type Decoder struct {
	sink  Sink
	rates *rate.Rates

	bytesReceived rate.Average
}

// NewDecoder returns a decoder feeding sink, with a fresh inbound meter set.
func NewDecoder(sink Sink) *Decoder {
	return &Decoder{sink: sink, rates: rate.NewRates()}
}

// Rates exposes the decoder's inbound meter set.
func (d *Decoder) Rates() *rate.Rates {
	return d.rates
}

// AverageBytesReceivedPerSecond reports the smoothed inbound byte rate.
func (d *Decoder) AverageBytesReceivedPerSecond() float64 {
	return d.bytesReceived.SampleValuePerSecond()
}

// ReceiveRate reports the smoothed number of snapshots decoded per second.
func (d *Decoder) ReceiveRate() float64 {
	delta := d.bytesReceived.EventDelta()
	if delta == 0 {
		return 0
	}

	return 1.0 / delta
}

// Decode parses one snapshot payload, pushing each present section into the
// sink in wire order. It returns the number of bytes parsed. Malformed
// input (a flagged section the buffer cannot hold, or a NaN where a finite
// float is required) notifies the sink and returns len(buf) so the caller
// advances past the packet; sections decoded before the fault keep their
// effect.
func (d *Decoder) Decode(buf []byte) int {
	off := 0

	// readCheck guards every section read against the remaining buffer.
	readCheck := func(section string, size int) bool {
		if len(buf)-off < size {
			d.sink.OnPacketTooSmallError(section, size, len(buf)-off)
			return false
		}

		return true
	}

	if !readCheck("PacketStateFlags", packet.FlagsSize) {
		return len(buf)
	}
	flags := packet.HasFlags(wireOrder.Uint16(buf[off : off+2]))
	off += packet.FlagsSize

	if flags.Has(packet.HasAvatarGlobalPosition) {
		start := off
		if !readCheck("AvatarGlobalPosition", packet.GlobalPositionSize) {
			return len(buf)
		}
		pos, n := getVec3(buf[off:])
		if pos.HasNaN() {
			d.sink.OnParseError("discard avatar data packet: globalPosition is NaN")
			return len(buf)
		}
		d.sink.SetGlobalPositionIn(pos)
		off += n
		d.meter(&d.rates.GlobalPosition, off-start)
	}

	if flags.Has(packet.HasAvatarBoundingBox) {
		start := off
		if !readCheck("AvatarBoundingBox", packet.BoundingBoxSize) {
			return len(buf)
		}
		var box packet.BoundingBox
		var n int
		box.Dimensions, n = getVec3(buf[off:])
		off += n
		box.OriginOffset, n = getVec3(buf[off:])
		off += n
		d.sink.SetBoundingBoxIn(box)
		d.meter(&d.rates.BoundingBox, off-start)
	}

	if flags.Has(packet.HasAvatarOrientation) {
		start := off
		if !readCheck("AvatarOrientation", packet.OrientationSize) {
			return len(buf)
		}
		q, n := quant.UnpackOrientationQuat(buf[off:])
		d.sink.SetOrientationIn(q)
		off += n
		d.meter(&d.rates.Orientation, off-start)
	}

	if flags.Has(packet.HasAvatarScale) {
		start := off
		if !readCheck("AvatarScale", packet.ScaleSize) {
			return len(buf)
		}
		scale, n := quant.UnpackFloatRatio(buf[off:])
		if spatial.IsNaN(scale) {
			d.sink.OnParseError("discard avatar data packet: scale NaN")
			return len(buf)
		}
		d.sink.SetScaleIn(scale)
		off += n
		d.meter(&d.rates.Scale, off-start)
	}

	if flags.Has(packet.HasLookAtPosition) {
		start := off
		if !readCheck("LookAtPosition", packet.LookAtPositionSize) {
			return len(buf)
		}
		lookAt, n := getVec3(buf[off:])
		if lookAt.HasNaN() {
			d.sink.OnParseError("discard avatar data packet: lookAtPosition is NaN")
			return len(buf)
		}
		d.sink.SetLookAtPositionIn(lookAt)
		off += n
		d.meter(&d.rates.LookAtPosition, off-start)
	}

	if flags.Has(packet.HasAudioLoudness) {
		start := off
		if !readCheck("AudioLoudness", packet.AudioLoudnessSize) {
			return len(buf)
		}
		loudness := quant.UnpackFloatGain(buf[off]) * AudioLoudnessScale
		off++
		if spatial.IsNaN(loudness) {
			d.sink.OnParseError("discard avatar data packet: audioLoudness is NaN")
			return len(buf)
		}
		d.sink.SetAudioLoudnessIn(loudness)
		d.meter(&d.rates.AudioLoudness, off-start)
	}

	if flags.Has(packet.HasSensorToWorldMatrix) {
		start := off
		if !readCheck("SensorToWorldMatrix", packet.SensorToWorldSize) {
			return len(buf)
		}
		var m packet.SensorToWorld
		var n int
		m.Translation, n = getVec3(buf[off:])
		off += n
		m.Rotation, n = quant.UnpackOrientationQuat(buf[off:])
		off += n
		m.Scale, n = quant.UnpackFloatScalar(buf[off:], SensorToWorldScaleRadix)
		off += n
		d.sink.SetSensorToWorldMatrixIn(m)
		d.meter(&d.rates.SensorToWorld, off-start)
	}

	if flags.Has(packet.HasAdditionalFlags) {
		start := off
		if !readCheck("AdditionalFlags", packet.AdditionalFlagsSize) {
			return len(buf)
		}
		state, hasReferential := packet.UnpackAdditionalFlags(wireOrder.Uint16(buf[off : off+2]))
		off += 2
		d.sink.SetAdditionalFlagsIn(state, hasReferential)
		d.meter(&d.rates.AdditionalFlags, off-start)
	}

	if flags.Has(packet.HasParentInfo) {
		start := off
		if !readCheck("ParentInfo", packet.ParentInfoSize) {
			return len(buf)
		}
		var info packet.ParentInfo
		copy(info.ID[:], buf[off:off+packet.UUIDSize])
		off += packet.UUIDSize
		info.JointIndex = wireOrder.Uint16(buf[off : off+2])
		off += 2
		d.sink.SetParentInfoIn(info)
		d.meter(&d.rates.ParentInfo, off-start)
	}

	if flags.Has(packet.HasAvatarLocalPosition) {
		start := off
		if !readCheck("AvatarLocalPosition", packet.LocalPositionSize) {
			return len(buf)
		}
		local, n := getVec3(buf[off:])
		if local.HasNaN() {
			d.sink.OnParseError("discard avatar data packet: localPosition is NaN")
			return len(buf)
		}
		d.sink.SetLocalPositionIn(local)
		off += n
		d.meter(&d.rates.LocalPosition, off-start)
	}

	if flags.Has(packet.HasHandControllers) {
		start := off
		if !readCheck("HandControllers", packet.HandControllersSize) {
			return len(buf)
		}
		var hands packet.HandControllers
		var n int
		hands.Left, n = unpackHandController(buf[off:])
		off += n
		hands.Right, n = unpackHandController(buf[off:])
		off += n
		d.sink.SetHandControllersIn(hands)
		d.meter(&d.rates.HandControllers, off-start)
	} else {
		d.sink.InvalidateHandControllersIn()
	}

	if flags.Has(packet.HasFaceTrackerInfo) {
		start := off
		if !readCheck("FaceTrackerInfo", packet.FaceTrackerHeaderSize) {
			return len(buf)
		}
		var face packet.FaceTrackerInfo
		var n int
		face.LeftEyeBlink, n = getF32(buf[off:])
		off += n
		face.RightEyeBlink, n = getF32(buf[off:])
		off += n
		face.AverageLoudness, n = getF32(buf[off:])
		off += n
		face.BrowAudioLift, n = getF32(buf[off:])
		off += n
		count := int(buf[off])
		off++

		if !readCheck("FaceTrackerCoefficients", count*4) {
			return len(buf)
		}
		face.Blendshapes = make([]float32, count)
		for i := range face.Blendshapes {
			face.Blendshapes[i], n = getF32(buf[off:])
			off += n
		}
		d.sink.SetFaceTrackerInfoIn(face)
		d.meter(&d.rates.FaceTracker, off-start)
	}

	if flags.Has(packet.HasJointData) {
		var ok bool
		off, ok = d.decodeJointStream(buf, off)
		if !ok {
			return len(buf)
		}

		// Grab joints ride inside the joint section and are only meaningful
		// when joint data precedes them.
		if flags.Has(packet.HasGrabJoints) {
			start := off
			if !readCheck("FarGrabJoints", packet.FarGrabJointsSize) {
				return len(buf)
			}
			var grabs packet.FarGrabJoints
			for _, pose := range []*packet.FarGrabPose{&grabs.Left, &grabs.Right, &grabs.Mouse} {
				var n int
				pose.Position, n = getVec3(buf[off:])
				off += n
				pose.Rotation, n = getFarGrabQuat(buf[off:])
				off += n
			}
			d.sink.SetFarGrabJointsIn(grabs)
			d.meter(&d.rates.FarGrabJoints, off-start)
		}
	}

	if flags.Has(packet.HasJointDefaultPoseFlags) {
		start := off
		if !readCheck("JointDefaultPoseFlagsNumJoints", 1) {
			return len(buf)
		}
		numJoints := int(buf[off])
		off++

		bitVectorSize := quant.BitVectorSize(numJoints)
		d.sink.SetJointDataSizeIn(numJoints)

		if !readCheck("JointDefaultPoseFlagsRotationFlags", bitVectorSize) {
			return len(buf)
		}
		off += quant.ReadBitVector(buf[off:], numJoints, d.sink.SetJointDataRotationDefaultIn)

		if !readCheck("JointDefaultPoseFlagsTranslationFlags", bitVectorSize) {
			return len(buf)
		}
		off += quant.ReadBitVector(buf[off:], numJoints, d.sink.SetJointDataPositionDefaultIn)

		d.meter(&d.rates.JointDefaultPoseFlags, off-start)
	}

	d.bytesReceived.Update(off)
	d.meter(&d.rates.Buffer, off)

	return off
}

// decodeJointStream parses the joint section body. It returns the new
// offset and whether parsing may continue.
func (d *Decoder) decodeJointStream(buf []byte, off int) (int, bool) {
	start := off

	readCheck := func(section string, size int) bool {
		if len(buf)-off < size {
			d.sink.OnPacketTooSmallError(section, size, len(buf)-off)
			return false
		}

		return true
	}

	if !readCheck("NumJoints", 1) {
		return off, false
	}
	numJoints := int(buf[off])
	off++

	bitVectorSize := quant.BitVectorSize(numJoints)

	if !readCheck("JointRotationValidityBits", bitVectorSize) {
		return off, false
	}
	validRotations := make([]bool, numJoints)
	numValidRotations := 0
	off += quant.ReadBitVector(buf[off:], numJoints, func(i int, valid bool) {
		validRotations[i] = valid
		if valid {
			numValidRotations++
		}
	})

	d.sink.SetJointDataSizeIn(numJoints)

	if !readCheck("JointRotations", numValidRotations*quant.SixByteQuatSize) {
		return off, false
	}
	for i := 0; i < numJoints; i++ {
		if !validRotations[i] {
			continue
		}
		q, n := quant.UnpackOrientationQuat(buf[off:])
		off += n
		d.sink.SetJointDataRotationIn(i, q)
		d.sink.SetJointDataRotationDefaultIn(i, false)
	}

	if !readCheck("JointTranslationValidityBits", bitVectorSize) {
		return off, false
	}
	validTranslations := make([]bool, numJoints)
	numValidTranslations := 0
	off += quant.ReadBitVector(buf[off:], numJoints, func(i int, valid bool) {
		validTranslations[i] = valid
		if valid {
			numValidTranslations++
		}
	})

	if !readCheck("JointMaxTranslationDimension", 4) {
		return off, false
	}
	maxTranslationDimension, n := getF32(buf[off:])
	off += n

	if !readCheck("JointTranslation", numValidTranslations*quant.SixByteVec3Size) {
		return off, false
	}
	for i := 0; i < numJoints; i++ {
		if !validTranslations[i] {
			continue
		}
		translation, n := quant.UnpackFloatVec3(buf[off:], TranslationCompressionRadix)
		off += n
		d.sink.SetJointDataPositionIn(i, translation.Scale(maxTranslationDimension))
		d.sink.SetJointDataPositionDefaultIn(i, false)
	}

	d.meter(&d.rates.JointData, off-start)

	return off, true
}

func (d *Decoder) meter(section *rate.SectionRates, numBytes int) {
	section.Bytes.Increment(numBytes)
	section.Updates.Increment(1)
}

func unpackHandController(buf []byte) (packet.HandControllerVantage, int) {
	var v packet.HandControllerVantage
	var n int
	v.Orientation, n = quant.UnpackOrientationQuat(buf[0:])
	pos, m := quant.UnpackFloatVec3(buf[n:], HandControllerCompressionRadix)
	v.Position = pos

	return v, n + m
}
