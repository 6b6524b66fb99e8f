package traits

import (
	"fmt"

	"github.com/vastspace/avatarwire/endian"
	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/quant"
	"github.com/vastspace/avatarwire/spatial"
)

var wireOrder = endian.GetLittleEndianEngine()

// BoneType classifies a skeleton joint. Root bones have no parent; their
// parent index decodes to -1.
type BoneType uint8

const (
	SkeletonRoot BoneType = iota
	SkeletonChild
	NonSkeletonRoot
	NonSkeletonChild
)

func (b BoneType) isRoot() bool {
	return b == SkeletonRoot || b == NonSkeletonRoot
}

// SkeletonJoint is one entry of the skeleton definition trait.
type SkeletonJoint struct {
	BoneType           BoneType
	ParentIndex        int // -1 for root bones
	DefaultTranslation spatial.Vec3
	DefaultRotation    spatial.Quat
	DefaultScale       float32
	Name               string
}

// Skeleton wire layout: an 11-byte field-packed header, one 21-byte record
// per joint, then the UTF-8 string table holding every joint name
// back-to-back in joint order.
const (
	skeletonHeaderSize = 11
	skeletonJointSize  = 21

	// skeletonDimensionFloor keeps the shared scale divisors away from
	// zero for skeletons whose translations or scales are all zero.
	skeletonDimensionFloor = 0.001
)

// PackSkeleton serializes the skeleton definition. Joint default
// translations and scales are normalized by shared per-skeleton maxima so
// the fixed-point encodings stay in range regardless of rig size.
func PackSkeleton(joints []SkeletonJoint) ([]byte, error) {
	if len(joints) > 255 {
		return nil, fmt.Errorf("pack skeleton: %d joints: %w", len(joints), errs.ErrTooManyJoints)
	}

	maxScaleDimension := float32(skeletonDimensionFloor)
	maxTranslationDimension := float32(skeletonDimensionFloor)
	stringTableLength := 0
	for i := range joints {
		name := joints[i].Name
		if len(name) > 255 {
			return nil, fmt.Errorf("pack skeleton: joint %d name %d bytes: %w", i, len(name), errs.ErrInvalidStringTable)
		}
		stringTableLength += len(name)

		t := joints[i].DefaultTranslation
		maxTranslationDimension = maxf(maxTranslationDimension, absf(t.X), absf(t.Y), absf(t.Z))
		maxScaleDimension = maxf(maxScaleDimension, joints[i].DefaultScale)
	}
	if stringTableLength > 0xffff {
		return nil, fmt.Errorf("pack skeleton: string table %d bytes: %w", stringTableLength, errs.ErrInvalidStringTable)
	}

	buf := make([]byte, 0, skeletonHeaderSize+len(joints)*skeletonJointSize+stringTableLength)

	buf = wireOrder.AppendUint32(buf, f32bits(maxScaleDimension))
	buf = wireOrder.AppendUint32(buf, f32bits(maxTranslationDimension))
	buf = append(buf, byte(len(joints)))
	buf = wireOrder.AppendUint16(buf, uint16(stringTableLength))

	var scratch [quant.SixByteQuatSize]byte
	stringStart := 0
	for i := range joints {
		j := &joints[i]

		buf = append(buf, byte(j.BoneType))
		buf = append(buf, byte(j.ParentIndex))

		quant.PackFloatVec3(scratch[:], j.DefaultTranslation.Scale(1/maxTranslationDimension), translationRadix)
		buf = append(buf, scratch[:quant.SixByteVec3Size]...)

		quant.PackOrientationQuat(scratch[:], j.DefaultRotation)
		buf = append(buf, scratch[:quant.SixByteQuatSize]...)

		quant.PackFloatRatio(scratch[:], j.DefaultScale/maxScaleDimension)
		buf = append(buf, scratch[:quant.TwoByteScalarSize]...)

		buf = wireOrder.AppendUint16(buf, uint16(i))
		buf = wireOrder.AppendUint16(buf, uint16(stringStart))
		buf = append(buf, byte(len(j.Name)))

		stringStart += len(j.Name)
	}

	for i := range joints {
		buf = append(buf, joints[i].Name...)
	}

	return buf, nil
}

// translationRadix matches the joint stream's translation fixed point.
const translationRadix = 14

// UnpackSkeleton parses a skeleton definition trait payload.
func UnpackSkeleton(data []byte) ([]SkeletonJoint, error) {
	if len(data) < skeletonHeaderSize {
		return nil, fmt.Errorf("unpack skeleton: header: %w", errs.ErrInvalidTraitPayload)
	}

	maxScaleDimension := f32from(wireOrder.Uint32(data[0:4]))
	maxTranslationDimension := f32from(wireOrder.Uint32(data[4:8]))
	numJoints := int(data[8])
	stringTableLength := int(wireOrder.Uint16(data[9:11]))

	need := skeletonHeaderSize + numJoints*skeletonJointSize + stringTableLength
	if len(data) < need {
		return nil, fmt.Errorf("unpack skeleton: need %d bytes, have %d: %w", need, len(data), errs.ErrInvalidTraitPayload)
	}

	table := data[skeletonHeaderSize+numJoints*skeletonJointSize : need]

	joints := make([]SkeletonJoint, numJoints)
	off := skeletonHeaderSize
	for i := range joints {
		j := &joints[i]

		j.BoneType = BoneType(data[off])
		off++
		parent := int(data[off])
		off++
		if j.BoneType.isRoot() {
			parent = -1
		}
		j.ParentIndex = parent

		translation, n := quant.UnpackFloatVec3(data[off:], translationRadix)
		off += n
		j.DefaultTranslation = translation.Scale(maxTranslationDimension)

		j.DefaultRotation, n = quant.UnpackOrientationQuat(data[off:])
		off += n

		scale, n := quant.UnpackFloatRatio(data[off:])
		off += n
		j.DefaultScale = scale * maxScaleDimension

		off += 2 // joint index mirrors the slice position

		stringStart := int(wireOrder.Uint16(data[off : off+2]))
		off += 2
		stringLength := int(data[off])
		off++

		if stringStart+stringLength > len(table) {
			return nil, fmt.Errorf("unpack skeleton: joint %d name [%d:%d): %w",
				i, stringStart, stringStart+stringLength, errs.ErrInvalidStringTable)
		}
		j.Name = string(table[stringStart : stringStart+stringLength])
	}

	return joints, nil
}

func absf(f float32) float32 {
	if f < 0 {
		return -f
	}

	return f
}

func maxf(vals ...float32) float32 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}

	return m
}
