// Package quant implements the lossy primitive codecs of the avatar wire
// format: six-byte quaternions, signed fixed-point scalars and vectors,
// two-byte ratios, one-byte logarithmic gains, and LSB-first bit-vectors.
//
// All functions are pure and produce bit-identical output for identical
// inputs on every platform: quantization happens in integer space after a
// single float conversion, so no platform-dependent float behavior leaks
// onto the wire. Out-of-range inputs are clamped to the representable range
// rather than rejected; encoders that need headroom precompute a shared
// scale factor and divide before packing (see the joint stream's
// max-translation-dimension).
//
// Inverse operations round-trip within the documented tolerances:
// quaternions to roughly 0.01 rad, fixed-point values to one unit in the
// last place (2^-radix).
package quant

import (
	"math"

	"github.com/vastspace/avatarwire/endian"
	"github.com/vastspace/avatarwire/spatial"
)

const (
	// SixByteQuatSize is the wire size of a quantized orientation.
	SixByteQuatSize = 6
	// SixByteVec3Size is the wire size of a fixed-point vector.
	SixByteVec3Size = 6
	// TwoByteScalarSize is the wire size of a fixed-point scalar or ratio.
	TwoByteScalarSize = 2
	// GainSize is the wire size of a packed gain.
	GainSize = 1
)

// Smallest-three quaternion encoding. The dropped (largest magnitude)
// component is forced non-positive by negating the quaternion, the three
// kept components live in [-1/sqrt2, +1/sqrt2] and are quantized to 15
// unsigned bits. The two index bits of the dropped component ride in the
// top bits of the first two words. Words are big-endian within the group.
const (
	quatComponentBits = 15
	quatRange         = (1 << quatComponentBits) - 1
)

var quatMagnitude = float32(1.0 / math.Sqrt2)

var (
	wireOrder = endian.GetLittleEndianEngine()
	quatOrder = endian.GetBigEndianEngine()
)

// PackOrientationQuat writes the six-byte quantized form of q into buf and
// returns the number of bytes written. The input is normalized first; the
// encoded form is canonical, so equal rotations pack to equal bytes.
func PackOrientationQuat(buf []byte, q spatial.Quat) int {
	q = q.Normalize()

	largest := 0
	for i := 1; i < 4; i++ {
		if abs32(q.Component(i)) > abs32(q.Component(largest)) {
			largest = i
		}
	}

	// Keep the sign of the dropped component non-positive.
	if q.Component(largest) > 0 {
		q = q.Neg()
	}

	var words [3]uint16
	for i, j := 0, 0; i < 4; i++ {
		if i == largest {
			continue
		}
		// Map [-magnitude, +magnitude] onto [0, 1], then quantize.
		value := (q.Component(i) + quatMagnitude) / (2.0 * quatMagnitude)
		if value < 0 {
			value = 0
		} else if value > 1 {
			value = 1
		}
		words[j] = uint16(value * quatRange)
		j++
	}

	words[0] = (words[0] & 0x7fff) | (uint16(largest&0x01) << 15)
	words[1] = (words[1] & 0x7fff) | (uint16(largest&0x02) << 14)

	quatOrder.PutUint16(buf[0:2], words[0])
	quatOrder.PutUint16(buf[2:4], words[1])
	quatOrder.PutUint16(buf[4:6], words[2])

	return SixByteQuatSize
}

// UnpackOrientationQuat reads a six-byte quantized orientation from buf and
// returns the unit quaternion along with the number of bytes consumed.
func UnpackOrientationQuat(buf []byte) (spatial.Quat, int) {
	var words [3]uint16
	words[0] = quatOrder.Uint16(buf[0:2])
	words[1] = quatOrder.Uint16(buf[2:4])
	words[2] = quatOrder.Uint16(buf[4:6])

	largest := int((words[1]&0x8000)>>14 | (words[0]&0x8000)>>15)
	words[0] &= 0x7fff
	words[1] &= 0x7fff

	var components [3]float32
	sumOfSquares := float64(0)
	for i := 0; i < 3; i++ {
		components[i] = float32(words[i])/quatRange*(2.0*quatMagnitude) - quatMagnitude
		sumOfSquares += float64(components[i]) * float64(components[i])
	}

	missingSquared := 1.0 - sumOfSquares
	missing := float32(0)
	if missingSquared > 0 {
		missing = float32(-math.Sqrt(missingSquared))
	}

	var q spatial.Quat
	for i, j := 0, 0; i < 4; i++ {
		if i == largest {
			q.SetComponent(i, missing)
			continue
		}
		q.SetComponent(i, components[j])
		j++
	}

	return q, SixByteQuatSize
}

// PackFloatScalar writes scalar as a signed two-byte fixed-point value with
// the given radix (one unit equals 2^-radix) and returns the number of
// bytes written. Values outside the representable range are clamped.
func PackFloatScalar(buf []byte, scalar float32, radix uint) int {
	scaled := float64(scalar) * float64(int32(1)<<radix)
	if scaled > math.MaxInt16 {
		scaled = math.MaxInt16
	} else if scaled < math.MinInt16 {
		scaled = math.MinInt16
	}
	wireOrder.PutUint16(buf[0:2], uint16(int16(scaled)))

	return TwoByteScalarSize
}

// UnpackFloatScalar reads a signed two-byte fixed-point scalar with the
// given radix and returns the value and the number of bytes consumed.
func UnpackFloatScalar(buf []byte, radix uint) (float32, int) {
	raw := int16(wireOrder.Uint16(buf[0:2]))

	return float32(raw) / float32(int32(1)<<radix), TwoByteScalarSize
}

// PackFloatVec3 writes v component-wise as three signed two-byte fixed-point
// values and returns the number of bytes written.
func PackFloatVec3(buf []byte, v spatial.Vec3, radix uint) int {
	n := PackFloatScalar(buf[0:], v.X, radix)
	n += PackFloatScalar(buf[n:], v.Y, radix)
	n += PackFloatScalar(buf[n:], v.Z, radix)

	return n
}

// UnpackFloatVec3 reads three signed two-byte fixed-point components and
// returns the vector and the number of bytes consumed.
func UnpackFloatVec3(buf []byte, radix uint) (spatial.Vec3, int) {
	x, n := UnpackFloatScalar(buf[0:], radix)
	y, m := UnpackFloatScalar(buf[n:], radix)
	z, k := UnpackFloatScalar(buf[n+m:], radix)

	return spatial.Vec3{X: x, Y: y, Z: z}, n + m + k
}

// Ratio encoding splits the i16 range by sign: ratios below 10 use the
// positive half at 32767/10 units per 1.0, ratios in [10, 1000] use the
// negative half offset by 10.
const (
	smallRatioConversion = float64(math.MaxInt16) / 10.0
	largeRatioConversion = float64(math.MinInt16) / 1000.0
)

// PackFloatRatio writes ratio as a signed two-byte value split by sign and
// returns the number of bytes written. Ratios above 1000 are clamped.
func PackFloatRatio(buf []byte, ratio float32) int {
	var holder int16
	if ratio < 10.0 {
		holder = int16(math.Floor(float64(ratio) * smallRatioConversion))
	} else {
		if ratio > 1000.0 {
			ratio = 1000.0
		}
		holder = int16(math.Floor(float64(ratio-10.0) * largeRatioConversion))
	}
	wireOrder.PutUint16(buf[0:2], uint16(holder))

	return TwoByteScalarSize
}

// UnpackFloatRatio reads a two-byte ratio and returns the value and the
// number of bytes consumed.
func UnpackFloatRatio(buf []byte) (float32, int) {
	holder := int16(wireOrder.Uint16(buf[0:2]))
	if holder > 0 {
		return float32(float64(holder) / smallRatioConversion), TwoByteScalarSize
	}

	return float32(float64(holder)/largeRatioConversion + 10.0), TwoByteScalarSize
}

// Gain encoding covers [1e-6, 1e+3] (-120 dB to +60 dB) logarithmically in
// 255 steps; byte zero is reserved for exact silence.
const (
	logGainMin   = -13.815510557964274 // ln(1e-6)
	logGainRange = 20.72326583694641   // ln(1e+3) - ln(1e-6)
)

// PackFloatGain maps an audio gain to a single byte. Non-positive gains map
// to zero; everything else is clamped into the encodable range.
func PackFloatGain(gain float32) uint8 {
	if gain <= 0 {
		return 0
	}
	i := int(math.Round((math.Log(float64(gain)) - logGainMin) * (255.0 / logGainRange)))
	if i < 0 {
		i = 0
	} else if i > 255 {
		i = 255
	}

	return uint8(i)
}

// UnpackFloatGain returns the gain a packed byte decodes to. Byte zero
// decodes to exactly zero.
func UnpackFloatGain(b uint8) float32 {
	if b == 0 {
		return 0
	}

	return float32(math.Exp(float64(b)*(logGainRange/255.0) + logGainMin))
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}

	return f
}
