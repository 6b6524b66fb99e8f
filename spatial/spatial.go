// Package spatial provides the small float32 vector and quaternion value
// types shared by the avatar codec. The types carry no methods beyond what
// the codec and its send policy need; they are plain values and safe to
// copy.
package spatial

import "math"

// Vec3 is a 3-component float32 vector.
type Vec3 struct {
	X, Y, Z float32
}

// Quat is a float32 quaternion with scalar part W.
type Quat struct {
	X, Y, Z, W float32
}

// IdentityQuat returns the identity rotation.
func IdentityQuat() Quat {
	return Quat{W: 1}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Length returns the Euclidean length of v.
func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.X)*float64(v.X) + float64(v.Y)*float64(v.Y) + float64(v.Z)*float64(v.Z)))
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vec3) float32 {
	return a.Sub(b).Length()
}

// HasNaN reports whether any component of v is NaN.
func (v Vec3) HasNaN() bool {
	return IsNaN(v.X) || IsNaN(v.Y) || IsNaN(v.Z)
}

// Dot returns the 4-dimensional dot product of two quaternions. The absolute
// value of the dot product is the cosine of half the angle between the two
// rotations.
func Dot(a, b Quat) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z + a.W*b.W
}

// Normalize returns q scaled to unit length. A zero quaternion normalizes to
// the identity.
func (q Quat) Normalize() Quat {
	len2 := float64(q.X)*float64(q.X) + float64(q.Y)*float64(q.Y) +
		float64(q.Z)*float64(q.Z) + float64(q.W)*float64(q.W)
	if len2 == 0 {
		return IdentityQuat()
	}
	inv := float32(1.0 / math.Sqrt(len2))

	return Quat{q.X * inv, q.Y * inv, q.Z * inv, q.W * inv}
}

// Neg returns the component-wise negation of q, which represents the same
// rotation.
func (q Quat) Neg() Quat {
	return Quat{-q.X, -q.Y, -q.Z, -q.W}
}

// Component returns the i-th component of q in x, y, z, w order.
func (q Quat) Component(i int) float32 {
	switch i {
	case 0:
		return q.X
	case 1:
		return q.Y
	case 2:
		return q.Z
	default:
		return q.W
	}
}

// SetComponent sets the i-th component of q in x, y, z, w order.
func (q *Quat) SetComponent(i int, v float32) {
	switch i {
	case 0:
		q.X = v
	case 1:
		q.Y = v
	case 2:
		q.Z = v
	default:
		q.W = v
	}
}

// IsNaN reports whether f is NaN. It exists because math.IsNaN takes a
// float64 and the wire carries float32s.
func IsNaN(f float32) bool {
	return f != f
}
