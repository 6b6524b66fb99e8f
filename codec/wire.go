package codec

import (
	"math"

	"github.com/vastspace/avatarwire/endian"
	"github.com/vastspace/avatarwire/spatial"
)

var wireOrder = endian.GetLittleEndianEngine()

func putF32(buf []byte, v float32) int {
	wireOrder.PutUint32(buf[0:4], math.Float32bits(v))
	return 4
}

func getF32(buf []byte) (float32, int) {
	return math.Float32frombits(wireOrder.Uint32(buf[0:4])), 4
}

func putVec3(buf []byte, v spatial.Vec3) int {
	n := putF32(buf[0:], v.X)
	n += putF32(buf[n:], v.Y)
	n += putF32(buf[n:], v.Z)

	return n
}

func getVec3(buf []byte) (spatial.Vec3, int) {
	x, n := getF32(buf[0:])
	y, m := getF32(buf[n:])
	z, k := getF32(buf[n+m:])

	return spatial.Vec3{X: x, Y: y, Z: z}, n + m + k
}

// Far-grab rotations travel w, x, y, z.
func putFarGrabQuat(buf []byte, q spatial.Quat) int {
	n := putF32(buf[0:], q.W)
	n += putF32(buf[n:], q.X)
	n += putF32(buf[n:], q.Y)
	n += putF32(buf[n:], q.Z)

	return n
}

func getFarGrabQuat(buf []byte) (spatial.Quat, int) {
	w, n := getF32(buf[0:])
	x, m := getF32(buf[n:])
	n += m
	y, m := getF32(buf[n:])
	n += m
	z, m := getF32(buf[n:])

	return spatial.Quat{X: x, Y: y, Z: z, W: w}, n + m
}
