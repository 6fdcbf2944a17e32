package gcullaux

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// Perspective returns the row-major perspective projection matrix with a
// vertical field of view fovY in radians following OpenGL clip conventions.
// aspect is the viewport width to height ratio. Requires 0 < near < far.
func Perspective(fovY, aspect, near, far float32) (proj [16]float32) {
	f := 1 / math32.Tan(fovY/2)
	proj[0] = f / aspect
	proj[5] = f
	proj[10] = (far + near) / (near - far)
	proj[11] = 2 * far * near / (near - far)
	proj[14] = -1
	return proj
}

// LookAt returns the row-major view matrix of a camera placed at eye looking
// towards target. up orients the camera roll and must not be parallel to the
// view direction.
func LookAt(eye, target, up ms3.Vec) (view [16]float32) {
	fwd := ms3.Unit(ms3.Sub(target, eye))
	right := ms3.Unit(ms3.Cross(fwd, up))
	realUp := ms3.Cross(right, fwd)
	view[0], view[1], view[2], view[3] = right.X, right.Y, right.Z, -ms3.Dot(right, eye)
	view[4], view[5], view[6], view[7] = realUp.X, realUp.Y, realUp.Z, -ms3.Dot(realUp, eye)
	view[8], view[9], view[10], view[11] = -fwd.X, -fwd.Y, -fwd.Z, ms3.Dot(fwd, eye)
	view[15] = 1
	return view
}

// MulMat4 returns the row-major matrix product a*b. Multiply the projection
// by the view matrix to obtain a culling view-projection matrix.
func MulMat4(a, b [16]float32) (m [16]float32) {
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[4*r+k] * b[4*k+c]
			}
			m[4*r+c] = sum
		}
	}
	return m
}
