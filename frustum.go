package gcull

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// Plane is a plane in implicit form dividing space into an inside and an
// outside half: a point p lies strictly inside when Dot(Normal, p)+Offset > 0.
// Culling math does not require Normal be of unit length, though distances
// returned by [Plane.Distance] are only euclidean if it is.
type Plane struct {
	Normal ms3.Vec
	Offset float32
}

// Distance evaluates the plane equation at pt, returning the signed distance
// to the plane scaled by the normal's length. Positive means inside.
func (p Plane) Distance(pt ms3.Vec) float32 {
	return ms3.Dot(p.Normal, pt) + p.Offset
}

// Unit returns the plane scaled such that its normal has unit length,
// preserving the plane's point set and orientation. Zero-normal planes are
// returned unchanged.
func (p Plane) Unit() Plane {
	norm := ms3.Norm(p.Normal)
	if norm == 0 {
		return p
	}
	p.Normal = ms3.Scale(1/norm, p.Normal)
	p.Offset /= norm
	return p
}

// Frustum is a convex viewing volume bounded by six planes whose insides
// face the volume. Plane order within the array carries no meaning for
// culling; [FrustumFromArray] fills it as left, right, bottom, top, near, far.
type Frustum [6]Plane

// NewFrustum builds a frustum from a dynamically sized plane slice. Any
// count other than exactly six fails with an [ErrInvalidInput] wrap. Use a
// [Frustum] literal directly when the count is known at compile time.
func NewFrustum(planes []Plane) (Frustum, error) {
	if len(planes) != 6 {
		return Frustum{}, fmt.Errorf("%w: frustum built from %d planes, need exactly 6", ErrInvalidInput, len(planes))
	}
	var f Frustum
	copy(f[:], planes)
	return f, nil
}

// ContainsPoint reports whether pt lies strictly inside all six planes.
func (f Frustum) ContainsPoint(pt ms3.Vec) bool {
	for i := range f {
		if f[i].Distance(pt) <= 0 {
			return false
		}
	}
	return true
}

// Unit returns the frustum with all six planes normalized per [Plane.Unit].
func (f Frustum) Unit() Frustum {
	for i := range f {
		f[i] = f[i].Unit()
	}
	return f
}

// BoxMargin returns the signed distance of bb's most favorable corner to the
// least favorable of the six planes. A non-negative margin means bb is at
// least partially inside f; a negative margin means one plane has all of bb
// strictly outside it so the box can be culled.
func (f Frustum) BoxMargin(bb ms3.Box) float32 {
	margin := math32.Inf(1)
	for i := range f {
		d := f[i].Distance(positiveVertex(f[i].Normal, bb))
		margin = math32.Min(margin, d)
	}
	return margin
}

// FrustumFromArray extracts the six planes of the view volume of a row-major
// 4x4 view-projection matrix in OpenGL clip conventions, normalized, ordered
// left, right, bottom, top, near, far. Planes face inward so the resulting
// frustum plugs directly into culling. The identity matrix yields the six
// faces of the [-1,1] clip cube.
func FrustumFromArray(vp [16]float32) Frustum {
	// Gribb-Hartmann: the i-th clip constraint is row 3 of vp plus/minus row i.
	f := Frustum{
		{Normal: ms3.Vec{X: vp[12] + vp[0], Y: vp[13] + vp[1], Z: vp[14] + vp[2]}, Offset: vp[15] + vp[3]},
		{Normal: ms3.Vec{X: vp[12] - vp[0], Y: vp[13] - vp[1], Z: vp[14] - vp[2]}, Offset: vp[15] - vp[3]},
		{Normal: ms3.Vec{X: vp[12] + vp[4], Y: vp[13] + vp[5], Z: vp[14] + vp[6]}, Offset: vp[15] + vp[7]},
		{Normal: ms3.Vec{X: vp[12] - vp[4], Y: vp[13] - vp[5], Z: vp[14] - vp[6]}, Offset: vp[15] - vp[7]},
		{Normal: ms3.Vec{X: vp[12] + vp[8], Y: vp[13] + vp[9], Z: vp[14] + vp[10]}, Offset: vp[15] + vp[11]},
		{Normal: ms3.Vec{X: vp[12] - vp[8], Y: vp[13] - vp[9], Z: vp[14] - vp[10]}, Offset: vp[15] - vp[11]},
	}
	return f.Unit()
}

// FrustumFromMatrix extracts the view volume of a view-projection matrix.
// See [FrustumFromArray].
func FrustumFromMatrix(vp ms3.Mat4) Frustum {
	return FrustumFromArray(vp.Array())
}
