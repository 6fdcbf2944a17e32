package gcullaux

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/gcull"
	"github.com/soypat/geometry/ms3"
)

func TestBinPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	points := randomPoints(rng, 512)
	tree, err := gcull.NewOctree(points, 2)
	if err != nil {
		t.Fatal(err)
	}
	err = BinPoints(tree, points)
	if err != nil {
		t.Fatal(err)
	}
	first, n := tree.Leaves()
	seen := make(map[int32]int)
	for k := 0; k < n; k++ {
		id := first + gcull.NodeID(k)
		cell := tree.NodeBox(id)
		for _, idx := range tree.Objects(id) {
			seen[idx]++
			p := points[idx]
			if !containsPoint(cell, p) {
				t.Errorf("point %d=%+v binned outside leaf box %+v", idx, p, cell)
			}
		}
	}
	if len(seen) != len(points) {
		t.Errorf("binned %d distinct points, want %d", len(seen), len(points))
	}
	for idx, count := range seen {
		if count != 1 {
			t.Errorf("point %d binned %d times", idx, count)
		}
	}
}

func TestBinPointsRebin(t *testing.T) {
	points := []ms3.Vec{
		{X: 0.25, Y: 0.25, Z: 0.25},
		{X: 0.75, Y: 0.75, Z: 0.75},
	}
	tree, err := gcull.NewOctree(points, 1)
	if err != nil {
		t.Fatal(err)
	}
	err = BinPoints(tree, points)
	if err != nil {
		t.Fatal(err)
	}
	first, n := tree.Leaves()
	if got := tree.Objects(first + 7); len(got) != 1 || got[0] != 1 {
		t.Fatalf("high octant leaf holds %v, want [1]", got)
	}
	// Rebinding replaces every leaf attachment: leaves the shrunk point set
	// no longer reaches must not keep indices into the old slice.
	err = BinPoints(tree, points[:1])
	if err != nil {
		t.Fatal(err)
	}
	if got := tree.Objects(first + 7); got != nil {
		t.Errorf("high octant leaf keeps stale objects %v after rebinding", got)
	}
	if got := tree.Objects(first); len(got) != 1 || got[0] != 0 {
		t.Errorf("low octant leaf holds %v after rebinding, want [0]", got)
	}
	total := 0
	for k := 0; k < n; k++ {
		total += len(tree.Objects(first + gcull.NodeID(k)))
	}
	if total != 1 {
		t.Errorf("leaves hold %d object references after rebinding, want 1", total)
	}
}

func TestBinPointsInvalid(t *testing.T) {
	points := []ms3.Vec{{}, {X: 1, Y: 1, Z: 1}}
	err := BinPoints(nil, points)
	if !errors.Is(err, gcull.ErrInvalidInput) {
		t.Error("expected invalid input error binning into nil octree, got", err)
	}
	tree, err := gcull.NewOctree(points, 1)
	if err != nil {
		t.Fatal(err)
	}
	err = BinPoints(tree, nil)
	if !errors.Is(err, gcull.ErrInvalidInput) {
		t.Error("expected invalid input error binning no points, got", err)
	}
}

func TestLeafContainingBoundary(t *testing.T) {
	points := []ms3.Vec{{}, {X: 1, Y: 1, Z: 1}}
	tree, err := gcull.NewOctree(points, 1)
	if err != nil {
		t.Fatal(err)
	}
	first, _ := tree.Leaves()
	cases := []struct {
		p    ms3.Vec
		leaf gcull.NodeID
	}{
		{p: ms3.Vec{}, leaf: first},
		{p: ms3.Vec{X: 1, Y: 1, Z: 1}, leaf: first + 7},
		// Partition boundary points go to the greater octant.
		{p: ms3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, leaf: first + 7},
		{p: ms3.Vec{X: 0.75, Y: 0.25, Z: 0.25}, leaf: first + 1},
		{p: ms3.Vec{X: 0.25, Y: 0.75, Z: 0.25}, leaf: first + 2},
		{p: ms3.Vec{X: 0.25, Y: 0.25, Z: 0.75}, leaf: first + 4},
	}
	for _, tc := range cases {
		if got := LeafContaining(tree, tc.p); got != tc.leaf {
			t.Errorf("point %+v binned to leaf %d, want %d", tc.p, got, tc.leaf)
		}
	}
}

func TestCameraFrustum(t *testing.T) {
	// Camera 5 units up the z axis staring down at the origin with a square
	// 90 degree field of view. Lateral extents at the origin reach 5 units.
	proj := Perspective(math32.Pi/2, 1, 0.1, 100)
	view := LookAt(ms3.Vec{Z: 5}, ms3.Vec{}, ms3.Vec{Y: 1})
	f := gcull.FrustumFromArray(MulMat4(proj, view))
	cases := []struct {
		p      ms3.Vec
		inside bool
	}{
		{p: ms3.Vec{}, inside: true},
		{p: ms3.Vec{Z: 4.95}, inside: false}, // Between eye and near plane.
		{p: ms3.Vec{Z: 5.5}, inside: false},  // Behind the camera.
		{p: ms3.Vec{Z: -90}, inside: true},
		{p: ms3.Vec{Z: -100}, inside: false}, // Beyond the far plane.
		{p: ms3.Vec{Y: 4.9}, inside: true},
		{p: ms3.Vec{Y: 5.1}, inside: false},
		{p: ms3.Vec{Y: -4.9}, inside: true},
		{p: ms3.Vec{X: 5.1}, inside: false},
		{p: ms3.Vec{X: -4.9}, inside: true},
	}
	for _, tc := range cases {
		if got := f.ContainsPoint(tc.p); got != tc.inside {
			t.Errorf("point %+v containment %v, want %v", tc.p, got, tc.inside)
		}
	}
}

func TestMulMat4Identity(t *testing.T) {
	var eye [16]float32
	eye[0], eye[5], eye[10], eye[15] = 1, 1, 1, 1
	view := LookAt(ms3.Vec{X: 2, Y: 1, Z: 5}, ms3.Vec{X: 0.5}, ms3.Vec{Y: 1})
	if MulMat4(eye, view) != view {
		t.Error("left identity product changed matrix")
	}
	if MulMat4(view, eye) != view {
		t.Error("right identity product changed matrix")
	}
}

func TestRenderPNGFile(t *testing.T) {
	points := []ms3.Vec{{}, {X: 1, Y: 1, Z: 1}}
	tree, err := gcull.NewOctree(points, 1)
	if err != nil {
		t.Fatal(err)
	}
	visible, err := gcull.AppendVisible(nil, tree, frustumEnclosing(tree.Bounds()))
	if err != nil {
		t.Fatal(err)
	}
	fname := filepath.Join(t.TempDir(), "plan.png")
	err = RenderPNGFile(fname, tree, visible, 128)
	if err != nil {
		t.Fatal(err)
	}
	img := decodePNG(t, fname)
	b := img.Bounds()
	if b.Dx() != 128 || b.Dy() != 128 {
		t.Fatalf("plan view size %dx%d, want 128x128", b.Dx(), b.Dy())
	}
	// Interior of the lower left leaf cell, clear of grid strokes.
	got := color.RGBAModel.Convert(img.At(32, 96)).(color.RGBA)
	if got != planVisible {
		t.Errorf("visible cell interior color %+v, want %+v", got, planVisible)
	}
	err = RenderPNGFile(fname, tree, nil, 128)
	if err != nil {
		t.Fatal(err)
	}
	img = decodePNG(t, fname)
	got = color.RGBAModel.Convert(img.At(32, 96)).(color.RGBA)
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	if got != white {
		t.Errorf("culled cell interior color %+v, want white", got)
	}
}

func TestRenderPNGFileInvalid(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "bad.png")
	err := RenderPNGFile(fname, nil, nil, 128)
	if !errors.Is(err, gcull.ErrInvalidInput) {
		t.Error("expected invalid input error rendering nil octree, got", err)
	}
	points := []ms3.Vec{{}, {X: 1, Y: 1, Z: 1}}
	tree, err := gcull.NewOctree(points, 1)
	if err != nil {
		t.Fatal(err)
	}
	err = RenderPNGFile(fname, tree, nil, 4)
	if !errors.Is(err, gcull.ErrInvalidInput) {
		t.Error("expected invalid input error for tiny picture height, got", err)
	}
}

func TestCull(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	points := randomPoints(rng, 256)
	// Uniform clip scaling of a tenth encloses the whole cloud in the frustum.
	var vp [16]float32
	vp[0], vp[5], vp[10], vp[15] = 0.1, 0.1, 0.1, 1
	fname := filepath.Join(t.TempDir(), "cull.png")
	res, err := Cull(points, vp, CullConfig{MaxDepth: 2, Silent: true, PNGOutput: fname})
	if err != nil {
		t.Fatal(err)
	}
	if res.Tree == nil {
		t.Fatal("nil tree in cull result")
	} else if res.Tree.Len() != 73 {
		t.Fatalf("culled octree has %d nodes, want 73", res.Tree.Len())
	}
	if len(res.Visible) != res.Tree.Len() {
		t.Errorf("enclosing view sees %d of %d nodes", len(res.Visible), res.Tree.Len())
	}
	if res.NodesTested != uint64(res.Tree.Len()) {
		t.Errorf("tested %d nodes, want %d", res.NodesTested, res.Tree.Len())
	}
	if len(res.VisiblePoints) != len(points) {
		t.Errorf("enclosing view sees %d of %d points", len(res.VisiblePoints), len(points))
	}
	seen := make(map[int32]bool)
	for _, idx := range res.VisiblePoints {
		if seen[idx] {
			t.Errorf("point %d visible twice", idx)
		}
		seen[idx] = true
	}
	if _, err := os.Stat(fname); err != nil {
		t.Errorf("plan view not written: %v", err)
	}
	_, err = Cull(nil, vp, CullConfig{Silent: true})
	if !errors.Is(err, gcull.ErrInvalidInput) {
		t.Error("expected invalid input error culling no points, got", err)
	}
}

func decodePNG(t *testing.T, fname string) image.Image {
	t.Helper()
	fp, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	img, err := png.Decode(fp)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func containsPoint(bb ms3.Box, p ms3.Vec) bool {
	return p.X >= bb.Min.X && p.X <= bb.Max.X &&
		p.Y >= bb.Min.Y && p.Y <= bb.Max.Y &&
		p.Z >= bb.Min.Z && p.Z <= bb.Max.Z
}

func frustumForBox(bb ms3.Box) gcull.Frustum {
	return gcull.Frustum{
		{Normal: ms3.Vec{X: 1}, Offset: -bb.Min.X},
		{Normal: ms3.Vec{X: -1}, Offset: bb.Max.X},
		{Normal: ms3.Vec{Y: 1}, Offset: -bb.Min.Y},
		{Normal: ms3.Vec{Y: -1}, Offset: bb.Max.Y},
		{Normal: ms3.Vec{Z: 1}, Offset: -bb.Min.Z},
		{Normal: ms3.Vec{Z: -1}, Offset: bb.Max.Z},
	}
}

func frustumEnclosing(bb ms3.Box) gcull.Frustum {
	bb.Min = ms3.AddScalar(-100, bb.Min)
	bb.Max = ms3.AddScalar(100, bb.Max)
	return frustumForBox(bb)
}

func randomPoints(rng *rand.Rand, n int) []ms3.Vec {
	points := make([]ms3.Vec, n)
	for i := range points {
		points[i] = ms3.Vec{
			X: rng.Float32()*10 - 5,
			Y: rng.Float32()*10 - 5,
			Z: rng.Float32()*10 - 5,
		}
	}
	return points
}
