package gcullaux

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/soypat/gcull"
	"github.com/soypat/gcull/glcull"
	"github.com/soypat/geometry/ms3"
)

// CullConfig configures a call to [Cull].
type CullConfig struct {
	// MaxDepth is the subdivision depth of the octree built over the point cloud.
	MaxDepth int
	// PNGOutput when set receives a top-down plan view of the culled octree
	// rendered to a PNG image file with said filename.
	PNGOutput string
	// UseGPU evaluates frustum margins of all octree nodes on the GPU
	// with a compute shader before assembling the visible set.
	UseGPU bool
	// Silent suppresses stdout logging of culling progress.
	Silent bool
}

// CullResult is the output of a [Cull] call.
type CullResult struct {
	// Tree is the octree built over the argument point cloud with point
	// indices binned into its leaves.
	Tree *gcull.Octree
	// Frustum holds the six planes extracted from the view-projection matrix.
	Frustum gcull.Frustum
	// Visible are the octree nodes at least partially inside the frustum,
	// in pre-order with parents before children.
	Visible []gcull.NodeID
	// VisiblePoints are indices into the point cloud of the points living
	// inside visible leaves.
	VisiblePoints []int32
	// NodesTested counts node boxes tested against the frustum planes.
	NodesTested uint64
}

// Cull is an auxiliary function to aid users in getting set up with the gcull
// package quickly. Ideally users would call gcull APIs directly since culling
// applications vary widely. Cull builds an octree over points, bins every
// point into its containing leaf and computes the set of nodes visible to the
// frustum of the row-major viewProjection matrix. Compose the matrix with
// [Perspective], [LookAt] and [MulMat4] or bring your own.
func Cull(points []ms3.Vec, viewProjection [16]float32, cfg CullConfig) (res CullResult, err error) {
	log := func(args ...any) {
		if !cfg.Silent {
			fmt.Println(args...)
		}
	}
	watch := stopwatch()
	tree, err := gcull.NewOctree(points, cfg.MaxDepth)
	if err != nil {
		return CullResult{}, err
	}
	err = BinPoints(tree, points)
	if err != nil {
		return CullResult{}, err
	}
	res.Tree = tree
	log("octree with", tree.Len(), "nodes over", len(points), "points built in", watch())

	res.Frustum = gcull.FrustumFromArray(viewProjection)
	watch = stopwatch()
	if cfg.UseGPU {
		log("culling on GPU")
		err = cullGPU(&res)
	} else {
		log("culling on CPU")
		var culler gcull.Culler
		res.Visible, err = culler.AppendVisible(nil, tree, res.Frustum)
		res.NodesTested = culler.NodesTested()
	}
	if err != nil {
		return CullResult{}, err
	}
	for _, id := range res.Visible {
		if tree.IsLeaf(id) {
			res.VisiblePoints = append(res.VisiblePoints, tree.Objects(id)...)
		}
	}
	culled := uint64(tree.Len() - len(res.Visible))
	log(len(res.Visible), "of", tree.Len(), "nodes visible after", watch(), "with", percentUint64(culled, uint64(tree.Len())), "percent culled")

	if cfg.PNGOutput != "" {
		watch = stopwatch()
		err = RenderPNGFile(cfg.PNGOutput, tree, res.Visible, 512)
		if err != nil {
			return CullResult{}, err
		}
		log("wrote plan view to", cfg.PNGOutput, "in", watch())
	}
	return res, nil
}

// cullGPU computes frustum margins of all tree nodes in one GPU batch and
// assembles the visible set from them on the CPU afterwards. The margin of a
// node decides its visibility on its own since a child margin never exceeds
// that of its parent.
func cullGPU(res *CullResult) error {
	terminate, err := glcull.Init1x1GLFW()
	if err != nil {
		return err
	}
	defer terminate()
	prog := glcull.NewDefaultProgrammer()
	source := new(bytes.Buffer)
	_, err = prog.WriteComputeTester(source, res.Frustum)
	if err != nil {
		return err
	}
	invocX, _, _ := prog.ComputeInvocations()
	tester, err := glcull.NewComputeGPUTester(source, res.Frustum, glcull.ComputeConfig{InvocX: invocX})
	if err != nil {
		return err
	}
	tree := res.Tree
	boxes := make([]ms3.Box, tree.Len())
	for i := range boxes {
		boxes[i] = tree.NodeBox(gcull.NodeID(i))
	}
	margins := make([]float32, len(boxes))
	err = tester.TestBoxes(boxes, margins, nil)
	if err != nil {
		return err
	}
	res.Visible = appendVisibleFromMargins(res.Visible[:0], tree, margins, 0)
	res.NodesTested = tester.Evaluations()
	return nil
}

func appendVisibleFromMargins(dst []gcull.NodeID, tree *gcull.Octree, margins []float32, id gcull.NodeID) []gcull.NodeID {
	if margins[id] < 0 {
		return dst
	}
	dst = append(dst, id)
	if tree.IsLeaf(id) {
		return dst
	}
	for oct := 0; oct < 8; oct++ {
		dst = appendVisibleFromMargins(dst, tree, margins, tree.Child(id, oct))
	}
	return dst
}

// BinPoints attaches the index of every point to the leaf containing it via
// [gcull.Octree.SetObjects]. Points on an internal partition boundary bin to
// the leaf on the greater side of the boundary. Previously set leaf objects
// are replaced.
func BinPoints(tree *gcull.Octree, points []ms3.Vec) error {
	if tree == nil || tree.Len() == 0 {
		return fmt.Errorf("%w: binning into unbuilt octree", gcull.ErrInvalidInput)
	} else if len(points) == 0 {
		return fmt.Errorf("%w: no points to bin", gcull.ErrInvalidInput)
	}
	first, n := tree.Leaves()
	bins := make([][]int32, n)
	for i, p := range points {
		leaf := LeafContaining(tree, p)
		bins[leaf-first] = append(bins[leaf-first], int32(i))
	}
	for k := range bins {
		// Empty bins clear the leaf so a rebinding never leaves stale indices.
		tree.SetObjects(first+gcull.NodeID(k), bins[k])
	}
	return nil
}

// LeafContaining descends the octree from the root and returns the leaf whose
// box contains point p. Points beyond the root bounds map to the closest leaf
// encountered on descent.
func LeafContaining(tree *gcull.Octree, p ms3.Vec) gcull.NodeID {
	id := gcull.NodeID(0)
	for !tree.IsLeaf(id) {
		center := tree.NodeBox(id).Center()
		oct := 0
		if p.X >= center.X {
			oct |= 1
		}
		if p.Y >= center.Y {
			oct |= 2
		}
		if p.Z >= center.Z {
			oct |= 4
		}
		id = tree.Child(id, oct)
	}
	return id
}

// UIConfig holds configuration of the octree viewer user interface.
type UIConfig struct {
	Width, Height int
	// Context cancellation terminates the viewer render loop.
	Context context.Context
}

// UI starts a graphical viewer of the octree in a new window. The camera
// orbits the octree center on mouse drag and zooms on scroll while the leaf
// boxes inside the camera frustum are drawn as wireframes, so boxes culled
// away reappear as the camera pans back over them. UI blocks until the window
// closes or the configured context is done. Requires cgo.
func UI(tree *gcull.Octree, cfg UIConfig) error {
	if tree == nil || tree.Len() == 0 {
		return fmt.Errorf("%w: viewer over unbuilt octree", gcull.ErrInvalidInput)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width = 800
		cfg.Height = 600
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	return ui(tree, cfg)
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

func percentUint64(num, denom uint64) float32 {
	return math32.Trunc(10000*float32(num)/float32(denom)) / 100
}
