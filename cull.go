package gcull

import (
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// Culler computes the subset of an [Octree]'s nodes which are potentially
// visible inside a [Frustum]. The zero value is ready for use. A Culler
// reuses its traversal stack between calls so a single one must not be
// shared by concurrent goroutines; culling only reads the tree, so several
// Cullers may query one tree simultaneously.
type Culler struct {
	stack []NodeID
	vis   []NodeID
	// nodesTested accumulates box-frustum tests performed across calls.
	nodesTested uint64
}

// AppendVisible appends to dst the identifier of every node of tree whose box
// is not fully outside any single plane of f and returns the extended slice.
// On error dst is returned untouched.
//
// The visible set is in pre-order: parents before children, siblings in
// increasing octant order. Visibility is conservative both per node (a box
// is only discarded when provably outside one plane, never for straddling
// plane corners) and across levels: children of a visible node are always
// tested, with no shortcut for boxes fully inside the frustum. Discarded
// nodes' subtrees are never visited. The operation is read-only on tree and
// deterministic, so repeated calls with equal inputs append equal sequences.
func (c *Culler) AppendVisible(dst []NodeID, tree *Octree, f Frustum) ([]NodeID, error) {
	if tree == nil || len(tree.nodes) == 0 {
		return dst, fmt.Errorf("%w: cull of nil or unbuilt octree", ErrInvalidInput)
	}
	c.stack = append(c.stack[:0], 0)
	for len(c.stack) > 0 {
		id := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		nd := &tree.nodes[id]
		c.nodesTested++
		if outsideAny(f, nd.bb) {
			continue
		}
		dst = append(dst, id)
		if nd.firstChild == noChild {
			continue
		}
		// Push children in reverse so octant 0 pops first, keeping pre-order.
		for oct := 7; oct >= 0; oct-- {
			c.stack = append(c.stack, NodeID(nd.firstChild)+NodeID(oct))
		}
	}
	return dst, nil
}

// AppendVisibleObjects culls tree as [Culler.AppendVisible] does and appends
// the object references attached to the visible leaves, leaves in visible
// order. Use after a scene loader binned objects with [Octree.SetObjects].
// On error dst is returned untouched.
func (c *Culler) AppendVisibleObjects(dst []int32, tree *Octree, f Frustum) ([]int32, error) {
	vis, err := c.AppendVisible(c.vis[:0], tree, f)
	c.vis = vis
	if err != nil {
		return dst, err
	}
	for _, id := range vis {
		if tree.IsLeaf(id) {
			dst = append(dst, tree.Objects(id)...)
		}
	}
	return dst, nil
}

// NodesTested returns the cumulative amount of box-frustum tests performed
// by the Culler since creation or the last [Culler.ResetStats] call.
func (c *Culler) NodesTested() uint64 { return c.nodesTested }

// ResetStats zeroes the Culler's counters.
func (c *Culler) ResetStats() { c.nodesTested = 0 }

// AppendVisible culls tree with a throwaway [Culler]. Prefer a reused Culler
// in per-frame loops so the traversal stack is not reallocated each call.
func AppendVisible(dst []NodeID, tree *Octree, f Frustum) ([]NodeID, error) {
	var c Culler
	return c.AppendVisible(dst, tree, f)
}

// outsideAny reports whether bb lies fully outside at least one plane of f.
// Only the corner of bb furthest along each plane normal is evaluated: when
// that corner is strictly outside a plane the remaining seven corners are too.
func outsideAny(f Frustum, bb ms3.Box) bool {
	for i := range f {
		if f[i].Distance(positiveVertex(f[i].Normal, bb)) < 0 {
			return true
		}
	}
	return false
}

// positiveVertex returns the corner of bb with greatest signed distance
// along n.
func positiveVertex(n ms3.Vec, bb ms3.Box) ms3.Vec {
	v := bb.Min
	if n.X >= 0 {
		v.X = bb.Max.X
	}
	if n.Y >= 0 {
		v.Y = bb.Max.Y
	}
	if n.Z >= 0 {
		v.Z = bb.Max.Z
	}
	return v
}
