package gcull

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// MaxDepthLimit bounds octree subdivision depth. A full tree one level deeper
// than this has more nodes than an int32 arena index can address.
const MaxDepthLimit = 10

// ErrInvalidInput is wrapped by all errors arising from violated argument
// preconditions such as an empty point set, a negative or over-limit depth or
// a malformed frustum. Detect it with [errors.Is]. Operations fail atomically:
// an error means no tree was built and no identifiers were appended.
var ErrInvalidInput = errors.New("invalid input")

// noChild marks leaf nodes in the arena.
const noChild int32 = -1

// NodeID identifies a node of an [Octree]. IDs are dense indices in [0, Len)
// assigned in level order: the root is 0 and every node of a level precedes
// all nodes of the next, siblings consecutive in octant order. They remain
// valid for the lifetime of the tree and may be used to index side tables.
type NodeID int32

type node struct {
	bb ms3.Box
	// firstChild is the arena index of octant 0's node. The remaining 7
	// children occupy the following indices in octant order. noChild for leaves.
	firstChild int32
}

// Octree is a spatial index over a point set: a fully populated tree of
// axis-aligned boxes rooted at the points' bounding box, split 8 ways about
// box centers down to a fixed depth. Once built the tree geometry is
// immutable, so any number of goroutines may query it concurrently. Nodes
// live in a flat arena addressed by [NodeID].
type Octree struct {
	nodes []node
	// objects holds externally attached scene object references per node.
	// The tree never populates nor interprets these.
	objects  map[NodeID][]int32
	maxDepth int
}

// NewOctree builds the index for the bounding box of points subdivided to
// maxDepth. The tree is full: every interior node has exactly 8 children and
// all 8^maxDepth leaves sit at maxDepth, regardless of where points fall.
// Points themselves are not retained; attach renderable content afterwards
// with [Octree.SetObjects].
func NewOctree(points []ms3.Vec, maxDepth int) (*Octree, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: octree of empty point set", ErrInvalidInput)
	} else if maxDepth < 0 {
		return nil, fmt.Errorf("%w: negative octree depth %d", ErrInvalidInput, maxDepth)
	} else if maxDepth > MaxDepthLimit {
		return nil, fmt.Errorf("%w: octree depth %d exceeds limit of %d", ErrInvalidInput, maxDepth, MaxDepthLimit)
	}
	bb := ms3.Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		bb.Min = ms3.MinElem(bb.Min, p)
		bb.Max = ms3.MaxElem(bb.Max, p)
	}
	tree := &Octree{
		nodes:    make([]node, totalNodes(maxDepth)),
		maxDepth: maxDepth,
	}
	tree.nodes[0] = node{bb: bb, firstChild: noChild}
	// The arena is level ordered so each level's children are laid down
	// contiguously right after the level itself ends.
	for depth := 0; depth < maxDepth; depth++ {
		start := levelStart(depth)
		end := levelStart(depth + 1)
		child := end
		for i := start; i < end; i++ {
			parent := &tree.nodes[i]
			parent.firstChild = int32(child)
			center := parent.bb.Center()
			for oct := 0; oct < 8; oct++ {
				tree.nodes[child] = node{
					bb:         octantBox(parent.bb, center, oct),
					firstChild: noChild,
				}
				child++
			}
		}
	}
	return tree, nil
}

// octantBox returns a half-size sub-box of bb. Octant bits select the high
// half per axis: bit 0 is x, bit 1 is y, bit 2 is z. Coordinates come
// straight from bb and its center so the 8 sub-boxes tile bb exactly, shared
// faces included, with no floating point drift.
func octantBox(bb ms3.Box, center ms3.Vec, oct int) ms3.Box {
	child := ms3.Box{Min: bb.Min, Max: center}
	if oct&1 != 0 {
		child.Min.X, child.Max.X = center.X, bb.Max.X
	}
	if oct&2 != 0 {
		child.Min.Y, child.Max.Y = center.Y, bb.Max.Y
	}
	if oct&4 != 0 {
		child.Min.Z, child.Max.Z = center.Z, bb.Max.Z
	}
	return child
}

// Bounds returns the root bounding box, which contains every point the tree
// was built from.
func (t *Octree) Bounds() ms3.Box { return t.nodes[0].bb }

// Len returns the total number of nodes in the tree, (8^(maxDepth+1)-1)/7.
func (t *Octree) Len() int { return len(t.nodes) }

// MaxDepth returns the subdivision depth the tree was built with.
func (t *Octree) MaxDepth() int { return t.maxDepth }

// NodeBox returns the axis-aligned box of the node. Panics if id is not a
// valid identifier of this tree, as would indexing a slice out of range.
func (t *Octree) NodeBox(id NodeID) ms3.Box { return t.nodes[id].bb }

// IsLeaf reports whether the node has no children.
func (t *Octree) IsLeaf(id NodeID) bool { return t.nodes[id].firstChild == noChild }

// Child returns the identifier of a node's child at octant in [0,7], where
// octant = x + 2y + 4z selects the high (1) or low (0) half per axis.
// Panics on leaves and out of range octants.
func (t *Octree) Child(id NodeID, octant int) NodeID {
	first := t.nodes[id].firstChild
	if first == noChild {
		panic("gcull: Child called on leaf node")
	} else if octant&^7 != 0 {
		panic("gcull: octant outside [0,7]")
	}
	return NodeID(first) + NodeID(octant)
}

// Leaves returns the contiguous identifier range of the deepest level:
// leaves are first, first+1, ..., first+n-1.
func (t *Octree) Leaves() (first NodeID, n int) {
	return NodeID(levelStart(t.maxDepth)), int(pow8(t.maxDepth))
}

// Depth returns the level of the node, 0 for the root and MaxDepth for leaves.
func (t *Octree) Depth(id NodeID) int {
	_ = t.nodes[id] // Valid id check.
	d := 0
	for int(id) >= levelStart(d+1) {
		d++
	}
	return d
}

// SetObjects attaches references to externally owned scene objects to a node,
// replacing any previous attachment. The tree stores the slice as-is and
// never reads the referenced objects; spatial assignment of objects to nodes
// is the scene loader's job. Attach before querying begins: SetObjects is not
// safe concurrently with itself or with [Octree.Objects].
func (t *Octree) SetObjects(id NodeID, objectIndices []int32) {
	_ = t.nodes[id] // Valid id check.
	if t.objects == nil {
		t.objects = make(map[NodeID][]int32)
	}
	if len(objectIndices) == 0 {
		delete(t.objects, id)
		return
	}
	t.objects[id] = objectIndices
}

// Objects returns the object references attached to the node, nil when none.
// The caller must not modify the returned slice.
func (t *Octree) Objects(id NodeID) []int32 {
	_ = t.nodes[id]
	return t.objects[id]
}

// levelStart returns the arena index where depth's level begins, the
// geometric series (8^depth - 1)/7.
func levelStart(depth int) int {
	return int((pow8(depth) - 1) / 7)
}

func totalNodes(maxDepth int) int {
	return levelStart(maxDepth + 1)
}

func pow8(n int) int64 {
	return 1 << (3 * n)
}
