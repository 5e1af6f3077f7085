package bvh

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultMaxDepth is the traversal stack limit used when a non-positive limit is given.
const DefaultMaxDepth = 32

// LeafFunc tests one payload against the ray and reports the hit distance if it is nearer than tMax.
type LeafFunc func(id uint32, tMax float32) (float32, bool)

// Result is the outcome of a traversal.
type Result struct {
	// Distance is the nearest accepted hit distance, or the tMax the traversal started with.
	Distance float32
	// ID is the payload that produced Distance, NullIndex if none did.
	ID uint32
	// Truncated is set when the stack limit dropped subtrees.
	Truncated bool
}

// Hit reports whether a payload was hit.
func (r Result) Hit() bool {
	return r.ID != NullIndex
}

type nodeSlots struct {
	leaf  bool
	ids   [2]uint32
	boxes [2]AABB
}

func (t *Tree) slots(i uint32) nodeSlots {
	n := &t.Nodes[i]
	if n.Leaf {
		return nodeSlots{leaf: true, ids: n.Items, boxes: n.ItemBounds}
	}
	return nodeSlots{
		ids:   [2]uint32{uint32(n.Children[0]), uint32(n.Children[1])},
		boxes: [2]AABB{t.Nodes[n.Children[0]].Bounds, t.Nodes[n.Children[1]].Bounds},
	}
}

// Traverse finds the nearest payload hit along r, front to back with an explicit stack.
// Leaf children are tested on the spot; internal children are pushed far child first so the
// nearer one is popped next, and subtrees entered at or beyond the current nearest hit are skipped.
// When the stack holds maxDepth entries further pushes are dropped and the result is marked truncated.
//
// Parameters:
//   - r: the ray
//   - tMax: hits at or beyond this distance are ignored, +Inf for unbounded
//   - maxDepth: the stack limit, DefaultMaxDepth if not positive
//   - leaf: tests one payload
//
// Returns:
//   - Result: the nearest hit
func (t *Tree) Traverse(r Ray, tMax float32, maxDepth int, leaf LeafFunc) Result {
	if t == nil || t.Root == noNode {
		return Result{Distance: tMax, ID: NullIndex}
	}
	return traverse(uint32(t.Root), t.slots, r, tMax, maxDepth, leaf)
}

// Traverse is Tree.Traverse over the flattened layout, reading only Nodes and Bounds as a GPU kernel would.
func (f Flat) Traverse(r Ray, tMax float32, maxDepth int, leaf LeafFunc) Result {
	if f.Len() == 0 {
		return Result{Distance: tMax, ID: NullIndex}
	}
	return traverse(0, f.slots, r, tMax, maxDepth, leaf)
}

type stackEntry struct {
	node uint32
	dist float32
}

func traverse(root uint32, slots func(uint32) nodeSlots, r Ray, tMax float32, maxDepth int, leaf LeafFunc) Result {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	inv := invert(r.Direction)
	res := Result{Distance: tMax, ID: NullIndex}

	testLeaf := func(s nodeSlots) {
		dist, ok := s.hits(r, inv, res.Distance)
		first, second := 0, 1
		if ok[1] && (!ok[0] || dist[1] < dist[0]) {
			first, second = 1, 0
		}
		for _, k := range [2]int{first, second} {
			if !ok[k] || dist[k] >= res.Distance {
				continue
			}
			if d, hit := leaf(s.ids[k], res.Distance); hit && d < res.Distance {
				res.Distance, res.ID = d, s.ids[k]
			}
		}
	}

	stack := make([]stackEntry, 1, maxDepth)
	stack[0] = stackEntry{node: root, dist: 0}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if e.dist >= res.Distance {
			continue
		}

		s := slots(e.node)
		if s.leaf {
			testLeaf(s)
			continue
		}

		dist, ok := s.hits(r, inv, res.Distance)
		near, far := 0, 1
		if ok[1] && (!ok[0] || dist[1] < dist[0]) {
			near, far = 1, 0
		}
		children := [2]nodeSlots{}
		for _, k := range [2]int{near, far} {
			if !ok[k] || dist[k] >= res.Distance {
				continue
			}
			children[k] = slots(s.ids[k])
			if children[k].leaf {
				testLeaf(children[k])
			}
		}
		var push [2]stackEntry
		n := 0
		for _, k := range [2]int{far, near} {
			if !ok[k] || dist[k] >= res.Distance || children[k].leaf {
				continue
			}
			push[n] = stackEntry{node: s.ids[k], dist: dist[k]}
			n++
		}
		// a full stack drops the far child before the near one
		drop := max(0, n-(maxDepth-len(stack)))
		if drop > 0 {
			res.Truncated = true
		}
		stack = append(stack, push[drop:n]...)
	}

	if res.Truncated {
		common.ComponentLogger("bvh").Debug("traversal stack truncated", "max_depth", maxDepth)
	}
	return res
}

// hits runs the slab test for both slots. Null slots never hit.
func (s nodeSlots) hits(r Ray, inv mgl32.Vec3, tMax float32) (dist [2]float32, ok [2]bool) {
	for k := range 2 {
		if s.ids[k] == NullIndex {
			continue
		}
		dist[k], ok[k] = s.boxes[k].intersect(r.Origin, r.Direction, inv, tMax)
	}
	return dist, ok
}

// NearestTriangle returns the nearest triangle of tris hit by r, using t as the index over tris.
//
// Parameters:
//   - tris: the triangles the tree was built over
//   - r: the ray
//   - maxDepth: the traversal stack limit
//
// Returns:
//   - Hit: the nearest hit with TriangleID set, or NoHit
func (t *Tree) NearestTriangle(tris []Triangle, r Ray, maxDepth int) Hit {
	hit := NoHit()
	res := t.Traverse(r, math32.Inf(1), maxDepth, func(id uint32, tMax float32) (float32, bool) {
		d, u, v, ok := IntersectTriangle(r, tris[id], tMax)
		if ok {
			hit.U, hit.V = u, v
		}
		return d, ok
	})
	hit.Truncated = res.Truncated
	if res.Hit() {
		hit.Distance = res.Distance
		hit.TriangleID = res.ID
	}
	return hit
}
