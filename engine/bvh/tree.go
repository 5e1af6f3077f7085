package bvh

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// NullIndex fills unused payload and child slots, both in the node arena and in flattened arrays.
const NullIndex = 0xFFFFFFFF

const noNode int32 = -1

// Node is one entry of a tree's node arena.
// Internal nodes reference two child nodes; leaves hold one or two payload ids with their bounds.
// A leaf with a single payload null-fills its second slot.
type Node struct {
	Bounds AABB
	Leaf   bool
	// Children are arena indices of internal nodes, -1 in leaves.
	Children [2]int32
	// Items are payload ids of leaves, NullIndex in unused slots and in internal nodes.
	Items [2]uint32
	// ItemBounds are the bounds of Items, empty in unused slots.
	ItemBounds [2]AABB
	Count      uint8
	Parent     int32
}

func newLeaf(parent int32) Node {
	return Node{
		Bounds:     EmptyAABB(),
		Leaf:       true,
		Children:   [2]int32{noNode, noNode},
		Items:      [2]uint32{NullIndex, NullIndex},
		ItemBounds: [2]AABB{EmptyAABB(), EmptyAABB()},
		Parent:     parent,
	}
}

// Tree is a binary BVH stored as an index-based node arena.
type Tree struct {
	Nodes []Node
	// Root is the arena index of the root node, or -1 for an empty tree.
	Root int32
}

// Len returns the number of payloads in the tree.
func (t *Tree) Len() int {
	n := 0
	t.walk(func(_ int32, node *Node, _ int) {
		if node.Leaf {
			n += int(node.Count)
		}
	})
	return n
}

// Bounds returns the bounds of the whole tree, empty for an empty tree.
func (t *Tree) Bounds() AABB {
	if t.Root == noNode {
		return EmptyAABB()
	}
	return t.Nodes[t.Root].Bounds
}

// Depth returns the number of nodes on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	depth := 0
	t.walk(func(_ int32, _ *Node, d int) {
		depth = max(depth, d+1)
	})
	return depth
}

// NodeCount returns the number of nodes reachable from the root.
func (t *Tree) NodeCount() int {
	n := 0
	t.walk(func(int32, *Node, int) { n++ })
	return n
}

// walk visits reachable nodes in depth-first preorder, left child first.
func (t *Tree) walk(fn func(idx int32, node *Node, depth int)) {
	if t == nil || t.Root == noNode {
		return
	}
	type entry struct {
		idx   int32
		depth int
	}
	stack := []entry{{t.Root, 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &t.Nodes[e.idx]
		fn(e.idx, node, e.depth)
		if !node.Leaf {
			stack = append(stack, entry{node.Children[1], e.depth + 1}, entry{node.Children[0], e.depth + 1})
		}
	}
}

// Validate checks the structural invariants: every node's bounds are exactly the union of its children
// (or of its payloads for leaves), parent links are consistent, and unused slots are null-filled.
//
// Returns:
//   - error: a description of the first violation, or nil
func (t *Tree) Validate() error {
	var err error
	t.walk(func(idx int32, node *Node, _ int) {
		if err != nil {
			return
		}
		want := EmptyAABB()
		if node.Leaf {
			if node.Count > 2 || (node.Count == 0 && idx != t.Root) {
				err = errors.Newf("bvh: leaf %d holds %d payloads", idx, node.Count)
				return
			}
			for k := range 2 {
				if k < int(node.Count) {
					want = want.Union(node.ItemBounds[k])
				} else if node.Items[k] != NullIndex {
					err = errors.Newf("bvh: leaf %d slot %d is not null-filled", idx, k)
					return
				}
			}
		} else {
			for _, c := range node.Children {
				if c == noNode || t.Nodes[c].Parent != idx {
					err = errors.Newf("bvh: node %d has a broken child link %d", idx, c)
					return
				}
				want = want.Union(t.Nodes[c].Bounds)
			}
		}
		if want != node.Bounds {
			err = errors.Newf("bvh: node %d bounds %v are not the tight union %v", idx, node.Bounds, want)
		}
	})
	return err
}

// Flat is the GPU layout of a tree, nodes in depth-first preorder with the root at index 0.
// Each node takes three words in Nodes: kind (1 internal, 0 leaf) followed by two slots holding
// child node indices for internal nodes or payload ids for leaves, NullIndex when unused.
// Each node takes twelve floats in Bounds: the min and max corners of both slots, inlined so a
// traversal tests both children with a single fetch.
type Flat struct {
	Nodes  []uint32
	Bounds []float32
}

const (
	flatNodeWords  = 3
	flatNodeFloats = 12
)

// Flatten converts the tree into its GPU layout. An empty tree becomes a single leaf with two null slots.
func (t *Tree) Flatten() Flat {
	if t == nil || t.Root == noNode {
		f := Flat{}
		f.appendNode(false, [2]uint32{NullIndex, NullIndex}, [2]AABB{EmptyAABB(), EmptyAABB()})
		return f
	}

	// preorder indices
	order := make(map[int32]uint32, len(t.Nodes))
	var seq []int32
	t.walk(func(idx int32, _ *Node, _ int) {
		order[idx] = uint32(len(seq))
		seq = append(seq, idx)
	})

	f := Flat{
		Nodes:  make([]uint32, 0, len(seq)*flatNodeWords),
		Bounds: make([]float32, 0, len(seq)*flatNodeFloats),
	}
	for _, idx := range seq {
		node := &t.Nodes[idx]
		if node.Leaf {
			f.appendNode(false, node.Items, node.ItemBounds)
			continue
		}
		c0, c1 := node.Children[0], node.Children[1]
		f.appendNode(true, [2]uint32{order[c0], order[c1]}, [2]AABB{t.Nodes[c0].Bounds, t.Nodes[c1].Bounds})
	}
	return f
}

func (f *Flat) appendNode(internal bool, slots [2]uint32, boxes [2]AABB) {
	kind := uint32(0)
	if internal {
		kind = 1
	}
	f.Nodes = append(f.Nodes, kind, slots[0], slots[1])
	for _, b := range boxes {
		f.Bounds = append(f.Bounds, b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
	}
}

// Len returns the number of nodes.
func (f Flat) Len() int {
	return len(f.Nodes) / flatNodeWords
}

// slots decodes node i.
func (f Flat) slots(i uint32) nodeSlots {
	n := f.Nodes[i*flatNodeWords:]
	b := f.Bounds[i*flatNodeFloats:]
	return nodeSlots{
		leaf: n[0] == 0,
		ids:  [2]uint32{n[1], n[2]},
		boxes: [2]AABB{
			{Min: mgl32.Vec3{b[0], b[1], b[2]}, Max: mgl32.Vec3{b[3], b[4], b[5]}},
			{Min: mgl32.Vec3{b[6], b[7], b[8]}, Max: mgl32.Vec3{b[9], b[10], b[11]}},
		},
	}
}
