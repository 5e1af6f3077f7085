package bvh

import (
	"cmp"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Item is one payload handed to Build: an id and its bounds.
type Item struct {
	ID     uint32
	Bounds AABB
}

type buildItem struct {
	Item
	centroid mgl32.Vec3
}

// Build constructs a tree over items, at most two per leaf.
// Each node splits at the spatial median of the longest axis of its bounds (ties pick x, then y, then z).
// When every centroid falls on one side, the node splits at the centroid median instead.
// The result depends only on the order and bounds of items.
//
// Parameters:
//   - items: the payloads to index
//
// Returns:
//   - *Tree: the tree, a single leaf for zero or one item
//   - error: ErrDegenerateGeometry if any non-empty bounds are non-finite
func Build(items []Item) (*Tree, error) {
	work := make([]buildItem, len(items))
	for i, it := range items {
		if !it.Bounds.IsEmpty() && !it.Bounds.IsFinite() {
			return nil, errors.Wrapf(ErrDegenerateGeometry, "item %d (id %d) has bounds %v", i, it.ID, it.Bounds)
		}
		work[i] = buildItem{Item: it}
		if !it.Bounds.IsEmpty() {
			work[i].centroid = it.Bounds.Centroid()
		}
	}

	t := &Tree{Nodes: make([]Node, 0, max(1, len(items))), Root: 0}
	if len(work) == 0 {
		t.Nodes = append(t.Nodes, newLeaf(noNode))
		return t, nil
	}
	t.build(work, noNode, make([]buildItem, len(work)))
	return t, nil
}

// BuildTriangleBVH builds a tree over triangles; payloads are triangle indices.
//
// Parameters:
//   - tris: the triangles of one mesh in their stored order
//
// Returns:
//   - *Tree: the tree
//   - error: ErrDegenerateGeometry if any coordinate is non-finite
func BuildTriangleBVH(tris []Triangle) (*Tree, error) {
	items := make([]Item, len(tris))
	for i, tri := range tris {
		if !tri.IsFinite() {
			return nil, errors.Wrapf(ErrDegenerateGeometry, "triangle %d has non-finite vertices %v", i, tri)
		}
		items[i] = Item{ID: uint32(i), Bounds: tri.Bounds()}
	}
	return Build(items)
}

// build appends the subtree over items and returns its arena index. scratch has at least len(items) room.
func (t *Tree) build(items []buildItem, parent int32, scratch []buildItem) int32 {
	idx := int32(len(t.Nodes))

	if len(items) <= 2 {
		leaf := newLeaf(parent)
		for k, it := range items {
			leaf.Items[k] = it.ID
			leaf.ItemBounds[k] = it.Bounds
			leaf.Bounds = leaf.Bounds.Union(it.Bounds)
		}
		leaf.Count = uint8(len(items))
		t.Nodes = append(t.Nodes, leaf)
		return idx
	}

	bounds := EmptyAABB()
	for _, it := range items {
		bounds = bounds.Union(it.Bounds)
	}
	t.Nodes = append(t.Nodes, Node{
		Bounds:     bounds,
		Children:   [2]int32{noNode, noNode},
		Items:      [2]uint32{NullIndex, NullIndex},
		ItemBounds: [2]AABB{EmptyAABB(), EmptyAABB()},
		Parent:     parent,
	})

	mid := partition(items, bounds, scratch)
	left := t.build(items[:mid], idx, scratch)
	right := t.build(items[mid:], idx, scratch)

	t.Nodes[idx].Children = [2]int32{left, right}
	return idx
}

// partition reorders items stably so that the left part precedes the right part and returns the split index.
func partition(items []buildItem, bounds AABB, scratch []buildItem) int {
	axis := bounds.LongestAxis()
	split := bounds.Centroid()[axis]

	left := scratch[:0]
	var right []buildItem
	for _, it := range items {
		if it.centroid[axis] < split {
			left = append(left, it)
		}
	}
	mid := len(left)
	if mid > 0 && mid < len(items) {
		right = scratch[mid:mid]
		for _, it := range items {
			if it.centroid[axis] >= split {
				right = append(right, it)
			}
		}
		copy(items, scratch[:len(items)])
		return mid
	}

	slices.SortStableFunc(items, func(a, b buildItem) int {
		return cmp.Compare(a.centroid[axis], b.centroid[axis])
	})
	return len(items) / 2
}
