package bvh

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cockroachdb/errors"
)

// Entry is one payload of a DynamicTree.
type Entry[P any] struct {
	ID     uint32
	Item   P
	Bounds AABB
}

// DynamicTree is a BVH over id-keyed payloads that supports incremental insertion, removal and refit.
// Incremental edits keep every node's bounds the tight union of its children but degrade split quality,
// so after a configurable number of edits relative to the payload count the tree is rebuilt from scratch.
// Lookups by id are O(1).
//
// A DynamicTree is not safe for concurrent use.
type DynamicTree[P any] struct {
	tree    Tree
	entries map[uint32]*Entry[P]
	leafOf  map[uint32]int32
	free    []int32

	edits        int
	rebuildRatio float64
	rebuilds     int
}

// NewDynamicTree creates an empty DynamicTree.
//
// Parameters:
//   - options: functional options such as WithRebuildRatio
//
// Returns:
//   - *DynamicTree[P]: the tree
func NewDynamicTree[P any](options ...DynamicTreeBuilderOption) *DynamicTree[P] {
	opts := &dynamicTreeOptions{rebuildRatio: DefaultRebuildRatio}
	for _, opt := range options {
		opt(opts)
	}
	d := &DynamicTree[P]{
		entries:      map[uint32]*Entry[P]{},
		leafOf:       map[uint32]int32{},
		rebuildRatio: opts.rebuildRatio,
	}
	d.reset()
	return d
}

func (d *DynamicTree[P]) reset() {
	d.tree = Tree{Nodes: []Node{newLeaf(noNode)}, Root: 0}
	d.free = d.free[:0]
	clear(d.leafOf)
	d.edits = 0
}

// Len returns the number of payloads.
func (d *DynamicTree[P]) Len() int { return len(d.entries) }

// Tree returns the underlying node arena. It is invalidated by the next edit.
func (d *DynamicTree[P]) Tree() *Tree { return &d.tree }

// Rebuilds returns how many full rebuilds have run, explicit or triggered by edits.
func (d *DynamicTree[P]) Rebuilds() int { return d.rebuilds }

// Get returns the payload stored under id.
func (d *DynamicTree[P]) Get(id uint32) (P, bool) {
	e, ok := d.entries[id]
	if !ok {
		var zero P
		return zero, false
	}
	return e.Item, true
}

// BoundsOf returns the bounds stored under id.
func (d *DynamicTree[P]) BoundsOf(id uint32) (AABB, bool) {
	e, ok := d.entries[id]
	if !ok {
		return AABB{}, false
	}
	return e.Bounds, true
}

// Entries returns every entry ordered by id.
func (d *DynamicTree[P]) Entries() []Entry[P] {
	ids := slices.Sorted(maps.Keys(d.entries))
	out := make([]Entry[P], len(ids))
	for i, id := range ids {
		out[i] = *d.entries[id]
	}
	return out
}

// Rebuild replaces the whole tree with one built over entries, using the same split policy as Build.
//
// Parameters:
//   - entries: the new payload set
//
// Returns:
//   - error: ErrDuplicateID, ErrUnknownID for NullIndex ids, or ErrDegenerateGeometry; the tree is unchanged on error
func (d *DynamicTree[P]) Rebuild(entries []Entry[P]) error {
	next := make(map[uint32]*Entry[P], len(entries))
	items := make([]Item, len(entries))
	for i := range entries {
		e := entries[i]
		if e.ID == NullIndex {
			return errors.Wrapf(ErrUnknownID, "id %#x is reserved", e.ID)
		}
		if _, dup := next[e.ID]; dup {
			return errors.Wrapf(ErrDuplicateID, "id %d", e.ID)
		}
		next[e.ID] = &e
		items[i] = Item{ID: e.ID, Bounds: e.Bounds}
	}
	t, err := Build(items)
	if err != nil {
		return err
	}

	d.reset()
	d.tree = *t
	d.entries = next
	d.indexLeaves()
	d.rebuilds++
	return nil
}

func (d *DynamicTree[P]) indexLeaves() {
	d.tree.walk(func(idx int32, node *Node, _ int) {
		if !node.Leaf {
			return
		}
		for k := range int(node.Count) {
			d.leafOf[node.Items[k]] = idx
		}
	})
}

// rebuildAll rebuilds from the current entries in id order.
func (d *DynamicTree[P]) rebuildAll() {
	if err := d.Rebuild(d.Entries()); err != nil {
		// entries were validated on the way in
		panic(err)
	}
}

// Insert adds a payload. The leaf whose bounds grow the least (by surface area) receives it;
// a full leaf is split into two.
//
// Parameters:
//   - id: the payload id, unique within the tree
//   - item: the payload
//   - bounds: the payload's bounds
//
// Returns:
//   - error: ErrDuplicateID, or ErrDegenerateGeometry for non-finite bounds
func (d *DynamicTree[P]) Insert(id uint32, item P, bounds AABB) error {
	if id == NullIndex {
		return errors.Wrapf(ErrUnknownID, "id %#x is reserved", id)
	}
	if _, dup := d.entries[id]; dup {
		return errors.Wrapf(ErrDuplicateID, "id %d", id)
	}
	if !bounds.IsEmpty() && !bounds.IsFinite() {
		return errors.Wrapf(ErrDegenerateGeometry, "id %d has bounds %v", id, bounds)
	}
	d.entries[id] = &Entry[P]{ID: id, Item: item, Bounds: bounds}

	leaf := d.chooseLeaf(bounds)
	node := &d.tree.Nodes[leaf]
	if node.Count < 2 {
		node.Items[node.Count] = id
		node.ItemBounds[node.Count] = bounds
		node.Count++
		d.leafOf[id] = leaf
	} else {
		d.splitLeaf(leaf, id, bounds)
	}
	d.refit(leaf)
	d.edited()
	return nil
}

// chooseLeaf descends from the root towards the child whose surface area grows least.
func (d *DynamicTree[P]) chooseLeaf(bounds AABB) int32 {
	idx := d.tree.Root
	for {
		node := &d.tree.Nodes[idx]
		if node.Leaf {
			return idx
		}
		c0, c1 := node.Children[0], node.Children[1]
		b0, b1 := d.tree.Nodes[c0].Bounds, d.tree.Nodes[c1].Bounds
		g0 := b0.Union(bounds).SurfaceArea() - b0.SurfaceArea()
		g1 := b1.Union(bounds).SurfaceArea() - b1.SurfaceArea()
		if g1 < g0 {
			idx = c1
		} else {
			idx = c0
		}
	}
}

// splitLeaf turns a full leaf into an internal node over its old pair and a new leaf holding id.
func (d *DynamicTree[P]) splitLeaf(leaf int32, id uint32, bounds AABB) {
	old := d.tree.Nodes[leaf]

	pair := d.alloc(newLeaf(leaf))
	single := d.alloc(newLeaf(leaf))

	n := &d.tree.Nodes[pair]
	n.Items, n.ItemBounds, n.Count = old.Items, old.ItemBounds, old.Count
	n.Bounds = old.ItemBounds[0].Union(old.ItemBounds[1])
	for k := range int(old.Count) {
		d.leafOf[old.Items[k]] = pair
	}

	n = &d.tree.Nodes[single]
	n.Items[0], n.ItemBounds[0], n.Count, n.Bounds = id, bounds, 1, bounds
	d.leafOf[id] = single

	internal := &d.tree.Nodes[leaf]
	internal.Leaf = false
	internal.Children = [2]int32{pair, single}
	internal.Items = [2]uint32{NullIndex, NullIndex}
	internal.ItemBounds = [2]AABB{EmptyAABB(), EmptyAABB()}
	internal.Count = 0
}

func (d *DynamicTree[P]) alloc(n Node) int32 {
	if len(d.free) > 0 {
		idx := d.free[len(d.free)-1]
		d.free = d.free[:len(d.free)-1]
		d.tree.Nodes[idx] = n
		return idx
	}
	d.tree.Nodes = append(d.tree.Nodes, n)
	return int32(len(d.tree.Nodes) - 1)
}

// Remove deletes a payload. A leaf left empty is removed and its sibling takes the parent's place.
//
// Parameters:
//   - id: the payload id
//
// Returns:
//   - error: ErrUnknownID if id is not in the tree
func (d *DynamicTree[P]) Remove(id uint32) error {
	leaf, ok := d.leafOf[id]
	if !ok {
		return errors.Wrapf(ErrUnknownID, "id %d", id)
	}
	delete(d.entries, id)
	delete(d.leafOf, id)

	node := &d.tree.Nodes[leaf]
	if node.Items[0] == id {
		node.Items[0], node.ItemBounds[0] = node.Items[1], node.ItemBounds[1]
	}
	node.Items[1], node.ItemBounds[1] = NullIndex, EmptyAABB()
	node.Count--

	if node.Count > 0 || leaf == d.tree.Root {
		d.refit(leaf)
		d.edited()
		return nil
	}

	parent := node.Parent
	p := &d.tree.Nodes[parent]
	sibling := p.Children[0]
	if sibling == leaf {
		sibling = p.Children[1]
	}
	grand := p.Parent
	d.tree.Nodes[sibling].Parent = grand
	if grand == noNode {
		d.tree.Root = sibling
	} else {
		g := &d.tree.Nodes[grand]
		if g.Children[0] == parent {
			g.Children[0] = sibling
		} else {
			g.Children[1] = sibling
		}
	}
	d.free = append(d.free, leaf, parent)

	if grand != noNode {
		d.refit(grand)
	}
	d.edited()
	return nil
}

// Update replaces the bounds stored under id and refits the ancestors of its leaf.
//
// Parameters:
//   - id: the payload id
//   - bounds: the new bounds
//
// Returns:
//   - error: ErrUnknownID, or ErrDegenerateGeometry for non-finite bounds
func (d *DynamicTree[P]) Update(id uint32, bounds AABB) error {
	leaf, ok := d.leafOf[id]
	if !ok {
		return errors.Wrapf(ErrUnknownID, "id %d", id)
	}
	if !bounds.IsEmpty() && !bounds.IsFinite() {
		return errors.Wrapf(ErrDegenerateGeometry, "id %d has bounds %v", id, bounds)
	}
	d.entries[id].Bounds = bounds

	node := &d.tree.Nodes[leaf]
	k := 0
	if node.Items[1] == id {
		k = 1
	}
	node.ItemBounds[k] = bounds
	d.refit(leaf)
	d.edited()
	return nil
}

// refit recomputes bounds from idx up to the root as tight unions of children.
func (d *DynamicTree[P]) refit(idx int32) {
	for idx != noNode {
		node := &d.tree.Nodes[idx]
		if node.Leaf {
			node.Bounds = node.ItemBounds[0].Union(node.ItemBounds[1])
		} else {
			node.Bounds = d.tree.Nodes[node.Children[0]].Bounds.Union(d.tree.Nodes[node.Children[1]].Bounds)
		}
		idx = node.Parent
	}
}

// edited counts an incremental edit and rebuilds once edits exceed rebuildRatio times the payload count.
func (d *DynamicTree[P]) edited() {
	d.edits++
	if d.rebuildRatio < 0 || float64(d.edits) <= d.rebuildRatio*float64(max(len(d.entries), 1)) {
		return
	}
	common.ComponentLogger("bvh").Debug("dynamic tree rebuilt", slog.Int("edits", d.edits), slog.Int("entries", len(d.entries)))
	d.rebuildAll()
}

// Traverse runs a nearest-hit traversal over the payloads. See Tree.Traverse.
func (d *DynamicTree[P]) Traverse(r Ray, tMax float32, maxDepth int, leaf LeafFunc) Result {
	return d.tree.Traverse(r, tMax, maxDepth, leaf)
}

// QueryFrustum returns the ids of payloads whose bounds intersect f, in ascending order.
//
// Parameters:
//   - f: the frustum
//
// Returns:
//   - []uint32: the visible ids
func (d *DynamicTree[P]) QueryFrustum(f *common.Frustum) []uint32 {
	var out []uint32
	stack := []int32{d.tree.Root}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &d.tree.Nodes[idx]
		if !node.Bounds.IntersectFrustum(f) {
			continue
		}
		if !node.Leaf {
			stack = append(stack, node.Children[0], node.Children[1])
			continue
		}
		for k := range int(node.Count) {
			if node.ItemBounds[k].IntersectFrustum(f) {
				out = append(out, node.Items[k])
			}
		}
	}
	slices.Sort(out)
	return out
}
