package scene

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/buffer"
	"github.com/Carmen-Shannon/oxy-rt/engine/bvh"
	"github.com/cockroachdb/errors"
)

// InstanceTableStride is the number of uint32 values one row of the instance table occupies.
// A row holds, in order, the element offsets of the instance's prototype in the vertex, normal,
// triangle material, BVH node and BVH bounds buffers, the offsets of its transform and material,
// and the global index of its first triangle.
const InstanceTableStride = 8

// FrameData is what a renderer binds for one frame.
type FrameData struct {
	// Instances is the instance table, one row per instance in id order.
	Instances *buffer.View[uint32]
	// InstanceNodes and InstanceBounds hold the flattened instance BVH. Leaf slots address instance table rows.
	InstanceNodes  *buffer.View[uint32]
	InstanceBounds *buffer.View[float32]
	// InstanceIDs maps an instance table row back to its instance id.
	InstanceIDs []uint32
	// TotalTriangles is the number of triangles across all instances.
	TotalTriangles int
}

func (s *scene) Commit() (FrameData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.tree.Entries()
	rows := make(map[uint32]uint32, len(entries))
	ids := make([]uint32, len(entries))
	table := make([]uint32, 0, len(entries)*InstanceTableStride)
	total := 0
	for row, e := range entries {
		inst, p := e.Item, e.Item.prototype
		table = append(table,
			uint32(p.vertices.Offset()),
			uint32(p.normals.Offset()),
			uint32(p.materials.Offset()),
			uint32(p.bvhNodes.Offset()),
			uint32(p.bvhBounds.Offset()),
			uint32(inst.transformView.Offset()),
			uint32(inst.materialView.Offset()),
			uint32(total),
		)
		total += p.triangles
		rows[e.ID] = uint32(row)
		ids[row] = e.ID
	}

	flat := s.tree.Tree().Flatten()
	for n := range flat.Len() {
		w := flat.Nodes[n*3 : n*3+3]
		if w[0] != 0 {
			continue
		}
		for k := 1; k < 3; k++ {
			if w[k] != bvh.NullIndex {
				w[k] = rows[w[k]]
			}
		}
	}

	fd := FrameData{InstanceIDs: ids, TotalTriangles: total}
	var err error
	if fd.Instances, err = s.instanceTable.OverwriteAll(table); err != nil {
		return FrameData{}, errors.Wrap(err, "scene: commit instance table")
	}
	if fd.InstanceNodes, err = s.instanceNodes.OverwriteAll(flat.Nodes); err != nil {
		return FrameData{}, errors.Wrap(err, "scene: commit instance BVH nodes")
	}
	if fd.InstanceBounds, err = s.instanceBounds.OverwriteAll(flat.Bounds); err != nil {
		return FrameData{}, errors.Wrap(err, "scene: commit instance BVH bounds")
	}
	return fd, nil
}
