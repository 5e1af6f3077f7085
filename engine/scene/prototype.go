package scene

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/buffer"
	"github.com/Carmen-Shannon/oxy-rt/engine/bvh"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Prototype is immutable geometry shared by any number of instances: an unindexed triangle list with
// per-vertex normals, per-triangle material indices and a triangle BVH, each stored in a view of the
// scene's buffer managers. Prototypes are reference counted by their instances.
type Prototype struct {
	scene     *scene
	id        uint32
	label     string
	triangles int
	bounds    bvh.AABB
	depth     int

	vertices  *buffer.View[float32]
	normals   *buffer.View[buffer.Float16]
	materials *buffer.View[uint32]
	bvhNodes  *buffer.View[uint32]
	bvhBounds *buffer.View[float32]

	refs     int
	released bool
	freed    bool
}

func (p *Prototype) ID() uint32 { return p.id }

func (p *Prototype) Label() string { return p.label }

// TriangleCount returns the number of triangles in the prototype.
func (p *Prototype) TriangleCount() int { return p.triangles }

// Bounds returns the object-space bounds of the prototype.
func (p *Prototype) Bounds() bvh.AABB { return p.bounds }

// Depth returns the depth of the prototype's triangle BVH.
func (p *Prototype) Depth() int { return p.depth }

// Refs returns the number of live instances of the prototype.
func (p *Prototype) Refs() int {
	p.scene.mu.RLock()
	defer p.scene.mu.RUnlock()
	return p.refs
}

// Released reports whether ReleasePrototype was called. A released prototype accepts no new instances
// and its storage is freed once its last instance is removed.
func (p *Prototype) Released() bool {
	p.scene.mu.RLock()
	defer p.scene.mu.RUnlock()
	return p.released
}

// triangle reads triangle i from the vertex view. The caller holds the scene lock.
func (p *Prototype) triangle(vertices []float32, i uint32) bvh.Triangle {
	v := vertices[i*common.FloatsPerTriangle:]
	return bvh.Triangle{{v[0], v[1], v[2]}, {v[3], v[4], v[5]}, {v[6], v[7], v[8]}}
}

// flat returns the prototype's triangle BVH in its stored layout. The caller holds the scene lock.
func (p *Prototype) flat() bvh.Flat {
	return bvh.Flat{Nodes: p.bvhNodes.Slice(), Bounds: p.bvhBounds.Slice()}
}

// preparedMesh is a validated mesh with its triangle BVH, built without touching scene state
// so batches can be prepared in parallel.
type preparedMesh struct {
	label     string
	positions []float32
	normals   []buffer.Float16
	materials []uint32
	flat      bvh.Flat
	bounds    bvh.AABB
	depth     int
}

func prepareMesh(mesh common.MeshData) (preparedMesh, error) {
	n := mesh.TriangleCount()
	switch {
	case n == 0 || len(mesh.Positions)%common.FloatsPerTriangle != 0:
		return preparedMesh{}, errors.Wrapf(ErrInvalidMesh, "%q has %d position values", mesh.Label, len(mesh.Positions))
	case len(mesh.Normals) != 0 && len(mesh.Normals) != len(mesh.Positions):
		return preparedMesh{}, errors.Wrapf(ErrInvalidMesh, "%q has %d normal values for %d positions", mesh.Label, len(mesh.Normals), len(mesh.Positions))
	case len(mesh.Materials) != 0 && len(mesh.Materials) != n:
		return preparedMesh{}, errors.Wrapf(ErrInvalidMesh, "%q has %d materials for %d triangles", mesh.Label, len(mesh.Materials), n)
	}

	tris := bvh.TrianglesFromPositions(mesh.Positions)
	tree, err := bvh.BuildTriangleBVH(tris)
	if err != nil {
		return preparedMesh{}, errors.Wrapf(err, "mesh %q", mesh.Label)
	}

	normals := mesh.Normals
	if len(normals) == 0 {
		normals = faceNormals(tris)
	}
	materials := mesh.Materials
	if len(materials) == 0 {
		materials = make([]uint32, n)
	}
	return preparedMesh{
		label:     mesh.Label,
		positions: mesh.Positions,
		normals:   buffer.ToFloat16s(normals),
		materials: materials,
		flat:      tree.Flatten(),
		bounds:    tree.Bounds(),
		depth:     tree.Depth(),
	}, nil
}

// faceNormals repeats each triangle's unit normal for its three vertices. Zero-area triangles get a zero normal.
func faceNormals(tris []bvh.Triangle) []float32 {
	out := make([]float32, 0, len(tris)*common.FloatsPerTriangle)
	for _, t := range tris {
		n := t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		} else {
			n = mgl32.Vec3{}
		}
		for range 3 {
			out = append(out, n[0], n[1], n[2])
		}
	}
	return out
}

// commitPrototype allocates the prepared arrays in the scene's managers. Either every view is allocated or none is.
// The caller holds the write lock.
func (s *scene) commitPrototype(pm preparedMesh) (_ *Prototype, err error) {
	p := &Prototype{
		scene:     s,
		id:        s.nextPrototypeID,
		label:     pm.label,
		triangles: len(pm.positions) / common.FloatsPerTriangle,
		bounds:    pm.bounds,
		depth:     pm.depth,
	}

	var undo []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](); uerr != nil {
				s.logger().Warn("prototype rollback failed", slog.String("prototype", pm.label), slog.Any("error", uerr))
			}
		}
	}()

	if p.vertices, err = s.vertices.Allocate(pm.positions); err != nil {
		return nil, err
	}
	undo = append(undo, func() error { return s.vertices.Free(p.vertices) })
	if p.normals, err = s.normals.Allocate(pm.normals); err != nil {
		return nil, err
	}
	undo = append(undo, func() error { return s.normals.Free(p.normals) })
	if p.materials, err = s.triangleMaterials.Allocate(pm.materials); err != nil {
		return nil, err
	}
	undo = append(undo, func() error { return s.triangleMaterials.Free(p.materials) })
	if p.bvhNodes, err = s.prototypeNodes.Allocate(pm.flat.Nodes); err != nil {
		return nil, err
	}
	undo = append(undo, func() error { return s.prototypeNodes.Free(p.bvhNodes) })
	if p.bvhBounds, err = s.prototypeBounds.Allocate(pm.flat.Bounds); err != nil {
		return nil, err
	}

	s.nextPrototypeID++
	s.prototypes[p.id] = p
	s.logger().Debug("prototype committed",
		slog.String("prototype", p.label),
		slog.Int("triangles", p.triangles),
		slog.Int("bvh_depth", p.depth))
	return p, nil
}

// freePrototype returns the prototype's views to the managers. The caller holds the write lock.
func (s *scene) freePrototype(p *Prototype) error {
	if p.freed {
		return nil
	}
	err := errors.CombineErrors(s.vertices.Free(p.vertices), s.normals.Free(p.normals))
	err = errors.CombineErrors(err, s.triangleMaterials.Free(p.materials))
	err = errors.CombineErrors(err, s.prototypeNodes.Free(p.bvhNodes))
	err = errors.CombineErrors(err, s.prototypeBounds.Free(p.bvhBounds))
	p.freed = true
	p.released = true
	delete(s.prototypes, p.id)
	s.logger().Debug("prototype freed", slog.String("prototype", p.label))
	return errors.Wrapf(err, "free prototype %q", p.label)
}
