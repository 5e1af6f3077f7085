package scene

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/buffer"
	"github.com/Carmen-Shannon/oxy-rt/engine/bvh"
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/config"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"
)

// Scene owns the geometry of one world: prototypes, their instances, and the buffer managers that hold
// every array a GPU path tracer reads. It answers nearest-hit queries on the CPU with the same two-level
// BVH layout it uploads, and regenerates the per-frame instance table on Commit.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether the engine commits this scene each frame.
	Active() bool

	// SetActive sets whether the engine commits this scene each frame.
	SetActive(active bool)

	// Config returns the configuration the scene was created with.
	Config() config.Config

	// NewPrototype validates mesh, builds its triangle BVH and stores its arrays.
	//
	// Parameters:
	//   - mesh: the triangle list
	//
	// Returns:
	//   - *Prototype: the new prototype
	//   - error: ErrInvalidMesh, bvh.ErrDegenerateGeometry, or a buffer error; the scene is unchanged on error
	NewPrototype(mesh common.MeshData) (*Prototype, error)

	// LoadPrototypes builds the triangle BVHs of many meshes in parallel on the scene's worker pool,
	// then stores them in order. Either all prototypes are created or none are.
	//
	// Parameters:
	//   - ctx: cancels the batch while BVHs are being built
	//   - meshes: the triangle lists
	//
	// Returns:
	//   - []*Prototype: the new prototypes, in the order of meshes
	//   - error: the first mesh error, the context's error, or a buffer error
	LoadPrototypes(ctx context.Context, meshes []common.MeshData) ([]*Prototype, error)

	// ReleasePrototype marks the prototype released. Its storage is freed now if it has no instances,
	// otherwise when its last instance is removed.
	//
	// Parameters:
	//   - p: the prototype
	//
	// Returns:
	//   - error: ErrUnknownPrototype if p was already released or belongs to another scene
	ReleasePrototype(p *Prototype) error

	// Prototypes returns the stored prototypes ordered by id.
	//
	// Returns:
	//   - []*Prototype: the prototypes
	Prototypes() []*Prototype

	// AddInstance places a new instance of p at the origin with the default material.
	//
	// Parameters:
	//   - p: the prototype to instance
	//
	// Returns:
	//   - *Instance: the new instance
	//   - error: ErrUnknownPrototype if p is released or foreign, or a buffer error
	AddInstance(p *Prototype) (*Instance, error)

	// RemoveInstance removes the instance and frees its transform and material.
	//
	// Parameters:
	//   - inst: the instance
	//
	// Returns:
	//   - error: ErrUnknownInstance if inst is not a live instance of this scene
	RemoveInstance(inst *Instance) error

	// Instance looks an instance up by id in constant time.
	//
	// Parameters:
	//   - id: the instance id
	//
	// Returns:
	//   - *Instance: the instance
	//   - error: ErrUnknownInstance if no live instance has the id
	Instance(id uint32) (*Instance, error)

	// Instances returns the live instances ordered by id.
	//
	// Returns:
	//   - []*Instance: the instances
	Instances() []*Instance

	// InstanceCount returns the number of live instances.
	InstanceCount() int

	// VisibleInstances returns the instances whose world bounds intersect f, ordered by id.
	//
	// Parameters:
	//   - f: the view frustum
	//
	// Returns:
	//   - []*Instance: the visible instances
	VisibleInstances(f *common.Frustum) []*Instance

	// NearestHit traces r through the instance BVH and each candidate's triangle BVH.
	//
	// Parameters:
	//   - r: the world-space ray
	//
	// Returns:
	//   - bvh.Hit: the nearest hit, or bvh.NoHit(); Truncated is set if the stack limit dropped subtrees
	NearestHit(r bvh.Ray) bvh.Hit

	// Pick traces the ray through a pixel of cam's viewport.
	//
	// Parameters:
	//   - cam: the camera
	//   - x, y: the pixel coordinates, origin at the top left
	//   - width, height: the viewport size in pixels
	//
	// Returns:
	//   - bvh.Hit: as NearestHit
	Pick(cam camera.Camera, x, y, width, height float32) bvh.Hit

	// Commit regenerates the instance table and the instance BVH arrays for the frame.
	// Views from the previous Commit are invalidated.
	//
	// Returns:
	//   - FrameData: the frame's views and totals
	//   - error: a buffer or GPU mirror error
	Commit() (FrameData, error)

	// AttachGPU mirrors every buffer of the scene to backend: a linear buffer each, except vertex
	// normals, which go to an RGBA16Float texture array.
	//
	// Parameters:
	//   - backend: the GPU backend
	//
	// Returns:
	//   - error: ErrGPUAttached, or the first mirror creation error; nothing stays attached on error
	AttachGPU(backend gpu.Backend) error

	// DetachGPU destroys every mirror. It is a no-op without an attached backend.
	//
	// Returns:
	//   - error: the combined Destroy errors
	DetachGPU() error

	// Buffers returns the scene's buffer managers for binding by a renderer.
	//
	// Returns:
	//   - Buffers: the managers
	Buffers() Buffers

	// Stats returns counters for the profiler.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// Clear removes every instance and prototype and empties every buffer.
	//
	// Returns:
	//   - error: the combined buffer errors
	Clear() error
}

// Buffers exposes the scene's buffer managers.
type Buffers struct {
	Vertices          buffer.BufferManager[float32]
	Normals           buffer.BufferManager[buffer.Float16]
	TriangleMaterials buffer.BufferManager[uint32]
	PrototypeNodes    buffer.BufferManager[uint32]
	PrototypeBounds   buffer.BufferManager[float32]
	Transforms        buffer.BufferManager[float32]
	Materials         buffer.BufferManager[float32]
	InstanceTable     buffer.BufferManager[uint32]
	InstanceNodes     buffer.BufferManager[uint32]
	InstanceBounds    buffer.BufferManager[float32]
}

// Stats counts the scene's content and work.
type Stats struct {
	Prototypes  int
	Instances   int
	Triangles   int
	BVHRebuilds int
	// Reallocations sums the growth reallocations of every buffer manager.
	Reallocations int
	// TruncatedTraversals counts NearestHit calls that hit the stack limit.
	TruncatedTraversals int64
	// GPU sums the upload counters of every mirror.
	GPU gpu.Stats
}

type scene struct {
	mu *sync.RWMutex

	name   string
	active bool
	cfg    config.Config

	vertices          buffer.BufferManager[float32]
	normals           buffer.BufferManager[buffer.Float16]
	triangleMaterials buffer.BufferManager[uint32]
	prototypeNodes    buffer.BufferManager[uint32]
	prototypeBounds   buffer.BufferManager[float32]
	transforms        buffer.BufferManager[float32]
	materials         buffer.BufferManager[float32]
	instanceTable     buffer.BufferManager[uint32]
	instanceNodes     buffer.BufferManager[uint32]
	instanceBounds    buffer.BufferManager[float32]

	prototypes      map[uint32]*Prototype
	nextPrototypeID uint32
	tree            *bvh.DynamicTree[*Instance]
	nextInstanceID  uint32
	truncated       atomic.Int64

	backend       gpu.Backend
	linearMirrors []gpu.LinearMirror
	normalMirror  gpu.TextureArrayMirror

	buildPool worker.DynamicWorkerPool
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates an empty scene. cfg is completed with defaults and must validate;
// NewScene panics otherwise.
//
// Parameters:
//   - cfg: the configuration
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(cfg config.Config, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:         &sync.RWMutex{},
		name:       "scene",
		active:     true,
		cfg:        cfg.WithDefaults(),
		prototypes: make(map[uint32]*Prototype),
	}
	for _, option := range options {
		option(s)
	}
	if err := s.cfg.Validate(); err != nil {
		panic(fmt.Sprintf("scene: NewScene requires a valid config: %v", err))
	}

	label := func(buf string) string { return s.name + "/" + buf }
	s.vertices = buffer.NewBufferManager[float32](label("vertices"))
	s.normals = buffer.NewBufferManager[buffer.Float16](label("normals"))
	s.triangleMaterials = buffer.NewBufferManager[uint32](label("triangle_materials"))
	s.prototypeNodes = buffer.NewBufferManager[uint32](label("prototype_bvh_nodes"))
	s.prototypeBounds = buffer.NewBufferManager[float32](label("prototype_bvh_bounds"))
	s.transforms = buffer.NewBufferManager[float32](label("transforms"))
	s.materials = buffer.NewBufferManager[float32](label("instance_materials"))
	s.instanceTable = buffer.NewBufferManager[uint32](label("instances"))
	s.instanceNodes = buffer.NewBufferManager[uint32](label("instance_bvh_nodes"))
	s.instanceBounds = buffer.NewBufferManager[float32](label("instance_bvh_bounds"))

	s.tree = bvh.NewDynamicTree[*Instance](bvh.WithRebuildRatio(s.cfg.RebuildRatio))

	// Queue size of 256 covers typical batch sizes; larger batches block on submit until workers drain.
	s.buildPool = worker.NewDynamicWorkerPool(s.cfg.BuildWorkers, 256, 1*time.Second)
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// logger returns the component logger tagged with the scene name. The caller holds s.mu.
func (s *scene) logger() *slog.Logger {
	return common.ComponentLogger("scene").With(slog.String("scene", s.name))
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Config() config.Config {
	return s.cfg
}

func (s *scene) NewPrototype(mesh common.MeshData) (*Prototype, error) {
	pm, err := prepareMesh(mesh)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitPrototype(pm)
}

func (s *scene) LoadPrototypes(ctx context.Context, meshes []common.MeshData) ([]*Prototype, error) {
	prepared := make([]preparedMesh, len(meshes))
	errs := make([]error, len(meshes))

	// A WaitGroup gives the batch barrier; pool.Wait blocks until workers idle out.
	var wg sync.WaitGroup
	for i := range meshes {
		wg.Add(1)
		s.buildPool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				if err := ctx.Err(); err != nil {
					errs[i] = err
					return nil, err
				}
				prepared[i], errs[i] = prepareMesh(meshes[i])
				return nil, errs[i]
			},
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "scene: load prototypes")
	case <-done:
	}
	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "scene: load prototype %d", i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Prototype, 0, len(prepared))
	for i := range prepared {
		p, err := s.commitPrototype(prepared[i])
		if err != nil {
			for _, q := range slices.Backward(out) {
				if ferr := s.freePrototype(q); ferr != nil {
					s.logger().Warn("prototype rollback failed", slog.Any("error", ferr))
				}
			}
			return nil, errors.Wrapf(err, "scene: load prototype %d", i)
		}
		out = append(out, p)
	}
	s.logger().Debug("prototypes loaded", slog.Int("count", len(out)), slog.Int("workers", s.cfg.BuildWorkers))
	return out, nil
}

func (s *scene) ReleasePrototype(p *Prototype) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil || p.scene != s || p.released {
		return ErrUnknownPrototype
	}
	p.released = true
	if p.refs > 0 {
		return nil
	}
	return s.freePrototype(p)
}

func (s *scene) Prototypes() []*Prototype {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Prototype, 0, len(s.prototypes))
	for _, id := range slices.Sorted(maps.Keys(s.prototypes)) {
		out = append(out, s.prototypes[id])
	}
	return out
}

func (s *scene) AddInstance(p *Prototype) (_ *Instance, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil || p.scene != s || p.released {
		return nil, ErrUnknownPrototype
	}

	id := s.nextInstanceID
	if id == bvh.NullIndex {
		return nil, errors.Wrap(buffer.ErrCapacity, "scene: instance ids exhausted")
	}
	inst := &Instance{scene: s, id: id, prototype: p, transform: NewTransform()}

	packed := make([]float32, TransformStride)
	inst.transform.Pack(packed)
	if inst.transformView, err = s.transforms.Allocate(packed); err != nil {
		return nil, err
	}
	mat := make([]float32, MaterialStride)
	DefaultInstanceMaterial().Pack(mat)
	if inst.materialView, err = s.materials.Allocate(mat); err != nil {
		return nil, errors.CombineErrors(err, s.transforms.Free(inst.transformView))
	}
	if err = s.tree.Insert(id, inst, worldBounds(p.bounds, inst.transform)); err != nil {
		err = errors.CombineErrors(err, s.materials.Free(inst.materialView))
		return nil, errors.CombineErrors(err, s.transforms.Free(inst.transformView))
	}

	s.nextInstanceID++
	p.refs++
	return inst, nil
}

func (s *scene) RemoveInstance(inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst == nil || inst.scene != s || inst.removed {
		return ErrUnknownInstance
	}
	return s.removeInstance(inst)
}

// removeInstance unlinks inst and frees its views. The caller holds the write lock.
func (s *scene) removeInstance(inst *Instance) error {
	if err := s.tree.Remove(inst.id); err != nil {
		return err
	}
	inst.removed = true
	err := errors.CombineErrors(s.transforms.Free(inst.transformView), s.materials.Free(inst.materialView))

	p := inst.prototype
	p.refs--
	if p.refs == 0 && p.released {
		err = errors.CombineErrors(err, s.freePrototype(p))
	}
	return errors.Wrapf(err, "remove instance %d", inst.id)
}

func (s *scene) Instance(id uint32) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.tree.Get(id)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownInstance, "id %d", id)
	}
	return inst, nil
}

func (s *scene) Instances() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instancesLocked()
}

func (s *scene) instancesLocked() []*Instance {
	entries := s.tree.Entries()
	out := make([]*Instance, len(entries))
	for i, e := range entries {
		out[i] = e.Item
	}
	return out
}

func (s *scene) InstanceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

func (s *scene) VisibleInstances(f *common.Frustum) []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.tree.QueryFrustum(f)
	out := make([]*Instance, 0, len(ids))
	for _, id := range ids {
		inst, _ := s.tree.Get(id)
		out = append(out, inst)
	}
	return out
}

func (s *scene) NearestHit(r bvh.Ray) bvh.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	depth := s.cfg.MaxTraversalDepth
	hit := bvh.NoHit()
	res := s.tree.Traverse(r, math32.Inf(1), depth, func(id uint32, tMax float32) (float32, bool) {
		inst, _ := s.tree.Get(id)
		p := inst.prototype
		local := inst.objectRay(r)
		vertices := p.vertices.Slice()

		var u, v float32
		inner := p.flat().Traverse(local, tMax, depth, func(tri uint32, tMax float32) (float32, bool) {
			d, tu, tv, ok := bvh.IntersectTriangle(local, p.triangle(vertices, tri), tMax)
			if ok {
				u, v = tu, tv
			}
			return d, ok
		})
		hit.Truncated = hit.Truncated || inner.Truncated
		if !inner.Hit() {
			return 0, false
		}
		hit.TriangleID, hit.U, hit.V = inner.ID, u, v
		return inner.Distance, true
	})

	hit.Truncated = hit.Truncated || res.Truncated
	if hit.Truncated {
		s.truncated.Add(1)
	}
	if !res.Hit() {
		return bvh.Hit{Distance: res.Distance, InstanceID: bvh.NullIndex, TriangleID: bvh.NullIndex, Truncated: hit.Truncated}
	}
	hit.Distance = res.Distance
	hit.InstanceID = res.ID
	return hit
}

func (s *scene) Pick(cam camera.Camera, x, y, width, height float32) bvh.Hit {
	return s.NearestHit(cam.ScreenRay(x, y, width, height))
}

func (s *scene) AttachGPU(backend gpu.Backend) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		return ErrGPUAttached
	}

	var linear []gpu.LinearMirror
	defer func() {
		if err == nil {
			return
		}
		for _, m := range linear {
			err = errors.CombineErrors(err, m.Destroy())
		}
	}()

	sources := []buffer.Source{
		s.vertices, s.triangleMaterials, s.prototypeNodes, s.prototypeBounds,
		s.transforms, s.materials, s.instanceTable, s.instanceNodes, s.instanceBounds,
	}
	for _, src := range sources {
		m, err := gpu.NewLinearMirror(src, backend, gpu.WithMinElements(s.cfg.MinBufferElements))
		if err != nil {
			return errors.Wrapf(err, "scene: attach %q", src.Label())
		}
		linear = append(linear, m)
	}
	normals, err := gpu.NewTextureArrayMirror(s.normals, backend,
		gpu.WithTextureSize(uint32(s.cfg.TextureWidth), uint32(s.cfg.TextureHeight)))
	if err != nil {
		return errors.Wrapf(err, "scene: attach %q", s.normals.Label())
	}

	s.backend = backend
	s.linearMirrors = linear
	s.normalMirror = normals
	s.logger().Info("GPU attached", slog.Int("mirrors", len(linear)+1))
	return nil
}

func (s *scene) DetachGPU() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	var err error
	for _, m := range s.linearMirrors {
		err = errors.CombineErrors(err, m.Destroy())
	}
	err = errors.CombineErrors(err, s.normalMirror.Destroy())
	s.backend, s.linearMirrors, s.normalMirror = nil, nil, nil
	s.logger().Info("GPU detached")
	return err
}

func (s *scene) Buffers() Buffers {
	return Buffers{
		Vertices:          s.vertices,
		Normals:           s.normals,
		TriangleMaterials: s.triangleMaterials,
		PrototypeNodes:    s.prototypeNodes,
		PrototypeBounds:   s.prototypeBounds,
		Transforms:        s.transforms,
		Materials:         s.materials,
		InstanceTable:     s.instanceTable,
		InstanceNodes:     s.instanceNodes,
		InstanceBounds:    s.instanceBounds,
	}
}

func (s *scene) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Prototypes:          len(s.prototypes),
		Instances:           s.tree.Len(),
		BVHRebuilds:         s.tree.Rebuilds(),
		TruncatedTraversals: s.truncated.Load(),
	}
	for _, p := range s.prototypes {
		st.Triangles += p.triangles
	}
	b := s.Buffers()
	st.Reallocations = b.Vertices.Reallocations() + b.Normals.Reallocations() + b.TriangleMaterials.Reallocations() +
		b.PrototypeNodes.Reallocations() + b.PrototypeBounds.Reallocations() + b.Transforms.Reallocations() +
		b.Materials.Reallocations() + b.InstanceTable.Reallocations() + b.InstanceNodes.Reallocations() +
		b.InstanceBounds.Reallocations()
	for _, m := range s.linearMirrors {
		st.GPU = st.GPU.Add(m.Stats())
	}
	if s.normalMirror != nil {
		st.GPU = st.GPU.Add(s.normalMirror.Stats())
	}
	return st
}

func (s *scene) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inst := range s.instancesLocked() {
		inst.removed = true
	}
	for _, p := range s.prototypes {
		p.released, p.freed, p.refs = true, true, 0
	}
	clear(s.prototypes)
	s.tree = bvh.NewDynamicTree[*Instance](bvh.WithRebuildRatio(s.cfg.RebuildRatio))

	var err error
	b := s.Buffers()
	for _, free := range []func() error{
		b.Vertices.FreeAll, b.Normals.FreeAll, b.TriangleMaterials.FreeAll, b.PrototypeNodes.FreeAll,
		b.PrototypeBounds.FreeAll, b.Transforms.FreeAll, b.Materials.FreeAll, b.InstanceTable.FreeAll,
		b.InstanceNodes.FreeAll, b.InstanceBounds.FreeAll,
	} {
		err = errors.CombineErrors(err, free())
	}
	s.logger().Debug("scene cleared")
	return errors.Wrap(err, "scene: clear")
}
