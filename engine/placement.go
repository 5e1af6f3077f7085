package engine

import (
	"context"

	"github.com/Carmen-Shannon/oxy-rt/engine/loader"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/cockroachdb/errors"
)

// Placed is what PlaceModel added to a scene.
type Placed struct {
	// Prototypes holds one prototype per mesh of the model, in mesh order.
	Prototypes []*scene.Prototype
	// Instances holds one instance per placement of the model, in placement order.
	Instances []*scene.Instance
}

// PlaceModel builds a prototype for every mesh of m, then instances them as the model's placements
// say, each with the placement's transform and the primary material of its mesh.
// On error everything already added is removed again.
//
// Parameters:
//   - ctx: cancels the prototype builds
//   - s: the target scene
//   - m: the loaded model
//
// Returns:
//   - Placed: the new prototypes and instances
//   - error: a prototype, instance or transform error
func PlaceModel(ctx context.Context, s scene.Scene, m *loader.Model) (Placed, error) {
	for _, pl := range m.Placements {
		if pl.Mesh < 0 || pl.Mesh >= len(m.Meshes) {
			return Placed{}, errors.Wrapf(loader.ErrMalformedModel, "placement %q references mesh %d", pl.Name, pl.Mesh)
		}
	}

	protos, err := s.LoadPrototypes(ctx, m.Meshes)
	if err != nil {
		return Placed{}, errors.Wrapf(err, "engine: place %s", m.Name)
	}
	placed := Placed{Prototypes: protos}

	for _, pl := range m.Placements {
		inst, err := s.AddInstance(protos[pl.Mesh])
		if err != nil {
			return Placed{}, errors.CombineErrors(errors.Wrapf(err, "engine: place %s", m.Name), unplace(s, placed))
		}
		placed.Instances = append(placed.Instances, inst)

		pos, rot, scale := pl.Decompose()
		t := scene.NewTransform()
		t.SetPosition(pos)
		t.SetRotation(rot)
		t.SetScale(scale)
		err = errors.CombineErrors(inst.SetTransform(t), inst.SetMaterial(scene.MaterialFromData(m.PrimaryMaterial(pl.Mesh))))
		if err != nil {
			return Placed{}, errors.CombineErrors(errors.Wrapf(err, "engine: place %s", m.Name), unplace(s, placed))
		}
	}
	return placed, nil
}

// unplace removes the instances and releases the prototypes of a partial placement.
func unplace(s scene.Scene, p Placed) error {
	var err error
	for _, inst := range p.Instances {
		err = errors.CombineErrors(err, s.RemoveInstance(inst))
	}
	for _, proto := range p.Prototypes {
		err = errors.CombineErrors(err, s.ReleasePrototype(proto))
	}
	return err
}
