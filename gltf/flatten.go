// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Flattening of the node hierarchy into renderable data.

package gltf

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Prim is a renderable primitive flattened from the node
// hierarchy of a glTF scene.
// Positions, Normals and TexCoords are in mesh-local
// space; World places the primitive.
type Prim struct {
	Name      string
	Node      int
	Mesh      int
	Index     int
	World     mgl32.Mat4
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	TexCoords []mgl32.Vec2 // Nil when absent.
	Indices   []uint32     // Nil when non-indexed.
	Material  *Material    // Nil when unset.
}

// PunctualLight is a light flattened from the node
// hierarchy of a glTF scene, with defaults resolved.
// Position and Direction are in world space.
type PunctualLight struct {
	Name      string
	Node      int
	Type      string // Ldirectional, Lpoint or Lspot.
	Color     [3]float32
	Intensity float32
	Range     float32    // 0 for infinite range.
	Position  mgl32.Vec3 // Point and spot lights.
	Direction mgl32.Vec3 // Directional and spot lights.
	Inner     float32    // Spot cone angles, in radians.
	Outer     float32
}

// spot.outerConeAngle default (π/4).
const dflOuterCone = 0.7853981633974483

// Flat holds every renderable primitive and punctual
// light reachable from a scene's root nodes.
type Flat struct {
	Prims  []Prim
	Lights []PunctualLight
}

// Flatten resolves the node hierarchy of the given scene
// into flat primitive and light lists.
// A negative scene index selects the asset's default
// scene.
func (f *File) Flatten(scene int) (*Flat, error) {
	if scene < 0 {
		scene = 0
		if s := f.Doc.Scene; s != nil {
			scene = int(*s)
		}
	}
	if scene >= len(f.Doc.Scenes) {
		return nil, newErr("no such scene")
	}
	fl := new(Flat)
	seen := make(map[int64]bool)
	for _, n := range f.Doc.Scenes[scene].Nodes {
		if err := f.flattenNode(n, mgl32.Ident4(), seen, fl); err != nil {
			return nil, err
		}
	}
	return fl, nil
}

func (f *File) flattenNode(node int64, parent mgl32.Mat4, seen map[int64]bool, fl *Flat) error {
	if seen[node] {
		return newErr("node hierarchy is not a tree")
	}
	seen[node] = true
	n := &f.Doc.Nodes[node]
	world := parent.Mul4(n.local())
	if n.Mesh != nil {
		if err := f.flattenMesh(int(node), int(*n.Mesh), world, fl); err != nil {
			return err
		}
	}
	if x := n.Extensions; x != nil && x.KHRLightsPunctual != nil {
		f.flattenLight(int(node), x.KHRLightsPunctual.Light, world, fl)
	}
	for _, c := range n.Children {
		if err := f.flattenNode(c, world, seen, fl); err != nil {
			return err
		}
	}
	return nil
}

// local returns the local transform of n.
func (n *Node) local() mgl32.Mat4 {
	if n.Matrix != nil {
		return mgl32.Mat4(*n.Matrix)
	}
	m := mgl32.Ident4()
	if t := n.Translation; t != nil {
		m = mgl32.Translate3D(t[0], t[1], t[2])
	}
	if r := n.Rotation; r != nil {
		q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
		m = m.Mul4(q.Normalize().Mat4())
	}
	if s := n.Scale; s != nil {
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}

func (f *File) flattenMesh(node, mesh int, world mgl32.Mat4, fl *Flat) error {
	m := &f.Doc.Meshes[mesh]
	for i := range m.Primitives {
		p := &m.Primitives[i]
		if p.Mode != nil && *p.Mode != TRIANGLES {
			return newErr("unsupported primitive mode")
		}
		acc, ok := p.Attributes[POSITION]
		if !ok {
			return newErr("primitive has no POSITION attribute")
		}
		pos, err := f.vec3s(acc)
		if err != nil {
			return err
		}
		pr := Prim{
			Name:      m.Name,
			Node:      node,
			Mesh:      mesh,
			Index:     i,
			World:     world,
			Positions: pos,
		}
		if acc, ok := p.Attributes[NORMAL]; ok {
			if pr.Normals, err = f.vec3s(acc); err != nil {
				return err
			}
			if len(pr.Normals) != len(pos) {
				return newErr("attribute count mismatch")
			}
		}
		if acc, ok := p.Attributes[TEXCOORD_0]; ok {
			if pr.TexCoords, err = f.vec2s(acc); err != nil {
				return err
			}
			if len(pr.TexCoords) != len(pos) {
				return newErr("attribute count mismatch")
			}
		}
		if p.Indices != nil {
			if pr.Indices, err = f.indices(*p.Indices); err != nil {
				return err
			}
			for _, x := range pr.Indices {
				if int64(x) >= int64(len(pos)) {
					return newErr("primitive index out of bounds")
				}
			}
		}
		if pr.Normals == nil {
			pr.Normals = genNormals(pos, pr.Indices)
		}
		if p.Material != nil {
			pr.Material = &f.Doc.Materials[*p.Material]
		}
		fl.Prims = append(fl.Prims, pr)
	}
	return nil
}

// genNormals synthesizes smooth, area-weighted vertex
// normals from the triangle geometry.
// A nil idx means non-indexed triangles.
func genNormals(pos []mgl32.Vec3, idx []uint32) []mgl32.Vec3 {
	ns := make([]mgl32.Vec3, len(pos))
	tri := func(i0, i1, i2 uint32) {
		e1 := pos[i1].Sub(pos[i0])
		e2 := pos[i2].Sub(pos[i0])
		// Length proportional to twice the area.
		fn := e1.Cross(e2)
		ns[i0] = ns[i0].Add(fn)
		ns[i1] = ns[i1].Add(fn)
		ns[i2] = ns[i2].Add(fn)
	}
	if idx == nil {
		for i := 0; i+2 < len(pos); i += 3 {
			tri(uint32(i), uint32(i+1), uint32(i+2))
		}
	} else {
		for i := 0; i+2 < len(idx); i += 3 {
			tri(idx[i], idx[i+1], idx[i+2])
		}
	}
	for i := range ns {
		if n := ns[i].Len(); n > 1e-6 {
			ns[i] = ns[i].Mul(1 / n)
		} else {
			// Degenerate geometry.
			ns[i] = mgl32.Vec3{0, 1, 0}
		}
	}
	return ns
}

func (f *File) flattenLight(node int, light int64, world mgl32.Mat4, fl *Flat) {
	l := &f.Doc.Extensions.KHRLightsPunctual.Lights[light]
	pl := PunctualLight{
		Name:      l.Name,
		Node:      node,
		Type:      l.Type,
		Color:     [3]float32{1, 1, 1},
		Intensity: 1,
		Range:     l.Range,
		Position:  world.Col(3).Vec3(),
		// Lights emit along -Z.
		Direction: world.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3().Normalize(),
	}
	if l.Color != nil {
		pl.Color = *l.Color
	}
	if l.Intensity != nil {
		pl.Intensity = *l.Intensity
	}
	if s := l.Spot; s != nil {
		pl.Inner = s.InnerConeAngle
		pl.Outer = dflOuterCone
		if s.OuterConeAngle != nil {
			pl.Outer = *s.OuterConeAngle
		}
	}
	fl.Lights = append(fl.Lights, pl)
}

// BaseColor returns the base color factor of m, or its
// default when unset.
// It is valid to call on a nil receiver.
func (m *Material) BaseColor() [4]float32 {
	if m != nil && m.PBRMetallicRoughness != nil && m.PBRMetallicRoughness.BaseColorFactor != nil {
		return *m.PBRMetallicRoughness.BaseColorFactor
	}
	return [4]float32{1, 1, 1, 1}
}

// Metalness returns the metallic factor of m, or its
// default when unset.
// It is valid to call on a nil receiver.
func (m *Material) Metalness() float32 {
	if m != nil && m.PBRMetallicRoughness != nil && m.PBRMetallicRoughness.MetallicFactor != nil {
		return *m.PBRMetallicRoughness.MetallicFactor
	}
	return 1
}

// Roughness returns the roughness factor of m, or its
// default when unset.
// It is valid to call on a nil receiver.
func (m *Material) Roughness() float32 {
	if m != nil && m.PBRMetallicRoughness != nil && m.PBRMetallicRoughness.RoughnessFactor != nil {
		return *m.PBRMetallicRoughness.RoughnessFactor
	}
	return 1
}

// Emissive returns the emissive factor of m, or its
// default when unset.
// It is valid to call on a nil receiver.
func (m *Material) Emissive() [3]float32 {
	if m != nil && m.EmissiveFactor != nil {
		return *m.EmissiveFactor
	}
	return [3]float32{}
}

// Masked returns whether m uses alpha-mask coverage.
// It is valid to call on a nil receiver.
func (m *Material) Masked() bool {
	return m != nil && m.AlphaMode == MASK
}
