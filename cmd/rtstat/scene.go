// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Scene loading and frame recording.

package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"gviegas/rt/engine"
	"gviegas/rt/gltf"
)

// payload is one mesh primitive ready for upload.
type payload struct {
	mesh engine.Mesh
	prim engine.Primitive
}

// sceneData describes a scene independently of any frame.
type sceneData struct {
	name      string
	static    []payload
	lights    []engine.Light
	materials []string
	// mover returns the animated geometry of the i-th
	// frame and the lamp attached to it. May be nil.
	mover func(i int) (payload, engine.Light)
}

// loadGLTF flattens the default scene of a glTF asset.
// Every primitive is treated as static geometry.
func loadGLTF(path string) (*sceneData, error) {
	f, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	fl, err := f.Flatten(-1)
	if err != nil {
		return nil, err
	}
	sd := &sceneData{name: path}
	seen := make(map[string]bool)
	for i := range fl.Prims {
		p := &fl.Prims[i]
		pl := payload{
			mesh: engine.Mesh{
				ObjectID:  uint64(p.Node) + 1,
				Transform: p.World,
			},
			prim: engine.Primitive{
				Index:    p.Index,
				Vertices: make([]engine.Vertex, len(p.Positions)),
				Indices:  p.Indices,
				Material: materialName(p.Material),
				Color:    packColor4(p.Material.BaseColor()),
				Emissive: maxChannel(p.Material.Emissive()),
				MetalRough: &engine.MetalRough{
					Metalness: p.Material.Metalness(),
					Roughness: p.Material.Roughness(),
				},
			},
		}
		if p.Material.Masked() {
			pl.prim.Flags |= engine.PrimAlphaTested
		}
		for j := range pl.prim.Vertices {
			v := engine.Vertex{
				Position: p.Positions[j],
				Normal:   p.Normals[j],
				Color:    engine.PackColor(1, 1, 1, 1),
			}
			if p.TexCoords != nil {
				v.TexCoord = p.TexCoords[j]
			}
			pl.prim.Vertices[j] = v
		}
		if name := pl.prim.Material; name != "" && !seen[name] {
			seen[name] = true
			sd.materials = append(sd.materials, name)
		}
		sd.static = append(sd.static, pl)
	}
	for i := range fl.Lights {
		sd.lights = append(sd.lights, convertLight(uint64(i)+1, &fl.Lights[i]))
	}
	return sd, nil
}

func materialName(m *gltf.Material) string {
	if m == nil {
		return ""
	}
	return m.Name
}

func packColor4(c [4]float32) uint32 {
	return engine.PackColor(c[0], c[1], c[2], c[3])
}

func maxChannel(c [3]float32) float32 {
	return max(c[0], c[1], c[2])
}

// convertLight maps a punctual light onto the closest
// engine light source.
// Spot and point lights get a small emitter radius, as
// punctual lights have none.
func convertLight(id uint64, l *gltf.PunctualLight) engine.Light {
	switch l.Type {
	case gltf.Ldirectional:
		return (&engine.DistantLight{
			ID:         id,
			Direction:  l.Direction,
			R:          l.Color[0],
			G:          l.Color[1],
			B:          l.Color[2],
			Intensity:  l.Intensity,
			Volumetric: true,
			Style:      -1,
		}).Light()
	case gltf.Lspot:
		return (&engine.SpotLight{
			ID:         id,
			Position:   l.Position,
			Direction:  l.Direction,
			Radius:     0.05,
			InnerAngle: l.Inner,
			OuterAngle: l.Outer,
			R:          l.Color[0],
			G:          l.Color[1],
			B:          l.Color[2],
			Intensity:  l.Intensity,
			Style:      -1,
		}).Light()
	default:
		return (&engine.SphereLight{
			ID:        id,
			Position:  l.Position,
			Radius:    0.05,
			R:         l.Color[0],
			G:         l.Color[1],
			B:         l.Color[2],
			Intensity: l.Intensity,
			Style:     -1,
		}).Light()
	}
}

// uploadStatic records and builds the static scene.
func uploadStatic(s *engine.Scene, sd *sceneData) error {
	if err := s.BeginStatic(); err != nil {
		return err
	}
	for i := range sd.static {
		p := &sd.static[i]
		if err := s.UploadPrimitive(0, &p.mesh, &p.prim); err != nil {
			return err
		}
	}
	for _, l := range sd.lights {
		if err := s.UploadLight(0, l); err != nil {
			return err
		}
	}
	return s.SubmitStatic()
}

// runFrame records and submits the i-th frame.
func runFrame(s *engine.Scene, sd *sceneData, i, frame, cullMask int, allowSky bool) error {
	if err := s.PrepareForFrame(frame); err != nil {
		return err
	}
	if sd.mover != nil {
		pl, lamp := sd.mover(i)
		if err := s.UploadPrimitive(frame, &pl.mesh, &pl.prim); err != nil {
			return err
		}
		if err := s.UploadLight(frame, lamp); err != nil {
			return err
		}
	}
	if err := s.SubmitStaticLights(frame); err != nil {
		return err
	}
	return s.SubmitForFrame(frame, cullMask, allowSky, false)
}

var up = mgl32.Vec3{0, 1, 0}

// quad returns an XZ-plane rectangle of the given half
// extents, facing up.
func quad(hx, hz float32) ([]engine.Vertex, []uint32) {
	white := engine.PackColor(1, 1, 1, 1)
	vs := []engine.Vertex{
		{Position: mgl32.Vec3{-hx, 0, -hz}, Normal: up, TexCoord: mgl32.Vec2{0, 0}, Color: white},
		{Position: mgl32.Vec3{-hx, 0, hz}, Normal: up, TexCoord: mgl32.Vec2{0, 1}, Color: white},
		{Position: mgl32.Vec3{hx, 0, hz}, Normal: up, TexCoord: mgl32.Vec2{1, 1}, Color: white},
		{Position: mgl32.Vec3{hx, 0, -hz}, Normal: up, TexCoord: mgl32.Vec2{1, 0}, Color: white},
	}
	return vs, []uint32{0, 1, 2, 0, 2, 3}
}

// box returns an axis-aligned box of the given half
// extents, with per-face normals.
func box(hx, hy, hz float32) ([]engine.Vertex, []uint32) {
	faces := [6]struct {
		n, u, v mgl32.Vec3
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	white := engine.PackColor(1, 1, 1, 1)
	vs := make([]engine.Vertex, 0, 24)
	is := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vs))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := f.n.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1]))
			vs = append(vs, engine.Vertex{
				Position: mgl32.Vec3{p.X() * hx, p.Y() * hy, p.Z() * hz},
				Normal:   f.n,
				TexCoord: mgl32.Vec2{(c[0] + 1) / 2, (c[1] + 1) / 2},
				Color:    white,
			})
		}
		is = append(is, base, base+1, base+2, base, base+2, base+3)
	}
	return vs, is
}

// builtinScene is a small procedural environment: a ground
// slab, a pillar, a water pool, an alpha-tested banner, a
// sky quad and an orbiting box with a lamp attached.
func builtinScene() *sceneData {
	sd := &sceneData{
		name:      "builtin",
		materials: []string{"ground", "stone", "water", "banner", "sky", "lamp"},
	}
	add := func(id uint64, at mgl32.Mat4, flags engine.PrimFlags, material string, color uint32, vs []engine.Vertex, is []uint32) {
		sd.static = append(sd.static, payload{
			mesh: engine.Mesh{ObjectID: id, Transform: at},
			prim: engine.Primitive{
				Flags:      flags,
				Vertices:   vs,
				Indices:    is,
				Material:   material,
				Color:      color,
				MetalRough: &engine.MetalRough{Roughness: 1},
			},
		})
	}
	white := engine.PackColor(1, 1, 1, 1)

	vs, is := quad(8, 8)
	add(1, mgl32.Ident4(), 0, "ground", white, vs, is)
	vs, is = box(0.5, 2, 0.5)
	add(2, mgl32.Translate3D(-2, 2, 0), 0, "stone", white, vs, is)
	vs, is = quad(2, 2)
	add(3, mgl32.Translate3D(3, 0.01, 3), engine.PrimWater, "water", engine.PackColor(0.3, 0.5, 0.8, 0.8), vs, is)
	vs, is = quad(1, 1)
	add(4, mgl32.Translate3D(0, 1.5, -3).Mul4(mgl32.HomogRotate3DX(float32(math.Pi/2))), engine.PrimAlphaTested, "banner", white, vs, is)
	vs, is = quad(32, 32)
	add(5, mgl32.Translate3D(0, 16, 0), engine.PrimSky, "sky", white, vs, is)

	sd.lights = []engine.Light{
		(&engine.DistantLight{
			ID:              1,
			Direction:       mgl32.Vec3{-0.3, -1, -0.2}.Normalize(),
			R:               1,
			G:               0.98,
			B:               0.92,
			Intensity:       4,
			AngularDiameter: 0.53,
			Volumetric:      true,
			Style:           -1,
		}).Light(),
		(&engine.SphereLight{
			ID:        2,
			Position:  mgl32.Vec3{2, 2.5, -1},
			Radius:    0.1,
			R:         1,
			G:         0.6,
			B:         0.3,
			Intensity: 8,
			Style:     -1,
		}).Light(),
		(&engine.SpotLight{
			ID:         3,
			Position:   mgl32.Vec3{-3, 4, 3},
			Direction:  mgl32.Vec3{0.4, -1, -0.4}.Normalize(),
			Radius:     0.05,
			InnerAngle: 0.3,
			OuterAngle: 0.5,
			R:          0.8,
			G:          0.9,
			B:          1,
			Intensity:  12,
			Style:      -1,
		}).Light(),
	}

	boxVS, boxIS := box(0.25, 0.25, 0.25)
	sd.mover = func(i int) (payload, engine.Light) {
		a := float32(i) * 0.1
		x := 3 * float32(math.Cos(float64(a)))
		z := 3 * float32(math.Sin(float64(a)))
		pl := payload{
			mesh: engine.Mesh{
				ObjectID:  100,
				Transform: mgl32.Translate3D(x, 1, z).Mul4(mgl32.HomogRotate3DY(a)),
			},
			prim: engine.Primitive{
				Vertices:   boxVS,
				Indices:    boxIS,
				Material:   "lamp",
				Color:      white,
				Emissive:   1,
				MetalRough: &engine.MetalRough{Metalness: 1, Roughness: 0.2},
			},
		}
		lamp := (&engine.SphereLight{
			ID:        100,
			Position:  mgl32.Vec3{x, 1.6, z},
			Radius:    0.1,
			R:         0.4,
			G:         0.8,
			B:         1,
			Intensity: 6,
			Style:     -1,
		}).Light()
		return pl, lamp
	}
	return sd
}
