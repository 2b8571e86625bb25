// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Geometry upload payload.

package engine

import "github.com/go-gl/mathgl/mgl32"

// MeshFlags is a bitmask of mesh properties.
// They apply to every primitive of the mesh.
type MeshFlags int

// Mesh flags.
const (
	// MeshFirstPerson restricts the mesh to rays that
	// trace the first-person view.
	MeshFirstPerson MeshFlags = 1 << iota
	// MeshFirstPersonViewer hides the mesh from the
	// first-person view while keeping it visible to
	// other rays.
	MeshFirstPersonViewer
	// MeshMirror makes every primitive a mirror.
	MeshMirror
	// MeshGlass makes every primitive glass.
	MeshGlass
	// MeshWater makes every primitive water.
	MeshWater
	// MeshIgnoreRefractAfter makes every primitive
	// ignore refractive geometry behind it.
	MeshIgnoreRefractAfter
)

// PrimFlags is a bitmask of primitive properties.
type PrimFlags int

// Primitive flags.
const (
	// PrimAlphaTested enables alpha testing.
	PrimAlphaTested PrimFlags = 1 << iota
	// PrimSky assigns the primitive to the sky
	// partition (world 2).
	PrimSky
	// PrimNoShadow assigns the primitive to the
	// shadowless partition (world 1).
	PrimNoShadow
	// PrimMirror makes the primitive a mirror.
	PrimMirror
	// PrimGlass makes the primitive glass.
	PrimGlass
	// PrimWater makes the primitive water.
	PrimWater
	// PrimAcid makes the primitive acid.
	PrimAcid
	// PrimMirrorIfSmooth makes the primitive a mirror
	// where roughness is low enough.
	PrimMirrorIfSmooth
	// PrimGlassIfSmooth makes the primitive glass
	// where roughness is low enough.
	PrimGlassIfSmooth
	// PrimIgnoreRefractAfter ignores refractive
	// geometry behind the primitive.
	PrimIgnoreRefractAfter
	// PrimOwnNormals keeps the supplied vertex normals
	// instead of generating them.
	PrimOwnNormals
	// PrimExactNormals forces geometric normals when
	// shading.
	PrimExactNormals
	// PrimThinMedia treats the primitive's medium as
	// infinitely thin.
	PrimThinMedia
	// PrimNoMotionVectors suppresses temporal pairing,
	// treating the primitive as new every frame.
	PrimNoMotionVectors
)

// Mesh identifies an object instance.
// An object is uploaded anew each frame as a set of
// primitives that share the mesh's transform and flags.
type Mesh struct {
	// ObjectID identifies the object across frames.
	// It must differ from that of every other mesh
	// uploaded to the same frame.
	ObjectID uint64
	Flags    MeshFlags
	// Transform is the mesh-to-world matrix.
	Transform mgl32.Mat4
}

// Vertex is a single vertex of a primitive.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
	// Color is a packed color (see PackColor).
	Color uint32
}

// MetalRough overrides the metallic-roughness multipliers
// of a primitive.
// The values are clamped to the [0.0, 1.0] interval.
type MetalRough struct {
	Metalness float32
	Roughness float32
}

// TextureLayer is an additional texture layer of a
// primitive, blended over the base material.
type TextureLayer struct {
	// TexCoord holds one coordinate pair per vertex.
	// Its length must match the primitive's vertex
	// count.
	TexCoord []mgl32.Vec2
	// Material names the layer's texture set.
	Material string
	// Color is the layer's packed color factor
	// (see PackColor).
	Color uint32
}

// Primitive is an indexed or non-indexed triangle
// geometry with a material.
type Primitive struct {
	// Index is the primitive's index within the mesh.
	// The (Mesh.ObjectID, Index) pair identifies the
	// primitive across frames.
	Index int
	Flags PrimFlags
	// Vertices is the vertex data. Non-indexed
	// primitives must provide a multiple of three
	// vertices.
	Vertices []Vertex
	// Indices is the index data, a multiple of three.
	// It may be nil, in which case the primitive is
	// non-indexed.
	Indices []uint32
	// Material names the base texture set.
	Material string
	// Color is the packed color factor of the base
	// material (see PackColor).
	Color uint32
	// Emissive scales emission. It is clamped to the
	// [0.0, 1.0] interval.
	Emissive float32
	// MetalRough, if non-nil, overrides the
	// metallic-roughness multipliers. Otherwise,
	// metalness 0.0 and roughness 1.0 are assumed.
	MetalRough *MetalRough
	// Layers are the additional texture layers.
	// A nil element means that the layer does not
	// exist.
	Layers [MaxTexLayer]*TextureLayer
}

// id returns the identity of prim within mesh.
func (p *Primitive) id(mesh *Mesh) PrimitiveID {
	return PrimitiveID{ObjectID: mesh.ObjectID, PrimitiveIndex: p.Index}
}

// indexed reports whether p is an indexed primitive.
func (p *Primitive) indexed() bool { return len(p.Indices) != 0 }

// triangleCount returns the number of triangles of p.
func (p *Primitive) triangleCount() int {
	if p.indexed() {
		return len(p.Indices) / 3
	}
	return len(p.Vertices) / 3
}
