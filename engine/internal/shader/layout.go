// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// Capacities of the GPU arrays.
// Shaders declare these as static array bounds, so
// they are fixed at compile time.
const (
	MaxGeom  = 4096
	MaxLight = 4096
	MaxStyle = 64
)

// Sizes of the GPU records, in bytes.
const (
	GeomSize   = int64(unsafe.Sizeof(GeometryLayout{}))
	LightSize  = int64(unsafe.Sizeof(LightLayout{}))
	VertexSize = int64(unsafe.Sizeof(VertexLayout{}))
)

// GeometryLayout is the layout of geometry instance data.
// It is defined as follows:
//
//	[0:16]  | model matrix
//	[16:32] | previous model matrix
//	[32]    | flags
//	[33:37] | color/ORM/normal/emissive texture indices
//	[37:40] | layer 1-3 color texture indices
//	[40:44] | base and layer 1-3 packed color factors
//	[44]    | first vertex
//	[45]    | first index
//	[46]    | previous first vertex
//	[47]    | previous first index
//	[48]    | vertex count
//	[49]    | index count
//	[50]    | default roughness
//	[51]    | default metalness
//	[52]    | emissive multiplier
//	[53:56] | layer 1-3 first vertices
type GeometryLayout [56]float32

// SetModel sets the model matrix.
func (l *GeometryLayout) SetModel(m *mgl32.Mat4) { copy(l[:16], m[:]) }

// SetPrevModel sets the previous-frame model matrix.
func (l *GeometryLayout) SetPrevModel(m *mgl32.Mat4) { copy(l[16:32], m[:]) }

// SetFlags sets the geometry flags.
func (l *GeometryLayout) SetFlags(f uint32) { l[32] = math.Float32frombits(f) }

// SetTextures sets the color/ORM/normal/emissive texture
// indices of the base layer.
func (l *GeometryLayout) SetTextures(t *[4]uint32) {
	for i, x := range t {
		l[33+i] = math.Float32frombits(x)
	}
}

// SetLayerTexture sets the color texture index of a
// texture coordinate layer.
// layer must be 1, 2 or 3.
func (l *GeometryLayout) SetLayerTexture(layer int, tex uint32) {
	if layer < 1 || layer > 3 {
		panic("shader.GeometryLayout: invalid layer")
	}
	l[36+layer] = math.Float32frombits(tex)
}

// SetColorFactor sets a packed color factor.
// Layer 0 refers to the base layer.
func (l *GeometryLayout) SetColorFactor(layer int, c uint32) {
	if layer < 0 || layer > 3 {
		panic("shader.GeometryLayout: invalid layer")
	}
	l[40+layer] = math.Float32frombits(c)
}

// SetFirstVertex sets the offset into the vertex pool.
func (l *GeometryLayout) SetFirstVertex(x uint32) { l[44] = math.Float32frombits(x) }

// SetFirstIndex sets the offset into the index pool.
// Non-indexed geometry uses the all-ones pattern.
func (l *GeometryLayout) SetFirstIndex(x uint32) { l[45] = math.Float32frombits(x) }

// FirstVertex returns the offset into the vertex pool.
func (l *GeometryLayout) FirstVertex() uint32 { return math.Float32bits(l[44]) }

// FirstIndex returns the offset into the index pool.
func (l *GeometryLayout) FirstIndex() uint32 { return math.Float32bits(l[45]) }

// SetVertexCount sets the vertex count.
func (l *GeometryLayout) SetVertexCount(n uint32) { l[48] = math.Float32frombits(n) }

// SetIndexCount sets the index count.
// Non-indexed geometry uses the all-ones pattern.
func (l *GeometryLayout) SetIndexCount(n uint32) { l[49] = math.Float32frombits(n) }

// VertexCount returns the vertex count.
func (l *GeometryLayout) VertexCount() uint32 { return math.Float32bits(l[48]) }

// IndexCount returns the index count.
func (l *GeometryLayout) IndexCount() uint32 { return math.Float32bits(l[49]) }

// SetRoughness sets the default roughness.
// It is clamped to [0, 1].
func (l *GeometryLayout) SetRoughness(r float32) { l[50] = mgl32.Clamp(r, 0, 1) }

// SetMetalness sets the default metalness.
// It is clamped to [0, 1].
func (l *GeometryLayout) SetMetalness(m float32) { l[51] = mgl32.Clamp(m, 0, 1) }

// SetEmissiveMult sets the emissive multiplier.
// It is clamped to [0, 1].
func (l *GeometryLayout) SetEmissiveMult(e float32) { l[52] = mgl32.Clamp(e, 0, 1) }

// SetLayerFirstVertex sets the offset into the pool of a
// texture coordinate layer.
// layer must be 1, 2 or 3.
func (l *GeometryLayout) SetLayerFirstVertex(layer int, x uint32) {
	if layer < 1 || layer > 3 {
		panic("shader.GeometryLayout: invalid layer")
	}
	l[52+layer] = math.Float32frombits(x)
}

// CopyPrevFrom sets the previous-frame fields of l from
// the current-frame fields of prev.
func (l *GeometryLayout) CopyPrevFrom(prev *GeometryLayout) {
	copy(l[16:32], prev[:16])
	l[46] = prev[44]
	l[47] = prev[45]
}

// ClearPrev marks l as having no previous-frame data.
// The previous model matrix becomes the current one and
// the previous first vertex/index get the all-ones
// pattern.
func (l *GeometryLayout) ClearPrev() {
	copy(l[16:32], l[:16])
	l[46] = math.Float32frombits(^uint32(0))
	l[47] = l[46]
}

// LightLayout is the layout of light data.
// It is defined as follows:
//
//	[0]   | packed color (shared-exponent)
//	[1]   | light type
//	[2:6] | type-specific data
type LightLayout [6]float32

// Types of light.
const (
	LightDistant uint32 = iota
	LightSphere
	LightSpot
)

// SetColor sets the packed color.
func (l *LightLayout) SetColor(c uint32) { l[0] = math.Float32frombits(c) }

// Color returns the packed color.
func (l *LightLayout) Color() uint32 { return math.Float32bits(l[0]) }

// SetType sets the light type.
func (l *LightLayout) SetType(typ uint32) { l[1] = math.Float32frombits(typ) }

// SetData sets one of the type-specific values.
// i must be in the range [0, 3].
func (l *LightLayout) SetData(i int, x float32) {
	if i < 0 || i > 3 {
		panic("shader.LightLayout: invalid data index")
	}
	l[2+i] = x
}

// SetDataBits sets one of the type-specific values from
// a raw bit pattern.
// i must be in the range [0, 3].
func (l *LightLayout) SetDataBits(i int, x uint32) {
	if i < 0 || i > 3 {
		panic("shader.LightLayout: invalid data index")
	}
	l[2+i] = math.Float32frombits(x)
}

// VertexLayout is the layout of vertex data.
// It is defined as follows:
//
//	[0:3] | position
//	[3]   | packed normal (octahedral)
//	[4:6] | texture coordinates
//	[6]   | packed color
//	[7]   | (unused)
type VertexLayout [8]float32

// SetPosition sets the position.
func (l *VertexLayout) SetPosition(p mgl32.Vec3) { copy(l[:3], p[:]) }

// SetNormal sets the packed normal.
func (l *VertexLayout) SetNormal(n mgl32.Vec3) { l[3] = math.Float32frombits(PackNormal(n)) }

// SetTexCoord sets the texture coordinates.
func (l *VertexLayout) SetTexCoord(u, v float32) { l[4], l[5] = u, v }

// SetColor sets the packed color.
func (l *VertexLayout) SetColor(c uint32) { l[6] = math.Float32frombits(c) }
