// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Classification of uploaded geometry.

package engine

// Category is the change frequency of uploaded geometry.
// It determines which buffer pool receives a primitive's
// data and how its structure builds are tuned.
type Category int8

// Categories.
const (
	// CStatic geometry persists until the next
	// static rebuild.
	CStatic Category = iota
	// CReplacement geometry substitutes a named mesh.
	CReplacement
	// CDynamic geometry lives for a single frame.
	CDynamic
)

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case CStatic:
		return "static"
	case CReplacement:
		return "replacement"
	case CDynamic:
		return "dynamic"
	default:
		return "[!] invalid Category value"
	}
}

// fastBuild reports whether structure builds of the
// category favor build speed over trace speed.
func (c Category) fastBuild() bool { return c == CDynamic }

// passThrough describes how rays interact with a
// primitive's surface.
type passThrough int8

const (
	pOpaque passThrough = iota
	pAlphaTested
	pRefract
)

// visibility is the ray visibility group of a primitive.
type visibility int8

const (
	vWorld0 visibility = iota
	vWorld1
	vWorld2
	vFirstPerson
	vFirstPersonViewer
)

// Ray cull mask bits.
// A ray traverses an instance when the instance's mask
// and the ray's cull mask intersect.
const (
	MaskWorld0            = 1 << 0
	MaskWorld1            = 1 << 1
	MaskWorld2            = 1 << 2
	MaskFirstPerson       = 1 << 3
	MaskFirstPersonViewer = 1 << 4
	MaskRefract           = 1 << 5

	// MaskWorldAll covers every world partition.
	// Shadow rays must use MaskWorld0 alone, as
	// world 1 casts no shadows and world 2 is
	// the sky.
	MaskWorldAll = MaskWorld0 | MaskWorld1 | MaskWorld2
)

// Custom index flag bits.
// Shaders decode these from the upper bits of an
// instance's custom index.
const (
	FlagFirstPerson       = 1 << 0
	FlagFirstPersonViewer = 1 << 1
	FlagSky               = 1 << 2
)

// Hit group order expected in the shader binding table.
const (
	SBTOpaque      = 0
	SBTAlphaTested = 1
)

// classifyPassThrough computes the pass-through of a
// primitive from its own flags and those of the mesh.
func classifyPassThrough(mf MeshFlags, pf PrimFlags) passThrough {
	switch {
	case pf&PrimAlphaTested != 0:
		return pAlphaTested
	case pf&(PrimWater|PrimGlass|PrimGlassIfSmooth|PrimAcid) != 0:
		return pRefract
	case mf&(MeshWater|MeshGlass) != 0:
		return pRefract
	default:
		return pOpaque
	}
}

// classifyVisibility computes the ray visibility group of
// a primitive from its own flags and those of the mesh.
func classifyVisibility(mf MeshFlags, pf PrimFlags) visibility {
	switch {
	case mf&MeshFirstPerson != 0:
		return vFirstPerson
	case mf&MeshFirstPersonViewer != 0:
		return vFirstPersonViewer
	case pf&PrimSky != 0:
		// Sky is world 2.
		return vWorld2
	case pf&PrimNoShadow != 0:
		return vWorld1
	default:
		return vWorld0
	}
}

// Geometry record flag bits.
// Shaders decode these from the flags field of
// shader.GeometryLayout.
const (
	geomExistsLayer1 uint32 = 1 << iota
	geomExistsLayer2
	geomExistsLayer3
	geomReflect
	geomRefract
	geomMediaWater
	geomMediaGlass
	geomMediaAcid
	geomGlassIfSmooth
	geomMirrorIfSmooth
	geomIgnoreRefractAfter
	geomGenNormals
	geomExactNormals
	geomThinMedia
	geomDynamic
)

// makeGeomFlags computes the geometry record flags of a
// primitive. dynamic indicates per-frame vertex data.
func makeGeomFlags(mesh *Mesh, prim *Primitive, dynamic bool) uint32 {
	var f uint32
	for i := range prim.Layers {
		if prim.Layers[i] != nil {
			f |= geomExistsLayer1 << i
		}
	}
	if prim.Flags&PrimMirror != 0 || mesh.Flags&MeshMirror != 0 {
		f |= geomReflect
	}
	if prim.Flags&PrimWater != 0 || mesh.Flags&MeshWater != 0 {
		f |= geomMediaWater | geomReflect | geomRefract
	}
	if prim.Flags&PrimAcid != 0 {
		f |= geomMediaAcid | geomReflect | geomRefract
	}
	if prim.Flags&PrimGlass != 0 || mesh.Flags&MeshGlass != 0 {
		f |= geomMediaGlass | geomReflect | geomRefract
	}
	if prim.Flags&PrimGlassIfSmooth != 0 {
		f |= geomGlassIfSmooth
	}
	if prim.Flags&PrimMirrorIfSmooth != 0 {
		f |= geomMirrorIfSmooth
	}
	if prim.Flags&PrimIgnoreRefractAfter != 0 || mesh.Flags&MeshIgnoreRefractAfter != 0 {
		f |= geomIgnoreRefractAfter
	}
	if prim.Flags&PrimOwnNormals == 0 {
		f |= geomGenNormals
	}
	if prim.Flags&PrimExactNormals != 0 {
		f |= geomExactNormals
	}
	if prim.Flags&PrimThinMedia != 0 {
		f |= geomThinMedia
	}
	if dynamic {
		f |= geomDynamic
	}
	return f
}
