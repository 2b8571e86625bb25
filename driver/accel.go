// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

// ASAlign is the alignment of acceleration structure
// offsets into their backing buffers.
// It matches the strictest alignment among the APIs
// that the driver interfaces target.
const ASAlign = 256

// InstanceSize is the size of one packed instance record
// as written by GPU.PackInstances.
const InstanceSize = 64

// ASType distinguishes bottom-level from top-level
// acceleration structures.
type ASType int

// Acceleration structure types.
const (
	// Bottom-level: built from triangle geometry.
	ASBottom ASType = iota
	// Top-level: built from instances of bottom-level
	// structures.
	ASTop
)

// AccelStruct is the interface that defines an
// acceleration structure.
// An acceleration structure occupies a fixed range of a
// backing buffer. Destroying it releases the handle only;
// the backing range is managed by the caller.
// It must be built before being used in a trace or
// referenced by an instance.
type AccelStruct interface {
	Destroyer

	// Type returns the acceleration structure type.
	Type() ASType
}

// ASGeomFlags is a mask of geometry flags for
// acceleration structure builds.
type ASGeomFlags int

// Geometry flags.
const (
	// The geometry does not invoke any-hit shading.
	GOpaque ASGeomFlags = 1 << iota
	// Any-hit shading is invoked at most once per
	// primitive intersection.
	GNoDuplicateAnyHit
)

// ASGeometry describes one triangle geometry of a
// bottom-level acceleration structure.
// Vertex data is fetched from VertexData starting at
// VertexOff, with consecutive vertices VertexStride
// bytes apart. Only the position attribute, as described
// by VertexFmt, is read.
// If IndexData is nil, vertices are assembled
// consecutively; otherwise indices of IndexFmt are
// fetched starting at IndexOff.
type ASGeometry struct {
	VertexData   Buffer
	VertexOff    int64
	VertexFmt    VertexFmt
	VertexStride int64
	VertexCount  int
	IndexData    Buffer
	IndexOff     int64
	IndexFmt     IndexFmt
	Flags        ASGeomFlags
}

// ASRange selects the primitives of an ASGeometry that
// a build reads.
// PrimOff is given in bytes when the geometry is indexed
// and in vertices otherwise. FirstVertex is added to
// every index fetched.
type ASRange struct {
	PrimCount   int
	PrimOff     int
	FirstVertex int
}

// ASBuildFlags is a mask of acceleration structure
// build flags.
type ASBuildFlags int

// Build flags.
const (
	// Prioritize trace performance over build time.
	BFastTrace ASBuildFlags = 1 << iota
	// Prioritize build time over trace performance.
	BFastBuild
	// The structure may be updated.
	BAllowUpdate
	// The structure may be compacted.
	BAllowCompaction
	// Perform an update rather than a full rebuild.
	// Requires that the structure was last built with
	// BAllowUpdate.
	BUpdate
)

// BuildSizes describes the memory requirements of an
// acceleration structure build, as queried through
// GPU.AccelSizes.
type BuildSizes struct {
	// Size of the acceleration structure itself.
	AccelSize int64
	// Scratch size for a full build.
	BuildScratch int64
	// Scratch size for an update.
	UpdateScratch int64
}

// InstFlags is a mask of instance flags.
type InstFlags int

// Instance flags.
const (
	// Treat all geometries as if GOpaque were set.
	IForceOpaque InstFlags = 1 << iota
	// Treat all geometries as if GOpaque were unset.
	IForceNoOpaque
	// Disable face culling for the instance.
	ITriangleCullDisable
	// Front face is counter-clockwise.
	IFrontCCW
)

// TLASInstance describes one instance of a bottom-level
// acceleration structure for inclusion in a top-level
// build.
// Transform holds the rows of a 3x4 transform matrix.
// CustomIndex and SBTOffset are limited to 24 bits.
type TLASInstance struct {
	Blas        AccelStruct
	Transform   [12]float32
	CustomIndex uint32
	Mask        uint8
	SBTOffset   uint32
	Flags       InstFlags
}

// BLASBuild describes the parameters of a bottom-level
// acceleration structure build command.
// Geom and Ranges must have the same length.
// The scratch range must be aligned to the GPU's
// Limits.MinScratchAlign and sized per GPU.AccelSizes.
type BLASBuild struct {
	Dst        AccelStruct
	Geom       []ASGeometry
	Ranges     []ASRange
	Flags      ASBuildFlags
	Scratch    Buffer
	ScratchOff int64
}

// TLASBuild describes the parameters of a top-level
// acceleration structure build command.
// InstData must contain InstCount packed instance
// records, as written by GPU.PackInstances, starting at
// InstOff. An InstCount of zero is valid and produces an
// empty yet usable structure.
type TLASBuild struct {
	Dst        AccelStruct
	InstData   Buffer
	InstOff    int64
	InstCount  int
	Flags      ASBuildFlags
	Scratch    Buffer
	ScratchOff int64
}
