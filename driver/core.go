// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// Commit commits a work item to the GPU for execution.
	// Wait operations defined in a command buffer apply to
	// the batch as a whole, so the order of command buffers
	// in wk.Work is meaningful.
	// When all commands complete execution, the GPU sets
	// wk.Err to indicate the result and sends wk on ch.
	// The command buffers in wk.Work cannot be used for
	// recording until then.
	Commit(wk *WorkItem, ch chan<- *WorkItem) error

	// NewCmdBuffer creates a new command buffer.
	NewCmdBuffer() (CmdBuffer, error)

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewShaderCode creates a new shader code.
	NewShaderCode(data []byte) (ShaderCode, error)

	// NewDescHeap creates a new descriptor heap.
	NewDescHeap(ds []Descriptor) (DescHeap, error)

	// NewDescTable creates a new descriptor table.
	NewDescTable(dh []DescHeap) (DescTable, error)

	// NewPipeline creates a new compute pipeline.
	NewPipeline(state *CompState) (Pipeline, error)

	// NewAccelStruct creates a new acceleration structure
	// backed by the given buffer range.
	// The buffer must have been created with the UASStorage
	// usage, and off must be aligned to ASAlign bytes.
	NewAccelStruct(typ ASType, buf Buffer, off, size int64) (AccelStruct, error)

	// AccelSizes queries the memory requirements of an
	// acceleration structure build.
	// For ASBottom, geom describes the geometries and
	// primCount the maximum primitive count of each.
	// For ASTop, geom must be nil and primCount must
	// contain a single element giving the maximum
	// instance count.
	// BUpdate is ignored for sizing purposes.
	AccelSizes(typ ASType, geom []ASGeometry, primCount []int, flags ASBuildFlags) (BuildSizes, error)

	// PackInstances writes resolved instance records to
	// the given buffer range, one record of InstanceSize
	// bytes per element of inst.
	// The buffer must be host visible and have been
	// created with the UASInput usage.
	PackInstances(dst Buffer, off int64, inst []TLASInstance) error

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits

	// Features returns the optional capabilities that the
	// implementation supports.
	// They are immutable for the lifetime of the GPU.
	Features() Features
}

// WorkItem wraps a batch of command buffers for execution.
// The GPU sends the item back on the channel given to
// Commit when execution completes, with Err indicating
// the result.
type WorkItem struct {
	Work []CmdBuffer
	Err  error
	// Custom is ignored by the GPU. Client code is free
	// to use it to identify or annotate work items.
	Custom any
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// committed to the GPU for execution.
// Call Begin to prepare the command buffer for recording
// and, if it succeeds, any number of recording methods,
// then End. A command buffer whose End call succeeds is
// ready for GPU.Commit.
// Commands in a command buffer execute as if in recording
// order; Barrier defines the points where prior writes
// become visible.
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording.
	// This method must be called before any command
	// is recorded in the command buffer. It needs to
	// be called again if the command buffer is
	// executed or reset.
	Begin() error

	// IsRecording returns whether the command buffer
	// is recording commands, i.e., whether Begin was
	// called and recording remains open.
	IsRecording() bool

	// SetPipeline sets the compute pipeline.
	SetPipeline(pl Pipeline)

	// SetDescTableComp sets a descriptor table
	// range for compute dispatches.
	SetDescTableComp(table DescTable, start int, heapCopy []int)

	// Dispatch dispatches compute thread groups.
	// A pipeline and its descriptors must have been
	// set previously.
	Dispatch(grpCountX, grpCountY, grpCountZ int)

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// Fill fills a buffer range with copies of
	// a byte value.
	// off and size must be aligned to 4 bytes.
	Fill(buf Buffer, off int64, value byte, size int64)

	// BuildBLAS builds a batch of bottom-level
	// acceleration structures.
	// The builds in param may execute in parallel.
	BuildBLAS(param []BLASBuild)

	// BuildTLAS builds a batch of top-level
	// acceleration structures.
	// The builds in param may execute in parallel.
	// Bottom-level structures referenced by the
	// instance data must have been built by prior
	// commands, barring a barrier.
	BuildTLAS(param []TLASBuild)

	// Barrier inserts a number of global barriers
	// in the command buffer.
	Barrier(b []Barrier)

	// End ends command recording and prepares the
	// command buffer for execution.
	// New recordings are not allowed until the
	// command buffer is executed or reset.
	// Upon failure, the command buffer is reset.
	End() error

	// Reset discards all recorded commands from the
	// command buffer.
	Reset() error
}

// BufferCopy describes the parameters of a copy command
// that copies data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SComputeShading Sync = 1 << iota
	SCopy
	SASBuild
	SRayTrace
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AShaderRead Access = 1 << iota
	AShaderWrite
	ACopyRead
	ACopyWrite
	AASRead
	AASWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Barrier represents a synchronization barrier.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// ShaderCode is the interface that defines a shader binary
// for execution in a programmable pipeline stage.
type ShaderCode interface {
	Destroyer
}

// ShaderFunc specifies a function within a shader binary.
type ShaderFunc struct {
	Code ShaderCode
	Name string
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SCompute Stage = 1 << iota
	SRayTracing
)

// DescType is the type of a descriptor.
type DescType int

// Descriptor types.
const (
	// Read/write buffer.
	DBuffer DescType = iota
	// Constant buffer.
	DConstant
	// Acceleration structure.
	DAccelStruct
)

// Descriptor describes data for use in shaders.
type Descriptor struct {
	Type   DescType
	Stages Stage
	Nr     int
	Len    int
}

// DescHeap is the interface that defines a set of descriptors
// for use in programmable pipeline stages.
type DescHeap interface {
	Destroyer

	// New creates enough storage for n copies of each
	// descriptor.
	// All copies from a previous call to New are invalidated,
	// unless n is the same as the current Count value, in
	// which case it is a no-op.
	// Calling New(0) frees all storage.
	New(n int) error

	// SetBuffer updates the buffer ranges referred by the
	// given descriptor of the given heap copy.
	// The descriptor must be of type DBuffer or DConstant.
	// Buffer ranges must be aligned to 256 bytes.
	SetBuffer(cpy, nr, start int, buf []Buffer, off, size []int64)

	// SetAccelStruct updates the acceleration structures
	// referred by the given descriptor of the given heap
	// copy.
	// The descriptor must be of type DAccelStruct.
	// The structures must have been built by the time
	// the heap copy is used in a dispatch.
	SetAccelStruct(cpy, nr, start int, as []AccelStruct)

	// Count returns the number of heap copies created
	// by New.
	Count() int
}

// DescTable is the interface that defines the bindings
// between a number of descriptor heaps and the shaders
// in a pipeline.
type DescTable interface {
	Destroyer

	// Heap returns the idx-th DescHeap of the table.
	Heap(idx int) DescHeap

	// Len returns the number of heaps in the table.
	Len() int
}

// CompState defines the state of a compute pipeline.
// Compute pipelines are created from compute states.
// The state is comprised of a single compute shader and a
// descriptor table describing the resources accessible to
// this shader.
type CompState struct {
	Func ShaderFunc
	Desc DescTable
}

// Pipeline is the interface that defines a GPU pipeline.
type Pipeline interface {
	Destroyer
}

// VertexFmt describes the format of a vertex input.
type VertexFmt int

// Vertex formats.
const (
	// Signed 8-bit integer, 1-4 components.
	Int8 VertexFmt = iota
	Int8x2
	Int8x3
	Int8x4
	// Signed 16-bit integer, 1-4 components.
	Int16
	Int16x2
	Int16x3
	Int16x4
	// Signed 32-bit integer, 1-4 components.
	Int32
	Int32x2
	Int32x3
	Int32x4
	// Unsigned 8-bit integer, 1-4 components.
	Uint8
	Uint8x2
	Uint8x3
	Uint8x4
	// Unsigned 16-bit integer, 1-4 components.
	Uint16
	Uint16x2
	Uint16x3
	Uint16x4
	// Unsigned 32-bit integer, 1-4 components.
	Uint32
	Uint32x2
	Uint32x3
	Uint32x4
	// Single precision floating-point, 1-4 components.
	Float32
	Float32x2
	Float32x3
	Float32x4
)

// Size returns the size of the vertex format in bytes.
func (f VertexFmt) Size() int {
	n := int(f)&3 + 1
	switch {
	case f <= Int8x4 || f >= Uint8 && f <= Uint8x4:
		return n
	case f <= Int16x4 || f >= Uint16 && f <= Uint16x4:
		return n * 2
	default:
		return n * 4
	}
}

// IndexFmt describes the format of index buffer data.
type IndexFmt int

// Index formats.
// The value of each constant is the size of one index
// in bytes.
const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// Usage is a mask indicating valid uses for a buffer.
type Usage int

// Usage flags for Buffer.
const (
	// The buffer can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The buffer can be written in shaders.
	UShaderWrite
	// The buffer can provide constant data for shaders.
	UShaderConst
	// The buffer can provide vertex data for
	// acceleration structure builds.
	UVertexData
	// The buffer can provide index data for
	// acceleration structure builds.
	UIndexData
	// The buffer can be the source of copy commands.
	UCopySrc
	// The buffer can be the destination of copy and
	// fill commands.
	UCopyDst
	// The buffer can provide instance data for
	// top-level acceleration structure builds.
	UASInput
	// The buffer can back acceleration structures.
	UASStorage
	// The buffer can provide scratch memory for
	// acceleration structure builds.
	UScratch
	// The buffer can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
// The size of the buffer is fixed. When a larger buffer
// is necessary, a new one must be created and the data
// must be copied explicitly.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	// Non-visible memory cannot be accessed by the CPU.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead.
	// The slice is valid for the lifetime of the buffer.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes,
	// which may be greater than the size requested during
	// buffer creation.
	// This value is immutable.
	Cap() int64
}

// Limits describes implementation limits.
// These may vary across drivers and devices.
type Limits struct {
	// Maximum number of descriptor heaps in a
	// descriptor table.
	MaxDescHeaps int
	// Maximum number of buffer descriptors in a
	// descriptor table.
	MaxDBuffer int
	// Maximum number of constant descriptors in a
	// descriptor table.
	MaxDConstant int
	// Maximum number of acceleration structure
	// descriptors in a descriptor table.
	MaxDAccelStruct int
	// Maximum range of buffer descriptors.
	MaxDBufferRange int64
	// Maximum range of constant descriptors.
	MaxDConstantRange int64

	// Maximum dispatch count.
	MaxDispatch [3]int

	// Maximum number of geometries in a bottom-level
	// acceleration structure.
	MaxBLASGeom int
	// Maximum number of instances in a top-level
	// acceleration structure.
	MaxTLASInst int
	// Minimum alignment of scratch buffer offsets
	// used in acceleration structure builds.
	MinScratchAlign int64
}

// Features describes optional capabilities.
// Code that relies on a given feature must check that
// the GPU supports it.
type Features struct {
	// AccelStruct indicates that acceleration structures
	// can be created and built.
	AccelStruct bool
	// RayQuery indicates that acceleration structures
	// can be traversed from compute shaders.
	RayQuery bool
}
