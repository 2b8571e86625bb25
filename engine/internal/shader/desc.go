// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Descriptor management.
//
// For portability, the following restrictions apply:
//
//	DescHeap per DescTable           | 4 (max)
//	DBuffer descriptors              | 8 (max)
//	DBuffer array length             | 4 (max)
//	DConstant descriptors            | 4 (max)
//	DAccelStruct descriptors         | 1 (max)
//	DConstant/DBuffer data alignment | 256 bytes (min)
//
// (the above names refer to the driver package).

package shader

import (
	"unsafe"

	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/ctxt"
)

const (
	GlobalHeap = iota
	VertexHeap

	maxHeap
)

const (
	tlasNr      = 0
	geomNr      = 1
	geomMatchNr = 2
	lightNr     = 3
	prevLightNr = 4
	fwdMatchNr  = 5
	revMatchNr  = 6
	styleNr     = 7

	staticVertNr  = 0
	staticIdxNr   = 1
	dynVertNr     = 2
	dynIdxNr      = 3
	prevVertNr    = 4
	prevIdxNr     = 5
	staticLayerNr = 6
	dynLayerNr    = 7
)

// MaxLayer is the number of texture coordinate sets beyond
// the first that a geometry may provide. Each extra set is
// stored in its own buffer, bound as an element of the
// layer descriptor.
const MaxLayer = 3

// These spans are given in bytes.
// Each one is a multiple of blockSize and defines the
// exact range that the table binds for the descriptor.
const (
	blockSize = 256

	GeomSpan       = (MaxGeom*GeomSize + blockSize - 1) &^ (blockSize - 1)
	GeomMatchSpan  = (MaxGeom*4 + blockSize - 1) &^ (blockSize - 1)
	LightSpan      = (MaxLight*LightSize + blockSize - 1) &^ (blockSize - 1)
	LightMatchSpan = (MaxLight*4 + blockSize - 1) &^ (blockSize - 1)
	styleSpan      = (MaxStyle*4 + blockSize - 1) &^ (blockSize - 1)
)

func accelDesc(nr int, stages driver.Stage) driver.Descriptor {
	return driver.Descriptor{
		Type:   driver.DAccelStruct,
		Stages: stages,
		Nr:     nr,
		Len:    1,
	}
}

func storageDesc(nr, n int, stages driver.Stage) driver.Descriptor {
	return driver.Descriptor{
		Type:   driver.DBuffer,
		Stages: stages,
		Nr:     nr,
		Len:    n,
	}
}

func constantDesc(nr int, stages driver.Stage) driver.Descriptor {
	return driver.Descriptor{
		Type:   driver.DConstant,
		Stages: stages,
		Nr:     nr,
		Len:    1,
	}
}

// newGlobalHeap creates a new driver.DescHeap suitable for
// the TLAS, geometry (GeometryLayout) and light (LightLayout)
// data, their temporal match tables and the lightstyle
// constants.
func newGlobalHeap() (driver.DescHeap, error) {
	stages := driver.SCompute | driver.SRayTracing
	return ctxt.GPU().NewDescHeap([]driver.Descriptor{
		accelDesc(tlasNr, stages),
		storageDesc(geomNr, 1, stages),
		storageDesc(geomMatchNr, 1, stages),
		storageDesc(lightNr, 1, stages),
		storageDesc(prevLightNr, 1, stages),
		storageDesc(fwdMatchNr, 1, stages),
		storageDesc(revMatchNr, 1, stages),
		constantDesc(styleNr, stages),
	})
}

// newVertexHeap creates a new driver.DescHeap suitable for
// vertex/index storage (VertexLayout) of the static mesh,
// the dynamic mesh and the previous frame's dynamic mesh,
// plus extra texture coordinate layers.
func newVertexHeap() (driver.DescHeap, error) {
	stages := driver.SCompute | driver.SRayTracing
	return ctxt.GPU().NewDescHeap([]driver.Descriptor{
		storageDesc(staticVertNr, 1, stages),
		storageDesc(staticIdxNr, 1, stages),
		storageDesc(dynVertNr, 1, stages),
		storageDesc(dynIdxNr, 1, stages),
		storageDesc(prevVertNr, 1, stages),
		storageDesc(prevIdxNr, 1, stages),
		storageDesc(staticLayerNr, MaxLayer, stages),
		storageDesc(dynLayerNr, MaxLayer, stages),
	})
}

// newTraceTable creates a new driver.DescTable containing
// the global and vertex heaps.
func newTraceTable() (driver.DescTable, error) {
	var heaps [maxHeap]driver.DescHeap
	for i, f := range [maxHeap]func() (driver.DescHeap, error){
		GlobalHeap: newGlobalHeap,
		VertexHeap: newVertexHeap,
	} {
		dh, err := f()
		if err != nil {
			for j := range i {
				heaps[j].Destroy()
			}
			return nil, err
		}
		heaps[i] = dh
	}
	return ctxt.GPU().NewDescTable(heaps[:])
}

// freeDescTable destroys a driver.DescTable and every
// driver.DescHeap that it contains.
func freeDescTable(dt driver.DescTable) {
	dhs := make([]driver.DescHeap, dt.Len())
	for i := range dhs {
		dhs[i] = dt.Heap(i)
	}
	dt.Destroy()
	for i := range dhs {
		dhs[i].Destroy()
	}
}

// TraceTable manages descriptor usage within a single
// driver.DescTable.
type TraceTable struct {
	dt driver.DescTable
	// Cached heap copy counts.
	// These counts will not change during the
	// lifetime of the table, so this avoids
	// having to query the driver needlessly.
	dcpy [maxHeap]int
	cbuf driver.Buffer
	// Offset into the constant buffer.
	// Lightstyle data is ordered by global heap
	// copy index, one styleSpan range per copy.
	coff int64
	// Cached cbuf.Bytes().
	// Note that it has no offset applied.
	cs []byte
}

// NewTraceTable creates a new descriptor table.
// Each parameter defines the number of heap copies to
// allocate for a given heap. Currently, the heaps are
// organized as follows:
//
//	global heap | TLAS/geometry/light/style descriptors
//	vertex heap | mesh storage descriptors
//
// For constant descriptors that are defined as static
// arrays in shaders, every heap copy will require
// enough buffer memory to store the whole array.
func NewTraceTable(globalN, vertexN int) (*TraceTable, error) {
	dt, err := newTraceTable()
	if err != nil {
		return nil, err
	}
	// NOTE: The order here must match the
	// heap indices.
	dcpy := [maxHeap]int{globalN, vertexN}
	for i, n := range dcpy {
		if n < 0 {
			panic("descriptor heap allocation with negative count")
		}
		if err := dt.Heap(i).New(n); err != nil {
			return nil, err
		}
	}
	return &TraceTable{dt: dt, dcpy: dcpy}, nil
}

// Set calls cb.SetDescTableComp to set the given
// heap copies.
// cb must be recording commands.
func (t *TraceTable) Set(cb driver.CmdBuffer, start int, cpy []int) {
	if start < GlobalHeap || start > VertexHeap || len(cpy) == 0 || len(cpy) > maxHeap-start {
		panic("invalid descriptor heap indexing")
	}
	for i, x := range cpy {
		t.validateHeapCopy(start+i, x)
	}
	cb.SetDescTableComp(t.dt, start, cpy)
}

// ConstSize returns the number of bytes consumed by
// all constant descriptors of t.
func (t *TraceTable) ConstSize() int {
	return t.dcpy[GlobalHeap] * int(styleSpan)
}

// SetConstBuf sets the buffer for constant descriptors.
// This buffer must be host visible and must have been
// created with the driver.UShaderConst usage flag.
// The constants will consume exactly t.ConstSize()
// bytes from buf, starting at offset off (the caller
// must ensure that this range is within bounds).
// off must be aligned to 256 bytes.
// It returns the previously set buffer/offset, if any.
func (t *TraceTable) SetConstBuf(buf driver.Buffer, off int64) (driver.Buffer, int64) {
	var cs []byte
	switch {
	case buf == nil:
		off = 0

	case off&(blockSize-1) != 0:
		panic("misaligned constant buffer offset")

	case buf.Cap()-off < int64(t.ConstSize()):
		panic("constant buffer range out of bounds")

	default:
		cs = buf.Bytes()
		// Global heap constants:
		//	7 | [MaxStyle]uint32
		dh := t.dt.Heap(GlobalHeap)
		buf, off, sz := []driver.Buffer{buf}, []int64{off}, []int64{styleSpan}
		for i := range t.dcpy[GlobalHeap] {
			dh.SetBuffer(i, styleNr, 0, buf, off, sz)
			off[0] += sz[0]
		}
	}

	pbuf := t.cbuf
	poff := t.coff
	t.cbuf = buf
	t.coff = off
	t.cs = cs
	return pbuf, poff
}

// SetTLAS sets the acceleration structure descriptor in
// the global heap.
// as must have been created with driver.BuildSizes.ASTop
// and must be built by the time the heap copy is used in
// a dispatch.
func (t *TraceTable) SetTLAS(cpy int, as driver.AccelStruct) {
	t.validateHeapCopy(GlobalHeap, cpy)
	if as == nil {
		panic("nil acceleration structure")
	}
	t.dt.Heap(GlobalHeap).SetAccelStruct(cpy, tlasNr, 0, []driver.AccelStruct{as})
}

// SetGeometry sets the geometry record and geometry match
// buffers in the global heap.
// recs stores GeometryLayout data and match stores one
// uint32 per geometry record.
// The buffers must support driver.UShaderRead.
// Exactly GeomSpan bytes of recs and GeomMatchSpan bytes
// of match are bound, starting at offset 0.
func (t *TraceTable) SetGeometry(cpy int, recs, match driver.Buffer) {
	t.validateBuf(GlobalHeap, cpy, recs, GeomSpan)
	t.validateBuf(GlobalHeap, cpy, match, GeomMatchSpan)
	dh := t.dt.Heap(GlobalHeap)
	off := []int64{0}
	dh.SetBuffer(cpy, geomNr, 0, []driver.Buffer{recs}, off, []int64{GeomSpan})
	dh.SetBuffer(cpy, geomMatchNr, 0, []driver.Buffer{match}, off, []int64{GeomMatchSpan})
}

// SetLights sets the light buffers in the global heap.
// cur and prev store LightLayout data for the current and
// previous frames. fwd maps previous light indices to
// current ones and rev maps current light indices to
// previous ones, one uint32 per light.
// The buffers must support driver.UShaderRead.
// Exactly LightSpan bytes of cur/prev and LightMatchSpan
// bytes of fwd/rev are bound, starting at offset 0.
func (t *TraceTable) SetLights(cpy int, cur, prev, fwd, rev driver.Buffer) {
	t.validateBuf(GlobalHeap, cpy, cur, LightSpan)
	t.validateBuf(GlobalHeap, cpy, prev, LightSpan)
	t.validateBuf(GlobalHeap, cpy, fwd, LightMatchSpan)
	t.validateBuf(GlobalHeap, cpy, rev, LightMatchSpan)
	dh := t.dt.Heap(GlobalHeap)
	off := []int64{0}
	dh.SetBuffer(cpy, lightNr, 0, []driver.Buffer{cur}, off, []int64{LightSpan})
	dh.SetBuffer(cpy, prevLightNr, 0, []driver.Buffer{prev}, off, []int64{LightSpan})
	dh.SetBuffer(cpy, fwdMatchNr, 0, []driver.Buffer{fwd}, off, []int64{LightMatchSpan})
	dh.SetBuffer(cpy, revMatchNr, 0, []driver.Buffer{rev}, off, []int64{LightMatchSpan})
}

// SetStaticMesh sets the static vertex/index buffers in
// the vertex heap.
// The buffers must support driver.UShaderRead.
// Their whole capacities are bound.
func (t *TraceTable) SetStaticMesh(cpy int, vert, idx driver.Buffer) {
	t.validateBuf(VertexHeap, cpy, vert, 0)
	t.validateBuf(VertexHeap, cpy, idx, 0)
	dh := t.dt.Heap(VertexHeap)
	off := []int64{0}
	dh.SetBuffer(cpy, staticVertNr, 0, []driver.Buffer{vert}, off, []int64{vert.Cap()})
	dh.SetBuffer(cpy, staticIdxNr, 0, []driver.Buffer{idx}, off, []int64{idx.Cap()})
}

// SetDynamicMesh sets the dynamic vertex/index buffers and
// their previous-frame snapshots in the vertex heap.
// The buffers must support driver.UShaderRead.
// Their whole capacities are bound.
func (t *TraceTable) SetDynamicMesh(cpy int, vert, idx, prevVert, prevIdx driver.Buffer) {
	t.validateBuf(VertexHeap, cpy, vert, 0)
	t.validateBuf(VertexHeap, cpy, idx, 0)
	t.validateBuf(VertexHeap, cpy, prevVert, 0)
	t.validateBuf(VertexHeap, cpy, prevIdx, 0)
	dh := t.dt.Heap(VertexHeap)
	off := []int64{0}
	dh.SetBuffer(cpy, dynVertNr, 0, []driver.Buffer{vert}, off, []int64{vert.Cap()})
	dh.SetBuffer(cpy, dynIdxNr, 0, []driver.Buffer{idx}, off, []int64{idx.Cap()})
	dh.SetBuffer(cpy, prevVertNr, 0, []driver.Buffer{prevVert}, off, []int64{prevVert.Cap()})
	dh.SetBuffer(cpy, prevIdxNr, 0, []driver.Buffer{prevIdx}, off, []int64{prevIdx.Cap()})
}

// SetStaticLayers sets the extra texture coordinate
// buffers of the static mesh in the vertex heap.
// There must be exactly MaxLayer buffers. A geometry that
// does not provide a given layer should bind any valid
// buffer in its place.
// The buffers must support driver.UShaderRead.
// Their whole capacities are bound.
func (t *TraceTable) SetStaticLayers(cpy int, layer ...driver.Buffer) {
	t.setLayers(cpy, staticLayerNr, layer)
}

// SetDynamicLayers sets the extra texture coordinate
// buffers of the dynamic mesh in the vertex heap.
// The same rules as SetStaticLayers apply.
func (t *TraceTable) SetDynamicLayers(cpy int, layer ...driver.Buffer) {
	t.setLayers(cpy, dynLayerNr, layer)
}

func (t *TraceTable) setLayers(cpy, nr int, layer []driver.Buffer) {
	if len(layer) != MaxLayer {
		panic("invalid layer count")
	}
	off := make([]int64, MaxLayer)
	sz := make([]int64, MaxLayer)
	for i, b := range layer {
		t.validateBuf(VertexHeap, cpy, b, 0)
		sz[i] = b.Cap()
	}
	t.dt.Heap(VertexHeap).SetBuffer(cpy, nr, 0, layer, off, sz)
}

// Styles returns a pointer to GPU memory mapping to a
// given lightstyle array of the global heap.
// A valid constant buffer must be set when this method
// is called.
// Calling t.SetConstBuf invalidates any pointers
// returned by this method.
func (t *TraceTable) Styles(cpy int) *[MaxStyle]uint32 {
	t.validateHeapCopy(GlobalHeap, cpy)
	off := t.coff + styleSpan*int64(cpy)
	s := t.cs[off:]
	return (*[MaxStyle]uint32)(unsafe.Pointer(unsafe.SliceData(s)))
}

// Free invalidates t and destroys the driver resources.
//
// NOTE: The constant buffer is not destroyed by this
// method; one can retrieve the buffer by calling
// t.SetConstBuf(nil, _) prior to calling t.Free.
// Storage buffers and acceleration structures set in the
// heaps are not destroyed either.
func (t *TraceTable) Free() {
	if t.dt != nil {
		freeDescTable(t.dt)
	}
	*t = TraceTable{}
}

// NOTE: Tests will fail if the panic message changes.
func (t *TraceTable) validateHeapCopy(heap int, cpy int) {
	if uint(t.dcpy[heap]) <= uint(cpy) {
		panic("descriptor heap copy out of bounds")
	}
}

// NOTE: Tests will fail if the panic message changes.
func (t *TraceTable) validateBuf(heap, cpy int, buf driver.Buffer, sz int64) {
	t.validateHeapCopy(heap, cpy)
	switch {
	case buf == nil:
		panic("nil buffer")
	case buf.Cap() < sz:
		panic("storage buffer range out of bounds")
	}
}
