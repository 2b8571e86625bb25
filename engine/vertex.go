// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Pooled vertex/index storage for structure builds.

package engine

import (
	"errors"
	"strconv"
	"unsafe"

	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/shader"
)

const vtxPrefix = "vertex: "

func newVtxErr(reason string) error { return errors.New(vtxPrefix + reason) }

// alignUpBy3 rounds x up to a multiple of three.
// Vertex and index bases are aligned this way so ranges
// never straddle a triangle boundary.
func alignUpBy3(x int) int { return (x + 2) / 3 * 3 }

// vertexCollector appends primitive data to pooled
// vertex/index buffers and describes the appended ranges
// for bottom-level builds.
// Uploads write to mapped staging memory; copyFromStaging
// moves the written prefix to the device buffers.
type vertexCollector struct {
	cat     Category
	maxVert int
	maxIdx  int
	vert    frameBuffer
	idx     frameBuffer
	layer   [MaxTexLayer]frameBuffer
	nvert   int
	nidx    int
	nlayer  [MaxTexLayer]int
}

// uploadResult describes where a primitive's data was
// stored and how to build its BLAS.
type uploadResult struct {
	geom driver.ASGeometry
	rng  driver.ASRange
	// Indices into the pooled buffers, in elements.
	// firstIndex is -1 when the primitive is not
	// indexed.
	firstVertex int
	firstIndex  int
	firstLayer  [MaxTexLayer]int
}

// newVertexCollector creates a collector for geometry of
// the given category.
// Frames that overlap on the GPU must not share a
// collector; dynamic geometry uses one per frame.
func newVertexCollector(cat Category, maxVert, maxIdx int) (*vertexCollector, error) {
	vusg := driver.UShaderRead | driver.UShaderWrite | driver.UVertexData
	iusg := driver.UShaderRead | driver.UIndexData
	lusg := driver.UShaderRead
	if cat == CDynamic {
		// Dynamic data is snapshotted into the
		// previous-frame buffers.
		vusg |= driver.UCopySrc
		iusg |= driver.UCopySrc
	}
	c := &vertexCollector{
		cat:     cat,
		maxVert: maxVert,
		maxIdx:  maxIdx,
	}
	var err error
	c.vert, err = newFrameBuffer(1, int64(maxVert)*shader.VertexSize, vusg)
	if err != nil {
		return nil, err
	}
	c.idx, err = newFrameBuffer(1, int64(maxIdx)*4, iusg)
	if err != nil {
		c.free()
		return nil, err
	}
	for i := range c.layer {
		c.layer[i], err = newFrameBuffer(1, int64(maxVert)*8, lusg)
		if err != nil {
			c.free()
			return nil, err
		}
	}
	return c, nil
}

// collectorMark captures a collector's upload state so a
// failed primitive can be rolled back.
type collectorMark struct {
	nvert  int
	nidx   int
	nlayer [MaxTexLayer]int
}

func (c *vertexCollector) mark() collectorMark {
	return collectorMark{c.nvert, c.nidx, c.nlayer}
}

// rollback discards every upload made after mk was taken.
func (c *vertexCollector) rollback(mk collectorMark) {
	c.nvert = mk.nvert
	c.nidx = mk.nidx
	c.nlayer = mk.nlayer
}

// upload appends prim's data to staging memory.
// pt must be the primitive's classified pass-through.
// It either stores the whole primitive or fails without
// consuming any capacity.
func (c *vertexCollector) upload(prim *Primitive, pt passThrough) (uploadResult, error) {
	nv := len(prim.Vertices)
	ni := 0
	if prim.indexed() {
		ni = len(prim.Indices)
	}
	vertBase := alignUpBy3(c.nvert)
	idxBase := alignUpBy3(c.nidx)

	if vertBase+nv >= c.maxVert {
		if c.cat == CStatic {
			return uploadResult{}, newVtxErr("too many static vertices: the limit is " + strconv.Itoa(c.maxVert))
		}
		return uploadResult{}, newVtxErr("too many dynamic vertices: the limit is " + strconv.Itoa(c.maxVert))
	}
	if idxBase+ni >= c.maxIdx {
		return uploadResult{}, newVtxErr("too many indices: the limit is " + strconv.Itoa(c.maxIdx))
	}
	for _, l := range prim.Layers {
		if l != nil && len(l.TexCoord) != nv {
			return uploadResult{}, newVtxErr("TextureLayer.TexCoord length mismatch")
		}
	}

	res := uploadResult{
		geom: driver.ASGeometry{
			VertexData:   c.vert.dev,
			VertexOff:    int64(vertBase) * shader.VertexSize,
			VertexFmt:    driver.Float32x3,
			VertexStride: shader.VertexSize,
			VertexCount:  nv,
			Flags:        driver.GNoDuplicateAnyHit,
		},
		rng:         driver.ASRange{PrimCount: prim.triangleCount()},
		firstVertex: vertBase,
		firstIndex:  -1,
	}
	if pt == pOpaque {
		res.geom.Flags = driver.GOpaque
	}
	if ni != 0 {
		res.geom.IndexData = c.idx.dev
		res.geom.IndexOff = int64(idxBase) * 4
		res.geom.IndexFmt = driver.Index32
		res.firstIndex = idxBase
	}

	verts := unsafe.Slice((*shader.VertexLayout)(unsafe.Pointer(unsafe.SliceData(c.vert.bytes(0)))), c.maxVert)
	for i := range prim.Vertices {
		v := &prim.Vertices[i]
		r := &verts[vertBase+i]
		r.SetPosition(v.Position)
		r.SetNormal(v.Normal)
		r.SetTexCoord(v.TexCoord[0], v.TexCoord[1])
		r.SetColor(v.Color)
	}
	if ni != 0 {
		idxs := unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(c.idx.bytes(0)))), c.maxIdx)
		copy(idxs[idxBase:], prim.Indices)
	}
	for i, l := range prim.Layers {
		res.firstLayer[i] = c.nlayer[i]
		if l == nil {
			continue
		}
		uvs := unsafe.Slice((*[2]float32)(unsafe.Pointer(unsafe.SliceData(c.layer[i].bytes(0)))), c.maxVert)
		for j := range l.TexCoord {
			uvs[c.nlayer[i]+j] = l.TexCoord[j]
		}
		c.nlayer[i] += nv
	}

	c.nvert = vertBase + nv
	c.nidx = idxBase + ni
	return res, nil
}

// copyFromStaging records the staging copies of the data
// uploaded since the last reset, with a barrier that makes
// them visible to structure builds and shaders.
// It reports whether anything was recorded.
// cb must be recording.
func (c *vertexCollector) copyFromStaging(cb driver.CmdBuffer) bool {
	if c.nvert == 0 {
		return false
	}
	c.vert.copyToDevice(cb, 0, int64(c.nvert)*shader.VertexSize)
	c.idx.copyToDevice(cb, 0, int64(c.nidx)*4)
	for i := range c.layer {
		c.layer[i].copyToDevice(cb, 0, int64(c.nlayer[i])*8)
	}
	cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SASBuild | driver.SComputeShading | driver.SRayTrace,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.AASRead | driver.AShaderRead | driver.AShaderWrite,
	}})
	return true
}

// vertexCount returns the number of vertices uploaded
// since the last reset, including alignment padding.
func (c *vertexCollector) vertexCount() int { return c.nvert }

// indexCount returns the number of indices uploaded since
// the last reset, including alignment padding.
func (c *vertexCollector) indexCount() int { return c.nidx }

// reset discards the uploaded data.
// The buffers are kept.
func (c *vertexCollector) reset() {
	c.nvert = 0
	c.nidx = 0
	c.nlayer = [MaxTexLayer]int{}
}

// memBytes returns the allocated capacity of the pooled
// buffers, staging included.
func (c *vertexCollector) memBytes() int64 {
	n := c.vert.memBytes() + c.idx.memBytes()
	for i := range c.layer {
		n += c.layer[i].memBytes()
	}
	return n
}

func (c *vertexCollector) free() {
	c.vert.free()
	c.idx.free()
	for i := range c.layer {
		c.layer[i].free()
	}
	*c = vertexCollector{}
}
