// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Geometry records and temporal pairing.

package engine

import (
	"unsafe"

	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/shader"
)

// geomInfoManager maintains the geometry records of every
// live primitive and pairs them with their previous-frame
// data so shaders can compute motion vectors.
// Records are keyed by primitive identity; the device
// buffers are laid out in TLAS instance order each frame.
type geomInfoManager struct {
	recs  frameBuffer
	match frameBuffer
	// Registered records of the frame being recorded.
	// Static records persist across frames.
	cur map[PrimitiveID]shader.GeometryLayout
	// What each frame slot uploaded when it was last
	// recorded. Pairing looks up the previous slot.
	prev   [MaxFrame]map[PrimitiveID]shader.GeometryLayout
	static map[PrimitiveID]struct{}
	dyn    [MaxFrame]map[PrimitiveID]struct{}
	// The previous frame's TLAS order.
	prevOrder map[PrimitiveID]int
}

func newGeomInfoManager() (*geomInfoManager, error) {
	m := &geomInfoManager{
		cur:       make(map[PrimitiveID]shader.GeometryLayout),
		static:    make(map[PrimitiveID]struct{}),
		prevOrder: make(map[PrimitiveID]int),
	}
	for i := range MaxFrame {
		m.prev[i] = make(map[PrimitiveID]shader.GeometryLayout)
		m.dyn[i] = make(map[PrimitiveID]struct{})
	}
	var err error
	m.recs, err = newFrameBuffer(MaxFrame, int64(MaxGeometry)*shader.GeomSize, driver.UShaderRead)
	if err != nil {
		return nil, err
	}
	m.match, err = newFrameBuffer(MaxFrame, int64(MaxGeometry)*4, driver.UShaderRead)
	if err != nil {
		m.recs.free()
		return nil, err
	}
	return m, nil
}

// count returns the number of registered records.
func (m *geomInfoManager) count(frame int) int {
	if len(m.cur) != len(m.static)+len(m.dyn[frame]) {
		panic("geomInfoManager.count: inconsistent id sets")
	}
	return len(m.cur)
}

// write registers layout under id for the current frame.
// The previous-frame fields of layout are filled here:
// from the previous frame's record when id was present
// with the same vertex/index counts, and with the
// no-history sentinel otherwise.
// Identities must not repeat within a frame.
func (m *geomInfoManager) write(frame int, id PrimitiveID, layout *shader.GeometryLayout, isStatic, noMotion bool) {
	if layout.FirstVertex()%3 != 0 {
		panic("geomInfoManager.write: misaligned vertex base")
	}
	if x := layout.FirstIndex(); x != ^uint32(0) && x%3 != 0 {
		panic("geomInfoManager.write: misaligned index base")
	}

	ids := m.static
	if !isStatic {
		ids = m.dyn[frame]
	}
	if _, ok := ids[id]; ok {
		panic("geomInfoManager.write: duplicate primitive identity")
	}
	if _, ok := m.cur[id]; ok {
		panic("geomInfoManager.write: duplicate primitive identity")
	}
	ids[id] = struct{}{}

	if p, ok := m.findPrev(frame, id, layout, noMotion); ok {
		layout.CopyPrevFrom(p)
	} else {
		layout.ClearPrev()
	}

	m.cur[id] = *layout
	m.prev[frame][id] = *layout
}

// findPrev returns the record that the previous frame
// registered under id, if its counts match target's.
func (m *geomInfoManager) findPrev(frame int, id PrimitiveID, target *shader.GeometryLayout, noMotion bool) (*shader.GeometryLayout, bool) {
	if noMotion {
		return nil, false
	}
	p, ok := m.prev[PrevFrame(frame)][id]
	if !ok {
		return nil, false
	}
	if p.VertexCount() != target.VertexCount() || p.IndexCount() != target.IndexCount() {
		return nil, false
	}
	return &p, true
}

// prepareForFrame readies frame's slot for new writes.
// The previous frame's dynamic records leave the current
// registry, and the history that this slot wrote MaxFrame
// frames ago is erased.
func (m *geomInfoManager) prepareForFrame(frame int) {
	for id := range m.dyn[PrevFrame(frame)] {
		delete(m.cur, id)
	}
	if len(m.cur) != len(m.static) {
		panic("geomInfoManager.prepareForFrame: inconsistent id sets")
	}
	for id := range m.dyn[frame] {
		delete(m.prev[frame], id)
	}
	clear(m.dyn[frame])
}

// resetOnlyStatic drops every static record and its
// history while keeping dynamic ones.
// The GPU must be idle.
func (m *geomInfoManager) resetOnlyStatic() {
	for id := range m.static {
		delete(m.cur, id)
		for i := range m.prev {
			delete(m.prev[i], id)
		}
	}
	ok := false
	for i := range m.dyn {
		if len(m.cur) == len(m.dyn[i]) {
			ok = true
			break
		}
	}
	if !ok {
		panic("geomInfoManager.resetOnlyStatic: inconsistent id sets")
	}
	clear(m.static)
}

// copyFromStaging lays out the frame's records in TLAS
// instance order, derives the index matching from the
// previous order, and records the device copies with a
// barrier for shader reads.
// It reports whether anything was recorded.
// cb must be recording.
func (m *geomInfoManager) copyFromStaging(cb driver.CmdBuffer, frame int, order []PrimitiveID) bool {
	curOrder := make(map[PrimitiveID]int, len(order))
	for i, id := range order {
		curOrder[id] = i
	}

	// An instance of the previous frame maps to its
	// current index, or to -1 if it is gone.
	match := unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(m.match.bytes(frame)))), MaxGeometry)
	for id, pi := range m.prevOrder {
		if ci, ok := curOrder[id]; ok {
			match[pi] = int32(ci)
		} else {
			match[pi] = -1
		}
	}
	matchLen := len(m.prevOrder)

	recs := unsafe.Slice((*shader.GeometryLayout)(unsafe.Pointer(unsafe.SliceData(m.recs.bytes(frame)))), MaxGeometry)
	for i, id := range order {
		if l, ok := m.cur[id]; ok {
			recs[i] = l
		} else {
			Logger().Error("geometry record was not registered",
				"object", id.ObjectID, "primitive", id.PrimitiveIndex)
			recs[i] = shader.GeometryLayout{}
		}
	}

	m.prevOrder = curOrder

	if matchLen == 0 && len(order) == 0 {
		return false
	}
	m.match.copyToDevice(cb, frame, int64(matchLen)*4)
	m.recs.copyToDevice(cb, frame, int64(len(order))*shader.GeomSize)
	cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SComputeShading | driver.SRayTrace,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.AShaderRead,
	}})
	return true
}

// memBytes returns the allocated buffer capacity.
func (m *geomInfoManager) memBytes() int64 {
	return m.recs.memBytes() + m.match.memBytes()
}

func (m *geomInfoManager) free() {
	m.recs.free()
	m.match.free()
	*m = geomInfoManager{}
}
