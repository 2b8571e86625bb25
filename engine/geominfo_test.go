// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"bytes"
	"math"
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"gviegas/rt/engine/internal/ctxt"
	"gviegas/rt/engine/internal/shader"
)

// tGeomLayout returns a geometry record with the given
// base offsets and counts.
func tGeomLayout(fv, fi, nv, ni uint32, m *mgl32.Mat4) shader.GeometryLayout {
	var l shader.GeometryLayout
	l.SetModel(m)
	l.SetFirstVertex(fv)
	l.SetFirstIndex(fi)
	l.SetVertexCount(nv)
	l.SetIndexCount(ni)
	return l
}

func TestGeomInfoPairing(t *testing.T) {
	m, err := newGeomInfoManager()
	if err != nil {
		t.Fatalf("newGeomInfoManager failed:\n%#v", err)
	}
	defer m.free()

	id := PrimitiveID{ObjectID: 7}
	m0 := mgl32.Translate3D(1, 0, 0)
	l0 := tGeomLayout(0, ^uint32(0), 6, 0, &m0)
	m.write(0, id, &l0, false, false)
	if n := m.count(0); n != 1 {
		t.Fatalf("geomInfoManager.count:\nhave %d\nwant 1", n)
	}
	// First sighting: no history.
	for i := range 16 {
		if l0[16+i] != l0[i] {
			t.Fatal("geomInfoManager.write: previous model differs from current")
		}
	}
	if math.Float32bits(l0[46]) != ^uint32(0) || math.Float32bits(l0[47]) != ^uint32(0) {
		t.Fatal("geomInfoManager.write: unexpected history")
	}

	// The next frame pairs with the stored record.
	m.prepareForFrame(1)
	if n := m.count(1); n != 0 {
		t.Fatalf("geomInfoManager.count:\nhave %d\nwant 0", n)
	}
	m1 := mgl32.Translate3D(2, 0, 0)
	l1 := tGeomLayout(12, 0, 6, 0, &m1)
	m.write(1, id, &l1, false, false)
	for i := range 16 {
		if l1[16+i] != m0[i] {
			t.Fatal("geomInfoManager.write: previous model not copied")
		}
	}
	if math.Float32bits(l1[46]) != 0 || math.Float32bits(l1[47]) != ^uint32(0) {
		t.Fatalf("geomInfoManager.write: previous bases:\nhave %#x, %#x\nwant 0, 0xffffffff",
			math.Float32bits(l1[46]), math.Float32bits(l1[47]))
	}

	// Reusing the slot erases its stale history first;
	// pairing always looks exactly one frame back.
	m.prepareForFrame(0)
	if _, ok := m.prev[0][id]; ok {
		t.Fatal("geomInfoManager.prepareForFrame: history kept")
	}
	m2 := mgl32.Translate3D(3, 0, 0)
	l2 := tGeomLayout(0, ^uint32(0), 6, 0, &m2)
	m.write(0, id, &l2, false, false)
	for i := range 16 {
		if l2[16+i] != m1[i] {
			t.Fatal("geomInfoManager.write: previous model not copied")
		}
	}
	if math.Float32bits(l2[46]) != 12 {
		t.Fatalf("geomInfoManager.write: previous vertex base:\nhave %d\nwant 12", math.Float32bits(l2[46]))
	}
}

func TestGeomInfoNoHistory(t *testing.T) {
	m, err := newGeomInfoManager()
	if err != nil {
		t.Fatalf("newGeomInfoManager failed:\n%#v", err)
	}
	defer m.free()

	id := PrimitiveID{ObjectID: 1}
	mm := mgl32.Ident4()
	l0 := tGeomLayout(0, 0, 6, 6, &mm)
	m.write(0, id, &l0, false, false)

	// A vertex count change breaks the pairing.
	m.prepareForFrame(1)
	l1 := tGeomLayout(0, 0, 9, 6, &mm)
	m.write(1, id, &l1, false, false)
	if math.Float32bits(l1[46]) != ^uint32(0) {
		t.Fatal("geomInfoManager.write: paired records with differing counts")
	}

	// So does suppressing motion vectors.
	m.prepareForFrame(0)
	l2 := tGeomLayout(0, 0, 9, 6, &mm)
	m.write(0, id, &l2, false, true)
	if math.Float32bits(l2[46]) != ^uint32(0) {
		t.Fatal("geomInfoManager.write: paired records with motion suppressed")
	}

	// And an index count change.
	m.prepareForFrame(1)
	l3 := tGeomLayout(0, 0, 9, 3, &mm)
	m.write(1, id, &l3, false, false)
	if math.Float32bits(l3[46]) != ^uint32(0) {
		t.Fatal("geomInfoManager.write: paired records with differing counts")
	}
}

func TestGeomInfoStatic(t *testing.T) {
	m, err := newGeomInfoManager()
	if err != nil {
		t.Fatalf("newGeomInfoManager failed:\n%#v", err)
	}
	defer m.free()

	id := PrimitiveID{ObjectID: 2}
	mm := mgl32.Ident4()
	l := tGeomLayout(0, ^uint32(0), 3, 0, &mm)
	m.write(0, id, &l, true, false)
	if math.Float32bits(l[46]) != ^uint32(0) {
		t.Fatal("geomInfoManager.write: static record has history")
	}

	// Static records persist across frames.
	m.prepareForFrame(1)
	if n := m.count(1); n != 1 {
		t.Fatalf("geomInfoManager.count:\nhave %d\nwant 1", n)
	}
	m.prepareForFrame(0)
	if n := m.count(0); n != 1 {
		t.Fatalf("geomInfoManager.count:\nhave %d\nwant 1", n)
	}

	m.resetOnlyStatic()
	if n := m.count(0); n != 0 {
		t.Fatalf("geomInfoManager.count:\nhave %d\nwant 0", n)
	}
	if _, ok := m.prev[0][id]; ok {
		t.Fatal("geomInfoManager.resetOnlyStatic: history kept")
	}

	// The identity is free for reuse.
	l = tGeomLayout(0, ^uint32(0), 3, 0, &mm)
	m.write(0, id, &l, true, false)
	if n := m.count(0); n != 1 {
		t.Fatalf("geomInfoManager.count:\nhave %d\nwant 1", n)
	}
}

func TestGeomInfoVertexBasePanic(t *testing.T) {
	m, err := newGeomInfoManager()
	if err != nil {
		t.Fatalf("newGeomInfoManager failed:\n%#v", err)
	}
	defer m.free()
	mm := mgl32.Ident4()
	l := tGeomLayout(4, ^uint32(0), 3, 0, &mm)
	defer tWantPanic(t, "geomInfoManager.write: misaligned vertex base")
	m.write(0, PrimitiveID{}, &l, false, false)
}

func TestGeomInfoIndexBasePanic(t *testing.T) {
	m, err := newGeomInfoManager()
	if err != nil {
		t.Fatalf("newGeomInfoManager failed:\n%#v", err)
	}
	defer m.free()
	mm := mgl32.Ident4()
	l := tGeomLayout(0, 5, 3, 3, &mm)
	defer tWantPanic(t, "geomInfoManager.write: misaligned index base")
	m.write(0, PrimitiveID{}, &l, false, false)
}

func TestGeomInfoDuplicatePanic(t *testing.T) {
	m, err := newGeomInfoManager()
	if err != nil {
		t.Fatalf("newGeomInfoManager failed:\n%#v", err)
	}
	defer m.free()
	id := PrimitiveID{ObjectID: 3}
	mm := mgl32.Ident4()
	l := tGeomLayout(0, ^uint32(0), 3, 0, &mm)
	m.write(0, id, &l, false, false)
	l2 := tGeomLayout(0, ^uint32(0), 3, 0, &mm)
	defer tWantPanic(t, "geomInfoManager.write: duplicate primitive identity")
	m.write(0, id, &l2, false, false)
}

func TestGeomInfoStaticDynamicDupPanic(t *testing.T) {
	m, err := newGeomInfoManager()
	if err != nil {
		t.Fatalf("newGeomInfoManager failed:\n%#v", err)
	}
	defer m.free()
	id := PrimitiveID{ObjectID: 4}
	mm := mgl32.Ident4()
	l := tGeomLayout(0, ^uint32(0), 3, 0, &mm)
	m.write(0, id, &l, true, false)
	l2 := tGeomLayout(0, ^uint32(0), 3, 0, &mm)
	defer tWantPanic(t, "geomInfoManager.write: duplicate primitive identity")
	m.write(0, id, &l2, false, false)
}

func TestGeomInfoCopyFromStaging(t *testing.T) {
	m, err := newGeomInfoManager()
	if err != nil {
		t.Fatalf("newGeomInfoManager failed:\n%#v", err)
	}
	defer m.free()

	// Nothing to match, nothing to copy; any command
	// would panic on the unbegun command buffer.
	cb0, err := ctxt.GPU().NewCmdBuffer()
	if err != nil {
		t.Fatalf("GPU.NewCmdBuffer failed:\n%#v", err)
	}
	defer cb0.Destroy()
	if m.copyFromStaging(cb0, 0, nil) {
		t.Fatal("geomInfoManager.copyFromStaging: recorded with nothing to copy")
	}

	idA := PrimitiveID{ObjectID: 1}
	idB := PrimitiveID{ObjectID: 2}
	mm := mgl32.Ident4()
	la := tGeomLayout(0, ^uint32(0), 3, 0, &mm)
	m.write(0, idA, &la, true, false)
	lb := tGeomLayout(3, 0, 6, 6, &mm)
	m.write(0, idB, &lb, false, false)

	cb := tCmdBuffer(t)
	if !m.copyFromStaging(cb, 0, []PrimitiveID{idB, idA}) {
		t.Fatal("geomInfoManager.copyFromStaging: nothing recorded")
	}
	tSubmit(t, cb)

	// Records are laid out in instance order.
	stag := unsafe.Slice((*shader.GeometryLayout)(unsafe.Pointer(unsafe.SliceData(m.recs.bytes(0)))), MaxGeometry)
	if stag[0].FirstVertex() != 3 || stag[0].VertexCount() != 6 {
		t.Fatal("geomInfoManager.copyFromStaging: bad record order")
	}
	if stag[1].FirstVertex() != 0 || stag[1].VertexCount() != 3 {
		t.Fatal("geomInfoManager.copyFromStaging: bad record order")
	}
	n := 2 * int(shader.GeomSize)
	if !bytes.Equal(tDevBytes(t, m.recs.dev)[:n], m.recs.bytes(0)[:n]) {
		t.Fatal("geomInfoManager.copyFromStaging: device records differ from staging")
	}

	// Next frame: A stays, B is gone, C is new.
	m.prepareForFrame(1)
	idC := PrimitiveID{ObjectID: 3}
	lc := tGeomLayout(6, ^uint32(0), 3, 0, &mm)
	m.write(1, idC, &lc, false, false)

	cb = tCmdBuffer(t)
	if !m.copyFromStaging(cb, 1, []PrimitiveID{idA, idC}) {
		t.Fatal("geomInfoManager.copyFromStaging: nothing recorded")
	}
	tSubmit(t, cb)

	// B's previous slot is gone; A moved from 1 to 0.
	match := unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(m.match.bytes(1)))), MaxGeometry)
	if match[0] != -1 || match[1] != 0 {
		t.Fatalf("geomInfoManager.copyFromStaging: match:\nhave %d, %d\nwant -1, 0", match[0], match[1])
	}
	dm := unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(tDevBytes(t, m.match.dev)))), MaxGeometry)
	if dm[0] != -1 || dm[1] != 0 {
		t.Fatalf("geomInfoManager.copyFromStaging: device match:\nhave %d, %d\nwant -1, 0", dm[0], dm[1])
	}

	// Unregistered identities produce a zero record.
	m.prepareForFrame(0)
	cb = tCmdBuffer(t)
	if !m.copyFromStaging(cb, 0, []PrimitiveID{idA, {ObjectID: 99}}) {
		t.Fatal("geomInfoManager.copyFromStaging: nothing recorded")
	}
	tSubmit(t, cb)
	if stag[1] != (shader.GeometryLayout{}) {
		t.Fatal("geomInfoManager.copyFromStaging: unregistered identity produced data")
	}
}
