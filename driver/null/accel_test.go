// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"encoding/binary"
	"math"
	"testing"

	"gviegas/rt/driver"
)

func TestNewAccelStruct(t *testing.T) {
	d := tOpen(t)
	buf := tBuffer(t, d, 4096, driver.UASStorage)
	as, err := d.NewAccelStruct(driver.ASBottom, buf, 512, 1024)
	if err != nil {
		t.Fatalf("Driver.NewAccelStruct failed:\n%#v", err)
	}
	if typ := as.Type(); typ != driver.ASBottom {
		t.Fatalf("AccelStruct.Type:\nhave %d\nwant %d", typ, driver.ASBottom)
	}
	a := as.(*accelStruct)
	if a.built || d.as[a.id] != a {
		t.Fatal("NewAccelStruct: bad initial state")
	}
	id := a.id
	as.Destroy()
	if d.as[id] != nil {
		t.Fatal("AccelStruct.Destroy: still registered")
	}
}

func TestAccelStructAlignPanic(t *testing.T) {
	d := tOpen(t)
	buf := tBuffer(t, d, 4096, driver.UASStorage)
	defer tWantPanic(t, "Driver.NewAccelStruct: misaligned offset")
	d.NewAccelStruct(driver.ASTop, buf, 128, 256)
}

func TestAccelStructUsagePanic(t *testing.T) {
	d := tOpen(t)
	buf := tBuffer(t, d, 4096, driver.UShaderRead)
	defer tWantPanic(t, "Driver.NewAccelStruct: usage lacks UASStorage")
	d.NewAccelStruct(driver.ASTop, buf, 0, 256)
}

func TestAccelSizes(t *testing.T) {
	d := tOpen(t)
	vb := tBuffer(t, d, 1<<12, driver.UVertexData)
	align := d.Limits().MinScratchAlign
	var prev driver.BuildSizes
	for _, n := range [...]int{0, 1, 3, 10, 100, 1000} {
		geom := []driver.ASGeometry{{
			VertexData:   vb,
			VertexFmt:    driver.Float32x3,
			VertexStride: 12,
			VertexCount:  3 * max(n, 1),
		}}
		sz, err := d.AccelSizes(driver.ASBottom, geom, []int{n}, driver.BFastTrace)
		if err != nil {
			t.Fatalf("Driver.AccelSizes failed:\n%#v", err)
		}
		if sz.AccelSize&(driver.ASAlign-1) != 0 {
			t.Fatalf("BuildSizes.AccelSize: unaligned: %d", sz.AccelSize)
		}
		if sz.BuildScratch&(align-1) != 0 || sz.UpdateScratch&(align-1) != 0 {
			t.Fatalf("BuildSizes: unaligned scratch: %d, %d", sz.BuildScratch, sz.UpdateScratch)
		}
		if sz.AccelSize < prev.AccelSize || sz.BuildScratch < prev.BuildScratch {
			t.Fatalf("BuildSizes: shrank with larger input:\nhave %v\nafter %v", sz, prev)
		}
		prev = sz

		top, err := d.AccelSizes(driver.ASTop, nil, []int{n}, 0)
		if err != nil {
			t.Fatalf("Driver.AccelSizes failed:\n%#v", err)
		}
		if top.AccelSize <= 0 || top.BuildScratch <= 0 {
			t.Fatalf("BuildSizes: non-positive: %v", top)
		}
	}
}

func TestAccelSizesFlagsPanic(t *testing.T) {
	d := tOpen(t)
	defer tWantPanic(t, "Driver.AccelSizes: conflicting build flags")
	d.AccelSizes(driver.ASTop, nil, []int{1}, driver.BFastTrace|driver.BFastBuild)
}

func TestPackInstances(t *testing.T) {
	d := tOpen(t)
	asbuf := tBuffer(t, d, 4096, driver.UASStorage)
	blas, err := d.NewAccelStruct(driver.ASBottom, asbuf, 0, 512)
	if err != nil {
		t.Fatalf("Driver.NewAccelStruct failed:\n%#v", err)
	}
	dst := tBuffer(t, d, 256, driver.UASInput)
	inst := []driver.TLASInstance{
		{
			Blas:        blas,
			Transform:   [12]float32{1, 0, 0, 4, 0, 1, 0, 5, 0, 0, 1, 6},
			CustomIndex: 0x123456,
			Mask:        0xc3,
			SBTOffset:   1,
			Flags:       driver.IForceOpaque | driver.IFrontCCW,
		},
		{Blas: blas, Mask: 0xff},
	}
	if err := d.PackInstances(dst, 64, inst); err != nil {
		t.Fatalf("Driver.PackInstances failed:\n%#v", err)
	}
	p := dst.Bytes()[64:]
	if x := math.Float32frombits(binary.LittleEndian.Uint32(p)); x != 1 {
		t.Fatalf("PackInstances: transform[0]:\nhave %f\nwant 1", x)
	}
	if x := math.Float32frombits(binary.LittleEndian.Uint32(p[7*4:])); x != 5 {
		t.Fatalf("PackInstances: transform[7]:\nhave %f\nwant 5", x)
	}
	if x := binary.LittleEndian.Uint32(p[48:]); x != 0x123456|0xc3<<24 {
		t.Fatalf("PackInstances: custom/mask:\nhave %#x\nwant %#x", x, 0x123456|0xc3<<24)
	}
	want := uint32(1) | uint32(driver.IForceOpaque|driver.IFrontCCW)<<24
	if x := binary.LittleEndian.Uint32(p[52:]); x != want {
		t.Fatalf("PackInstances: sbt/flags:\nhave %#x\nwant %#x", x, want)
	}
	if x := binary.LittleEndian.Uint64(p[56:]); x != blas.(*accelStruct).id {
		t.Fatalf("PackInstances: reference:\nhave %d\nwant %d", x, blas.(*accelStruct).id)
	}
	if x := binary.LittleEndian.Uint64(p[64+56:]); x != blas.(*accelStruct).id {
		t.Fatalf("PackInstances: reference:\nhave %d\nwant %d", x, blas.(*accelStruct).id)
	}
}

func TestPackInstancesUsagePanic(t *testing.T) {
	d := tOpen(t)
	dst := tBuffer(t, d, 256, driver.UShaderRead)
	defer tWantPanic(t, "Driver.PackInstances: usage lacks UASInput")
	d.PackInstances(dst, 0, nil)
}

// tGeom returns an indexed two-triangle geometry/range
// pair backed by fresh buffers.
func tGeom(t *testing.T, d *Driver, flags driver.ASGeomFlags) (driver.ASGeometry, driver.ASRange) {
	vb := tBuffer(t, d, 4*12, driver.UVertexData)
	ib := tBuffer(t, d, 6*4, driver.UIndexData)
	return driver.ASGeometry{
		VertexData:   vb,
		VertexFmt:    driver.Float32x3,
		VertexStride: 12,
		VertexCount:  4,
		IndexData:    ib,
		IndexFmt:     driver.Index32,
		Flags:        flags,
	}, driver.ASRange{PrimCount: 2}
}

func TestBuildBLAS(t *testing.T) {
	d := tOpen(t)
	geom, rng := tGeom(t, d, driver.GOpaque)
	sz, err := d.AccelSizes(driver.ASBottom, []driver.ASGeometry{geom}, []int{rng.PrimCount}, driver.BFastTrace)
	if err != nil {
		t.Fatalf("Driver.AccelSizes failed:\n%#v", err)
	}
	asbuf := tBuffer(t, d, sz.AccelSize, driver.UASStorage)
	scratch := tBuffer(t, d, sz.BuildScratch, driver.UScratch)
	as, err := d.NewAccelStruct(driver.ASBottom, asbuf, 0, sz.AccelSize)
	if err != nil {
		t.Fatalf("Driver.NewAccelStruct failed:\n%#v", err)
	}
	cb, _ := d.NewCmdBuffer()
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
	}
	cb.BuildBLAS([]driver.BLASBuild{{
		Dst:     as,
		Geom:    []driver.ASGeometry{geom},
		Ranges:  []driver.ASRange{rng},
		Flags:   driver.BFastTrace,
		Scratch: scratch,
	}})
	a := as.(*accelStruct)
	if a.built {
		t.Fatal("BuildBLAS: built before commit")
	}
	tCommit(t, d, cb)
	if !a.built || a.builds != 1 || a.geomCount != 1 {
		t.Fatalf("BuildBLAS: %v, %d, %d", a.built, a.builds, a.geomCount)
	}
	if len(a.primCount) != 1 || a.primCount[0] != 2 {
		t.Fatalf("BuildBLAS: primCount:\nhave %v\nwant [2]", a.primCount)
	}
	if a.lastFlags != driver.BFastTrace {
		t.Fatalf("BuildBLAS: flags:\nhave %#x\nwant %#x", a.lastFlags, driver.BFastTrace)
	}
}

func TestBuildBLASTooSmallPanic(t *testing.T) {
	d := tOpen(t)
	geom, rng := tGeom(t, d, 0)
	asbuf := tBuffer(t, d, driver.ASAlign, driver.UASStorage)
	scratch := tBuffer(t, d, 1<<12, driver.UScratch)
	// Too small for two primitives under the size
	// heuristic.
	as, err := d.NewAccelStruct(driver.ASBottom, asbuf, 0, 16)
	if err != nil {
		t.Fatalf("Driver.NewAccelStruct failed:\n%#v", err)
	}
	cb, _ := d.NewCmdBuffer()
	cb.Begin()
	defer tWantPanic(t, "cmdBuffer.BuildBLAS: destination too small")
	cb.BuildBLAS([]driver.BLASBuild{{
		Dst:     as,
		Geom:    []driver.ASGeometry{geom},
		Ranges:  []driver.ASRange{rng},
		Scratch: scratch,
	}})
}

func TestBuildBLASUpdate(t *testing.T) {
	d := tOpen(t)
	geom, rng := tGeom(t, d, 0)
	sz, _ := d.AccelSizes(driver.ASBottom, []driver.ASGeometry{geom}, []int{rng.PrimCount}, driver.BAllowUpdate)
	asbuf := tBuffer(t, d, sz.AccelSize, driver.UASStorage)
	scratch := tBuffer(t, d, sz.BuildScratch, driver.UScratch)
	as, _ := d.NewAccelStruct(driver.ASBottom, asbuf, 0, sz.AccelSize)
	a := as.(*accelStruct)

	// Updating a structure that was never built must
	// fail at execution time.
	cb, _ := d.NewCmdBuffer()
	cb.Begin()
	cb.BuildBLAS([]driver.BLASBuild{{
		Dst:     as,
		Geom:    []driver.ASGeometry{geom},
		Ranges:  []driver.ASRange{rng},
		Flags:   driver.BAllowUpdate | driver.BUpdate,
		Scratch: scratch,
	}})
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End failed:\n%#v", err)
	}
	ch := make(chan *driver.WorkItem)
	wk := driver.WorkItem{Work: []driver.CmdBuffer{cb}}
	if err := d.Commit(&wk, ch); err != nil {
		t.Fatalf("Driver.Commit failed:\n%#v", err)
	}
	if x := <-ch; x.Err != errUpdate {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant %v", x.Err, errUpdate)
	}
	if a.built {
		t.Fatal("BuildBLAS: failed update marked the structure built")
	}

	// Full build, then update.
	for _, flags := range [...]driver.ASBuildFlags{
		driver.BAllowUpdate,
		driver.BAllowUpdate | driver.BUpdate,
	} {
		cb.Begin()
		cb.BuildBLAS([]driver.BLASBuild{{
			Dst:     as,
			Geom:    []driver.ASGeometry{geom},
			Ranges:  []driver.ASRange{rng},
			Flags:   flags,
			Scratch: scratch,
		}})
		tCommit(t, d, cb)
	}
	if !a.built || a.builds != 2 {
		t.Fatalf("BuildBLAS: %v, %d\nwant true, 2", a.built, a.builds)
	}
}

func TestBuildTLAS(t *testing.T) {
	d := tOpen(t)
	geom, rng := tGeom(t, d, driver.GOpaque)
	bsz, _ := d.AccelSizes(driver.ASBottom, []driver.ASGeometry{geom}, []int{rng.PrimCount}, 0)
	tsz, _ := d.AccelSizes(driver.ASTop, nil, []int{1}, 0)
	asbuf := tBuffer(t, d, bsz.AccelSize+tsz.AccelSize, driver.UASStorage)
	scratch := tBuffer(t, d, max(bsz.BuildScratch, tsz.BuildScratch), driver.UScratch)
	blas, _ := d.NewAccelStruct(driver.ASBottom, asbuf, 0, bsz.AccelSize)
	tlas, _ := d.NewAccelStruct(driver.ASTop, asbuf, bsz.AccelSize, tsz.AccelSize)
	instBuf := tBuffer(t, d, driver.InstanceSize, driver.UASInput)
	if err := d.PackInstances(instBuf, 0, []driver.TLASInstance{{Blas: blas, Mask: 1}}); err != nil {
		t.Fatalf("Driver.PackInstances failed:\n%#v", err)
	}

	// The bottom-level build earlier in the same batch
	// must satisfy the top-level build's references.
	cb, _ := d.NewCmdBuffer()
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
	}
	cb.BuildBLAS([]driver.BLASBuild{{
		Dst:     blas,
		Geom:    []driver.ASGeometry{geom},
		Ranges:  []driver.ASRange{rng},
		Scratch: scratch,
	}})
	cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SASBuild,
		SyncAfter:    driver.SASBuild,
		AccessBefore: driver.AASWrite,
		AccessAfter:  driver.AASRead,
	}})
	cb.BuildTLAS([]driver.TLASBuild{{
		Dst:       tlas,
		InstData:  instBuf,
		InstCount: 1,
		Scratch:   scratch,
	}})
	tCommit(t, d, cb)
	a := tlas.(*accelStruct)
	if !a.built || a.instCount != 1 {
		t.Fatalf("BuildTLAS: %v, %d\nwant true, 1", a.built, a.instCount)
	}

	// An empty build is valid and marks the structure
	// usable.
	cb.Begin()
	cb.BuildTLAS([]driver.TLASBuild{{Dst: tlas, Scratch: scratch}})
	tCommit(t, d, cb)
	if !a.built || a.instCount != 0 || a.builds != 2 {
		t.Fatalf("BuildTLAS: %v, %d, %d\nwant true, 0, 2", a.built, a.instCount, a.builds)
	}
}

func TestBuildTLASUnbuilt(t *testing.T) {
	d := tOpen(t)
	tsz, _ := d.AccelSizes(driver.ASTop, nil, []int{1}, 0)
	asbuf := tBuffer(t, d, tsz.AccelSize+driver.ASAlign, driver.UASStorage)
	scratch := tBuffer(t, d, tsz.BuildScratch, driver.UScratch)
	blas, _ := d.NewAccelStruct(driver.ASBottom, asbuf, 0, driver.ASAlign)
	tlas, _ := d.NewAccelStruct(driver.ASTop, asbuf, driver.ASAlign, tsz.AccelSize)
	instBuf := tBuffer(t, d, driver.InstanceSize, driver.UASInput)
	if err := d.PackInstances(instBuf, 0, []driver.TLASInstance{{Blas: blas, Mask: 1}}); err != nil {
		t.Fatalf("Driver.PackInstances failed:\n%#v", err)
	}
	cb, _ := d.NewCmdBuffer()
	cb.Begin()
	cb.BuildTLAS([]driver.TLASBuild{{
		Dst:       tlas,
		InstData:  instBuf,
		InstCount: 1,
		Scratch:   scratch,
	}})
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End failed:\n%#v", err)
	}
	ch := make(chan *driver.WorkItem)
	wk := driver.WorkItem{Work: []driver.CmdBuffer{cb}}
	if err := d.Commit(&wk, ch); err != nil {
		t.Fatalf("Driver.Commit failed:\n%#v", err)
	}
	if x := <-ch; x.Err != errUnbuilt {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant %v", x.Err, errUnbuilt)
	}
	if tlas.(*accelStruct).built {
		t.Fatal("BuildTLAS: failed build marked the structure built")
	}
}
