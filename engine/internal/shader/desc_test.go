// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"encoding/binary"
	"testing"

	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/ctxt"
)

// check checks that tb is valid.
func (tb *TraceTable) check(globalN, vertexN int, t *testing.T) {
	if tb == nil {
		t.Fatal("TraceTable is nil (NewTraceTable likely failed)")
	}
	for _, x := range [maxHeap]struct {
		s    string
		i, n int
	}{
		{"GlobalHeap", GlobalHeap, globalN},
		{"VertexHeap", VertexHeap, vertexN},
	} {
		if n := tb.dt.Heap(x.i).Count(); n != x.n {
			t.Fatalf("TraceTable.dt.Heap(%s).Count:\nhave %d\nwant %d", x.s, n, x.n)
		}
	}
	csz := globalN * int(styleSpan)
	if x := tb.ConstSize(); x != csz {
		t.Fatalf("TraceTable.ConstSize:\nhave %d\nwant %d", x, csz)
	} else if x%blockSize != 0 {
		t.Fatal("TraceTable.ConstSize: misaligned size")
	} else if tb.cbuf != nil && tb.cbuf.Cap()-tb.coff < int64(x) {
		t.Fatal("TraceTable.cbuf/coff: range out of bounds")
	}
}

func TestSpans(t *testing.T) {
	for _, x := range [...]struct {
		s         string
		spn, want int64
	}{
		{"GeomSpan", GeomSpan, MaxGeom * GeomSize},
		{"GeomMatchSpan", GeomMatchSpan, MaxGeom * 4},
		{"LightSpan", LightSpan, MaxLight * LightSize},
		{"LightMatchSpan", LightMatchSpan, MaxLight * 4},
		{"styleSpan", styleSpan, MaxStyle * 4},
	} {
		if x.spn != x.want {
			t.Fatalf("%s:\nhave %d\nwant %d", x.s, x.spn, x.want)
		}
		if x.spn%blockSize != 0 {
			t.Fatalf("%s: misaligned span", x.s)
		}
	}
}

func TestNewTraceTable(t *testing.T) {
	for _, x := range [...]struct{ ng, nv int }{
		{ng: 1},
		{ng: 2},
		{ng: 3},
		{ng: 1, nv: 1},
		{ng: 2, nv: 1},
		{ng: 2, nv: 2},
		{ng: 0, nv: 1},
		{ng: 0, nv: 0},
		{ng: 16, nv: 16},
		{ng: 64, nv: 1},
		{ng: 255, nv: 254},
	} {
		tb, _ := NewTraceTable(x.ng, x.nv)
		tb.check(x.ng, x.nv, t)
		tb.Free()
	}
}

func TestSetConstBuf(t *testing.T) {
	for _, x := range [...]struct{ ng, nv int }{
		{ng: 1},
		{ng: 1, nv: 1},
		{ng: 2, nv: 2},
		{ng: 3, nv: 1},
		{ng: 16, nv: 2},
		{ng: 62, nv: 63},
	} {
		tb, _ := NewTraceTable(x.ng, x.nv)
		tb.check(x.ng, x.nv, t)

		sz := int64(tb.ConstSize() * 4)
		buf, err := ctxt.GPU().NewBuffer(sz, true, driver.UShaderConst)
		if err != nil {
			t.Fatalf("driver.GPU.NewBuffer failed:\n%#v", err)
		}

		wbuf, woff := driver.Buffer(nil), int64(0)
		for _, x := range [3]int64{0, sz / 2, sz - int64(tb.ConstSize())} {
			if hbuf, hoff := tb.SetConstBuf(buf, x); wbuf != hbuf || woff != hoff {
				t.Fatalf("TraceTable.SetConstBuf:\nhave %v, %d\nwant %v, %d", hbuf, hoff, wbuf, woff)
			}
			wbuf = buf
			woff = x
		}

		tb.Free()
		buf.Destroy()
	}
}

func TestSetConstBufPanic(t *testing.T) {
	tb, _ := NewTraceTable(1, 1)
	tb.check(1, 1, t)
	buf, err := ctxt.GPU().NewBuffer(int64(tb.ConstSize()), true, driver.UShaderConst)
	if err != nil {
		t.Fatalf("driver.GPU.NewBuffer failed:\n%#v", err)
	}
	func() {
		defer wantPanicT(t, "misaligned constant buffer offset")
		tb.SetConstBuf(buf, blockSize/2)
	}()
	func() {
		defer wantPanicT(t, "constant buffer range out of bounds")
		tb.SetConstBuf(buf, blockSize)
	}()
	tb.Free()
	buf.Destroy()
}

func TestStyles(t *testing.T) {
	const ng = 3
	tb, _ := NewTraceTable(ng, 1)
	tb.check(ng, 1, t)
	buf, err := ctxt.GPU().NewBuffer(int64(tb.ConstSize()), true, driver.UShaderConst)
	if err != nil {
		t.Fatalf("driver.GPU.NewBuffer failed:\n%#v", err)
	}
	tb.SetConstBuf(buf, 0)
	for i := range ng {
		s := tb.Styles(i)
		for j := range s {
			s[j] = uint32(i<<16 | j)
		}
	}
	bs := buf.Bytes()
	for i := range ng {
		off := int(styleSpan) * i
		for j := range MaxStyle {
			x := binary.LittleEndian.Uint32(bs[off+j*4:])
			if want := uint32(i<<16 | j); x != want {
				t.Fatalf("TraceTable.Styles(%d)[%d]:\nhave %#x\nwant %#x", i, j, x, want)
			}
		}
	}
	func() {
		defer wantPanicT(t, "descriptor heap copy out of bounds")
		tb.Styles(ng)
	}()
	tb.Free()
	buf.Destroy()
}

func TestTraceTableSetters(t *testing.T) {
	tb, _ := NewTraceTable(2, 1)
	tb.check(2, 1, t)

	newBuf := func(sz int64, usg driver.Usage) driver.Buffer {
		buf, err := ctxt.GPU().NewBuffer(sz, true, usg)
		if err != nil {
			t.Fatalf("driver.GPU.NewBuffer failed:\n%#v", err)
		}
		return buf
	}
	recs := newBuf(GeomSpan, driver.UShaderRead|driver.UCopyDst)
	match := newBuf(GeomMatchSpan, driver.UShaderRead|driver.UCopyDst)
	light := newBuf(LightSpan, driver.UShaderRead|driver.UCopyDst)
	prev := newBuf(LightSpan, driver.UShaderRead|driver.UCopyDst)
	fwd := newBuf(LightMatchSpan, driver.UShaderRead|driver.UCopyDst)
	rev := newBuf(LightMatchSpan, driver.UShaderRead|driver.UCopyDst)
	vert := newBuf(4096, driver.UShaderRead|driver.UVertexData)
	idx := newBuf(1024, driver.UShaderRead|driver.UIndexData)

	for cpy := range 2 {
		tb.SetGeometry(cpy, recs, match)
		tb.SetLights(cpy, light, prev, fwd, rev)
	}
	tb.SetStaticMesh(0, vert, idx)
	tb.SetDynamicMesh(0, vert, idx, vert, idx)
	tb.SetStaticLayers(0, vert, vert, vert)
	tb.SetDynamicLayers(0, vert, vert, vert)

	bs, err := ctxt.GPU().AccelSizes(driver.ASTop, nil, []int{1}, 0)
	if err != nil {
		t.Fatalf("driver.GPU.AccelSizes failed:\n%#v", err)
	}
	asBuf := newBuf(bs.AccelSize, driver.UASStorage)
	tlas, err := ctxt.GPU().NewAccelStruct(driver.ASTop, asBuf, 0, bs.AccelSize)
	if err != nil {
		t.Fatalf("driver.GPU.NewAccelStruct failed:\n%#v", err)
	}
	tb.SetTLAS(0, tlas)
	tb.SetTLAS(1, tlas)

	func() {
		defer wantPanicT(t, "nil acceleration structure")
		tb.SetTLAS(0, nil)
	}()
	func() {
		defer wantPanicT(t, "nil buffer")
		tb.SetGeometry(0, nil, match)
	}()
	func() {
		defer wantPanicT(t, "storage buffer range out of bounds")
		tb.SetGeometry(0, match, match)
	}()
	func() {
		defer wantPanicT(t, "storage buffer range out of bounds")
		tb.SetLights(0, light, prev, fwd, idx)
	}()
	func() {
		defer wantPanicT(t, "descriptor heap copy out of bounds")
		tb.SetStaticMesh(1, vert, idx)
	}()
	func() {
		defer wantPanicT(t, "invalid layer count")
		tb.SetStaticLayers(0, vert, vert)
	}()

	tlas.Destroy()
	for _, b := range []driver.Buffer{recs, match, light, prev, fwd, rev, vert, idx, asBuf} {
		b.Destroy()
	}
	tb.Free()
}

func TestTraceTableSet(t *testing.T) {
	tb, _ := NewTraceTable(2, 1)
	tb.check(2, 1, t)
	cb, err := ctxt.GPU().NewCmdBuffer()
	if err != nil {
		t.Fatalf("driver.GPU.NewCmdBuffer failed:\n%#v", err)
	}
	if err := cb.Begin(); err != nil {
		t.Fatalf("driver.CmdBuffer.Begin failed:\n%#v", err)
	}
	tb.Set(cb, GlobalHeap, []int{1, 0})
	tb.Set(cb, GlobalHeap, []int{0})
	tb.Set(cb, VertexHeap, []int{0})
	func() {
		defer wantPanicT(t, "invalid descriptor heap indexing")
		tb.Set(cb, maxHeap, []int{0})
	}()
	func() {
		defer wantPanicT(t, "invalid descriptor heap indexing")
		tb.Set(cb, GlobalHeap, nil)
	}()
	func() {
		defer wantPanicT(t, "invalid descriptor heap indexing")
		tb.Set(cb, VertexHeap, []int{0, 0})
	}()
	func() {
		defer wantPanicT(t, "descriptor heap copy out of bounds")
		tb.Set(cb, GlobalHeap, []int{2})
	}()
	if err := cb.End(); err != nil {
		t.Fatalf("driver.CmdBuffer.End failed:\n%#v", err)
	}
	cb.Destroy()
	tb.Free()
}
