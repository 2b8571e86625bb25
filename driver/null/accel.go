// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"encoding/binary"
	"errors"
	"math"

	"gviegas/rt/driver"
)

// Errors that acceleration structure builds can produce
// at execution time.
var (
	errUpdate  = errors.New("null: update of a structure not built with BAllowUpdate")
	errUnbuilt = errors.New("null: instance references an unbuilt acceleration structure")
)

// accelStruct implements driver.AccelStruct.
// Builds do not compute anything; they record what a real
// build would have consumed so client code can be checked
// against it.
type accelStruct struct {
	d    *Driver
	id   uint64
	typ  driver.ASType
	buf  *buffer
	off  int64
	size int64

	// Set at commit time by build commands.
	built     bool
	builds    int
	geomCount int
	primCount []int
	instCount int
	lastFlags driver.ASBuildFlags
}

// NewAccelStruct creates a new acceleration structure.
func (d *Driver) NewAccelStruct(typ driver.ASType, buf driver.Buffer, off, size int64) (driver.AccelStruct, error) {
	if typ != driver.ASBottom && typ != driver.ASTop {
		panic("Driver.NewAccelStruct: bad type")
	}
	b, ok := buf.(*buffer)
	if !ok {
		panic("Driver.NewAccelStruct: bad buffer")
	}
	if b.usg&driver.UASStorage == 0 {
		panic("Driver.NewAccelStruct: usage lacks UASStorage")
	}
	if off&(driver.ASAlign-1) != 0 {
		panic("Driver.NewAccelStruct: misaligned offset")
	}
	if off < 0 || size <= 0 || off+size > b.Cap() {
		panic("Driver.NewAccelStruct: bad range")
	}
	d.nas++
	as := &accelStruct{d: d, id: d.nas, typ: typ, buf: b, off: off, size: size}
	d.as[as.id] = as
	return as, nil
}

func (a *accelStruct) Type() driver.ASType { return a.typ }

func (a *accelStruct) Destroy() {
	if a.d != nil {
		delete(a.d.as, a.id)
	}
	*a = accelStruct{}
}

// Size heuristic factors.
// Arbitrary, but stable and monotonic in the primitive
// count, so requirements never shrink when inputs grow.
const (
	memBase   = 128
	memPrim   = 64
	memBuild  = 32
	memUpdate = 16
)

// accelMem computes the requirements of a build over n
// primitives or instances.
func (d *Driver) accelMem(n int) driver.BuildSizes {
	align := d.Limits().MinScratchAlign
	acc := int64(memBase + n*memPrim)
	acc = (acc + driver.ASAlign - 1) &^ (driver.ASAlign - 1)
	bld := (int64(memBase+n*memBuild) + align - 1) &^ (align - 1)
	upd := (int64(memBase+n*memUpdate) + align - 1) &^ (align - 1)
	return driver.BuildSizes{
		AccelSize:     acc,
		BuildScratch:  bld,
		UpdateScratch: upd,
	}
}

// AccelSizes queries the memory requirements of an
// acceleration structure build.
func (d *Driver) AccelSizes(typ driver.ASType, geom []driver.ASGeometry, primCount []int, flags driver.ASBuildFlags) (driver.BuildSizes, error) {
	if flags&driver.BFastTrace != 0 && flags&driver.BFastBuild != 0 {
		panic("Driver.AccelSizes: conflicting build flags")
	}
	var n int
	switch typ {
	case driver.ASBottom:
		if len(geom) == 0 || len(geom) != len(primCount) {
			panic("Driver.AccelSizes: geom/primCount mismatch")
		}
		for _, x := range primCount {
			if x < 0 {
				panic("Driver.AccelSizes: negative count")
			}
			n += x
		}
	case driver.ASTop:
		if geom != nil || len(primCount) != 1 || primCount[0] < 0 {
			panic("Driver.AccelSizes: bad top-level query")
		}
		n = primCount[0]
	default:
		panic("Driver.AccelSizes: bad type")
	}
	return d.accelMem(n), nil
}

// PackInstances writes one 64-byte record per instance:
// the transform rows, the packed custom index and mask,
// the packed table offset and flags, and the structure's
// id in place of a device address.
func (d *Driver) PackInstances(dst driver.Buffer, off int64, inst []driver.TLASInstance) error {
	b, ok := dst.(*buffer)
	if !ok {
		panic("Driver.PackInstances: bad buffer")
	}
	if b.usg&driver.UASInput == 0 {
		panic("Driver.PackInstances: usage lacks UASInput")
	}
	if off < 0 || off&15 != 0 {
		panic("Driver.PackInstances: misaligned offset")
	}
	if off+int64(len(inst))*driver.InstanceSize > b.Cap() {
		panic("Driver.PackInstances: bad range")
	}
	for i := range inst {
		as, ok := inst[i].Blas.(*accelStruct)
		if !ok || as.typ != driver.ASBottom {
			panic("Driver.PackInstances: bad bottom-level reference")
		}
		p := b.p[off+int64(i)*driver.InstanceSize:]
		for j, x := range inst[i].Transform {
			binary.LittleEndian.PutUint32(p[j*4:], math.Float32bits(x))
		}
		x := inst[i].CustomIndex&0xffffff | uint32(inst[i].Mask)<<24
		binary.LittleEndian.PutUint32(p[48:], x)
		x = inst[i].SBTOffset&0xffffff | uint32(inst[i].Flags)<<24
		binary.LittleEndian.PutUint32(p[52:], x)
		binary.LittleEndian.PutUint64(p[56:], as.id)
	}
	return nil
}

// checkScratch validates a build's scratch range.
func (cb *cmdBuffer) checkScratch(buf driver.Buffer, off, need int64, method string) {
	b, ok := buf.(*buffer)
	if !ok {
		panic(method + ": bad scratch buffer")
	}
	if b.usg&driver.UScratch == 0 {
		panic(method + ": usage lacks UScratch")
	}
	if off&(cb.d.Limits().MinScratchAlign-1) != 0 {
		panic(method + ": misaligned scratch offset")
	}
	if off < 0 || off+need > b.Cap() {
		panic(method + ": scratch range too small")
	}
}

func (cb *cmdBuffer) BuildBLAS(param []driver.BLASBuild) {
	cb.recording("cmdBuffer.BuildBLAS")
	const method = "cmdBuffer.BuildBLAS"
	ps := make([]driver.BLASBuild, len(param))
	copy(ps, param)
	for i := range ps {
		p := &ps[i]
		dst, ok := p.Dst.(*accelStruct)
		if !ok || dst.typ != driver.ASBottom {
			panic(method + ": bad destination")
		}
		if len(p.Geom) == 0 || len(p.Geom) != len(p.Ranges) {
			panic(method + ": geometry/range mismatch")
		}
		if len(p.Geom) > cb.d.Limits().MaxBLASGeom {
			panic(method + ": too many geometries")
		}
		if p.Flags&driver.BFastTrace != 0 && p.Flags&driver.BFastBuild != 0 {
			panic(method + ": conflicting build flags")
		}
		var n int
		for j := range p.Geom {
			g := &p.Geom[j]
			r := &p.Ranges[j]
			vb, ok := g.VertexData.(*buffer)
			if !ok {
				panic(method + ": bad vertex buffer")
			}
			if vb.usg&driver.UVertexData == 0 {
				panic(method + ": usage lacks UVertexData")
			}
			if g.VertexCount < 1 || g.VertexStride < int64(g.VertexFmt.Size()) {
				panic(method + ": bad vertex layout")
			}
			if g.VertexOff < 0 || g.VertexOff+int64(g.VertexCount)*g.VertexStride > vb.Cap() {
				panic(method + ": vertex range out of bounds")
			}
			if r.PrimCount < 0 {
				panic(method + ": negative primitive count")
			}
			if g.IndexData != nil {
				ib, ok := g.IndexData.(*buffer)
				if !ok {
					panic(method + ": bad index buffer")
				}
				if ib.usg&driver.UIndexData == 0 {
					panic(method + ": usage lacks UIndexData")
				}
				end := g.IndexOff + int64(r.PrimOff) + int64(3*r.PrimCount)*int64(g.IndexFmt)
				if g.IndexOff < 0 || r.PrimOff < 0 || end > ib.Cap() {
					panic(method + ": index range out of bounds")
				}
			} else if r.PrimOff+3*r.PrimCount > g.VertexCount {
				panic(method + ": primitive range out of bounds")
			}
			n += r.PrimCount
		}
		need := cb.d.accelMem(n)
		if dst.size < need.AccelSize {
			panic(method + ": destination too small")
		}
		scratch := need.BuildScratch
		if p.Flags&driver.BUpdate != 0 {
			scratch = need.UpdateScratch
		}
		cb.checkScratch(p.Scratch, p.ScratchOff, scratch, method)
	}
	cb.ops = append(cb.ops, func() error {
		for i := range ps {
			p := &ps[i]
			dst := p.Dst.(*accelStruct)
			if p.Flags&driver.BUpdate != 0 && (!dst.built || dst.lastFlags&driver.BAllowUpdate == 0) {
				return errUpdate
			}
			dst.built = true
			dst.builds++
			dst.geomCount = len(p.Geom)
			dst.primCount = make([]int, len(p.Ranges))
			for j := range p.Ranges {
				dst.primCount[j] = p.Ranges[j].PrimCount
			}
			dst.lastFlags = p.Flags
		}
		return nil
	})
}

func (cb *cmdBuffer) BuildTLAS(param []driver.TLASBuild) {
	cb.recording("cmdBuffer.BuildTLAS")
	const method = "cmdBuffer.BuildTLAS"
	ps := make([]driver.TLASBuild, len(param))
	copy(ps, param)
	for i := range ps {
		p := &ps[i]
		dst, ok := p.Dst.(*accelStruct)
		if !ok || dst.typ != driver.ASTop {
			panic(method + ": bad destination")
		}
		if p.InstCount < 0 || p.InstCount > cb.d.Limits().MaxTLASInst {
			panic(method + ": bad instance count")
		}
		if p.Flags&driver.BFastTrace != 0 && p.Flags&driver.BFastBuild != 0 {
			panic(method + ": conflicting build flags")
		}
		if p.InstCount > 0 {
			ib, ok := p.InstData.(*buffer)
			if !ok {
				panic(method + ": bad instance buffer")
			}
			if ib.usg&driver.UASInput == 0 {
				panic(method + ": usage lacks UASInput")
			}
			if p.InstOff < 0 || p.InstOff&15 != 0 {
				panic(method + ": misaligned instance offset")
			}
			if p.InstOff+int64(p.InstCount)*driver.InstanceSize > ib.Cap() {
				panic(method + ": instance range out of bounds")
			}
		}
		need := cb.d.accelMem(p.InstCount)
		if dst.size < need.AccelSize {
			panic(method + ": destination too small")
		}
		scratch := need.BuildScratch
		if p.Flags&driver.BUpdate != 0 {
			scratch = need.UpdateScratch
		}
		cb.checkScratch(p.Scratch, p.ScratchOff, scratch, method)
	}
	cb.ops = append(cb.ops, func() error {
		for i := range ps {
			p := &ps[i]
			dst := p.Dst.(*accelStruct)
			if p.Flags&driver.BUpdate != 0 && (!dst.built || dst.lastFlags&driver.BAllowUpdate == 0) {
				return errUpdate
			}
			for j := 0; j < p.InstCount; j++ {
				rec := p.InstData.Bytes()[p.InstOff+int64(j)*driver.InstanceSize:]
				id := binary.LittleEndian.Uint64(rec[56:])
				ref := cb.d.as[id]
				if ref == nil || ref.typ != driver.ASBottom || !ref.built {
					return errUnbuilt
				}
			}
			dst.built = true
			dst.builds++
			dst.instCount = p.InstCount
			dst.lastFlags = p.Flags
		}
		return nil
	})
}
