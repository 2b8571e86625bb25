// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Top- and bottom-level structure management.

package engine

import (
	"errors"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"

	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/ctxt"
	"gviegas/rt/engine/internal/shader"
)

const accelPrefix = "accel: "

func newAccelErr(reason string) error { return errors.New(accelPrefix + reason) }

// staticToken and dynamicToken pair begin calls with
// their submit calls.
// A token is consumed by the submit that takes it.
type staticToken struct {
	active bool
}

type dynamicToken struct {
	active bool
	frame  int
}

// blasInstance is one built bottom-level structure plus
// the classification inputs that top-level instance
// synthesis needs.
type blasInstance struct {
	id   PrimitiveID
	mesh MeshFlags
	prim PrimFlags
	blas accelComp

	// Build figures kept for Stats.
	nvert     int
	ntri      int
	indexed   bool
	fastBuild bool
}

// frameObject is one entry of the instance list that the
// next top-level build will draw from.
type frameObject struct {
	inst      *blasInstance
	transform mgl32.Mat4
	isStatic  bool
}

// asManager owns the acceleration structures and the
// device buffers that shaders fetch geometry from.
// A single instance serves every frame; Scene drives it.
type asManager struct {
	tex    TextureIndexer
	geoms  *geomInfoManager
	lights *lightManager

	staticCol *vertexCollector
	dynCol    [MaxFrame]*vertexCollector

	// Snapshots of the previous frame's dynamic mesh.
	// One pair per frame so frames in flight do not
	// overwrite each other's copy.
	prevVert [MaxFrame]driver.Buffer
	prevIdx  [MaxFrame]driver.Buffer

	// Mapped instance storage that top-level builds
	// consume directly. Sized for the worst case of
	// both geometry groups.
	instBuf [MaxFrame]driver.Buffer

	builder asBuilder
	tlas    [MaxFrame]accelComp

	staticInst []*blasInstance
	dynInst    [MaxFrame][]*blasInstance
	objects    []frameObject
	tlasOrder  [MaxFrame][]PrimitiveID
	maskHist   [MaxFrame][8]int

	scratch       [MaxFrame]blockAlloc
	staticScratch blockAlloc
	staticArena   blockAlloc
	dynArena      blockAlloc
	tlasArena     blockAlloc

	sfw  *frameWork
	tt   *shader.TraceTable
	cbuf driver.Buffer
}

// newASManager creates a manager configured by the
// package-level cfg.
// tex may be nil, in which case every material resolves
// to the neutral texture set.
func newASManager(tex TextureIndexer, geoms *geomInfoManager, lights *lightManager) (*asManager, error) {
	m := &asManager{tex: tex, geoms: geoms, lights: lights}

	align := ctxt.Limits().MinScratchAlign
	for i := range m.scratch {
		m.scratch[i] = newBlockAlloc(align, cfg.ScratchChunk, driver.UScratch)
	}
	m.staticScratch = newBlockAlloc(align, cfg.ScratchChunk, driver.UScratch)
	m.staticArena = newBlockAlloc(driver.ASAlign, cfg.ScratchChunk, driver.UASStorage)
	m.dynArena = newBlockAlloc(driver.ASAlign, cfg.ScratchChunk, driver.UASStorage)
	m.tlasArena = newBlockAlloc(driver.ASAlign, cfg.ScratchChunk, driver.UASStorage)
	for i := range m.tlas {
		m.tlas[i].name = "tlas[" + strconv.Itoa(i) + "]"
	}

	var err error
	fail := func() (*asManager, error) {
		m.free()
		return nil, err
	}
	m.staticCol, err = newVertexCollector(CStatic, cfg.StaticVertex, cfg.Index)
	if err != nil {
		return fail()
	}
	for i := range m.dynCol {
		m.dynCol[i], err = newVertexCollector(CDynamic, cfg.DynamicVertex, cfg.Index)
		if err != nil {
			return fail()
		}
	}
	for i := range m.prevVert {
		m.prevVert[i], err = ctxt.GPU().NewBuffer(int64(cfg.DynamicVertex)*shader.VertexSize, false, driver.UShaderRead|driver.UCopyDst)
		if err != nil {
			return fail()
		}
		m.prevIdx[i], err = ctxt.GPU().NewBuffer(int64(cfg.Index)*4, false, driver.UShaderRead|driver.UCopyDst)
		if err != nil {
			return fail()
		}
	}
	for i := range m.instBuf {
		m.instBuf[i], err = ctxt.GPU().NewBuffer(2*MaxInstance*driver.InstanceSize, true, driver.UASInput)
		if err != nil {
			return fail()
		}
	}
	m.sfw, err = newFrameWork(1)
	if err != nil {
		return fail()
	}
	m.tt, err = shader.NewTraceTable(MaxFrame, MaxFrame)
	if err != nil {
		return fail()
	}
	m.cbuf, err = ctxt.GPU().NewBuffer(int64(m.tt.ConstSize()), true, driver.UShaderConst)
	if err != nil {
		return fail()
	}
	m.tt.SetConstBuf(m.cbuf, 0)
	for i := range MaxFrame {
		m.updateDescriptors(i)
	}
	return m, nil
}

// updateDescriptors points frame's heap copies at the
// manager's buffers.
// The TLAS descriptor is set by buildTLAS instead, since
// the structure may be recreated between frames.
func (m *asManager) updateDescriptors(frame int) {
	m.tt.SetGeometry(frame, m.geoms.recs.dev, m.geoms.match.dev)
	m.tt.SetLights(frame, m.lights.lights.dev, m.lights.prev, m.lights.fwdMatch.dev, m.lights.revMatch.dev)
	m.tt.SetStaticMesh(frame, m.staticCol.vert.dev, m.staticCol.idx.dev)
	m.tt.SetDynamicMesh(frame, m.dynCol[frame].vert.dev, m.dynCol[frame].idx.dev, m.prevVert[frame], m.prevIdx[frame])
	var sl, dl [MaxTexLayer]driver.Buffer
	for i := range sl {
		sl[i] = m.staticCol.layer[i].dev
		dl[i] = m.dynCol[frame].layer[i].dev
	}
	m.tt.SetStaticLayers(frame, sl[:]...)
	m.tt.SetDynamicLayers(frame, dl[:]...)
}

// writeStyles refreshes frame's lightstyle constants.
func (m *asManager) writeStyles(frame int) {
	m.lights.writeStyles(m.tt.Styles(frame))
}

// beginStaticGeometry discards all static geometry so it
// can be recorded anew.
// The caller must ensure that the GPU is idle.
func (m *asManager) beginStaticGeometry() staticToken {
	if !m.builder.empty() {
		panic("asManager.beginStaticGeometry: builds pending")
	}
	m.staticCol.reset()
	m.geoms.resetOnlyStatic()
	for _, inst := range m.staticInst {
		inst.blas.free(&m.staticArena)
	}
	clear(m.staticInst)
	m.staticInst = m.staticInst[:0]
	m.staticScratch.reset()
	m.removeObjects(true)
	return staticToken{active: true}
}

// submitStaticGeometry uploads and builds the static
// geometry recorded since beginStaticGeometry.
// It blocks until the GPU work completes.
// It is a no-op if no static geometry was recorded.
func (m *asManager) submitStaticGeometry(t *staticToken) error {
	if !t.active {
		panic("asManager.submitStaticGeometry: inactive token")
	}
	t.active = false
	if len(m.staticInst) == 0 {
		return nil
	}
	if err := m.sfw.begin(0); err != nil {
		return err
	}
	cb := m.sfw.cb[0]
	m.staticCol.copyFromStaging(cb)
	if !m.builder.buildBottom(cb) {
		panic("asManager.submitStaticGeometry: no builds queued")
	}
	return m.sfw.commitAndWait(0)
}

// beginDynamicGeometry starts a new dynamic pass over
// frame, discarding the dynamic geometry that was
// recorded the last time frame was used.
// It also snapshots the previous frame's dynamic mesh so
// shaders can fetch previous vertex positions.
// cb must be recording, and frame's prior GPU work must
// have completed.
func (m *asManager) beginDynamicGeometry(cb driver.CmdBuffer, frame int) dynamicToken {
	if !m.builder.empty() {
		panic("asManager.beginDynamicGeometry: builds pending")
	}
	m.copyDynamicToPrev(cb, frame)
	m.scratch[frame].reset()
	m.dynCol[frame].reset()
	for _, inst := range m.dynInst[frame] {
		inst.blas.free(&m.dynArena)
	}
	clear(m.dynInst[frame])
	m.dynInst[frame] = m.dynInst[frame][:0]
	m.removeObjects(false)
	return dynamicToken{active: true, frame: frame}
}

// copyDynamicToPrev records copies of the previous
// frame's dynamic vertex/index data into frame's
// snapshot buffers.
// The caller must have ordered the source buffers'
// earlier writes before cb's copies.
func (m *asManager) copyDynamicToPrev(cb driver.CmdBuffer, frame int) {
	prev := PrevFrame(frame)
	nv := m.dynCol[prev].vertexCount()
	ni := m.dynCol[prev].indexCount()
	if nv == 0 && ni == 0 {
		return
	}
	if nv > 0 {
		cb.CopyBuffer(&driver.BufferCopy{
			From: m.dynCol[prev].vert.dev,
			To:   m.prevVert[frame],
			Size: int64(nv) * shader.VertexSize,
		})
	}
	if ni > 0 {
		cb.CopyBuffer(&driver.BufferCopy{
			From: m.dynCol[prev].idx.dev,
			To:   m.prevIdx[frame],
			Size: int64(ni) * 4,
		})
	}
}

// removeObjects drops the frame objects of one category.
func (m *asManager) removeObjects(static bool) {
	n := 0
	for i := range m.objects {
		if m.objects[i].isStatic != static {
			m.objects[n] = m.objects[i]
			n++
		}
	}
	clear(m.objects[n:])
	m.objects = m.objects[:n]
}

// addMeshPrimitive uploads one primitive, builds its
// bottom-level structure and registers its geometry
// record.
// cat selects the destination pool; CDynamic geometry
// lives until frame comes around again, anything else
// until the next static rebuild.
// All steps succeed together or the primitive is wholly
// discarded.
func (m *asManager) addMeshPrimitive(frame int, cat Category, mesh *Mesh, prim *Primitive) error {
	if m.geoms.count(frame) >= MaxGeometry {
		return newAccelErr("too many geometry infos: the limit is " + strconv.Itoa(MaxGeometry))
	}
	isStatic := cat != CDynamic
	col := m.staticCol
	insts := &m.staticInst
	arena := &m.staticArena
	scratch := &m.staticScratch
	if !isStatic {
		col = m.dynCol[frame]
		insts = &m.dynInst[frame]
		arena = &m.dynArena
		scratch = &m.scratch[frame]
	}
	if len(*insts) >= MaxInstance {
		return newAccelErr("too many geometries in a group: the limit is " + strconv.Itoa(MaxInstance))
	}

	pt := classifyPassThrough(mesh.Flags, prim.Flags)
	mk := col.mark()
	res, err := col.upload(prim, pt)
	if err != nil {
		return err
	}

	flags := driver.BFastTrace
	if cat.fastBuild() {
		flags = driver.BFastBuild
	}
	inst := &blasInstance{
		id:        prim.id(mesh),
		mesh:      mesh.Flags,
		prim:      prim.Flags,
		nvert:     len(prim.Vertices),
		ntri:      res.rng.PrimCount,
		indexed:   prim.indexed(),
		fastBuild: flags == driver.BFastBuild,
	}
	inst.blas.name = "blas " + inst.id.String()
	bs, err := ctxt.GPU().AccelSizes(driver.ASBottom, []driver.ASGeometry{res.geom}, []int{res.rng.PrimCount}, flags)
	if err != nil {
		col.rollback(mk)
		return err
	}
	if _, err := inst.blas.recreateIfNotValid(driver.ASBottom, &bs, arena); err != nil {
		col.rollback(mk)
		return err
	}
	if err := m.builder.addBLAS(scratch, &inst.blas, []driver.ASGeometry{res.geom}, []driver.ASRange{res.rng}, &bs, flags); err != nil {
		inst.blas.free(arena)
		col.rollback(mk)
		return err
	}
	*insts = append(*insts, inst)
	m.objects = append(m.objects, frameObject{
		inst:      inst,
		transform: mesh.Transform,
		isStatic:  isStatic,
	})
	m.writeGeomInfo(frame, inst, mesh, prim, &res, isStatic)
	return nil
}

// writeGeomInfo fills and registers the geometry record
// of an uploaded primitive.
func (m *asManager) writeGeomInfo(frame int, inst *blasInstance, mesh *Mesh, prim *Primitive, res *uploadResult, isStatic bool) {
	var layout shader.GeometryLayout
	layout.SetModel(&mesh.Transform)
	layout.SetFlags(makeGeomFlags(mesh, prim, !isStatic))
	set := m.indices(prim.Material)
	layout.SetTextures((*[4]uint32)(&set))
	layout.SetColorFactor(0, prim.Color)
	for i, l := range prim.Layers {
		tex := EmptyTexIndex
		color := PackColor(1, 1, 1, 1)
		if l != nil {
			tex = m.indices(l.Material)[0]
			color = l.Color
		}
		layout.SetLayerTexture(i+1, tex)
		layout.SetColorFactor(i+1, color)
		layout.SetLayerFirstVertex(i+1, uint32(res.firstLayer[i]))
	}
	layout.SetFirstVertex(uint32(res.firstVertex))
	fi := ^uint32(0)
	ic := ^uint32(0)
	if prim.indexed() {
		fi = uint32(res.firstIndex)
		ic = uint32(len(prim.Indices))
	}
	layout.SetFirstIndex(fi)
	layout.SetIndexCount(ic)
	layout.SetVertexCount(uint32(len(prim.Vertices)))
	if mr := prim.MetalRough; mr != nil {
		layout.SetRoughness(mr.Roughness)
		layout.SetMetalness(mr.Metalness)
	} else {
		layout.SetRoughness(1)
		layout.SetMetalness(0)
	}
	layout.SetEmissiveMult(prim.Emissive)
	noMotion := prim.Flags&PrimNoMotionVectors != 0
	m.geoms.write(frame, inst.id, &layout, isStatic, noMotion)
}

// indices resolves a material name.
func (m *asManager) indices(material string) TexSet {
	if m.tex == nil {
		return TexSet{}
	}
	return m.tex.Indices(material)
}

// submitDynamicGeometry uploads and builds the dynamic
// geometry recorded since beginDynamicGeometry.
// cb must be the command buffer that frame is being
// recorded into.
func (m *asManager) submitDynamicGeometry(t *dynamicToken, cb driver.CmdBuffer, frame int) {
	if !t.active || t.frame != frame {
		panic("asManager.submitDynamicGeometry: inactive token")
	}
	t.active = false
	m.dynCol[frame].copyFromStaging(cb)
	if m.builder.buildBottom(cb) {
		cb.Barrier(asBuildBarrier)
	}
}

// instTransform converts a column-major model matrix
// into the row-major 3x4 layout of instance transforms.
func instTransform(m *mgl32.Mat4) (t [12]float32) {
	for r := range 3 {
		for c := range 4 {
			t[r*4+c] = m[c*4+r]
		}
	}
	return
}

// makeInstance synthesizes the top-level instance of a
// frame object.
// Objects whose world partition is excluded by cullMask
// produce no instance and no error.
func (m *asManager) makeInstance(o *frameObject, cullMask int, allowSky bool) (inst driver.TLASInstance, ok bool, err error) {
	if o.inst.blas.as == nil {
		return inst, false, newAccelErr("instance references an invalid BLAS")
	}
	inst.Blas = o.inst.blas.as
	inst.Transform = instTransform(&o.transform)

	var mask uint8
	var custom uint32
	vis := classifyVisibility(o.inst.mesh, o.inst.prim)
	switch vis {
	case vFirstPerson:
		mask = MaskFirstPerson
		custom |= FlagFirstPerson
	case vFirstPersonViewer:
		mask = MaskFirstPersonViewer
		custom |= FlagFirstPersonViewer
	case vWorld0:
		if cullMask&MaskWorld0 == 0 {
			return inst, false, nil
		}
		mask = MaskWorld0
	case vWorld1:
		if cullMask&MaskWorld1 == 0 {
			return inst, false, nil
		}
		mask = MaskWorld1
	case vWorld2:
		if cullMask&MaskWorld2 == 0 {
			return inst, false, nil
		}
		mask = MaskWorld2
		if allowSky {
			custom |= FlagSky
		}
	}
	pt := classifyPassThrough(o.inst.mesh, o.inst.prim)
	if pt == pRefract && vis != vFirstPerson && vis != vFirstPersonViewer {
		// The whole mask is rewritten so rays can
		// exclude refractive surfaces outright.
		mask = MaskRefract
	}
	if pt == pAlphaTested {
		inst.SBTOffset = SBTAlphaTested
		inst.Flags = driver.IForceNoOpaque | driver.IFrontCCW
	} else {
		inst.SBTOffset = SBTOpaque
		inst.Flags = driver.IForceOpaque | driver.IFrontCCW
	}
	inst.Mask = mask
	inst.CustomIndex = custom
	return inst, true, nil
}

// buildTLAS records frame's top-level build into cb.
// The structure is built even when it instances nothing,
// which is the case when disable is set or every frame
// object is culled.
// If synthesizing any instance fails, the whole list is
// discarded and an empty structure is built.
func (m *asManager) buildTLAS(cb driver.CmdBuffer, frame int, cullMask int, allowSky, disable bool) error {
	insts := make([]driver.TLASInstance, 0, len(m.objects))
	ids := make([]PrimitiveID, 0, len(m.objects))
	if !disable {
		for i := range m.objects {
			o := &m.objects[i]
			inst, ok, err := m.makeInstance(o, cullMask, allowSky)
			if err != nil {
				Logger().Error("instance synthesis failed",
					"object", o.inst.id.ObjectID,
					"primitive", o.inst.id.PrimitiveIndex)
				insts = insts[:0]
				ids = ids[:0]
				break
			}
			if ok {
				insts = append(insts, inst)
				ids = append(ids, o.inst.id)
			}
		}
	}
	if len(insts) > 0 {
		if err := ctxt.GPU().PackInstances(m.instBuf[frame], 0, insts); err != nil {
			Logger().Error("instance packing failed", "err", err)
			insts = insts[:0]
			ids = ids[:0]
		}
	}
	bs, err := ctxt.GPU().AccelSizes(driver.ASTop, nil, []int{len(insts)}, driver.BFastTrace)
	if err != nil {
		return err
	}
	if _, err := m.tlas[frame].recreateIfNotValid(driver.ASTop, &bs, &m.tlasArena); err != nil {
		return err
	}
	if err := m.builder.addTLAS(&m.scratch[frame], &m.tlas[frame], m.instBuf[frame], 0, len(insts), &bs, driver.BFastTrace); err != nil {
		return err
	}
	m.builder.buildTop(cb)
	cb.Barrier(asTraceBarrier)
	m.tt.SetTLAS(frame, m.tlas[frame].as)
	m.tlasOrder[frame] = ids
	var hist [8]int
	for i := range insts {
		for b := range hist {
			if insts[i].Mask>>b&1 != 0 {
				hist[b]++
			}
		}
	}
	m.maskHist[frame] = hist
	Logger().Debug("TLAS built", "frame", frame, "instances", len(insts))
	return nil
}

// tlasIDToUnique returns the identities of frame's
// top-level instances, in build order.
// The slice is valid until frame's next buildTLAS call.
func (m *asManager) tlasIDToUnique(frame int) []PrimitiveID {
	return m.tlasOrder[frame]
}

// free invalidates m and destroys the driver resources.
// The GPU must be idle.
func (m *asManager) free() {
	if m.sfw != nil {
		m.sfw.free()
	}
	if m.tt != nil {
		m.tt.Free()
	}
	if m.cbuf != nil {
		m.cbuf.Destroy()
	}
	for _, inst := range m.staticInst {
		inst.blas.free(&m.staticArena)
	}
	for i := range m.dynInst {
		for _, inst := range m.dynInst[i] {
			inst.blas.free(&m.dynArena)
		}
	}
	for i := range m.tlas {
		m.tlas[i].free(&m.tlasArena)
	}
	if m.staticCol != nil {
		m.staticCol.free()
	}
	for i := range m.dynCol {
		if m.dynCol[i] != nil {
			m.dynCol[i].free()
		}
	}
	for i := range MaxFrame {
		if m.prevVert[i] != nil {
			m.prevVert[i].Destroy()
		}
		if m.prevIdx[i] != nil {
			m.prevIdx[i].Destroy()
		}
		if m.instBuf[i] != nil {
			m.instBuf[i].Destroy()
		}
	}
	for i := range m.scratch {
		m.scratch[i].destroy()
	}
	m.staticScratch.destroy()
	m.staticArena.destroy()
	m.dynArena.destroy()
	m.tlasArena.destroy()
	*m = asManager{}
}
