// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Scene front end.

package engine

import (
	"errors"
	"strconv"

	"github.com/go-gl/mathgl/mgl32"

	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/shader"
)

const scenePrefix = "scene: "

func newSceneErr(reason string) error { return errors.New(scenePrefix + reason) }

// PrimitiveID identifies a primitive across frames.
type PrimitiveID struct {
	ObjectID       uint64
	PrimitiveIndex int
}

// String returns the identity as "object-primitive".
func (p PrimitiveID) String() string {
	return strconv.FormatUint(p.ObjectID, 10) + "-" + strconv.Itoa(p.PrimitiveIndex)
}

// Hash returns a hash of p that is stable across runs.
func (p PrimitiveID) Hash() uint64 {
	seed := hashCombine(0, p.ObjectID)
	return hashCombine(seed, uint64(p.PrimitiveIndex))
}

func hashCombine(seed, v uint64) uint64 {
	return seed ^ (v + 0x9e3779b9 + seed<<6 + seed>>2)
}

// Scene is the front end of the geometry pipeline.
// A frame goes through PrepareForFrame, any number of
// uploads, and SubmitForFrame. Static geometry and
// lights are recorded separately, between BeginStatic
// and SubmitStatic, and persist across frames.
// Scene methods must not be called concurrently.
type Scene struct {
	fw     *frameWork
	geoms  *geomInfoManager
	lights *lightManager
	asman  *asManager

	stok staticToken
	dtok dynamicToken

	// Primitive identities of the static scene and of
	// the frame being recorded. An identity may be in
	// at most one of the two.
	staticIDs map[PrimitiveID]struct{}
	dynIDs    map[PrimitiveID]struct{}

	staticLights []Light
	sunID        uint64
	sunSet       bool
}

// NewScene creates a scene configured by the
// package-level cfg.
// tex may be nil, in which case every material resolves
// to the neutral texture set.
func NewScene(tex TextureIndexer) (*Scene, error) {
	s := &Scene{
		staticIDs: make(map[PrimitiveID]struct{}),
		dynIDs:    make(map[PrimitiveID]struct{}),
	}
	var err error
	fail := func() (*Scene, error) {
		s.Free()
		return nil, err
	}
	s.fw, err = newFrameWork(MaxFrame)
	if err != nil {
		return nil, err
	}
	s.geoms, err = newGeomInfoManager()
	if err != nil {
		return fail()
	}
	s.lights, err = newLightManager()
	if err != nil {
		return fail()
	}
	s.asman, err = newASManager(tex, s.geoms, s.lights)
	if err != nil {
		return fail()
	}
	return s, nil
}

// frameStartBarrier orders the other frame's shader
// reads and staging copies before the copies that a new
// frame records against the shared device arrays.
var frameStartBarrier = []driver.Barrier{{
	SyncBefore:   driver.SCopy | driver.SComputeShading | driver.SRayTrace,
	SyncAfter:    driver.SCopy,
	AccessBefore: driver.ACopyWrite,
	AccessAfter:  driver.ACopyRead | driver.ACopyWrite,
}}

// PrepareForFrame begins recording frame.
// It waits until frame's previous use completes, then
// discards the dynamic geometry and lights that were
// uploaded to it.
// frame must not be active already, and no static pass
// may be open.
func (s *Scene) PrepareForFrame(frame int) error {
	if s.dtok.active {
		panic("Scene.PrepareForFrame: frame already active")
	}
	if s.stok.active {
		panic("Scene.PrepareForFrame: static pass open")
	}
	if err := s.fw.begin(frame); err != nil {
		return err
	}
	cb := s.fw.cb[frame]
	cb.Barrier(frameStartBarrier)
	s.geoms.prepareForFrame(frame)
	s.lights.prepareForFrame(cb, frame)
	s.dtok = s.asman.beginDynamicGeometry(cb, frame)
	clear(s.dynIDs)
	s.sunID = 0
	s.sunSet = false
	return nil
}

// SubmitForFrame finishes recording frame and submits it
// for execution.
// cullMask selects the world partitions that the frame's
// rays traverse (see MaskWorld0/1/2); objects of excluded
// partitions keep their structures but are left out of
// the top-level one. allowSky marks world 2 instances as
// sky. disable builds an empty top-level structure
// regardless of what was uploaded.
func (s *Scene) SubmitForFrame(frame int, cullMask int, allowSky, disable bool) error {
	if s.stok.active {
		panic("Scene.SubmitForFrame: static pass open")
	}
	cb := s.fw.cb[frame]
	s.asman.submitDynamicGeometry(&s.dtok, cb, frame)
	if err := s.asman.buildTLAS(cb, frame, cullMask, allowSky, disable); err != nil {
		return err
	}
	s.geoms.copyFromStaging(cb, frame, s.asman.tlasIDToUnique(frame))
	s.lights.copyFromStaging(cb, frame)
	s.asman.writeStyles(frame)
	return s.fw.commit(frame)
}

// BeginStatic starts a static pass, discarding all static
// geometry and lights.
// It waits for outstanding GPU work. Until SubmitStatic
// is called, uploads target the static pools.
// Within a frame, the static pass must come before any
// dynamic geometry is uploaded.
func (s *Scene) BeginStatic() error {
	if s.stok.active {
		panic("Scene.BeginStatic: static pass open")
	}
	if err := s.fw.waitAll(); err != nil {
		return err
	}
	clear(s.staticIDs)
	s.staticLights = s.staticLights[:0]
	s.stok = s.asman.beginStaticGeometry()
	return nil
}

// SubmitStatic uploads and builds the static geometry
// recorded since BeginStatic, blocking until the GPU
// work completes.
func (s *Scene) SubmitStatic() error {
	if !s.stok.active {
		panic("Scene.SubmitStatic: no static pass")
	}
	return s.asman.submitStaticGeometry(&s.stok)
}

// UploadPrimitive records one primitive of mesh.
// During a static pass the primitive persists until the
// next BeginStatic; otherwise it lives for the single
// frame.
// The (Mesh.ObjectID, Primitive.Index) pair must not
// collide with any other uploaded primitive, static or
// dynamic.
func (s *Scene) UploadPrimitive(frame int, mesh *Mesh, prim *Primitive) error {
	switch {
	case mesh == nil || prim == nil:
		return newSceneErr("nil Mesh/Primitive")
	case len(prim.Vertices) == 0:
		return newSceneErr("Primitive.Vertices is empty")
	case prim.indexed() && len(prim.Indices)%3 != 0:
		return newSceneErr("Primitive.Indices is not a multiple of 3")
	case !prim.indexed() && len(prim.Vertices)%3 != 0:
		return newSceneErr("Primitive.Vertices is not a multiple of 3")
	}
	cat := CDynamic
	if s.stok.active {
		cat = CStatic
	} else if !s.dtok.active {
		panic("Scene.UploadPrimitive: no active frame")
	} else if s.dtok.frame != frame {
		panic("Scene.UploadPrimitive: wrong frame")
	}
	id := prim.id(mesh)
	if !s.insertPrimitiveInfo(id, cat != CDynamic) {
		return newSceneErr("duplicate primitive identity")
	}
	if err := s.asman.addMeshPrimitive(frame, cat, mesh, prim); err != nil {
		s.erasePrimitiveInfo(id, cat != CDynamic)
		return err
	}
	return nil
}

// insertPrimitiveInfo registers a primitive identity,
// rejecting collisions across both categories.
func (s *Scene) insertPrimitiveInfo(id PrimitiveID, static bool) bool {
	reg, other := s.staticIDs, s.dynIDs
	if !static {
		reg, other = s.dynIDs, s.staticIDs
	}
	if _, ok := other[id]; ok {
		Logger().Warn("duplicate primitive identity", "object", id.ObjectID, "primitive", id.PrimitiveIndex)
		return false
	}
	if _, ok := reg[id]; ok {
		Logger().Warn("duplicate primitive identity", "object", id.ObjectID, "primitive", id.PrimitiveIndex)
		return false
	}
	reg[id] = struct{}{}
	return true
}

func (s *Scene) erasePrimitiveInfo(id PrimitiveID, static bool) {
	if static {
		delete(s.staticIDs, id)
	} else {
		delete(s.dynIDs, id)
	}
}

// UploadLight records one light.
// During a static pass the light persists until the next
// BeginStatic and is re-added to every frame by
// SubmitStaticLights; otherwise it lives for the single
// frame.
// Lights dimmer than the minimum intensity are dropped
// silently. A dynamic light whose identity matches a
// static light is ignored.
func (s *Scene) UploadLight(frame int, l Light) error {
	if s.stok.active {
		if s.staticLightExists(l.id) {
			Logger().Warn("duplicate light identity", "light", l.id)
			return newSceneErr("duplicate light identity")
		}
		s.staticLights = append(s.staticLights, l)
		return nil
	}
	if !s.dtok.active {
		panic("Scene.UploadLight: no active frame")
	}
	if s.dtok.frame != frame {
		panic("Scene.UploadLight: wrong frame")
	}
	if s.staticLightExists(l.id) {
		return nil
	}
	if err := s.lights.add(frame, &l); err != nil {
		return err
	}
	if l.typ == shader.LightDistant {
		s.sunID = l.id
		s.sunSet = true
	}
	return nil
}

func (s *Scene) staticLightExists(id uint64) bool {
	for i := range s.staticLights {
		if s.staticLights[i].id == id {
			return true
		}
	}
	return false
}

// SubmitStaticLights re-adds the static lights to frame.
// Call it once per frame, after every dynamic light has
// been uploaded.
func (s *Scene) SubmitStaticLights(frame int) error {
	if !s.dtok.active {
		panic("Scene.SubmitStaticLights: no active frame")
	}
	if s.dtok.frame != frame {
		panic("Scene.SubmitStaticLights: wrong frame")
	}
	var err error
	for i := range s.staticLights {
		if x := s.lights.add(frame, &s.staticLights[i]); x != nil && err == nil {
			err = x
		}
	}
	return err
}

// SetLightstyles replaces the lightstyle table.
// Styles scale the intensity of lights that reference
// them, 255 meaning full intensity.
// The table applies to lights uploaded afterwards.
func (s *Scene) SetLightstyles(styles []uint8) { s.lights.setStyles(styles) }

// TryGetVolumetric selects the light that volumetric
// scattering should sample, preferring the closest lit
// volumetric static light and falling back to the last
// distant light uploaded to the current frame.
// It reports false when there is no candidate.
func (s *Scene) TryGetVolumetric(camera mgl32.Vec3) (uint64, bool) {
	if id, ok := s.lights.tryGetVolumetric(camera, s.staticLights); ok {
		return id, true
	}
	if s.sunSet {
		return s.sunID, true
	}
	return 0, false
}

// BindTrace binds frame's descriptor heap copies for a
// subsequent trace or compute dispatch.
// cb must be recording.
func (s *Scene) BindTrace(cb driver.CmdBuffer, frame int) {
	s.asman.tt.Set(cb, shader.GlobalHeap, []int{frame, frame})
}

// GeometryCount returns the number of geometry records
// registered in frame.
func (s *Scene) GeometryCount(frame int) int { return s.geoms.count(frame) }

// InstanceCount returns the number of top-level instances
// of frame's last SubmitForFrame.
func (s *Scene) InstanceCount(frame int) int { return len(s.asman.tlasIDToUnique(frame)) }

// LightCount returns the number of regular lights added
// to the frame being recorded.
func (s *Scene) LightCount() int { return s.lights.lightCount() }

// DistantLightExists reports whether a distant light was
// added to the frame being recorded.
func (s *Scene) DistantLightExists() bool { return s.lights.distantLightExists() }

// LightIndex returns the index that shaders use to fetch
// the identified light in frame, or LightIndexNone.
func (s *Scene) LightIndex(frame int, id uint64) uint32 {
	return s.lights.indexForShaders(frame, id)
}

// Free invalidates s and destroys the driver resources.
// It waits for outstanding GPU work.
func (s *Scene) Free() {
	if s.fw != nil {
		s.fw.free()
	}
	if s.asman != nil {
		s.asman.free()
	}
	if s.lights != nil {
		s.lights.free()
	}
	if s.geoms != nil {
		s.geoms.free()
	}
	*s = Scene{}
}
