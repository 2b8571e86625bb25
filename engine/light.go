// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Light sources and their GPU array.

package engine

import (
	"errors"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/ctxt"
	"gviegas/rt/engine/internal/shader"
)

const lightPrefix = "light: "

func newLightErr(reason string) error { return errors.New(lightPrefix + reason) }

const (
	// Lights dimmer than this are dropped.
	minLightIntensity = 1e-5

	// Sphere and spot sources behave as disks of at
	// least this radius.
	minLightRadius = 0.005
)

// LightIndexNone indicates the absence of a light in the
// shader-facing index space.
const LightIndexNone = ^uint32(0)

// Slot 0 of the light array is reserved for the distant
// light; regular lights follow it.
const regularLightOffset = 1

func lightArrayEnd(regCount int) int { return regularLightOffset + regCount }

// Light defines a light source.
// The zero value for Light is not valid; one must
// call DistantLight.Light, SphereLight.Light or
// SpotLight.Light to create an initialized Light.
type Light struct {
	typ        uint32
	id         uint64
	volumetric bool
	style      int
	intensity  float32
	r, g, b    float32
	pos        mgl32.Vec3
	dir        mgl32.Vec3
	// Radius, or the angular diameter in degrees
	// for distant lights.
	size         float32
	inner, outer float32
}

// ID returns the stable identity of l.
func (l *Light) ID() uint64 { return l.id }

// Volumetric reports whether l is a candidate for
// volumetric scattering.
func (l *Light) Volumetric() bool { return l.volumetric }

// sqDistTo returns the squared distance from l to p.
// Distant lights are everywhere.
func (l *Light) sqDistTo(p mgl32.Vec3) float32 {
	if l.typ == shader.LightDistant {
		return 0
	}
	return l.pos.Sub(p).LenSqr()
}

// DistantLight is a directional light.
// The light is emitted in the given Direction.
// It behaves as if located infinitely far away.
// Intensity scales the color channels directly.
type DistantLight struct {
	// ID identifies the light across frames.
	ID        uint64
	Direction mgl32.Vec3
	R, G, B   float32
	Intensity float32
	// AngularDiameter is the apparent size of the
	// light's disk, in degrees.
	AngularDiameter float32
	// Volumetric marks the light as a candidate for
	// volumetric scattering.
	Volumetric bool
	// Style indexes the lightstyle table.
	// Negative means unstyled.
	Style int
}

// Light creates the light source described by t.
// t.R/G/B must be in the range [0, 1].
func (t *DistantLight) Light() (light Light) {
	light.typ = shader.LightDistant
	light.id = t.ID
	light.volumetric = t.Volumetric
	light.style = t.Style
	light.intensity = t.Intensity
	light.r, light.g, light.b = t.R, t.G, t.B
	light.dir = t.Direction
	light.size = t.AngularDiameter
	return
}

// SphereLight is an omnidirectional, positional light.
// The light is emitted from a sphere of the given Radius
// centered at Position.
// Intensity is distributed over the sphere's disk, so a
// larger radius dims the surface.
type SphereLight struct {
	// ID identifies the light across frames.
	ID        uint64
	Position  mgl32.Vec3
	Radius    float32
	R, G, B   float32
	Intensity float32
	// Volumetric marks the light as a candidate for
	// volumetric scattering.
	Volumetric bool
	// Style indexes the lightstyle table.
	// Negative means unstyled.
	Style int
}

// Light creates the light source described by t.
// t.R/G/B must be in the range [0, 1].
// Radii below 0.005 are raised to it.
func (t *SphereLight) Light() (light Light) {
	light.typ = shader.LightSphere
	light.id = t.ID
	light.volumetric = t.Volumetric
	light.style = t.Style
	light.intensity = t.Intensity
	light.r, light.g, light.b = t.R, t.G, t.B
	light.pos = t.Position
	light.size = t.Radius
	return
}

// SpotLight is a directional, positional light.
// The light is emitted from a disk of the given Radius at
// Position, in a cone opening towards Direction.
// InnerAngle and OuterAngle are given in radians from the
// cone axis and clamped to [0, 89] degrees; the inner
// angle is kept at least one degree below the outer one.
type SpotLight struct {
	// ID identifies the light across frames.
	ID         uint64
	Position   mgl32.Vec3
	Direction  mgl32.Vec3
	Radius     float32
	InnerAngle float32
	OuterAngle float32
	R, G, B    float32
	Intensity  float32
	// Volumetric marks the light as a candidate for
	// volumetric scattering.
	Volumetric bool
	// Style indexes the lightstyle table.
	// Negative means unstyled.
	Style int
}

// Light creates the light source described by t.
// t.R/G/B must be in the range [0, 1].
// Radii below 0.005 are raised to it.
func (t *SpotLight) Light() (light Light) {
	light.typ = shader.LightSpot
	light.id = t.ID
	light.volumetric = t.Volumetric
	light.style = t.Style
	light.intensity = t.Intensity
	light.r, light.g, light.b = t.R, t.G, t.B
	light.pos = t.Position
	light.dir = t.Direction
	light.size = t.Radius
	light.inner = t.InnerAngle
	light.outer = t.OuterAngle
	return
}

// packLightColor packs an RGB radiance into the
// shared-exponent format.
// Radiances beyond the encodable range are divided by
// their largest channel's ratio to the format maximum,
// which is returned so shaders can undo the scaling.
func packLightColor(r, g, b float32) (uint32, float32) {
	norm := max(r, g, b) / shader.SharedExpMax
	if norm > 1 {
		return shader.PackE5B9G9R9(r/norm, g/norm, b/norm), norm
	}
	return shader.PackE5B9G9R9(r, g, b), norm
}

// cosCone returns the cosine of a cone angle.
// Angles are clamped to [0, 89] degrees so the cosine
// stays positive.
func cosCone(a float32) float32 {
	a = mgl32.Clamp(a, 0, mgl32.DegToRad(89))
	return float32(math.Cos(float64(a)))
}

// encode lays out l as shaders expect.
// mult scales the intensity.
func (l *Light) encode(mult float32) (lt shader.LightLayout) {
	lt.SetType(l.typ)
	switch l.typ {
	case shader.LightDistant:
		c, _ := packLightColor(
			l.r*l.intensity*mult,
			l.g*l.intensity*mult,
			l.b*l.intensity*mult)
		lt.SetColor(c)
		dir := l.dir.Normalize()
		lt.SetData(0, dir[0])
		lt.SetData(1, dir[1])
		lt.SetData(2, dir[2])
		// Angular radius, in radians.
		lt.SetData(3, 0.5*mgl32.DegToRad(l.size))

	case shader.LightSphere:
		radius := max(minLightRadius, l.size)
		scale := l.intensity / (math.Pi * radius * radius) * mult
		c, norm := packLightColor(l.r*scale, l.g*scale, l.b*scale)
		lt.SetColor(c)
		lt.SetData(0, l.pos[0])
		lt.SetData(1, l.pos[1])
		lt.SetData(2, l.pos[2])
		lt.SetDataBits(3, shader.PackHalf2x16(radius, norm))

	case shader.LightSpot:
		radius := max(minLightRadius, l.size)
		scale := l.intensity / (math.Pi * radius * radius) * mult
		c, norm := packLightColor(l.r*scale, l.g*scale, l.b*scale)
		lt.SetColor(c)
		dir := l.dir.Normalize()
		inner := min(l.inner, l.outer-mgl32.DegToRad(1))
		ci := uint32(mgl32.Clamp(cosCone(inner)*255, 0, 255))
		co := uint32(mgl32.Clamp(cosCone(l.outer)*255, 0, 255))
		lt.SetDataBits(0, shader.PackHalf2x16(l.pos[0], l.pos[1]))
		lt.SetDataBits(1, shader.PackHalf2x16(l.pos[2], norm))
		lt.SetDataBits(2, shader.PackHalf2x16(dir[0], dir[1]))
		lt.SetDataBits(3, shader.PackHalf2x16(0, dir[2])|ci<<8|co)

	default:
		panic("Light.encode: invalid light type")
	}
	return
}

// lightManager maintains the light arrays of every frame
// and the index matchings between consecutive frames.
// Unlike geometry, shaders sample the whole previous
// light set, so the previous frame's array is kept in its
// own device buffer.
type lightManager struct {
	lights   frameBuffer
	prev     driver.Buffer
	fwdMatch frameBuffer
	revMatch frameBuffer
	// What each frame slot registered when it was
	// last recorded.
	idToIdx           [MaxFrame]map[uint64]uint32
	regCount, regPrev int
	dirCount, dirPrev int
	styles            []uint8
}

func newLightManager() (*lightManager, error) {
	m := &lightManager{}
	for i := range m.idToIdx {
		m.idToIdx[i] = make(map[uint64]uint32)
	}
	var err error
	m.lights, err = newFrameBuffer(MaxFrame, int64(MaxLight)*shader.LightSize, driver.UShaderRead|driver.UCopySrc)
	if err != nil {
		return nil, err
	}
	m.prev, err = ctxt.GPU().NewBuffer(int64(MaxLight)*shader.LightSize, false, driver.UShaderRead|driver.UCopyDst)
	if err != nil {
		m.free()
		return nil, err
	}
	m.fwdMatch, err = newFrameBuffer(MaxFrame, int64(MaxLight)*4, driver.UShaderRead)
	if err != nil {
		m.free()
		return nil, err
	}
	m.revMatch, err = newFrameBuffer(MaxFrame, int64(MaxLight)*4, driver.UShaderRead)
	if err != nil {
		m.free()
		return nil, err
	}
	return m, nil
}

// add encodes l into the next slot of its sub-range.
// Dim lights are dropped silently and lights beyond the
// array capacity are dropped with a log record.
// A frame has at most one distant light; further ones
// fail with an error.
func (m *lightManager) add(frame int, l *Light) error {
	if l.intensity <= minLightIntensity || PackColor(l.r, l.g, l.b, 0)&0xffffff == 0 {
		return nil
	}
	if l.typ == shader.LightDistant && m.dirCount > 0 {
		return newLightErr("only one directional light is allowed")
	}
	if lightArrayEnd(m.regCount) >= MaxLight {
		Logger().Warn("too many lights", "limit", MaxLight)
		return nil
	}

	idx := 0
	if l.typ == shader.LightDistant {
		m.dirCount++
	} else {
		idx = lightArrayEnd(m.regCount)
		m.regCount++
	}

	recs := unsafe.Slice((*shader.LightLayout)(unsafe.Pointer(unsafe.SliceData(m.lights.bytes(frame)))), MaxLight)
	recs[idx] = l.encode(m.styleMult(l.style))

	m.fillMatchPrev(frame, uint32(idx), l.id)
	if _, ok := m.idToIdx[frame][l.id]; ok {
		Logger().Warn("duplicate light identity", "id", l.id)
	}
	m.idToIdx[frame][l.id] = uint32(idx)
	return nil
}

// fillMatchPrev records the correspondence between cur
// and id's slot in the previous frame. Unmatched slots
// read as LightIndexNone.
func (m *lightManager) fillMatchPrev(frame int, cur uint32, id uint64) {
	rev := unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(m.revMatch.bytes(frame)))), MaxLight)
	prev, ok := m.idToIdx[PrevFrame(frame)][id]
	if !ok {
		rev[cur] = LightIndexNone
		return
	}
	fwd := unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(m.fwdMatch.bytes(frame)))), MaxLight)
	fwd[prev] = cur
	rev[cur] = prev
}

// prepareForFrame readies frame's slot for new adds.
// The current counts become the previous ones, the
// current array is copied into the previous-frame device
// buffer and the forward matching resets to no-match.
// cb must be recording.
func (m *lightManager) prepareForFrame(cb driver.CmdBuffer, frame int) {
	m.regPrev, m.dirPrev = m.regCount, m.dirCount
	m.regCount, m.dirCount = 0, 0

	cb.CopyBuffer(&driver.BufferCopy{
		From: m.lights.dev,
		To:   m.prev,
		Size: int64(lightArrayEnd(m.regPrev)) * shader.LightSize,
	})
	// The staging copy overwrites the array that was
	// just read.
	cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SCopy,
		AccessBefore: driver.ACopyRead,
		AccessAfter:  driver.ACopyWrite,
	}})

	s := m.fwdMatch.bytes(frame)[:lightArrayEnd(m.regPrev)*4]
	for i := range s {
		s[i] = 0xff
	}
	clear(m.idToIdx[frame])
}

// reset drops every light and matching.
// The GPU must be idle.
func (m *lightManager) reset() {
	n := max(lightArrayEnd(m.regCount), lightArrayEnd(m.regPrev)) * 4
	for i := range MaxFrame {
		for _, s := range [2][]byte{
			m.fwdMatch.bytes(i)[:n],
			m.revMatch.bytes(i)[:n],
		} {
			for j := range s {
				s[j] = 0xff
			}
		}
		clear(m.idToIdx[i])
	}
	m.regCount, m.regPrev = 0, 0
	m.dirCount, m.dirPrev = 0, 0
}

// copyFromStaging records the device copies of the light
// array and both matchings, with a barrier for shader
// reads.
// cb must be recording.
func (m *lightManager) copyFromStaging(cb driver.CmdBuffer, frame int) {
	m.lights.copyToDevice(cb, frame, int64(lightArrayEnd(m.regCount))*shader.LightSize)
	m.fwdMatch.copyToDevice(cb, frame, int64(lightArrayEnd(m.regPrev))*4)
	m.revMatch.copyToDevice(cb, frame, int64(lightArrayEnd(m.regCount))*4)
	cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SComputeShading | driver.SRayTrace,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.AShaderRead,
	}})
}

// lightCount returns the number of regular lights added
// to the frame being recorded.
func (m *lightManager) lightCount() int { return m.regCount }

// distantLightExists reports whether the frame being
// recorded has a distant light.
func (m *lightManager) distantLightExists() bool { return m.dirCount > 0 }

// indexForShaders returns the slot that frame assigned to
// id, or LightIndexNone.
func (m *lightManager) indexForShaders(frame int, id uint64) uint32 {
	if x, ok := m.idToIdx[frame][id]; ok {
		return x
	}
	return LightIndexNone
}

// setStyles replaces the lightstyle table.
// Styles scale the intensity of the lights that refer to
// them, 255 meaning full intensity.
func (m *lightManager) setStyles(s []uint8) {
	if len(s) > MaxStyle {
		Logger().Warn("too many lightstyles", "limit", MaxStyle)
		s = s[:MaxStyle]
	}
	m.styles = append(m.styles[:0], s...)
}

// styleMult returns the intensity multiplier of a style.
// Negative styles and styles beyond the table read as 1.
func (m *lightManager) styleMult(style int) float32 {
	if style < 0 {
		return 1
	}
	if style >= len(m.styles) {
		Logger().Warn("lightstyle out of range", "style", style, "count", len(m.styles))
		return 1
	}
	return float32(m.styles[style]) / 255
}

// writeStyles fills dst with the current style values.
// Entries beyond the table read as full intensity.
func (m *lightManager) writeStyles(dst *[MaxStyle]uint32) {
	for i := range dst {
		if i < len(m.styles) {
			dst[i] = uint32(m.styles[i])
		} else {
			dst[i] = 255
		}
	}
}

// tryGetVolumetric selects the light that volumetric
// scattering should sample: the closest volumetric light
// with positive intensity, else any volumetric light,
// else a distant light.
// The caller provides its own fallback when none is
// found.
func (m *lightManager) tryGetVolumetric(camera mgl32.Vec3, from []Light) (uint64, bool) {
	var (
		bestID, anyID     uint64
		haveBest, haveAny bool
		bestDist          float32
	)
	for i := range from {
		l := &from[i]
		if !l.volumetric {
			continue
		}
		if l.intensity*m.styleMult(l.style) > 0 {
			if d := l.sqDistTo(camera); !haveBest || d < bestDist {
				bestID, bestDist = l.id, d
				haveBest = true
			}
		}
		if !haveAny {
			anyID = l.id
			haveAny = true
		}
	}
	if haveBest {
		return bestID, true
	}
	if haveAny {
		return anyID, true
	}
	for i := range from {
		if from[i].typ == shader.LightDistant {
			return from[i].id, true
		}
	}
	return 0, false
}

// memBytes returns the allocated buffer capacity.
func (m *lightManager) memBytes() int64 {
	n := m.lights.memBytes() + m.fwdMatch.memBytes() + m.revMatch.memBytes()
	if m.prev != nil {
		n += m.prev.Cap()
	}
	return n
}

func (m *lightManager) free() {
	m.lights.free()
	if m.prev != nil {
		m.prev.Destroy()
	}
	m.fwdMatch.free()
	m.revMatch.free()
	*m = lightManager{}
}
