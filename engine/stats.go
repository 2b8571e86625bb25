// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Resource usage reporting.

package engine

// BLASStats describes one live bottom-level structure.
type BLASStats struct {
	ID      PrimitiveID
	Static  bool
	Indexed bool
	// Vertex and triangle counts of the geometry.
	Vertices  int
	Triangles int
	// Structure size in bytes.
	Size int64
	// Whether the build preferred build speed over
	// trace speed.
	FastBuild bool
}

// MemStats breaks down driver memory usage in bytes.
// Host-visible staging counts toward its pool.
type MemStats struct {
	// Pooled vertex, index and layer data.
	StaticGeom  int64
	DynamicGeom int64
	// Acceleration structure arenas.
	Accel int64
	// Build scratch arenas.
	Scratch int64
	// Mapped top-level instance storage.
	Instance int64
	// Geometry records, light records, match tables
	// and shader constants.
	Record int64
}

// Total returns the sum of every pool.
func (m *MemStats) Total() int64 {
	return m.StaticGeom + m.DynamicGeom + m.Accel + m.Scratch + m.Instance + m.Record
}

// Stats is a snapshot of a scene's resources.
type Stats struct {
	Frame int
	// Live bottom-level structures, static ones first,
	// then frame's dynamic ones.
	BLAS []BLASStats
	// Geometry records registered in frame.
	Geometries int
	// Top-level instance count of frame's last build
	// and its partition over the mask bits.
	Instances int
	InstMask  [8]int
	// Regular lights of the frame being recorded and
	// whether a distant light is among them.
	Lights       int
	DistantLight bool
	Mem          MemStats
}

// Stats returns a snapshot of s's resource usage.
// frame must be the most recently recorded frame; the
// instance figures refer to its last SubmitForFrame.
func (s *Scene) Stats(frame int) Stats {
	if frame < 0 || frame >= MaxFrame {
		panic("Scene.Stats: invalid frame")
	}
	st := Stats{
		Frame:        frame,
		Geometries:   s.geoms.count(frame),
		Lights:       s.lights.lightCount(),
		DistantLight: s.lights.distantLightExists(),
	}
	s.asman.stats(frame, &st)
	st.Mem.Record += s.geoms.memBytes() + s.lights.memBytes()
	return st
}

// stats fills st with the manager's structure and memory
// figures.
func (m *asManager) stats(frame int, st *Stats) {
	for _, inst := range m.staticInst {
		st.BLAS = append(st.BLAS, blasStats(inst, true))
	}
	for _, inst := range m.dynInst[frame] {
		st.BLAS = append(st.BLAS, blasStats(inst, false))
	}
	st.Instances = len(m.tlasOrder[frame])
	st.InstMask = m.maskHist[frame]
	st.Mem.StaticGeom = m.staticCol.memBytes()
	for i := range MaxFrame {
		st.Mem.DynamicGeom += m.dynCol[i].memBytes() + m.prevVert[i].Cap() + m.prevIdx[i].Cap()
		st.Mem.Instance += m.instBuf[i].Cap()
		st.Mem.Scratch += m.scratch[i].total()
	}
	st.Mem.Scratch += m.staticScratch.total()
	st.Mem.Accel = m.staticArena.total() + m.dynArena.total() + m.tlasArena.total()
	st.Mem.Record = m.cbuf.Cap()
}

func blasStats(inst *blasInstance, static bool) BLASStats {
	return BLASStats{
		ID:        inst.id,
		Static:    static,
		Indexed:   inst.indexed,
		Vertices:  inst.nvert,
		Triangles: inst.ntri,
		Size:      inst.blas.size,
		FastBuild: inst.fastBuild,
	}
}
