// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Batching of acceleration structure builds.

package engine

import "gviegas/rt/driver"

// asBuilder batches acceleration structure builds for
// recording.
// Bottom-level builds are flushed as a single command.
// Top-level builds come after them, in a separate batch,
// so a barrier can be inserted in between.
// Scratch memory is taken from a blockAlloc arena and is
// reclaimed by arena reset, not by the builder.
type asBuilder struct {
	blas []driver.BLASBuild
	tlas []driver.TLASBuild
}

// addBLAS queues a bottom-level build into dst.
// dst must hold a valid bottom-level structure.
// Queued top-level builds must be flushed first.
func (b *asBuilder) addBLAS(scratch *blockAlloc, dst *accelComp, geom []driver.ASGeometry, ranges []driver.ASRange, bs *driver.BuildSizes, flags driver.ASBuildFlags) error {
	if len(b.tlas) != 0 {
		panic("asBuilder.addBLAS: top-level builds pending")
	}
	if dst.as == nil || dst.typ != driver.ASBottom {
		panic("asBuilder.addBLAS: dst is not a valid BLAS")
	}
	size := bs.BuildScratch
	if flags&driver.BUpdate != 0 {
		size = bs.UpdateScratch
	}
	buf, off, err := scratch.alloc(size)
	if err != nil {
		return err
	}
	b.blas = append(b.blas, driver.BLASBuild{
		Dst:        dst.as,
		Geom:       geom,
		Ranges:     ranges,
		Flags:      flags,
		Scratch:    buf,
		ScratchOff: off,
	})
	return nil
}

// addTLAS queues a top-level build into dst.
// dst must hold a valid top-level structure, and inst must
// contain instCount instance descriptions at instOff.
// Queued bottom-level builds must be flushed first.
func (b *asBuilder) addTLAS(scratch *blockAlloc, dst *accelComp, inst driver.Buffer, instOff int64, instCount int, bs *driver.BuildSizes, flags driver.ASBuildFlags) error {
	if len(b.blas) != 0 {
		panic("asBuilder.addTLAS: bottom-level builds pending")
	}
	if dst.as == nil || dst.typ != driver.ASTop {
		panic("asBuilder.addTLAS: dst is not a valid TLAS")
	}
	size := bs.BuildScratch
	if flags&driver.BUpdate != 0 {
		size = bs.UpdateScratch
	}
	buf, off, err := scratch.alloc(size)
	if err != nil {
		return err
	}
	b.tlas = append(b.tlas, driver.TLASBuild{
		Dst:        dst.as,
		InstData:   inst,
		InstOff:    instOff,
		InstCount:  instCount,
		Flags:      flags,
		Scratch:    buf,
		ScratchOff: off,
	})
	return nil
}

// buildBottom records the queued bottom-level builds into
// cb and clears the queue.
// It returns false, without recording anything, if the
// queue is empty.
// cb must be recording.
func (b *asBuilder) buildBottom(cb driver.CmdBuffer) bool {
	if len(b.blas) == 0 {
		return false
	}
	cb.BuildBLAS(b.blas)
	// The command may refer to this memory
	// until execution completes.
	b.blas = nil
	return true
}

// buildTop records the queued top-level builds into cb and
// clears the queue.
// It returns false, without recording anything, if the
// queue is empty.
// cb must be recording.
func (b *asBuilder) buildTop(cb driver.CmdBuffer) bool {
	if len(b.tlas) == 0 {
		return false
	}
	cb.BuildTLAS(b.tlas)
	b.tlas = nil
	return true
}

// empty reports whether b has no queued builds.
func (b *asBuilder) empty() bool {
	return len(b.blas) == 0 && len(b.tlas) == 0
}

// asBuildBarrier is the barrier that orders bottom-level
// builds before the top-level build that instances them.
var asBuildBarrier = []driver.Barrier{{
	SyncBefore:   driver.SASBuild,
	SyncAfter:    driver.SASBuild,
	AccessBefore: driver.AASWrite,
	AccessAfter:  driver.AASRead,
}}

// asTraceBarrier is the barrier that orders structure
// builds before shader reads.
var asTraceBarrier = []driver.Barrier{{
	SyncBefore:   driver.SASBuild,
	SyncAfter:    driver.SComputeShading | driver.SRayTrace,
	AccessBefore: driver.AASWrite,
	AccessAfter:  driver.AASRead | driver.AShaderRead,
}}
