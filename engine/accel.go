// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Acceleration structure components.

package engine

import (
	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/ctxt"
)

// accelComp is an acceleration structure whose memory
// comes from a blockAlloc arena.
// The structure is recreated when a build requires more
// room than the current allocation provides; it never
// shrinks.
type accelComp struct {
	name string
	typ  driver.ASType
	as   driver.AccelStruct
	buf  driver.Buffer
	off  int64
	size int64
}

// valid reports whether c holds a structure that suffices
// for a build with the given sizes.
func (c *accelComp) valid(typ driver.ASType, bs *driver.BuildSizes) bool {
	return c.as != nil && c.typ == typ && c.size >= bs.AccelSize
}

// recreateIfNotValid ensures that c can be the destination
// of a build with the given sizes.
// It keeps the current structure when possible and reports
// whether a new one had to be created. A recreated
// structure has no contents, so the next build must not be
// an update.
func (c *accelComp) recreateIfNotValid(typ driver.ASType, bs *driver.BuildSizes, arena *blockAlloc) (bool, error) {
	if c.valid(typ, bs) {
		return false, nil
	}
	buf, off, err := arena.alloc(bs.AccelSize)
	if err != nil {
		return false, err
	}
	as, err := ctxt.GPU().NewAccelStruct(typ, buf, off, bs.AccelSize)
	if err != nil {
		arena.free(buf, off, bs.AccelSize)
		return false, err
	}
	c.free(arena)
	c.typ = typ
	c.as = as
	c.buf = buf
	c.off = off
	c.size = bs.AccelSize
	return true, nil
}

// free destroys the structure and returns its memory to
// arena. It is a no-op if c holds no structure.
// The name is kept.
func (c *accelComp) free(arena *blockAlloc) {
	if c.as != nil {
		c.as.Destroy()
		arena.free(c.buf, c.off, c.size)
	}
	c.as = nil
	c.buf = nil
	c.off = 0
	c.size = 0
}
