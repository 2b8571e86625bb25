// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Suballocation of scratch and structure memory.

package engine

import (
	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/ctxt"
	"gviegas/rt/internal/bitvec"
)

// blockChunk is one driver buffer plus its block map.
type blockChunk struct {
	buf driver.Buffer
	bv  bitvec.V[uint32]
}

// blockAlloc suballocates fixed-granularity blocks from a
// growable list of device-local buffers.
// Every allocation is aligned to the granularity.
type blockAlloc struct {
	gran  int64
	chunk int64
	usg   driver.Usage
	bufs  []blockChunk
}

// newBlockAlloc creates a block allocator whose buffers
// have the given usage.
// gran must be a power of two. chunk is rounded up so
// that a chunk covers a whole number of bit vector words.
func newBlockAlloc(gran, chunk int64, usg driver.Usage) blockAlloc {
	// 32 blocks per word.
	g32 := gran * 32
	chunk = (chunk + g32 - 1) &^ (g32 - 1)
	return blockAlloc{gran: gran, chunk: chunk, usg: usg}
}

// alloc reserves size bytes and returns the buffer and
// offset of the reserved range.
// A new chunk is created when no existing one has room.
func (a *blockAlloc) alloc(size int64) (driver.Buffer, int64, error) {
	n := int((size + a.gran - 1) / a.gran)
	for i := range a.bufs {
		if idx, ok := a.bufs[i].bv.SearchRange(n); ok {
			for j := range n {
				a.bufs[i].bv.Set(idx + j)
			}
			return a.bufs[i].buf, int64(idx) * a.gran, nil
		}
	}
	sz := a.chunk
	for sz < size {
		sz += a.chunk
	}
	buf, err := ctxt.GPU().NewBuffer(sz, false, a.usg)
	if err != nil {
		return nil, 0, err
	}
	var bv bitvec.V[uint32]
	bv.Grow(int(sz / (a.gran * 32)))
	for j := range n {
		bv.Set(j)
	}
	a.bufs = append(a.bufs, blockChunk{buf, bv})
	return buf, 0, nil
}

// free releases a range returned by alloc.
// off and size must match the allocation exactly.
func (a *blockAlloc) free(buf driver.Buffer, off, size int64) {
	n := int((size + a.gran - 1) / a.gran)
	idx := int(off / a.gran)
	for i := range a.bufs {
		if a.bufs[i].buf == buf {
			for j := range n {
				a.bufs[i].bv.Unset(idx + j)
			}
			return
		}
	}
}

// reset releases every allocation at once.
// The chunks themselves are kept for reuse.
func (a *blockAlloc) reset() {
	for i := range a.bufs {
		a.bufs[i].bv.Clear()
	}
}

// total returns the byte capacity of every chunk.
func (a *blockAlloc) total() int64 {
	var n int64
	for i := range a.bufs {
		n += a.bufs[i].buf.Cap()
	}
	return n
}

func (a *blockAlloc) destroy() {
	for i := range a.bufs {
		a.bufs[i].buf.Destroy()
	}
	*a = blockAlloc{}
}
