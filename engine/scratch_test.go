// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"gviegas/rt/driver"
)

func TestBlockAllocChunkRounding(t *testing.T) {
	for _, x := range [...]struct {
		gran, chunk, want int64
	}{
		{256, 1, 8192},
		{256, 8192, 8192},
		{256, 8193, 16384},
		{128, 4096, 4096},
		{128, 10000, 12288},
	} {
		a := newBlockAlloc(x.gran, x.chunk, driver.UGeneric)
		if a.chunk != x.want {
			t.Fatalf("newBlockAlloc(%d, %d).chunk:\nhave %d\nwant %d", x.gran, x.chunk, a.chunk, x.want)
		}
	}
}

func TestBlockAllocOffsets(t *testing.T) {
	a := newBlockAlloc(256, 8192, driver.UGeneric)
	defer a.destroy()

	// Sizes round up to whole blocks.
	var buf driver.Buffer
	for _, x := range [...]struct {
		size, off int64
	}{
		{1, 0},
		{256, 256},
		{257, 512},
		{300, 1024},
	} {
		b, off, err := a.alloc(x.size)
		if err != nil {
			t.Fatalf("blockAlloc.alloc failed:\n%#v", err)
		}
		if off != x.off {
			t.Fatalf("blockAlloc.alloc(%d):\nhave offset %d\nwant %d", x.size, off, x.off)
		}
		if buf == nil {
			buf = b
		} else if b != buf {
			t.Fatalf("blockAlloc.alloc(%d): unexpected new chunk", x.size)
		}
	}
}

func TestBlockAllocFreeReuse(t *testing.T) {
	a := newBlockAlloc(256, 8192, driver.UGeneric)
	defer a.destroy()

	buf, _, err := a.alloc(256)
	if err != nil {
		t.Fatalf("blockAlloc.alloc failed:\n%#v", err)
	}
	if _, off, _ := a.alloc(512); off != 256 {
		t.Fatalf("blockAlloc.alloc:\nhave offset %d\nwant 256", off)
	}
	if _, off, _ := a.alloc(256); off != 768 {
		t.Fatalf("blockAlloc.alloc:\nhave offset %d\nwant 768", off)
	}

	a.free(buf, 256, 512)
	// First fit lands on the freed range.
	if _, off, _ := a.alloc(256); off != 256 {
		t.Fatalf("blockAlloc.alloc after free:\nhave offset %d\nwant 256", off)
	}
	if _, off, _ := a.alloc(256); off != 512 {
		t.Fatalf("blockAlloc.alloc after free:\nhave offset %d\nwant 512", off)
	}
	// The freed range is exhausted now.
	if _, off, _ := a.alloc(256); off != 1024 {
		t.Fatalf("blockAlloc.alloc after free:\nhave offset %d\nwant 1024", off)
	}
}

func TestBlockAllocGrowth(t *testing.T) {
	a := newBlockAlloc(256, 8192, driver.UGeneric)
	defer a.destroy()

	b0, _, err := a.alloc(1)
	if err != nil {
		t.Fatalf("blockAlloc.alloc failed:\n%#v", err)
	}

	// No room left in the first chunk for a whole-chunk
	// allocation, so a second one must be created.
	b1, off, err := a.alloc(8192)
	if err != nil {
		t.Fatalf("blockAlloc.alloc failed:\n%#v", err)
	}
	if b1 == b0 || off != 0 {
		t.Fatal("blockAlloc.alloc: should have created a new chunk")
	}
	if b1.Cap() < 8192 {
		t.Fatalf("blockAlloc chunk capacity:\nhave %d\nwant >= 8192", b1.Cap())
	}

	// Requests larger than the chunk size get a larger
	// chunk, in whole-chunk multiples.
	b2, off, err := a.alloc(8193)
	if err != nil {
		t.Fatalf("blockAlloc.alloc failed:\n%#v", err)
	}
	if b2 == b0 || b2 == b1 || off != 0 {
		t.Fatal("blockAlloc.alloc: should have created a new chunk")
	}
	if b2.Cap() < 16384 {
		t.Fatalf("blockAlloc chunk capacity:\nhave %d\nwant >= 16384", b2.Cap())
	}
}

func TestBlockAllocReset(t *testing.T) {
	a := newBlockAlloc(256, 8192, driver.UGeneric)
	defer a.destroy()

	b0, _, err := a.alloc(4096)
	if err != nil {
		t.Fatalf("blockAlloc.alloc failed:\n%#v", err)
	}
	if _, _, err := a.alloc(8192); err != nil {
		t.Fatalf("blockAlloc.alloc failed:\n%#v", err)
	}

	a.reset()
	// Chunks are kept; allocation starts over.
	b, off, err := a.alloc(256)
	if err != nil {
		t.Fatalf("blockAlloc.alloc failed:\n%#v", err)
	}
	if b != b0 || off != 0 {
		t.Fatal("blockAlloc.reset: allocation should restart at the first chunk")
	}
}
