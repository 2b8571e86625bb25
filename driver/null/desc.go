// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"gviegas/rt/driver"
)

// binding holds the data that Set* calls assigned to one
// descriptor of one heap copy. Tests inspect it.
type binding struct {
	buf  []driver.Buffer
	off  []int64
	size []int64
	as   []driver.AccelStruct
}

// descHeap implements driver.DescHeap.
type descHeap struct {
	d  *Driver
	ds []driver.Descriptor

	// One row per heap copy, one binding per
	// descriptor, in ds order.
	sets [][]binding
}

// NewDescHeap creates a new descriptor heap.
func (d *Driver) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	seen := make(map[int]bool, len(ds))
	for i := range ds {
		switch ds[i].Type {
		case driver.DBuffer, driver.DConstant, driver.DAccelStruct:
		default:
			panic("Driver.NewDescHeap: bad descriptor type")
		}
		if ds[i].Len < 1 {
			panic("Driver.NewDescHeap: descriptor len < 1")
		}
		if seen[ds[i].Nr] {
			panic("Driver.NewDescHeap: duplicate descriptor number")
		}
		seen[ds[i].Nr] = true
	}
	dh := &descHeap{d: d, ds: make([]driver.Descriptor, len(ds))}
	copy(dh.ds, ds)
	return dh, nil
}

func (h *descHeap) New(n int) error {
	switch {
	case n < 0:
		panic("descHeap.New: n < 0")
	case n == len(h.sets):
		return nil
	case n == 0:
		h.sets = nil
		return nil
	}
	h.sets = make([][]binding, n)
	for i := range h.sets {
		h.sets[i] = make([]binding, len(h.ds))
	}
	return nil
}

// index locates the descriptor identified by nr.
func (h *descHeap) index(nr int, method string) int {
	for i := range h.ds {
		if h.ds[i].Nr == nr {
			return i
		}
	}
	panic(method + ": no such descriptor")
}

func (h *descHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	i := h.index(nr, "descHeap.SetBuffer")
	switch h.ds[i].Type {
	case driver.DBuffer, driver.DConstant:
	default:
		panic("descHeap.SetBuffer: descriptor type mismatch")
	}
	if len(buf) != len(off) || len(buf) != len(size) {
		panic("descHeap.SetBuffer: length mismatch")
	}
	if start < 0 || start+len(buf) > h.ds[i].Len {
		panic("descHeap.SetBuffer: descriptor range out of bounds")
	}
	b := &h.sets[cpy][i]
	b.grow(h.ds[i].Len)
	for j := range buf {
		if off[j] < 0 || size[j] <= 0 || off[j]+size[j] > buf[j].Cap() {
			panic("descHeap.SetBuffer: bad buffer range")
		}
		b.buf[start+j] = buf[j]
		b.off[start+j] = off[j]
		b.size[start+j] = size[j]
	}
}

func (h *descHeap) SetAccelStruct(cpy, nr, start int, as []driver.AccelStruct) {
	i := h.index(nr, "descHeap.SetAccelStruct")
	if h.ds[i].Type != driver.DAccelStruct {
		panic("descHeap.SetAccelStruct: descriptor type mismatch")
	}
	if start < 0 || start+len(as) > h.ds[i].Len {
		panic("descHeap.SetAccelStruct: descriptor range out of bounds")
	}
	b := &h.sets[cpy][i]
	b.grow(h.ds[i].Len)
	for j := range as {
		if _, ok := as[j].(*accelStruct); !ok {
			panic("descHeap.SetAccelStruct: bad acceleration structure")
		}
		b.as[start+j] = as[j]
	}
}

func (b *binding) grow(n int) {
	if b.buf == nil {
		b.buf = make([]driver.Buffer, n)
		b.off = make([]int64, n)
		b.size = make([]int64, n)
		b.as = make([]driver.AccelStruct, n)
	}
}

func (h *descHeap) Count() int { return len(h.sets) }

func (h *descHeap) Destroy() { *h = descHeap{} }

// descTable implements driver.DescTable.
type descTable struct {
	dh []driver.DescHeap
}

// NewDescTable creates a new descriptor table.
func (d *Driver) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	if len(dh) > d.Limits().MaxDescHeaps {
		panic("Driver.NewDescTable: too many heaps")
	}
	for _, x := range dh {
		if _, ok := x.(*descHeap); !ok {
			panic("Driver.NewDescTable: bad heap")
		}
	}
	t := &descTable{dh: make([]driver.DescHeap, len(dh))}
	copy(t.dh, dh)
	return t, nil
}

func (t *descTable) Heap(idx int) driver.DescHeap { return t.dh[idx] }

func (t *descTable) Len() int { return len(t.dh) }

func (t *descTable) Destroy() { *t = descTable{} }
