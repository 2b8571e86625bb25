// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"gviegas/rt/driver"
)

// cmdBuffer implements driver.CmdBuffer.
// Recording validates commands eagerly and stores them as
// closures; Driver.Commit runs the closures in recording
// order.
type cmdBuffer struct {
	d   *Driver
	rec bool
	ops []func() error
}

// NewCmdBuffer creates a new command buffer.
func (d *Driver) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &cmdBuffer{d: d}, nil
}

func (cb *cmdBuffer) Begin() error {
	if cb.rec {
		panic("cmdBuffer.Begin: already recording")
	}
	cb.rec = true
	return nil
}

func (cb *cmdBuffer) IsRecording() bool { return cb.rec }

// recording panics unless cb is recording.
func (cb *cmdBuffer) recording(method string) {
	if !cb.rec {
		panic(method + ": not recording")
	}
}

func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	cb.recording("cmdBuffer.SetPipeline")
	if _, ok := pl.(*pipeline); !ok {
		panic("cmdBuffer.SetPipeline: bad pipeline")
	}
}

func (cb *cmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {
	cb.recording("cmdBuffer.SetDescTableComp")
	t, ok := table.(*descTable)
	if !ok {
		panic("cmdBuffer.SetDescTableComp: bad table")
	}
	if start < 0 || start+len(heapCopy) > t.Len() {
		panic("cmdBuffer.SetDescTableComp: heap range out of bounds")
	}
	for i, x := range heapCopy {
		if x < 0 || x >= t.Heap(start+i).Count() {
			panic("cmdBuffer.SetDescTableComp: no such heap copy")
		}
	}
}

func (cb *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	cb.recording("cmdBuffer.Dispatch")
	if grpCountX < 1 || grpCountY < 1 || grpCountZ < 1 {
		panic("cmdBuffer.Dispatch: group count < 1")
	}
	// Nothing executes shader code here.
}

func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	cb.recording("cmdBuffer.CopyBuffer")
	p := *param
	if p.From == nil || p.To == nil {
		panic("cmdBuffer.CopyBuffer: nil buffer")
	}
	if p.From.(*buffer).usg&driver.UCopySrc == 0 {
		panic("cmdBuffer.CopyBuffer: usage lacks UCopySrc")
	}
	if p.To.(*buffer).usg&driver.UCopyDst == 0 {
		panic("cmdBuffer.CopyBuffer: usage lacks UCopyDst")
	}
	if p.Size <= 0 || p.FromOff < 0 || p.ToOff < 0 ||
		p.FromOff+p.Size > p.From.Cap() || p.ToOff+p.Size > p.To.Cap() {
		panic("cmdBuffer.CopyBuffer: bad range")
	}
	cb.ops = append(cb.ops, func() error {
		copy(p.To.Bytes()[p.ToOff:p.ToOff+p.Size], p.From.Bytes()[p.FromOff:])
		return nil
	})
}

func (cb *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	cb.recording("cmdBuffer.Fill")
	if buf == nil {
		panic("cmdBuffer.Fill: nil buffer")
	}
	if buf.(*buffer).usg&driver.UCopyDst == 0 {
		panic("cmdBuffer.Fill: usage lacks UCopyDst")
	}
	if off&3 != 0 || size&3 != 0 {
		panic("cmdBuffer.Fill: unaligned range")
	}
	if size <= 0 || off < 0 || off+size > buf.Cap() {
		panic("cmdBuffer.Fill: bad range")
	}
	cb.ops = append(cb.ops, func() error {
		s := buf.Bytes()[off : off+size]
		for i := range s {
			s[i] = value
		}
		return nil
	})
}

func (cb *cmdBuffer) Barrier(b []driver.Barrier) {
	cb.recording("cmdBuffer.Barrier")
	// Execution is serial, so ordering always holds.
}

func (cb *cmdBuffer) End() error {
	if !cb.rec {
		panic("cmdBuffer.End: not recording")
	}
	cb.rec = false
	return nil
}

func (cb *cmdBuffer) Reset() error {
	cb.rec = false
	cb.ops = cb.ops[:0]
	return nil
}

func (cb *cmdBuffer) Destroy() { *cb = cmdBuffer{} }

// Commit executes the recorded commands of wk.Work in
// order and then delivers wk on ch with wk.Err set to
// the first execution error, if any.
// Execution happens asynchronously to the caller.
func (d *Driver) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	if wk == nil {
		panic("Driver.Commit: nil work item")
	}
	cbs := make([]*cmdBuffer, len(wk.Work))
	for i, x := range wk.Work {
		cb, ok := x.(*cmdBuffer)
		if !ok {
			panic("Driver.Commit: bad command buffer")
		}
		if cb.rec {
			panic("Driver.Commit: command buffer still recording")
		}
		cbs[i] = cb
	}
	go func() {
		var err error
	exec:
		for _, cb := range cbs {
			for _, op := range cb.ops {
				if err = op(); err != nil {
					break exec
				}
			}
		}
		// Executed command buffers must begin anew.
		for _, cb := range cbs {
			cb.ops = cb.ops[:0]
		}
		wk.Err = err
		ch <- wk
	}()
	return nil
}
