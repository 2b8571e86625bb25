// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// GPU staging and frame submission.

package engine

import (
	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/ctxt"
)

// frameBuffer pairs a device-local buffer with one or
// more host visible staging buffers.
// Uploads write into the mapped staging memory of the
// frame being recorded; the device buffer receives the
// data through an explicit copy command.
type frameBuffer struct {
	dev  driver.Buffer
	host []driver.Buffer
}

// newFrameBuffer creates a frame buffer of the given size
// with one staging buffer per frame.
// frames is either 1, for data that is recorded while the
// GPU is idle, or MaxFrame.
// usg applies to the device buffer; staging buffers get
// copy-source usage only.
func newFrameBuffer(frames int, size int64, usg driver.Usage) (fb frameBuffer, err error) {
	if frames != 1 && frames != MaxFrame {
		panic("newFrameBuffer: invalid frame count")
	}
	fb.dev, err = ctxt.GPU().NewBuffer(size, false, usg|driver.UCopyDst)
	if err != nil {
		return frameBuffer{}, err
	}
	fb.host = make([]driver.Buffer, frames)
	for i := range fb.host {
		fb.host[i], err = ctxt.GPU().NewBuffer(size, true, driver.UCopySrc)
		if err != nil {
			fb.free()
			return frameBuffer{}, err
		}
	}
	return
}

// bytes returns the mapped staging memory of frame.
func (fb *frameBuffer) bytes(frame int) []byte { return fb.host[frame].Bytes() }

// copyToDevice records a copy of the first size bytes of
// frame's staging buffer into the device buffer.
// Copying zero bytes records nothing.
// cb must be recording.
func (fb *frameBuffer) copyToDevice(cb driver.CmdBuffer, frame int, size int64) {
	if size == 0 {
		return
	}
	cb.CopyBuffer(&driver.BufferCopy{
		From: fb.host[frame],
		To:   fb.dev,
		Size: size,
	})
}

// memBytes returns the allocated capacity, staging
// included.
func (fb *frameBuffer) memBytes() int64 {
	var n int64
	if fb.dev != nil {
		n = fb.dev.Cap()
	}
	for _, b := range fb.host {
		if b != nil {
			n += b.Cap()
		}
	}
	return n
}

func (fb *frameBuffer) free() {
	if fb.dev != nil {
		fb.dev.Destroy()
	}
	for _, b := range fb.host {
		if b != nil {
			b.Destroy()
		}
	}
	*fb = frameBuffer{}
}

// frameWork manages one command buffer per frame and
// tracks its completion.
type frameWork struct {
	cb   []driver.CmdBuffer
	ch   []chan *driver.WorkItem
	wk   []*driver.WorkItem
	pend []bool
}

func newFrameWork(frames int) (*frameWork, error) {
	fw := frameWork{
		cb:   make([]driver.CmdBuffer, frames),
		ch:   make([]chan *driver.WorkItem, frames),
		wk:   make([]*driver.WorkItem, frames),
		pend: make([]bool, frames),
	}
	for i := range fw.cb {
		cb, err := ctxt.GPU().NewCmdBuffer()
		if err != nil {
			for j := range i {
				fw.cb[j].Destroy()
			}
			return nil, err
		}
		fw.cb[i] = cb
		fw.ch[i] = make(chan *driver.WorkItem, 1)
		fw.wk[i] = &driver.WorkItem{
			Work:   []driver.CmdBuffer{cb},
			Custom: i,
		}
	}
	return &fw, nil
}

// begin waits for frame's outstanding work, if any, and
// starts recording.
func (fw *frameWork) begin(frame int) error {
	if err := fw.wait(frame); err != nil {
		return err
	}
	return fw.cb[frame].Begin()
}

// commit ends recording and submits frame's command
// buffer for execution.
// fw.wait(frame) reports the result.
func (fw *frameWork) commit(frame int) error {
	if err := fw.cb[frame].End(); err != nil {
		return err
	}
	wk := fw.wk[frame]
	wk.Err = nil
	if err := ctxt.GPU().Commit(wk, fw.ch[frame]); err != nil {
		return err
	}
	fw.pend[frame] = true
	return nil
}

// commitAndWait submits frame's command buffer and blocks
// until execution completes.
func (fw *frameWork) commitAndWait(frame int) error {
	if err := fw.commit(frame); err != nil {
		return err
	}
	return fw.wait(frame)
}

// wait blocks until frame's outstanding work completes.
// It is a no-op if frame has no outstanding work.
func (fw *frameWork) wait(frame int) error {
	if !fw.pend[frame] {
		return nil
	}
	wk := <-fw.ch[frame]
	fw.pend[frame] = false
	err := wk.Err
	wk.Err = nil
	return err
}

// waitAll blocks until every frame's outstanding work
// completes. It returns the first error observed.
func (fw *frameWork) waitAll() error {
	var err error
	for i := range fw.cb {
		if x := fw.wait(i); x != nil && err == nil {
			err = x
		}
	}
	return err
}

func (fw *frameWork) free() {
	fw.waitAll()
	for _, cb := range fw.cb {
		if cb != nil {
			cb.Destroy()
		}
	}
	*fw = frameWork{}
}
