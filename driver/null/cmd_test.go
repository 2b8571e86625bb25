// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"bytes"
	"testing"

	"gviegas/rt/driver"
)

func TestRecording(t *testing.T) {
	d := tOpen(t)
	cb, err := d.NewCmdBuffer()
	if err != nil {
		t.Fatalf("Driver.NewCmdBuffer failed:\n%#v", err)
	}
	if cb.IsRecording() {
		t.Fatal("CmdBuffer.IsRecording:\nhave true\nwant false")
	}
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
	}
	if !cb.IsRecording() {
		t.Fatal("CmdBuffer.IsRecording:\nhave false\nwant true")
	}
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End failed:\n%#v", err)
	}
	if cb.IsRecording() {
		t.Fatal("CmdBuffer.IsRecording:\nhave true\nwant false")
	}
	if err := cb.Reset(); err != nil {
		t.Fatalf("CmdBuffer.Reset failed:\n%#v", err)
	}
}

func TestBeginTwicePanic(t *testing.T) {
	d := tOpen(t)
	cb, _ := d.NewCmdBuffer()
	cb.Begin()
	defer tWantPanic(t, "cmdBuffer.Begin: already recording")
	cb.Begin()
}

func TestRecordOutsidePanic(t *testing.T) {
	d := tOpen(t)
	cb, _ := d.NewCmdBuffer()
	buf := tBuffer(t, d, 64, driver.UGeneric)
	defer tWantPanic(t, "cmdBuffer.Fill: not recording")
	cb.Fill(buf, 0, 0, 64)
}

func TestCopyAndFill(t *testing.T) {
	d := tOpen(t)
	cb, _ := d.NewCmdBuffer()
	src := tBuffer(t, d, 256, driver.UCopySrc)
	dst := tBuffer(t, d, 256, driver.UCopyDst)
	for i := range src.Bytes() {
		src.Bytes()[i] = byte(i)
	}
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
	}
	cb.Fill(dst, 0, 0xaa, 256)
	cb.CopyBuffer(&driver.BufferCopy{
		From:    src,
		FromOff: 16,
		To:      dst,
		ToOff:   32,
		Size:    64,
	})
	cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SAll,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.AAnyRead,
	}})
	// Nothing executes until commit.
	if dst.Bytes()[0] != 0 {
		t.Fatal("CmdBuffer: executed before commit")
	}
	tCommit(t, d, cb)
	if !bytes.Equal(dst.Bytes()[32:96], src.Bytes()[16:80]) {
		t.Fatal("CmdBuffer.CopyBuffer: wrong data")
	}
	for _, i := range [...]int{0, 31, 96, 255} {
		if dst.Bytes()[i] != 0xaa {
			t.Fatalf("CmdBuffer.Fill: dst[%d]:\nhave %#x\nwant 0xaa", i, dst.Bytes()[i])
		}
	}
	// The command buffer must be reusable after
	// execution, with its previous recording gone.
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
	}
	cb.Fill(dst, 0, 0x55, 4)
	tCommit(t, d, cb)
	if dst.Bytes()[0] != 0x55 || dst.Bytes()[4] != 0xaa {
		t.Fatal("CmdBuffer: stale recording executed")
	}
}

func TestCopyUsagePanic(t *testing.T) {
	d := tOpen(t)
	cb, _ := d.NewCmdBuffer()
	src := tBuffer(t, d, 64, driver.UCopySrc)
	dst := tBuffer(t, d, 64, driver.UShaderRead)
	cb.Begin()
	defer tWantPanic(t, "cmdBuffer.CopyBuffer: usage lacks UCopyDst")
	cb.CopyBuffer(&driver.BufferCopy{From: src, To: dst, Size: 64})
}

func TestFillAlignPanic(t *testing.T) {
	d := tOpen(t)
	cb, _ := d.NewCmdBuffer()
	buf := tBuffer(t, d, 64, driver.UCopyDst)
	cb.Begin()
	defer tWantPanic(t, "cmdBuffer.Fill: unaligned range")
	cb.Fill(buf, 2, 0, 8)
}

func TestCommitRecordingPanic(t *testing.T) {
	d := tOpen(t)
	cb, _ := d.NewCmdBuffer()
	cb.Begin()
	wk := driver.WorkItem{Work: []driver.CmdBuffer{cb}}
	ch := make(chan *driver.WorkItem, 1)
	defer tWantPanic(t, "Driver.Commit: command buffer still recording")
	d.Commit(&wk, ch)
}

func TestCommitOrder(t *testing.T) {
	d := tOpen(t)
	buf := tBuffer(t, d, 16, driver.UCopyDst)
	var cbs [3]driver.CmdBuffer
	for i := range cbs {
		cb, err := d.NewCmdBuffer()
		if err != nil {
			t.Fatalf("Driver.NewCmdBuffer failed:\n%#v", err)
		}
		if err := cb.Begin(); err != nil {
			t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
		}
		cb.Fill(buf, 0, byte(i+1), 16)
		if err := cb.End(); err != nil {
			t.Fatalf("CmdBuffer.End failed:\n%#v", err)
		}
		cbs[i] = cb
	}
	ch := make(chan *driver.WorkItem)
	wk := driver.WorkItem{Work: cbs[:], Custom: "order"}
	if err := d.Commit(&wk, ch); err != nil {
		t.Fatalf("Driver.Commit failed:\n%#v", err)
	}
	x := <-ch
	if x != &wk || x.Err != nil || x.Custom != "order" {
		t.Fatalf("Commit round trip:\nhave %v, %v\nwant %v, nil", x, x.Err, &wk)
	}
	// Command buffers execute in batch order.
	if buf.Bytes()[0] != 3 {
		t.Fatalf("Commit: buf[0]:\nhave %d\nwant 3", buf.Bytes()[0])
	}
}
