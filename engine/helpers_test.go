// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"gviegas/rt/driver"
	"gviegas/rt/engine/internal/ctxt"
)

// tWantPanic fails the test unless it is recovering from
// a panic with the given value.
func tWantPanic(t *testing.T, want string) {
	if x := recover(); x != nil {
		if x != want {
			t.Fatalf("recover():\nhave %v\nwant %s", x, want)
		}
	} else {
		t.Fatalf("%s: should have panicked", want)
	}
}

// tCmdBuffer creates a command buffer and begins it.
func tCmdBuffer(t *testing.T) driver.CmdBuffer {
	cb, err := ctxt.GPU().NewCmdBuffer()
	if err != nil {
		t.Fatalf("GPU.NewCmdBuffer failed:\n%#v", err)
	}
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
	}
	return cb
}

// tSubmit ends cb and executes it, failing the test on
// any error.
func tSubmit(t *testing.T, cb driver.CmdBuffer) {
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End failed:\n%#v", err)
	}
	ch := make(chan *driver.WorkItem, 1)
	wk := driver.WorkItem{Work: []driver.CmdBuffer{cb}}
	if err := ctxt.GPU().Commit(&wk, ch); err != nil {
		t.Fatalf("GPU.Commit failed:\n%#v", err)
	}
	if x := <-ch; x.Err != nil {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant nil", x.Err)
	}
}

// tDevBytes returns the contents of a device-local
// buffer.
// It skips the test when the driver does not keep device
// memory host visible, as is the case on real hardware.
func tDevBytes(t *testing.T, buf driver.Buffer) []byte {
	if !buf.Visible() {
		t.Skip("device memory is not host visible")
	}
	return buf.Bytes()
}

// tConfigure replaces the package configuration and
// restores the previous one when the test finishes.
func tConfigure(t *testing.T, c Config) {
	prev := cfg
	Configure(&c)
	t.Cleanup(func() { cfg = prev })
}

// tSmallConfig is a configuration with small pools so
// capacity limits can be reached quickly.
var tSmallConfig = Config{
	StaticVertex:  512,
	DynamicVertex: 512,
	Index:         1024,
	ScratchChunk:  1 << 15,
}
