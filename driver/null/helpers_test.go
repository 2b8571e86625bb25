// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"testing"

	"gviegas/rt/driver"
)

// tOpen opens a private Driver instance so tests do not
// interfere with one another through the registered one.
func tOpen(t *testing.T) *Driver {
	var d Driver
	if _, err := d.Open(); err != nil {
		t.Fatalf("Driver.Open failed:\n%#v", err)
	}
	return &d
}

// tBuffer creates a buffer of the given size and usage.
func tBuffer(t *testing.T, d *Driver, size int64, usg driver.Usage) driver.Buffer {
	buf, err := d.NewBuffer(size, true, usg)
	if err != nil {
		t.Fatalf("Driver.NewBuffer failed:\n%#v", err)
	}
	return buf
}

// tCommit ends cb and executes it, failing the test on
// any error.
func tCommit(t *testing.T, d *Driver, cb driver.CmdBuffer) {
	if err := cb.End(); err != nil {
		t.Fatalf("cmdBuffer.End failed:\n%#v", err)
	}
	ch := make(chan *driver.WorkItem)
	wk := driver.WorkItem{Work: []driver.CmdBuffer{cb}}
	if err := d.Commit(&wk, ch); err != nil {
		t.Fatalf("Driver.Commit failed:\n%#v", err)
	}
	if x := <-ch; x.Err != nil {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant nil", x.Err)
	}
}

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
