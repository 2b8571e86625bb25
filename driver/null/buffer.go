// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"gviegas/rt/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	p   []byte
	usg driver.Usage
}

// NewBuffer creates a new buffer.
// Null buffers always live in host memory; the visible
// parameter is accepted but the buffer reports itself
// visible regardless.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		panic("Driver.NewBuffer: size <= 0")
	}
	// Round the capacity so 4-byte aligned fills can
	// always reach the requested size.
	const grain = 16
	n := (size + grain - 1) &^ (grain - 1)
	return &buffer{p: make([]byte, n), usg: usg}, nil
}

func (b *buffer) Visible() bool { return true }

func (b *buffer) Bytes() []byte { return b.p }

func (b *buffer) Cap() int64 { return int64(len(b.p)) }

func (b *buffer) Destroy() { *b = buffer{} }
