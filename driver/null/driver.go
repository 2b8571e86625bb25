// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package null implements the driver interfaces on host
// memory, with no device underneath.
// Buffers are plain byte slices, copies and fills execute
// when a work item is committed, and acceleration structure
// builds are tracked as bookkeeping on the destination
// structures. It serves tests and tooling that need the
// full command path without GPU hardware.
package null

import (
	"gviegas/rt/driver"
)

const driverName = "null"

// Driver implements driver.Driver and driver.GPU.
type Driver struct {
	open bool

	// Acceleration structures created from this GPU,
	// keyed by the ids that packed instance records
	// carry in place of device addresses.
	nas uint64
	as  map[uint64]*accelStruct
}

func init() {
	driver.Register(&Driver{})
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	if !d.open {
		d.open = true
		d.nas = 0
		d.as = make(map[uint64]*accelStruct)
	}
	return d, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	*d = Driver{}
}

// Driver returns d itself.
func (d *Driver) Driver() driver.Driver { return d }

// Limits returns the implementation limits.
// Host memory is the only real constraint, so most values
// are simply generous.
func (d *Driver) Limits() driver.Limits {
	return driver.Limits{
		MaxDescHeaps:      8,
		MaxDBuffer:        1 << 16,
		MaxDConstant:      1 << 12,
		MaxDAccelStruct:   64,
		MaxDBufferRange:   1 << 27,
		MaxDConstantRange: 1 << 16,
		MaxDispatch:       [3]int{1 << 16, 1 << 16, 1 << 16},
		MaxBLASGeom:       1 << 20,
		MaxTLASInst:       1 << 20,
		MinScratchAlign:   128,
	}
}

// Features returns the supported capabilities.
// The null driver accepts every command it can record, so
// everything is reported as supported.
func (d *Driver) Features() driver.Features {
	return driver.Features{
		AccelStruct: true,
		RayQuery:    true,
	}
}
