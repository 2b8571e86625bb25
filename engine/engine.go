// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package engine implements the geometry pipeline of a
// real-time ray tracer.
package engine

import (
	"gviegas/rt/engine/internal/shader"
)

const (
	// The number of frames in flight.
	MaxFrame = 2

	// The maximum number of geometry records per frame.
	MaxGeometry = int(shader.MaxGeom)

	// The maximum number of lights per frame.
	MaxLight = int(shader.MaxLight)

	// The number of lightstyle slots.
	MaxStyle = int(shader.MaxStyle)

	// The maximum number of TLAS instances per frame.
	MaxInstance = 2048

	// The maximum number of additional texture layers
	// of a primitive.
	MaxTexLayer = shader.MaxLayer

	dflStaticVertex  = 1 << 20
	dflDynamicVertex = 1 << 21
	dflIndex         = 3 * (1 << 20)
	dflScratchChunk  = 1 << 22
)

// PrevFrame returns the frame index preceding frame.
func PrevFrame(frame int) int { return (frame + MaxFrame - 1) % MaxFrame }

// PackColor packs an RGBA color into a 32-bit unorm
// value, red in the least significant byte.
// Vertex colors, color factors and light colors use
// this encoding.
func PackColor(r, g, b, a float32) uint32 {
	return shader.PackColor(r, g, b, a)
}

// Config is used to configure the engine.
type Config struct {
	// The capacity, in vertices, of the static
	// vertex pool.
	//
	// Default is 1048576.
	StaticVertex int

	// The capacity, in vertices, of the dynamic
	// vertex pool.
	//
	// Default is 2097152.
	DynamicVertex int

	// The capacity, in indices, of each of the
	// static and dynamic index pools.
	//
	// Default is 3145728.
	Index int

	// The granularity, in bytes, of scratch and
	// acceleration structure memory.
	//
	// Default is 4194304 bytes (4MiB).
	ScratchChunk int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StaticVertex:  dflStaticVertex,
		DynamicVertex: dflDynamicVertex,
		Index:         dflIndex,
		ScratchChunk:  dflScratchChunk,
	}
}

var cfg Config

// Configure replaces the engine's configuration
// with config.
// Non-positive values select the defaults.
// It affects Scene creation only; scenes that already
// exist keep the configuration they were created with.
func Configure(config *Config) {
	c := *config
	if c.StaticVertex <= 0 {
		c.StaticVertex = dflStaticVertex
	}
	if c.DynamicVertex <= 0 {
		c.DynamicVertex = dflDynamicVertex
	}
	if c.Index <= 0 {
		c.Index = dflIndex
	}
	if c.ScratchChunk <= 0 {
		c.ScratchChunk = dflScratchChunk
	}
	cfg = c
}

func init() {
	config := DefaultConfig()
	Configure(&config)
}
