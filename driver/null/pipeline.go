// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package null

import (
	"gviegas/rt/driver"
)

// shaderCode implements driver.ShaderCode.
// The bytes are retained but never interpreted.
type shaderCode struct {
	data []byte
}

// NewShaderCode creates a new shader code.
func (d *Driver) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	if len(data) == 0 {
		panic("Driver.NewShaderCode: no data")
	}
	sc := &shaderCode{data: make([]byte, len(data))}
	copy(sc.data, data)
	return sc, nil
}

func (sc *shaderCode) Destroy() { *sc = shaderCode{} }

// pipeline implements driver.Pipeline.
type pipeline struct {
	state driver.CompState
}

// NewPipeline creates a new compute pipeline.
func (d *Driver) NewPipeline(state *driver.CompState) (driver.Pipeline, error) {
	if state == nil {
		panic("Driver.NewPipeline: nil state")
	}
	if _, ok := state.Func.Code.(*shaderCode); !ok {
		panic("Driver.NewPipeline: bad shader code")
	}
	if state.Func.Name == "" {
		panic("Driver.NewPipeline: unnamed shader function")
	}
	if state.Desc != nil {
		if _, ok := state.Desc.(*descTable); !ok {
			panic("Driver.NewPipeline: bad descriptor table")
		}
	}
	return &pipeline{state: *state}, nil
}

func (pl *pipeline) Destroy() { *pl = pipeline{} }
