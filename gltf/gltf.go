// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package gltf decodes glTF 2.0 assets, including binary
// glTF (GLB).
// The schema covers the subset that describes geometry,
// node transforms, material factors and punctual lights.
package gltf

import (
	"encoding/json"
	"io"
)

// Root glTF object.
type GLTF struct {
	ExtensionsUsed     []string   `json:"extensionsUsed,omitempty"`
	ExtensionsRequired []string   `json:"extensionsRequired,omitempty"`
	Accessors          []Accessor `json:"accessors,omitempty"`
	Asset              struct {
		Copyright  string `json:"copyright,omitempty"`
		Generator  string `json:"generator,omitempty"`
		Version    string `json:"version"`
		MinVersion string `json:"minVersion,omitempty"`
		Extensions any    `json:"extensions,omitempty"`
		Extras     any    `json:"extras,omitempty"`
	} `json:"asset"`
	Buffers     []Buffer     `json:"buffers,omitempty"`
	BufferViews []BufferView `json:"bufferViews,omitempty"`
	Materials   []Material   `json:"materials,omitempty"`
	Meshes      []Mesh       `json:"meshes,omitempty"`
	Nodes       []Node       `json:"nodes,omitempty"`
	Scene       *int64       `json:"scene,omitempty"`
	Scenes      []Scene      `json:"scenes,omitempty"`
	Extensions  *Extensions  `json:"extensions,omitempty"`
	Extras      any          `json:"extras,omitempty"`
}

// glTF.extensions.
type Extensions struct {
	KHRLightsPunctual *KHRLightsPunctual `json:"KHR_lights_punctual,omitempty"`
}

// glTF.accessors' element.
type Accessor struct {
	BufferView    *int64    `json:"bufferView,omitempty"`
	ByteOffset    int64     `json:"byteOffset,omitempty"` // Default is 0.
	ComponentType int64     `json:"componentType"`
	Normalized    bool      `json:"normalized,omitempty"`
	Count         int64     `json:"count"`
	Type          string    `json:"type"`
	Max           []float32 `json:"max,omitempty"`
	Min           []float32 `json:"min,omitempty"`
	Sparse        *Sparse   `json:"sparse,omitempty"`
	Name          string    `json:"name,omitempty"`
	Extensions    any       `json:"extensions,omitempty"`
	Extras        any       `json:"extras,omitempty"`
}

// accessor.sparse.
type Sparse struct {
	Count   int64 `json:"count"`
	Indices struct {
		BufferView    int64 `json:"bufferView"`
		ByteOffset    int64 `json:"byteOffset,omitempty"` // Default is 0.
		ComponentType int64 `json:"componentType"`
		Extensions    any   `json:"extensions,omitempty"`
		Extras        any   `json:"extras,omitempty"`
	} `json:"indices"`
	Values struct {
		BufferView int64 `json:"bufferView"`
		ByteOffset int64 `json:"byteOffset,omitempty"` // Default is 0.
		Extensions any   `json:"extensions,omitempty"`
		Extras     any   `json:"extras,omitempty"`
	} `json:"values"`
	Extensions any `json:"extensions,omitempty"`
	Extras     any `json:"extras,omitempty"`
}

// accessor.*.componentType values.
const (
	BYTE           = 5120
	UNSIGNED_BYTE  = 5121
	SHORT          = 5122
	UNSIGNED_SHORT = 5123
	UNSIGNED_INT   = 5125
	FLOAT          = 5126
)

// accessor.type values.
const (
	SCALAR = "SCALAR"
	VEC2   = "VEC2"
	VEC3   = "VEC3"
	VEC4   = "VEC4"
	MAT2   = "MAT2"
	MAT3   = "MAT3"
	MAT4   = "MAT4"
)

// glTF.buffers' element.
type Buffer struct {
	URI        string `json:"uri,omitempty"`
	ByteLength int64  `json:"byteLength"`
	Name       string `json:"name,omitempty"`
	Extensions any    `json:"extensions,omitempty"`
	Extras     any    `json:"extras,omitempty"`
}

// glTF.bufferViews' element.
type BufferView struct {
	Buffer     int64  `json:"buffer"`
	ByteOffset int64  `json:"byteOffset,omitempty"` // Default is 0.
	ByteLength int64  `json:"byteLength"`
	ByteStride int64  `json:"byteStride,omitempty"` // 0 for tightly packed.
	Target     int64  `json:"target,omitempty"`     // 0 for no hint.
	Name       string `json:"name,omitempty"`
	Extensions any    `json:"extensions,omitempty"`
	Extras     any    `json:"extras,omitempty"`
}

// bufferView.target values.
const (
	ARRAY_BUFFER = iota + 34962
	ELEMENT_ARRAY_BUFFER
)

// glTF.materials' element.
// Texture references are not decoded; materials contribute
// their scalar/color factors and are otherwise identified
// by name.
type Material struct {
	PBRMetallicRoughness *PBRMetallicRoughness `json:"pbrMetallicRoughness,omitempty"`
	EmissiveFactor       *[3]float32           `json:"emissiveFactor,omitempty"` // Default is [0, 0, 0].
	AlphaMode            string                `json:"alphaMode,omitempty"`      // Default is "OPAQUE".
	AlphaCutoff          *float32              `json:"alphaCutoff,omitempty"`    // Default is 0.5.
	DoubleSided          bool                  `json:"doubleSided,omitempty"`    // Default is false.
	Name                 string                `json:"name,omitempty"`
	Extensions           any                   `json:"extensions,omitempty"`
	Extras               any                   `json:"extras,omitempty"`
}

// material.pbrMetallicRoughness.
type PBRMetallicRoughness struct {
	BaseColorFactor *[4]float32 `json:"baseColorFactor,omitempty"` // Default is [1, 1, 1, 1].
	MetallicFactor  *float32    `json:"metallicFactor,omitempty"`  // Default is 1.
	RoughnessFactor *float32    `json:"roughnessFactor,omitempty"` // Default is 1.
	Extensions      any         `json:"extensions,omitempty"`
	Extras          any         `json:"extras,omitempty"`
}

// material.alphaMode values.
const (
	OPAQUE = "OPAQUE"
	MASK   = "MASK"
	BLEND  = "BLEND"
)

// glTF.meshes' element.
type Mesh struct {
	Primitives []Primitive `json:"primitives"`
	Name       string      `json:"name,omitempty"`
	Extensions any         `json:"extensions,omitempty"`
	Extras     any         `json:"extras,omitempty"`
}

// mesh.primitives' element.
type Primitive struct {
	Attributes map[string]int64 `json:"attributes"`
	Indices    *int64           `json:"indices,omitempty"`
	Material   *int64           `json:"material,omitempty"`
	Mode       *int64           `json:"mode,omitempty"` // Default is 4.
	Extensions any              `json:"extensions,omitempty"`
	Extras     any              `json:"extras,omitempty"`
}

// mesh.primitive.mode values.
const (
	POINTS = iota
	LINES
	LINE_LOOP
	LINE_STRIP
	TRIANGLES
	TRIANGLE_STRIP
	TRIANGLE_FAN
)

// mesh.primitive.attributes keys.
const (
	POSITION   = "POSITION"
	NORMAL     = "NORMAL"
	TEXCOORD_0 = "TEXCOORD_0"
)

// glTF.nodes' element.
// XXX: Way too many pointers here.
type Node struct {
	Children    []int64         `json:"children,omitempty"`
	Matrix      *[16]float32    `json:"matrix,omitempty"` // Default is identity.
	Mesh        *int64          `json:"mesh,omitempty"`
	Rotation    *[4]float32     `json:"rotation,omitempty"`    // Default is [0, 0, 0, 1].
	Scale       *[3]float32     `json:"scale,omitempty"`       // Default is [1, 1, 1].
	Translation *[3]float32     `json:"translation,omitempty"` // Default is [0, 0, 0].
	Name        string          `json:"name,omitempty"`
	Extensions  *NodeExtensions `json:"extensions,omitempty"`
	Extras      any             `json:"extras,omitempty"`
}

// node.extensions.
type NodeExtensions struct {
	KHRLightsPunctual *NodeLight `json:"KHR_lights_punctual,omitempty"`
}

// node.extensions.KHR_lights_punctual.
type NodeLight struct {
	Light      int64 `json:"light"`
	Extensions any   `json:"extensions,omitempty"`
	Extras     any   `json:"extras,omitempty"`
}

// glTF.scenes' element.
type Scene struct {
	Nodes      []int64 `json:"nodes,omitempty"`
	Name       string  `json:"name,omitempty"`
	Extensions any     `json:"extensions,omitempty"`
	Extras     any     `json:"extras,omitempty"`
}

// glTF.extensions.KHR_lights_punctual.
type KHRLightsPunctual struct {
	Lights     []Light `json:"lights"`
	Extensions any     `json:"extensions,omitempty"`
	Extras     any     `json:"extras,omitempty"`
}

// KHR_lights_punctual.lights' element.
type Light struct {
	Color      *[3]float32 `json:"color,omitempty"`     // Default is [1, 1, 1].
	Intensity  *float32    `json:"intensity,omitempty"` // Default is 1.
	Spot       *Spot       `json:"spot,omitempty"`
	Range      float32     `json:"range,omitempty"` // 0 for infinite range.
	Type       string      `json:"type"`
	Name       string      `json:"name,omitempty"`
	Extensions any         `json:"extensions,omitempty"`
	Extras     any         `json:"extras,omitempty"`
}

// KHR_lights_punctual.light.spot.
type Spot struct {
	InnerConeAngle float32  `json:"innerConeAngle,omitempty"` // Default is 0.
	OuterConeAngle *float32 `json:"outerConeAngle,omitempty"` // Default is 0.7853981633974483.
	Extensions     any      `json:"extensions,omitempty"`
	Extras         any      `json:"extras,omitempty"`
}

// KHR_lights_punctual.light.type values.
const (
	Ldirectional = "directional"
	Lpoint       = "point"
	Lspot        = "spot"
)

// Encode encodes gltf into w.
func Encode(w io.Writer, gltf *GLTF) error {
	enc := json.NewEncoder(w)
	err := enc.Encode(gltf)
	if err != nil {
		return err
	}
	return nil
}

// Decode decodes r into a new GLTF instance.
func Decode(r io.Reader) (*GLTF, error) {
	var gltf GLTF
	dec := json.NewDecoder(r)
	err := dec.Decode(&gltf)
	if err != nil {
		return nil, err
	}
	return &gltf, nil
}
