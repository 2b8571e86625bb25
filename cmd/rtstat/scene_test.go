// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"gviegas/rt/engine"
)

// tAssetJSON returns a glTF asset with one alpha-masked
// triangle and one spot light.
func tAssetJSON(t *testing.T) string {
	var data bytes.Buffer
	pos := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	if err := binary.Write(&data, binary.LittleEndian, pos); err != nil {
		t.Fatalf("binary.Write failed:\n%#v", err)
	}
	if err := binary.Write(&data, binary.LittleEndian, []uint16{0, 1, 2}); err != nil {
		t.Fatalf("binary.Write failed:\n%#v", err)
	}
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data.Bytes())
	return `{
		"asset": {"version": "2.0"},
		"extensionsUsed": ["KHR_lights_punctual"],
		"extensions": {"KHR_lights_punctual": {"lights": [
			{"type": "spot", "color": [1, 0.5, 0.25], "intensity": 10,
			 "spot": {"innerConeAngle": 0.2, "outerConeAngle": 0.6}}
		]}},
		"buffers": [{"byteLength": 42, "uri": "` + uri + `"}],
		"bufferViews": [
			{"buffer": 0, "byteLength": 36},
			{"buffer": 0, "byteOffset": 36, "byteLength": 6}
		],
		"accessors": [
			{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
			{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
		],
		"materials": [{
			"name": "paint",
			"alphaMode": "MASK",
			"pbrMetallicRoughness": {
				"baseColorFactor": [0.5, 0.25, 1, 1],
				"metallicFactor": 0.25,
				"roughnessFactor": 0.75
			},
			"emissiveFactor": [0.1, 0.6, 0.2]
		}],
		"meshes": [{"primitives": [
			{"attributes": {"POSITION": 0}, "indices": 1, "material": 0}
		]}],
		"nodes": [
			{"mesh": 0, "translation": [1, 2, 3]},
			{"translation": [4, 5, 6], "extensions": {"KHR_lights_punctual": {"light": 0}}}
		],
		"scenes": [{"nodes": [0, 1]}],
		"scene": 0
	}`
}

func TestLoadGLTF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.gltf")
	if err := os.WriteFile(path, []byte(tAssetJSON(t)), 0666); err != nil {
		t.Fatalf("os.WriteFile failed:\n%#v", err)
	}
	sd, err := loadGLTF(path)
	if err != nil {
		t.Fatalf("loadGLTF failed:\n%#v", err)
	}
	if sd.name != path || sd.mover != nil {
		t.Fatalf("sceneData:\nhave %s, mover %t\nwant %s, mover false", sd.name, sd.mover != nil, path)
	}
	if len(sd.static) != 1 {
		t.Fatalf("len(sceneData.static):\nhave %d\nwant 1", len(sd.static))
	}

	pl := &sd.static[0]
	if pl.mesh.ObjectID != 1 || pl.mesh.Transform != mgl32.Translate3D(1, 2, 3) {
		t.Fatalf("payload mesh:\nhave %d, %v\nwant 1, translate(1, 2, 3)", pl.mesh.ObjectID, pl.mesh.Transform)
	}
	p := &pl.prim
	if p.Index != 0 || p.Flags != engine.PrimAlphaTested {
		t.Fatalf("payload flags:\nhave %d, %d\nwant 0, alpha tested", p.Index, p.Flags)
	}
	if len(p.Vertices) != 3 || len(p.Indices) != 3 {
		t.Fatalf("payload counts:\nhave %d, %d\nwant 3, 3", len(p.Vertices), len(p.Indices))
	}
	for i, idx := range p.Indices {
		if idx != uint32(i) {
			t.Fatalf("payload index %d:\nhave %d\nwant %d", i, idx, i)
		}
	}
	v := p.Vertices[1]
	if v.Position != (mgl32.Vec3{1, 0, 0}) || v.Normal != (mgl32.Vec3{0, 0, 1}) || v.TexCoord != (mgl32.Vec2{}) {
		t.Fatalf("payload vertex:\nhave %v\nwant position (1, 0, 0), normal (0, 0, 1)", v)
	}
	if v.Color != engine.PackColor(1, 1, 1, 1) {
		t.Fatalf("payload vertex color:\nhave %#x\nwant white", v.Color)
	}
	if p.Material != "paint" || len(sd.materials) != 1 || sd.materials[0] != "paint" {
		t.Fatalf("payload material:\nhave %s, %v\nwant paint", p.Material, sd.materials)
	}
	if p.Color != engine.PackColor(0.5, 0.25, 1, 1) {
		t.Fatalf("payload color factor:\nhave %#x\nwant %#x", p.Color, engine.PackColor(0.5, 0.25, 1, 1))
	}
	if *p.MetalRough != (engine.MetalRough{Metalness: 0.25, Roughness: 0.75}) {
		t.Fatalf("payload metal-rough:\nhave %v\nwant {0.25 0.75}", *p.MetalRough)
	}
	if p.Emissive != 0.6 {
		t.Fatalf("payload emissive:\nhave %v\nwant 0.6", p.Emissive)
	}
	if len(sd.lights) != 1 || sd.lights[0].ID() != 1 {
		t.Fatalf("sceneData lights:\nhave %d\nwant one light with id 1", len(sd.lights))
	}

	// The converted payloads must drive a frame cleanly.
	config := engine.Config{
		StaticVertex:  1 << 12,
		DynamicVertex: 1 << 12,
		Index:         1 << 13,
		ScratchChunk:  1 << 16,
	}
	engine.Configure(&config)
	defer func() {
		config = engine.DefaultConfig()
		engine.Configure(&config)
	}()
	s, err := engine.NewScene(nil)
	if err != nil {
		t.Fatalf("engine.NewScene failed:\n%#v", err)
	}
	defer s.Free()
	if err := uploadStatic(s, sd); err != nil {
		t.Fatalf("uploadStatic failed:\n%#v", err)
	}
	if err := runFrame(s, sd, 0, 0, engine.MaskWorldAll, true); err != nil {
		t.Fatalf("runFrame failed:\n%#v", err)
	}
	st := s.Stats(0)
	if st.Geometries != 1 || st.Instances != 1 || st.Lights != 1 || st.DistantLight {
		t.Fatalf("stats after frame:\nhave %d, %d, %d, %t\nwant 1, 1, 1, false",
			st.Geometries, st.Instances, st.Lights, st.DistantLight)
	}

	if _, err := loadGLTF(filepath.Join(t.TempDir(), "missing.gltf")); err == nil {
		t.Fatal("loadGLTF: should have failed")
	}
}
