// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gltf

import (
	"errors"
	"strings"
)

func newErr(reason string) error {
	return errors.New("gltf: " + reason)
}

// Check checks that f is valid glTF.
// It validates enum values and index references; byte
// ranges are validated against buffer data when read.
func (f *GLTF) Check() error {
	if v := f.Asset.Version; !strings.HasPrefix(v, "2.") {
		return newErr("unsupported glTF version: " + v)
	}
	if s := f.Scene; s != nil && (*s < 0 || *s >= int64(len(f.Scenes))) {
		return newErr("invalid GLTF.Scene index")
	}
	for i := range f.Scenes {
		for _, n := range f.Scenes[i].Nodes {
			if n < 0 || n >= int64(len(f.Nodes)) {
				return newErr("invalid Scene.Nodes index")
			}
		}
	}
	for i := range f.Accessors {
		if err := f.Accessors[i].Check(f); err != nil {
			return err
		}
	}
	for i := range f.BufferViews {
		v := &f.BufferViews[i]
		if v.Buffer < 0 || v.Buffer >= int64(len(f.Buffers)) {
			return newErr("invalid BufferView.Buffer index")
		}
		if v.ByteOffset < 0 || v.ByteLength < 1 {
			return newErr("invalid BufferView range")
		}
	}
	for i := range f.Materials {
		if err := f.Materials[i].Check(); err != nil {
			return err
		}
	}
	for i := range f.Meshes {
		if err := f.Meshes[i].Check(f); err != nil {
			return err
		}
	}
	for i := range f.Nodes {
		if err := f.Nodes[i].Check(f); err != nil {
			return err
		}
	}
	if x := f.Extensions; x != nil && x.KHRLightsPunctual != nil {
		for i := range x.KHRLightsPunctual.Lights {
			if err := x.KHRLightsPunctual.Lights[i].Check(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Check checks that a is valid glTF.accessors' element.
func (a *Accessor) Check(gltf *GLTF) error {
	if a.BufferView != nil {
		idx := *a.BufferView
		if idx < 0 || idx >= int64(len(gltf.BufferViews)) {
			return newErr("invalid Accessor.BufferView index")
		}
	}
	if a.ByteOffset < 0 {
		return newErr("invalid Accessor.ByteOffset value")
	}
	switch a.ComponentType {
	case BYTE, UNSIGNED_BYTE, SHORT, UNSIGNED_SHORT, UNSIGNED_INT, FLOAT:
	default:
		return newErr("invalid Accessor.ComponentType value")
	}
	if a.Count < 1 {
		return newErr("invalid Accessor.Count value")
	}
	switch a.Type {
	case SCALAR, VEC2, VEC3, VEC4, MAT2, MAT3, MAT4:
	default:
		return newErr("invalid Accessor.Type value")
	}

	if s := a.Sparse; s != nil {
		if s.Count < 1 || s.Count > a.Count {
			return newErr("invalid Accessor.Sparse.Count value")
		}

		if s.Indices.BufferView < 0 || s.Indices.BufferView >= int64(len(gltf.BufferViews)) {
			return newErr("invalid Accessor.Sparse.Indices.BufferView index")
		}
		if s.Indices.ByteOffset < 0 {
			return newErr("invalid Accessor.Sparse.Indices.ByteOffset value")
		}
		switch s.Indices.ComponentType {
		case UNSIGNED_BYTE, UNSIGNED_SHORT, UNSIGNED_INT:
		default:
			return newErr("invalid Accessor.Sparse.Indices.ComponentType value")
		}

		if s.Values.BufferView < 0 || s.Values.BufferView >= int64(len(gltf.BufferViews)) {
			return newErr("invalid Accessor.Sparse.Values.BufferView index")
		}
		if s.Values.ByteOffset < 0 {
			return newErr("invalid Accessor.Sparse.Values.ByteOffset value")
		}
	}
	return nil
}

// Check checks that m is valid glTF.materials' element.
func (m *Material) Check() error {
	switch m.AlphaMode {
	case "", OPAQUE, MASK, BLEND:
	default:
		return newErr("invalid Material.AlphaMode value")
	}
	if c := m.AlphaCutoff; c != nil && *c < 0 {
		return newErr("invalid Material.AlphaCutoff value")
	}
	return nil
}

// Check checks that m is valid glTF.meshes' element.
func (m *Mesh) Check(gltf *GLTF) error {
	if len(m.Primitives) == 0 {
		return newErr("Mesh.Primitives is empty")
	}
	for i := range m.Primitives {
		p := &m.Primitives[i]
		if len(p.Attributes) == 0 {
			return newErr("Primitive.Attributes is empty")
		}
		for _, a := range p.Attributes {
			if a < 0 || a >= int64(len(gltf.Accessors)) {
				return newErr("invalid Primitive.Attributes index")
			}
		}
		if x := p.Indices; x != nil && (*x < 0 || *x >= int64(len(gltf.Accessors))) {
			return newErr("invalid Primitive.Indices index")
		}
		if x := p.Material; x != nil && (*x < 0 || *x >= int64(len(gltf.Materials))) {
			return newErr("invalid Primitive.Material index")
		}
		if x := p.Mode; x != nil && (*x < POINTS || *x > TRIANGLE_FAN) {
			return newErr("invalid Primitive.Mode value")
		}
	}
	return nil
}

// Check checks that n is valid glTF.nodes' element.
func (n *Node) Check(gltf *GLTF) error {
	for _, c := range n.Children {
		if c < 0 || c >= int64(len(gltf.Nodes)) {
			return newErr("invalid Node.Children index")
		}
	}
	if x := n.Mesh; x != nil && (*x < 0 || *x >= int64(len(gltf.Meshes))) {
		return newErr("invalid Node.Mesh index")
	}
	if n.Matrix != nil && (n.Rotation != nil || n.Scale != nil || n.Translation != nil) {
		return newErr("Node.Matrix excludes TRS properties")
	}
	if x := n.Extensions; x != nil && x.KHRLightsPunctual != nil {
		var nl int
		if p := gltf.Extensions; p != nil && p.KHRLightsPunctual != nil {
			nl = len(p.KHRLightsPunctual.Lights)
		}
		if l := x.KHRLightsPunctual.Light; l < 0 || l >= int64(nl) {
			return newErr("invalid NodeLight.Light index")
		}
	}
	return nil
}

// Check checks that l is valid KHR_lights_punctual.lights'
// element.
func (l *Light) Check() error {
	switch l.Type {
	case Ldirectional, Lpoint:
	case Lspot:
		if l.Spot == nil {
			return newErr("missing Light.Spot value")
		}
	default:
		return newErr("invalid Light.Type value")
	}
	if i := l.Intensity; i != nil && *i < 0 {
		return newErr("invalid Light.Intensity value")
	}
	return nil
}
