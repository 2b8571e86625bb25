// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Texture indices for geometry records.

package engine

import "sync"

// EmptyTexIndex is the texture index that samples as a
// neutral texel.
const EmptyTexIndex uint32 = 0

// TexSet groups the texture indices of a material, in
// the order albedo-alpha, occlusion-roughness-metallic,
// normal, emissive.
type TexSet [4]uint32

// TextureIndexer resolves material names into texture
// indices.
// The indices refer to a texture table that shaders
// sample from; maintaining that table is outside the
// scope of this package.
type TextureIndexer interface {
	// Indices returns the texture indices of the
	// named material.
	// Unknown names yield a set of EmptyTexIndex.
	Indices(material string) TexSet
}

// TexRegistry is a TextureIndexer backed by a map.
// It is safe for concurrent use.
// The zero value is an empty registry ready to use.
type TexRegistry struct {
	mu sync.RWMutex
	m  map[string]TexSet
}

// Register associates a material name with a set of
// texture indices, replacing any previous association.
func (r *TexRegistry) Register(material string, set TexSet) {
	r.mu.Lock()
	if r.m == nil {
		r.m = make(map[string]TexSet)
	}
	r.m[material] = set
	r.mu.Unlock()
}

// Unregister removes a material name.
func (r *TexRegistry) Unregister(material string) {
	r.mu.Lock()
	delete(r.m, material)
	r.mu.Unlock()
}

// Indices implements TextureIndexer.
func (r *TexRegistry) Indices(material string) TexSet {
	r.mu.RLock()
	set := r.m[material]
	r.mu.RUnlock()
	return set
}

// Len returns the number of registered materials.
func (r *TexRegistry) Len() int {
	r.mu.RLock()
	n := len(r.m)
	r.mu.RUnlock()
	return n
}
