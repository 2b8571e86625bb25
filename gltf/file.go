// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gltf

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// File is a decoded glTF asset with every buffer resolved.
type File struct {
	Doc *GLTF
	bin [][]byte
	dir string
}

// Open opens the glTF or GLB file at path.
// The format is detected from the content, not from the
// file extension.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if IsGLB(bytes.NewReader(data)) {
		doc, bin, err := DecodeGLB(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return NewFile(doc, bin, dir)
	}
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return NewFile(doc, nil, dir)
}

// NewFile creates a File from a decoded document.
// bin is the embedded GLB buffer, or nil. Relative buffer
// URIs resolve against dir.
// The document is checked and every buffer is loaded;
// accessor reads assume valid index references afterwards.
func NewFile(doc *GLTF, bin []byte, dir string) (*File, error) {
	if err := doc.Check(); err != nil {
		return nil, err
	}
	f := &File{
		Doc: doc,
		bin: make([][]byte, len(doc.Buffers)),
		dir: dir,
	}
	for i := range doc.Buffers {
		b := &doc.Buffers[i]
		var data []byte
		var err error
		switch {
		case b.URI == "":
			if i != 0 || bin == nil {
				return nil, newErr("buffer has no URI")
			}
			data = bin
		case strings.HasPrefix(b.URI, "data:"):
			if data, err = decodeDataURI(b.URI); err != nil {
				return nil, err
			}
		default:
			if data, err = os.ReadFile(filepath.Join(dir, b.URI)); err != nil {
				return nil, err
			}
		}
		if int64(len(data)) < b.ByteLength {
			return nil, newErr("buffer shorter than Buffer.ByteLength")
		}
		f.bin[i] = data[:b.ByteLength]
	}
	return f, nil
}

// decodeDataURI decodes an embedded base64 buffer URI.
func decodeDataURI(uri string) ([]byte, error) {
	c := strings.IndexByte(uri, ',')
	if c < 0 {
		return nil, newErr("malformed data URI")
	}
	if !strings.HasSuffix(uri[:c], ";base64") {
		return nil, newErr("data URI is not base64-encoded")
	}
	return base64.StdEncoding.DecodeString(uri[c+1:])
}

// componentSize returns the byte size of a componentType
// value.
func componentSize(ctype int64) int64 {
	switch ctype {
	case BYTE, UNSIGNED_BYTE:
		return 1
	case SHORT, UNSIGNED_SHORT:
		return 2
	case UNSIGNED_INT, FLOAT:
		return 4
	}
	return 0
}

// componentCount returns the number of components of a
// type value.
func componentCount(atype string) int64 {
	switch atype {
	case SCALAR:
		return 1
	case VEC2:
		return 2
	case VEC3:
		return 3
	case VEC4, MAT2:
		return 4
	case MAT3:
		return 9
	case MAT4:
		return 16
	}
	return 0
}

// accessorData returns the tightly packed data of the
// given accessor. Interleaved buffer views are destrided.
func (f *File) accessorData(acc int64) ([]byte, error) {
	a := &f.Doc.Accessors[acc]
	if a.Sparse != nil {
		return nil, newErr("sparse accessors are not supported")
	}
	elem := componentSize(a.ComponentType) * componentCount(a.Type)
	if a.BufferView == nil {
		// Zero-filled per the spec.
		return make([]byte, a.Count*elem), nil
	}
	v := &f.Doc.BufferViews[*a.BufferView]
	data := f.bin[v.Buffer]
	if v.ByteOffset+v.ByteLength > int64(len(data)) {
		return nil, newErr("buffer view range out of bounds")
	}
	stride := elem
	if v.ByteStride > 0 {
		stride = v.ByteStride
	}
	off := v.ByteOffset + a.ByteOffset
	// The last element spans elem bytes, not stride.
	end := off + stride*(a.Count-1) + elem
	if end > v.ByteOffset+v.ByteLength {
		return nil, newErr("accessor range out of bounds")
	}
	if stride == elem {
		return data[off:end], nil
	}
	out := make([]byte, a.Count*elem)
	for i := range a.Count {
		copy(out[i*elem:], data[off+i*stride:][:elem])
	}
	return out, nil
}

// vec3s reads the given accessor as VEC3 FLOAT data.
func (f *File) vec3s(acc int64) ([]mgl32.Vec3, error) {
	a := &f.Doc.Accessors[acc]
	if a.Type != VEC3 || a.ComponentType != FLOAT {
		return nil, newErr("accessor is not VEC3 FLOAT")
	}
	data, err := f.accessorData(acc)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec3, a.Count)
	for i := range out {
		for j := range 3 {
			b := binary.LittleEndian.Uint32(data[(i*3+j)*4:])
			out[i][j] = math.Float32frombits(b)
		}
	}
	return out, nil
}

// vec2s reads the given accessor as VEC2 FLOAT data.
func (f *File) vec2s(acc int64) ([]mgl32.Vec2, error) {
	a := &f.Doc.Accessors[acc]
	if a.Type != VEC2 || a.ComponentType != FLOAT {
		return nil, newErr("accessor is not VEC2 FLOAT")
	}
	data, err := f.accessorData(acc)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec2, a.Count)
	for i := range out {
		for j := range 2 {
			b := binary.LittleEndian.Uint32(data[(i*2+j)*4:])
			out[i][j] = math.Float32frombits(b)
		}
	}
	return out, nil
}

// indices reads the given accessor as SCALAR index data,
// widened to uint32.
func (f *File) indices(acc int64) ([]uint32, error) {
	a := &f.Doc.Accessors[acc]
	if a.Type != SCALAR {
		return nil, newErr("index accessor is not SCALAR")
	}
	data, err := f.accessorData(acc)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, a.Count)
	switch a.ComponentType {
	case UNSIGNED_BYTE:
		for i := range out {
			out[i] = uint32(data[i])
		}
	case UNSIGNED_SHORT:
		for i := range out {
			out[i] = uint32(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case UNSIGNED_INT:
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
	default:
		return nil, newErr("invalid index component type")
	}
	return out, nil
}
