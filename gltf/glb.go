// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gltf

import (
	"bytes"
	"encoding/binary"
	"io"
)

// GLB header.
type glbHeader [3]uint32

// Indices in glbHeader.
const (
	headerMagic   = 0
	headerVersion = 1
	headerLength  = 2
)

// GLB chunk.
type (
	glbChunk     [2]uint32
	glbChunkData []byte
)

// Indices in glbChunk.
const (
	chunkLength = 0
	chunkType   = 1
	// Then payload (glbChunkData).
)

const (
	// glbHeader[headerMagic].
	magic = 0x46546c67

	// glbChunk[chunkType].
	typeJSON = 0x4e4f534a
	typeBIN  = 0x004e4942
)

// IsGLB returns whether r refers to a binary glTF (version 2).
// It assumes that r was positioned accordingly.
func IsGLB(r io.Reader) bool {
	var h glbHeader
	err := binary.Read(r, binary.LittleEndian, h[:])
	switch {
	case err != nil, h[headerMagic] != magic, h[headerVersion] != 2:
		return false
	default:
		return true
	}
}

// SeekJSON seeks into r until it finds the beginning
// of the JSON string.
// If successful, it returns the length of the chunk.
// r must refer to an unread GLB blob.
func SeekJSON(r io.Reader) (n int, err error) {
	if !IsGLB(r) {
		err = newErr("not a GLB blob")
		return
	}
	var c glbChunk
	err = binary.Read(r, binary.LittleEndian, c[:])
	switch {
	case err != nil:
	case c[chunkLength] == 0 || c[chunkType] != typeJSON:
		err = newErr("invalid GLB chunk")
	default:
		n = int(c[chunkLength])
	}
	return
}

// DecodeGLB decodes a GLB blob into a new GLTF instance
// plus the embedded binary buffer, if any.
// r must refer to an unread GLB blob.
func DecodeGLB(r io.Reader) (*GLTF, []byte, error) {
	n, err := SeekJSON(r)
	if err != nil {
		return nil, nil, err
	}
	jsonData := make(glbChunkData, n)
	if _, err := io.ReadFull(r, jsonData); err != nil {
		return nil, nil, err
	}
	gltf, err := Decode(bytes.NewReader(jsonData))
	if err != nil {
		return nil, nil, err
	}
	var c glbChunk
	switch err := binary.Read(r, binary.LittleEndian, c[:]); {
	case err == io.EOF:
		// No binary buffer.
		return gltf, nil, nil
	case err != nil:
		return nil, nil, err
	case c[chunkType] != typeBIN:
		return nil, nil, newErr("invalid GLB chunk")
	}
	binData := make(glbChunkData, c[chunkLength])
	if _, err := io.ReadFull(r, binData); err != nil {
		return nil, nil, err
	}
	return gltf, binData, nil
}
