// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package gltfload implements streaming.Loader by decompressing
// an Island's LZ4HC blob and decoding it as a glTF document
// (gltf.Unpack), one glTF node becoming one scene.Entity. This
// is the concrete wiring for the "resource factory /
// serialization" collaborator spec.md places out of scope
// (§1, §6): streaming itself never parses entity formats, it
// only calls this Loader.
package gltfload

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/gviegas/forge/gltf"
	"github.com/gviegas/forge/linear"
	"github.com/gviegas/forge/logctx"
	"github.com/gviegas/forge/scene"
	"github.com/gviegas/forge/streaming"
)

var log = logctx.New("streaming/gltfload")

// Loader decodes islands packed as LZ4HC-compressed GLB blobs.
type Loader struct{}

// Load implements streaming.Loader.
func (Loader) Load(isl *streaming.Island) (*streaming.IslandInstance, error) {
	raw, err := decompress(isl.Packed, isl.UnpackedSize)
	if err != nil {
		log.Errorf("decompressing island blob: %v", err)
		return nil, fmt.Errorf("%w: %v", streaming.ErrDecode, err)
	}
	doc, _, err := gltf.Unpack(bytes.NewReader(raw))
	if err != nil {
		log.Errorf("unpacking island glTF: %v", err)
		return nil, fmt.Errorf("%w: %v", streaming.ErrDecode, err)
	}
	return toInstance(doc), nil
}

func decompress(compressed []byte, sizeHint int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := io.Copy(out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// toInstance builds one scene.Entity per glTF node plus a
// synthetic Root entity. streaming/task's Apply attaches every
// entity in the returned instance (Root included) directly
// under the parent island's own Root, as one flat group,
// regardless of the glTF node graph's own Children nesting
// (spec.md §3 Island Instance, §4.8 invariant "an island's
// entities are attached as a group"); Root exists only so this
// island's own children have something to attach under.
func toInstance(doc *gltf.GLTF) *streaming.IslandInstance {
	root := scene.NewEntity("")
	ents := make([]*scene.Entity, 0, len(doc.Nodes)+1)
	ents = append(ents, root)
	for _, n := range doc.Nodes {
		e := scene.NewEntity(n.Name)
		e.SetLocal(nodeLocal(&n))
		ents = append(ents, e)
	}
	return &streaming.IslandInstance{Root: root, Entities: ents}
}

// nodeLocal converts a glTF node's TRS (or matrix) fields into
// the engine's column-major M4, defaulting to identity/zero
// scale-rotation or translation for any field the node leaves
// unset (per the glTF 2.0 spec's stated defaults, mirrored in
// the Node doc comments in gltf/gltf.go).
func nodeLocal(n *gltf.Node) linear.M4 {
	var m linear.M4
	if n.Matrix != nil {
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				m[i][j] = n.Matrix[i*4+j]
			}
		}
		return m
	}
	var rot linear.M3
	if n.Rotation != nil {
		q := linear.Q{V: linear.V3{n.Rotation[0], n.Rotation[1], n.Rotation[2]}, R: n.Rotation[3]}
		rot.Rotation(&q)
	} else {
		rot.I()
	}
	scale := linear.V3{1, 1, 1}
	if n.Scale != nil {
		scale = linear.V3(*n.Scale)
	}
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			m[col][row] = rot[col][row] * scale[col]
		}
	}
	m[3][3] = 1
	if n.Translation != nil {
		t := n.Translation
		m[3][0] = t[0]
		m[3][1] = t[1]
		m[3][2] = t[2]
	}
	return m
}
