// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package sector implements the persisted Compiled Sector,
// Compiled Scene and Island container formats (spec.md §6),
// modeled directly on gltf.Unpack/Pack's chunked binary
// container: a fourCC-tagged header followed by a
// length-prefixed JSON chunk (the island tree's metadata) and
// an optional length-prefixed BIN chunk (the concatenated,
// still-LZ4HC-compressed entity blobs every island's Packed
// field slices into).
package sector

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"

	"github.com/gviegas/forge/linear"
	"github.com/gviegas/forge/streaming"
)

// Magic fourCC tags, mirroring gltf.glb's "glTF"/"JSON"/"BIN ".
const (
	magicSector uint32 = 0x52544353 // "SCTR"
	magicScene  uint32 = 0x4e435353 // "SSCN"
	chunkJSON   uint32 = 0x4e4f534a // "JSON"
	chunkBIN    uint32 = 0x004e4942 // "BIN\0"
)

var errBadContainer = errors.New("sector: malformed container")

// header mirrors gltf's glbHeader: magic, version, total length.
type header [3]uint32

const (
	hMagic   = 0
	hVersion = 1
	hLength  = 2
)

// chunk mirrors gltf's glbChunk: length then type, then payload.
type chunk [2]uint32

const (
	cLength = 0
	cType   = 1
)

// Node is one island in a Compiled Sector's tree, as persisted:
// always-loaded flag, streaming box, entity count, and a
// length+offset pair into the sibling BIN chunk rather than the
// blob itself (spec.md §6 Island format), plus nested children.
type Node struct {
	AlwaysLoaded bool          `json:"alwaysLoaded,omitempty"`
	Box          linear.Box3   `json:"box"`
	EntityCount  int           `json:"entityCount"`
	BlobOffset   int           `json:"blobOffset"`
	BlobLength   int           `json:"blobLength"`
	UnpackedSize int           `json:"unpackedSize"`
	Children     []*Node       `json:"children,omitempty"`
}

// CompiledSector is one baked sector: a streaming box and the
// forest of islands it contains (spec.md §6 "Compiled sector").
type CompiledSector struct {
	Box     linear.Box3 `json:"box"`
	Islands []*Node     `json:"islands"`
}

// StreamingCell is one entry of a Compiled Scene: a streaming
// box paired with the sector file it references.
type StreamingCell struct {
	Box       linear.Box3 `json:"box"`
	SectorRef string      `json:"sectorRef"`
}

// CompiledScene is the top-level persisted format: the set of
// streaming cells a runtime walks to find which sector files to
// stream in (spec.md §6 "Compiled scene").
type CompiledScene struct {
	Cells []StreamingCell `json:"streamingCells"`
}

// EncodeSector writes sec to w in the chunked container format.
func EncodeSector(w io.Writer, sec *CompiledSector, blob []byte) error {
	return encode(w, magicSector, sec, blob)
}

// DecodeSector reads a Compiled Sector container from r.
func DecodeSector(r io.Reader) (sec *CompiledSector, blob []byte, err error) {
	sec = &CompiledSector{}
	blob, err = decode(r, magicSector, sec)
	return
}

// EncodeScene writes scn to w in the chunked container format.
// A Compiled Scene has no associated blob chunk.
func EncodeScene(w io.Writer, scn *CompiledScene) error {
	return encode(w, magicScene, scn, nil)
}

// DecodeScene reads a Compiled Scene container from r.
func DecodeScene(r io.Reader) (scn *CompiledScene, err error) {
	scn = &CompiledScene{}
	_, err = decode(r, magicScene, scn)
	return
}

func encode(w io.Writer, magic uint32, v any, blob []byte) error {
	var jb bytes.Buffer
	if err := json.NewEncoder(&jb).Encode(v); err != nil {
		return err
	}
	// json.Encoder appends a trailing newline; pad to a 4-byte
	// boundary with spaces exactly as gltf.Pack does for its
	// JSON chunk.
	jn := jb.Len() - 1
	buf := jb.Bytes()[:jn]
	for pad := jn % 4; pad != 0 && pad != 4; pad++ {
		buf = append(buf, 0x20)
	}
	jn = len(buf)

	h := header{hMagic: magic, hVersion: 1}
	jc := chunk{cLength: uint32(jn), cType: chunkJSON}
	length := uint32(12 + 8 + jn)

	var bc chunk
	bn := len(blob)
	if bn > 0 {
		pad := bn % 4
		if pad == 0 {
			pad = 4
		}
		bc = chunk{cLength: uint32(bn + 4 - pad), cType: chunkBIN}
		length += 8 + bc[cLength]
	}
	h[hLength] = length

	if err := binary.Write(w, binary.LittleEndian, h[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, jc[:]); err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if bn == 0 {
		return nil
	}
	if err := binary.Write(w, binary.LittleEndian, bc[:]); err != nil {
		return err
	}
	if _, err := w.Write(blob); err != nil {
		return err
	}
	pad := int(bc[cLength]) - bn
	_, err := w.Write(make([]byte, pad))
	return err
}

func decode(r io.Reader, wantMagic uint32, v any) (blob []byte, err error) {
	var h header
	if err = binary.Read(r, binary.LittleEndian, h[:]); err != nil {
		return
	}
	if h[hMagic] != wantMagic || h[hVersion] != 1 {
		err = errBadContainer
		return
	}
	var jc chunk
	if err = binary.Read(r, binary.LittleEndian, jc[:]); err != nil {
		return
	}
	if jc[cType] != chunkJSON {
		err = errBadContainer
		return
	}
	jsonBuf := make([]byte, jc[cLength])
	if _, err = io.ReadFull(r, jsonBuf); err != nil {
		return
	}
	if err = json.Unmarshal(jsonBuf, v); err != nil {
		return
	}
	var bc chunk
	if err = binary.Read(r, binary.LittleEndian, bc[:]); err != nil {
		if err == io.EOF {
			err = nil
		}
		return
	}
	if bc[cType] != chunkBIN {
		err = errBadContainer
		return
	}
	blob = make([]byte, bc[cLength])
	_, err = io.ReadFull(r, blob)
	return
}

// Flatten walks a Compiled Sector's island forest in pre-order
// and returns streaming.Engine-ready islands: a flat array in
// which every parent's index precedes its children's (the
// ordering streaming/task's load pass relies on - see
// DESIGN.md), with each Node's blob slice resolved against blob.
func Flatten(sec *CompiledSector, blob []byte) []streaming.Island {
	var out []streaming.Island
	var walk func(n *Node, parent streaming.Index) streaming.Index
	walk = func(n *Node, parent streaming.Index) streaming.Index {
		idx := streaming.Index(len(out))
		var packed []byte
		if n.BlobLength > 0 {
			packed = blob[n.BlobOffset : n.BlobOffset+n.BlobLength]
		}
		out = append(out, streaming.Island{
			Box:          n.Box,
			AlwaysLoaded: n.AlwaysLoaded,
			EntityCount:  n.EntityCount,
			Packed:       packed,
			UnpackedSize: n.UnpackedSize,
			Parent:       parent,
		})
		children := make([]streaming.Index, 0, len(n.Children))
		for _, c := range n.Children {
			children = append(children, walk(c, idx))
		}
		out[idx].Children = children
		return idx
	}
	for _, root := range sec.Islands {
		walk(root, streaming.NilIndex)
	}
	return out
}
