// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package objcache implements the Object Cache: a set of
// content-addressed maps for derived GPU objects (vertex
// layouts, descriptor binding maps, shader programs and
// bundles, samplers, pipelines) that are expensive to rebuild
// but cheap to key by the structure that produced them. The
// cache never evicts; every entry lives for the lifetime of
// the Device.
package objcache

import "hash/fnv"

// Hash is a content key for a cached entry, computed from a
// canonical byte encoding of whatever structure produced it.
// Two distinct inputs are permitted to collide in principle
// (Hash is 64 bits), mirroring the same acceptance of
// collision risk made by every hash-keyed cache in the source
// this system is modeled on; in practice the odds are
// negligible for the number of distinct layouts/bundles a
// single process ever creates.
type Hash uint64

// hasher accumulates a canonical byte stream and folds it
// into a Hash with FNV-1a, the standard library's lightweight
// non-cryptographic hash.
type hasher struct {
	h uint64
}

func newHasher() *hasher {
	f := fnv.New64a()
	return &hasher{h: f.Sum64()}
}

func (h *hasher) writeString(s string) *hasher {
	f := fnv.New64a()
	f.Write(uint64Bytes(h.h))
	f.Write([]byte(s))
	h.h = f.Sum64()
	return h
}

func (h *hasher) writeUint64(v uint64) *hasher {
	f := fnv.New64a()
	f.Write(uint64Bytes(h.h))
	f.Write(uint64Bytes(v))
	h.h = f.Sum64()
	return h
}

func (h *hasher) writeBytes(b []byte) *hasher {
	f := fnv.New64a()
	f.Write(uint64Bytes(h.h))
	f.Write(b)
	h.h = f.Sum64()
	return h
}

func (h *hasher) sum() Hash { return Hash(h.h) }

func uint64Bytes(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

// HashBytes computes the content hash of a raw blob, used for
// shader-stage blobs keyed directly by their compressed bytes.
func HashBytes(b []byte) Hash {
	f := fnv.New64a()
	f.Write(b)
	return Hash(f.Sum64())
}
