// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package registry

// Handle is an opaque object reference: {index: 24, generation:
// 32, kind: 8}. It is never reused across generations, so a
// resolve against a stale generation yields a miss rather than
// a different, newly-allocated object.
type Handle uint64

// Nil is the invalid handle; no registered object ever has it.
const Nil Handle = 0

const (
	indexBits      = 24
	generationBits = 32
	indexMask      = 1<<indexBits - 1
	generationMask = 1<<generationBits - 1
)

func newHandle(index uint32, generation uint32, kind Kind) Handle {
	return Handle(uint64(kind)<<(indexBits+generationBits) |
		uint64(generation&generationMask)<<indexBits |
		uint64(index&indexMask))
}

// Index returns the registry slot index encoded in h.
func (h Handle) Index() uint32 { return uint32(h) & indexMask }

// Generation returns the generation counter encoded in h.
func (h Handle) Generation() uint32 {
	return uint32(h>>indexBits) & generationMask
}

// Kind returns the object kind encoded in h.
func (h Handle) Kind() Kind { return Kind(h >> (indexBits + generationBits)) }

// IsNil reports whether h is the invalid handle.
func (h Handle) IsNil() bool { return h == Nil }

// String renders h for logging.
func (h Handle) String() string {
	if h.IsNil() {
		return "<nil handle>"
	}
	return h.Kind().String() + "#" + itoa(h.Index()) + "." + itoa(h.Generation())
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
