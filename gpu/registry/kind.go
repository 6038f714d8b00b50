// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package registry implements the central table mapping opaque
// handles to live GPU objects (the Object Registry), plus the
// deferred-deletion handoff to whichever component finalizes
// native resources.
package registry

// Kind identifies the concrete type a Handle resolves to.
// It is encoded directly into the handle so that a resolve
// can be type-checked without a dynamic type assertion.
type Kind uint8

const (
	// KindInvalid is the zero Kind; no valid handle ever
	// carries it.
	KindInvalid Kind = iota
	KindBuffer
	KindImage
	KindImageView
	KindBufferTypedView
	KindBufferUntypedView
	KindSampler
	KindShaders
	KindOutput
	KindRenderTarget
)

// String returns a human-readable name for k, used in log
// messages and panics.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindImage:
		return "image"
	case KindImageView:
		return "imageView"
	case KindBufferTypedView:
		return "bufferTypedView"
	case KindBufferUntypedView:
		return "bufferUntypedView"
	case KindSampler:
		return "sampler"
	case KindShaders:
		return "shaders"
	case KindOutput:
		return "output"
	case KindRenderTarget:
		return "renderTarget"
	default:
		return "invalid"
	}
}

// Object is implemented by every type that can be stored in
// the registry.
type Object interface {
	// ObjectKind returns the Kind that handles resolving to
	// this object must carry.
	ObjectKind() Kind
}
