package gbm

import (
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
)

//go:generate mockgen -source backend.go -destination ./mocks/backend.go

// Backend performs the physical operations behind a Device. Every method is called synchronously
// by the Device, and the Device's registry lock is held across ImportPlane, Destroy, Map and Unmap,
// so backends must not call back into the Device.
type Backend interface {
	Name() string
	// Init registers the combinations the backend can produce
	Init(table *caps.Table) error
	Close() error

	// Create allocates memory for a buffer with the provided modifier. It fills in the layout of
	// meta and returns one handle per plane.
	Create(meta *Metadata, modifier uint64) ([]Handle, error)
	// CreateWithModifiers is Create for callers that offer a list of acceptable modifiers. The
	// backend picks one with caps.PickModifier and records it in meta.
	CreateWithModifiers(meta *Metadata, modifiers []uint64) ([]Handle, error)
	// ImportPlane converts the file descriptor of one plane into a handle. Importing memory the
	// backend already holds a handle for must return that handle.
	ImportPlane(meta *Metadata, plane int, fd int) (Handle, error)
	// Destroy releases handles. It is called once per handle, when no buffer object references it anymore.
	Destroy(handles []Handle) error

	// Map maps the handle that a plane lives in. The returned memory starts at offset 0 of the handle.
	// Backends may record a length or private data in vma.
	Map(bo *BufferObject, vma *VMA, plane int, flags MapFlags) ([]byte, error)
	Unmap(vma *VMA) error
	// ExportHandle creates a new file descriptor referencing the handle's memory
	ExportHandle(handle Handle) (int, error)

	// ResolveFormatAndUse converts flexible formats into concrete ones and strips usage the
	// resolved format cannot serve
	ResolveFormatAndUse(f format.FourCC, use caps.UseFlags) (format.FourCC, caps.UseFlags)
}

// Flusher is implemented by backends whose CPU writes must be pushed to the device
type Flusher interface {
	Flush(bo *BufferObject, mapping *Mapping) error
}

// Invalidator is implemented by backends whose CPU caches must be refreshed before reads
type Invalidator interface {
	Invalidate(bo *BufferObject, mapping *Mapping) error
}

// PlaneCounter is implemented by backends whose modifiers carry extra planes, such as
// compression metadata
type PlaneCounter interface {
	NumPlanesForModifier(f format.FourCC, modifier uint64) int
}

// DefaultResolver implements the format resolution shared by most backends. Embed it in a
// backend to satisfy Backend.ResolveFormatAndUse.
type DefaultResolver struct {
	// ImplementationDefinedFallback is the format that format.FlexImplementationDefined resolves to
	// outside of camera usage. format.XBGR8888 is used when it is left zero.
	ImplementationDefinedFallback format.FourCC
}

func (r DefaultResolver) ResolveFormatAndUse(f format.FourCC, use caps.UseFlags) (format.FourCC, caps.UseFlags) {
	switch f {
	case format.FlexImplementationDefined:
		if use&(caps.UseCameraRead|caps.UseCameraWrite) != 0 {
			return format.NV12, use
		}

		fallback := r.ImplementationDefinedFallback
		if fallback == 0 {
			fallback = format.XBGR8888
		}
		// Video encoders cannot consume the RGB fallback
		return fallback, use &^ caps.UseHWVideoEncoder
	case format.FlexYCbCr420888:
		return format.NV12, use
	case format.YVU420Android:
		// YV12 is never presented directly
		return f, use &^ caps.UseScanout
	}

	return f, use
}
