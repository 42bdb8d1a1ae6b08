package core

import (
	"github.com/cockroachdb/errors"
)

// Errors returned by the renderer core. Call sites wrap them with context,
// so compare with errors.Is.
var (
	// ErrAllocation is fatal: no memory type satisfies the request or the
	// device refused an allocation.
	ErrAllocation = errors.New("gpu allocation failed")

	// ErrSizeMismatch is returned when a host write does not match the
	// addressed range of a buffer.
	ErrSizeMismatch   = errors.New("size mismatch")
	ErrOutOfRange     = errors.New("index out of range")
	ErrNotHostVisible = errors.New("buffer is not host visible")
	ErrReleased       = errors.New("resource already released")

	ErrEmptyBinding    = errors.New("empty descriptor binding")
	ErrLayoutMismatch  = errors.New("shader references a slot absent from the layout")
	ErrVertexFormat    = errors.New("invalid vertex input format")
	ErrSetFinalized    = errors.New("descriptor set already finalized")
	ErrBindingKind     = errors.New("buffer usage does not match descriptor kind")
	ErrPartialRerecord = errors.New("partial re-recording is not supported, re-record all frame slots")
	ErrUnknownName     = errors.New("unknown name")

	// ErrNotReady is transient and never leaves the frame loop.
	ErrNotReady           = errors.New("swapchain image not ready")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrStopped            = errors.New("frame loop stopped")
	ErrDevice             = errors.New("device call failed")
	ErrSwapchainBooting   = errors.New("swapchain resized or recreated, booting")
	ErrUnknown            = errors.New("unknown")
)
