package driver

import (
	"github.com/cockroachdb/errors"
)

// Result mirrors the subset of VkResult codes the frame loop reacts to.
type Result int32

const (
	Success Result = iota
	NotReady
	Timeout
	Suboptimal
	ErrorOutOfDate
	ErrorSurfaceLost
	ErrorDeviceLost
	ErrorOutOfMemory
	ErrorUnknown
)

func (r Result) String() string {
	switch r {
	case Success:
		return "VK_SUCCESS Command successfully completed"
	case NotReady:
		return "VK_NOT_READY A fence or query has not yet completed"
	case Timeout:
		return "VK_TIMEOUT A wait operation has not completed in the specified time"
	case Suboptimal:
		return "VK_SUBOPTIMAL_KHR A swapchain no longer matches the surface properties exactly, but can still be used to present to the surface successfully."
	case ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR A surface has changed in such a way that it is no longer compatible with the swapchain, and further presentation requests using the swapchain will fail."
	case ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR A surface is no longer available."
	case ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST The logical or physical device has been lost."
	case ErrorOutOfMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY A device memory allocation has failed."
	}
	return "VK_ERROR_UNKNOWN An unknown error has occurred."
}

// IsSuccess reports whether the result allows the caller to carry on.
// Suboptimal counts as success.
func (r Result) IsSuccess() bool {
	return r == Success || r == Suboptimal
}

// Err converts failure codes into an error carrying the result string.
// Success and Suboptimal return nil.
func (r Result) Err() error {
	if r.IsSuccess() {
		return nil
	}
	return errors.Newf("vulkan: %s", r.String())
}
