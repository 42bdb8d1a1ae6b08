package vulkan

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

type Fence struct {
	Handle     driver.FenceHandle
	IsSignaled bool

	device driver.SyncDevice
}

func NewFence(device driver.SyncDevice, createSignaled bool) (*Fence, error) {
	handle, err := device.CreateFence(createSignaled)
	if err != nil {
		core.LogError("failed to create fence: %v", err)
		return nil, errors.Wrapf(core.ErrAllocation, "fence: %v", err)
	}
	return &Fence{
		Handle: handle,
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
		device:     device,
	}, nil
}

func (vf *Fence) Destroy() {
	if vf.Handle != driver.NullHandle {
		vf.device.DestroyFence(vf.Handle)
		vf.Handle = driver.NullHandle
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence is signaled or the timeout expires.
func (vf *Fence) Wait(timeoutNs uint64) bool {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return true
	}
	result := vf.device.WaitForFences([]driver.FenceHandle{vf.Handle}, timeoutNs)
	switch result {
	case driver.Success:
		vf.IsSignaled = true
		return true
	case driver.Timeout:
		core.LogWarn("fence wait - Timed out")
	case driver.ErrorDeviceLost:
		core.LogError("fence wait - VK_ERROR_DEVICE_LOST.")
	case driver.ErrorOutOfMemory:
		core.LogError("fence wait - VK_ERROR_OUT_OF_DEVICE_MEMORY.")
	default:
		core.LogError("fence wait - %s", result)
	}
	return false
}

func (vf *Fence) Reset() error {
	if vf.IsSignaled {
		if err := vf.device.ResetFences([]driver.FenceHandle{vf.Handle}); err != nil {
			core.LogError("failed to reset fence: %v", err)
			return errors.Wrapf(core.ErrDevice, "reset fence: %v", err)
		}
		vf.IsSignaled = false
	}
	return nil
}

// Submitted marks the fence as pending: it was handed to a queue submit
// and will be signaled by the device.
func (vf *Fence) Submitted() {
	vf.IsSignaled = false
}
