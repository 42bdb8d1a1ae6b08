package native

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

func (d *Device) CreateSemaphore() (driver.SemaphoreHandle, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(d.Handle, &semaphoreCreateInfo, d.allocator, &semaphore)); err != nil {
		return driver.NullHandle, err
	}
	return driver.SemaphoreHandle(d.semaphores.put(semaphore)), nil
}

func (d *Device) DestroySemaphore(semaphore driver.SemaphoreHandle) {
	if s, ok := d.semaphores.take(uint64(semaphore)); ok {
		vk.DestroySemaphore(d.Handle, s, d.allocator)
	}
}

func (d *Device) CreateFence(signaled bool) (driver.FenceHandle, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(d.Handle, &fenceCreateInfo, d.allocator, &fence)); err != nil {
		return driver.NullHandle, err
	}
	return driver.FenceHandle(d.fences.put(fence)), nil
}

func (d *Device) DestroyFence(fence driver.FenceHandle) {
	if f, ok := d.fences.take(uint64(fence)); ok {
		vk.DestroyFence(d.Handle, f, d.allocator)
	}
}

func (d *Device) WaitForFences(fences []driver.FenceHandle, timeout uint64) driver.Result {
	if len(fences) == 0 {
		return driver.Success
	}
	result := vk.WaitForFences(d.Handle, uint32(len(fences)), lookupAll(d.fences, fences), vk.True, timeout)
	if result != vk.Success && result != vk.Timeout {
		core.LogError("vk_fence_wait - %s", VulkanResultString(result, false))
	}
	return toResult(result)
}

func (d *Device) ResetFences(fences []driver.FenceHandle) error {
	if len(fences) == 0 {
		return nil
	}
	return d.lockPool.SafeCall(SynchronizationManagement, func() error {
		return check("vkResetFences", vk.ResetFences(d.Handle, uint32(len(fences)), lookupAll(d.fences, fences)))
	})
}
