package native

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

// Queue is one device queue. Calls are serialized per queue family through
// the device lock pool.
type Queue struct {
	Handle vk.Queue
	Family uint32

	device *Device
}

var _ driver.Queue = (*Queue)(nil)

func (q *Queue) Submit(infos []driver.SubmitInfo, fence driver.FenceHandle) error {
	d := q.device
	submits := make([]vk.SubmitInfo, len(infos))
	for i, info := range infos {
		stages := make([]vk.PipelineStageFlags, len(info.WaitStages))
		for j, s := range info.WaitStages {
			stages[j] = toPipelineStages(s)
		}
		submits[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(info.WaitSemaphores)),
			PWaitSemaphores:      lookupAll(d.semaphores, info.WaitSemaphores),
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(info.CommandBuffers)),
			PCommandBuffers:      lookupAll(d.commandBuffers, info.CommandBuffers),
			SignalSemaphoreCount: uint32(len(info.SignalSemaphores)),
			PSignalSemaphores:    lookupAll(d.semaphores, info.SignalSemaphores),
		}
	}

	vkFence := vk.NullFence
	if fence != driver.NullHandle {
		vkFence = d.fences.lookup(uint64(fence))
	}
	return d.lockPool.SafeQueueCall(q.Family, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(q.Handle, uint32(len(submits)), submits, vkFence))
	})
}

func (q *Queue) WaitIdle() error {
	return q.device.lockPool.SafeQueueCall(q.Family, func() error {
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(q.Handle))
	})
}
