package native

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

// CreateCommandPool creates a pool on the graphics family whose buffers
// can be reset one by one, which vkBeginCommandBuffer then does implicitly.
func (d *Device) CreateCommandPool() (driver.CommandPoolHandle, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.Physical.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(d.Handle, &poolCreateInfo, d.allocator, &pool)); err != nil {
		return driver.NullHandle, err
	}
	return driver.CommandPoolHandle(d.commandPools.put(pool)), nil
}

func (d *Device) DestroyCommandPool(pool driver.CommandPoolHandle) {
	if p, ok := d.commandPools.take(uint64(pool)); ok {
		_ = d.lockPool.SafeCall(CommandPoolManagement, func() error {
			vk.DestroyCommandPool(d.Handle, p, d.allocator)
			return nil
		})
	}
}

func (d *Device) AllocateCommandBuffers(pool driver.CommandPoolHandle, count uint32) ([]driver.CommandBufferHandle, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPools.lookup(uint64(pool)),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	buffers := make([]vk.CommandBuffer, count)
	if err := d.lockPool.SafeCall(CommandPoolManagement, func() error {
		return check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.Handle, &allocateInfo, buffers))
	}); err != nil {
		return nil, err
	}
	handles := make([]driver.CommandBufferHandle, count)
	for i, cb := range buffers {
		handles[i] = driver.CommandBufferHandle(d.commandBuffers.put(cb))
	}
	return handles, nil
}

func (d *Device) FreeCommandBuffers(pool driver.CommandPoolHandle, buffers []driver.CommandBufferHandle) {
	var live []vk.CommandBuffer
	for _, h := range buffers {
		if cb, ok := d.commandBuffers.take(uint64(h)); ok {
			live = append(live, cb)
		}
	}
	if len(live) == 0 {
		return
	}
	_ = d.lockPool.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.Handle, d.commandPools.lookup(uint64(pool)), uint32(len(live)), live)
		return nil
	})
}

func (d *Device) BeginCommandBuffer(cb driver.CommandBufferHandle, flags driver.CommandBufferUsageFlags) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: toCommandBufferUsage(flags),
	}
	return check("vkBeginCommandBuffer", vk.BeginCommandBuffer(d.commandBuffers.lookup(uint64(cb)), beginInfo))
}

func (d *Device) EndCommandBuffer(cb driver.CommandBufferHandle) error {
	return check("vkEndCommandBuffer", vk.EndCommandBuffer(d.commandBuffers.lookup(uint64(cb))))
}

func (d *Device) CmdBeginRenderPass(cb driver.CommandBufferHandle, info driver.RenderPassBeginInfo) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPasses.lookup(uint64(info.RenderPass)),
		Framebuffer: d.framebuffers.lookup(uint64(info.Framebuffer)),
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		},
	}

	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor(info.ClearColor[:])
	clearValues[1].SetDepthStencil(info.ClearDepth, info.ClearStencil)

	beginInfo.ClearValueCount = 2
	beginInfo.PClearValues = clearValues

	vk.CmdBeginRenderPass(d.commandBuffers.lookup(uint64(cb)), &beginInfo, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(cb driver.CommandBufferHandle) {
	vk.CmdEndRenderPass(d.commandBuffers.lookup(uint64(cb)))
}

// CmdSetViewport flips the viewport so clip space y points up, which
// matches the projection matrices built with mathgl.
func (d *Device) CmdSetViewport(cb driver.CommandBufferHandle, extent driver.Extent2D) {
	viewport := vk.Viewport{
		X:        0.0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(d.commandBuffers.lookup(uint64(cb)), 0, 1, []vk.Viewport{viewport})
}

func (d *Device) CmdSetScissor(cb driver.CommandBufferHandle, extent driver.Extent2D) {
	scissor := vk.Rect2D{
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetScissor(d.commandBuffers.lookup(uint64(cb)), 0, 1, []vk.Rect2D{scissor})
}

func (d *Device) CmdBindPipeline(cb driver.CommandBufferHandle, bindPoint driver.PipelineBindPoint, pipeline driver.PipelineHandle) {
	vk.CmdBindPipeline(d.commandBuffers.lookup(uint64(cb)), toBindPoint(bindPoint), d.pipelines.lookup(uint64(pipeline)))
}

func (d *Device) CmdBindDescriptorSets(cb driver.CommandBufferHandle, bindPoint driver.PipelineBindPoint, layout driver.PipelineLayoutHandle, firstSet uint32, sets []driver.DescriptorSetHandle) {
	vk.CmdBindDescriptorSets(
		d.commandBuffers.lookup(uint64(cb)),
		toBindPoint(bindPoint),
		d.pipelineLayouts.lookup(uint64(layout)),
		firstSet,
		uint32(len(sets)),
		lookupAll(d.descriptorSets, sets),
		0, nil)
}

func (d *Device) CmdBindVertexBuffers(cb driver.CommandBufferHandle, firstBinding uint32, buffers []driver.BufferHandle, offsets []uint64) {
	vkOffsets := make([]vk.DeviceSize, len(offsets))
	for i, o := range offsets {
		vkOffsets[i] = vk.DeviceSize(o)
	}
	vk.CmdBindVertexBuffers(d.commandBuffers.lookup(uint64(cb)), firstBinding, uint32(len(buffers)), lookupAll(d.buffers, buffers), vkOffsets)
}

func (d *Device) CmdBindIndexBuffer(cb driver.CommandBufferHandle, buffer driver.BufferHandle, offset uint64, indexType driver.IndexType) {
	vk.CmdBindIndexBuffer(d.commandBuffers.lookup(uint64(cb)), d.buffers.lookup(uint64(buffer)), vk.DeviceSize(offset), toIndexType(indexType))
}

func (d *Device) CmdDrawIndexed(cb driver.CommandBufferHandle, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(d.commandBuffers.lookup(uint64(cb)), indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (d *Device) CmdDispatch(cb driver.CommandBufferHandle, x, y, z uint32) {
	vk.CmdDispatch(d.commandBuffers.lookup(uint64(cb)), x, y, z)
}
