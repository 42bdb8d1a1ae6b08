// Package driver is the seam between the renderer core and a concrete GPU
// API. The core only ever talks to these interfaces, each component asking
// for the narrowest one it needs.
package driver

type MemoryDevice interface {
	MemoryTypes() []MemoryType
	NonCoherentAtomSize() uint64

	CreateBuffer(info BufferCreateInfo) (BufferHandle, error)
	DestroyBuffer(buffer BufferHandle)
	BufferMemoryRequirements(buffer BufferHandle) MemoryRequirements

	AllocateMemory(size uint64, memoryTypeIndex uint32) (MemoryHandle, error)
	FreeMemory(memory MemoryHandle)
	BindBufferMemory(buffer BufferHandle, memory MemoryHandle, offset uint64) error
	// MapMemory returns a byte view of the mapped range. The slice is only
	// valid until UnmapMemory.
	MapMemory(memory MemoryHandle, offset, size uint64) ([]byte, error)
	UnmapMemory(memory MemoryHandle)
	FlushMappedMemory(memory MemoryHandle, offset, size uint64) error
	InvalidateMappedMemory(memory MemoryHandle, offset, size uint64) error
}

type DescriptorDevice interface {
	CreateDescriptorSetLayout(bindings []DescriptorSetLayoutBinding) (DescriptorSetLayoutHandle, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayoutHandle)
	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPoolHandle, error)
	DestroyDescriptorPool(pool DescriptorPoolHandle)
	AllocateDescriptorSets(pool DescriptorPoolHandle, layouts []DescriptorSetLayoutHandle) ([]DescriptorSetHandle, error)
	UpdateDescriptorSets(writes []WriteDescriptorSet)
}

type PipelineDevice interface {
	CreateShaderModule(code []byte) (ShaderModuleHandle, error)
	DestroyShaderModule(module ShaderModuleHandle)
	CreatePipelineLayout(info PipelineLayoutCreateInfo) (PipelineLayoutHandle, error)
	DestroyPipelineLayout(layout PipelineLayoutHandle)
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (PipelineHandle, error)
	CreateComputePipeline(info ComputePipelineCreateInfo) (PipelineHandle, error)
	DestroyPipeline(pipeline PipelineHandle)
}

// CommandRecorder records into a command buffer that is in the recording
// state.
type CommandRecorder interface {
	BeginCommandBuffer(cb CommandBufferHandle, flags CommandBufferUsageFlags) error
	EndCommandBuffer(cb CommandBufferHandle) error

	CmdBeginRenderPass(cb CommandBufferHandle, info RenderPassBeginInfo)
	CmdEndRenderPass(cb CommandBufferHandle)
	CmdSetViewport(cb CommandBufferHandle, extent Extent2D)
	CmdSetScissor(cb CommandBufferHandle, extent Extent2D)
	CmdBindPipeline(cb CommandBufferHandle, bindPoint PipelineBindPoint, pipeline PipelineHandle)
	CmdBindDescriptorSets(cb CommandBufferHandle, bindPoint PipelineBindPoint, layout PipelineLayoutHandle, firstSet uint32, sets []DescriptorSetHandle)
	CmdBindVertexBuffers(cb CommandBufferHandle, firstBinding uint32, buffers []BufferHandle, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBufferHandle, buffer BufferHandle, offset uint64, indexType IndexType)
	CmdDrawIndexed(cb CommandBufferHandle, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDispatch(cb CommandBufferHandle, x, y, z uint32)
}

type CommandDevice interface {
	// CreateCommandPool creates a pool whose buffers are reset implicitly
	// when recording begins again.
	CreateCommandPool() (CommandPoolHandle, error)
	DestroyCommandPool(pool CommandPoolHandle)
	AllocateCommandBuffers(pool CommandPoolHandle, count uint32) ([]CommandBufferHandle, error)
	FreeCommandBuffers(pool CommandPoolHandle, buffers []CommandBufferHandle)
	CommandRecorder
}

type SyncDevice interface {
	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(semaphore SemaphoreHandle)
	CreateFence(signaled bool) (FenceHandle, error)
	DestroyFence(fence FenceHandle)
	WaitForFences(fences []FenceHandle, timeout uint64) Result
	ResetFences(fences []FenceHandle) error
	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error
}

type Queue interface {
	Submit(infos []SubmitInfo, fence FenceHandle) error
	WaitIdle() error
}

// Presenter hands out presentable images. Implementations classify
// outcomes with Result instead of returning errors, so the frame loop can
// tell transient states from failures.
type Presenter interface {
	ImageCount() int
	Extent() Extent2D
	AcquireNextImage(timeout uint64, signal SemaphoreHandle) (uint32, Result)
	Present(imageIndex uint32, wait []SemaphoreHandle) Result
}

type Device interface {
	MemoryDevice
	DescriptorDevice
	PipelineDevice
	CommandDevice
	SyncDevice
}
