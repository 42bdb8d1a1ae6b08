package driver

// Opaque handles. Zero is always the null handle.
type (
	BufferHandle              uint64
	MemoryHandle              uint64
	DescriptorSetLayoutHandle uint64
	DescriptorPoolHandle      uint64
	DescriptorSetHandle       uint64
	ShaderModuleHandle        uint64
	PipelineLayoutHandle      uint64
	PipelineHandle            uint64
	CommandPoolHandle         uint64
	CommandBufferHandle       uint64
	SemaphoreHandle           uint64
	FenceHandle               uint64
	RenderPassHandle          uint64
	FramebufferHandle         uint64
)

const NullHandle = 0

// NoTimeout waits forever.
const NoTimeout uint64 = ^uint64(0)

type MemoryPropertyFlags uint32

const (
	MemoryPropertyDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryPropertyHostVisible
	MemoryPropertyHostCoherent
	MemoryPropertyHostCached
)

type BufferUsageFlags uint32

const (
	BufferUsageTransferSrc BufferUsageFlags = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
)

type ShaderStageFlags uint32

const (
	ShaderStageVertex ShaderStageFlags = 1 << iota
	ShaderStageTessellationControl
	ShaderStageTessellationEvaluation
	ShaderStageGeometry
	ShaderStageFragment
	ShaderStageCompute

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageTessellationControl |
		ShaderStageTessellationEvaluation | ShaderStageGeometry | ShaderStageFragment
)

type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe PipelineStageFlags = 1 << iota
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageBottomOfPipe
)

type DescriptorType uint32

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
	DescriptorTypeStorageBuffer
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeUniformBuffer:
		return "uniform_buffer"
	case DescriptorTypeStorageBuffer:
		return "storage_buffer"
	}
	return "unknown"
}

type Format uint32

const (
	FormatUndefined Format = iota
	FormatR32Sfloat
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Sfloat
	FormatR32Sint
	FormatR32G32Sint
	FormatR32G32B32Sint
	FormatR32G32B32A32Sint
	FormatR32Uint
	FormatR32G32Uint
	FormatR32G32B32Uint
	FormatR32G32B32A32Uint
	FormatR64Sfloat
	FormatR64G64Sfloat
	FormatR64G64B64Sfloat
	FormatR64G64B64A64Sfloat
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

type VertexInputRate uint32

const (
	VertexInputRateVertex VertexInputRate = iota
	VertexInputRateInstance
)

type PipelineBindPoint uint32

const (
	PipelineBindPointGraphics PipelineBindPoint = iota
	PipelineBindPointCompute
)

type PrimitiveTopology uint32

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyLineStrip
	TopologyPointList
)

type PolygonMode uint32

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

type CullMode uint32

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
	CullModeFrontAndBack
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type CommandBufferUsageFlags uint32

const (
	CommandBufferUsageOneTimeSubmit CommandBufferUsageFlags = 1 << iota
	CommandBufferUsageRenderPassContinue
	CommandBufferUsageSimultaneousUse
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

type BufferCreateInfo struct {
	Size  uint64
	Usage BufferUsageFlags
}

type DescriptorSetLayoutBinding struct {
	Binding    uint32
	Type       DescriptorType
	Count      uint32
	StageFlags ShaderStageFlags
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorBufferInfo struct {
	Buffer BufferHandle
	Offset uint64
	Range  uint64
}

// WriteDescriptorSet updates len(BufferInfos) descriptors starting at
// DstBinding. Descriptors past the end of a binding roll over into the
// following bindings.
type WriteDescriptorSet struct {
	DstSet          DescriptorSetHandle
	DstBinding      uint32
	DstArrayElement uint32
	Type            DescriptorType
	BufferInfos     []DescriptorBufferInfo
}

type PushConstantRange struct {
	StageFlags ShaderStageFlags
	Offset     uint32
	Size       uint32
}

type PipelineLayoutCreateInfo struct {
	SetLayouts         []DescriptorSetLayoutHandle
	PushConstantRanges []PushConstantRange
}

type ShaderStageInfo struct {
	Stage      ShaderStageFlags
	Module     ShaderModuleHandle
	EntryPoint string
}

type VertexBindingDescription struct {
	Binding   uint32
	Stride    uint32
	InputRate VertexInputRate
}

type VertexAttributeDescription struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type RasterState struct {
	Topology    PrimitiveTopology
	PolygonMode PolygonMode
	CullMode    CullMode
	FrontFace   FrontFace
	LineWidth   float32
	DepthTest   bool
	DepthWrite  bool
	Blend       bool
}

type GraphicsPipelineCreateInfo struct {
	Stages     []ShaderStageInfo
	Bindings   []VertexBindingDescription
	Attributes []VertexAttributeDescription
	Raster     RasterState
	Extent     Extent2D
	Layout     PipelineLayoutHandle
	RenderPass RenderPassHandle
	Subpass    uint32
}

type ComputePipelineCreateInfo struct {
	Stage  ShaderStageInfo
	Layout PipelineLayoutHandle
}

type RenderPassBeginInfo struct {
	RenderPass   RenderPassHandle
	Framebuffer  FramebufferHandle
	Extent       Extent2D
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32
}

type SubmitInfo struct {
	WaitSemaphores   []SemaphoreHandle
	WaitStages       []PipelineStageFlags
	CommandBuffers   []CommandBufferHandle
	SignalSemaphores []SemaphoreHandle
}
