package native

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

func fromMemoryProperties(flags vk.MemoryPropertyFlagBits) driver.MemoryPropertyFlags {
	var out driver.MemoryPropertyFlags
	if flags&vk.MemoryPropertyDeviceLocalBit != 0 {
		out |= driver.MemoryPropertyDeviceLocal
	}
	if flags&vk.MemoryPropertyHostVisibleBit != 0 {
		out |= driver.MemoryPropertyHostVisible
	}
	if flags&vk.MemoryPropertyHostCoherentBit != 0 {
		out |= driver.MemoryPropertyHostCoherent
	}
	if flags&vk.MemoryPropertyHostCachedBit != 0 {
		out |= driver.MemoryPropertyHostCached
	}
	return out
}

func toBufferUsage(usage driver.BufferUsageFlags) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if usage&driver.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if usage&driver.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	if usage&driver.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if usage&driver.BufferUsageStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if usage&driver.BufferUsageIndex != 0 {
		out |= vk.BufferUsageIndexBufferBit
	}
	if usage&driver.BufferUsageVertex != 0 {
		out |= vk.BufferUsageVertexBufferBit
	}
	return vk.BufferUsageFlags(out)
}

func toShaderStageBits(stages driver.ShaderStageFlags) vk.ShaderStageFlagBits {
	var out vk.ShaderStageFlagBits
	if stages&driver.ShaderStageVertex != 0 {
		out |= vk.ShaderStageVertexBit
	}
	if stages&driver.ShaderStageTessellationControl != 0 {
		out |= vk.ShaderStageTessellationControlBit
	}
	if stages&driver.ShaderStageTessellationEvaluation != 0 {
		out |= vk.ShaderStageTessellationEvaluationBit
	}
	if stages&driver.ShaderStageGeometry != 0 {
		out |= vk.ShaderStageGeometryBit
	}
	if stages&driver.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFragmentBit
	}
	if stages&driver.ShaderStageCompute != 0 {
		out |= vk.ShaderStageComputeBit
	}
	return out
}

func toShaderStages(stages driver.ShaderStageFlags) vk.ShaderStageFlags {
	return vk.ShaderStageFlags(toShaderStageBits(stages))
}

func toPipelineStages(stages driver.PipelineStageFlags) vk.PipelineStageFlags {
	var out vk.PipelineStageFlagBits
	if stages&driver.PipelineStageTopOfPipe != 0 {
		out |= vk.PipelineStageTopOfPipeBit
	}
	if stages&driver.PipelineStageVertexShader != 0 {
		out |= vk.PipelineStageVertexShaderBit
	}
	if stages&driver.PipelineStageFragmentShader != 0 {
		out |= vk.PipelineStageFragmentShaderBit
	}
	if stages&driver.PipelineStageColorAttachmentOutput != 0 {
		out |= vk.PipelineStageColorAttachmentOutputBit
	}
	if stages&driver.PipelineStageComputeShader != 0 {
		out |= vk.PipelineStageComputeShaderBit
	}
	if stages&driver.PipelineStageBottomOfPipe != 0 {
		out |= vk.PipelineStageBottomOfPipeBit
	}
	return vk.PipelineStageFlags(out)
}

func toDescriptorType(t driver.DescriptorType) vk.DescriptorType {
	if t == driver.DescriptorTypeStorageBuffer {
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeUniformBuffer
}

var formats = map[driver.Format]vk.Format{
	driver.FormatR32Sfloat:          vk.FormatR32Sfloat,
	driver.FormatR32G32Sfloat:       vk.FormatR32g32Sfloat,
	driver.FormatR32G32B32Sfloat:    vk.FormatR32g32b32Sfloat,
	driver.FormatR32G32B32A32Sfloat: vk.FormatR32g32b32a32Sfloat,
	driver.FormatR32Sint:            vk.FormatR32Sint,
	driver.FormatR32G32Sint:         vk.FormatR32g32Sint,
	driver.FormatR32G32B32Sint:      vk.FormatR32g32b32Sint,
	driver.FormatR32G32B32A32Sint:   vk.FormatR32g32b32a32Sint,
	driver.FormatR32Uint:            vk.FormatR32Uint,
	driver.FormatR32G32Uint:         vk.FormatR32g32Uint,
	driver.FormatR32G32B32Uint:      vk.FormatR32g32b32Uint,
	driver.FormatR32G32B32A32Uint:   vk.FormatR32g32b32a32Uint,
	driver.FormatR64Sfloat:          vk.FormatR64Sfloat,
	driver.FormatR64G64Sfloat:       vk.FormatR64g64Sfloat,
	driver.FormatR64G64B64Sfloat:    vk.FormatR64g64b64Sfloat,
	driver.FormatR64G64B64A64Sfloat: vk.FormatR64g64b64a64Sfloat,
}

func toFormat(f driver.Format) vk.Format {
	if format, ok := formats[f]; ok {
		return format
	}
	return vk.FormatUndefined
}

func toIndexType(t driver.IndexType) vk.IndexType {
	if t == driver.IndexTypeUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func toInputRate(rate driver.VertexInputRate) vk.VertexInputRate {
	if rate == driver.VertexInputRateInstance {
		return vk.VertexInputRateInstance
	}
	return vk.VertexInputRateVertex
}

func toBindPoint(bp driver.PipelineBindPoint) vk.PipelineBindPoint {
	if bp == driver.PipelineBindPointCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func toTopology(t driver.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case driver.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case driver.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case driver.TopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case driver.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func toPolygonMode(m driver.PolygonMode) vk.PolygonMode {
	switch m {
	case driver.PolygonModeLine:
		return vk.PolygonModeLine
	case driver.PolygonModePoint:
		return vk.PolygonModePoint
	}
	return vk.PolygonModeFill
}

func toCullMode(m driver.CullMode) vk.CullModeFlags {
	switch m {
	case driver.CullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case driver.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case driver.CullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func toFrontFace(f driver.FrontFace) vk.FrontFace {
	if f == driver.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func toCommandBufferUsage(flags driver.CommandBufferUsageFlags) vk.CommandBufferUsageFlags {
	var out vk.CommandBufferUsageFlagBits
	if flags&driver.CommandBufferUsageOneTimeSubmit != 0 {
		out |= vk.CommandBufferUsageOneTimeSubmitBit
	}
	if flags&driver.CommandBufferUsageRenderPassContinue != 0 {
		out |= vk.CommandBufferUsageRenderPassContinueBit
	}
	if flags&driver.CommandBufferUsageSimultaneousUse != 0 {
		out |= vk.CommandBufferUsageSimultaneousUseBit
	}
	return vk.CommandBufferUsageFlags(out)
}
