package native

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

// NOTE: 32 is the max number of ranges we can ever have, since Vulkan only
// guarantees 128 bytes with 4-byte alignment.
const maxPushConstantRanges = 32

func (d *Device) CreateShaderModule(code []byte) (driver.ShaderModuleHandle, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return driver.NullHandle, errors.Newf("shader module: code size %d is not a multiple of 4", len(code))
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    spirvWords(code),
	}
	var module vk.ShaderModule
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(d.Handle, &createInfo, d.allocator, &module)); err != nil {
		return driver.NullHandle, err
	}
	return driver.ShaderModuleHandle(d.shaderModules.put(module)), nil
}

func (d *Device) DestroyShaderModule(module driver.ShaderModuleHandle) {
	if m, ok := d.shaderModules.take(uint64(module)); ok {
		vk.DestroyShaderModule(d.Handle, m, d.allocator)
	}
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutCreateInfo) (driver.PipelineLayoutHandle, error) {
	if len(info.PushConstantRanges) > maxPushConstantRanges {
		return driver.NullHandle, errors.Newf("cannot have more than %d push constant ranges. Passed count: %d", maxPushConstantRanges, len(info.PushConstantRanges))
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(info.SetLayouts)),
		PSetLayouts:    lookupAll(d.setLayouts, info.SetLayouts),
	}
	if len(info.PushConstantRanges) > 0 {
		ranges := make([]vk.PushConstantRange, len(info.PushConstantRanges))
		for i, r := range info.PushConstantRanges {
			ranges[i] = vk.PushConstantRange{
				StageFlags: toShaderStages(r.StageFlags),
				Offset:     r.Offset,
				Size:       r.Size,
			}
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = uint32(len(ranges))
		pipelineLayoutCreateInfo.PPushConstantRanges = ranges
	}

	var layout vk.PipelineLayout
	if err := d.lockPool.SafeCall(PipelineManagement, func() error {
		return check("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.Handle, &pipelineLayoutCreateInfo, d.allocator, &layout))
	}); err != nil {
		return driver.NullHandle, err
	}
	return driver.PipelineLayoutHandle(d.pipelineLayouts.put(layout)), nil
}

func (d *Device) DestroyPipelineLayout(layout driver.PipelineLayoutHandle) {
	if l, ok := d.pipelineLayouts.take(uint64(layout)); ok {
		_ = d.lockPool.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipelineLayout(d.Handle, l, d.allocator)
			return nil
		})
	}
}

func (d *Device) shaderStage(stage driver.ShaderStageInfo) vk.PipelineShaderStageCreateInfo {
	entry := stage.EntryPoint
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  toShaderStageBits(stage.Stage),
		Module: d.shaderModules.lookup(uint64(stage.Module)),
		PName:  VulkanSafeString(entry),
	}
}

// CreateGraphicsPipeline builds a pipeline with dynamic viewport and
// scissor, so it survives swapchain resizes as long as the render pass is
// compatible.
func (d *Device) CreateGraphicsPipeline(info driver.GraphicsPipelineCreateInfo) (driver.PipelineHandle, error) {
	raster := info.Raster

	stages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		stages[i] = d.shaderStage(s)
	}

	// Viewport state
	viewport := vk.Viewport{
		Width:    float32(info.Extent.Width),
		Height:   float32(info.Extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Extent: vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{scissor},
	}

	lineWidth := raster.LineWidth
	if lineWidth == 0 {
		lineWidth = 1.0
	}
	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             toPolygonMode(raster.PolygonMode),
		LineWidth:               lineWidth,
		CullMode:                toCullMode(raster.CullMode),
		FrontFace:               toFrontFace(raster.FrontFace),
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if raster.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}
	if raster.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if raster.Blend {
		colorBlendAttachmentState.BlendEnable = vk.True
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	bindings := make([]vk.VertexInputBindingDescription, len(info.Bindings))
	for i, b := range info.Bindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: toInputRate(b.InputRate),
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.Attributes))
	for i, a := range info.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   toFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toTopology(raster.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              d.pipelineLayouts.lookup(uint64(info.Layout)),
		RenderPass:          d.renderPasses.lookup(uint64(info.RenderPass)),
		Subpass:             info.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := d.lockPool.SafeCall(PipelineManagement, func() error {
		return check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(
			d.Handle,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			d.allocator,
			pipelines))
	}); err != nil {
		return driver.NullHandle, err
	}

	core.LogDebug("Graphics pipeline created!")
	return driver.PipelineHandle(d.pipelines.put(pipelines[0])), nil
}

func (d *Device) CreateComputePipeline(info driver.ComputePipelineCreateInfo) (driver.PipelineHandle, error) {
	createInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              d.shaderStage(info.Stage),
		Layout:             d.pipelineLayouts.lookup(uint64(info.Layout)),
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := d.lockPool.SafeCall(PipelineManagement, func() error {
		return check("vkCreateComputePipelines", vk.CreateComputePipelines(
			d.Handle,
			vk.NullPipelineCache,
			1,
			[]vk.ComputePipelineCreateInfo{createInfo},
			d.allocator,
			pipelines))
	}); err != nil {
		return driver.NullHandle, err
	}

	core.LogDebug("Compute pipeline created!")
	return driver.PipelineHandle(d.pipelines.put(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(pipeline driver.PipelineHandle) {
	if p, ok := d.pipelines.take(uint64(pipeline)); ok {
		_ = d.lockPool.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipeline(d.Handle, p, d.allocator)
			return nil
		})
	}
}
