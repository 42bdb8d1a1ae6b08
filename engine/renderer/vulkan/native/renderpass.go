package native

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

// CreateRenderPass creates a single subpass pass with one color attachment
// and, when depthFormat is defined, a depth attachment. Presentable passes
// leave the color image in the present layout.
func (d *Device) CreateRenderPass(colorFormat, depthFormat vk.Format, presentable bool) (driver.RenderPassHandle, error) {
	subpass := vk.SubpassDescription{
		PipelineBindPoint: vk.PipelineBindPointGraphics,
	}

	finalLayout := vk.ImageLayoutColorAttachmentOptimal
	if presentable {
		finalLayout = vk.ImageLayoutPresentSrc
	}

	attachments := []vk.AttachmentDescription{{
		Format:         colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined, // Do not expect any particular layout before render pass starts.
		FinalLayout:    finalLayout,
	}}

	subpass.ColorAttachmentCount = 1
	subpass.PColorAttachments = []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	dstStage := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	dstAccess := vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)

	if depthFormat != vk.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		dstStage |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dstAccess |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	// The acquire semaphore is waited on at the color output stage, so the
	// layout transition has to wait for it too.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  dstStage,
		SrcAccessMask: 0,
		DstStageMask:  dstStage,
		DstAccessMask: dstAccess,
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if err := d.lockPool.SafeCall(PipelineManagement, func() error {
		return check("vkCreateRenderPass", vk.CreateRenderPass(d.Handle, &renderpassCreateInfo, d.allocator, &renderPass))
	}); err != nil {
		return driver.NullHandle, err
	}
	return driver.RenderPassHandle(d.renderPasses.put(renderPass)), nil
}

func (d *Device) DestroyRenderPass(renderPass driver.RenderPassHandle) {
	if rp, ok := d.renderPasses.take(uint64(renderPass)); ok {
		vk.DestroyRenderPass(d.Handle, rp, d.allocator)
	}
}
