package native

import (
	"github.com/google/uuid"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

func (d *Device) CreateFramebuffer(renderPass driver.RenderPassHandle, width, height uint32, attachments []vk.ImageView) (driver.FramebufferHandle, error) {
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPasses.lookup(uint64(renderPass)),
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(d.Handle, &framebufferCreateInfo, d.allocator, &framebuffer)); err != nil {
		core.LogError(err.Error())
		return driver.NullHandle, err
	}
	return driver.FramebufferHandle(d.framebuffers.put(framebuffer)), nil
}

func (d *Device) DestroyFramebuffer(framebuffer driver.FramebufferHandle) {
	if fb, ok := d.framebuffers.take(uint64(framebuffer)); ok {
		vk.DestroyFramebuffer(d.Handle, fb, d.allocator)
	}
}

// CreateRenderTarget builds the render pass and one framebuffer per
// swapchain image. The target gets one frame slot per image so an acquired
// image index always selects its own framebuffer.
func CreateRenderTarget(d *Device, sc *Swapchain, clearColor [4]float32) (metadata.OutputTarget, error) {
	depthFormat := vk.FormatUndefined
	if sc.DepthAttachment != nil {
		depthFormat = sc.DepthAttachment.Format
	}
	renderPass, err := d.CreateRenderPass(sc.ImageFormat.Format, depthFormat, true)
	if err != nil {
		return metadata.OutputTarget{}, err
	}

	target := metadata.OutputTarget{
		Name:       uuid.NewString(),
		Kind:       metadata.OUTPUT_KIND_SURFACE,
		Extent:     sc.Extent(),
		RenderPass: renderPass,
		ClearColor: clearColor,
		ClearDepth: 1.0,
		Slots:      sc.ImageCount(),
	}
	if err := createFramebuffers(d, sc, &target); err != nil {
		DestroyRenderTarget(d, &target)
		return metadata.OutputTarget{}, err
	}
	core.LogDebug("render target %s created with %d framebuffers", target.Name, len(target.Framebuffers))
	return target, nil
}

// ResizeRenderTarget rebuilds the framebuffers after the swapchain was
// recreated. The render pass is kept since the formats do not change.
func ResizeRenderTarget(d *Device, sc *Swapchain, target *metadata.OutputTarget) error {
	for _, fb := range target.Framebuffers {
		d.DestroyFramebuffer(fb)
	}
	target.Framebuffers = nil
	target.Extent = sc.Extent()
	return createFramebuffers(d, sc, target)
}

func DestroyRenderTarget(d *Device, target *metadata.OutputTarget) {
	for _, fb := range target.Framebuffers {
		d.DestroyFramebuffer(fb)
	}
	target.Framebuffers = nil
	if target.RenderPass != driver.NullHandle {
		d.DestroyRenderPass(target.RenderPass)
		target.RenderPass = driver.NullHandle
	}
}

// OffscreenTarget describes a compute-only target with no render pass.
func OffscreenTarget() metadata.OutputTarget {
	return metadata.OutputTarget{
		Name: uuid.NewString(),
		Kind: metadata.OUTPUT_KIND_OFFSCREEN,
	}
}

func createFramebuffers(d *Device, sc *Swapchain, target *metadata.OutputTarget) error {
	extent := sc.Extent()
	for _, view := range sc.Views {
		attachments := []vk.ImageView{view}
		if sc.DepthAttachment != nil {
			attachments = append(attachments, sc.DepthAttachment.View)
		}
		fb, err := d.CreateFramebuffer(target.RenderPass, extent.Width, extent.Height, attachments)
		if err != nil {
			return err
		}
		target.Framebuffers = append(target.Framebuffers, fb)
	}
	return nil
}
