package native

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/core"
	engmath "github.com/spaghettifunk/vulkanese/engine/math"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

type SwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func QuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (SwapchainSupportInfo, error) {
	var info SwapchainSupportInfo
	if err := check("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &info.Capabilities)); err != nil {
		return info, err
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return info, err
	}
	if formatCount != 0 {
		info.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, info.Formats)); err != nil {
			return info, err
		}
		for i := range info.Formats {
			info.Formats[i].Deref()
		}
	}

	var presentModeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil)); err != nil {
		return info, err
	}
	if presentModeCount != 0 {
		info.PresentModes = make([]vk.PresentMode, presentModeCount)
		if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, info.PresentModes)); err != nil {
			return info, err
		}
	}
	return info, nil
}

// Swapchain implements driver.Presenter on a window surface. It also owns
// the image views and the shared depth attachment the framebuffers use.
type Swapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Images      []vk.Image
	Views       []vk.ImageView

	DepthAttachment *Image

	device    *Device
	surface   vk.Surface
	extent    vk.Extent2D
	requested uint32
	vsync     bool
}

var _ driver.Presenter = (*Swapchain)(nil)

// NewSwapchain asks for imageCount images, metadata.SURFACE_FRAME_SLOTS when
// zero. The surface limits may change the final count.
func NewSwapchain(d *Device, surface vk.Surface, width, height uint32, imageCount int, vsync bool) (*Swapchain, error) {
	if imageCount <= 0 {
		imageCount = metadata.SURFACE_FRAME_SLOTS
	}
	sc := &Swapchain{device: d, surface: surface, requested: uint32(imageCount), vsync: vsync}
	if err := sc.create(width, height); err != nil {
		sc.Destroy()
		return nil, err
	}
	return sc, nil
}

// Recreate destroys and rebuilds the swapchain for a new window size. The
// caller must drain the device first.
func (sc *Swapchain) Recreate(width, height uint32) error {
	if width == 0 || height == 0 {
		return errors.Wrap(core.ErrSwapchainBooting, "window is < 1 in a dimension")
	}
	sc.destroy()
	return sc.create(width, height)
}

func (sc *Swapchain) ImageCount() int {
	return len(sc.Images)
}

func (sc *Swapchain) Extent() driver.Extent2D {
	return driver.Extent2D{Width: sc.extent.Width, Height: sc.extent.Height}
}

func (sc *Swapchain) AcquireNextImage(timeout uint64, signal driver.SemaphoreHandle) (uint32, driver.Result) {
	var imageIndex uint32
	result := vk.AcquireNextImage(sc.device.Handle, sc.Handle, timeout, sc.device.semaphores.lookup(uint64(signal)), vk.NullFence, &imageIndex)
	return imageIndex, toResult(result)
}

func (sc *Swapchain) Present(imageIndex uint32, wait []driver.SemaphoreHandle) driver.Result {
	d := sc.device
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    lookupAll(d.semaphores, wait),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	var result vk.Result
	_ = d.lockPool.SafeQueueCall(d.PresentQueue.Family, func() error {
		result = vk.QueuePresent(d.PresentQueue.Handle, &presentInfo)
		return nil
	})
	return toResult(result)
}

func (sc *Swapchain) Destroy() {
	sc.destroy()
	sc.device = nil
}

func (sc *Swapchain) create(width, height uint32) error {
	d := sc.device
	support, err := QuerySwapchainSupport(d.Physical.Handle, sc.surface)
	if err != nil {
		return err
	}
	if len(support.Formats) == 0 {
		return errors.New("surface reports no formats")
	}
	capabilities := support.Capabilities

	// Choose a swap surface format.
	sc.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.ImageFormat = format
			break
		}
	}

	// FIFO is always available and waits for vblank.
	presentMode := vk.PresentModeFifo
	if !sc.vsync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
			if mode == vk.PresentModeImmediate {
				presentMode = mode
			}
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	extent.Width = engmath.Clamp(extent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	extent.Height = engmath.Clamp(extent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	sc.extent = extent

	imageCount := sc.requested
	if imageCount < capabilities.MinImageCount {
		imageCount = capabilities.MinImageCount
	}
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          sc.surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.ImageFormat.Format,
		ImageColorSpace:  sc.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if d.GraphicsQueue.Family != d.PresentQueue.Family {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{d.GraphicsQueue.Family, d.PresentQueue.Family}
	}

	if err := d.lockPool.SafeCall(SwapchainManagement, func() error {
		return check("vkCreateSwapchain", vk.CreateSwapchain(d.Handle, &swapchainCreateInfo, d.allocator, &sc.Handle))
	}); err != nil {
		core.LogError(err.Error())
		return err
	}

	// Images
	var count uint32
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(d.Handle, sc.Handle, &count, nil)); err != nil {
		return err
	}
	sc.Images = make([]vk.Image, count)
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(d.Handle, sc.Handle, &count, sc.Images)); err != nil {
		return err
	}

	// Views
	sc.Views = make([]vk.ImageView, count)
	for i := range sc.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    sc.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   sc.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if err := check("vkCreateImageView", vk.CreateImageView(d.Handle, &viewInfo, d.allocator, &sc.Views[i])); err != nil {
			return err
		}
	}

	// Depth resources
	if d.Physical.DepthFormat != vk.FormatUndefined {
		depth, err := ImageCreate(d, extent.Width, extent.Height, d.Physical.DepthFormat,
			vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
			vk.ImageAspectFlags(vk.ImageAspectDepthBit))
		if err != nil {
			return err
		}
		sc.DepthAttachment = depth
	}

	core.LogInfo("Swapchain created successfully (%d images, %dx%d).", count, extent.Width, extent.Height)
	return nil
}

func (sc *Swapchain) destroy() {
	d := sc.device
	if d == nil {
		return
	}
	if sc.DepthAttachment != nil {
		sc.DepthAttachment.Destroy(d)
		sc.DepthAttachment = nil
	}
	// Only destroy the views, not the images, since those are owned by the
	// swapchain and are thus destroyed when it is.
	for _, view := range sc.Views {
		if view != vk.NullImageView {
			vk.DestroyImageView(d.Handle, view, d.allocator)
		}
	}
	sc.Views = nil
	sc.Images = nil
	if sc.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.Handle, sc.Handle, d.allocator)
		sc.Handle = vk.NullSwapchain
	}
}
