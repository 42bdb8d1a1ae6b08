package native

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// Image is a device local 2D image with its memory and a single view. The
// swapchain uses it for the depth attachment.
type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
}

func ImageCreate(d *Device, width, height uint32, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) (*Image, error) {
	image := &Image{Width: width, Height: height, Format: format}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := check("vkCreateImage", vk.CreateImage(d.Handle, &imageCreateInfo, d.allocator, &image.Handle)); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.Handle, image.Handle, &requirements)
	requirements.Deref()

	memoryType, ok := d.findMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if !ok {
		image.Destroy(d)
		return nil, errors.New("required memory type not found, image not valid")
	}
	memory, err := d.allocate(uint64(requirements.Size), memoryType)
	if err != nil {
		image.Destroy(d)
		return nil, err
	}
	image.Memory = memory

	if err := check("vkBindImageMemory", vk.BindImageMemory(d.Handle, image.Handle, image.Memory, 0)); err != nil {
		image.Destroy(d)
		return nil, err
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	if err := check("vkCreateImageView", vk.CreateImageView(d.Handle, &viewCreateInfo, d.allocator, &image.View)); err != nil {
		image.Destroy(d)
		return nil, err
	}
	return image, nil
}

func (image *Image) Destroy(d *Device) {
	if image.View != vk.NullImageView {
		vk.DestroyImageView(d.Handle, image.View, d.allocator)
		image.View = vk.NullImageView
	}
	if image.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.Handle, image.Memory, d.allocator)
		image.Memory = vk.NullDeviceMemory
	}
	if image.Handle != vk.NullImage {
		vk.DestroyImage(d.Handle, image.Handle, d.allocator)
		image.Handle = vk.NullImage
	}
}
