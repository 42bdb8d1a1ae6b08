package native

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

type BackendConfig struct {
	ApplicationName string
	// Window is nil for headless use. glfw must be initialized either way,
	// since the Vulkan loader is resolved through it.
	Window           *glfw.Window
	WindowExtensions []string
	Validation       bool
	VSync            bool
	ClearColor       [4]float32
	DiscreteGPU      bool
	// FrameSlots is the requested swapchain image count.
	FrameSlots int
}

// Backend owns the Vulkan objects below the renderer core: instance,
// surface, device, swapchain and the window render target.
type Backend struct {
	config BackendConfig

	Instance *Instance
	Surface  vk.Surface
	Physical *PhysicalDevice

	device    *Device
	swapchain *Swapchain
	target    metadata.OutputTarget

	// Written by the window callback, read by the render goroutine.
	mu                            sync.Mutex
	cachedWidth, cachedHeight     uint32
	framebufferSizeGeneration     uint64
	framebufferSizeLastGeneration uint64
	recreatingSwapchain           bool
}

func NewBackend(config BackendConfig) (*Backend, error) {
	b := &Backend{config: config}
	if err := b.initialize(); err != nil {
		b.Shutdown()
		return nil, err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return b, nil
}

func (b *Backend) initialize() error {
	instance, err := NewInstance(b.config.ApplicationName, b.config.WindowExtensions, b.config.Validation)
	if err != nil {
		return err
	}
	b.Instance = instance

	b.Surface = vk.NullSurface
	if b.config.Window != nil {
		surface, err := instance.CreateSurface(b.config.Window)
		if err != nil {
			return err
		}
		b.Surface = surface
	}

	requirements := DefaultRequirements(b.Surface)
	requirements.DiscreteGPU = b.config.DiscreteGPU
	physical, err := SelectPhysicalDevice(instance, b.Surface, requirements)
	if err != nil {
		return err
	}
	b.Physical = physical

	device, err := CreateDevice(physical)
	if err != nil {
		return err
	}
	b.device = device

	if b.config.Window == nil {
		b.target = OffscreenTarget()
		return nil
	}

	width, height := b.config.Window.GetFramebufferSize()
	sc, err := NewSwapchain(device, b.Surface, uint32(width), uint32(height), b.config.FrameSlots, b.config.VSync)
	if err != nil {
		return err
	}
	b.swapchain = sc

	target, err := CreateRenderTarget(device, sc, b.config.ClearColor)
	if err != nil {
		return err
	}
	b.target = target
	return nil
}

func (b *Backend) Device() driver.Device {
	return b.device
}

func (b *Backend) Queue() driver.Queue {
	return b.device.GraphicsQueue
}

// NativeDevice exposes the Vulkan device for objects the driver interface
// does not cover.
func (b *Backend) NativeDevice() *Device {
	return b.device
}

func (b *Backend) Headless() bool {
	return b.swapchain == nil
}

// Presenter is nil when the backend runs headless.
func (b *Backend) Presenter() driver.Presenter {
	if b.swapchain == nil {
		return nil
	}
	return b.swapchain
}

func (b *Backend) Target() metadata.OutputTarget {
	return b.target
}

// Resized records a new framebuffer size. The swapchain is rebuilt on the
// render goroutine by RecreateSwapchain.
func (b *Backend) Resized(width, height uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cachedWidth = width
	b.cachedHeight = height
	b.framebufferSizeGeneration++
	core.LogInfo("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, b.framebufferSizeGeneration)
}

// NeedsRecreate reports whether a resize happened since the last rebuild.
func (b *Backend) NeedsRecreate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.framebufferSizeGeneration != b.framebufferSizeLastGeneration
}

// RecreateSwapchain drains the device, rebuilds the swapchain and the
// target framebuffers, and returns the new target. Command buffers that
// recorded the old target must be recorded again. It returns
// core.ErrSwapchainBooting when the window is minimized or a rebuild is
// already running; the caller retries on a later frame.
func (b *Backend) RecreateSwapchain() (metadata.OutputTarget, error) {
	if b.swapchain == nil {
		return b.target, nil
	}

	b.mu.Lock()
	if b.recreatingSwapchain {
		b.mu.Unlock()
		core.LogDebug("recreate_swapchain called when already recreating. Booting.")
		return b.target, core.ErrSwapchainBooting
	}
	width, height := b.cachedWidth, b.cachedHeight
	generation := b.framebufferSizeGeneration
	if generation == b.framebufferSizeLastGeneration {
		// out of date without a resize event
		w, h := b.config.Window.GetFramebufferSize()
		width, height = uint32(w), uint32(h)
	}
	if width == 0 || height == 0 {
		b.mu.Unlock()
		core.LogDebug("recreate_swapchain called when window is < 1 in a dimension. Booting.")
		return b.target, core.ErrSwapchainBooting
	}
	b.recreatingSwapchain = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.recreatingSwapchain = false
		b.mu.Unlock()
	}()

	// Wait for any operations to complete.
	if err := b.device.WaitIdle(); err != nil {
		return b.target, errors.Wrapf(core.ErrDevice, "recreate swapchain: %v", err)
	}
	if err := b.swapchain.Recreate(width, height); err != nil {
		return b.target, err
	}
	if err := ResizeRenderTarget(b.device, b.swapchain, &b.target); err != nil {
		return b.target, err
	}

	b.mu.Lock()
	b.framebufferSizeLastGeneration = generation
	b.mu.Unlock()
	core.LogInfo("swapchain recreated at %dx%d", b.target.Extent.Width, b.target.Extent.Height)
	return b.target, nil
}

// Shutdown destroys everything in the opposite order of creation. Objects
// created by the renderer core must have been released before.
func (b *Backend) Shutdown() {
	if b.device != nil {
		if err := b.device.WaitIdle(); err != nil {
			core.LogError("backend shutdown: %v", err)
		}
		DestroyRenderTarget(b.device, &b.target)
		if b.swapchain != nil {
			core.LogDebug("Destroying Vulkan swapchain...")
			b.swapchain.Destroy()
			b.swapchain = nil
		}
		b.device.Destroy()
		b.device = nil
	}
	if b.Instance != nil {
		b.Instance.DestroySurface(b.Surface)
		b.Surface = vk.NullSurface
		b.Instance.Destroy()
		b.Instance = nil
	}
	core.LogInfo("Vulkan renderer shut down.")
}
