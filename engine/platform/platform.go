package platform

import (
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/vulkanese/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	startTime float64
	onClose   func()
	onResize  func(width, height uint32)
}

func New() *Platform {
	return &Platform{}
}

// Startup initializes glfw and opens the window. A zero width and height
// skip the window: glfw is still needed to resolve the Vulkan loader.
func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return errors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw: no Vulkan loader found")
	}
	p.startTime = glfw.GetTime()

	if width == 0 && height == 0 {
		core.LogInfo("platform started headless")
		return nil
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return errors.Wrap(err, "glfw create window")
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Headless() bool {
	return p.Window == nil
}

// RequiredInstanceExtensions lists the instance extensions the window
// surface needs. Empty when headless.
func (p *Platform) RequiredInstanceExtensions() []string {
	if p.Window == nil {
		return nil
	}
	return p.Window.GetRequiredInstanceExtensions()
}

// OnClose registers the function called when the user asks to close the window.
func (p *Platform) OnClose(fn func()) {
	p.onClose = fn
}

// OnResize registers the function called with the new framebuffer size.
func (p *Platform) OnResize(fn func(width, height uint32)) {
	p.onResize = fn
}

// PumpMessages processes pending window events. It returns false once the
// window should close.
func (p *Platform) PumpMessages() bool {
	if p.Window == nil {
		return true
	}
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Window == nil {
		return 0, 0
	}
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// GetAbsoluteTime returns the seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) Sleep(ms float64) {
	time.Sleep(time.Duration(ms * float64(time.Millisecond)))
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
		p.closeCallback(w)
	}
}

func (p *Platform) closeCallback(w *glfw.Window) {
	core.LogInfo("window close requested, shutting down.")
	if p.onClose != nil {
		p.onClose()
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.LogDebug("Window resize: %d, %d", width, height)
	if p.onResize != nil {
		p.onResize(uint32(width), uint32(height))
	}
}
