package engine

import (
	"github.com/spaghettifunk/vulkanese/engine/config"
	"github.com/spaghettifunk/vulkanese/engine/platform"
	"github.com/spaghettifunk/vulkanese/engine/renderer"
	"github.com/spaghettifunk/vulkanese/engine/renderer/vulkan/native"
)

var _ renderer.RendererBackend = (*native.Backend)(nil)

// Resizer receives framebuffer size changes from the window.
type Resizer interface {
	Resized(width, height uint32)
}

func backendConfig(cfg *config.Config, p *platform.Platform) native.BackendConfig {
	return native.BackendConfig{
		ApplicationName:  cfg.Application.Name,
		Window:           p.Window,
		WindowExtensions: p.RequiredInstanceExtensions(),
		Validation:       cfg.Renderer.Validation,
		VSync:            cfg.Renderer.VSync,
		ClearColor:       cfg.Renderer.ClearColor,
		DiscreteGPU:      cfg.Renderer.DiscreteGPU,
		FrameSlots:       cfg.Renderer.FrameSlots,
	}
}

func rendererConfig(cfg *config.Config) renderer.Config {
	return renderer.Config{
		Pipelined:         !cfg.Renderer.WaitIdleAfterPresent,
		MaxFramesInFlight: cfg.Renderer.MaxFramesInFlight,
	}
}
