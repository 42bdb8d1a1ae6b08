package renderer

import (
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

// RendererBackend is what the renderer needs from a concrete GPU API: the
// device and queue, the presenter (nil when headless) and the target its
// frames render into.
type RendererBackend interface {
	Device() driver.Device
	Queue() driver.Queue
	Presenter() driver.Presenter
	Target() metadata.OutputTarget
	// NeedsRecreate reports a window resize since the last rebuild.
	NeedsRecreate() bool
	// RecreateSwapchain rebuilds the presentable images and returns the
	// new target. core.ErrSwapchainBooting means "not now, try later".
	RecreateSwapchain() (metadata.OutputTarget, error)
	Shutdown()
}
