package metadata

import "github.com/spaghettifunk/vulkanese/engine/renderer/driver"

/** @brief Where a pipeline's output goes. */
type OutputKind int

const (
	/** @brief A presentable window surface, triple buffered. */
	OUTPUT_KIND_SURFACE OutputKind = iota
	/** @brief An offscreen image or a compute-only target, single buffered. */
	OUTPUT_KIND_OFFSCREEN
)

const (
	SURFACE_FRAME_SLOTS   = 3
	OFFSCREEN_FRAME_SLOTS = 1
)

/**
 * @brief Describes the render target a command sequencer records into.
 * Framebuffers are indexed by frame slot.
 */
type OutputTarget struct {
	Name         string
	Kind         OutputKind
	Extent       driver.Extent2D
	RenderPass   driver.RenderPassHandle
	Framebuffers []driver.FramebufferHandle
	/** @brief Overrides the frame slot count when non-zero. */
	Slots        int
	ClearColor   [4]float32
	ClearDepth   float32
}

/** @brief Number of command buffers recorded for this target. */
func (t OutputTarget) FrameSlots() int {
	if t.Slots > 0 {
		return t.Slots
	}
	if t.Kind == OUTPUT_KIND_SURFACE {
		return SURFACE_FRAME_SLOTS
	}
	return OFFSCREEN_FRAME_SLOTS
}

/** @brief Framebuffer for a slot, or the null handle for compute-only targets. */
func (t OutputTarget) Framebuffer(slot int) driver.FramebufferHandle {
	if len(t.Framebuffers) == 0 {
		return driver.NullHandle
	}
	return t.Framebuffers[slot%len(t.Framebuffers)]
}

func (t OutputTarget) HasRenderPass() bool {
	return t.RenderPass != driver.NullHandle
}
