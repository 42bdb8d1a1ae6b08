package renderer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanese/engine/renderer/vulkan"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

type fakeBackend struct {
	device    *drivertest.Device
	queue     *drivertest.Queue
	presenter *drivertest.Presenter
	target    metadata.OutputTarget

	resized      bool
	recreateErr  error
	recreated    int
	shutdownDone bool
}

func surfaceBackend() *fakeBackend {
	device := drivertest.NewDevice()
	return &fakeBackend{
		device:    device,
		queue:     drivertest.NewQueue(device),
		presenter: drivertest.NewPresenter(3),
		target: metadata.OutputTarget{
			Name:         "window",
			Kind:         metadata.OUTPUT_KIND_SURFACE,
			Extent:       driver.Extent2D{Width: 800, Height: 600},
			RenderPass:   driver.RenderPassHandle(900),
			Framebuffers: []driver.FramebufferHandle{901, 902, 903},
		},
	}
}

func headlessBackend() *fakeBackend {
	device := drivertest.NewDevice()
	return &fakeBackend{
		device: device,
		queue:  drivertest.NewQueue(device),
		target: metadata.OutputTarget{Name: "offscreen", Kind: metadata.OUTPUT_KIND_OFFSCREEN},
	}
}

func (b *fakeBackend) Device() driver.Device         { return b.device }
func (b *fakeBackend) Queue() driver.Queue           { return b.queue }
func (b *fakeBackend) Target() metadata.OutputTarget { return b.target }
func (b *fakeBackend) NeedsRecreate() bool           { return b.resized }
func (b *fakeBackend) Shutdown()                     { b.shutdownDone = true }

func (b *fakeBackend) Presenter() driver.Presenter {
	if b.presenter == nil {
		return nil
	}
	return b.presenter
}

func (b *fakeBackend) RecreateSwapchain() (metadata.OutputTarget, error) {
	if b.recreateErr != nil {
		return b.target, b.recreateErr
	}
	b.recreated++
	b.resized = false
	b.target.Extent = driver.Extent2D{Width: 1024, Height: 768}
	b.target.Framebuffers = []driver.FramebufferHandle{911, 912, 913}
	return b.target, nil
}

func mustRenderer(t *testing.T, backend RendererBackend) *Renderer {
	t.Helper()
	r, err := New(backend, Config{})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func mustCreate(t *testing.T, r *Renderer, config vulkan.BufferConfig) *vulkan.Buffer {
	t.Helper()
	b, err := r.CreateBuffer(config)
	if err != nil {
		t.Fatalf("creating `%s`: %v", config.Name, err)
	}
	return b
}

func triangleStages() []vulkan.ShaderStage {
	return []vulkan.ShaderStage{
		{Stage: metadata.ShaderStageVertex, Code: spirv, Uses: []vulkan.SlotRef{{Role: metadata.SET_ROLE_MATERIAL, Kind: metadata.DESCRIPTOR_KIND_UNIFORM}}},
		{Stage: metadata.ShaderStageFragment, Code: spirv},
	}
}

// triangle builds the demo scene and records it.
func triangle(t *testing.T, r *Renderer) *vulkan.Buffer {
	t.Helper()
	position := mustCreate(t, r, vulkan.BufferConfig{
		Name: "position", Shape: []int{3, 3}, ElementType: metadata.ELEMENT_TYPE_FLOAT,
		Usage: metadata.BUFFER_USAGE_VERTEX, HostVisible: true, Compact: true,
	})
	color := mustCreate(t, r, vulkan.BufferConfig{
		Name: "color", Shape: []int{3, 3}, ElementType: metadata.ELEMENT_TYPE_FLOAT,
		Usage: metadata.BUFFER_USAGE_VERTEX, HostVisible: true, Location: 1, Binding: 1,
	})
	indices := mustCreate(t, r, vulkan.BufferConfig{
		Name: "indices", Shape: []int{3}, ElementType: metadata.ELEMENT_TYPE_UINT,
		Usage: metadata.BUFFER_USAGE_INDEX, HostVisible: true,
	})
	mvp := mustCreate(t, r, vulkan.BufferConfig{
		Name: "mvp", Shape: []int{4, 4}, ElementType: metadata.ELEMENT_TYPE_MAT4,
		Usage: metadata.BUFFER_USAGE_UNIFORM, HostVisible: true,
	})
	if err := vulkan.Set(indices, []uint32{0, 1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Descriptors().Set(metadata.SET_ROLE_MATERIAL).AttachBuffer(mvp); err != nil {
		t.Fatal(err)
	}

	if _, err := r.BuildPipeline(vulkan.PipelineConfig{
		Name:          "triangle",
		Stages:        triangleStages(),
		VertexBuffers: []*vulkan.Buffer{position, color},
		FixedFunction: metadata.DefaultFixedFunctionState(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordDraw(vulkan.DrawCall{IndexBuffer: indices}); err != nil {
		t.Fatal(err)
	}
	return mvp
}

func TestRendererPresentsFrames(t *testing.T) {
	backend := surfaceBackend()
	r := mustRenderer(t, backend)
	defer r.Shutdown()
	triangle(t, r)

	for i := 0; i < 4; i++ {
		if err := r.Frame(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if want := []uint32{0, 1, 2, 0}; !reflect.DeepEqual(backend.presenter.Presented, want) {
		t.Fatalf("presented %v, want %v", backend.presenter.Presented, want)
	}
	if got := r.Loop().Frames(); got != 4 {
		t.Errorf("loop counted %d frames", got)
	}
}

func TestRendererFlushesBuffersCreatedAfterRecording(t *testing.T) {
	backend := surfaceBackend()
	backend.device.NonCoherentOnly()
	r := mustRenderer(t, backend)
	defer r.Shutdown()
	triangle(t, r)
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}

	late := mustCreate(t, r, vulkan.BufferConfig{
		Name: "late", Shape: []int{3}, ElementType: metadata.ELEMENT_TYPE_UINT,
		Usage: metadata.BUFFER_USAGE_INDEX, HostVisible: true,
	})
	if late.Coherent() {
		t.Fatal("the device only offers non-coherent host memory")
	}
	if err := vulkan.Set(late, []uint32{2, 1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordDraw(vulkan.DrawCall{IndexBuffer: late}); err != nil {
		t.Fatal(err)
	}
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}
	if late.Dirty() {
		t.Fatal("writes to a buffer created after the first recording were not flushed")
	}
}

func TestRendererRecreatesOutOfDateSwapchain(t *testing.T) {
	backend := surfaceBackend()
	backend.presenter.AcquireResults = []driver.Result{driver.ErrorOutOfDate}
	r := mustRenderer(t, backend)
	defer r.Shutdown()
	triangle(t, r)

	if err := r.Frame(); err != nil {
		t.Fatalf("an out of date swapchain is recovered from, got %v", err)
	}
	if backend.recreated != 1 {
		t.Fatalf("swapchain recreated %d times", backend.recreated)
	}
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}

	// the re-recorded slot renders into the new framebuffer at the new size
	submitted := backend.queue.Submits[0].Infos[0].CommandBuffers[0]
	pass := backend.device.Commands[submitted][1].Args[0].(driver.RenderPassBeginInfo)
	if pass.Framebuffer != 911 || pass.Extent.Width != 1024 {
		t.Errorf("rendered into framebuffer %d at %v", pass.Framebuffer, pass.Extent)
	}
}

func TestRendererResizeWhileMinimized(t *testing.T) {
	backend := surfaceBackend()
	r := mustRenderer(t, backend)
	defer r.Shutdown()
	triangle(t, r)

	backend.resized = true
	backend.recreateErr = core.ErrSwapchainBooting
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}
	if len(backend.queue.Submits) != 0 {
		t.Fatal("nothing is submitted while the swapchain cannot be rebuilt")
	}

	backend.recreateErr = nil
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}
	if backend.recreated != 1 || backend.resized {
		t.Fatalf("recreated %d times, resize pending %v", backend.recreated, backend.resized)
	}
}

func TestRendererReloadStages(t *testing.T) {
	backend := surfaceBackend()
	r := mustRenderer(t, backend)
	defer r.Shutdown()
	triangle(t, r)
	old := r.Pipeline()

	if err := r.ReloadStages(triangleStages()); err != nil {
		t.Fatal(err)
	}
	if !old.Released() || r.Pipeline() == old {
		t.Fatal("the old pipeline must be replaced and released")
	}
	if n := backend.device.Live("pipeline"); n != 1 {
		t.Fatalf("%d live pipelines", n)
	}
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}

	// a broken stage keeps the working pipeline
	current := r.Pipeline()
	broken := triangleStages()
	broken[1].Code = []byte{0x03, 0x02}
	if err := r.ReloadStages(broken); err == nil {
		t.Fatal("expected invalid SPIR-V to fail")
	}
	if r.Pipeline() != current || current.Released() {
		t.Fatal("a failed reload must keep the current pipeline")
	}
}

func TestRendererHeadlessDispatch(t *testing.T) {
	backend := headlessBackend()
	r := mustRenderer(t, backend)
	defer r.Shutdown()

	data := mustCreate(t, r, vulkan.BufferConfig{
		Name: "data", Shape: []int{64}, ElementType: metadata.ELEMENT_TYPE_FLOAT,
		Usage: metadata.BUFFER_USAGE_STORAGE, HostVisible: true, Compact: true,
		StageFlags: driver.ShaderStageCompute,
	})
	if _, err := r.Descriptors().Set(metadata.SET_ROLE_GLOBAL).AttachBuffer(data); err != nil {
		t.Fatal(err)
	}
	if _, err := r.BuildPipeline(vulkan.PipelineConfig{
		Name:   "double",
		Stages: []vulkan.ShaderStage{{Stage: metadata.ShaderStageCompute, Code: spirv}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordDispatch([3]uint32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}
	if len(backend.queue.Submits) != 1 {
		t.Fatalf("%d submits", len(backend.queue.Submits))
	}
	if got := r.Loop().Frames(); got != 1 {
		t.Fatalf("loop counted %d frames", got)
	}
	if r.Loop().State() != vulkan.FRAME_STATE_IDLE {
		t.Fatalf("loop left in state %s", r.Loop().State())
	}
}

func TestRendererShutdownReleasesEverything(t *testing.T) {
	backend := surfaceBackend()
	r := mustRenderer(t, backend)
	triangle(t, r)
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}

	r.Stop()
	if err := r.Frame(); !errors.Is(err, core.ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if n := backend.device.Live(""); n != 0 {
		t.Fatalf("%d objects left alive: %s", n, backend.device)
	}
	if backend.device.DoubleFree != 0 {
		t.Fatalf("%d objects destroyed twice", backend.device.DoubleFree)
	}
	if !backend.shutdownDone {
		t.Fatal("backend not shut down")
	}
	if err := r.Shutdown(); err != nil {
		t.Fatal("second shutdown must be a no-op")
	}
}
