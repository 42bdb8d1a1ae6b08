package testbed

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/vulkanese/engine/renderer"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanese/engine/renderer/vulkan"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

type testBackend struct {
	device    *drivertest.Device
	queue     *drivertest.Queue
	presenter *drivertest.Presenter
	target    metadata.OutputTarget
}

func newTestBackend(headless bool) *testBackend {
	device := drivertest.NewDevice()
	b := &testBackend{device: device, queue: drivertest.NewQueue(device)}
	if headless {
		b.target = metadata.OutputTarget{Name: "offscreen", Kind: metadata.OUTPUT_KIND_OFFSCREEN}
		return b
	}
	b.presenter = drivertest.NewPresenter(3)
	b.target = metadata.OutputTarget{
		Name:         "window",
		Kind:         metadata.OUTPUT_KIND_SURFACE,
		Extent:       driver.Extent2D{Width: 800, Height: 600},
		RenderPass:   driver.RenderPassHandle(900),
		Framebuffers: []driver.FramebufferHandle{901, 902, 903},
	}
	return b
}

func (b *testBackend) Device() driver.Device         { return b.device }
func (b *testBackend) Queue() driver.Queue           { return b.queue }
func (b *testBackend) Target() metadata.OutputTarget { return b.target }
func (b *testBackend) NeedsRecreate() bool           { return false }
func (b *testBackend) Shutdown()                     {}

func (b *testBackend) Presenter() driver.Presenter {
	if b.presenter == nil {
		return nil
	}
	return b.presenter
}

func (b *testBackend) RecreateSwapchain() (metadata.OutputTarget, error) {
	return b.target, nil
}

func withCode(config vulkan.PipelineConfig, name string) vulkan.PipelineConfig {
	config.Name = name
	for i := range config.Stages {
		config.Stages[i].Code = spirv
	}
	return config
}

func TestTriangleSceneRenders(t *testing.T) {
	backend := newTestBackend(false)
	r, err := renderer.New(backend, renderer.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	scene, err := createTriangle(r)
	if err != nil {
		t.Fatal(err)
	}
	if got := scene.mvp.SizeBytes(); got != 64 {
		t.Fatalf("mvp holds %d bytes, want one mat4", got)
	}
	if _, err := r.BuildPipeline(withCode(scene.pipelineConfig(), "triangle")); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordDraw(scene.draw()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := scene.mvp.WriteBytes(matrixBytes(mgl32.HomogRotate3DZ(float32(i)))); err != nil {
			t.Fatal(err)
		}
		if err := vulkan.WriteAt(scene.params, 0, float32(i)); err != nil {
			t.Fatal(err)
		}
		if err := r.Frame(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if n := len(backend.presenter.Presented); n != 3 {
		t.Fatalf("presented %d frames", n)
	}
}

func TestGradientSceneDispatches(t *testing.T) {
	backend := newTestBackend(true)
	r, err := renderer.New(backend, renderer.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	pixels, err := createGradient(r)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.BuildPipeline(withCode(gradientPipelineConfig(), "gradient")); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordDispatch([3]uint32{gradientGroups, gradientGroups, 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.Frame(); err != nil {
		t.Fatal(err)
	}
	dispatches := 0
	for _, cmds := range backend.device.Commands {
		for _, c := range cmds {
			if c.Name == "Dispatch" {
				dispatches++
			}
		}
	}
	if dispatches != 1 {
		t.Fatalf("recorded %d dispatches into the one offscreen slot", dispatches)
	}
	if img, err := pixels.Image(gradientSize, gradientSize); err != nil || img.Bounds().Dx() != gradientSize {
		t.Fatalf("reading the gradient back: %v", err)
	}
}

func TestMatrixBytesIsColumnMajor(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3)
	b := matrixBytes(m)
	if len(b) != 64 {
		t.Fatalf("%d bytes", len(b))
	}
	// the translation lives in the fourth column, floats 12 to 14
	for i, want := range []float32{1, 2, 3} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(b[(12+i)*4:]))
		if got != want {
			t.Errorf("float %d = %v, want %v", 12+i, got, want)
		}
	}
}

func TestModelViewProjectionFollowsAspect(t *testing.T) {
	g := NewTestGame()
	if err := g.OnResize(1600, 800); err != nil {
		t.Fatal(err)
	}
	wide := g.modelViewProjection()
	if err := g.OnResize(800, 800); err != nil {
		t.Fatal(err)
	}
	square := g.modelViewProjection()

	// only the x scale depends on the aspect ratio
	if !mgl32.FloatEqual(wide[0]*2, square[0]) {
		t.Fatalf("x scale %v at 2:1, %v at 1:1", wide[0], square[0])
	}
	if !mgl32.FloatEqual(wide[5], square[5]) {
		t.Fatalf("y scale changed: %v and %v", wide[5], square[5])
	}
}
