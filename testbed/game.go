package testbed

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/vulkanese/engine"
	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanese/engine/renderer/vulkan"
)

const (
	gradientSize   = 64
	gradientGroups = gradientSize / 8
	gradientOutput = "gradient.bmp"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine

	mvp    *vulkan.Buffer
	params *vulkan.Buffer
	pixels *vulkan.Buffer

	angle   float32
	elapsed float64
	frames  int

	width  uint32
	height uint32
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Name:  "triangle",
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// Initialize draws a spinning triangle, or runs the gradient compute shader
// once when there is no window.
func (g *TestGame) Initialize(e *engine.Engine) error {
	state := g.state()
	state.engine = e
	if e.Config().Headless() {
		return g.initializeGradient(e)
	}
	return g.initializeTriangle(e)
}

func (g *TestGame) initializeTriangle(e *engine.Engine) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.state()

	scene, err := createTriangle(e.Renderer())
	if err != nil {
		return err
	}
	state.mvp = scene.mvp
	state.params = scene.params

	if _, err := e.BuildShaderPipeline("triangle", scene.pipelineConfig()); err != nil {
		return err
	}
	return e.Renderer().RecordDraw(scene.draw())
}

func (g *TestGame) initializeGradient(e *engine.Engine) error {
	state := g.state()

	pixels, err := createGradient(e.Renderer())
	if err != nil {
		return err
	}
	state.pixels = pixels

	if _, err := e.BuildShaderPipeline("gradient", gradientPipelineConfig()); err != nil {
		return err
	}
	return e.Renderer().RecordDispatch([3]uint32{gradientGroups, gradientGroups, 1})
}

type triangleScene struct {
	position *vulkan.Buffer
	color    *vulkan.Buffer
	indices  *vulkan.Buffer
	mvp      *vulkan.Buffer
	params   *vulkan.Buffer
}

// createTriangle creates and fills the triangle buffers and attaches the
// descriptor bound ones to their sets.
func createTriangle(r *renderer.Renderer) (*triangleScene, error) {
	scene := &triangleScene{}
	var err error

	scene.position, err = r.CreateBuffer(vulkan.BufferConfig{
		Name:        "position",
		Shape:       []int{3, 3},
		ElementType: metadata.ELEMENT_TYPE_FLOAT,
		Usage:       metadata.BUFFER_USAGE_VERTEX,
		HostVisible: true,
		Compact:     true,
		Location:    0,
		Binding:     0,
	})
	if err != nil {
		return nil, err
	}
	scene.color, err = r.CreateBuffer(vulkan.BufferConfig{
		Name:        "color",
		Shape:       []int{3, 3},
		ElementType: metadata.ELEMENT_TYPE_FLOAT,
		Usage:       metadata.BUFFER_USAGE_VERTEX,
		HostVisible: true,
		Compact:     true,
		Location:    1,
		Binding:     1,
	})
	if err != nil {
		return nil, err
	}
	scene.indices, err = r.CreateBuffer(vulkan.BufferConfig{
		Name:        "indices",
		Shape:       []int{3},
		ElementType: metadata.ELEMENT_TYPE_UINT,
		Usage:       metadata.BUFFER_USAGE_INDEX,
		HostVisible: true,
	})
	if err != nil {
		return nil, err
	}
	// items are scalars, one mat4 is 4x4 of them
	scene.mvp, err = r.CreateBuffer(vulkan.BufferConfig{
		Name:        "mvp",
		Shape:       []int{4, 4},
		ElementType: metadata.ELEMENT_TYPE_MAT4,
		Usage:       metadata.BUFFER_USAGE_UNIFORM,
		HostVisible: true,
		StageFlags:  driver.ShaderStageVertex,
	})
	if err != nil {
		return nil, err
	}
	// params[0] is the time in seconds. Padded to the std140 array stride.
	scene.params, err = r.CreateBuffer(vulkan.BufferConfig{
		Name:        "params",
		Shape:       []int{4},
		ElementType: metadata.ELEMENT_TYPE_FLOAT,
		Usage:       metadata.BUFFER_USAGE_STORAGE,
		HostVisible: true,
		StageFlags:  driver.ShaderStageVertex,
	})
	if err != nil {
		return nil, err
	}

	if err := vulkan.Set(scene.position, []float32{
		0.0, -0.5, 0.0,
		0.5, 0.5, 0.0,
		-0.5, 0.5, 0.0,
	}); err != nil {
		return nil, err
	}
	if err := vulkan.Set(scene.color, []float32{
		1.0, 0.0, 0.0,
		0.0, 1.0, 0.0,
		0.0, 0.0, 1.0,
	}); err != nil {
		return nil, err
	}
	if err := vulkan.Set(scene.indices, []uint32{0, 1, 2}); err != nil {
		return nil, err
	}

	if _, err := r.Descriptors().Set(metadata.SET_ROLE_MATERIAL).AttachBuffer(scene.mvp); err != nil {
		return nil, err
	}
	if _, err := r.Descriptors().Set(metadata.SET_ROLE_GLOBAL).AttachBuffer(scene.params); err != nil {
		return nil, err
	}
	core.LogDebug("triangle buffers:\n%s%s%s", scene.position.Declaration(), scene.mvp.ComputeDeclaration(), scene.params.ComputeDeclaration())
	return scene, nil
}

// pipelineConfig leaves the stage code empty, it is loaded by name.
func (s *triangleScene) pipelineConfig() vulkan.PipelineConfig {
	return vulkan.PipelineConfig{
		Stages: []vulkan.ShaderStage{
			{
				Stage: metadata.ShaderStageVertex,
				Uses: []vulkan.SlotRef{
					{Role: metadata.SET_ROLE_MATERIAL, Kind: metadata.DESCRIPTOR_KIND_UNIFORM},
					{Role: metadata.SET_ROLE_GLOBAL, Kind: metadata.DESCRIPTOR_KIND_STORAGE},
				},
			},
			{Stage: metadata.ShaderStageFragment},
		},
		VertexBuffers: []*vulkan.Buffer{s.position, s.color},
		FixedFunction: metadata.DefaultFixedFunctionState(),
	}
}

func (s *triangleScene) draw() vulkan.DrawCall {
	return vulkan.DrawCall{IndexBuffer: s.indices}
}

func createGradient(r *renderer.Renderer) (*vulkan.Buffer, error) {
	pixels, err := r.CreateBuffer(vulkan.BufferConfig{
		Name:        "pixels",
		Shape:       []int{gradientSize, gradientSize, 4},
		ElementType: metadata.ELEMENT_TYPE_FLOAT,
		Usage:       metadata.BUFFER_USAGE_STORAGE,
		HostVisible: true,
		Compact:     true,
		StageFlags:  driver.ShaderStageCompute,
	})
	if err != nil {
		return nil, err
	}
	if _, err := r.Descriptors().Set(metadata.SET_ROLE_GLOBAL).AttachBuffer(pixels); err != nil {
		return nil, err
	}
	return pixels, nil
}

func gradientPipelineConfig() vulkan.PipelineConfig {
	return vulkan.PipelineConfig{
		Stages: []vulkan.ShaderStage{{
			Stage: metadata.ShaderStageCompute,
			Uses:  []vulkan.SlotRef{{Role: metadata.SET_ROLE_GLOBAL, Kind: metadata.DESCRIPTOR_KIND_STORAGE}},
		}},
	}
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.frames++
	state.elapsed += deltaTime

	if state.pixels != nil {
		// the first dispatch completed with the previous frame
		if state.frames == 2 {
			if err := state.pixels.SaveImage(gradientOutput, gradientSize, gradientSize); err != nil {
				return err
			}
			state.engine.Stop()
		}
		return nil
	}

	state.angle += float32(0.5 * deltaTime)
	if err := state.mvp.WriteBytes(matrixBytes(g.modelViewProjection())); err != nil {
		return err
	}
	return vulkan.WriteAt(state.params, 0, float32(state.elapsed))
}

func (g *TestGame) modelViewProjection() mgl32.Mat4 {
	state := g.state()
	aspect := float32(1)
	if state.height > 0 {
		aspect = float32(state.width) / float32(state.height)
	}
	model := mgl32.HomogRotate3DZ(state.angle)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 2}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	projection := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10)
	return projection.Mul4(view).Mul4(model)
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()

	state.width = width
	state.height = height

	return nil
}

// matrixBytes lays a column major matrix out the way a std140 mat4 expects.
func matrixBytes(m mgl32.Mat4) []byte {
	out := make([]byte, len(m)*4)
	for i, v := range m {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
