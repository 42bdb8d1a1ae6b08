package vulkan

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

const (
	defaultEntryPoint = "main"

	// Vulkan guarantees at least 128 bytes of push constants.
	maxPushConstantBytes  = 128
	maxPushConstantRanges = 32
)

// SlotRef names a descriptor slot a shader stage reads.
type SlotRef struct {
	Role metadata.SetRole
	Kind metadata.DescriptorKind
	Slot int
}

type ShaderStage struct {
	Name       string
	Stage      metadata.ShaderStage
	// SPIR-V byte code.
	Code       []byte
	EntryPoint string
	Uses       []SlotRef

	module driver.ShaderModuleHandle
}

func (s *ShaderStage) Module() driver.ShaderModuleHandle { return s.module }

type PipelineConfig struct {
	Name          string
	Stages        []ShaderStage
	VertexBuffers []*Buffer
	// Registry must be finalized. A nil registry means the pipeline reads
	// no descriptors.
	Registry      *DescriptorPool
	FixedFunction metadata.FixedFunctionState
	Output        metadata.OutputTarget
	PushConstants []driver.PushConstantRange
}

type Pipeline struct {
	device driver.PipelineDevice
	name   string

	bindPoint     driver.PipelineBindPoint
	stages        []*ShaderStage
	stageByName   map[string]*ShaderStage
	vertexBuffers []*Buffer
	bindings      []driver.VertexBindingDescription
	attributes    []driver.VertexAttributeDescription
	registry      *DescriptorPool
	fixed         metadata.FixedFunctionState
	output        metadata.OutputTarget

	layout driver.PipelineLayoutHandle
	handle driver.PipelineHandle

	released bool
}

// BuildPipeline derives the vertex input from the vertex buffers, the
// layout from the registry, and creates shader modules, the pipeline
// layout and the pipeline. A single compute stage builds a compute
// pipeline.
func BuildPipeline(device driver.PipelineDevice, config PipelineConfig) (*Pipeline, error) {
	p := &Pipeline{
		device:      device,
		name:        config.Name,
		bindPoint:   driver.PipelineBindPointGraphics,
		stageByName: make(map[string]*ShaderStage, len(config.Stages)),
		registry:    config.Registry,
		fixed:       config.FixedFunction,
		output:      config.Output,
	}

	if err := p.collectStages(config.Stages); err != nil {
		return nil, err
	}
	if err := p.checkSlots(); err != nil {
		return nil, err
	}
	if p.bindPoint == driver.PipelineBindPointCompute && len(config.VertexBuffers) > 0 {
		return nil, errors.Wrapf(core.ErrVertexFormat, "pipeline `%s`: compute pipelines take no vertex buffers", p.name)
	}
	if err := p.describeVertexInput(config.VertexBuffers); err != nil {
		return nil, err
	}
	if err := checkPushConstants(config.PushConstants); err != nil {
		return nil, errors.Wrapf(err, "pipeline `%s`", p.name)
	}

	for _, s := range p.stages {
		module, err := device.CreateShaderModule(s.Code)
		if err != nil {
			p.Release()
			return nil, errors.Wrapf(core.ErrDevice, "pipeline `%s`: shader module `%s`: %v", p.name, s.Name, err)
		}
		s.module = module
	}

	var setLayouts []driver.DescriptorSetLayoutHandle
	if p.registry != nil {
		setLayouts = p.registry.Layouts()
	}
	layout, err := device.CreatePipelineLayout(driver.PipelineLayoutCreateInfo{
		SetLayouts:         setLayouts,
		PushConstantRanges: config.PushConstants,
	})
	if err != nil {
		p.Release()
		return nil, errors.Wrapf(core.ErrDevice, "pipeline `%s`: layout: %v", p.name, err)
	}
	p.layout = layout

	if p.bindPoint == driver.PipelineBindPointCompute {
		s := p.stages[0]
		p.handle, err = device.CreateComputePipeline(driver.ComputePipelineCreateInfo{
			Stage:  driver.ShaderStageInfo{Stage: s.Stage.Flags(), Module: s.module, EntryPoint: s.EntryPoint},
			Layout: p.layout,
		})
	} else {
		infos := make([]driver.ShaderStageInfo, 0, len(p.stages))
		for _, s := range p.stages {
			infos = append(infos, driver.ShaderStageInfo{Stage: s.Stage.Flags(), Module: s.module, EntryPoint: s.EntryPoint})
		}
		p.handle, err = device.CreateGraphicsPipeline(driver.GraphicsPipelineCreateInfo{
			Stages:     infos,
			Bindings:   p.bindings,
			Attributes: p.attributes,
			Raster:     p.fixed.RasterState(),
			Extent:     p.output.Extent,
			Layout:     p.layout,
			RenderPass: p.output.RenderPass,
		})
	}
	if err != nil {
		p.Release()
		return nil, errors.Wrapf(core.ErrDevice, "pipeline `%s`: create: %v", p.name, err)
	}

	core.LogInfo("pipeline `%s` built: %d stages, %d vertex bindings", p.name, len(p.stages), len(p.bindings))
	return p, nil
}

func (p *Pipeline) collectStages(stages []ShaderStage) error {
	if len(stages) == 0 {
		return errors.Newf("pipeline `%s`: no shader stages", p.name)
	}
	compute := 0
	for i := range stages {
		s := stages[i]
		if s.Name == "" {
			s.Name = s.Stage.Extension()
		}
		if _, dup := p.stageByName[s.Name]; dup {
			return errors.Newf("pipeline `%s`: duplicate stage `%s`", p.name, s.Name)
		}
		if len(s.Code) == 0 || len(s.Code)%4 != 0 {
			return errors.Newf("pipeline `%s`: stage `%s` has invalid SPIR-V (%d bytes)", p.name, s.Name, len(s.Code))
		}
		if s.EntryPoint == "" {
			s.EntryPoint = defaultEntryPoint
		}
		if s.Stage == metadata.ShaderStageCompute {
			compute++
		}
		p.stages = append(p.stages, &s)
		p.stageByName[s.Name] = &s
	}
	if compute > 0 {
		if len(stages) != 1 {
			return errors.Newf("pipeline `%s`: a compute stage cannot be combined with other stages", p.name)
		}
		p.bindPoint = driver.PipelineBindPointCompute
	}
	return nil
}

// checkSlots makes sure every slot a stage reads exists in the registry and
// is visible to that stage.
func (p *Pipeline) checkSlots() error {
	for _, s := range p.stages {
		for _, ref := range s.Uses {
			if p.registry == nil {
				return errors.Wrapf(core.ErrLayoutMismatch, "pipeline `%s`: stage `%s` reads %s slot %d but there is no registry", p.name, s.Name, ref.Kind, ref.Slot)
			}
			if ref.Role < 0 || int(ref.Role) >= metadata.SET_ROLE_COUNT {
				return errors.Wrapf(core.ErrLayoutMismatch, "pipeline `%s`: stage `%s` reads unknown set %d", p.name, s.Name, ref.Role)
			}
			set := p.registry.Set(ref.Role)
			if _, err := set.BindingFor(ref.Kind, ref.Slot); err != nil {
				return errors.Wrapf(err, "pipeline `%s`: stage `%s`", p.name, s.Name)
			}
			// a binding the stage cannot see is as good as missing
			if set.StageFlags()&s.Stage.Flags() == 0 {
				return errors.Wrapf(core.ErrLayoutMismatch, "pipeline `%s`: stage `%s` reads set `%s`, visible to stages %#x only", p.name, s.Name, set.Name(), uint32(set.StageFlags()))
			}
		}
	}
	if p.registry != nil && !p.registry.Finalized() {
		return errors.Newf("pipeline `%s`: descriptor registry is not finalized", p.name)
	}
	return nil
}

func (p *Pipeline) describeVertexInput(buffers []*Buffer) error {
	byBinding := make(map[uint32]*Buffer, len(buffers))
	byLocation := make(map[uint32]*Buffer, len(buffers))
	for _, b := range buffers {
		if b == nil {
			return errors.Wrapf(core.ErrVertexFormat, "pipeline `%s`: nil vertex buffer", p.name)
		}
		if b.Usage() != metadata.BUFFER_USAGE_VERTEX {
			return errors.Wrapf(core.ErrVertexFormat, "pipeline `%s`: `%s` is a %s buffer", p.name, b.Name(), b.Usage())
		}
		if other, ok := byBinding[b.Binding()]; ok {
			return errors.Wrapf(core.ErrVertexFormat, "pipeline `%s`: `%s` and `%s` share binding %d", p.name, other.Name(), b.Name(), b.Binding())
		}
		if other, ok := byLocation[b.Location()]; ok {
			return errors.Wrapf(core.ErrVertexFormat, "pipeline `%s`: `%s` and `%s` share location %d", p.name, other.Name(), b.Name(), b.Location())
		}
		byBinding[b.Binding()] = b
		byLocation[b.Location()] = b
	}

	p.vertexBuffers = append([]*Buffer(nil), buffers...)
	sort.Slice(p.vertexBuffers, func(i, j int) bool {
		return p.vertexBuffers[i].Binding() < p.vertexBuffers[j].Binding()
	})
	for _, b := range p.vertexBuffers {
		p.bindings = append(p.bindings, b.BindingDescription())
		p.attributes = append(p.attributes, b.AttributeDescription())
	}
	return nil
}

func checkPushConstants(ranges []driver.PushConstantRange) error {
	if len(ranges) > maxPushConstantRanges {
		return errors.Newf("at most %d push constant ranges, got %d", maxPushConstantRanges, len(ranges))
	}
	for i, r := range ranges {
		if r.Offset%4 != 0 || r.Size%4 != 0 || r.Size == 0 || r.Offset+r.Size > maxPushConstantBytes {
			return errors.Newf("push constant range %d (offset %d, size %d) is invalid", i, r.Offset, r.Size)
		}
	}
	return nil
}

// Stage returns the stage declared with the given name.
func (p *Pipeline) Stage(name string) (*ShaderStage, error) {
	s, ok := p.stageByName[name]
	if !ok {
		return nil, errors.Wrapf(core.ErrUnknownName, "pipeline `%s`: stage `%s`", p.name, name)
	}
	return s, nil
}

func (p *Pipeline) Name() string                               { return p.name }
func (p *Pipeline) Handle() driver.PipelineHandle              { return p.handle }
func (p *Pipeline) Layout() driver.PipelineLayoutHandle        { return p.layout }
func (p *Pipeline) BindPoint() driver.PipelineBindPoint        { return p.bindPoint }
func (p *Pipeline) Registry() *DescriptorPool                  { return p.registry }
func (p *Pipeline) Output() metadata.OutputTarget              { return p.output }
func (p *Pipeline) FixedFunction() metadata.FixedFunctionState { return p.fixed }
func (p *Pipeline) Released() bool                             { return p.released }

// VertexBuffers returns the vertex buffers ordered by binding.
func (p *Pipeline) VertexBuffers() []*Buffer {
	return append([]*Buffer(nil), p.vertexBuffers...)
}

func (p *Pipeline) BindingDescriptions() []driver.VertexBindingDescription {
	return append([]driver.VertexBindingDescription(nil), p.bindings...)
}

func (p *Pipeline) AttributeDescriptions() []driver.VertexAttributeDescription {
	return append([]driver.VertexAttributeDescription(nil), p.attributes...)
}

// Declarations returns the GLSL declarations of every buffer the pipeline
// sees, vertex inputs first.
func (p *Pipeline) Declarations() string {
	var sb strings.Builder
	for _, b := range p.vertexBuffers {
		sb.WriteString(b.Declaration())
	}
	if p.registry != nil {
		for _, b := range p.registry.Buffers() {
			sb.WriteString(b.ComputeDeclaration())
		}
	}
	return sb.String()
}

// Release destroys the pipeline, then its layout, then the shader modules.
func (p *Pipeline) Release() {
	if p.released {
		return
	}
	if p.handle != driver.NullHandle {
		p.device.DestroyPipeline(p.handle)
		p.handle = driver.NullHandle
	}
	if p.layout != driver.NullHandle {
		p.device.DestroyPipelineLayout(p.layout)
		p.layout = driver.NullHandle
	}
	for _, s := range p.stages {
		if s.module != driver.NullHandle {
			p.device.DestroyShaderModule(s.module)
			s.module = driver.NullHandle
		}
	}
	p.released = true
}
