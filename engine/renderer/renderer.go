package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/containers"
	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanese/engine/renderer/vulkan"
)

type Config struct {
	// Pipelined bounds frames in flight with fences instead of waiting for
	// the queue after every present.
	Pipelined         bool
	MaxFramesInFlight int
}

// Renderer ties the backend to the renderer core. It owns every GPU object
// it creates through an ownership tree, so Shutdown tears them down in
// reverse dependency order.
type Renderer struct {
	backend RendererBackend
	device  driver.Device
	config  Config

	tree        *containers.OwnershipTree
	scene       containers.Handle
	descriptors *vulkan.DescriptorPool
	hostBuffers []*vulkan.Buffer

	pipeline       *vulkan.Pipeline
	pipelineConfig vulkan.PipelineConfig
	pipelineNode   containers.Handle

	draw     *vulkan.DrawCall
	dispatch *[3]uint32

	sequencer *vulkan.CommandSequencer
	loop      *vulkan.FrameLoop
	metrics   *core.FrameMetrics

	shutdown bool
}

func New(backend RendererBackend, config Config) (*Renderer, error) {
	r := &Renderer{
		backend: backend,
		device:  backend.Device(),
		config:  config,
		tree:    containers.NewOwnershipTree(),
		metrics: core.NewFrameMetrics(),
	}
	r.descriptors = vulkan.NewDescriptorPool(r.device)

	scene, err := r.tree.AddFunc(containers.NoParent, "scene", nil)
	if err != nil {
		return nil, err
	}
	r.scene = scene
	return r, nil
}

func (r *Renderer) Target() metadata.OutputTarget       { return r.backend.Target() }
func (r *Renderer) Descriptors() *vulkan.DescriptorPool { return r.descriptors }
func (r *Renderer) Pipeline() *vulkan.Pipeline          { return r.pipeline }
func (r *Renderer) Metrics() *core.FrameMetrics         { return r.metrics }
func (r *Renderer) Tree() *containers.OwnershipTree     { return r.tree }

// Stages returns a copy of the live pipeline's shader stages.
func (r *Renderer) Stages() []vulkan.ShaderStage {
	return append([]vulkan.ShaderStage(nil), r.pipelineConfig.Stages...)
}

// Loop is nil until something has been recorded.
func (r *Renderer) Loop() *vulkan.FrameLoop { return r.loop }

// CreateBuffer creates a buffer owned by the scene. Uniform and storage
// buffers still have to be attached to a descriptor set.
func (r *Renderer) CreateBuffer(config vulkan.BufferConfig) (*vulkan.Buffer, error) {
	buf, err := vulkan.NewBuffer(r.device, config)
	if err != nil {
		return nil, err
	}
	if _, err := r.tree.Add(r.scene, "buffer:"+config.Name, buf); err != nil {
		buf.Release()
		return nil, err
	}
	if buf.HostVisible() {
		r.hostBuffers = append(r.hostBuffers, buf)
		if r.loop != nil {
			r.loop.AddBuffer(buf)
		}
	}
	return buf, nil
}

// BuildPipeline finalizes the descriptor sets on first use and builds the
// pipeline against the backend target. There is one live pipeline; a
// second call replaces the first.
func (r *Renderer) BuildPipeline(config vulkan.PipelineConfig) (*vulkan.Pipeline, error) {
	if !r.descriptors.Finalized() {
		if err := r.descriptors.Finalize(); err != nil {
			return nil, err
		}
		if _, err := r.tree.Add(r.scene, "descriptors", r.descriptors); err != nil {
			return nil, err
		}
	}
	config.Registry = r.descriptors
	config.Output = r.backend.Target()

	p, err := vulkan.BuildPipeline(r.device, config)
	if err != nil {
		return nil, err
	}
	node, err := r.tree.Add(r.scene, "pipeline:"+config.Name, p)
	if err != nil {
		p.Release()
		return nil, err
	}

	if r.pipeline != nil {
		if err := r.drain(); err != nil {
			_ = r.tree.Release(node)
			return nil, err
		}
		if err := r.tree.Release(r.pipelineNode); err != nil {
			core.LogWarn("releasing pipeline `%s`: %v", r.pipeline.Name(), err)
		}
		if r.sequencer != nil {
			r.sequencer.Invalidate()
		}
	}
	r.pipeline = p
	r.pipelineConfig = config
	r.pipelineNode = node
	return p, nil
}

// ReloadStages rebuilds the pipeline with new shader code and records the
// frame slots again. A build failure keeps the current pipeline.
func (r *Renderer) ReloadStages(stages []vulkan.ShaderStage) error {
	if r.pipeline == nil {
		return errors.New("no pipeline to reload")
	}
	config := r.pipelineConfig
	config.Stages = stages
	if _, err := r.BuildPipeline(config); err != nil {
		return errors.Wrapf(err, "reloading pipeline `%s`", config.Name)
	}
	core.LogInfo("pipeline `%s` rebuilt with %d stages", config.Name, len(stages))
	return r.rerecord()
}

// RecordDraw records the draw into every frame slot.
func (r *Renderer) RecordDraw(draw vulkan.DrawCall) error {
	if err := r.prepareFrames(); err != nil {
		return err
	}
	if err := r.sequencer.RecordAll(r.pipeline, draw); err != nil {
		return err
	}
	r.draw = &draw
	r.dispatch = nil
	return nil
}

// RecordDispatch records a compute dispatch into every frame slot.
func (r *Renderer) RecordDispatch(groups [3]uint32) error {
	if err := r.prepareFrames(); err != nil {
		return err
	}
	if err := r.sequencer.RecordDispatchAll(r.pipeline, groups); err != nil {
		return err
	}
	r.dispatch = &groups
	r.draw = nil
	return nil
}

func (r *Renderer) rerecord() error {
	switch {
	case r.draw != nil:
		return r.RecordDraw(*r.draw)
	case r.dispatch != nil:
		return r.RecordDispatch(*r.dispatch)
	}
	return nil
}

// prepareFrames creates the sequencer and the frame loop on first use.
func (r *Renderer) prepareFrames() error {
	if r.pipeline == nil {
		return errors.New("record called before a pipeline was built")
	}
	if r.sequencer != nil {
		return nil
	}

	seq, err := vulkan.NewCommandSequencer(r.device, r.backend.Target())
	if err != nil {
		return err
	}
	if _, err := r.tree.Add(containers.NoParent, "sequencer", seq); err != nil {
		seq.Release()
		return err
	}
	r.sequencer = seq

	loop, err := vulkan.NewFrameLoop(r.device, r.backend.Queue(), r.backend.Presenter(), seq, vulkan.FrameLoopConfig{
		Pipelined:         r.config.Pipelined,
		MaxFramesInFlight: r.config.MaxFramesInFlight,
		Buffers:           r.hostBuffers,
		Metrics:           r.metrics,
	})
	if err != nil {
		return err
	}
	if _, err := r.tree.Add(containers.NoParent, "frame_loop", loop); err != nil {
		loop.Release()
		return err
	}
	r.loop = loop
	return nil
}

// Frame renders one frame. A resize or an out of date swapchain rebuilds
// the target and re-records the slots instead. core.ErrStopped is returned
// once the loop was stopped and drained.
func (r *Renderer) Frame() error {
	if r.loop == nil {
		return errors.New("frame called before anything was recorded")
	}
	if r.backend.NeedsRecreate() && !r.loop.StopRequested() {
		return r.recreate()
	}
	err := r.loop.Tick()
	if errors.Is(err, core.ErrSwapchainOutOfDate) {
		core.LogDebug("%v, recreating", err)
		return r.recreate()
	}
	return err
}

func (r *Renderer) recreate() error {
	target, err := r.backend.RecreateSwapchain()
	if errors.Is(err, core.ErrSwapchainBooting) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.sequencer.Retarget(target); err != nil {
		return err
	}
	return r.rerecord()
}

// Stop asks the frame loop to stop. Safe from any goroutine.
func (r *Renderer) Stop() {
	if r.loop != nil {
		r.loop.Stop()
	}
}

func (r *Renderer) drain() error {
	if err := r.device.WaitIdle(); err != nil {
		return errors.Wrapf(core.ErrDevice, "device wait idle: %v", err)
	}
	return nil
}

// Shutdown drains the device, releases everything in the ownership tree
// and shuts the backend down.
func (r *Renderer) Shutdown() error {
	if r.shutdown {
		return nil
	}
	r.shutdown = true

	err := r.drain()
	err = errors.CombineErrors(err, r.tree.ReleaseAll())
	r.pipeline = nil
	r.sequencer = nil
	r.loop = nil
	r.backend.Shutdown()
	if err != nil {
		core.LogError("renderer shutdown: %v", err)
	}
	return err
}
