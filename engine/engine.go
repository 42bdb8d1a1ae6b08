package engine

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/assets"
	"github.com/spaghettifunk/vulkanese/engine/config"
	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/platform"
	"github.com/spaghettifunk/vulkanese/engine/renderer"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanese/engine/renderer/vulkan"
	"github.com/spaghettifunk/vulkanese/engine/renderer/vulkan/native"
	"github.com/spaghettifunk/vulkanese/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageBooting:
		return "booting"
	case EngineStageBootComplete:
		return "boot_complete"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting_down"
	}
	return "unknown"
}

// metrics are logged once per interval, in seconds.
const metricsInterval = 1.0

type Engine struct {
	currentStage Stage
	config       *config.Config
	gameInstance *Game

	platform        *platform.Platform
	platformStarted bool
	resizer         Resizer
	renderer        *renderer.Renderer

	jobs       *systems.JobSystem
	shaders    *assets.ShaderLoader
	watcher    *assets.Watcher
	shaderName string

	clock         *core.Clock
	lastTime      float64
	lastReport    float64
	stopRequested atomic.Bool
	suspended     atomic.Bool
}

func New(cfg *config.Config, g *Game) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g == nil || g.FnInitialize == nil {
		return nil, errors.New("engine: the game must provide an initialize function")
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		gameInstance: g,
		platform:     platform.New(),
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Stage() Stage                  { return e.currentStage }
func (e *Engine) Config() *config.Config        { return e.config }
func (e *Engine) Renderer() *renderer.Renderer  { return e.renderer }
func (e *Engine) Shaders() *assets.ShaderLoader { return e.shaders }

// Initialize opens the window, brings the Vulkan backend up and lets the
// game build its scene.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return errors.Newf("engine: initialize called in stage %s", e.currentStage)
	}
	e.currentStage = EngineStageBooting
	core.SetLogLevel(e.config.Logging.Level)

	app := e.config.Application
	if err := e.platform.Startup(app.Name, app.PosX, app.PosY, app.Width, app.Height); err != nil {
		return err
	}
	e.platformStarted = true

	backend, err := native.NewBackend(backendConfig(e.config, e.platform))
	if err != nil {
		return err
	}
	e.platform.OnClose(e.Stop)
	e.platform.OnResize(e.onResized)
	e.currentStage = EngineStageBootComplete

	return e.initialize(backend, backend)
}

func (e *Engine) initialize(backend renderer.RendererBackend, resizer Resizer) error {
	e.currentStage = EngineStageInitializing
	e.resizer = resizer

	r, err := renderer.New(backend, rendererConfig(e.config))
	if err != nil {
		backend.Shutdown()
		return err
	}
	e.renderer = r

	jobs, err := systems.NewJobSystem(e.config.Shaders.Workers, 2*e.config.Shaders.Workers)
	if err != nil {
		return err
	}
	e.jobs = jobs
	e.shaders = assets.NewShaderLoader(e.config.Shaders.Dir, jobs)

	if e.config.Shaders.Watch {
		w, err := assets.NewWatcher(e.config.Shaders.Dir)
		if err != nil {
			// hot reload is a convenience, run without it
			core.LogWarn("shader hot reload disabled: %s", err)
		} else {
			e.watcher = w
		}
	}

	if err := e.gameInstance.FnInitialize(e); err != nil {
		return errors.Wrap(err, "game initialize")
	}
	if e.gameInstance.FnOnResize != nil {
		extent := r.Target().Extent
		if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized (%s)", r.Target().Name)
	return nil
}

// BuildShaderPipeline loads <name>.<stage>.spv for every stage of the
// config and builds the pipeline with it. While running, changes to those
// files rebuild the pipeline.
func (e *Engine) BuildShaderPipeline(name string, pipelineConfig vulkan.PipelineConfig) (*vulkan.Pipeline, error) {
	if err := e.loadStageCode(name, pipelineConfig.Stages); err != nil {
		return nil, err
	}
	if pipelineConfig.Name == "" {
		pipelineConfig.Name = name
	}
	p, err := e.renderer.BuildPipeline(pipelineConfig)
	if err != nil {
		return nil, err
	}
	e.shaderName = name
	core.LogDebug("pipeline `%s` declarations:\n%s", p.Name(), p.Declarations())
	return p, nil
}

// ReloadShaders reads the shader files of the live pipeline again and
// rebuilds it. On failure the current pipeline stays in use.
func (e *Engine) ReloadShaders() error {
	if e.shaderName == "" {
		return errors.New("engine: no shader pipeline to reload")
	}
	stages := e.renderer.Stages()
	if err := e.loadStageCode(e.shaderName, stages); err != nil {
		return err
	}
	return e.renderer.ReloadStages(stages)
}

func (e *Engine) loadStageCode(name string, stages []vulkan.ShaderStage) error {
	kinds := make([]metadata.ShaderStage, len(stages))
	for i, s := range stages {
		kinds[i] = s.Stage
	}
	set, err := e.shaders.LoadSet(name, kinds...)
	if err != nil {
		return err
	}
	for i := range stages {
		stages[i].Code = set[i].Code
	}
	return nil
}

// pollShaderChanges drains the watcher and reloads once if any stage of
// the live pipeline changed.
func (e *Engine) pollShaderChanges() {
	if e.watcher == nil || e.shaderName == "" {
		return
	}
	changed := false
drain:
	for {
		select {
		case c, ok := <-e.watcher.Changes():
			if !ok {
				e.watcher = nil
				break drain
			}
			if c.Name == e.shaderName && !c.Removed {
				changed = true
			}
		default:
			break drain
		}
	}
	if !changed {
		return
	}
	if err := e.ReloadShaders(); err != nil {
		core.LogError("shader reload failed, keeping the current pipeline: %s", err)
	}
}

// Stop asks the engine to stop after the frames in flight. Safe from any
// goroutine.
func (e *Engine) Stop() {
	if !e.stopRequested.Swap(true) {
		core.LogInfo("engine stop requested")
	}
}

func (e *Engine) onResized(width, height uint32) {
	if e.resizer != nil {
		e.resizer.Resized(width, height)
	}
	if width == 0 || height == 0 {
		if !e.suspended.Swap(true) {
			core.LogInfo("Window minimized, suspending application.")
		}
		return
	}
	if e.suspended.Swap(false) {
		core.LogInfo("Window restored, resuming application.")
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
}

// Run renders frames until Stop, a closed window or ctx is done. It
// returns once the frame loop is drained.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return errors.Newf("engine: run called in stage %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-stopWatch:
		}
	}()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	e.lastReport = e.lastTime

	for {
		if !e.platform.PumpMessages() {
			e.Stop()
		}
		stopping := e.stopRequested.Load()
		if stopping {
			if e.renderer.Loop() == nil {
				return nil
			}
			e.renderer.Stop()
		}

		if e.suspended.Load() && !stopping {
			e.platform.Sleep(100)
			continue
		}

		e.pollShaderChanges()

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil && !stopping {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down.")
				return err
			}
		}

		err := e.renderer.Frame()
		if errors.Is(err, core.ErrStopped) {
			core.LogInfo("frame loop stopped after %d frames", e.renderer.Metrics().TotalFrames())
			return nil
		}
		if err != nil {
			return err
		}

		if currentTime-e.lastReport >= metricsInterval {
			fps, frameTime := e.renderer.Metrics().Frame()
			core.LogWith("fps", fps, "frame_ms", frameTime).Info("frame metrics")
			e.lastReport = currentTime
		}
		e.lastTime = currentTime
	}
}

// Shutdown releases everything the engine created, in reverse order.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var err error
	if e.gameInstance.FnShutdown != nil {
		err = errors.CombineErrors(err, e.gameInstance.FnShutdown())
	}
	if e.watcher != nil {
		err = errors.CombineErrors(err, e.watcher.Close())
		e.watcher = nil
	}
	if e.jobs != nil {
		err = errors.CombineErrors(err, e.jobs.Shutdown())
	}
	if e.renderer != nil {
		err = errors.CombineErrors(err, e.renderer.Shutdown())
	}
	if e.platformStarted {
		err = errors.CombineErrors(err, e.platform.Shutdown())
		e.platformStarted = false
	}
	if err != nil {
		core.LogError("engine shutdown: %s", err)
	}
	return err
}
