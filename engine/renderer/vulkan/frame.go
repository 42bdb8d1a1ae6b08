package vulkan

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/containers"
	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

type FrameState int

const (
	FRAME_STATE_IDLE FrameState = iota
	FRAME_STATE_IMAGE_ACQUIRED
	FRAME_STATE_SUBMITTED
	FRAME_STATE_PRESENTED
	FRAME_STATE_STOPPED
)

func (s FrameState) String() string {
	switch s {
	case FRAME_STATE_IDLE:
		return "idle"
	case FRAME_STATE_IMAGE_ACQUIRED:
		return "image_acquired"
	case FRAME_STATE_SUBMITTED:
		return "submitted"
	case FRAME_STATE_PRESENTED:
		return "presented"
	}
	return "stopped"
}

const DefaultMaxFramesInFlight = 2

type FrameLoopConfig struct {
	// Pipelined skips the queue idle wait after present and bounds the
	// frames in flight with fences instead. The default waits, trading
	// throughput for simple host/device synchronization.
	Pipelined         bool
	MaxFramesInFlight int
	// AcquireTimeout in nanoseconds, driver.NoTimeout when zero.
	AcquireTimeout uint64
	// Buffers are flushed before every submit. AddBuffer adds more later.
	Buffers []*Buffer
	Metrics *core.FrameMetrics
	// OnTransition is called on every state change.
	OnTransition func(from, to FrameState)
}

// FrameLoop drives acquire, submit and present for the recorded frame
// slots of a CommandSequencer. Tick runs on one goroutine; Stop can be
// called from any.
type FrameLoop struct {
	device    driver.SyncDevice
	queue     driver.Queue
	presenter driver.Presenter
	sequencer *CommandSequencer
	config    FrameLoopConfig
	buffers   []*Buffer

	imageAvailable []driver.SemaphoreHandle
	renderFinished []driver.SemaphoreHandle
	fences         []*Fence
	inFlight       *containers.RingQueue[*Fence]

	state   FrameState
	frame   int
	frames  uint64
	skipped uint64
	clock   *core.Clock

	stopRequested atomic.Bool
	released      bool
}

// NewFrameLoop creates the per-frame semaphores and fences. A nil
// presenter runs the loop headless: each tick submits the next slot and
// waits for it.
func NewFrameLoop(device driver.SyncDevice, queue driver.Queue, presenter driver.Presenter, sequencer *CommandSequencer, config FrameLoopConfig) (*FrameLoop, error) {
	if sequencer == nil || queue == nil {
		return nil, errors.New("frame loop needs a queue and a command sequencer")
	}
	if config.MaxFramesInFlight <= 0 {
		config.MaxFramesInFlight = DefaultMaxFramesInFlight
	}
	if config.AcquireTimeout == 0 {
		config.AcquireTimeout = driver.NoTimeout
	}

	fl := &FrameLoop{
		device:    device,
		queue:     queue,
		presenter: presenter,
		sequencer: sequencer,
		config:    config,
		buffers:   append([]*Buffer(nil), config.Buffers...),
		inFlight:  containers.NewRingQueue[*Fence](config.MaxFramesInFlight),
		clock:     core.NewClock(),
	}

	for i := 0; i < config.MaxFramesInFlight; i++ {
		if presenter != nil {
			available, err := device.CreateSemaphore()
			if err != nil {
				fl.Release()
				return nil, errors.Wrapf(core.ErrAllocation, "image available semaphore: %v", err)
			}
			fl.imageAvailable = append(fl.imageAvailable, available)
			finished, err := device.CreateSemaphore()
			if err != nil {
				fl.Release()
				return nil, errors.Wrapf(core.ErrAllocation, "render finished semaphore: %v", err)
			}
			fl.renderFinished = append(fl.renderFinished, finished)
		}
		fence, err := NewFence(device, false)
		if err != nil {
			fl.Release()
			return nil, err
		}
		fl.fences = append(fl.fences, fence)
	}
	return fl, nil
}

func (fl *FrameLoop) State() FrameState { return fl.state }

// Frames is the number of presented frames.
func (fl *FrameLoop) Frames() uint64 { return fl.frames }

// SkippedFrames counts ticks that found no image ready.
func (fl *FrameLoop) SkippedFrames() uint64 { return fl.skipped }

func (fl *FrameLoop) transition(to FrameState) {
	from := fl.state
	fl.state = to
	if fl.config.OnTransition != nil && from != to {
		fl.config.OnTransition(from, to)
	}
}

// AddBuffer registers a host visible buffer created after the loop, so it
// is flushed before every submit too. Call it between ticks.
func (fl *FrameLoop) AddBuffer(b *Buffer) {
	for _, have := range fl.buffers {
		if have == b {
			return
		}
	}
	fl.buffers = append(fl.buffers, b)
}

// Stop asks the loop to stop. The next Tick drains the device instead of
// rendering.
func (fl *FrameLoop) Stop() {
	fl.stopRequested.Store(true)
}

func (fl *FrameLoop) StopRequested() bool {
	return fl.stopRequested.Load()
}

// Tick runs one iteration of the loop. It returns core.ErrStopped once the
// loop has stopped. An image that is not ready yet is not an error: the
// tick returns nil without submitting anything.
func (fl *FrameLoop) Tick() error {
	if fl.state == FRAME_STATE_STOPPED {
		return core.ErrStopped
	}
	if fl.released {
		return errors.Wrap(core.ErrReleased, "frame loop")
	}
	if fl.stopRequested.Load() {
		if err := fl.drain(); err != nil {
			return err
		}
		return core.ErrStopped
	}

	fl.clock.Start()
	for _, b := range fl.buffers {
		if err := b.Flush(); err != nil {
			return err
		}
	}

	if fl.presenter == nil {
		return fl.tickHeadless()
	}
	return fl.tickPresent()
}

// throttle waits for the oldest frame in flight once the limit is reached.
func (fl *FrameLoop) throttle() error {
	if !fl.config.Pipelined || !fl.inFlight.IsFull() {
		return nil
	}
	oldest, err := fl.inFlight.Dequeue()
	if err != nil {
		return err
	}
	if !oldest.Wait(driver.NoTimeout) {
		return errors.Wrap(core.ErrDevice, "waiting for frame in flight")
	}
	return nil
}

func (fl *FrameLoop) tickPresent() error {
	if err := fl.throttle(); err != nil {
		return err
	}

	imageAvailable := fl.imageAvailable[fl.frame]
	renderFinished := fl.renderFinished[fl.frame]

	imageIndex, result := fl.presenter.AcquireNextImage(fl.config.AcquireTimeout, imageAvailable)
	switch result {
	case driver.Success:
	case driver.Suboptimal:
		core.LogWarn("swapchain is suboptimal, presenting anyway")
	case driver.NotReady, driver.Timeout:
		// nothing acquired, nothing submitted: try again next tick
		fl.skipped++
		core.LogDebug("swapchain image not ready (%s), skipping frame", result)
		fl.transition(FRAME_STATE_IDLE)
		return nil
	case driver.ErrorOutOfDate:
		fl.transition(FRAME_STATE_IDLE)
		return errors.Wrap(core.ErrSwapchainOutOfDate, "acquire")
	default:
		fl.transition(FRAME_STATE_IDLE)
		return errors.Wrapf(core.ErrDevice, "acquire: %v", result.Err())
	}
	fl.transition(FRAME_STATE_IMAGE_ACQUIRED)

	slot := int(imageIndex) % fl.sequencer.Slots()
	cb, err := fl.readySlot(slot)
	if err != nil {
		return err
	}

	fence := driver.FenceHandle(driver.NullHandle)
	var pending *Fence
	if fl.config.Pipelined {
		pending = fl.fences[fl.frame]
		if err := pending.Reset(); err != nil {
			return err
		}
		fence = pending.Handle
	}

	submit := driver.SubmitInfo{
		WaitSemaphores:   []driver.SemaphoreHandle{imageAvailable},
		WaitStages:       []driver.PipelineStageFlags{driver.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []driver.CommandBufferHandle{cb.Handle},
		SignalSemaphores: []driver.SemaphoreHandle{renderFinished},
	}
	if err := fl.queue.Submit([]driver.SubmitInfo{submit}, fence); err != nil {
		return errors.Wrapf(core.ErrDevice, "queue submit: %v", err)
	}
	cb.UpdateSubmitted()
	if pending != nil {
		pending.Submitted()
		if err := fl.inFlight.Enqueue(pending); err != nil {
			return err
		}
	}
	fl.transition(FRAME_STATE_SUBMITTED)

	switch result := fl.presenter.Present(imageIndex, []driver.SemaphoreHandle{renderFinished}); result {
	case driver.Success:
	case driver.Suboptimal:
		core.LogWarn("swapchain is suboptimal after present")
	case driver.ErrorOutOfDate:
		fl.transition(FRAME_STATE_IDLE)
		return errors.Wrap(core.ErrSwapchainOutOfDate, "present")
	default:
		fl.transition(FRAME_STATE_IDLE)
		return errors.Wrapf(core.ErrDevice, "present: %v", result.Err())
	}
	fl.transition(FRAME_STATE_PRESENTED)

	if !fl.config.Pipelined {
		if err := fl.queue.WaitIdle(); err != nil {
			return errors.Wrapf(core.ErrDevice, "queue wait idle: %v", err)
		}
		cb.UpdateCompleted()
	}

	fl.endFrame()
	return nil
}

func (fl *FrameLoop) tickHeadless() error {
	slot := int(fl.frames % uint64(fl.sequencer.Slots()))
	cb, err := fl.readySlot(slot)
	if err != nil {
		return err
	}
	fence := fl.fences[0]
	if err := fence.Reset(); err != nil {
		return err
	}

	submit := driver.SubmitInfo{CommandBuffers: []driver.CommandBufferHandle{cb.Handle}}
	if err := fl.queue.Submit([]driver.SubmitInfo{submit}, fence.Handle); err != nil {
		return errors.Wrapf(core.ErrDevice, "queue submit: %v", err)
	}
	fence.Submitted()
	cb.UpdateSubmitted()
	fl.transition(FRAME_STATE_SUBMITTED)

	if !fence.Wait(driver.NoTimeout) {
		return errors.Wrap(core.ErrDevice, "waiting for headless frame")
	}
	cb.UpdateCompleted()
	fl.transition(FRAME_STATE_PRESENTED)

	fl.endFrame()
	return nil
}

func (fl *FrameLoop) readySlot(slot int) (*CommandBuffer, error) {
	if !fl.sequencer.Recorded(slot) {
		return nil, errors.Newf("frame slot %d has no recording", slot)
	}
	return fl.sequencer.CommandBuffer(slot)
}

func (fl *FrameLoop) endFrame() {
	fl.frames++
	fl.frame = (fl.frame + 1) % fl.config.MaxFramesInFlight

	fl.clock.Update()
	if fl.config.Metrics != nil {
		if fl.config.Metrics.Update(fl.clock.Elapsed()) {
			fps, frameTime := fl.config.Metrics.Frame()
			core.LogDebug("%.0f fps, %.3f ms/frame", fps, frameTime)
		}
	}
	fl.clock.Stop()
	fl.transition(FRAME_STATE_IDLE)
}

// drain waits for the device to finish all work and stops the loop.
func (fl *FrameLoop) drain() error {
	if fl.state == FRAME_STATE_STOPPED {
		return nil
	}
	core.LogInfo("stopping frame loop after %d frames, draining device", fl.frames)
	err := fl.device.WaitIdle()
	for !fl.inFlight.IsEmpty() {
		_, _ = fl.inFlight.Dequeue()
	}
	fl.transition(FRAME_STATE_STOPPED)
	if err != nil {
		return errors.Wrapf(core.ErrDevice, "device wait idle: %v", err)
	}
	return nil
}

// Run ticks until Stop is called, ctx is done or a tick fails. The device
// is drained before Run returns.
func (fl *FrameLoop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			fl.Stop()
		default:
		}
		err := fl.Tick()
		if errors.Is(err, core.ErrStopped) {
			return nil
		}
		if err != nil {
			if derr := fl.drain(); derr != nil {
				return errors.CombineErrors(err, derr)
			}
			return err
		}
	}
}

// Release destroys semaphores and fences, draining the device first if
// the loop never stopped.
func (fl *FrameLoop) Release() {
	if fl.released {
		return
	}
	if fl.state != FRAME_STATE_STOPPED && fl.device != nil {
		if err := fl.drain(); err != nil {
			core.LogError("frame loop release: %v", err)
		}
	}
	for _, s := range fl.imageAvailable {
		fl.device.DestroySemaphore(s)
	}
	for _, s := range fl.renderFinished {
		fl.device.DestroySemaphore(s)
	}
	for _, f := range fl.fences {
		f.Destroy()
	}
	fl.imageAvailable = nil
	fl.renderFinished = nil
	fl.fences = nil
	fl.released = true
}
