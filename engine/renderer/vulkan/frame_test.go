package vulkan

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

type loopFixture struct {
	*scene
	queue     *drivertest.Queue
	presenter *drivertest.Presenter
	sequencer *CommandSequencer
	loop      *FrameLoop
	log       []string
	states    []FrameState
}

func newLoopFixture(t *testing.T, config FrameLoopConfig) *loopFixture {
	t.Helper()
	f := &loopFixture{scene: newScene(t, 3)}
	f.queue = drivertest.NewQueue(f.device)
	f.queue.Log = &f.log
	f.presenter = drivertest.NewPresenter(3)
	f.presenter.Log = &f.log

	f.sequencer = mustSequencer(t, f.device, surfaceTarget())
	if err := f.sequencer.RecordAll(f.pipeline, DrawCall{IndexBuffer: f.indices}); err != nil {
		t.Fatal(err)
	}

	config.OnTransition = func(from, to FrameState) {
		f.states = append(f.states, to)
	}
	loop, err := NewFrameLoop(f.device, f.queue, f.presenter, f.sequencer, config)
	if err != nil {
		t.Fatal(err)
	}
	f.loop = loop
	return f
}

func (f *loopFixture) release() {
	f.loop.Release()
	f.sequencer.Release()
	f.scene.release()
}

func TestFrameLoopPresents(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()

	if err := f.loop.Tick(); err != nil {
		t.Fatal(err)
	}

	wantStates := []FrameState{FRAME_STATE_IMAGE_ACQUIRED, FRAME_STATE_SUBMITTED, FRAME_STATE_PRESENTED, FRAME_STATE_IDLE}
	if !reflect.DeepEqual(f.states, wantStates) {
		t.Fatalf("transitions\nwant %v\ngot  %v", wantStates, f.states)
	}
	wantLog := []string{"acquire:success", "submit", "present", "queue_wait_idle"}
	if !reflect.DeepEqual(f.log, wantLog) {
		t.Fatalf("calls\nwant %v\ngot  %v", wantLog, f.log)
	}

	submit := f.queue.Submits[0]
	if submit.Fence != driver.NullHandle {
		t.Error("the default loop waits for idle and submits without a fence")
	}
	info := submit.Infos[0]
	if len(info.WaitSemaphores) != 1 || len(info.SignalSemaphores) != 1 || info.WaitSemaphores[0] == info.SignalSemaphores[0] {
		t.Fatalf("submit should wait on image available and signal render finished: %+v", info)
	}
	if !reflect.DeepEqual(info.WaitStages, []driver.PipelineStageFlags{driver.PipelineStageColorAttachmentOutput}) {
		t.Fatalf("submit waits at %v", info.WaitStages)
	}
	cb, _ := f.sequencer.CommandBuffer(0)
	if info.CommandBuffers[0] != cb.Handle {
		t.Fatal("image 0 should submit the command buffer of slot 0")
	}
	if cb.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
		t.Fatalf("command buffer left in state %s", cb.State)
	}
	if f.loop.Frames() != 1 || f.loop.State() != FRAME_STATE_IDLE {
		t.Fatalf("frames %d, state %s", f.loop.Frames(), f.loop.State())
	}
}

func TestFrameLoopImageNotReady(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()
	f.presenter.AcquireResults = []driver.Result{driver.NotReady}

	if err := f.loop.Tick(); err != nil {
		t.Fatalf("an image that is not ready is not an error: %v", err)
	}
	if len(f.queue.Submits) != 0 || len(f.presenter.Presented) != 0 {
		t.Fatal("nothing may be submitted or presented without an image")
	}
	if f.loop.SkippedFrames() != 1 || f.loop.State() != FRAME_STATE_IDLE || len(f.states) != 0 {
		t.Fatalf("skipped %d, state %s, transitions %v", f.loop.SkippedFrames(), f.loop.State(), f.states)
	}

	if err := f.loop.Tick(); err != nil {
		t.Fatal(err)
	}
	want := []string{"acquire:not_ready", "acquire:success", "submit", "present", "queue_wait_idle"}
	if !reflect.DeepEqual(f.log, want) {
		t.Fatalf("calls\nwant %v\ngot  %v", want, f.log)
	}
	if f.loop.Frames() != 1 {
		t.Fatalf("expected one presented frame, got %d", f.loop.Frames())
	}
}

func TestFrameLoopOutOfDate(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()

	f.presenter.AcquireResults = []driver.Result{driver.ErrorOutOfDate}
	if err := f.loop.Tick(); !errors.Is(err, core.ErrSwapchainOutOfDate) {
		t.Fatalf("expected ErrSwapchainOutOfDate, got %v", err)
	}
	if f.loop.State() != FRAME_STATE_IDLE {
		t.Fatalf("state %s", f.loop.State())
	}

	f.presenter.PresentResults = []driver.Result{driver.ErrorOutOfDate}
	if err := f.loop.Tick(); !errors.Is(err, core.ErrSwapchainOutOfDate) {
		t.Fatalf("present: expected ErrSwapchainOutOfDate, got %v", err)
	}
	if f.loop.State() != FRAME_STATE_IDLE {
		t.Fatalf("state %s", f.loop.State())
	}

	f.presenter.AcquireResults = []driver.Result{driver.ErrorDeviceLost}
	if err := f.loop.Tick(); !errors.Is(err, core.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
}

func TestFrameLoopSlotsFollowImages(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()

	for i := 0; i < 4; i++ {
		if err := f.loop.Tick(); err != nil {
			t.Fatal(err)
		}
	}
	for i, submit := range f.queue.Submits {
		cb, _ := f.sequencer.CommandBuffer(i % 3)
		if submit.Infos[0].CommandBuffers[0] != cb.Handle {
			t.Fatalf("frame %d submitted the wrong slot", i)
		}
	}
	if !reflect.DeepEqual(f.presenter.Presented, []uint32{0, 1, 2, 0}) {
		t.Fatalf("presented %v", f.presenter.Presented)
	}
}

func TestFrameLoopPipelined(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{Pipelined: true, MaxFramesInFlight: 2})
	defer f.release()

	for i := 0; i < 5; i++ {
		if err := f.loop.Tick(); err != nil {
			t.Fatal(err)
		}
	}
	if f.queue.WaitIdles != 0 {
		t.Fatal("a pipelined loop must not wait for the queue after present")
	}
	for i, submit := range f.queue.Submits {
		if submit.Fence == driver.NullHandle {
			t.Fatalf("frame %d submitted without a fence", i)
		}
	}
	if f.queue.Submits[0].Fence == f.queue.Submits[1].Fence || f.queue.Submits[0].Fence != f.queue.Submits[2].Fence {
		t.Fatal("frames in flight should rotate through their fences")
	}
	// the first two frames fill the queue, the next three wait on the oldest
	if n := f.device.Count("WaitForFences"); n != 3 {
		t.Fatalf("expected 3 fence waits, got %d", n)
	}
	if n := f.device.Count("ResetFences"); n != 3 {
		t.Fatalf("expected 3 fence resets, got %d", n)
	}
}

func TestFrameLoopStop(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()

	if err := f.loop.Tick(); err != nil {
		t.Fatal(err)
	}
	f.loop.Stop()
	if err := f.loop.Tick(); !errors.Is(err, core.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if f.loop.State() != FRAME_STATE_STOPPED || f.device.WaitIdles != 1 {
		t.Fatalf("state %s, device waits %d", f.loop.State(), f.device.WaitIdles)
	}
	if err := f.loop.Tick(); !errors.Is(err, core.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if f.device.WaitIdles != 1 || len(f.queue.Submits) != 1 {
		t.Fatal("a stopped loop must not touch the device again")
	}
}

func TestFrameLoopRunStopsOnCancel(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.loop.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if f.loop.State() != FRAME_STATE_STOPPED {
		t.Fatalf("state %s", f.loop.State())
	}
}

func TestFrameLoopStopFromAnotherGoroutine(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.loop.Stop()
	}()
	wg.Wait()

	if !f.loop.StopRequested() {
		t.Fatal("stop request lost")
	}
	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.queue.Submits) != 0 {
		t.Fatal("no frame should run after stop")
	}
}

func TestFrameLoopFlushesBuffers(t *testing.T) {
	device := drivertest.NewDevice().NonCoherentOnly()
	b := mustBuffer(t, device, storage("params", metadata.ELEMENT_TYPE_FLOAT, true, 4))
	defer b.Release()

	seq := mustSequencer(t, device, metadata.OutputTarget{Name: "compute", Kind: metadata.OUTPUT_KIND_OFFSCREEN})
	defer seq.Release()
	p, err := BuildPipeline(device, PipelineConfig{Name: "c", Stages: []ShaderStage{{Stage: metadata.ShaderStageCompute, Code: spirv}}})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	if err := seq.RecordDispatch(0, p, [3]uint32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}

	loop, err := NewFrameLoop(device, drivertest.NewQueue(device), nil, seq, FrameLoopConfig{Buffers: []*Buffer{b}})
	if err != nil {
		t.Fatal(err)
	}
	defer loop.Release()

	if err := Set(b, []float32{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := loop.Tick(); err != nil {
		t.Fatal(err)
	}
	if b.Dirty() {
		t.Fatal("buffers must be flushed before submit")
	}
}

func TestFrameLoopRefusesFailedRerecord(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()

	if err := f.loop.Tick(); err != nil {
		t.Fatal(err)
	}
	f.device.FailFrom["BeginCommandBuffer"] = f.device.Count("BeginCommandBuffer") + 2
	if err := f.sequencer.RecordAll(f.pipeline, DrawCall{IndexBuffer: f.indices}); err == nil {
		t.Fatal("expected the re-record to fail")
	}

	for i := 0; i < f.sequencer.Slots(); i++ {
		err := f.loop.Tick()
		if err == nil || !strings.Contains(err.Error(), "has no recording") {
			t.Fatalf("tick %d: expected a missing recording error, got %v", i, err)
		}
	}
	if n := len(f.queue.Submits); n != 1 {
		t.Fatalf("%d submits, only the frame before the failed re-record should be submitted", n)
	}
}

func TestFrameLoopFlushesBuffersAddedLater(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{})
	defer f.release()
	device := drivertest.NewDevice().NonCoherentOnly()
	late := mustBuffer(t, device, storage("late", metadata.ELEMENT_TYPE_FLOAT, true, 4))
	defer late.Release()

	f.loop.AddBuffer(late)
	f.loop.AddBuffer(late)
	if err := Set(late, []float32{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	before := len(device.Flushes)
	if err := f.loop.Tick(); err != nil {
		t.Fatal(err)
	}
	if late.Dirty() {
		t.Fatal("a buffer added after the loop was created must be flushed before submit")
	}
	if n := len(device.Flushes) - before; n != 1 {
		t.Fatalf("%d flushes on tick, want 1", n)
	}
}

func TestFrameLoopHeadless(t *testing.T) {
	device := drivertest.NewDevice()
	queue := drivertest.NewQueue(device)

	seq := mustSequencer(t, device, metadata.OutputTarget{Name: "compute", Kind: metadata.OUTPUT_KIND_OFFSCREEN})
	defer seq.Release()
	p, err := BuildPipeline(device, PipelineConfig{Name: "c", Stages: []ShaderStage{{Stage: metadata.ShaderStageCompute, Code: spirv}}})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	if err := seq.RecordDispatch(0, p, [3]uint32{4, 4, 1}); err != nil {
		t.Fatal(err)
	}

	metrics := core.NewFrameMetrics()
	loop, err := NewFrameLoop(device, queue, nil, seq, FrameLoopConfig{Metrics: metrics})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := loop.Tick(); err != nil {
			t.Fatal(err)
		}
	}
	if device.Count("CreateSemaphore") != 0 {
		t.Fatal("a headless loop needs no semaphores")
	}
	if len(queue.Submits) != 2 || queue.Submits[0].Fence == driver.NullHandle {
		t.Fatalf("expected two fenced submits, got %+v", queue.Submits)
	}
	if len(queue.Submits[0].Infos[0].WaitSemaphores) != 0 {
		t.Fatal("headless submits wait on nothing")
	}
	if loop.Frames() != 2 || metrics.TotalFrames() != 2 {
		t.Fatalf("frames %d, metrics %d", loop.Frames(), metrics.TotalFrames())
	}

	loop.Release()
	loop.Release()
	if device.Live("fence") != 0 || device.Live("semaphore") != 0 {
		t.Fatal("sync objects left alive")
	}
	if loop.State() != FRAME_STATE_STOPPED {
		t.Fatalf("release should drain the loop, state %s", loop.State())
	}
}

func TestFrameLoopReleaseDestroysSyncObjects(t *testing.T) {
	f := newLoopFixture(t, FrameLoopConfig{MaxFramesInFlight: 3})
	if n := f.device.Live("semaphore"); n != 6 {
		t.Fatalf("expected two semaphores per frame in flight, got %d", n)
	}
	f.release()
	if n := f.device.Live(""); n != 0 {
		t.Fatalf("%d objects left after teardown", n)
	}
	if f.device.DoubleFree != 0 {
		t.Fatalf("%d double frees", f.device.DoubleFree)
	}
}
