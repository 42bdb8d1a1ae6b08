package vulkan

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

type scene struct {
	device   *drivertest.Device
	pool     *DescriptorPool
	position *Buffer
	color    *Buffer
	indices  *Buffer
	pipeline *Pipeline
}

// newScene builds a triangle list of n vertices with a position and a
// color vertex buffer, an index buffer and a uniform in the material set.
func newScene(t *testing.T, n int) *scene {
	t.Helper()
	device := drivertest.NewDevice()
	s := &scene{device: device, pool: finalizedPool(t, device)}

	pos := vertex("position", 0, 0, n, 3)
	pos.Compact = true
	s.position = mustBuffer(t, device, pos)
	s.color = mustBuffer(t, device, vertex("color", 1, 1, n, 3))
	s.indices = mustBuffer(t, device, index("indices", n))

	indices := make([]uint32, n)
	for i := range indices {
		indices[i] = uint32(i)
	}
	if err := Set(s.indices, indices); err != nil {
		t.Fatal(err)
	}

	p, err := BuildPipeline(device, PipelineConfig{
		Name:          "scene",
		Stages:        graphicsStages(SlotRef{Role: metadata.SET_ROLE_MATERIAL, Kind: metadata.DESCRIPTOR_KIND_UNIFORM}),
		VertexBuffers: []*Buffer{s.position, s.color},
		Registry:      s.pool,
		FixedFunction: metadata.DefaultFixedFunctionState(),
		Output:        surfaceTarget(),
	})
	if err != nil {
		t.Fatal(err)
	}
	s.pipeline = p
	return s
}

func (s *scene) release() {
	s.pipeline.Release()
	s.position.Release()
	s.color.Release()
	s.indices.Release()
	s.pool.Release()
}

func mustSequencer(t *testing.T, device driver.CommandDevice, target metadata.OutputTarget) *CommandSequencer {
	t.Helper()
	seq, err := NewCommandSequencer(device, target)
	if err != nil {
		t.Fatal(err)
	}
	return seq
}

func TestSequencerFrameSlots(t *testing.T) {
	device := drivertest.NewDevice()

	surface := mustSequencer(t, device, surfaceTarget())
	defer surface.Release()
	if surface.Slots() != metadata.SURFACE_FRAME_SLOTS {
		t.Errorf("surface target: %d slots", surface.Slots())
	}

	offscreen := mustSequencer(t, device, metadata.OutputTarget{Name: "compute", Kind: metadata.OUTPUT_KIND_OFFSCREEN})
	defer offscreen.Release()
	if offscreen.Slots() != metadata.OFFSCREEN_FRAME_SLOTS {
		t.Errorf("offscreen target: %d slots", offscreen.Slots())
	}

	target := surfaceTarget()
	target.Slots = 2
	two := mustSequencer(t, device, target)
	defer two.Release()
	if two.Slots() != 2 {
		t.Errorf("explicit slot count: %d slots", two.Slots())
	}
}

func TestSequencerRecordAll(t *testing.T) {
	const n = 6
	s := newScene(t, n)
	defer s.release()

	seq := mustSequencer(t, s.device, surfaceTarget())
	defer seq.Release()

	if err := seq.RecordAll(s.pipeline, DrawCall{IndexBuffer: s.indices}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Begin", "BeginRenderPass", "SetViewport", "SetScissor", "BindPipeline", "BindDescriptorSets",
		"BindVertexBuffers", "BindIndexBuffer", "DrawIndexed", "EndRenderPass", "End",
	}
	for slot := 0; slot < seq.Slots(); slot++ {
		if !seq.Recorded(slot) || seq.DrawCount(slot) != n {
			t.Fatalf("slot %d: recorded %v, draw count %d", slot, seq.Recorded(slot), seq.DrawCount(slot))
		}
		if seq.State(slot) != COMMAND_BUFFER_STATE_RECORDING_ENDED {
			t.Fatalf("slot %d left in state %s", slot, seq.State(slot))
		}
		cb, _ := seq.CommandBuffer(slot)
		if got := s.device.CommandNames(cb.Handle); !reflect.DeepEqual(got, want) {
			t.Fatalf("slot %d commands\nwant %v\ngot  %v", slot, want, got)
		}

		cmds := s.device.Commands[cb.Handle]
		pass := cmds[1].Args[0].(driver.RenderPassBeginInfo)
		if pass.Framebuffer != surfaceTarget().Framebuffers[slot] {
			t.Errorf("slot %d renders into framebuffer %d", slot, pass.Framebuffer)
		}
		// positions and colors sit on bindings 0 and 1: one bind call
		if first, bufs := cmds[6].Args[0].(uint32), cmds[6].Args[1].([]driver.BufferHandle); first != 0 || len(bufs) != 2 {
			t.Errorf("vertex bind: first %d, %d buffers", first, len(bufs))
		}
		if draw := cmds[8].Args; draw[0].(uint32) != n || draw[1].(uint32) != 1 {
			t.Errorf("draw indexed with %v", draw)
		}
		if sets := cmds[5].Args[3].([]driver.DescriptorSetHandle); len(sets) != metadata.SET_ROLE_COUNT {
			t.Errorf("bound %d descriptor sets", len(sets))
		}
	}
}

func TestSequencerPartialRerecord(t *testing.T) {
	s := newScene(t, 3)
	defer s.release()

	other := mustBuffer(t, s.device, index("other", 3))
	defer other.Release()

	seq := mustSequencer(t, s.device, surfaceTarget())
	defer seq.Release()

	if err := seq.RecordAll(s.pipeline, DrawCall{IndexBuffer: s.indices}); err != nil {
		t.Fatal(err)
	}
	if err := seq.Record(1, s.pipeline, DrawCall{IndexBuffer: other}); !errors.Is(err, core.ErrPartialRerecord) {
		t.Fatalf("expected ErrPartialRerecord, got %v", err)
	}
	if !seq.Recorded(1) {
		t.Fatal("a refused re-record must leave the slot intact")
	}

	// the same buffers can be recorded again
	if err := seq.Record(1, s.pipeline, DrawCall{IndexBuffer: s.indices}); err != nil {
		t.Fatal(err)
	}

	// RecordAll switches every slot at once
	if err := seq.RecordAll(s.pipeline, DrawCall{IndexBuffer: other}); err != nil {
		t.Fatal(err)
	}
	for slot := 0; slot < seq.Slots(); slot++ {
		cb, _ := seq.CommandBuffer(slot)
		cmds := s.device.Commands[cb.Handle]
		if got := cmds[7].Args[0].(driver.BufferHandle); got != other.Handle() {
			t.Fatalf("slot %d still binds index buffer %d", slot, got)
		}
	}
}

func TestSequencerRetarget(t *testing.T) {
	s := newScene(t, 3)
	defer s.release()

	seq := mustSequencer(t, s.device, surfaceTarget())
	defer seq.Release()
	if err := seq.RecordAll(s.pipeline, DrawCall{IndexBuffer: s.indices}); err != nil {
		t.Fatal(err)
	}

	resized := surfaceTarget()
	resized.Extent = driver.Extent2D{Width: 1024, Height: 768}
	resized.Framebuffers = []driver.FramebufferHandle{911, 912, 913}
	if err := seq.Retarget(resized); err != nil {
		t.Fatal(err)
	}
	for slot := 0; slot < seq.Slots(); slot++ {
		if seq.Recorded(slot) {
			t.Fatalf("slot %d kept a recording for the old target", slot)
		}
	}

	if err := seq.RecordAll(s.pipeline, DrawCall{IndexBuffer: s.indices}); err != nil {
		t.Fatal(err)
	}
	cb, _ := seq.CommandBuffer(2)
	pass := s.device.Commands[cb.Handle][1].Args[0].(driver.RenderPassBeginInfo)
	if pass.Framebuffer != 913 || pass.Extent.Width != 1024 {
		t.Errorf("slot 2 renders into framebuffer %d at %v", pass.Framebuffer, pass.Extent)
	}

	single := surfaceTarget()
	single.Slots = 1
	if err := seq.Retarget(single); err == nil {
		t.Fatal("retargeting to a different slot count must fail")
	}
}

func TestSequencerVertexRuns(t *testing.T) {
	device := drivertest.NewDevice()
	a := mustBuffer(t, device, vertex("a", 0, 0, 3, 3))
	b := mustBuffer(t, device, vertex("b", 1, 1, 3, 3))
	c := mustBuffer(t, device, vertex("c", 2, 3, 3, 3))
	idx := mustBuffer(t, device, index("idx", 3))
	defer func() {
		for _, buf := range []*Buffer{a, b, c, idx} {
			buf.Release()
		}
	}()

	offscreen := metadata.OutputTarget{Name: "offscreen", Kind: metadata.OUTPUT_KIND_OFFSCREEN, Extent: driver.Extent2D{Width: 64, Height: 64}}
	p, err := BuildPipeline(device, PipelineConfig{
		Name:          "runs",
		Stages:        graphicsStages(),
		VertexBuffers: []*Buffer{c, a, b},
		Output:        offscreen,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	seq := mustSequencer(t, device, offscreen)
	defer seq.Release()
	if err := seq.Record(0, p, DrawCall{IndexBuffer: idx, InstanceCount: 4}); err != nil {
		t.Fatal(err)
	}

	cb, _ := seq.CommandBuffer(0)
	var binds []vertexBind
	for _, cmd := range device.Commands[cb.Handle] {
		if cmd.Name == "BindVertexBuffers" {
			binds = append(binds, vertexBind{first: cmd.Args[0].(uint32), count: len(cmd.Args[1].([]driver.BufferHandle))})
		}
		if cmd.Name == "BeginRenderPass" || cmd.Name == "BindDescriptorSets" {
			t.Errorf("unexpected %s without a render pass or registry", cmd.Name)
		}
	}
	want := []vertexBind{{first: 0, count: 2}, {first: 3, count: 1}}
	if !reflect.DeepEqual(binds, want) {
		t.Fatalf("vertex binds\nwant %+v\ngot  %+v", want, binds)
	}
}

type vertexBind struct {
	first uint32
	count int
}

func TestSequencerRejectsMismatchedDraw(t *testing.T) {
	s := newScene(t, 3)
	defer s.release()

	seq := mustSequencer(t, s.device, surfaceTarget())
	defer seq.Release()

	if err := seq.RecordAll(s.pipeline, DrawCall{}); !errors.Is(err, core.ErrVertexFormat) {
		t.Errorf("missing index buffer: expected ErrVertexFormat, got %v", err)
	}
	if err := seq.RecordAll(s.pipeline, DrawCall{VertexBuffers: []*Buffer{s.position}, IndexBuffer: s.indices}); !errors.Is(err, core.ErrVertexFormat) {
		t.Errorf("missing vertex buffer: expected ErrVertexFormat, got %v", err)
	}
	if err := seq.Record(3, s.pipeline, DrawCall{IndexBuffer: s.indices}); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("slot out of range: expected ErrOutOfRange, got %v", err)
	}

	s.indices.Release()
	if err := seq.RecordAll(s.pipeline, DrawCall{IndexBuffer: s.indices}); !errors.Is(err, core.ErrReleased) {
		t.Errorf("released index buffer: expected ErrReleased, got %v", err)
	}
}

func TestSequencerDispatch(t *testing.T) {
	device := drivertest.NewDevice()
	pool := finalizedPool(t, device)
	defer pool.Release()

	p, err := BuildPipeline(device, PipelineConfig{
		Name:     "compute",
		Stages:   []ShaderStage{{Stage: metadata.ShaderStageCompute, Code: spirv}},
		Registry: pool,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	seq := mustSequencer(t, device, metadata.OutputTarget{Name: "compute", Kind: metadata.OUTPUT_KIND_OFFSCREEN})
	defer seq.Release()
	if err := seq.RecordDispatch(0, p, [3]uint32{8, 0, 0}); err != nil {
		t.Fatal(err)
	}

	cb, _ := seq.CommandBuffer(0)
	want := []string{"Begin", "BindPipeline", "BindDescriptorSets", "Dispatch", "End"}
	if got := device.CommandNames(cb.Handle); !reflect.DeepEqual(got, want) {
		t.Fatalf("commands\nwant %v\ngot  %v", want, got)
	}
	dispatch := device.Commands[cb.Handle][3].Args
	if dispatch[0].(uint32) != 8 || dispatch[1].(uint32) != 1 || dispatch[2].(uint32) != 1 {
		t.Fatalf("dispatch groups %v", dispatch)
	}
}

func TestSequencerRecordAllFailureDropsEverySlot(t *testing.T) {
	for _, call := range []string{"BeginCommandBuffer", "EndCommandBuffer"} {
		t.Run(call, func(t *testing.T) {
			s := newScene(t, 3)
			defer s.release()
			seq := mustSequencer(t, s.device, surfaceTarget())
			defer seq.Release()

			if err := seq.RecordAll(s.pipeline, DrawCall{IndexBuffer: s.indices}); err != nil {
				t.Fatal(err)
			}
			// the re-record fails on its second slot
			s.device.FailFrom[call] = s.device.Count(call) + 2
			if err := seq.RecordAll(s.pipeline, DrawCall{IndexBuffer: s.indices}); !errors.Is(err, core.ErrDevice) {
				t.Fatalf("expected ErrDevice, got %v", err)
			}
			for slot := 0; slot < seq.Slots(); slot++ {
				if seq.Recorded(slot) {
					t.Errorf("slot %d kept a recording after a failed RecordAll", slot)
				}
			}
		})
	}
}

func TestSequencerDispatchAllFailureDropsEverySlot(t *testing.T) {
	device := drivertest.NewDevice()
	pool := finalizedPool(t, device)
	defer pool.Release()
	p, err := BuildPipeline(device, PipelineConfig{
		Name:     "compute",
		Stages:   []ShaderStage{{Stage: metadata.ShaderStageCompute, Code: spirv}},
		Registry: pool,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	seq := mustSequencer(t, device, surfaceTarget())
	defer seq.Release()
	if err := seq.RecordDispatchAll(p, [3]uint32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	for slot := 0; slot < seq.Slots(); slot++ {
		if !seq.Recorded(slot) {
			t.Fatalf("slot %d not recorded", slot)
		}
	}

	device.FailFrom["EndCommandBuffer"] = device.Count("EndCommandBuffer") + 3
	if err := seq.RecordDispatchAll(p, [3]uint32{2, 1, 1}); !errors.Is(err, core.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	for slot := 0; slot < seq.Slots(); slot++ {
		if seq.Recorded(slot) {
			t.Errorf("slot %d kept a recording after a failed RecordDispatchAll", slot)
		}
	}
}

func TestSequencerRelease(t *testing.T) {
	device := drivertest.NewDevice()
	seq := mustSequencer(t, device, surfaceTarget())

	seq.Release()
	seq.Release()

	if device.Live("command_buffer") != 0 || device.Live("command_pool") != 0 {
		t.Fatal("command buffers or pool left alive")
	}
	if _, err := seq.CommandBuffer(0); !errors.Is(err, core.ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
}
