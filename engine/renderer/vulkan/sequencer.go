package vulkan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

// DrawCall is what a frame slot draws: one indexed draw over the vertex
// buffers. Nil VertexBuffers means the pipeline's own.
type DrawCall struct {
	VertexBuffers []*Buffer
	IndexBuffer   *Buffer
	// Defaults to 1.
	InstanceCount uint32
}

type slotRecording struct {
	valid     bool
	signature string
	drawCount uint32
	pipeline  *Pipeline
}

// CommandSequencer keeps one pre-recorded command buffer per frame slot.
// Slots are recorded all together: re-recording a single slot with a
// different set of buffers would leave the slots disagreeing.
type CommandSequencer struct {
	device driver.CommandDevice
	target metadata.OutputTarget

	pool       driver.CommandPoolHandle
	buffers    []*CommandBuffer
	recordings []slotRecording

	released bool
}

func NewCommandSequencer(device driver.CommandDevice, target metadata.OutputTarget) (*CommandSequencer, error) {
	slots := target.FrameSlots()
	pool, err := device.CreateCommandPool()
	if err != nil {
		return nil, errors.Wrapf(core.ErrAllocation, "command pool: %v", err)
	}
	handles, err := device.AllocateCommandBuffers(pool, uint32(slots))
	if err != nil {
		device.DestroyCommandPool(pool)
		return nil, errors.Wrapf(core.ErrAllocation, "command buffers: %v", err)
	}
	if len(handles) != slots {
		device.FreeCommandBuffers(pool, handles)
		device.DestroyCommandPool(pool)
		return nil, errors.Wrapf(core.ErrAllocation, "command buffers: got %d, want %d", len(handles), slots)
	}

	s := &CommandSequencer{
		device:     device,
		target:     target,
		pool:       pool,
		buffers:    make([]*CommandBuffer, slots),
		recordings: make([]slotRecording, slots),
	}
	for i, h := range handles {
		s.buffers[i] = newCommandBuffer(device, h)
	}
	core.LogDebug("command sequencer for `%s`: %d frame slots", target.Name, slots)
	return s, nil
}

func (s *CommandSequencer) Slots() int                    { return len(s.buffers) }
func (s *CommandSequencer) Target() metadata.OutputTarget { return s.target }

func (s *CommandSequencer) checkSlot(slot int) error {
	if s.released {
		return errors.Wrap(core.ErrReleased, "command sequencer")
	}
	if slot < 0 || slot >= len(s.buffers) {
		return errors.Wrapf(core.ErrOutOfRange, "frame slot %d of %d", slot, len(s.buffers))
	}
	return nil
}

// CommandBuffer returns the command buffer of a slot.
func (s *CommandSequencer) CommandBuffer(slot int) (*CommandBuffer, error) {
	if err := s.checkSlot(slot); err != nil {
		return nil, err
	}
	return s.buffers[slot], nil
}

// Recorded reports whether the slot holds a complete recording.
func (s *CommandSequencer) Recorded(slot int) bool {
	return slot >= 0 && slot < len(s.recordings) && s.recordings[slot].valid
}

// DrawCount is the index count of the draw recorded in a slot.
func (s *CommandSequencer) DrawCount(slot int) uint32 {
	if !s.Recorded(slot) {
		return 0
	}
	return s.recordings[slot].drawCount
}

func (s *CommandSequencer) State(slot int) CommandBufferState {
	if slot < 0 || slot >= len(s.buffers) {
		return COMMAND_BUFFER_STATE_NOT_ALLOCATED
	}
	return s.buffers[slot].State
}

// checkConsistent refuses to record a slot with a signature that differs
// from what the other recorded slots hold.
func (s *CommandSequencer) checkConsistent(slot int, signature string) error {
	for i, r := range s.recordings {
		if i == slot || !r.valid {
			continue
		}
		if r.signature != signature {
			return errors.Wrapf(core.ErrPartialRerecord, "slot %d", slot)
		}
	}
	return nil
}

// Record records one slot. The buffers must match what the other recorded
// slots hold; use RecordAll to change them.
func (s *CommandSequencer) Record(slot int, pipeline *Pipeline, draw DrawCall) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	plan, err := s.planDraw(pipeline, draw)
	if err != nil {
		return err
	}
	if err := s.checkConsistent(slot, plan.signature); err != nil {
		return err
	}
	return s.recordDraw(slot, pipeline, plan)
}

// RecordAll re-records every frame slot. If any slot fails, every slot is
// left without a recording so the frame loop refuses to submit.
func (s *CommandSequencer) RecordAll(pipeline *Pipeline, draw DrawCall) error {
	if err := s.checkSlot(0); err != nil {
		return err
	}
	plan, err := s.planDraw(pipeline, draw)
	if err != nil {
		return err
	}
	s.Invalidate()
	for slot := range s.buffers {
		if err := s.recordDraw(slot, pipeline, plan); err != nil {
			s.Invalidate()
			return errors.Wrapf(err, "recording frame slot %d of %d", slot, len(s.buffers))
		}
	}
	return nil
}

// RecordDispatchAll records the same dispatch into every frame slot, with
// the failure handling of RecordAll.
func (s *CommandSequencer) RecordDispatchAll(pipeline *Pipeline, groups [3]uint32) error {
	if err := s.checkSlot(0); err != nil {
		return err
	}
	s.Invalidate()
	for slot := range s.buffers {
		if err := s.RecordDispatch(slot, pipeline, groups); err != nil {
			s.Invalidate()
			return errors.Wrapf(err, "recording frame slot %d of %d", slot, len(s.buffers))
		}
	}
	return nil
}

type drawPlan struct {
	vertex    []*Buffer
	index     *Buffer
	drawCount uint32
	instances uint32
	signature string
}

func (s *CommandSequencer) planDraw(pipeline *Pipeline, draw DrawCall) (*drawPlan, error) {
	if pipeline == nil || pipeline.Released() {
		return nil, errors.Wrap(core.ErrReleased, "pipeline")
	}
	if pipeline.BindPoint() != driver.PipelineBindPointGraphics {
		return nil, errors.Newf("pipeline `%s` is not a graphics pipeline", pipeline.Name())
	}
	if draw.IndexBuffer == nil || draw.IndexBuffer.Usage() != metadata.BUFFER_USAGE_INDEX {
		return nil, errors.Wrapf(core.ErrVertexFormat, "pipeline `%s`: draw needs an index buffer", pipeline.Name())
	}
	if draw.IndexBuffer.Released() {
		return nil, errors.Wrapf(core.ErrReleased, "index buffer `%s`", draw.IndexBuffer.Name())
	}

	vertex := draw.VertexBuffers
	if vertex == nil {
		vertex = pipeline.VertexBuffers()
	}
	vertex = append([]*Buffer(nil), vertex...)
	sort.Slice(vertex, func(i, j int) bool { return vertex[i].Binding() < vertex[j].Binding() })

	expected := pipeline.BindingDescriptions()
	if len(vertex) != len(expected) {
		return nil, errors.Wrapf(core.ErrVertexFormat, "pipeline `%s` expects %d vertex buffers, got %d", pipeline.Name(), len(expected), len(vertex))
	}
	for i, b := range vertex {
		if b.Usage() != metadata.BUFFER_USAGE_VERTEX || b.Binding() != expected[i].Binding || b.VertexStride() != expected[i].Stride {
			return nil, errors.Wrapf(core.ErrVertexFormat, "pipeline `%s`: buffer `%s` does not match vertex binding %d", pipeline.Name(), b.Name(), expected[i].Binding)
		}
		if b.Released() {
			return nil, errors.Wrapf(core.ErrReleased, "vertex buffer `%s`", b.Name())
		}
	}

	instances := draw.InstanceCount
	if instances == 0 {
		instances = 1
	}

	var sig strings.Builder
	fmt.Fprintf(&sig, "draw p=%d i=%d n=%d v=", pipeline.Handle(), draw.IndexBuffer.Handle(), instances)
	for _, b := range vertex {
		fmt.Fprintf(&sig, "%d:%d,", b.Binding(), b.Handle())
	}

	return &drawPlan{
		vertex:    vertex,
		index:     draw.IndexBuffer,
		drawCount: uint32(draw.IndexBuffer.ElementCount()),
		instances: instances,
		signature: sig.String(),
	}, nil
}

func (s *CommandSequencer) beginSlot(slot int) (*CommandBuffer, error) {
	cb := s.buffers[slot]
	s.recordings[slot].valid = false
	// the pool resets buffers implicitly on begin
	cb.Reset()
	// the same recording is resubmitted every frame it is current
	if err := cb.Begin(false, false, true); err != nil {
		return nil, err
	}
	return cb, nil
}

func (s *CommandSequencer) bindDescriptorSets(cb *CommandBuffer, pipeline *Pipeline) {
	if reg := pipeline.Registry(); reg != nil {
		if sets := reg.DescriptorSets(); len(sets) > 0 {
			s.device.CmdBindDescriptorSets(cb.Handle, pipeline.BindPoint(), pipeline.Layout(), 0, sets)
		}
	}
}

func (s *CommandSequencer) recordDraw(slot int, pipeline *Pipeline, plan *drawPlan) error {
	cb, err := s.beginSlot(slot)
	if err != nil {
		return err
	}

	if s.target.HasRenderPass() {
		cb.BeginRenderPass(driver.RenderPassBeginInfo{
			RenderPass:  s.target.RenderPass,
			Framebuffer: s.target.Framebuffer(slot),
			Extent:      s.target.Extent,
			ClearColor:  s.target.ClearColor,
			ClearDepth:  s.target.ClearDepth,
		})
	}
	s.device.CmdSetViewport(cb.Handle, s.target.Extent)
	s.device.CmdSetScissor(cb.Handle, s.target.Extent)
	s.device.CmdBindPipeline(cb.Handle, driver.PipelineBindPointGraphics, pipeline.Handle())
	s.bindDescriptorSets(cb, pipeline)

	// one bind call per run of consecutive bindings
	for start := 0; start < len(plan.vertex); {
		end := start + 1
		for end < len(plan.vertex) && plan.vertex[end].Binding() == plan.vertex[end-1].Binding()+1 {
			end++
		}
		handles := make([]driver.BufferHandle, 0, end-start)
		offsets := make([]uint64, end-start)
		for _, b := range plan.vertex[start:end] {
			handles = append(handles, b.Handle())
		}
		s.device.CmdBindVertexBuffers(cb.Handle, plan.vertex[start].Binding(), handles, offsets)
		start = end
	}

	s.device.CmdBindIndexBuffer(cb.Handle, plan.index.Handle(), 0, plan.index.IndexType())
	s.device.CmdDrawIndexed(cb.Handle, plan.drawCount, plan.instances, 0, 0, 0)

	if cb.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		cb.EndRenderPass()
	}
	if err := cb.End(); err != nil {
		return err
	}

	s.recordings[slot] = slotRecording{
		valid:     true,
		signature: plan.signature,
		drawCount: plan.drawCount,
		pipeline:  pipeline,
	}
	return nil
}

// RecordDispatch records a compute dispatch of groups workgroups into a
// slot.
func (s *CommandSequencer) RecordDispatch(slot int, pipeline *Pipeline, groups [3]uint32) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if pipeline == nil || pipeline.Released() {
		return errors.Wrap(core.ErrReleased, "pipeline")
	}
	if pipeline.BindPoint() != driver.PipelineBindPointCompute {
		return errors.Newf("pipeline `%s` is not a compute pipeline", pipeline.Name())
	}
	for i := range groups {
		if groups[i] == 0 {
			groups[i] = 1
		}
	}
	signature := fmt.Sprintf("dispatch p=%d g=%v", pipeline.Handle(), groups)
	if err := s.checkConsistent(slot, signature); err != nil {
		return err
	}

	cb, err := s.beginSlot(slot)
	if err != nil {
		return err
	}
	s.device.CmdBindPipeline(cb.Handle, driver.PipelineBindPointCompute, pipeline.Handle())
	s.bindDescriptorSets(cb, pipeline)
	s.device.CmdDispatch(cb.Handle, groups[0], groups[1], groups[2])
	if err := cb.End(); err != nil {
		return err
	}
	s.recordings[slot] = slotRecording{valid: true, signature: signature, pipeline: pipeline}
	return nil
}

// Retarget points the sequencer at a rebuilt target, e.g. after the
// swapchain was recreated. Every slot has to be recorded again.
func (s *CommandSequencer) Retarget(target metadata.OutputTarget) error {
	if target.FrameSlots() != len(s.buffers) {
		return errors.Newf("target `%s` has %d frame slots, sequencer has %d", target.Name, target.FrameSlots(), len(s.buffers))
	}
	s.target = target
	s.Invalidate()
	return nil
}

// Invalidate drops every recording, e.g. before the pipeline is rebuilt.
func (s *CommandSequencer) Invalidate() {
	for i := range s.recordings {
		s.recordings[i] = slotRecording{}
	}
}

// Release frees the command buffers and the pool. Safe to call twice.
func (s *CommandSequencer) Release() {
	if s.released {
		return
	}
	handles := make([]driver.CommandBufferHandle, 0, len(s.buffers))
	for _, cb := range s.buffers {
		handles = append(handles, cb.Handle)
		cb.Handle = driver.NullHandle
		cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
	}
	if len(handles) > 0 {
		s.device.FreeCommandBuffers(s.pool, handles)
	}
	s.device.DestroyCommandPool(s.pool)
	s.pool = driver.NullHandle
	s.Invalidate()
	s.released = true
}
