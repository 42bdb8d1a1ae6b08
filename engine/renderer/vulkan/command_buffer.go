package vulkan

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

func (s CommandBufferState) String() string {
	switch s {
	case COMMAND_BUFFER_STATE_READY:
		return "ready"
	case COMMAND_BUFFER_STATE_RECORDING:
		return "recording"
	case COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return "in_render_pass"
	case COMMAND_BUFFER_STATE_RECORDING_ENDED:
		return "recording_ended"
	case COMMAND_BUFFER_STATE_SUBMITTED:
		return "submitted"
	}
	return "not_allocated"
}

type CommandBuffer struct {
	Handle driver.CommandBufferHandle
	// Command buffer state.
	State CommandBufferState

	recorder driver.CommandRecorder
}

func newCommandBuffer(recorder driver.CommandRecorder, handle driver.CommandBufferHandle) *CommandBuffer {
	return &CommandBuffer{
		Handle:   handle,
		State:    COMMAND_BUFFER_STATE_READY,
		recorder: recorder,
	}
}

func (v *CommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	var flags driver.CommandBufferUsageFlags
	if isSingleUse {
		flags |= driver.CommandBufferUsageOneTimeSubmit
	}
	if isRenderpassContinue {
		flags |= driver.CommandBufferUsageRenderPassContinue
	}
	if isSimultaneousUse {
		flags |= driver.CommandBufferUsageSimultaneousUse
	}

	if err := v.recorder.BeginCommandBuffer(v.Handle, flags); err != nil {
		core.LogError("failed to begin command buffer: %v", err)
		return errors.Wrapf(core.ErrDevice, "begin command buffer: %v", err)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *CommandBuffer) BeginRenderPass(info driver.RenderPassBeginInfo) {
	v.recorder.CmdBeginRenderPass(v.Handle, info)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *CommandBuffer) EndRenderPass() {
	v.recorder.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *CommandBuffer) End() error {
	if err := v.recorder.EndCommandBuffer(v.Handle); err != nil {
		core.LogError("failed to end command buffer: %v", err)
		return errors.Wrapf(core.ErrDevice, "end command buffer: %v", err)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *CommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// UpdateCompleted marks a submitted buffer as executed. Its recording stays
// valid and can be submitted again.
func (v *CommandBuffer) UpdateCompleted() {
	if v.State == COMMAND_BUFFER_STATE_SUBMITTED {
		v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	}
}

func (v *CommandBuffer) Reset() {
	v.State = COMMAND_BUFFER_STATE_READY
}
