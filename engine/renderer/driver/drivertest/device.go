// Package drivertest provides in-memory implementations of the driver
// interfaces that record every call, for testing the renderer core without
// a GPU.
package drivertest

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

// Call is one recorded driver call.
type Call struct {
	Name string
	Args []interface{}
}

// ErrInjected is returned by calls failed through FailFrom.
var ErrInjected = errors.New("drivertest: injected failure")

type FlushRange struct {
	Memory driver.MemoryHandle
	Offset uint64
	Size   uint64
}

// Device is a fake driver.Device. Objects are plain counters, memory is
// host slices. Methods listed in Fail return the given error. Methods
// listed in FailFrom succeed n-1 times, then return ErrInjected.
type Device struct {
	mu sync.Mutex

	Types    []driver.MemoryType
	TypeBits uint32
	AtomSize uint64
	// Alignment rounds up reported memory requirements.
	Alignment uint64
	Fail      map[string]error
	FailFrom  map[string]int

	Calls      []Call
	Commands   map[driver.CommandBufferHandle][]Call
	Updates    [][]driver.WriteDescriptorSet
	Flushes    []FlushRange
	Layouts    map[driver.DescriptorSetLayoutHandle][]driver.DescriptorSetLayoutBinding
	Pipelines  map[driver.PipelineHandle]driver.GraphicsPipelineCreateInfo
	PoolSizes  map[driver.DescriptorPoolHandle][]driver.DescriptorPoolSize
	WaitIdles  int
	DoubleFree int

	next    uint64
	live    map[uint64]string
	memory  map[driver.MemoryHandle][]byte
	sizes   map[driver.BufferHandle]uint64
	signals map[driver.FenceHandle]bool
}

// NewDevice returns a device with a device-local type, a host visible and
// coherent type and a host visible, non-coherent type.
func NewDevice() *Device {
	return &Device{
		Types: []driver.MemoryType{
			{PropertyFlags: driver.MemoryPropertyDeviceLocal},
			{PropertyFlags: driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent},
			{PropertyFlags: driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCached},
		},
		TypeBits:  0xFFFFFFFF,
		AtomSize:  64,
		Alignment: 16,
		Fail:      map[string]error{},
		FailFrom:  map[string]int{},
		Commands:  map[driver.CommandBufferHandle][]Call{},
		Layouts:   map[driver.DescriptorSetLayoutHandle][]driver.DescriptorSetLayoutBinding{},
		Pipelines: map[driver.PipelineHandle]driver.GraphicsPipelineCreateInfo{},
		PoolSizes: map[driver.DescriptorPoolHandle][]driver.DescriptorPoolSize{},
		live:      map[uint64]string{},
		memory:    map[driver.MemoryHandle][]byte{},
		sizes:     map[driver.BufferHandle]uint64{},
		signals:   map[driver.FenceHandle]bool{},
	}
}

// NonCoherentOnly leaves only the host visible, non-coherent memory type.
func (d *Device) NonCoherentOnly() *Device {
	d.Types = []driver.MemoryType{
		{PropertyFlags: driver.MemoryPropertyDeviceLocal},
		{PropertyFlags: driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCached},
	}
	return d
}

func (d *Device) record(name string, args ...interface{}) error {
	d.Calls = append(d.Calls, Call{Name: name, Args: args})
	if err, ok := d.Fail[name]; ok {
		return err
	}
	if n, ok := d.FailFrom[name]; ok {
		if calls := d.countLocked(name); calls >= n {
			return errors.Wrapf(ErrInjected, "%s call %d", name, calls)
		}
	}
	return nil
}

func (d *Device) create(kind string) uint64 {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *Device) destroy(handle uint64) {
	if handle == driver.NullHandle {
		return
	}
	if _, ok := d.live[handle]; !ok {
		d.DoubleFree++
		return
	}
	delete(d.live, handle)
}

// Live returns the number of live objects of a kind, or of every kind when
// kind is empty.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, k := range d.live {
		if kind == "" || k == kind {
			n++
		}
	}
	return n
}

// Count returns how many times a method was called.
func (d *Device) Count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.countLocked(name)
}

func (d *Device) countLocked(name string) int {
	n := 0
	for _, c := range d.Calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Names returns the recorded call names in order.
func (d *Device) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.Calls))
	for _, c := range d.Calls {
		out = append(out, c.Name)
	}
	return out
}

// CommandNames returns the commands recorded into a command buffer.
func (d *Device) CommandNames(cb driver.CommandBufferHandle) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.Commands[cb]))
	for _, c := range d.Commands[cb] {
		out = append(out, c.Name)
	}
	return out
}

// Memory exposes the backing bytes of an allocation.
func (d *Device) Memory(m driver.MemoryHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memory[m]
}

// Signal marks a fence as signaled, as the device would when work ends.
func (d *Device) Signal(f driver.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals[f] = true
}

// MemoryDevice

func (d *Device) MemoryTypes() []driver.MemoryType {
	return d.Types
}

func (d *Device) NonCoherentAtomSize() uint64 {
	return d.AtomSize
}

func (d *Device) CreateBuffer(info driver.BufferCreateInfo) (driver.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateBuffer", info); err != nil {
		return driver.NullHandle, err
	}
	h := driver.BufferHandle(d.create("buffer"))
	d.sizes[h] = info.Size
	return h, nil
}

func (d *Device) DestroyBuffer(buffer driver.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroyBuffer", buffer)
	d.destroy(uint64(buffer))
}

func (d *Device) BufferMemoryRequirements(buffer driver.BufferHandle) driver.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	size := d.sizes[buffer]
	if d.Alignment > 0 {
		size = (size + d.Alignment - 1) / d.Alignment * d.Alignment
	}
	return driver.MemoryRequirements{Size: size, Alignment: d.Alignment, MemoryTypeBits: d.TypeBits}
}

func (d *Device) AllocateMemory(size uint64, memoryTypeIndex uint32) (driver.MemoryHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("AllocateMemory", size, memoryTypeIndex); err != nil {
		return driver.NullHandle, err
	}
	if int(memoryTypeIndex) >= len(d.Types) {
		return driver.NullHandle, errors.Newf("memory type %d out of range", memoryTypeIndex)
	}
	h := driver.MemoryHandle(d.create("memory"))
	mem := make([]byte, size)
	// garbage, so zero filling is observable
	for i := range mem {
		mem[i] = 0xCD
	}
	d.memory[h] = mem
	return h, nil
}

func (d *Device) FreeMemory(memory driver.MemoryHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("FreeMemory", memory)
	d.destroy(uint64(memory))
}

func (d *Device) BindBufferMemory(buffer driver.BufferHandle, memory driver.MemoryHandle, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("BindBufferMemory", buffer, memory, offset)
}

func (d *Device) MapMemory(memory driver.MemoryHandle, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("MapMemory", memory, offset, size); err != nil {
		return nil, err
	}
	mem, ok := d.memory[memory]
	if !ok || offset+size > uint64(len(mem)) {
		return nil, errors.Newf("map [%d, %d) outside memory %d", offset, offset+size, memory)
	}
	return mem[offset : offset+size], nil
}

func (d *Device) UnmapMemory(memory driver.MemoryHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("UnmapMemory", memory)
}

func (d *Device) FlushMappedMemory(memory driver.MemoryHandle, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("FlushMappedMemory", memory, offset, size); err != nil {
		return err
	}
	d.Flushes = append(d.Flushes, FlushRange{Memory: memory, Offset: offset, Size: size})
	return nil
}

func (d *Device) InvalidateMappedMemory(memory driver.MemoryHandle, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("InvalidateMappedMemory", memory, offset, size)
}

// DescriptorDevice

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorSetLayoutBinding) (driver.DescriptorSetLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateDescriptorSetLayout", bindings); err != nil {
		return driver.NullHandle, err
	}
	h := driver.DescriptorSetLayoutHandle(d.create("set_layout"))
	d.Layouts[h] = append([]driver.DescriptorSetLayoutBinding(nil), bindings...)
	return h, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout driver.DescriptorSetLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroyDescriptorSetLayout", layout)
	d.destroy(uint64(layout))
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []driver.DescriptorPoolSize) (driver.DescriptorPoolHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateDescriptorPool", maxSets, sizes); err != nil {
		return driver.NullHandle, err
	}
	h := driver.DescriptorPoolHandle(d.create("descriptor_pool"))
	d.PoolSizes[h] = append([]driver.DescriptorPoolSize(nil), sizes...)
	return h, nil
}

func (d *Device) DestroyDescriptorPool(pool driver.DescriptorPoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroyDescriptorPool", pool)
	d.destroy(uint64(pool))
}

func (d *Device) AllocateDescriptorSets(pool driver.DescriptorPoolHandle, layouts []driver.DescriptorSetLayoutHandle) ([]driver.DescriptorSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("AllocateDescriptorSets", pool, layouts); err != nil {
		return nil, err
	}
	out := make([]driver.DescriptorSetHandle, len(layouts))
	for i := range layouts {
		// sets are freed with their pool
		d.next++
		out[i] = driver.DescriptorSetHandle(d.next)
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("UpdateDescriptorSets", writes)
	d.Updates = append(d.Updates, append([]driver.WriteDescriptorSet(nil), writes...))
}

// PipelineDevice

func (d *Device) CreateShaderModule(code []byte) (driver.ShaderModuleHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateShaderModule", len(code)); err != nil {
		return driver.NullHandle, err
	}
	return driver.ShaderModuleHandle(d.create("shader_module")), nil
}

func (d *Device) DestroyShaderModule(module driver.ShaderModuleHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroyShaderModule", module)
	d.destroy(uint64(module))
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutCreateInfo) (driver.PipelineLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreatePipelineLayout", info); err != nil {
		return driver.NullHandle, err
	}
	return driver.PipelineLayoutHandle(d.create("pipeline_layout")), nil
}

func (d *Device) DestroyPipelineLayout(layout driver.PipelineLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroyPipelineLayout", layout)
	d.destroy(uint64(layout))
}

func (d *Device) CreateGraphicsPipeline(info driver.GraphicsPipelineCreateInfo) (driver.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateGraphicsPipeline", info); err != nil {
		return driver.NullHandle, err
	}
	h := driver.PipelineHandle(d.create("pipeline"))
	d.Pipelines[h] = info
	return h, nil
}

func (d *Device) CreateComputePipeline(info driver.ComputePipelineCreateInfo) (driver.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateComputePipeline", info); err != nil {
		return driver.NullHandle, err
	}
	return driver.PipelineHandle(d.create("pipeline")), nil
}

func (d *Device) DestroyPipeline(pipeline driver.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroyPipeline", pipeline)
	d.destroy(uint64(pipeline))
}

// CommandDevice

func (d *Device) CreateCommandPool() (driver.CommandPoolHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateCommandPool"); err != nil {
		return driver.NullHandle, err
	}
	return driver.CommandPoolHandle(d.create("command_pool")), nil
}

func (d *Device) DestroyCommandPool(pool driver.CommandPoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroyCommandPool", pool)
	d.destroy(uint64(pool))
}

func (d *Device) AllocateCommandBuffers(pool driver.CommandPoolHandle, count uint32) ([]driver.CommandBufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("AllocateCommandBuffers", pool, count); err != nil {
		return nil, err
	}
	out := make([]driver.CommandBufferHandle, count)
	for i := range out {
		out[i] = driver.CommandBufferHandle(d.create("command_buffer"))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(pool driver.CommandPoolHandle, buffers []driver.CommandBufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("FreeCommandBuffers", pool, buffers)
	for _, b := range buffers {
		d.destroy(uint64(b))
	}
}

func (d *Device) cmd(cb driver.CommandBufferHandle, name string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Commands[cb] = append(d.Commands[cb], Call{Name: name, Args: args})
}

func (d *Device) BeginCommandBuffer(cb driver.CommandBufferHandle, flags driver.CommandBufferUsageFlags) error {
	d.mu.Lock()
	err := d.record("BeginCommandBuffer", cb, flags)
	if err == nil {
		// begin resets the buffer
		d.Commands[cb] = nil
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.cmd(cb, "Begin", flags)
	return nil
}

func (d *Device) EndCommandBuffer(cb driver.CommandBufferHandle) error {
	d.mu.Lock()
	err := d.record("EndCommandBuffer", cb)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.cmd(cb, "End")
	return nil
}

func (d *Device) CmdBeginRenderPass(cb driver.CommandBufferHandle, info driver.RenderPassBeginInfo) {
	d.cmd(cb, "BeginRenderPass", info)
}

func (d *Device) CmdEndRenderPass(cb driver.CommandBufferHandle) {
	d.cmd(cb, "EndRenderPass")
}

func (d *Device) CmdSetViewport(cb driver.CommandBufferHandle, extent driver.Extent2D) {
	d.cmd(cb, "SetViewport", extent)
}

func (d *Device) CmdSetScissor(cb driver.CommandBufferHandle, extent driver.Extent2D) {
	d.cmd(cb, "SetScissor", extent)
}

func (d *Device) CmdBindPipeline(cb driver.CommandBufferHandle, bindPoint driver.PipelineBindPoint, pipeline driver.PipelineHandle) {
	d.cmd(cb, "BindPipeline", bindPoint, pipeline)
}

func (d *Device) CmdBindDescriptorSets(cb driver.CommandBufferHandle, bindPoint driver.PipelineBindPoint, layout driver.PipelineLayoutHandle, firstSet uint32, sets []driver.DescriptorSetHandle) {
	d.cmd(cb, "BindDescriptorSets", bindPoint, layout, firstSet, append([]driver.DescriptorSetHandle(nil), sets...))
}

func (d *Device) CmdBindVertexBuffers(cb driver.CommandBufferHandle, firstBinding uint32, buffers []driver.BufferHandle, offsets []uint64) {
	d.cmd(cb, "BindVertexBuffers", firstBinding, append([]driver.BufferHandle(nil), buffers...), offsets)
}

func (d *Device) CmdBindIndexBuffer(cb driver.CommandBufferHandle, buffer driver.BufferHandle, offset uint64, indexType driver.IndexType) {
	d.cmd(cb, "BindIndexBuffer", buffer, offset, indexType)
}

func (d *Device) CmdDrawIndexed(cb driver.CommandBufferHandle, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.cmd(cb, "DrawIndexed", indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (d *Device) CmdDispatch(cb driver.CommandBufferHandle, x, y, z uint32) {
	d.cmd(cb, "Dispatch", x, y, z)
}

// SyncDevice

func (d *Device) CreateSemaphore() (driver.SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateSemaphore"); err != nil {
		return driver.NullHandle, err
	}
	return driver.SemaphoreHandle(d.create("semaphore")), nil
}

func (d *Device) DestroySemaphore(semaphore driver.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroySemaphore", semaphore)
	d.destroy(uint64(semaphore))
}

func (d *Device) CreateFence(signaled bool) (driver.FenceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("CreateFence", signaled); err != nil {
		return driver.NullHandle, err
	}
	h := driver.FenceHandle(d.create("fence"))
	d.signals[h] = signaled
	return h, nil
}

func (d *Device) DestroyFence(fence driver.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("DestroyFence", fence)
	d.destroy(uint64(fence))
	delete(d.signals, fence)
}

// WaitForFences never blocks: unsignaled fences report a timeout.
func (d *Device) WaitForFences(fences []driver.FenceHandle, timeout uint64) driver.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record("WaitForFences", fences, timeout)
	for _, f := range fences {
		if !d.signals[f] {
			return driver.Timeout
		}
	}
	return driver.Success
}

func (d *Device) ResetFences(fences []driver.FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ResetFences", fences); err != nil {
		return err
	}
	for _, f := range fences {
		d.signals[f] = false
	}
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdles++
	return d.record("WaitIdle")
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("drivertest.Device{%d live objects, %d calls}", len(d.live), len(d.Calls))
}
