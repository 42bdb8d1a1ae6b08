package native

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

func (d *Device) MemoryTypes() []driver.MemoryType {
	memory := d.Physical.Memory
	types := make([]driver.MemoryType, memory.MemoryTypeCount)
	for i := range types {
		mt := memory.MemoryTypes[i]
		types[i] = driver.MemoryType{
			PropertyFlags: fromMemoryProperties(vk.MemoryPropertyFlagBits(mt.PropertyFlags)),
			HeapIndex:     mt.HeapIndex,
		}
	}
	return types
}

func (d *Device) NonCoherentAtomSize() uint64 {
	return uint64(d.Physical.Properties.Limits.NonCoherentAtomSize)
}

func (d *Device) CreateBuffer(info driver.BufferCreateInfo) (driver.BufferHandle, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       toBufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check("vkCreateBuffer", vk.CreateBuffer(d.Handle, &createInfo, d.allocator, &buffer)); err != nil {
		return driver.NullHandle, err
	}
	return driver.BufferHandle(d.buffers.put(buffer)), nil
}

func (d *Device) DestroyBuffer(buffer driver.BufferHandle) {
	if b, ok := d.buffers.take(uint64(buffer)); ok {
		vk.DestroyBuffer(d.Handle, b, d.allocator)
	}
}

func (d *Device) BufferMemoryRequirements(buffer driver.BufferHandle) driver.MemoryRequirements {
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.Handle, d.buffers.lookup(uint64(buffer)), &requirements)
	requirements.Deref()
	return driver.MemoryRequirements{
		Size:           uint64(requirements.Size),
		Alignment:      uint64(requirements.Alignment),
		MemoryTypeBits: requirements.MemoryTypeBits,
	}
}

func (d *Device) AllocateMemory(size uint64, memoryTypeIndex uint32) (driver.MemoryHandle, error) {
	memory, err := d.allocate(size, memoryTypeIndex)
	if err != nil {
		return driver.NullHandle, err
	}
	return driver.MemoryHandle(d.memories.put(memory)), nil
}

func (d *Device) allocate(size uint64, memoryTypeIndex uint32) (vk.DeviceMemory, error) {
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryTypeIndex,
	}
	var memory vk.DeviceMemory
	err := d.lockPool.SafeCall(MemoryManagement, func() error {
		return check("vkAllocateMemory", vk.AllocateMemory(d.Handle, &allocateInfo, d.allocator, &memory))
	})
	return memory, err
}

func (d *Device) FreeMemory(memory driver.MemoryHandle) {
	if m, ok := d.memories.take(uint64(memory)); ok {
		vk.FreeMemory(d.Handle, m, d.allocator)
	}
}

func (d *Device) BindBufferMemory(buffer driver.BufferHandle, memory driver.MemoryHandle, offset uint64) error {
	b, ok := d.buffers.get(uint64(buffer))
	if !ok {
		return errors.Newf("bind buffer memory: unknown buffer %d", buffer)
	}
	m, ok := d.memories.get(uint64(memory))
	if !ok {
		return errors.Newf("bind buffer memory: unknown memory %d", memory)
	}
	return check("vkBindBufferMemory", vk.BindBufferMemory(d.Handle, b, m, vk.DeviceSize(offset)))
}

func (d *Device) MapMemory(memory driver.MemoryHandle, offset, size uint64) ([]byte, error) {
	m, ok := d.memories.get(uint64(memory))
	if !ok {
		return nil, errors.Newf("map memory: unknown memory %d", memory)
	}
	var data unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(d.Handle, m, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(data), size), nil
}

func (d *Device) UnmapMemory(memory driver.MemoryHandle) {
	if m, ok := d.memories.get(uint64(memory)); ok {
		vk.UnmapMemory(d.Handle, m)
	}
}

func (d *Device) FlushMappedMemory(memory driver.MemoryHandle, offset, size uint64) error {
	return check("vkFlushMappedMemoryRanges", vk.FlushMappedMemoryRanges(d.Handle, 1, d.mappedRange(memory, offset, size)))
}

func (d *Device) InvalidateMappedMemory(memory driver.MemoryHandle, offset, size uint64) error {
	return check("vkInvalidateMappedMemoryRanges", vk.InvalidateMappedMemoryRanges(d.Handle, 1, d.mappedRange(memory, offset, size)))
}

func (d *Device) mappedRange(memory driver.MemoryHandle, offset, size uint64) []vk.MappedMemoryRange {
	return []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: d.memories.lookup(uint64(memory)),
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}}
}

// findMemoryIndex is used for images, which do not go through the
// renderer core's buffer allocator.
func (d *Device) findMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	memory := d.Physical.Memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		if typeFilter&(1<<i) != 0 && memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, true
		}
	}
	return 0, false
}
