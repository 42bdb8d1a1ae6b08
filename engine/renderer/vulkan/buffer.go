package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/math"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

// std140 rounds array elements of narrow types up to this many bytes.
const std140ArrayStride = 16

type BufferConfig struct {
	Name        string
	Shape       []int
	ElementType metadata.ElementType
	Usage       metadata.BufferUsage
	HostVisible bool
	// Compact disables the std140 padding of narrow storage elements.
	Compact     bool

	// Vertex input location and binding. Ignored for other usages.
	Location  uint32
	Binding   uint32
	InputRate driver.VertexInputRate

	// Shader stages that see the buffer through a descriptor. Zero means
	// every graphics stage.
	StageFlags driver.ShaderStageFlags
	Qualifier  metadata.BufferQualifier
}

// Buffer is a typed GPU buffer backed by its own memory allocation. Host
// visible buffers stay mapped for their whole life.
type Buffer struct {
	mu     sync.Mutex
	device driver.MemoryDevice

	name        string
	shape       []int
	elementType metadata.ElementType
	usage       metadata.BufferUsage
	hostVisible bool
	compact     bool
	location    uint32
	binding     uint32
	inputRate   driver.VertexInputRate
	stageFlags  driver.ShaderStageFlags
	qualifier   metadata.BufferQualifier

	count  uint64
	skip   uint32
	stride uint64
	size   uint64

	handle          driver.BufferHandle
	memory          driver.MemoryHandle
	memoryTypeIndex uint32
	allocationSize  uint64
	coherent        bool
	mapped          []byte

	dirty            bool
	dirtyLo, dirtyHi uint64

	// set once a descriptor set finalizes its layout
	descriptorRole    metadata.SetRole
	descriptorBinding uint32
	attached          bool

	released bool
}

// NewBuffer creates the buffer, allocates and binds memory that satisfies
// both the buffer's requirements and the requested visibility, then maps,
// zero fills and flushes it when it is host visible.
func NewBuffer(device driver.MemoryDevice, config BufferConfig) (*Buffer, error) {
	if err := validateBufferConfig(config); err != nil {
		return nil, err
	}

	b := &Buffer{
		device:      device,
		name:        config.Name,
		shape:       append([]int(nil), config.Shape...),
		elementType: config.ElementType,
		usage:       config.Usage,
		hostVisible: config.HostVisible,
		compact:     config.Compact,
		location:    config.Location,
		binding:     config.Binding,
		inputRate:   config.InputRate,
		stageFlags:  config.StageFlags,
		qualifier:   config.Qualifier,
	}
	if b.stageFlags == 0 {
		b.stageFlags = driver.ShaderStageAllGraphics
	}

	b.count = uint64(math.Product(b.shape))
	b.skip = skipFactor(b.usage, b.elementType, b.compact, b.count)
	b.stride = uint64(b.elementType.ItemSize()) * uint64(b.skip)
	b.size = b.count * b.stride

	if b.usage == metadata.BUFFER_USAGE_VERTEX {
		if b.VertexFormat() == driver.FormatUndefined {
			return nil, errors.Wrapf(core.ErrVertexFormat, "buffer `%s`: no vertex format for %d x %s", b.name, b.vertexComponents(), b.elementType)
		}
	}

	core.LogDebug("creating buffer `%s` (%s, %d bytes, skip %d)", b.name, b.usage, b.size, b.skip)

	handle, err := device.CreateBuffer(driver.BufferCreateInfo{
		Size:  b.size,
		Usage: usageFlags(b.usage),
	})
	if err != nil {
		return nil, errors.Wrapf(core.ErrAllocation, "buffer `%s`: create: %v", b.name, err)
	}
	b.handle = handle

	if err := b.allocate(); err != nil {
		device.DestroyBuffer(b.handle)
		b.handle = driver.NullHandle
		return nil, err
	}

	if b.hostVisible {
		for i := range b.mapped {
			b.mapped[i] = 0
		}
		b.markDirty(0, b.size)
		if err := b.Flush(); err != nil {
			b.Release()
			return nil, err
		}
	}
	return b, nil
}

func validateBufferConfig(config BufferConfig) error {
	if len(config.Shape) == 0 {
		return errors.Newf("buffer `%s`: empty shape", config.Name)
	}
	for _, d := range config.Shape {
		if d <= 0 {
			return errors.Newf("buffer `%s`: invalid shape %v", config.Name, config.Shape)
		}
	}
	if !config.ElementType.Valid() {
		return errors.Newf("buffer `%s`: invalid element type %d", config.Name, config.ElementType)
	}
	comps := config.ElementType.Components()
	if comps > 1 && uint64(math.Product(config.Shape))%uint64(comps) != 0 {
		return errors.Wrapf(core.ErrSizeMismatch, "buffer `%s`: shape %v does not hold whole %s elements of %d scalars", config.Name, config.Shape, config.ElementType, comps)
	}
	if config.Usage == metadata.BUFFER_USAGE_INDEX {
		switch config.ElementType {
		case metadata.ELEMENT_TYPE_UINT, metadata.ELEMENT_TYPE_UINT16:
		default:
			return errors.Wrapf(core.ErrVertexFormat, "index buffer `%s` must hold uint or uint16, got %s", config.Name, config.ElementType)
		}
	}
	return nil
}

// skipFactor is the number of item-sized steps between two logical
// elements. Narrow items of non-compact storage buffers are padded to the
// std140 array stride, and so are narrow uniform arrays since std140 is
// the only uniform layout. A single uniform scalar or vector is not an
// array and stays packed.
func skipFactor(usage metadata.BufferUsage, element metadata.ElementType, compact bool, count uint64) uint32 {
	if !element.IsNarrow() {
		return 1
	}
	switch usage {
	case metadata.BUFFER_USAGE_STORAGE:
		if compact {
			return 1
		}
	case metadata.BUFFER_USAGE_UNIFORM:
		if count <= uint64(element.Components()) {
			return 1
		}
	default:
		return 1
	}
	item := element.ItemSize()
	if item >= std140ArrayStride {
		return 1
	}
	return std140ArrayStride / item
}

func usageFlags(usage metadata.BufferUsage) driver.BufferUsageFlags {
	base := driver.BufferUsageTransferSrc | driver.BufferUsageTransferDst
	switch usage {
	case metadata.BUFFER_USAGE_VERTEX:
		return base | driver.BufferUsageVertex
	case metadata.BUFFER_USAGE_INDEX:
		return base | driver.BufferUsageIndex
	case metadata.BUFFER_USAGE_UNIFORM:
		return base | driver.BufferUsageUniform
	}
	return base | driver.BufferUsageStorage
}

func (b *Buffer) allocate() error {
	reqs := b.device.BufferMemoryRequirements(b.handle)

	var candidates []driver.MemoryPropertyFlags
	if b.hostVisible {
		candidates = []driver.MemoryPropertyFlags{
			driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent,
			driver.MemoryPropertyHostVisible,
		}
	} else {
		candidates = []driver.MemoryPropertyFlags{driver.MemoryPropertyDeviceLocal, 0}
	}

	types := b.device.MemoryTypes()
	index := -1
	for _, props := range candidates {
		if index = FindMemoryIndex(types, reqs.MemoryTypeBits, props); index != -1 {
			break
		}
	}
	if index == -1 {
		return errors.Wrapf(core.ErrAllocation, "buffer `%s`: no memory type matches bits %#x", b.name, reqs.MemoryTypeBits)
	}
	b.memoryTypeIndex = uint32(index)
	b.coherent = types[index].PropertyFlags&driver.MemoryPropertyHostCoherent != 0

	allocSize := reqs.Size
	if allocSize < b.size {
		allocSize = b.size
	}
	memory, err := b.device.AllocateMemory(allocSize, b.memoryTypeIndex)
	if err != nil {
		return errors.Wrapf(core.ErrAllocation, "buffer `%s`: allocate %d bytes: %v", b.name, allocSize, err)
	}
	b.memory = memory
	b.allocationSize = allocSize

	if err := b.device.BindBufferMemory(b.handle, b.memory, 0); err != nil {
		b.device.FreeMemory(b.memory)
		b.memory = driver.NullHandle
		return errors.Wrapf(core.ErrAllocation, "buffer `%s`: bind memory: %v", b.name, err)
	}

	if b.hostVisible {
		mapped, err := b.device.MapMemory(b.memory, 0, b.size)
		if err != nil {
			b.device.FreeMemory(b.memory)
			b.memory = driver.NullHandle
			return errors.Wrapf(core.ErrAllocation, "buffer `%s`: map: %v", b.name, err)
		}
		b.mapped = mapped
	}
	return nil
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every property in flags, or -1.
func FindMemoryIndex(types []driver.MemoryType, typeFilter uint32, flags driver.MemoryPropertyFlags) int {
	for i := 0; i < len(types) && i < 32; i++ {
		if typeFilter&(1<<uint(i)) != 0 && types[i].PropertyFlags&flags == flags {
			return i
		}
	}
	return -1
}

func (b *Buffer) markDirty(lo, hi uint64) {
	if b.coherent {
		return
	}
	if !b.dirty {
		b.dirty = true
		b.dirtyLo, b.dirtyHi = lo, hi
		return
	}
	if lo < b.dirtyLo {
		b.dirtyLo = lo
	}
	if hi > b.dirtyHi {
		b.dirtyHi = hi
	}
}

// Flush makes host writes visible to the device. It does nothing for
// coherent memory or when nothing was written since the last flush.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released || !b.hostVisible || b.coherent || !b.dirty {
		return nil
	}
	atom := b.device.NonCoherentAtomSize()
	if atom == 0 {
		atom = 1
	}
	lo := b.dirtyLo / atom * atom
	hi := math.AlignUp(b.dirtyHi, atom)
	if hi > b.allocationSize {
		hi = b.allocationSize
	}
	if err := b.device.FlushMappedMemory(b.memory, lo, hi-lo); err != nil {
		return errors.Wrapf(core.ErrDevice, "buffer `%s`: flush [%d, %d): %v", b.name, lo, hi, err)
	}
	b.dirty = false
	return nil
}

// Release unmaps and frees the buffer. Calling it again is a no-op.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return
	}
	core.LogDebug("destroying buffer `%s`", b.name)
	if b.mapped != nil {
		b.device.UnmapMemory(b.memory)
		b.mapped = nil
	}
	if b.handle != driver.NullHandle {
		b.device.DestroyBuffer(b.handle)
		b.handle = driver.NullHandle
	}
	if b.memory != driver.NullHandle {
		b.device.FreeMemory(b.memory)
		b.memory = driver.NullHandle
	}
	b.dirty = false
	b.released = true
}

func (b *Buffer) Name() string                      { return b.name }
func (b *Buffer) Handle() driver.BufferHandle       { return b.handle }
func (b *Buffer) Usage() metadata.BufferUsage       { return b.usage }
func (b *Buffer) ElementType() metadata.ElementType { return b.elementType }
func (b *Buffer) HostVisible() bool                 { return b.hostVisible }
func (b *Buffer) Compact() bool                     { return b.compact }
func (b *Buffer) Coherent() bool                    { return b.coherent }
func (b *Buffer) StageFlags() driver.ShaderStageFlags {
	return b.stageFlags
}
func (b *Buffer) Qualifier() metadata.BufferQualifier { return b.qualifier }
func (b *Buffer) Location() uint32                    { return b.location }
func (b *Buffer) Binding() uint32                     { return b.binding }

func (b *Buffer) Shape() []int {
	return append([]int(nil), b.shape...)
}

// ElementCount is the product of the shape.
func (b *Buffer) ElementCount() uint64 { return b.count }

// SizeBytes is ElementCount * EffectiveStride.
func (b *Buffer) SizeBytes() uint64 { return b.size }

// ItemSize is the byte size of one stored scalar.
func (b *Buffer) ItemSize() uint32 { return b.elementType.ItemSize() }

func (b *Buffer) SkipFactor() uint32 { return b.skip }

// EffectiveStride is the byte distance between two logical elements.
func (b *Buffer) EffectiveStride() uint64 { return b.stride }

func (b *Buffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Dirty reports host writes that have not been flushed yet.
func (b *Buffer) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

func (b *Buffer) DescriptorInfo() driver.DescriptorBufferInfo {
	return driver.DescriptorBufferInfo{Buffer: b.handle, Offset: 0, Range: b.size}
}

// DescriptorBinding returns the set role and binding number assigned when
// the owning descriptor set was finalized.
func (b *Buffer) DescriptorBinding() (metadata.SetRole, uint32, bool) {
	return b.descriptorRole, b.descriptorBinding, b.attached
}

func (b *Buffer) vertexComponents() uint32 {
	if c := b.elementType.Components(); c > 1 {
		return c
	}
	if len(b.shape) > 1 {
		if last := b.shape[len(b.shape)-1]; last <= 4 {
			return uint32(last)
		}
	}
	return 1
}

// VertexFormat is derived from the scalar type and the component count,
// taken from the element type or, for scalar types, from the last
// dimension of the shape.
func (b *Buffer) VertexFormat() driver.Format {
	return vertexFormat(b.elementType.Scalar(), b.vertexComponents())
}

// VertexStride is the byte size of one vertex.
func (b *Buffer) VertexStride() uint32 {
	return b.vertexComponents() * b.elementType.ItemSize()
}

func (b *Buffer) BindingDescription() driver.VertexBindingDescription {
	return driver.VertexBindingDescription{
		Binding:   b.binding,
		Stride:    b.VertexStride(),
		InputRate: b.inputRate,
	}
}

func (b *Buffer) AttributeDescription() driver.VertexAttributeDescription {
	return driver.VertexAttributeDescription{
		Location: b.location,
		Binding:  b.binding,
		Format:   b.VertexFormat(),
		Offset:   0,
	}
}

// VertexCount is the number of vertices held by a vertex buffer.
func (b *Buffer) VertexCount() uint32 {
	return uint32(b.count / uint64(b.vertexComponents()))
}

func (b *Buffer) IndexType() driver.IndexType {
	if b.elementType.ItemSize() == 2 {
		return driver.IndexTypeUint16
	}
	return driver.IndexTypeUint32
}

func vertexFormat(scalar metadata.ScalarType, comps uint32) driver.Format {
	if comps < 1 || comps > 4 {
		return driver.FormatUndefined
	}
	var base driver.Format
	switch scalar {
	case metadata.SCALAR_TYPE_FLOAT32:
		base = driver.FormatR32Sfloat
	case metadata.SCALAR_TYPE_INT32:
		base = driver.FormatR32Sint
	case metadata.SCALAR_TYPE_UINT32:
		base = driver.FormatR32Uint
	case metadata.SCALAR_TYPE_FLOAT64:
		base = driver.FormatR64Sfloat
	default:
		return driver.FormatUndefined
	}
	return base + driver.Format(comps-1)
}
