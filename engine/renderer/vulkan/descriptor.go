package vulkan

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

var descriptorTypes = [metadata.DESCRIPTOR_KIND_COUNT]driver.DescriptorType{
	metadata.DESCRIPTOR_KIND_UNIFORM: driver.DescriptorTypeUniformBuffer,
	metadata.DESCRIPTOR_KIND_STORAGE: driver.DescriptorTypeStorageBuffer,
}

// DescriptorSet collects the buffers of one set role. Uniform buffers take
// the first binding numbers, storage buffers follow.
type DescriptorSet struct {
	device driver.DescriptorDevice
	role   metadata.SetRole

	required [metadata.DESCRIPTOR_KIND_COUNT]bool
	buffers  [metadata.DESCRIPTOR_KIND_COUNT][]*Buffer

	stageFlags driver.ShaderStageFlags
	bindings   []driver.DescriptorSetLayoutBinding
	layout     driver.DescriptorSetLayoutHandle
	handle     driver.DescriptorSetHandle

	finalized bool
	released  bool
}

func newDescriptorSet(device driver.DescriptorDevice, role metadata.SetRole) *DescriptorSet {
	return &DescriptorSet{device: device, role: role}
}

func (s *DescriptorSet) Role() metadata.SetRole { return s.role }
func (s *DescriptorSet) Name() string           { return s.role.String() }

// Require makes Finalize fail unless at least one buffer of each kind is
// attached.
func (s *DescriptorSet) Require(kinds ...metadata.DescriptorKind) {
	for _, k := range kinds {
		s.required[k] = true
	}
}

// Attach appends buf to the list of the given kind and returns its slot,
// the position among buffers of that kind.
func (s *DescriptorSet) Attach(buf *Buffer, kind metadata.DescriptorKind) (int, error) {
	if s.finalized {
		return -1, errors.Wrapf(core.ErrSetFinalized, "set `%s`", s.Name())
	}
	if buf == nil {
		return -1, errors.Newf("set `%s`: nil buffer", s.Name())
	}
	if bk, ok := buf.Usage().Descriptor(); !ok || bk != kind {
		return -1, errors.Wrapf(core.ErrBindingKind, "set `%s`: %s buffer `%s` attached as %s", s.Name(), buf.Usage(), buf.Name(), kind)
	}
	for _, list := range s.buffers {
		for _, b := range list {
			if b == buf {
				return -1, errors.Newf("set `%s`: buffer `%s` attached twice", s.Name(), buf.Name())
			}
		}
	}
	s.buffers[kind] = append(s.buffers[kind], buf)
	s.stageFlags |= buf.StageFlags()
	return len(s.buffers[kind]) - 1, nil
}

// AttachBuffer attaches buf with the kind implied by its usage.
func (s *DescriptorSet) AttachBuffer(buf *Buffer) (int, error) {
	kind, ok := buf.Usage().Descriptor()
	if !ok {
		return -1, errors.Wrapf(core.ErrBindingKind, "set `%s`: %s buffer `%s` cannot be bound through a descriptor", s.Name(), buf.Usage(), buf.Name())
	}
	return s.Attach(buf, kind)
}

// Buffers returns the buffers of one kind in slot order.
func (s *DescriptorSet) Buffers(kind metadata.DescriptorKind) []*Buffer {
	return append([]*Buffer(nil), s.buffers[kind]...)
}

func (s *DescriptorSet) Count(kind metadata.DescriptorKind) int {
	return len(s.buffers[kind])
}

func (s *DescriptorSet) Empty() bool {
	return len(s.buffers[metadata.DESCRIPTOR_KIND_UNIFORM]) == 0 && len(s.buffers[metadata.DESCRIPTOR_KIND_STORAGE]) == 0
}

// firstBinding is the binding number of slot 0 of a kind.
func (s *DescriptorSet) firstBinding(kind metadata.DescriptorKind) uint32 {
	if kind == metadata.DESCRIPTOR_KIND_STORAGE {
		return uint32(len(s.buffers[metadata.DESCRIPTOR_KIND_UNIFORM]))
	}
	return 0
}

// BindingFor resolves a slot of a kind to its binding number.
func (s *DescriptorSet) BindingFor(kind metadata.DescriptorKind, slot int) (uint32, error) {
	if slot < 0 || slot >= len(s.buffers[kind]) {
		return 0, errors.Wrapf(core.ErrLayoutMismatch, "set `%s` has no %s slot %d", s.Name(), kind, slot)
	}
	return s.firstBinding(kind) + uint32(slot), nil
}

// Finalize freezes the set and creates its layout. Every attached buffer
// learns its binding number.
func (s *DescriptorSet) Finalize() error {
	if s.finalized {
		return errors.Wrapf(core.ErrSetFinalized, "set `%s`", s.Name())
	}
	for kind, req := range s.required {
		if req && len(s.buffers[kind]) == 0 {
			return errors.Wrapf(core.ErrEmptyBinding, "set `%s` requires at least one %s buffer", s.Name(), metadata.DescriptorKind(kind))
		}
	}

	stages := s.StageFlags()

	s.bindings = s.bindings[:0]
	for kind := range s.buffers {
		first := s.firstBinding(metadata.DescriptorKind(kind))
		for slot, buf := range s.buffers[kind] {
			binding := first + uint32(slot)
			s.bindings = append(s.bindings, driver.DescriptorSetLayoutBinding{
				Binding:    binding,
				Type:       descriptorTypes[kind],
				Count:      1,
				StageFlags: stages,
			})
			buf.descriptorRole = s.role
			buf.descriptorBinding = binding
			buf.attached = true
		}
	}

	layout, err := s.device.CreateDescriptorSetLayout(s.bindings)
	if err != nil {
		return errors.Wrapf(core.ErrDevice, "set `%s`: create layout: %v", s.Name(), err)
	}
	s.layout = layout
	s.finalized = true
	return nil
}

func (s *DescriptorSet) Finalized() bool { return s.finalized }

// StageFlags are the shader stages the bindings of the set are visible to:
// the union of the attached buffers' stages, all graphics stages when none
// were given.
func (s *DescriptorSet) StageFlags() driver.ShaderStageFlags {
	if s.stageFlags == 0 {
		return driver.ShaderStageAllGraphics
	}
	return s.stageFlags
}

// Bindings returns the layout bindings built by Finalize.
func (s *DescriptorSet) Bindings() []driver.DescriptorSetLayoutBinding {
	return append([]driver.DescriptorSetLayoutBinding(nil), s.bindings...)
}

func (s *DescriptorSet) Layout() driver.DescriptorSetLayoutHandle { return s.layout }
func (s *DescriptorSet) Handle() driver.DescriptorSetHandle       { return s.handle }

// writes builds one write per non-empty kind. Each write starts at the
// first binding of its kind and rolls over the following ones.
func (s *DescriptorSet) writes() []driver.WriteDescriptorSet {
	var out []driver.WriteDescriptorSet
	for kind := range s.buffers {
		if len(s.buffers[kind]) == 0 {
			continue
		}
		infos := make([]driver.DescriptorBufferInfo, 0, len(s.buffers[kind]))
		for _, buf := range s.buffers[kind] {
			infos = append(infos, buf.DescriptorInfo())
		}
		out = append(out, driver.WriteDescriptorSet{
			DstSet:      s.handle,
			DstBinding:  s.firstBinding(metadata.DescriptorKind(kind)),
			Type:        descriptorTypes[kind],
			BufferInfos: infos,
		})
	}
	return out
}

func (s *DescriptorSet) releaseBuffers() {
	for kind := range s.buffers {
		for _, buf := range s.buffers[kind] {
			buf.Release()
		}
	}
}

func (s *DescriptorSet) releaseLayout() {
	if s.released {
		return
	}
	if s.layout != driver.NullHandle {
		s.device.DestroyDescriptorSetLayout(s.layout)
		s.layout = driver.NullHandle
	}
	s.handle = driver.NullHandle
	s.released = true
}

// DescriptorPool owns one DescriptorSet per role.
type DescriptorPool struct {
	device driver.DescriptorDevice
	sets   [metadata.SET_ROLE_COUNT]*DescriptorSet
	handle driver.DescriptorPoolHandle

	finalized bool
	released  bool
}

func NewDescriptorPool(device driver.DescriptorDevice) *DescriptorPool {
	p := &DescriptorPool{device: device}
	for _, role := range metadata.SetRoles() {
		p.sets[role] = newDescriptorSet(device, role)
	}
	return p
}

func (p *DescriptorPool) Set(role metadata.SetRole) *DescriptorSet {
	return p.sets[role]
}

func (p *DescriptorPool) SetByName(name string) (*DescriptorSet, error) {
	role, ok := metadata.SetRoleFromString(name)
	if !ok {
		return nil, errors.Wrapf(core.ErrUnknownName, "descriptor set `%s`", name)
	}
	return p.sets[role], nil
}

// Sets returns every set in role order.
func (p *DescriptorPool) Sets() []*DescriptorSet {
	return append([]*DescriptorSet(nil), p.sets[:]...)
}

// Finalize sizes the pool to the attached buffers, finalizes each set
// layout, allocates one set per role and writes every non-empty set with
// a single update call. Without any buffer no pool is created and no sets
// are allocated.
func (p *DescriptorPool) Finalize() error {
	if p.finalized {
		return errors.Wrap(core.ErrSetFinalized, "descriptor pool")
	}
	if p.released {
		return errors.Wrap(core.ErrReleased, "descriptor pool")
	}

	for _, s := range p.sets {
		if s.finalized {
			continue
		}
		if err := s.Finalize(); err != nil {
			return err
		}
	}

	var counts [metadata.DESCRIPTOR_KIND_COUNT]uint32
	for _, s := range p.sets {
		for kind := range s.buffers {
			counts[kind] += uint32(len(s.buffers[kind]))
		}
	}
	var sizes []driver.DescriptorPoolSize
	for kind, n := range counts {
		if n > 0 {
			sizes = append(sizes, driver.DescriptorPoolSize{Type: descriptorTypes[kind], Count: n})
		}
	}

	p.finalized = true
	if len(sizes) == 0 {
		core.LogDebug("descriptor pool has no buffers, nothing to allocate")
		return nil
	}

	handle, err := p.device.CreateDescriptorPool(uint32(len(p.sets)), sizes)
	if err != nil {
		return errors.Wrapf(core.ErrAllocation, "descriptor pool: %v", err)
	}
	p.handle = handle

	handles, err := p.device.AllocateDescriptorSets(p.handle, p.Layouts())
	if err != nil {
		return errors.Wrapf(core.ErrAllocation, "descriptor sets: %v", err)
	}
	if len(handles) != len(p.sets) {
		return errors.Wrapf(core.ErrAllocation, "descriptor sets: got %d, want %d", len(handles), len(p.sets))
	}
	for i, s := range p.sets {
		s.handle = handles[i]
	}

	for _, s := range p.sets {
		if s.Empty() {
			continue
		}
		p.device.UpdateDescriptorSets(s.writes())
	}

	core.LogInfo("descriptor pool ready: %d uniform, %d storage descriptors",
		counts[metadata.DESCRIPTOR_KIND_UNIFORM], counts[metadata.DESCRIPTOR_KIND_STORAGE])
	return nil
}

func (p *DescriptorPool) Finalized() bool { return p.finalized }

// Layouts returns the set layouts in role order.
func (p *DescriptorPool) Layouts() []driver.DescriptorSetLayoutHandle {
	out := make([]driver.DescriptorSetLayoutHandle, len(p.sets))
	for i, s := range p.sets {
		out[i] = s.layout
	}
	return out
}

// DescriptorSets returns the allocated sets in role order, or nil when
// the pool holds no buffers.
func (p *DescriptorPool) DescriptorSets() []driver.DescriptorSetHandle {
	if p.handle == driver.NullHandle {
		return nil
	}
	out := make([]driver.DescriptorSetHandle, len(p.sets))
	for i, s := range p.sets {
		out[i] = s.handle
	}
	return out
}

// Buffers returns every attached buffer.
func (p *DescriptorPool) Buffers() []*Buffer {
	var out []*Buffer
	for _, s := range p.sets {
		for kind := range s.buffers {
			out = append(out, s.buffers[kind]...)
		}
	}
	return out
}

// Release frees attached buffers, then set layouts, then the pool.
func (p *DescriptorPool) Release() {
	if p.released {
		return
	}
	for _, s := range p.sets {
		s.releaseBuffers()
	}
	for _, s := range p.sets {
		s.releaseLayout()
	}
	if p.handle != driver.NullHandle {
		p.device.DestroyDescriptorPool(p.handle)
		p.handle = driver.NullHandle
	}
	p.released = true
}
