package native

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorSetLayoutBinding) (driver.DescriptorSetLayoutHandle, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toDescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      toShaderStages(b.StageFlags),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.Handle, &createInfo, d.allocator, &layout)); err != nil {
		return driver.NullHandle, err
	}
	return driver.DescriptorSetLayoutHandle(d.setLayouts.put(layout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout driver.DescriptorSetLayoutHandle) {
	if l, ok := d.setLayouts.take(uint64(layout)); ok {
		vk.DestroyDescriptorSetLayout(d.Handle, l, d.allocator)
	}
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []driver.DescriptorPoolSize) (driver.DescriptorPoolHandle, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            toDescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.Handle, &createInfo, d.allocator, &pool)); err != nil {
		return driver.NullHandle, err
	}
	return driver.DescriptorPoolHandle(d.descriptorPools.put(pool)), nil
}

// DestroyDescriptorPool frees the sets allocated from the pool with it.
func (d *Device) DestroyDescriptorPool(pool driver.DescriptorPoolHandle) {
	p, ok := d.descriptorPools.take(uint64(pool))
	if !ok {
		return
	}
	_ = d.lockPool.SafeCall(DescriptorManagement, func() error {
		for _, set := range d.poolSets[pool] {
			d.descriptorSets.take(uint64(set))
		}
		delete(d.poolSets, pool)
		vk.DestroyDescriptorPool(d.Handle, p, d.allocator)
		return nil
	})
}

func (d *Device) AllocateDescriptorSets(pool driver.DescriptorPoolHandle, layouts []driver.DescriptorSetLayoutHandle) ([]driver.DescriptorSetHandle, error) {
	if len(layouts) == 0 {
		return nil, nil
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPools.lookup(uint64(pool)),
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        lookupAll(d.setLayouts, layouts),
	}

	sets := make([]vk.DescriptorSet, len(layouts))
	handles := make([]driver.DescriptorSetHandle, len(layouts))
	err := d.lockPool.SafeCall(DescriptorManagement, func() error {
		if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.Handle, &allocateInfo, &sets[0])); err != nil {
			return err
		}
		for i, set := range sets {
			handles[i] = driver.DescriptorSetHandle(d.descriptorSets.put(set))
		}
		d.poolSets[pool] = append(d.poolSets[pool], handles...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handles, nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.WriteDescriptorSet) {
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		infos := make([]vk.DescriptorBufferInfo, len(w.BufferInfos))
		for j, info := range w.BufferInfos {
			infos[j] = vk.DescriptorBufferInfo{
				Buffer: d.buffers.lookup(uint64(info.Buffer)),
				Offset: vk.DeviceSize(info.Offset),
				Range:  vk.DeviceSize(info.Range),
			}
		}
		vkWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.descriptorSets.lookup(uint64(w.DstSet)),
			DstBinding:      w.DstBinding,
			DstArrayElement: w.DstArrayElement,
			DescriptorCount: uint32(len(infos)),
			DescriptorType:  toDescriptorType(w.Type),
			PBufferInfo:     infos,
		}
	}
	_ = d.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.Handle, uint32(len(vkWrites)), vkWrites, 0, nil)
		return nil
	})
}
