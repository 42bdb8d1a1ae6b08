package native

import (
	"runtime"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

type PhysicalDevice struct {
	Handle           vk.PhysicalDevice
	Name             string
	SwapchainSupport SwapchainSupportInfo

	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	ComputeQueueIndex  int32
	TransferQueueIndex int32

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type PhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	Transfer             bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

// DefaultRequirements asks for graphics and compute on one device. A null
// surface drops the present and swapchain requirements for headless use.
func DefaultRequirements(surface vk.Surface) PhysicalDeviceRequirements {
	req := PhysicalDeviceRequirements{
		Graphics: true,
		Compute:  true,
		Transfer: true,
	}
	if surface != vk.NullSurface {
		req.Present = true
		req.DeviceExtensionNames = []string{vk.KhrSwapchainExtensionName}
	}
	return req
}

type queueFamilyInfo struct {
	graphics, present, compute, transfer int32
}

// SelectPhysicalDevice returns the first device meeting the requirements,
// preferring discrete GPUs when several qualify.
func SelectPhysicalDevice(instance *Instance, surface vk.Surface, requirements PhysicalDeviceRequirements) (*PhysicalDevice, error) {
	var physicalDeviceCount uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance.Handle, &physicalDeviceCount, nil)); err != nil {
		return nil, err
	}
	if physicalDeviceCount == 0 {
		return nil, errors.New("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance.Handle, &physicalDeviceCount, physicalDevices)); err != nil {
		return nil, err
	}

	var selected *PhysicalDevice
	for _, handle := range physicalDevices {
		candidate := describePhysicalDevice(handle)
		if requirements.DiscreteGPU && runtime.GOOS != "darwin" && candidate.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			core.LogInfo("Device `%s` is not a discrete GPU, and one is required. Skipping.", candidate.Name)
			continue
		}
		if !physicalDeviceMeetsRequirements(candidate, surface, requirements) {
			continue
		}
		if selected == nil || candidate.Properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			selected = candidate
		}
	}
	if selected == nil {
		return nil, errors.New("no physical devices were found which meet the requirements")
	}

	logPhysicalDevice(selected)
	if format, ok := DetectDepthFormat(selected.Handle); ok {
		selected.DepthFormat = format
	} else {
		core.LogWarn("No depth format supported, rendering without depth")
		selected.DepthFormat = vk.FormatUndefined
	}
	core.LogInfo("Physical device selected.")
	return selected, nil
}

func describePhysicalDevice(handle vk.PhysicalDevice) *PhysicalDevice {
	pd := &PhysicalDevice{
		Handle:             handle,
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
		ComputeQueueIndex:  -1,
		TransferQueueIndex: -1,
	}
	vk.GetPhysicalDeviceProperties(handle, &pd.Properties)
	pd.Properties.Deref()
	pd.Properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(handle, &pd.Features)
	pd.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(handle, &pd.Memory)
	pd.Memory.Deref()
	for i := uint32(0); i < pd.Memory.MemoryTypeCount; i++ {
		pd.Memory.MemoryTypes[i].Deref()
	}
	for i := uint32(0); i < pd.Memory.MemoryHeapCount; i++ {
		pd.Memory.MemoryHeaps[i].Deref()
	}
	pd.Name = fixedString(pd.Properties.DeviceName[:])
	return pd
}

func logPhysicalDevice(pd *PhysicalDevice) {
	core.LogInfo("Selected device: '%s'.", pd.Name)
	switch pd.Properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	driverVersion := vk.Version(pd.Properties.DriverVersion)
	apiVersion := vk.Version(pd.Properties.ApiVersion)
	core.LogInfo("GPU Driver version: %d.%d.%d", driverVersion.Major(), driverVersion.Minor(), driverVersion.Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d", apiVersion.Major(), apiVersion.Minor(), apiVersion.Patch())

	for j := uint32(0); j < pd.Memory.MemoryHeapCount; j++ {
		heap := pd.Memory.MemoryHeaps[j]
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

func physicalDeviceMeetsRequirements(pd *PhysicalDevice, surface vk.Surface, requirements PhysicalDeviceRequirements) bool {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd.Handle, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd.Handle, &queueFamilyCount, queueFamilies)

	info := queueFamilyInfo{graphics: -1, present: -1, compute: -1, transfer: -1}
	minTransferScore := 255
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		currentTransferScore := 0

		if flags&vk.QueueGraphicsBit != 0 {
			if info.graphics < 0 {
				info.graphics = int32(i)
			}
			currentTransferScore++
		}
		if flags&vk.QueueComputeBit != 0 {
			if info.compute < 0 {
				info.compute = int32(i)
			}
			currentTransferScore++
		}
		// Take the index if it is the current lowest. This increases the
		// likelihood that it is a dedicated transfer queue.
		if flags&vk.QueueTransferBit != 0 && currentTransferScore <= minTransferScore {
			minTransferScore = currentTransferScore
			info.transfer = int32(i)
		}

		if surface != vk.NullSurface {
			var supportsPresent vk.Bool32
			if res := vk.GetPhysicalDeviceSurfaceSupport(pd.Handle, uint32(i), surface, &supportsPresent); res != vk.Success {
				return false
			}
			// Prefer presenting from the graphics family.
			if supportsPresent == vk.True && (info.present < 0 || info.present != info.graphics) {
				info.present = int32(i)
			}
		}
	}

	core.LogDebug("Graphics | Present | Compute | Transfer | Name")
	core.LogDebug("%8d | %7d | %7d | %8d | %s", info.graphics, info.present, info.compute, info.transfer, pd.Name)

	if (requirements.Graphics && info.graphics < 0) ||
		(requirements.Present && info.present < 0) ||
		(requirements.Compute && info.compute < 0) ||
		(requirements.Transfer && info.transfer < 0) {
		core.LogInfo("Device `%s` does not meet queue requirements, skipping.", pd.Name)
		return false
	}

	if requirements.Present {
		support, err := QuerySwapchainSupport(pd.Handle, surface)
		if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			core.LogInfo("Required swapchain support not present, skipping device.")
			return false
		}
		pd.SwapchainSupport = support
	}

	available, err := deviceExtensions(pd.Handle)
	if err != nil {
		return false
	}
	for _, name := range requirements.DeviceExtensionNames {
		if !available[name] {
			core.LogInfo("Required extension not found: '%s', skipping device.", name)
			return false
		}
	}

	pd.GraphicsQueueIndex = info.graphics
	pd.PresentQueueIndex = info.present
	pd.ComputeQueueIndex = info.compute
	pd.TransferQueueIndex = info.transfer
	return true
}

func deviceExtensions(handle vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(handle, "", &count, nil)); err != nil {
		return nil, err
	}
	properties := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(handle, "", &count, properties)); err != nil {
			return nil, err
		}
	}
	names := make(map[string]bool, count)
	for i := range properties {
		properties[i].Deref()
		names[fixedString(properties[i].ExtensionName[:])] = true
	}
	return names, nil
}

// DetectDepthFormat returns the first depth format usable as an optimal
// tiling attachment.
func DetectDepthFormat(physicalDevice vk.PhysicalDevice) (vk.Format, bool) {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(physicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags || properties.LinearTilingFeatures&flags == flags {
			return candidate, true
		}
	}
	return vk.FormatUndefined, false
}

// Device is the goki/vulkan implementation of driver.Device. Driver handles
// are keys into per-type tables, so the core never sees a vk object.
type Device struct {
	Physical *PhysicalDevice
	Handle   vk.Device

	GraphicsQueue *Queue
	PresentQueue  *Queue

	allocator *vk.AllocationCallbacks
	lockPool  *VulkanLockPool

	buffers         *handleTable[vk.Buffer]
	memories        *handleTable[vk.DeviceMemory]
	setLayouts      *handleTable[vk.DescriptorSetLayout]
	descriptorPools *handleTable[vk.DescriptorPool]
	descriptorSets  *handleTable[vk.DescriptorSet]
	shaderModules   *handleTable[vk.ShaderModule]
	pipelineLayouts *handleTable[vk.PipelineLayout]
	pipelines       *handleTable[vk.Pipeline]
	commandPools    *handleTable[vk.CommandPool]
	commandBuffers  *handleTable[vk.CommandBuffer]
	semaphores      *handleTable[vk.Semaphore]
	fences          *handleTable[vk.Fence]
	renderPasses    *handleTable[vk.RenderPass]
	framebuffers    *handleTable[vk.Framebuffer]

	// sets allocated from each descriptor pool, dropped with the pool
	poolSets map[driver.DescriptorPoolHandle][]driver.DescriptorSetHandle
}

var _ driver.Device = (*Device)(nil)

// CreateDevice creates the logical device with one queue per distinct
// family and fetches the graphics and present queues.
func CreateDevice(physical *PhysicalDevice) (*Device, error) {
	core.LogInfo("Creating logical device...")

	families := []uint32{uint32(physical.GraphicsQueueIndex)}
	if physical.PresentQueueIndex >= 0 && physical.PresentQueueIndex != physical.GraphicsQueueIndex {
		families = append(families, uint32(physical.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	available, err := deviceExtensions(physical.Handle)
	if err != nil {
		return nil, err
	}
	var extensionNames []string
	if physical.PresentQueueIndex >= 0 {
		extensionNames = append(extensionNames, vk.KhrSwapchainExtensionName)
	}
	if available["VK_KHR_portability_subset"] {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	d := &Device{
		Physical:        physical,
		lockPool:        NewVulkanLockPool(),
		buffers:         newHandleTable[vk.Buffer](),
		memories:        newHandleTable[vk.DeviceMemory](),
		setLayouts:      newHandleTable[vk.DescriptorSetLayout](),
		descriptorPools: newHandleTable[vk.DescriptorPool](),
		descriptorSets:  newHandleTable[vk.DescriptorSet](),
		shaderModules:   newHandleTable[vk.ShaderModule](),
		pipelineLayouts: newHandleTable[vk.PipelineLayout](),
		pipelines:       newHandleTable[vk.Pipeline](),
		commandPools:    newHandleTable[vk.CommandPool](),
		commandBuffers:  newHandleTable[vk.CommandBuffer](),
		semaphores:      newHandleTable[vk.Semaphore](),
		fences:          newHandleTable[vk.Fence](),
		renderPasses:    newHandleTable[vk.RenderPass](),
		framebuffers:    newHandleTable[vk.Framebuffer](),
		poolSets:        make(map[driver.DescriptorPoolHandle][]driver.DescriptorSetHandle),
	}

	if err := check("vkCreateDevice", vk.CreateDevice(physical.Handle, &deviceCreateInfo, d.allocator, &d.Handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Logical device created.")

	d.GraphicsQueue = d.queue(uint32(physical.GraphicsQueueIndex))
	d.PresentQueue = d.GraphicsQueue
	if physical.PresentQueueIndex >= 0 && physical.PresentQueueIndex != physical.GraphicsQueueIndex {
		d.PresentQueue = d.queue(uint32(physical.PresentQueueIndex))
	}
	core.LogInfo("Queues obtained.")

	return d, nil
}

func (d *Device) queue(family uint32) *Queue {
	var handle vk.Queue
	vk.GetDeviceQueue(d.Handle, family, 0, &handle)
	d.lockPool.SetQueueFamily(family)
	return &Queue{device: d, Handle: handle, Family: family}
}

// Destroy destroys the logical device. Every object created through the
// driver interface must be released first; leftovers are only reported.
func (d *Device) Destroy() {
	if d.Handle == nil {
		return
	}
	vk.DeviceWaitIdle(d.Handle)

	leaks := map[string]int{
		"buffers":           d.buffers.len(),
		"memory":            d.memories.len(),
		"descriptor pools":  d.descriptorPools.len(),
		"pipelines":         d.pipelines.len(),
		"command pools":     d.commandPools.len(),
		"semaphores":        d.semaphores.len(),
		"fences":            d.fences.len(),
		"render passes":     d.renderPasses.len(),
		"framebuffers":      d.framebuffers.len(),
		"shader modules":    d.shaderModules.len(),
		"pipeline layouts":  d.pipelineLayouts.len(),
		"descriptor layout": d.setLayouts.len(),
	}
	for kind, n := range leaks {
		if n > 0 {
			core.LogWarn("destroying device with %d live %s", n, kind)
		}
	}

	core.LogInfo("Destroying logical device...")
	d.GraphicsQueue = nil
	d.PresentQueue = nil
	vk.DestroyDevice(d.Handle, d.allocator)
	d.Handle = nil
}

// WaitIdle blocks until every queue of the device is idle.
func (d *Device) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.Handle))
}
