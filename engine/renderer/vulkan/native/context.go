package native

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulkanese/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Instance owns the VkInstance and, with validation on, the debug report
// callback that forwards layer messages to the engine log.
type Instance struct {
	Handle    vk.Instance
	Allocator *vk.AllocationCallbacks

	validation     bool
	debugMessenger vk.DebugReportCallback
}

// NewInstance loads the Vulkan entry points through glfw and creates an
// instance with the window system extensions. glfw must be initialized.
func NewInstance(appName string, windowExtensions []string, validation bool) (*Instance, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize vk")
	}

	instance := &Instance{validation: validation}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Vulkanese"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, windowExtensions...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	var layers []string
	if validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)

		core.LogInfo("Validation layers enabled. Enumerating...")
		found, err := layerAvailable(validationLayer)
		if err != nil {
			return nil, err
		}
		if found {
			layers = append(layers, validationLayer)
			core.LogInfo("All required validation layers are present.")
		} else {
			core.LogWarn("Validation layer `%s` is missing, continuing without it", validationLayer)
		}
	}

	core.LogDebug("Required extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, instance.Allocator, &instance.Handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := vk.InitInstance(instance.Handle); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if len(layers) > 0 {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(instance.Handle, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError(err.Error())
			instance.Destroy()
			return nil, err
		}
		instance.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	return instance, nil
}

func layerAvailable(name string) (bool, error) {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return false, err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return false, err
	}
	for i := range available {
		available[i].Deref()
		if fixedString(available[i].LayerName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateSurface creates the presentation surface of a glfw window.
func (i *Instance) CreateSurface(window *glfw.Window) (vk.Surface, error) {
	surface, err := window.CreateWindowSurface(i.Handle, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "vulkan surface creation failed")
	}
	core.LogDebug("Vulkan surface created.")
	return vk.SurfaceFromPointer(surface), nil
}

func (i *Instance) DestroySurface(surface vk.Surface) {
	if surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(i.Handle, surface, i.Allocator)
	}
}

func (i *Instance) Destroy() {
	if i.Handle == nil {
		return
	}
	if i.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(i.Handle, i.debugMessenger, i.Allocator)
		i.debugMessenger = vk.NullDebugReportCallback
	}
	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(i.Handle, i.Allocator)
	i.Handle = nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
