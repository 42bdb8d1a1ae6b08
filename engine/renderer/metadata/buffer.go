package metadata

/** @brief What a buffer is used for. Decides its descriptor kind and padding. */
type BufferUsage int

const (
	BUFFER_USAGE_VERTEX BufferUsage = iota
	BUFFER_USAGE_INDEX
	BUFFER_USAGE_UNIFORM
	BUFFER_USAGE_STORAGE
)

func (u BufferUsage) String() string {
	switch u {
	case BUFFER_USAGE_VERTEX:
		return "vertex"
	case BUFFER_USAGE_INDEX:
		return "index"
	case BUFFER_USAGE_UNIFORM:
		return "uniform"
	case BUFFER_USAGE_STORAGE:
		return "storage"
	}
	return "unknown"
}

/** @brief Whether buffers of this usage can be bound through a descriptor. */
func (u BufferUsage) Descriptor() (DescriptorKind, bool) {
	switch u {
	case BUFFER_USAGE_UNIFORM:
		return DESCRIPTOR_KIND_UNIFORM, true
	case BUFFER_USAGE_STORAGE:
		return DESCRIPTOR_KIND_STORAGE, true
	}
	return DESCRIPTOR_KIND_UNIFORM, false
}

/** @brief GLSL storage qualifier of a shader-visible buffer. */
type BufferQualifier int

const (
	BUFFER_QUALIFIER_NONE BufferQualifier = iota
	BUFFER_QUALIFIER_READONLY
	BUFFER_QUALIFIER_WRITEONLY
)

func (q BufferQualifier) String() string {
	switch q {
	case BUFFER_QUALIFIER_READONLY:
		return "readonly"
	case BUFFER_QUALIFIER_WRITEONLY:
		return "writeonly"
	}
	return ""
}
