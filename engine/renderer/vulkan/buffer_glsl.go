package vulkan

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

var scalarGLSL = map[metadata.ScalarType]string{
	metadata.SCALAR_TYPE_FLOAT32: "float",
	metadata.SCALAR_TYPE_FLOAT64: "double",
	metadata.SCALAR_TYPE_INT32:   "int",
	metadata.SCALAR_TYPE_UINT32:  "uint",
	metadata.SCALAR_TYPE_UINT16:  "uint16_t",
}

var vectorGLSL = map[metadata.ScalarType][5]string{
	metadata.SCALAR_TYPE_FLOAT32: {"", "float", "vec2", "vec3", "vec4"},
	metadata.SCALAR_TYPE_FLOAT64: {"", "double", "dvec2", "dvec3", "dvec4"},
	metadata.SCALAR_TYPE_INT32:   {"", "int", "ivec2", "ivec3", "ivec4"},
	metadata.SCALAR_TYPE_UINT32:  {"", "uint", "uvec2", "uvec3", "uvec4"},
}

// Declaration returns the GLSL vertex input declaration of a vertex buffer,
// e.g. "layout (location = 0) in vec3 position;".
func (b *Buffer) Declaration() string {
	comps := b.vertexComponents()
	glslType := b.elementType.GLSL()
	if names, ok := vectorGLSL[b.elementType.Scalar()]; ok && comps <= 4 {
		glslType = names[comps]
	}
	return fmt.Sprintf("layout (location = %d) in %s %s;\n", b.location, glslType, b.name)
}

// ComputeDeclaration returns the GLSL block declaring a descriptor bound
// buffer. Padded buffers are declared as std140 arrays of their scalar
// type so the array stride matches the skip factor; compact storage
// buffers use std430.
func (b *Buffer) ComputeDeclaration() string {
	var sb strings.Builder

	set, binding := 0, 0
	if role, bnd, ok := b.DescriptorBinding(); ok {
		set, binding = int(role), int(bnd)
	}

	switch b.usage {
	case metadata.BUFFER_USAGE_UNIFORM:
		member := b.elementType.GLSL() + " " + b.name
		if b.skip > 1 {
			// one scalar per 16 byte array slot, matching the host stride
			member = fmt.Sprintf("%s %s[%d]", scalarGLSL[b.elementType.Scalar()], b.name, b.count)
		} else if elements := b.count / uint64(b.elementType.Components()); elements > 1 {
			member = fmt.Sprintf("%s[%d]", member, elements)
		}
		fmt.Fprintf(&sb, "layout(std140, set = %d, binding = %d) uniform %s_ubo\n{\n   %s;\n};\n", set, binding, b.name, member)
	default:
		packing := "std430"
		glslType := b.elementType.GLSL()
		if b.skip > 1 {
			packing = "std140"
			glslType = scalarGLSL[b.elementType.Scalar()]
		} else if b.elementType.Components() == 3 {
			// vec3 arrays are 16 byte aligned even under std430
			glslType = scalarGLSL[b.elementType.Scalar()]
		}
		qualifier := b.qualifier.String()
		if qualifier != "" {
			qualifier += " "
		}
		fmt.Fprintf(&sb, "layout(%s, set = %d, binding = %d) %sbuffer %s_buf\n{\n   %s %s[];\n};\n", packing, set, binding, qualifier, b.name, glslType, b.name)
	}
	return sb.String()
}
