package metadata

import (
	"strings"

	"github.com/cockroachdb/errors"
)

/** @brief The scalar type stored in a buffer. */
type ScalarType int

const (
	SCALAR_TYPE_FLOAT32 ScalarType = iota
	SCALAR_TYPE_FLOAT64
	SCALAR_TYPE_INT32
	SCALAR_TYPE_UINT32
	SCALAR_TYPE_UINT16
)

/** @brief Size in bytes of one scalar. */
func (s ScalarType) Size() uint32 {
	switch s {
	case SCALAR_TYPE_FLOAT64:
		return 8
	case SCALAR_TYPE_UINT16:
		return 2
	}
	return 4
}

/**
 * @brief The element type tag of a buffer: a scalar, a vector of 2 to 4
 * scalars or a mat4. Vector and matrix buffers carry their components in
 * the trailing dimensions of the shape (a vec3 list is [n, 3], one mat4 is
 * [4, 4]), so items are always scalars.
 */
type ElementType int

const (
	ELEMENT_TYPE_FLOAT ElementType = iota
	ELEMENT_TYPE_VEC2
	ELEMENT_TYPE_VEC3
	ELEMENT_TYPE_VEC4
	ELEMENT_TYPE_DOUBLE
	ELEMENT_TYPE_DVEC2
	ELEMENT_TYPE_DVEC3
	ELEMENT_TYPE_DVEC4
	ELEMENT_TYPE_INT
	ELEMENT_TYPE_IVEC2
	ELEMENT_TYPE_IVEC3
	ELEMENT_TYPE_IVEC4
	ELEMENT_TYPE_UINT
	ELEMENT_TYPE_UVEC2
	ELEMENT_TYPE_UVEC3
	ELEMENT_TYPE_UVEC4
	ELEMENT_TYPE_MAT4
	ELEMENT_TYPE_UINT16
)

type elementInfo struct {
	scalar     ScalarType
	components uint32
	glsl       string
}

var elementInfos = map[ElementType]elementInfo{
	ELEMENT_TYPE_FLOAT:  {SCALAR_TYPE_FLOAT32, 1, "float"},
	ELEMENT_TYPE_VEC2:   {SCALAR_TYPE_FLOAT32, 2, "vec2"},
	ELEMENT_TYPE_VEC3:   {SCALAR_TYPE_FLOAT32, 3, "vec3"},
	ELEMENT_TYPE_VEC4:   {SCALAR_TYPE_FLOAT32, 4, "vec4"},
	ELEMENT_TYPE_DOUBLE: {SCALAR_TYPE_FLOAT64, 1, "double"},
	ELEMENT_TYPE_DVEC2:  {SCALAR_TYPE_FLOAT64, 2, "dvec2"},
	ELEMENT_TYPE_DVEC3:  {SCALAR_TYPE_FLOAT64, 3, "dvec3"},
	ELEMENT_TYPE_DVEC4:  {SCALAR_TYPE_FLOAT64, 4, "dvec4"},
	ELEMENT_TYPE_INT:    {SCALAR_TYPE_INT32, 1, "int"},
	ELEMENT_TYPE_IVEC2:  {SCALAR_TYPE_INT32, 2, "ivec2"},
	ELEMENT_TYPE_IVEC3:  {SCALAR_TYPE_INT32, 3, "ivec3"},
	ELEMENT_TYPE_IVEC4:  {SCALAR_TYPE_INT32, 4, "ivec4"},
	ELEMENT_TYPE_UINT:   {SCALAR_TYPE_UINT32, 1, "uint"},
	ELEMENT_TYPE_UVEC2:  {SCALAR_TYPE_UINT32, 2, "uvec2"},
	ELEMENT_TYPE_UVEC3:  {SCALAR_TYPE_UINT32, 3, "uvec3"},
	ELEMENT_TYPE_UVEC4:  {SCALAR_TYPE_UINT32, 4, "uvec4"},
	ELEMENT_TYPE_MAT4:   {SCALAR_TYPE_FLOAT32, 16, "mat4"},
	ELEMENT_TYPE_UINT16: {SCALAR_TYPE_UINT16, 1, "uint16_t"},
}

func (e ElementType) info() elementInfo {
	if i, ok := elementInfos[e]; ok {
		return i
	}
	return elementInfos[ELEMENT_TYPE_FLOAT]
}

func (e ElementType) Valid() bool {
	_, ok := elementInfos[e]
	return ok
}

func (e ElementType) Scalar() ScalarType {
	return e.info().scalar
}

func (e ElementType) Components() uint32 {
	return e.info().components
}

/** @brief Byte size of one stored item, i.e. one scalar. */
func (e ElementType) ItemSize() uint32 {
	return e.info().scalar.Size()
}

/**
 * @brief Narrow types are the ones std140 pads out to 16 bytes when they
 * are the element of an array: scalars, 2- and 3-component vectors.
 */
func (e ElementType) IsNarrow() bool {
	return e.info().components < 4
}

func (e ElementType) GLSL() string {
	return e.info().glsl
}

func (e ElementType) String() string {
	return e.info().glsl
}

/** @brief Parses a GLSL type name such as "vec3" or "uint". */
func ElementTypeFromString(s string) (ElementType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for e, i := range elementInfos {
		if i.glsl == name {
			return e, nil
		}
	}
	return ELEMENT_TYPE_FLOAT, errors.Newf("unknown element type `%s`", s)
}
