package metadata

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

/** @brief Pipeline stage a shader module runs in. */
type ShaderStage int

const (
	ShaderStageVertex   ShaderStage = 0x00000001
	ShaderStageGeometry ShaderStage = 0x00000002
	ShaderStageFragment ShaderStage = 0x00000004
	ShaderStageCompute  ShaderStage = 0x00000008
)

/** @brief File extension used by glslc for the stage, e.g. "vert". */
func (s ShaderStage) Extension() string {
	switch s {
	case ShaderStageVertex:
		return "vert"
	case ShaderStageGeometry:
		return "geom"
	case ShaderStageFragment:
		return "frag"
	case ShaderStageCompute:
		return "comp"
	}
	return ""
}

func (s ShaderStage) String() string {
	return s.Extension()
}

func (s ShaderStage) Flags() driver.ShaderStageFlags {
	switch s {
	case ShaderStageVertex:
		return driver.ShaderStageVertex
	case ShaderStageGeometry:
		return driver.ShaderStageGeometry
	case ShaderStageFragment:
		return driver.ShaderStageFragment
	case ShaderStageCompute:
		return driver.ShaderStageCompute
	}
	return 0
}

func ShaderStageFromString(s string) (ShaderStage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vert", "vertex":
		return ShaderStageVertex, nil
	case "geom", "geometry":
		return ShaderStageGeometry, nil
	case "frag", "fragment":
		return ShaderStageFragment, nil
	case "comp", "compute":
		return ShaderStageCompute, nil
	}
	return ShaderStageVertex, errors.Newf("unrecognized shader stage `%s`", s)
}
