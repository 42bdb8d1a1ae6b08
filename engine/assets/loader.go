package assets

import "github.com/spaghettifunk/vulkanese/engine/renderer/metadata"

// Loader returns the SPIR-V code of one stage of a named shader.
type Loader interface {
	Load(name string, stage metadata.ShaderStage) ([]byte, error)
}
