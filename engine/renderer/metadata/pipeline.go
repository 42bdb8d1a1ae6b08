package metadata

import "github.com/spaghettifunk/vulkanese/engine/renderer/driver"

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

/** @brief Fixed-function state of a graphics pipeline. */
type FixedFunctionState struct {
	Topology   driver.PrimitiveTopology
	CullMode   FaceCullMode
	FrontFace  driver.FrontFace
	/** @brief Rasterize polygon edges only. */
	Wireframe  bool
	LineWidth  float32
	DepthTest  bool
	DepthWrite bool
	/** @brief Alpha blending on the color attachment. */
	Blend      bool
}

/** @brief Filled triangle lists, back-face culling, depth test and alpha blending. */
func DefaultFixedFunctionState() FixedFunctionState {
	return FixedFunctionState{
		Topology:   driver.TopologyTriangleList,
		CullMode:   FaceCullModeBack,
		FrontFace:  driver.FrontFaceCounterClockwise,
		LineWidth:  1.0,
		DepthTest:  true,
		DepthWrite: true,
		Blend:      true,
	}
}

func (f FixedFunctionState) RasterState() driver.RasterState {
	rs := driver.RasterState{
		Topology:    f.Topology,
		PolygonMode: driver.PolygonModeFill,
		FrontFace:   f.FrontFace,
		LineWidth:   f.LineWidth,
		DepthTest:   f.DepthTest,
		DepthWrite:  f.DepthWrite,
		Blend:       f.Blend,
	}
	if f.Wireframe {
		rs.PolygonMode = driver.PolygonModeLine
	}
	if rs.LineWidth == 0 {
		rs.LineWidth = 1.0
	}
	switch f.CullMode {
	case FaceCullModeNone:
		rs.CullMode = driver.CullModeNone
	case FaceCullModeFront:
		rs.CullMode = driver.CullModeFront
	case FaceCullModeFrontAndBack:
		rs.CullMode = driver.CullModeFrontAndBack
	default:
		rs.CullMode = driver.CullModeBack
	}
	return rs
}
