//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL stage in assets/shaders to <name>.<stage>.spv with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Runs go mod tidy.
func (Build) Tidy() error {
	_, err := tool("go", "mod", "tidy").run()
	if err != nil {
		return fmt.Errorf("failed to run go mod tidy: %w", err)
	}
	return nil
}

func buildShaders() error {
	var sources []string
	for _, ext := range []string{"vert", "frag", "geom", "comp"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, "*."+ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources found in %s", shaderDir)
	}

	for _, src := range sources {
		name := filepath.Base(src)
		out := name + ".spv"
		if !mg.Verbose() && upToDate(src, filepath.Join(shaderDir, out)) {
			continue
		}
		if _, err := tool("glslc", name, "-o", out).in(shaderDir).streamed().run(); err != nil {
			return err
		}
	}
	fmt.Printf("Compiled %d shaders: %s\n", len(sources), strings.Join(sources, ", "))
	return nil
}
