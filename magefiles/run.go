//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the triangle demo.
func (Run) Demo() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run demo...")
	if _, err := tool("go", "run", ".", "-config", "config.toml").streamed().run(); err != nil {
		return err
	}
	return nil
}

// Compiles the shaders and runs the gradient compute shader without a window.
func (Run) Headless() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run headless...")
	if _, err := tool("go", "run", ".", "-config", "config.headless.toml").streamed().run(); err != nil {
		return err
	}
	return nil
}
