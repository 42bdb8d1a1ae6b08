//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every test. The native driver tests need a Vulkan loader.
func (Test) All() error {
	_, err := tool("go", "test", "-race", "./...").streamed().run()
	return err
}

// Runs the tests that do not touch a GPU.
func (Test) Core() error {
	_, err := tool("go", "test", "-race",
		"./engine/core/...",
		"./engine/containers/...",
		"./engine/math/...",
		"./engine/config/...",
		"./engine/systems/...",
		"./engine/assets/...",
		"./engine/renderer/metadata/...",
		"./engine/renderer/vulkan",
		"./engine/renderer",
	).streamed().run()
	return err
}
