package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

func waitChange(t *testing.T, w *Watcher, want func(ShaderChange) bool) ShaderChange {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-w.Changes():
			if !ok {
				t.Fatal("watcher closed")
			}
			if want(c) {
				return c
			}
		case <-timeout:
			t.Fatal("no change reported")
		}
	}
}

func TestWatcherReportsShaderChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// ignored: not a compiled shader
	writeShader(t, dir, "triangle.vert", []byte("#version 450"))
	writeShader(t, dir, "triangle.frag.spv", spirv)

	c := waitChange(t, w, func(c ShaderChange) bool { return !c.Removed })
	if c.Name != "triangle" || c.Stage != metadata.ShaderStageFragment {
		t.Fatalf("unexpected change %+v", c)
	}

	if err := os.Remove(filepath.Join(dir, "triangle.frag.spv")); err != nil {
		t.Fatal(err)
	}
	waitChange(t, w, func(c ShaderChange) bool { return c.Removed })
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	sub := filepath.Join(dir, "compute")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// the directory watch is added asynchronously
	deadline := time.Now().Add(5 * time.Second)
	for {
		writeShader(t, sub, "double.comp.spv", spirv)
		select {
		case c := <-w.Changes():
			if c.Stage == metadata.ShaderStageCompute && c.Name == "double" {
				return
			}
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("changes in a new directory are not reported")
		}
	}
}

func TestWatcherClose(t *testing.T) {
	w, err := NewWatcher(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-w.Changes(); ok {
		t.Fatal("changes must be closed")
	}
	if err := w.Close(); err != nil {
		t.Fatal("a second close is a no-op")
	}
}
