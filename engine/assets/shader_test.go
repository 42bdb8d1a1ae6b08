package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanese/engine/systems"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func writeShader(t *testing.T, dir, file string, code []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), code, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestValidateSPIRV(t *testing.T) {
	tests := []struct {
		name  string
		code  []byte
		valid bool
	}{
		{"module", spirv, true},
		{"empty", nil, false},
		{"partial word", spirv[:6], false},
		{"big endian", []byte{0x07, 0x23, 0x02, 0x03}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSPIRV(tt.code)
			if tt.valid && err != nil {
				t.Fatal(err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidSPIRV) {
				t.Fatalf("expected ErrInvalidSPIRV, got %v", err)
			}
		})
	}
}

func TestParseShaderPath(t *testing.T) {
	tests := []struct {
		path  string
		name  string
		stage metadata.ShaderStage
		ok    bool
	}{
		{"assets/shaders/triangle.vert.spv", "triangle", metadata.ShaderStageVertex, true},
		{"triangle.frag.spv", "triangle", metadata.ShaderStageFragment, true},
		{"/tmp/a.b.comp.spv", "a.b", metadata.ShaderStageCompute, true},
		{"triangle.vert", "", 0, false},
		{"triangle.spv", "", 0, false},
		{"triangle.tesc.spv", "", 0, false},
	}
	for _, tt := range tests {
		name, stage, ok := ParseShaderPath(tt.path)
		if ok != tt.ok || name != tt.name || (ok && stage != tt.stage) {
			t.Errorf("ParseShaderPath(%q) = %q, %v, %v", tt.path, name, stage, ok)
		}
	}
}

func TestShaderLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "triangle.vert.spv", spirv)
	writeShader(t, dir, "broken.vert.spv", spirv[:5])

	sl := NewShaderLoader(dir, nil)
	code, err := sl.Load("triangle", metadata.ShaderStageVertex)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != len(spirv) {
		t.Fatalf("read %d bytes", len(code))
	}
	if _, err := sl.Load("broken", metadata.ShaderStageVertex); !errors.Is(err, ErrInvalidSPIRV) {
		t.Fatalf("expected ErrInvalidSPIRV, got %v", err)
	}
	if _, err := sl.Load("triangle", metadata.ShaderStageFragment); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a missing file, got %v", err)
	}
}

func TestShaderLoaderLoadSet(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "triangle.vert.spv", spirv)
	writeShader(t, dir, "triangle.frag.spv", append(append([]byte{}, spirv...), 0, 0, 0, 0))

	jobs, err := systems.NewJobSystem(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer jobs.Shutdown()

	for _, sl := range []*ShaderLoader{NewShaderLoader(dir, jobs), NewShaderLoader(dir, nil)} {
		set, err := sl.LoadSet("triangle", metadata.ShaderStageVertex, metadata.ShaderStageFragment)
		if err != nil {
			t.Fatal(err)
		}
		if len(set) != 2 || set[0].Stage != metadata.ShaderStageVertex || set[1].Stage != metadata.ShaderStageFragment {
			t.Fatalf("stages out of order: %+v", set)
		}
		if len(set[0].Code) != 8 || len(set[1].Code) != 12 {
			t.Fatalf("code sizes %d and %d", len(set[0].Code), len(set[1].Code))
		}
		if set[1].Path != filepath.Join(dir, "triangle.frag.spv") {
			t.Errorf("path = %s", set[1].Path)
		}

		if _, err := sl.LoadSet("triangle", metadata.ShaderStageVertex, metadata.ShaderStageCompute); err == nil {
			t.Fatal("a missing stage fails the set")
		}
	}
}
