package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseKeepsDefaults(t *testing.T) {
	c, err := Parse([]byte(`
[application]
name = "triangle"

[renderer]
vsync = false
clear_color = [0.1, 0.2, 0.3, 1.0]
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Application.Name != "triangle" {
		t.Errorf("name = %q", c.Application.Name)
	}
	if c.Application.Width != 1280 || c.Application.Height != 720 {
		t.Errorf("missing window size must keep the default, got %dx%d", c.Application.Width, c.Application.Height)
	}
	if c.Renderer.VSync {
		t.Error("vsync should be off")
	}
	if c.Renderer.ClearColor != [4]float32{0.1, 0.2, 0.3, 1.0} {
		t.Errorf("clear color = %v", c.Renderer.ClearColor)
	}
	if !c.Renderer.WaitIdleAfterPresent || c.Renderer.FrameSlots != 3 {
		t.Errorf("renderer defaults lost: %+v", c.Renderer)
	}
	if c.Shaders.Dir != "assets/shaders" || c.Logging.Level != "info" {
		t.Errorf("defaults lost: %+v %+v", c.Shaders, c.Logging)
	}
}

func TestParseHeadless(t *testing.T) {
	c, err := Parse([]byte("[application]\nwidth = 0\nheight = 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Headless() {
		t.Fatal("a zero window size runs headless")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"syntax", "[application\nname = 1", "line"},
		{"half window", "[application]\nwidth = 0", "both dimensions"},
		{"no frames in flight", "[renderer]\nmax_frames_in_flight = 0", "max_frames_in_flight"},
		{"more frames than slots", "[renderer]\nwait_idle_after_present = false\nmax_frames_in_flight = 4", "frame slots"},
		{"empty shader dir", "[shaders]\ndir = \"\"", "shaders.dir"},
		{"empty name", "[application]\nname = \"\"", "application.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Logging.Level != "debug" {
		t.Errorf("level = %q", c.Logging.Level)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
