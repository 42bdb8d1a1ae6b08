package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting width and height. Zero width and height together mean
	// headless: no window, no swapchain.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// Window starting position.
	PosX uint32 `toml:"pos_x"`
	PosY uint32 `toml:"pos_y"`
}

type RendererConfig struct {
	Validation bool `toml:"validation"`
	// WaitIdleAfterPresent drains the queue after every present. When false
	// frames are bounded by MaxFramesInFlight fences instead.
	WaitIdleAfterPresent bool       `toml:"wait_idle_after_present"`
	MaxFramesInFlight    int        `toml:"max_frames_in_flight"`
	FrameSlots           int        `toml:"frame_slots"`
	ClearColor           [4]float32 `toml:"clear_color"`
	VSync                bool       `toml:"vsync"`
	DiscreteGPU          bool       `toml:"discrete_gpu"`
}

type ShadersConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
	// Workers loading shader stages in parallel.
	Workers int `toml:"workers"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Shaders     ShadersConfig     `toml:"shaders"`
	Logging     LoggingConfig     `toml:"logging"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Vulkanese",
			Width:  1280,
			Height: 720,
			PosX:   100,
			PosY:   100,
		},
		Renderer: RendererConfig{
			WaitIdleAfterPresent: true,
			MaxFramesInFlight:    2,
			FrameSlots:           metadata.SURFACE_FRAME_SLOTS,
			ClearColor:           [4]float32{0.0, 0.0, 0.2, 1.0},
			VSync:                true,
		},
		Shaders: ShadersConfig{
			Dir:     "assets/shaders",
			Workers: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML file on top of Default, so missing keys keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config `%s`", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.Newf("config: %s at line %d, column %d", derr.Error(), row, col)
		}
		return nil, errors.Wrap(err, "config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Headless reports whether the application runs without a window.
func (c *Config) Headless() bool {
	return c.Application.Width == 0 && c.Application.Height == 0
}

func (c *Config) Validate() error {
	if c.Application.Name == "" {
		return errors.New("config: application.name cannot be empty")
	}
	if (c.Application.Width == 0) != (c.Application.Height == 0) {
		return errors.Newf("config: window size %dx%d, both dimensions must be set or both zero", c.Application.Width, c.Application.Height)
	}
	if c.Renderer.MaxFramesInFlight < 1 {
		return errors.Newf("config: renderer.max_frames_in_flight must be at least 1, got %d", c.Renderer.MaxFramesInFlight)
	}
	if c.Renderer.FrameSlots < 1 {
		return errors.Newf("config: renderer.frame_slots must be at least 1, got %d", c.Renderer.FrameSlots)
	}
	if !c.Renderer.WaitIdleAfterPresent && c.Renderer.MaxFramesInFlight > c.Renderer.FrameSlots {
		return errors.Newf("config: %d frames in flight need at least as many frame slots, got %d", c.Renderer.MaxFramesInFlight, c.Renderer.FrameSlots)
	}
	if c.Shaders.Dir == "" {
		return errors.New("config: shaders.dir cannot be empty")
	}
	if c.Shaders.Workers < 1 {
		return errors.Newf("config: shaders.workers must be at least 1, got %d", c.Shaders.Workers)
	}
	return nil
}
