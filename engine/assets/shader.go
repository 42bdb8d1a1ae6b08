package assets

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/core"
	"github.com/spaghettifunk/vulkanese/engine/renderer/metadata"
	"github.com/spaghettifunk/vulkanese/engine/systems"
)

const (
	SPIRV_MAGIC     uint32 = 0x07230203
	SPIRV_EXTENSION        = ".spv"
)

var ErrInvalidSPIRV = errors.New("invalid SPIR-V")

/** @brief The compiled code of one shader stage. */
type ShaderCode struct {
	Name  string
	Stage metadata.ShaderStage
	Path  string
	Code  []byte
}

// ShaderLoader reads compiled shaders laid out as <dir>/<name>.<stage>.spv,
// the names `mage build:shaders` produces.
type ShaderLoader struct {
	dir  string
	jobs *systems.JobSystem
}

var _ Loader = (*ShaderLoader)(nil)

// NewShaderLoader loads sets of stages through jobs. A nil job system
// loads them one after the other.
func NewShaderLoader(dir string, jobs *systems.JobSystem) *ShaderLoader {
	return &ShaderLoader{dir: dir, jobs: jobs}
}

func (sl *ShaderLoader) Dir() string {
	return sl.dir
}

func (sl *ShaderLoader) Path(name string, stage metadata.ShaderStage) string {
	return filepath.Join(sl.dir, fmt.Sprintf("%s.%s%s", name, stage.Extension(), SPIRV_EXTENSION))
}

func (sl *ShaderLoader) Load(name string, stage metadata.ShaderStage) ([]byte, error) {
	path := sl.Path(name, stage)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading shader `%s` stage %s", name, stage)
	}
	if err := ValidateSPIRV(data); err != nil {
		return nil, errors.Wrapf(err, "shader `%s`", path)
	}
	core.LogDebug("loaded shader `%s` (%d bytes)", path, len(data))
	return data, nil
}

// LoadSet loads the stages of a shader in parallel. The result keeps the
// order of stages; the first failure is returned.
func (sl *ShaderLoader) LoadSet(name string, stages ...metadata.ShaderStage) ([]ShaderCode, error) {
	out := make([]ShaderCode, len(stages))
	errs := make([]error, len(stages))

	if sl.jobs == nil {
		for i, stage := range stages {
			out[i], errs[i] = sl.loadCode(name, stage)
		}
		return out, firstError(errs)
	}

	var wg sync.WaitGroup
	for i, stage := range stages {
		i, stage := i, stage
		wg.Add(1)
		err := sl.jobs.Submit(systems.JobTask{
			Name:        fmt.Sprintf("load shader %s.%s", name, stage.Extension()),
			InputParams: stage,
			OnStart: func(params interface{}) (interface{}, error) {
				return sl.loadCode(name, params.(metadata.ShaderStage))
			},
			OnComplete:           func(result interface{}) { out[i] = result.(ShaderCode) },
			OnFailure:            func(err error) { errs[i] = err },
			OnCompletionCallback: wg.Done,
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	return out, firstError(errs)
}

func (sl *ShaderLoader) loadCode(name string, stage metadata.ShaderStage) (ShaderCode, error) {
	code, err := sl.Load(name, stage)
	if err != nil {
		return ShaderCode{}, err
	}
	return ShaderCode{Name: name, Stage: stage, Path: sl.Path(name, stage), Code: code}, nil
}

// ValidateSPIRV checks the module header: a little endian magic number and
// a length made of whole 32-bit words.
func ValidateSPIRV(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return errors.Wrapf(ErrInvalidSPIRV, "%d bytes is not a whole number of words", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != SPIRV_MAGIC {
		return errors.Wrapf(ErrInvalidSPIRV, "bad magic number 0x%08x", magic)
	}
	return nil
}

// ParseShaderPath splits <dir>/<name>.<stage>.spv into its name and stage.
func ParseShaderPath(path string) (string, metadata.ShaderStage, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, SPIRV_EXTENSION) {
		return "", 0, false
	}
	base = strings.TrimSuffix(base, SPIRV_EXTENSION)
	ext := filepath.Ext(base)
	if ext == "" {
		return "", 0, false
	}
	stage, err := metadata.ShaderStageFromString(ext[1:])
	if err != nil {
		return "", 0, false
	}
	return strings.TrimSuffix(base, ext), stage, true
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
