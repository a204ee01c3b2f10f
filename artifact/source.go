package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	Encoders    = "encoders"
	modelPrefix = "model_"
	fileSuffix  = ".json"
)

// Targets are the condition names models are trained for. Each has an
// artifact named model_<target>.
var Targets = []string{"diabetes", "heart", "cancer"}

// ModelName returns the logical artifact name of a target's model.
func ModelName(target string) string {
	return modelPrefix + target
}

// Names lists every artifact a prediction needs, encoders first.
func Names() []string {
	names := []string{Encoders}
	for _, t := range Targets {
		names = append(names, ModelName(t))
	}
	return names
}

// Source opens artifacts by logical name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// FileSource reads <Dir>/<name>.json.
type FileSource struct {
	Dir string
}

// NewFileSource returns a source rooted at dir, or at the directory of the
// running executable when dir is empty.
func NewFileSource(dir string) (*FileSource, error) {
	if dir == "" {
		d, err := ExecutableDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &FileSource{Dir: dir}, nil
}

func (s *FileSource) Path(name string) string {
	return filepath.Join(s.Dir, name+fileSuffix)
}

func (s *FileSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(s.Path(name))
}

// ExecutableDir resolves the directory holding the running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
