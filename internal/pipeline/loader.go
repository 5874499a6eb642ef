package pipeline

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/linkctl/internal/log"
)

//go:embed pipelines/*.yaml
var builtinPipelines embed.FS

// SourceBuiltin marks pipelines loaded from the embedded files.
const SourceBuiltin = "builtin"

// pipelineFile is the YAML shape of one pipeline.
type pipelineFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Entity      string     `yaml:"entity"`
	Steps       []stepFile `yaml:"steps"`
}

type stepFile struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Inputs   []string `yaml:"inputs"`
	Outputs  []string `yaml:"outputs"`
	Contract string   `yaml:"contract"`
	Method   string   `yaml:"method"`
	Target   string   `yaml:"target"`
	Field    string   `yaml:"field"`
	GasLimit uint64   `yaml:"gas_limit"`
	Message  string   `yaml:"message"`
}

// LoadBuiltin loads the embedded pipelines.
func LoadBuiltin() ([]*Pipeline, error) {
	return loadFromFS(builtinPipelines, "pipelines", func(name string) string { return SourceBuiltin })
}

// LoadDir loads every .yaml/.yml file in dir. A missing directory yields no
// pipelines and no error.
func LoadDir(dir string) ([]*Pipeline, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return loadFromFS(os.DirFS(dir), ".", func(name string) string { return filepath.Join(dir, name) })
}

// LoadTable builds the table from the built-in pipelines overlaid by the
// pipelines in userDir. A user pipeline replaces a built-in of the same name.
func LoadTable(userDir string) (*Table, error) {
	builtin, err := LoadBuiltin()
	if err != nil {
		return nil, err
	}
	table, err := NewTable(builtin...)
	if err != nil {
		return nil, err
	}
	user, err := LoadDir(userDir)
	if err != nil {
		return nil, err
	}
	for _, p := range user {
		if _, exists := table.pipelines[p.Name]; exists {
			log.Info(log.CatPipeline, "user pipeline overrides builtin", "name", p.Name, "path", p.Source)
		}
		table.pipelines[p.Name] = p
	}
	return table, nil
}

func loadFromFS(fsys fs.FS, dir string, source func(string) string) ([]*Pipeline, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline directory: %w", err)
	}

	var out []*Pipeline
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		// Embedded filesystems always use forward slashes.
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading pipeline file %s: %w", name, err)
		}
		p, err := Parse(data, source(name))
		if err != nil {
			return nil, fmt.Errorf("pipeline file %s: %w", name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Parse decodes and validates one pipeline document.
func Parse(data []byte, source string) (*Pipeline, error) {
	var file pipelineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	b := NewBuilder(file.Name, file.Entity).Description(file.Description).From(source)
	for _, s := range file.Steps {
		opts := []StepOption{
			Inputs(s.Inputs...),
			Outputs(s.Outputs...),
			Contract(s.Contract),
			Method(s.Method),
			Field(s.Field),
			GasLimit(s.GasLimit),
			Message(s.Message),
		}
		if s.Target != "" {
			opts = append(opts, Target(s.Target))
		}
		b.Step(s.Name, Kind(s.Kind), opts...)
	}
	return b.Build()
}
