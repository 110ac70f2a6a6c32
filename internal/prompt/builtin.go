package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/gatekeeper/internal/labels"
)

//go:embed templates/*.txt
var builtinFS embed.FS

// TemplateLoadError is a fatal configuration error: a stage template is
// missing, empty or lacks a required placeholder.
type TemplateLoadError struct {
	Source   string
	Problems []string
}

func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("loading templates from %s: %s", e.Source, strings.Join(e.Problems, "; "))
}

// Store holds one validated template per gated stage. It is read-only after load.
type Store struct {
	templates map[labels.Stage]string
}

// FileName returns the template file name for a stage, e.g. "triage.txt".
func FileName(stage labels.Stage) string {
	return string(stage) + ".txt"
}

// Load reads and validates a template for every gated stage from fsys.
// All stages are loaded eagerly; any problem fails the whole load.
func Load(fsys fs.FS, source string) (*Store, error) {
	s := &Store{templates: make(map[labels.Stage]string)}
	var problems []string
	for _, stage := range labels.GateStages() {
		name := FileName(stage)
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				problems = append(problems, fmt.Sprintf("%s: template not found", name))
			} else {
				problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			}
			continue
		}
		tmpl := strings.TrimSpace(string(data))
		for _, p := range checkTemplate(tmpl) {
			problems = append(problems, fmt.Sprintf("%s: %s", name, p))
		}
		s.templates[stage] = tmpl
	}
	if len(problems) > 0 {
		return nil, &TemplateLoadError{Source: source, Problems: problems}
	}
	return s, nil
}

// LoadBuiltin loads the templates compiled into the binary.
func LoadBuiltin() (*Store, error) {
	sub, err := fs.Sub(builtinFS, "templates")
	if err != nil {
		return nil, &TemplateLoadError{Source: "builtin", Problems: []string{err.Error()}}
	}
	return Load(sub, "builtin")
}

// LoadDir loads templates from a directory on disk. When dir is empty the
// builtin templates are used.
func LoadDir(dir string) (*Store, error) {
	if dir == "" {
		return LoadBuiltin()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &TemplateLoadError{Source: dir, Problems: []string{err.Error()}}
	}
	if !info.IsDir() {
		return nil, &TemplateLoadError{Source: dir, Problems: []string{"not a directory"}}
	}
	return Load(os.DirFS(dir), dir)
}

// Template returns the raw template for a stage.
func (s *Store) Template(stage labels.Stage) (string, bool) {
	t, ok := s.templates[stage]
	return t, ok
}

// Render expands the template for a stage.
func (s *Store) Render(stage labels.Stage, vars Vars) (string, error) {
	tmpl, ok := s.templates[stage]
	if !ok {
		return "", fmt.Errorf("no template for stage %q", stage)
	}
	return Render(tmpl, vars)
}

// InstallBuiltin writes the builtin templates into dir so they can be
// customized. Existing files are not overwritten. It returns the files written.
func InstallBuiltin(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	var written []string
	for _, stage := range labels.GateStages() {
		name := FileName(stage)
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue // don't overwrite existing
		}
		data, err := builtinFS.ReadFile("templates/" + name)
		if err != nil {
			return written, fmt.Errorf("read builtin template %q: %w", name, err)
		}
		if err := WriteAtomic(path, data); err != nil {
			return written, fmt.Errorf("write template %q: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
