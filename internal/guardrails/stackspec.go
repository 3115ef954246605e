// Package guardrails decides whether a parsed manifest satisfies a stack's
// contract and the task's declared constraints, and builds the corrective
// revision prompt when it does not. StackSpecs for the nine vocabulary
// stacks are embedded as YAML, grounded on the teacher's yaml.v3 config
// idiom; Registry.Overlay can replace or add one from YAML data at run time.
package guardrails

import (
	"embed"
	"fmt"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mgxlabs/orchestrator/internal/types"
)

//go:embed stackspecs/*.yaml
var embeddedSpecs embed.FS

// rawStackSpec is the YAML-tagged on-disk shape; ForbiddenImports is
// compiled into regexp.Regexp once at load time and cached on StackSpec.
type rawStackSpec struct {
	Tag              string   `yaml:"tag"`
	Name             string   `yaml:"name"`
	Language         string   `yaml:"language"`
	RequiredFiles    []string `yaml:"required_files"`
	RequiredDirs     []string `yaml:"required_dirs"`
	ForbiddenFiles   []string `yaml:"forbidden_files"`
	RequiredCommands []string `yaml:"required_commands"`
	ForbiddenImports []string `yaml:"forbidden_imports"`
	CommonDeps       []string `yaml:"common_deps"`
}

// CompiledStackSpec wraps types.StackSpec with its pre-compiled
// forbidden-import regexes.
type CompiledStackSpec struct {
	types.StackSpec
	forbiddenImportRe []*regexp.Regexp
}

// Registry holds every known StackSpec, keyed by tag. Overlay replaces an
// embedded spec sharing a tag.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*CompiledStackSpec
}

// NewRegistry loads the nine embedded vocabulary stacks.
func NewRegistry() (*Registry, error) {
	r := &Registry{specs: make(map[string]*CompiledStackSpec)}
	entries, err := embeddedSpecs.ReadDir("stackspecs")
	if err != nil {
		return nil, fmt.Errorf("guardrails: read embedded stackspecs: %w", err)
	}
	for _, entry := range entries {
		data, err := embeddedSpecs.ReadFile("stackspecs/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("guardrails: read %s: %w", entry.Name(), err)
		}
		spec, err := parseAndCompile(data)
		if err != nil {
			return nil, fmt.Errorf("guardrails: parse %s: %w", entry.Name(), err)
		}
		r.specs[spec.Tag] = spec
	}
	return r, nil
}

// Get returns the StackSpec for tag, or false if unrecognized.
func (r *Registry) Get(tag string) (*CompiledStackSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[tag]
	return spec, ok
}

// Overlay replaces (or adds) the StackSpec parsed from YAML data, keyed by
// its tag. No code in this module watches a directory or calls Overlay.
func (r *Registry) Overlay(data []byte) error {
	spec, err := parseAndCompile(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Tag] = spec
	return nil
}

// Tags returns every currently registered stack tag.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.specs))
	for t := range r.specs {
		tags = append(tags, t)
	}
	return tags
}

func parseAndCompile(data []byte) (*CompiledStackSpec, error) {
	var raw rawStackSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	compiled := &CompiledStackSpec{
		StackSpec: types.StackSpec{
			Tag:              raw.Tag,
			Name:             raw.Name,
			Language:         raw.Language,
			RequiredFiles:    raw.RequiredFiles,
			RequiredDirs:     raw.RequiredDirs,
			ForbiddenFiles:   raw.ForbiddenFiles,
			RequiredCommands: raw.RequiredCommands,
			ForbiddenImports: raw.ForbiddenImports,
			CommonDeps:       raw.CommonDeps,
		},
	}
	for _, pattern := range raw.ForbiddenImports {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("forbidden_imports pattern %q: %w", pattern, err)
		}
		compiled.forbiddenImportRe = append(compiled.forbiddenImportRe, re)
	}
	return compiled, nil
}
