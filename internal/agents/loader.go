package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/logging"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/prompt"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/validation"
)

// SpecExt is the file extension of agent specifications.
const SpecExt = ".toml"

// Registry holds the loaded agent specifications keyed by name
type Registry struct {
	specs    map[string]*Spec
	warnings []string
}

// NewRegistry validates and registers specs in order. A later spec with the
// name of an earlier one replaces it and records a warning.
func NewRegistry(specs ...*Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]*Spec)}
	for _, spec := range specs {
		if err := Validate(spec); err != nil {
			return nil, err
		}
		r.add(spec)
	}
	return r, nil
}

func (r *Registry) add(spec *Spec) {
	name := spec.Metadata.Name
	if prev, ok := r.specs[name]; ok {
		r.warnings = append(r.warnings,
			fmt.Sprintf("agent %q from %s replaces the definition in %s", name, spec.Path, prev.Path))
	}
	r.specs[name] = spec
}

// LoadAll reads every spec file in dirs. Directories are visited in the
// given order and files within a directory in name order, so the last file
// declaring a name wins.
func LoadAll(dirs []string, logger *zap.Logger) (*Registry, error) {
	logger = logging.OrNop(logger)
	r := &Registry{specs: make(map[string]*Spec)}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, fmt.Sprintf("reading spec directory %s", dir), err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), SpecExt) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			spec, undecoded, err := LoadFile(path)
			if err != nil {
				return nil, err
			}
			if len(undecoded) > 0 {
				logger.Debug("Ignoring unknown spec keys",
					zap.String("path", path),
					zap.Strings("keys", undecoded))
			}
			before := len(r.warnings)
			r.add(spec)
			for _, w := range r.warnings[before:] {
				logger.Warn("Duplicate agent spec", zap.String("detail", w))
			}
		}
	}

	logger.Info("Loaded agent specs", zap.Int("count", len(r.specs)), zap.Int("warnings", len(r.warnings)))
	return r, nil
}

// LoadFile decodes and validates a single spec file. It also returns the
// keys present in the file that the spec model does not know.
func LoadFile(path string) (*Spec, []string, error) {
	var spec Spec
	md, err := toml.DecodeFile(path, &spec)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeSpecMalformed, fmt.Sprintf("decoding %s", path), err)
	}
	spec.Path = path

	if err := Validate(&spec); err != nil {
		return nil, nil, err
	}

	var undecoded []string
	for _, key := range md.Undecoded() {
		undecoded = append(undecoded, key.String())
	}
	return &spec, undecoded, nil
}

// Validate checks the structural rules every loaded spec must satisfy.
func Validate(spec *Spec) error {
	fail := func(format string, args ...any) error {
		msg := fmt.Sprintf(format, args...)
		if spec.Path != "" {
			msg = spec.Path + ": " + msg
		}
		return apperrors.WithMetadata(apperrors.CodeSpecMalformed, msg,
			map[string]string{"agent": spec.Metadata.Name, "path": spec.Path})
	}

	if strings.TrimSpace(spec.Metadata.Name) == "" {
		return fail("metadata.name is required")
	}
	if domain := strings.TrimSpace(spec.Metadata.Domain); domain != "" {
		if err := validation.ValidateDomain(domain); err != nil {
			return fail("metadata.domain %q: %v", spec.Metadata.Domain, err)
		}
	}

	for i, in := range spec.Interface.Inputs {
		if strings.TrimSpace(in.Type) == "" {
			return fail("input %d (%s) has no type", i, in.Name)
		}
	}

	for _, out := range spec.Interface.Outputs {
		switch out.Type {
		case "", OutputJSONObject, OutputJSONArray, OutputNarrativeTree:
		default:
			return fail("output %s has unknown type %q", out.Name, out.Type)
		}
	}

	for name, tpl := range spec.Prompts {
		declared := make(map[string]bool, len(tpl.Variables))
		for _, v := range tpl.Variables {
			declared[v] = true
		}
		for _, used := range prompt.Placeholders(tpl.Template) {
			if !declared[used] {
				return fail("template %s uses undeclared variable %q", name, used)
			}
		}
		if tpl.Temperature != nil && (*tpl.Temperature < 0 || *tpl.Temperature > 2) {
			return fail("template %s temperature %.2f outside [0,2]", name, *tpl.Temperature)
		}
		if tpl.MaxTokens != nil && *tpl.MaxTokens < 0 {
			return fail("template %s max_tokens is negative", name)
		}
	}

	if budget, ok := spec.Config["token_budget"]; ok {
		if n, isInt := budget.AsInt(); !isInt || n <= 0 {
			return fail("config.token_budget must be a positive integer")
		}
	}
	return nil
}

// Get returns the spec named name
func (r *Registry) Get(name string) (*Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Len returns the number of registered specs
func (r *Registry) Len() int {
	return len(r.specs)
}

// Names returns every registered agent name, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Warnings returns the duplicate-name warnings recorded during load
func (r *Registry) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

// ValidateRequired fails with MissingSpec for the first name not registered.
func (r *Registry) ValidateRequired(names []string) error {
	for _, name := range names {
		if _, ok := r.specs[name]; !ok {
			return apperrors.WithMetadata(apperrors.CodeMissingSpec,
				fmt.Sprintf("required agent spec %q not found", name),
				map[string]string{"agent": name})
		}
	}
	return nil
}

// ByCapability returns the specs declaring capability, sorted by name
func (r *Registry) ByCapability(capability string) []*Spec {
	return r.filter(func(s *Spec) bool { return s.HasCapability(capability) })
}

// ByDomain returns the specs of domain, sorted by name
func (r *Registry) ByDomain(domain string) []*Spec {
	return r.filter(func(s *Spec) bool { return s.Metadata.Domain == domain })
}

// Targeted returns the specs whose capabilities intersect targets, or every
// spec when targets is empty. Sorted by name.
func (r *Registry) Targeted(targets []string) []*Spec {
	if len(targets) == 0 {
		return r.filter(func(*Spec) bool { return true })
	}
	return r.filter(func(s *Spec) bool {
		for _, t := range targets {
			if s.HasCapability(t) {
				return true
			}
		}
		return false
	})
}

func (r *Registry) filter(keep func(*Spec) bool) []*Spec {
	var out []*Spec
	for _, name := range r.Names() {
		if spec := r.specs[name]; keep(spec) {
			out = append(out, spec)
		}
	}
	return out
}
