package orchestrator

import (
	"sort"
	"strings"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/agents"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// Plan selects the agents targeted by capabilities, pulls in their transitive
// dependencies and orders them into waves: every agent's dependencies sit in
// earlier waves. Agents within a wave are sorted by name.
func Plan(registry *agents.Registry, targets []string) ([][]*agents.Spec, error) {
	selected := make(map[string]*agents.Spec)
	var visit func(spec *agents.Spec) error
	visit = func(spec *agents.Spec) error {
		if _, ok := selected[spec.Name()]; ok {
			return nil
		}
		selected[spec.Name()] = spec
		for _, dep := range spec.Metadata.DependsOn {
			depSpec, ok := registry.Get(dep)
			if !ok {
				return apperrors.WithMetadata(apperrors.CodeMissingSpec,
					"agent "+spec.Name()+" depends on unknown agent "+dep,
					map[string]string{"agent": spec.Name(), "dependency": dep})
			}
			if err := visit(depSpec); err != nil {
				return err
			}
		}
		return nil
	}
	for _, spec := range registry.Targeted(targets) {
		if err := visit(spec); err != nil {
			return nil, err
		}
	}

	indegree := make(map[string]int, len(selected))
	dependents := make(map[string][]string)
	for name, spec := range selected {
		deps := uniq(spec.Metadata.DependsOn)
		indegree[name] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var waves [][]*agents.Spec
	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	placed := 0
	for len(ready) > 0 {
		sort.Strings(ready)
		wave := make([]*agents.Spec, 0, len(ready))
		var next []string
		for _, name := range ready {
			wave = append(wave, selected[name])
			for _, d := range dependents[name] {
				indegree[d]--
				if indegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		placed += len(wave)
		waves = append(waves, wave)
		ready = next
	}

	if placed != len(selected) {
		var cyclic []string
		for name, n := range indegree {
			if n > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, apperrors.WithMetadata(apperrors.CodeCyclicDependency,
			"cyclic agent dependency among "+strings.Join(cyclic, ", "),
			map[string]string{"agents": strings.Join(cyclic, ",")})
	}
	return waves, nil
}

func uniq(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
