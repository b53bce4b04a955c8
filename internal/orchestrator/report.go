package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/manifest"
)

// CriticalAgents fail the run when any of them fails at any dread level.
var CriticalAgents = []string{"ui-generation", "decay-modeling", "mount-system", "level-design"}

// NormalizeAgentName lowercases name and replaces underscores with dashes.
func NormalizeAgentName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// IsCritical reports whether name is a critical agent.
func IsCritical(name string) bool {
	n := NormalizeAgentName(name)
	for _, c := range CriticalAgents {
		if n == c {
			return true
		}
	}
	return false
}

// AudioOutcome summarises the audio stage of one dread level.
type AudioOutcome struct {
	ConfigPath string `json:"config_path,omitempty"`
	Tracks     int    `json:"tracks"`
	Failures   int    `json:"failures"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// DreadLevelReport records the outcome of every agent at one dread level.
type DreadLevelReport struct {
	DreadLevel       int                `json:"dread_level"`
	SuccessfulAgents []string           `json:"successful_agents"`
	FailedAgents     []string           `json:"failed_agents"`
	Results          []GenerationResult `json:"results"`
	Audio            *AudioOutcome      `json:"audio,omitempty"`
	Duration         time.Duration      `json:"duration"`
}

// HasCriticalFailures reports whether a critical agent failed at this level.
func (r *DreadLevelReport) HasCriticalFailures() bool {
	for _, name := range r.FailedAgents {
		if IsCritical(name) {
			return true
		}
	}
	return false
}

// Failures lists the failed results of the level.
func (r *DreadLevelReport) Failures() []manifest.Failure {
	var failures []manifest.Failure
	for _, res := range r.Results {
		if res.Success {
			continue
		}
		failures = append(failures, manifest.Failure{
			Agent:      res.AgentName,
			DreadLevel: res.DreadLevel,
			Code:       string(res.Code),
			Error:      res.Error,
			Critical:   IsCritical(res.AgentName),
		})
	}
	if r.Audio != nil && !r.Audio.Success {
		failures = append(failures, manifest.Failure{
			Agent:      "audio",
			DreadLevel: r.DreadLevel,
			Code:       "AUDIO_INCOMPLETE",
			Error:      r.Audio.Error,
		})
	}
	return failures
}

func (r *DreadLevelReport) finalize(outcomes map[string]*agentOutcome) {
	r.SuccessfulAgents, r.FailedAgents = []string{}, []string{}
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o := outcomes[name]
		if o.success() {
			r.SuccessfulAgents = append(r.SuccessfulAgents, name)
		} else {
			r.FailedAgents = append(r.FailedAgents, name)
		}
		r.Results = append(r.Results, o.results...)
	}
}

// GenerationReport is the outcome of a full run over every dread level.
type GenerationReport struct {
	RunID        string             `json:"run_id"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Levels       []DreadLevelReport `json:"levels"`
	ManifestPath string             `json:"manifest_path,omitempty"`
	ErrorsPath   string             `json:"errors_path,omitempty"`
}

// HasCriticalFailures reports whether a critical agent failed at any level.
func (r *GenerationReport) HasCriticalFailures() bool {
	for i := range r.Levels {
		if r.Levels[i].HasCriticalFailures() {
			return true
		}
	}
	return false
}

// Failures lists every failure of the run.
func (r *GenerationReport) Failures() []manifest.Failure {
	var failures []manifest.Failure
	for i := range r.Levels {
		failures = append(failures, r.Levels[i].Failures()...)
	}
	return failures
}

// Counts returns the number of results by source and the number of failures.
func (r *GenerationReport) Counts() (bySource map[Source]int, failed int) {
	bySource = make(map[Source]int)
	for _, level := range r.Levels {
		for _, res := range level.Results {
			if res.Success {
				bySource[res.Source]++
			} else {
				failed++
			}
		}
	}
	return bySource, failed
}

// Summary is the one-line run summary printed at the end of a run.
func (r *GenerationReport) Summary() string {
	counts, failed := r.Counts()
	s := fmt.Sprintf("run %s: %d generated, %d cached, %d fallback, %d failed",
		r.RunID, counts[SourceGenerated], counts[SourceCached], counts[SourceFallback], failed)
	if r.HasCriticalFailures() {
		var critical []string
		for _, level := range r.Levels {
			for _, name := range level.FailedAgents {
				if IsCritical(name) {
					critical = append(critical, fmt.Sprintf("%s@dread_%d", name, level.DreadLevel))
				}
			}
		}
		s += "; CRITICAL FAILURES: " + strings.Join(critical, ", ")
	}
	return s
}
