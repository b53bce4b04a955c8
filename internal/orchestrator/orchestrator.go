// Package orchestrator drives every agent over every dread level and turns
// completions into validated artifacts.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/agents"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/audio"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/audit"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/cache"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/dread"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/entities"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/logging"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/manifest"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/prompt"
)

// Recorder receives audit records
type Recorder interface {
	Record(rec audit.Record) error
}

// AudioAcquirer fetches the soundscape of a dread level into dest
type AudioAcquirer interface {
	AcquireLevel(ctx context.Context, level int, dest string) (*audio.LevelResult, error)
}

// Options tunes a run
type Options struct {
	ParallelAgents     int
	ItemsPerBatch      int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	CheckpointInterval int
	TargetCapabilities []string
	UseCache           bool

	// Bundles feed agents whose config names an entity_category
	Bundles map[entities.Category]*entities.Bundle
	// SamplePaths stand in for region/settlement/faction/dungeon artifacts
	// in the manifest when no agent of that domain produced one
	SamplePaths     map[entities.Category]string
	CanonicalTables map[string][]string
}

// Deps are the collaborators of an orchestrator. Registry and Optimizer are
// required; a nil Provider selects fallback artifacts only.
type Deps struct {
	Registry    *agents.Registry
	Provider    agents.Provider
	Optimizer   *prompt.Optimizer
	Cache       *cache.Cache
	Checkpoints *cache.CheckpointStore
	Recorder    Recorder
	Audio       AudioAcquirer
	Logger      *zap.Logger
}

// Orchestrator runs the agent grid
type Orchestrator struct {
	RunID string

	registry    *agents.Registry
	provider    agents.Provider
	optimizer   *prompt.Optimizer
	cache       *cache.Cache
	checkpoints *cache.CheckpointStore
	recorder    Recorder
	audio       AudioAcquirer
	logger      *zap.Logger
	opts        Options
	now         func() time.Time

	mu        sync.Mutex
	completed int
	failed    int
	level     int
}

// New creates an orchestrator
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Registry == nil {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "orchestrator needs an agent registry")
	}
	if deps.Optimizer == nil {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "orchestrator needs a prompt optimizer")
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(cache.DefaultCapacity)
	}
	if opts.ParallelAgents < 1 {
		opts.ParallelAgents = 1
	}
	if opts.ItemsPerBatch < 1 {
		opts.ItemsPerBatch = 100
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.CheckpointInterval < 1 {
		opts.CheckpointInterval = 10
	}

	return &Orchestrator{
		RunID:       uuid.New().String(),
		registry:    deps.Registry,
		provider:    deps.Provider,
		optimizer:   deps.Optimizer,
		cache:       deps.Cache,
		checkpoints: deps.Checkpoints,
		recorder:    deps.Recorder,
		audio:       deps.Audio,
		logger:      logging.OrNop(deps.Logger),
		opts:        opts,
		now:         time.Now,
	}, nil
}

// agentOutcome collects the results of one agent at one level.
type agentOutcome struct {
	results []GenerationResult
}

func (a *agentOutcome) success() bool {
	if len(a.results) == 0 {
		return false
	}
	for _, r := range a.results {
		if !r.Success {
			return false
		}
	}
	return true
}

// GenerateAllDreadLevels runs every targeted agent at dread levels 0..4 in
// order, then writes the manifest and error report into outputDir. Levels
// run sequentially and ctx is checked between them. Per-request failures are
// recorded in the report; the error is reserved for configuration problems,
// cancellation and failed manifest or checkpoint writes.
func (o *Orchestrator) GenerateAllDreadLevels(ctx context.Context, outputDir string, runContext map[string]string) (*GenerationReport, error) {
	waves, err := Plan(o.registry, o.opts.TargetCapabilities)
	if err != nil {
		return nil, err
	}

	report := &GenerationReport{RunID: o.RunID, StartedAt: o.now()}
	m := manifest.New(o.optimizer.Tokenizer().Name(), o.opts.CanonicalTables, report.StartedAt)
	o.logger.Info("Starting generation",
		zap.String("run_id", o.RunID), zap.Int("waves", len(waves)), zap.Int("agents", countSpecs(waves)))

	for _, level := range dread.Levels {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		levelReport, entry, err := o.runLevel(ctx, outputDir, level, waves, runContext)
		if err != nil {
			return report, err
		}
		report.Levels = append(report.Levels, *levelReport)
		m.SetLevel(level, entry)
	}
	report.FinishedAt = o.now()

	if err := o.flushProgress(); err != nil {
		return report, err
	}

	manifestStarted := o.now()
	report.ManifestPath = filepath.Join(outputDir, manifest.FileName)
	if err := manifest.Write(report.ManifestPath, m); err != nil {
		return report, err
	}
	report.ErrorsPath = filepath.Join(outputDir, manifest.ErrorsFileName)
	if err := manifest.WriteErrors(report.ErrorsPath, report.Failures()); err != nil {
		return report, err
	}
	o.record(audit.StageRecord{
		Stage:     "manifest",
		Duration:  o.now().Sub(manifestStarted),
		Items:     len(m.Levels),
		Files:     2,
		Success:   true,
		Timestamp: o.now(),
	})

	counts, failed := report.Counts()
	o.record(audit.StageRecord{
		Stage:     "orchestration",
		Duration:  report.FinishedAt.Sub(report.StartedAt),
		Items:     counts[SourceGenerated] + counts[SourceCached] + counts[SourceFallback],
		Success:   failed == 0,
		Timestamp: report.FinishedAt,
	})

	if report.HasCriticalFailures() {
		o.logger.Error("Generation finished with critical failures", zap.String("summary", report.Summary()))
	} else {
		o.logger.Info("Generation finished", zap.String("summary", report.Summary()))
	}
	return report, nil
}

func countSpecs(waves [][]*agents.Spec) int {
	n := 0
	for _, w := range waves {
		n += len(w)
	}
	return n
}

// runLevel executes every wave of one dread level.
func (o *Orchestrator) runLevel(ctx context.Context, outputDir string, level int, waves [][]*agents.Spec, runContext map[string]string) (*DreadLevelReport, manifest.LevelEntry, error) {
	started := o.now()
	o.mu.Lock()
	o.level = level
	o.mu.Unlock()

	var mu sync.Mutex
	outcomes := make(map[string]*agentOutcome)
	total := countSpecs(waves)

	for i, wave := range waves {
		queue := NewJobQueue()
		for _, spec := range wave {
			mu.Lock()
			queue.Enqueue(o.buildJob(spec, level, outputDir, runContext, outcomes))
			mu.Unlock()
		}
		if queue.HasCritical() {
			o.logger.Debug("Wave contains critical agents", zap.Int("dread_level", level), zap.Int("wave", i))
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.opts.ParallelAgents)
		for _, job := range queue.Drain() {
			g.Go(func() error {
				outcome, err := o.runJob(gctx, outputDir, job)
				if err != nil {
					return err
				}

				mu.Lock()
				outcomes[job.Spec.Name()] = outcome
				done := len(outcomes)
				mu.Unlock()

				o.logger.Info("Agent finished",
					zap.Int("dread_level", level),
					zap.String("agent", job.Spec.Name()),
					zap.Bool("success", outcome.success()),
					zap.Int("artifacts", len(outcome.results)),
					zap.String("progress", fmt.Sprintf("%d/%d", done, total)))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, manifest.LevelEntry{}, err
		}
	}

	report := &DreadLevelReport{DreadLevel: level}
	report.finalize(outcomes)

	entry := o.levelEntry(outputDir, report)
	if o.audio != nil {
		outcome, configPath, err := o.acquireAudio(ctx, outputDir, level)
		if err != nil {
			return nil, manifest.LevelEntry{}, err
		}
		report.Audio = outcome
		entry.AudioConfigPath = configPath
	}
	report.Duration = o.now().Sub(started)
	entry.GeneratedAt = o.now().UTC()

	if report.HasCriticalFailures() {
		o.logger.Error("Critical agent failed",
			zap.Int("dread_level", level), zap.Strings("failed", report.FailedAgents))
	}
	o.logger.Info("Dread level finished",
		zap.Int("dread_level", level),
		zap.Int("successful", len(report.SuccessfulAgents)),
		zap.Int("failed", len(report.FailedAgents)),
		zap.Duration("duration", report.Duration))
	return report, entry, nil
}

// buildJob creates the requests of an agent. Callers hold the outcomes lock.
func (o *Orchestrator) buildJob(spec *agents.Spec, level int, outputDir string, runContext map[string]string, outcomes map[string]*agentOutcome) *AgentJob {
	job := &AgentJob{Spec: spec}

	base := make(map[string]string, len(runContext)+len(spec.Metadata.DependsOn))
	for k, v := range runContext {
		base[k] = v
	}
	for _, dep := range spec.Metadata.DependsOn {
		outcome, ok := outcomes[dep]
		if !ok || !outcome.success() {
			job.BlockedBy = dep
			break
		}
		var paths []string
		for _, r := range outcome.results {
			paths = append(paths, relPath(outputDir, r.OutputPath))
		}
		sort.Strings(paths)
		base["dep."+dep] = strings.Join(paths, ",")
	}

	var requirements map[string]any
	if v, ok := spec.Config["requirements"]; ok {
		requirements, _ = v.Interface().(map[string]any)
	}

	newRequest := func(description string, ctx map[string]string) GenerationRequest {
		return GenerationRequest{
			AgentName:    spec.Name(),
			DreadLevel:   level,
			AssetType:    Domain(spec),
			Description:  description,
			Requirements: requirements,
			Context:      ctx,
			UseCache:     o.opts.UseCache,
		}
	}

	description := spec.Metadata.Description
	if description == "" {
		description = spec.Name()
	}

	if category, ok := spec.ConfigString("entity_category"); ok {
		if bundle := o.opts.Bundles[entities.Category(category)]; bundle != nil && len(bundle.Entities) > 0 {
			for _, e := range bundle.Entities {
				ctx := make(map[string]string, len(base)+3)
				for k, v := range base {
					ctx[k] = v
				}
				ctx["entity.uuid"] = e.UUID
				ctx["entity.name"] = e.CanonicalName
				ctx["entity.content"] = e.Content
				name := e.CanonicalName
				if name == "" || name == "unknown" {
					name = e.UUID
				}
				job.Requests = append(job.Requests, newRequest(description+": "+name, ctx))
			}
			return job
		}
	}

	job.Requests = append(job.Requests, newRequest(description, base))
	return job
}

// runJob executes the requests of one agent.
func (o *Orchestrator) runJob(ctx context.Context, outputDir string, job *AgentJob) (*agentOutcome, error) {
	outcome := &agentOutcome{}

	if job.BlockedBy != "" {
		for _, req := range job.Requests {
			started := o.now()
			res := GenerationResult{AgentName: req.AgentName, DreadLevel: req.DreadLevel, AssetID: AssetID(req.CacheKey())}
			res.fail(apperrors.WithMetadata(apperrors.CodeDependency,
				"dependency failed: "+job.BlockedBy,
				map[string]string{"agent": req.AgentName, "dependency": job.BlockedBy}))
			if err := o.finish(req, res, started); err != nil {
				return nil, err
			}
			outcome.results = append(outcome.results, res)
		}
		return outcome, nil
	}

	if len(job.Requests) > 1 && o.provider != nil {
		results, err := o.generateBatch(ctx, outputDir, job.Requests)
		if err != nil {
			return nil, err
		}
		outcome.results = results
		return outcome, nil
	}

	for _, req := range job.Requests {
		res, err := o.Generate(ctx, outputDir, req)
		if err != nil {
			return nil, err
		}
		outcome.results = append(outcome.results, res)
	}
	return outcome, nil
}

// finish records a completed request in the audit log and run progress.
func (o *Orchestrator) finish(req GenerationRequest, res GenerationResult, started time.Time) error {
	o.record(audit.GenerationRecord{
		Agent:      req.AgentName,
		DreadLevel: req.DreadLevel,
		AssetID:    res.AssetID,
		Source:     string(res.Source),
		TokensUsed: res.TokensUsed,
		Duration:   o.now().Sub(started),
		Success:    res.Success,
		Error:      res.Error,
		Timestamp:  o.now(),
	})

	if res.Success {
		o.logger.Debug("Request finished",
			zap.String("agent", req.AgentName), zap.Int("dread_level", req.DreadLevel),
			zap.String("asset_id", res.AssetID), zap.String("source", string(res.Source)))
	} else {
		o.logger.Warn("Request failed",
			zap.String("agent", req.AgentName), zap.Int("dread_level", req.DreadLevel),
			zap.String("code", string(res.Code)), zap.String("error", res.Error))
	}

	o.mu.Lock()
	if res.Success {
		o.completed++
	} else {
		o.failed++
	}
	flush := (o.completed+o.failed)%o.opts.CheckpointInterval == 0
	o.mu.Unlock()

	if flush {
		return o.flushProgress()
	}
	return nil
}

// flushProgress saves the run progress record.
func (o *Orchestrator) flushProgress() error {
	if o.checkpoints == nil {
		return nil
	}
	o.mu.Lock()
	p := cache.Progress{
		RunID:      o.RunID,
		DreadLevel: o.level,
		Completed:  o.completed,
		Failed:     o.failed,
		UpdatedAt:  o.now(),
	}
	o.mu.Unlock()
	if err := o.checkpoints.SaveProgress(p); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "saving run progress", err)
	}
	return nil
}

func (o *Orchestrator) record(rec audit.Record) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(rec); err != nil {
		o.logger.Warn("Audit record failed", zap.String("category", rec.AuditCategory()), zap.Error(err))
	}
}

// acquireAudio runs the audio stage of a level. Acquisition problems are
// reported in the outcome; only cancellation aborts.
func (o *Orchestrator) acquireAudio(ctx context.Context, outputDir string, level int) (*AudioOutcome, string, error) {
	started := o.now()
	dest := filepath.Join(outputDir, "audio", fmt.Sprintf("dread_%d", level))

	result, err := o.audio.AcquireLevel(ctx, level, dest)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		o.logger.Warn("Audio stage failed", zap.Int("dread_level", level), zap.Error(err))
		o.record(audit.AudioRecord{DreadLevel: level, Duration: o.now().Sub(started), Timestamp: o.now()})
		return &AudioOutcome{Error: err.Error()}, "", nil
	}

	outcome := &AudioOutcome{
		ConfigPath: result.ConfigPath,
		Tracks:     result.Tracks,
		Failures:   len(result.Failures),
		Success:    result.Success,
	}
	if !result.Success {
		var msgs []string
		for _, f := range result.Failures {
			msgs = append(msgs, fmt.Sprintf("%s: %v", f.Slot, f.Err))
		}
		outcome.Error = "incomplete soundscape"
		if len(msgs) > 0 {
			outcome.Error += ": " + strings.Join(msgs, "; ")
		}
	}
	o.record(audit.AudioRecord{
		DreadLevel: level,
		Tracks:     result.Tracks,
		Failed:     len(result.Failures),
		Bytes:      result.Bytes,
		Duration:   o.now().Sub(started),
		Success:    result.Success,
		Timestamp:  o.now(),
	})
	return outcome, relPath(outputDir, result.ConfigPath), nil
}

// levelEntry maps the level's artifacts onto the manifest fields.
func (o *Orchestrator) levelEntry(outputDir string, report *DreadLevelReport) manifest.LevelEntry {
	entry := manifest.LevelEntry{Artifacts: map[string][]string{}, DialoguePaths: []string{}}
	for _, res := range report.Results {
		if !res.Success || res.OutputPath == "" {
			continue
		}
		rel := relPath(outputDir, res.OutputPath)
		domain := strings.SplitN(rel, "/", 2)[0]
		entry.Artifacts[domain] = append(entry.Artifacts[domain], rel)
		if res.DialoguePath != "" {
			entry.DialoguePaths = append(entry.DialoguePaths, relPath(outputDir, res.DialoguePath))
		}
	}
	for domain := range entry.Artifacts {
		sort.Strings(entry.Artifacts[domain])
	}

	first := func(domain string) string {
		if paths := entry.Artifacts[domain]; len(paths) > 0 {
			return paths[0]
		}
		return ""
	}
	sample := func(c entities.Category) string {
		if p, ok := o.opts.SamplePaths[c]; ok {
			return relPath(outputDir, p)
		}
		return ""
	}
	pick := func(c entities.Category) string {
		if p := first(string(c)); p != "" {
			return p
		}
		return sample(c)
	}

	entry.RegionsPath = pick(entities.CategoryRegions)
	entry.SettlementsPath = pick(entities.CategorySettlements)
	entry.FactionsPath = pick(entities.CategoryFactions)
	entry.DungeonsPath = pick(entities.CategoryDungeons)
	entry.UIConfigPath = first("ui")
	entry.DecayConfigPath = first("decay")
	if len(entry.Artifacts) == 0 {
		entry.Artifacts = nil
	}
	return entry
}

// relPath expresses path relative to dir with forward slashes.
func relPath(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

// EnsureOutputDir creates the output directory tree.
func EnsureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "creating output dir", err)
	}
	return nil
}
