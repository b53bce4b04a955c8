package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/agents"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/cache"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/dread"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/fsutil"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/prompt"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/story"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/timeouts"
)

// Source says where a result's content came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceCached    Source = "cached"
	SourceFallback  Source = "fallback"
)

// assetNamespace scopes the name-based asset ids.
var assetNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://dragons-labyrinth.local/assets"))

// AssetID derives the artifact id of a cache key. Equal keys give equal ids.
func AssetID(key string) string {
	return uuid.NewSHA1(assetNamespace, []byte(key)).String()
}

// GenerationRequest asks one agent for one artifact at one dread level.
type GenerationRequest struct {
	AgentName    string            `json:"agent_name"`
	DreadLevel   int               `json:"dread_level"`
	AssetType    string            `json:"asset_type"`
	Description  string            `json:"description"`
	Requirements map[string]any    `json:"requirements,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	UseCache     bool              `json:"use_cache"`
}

// CacheKey is the content hash identifying the request's output.
func (r GenerationRequest) CacheKey() string {
	ctx := make(map[string]any, len(r.Context))
	for k, v := range r.Context {
		ctx[k] = v
	}
	return cache.Key(r.AssetType, r.DreadLevel, r.Description, ctx, r.Requirements)
}

// GenerationResult is the outcome of one request.
type GenerationResult struct {
	AgentName    string            `json:"agent_name"`
	DreadLevel   int               `json:"dread_level"`
	AssetID      string            `json:"asset_id"`
	Source       Source            `json:"source,omitempty"`
	OutputPath   string            `json:"output_path,omitempty"`
	DialoguePath string            `json:"dialogue_path,omitempty"`
	TokensUsed   int               `json:"tokens_used"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Code         apperrors.Code    `json:"code,omitempty"`
}

func (r *GenerationResult) fail(err error) {
	r.Success = false
	r.Source = ""
	r.OutputPath = ""
	r.DialoguePath = ""
	r.Error = err.Error()
	r.Code = apperrors.CodeOf(err)
}

// pending is a request that missed the cache and needs a completion.
type pending struct {
	req    GenerationRequest
	spec   *agents.Spec
	out    agents.OutputSpec
	key    string
	res    GenerationResult
	prompt preparedPrompt
}

type preparedPrompt struct {
	system      string
	text        string
	hash        string
	temperature float64
	maxTokens   int
	tokens      int
	truncated   bool
}

func (p preparedPrompt) messages() []agents.Message {
	var msgs []agents.Message
	if p.system != "" {
		msgs = append(msgs, agents.Message{Role: "system", Content: p.system})
	}
	return append(msgs, agents.Message{Role: "user", Content: p.text})
}

// Domain is the output sub-directory of an agent.
func Domain(spec *agents.Spec) string {
	if d := strings.TrimSpace(spec.Metadata.Domain); d != "" {
		return d
	}
	return "general"
}

// Generate runs one request. Per-request failures are reported in the
// result; the error is reserved for failures that abort the run.
func (o *Orchestrator) Generate(ctx context.Context, outputDir string, req GenerationRequest) (GenerationResult, error) {
	started := o.now()
	res, p, done := o.prepare(outputDir, req)
	if !done {
		var err error
		res, err = o.produce(ctx, outputDir, p)
		if err != nil {
			return res, err
		}
	}
	return res, o.finish(req, res, started)
}

// prepare resolves everything that needs no completion call: spec lookup,
// cache, prompt rendering and checkpoints. done is true when res is final.
func (o *Orchestrator) prepare(outputDir string, req GenerationRequest) (GenerationResult, *pending, bool) {
	res := GenerationResult{AgentName: req.AgentName, DreadLevel: req.DreadLevel, Metadata: map[string]string{}}

	spec, ok := o.registry.Get(req.AgentName)
	if !ok {
		res.fail(apperrors.WithMetadata(apperrors.CodeMissingSpec, "unknown agent "+req.AgentName,
			map[string]string{"agent": req.AgentName}))
		return res, nil, true
	}
	if err := dread.CheckLevel(req.DreadLevel); err != nil {
		res.fail(err)
		return res, nil, true
	}

	key := req.CacheKey()
	out := spec.PrimaryOutput()
	res.AssetID = AssetID(key)
	res.OutputPath = filepath.Join(outputDir, Domain(spec), res.AssetID+"."+out.Ext)
	p := &pending{req: req, spec: spec, out: out, key: key, res: res}

	if req.UseCache {
		if entry, ok := o.cache.Lookup(key); ok {
			final, err := o.persist(outputDir, p, entry.Result, SourceCached, entry.TokensUsed)
			if err != nil {
				final.fail(err)
			}
			return final, nil, true
		}
	}

	for _, name := range spec.Interface.RequiredContext {
		if _, ok := req.Context[name]; !ok {
			res.fail(apperrors.WithMetadata(apperrors.CodeValidation,
				fmt.Sprintf("agent %s requires context %q", spec.Name(), name),
				map[string]string{"agent": spec.Name(), "context": name}))
			return res, nil, true
		}
	}

	prepared, err := o.buildPrompt(spec, req)
	if err != nil {
		res.fail(err)
		return res, nil, true
	}
	p.prompt = prepared
	p.res.Metadata["prompt_tokens"] = strconv.Itoa(prepared.tokens)

	if req.UseCache && o.checkpoints != nil {
		cp, ok, err := o.checkpoints.Load(res.AssetID)
		if err != nil {
			o.logger.Warn("Checkpoint unreadable", zap.String("asset_id", res.AssetID), zap.Error(err))
		}
		if ok && cp.PromptHash == prepared.hash {
			data := []byte(cp.Content)
			o.cache.Store(o.cacheEntry(p, data, cp.TokensUsed))
			final, err := o.persist(outputDir, p, data, SourceCached, cp.TokensUsed)
			if err != nil {
				final.fail(err)
			}
			return final, nil, true
		}
	}

	return p.res, p, false
}

// buildPrompt renders the primary template, prepends the horror block and
// fits the result into the agent's token budget.
func (o *Orchestrator) buildPrompt(spec *agents.Spec, req GenerationRequest) (preparedPrompt, error) {
	_, tpl, ok := spec.PrimaryTemplate()
	if !ok {
		return preparedPrompt{}, apperrors.WithMetadata(apperrors.CodeSpecMalformed,
			"agent "+spec.Name()+" has no prompt template", map[string]string{"agent": spec.Name()})
	}

	requirements, err := json.Marshal(nonNilMap(req.Requirements))
	if err != nil {
		return preparedPrompt{}, apperrors.Wrap(apperrors.CodeValidation, "encoding requirements", err)
	}
	vars := map[string]string{
		"dread_level":  strconv.Itoa(req.DreadLevel),
		"description":  req.Description,
		"requirements": string(requirements),
		"asset_type":   req.AssetType,
	}
	for k, v := range req.Context {
		vars["context."+k] = v
	}

	body, err := prompt.Render(tpl.Template, tpl.Variables, vars)
	if err != nil {
		return preparedPrompt{}, err
	}
	horror, err := dread.HorrorBlock(req.DreadLevel)
	if err != nil {
		return preparedPrompt{}, err
	}

	optimizer := o.optimizer
	if budget, ok := spec.ConfigInt("token_budget"); ok {
		optimizer = optimizer.WithBudget(budget)
	}
	fitted := optimizer.Optimize(horror+"\n\n"+body, contextText(req.Context))
	if fitted.Compressed() {
		o.logger.Debug("Compressed prompt",
			zap.String("agent", spec.Name()), zap.Strings("steps", fitted.Steps), zap.Int("tokens", fitted.Tokens))
	}
	if fitted.Truncated {
		if strict, _ := spec.Config["strict_budget"].AsBool(); strict {
			return preparedPrompt{}, apperrors.WithMetadata(apperrors.CodeBudgetExceeded,
				fmt.Sprintf("prompt exceeds %d tokens after compression", optimizer.Budget()),
				map[string]string{"agent": spec.Name()})
		}
		o.logger.Warn("Prompt truncated to budget", zap.String("agent", spec.Name()), zap.Int("budget", optimizer.Budget()))
	}

	p := preparedPrompt{
		system:    tpl.SystemPrompt,
		text:      fitted.Text,
		tokens:    fitted.Tokens,
		truncated: fitted.Truncated,
	}
	if tpl.Temperature != nil {
		p.temperature = *tpl.Temperature
	}
	if tpl.MaxTokens != nil {
		p.maxTokens = *tpl.MaxTokens
	}
	sum := sha256.Sum256([]byte(p.system + "\x00" + p.text))
	p.hash = hex.EncodeToString(sum[:])
	return p, nil
}

// contextText lists context entries one per line in key order.
func contextText(ctx map[string]string) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+ctx[k])
	}
	return strings.Join(lines, "\n")
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// produce obtains content for a pending request from the provider, or from
// a deterministic fallback when no provider is configured.
func (o *Orchestrator) produce(ctx context.Context, outputDir string, p *pending) (GenerationResult, error) {
	if o.provider == nil {
		return o.fallback(outputDir, p)
	}

	data, tokens, err := o.completeStructured(ctx, p.prompt, p.out)
	if err != nil {
		res := p.res
		res.fail(err)
		return res, nil
	}
	return o.store(outputDir, p, data, tokens)
}

// store persists generated content and records it in the cache and
// checkpoint store. Checkpoint failures abort the run.
func (o *Orchestrator) store(outputDir string, p *pending, data []byte, tokens int) (GenerationResult, error) {
	res, err := o.persist(outputDir, p, data, SourceGenerated, tokens)
	if err != nil {
		res.fail(err)
		return res, nil
	}
	o.cache.Store(o.cacheEntry(p, data, tokens))

	if o.checkpoints != nil {
		cp := cache.Checkpoint{
			PromptHash: p.prompt.hash,
			Content:    string(data),
			TokensUsed: tokens,
			Timestamp:  o.now(),
			Context:    p.req.Context,
		}
		if _, err := o.checkpoints.Save(res.AssetID, cp); err != nil {
			return res, apperrors.Wrap(apperrors.CodeIO, "saving checkpoint", err)
		}
	}
	return res, nil
}

func (o *Orchestrator) cacheEntry(p *pending, data []byte, tokens int) cache.Entry {
	return cache.Entry{
		Key:         p.key,
		AssetID:     p.res.AssetID,
		AssetType:   p.req.AssetType,
		DreadLevel:  p.req.DreadLevel,
		Description: p.req.Description,
		Result:      data,
		TokensUsed:  tokens,
		Timestamp:   o.now(),
	}
}

// persist writes the artifact and, for narrative output, its dialogue script.
func (o *Orchestrator) persist(outputDir string, p *pending, data []byte, source Source, tokens int) (GenerationResult, error) {
	res := p.res
	res.Source = source
	res.TokensUsed = tokens

	if err := fsutil.WriteFileAtomic(res.OutputPath, data); err != nil {
		return res, apperrors.Wrap(apperrors.CodeIO, "writing artifact", err)
	}

	if p.out.Type == agents.OutputNarrativeTree {
		tree, err := story.Decode(data)
		if err != nil {
			return res, err
		}
		script, err := story.Emit(tree)
		if err != nil {
			return res, err
		}
		res.DialoguePath = filepath.Join(outputDir, "dialogue", fmt.Sprintf("dread_%d", p.req.DreadLevel), res.AssetID+".yarn")
		if err := fsutil.WriteFileAtomic(res.DialoguePath, script); err != nil {
			return res, apperrors.Wrap(apperrors.CodeIO, "writing dialogue script", err)
		}
		m := story.Measure(tree)
		res.Metadata = copyMetadata(res.Metadata)
		res.Metadata["nodes"] = strconv.Itoa(m.Nodes)
		res.Metadata["max_depth"] = strconv.Itoa(m.MaxDepth)
		res.Metadata["choices"] = strconv.Itoa(m.Choices)
	}

	res.Success = true
	return res, nil
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// fallback writes the deterministic artifact of domains that have one.
func (o *Orchestrator) fallback(outputDir string, p *pending) (GenerationResult, error) {
	var (
		value any
		err   error
	)
	switch Domain(p.spec) {
	case "ui":
		value, err = dread.UIConfigFor(p.req.DreadLevel)
	case "decay":
		value, err = dread.DecayConfigFor(p.req.DreadLevel)
	default:
		res := p.res
		res.fail(apperrors.WithMetadata(apperrors.CodeNoProvider, "no completion provider configured",
			map[string]string{"agent": p.spec.Name()}))
		return res, nil
	}
	res := p.res
	if err != nil {
		res.fail(err)
		return res, nil
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		res.fail(apperrors.Wrap(apperrors.CodeValidation, "encoding fallback", err))
		return res, nil
	}
	res, err = o.persist(outputDir, p, data, SourceFallback, 0)
	if err != nil {
		res.fail(err)
	}
	return res, nil
}

// completeStructured calls the provider and parses the reply, re-asking once
// when the reply is not valid JSON.
func (o *Orchestrator) completeStructured(ctx context.Context, p preparedPrompt, out agents.OutputSpec) ([]byte, int, error) {
	msgs := p.messages()
	resp, err := o.complete(ctx, msgs, p.temperature, p.maxTokens)
	if err != nil {
		return nil, 0, err
	}
	tokens := resp.Usage.TotalTokens

	data, err := ParseOutput(resp.Content(), out)
	if apperrors.CodeOf(err) != apperrors.CodeParse {
		return data, tokens, err
	}

	o.logger.Debug("Re-asking for structured output", zap.Error(err))
	msgs = append(msgs,
		agents.Message{Role: "assistant", Content: resp.Content()},
		agents.Message{Role: "user", Content: ReaskPreamble},
	)
	resp, err = o.complete(ctx, msgs, p.temperature, p.maxTokens)
	if err != nil {
		return nil, tokens, err
	}
	tokens += resp.Usage.TotalTokens
	data, err = ParseOutput(resp.Content(), out)
	return data, tokens, err
}

// complete calls the provider with exponential backoff. Each attempt has its
// own deadline; non-retryable errors stop immediately.
func (o *Orchestrator) complete(ctx context.Context, msgs []agents.Message, temperature float64, maxTokens int) (*agents.CompletionResponse, error) {
	operation := func() (*agents.CompletionResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeouts.Completion)
		defer cancel()

		resp, err := o.provider.CreateCompletion(callCtx, &agents.CompletionRequest{
			Messages:    msgs,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			if !agents.Retryable(err) || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.RetryBaseDelay
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(o.opts.MaxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.logger.Warn("Completion failed, retrying", zap.Error(err), zap.Duration("backoff", next))
		}),
	)
}
