package orchestrator

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/agents"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/prompt"
)

// BatchInstruction is appended to the system prompt of a batched call.
const BatchInstruction = "The user message holds several requests, each enclosed in [PROMPT_i] and [/PROMPT_i] markers. " +
	"Answer every request with its JSON document enclosed in the same markers and nothing else."

// generateBatch runs the requests of one agent, packing the prompts that need
// a completion into shared calls of at most items_per_batch prompts. Items
// missing from a batched reply or failing to parse go through the single
// request path.
func (o *Orchestrator) generateBatch(ctx context.Context, outputDir string, reqs []GenerationRequest) ([]GenerationResult, error) {
	results := make([]GenerationResult, len(reqs))
	started := make([]time.Time, len(reqs))
	var waiting []*pending
	var slots []int

	for i, req := range reqs {
		started[i] = o.now()
		res, p, done := o.prepare(outputDir, req)
		if done {
			results[i] = res
			continue
		}
		waiting = append(waiting, p)
		slots = append(slots, i)
	}

	produced := make(map[int]bool, len(waiting))
	if len(waiting) > 1 {
		spec := waiting[0].spec
		optimizer := o.optimizer
		if budget, ok := spec.ConfigInt("token_budget"); ok {
			optimizer = optimizer.WithBudget(budget)
		}

		texts := make([]string, len(waiting))
		for i, p := range waiting {
			texts[i] = p.prompt.text
		}
		batches := optimizer.Batch(texts, o.opts.ItemsPerBatch)
		o.logger.Debug("Batched requests",
			zap.String("agent", spec.Name()), zap.Int("requests", len(waiting)), zap.Int("batches", len(batches)))

		for _, batch := range batches {
			members := prompt.Demux(batch)
			if len(members) < 2 {
				continue
			}
			replies, tokens, err := o.completeBatch(ctx, waiting[0].prompt, batch, len(members))
			if err != nil {
				o.logger.Warn("Batched completion failed", zap.String("agent", spec.Name()), zap.Error(err))
				for idx := range members {
					res := waiting[idx].res
					res.fail(err)
					results[slots[idx]] = res
					produced[idx] = true
				}
				continue
			}

			share := tokens / len(members)
			for _, idx := range sortedKeys(members) {
				reply, ok := replies[idx]
				if !ok {
					continue
				}
				p := waiting[idx]
				data, err := ParseOutput(reply, p.out)
				if err != nil {
					o.logger.Debug("Batched item unusable, retrying alone",
						zap.String("asset_id", p.res.AssetID), zap.Error(err))
					continue
				}
				res, err := o.store(outputDir, p, data, share)
				if err != nil {
					return nil, err
				}
				results[slots[idx]] = res
				produced[idx] = true
			}
		}
	}

	for idx, p := range waiting {
		if produced[idx] {
			continue
		}
		res, err := o.produce(ctx, outputDir, p)
		if err != nil {
			return nil, err
		}
		results[slots[idx]] = res
	}

	for i, req := range reqs {
		if err := o.finish(req, results[i], started[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// completeBatch sends one batched prompt and splits the reply by marker.
func (o *Orchestrator) completeBatch(ctx context.Context, base preparedPrompt, batch string, items int) (map[int]string, int, error) {
	system := BatchInstruction
	if base.system != "" {
		system = base.system + "\n\n" + BatchInstruction
	}
	maxTokens := 0
	if base.maxTokens > 0 {
		maxTokens = base.maxTokens * items
	}

	resp, err := o.complete(ctx, []agents.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: batch},
	}, base.temperature, maxTokens)
	if err != nil {
		return nil, 0, err
	}
	return prompt.Demux(resp.Content()), resp.Usage.TotalTokens, nil
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
