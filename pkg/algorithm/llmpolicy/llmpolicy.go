// Package llmpolicy implements a policy that asks a language model for
// each action. It does not learn; its exploration rate decays on a
// schedule and with that probability it acts at random instead.
package llmpolicy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/boristopalov/rlab/pkg/algorithm"
	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
	"github.com/boristopalov/rlab/pkg/net"
	"github.com/boristopalov/rlab/pkg/providers"
	"github.com/boristopalov/rlab/pkg/schedule"
)

const (
	DefaultModel = "gpt-4o-mini"

	DEFAULT_SYSTEM_PROMPT = `You are the policy of a reinforcement learning agent. You observe a numeric state and choose one discrete action. Your goal is to maximize the total reward collected over the episode.`

	ACTION_PROMPT_TEMPLATE = `You are body %s in environment %d.
The current state is: %s
There are %d actions, numbered 0 to %d.
Very briefly think step by step about which action is best and then provide your answer. Your answer should follow the string "ANSWER" like so: ANSWER:`
)

var answerRe = regexp.MustCompile(`ANSWER:\s*(\d*\.?\d+)`)

type LLMPolicy struct {
	algorithm.Base

	Model        string
	SystemPrompt string

	client providers.Completer
	rng    *rand.Rand
	rngMu  sync.Mutex
	steps  map[string]int
	mu     sync.Mutex
}

// New returns an LLMPolicy that queries client; pass it to algorithm.New.
func New(client providers.Completer) *LLMPolicy {
	return &LLMPolicy{
		client: client,
		steps:  make(map[string]int),
	}
}

func (p *LLMPolicy) InitAlgorithmParams() error {
	if p.client == nil {
		return fmt.Errorf("%w: llm policy needs a completer", config.ErrSpec)
	}
	var err error
	if p.Model, err = config.StringOr(p.AlgorithmSpec, "model", DefaultModel); err != nil {
		return err
	}
	if p.SystemPrompt, err = config.StringOr(p.AlgorithmSpec, "system_prompt", DEFAULT_SYSTEM_PROMPT); err != nil {
		return err
	}
	seed, err := config.IntOr(p.AlgorithmSpec, "seed", 0)
	if err != nil {
		return err
	}
	p.rng = rand.New(rand.NewSource(int64(seed)))

	exploreSpec := map[string]any{"name": "no_decay", "start_val": 0.0}
	if _, ok := p.AlgorithmSpec["explore_var_spec"]; ok {
		if exploreSpec, err = config.Map(p.AlgorithmSpec, "explore_var_spec"); err != nil {
			return err
		}
	}
	sched, err := schedule.New(exploreSpec)
	if err != nil {
		return fmt.Errorf("explore_var_spec: %w", err)
	}
	p.RegisterScheduler(body.ExploreVar, sched)
	for _, b := range p.Host().Bodies() {
		b.SetVar(body.ExploreVar, sched.StartVal())
	}
	return nil
}

func (p *LLMPolicy) InitNets(ctx context.Context, global *net.Registry) error {
	p.DeclareNets()
	return p.PostInitNets(ctx)
}

// Act explores with probability explore_var and otherwise prompts the model.
func (p *LLMPolicy) Act(ctx context.Context, b *body.Body, state core.State) (core.Action, error) {
	if eps, ok := b.Var(body.ExploreVar); ok && eps > 0 && p.draw() < eps {
		p.rngMu.Lock()
		defer p.rngMu.Unlock()
		return b.SampleAction(p.rng), nil
	}

	prompt := fmt.Sprintf(ACTION_PROMPT_TEMPLATE,
		b.ID,
		b.E,
		formatState(state),
		b.ActionDim,
		b.ActionDim-1,
	)
	resp, err := p.client.Complete(ctx, p.Model, prompt, p.SystemPrompt)
	if err != nil {
		return 0, fmt.Errorf("llm policy %s: %w", b.Coord(), err)
	}
	return parseAction(resp, b.ActionDim)
}

func (p *LLMPolicy) draw() float64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Float64()
}

// Sample drains the body's memory so it does not grow without bound.
func (p *LLMPolicy) Sample(ctx context.Context, b *body.Body) (memory.Batch, error) {
	if b.Memory == nil {
		return memory.NewBatch(), nil
	}
	return b.Memory.Sample()
}

func (p *LLMPolicy) Train(ctx context.Context, b *body.Body) (float64, error) {
	if _, err := p.Sample(ctx, b); err != nil {
		return math.NaN(), err
	}
	return math.NaN(), nil
}

func (p *LLMPolicy) Update(ctx context.Context, b *body.Body) (float64, error) {
	sched, ok := p.Scheduler(body.ExploreVar)
	if !ok {
		return math.NaN(), nil
	}
	p.mu.Lock()
	p.steps[b.ID]++
	step := p.steps[b.ID]
	p.mu.Unlock()

	v := p.DecayVar(sched, step)
	b.SetVar(body.ExploreVar, v)
	return v, nil
}

func formatState(s core.State) string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.FormatFloat(v, 'g', 4, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// parseAction reads the "ANSWER: n" pattern and clamps n into [0, n).
func parseAction(response string, actionDim int) (core.Action, error) {
	matches := answerRe.FindStringSubmatch(response)
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not find answer in response: %s", response)
	}
	v, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse action: %v", err)
	}
	a := int(math.Floor(v))
	if a >= actionDim {
		a = actionDim - 1
	}
	if a < 0 {
		a = 0
	}
	return core.Action(a), nil
}
