// Package experiment runs lab sessions: one agent acting in its
// environments for a fixed step budget.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boristopalov/rlab/pkg/agent"
	"github.com/boristopalov/rlab/pkg/algorithm"
	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/messaging"
)

var ErrStopped = errors.New("session stopped")

// Session drives one agent over its environments. It implements
// core.Experiment.
type Session struct {
	id         string
	agent      *agent.Agent
	envs       []core.Environment
	maxSteps   int
	trainFreq  int
	trainStart int
	ckpt       string
	broker     messaging.Broker
	logger     *log.Logger

	states [][]core.State // current state per env, per body

	mu       sync.RWMutex
	status   core.SessionStatus
	stop     chan struct{}
	stopOnce sync.Once
}

type SessionParams struct {
	ID       string
	MaxSteps int
	Ckpt     string
	Broker   messaging.Broker
	Logger   *log.Logger
}

type SessionOption func(*SessionParams)

func WithID(id string) SessionOption {
	return func(p *SessionParams) {
		p.ID = id
	}
}

func WithMaxSteps(n int) SessionOption {
	return func(p *SessionParams) {
		p.MaxSteps = n
	}
}

// WithCheckpoint sets the tag the final save is stored under.
func WithCheckpoint(tag string) SessionOption {
	return func(p *SessionParams) {
		p.Ckpt = tag
	}
}

func WithBroker(b messaging.Broker) SessionOption {
	return func(p *SessionParams) {
		p.Broker = b
	}
}

func WithLogger(l *log.Logger) SessionOption {
	return func(p *SessionParams) {
		p.Logger = l
	}
}

// NewSession prepares a session for an initialized agent. Training
// cadence comes from the algorithm spec keys training_frequency and
// training_start_step.
func NewSession(a *agent.Agent, envs []core.Environment, opts ...SessionOption) (*Session, error) {
	if _, err := a.Controller(); err != nil {
		return nil, err
	}
	params := &SessionParams{
		ID:       "session-" + uuid.New().String(),
		MaxSteps: 100,
		Ckpt:     "final",
		Logger:   a.Logger(),
	}
	for _, opt := range opts {
		opt(params)
	}
	if params.MaxSteps < 1 {
		return nil, fmt.Errorf("%w: max_steps must be positive", config.ErrSpec)
	}

	freq, err := config.IntOr(a.Spec().Algorithm, "training_frequency", 1)
	if err != nil {
		return nil, err
	}
	if freq < 1 {
		return nil, fmt.Errorf("%w: training_frequency must be positive", config.ErrSpec)
	}
	start, err := config.IntOr(a.Spec().Algorithm, "training_start_step", 0)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:         params.ID,
		agent:      a,
		envs:       envs,
		maxSteps:   params.MaxSteps,
		trainFreq:  freq,
		trainStart: start,
		ckpt:       params.Ckpt,
		broker:     params.Broker,
		logger:     params.Logger,
		stop:       make(chan struct{}),
	}, nil
}

func (s *Session) ID() string { return s.id }

// Run executes the session until the step budget is spent, ctx is done or
// Stop is called. Cancellation is checked between steps.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		return fmt.Errorf("session %s is already running", s.id)
	}
	s.status = core.SessionStatus{Running: true, StartTime: time.Now()}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.status.Running = false
		s.status.EndTime = time.Now()
		s.mu.Unlock()
	}()

	s.publish(messaging.TopicSession, "started")
	err := s.runLoop(ctx)
	if err != nil && !errors.Is(err, ErrStopped) {
		s.recordError(err)
		s.publish(messaging.TopicSession, "failed: "+err.Error())
		return err
	}

	if serr := s.save(ctx); serr != nil {
		s.recordError(serr)
		return serr
	}
	s.publish(messaging.TopicSession, "finished")
	return nil
}

// Stop asks a running session to finish after the current step.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *Session) GetStatus() core.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Errors = append([]error(nil), s.status.Errors...)
	return st
}

func (s *Session) runLoop(ctx context.Context) error {
	ctrl, err := s.agent.Controller()
	if err != nil {
		return err
	}

	s.states = make([][]core.State, len(s.envs))
	for i, env := range s.envs {
		if s.states[i], err = env.Reset(); err != nil {
			return fmt.Errorf("reset env %d: %w", env.Index(), err)
		}
	}

	for step := 1; step <= s.maxSteps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			s.logger.Printf("experiment: session %s stopped at step %d", s.id, step-1)
			return ErrStopped
		default:
		}
		if err := s.step(ctx, ctrl, step); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
	}
	return nil
}

func (s *Session) step(ctx context.Context, ctrl *algorithm.Controller, step int) error {
	stateData := core.NewData[core.State]("state", s.agent.Shape())
	for e, states := range s.states {
		for b, st := range states {
			if err := stateData.Set(core.Coord{E: s.envs[e].Index(), B: b}, st); err != nil {
				return err
			}
		}
	}

	actions, err := ctrl.SpaceAct(ctx, stateData)
	if err != nil {
		return err
	}

	ev := messaging.StepEvent{Step: step, Rewards: make(map[string]float64)}
	episodesDone := 0
	for e, env := range s.envs {
		envActions := make([]core.Action, env.NumBodies())
		for b := range envActions {
			a, ok := actions.Get(core.Coord{E: env.Index(), B: b})
			if !ok {
				return fmt.Errorf("no action for body (%d,%d)", env.Index(), b)
			}
			envActions[b] = a
		}

		res, err := env.Step(ctx, envActions)
		if err != nil {
			return fmt.Errorf("env %d: %w", env.Index(), err)
		}
		for b := range envActions {
			coord := core.Coord{E: env.Index(), B: b}
			ev.Rewards[coord.String()] = res.Rewards[b]
			bd := s.bodyAt(coord)
			if bd == nil || bd.Memory == nil {
				continue
			}
			if err := bd.Memory.Update(core.Transition{
				State:     s.states[e][b],
				Action:    envActions[b],
				Reward:    res.Rewards[b],
				NextState: res.States[b],
				Done:      res.Done,
			}); err != nil {
				return fmt.Errorf("memory %v: %w", coord, err)
			}
		}

		s.states[e] = res.States
		if res.Done {
			episodesDone++
			if s.states[e], err = env.Reset(); err != nil {
				return fmt.Errorf("reset env %d: %w", env.Index(), err)
			}
		}
	}
	ev.Done = episodesDone > 0

	if step >= s.trainStart && step%s.trainFreq == 0 {
		losses, err := ctrl.SpaceTrain(ctx)
		if err != nil {
			return err
		}
		vars, err := ctrl.SpaceUpdate(ctx)
		if err != nil {
			return err
		}
		ev.Loss = flatten(losses)
		ev.ExploreVar = flatten(vars)
	}

	s.mu.Lock()
	s.status.Step = step
	s.status.Episode += episodesDone
	ev.Episode = s.status.Episode
	s.mu.Unlock()

	s.publish(messaging.TopicStep, ev)
	return nil
}

func (s *Session) bodyAt(c core.Coord) *body.Body {
	for _, b := range s.agent.Bodies() {
		if b.Coord() == c {
			return b
		}
	}
	return nil
}

// save stores the final checkpoint. Evaluation runs never overwrite the
// weights they loaded.
func (s *Session) save(ctx context.Context) error {
	ctrl, err := s.agent.Controller()
	if err != nil {
		return err
	}
	if s.agent.Mode().InEval() {
		return nil
	}
	if err := ctrl.Save(ctx, s.ckpt); err != nil {
		return fmt.Errorf("save %s: %w", s.ckpt, err)
	}
	s.publish(messaging.TopicCheckpoint, s.ckpt)
	return nil
}

func (s *Session) publish(topic string, content any) {
	if s.broker == nil {
		return
	}
	err := s.broker.Publish(messaging.Message{
		From:      s.id,
		Topic:     topic,
		Content:   content,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.logger.Printf("experiment: publish %s: %v", topic, err)
	}
}

func (s *Session) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Errors = append(s.status.Errors, err)
}

// flatten keys per-body values by coordinate and drops NaN, which JSON
// cannot carry.
func flatten(d *core.Data[float64]) map[string]float64 {
	out := make(map[string]float64, d.Len())
	d.Range(func(c core.Coord, v float64) bool {
		if !math.IsNaN(v) {
			out[c.String()] = v
		}
		return true
	})
	return out
}
